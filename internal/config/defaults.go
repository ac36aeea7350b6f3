package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:           filepath.Join(HomeDir(), "data"),
		RegionLengthMs:    5000,
		SyncInterval:      5 * time.Minute,
		DebounceInterval:  500 * time.Millisecond,
		PushConcurrency:   4,
		AudioReadyTimeout: 2 * time.Second,
		SubmitMaxAttempts: 5,
		SubmitBackoff:     500 * time.Millisecond,
		HTTPTimeout:       60 * time.Second,
		DashboardPort:     8080,
	}
}

// fileConfig is the on-disk form written by WriteDefault. Durations are
// strings so the file stays readable ("5m0s", not nanoseconds).
type fileConfig struct {
	ServerURL         string `toml:"server_url"`
	DataDir           string `toml:"data_dir"`
	RegionLengthMs    int64  `toml:"region_length_ms"`
	SyncInterval      string `toml:"sync_interval"`
	DebounceInterval  string `toml:"debounce_interval"`
	PushConcurrency   int    `toml:"push_concurrency"`
	AudioReadyTimeout string `toml:"audio_ready_timeout"`
	SubmitMaxAttempts int    `toml:"submit_max_attempts"`
	SubmitBackoff     string `toml:"submit_backoff"`
	HTTPTimeout       string `toml:"http_timeout"`
	InboxDir          string `toml:"inbox_dir"`
	LogFile           string `toml:"log_file"`
	DashboardPort     int    `toml:"dashboard_port"`
}

func toFile(c *Config) fileConfig {
	return fileConfig{
		ServerURL:         c.ServerURL,
		DataDir:           c.DataDir,
		RegionLengthMs:    c.RegionLengthMs,
		SyncInterval:      c.SyncInterval.String(),
		DebounceInterval:  c.DebounceInterval.String(),
		PushConcurrency:   c.PushConcurrency,
		AudioReadyTimeout: c.AudioReadyTimeout.String(),
		SubmitMaxAttempts: c.SubmitMaxAttempts,
		SubmitBackoff:     c.SubmitBackoff.String(),
		HTTPTimeout:       c.HTTPTimeout.String(),
		InboxDir:          c.InboxDir,
		LogFile:           c.LogFile,
		DashboardPort:     c.DashboardPort,
	}
}

const defaultHeader = `# fieldscribe configuration
#
# Every key can be overridden with an environment variable, e.g.
# FIELDSCRIBE_SERVER_URL or FIELDSCRIBE_SYNC_INTERVAL.

`

// WriteDefault writes cfg as a TOML file at path. An existing file is left
// untouched unless force is set.
func WriteDefault(path string, cfg *Config, force bool) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if force {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(path, flags, 0644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if _, err := f.WriteString(defaultHeader); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(toFile(cfg)); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}
