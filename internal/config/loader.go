package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FIELDSCRIBE"

// HomeDir returns the fieldscribe home directory. FIELDSCRIBE_HOME wins over
// ~/.fieldscribe.
func HomeDir() string {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldscribe"
	}
	return filepath.Join(home, ".fieldscribe")
}

// DefaultPath returns the path of the config file
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.toml")
}

// Load reads the config file at path (DefaultPath when empty), applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that the
// file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("region_length_ms", d.RegionLengthMs)
	v.SetDefault("sync_interval", d.SyncInterval)
	v.SetDefault("debounce_interval", d.DebounceInterval)
	v.SetDefault("push_concurrency", d.PushConcurrency)
	v.SetDefault("audio_ready_timeout", d.AudioReadyTimeout)
	v.SetDefault("submit_max_attempts", d.SubmitMaxAttempts)
	v.SetDefault("submit_backoff", d.SubmitBackoff)
	v.SetDefault("http_timeout", d.HTTPTimeout)
	v.SetDefault("inbox_dir", d.InboxDir)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("dashboard_port", d.DashboardPort)
}
