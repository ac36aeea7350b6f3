// Package config loads fieldscribe settings from a TOML file, FIELDSCRIBE_*
// environment variables and built-in defaults, in that order of precedence:
// environment beats file, file beats defaults.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the full fieldscribe configuration
type Config struct {
	// Server root of the transcription service
	ServerURL string `mapstructure:"server_url"`

	// Directory holding the database, preferences and audio files
	DataDir string `mapstructure:"data_dir"`

	// Target region length for new tasks, in milliseconds
	RegionLengthMs int64 `mapstructure:"region_length_ms"`

	// Daemon timing
	SyncInterval     time.Duration `mapstructure:"sync_interval"`
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`

	// Sync engine tuning
	PushConcurrency   int           `mapstructure:"push_concurrency"`
	AudioReadyTimeout time.Duration `mapstructure:"audio_ready_timeout"`

	// Remote client tuning
	SubmitMaxAttempts int           `mapstructure:"submit_max_attempts"`
	SubmitBackoff     time.Duration `mapstructure:"submit_backoff"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`

	// Drop folder watched by the daemon; empty disables ingestion
	InboxDir string `mapstructure:"inbox_dir"`

	// Daemon log file; empty logs to stderr
	LogFile string `mapstructure:"log_file"`

	// Port of the WebSocket dashboard
	DashboardPort int `mapstructure:"dashboard_port"`
}

// DBPath returns the SQLite database path
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "fieldscribe.db")
}

// PrefsPath returns the preferences file path
func (c *Config) PrefsPath() string {
	return filepath.Join(c.DataDir, "prefs.yaml")
}

// FilesDir returns the directory for imported and downloaded audio
func (c *Config) FilesDir() string {
	return filepath.Join(c.DataDir, "files")
}

// Validate checks values that have no usable fallback
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.RegionLengthMs <= 0 {
		return fmt.Errorf("region_length_ms must be positive (got %d)", c.RegionLengthMs)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive (got %s)", c.SyncInterval)
	}
	if c.DebounceInterval <= 0 {
		return fmt.Errorf("debounce_interval must be positive (got %s)", c.DebounceInterval)
	}
	if c.PushConcurrency < 1 {
		return fmt.Errorf("push_concurrency must be at least 1 (got %d)", c.PushConcurrency)
	}
	if c.SubmitMaxAttempts < 1 {
		return fmt.Errorf("submit_max_attempts must be at least 1 (got %d)", c.SubmitMaxAttempts)
	}
	if c.DashboardPort < 0 || c.DashboardPort > 65535 {
		return fmt.Errorf("dashboard_port out of range (got %d)", c.DashboardPort)
	}
	return nil
}
