package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Plugins PluginConfig
	Launch  LaunchConfig
	Restore RestoreConfig
	Logging LogConfig
}

// ServerConfig holds the status HTTP server configuration.
type ServerConfig struct {
	Addr    string `envconfig:"STATUS_ADDR" default:"127.0.0.1:7421"`
	Enabled bool   `envconfig:"STATUS_ENABLED" default:"true"`
}

// StoreConfig holds persistent store configuration.
type StoreConfig struct {
	Dir          string        `envconfig:"STATE_DIR" default:"~/.config/rememberd"`
	SaveDebounce time.Duration `envconfig:"SAVE_DEBOUNCE" default:"2s"`
}

// PluginConfig holds plugin registry configuration.
type PluginConfig struct {
	Dirs []string `envconfig:"PLUGIN_DIRS"`
}

// LaunchConfig holds launch orchestration tunables.
type LaunchConfig struct {
	Timeout             time.Duration `envconfig:"LAUNCH_TIMEOUT" default:"15s"`
	GracePeriod         time.Duration `envconfig:"LAUNCH_GRACE" default:"30s"`
	SingleInstanceGrace time.Duration `envconfig:"LAUNCH_GRACE_SINGLE" default:"60s"`
	InterAppDelay       time.Duration `envconfig:"LAUNCH_DELAY" default:"500ms"`
	SameClassDelay      time.Duration `envconfig:"LAUNCH_DELAY_SEQUENTIAL" default:"2500ms"`
	CrashWindow         time.Duration `envconfig:"LAUNCH_CRASH_WINDOW" default:"2s"`
	MaxInstancesPerApp  int           `envconfig:"MAX_INSTANCES_PER_APP" default:"5"`
}

// RestoreConfig holds position restoration tunables.
type RestoreConfig struct {
	AttemptDelay    time.Duration `envconfig:"RESTORE_ATTEMPT_DELAY" default:"300ms"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"60s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("REMEMBERD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    "127.0.0.1:7421",
			Enabled: true,
		},
		Store: StoreConfig{
			Dir:          "~/.config/rememberd",
			SaveDebounce: 2 * time.Second,
		},
		Launch: LaunchConfig{
			Timeout:             15 * time.Second,
			GracePeriod:         30 * time.Second,
			SingleInstanceGrace: 60 * time.Second,
			InterAppDelay:       500 * time.Millisecond,
			SameClassDelay:      2500 * time.Millisecond,
			CrashWindow:         2 * time.Second,
			MaxInstancesPerApp:  5,
		},
		Restore: RestoreConfig{
			AttemptDelay:    300 * time.Millisecond,
			CleanupInterval: 60 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
