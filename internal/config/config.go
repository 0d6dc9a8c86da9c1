// Package config loads focusgate settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "FOCUSGATE_CONFIG"

// Store kinds.
const (
	StoreEncrypted = "encrypted"
	StoreFile      = "file"
	StoreMemory    = "memory"
)

// Config is the on-disk configuration. Zero fields fall back to defaults.
type Config struct {
	DataDir string       `yaml:"data_dir"`
	Store   string       `yaml:"store"`
	Log     LogConfig    `yaml:"log"`
	Goal    GoalConfig   `yaml:"goal"`
	Daemon  DaemonConfig `yaml:"daemon"`
	Host    HostConfig   `yaml:"host"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // daemon log file; empty means <data_dir>/focusgate.log
}

// GoalConfig controls goal validation.
type GoalConfig struct {
	MinLength int `yaml:"min_length"`
}

// DaemonConfig holds scheduler daemon intervals.
type DaemonConfig struct {
	SettingsPollInterval time.Duration `yaml:"settings_poll_interval"` // re-read reset hour changed by other processes
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
}

// HostConfig tunes the native messaging host.
type HostConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval"` // forward changes made by other processes to the browser
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DataDir: "~/.focusgate",
		Store:   StoreEncrypted,
		Log: LogConfig{
			Level: "info",
		},
		Goal: GoalConfig{
			MinLength: 10,
		},
		Daemon: DaemonConfig{
			SettingsPollInterval: 30 * time.Second,
			HeartbeatInterval:    30 * time.Second,
		},
		Host: HostConfig{
			SyncInterval: 5 * time.Second,
		},
	}
}

// DefaultPath returns $FOCUSGATE_CONFIG or ~/.focusgate/config.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".focusgate", "config.yaml")
	}
	return filepath.Join(home, ".focusgate", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
// The result is validated and has its paths expanded.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Finalize expands paths, fills derived defaults and validates.
func (c *Config) Finalize() error {
	dataDir, err := ExpandHome(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = dataDir

	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.DataDir, "focusgate.log")
	} else if c.Log.File, err = ExpandHome(c.Log.File); err != nil {
		return err
	}

	return c.Validate()
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	switch c.Store {
	case StoreEncrypted, StoreFile, StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q (want %s, %s or %s)", c.Store, StoreEncrypted, StoreFile, StoreMemory)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	if c.Goal.MinLength <= 0 {
		return fmt.Errorf("config: goal.min_length must be positive")
	}
	if c.Daemon.SettingsPollInterval <= 0 {
		return fmt.Errorf("config: daemon.settings_poll_interval must be positive")
	}
	if c.Daemon.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: daemon.heartbeat_interval must be positive")
	}
	if c.Host.SyncInterval <= 0 {
		return fmt.Errorf("config: host.sync_interval must be positive")
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
