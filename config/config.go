// Package config provides configuration loading, validation and hot
// reload for the volplane service.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides. These take precedence over the file.
const (
	EnvDatabaseDSN   = "VOLPLANE_DATABASE_DSN"
	EnvLogLevel      = "VOLPLANE_LOG_LEVEL"
	EnvLogFormat     = "VOLPLANE_LOG_FORMAT"
	EnvCommitRetries = "VOLPLANE_COMMIT_RETRIES"
)

// Config is the root configuration structure.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Commit   CommitConfig   `yaml:"commit"`
}

// DatabaseConfig configures the configuration store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // "json" or "console"
}

// CommitConfig configures the optimistic commit loop.
type CommitConfig struct {
	// MaxRetries bounds re-validation attempts after version conflicts.
	MaxRetries int `yaml:"max_retries"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "volplane.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Commit: CommitConfig{
			MaxRetries: 3,
		},
	}
}

// Load reads configuration from a YAML file, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithFallback loads from the file when it exists and otherwise
// starts from defaults plus environment overrides.
func LoadWithFallback(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvCommitRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Commit.MaxRetries = n
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("config: sqlite driver requires a dsn")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	if c.Commit.MaxRetries < 0 {
		return fmt.Errorf("config: commit max_retries must not be negative")
	}
	return nil
}
