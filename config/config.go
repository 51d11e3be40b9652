// Package config loads cyphersh's runtime options from a YAML file,
// adapted from the teacher's env-var Config/Validate shape (pkg/config)
// to file-based loading suited to a local developer tool.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds cyphersh's runtime options.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects and configures the backing storage.Engine.
type StorageConfig struct {
	// Backend is "memory" or "badger".
	Backend string `yaml:"backend"`
	// DataDir is the badger database directory (ignored for "memory").
	DataDir string `yaml:"data_dir"`
	// QueryTimeout bounds how long a single script may run.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// LoggingConfig controls the CLI's logr backend.
type LoggingConfig struct {
	// Level is "debug", "info", or "error".
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:      "memory",
			DataDir:      "./data",
			QueryTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file at path, falling back to Default when
// path is empty or the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "badger" && c.Storage.DataDir == "" {
		return fmt.Errorf("badger backend requires storage.data_dir")
	}
	if c.Storage.QueryTimeout <= 0 {
		return fmt.Errorf("storage.query_timeout must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	return nil
}
