// Package config loads server configuration from a YAML file, applying
// defaults and validation.
package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Defaults applied to unset fields.
const (
	DefaultAddr               = ":8080"
	DefaultSharedDir          = "shared_files"
	DefaultMaxSessions        = 10
	DefaultReadTimeoutSeconds = 0 // disabled
	DefaultLogLevel           = "info"
)

// Config is the server configuration.
type Config struct {
	Server struct {
		Addr               string `yaml:"addr"`
		SharedDir          string `yaml:"sharedDir"`
		MaxSessions        int    `yaml:"maxSessions"`
		ReadTimeoutSeconds int    `yaml:"readTimeoutSeconds"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file. An empty path yields the
// defaults; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.SharedDir == "" {
		cfg.Server.SharedDir = DefaultSharedDir
	}
	if cfg.Server.MaxSessions == 0 {
		cfg.Server.MaxSessions = DefaultMaxSessions
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
}

func validate(cfg *Config) error {
	if cfg.Server.MaxSessions < 1 {
		return fmt.Errorf("maxSessions must be positive, got %d", cfg.Server.MaxSessions)
	}
	if cfg.Server.ReadTimeoutSeconds < 0 {
		return fmt.Errorf("readTimeoutSeconds must not be negative, got %d", cfg.Server.ReadTimeoutSeconds)
	}
	if _, err := logrus.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("unknown log level %q", cfg.Logging.Level)
	}
	return nil
}
