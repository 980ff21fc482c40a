package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	DefaultBaseURL        = "http://localhost:3001/api"
	DefaultPageSize       = 100
	DefaultRequestTimeout = 30
	EnvPrefix             = "OPSMS_"
)

// Config represents the global ~/.opsms/config.toml. Every key can be
// overridden by an OPSMS_ environment variable.
type Config struct {
	DefaultProfile        string `toml:"default_profile" env:"PROFILE"`
	BaseURL               string `toml:"base_url" env:"BASE_URL"`
	DefaultPhoneNumber    string `toml:"default_phone_number" env:"DEFAULT_PHONE_NUMBER"`
	PageSize              int    `toml:"page_size" env:"PAGE_SIZE"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`
	AllowConcurrentSends  bool   `toml:"allow_concurrent_sends" env:"ALLOW_CONCURRENT_SENDS"`
}

// RequestTimeout returns the HTTP timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = DefaultRequestTimeout
	}
}

// Load reads config from the given path. Returns nil and an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve builds the effective configuration: defaults, overlaid by the file
// at path when it exists, overlaid by the environment.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
