// Package config loads agentctl configuration from a YAML file with
// environment expansion and defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	agentapi "github.com/coder/agentapi-sdk-go"
)

// Config is the top-level agentctl configuration.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout Duration      `yaml:"timeout"`
	Logging LoggingConfig `yaml:"logging"`
	Serve   ServeConfig   `yaml:"serve"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// as well as plain nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServeConfig holds settings for the built-in dev server.
type ServeConfig struct {
	Addr      string `yaml:"addr"`
	AgentType string `yaml:"agent_type"`
	RedisAddr string `yaml:"redis_addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = agentapi.DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(agentapi.DefaultTimeout)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = "127.0.0.1:8318"
	}
	if c.Serve.AgentType == "" {
		c.Serve.AgentType = string(agentapi.AgentTypeClaude)
	}
}

func (c *Config) validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// expandEnv replaces ${VAR} references in secret-bearing fields so secrets
// can stay out of the YAML file.
func (c *Config) expandEnv() {
	c.APIKey = os.ExpandEnv(c.APIKey)
	c.BaseURL = os.ExpandEnv(c.BaseURL)
	c.Serve.RedisAddr = os.ExpandEnv(c.Serve.RedisAddr)
}

// Load reads a YAML config file, applies defaults, expands env vars, and
// validates. A .env file in the working directory is loaded first when
// present.
func Load(path string) (*Config, error) {
	// Missing .env is the common case and not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.defaults()
	cfg.expandEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
