// Package config loads the xcompanion server configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// SessionsConfig controls session retention and lifetime policy.
type SessionsConfig struct {
	// Retention is how long terminal sessions stay pollable before the
	// reaper removes them.
	Retention Duration `yaml:"retention"`
	// SweepInterval is how often the reaper sweeps.
	SweepInterval Duration `yaml:"sweep_interval"`
	// MaxLifetime auto-terminates sessions still running after this long.
	// Zero disables the limit.
	MaxLifetime Duration `yaml:"max_lifetime,omitempty"`
}

// RunnerConfig describes the external test runner command.
type RunnerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// BundlesConfig locates stored test bundles.
type BundlesConfig struct {
	Root string `yaml:"root"`
}

// Config is the full server configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	APIKey   string         `yaml:"api_key,omitempty"`
	LogLevel string         `yaml:"log_level,omitempty"`
	Sessions SessionsConfig `yaml:"sessions"`
	Runner   RunnerConfig   `yaml:"runner"`
	Bundles  BundlesConfig  `yaml:"bundles"`
}

// Default returns the configuration defaults applied before loading.
func Default() *Config {
	return &Config{
		Listen:   ":8742",
		LogLevel: "info",
		Sessions: SessionsConfig{
			Retention:     Duration(5 * time.Minute),
			SweepInterval: Duration(30 * time.Second),
		},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration data from YAML bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen is required")
	}
	if c.Runner.Command == "" {
		return fmt.Errorf("config: runner.command is required")
	}
	if c.Bundles.Root == "" {
		return fmt.Errorf("config: bundles.root is required")
	}
	if c.Sessions.Retention <= 0 {
		return fmt.Errorf("config: sessions.retention must be positive")
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("config: sessions.sweep_interval must be positive")
	}
	if c.Sessions.MaxLifetime < 0 {
		return fmt.Errorf("config: sessions.max_lifetime must not be negative")
	}
	return nil
}
