// Package config holds the runner configuration loaded from YAML and
// the environment. Command-line flags override whatever loads here.
package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all loris configuration.
type Config struct {
	// Logging verbosity
	Verbose bool `yaml:"verbose"`
	Quiet   bool `yaml:"quiet"`

	// Show at most this many stub calls; 0 keeps the flag default.
	MaxCalls int `yaml:"max_calls"`

	// Entry export to invoke; empty selects _start/main automatically.
	Entry string `yaml:"entry"`

	// Fallbacks controls zero-returning host functions for imports no
	// stub matches. Off, unmatched imports fail instantiation.
	Fallbacks bool `yaml:"fallbacks"`

	// Disabled stub categories; their imports get fallbacks instead.
	Disabled []string `yaml:"disabled"`

	// Script is a JavaScript hook file run against every stub call.
	Script string `yaml:"script"`

	History HistoryConfig `yaml:"history"`
	Serve   ServeConfig   `yaml:"serve"`
}

// HistoryConfig configures session recording.
type HistoryConfig struct {
	// Path to the bbolt database. Setting it turns recording on;
	// empty falls back to the per-user default when --record asks.
	Path string `yaml:"path"`

	// Key is a hex-encoded AES key (16, 24, or 32 bytes decoded).
	// Set, session payloads are stored encrypted.
	Key string `yaml:"key"`
}

// ServeConfig configures the trace service.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Fallbacks: true,
		Serve: ServeConfig{
			Addr: "127.0.0.1:7447",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. The key in
// particular belongs in the environment rather than on disk.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("LORIS_HISTORY"); path != "" {
		c.History.Path = path
	}
	if key := os.Getenv("LORIS_HISTORY_KEY"); key != "" {
		c.History.Key = key
	}
	if addr := os.Getenv("LORIS_ADDR"); addr != "" {
		c.Serve.Addr = addr
	}
}

// HistoryKey decodes the configured hex key. Empty config means no
// encryption and returns nil without error.
func (c *Config) HistoryKey() ([]byte, error) {
	if c.History.Key == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.History.Key)
	if err != nil {
		return nil, fmt.Errorf("decode history key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("history key must be 16, 24, or 32 bytes, got %d", len(key))
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Verbose && c.Quiet {
		return fmt.Errorf("verbose and quiet are mutually exclusive")
	}
	if c.MaxCalls < 0 {
		return fmt.Errorf("max_calls must not be negative, got %d", c.MaxCalls)
	}
	if _, err := c.HistoryKey(); err != nil {
		return err
	}
	if c.Serve.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Serve.Addr); err != nil {
			return fmt.Errorf("invalid serve address %q: %w", c.Serve.Addr, err)
		}
	}
	return nil
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loris", "loris.yaml")
}

// HistoryPath returns the session database location, next to the
// config file unless overridden.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loris", "history.db")
}
