package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// config is the YAML configuration for the runner. Every field has a usable
// default, so the file itself is optional.
type config struct {
	// Wasm is the guest module path. The -wasm flag overrides it.
	Wasm string `yaml:"wasm"`

	// LogLevel sets host log verbosity: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// GuestLogLevel caps guest log emissions (1 = errors only, 5 = trace).
	GuestLogLevel uint32 `yaml:"guest_log_level"`

	// MemoryLimitPages caps guest memory in 64KB pages. 0 means unlimited.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`

	// DialTimeout bounds TCP connection establishment, e.g. "10s".
	DialTimeout string `yaml:"dial_timeout"`

	// InitialWindow overrides the writable budget granted when a socket
	// connection opens. 0 keeps the transport default.
	InitialWindow uint32 `yaml:"initial_window"`
}

func defaultConfig() *config {
	return &config{
		LogLevel:      "info",
		GuestLogLevel: 3,
		DialTimeout:   "10s",
	}
}

// loadConfig reads a YAML config file, layering it over the defaults.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.GuestLogLevel < 1 || c.GuestLogLevel > 5 {
		return fmt.Errorf("guest_log_level %d out of range 1..5", c.GuestLogLevel)
	}
	if _, err := c.dialTimeout(); err != nil {
		return fmt.Errorf("dial_timeout: %w", err)
	}
	return nil
}

func (c *config) dialTimeout() (time.Duration, error) {
	if c.DialTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.DialTimeout)
}
