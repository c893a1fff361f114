package config

import (
	"fmt"
	"sync/atomic"
)

// current is the configuration of the running process.
var current atomic.Pointer[Config]

// GetConfig returns the process configuration, or nil before SetConfig.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig installs cfg as the process configuration.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig loads path with environment overrides and installs it. On
// failure the installed configuration is kept.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	SetConfig(cfg)
	return nil
}

// MustGetConfig is GetConfig for callers that run after startup.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("config: no configuration installed")
	}
	return cfg
}
