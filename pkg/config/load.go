package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"erynoa/eclvm/pkg/ecl/mana"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ECL_"

// LoadConfig reads a YAML or TOML file, chosen by extension (.toml is TOML,
// everything else YAML), applies defaults and validates the result.
// Environment variables are not consulted; see LoadConfigWithEnvOverrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Keys missing from the file keep their defaults; keys set to zero
	// stay zero.
	cfg := &Config{}
	cfg.Mana.Config = mana.DefaultConfig()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = decodeTOML(data, cfg)
	} else {
		err = decodeYAML(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads path and then applies ECL_* environment
// overrides. An empty path starts from the defaults.
//
// The loading sequence is:
//  1. Load YAML or TOML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

type envOverride struct {
	name  string
	apply func(cfg *Config, val string) error
}

var envOverrides = []envOverride{
	{"ENGINE_GAS_LIMIT", func(c *Config, v string) error { return setUint(&c.Engine.GasLimit, v) }},
	{"ENGINE_MANA_LIMIT", func(c *Config, v string) error { return setUint(&c.Engine.ManaLimit, v) }},
	{"ENGINE_MAX_STACK_DEPTH", func(c *Config, v string) error { return setInt(&c.Engine.MaxStackDepth, v) }},
	{"ENGINE_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Engine.Timeout, v) }},
	{"ENGINE_OPTIMIZE", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			c.Engine.Optimize = boolPtr(b)
		}
		return err
	}},
	{"MANA_ENABLED", func(c *Config, v string) error { return setBool(&c.Mana.Enabled, v) }},
	{"MANA_SWEEP_SCHEDULE", func(c *Config, v string) error { c.Mana.SweepSchedule = v; return nil }},
	{"MANA_MAX_IDLE", func(c *Config, v string) error { return setDuration(&c.Mana.MaxIdle, v) }},
	{"MANA_BASE_ALLOWANCE", func(c *Config, v string) error { return setUint(&c.Mana.BaseAllowance, v) }},
	{"GATEWAY_MODE", func(c *Config, v string) error { c.Gateway.Mode = v; return nil }},
	{"STORAGE_TYPE", func(c *Config, v string) error { c.Storage.Type = v; return nil }},
	{"STORAGE_PATH", func(c *Config, v string) error { c.Storage.Path = v; return nil }},
	{"STORAGE_DRIVER", func(c *Config, v string) error { c.Storage.Driver = v; return nil }},
	{"SCHEMA_CHALLENGE_PERIOD", func(c *Config, v string) error { return setDuration(&c.Schema.ChallengePeriod, v) }},
	{"SERVER_LISTEN_ADDRESS", func(c *Config, v string) error { c.Server.ListenAddress = v; return nil }},
	{"SERVER_REQUEST_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Server.RequestTimeout, v) }},
	{"TELEMETRY_LOGGING_LEVEL", func(c *Config, v string) error { c.Telemetry.Logging.Level = v; return nil }},
	{"TELEMETRY_LOGGING_FORMAT", func(c *Config, v string) error { c.Telemetry.Logging.Format = v; return nil }},
	{"TELEMETRY_METRICS_ENABLED", func(c *Config, v string) error { return setBool(&c.Telemetry.Metrics.Enabled, v) }},
	{"TELEMETRY_METRICS_LISTEN_ADDRESS", func(c *Config, v string) error { c.Telemetry.Metrics.ListenAddress = v; return nil }},
	{"TELEMETRY_TRACING_ENABLED", func(c *Config, v string) error { return setBool(&c.Telemetry.Tracing.Enabled, v) }},
	{"TELEMETRY_TRACING_ENDPOINT", func(c *Config, v string) error { c.Telemetry.Tracing.Endpoint = v; return nil }},
	{"AUDIT_ENABLED", func(c *Config, v string) error { return setBool(&c.Audit.Enabled, v) }},
	{"AUDIT_PATH", func(c *Config, v string) error { c.Audit.Path = v; return nil }},
	{"AUDIT_RETENTION_MAX_AGE", func(c *Config, v string) error { return setDuration(&c.Audit.Retention.MaxAge, v) }},
	{"POLICIES_DIR", func(c *Config, v string) error { c.Policies.Dir = v; return nil }},
	{"POLICIES_WATCH", func(c *Config, v string) error { return setBool(&c.Policies.Watch, v) }},
}

// applyEnvOverrides applies ECL_SECTION_FIELD variables. Malformed values
// are reported rather than ignored.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []FieldError
	for _, o := range envOverrides {
		val, ok := lookup(EnvPrefix + o.name)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(cfg, val); err != nil {
			errs = append(errs, FieldError{Field: EnvPrefix + o.name, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func setUint(dst *uint64, v string) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err == nil {
		*dst = n
	}
	return err
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err == nil {
		*dst = n
	}
	return err
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err == nil {
		*dst = b
	}
	return err
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err == nil {
		*dst = d
	}
	return err
}
