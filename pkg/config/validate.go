package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/telemetry/logging"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path, e.g. "engine.gas_limit".
	Field string

	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the whole configuration and returns a ValidationError
// holding every problem found, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateMana(&cfg.Mana)...)
	errs = append(errs, validateGateway(&cfg.Gateway, &cfg.Mana)...)
	errs = append(errs, validateStorage(cfg)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)

	if cfg.Schema.BreakingMultiplier == 0 {
		errs = append(errs, FieldError{Field: "schema.breaking_multiplier", Message: "must be positive"})
	}
	if cfg.Schema.ChallengePeriod < 0 {
		errs = append(errs, FieldError{Field: "schema.challenge_period", Message: "cannot be negative"})
	}
	if cfg.Policies.Dir == "" {
		errs = append(errs, FieldError{Field: "policies.dir", Message: "directory is required"})
	}
	if cfg.Policies.Debounce < 0 {
		errs = append(errs, FieldError{Field: "policies.debounce", Message: "cannot be negative"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError
	if cfg.GasLimit == 0 {
		errs = append(errs, FieldError{Field: "engine.gas_limit", Message: "must be positive"})
	}
	if cfg.MaxStackDepth <= 0 {
		errs = append(errs, FieldError{Field: "engine.max_stack_depth", Message: "must be positive"})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "engine.timeout", Message: "cannot be negative"})
	}
	return errs
}

func validateMana(cfg *ManaConfig) []FieldError {
	var errs []FieldError
	if err := cfg.Config.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "mana", Message: err.Error()})
	}
	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "mana.sweep_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.MaxIdle < 0 {
		errs = append(errs, FieldError{Field: "mana.max_idle", Message: "cannot be negative"})
	}
	return errs
}

func validateGateway(cfg *GatewayConfig, m *ManaConfig) []FieldError {
	var errs []FieldError
	switch cfg.Mode {
	case GatewayModeUnified:
	case GatewayModeManaged:
		if !m.Enabled {
			errs = append(errs, FieldError{Field: "gateway.mode", Message: "managed mode requires mana.enabled"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "gateway.mode",
			Message: fmt.Sprintf("invalid mode %q (must be unified or managed)", cfg.Mode),
		})
	}

	if len(cfg.Damping) > 0 && len(cfg.Damping) != bytecode.NumDimensions {
		errs = append(errs, FieldError{
			Field:   "gateway.damping",
			Message: fmt.Sprintf("expected %d factors, got %d", bytecode.NumDimensions, len(cfg.Damping)),
		})
	}
	for i, f := range cfg.Damping {
		if f < 0 || f > 1 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("gateway.damping[%d]", i),
				Message: fmt.Sprintf("factor %g out of range [0,1]", f),
			})
		}
	}
	return errs
}

func validateStorage(cfg *Config) []FieldError {
	var errs []FieldError
	s := &cfg.Storage
	switch s.Type {
	case "memory":
	case "sqlite", "bolt":
		if s.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.path",
				Message: fmt.Sprintf("path is required for %s storage", s.Type),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid type %q (must be memory, sqlite or bolt)", s.Type),
		})
	}
	if s.Type == "sqlite" && s.Driver != "sqlite" && s.Driver != "sqlite3" {
		errs = append(errs, FieldError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("invalid driver %q (must be sqlite or sqlite3)", s.Driver),
		})
	}
	if s.MaxEntries < 0 {
		errs = append(errs, FieldError{Field: "storage.max_entries", Message: "cannot be negative"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: err.Error()})
	}
	if _, err := logging.ParseFormat(cfg.Logging.Format); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: err.Error()})
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: fmt.Sprintf("invalid address: %v", err),
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
		}
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never":
		case "ratio":
			if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
				errs = append(errs, FieldError{
					Field:   "telemetry.tracing.sample_ratio",
					Message: "must be between 0 and 1",
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (must be always, never or ratio)", cfg.Tracing.Sampler),
			})
		}
	}
	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError
	if cfg.Driver != "sqlite" && cfg.Driver != "sqlite3" {
		errs = append(errs, FieldError{
			Field:   "audit.driver",
			Message: fmt.Sprintf("invalid driver %q (must be sqlite or sqlite3)", cfg.Driver),
		})
	}
	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{Field: "audit.async_buffer", Message: "cannot be negative"})
	}
	if cfg.Retention.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "audit.retention.max_age", Message: "cannot be negative"})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "audit.retention.max_records", Message: "cannot be negative"})
	}
	if cfg.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "audit.retention.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "server.listen_address",
				Message: fmt.Sprintf("invalid address: %v", err),
			})
		}
	}
	for field, d := range map[string]time.Duration{
		"server.read_timeout":     cfg.ReadTimeout,
		"server.write_timeout":    cfg.WriteTimeout,
		"server.idle_timeout":     cfg.IdleTimeout,
		"server.request_timeout":  cfg.RequestTimeout,
		"server.shutdown_timeout": cfg.ShutdownTimeout,
	} {
		if d < 0 {
			errs = append(errs, FieldError{Field: field, Message: "cannot be negative"})
		}
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		errs = append(errs, FieldError{Field: "server.tls", Message: "cert_file and key_file must be set together"})
	}
	if cfg.CORS.AllowCredentials && slices.Contains(cfg.CORS.AllowedOrigins, "*") {
		errs = append(errs, FieldError{
			Field:   "server.cors.allow_credentials",
			Message: "cannot be combined with a wildcard origin",
		})
	}
	return errs
}
