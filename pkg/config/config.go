package config

import (
	"time"

	"erynoa/eclvm/pkg/ecl/mana"
	"erynoa/eclvm/pkg/ecl/storage"
)

// Config is the root configuration of an ECL node or tool.
type Config struct {
	// Engine bounds every policy execution.
	Engine EngineConfig `yaml:"engine" toml:"engine"`

	// Mana configures per-identity mana accounts.
	Mana ManaConfig `yaml:"mana" toml:"mana"`

	// Gateway configures realm admission.
	Gateway GatewayConfig `yaml:"gateway" toml:"gateway"`

	// Storage selects the persistent backend used for stores, schemas,
	// compiled programs and mana snapshots.
	Storage storage.Config `yaml:"storage" toml:"storage"`

	// Schema configures store schema evolution.
	Schema SchemaConfig `yaml:"schema" toml:"schema"`

	// Server configures the gateway HTTP API.
	Server ServerConfig `yaml:"server" toml:"server"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`

	// Audit configures the decision audit trail.
	Audit AuditConfig `yaml:"audit" toml:"audit"`

	// Policies locates the policy set on disk.
	Policies PoliciesConfig `yaml:"policies" toml:"policies"`
}

// EngineConfig holds the base execution limits.
type EngineConfig struct {
	// GasLimit is the base gas limit per execution. Default: 50,000
	GasLimit uint64 `yaml:"gas_limit" toml:"gas_limit"`

	// ManaLimit is the base mana limit per execution. Default: 10,000
	ManaLimit uint64 `yaml:"mana_limit" toml:"mana_limit"`

	// MaxStackDepth bounds the operand stack. Default: 1024
	MaxStackDepth int `yaml:"max_stack_depth" toml:"max_stack_depth"`

	// Timeout is the wall-clock limit per execution. Default: 5s
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// Optimize runs the bytecode optimizer after compilation.
	// Default: true
	Optimize *bool `yaml:"optimize" toml:"optimize"`
}

// ManaConfig embeds the account scaling parameters and adds the sweeper.
type ManaConfig struct {
	mana.Config `yaml:",inline"`

	// Enabled switches the gateway to manager-mode admission.
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// SweepSchedule is a five-field cron expression for removing idle
	// accounts. Empty disables the sweeper.
	SweepSchedule string `yaml:"sweep_schedule" toml:"sweep_schedule"`

	// MaxIdle is how long an account may stay unused before the sweeper
	// removes it. Default: 24h
	MaxIdle time.Duration `yaml:"max_idle" toml:"max_idle"`
}

// GatewayConfig configures realm admission.
type GatewayConfig struct {
	// Mode is "unified" or "managed". "managed" requires mana.enabled.
	// Default: unified
	Mode string `yaml:"mode" toml:"mode"`

	// Damping holds six factors in [0,1], one per trust dimension
	// (R, I, C, P, V, Ω). Empty uses the gateway default.
	Damping []float64 `yaml:"damping" toml:"damping"`
}

// SchemaConfig configures store schema evolution.
type SchemaConfig struct {
	// BreakingMultiplier scales the mana cost of breaking changes.
	// Default: 4
	BreakingMultiplier uint64 `yaml:"breaking_multiplier" toml:"breaking_multiplier"`

	// ChallengePeriod is how long a breaking change stays pending.
	// Default: 168h
	ChallengePeriod time.Duration `yaml:"challenge_period" toml:"challenge_period"`
}

// ServerConfig configures the HTTP server of "ecl serve".
type ServerConfig struct {
	// ListenAddress for the API, metrics and health routes. Empty uses
	// telemetry.metrics.listen_address.
	ListenAddress string `yaml:"listen_address" toml:"listen_address"`

	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout" toml:"read_timeout"`

	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`

	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`

	// RequestTimeout bounds each request context. Default: 15s
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`

	// ShutdownTimeout bounds the graceful drain. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// Default: 1 MiB
	MaxHeaderBytes int `yaml:"max_header_bytes" toml:"max_header_bytes"`

	TLS  TLSConfig  `yaml:"tls" toml:"tls"`
	CORS CORSConfig `yaml:"cors" toml:"cors"`
}

// TLSConfig enables TLS 1.3 when both files are set.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// CORSConfig configures Cross-Origin Resource Sharing for browser clients.
type CORSConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// AllowedOrigins lists allowed origins. Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	AllowCredentials bool `yaml:"allow_credentials" toml:"allow_credentials"`

	// MaxAge is the preflight cache lifetime in seconds. Default: 3600
	MaxAge int `yaml:"max_age" toml:"max_age"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level" toml:"level"`

	// Format is json, text or console. Default: json
	Format string `yaml:"format" toml:"format"`

	AddSource bool `yaml:"add_source" toml:"add_source"`

	// RedactDIDs shortens DIDs in log output. Default: false
	RedactDIDs bool `yaml:"redact_dids" toml:"redact_dids"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// ListenAddress for /metrics, /health and /ready. Default: 127.0.0.1:9464
	ListenAddress string `yaml:"listen_address" toml:"listen_address"`

	// Path of the metrics handler. Default: /metrics
	Path string `yaml:"path" toml:"path"`

	// Namespace prefixes every metric. Default: ecl
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Endpoint is the OTLP gRPC collector. Default: localhost:4317
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	Insecure bool `yaml:"insecure" toml:"insecure"`

	// Sampler is always, never or ratio. Default: always
	Sampler string `yaml:"sampler" toml:"sampler"`

	// SampleRatio is used by the ratio sampler. Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`

	// ServiceName is reported as service.name. Default: ecl
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// AuditConfig configures the hash-chained record of every policy run and
// crossing decision.
type AuditConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Path is the SQLite audit database. Empty keeps the trail in memory.
	Path string `yaml:"path" toml:"path"`

	// Driver is sqlite (modernc) or sqlite3 (mattn). Default: sqlite
	Driver string `yaml:"driver" toml:"driver"`

	// AsyncBuffer is the recorder queue size. Default: 1000
	AsyncBuffer int `yaml:"async_buffer" toml:"async_buffer"`

	// RedactDIDs shortens entity DIDs before they are recorded.
	RedactDIDs bool `yaml:"redact_dids" toml:"redact_dids"`

	// RecordPolicies records every policy run, not only crossings.
	// Default: true
	RecordPolicies *bool `yaml:"record_policies" toml:"record_policies"`

	Retention AuditRetentionConfig `yaml:"retention" toml:"retention"`
}

// AuditRetentionConfig bounds the audit trail.
type AuditRetentionConfig struct {
	// MaxAge is how long records are kept. Zero keeps them forever.
	// Default: 2160h (90 days)
	MaxAge time.Duration `yaml:"max_age" toml:"max_age"`

	// MaxRecords caps the number of records. Zero means unlimited.
	MaxRecords int64 `yaml:"max_records" toml:"max_records"`

	// Schedule is a five-field cron expression. Default: "0 3 * * *"
	Schedule string `yaml:"schedule" toml:"schedule"`
}

// PoliciesConfig locates the policy set.
type PoliciesConfig struct {
	// Dir holds .ecl sources and realms.yaml. Default: ./policies
	Dir string `yaml:"dir" toml:"dir"`

	// Watch reloads the policy set on change.
	Watch bool `yaml:"watch" toml:"watch"`

	// Debounce coalesces bursts of file events. Default: 100ms
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}
