package config

import (
	"time"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/policyset"
)

// Default values for configuration fields.
const (
	DefaultGatewayMode = GatewayModeUnified
	DefaultManaMaxIdle = 24 * time.Hour

	DefaultStorageType        = "memory"
	DefaultStorageDriver      = "sqlite"
	DefaultStorageBusyTimeout = 5 * time.Second
	DefaultCheckpointInterval = 5 * time.Minute
	DefaultStorageMaxEntries  = 100_000

	DefaultServerReadTimeout     = 10 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerIdleTimeout     = 120 * time.Second
	DefaultServerRequestTimeout  = 15 * time.Second
	DefaultServerShutdownTimeout = 10 * time.Second
	DefaultServerMaxHeaderBytes  = 1 << 20
	DefaultCORSMaxAge            = 3600

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsListenAddress = "127.0.0.1:9464"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "ecl"

	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampler     = "always"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "ecl"

	DefaultAuditDriver      = "sqlite"
	DefaultAuditAsyncBuffer = 1000
	DefaultAuditMaxAge      = 90 * 24 * time.Hour
	DefaultAuditSchedule    = "0 3 * * *"

	DefaultPoliciesDir = "./policies"
	DefaultDebounce    = policyset.DefaultDebounce
)

// Gateway modes.
const (
	GatewayModeUnified = "unified"
	GatewayModeManaged = "managed"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Fields already
// set are left untouched.
func ApplyDefaults(cfg *Config) {
	applyEngineDefaults(&cfg.Engine)
	applyManaDefaults(&cfg.Mana)
	if cfg.Gateway.Mode == "" {
		cfg.Gateway.Mode = DefaultGatewayMode
	}
	applyStorageDefaults(cfg)
	if cfg.Schema.BreakingMultiplier == 0 {
		cfg.Schema.BreakingMultiplier = host.DefaultBreakingMultiplier
	}
	if cfg.Schema.ChallengePeriod == 0 {
		cfg.Schema.ChallengePeriod = host.DefaultChallengePeriod
	}
	applyServerDefaults(&cfg.Server)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyAuditDefaults(&cfg.Audit)
	if cfg.Policies.Dir == "" {
		cfg.Policies.Dir = DefaultPoliciesDir
	}
	if cfg.Policies.Debounce == 0 {
		cfg.Policies.Debounce = DefaultDebounce
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = budget.DefaultGasLimit
	}
	if cfg.ManaLimit == 0 {
		cfg.ManaLimit = budget.DefaultManaLimit
	}
	if cfg.MaxStackDepth == 0 {
		cfg.MaxStackDepth = budget.DefaultMaxStackDepth
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = budget.DefaultTimeout
	}
	if cfg.Optimize == nil {
		cfg.Optimize = boolPtr(true)
	}
}

func applyManaDefaults(cfg *ManaConfig) {
	cfg.Config.ApplyDefaults()
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = DefaultManaMaxIdle
	}
}

func applyStorageDefaults(cfg *Config) {
	s := &cfg.Storage
	if s.Type == "" {
		s.Type = DefaultStorageType
	}
	if s.Driver == "" {
		s.Driver = DefaultStorageDriver
	}
	if s.BusyTimeout == 0 {
		s.BusyTimeout = DefaultStorageBusyTimeout
	}
	if s.CheckpointInterval == 0 {
		s.CheckpointInterval = DefaultCheckpointInterval
	}
	if s.MaxEntries == 0 {
		s.MaxEntries = DefaultStorageMaxEntries
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultServerIdleTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultServerRequestTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultServerMaxHeaderBytes
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.CORS.MaxAge == 0 {
		cfg.CORS.MaxAge = DefaultCORSMaxAge
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Driver == "" {
		cfg.Driver = DefaultAuditDriver
	}
	if cfg.AsyncBuffer == 0 {
		cfg.AsyncBuffer = DefaultAuditAsyncBuffer
	}
	if cfg.RecordPolicies == nil {
		cfg.RecordPolicies = boolPtr(true)
	}
	if cfg.Retention.MaxAge == 0 {
		cfg.Retention.MaxAge = DefaultAuditMaxAge
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultAuditSchedule
	}
}

func boolPtr(b bool) *bool { return &b }
