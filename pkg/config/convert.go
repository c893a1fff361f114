package config

import (
	"io"

	"erynoa/eclvm/pkg/audit/recorder"
	"erynoa/eclvm/pkg/audit/retention"
	"erynoa/eclvm/pkg/audit/storage"
	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/gateway"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/policyset"
	"erynoa/eclvm/pkg/server"
	"erynoa/eclvm/pkg/server/middleware"
	"erynoa/eclvm/pkg/telemetry/logging"
	"erynoa/eclvm/pkg/telemetry/metrics"
	"erynoa/eclvm/pkg/telemetry/tracing"
)

// Limits returns the base budget limits.
func (c EngineConfig) Limits() budget.Limits {
	return budget.Limits{
		GasLimit:      c.GasLimit,
		ManaLimit:     c.ManaLimit,
		MaxStackDepth: c.MaxStackDepth,
		Timeout:       c.Timeout,
	}
}

// OptimizeEnabled reports whether the optimizer runs, defaulting to true.
func (c EngineConfig) OptimizeEnabled() bool {
	return c.Optimize == nil || *c.Optimize
}

// Loader returns the policy set loader configuration.
func (c *Config) Loader() policyset.LoaderConfig {
	lc := policyset.DefaultLoaderConfig()
	lc.Optimize = c.Engine.OptimizeEnabled()
	return lc
}

// DampingFactors returns the configured damping, or nil when unset.
func (c GatewayConfig) DampingFactors() *gateway.Damping {
	if len(c.Damping) != bytecode.NumDimensions {
		return nil
	}
	var d gateway.Damping
	copy(d.Factors[:], c.Damping)
	return &d
}

// Registry returns the schema registry configuration.
func (c SchemaConfig) Registry() host.RegistryConfig {
	return host.RegistryConfig{
		ChallengePeriod:    c.ChallengePeriod,
		BreakingMultiplier: c.BreakingMultiplier,
	}
}

// Logger returns the logging configuration with output to w.
func (c LoggingConfig) Logger(w io.Writer) logging.Config {
	return logging.Config{
		Level:      c.Level,
		Format:     c.Format,
		AddSource:  c.AddSource,
		RedactDIDs: c.RedactDIDs,
		Writer:     w,
	}
}

// Collector returns the metrics collector configuration.
func (c MetricsConfig) Collector() metrics.Config {
	return metrics.Config{Namespace: c.Namespace}
}

// Tracer returns the tracer configuration.
func (c TracingConfig) Tracer() tracing.Config {
	return tracing.Config{
		Enabled:     c.Enabled,
		Endpoint:    c.Endpoint,
		Insecure:    c.Insecure,
		Sampler:     c.Sampler,
		SampleRatio: c.SampleRatio,
		ServiceName: c.ServiceName,
	}
}

// Recorder returns the audit recorder configuration.
func (c AuditConfig) Recorder() recorder.Config {
	return recorder.Config{
		Enabled:        c.Enabled,
		AsyncBuffer:    c.AsyncBuffer,
		RedactDIDs:     c.RedactDIDs,
		RecordPolicies: c.RecordPolicies,
	}
}

// SQLite returns the audit database configuration. It is only meaningful
// when Path is set.
func (c AuditConfig) SQLite() storage.SQLiteConfig {
	return storage.SQLiteConfig{Path: c.Path, Driver: c.Driver}
}

// Pruner returns the audit retention configuration.
func (c AuditRetentionConfig) Pruner() retention.Config {
	return retention.Config{
		MaxAge:     c.MaxAge,
		MaxRecords: c.MaxRecords,
		Schedule:   c.Schedule,
	}
}

// HTTP returns the server configuration. An empty listen address falls
// back to the metrics address, which serves the same mux.
func (c *Config) HTTP() server.Config {
	s := c.Server
	addr := s.ListenAddress
	if addr == "" {
		addr = c.Telemetry.Metrics.ListenAddress
	}
	cors := middleware.DefaultCORSConfig()
	cors.Enabled = s.CORS.Enabled
	cors.AllowedOrigins = s.CORS.AllowedOrigins
	cors.AllowCredentials = s.CORS.AllowCredentials
	cors.MaxAge = s.CORS.MaxAge
	return server.Config{
		ListenAddress:   addr,
		ReadTimeout:     s.ReadTimeout,
		WriteTimeout:    s.WriteTimeout,
		IdleTimeout:     s.IdleTimeout,
		RequestTimeout:  s.RequestTimeout,
		ShutdownTimeout: s.ShutdownTimeout,
		MaxHeaderBytes:  s.MaxHeaderBytes,
		TLSCertFile:     s.TLS.CertFile,
		TLSKeyFile:      s.TLS.KeyFile,
		CORS:            cors,
	}
}
