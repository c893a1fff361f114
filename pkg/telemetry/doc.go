// Package telemetry groups the observability packages of an ECL node.
//
//   - logging: slog setup with DID redaction
//   - metrics: Prometheus collector fed by runner.Observer events
//   - tracing: OpenTelemetry spans around policy runs
//   - health: liveness and readiness probes
//
// A node builds them from config.TelemetryConfig:
//
//	logger, _ := logging.New(cfg.Telemetry.Logging.Logger(os.Stderr))
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics.Collector(), nil)
//	tracer, _ := tracing.New(cfg.Telemetry.Tracing.Tracer())
//	defer tracer.Shutdown(ctx)
package telemetry
