// Package tracing configures OpenTelemetry tracing for ECL executions.
//
// When enabled, New installs an SDK tracer provider exporting over OTLP
// gRPC. When disabled it hands out a no-op tracer, so components can
// always start spans:
//
//	t, err := tracing.New(tracing.Config{Enabled: true, Endpoint: "localhost:4317", Insecure: true})
//	defer t.Shutdown(ctx)
//	r := runner.New(runner.WithTracer(t.Tracer()))
//
// Span attributes use the "ecl.*" namespace; see attributes.go.
package tracing
