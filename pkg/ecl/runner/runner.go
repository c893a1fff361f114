// Package runner binds a caller, a realm and a budget into a single VM
// invocation. The gateway and every registered entry point run their
// programs through a Runner so that execution ids, spans, logs and
// observer events are produced in one place.
package runner

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/vm"
	"erynoa/eclvm/pkg/telemetry/logging"
	"erynoa/eclvm/pkg/telemetry/tracing"
)

// RunResult is the outcome of a successful run.
type RunResult struct {
	Value          bytecode.Value
	GasUsed        uint64
	ManaUsed       uint64
	StackDepthMax  int
	DurationMicros uint64
	ExecutionID    string
	Logs           []string
}

// Runner executes programs for a PolicyRunContext.
type Runner struct {
	vm       *vm.VM
	ids      IDSource
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithVM replaces the default VM, e.g. to enable tracing output.
func WithVM(v *vm.VM) Option {
	return func(r *Runner) { r.vm = v }
}

// WithIDSource replaces the UUID id source.
func WithIDSource(ids IDSource) Option {
	return func(r *Runner) { r.ids = ids }
}

// WithObserver notifies o after every run.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTracer records a span per run.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		ids:    UUIDSource{},
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer(tracing.InstrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.vm == nil {
		r.vm = vm.New(vm.Options{Logger: r.logger})
	}
	r.logger = r.logger.With("component", "ecl.runner")
	return r
}

// Observer returns the configured observer, or nil.
func (r *Runner) Observer() Observer { return r.observer }

// Run executes program for rc against h. The caller DID is on the stack
// when the first instruction runs.
//
// Failed runs are reported to the observer with Passed false and the gas
// consumed up to the failure.
func (r *Runner) Run(ctx context.Context, program bytecode.Program, h host.Host, rc PolicyRunContext) (*RunResult, error) {
	if rc.Budget == nil {
		rc.Budget = budget.New(budget.DefaultLimits())
	}
	if rc.ExecutionID == "" {
		rc.ExecutionID = r.ids.NewID()
	}

	ctx, span := r.tracer.Start(ctx, "ecl.policy.run", trace.WithAttributes(
		tracing.RunAttributes(rc.ExecutionID, rc.PolicyID, rc.PolicyType, rc.RealmID, rc.CallerDID, len(program))...,
	))
	defer span.End()
	ctx = logging.WithExecution(ctx, logging.Execution{
		ID:     rc.ExecutionID,
		Realm:  rc.RealmID,
		Caller: rc.CallerDID,
		Policy: rc.PolicyID,
	})

	start := time.Now()
	res, err := r.vm.Run(ctx, program, rc.Budget, h, bytecode.DID(rc.CallerDID))
	micros := uint64(time.Since(start).Microseconds())

	exec := PolicyExecution{
		ExecutionID:    rc.ExecutionID,
		PolicyID:       rc.PolicyID,
		PolicyType:     rc.PolicyType,
		RealmID:        rc.RealmID,
		CallerDID:      rc.CallerDID,
		GasUsed:        rc.Budget.GasUsed(),
		ManaUsed:       rc.Budget.ManaUsed(),
		DurationMicros: micros,
		Err:            err,
	}
	tracing.SetUsage(span, exec.GasUsed, exec.ManaUsed)

	if err != nil {
		tracing.SetError(span, err)
		tracing.SetStatus(span, err)
		r.logger.DebugContext(ctx, "policy run failed",
			"gas_used", exec.GasUsed,
			"error", err,
		)
		r.notify(exec)
		return nil, err
	}

	for _, msg := range res.Logs {
		r.logger.DebugContext(ctx, "policy log", "message", msg)
	}

	exec.Passed = res.Value.Kind() == bytecode.KindBool && res.Value.IsTruthy()
	span.SetAttributes(attribute.Bool(tracing.AttrPassed, exec.Passed))
	tracing.SetStatus(span, nil)
	r.notify(exec)

	return &RunResult{
		Value:          res.Value,
		GasUsed:        exec.GasUsed,
		ManaUsed:       exec.ManaUsed,
		StackDepthMax:  res.StackDepthMax,
		DurationMicros: micros,
		ExecutionID:    rc.ExecutionID,
		Logs:           res.Logs,
	}, nil
}

func (r *Runner) notify(e PolicyExecution) {
	if r.observer != nil {
		r.observer.OnPolicyExecuted(e)
	}
}
