// Package entrypoints registers ECL programs for the engines that consult
// policies outside of realm crossings: API routes, UI components, data
// logic streams, governance proposals and controller permissions.
//
// Every registry maps a key (a route id, a component id, a permission ...)
// to a program. Run executes the program for a caller through the shared
// runner, so execution events reach the same observer as gateway runs.
package entrypoints

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/runner"
)

// DefaultGasLimit is the gas limit of a single entry point run.
const DefaultGasLimit uint64 = 50_000

// Kind names a registry.
type Kind string

const (
	API        Kind = "api"
	UI         Kind = "ui"
	DataLogic  Kind = "datalogic"
	Governance Kind = "governance"
	Controller Kind = "controller"
)

// Kinds lists every registry.
var Kinds = []Kind{API, UI, DataLogic, Governance, Controller}

// Valid reports whether k is a known registry.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ErrNotFound is wrapped by NotFoundError.
var ErrNotFound = errors.New("handler not found")

// NotFoundError reports a missing handler.
type NotFoundError struct {
	Kind Kind
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ecl %s handler not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Entrypoints holds the five registries.
type Entrypoints struct {
	host   host.Host
	runner *runner.Runner
	limits budget.Limits
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[Kind]map[string]bytecode.Program
}

// Option configures Entrypoints.
type Option func(*Entrypoints)

// WithRunner sets the runner, typically shared with the gateway.
func WithRunner(r *runner.Runner) Option {
	return func(e *Entrypoints) { e.runner = r }
}

// WithGasLimit overrides DefaultGasLimit, keeping the other limits.
func WithGasLimit(gas uint64) Option {
	return func(e *Entrypoints) { e.limits.GasLimit = gas }
}

// WithLimits sets the budget limits of every run, typically the engine
// limits of the node.
func WithLimits(l budget.Limits) Option {
	return func(e *Entrypoints) { e.limits = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Entrypoints) { e.logger = l }
}

// New creates empty registries running against h.
func New(h host.Host, opts ...Option) *Entrypoints {
	limits := budget.DefaultLimits()
	limits.GasLimit = DefaultGasLimit
	e := &Entrypoints{
		host:     h,
		limits:   limits,
		logger:   slog.Default(),
		handlers: make(map[Kind]map[string]bytecode.Program, len(Kinds)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = runner.New(runner.WithLogger(e.logger))
	}
	for _, k := range Kinds {
		e.handlers[k] = make(map[string]bytecode.Program)
	}
	e.logger = e.logger.With("component", "ecl.entrypoints")
	return e
}

// Register stores program under kind and key, replacing any previous one.
func (e *Entrypoints) Register(kind Kind, key string, program bytecode.Program) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown entry point kind %q", kind)
	}
	if err := program.Validate(); err != nil {
		return fmt.Errorf("invalid %s handler %q: %w", kind, key, err)
	}
	e.mu.Lock()
	e.handlers[kind][key] = program.Clone()
	e.mu.Unlock()
	return nil
}

// Has reports whether a handler is registered.
func (e *Entrypoints) Has(kind Kind, key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.handlers[kind][key]
	return ok
}

// Keys returns the sorted keys of a registry.
func (e *Entrypoints) Keys(kind Kind) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.handlers[kind]))
	for k := range e.handlers[kind] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Entrypoints) lookup(kind Kind, key string) (bytecode.Program, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	program, ok := e.handlers[kind][key]
	if !ok {
		return nil, &NotFoundError{Kind: kind, Key: key}
	}
	return program, nil
}

// Run executes the handler under kind and key for caller in realm with a
// fresh budget for the configured limits.
func (e *Entrypoints) Run(ctx context.Context, kind Kind, key, caller, realm string) (bytecode.Value, error) {
	return e.RunWithHost(ctx, e.host, kind, key, runner.WithLimits(caller, realm, e.limits))
}

// Limits returns the limits of a Run budget.
func (e *Entrypoints) Limits() budget.Limits { return e.limits }

// RunWithBudget is Run with a caller-supplied budget.
func (e *Entrypoints) RunWithBudget(ctx context.Context, kind Kind, key, caller, realm string, b *budget.Budget) (bytecode.Value, error) {
	return e.RunWithHost(ctx, e.host, kind, key, runner.NewContext(caller, realm, b))
}

// RunWithHost executes the handler against h instead of the registered
// host, e.g. a statehost for what-if evaluation.
func (e *Entrypoints) RunWithHost(ctx context.Context, h host.Host, kind Kind, key string, rc runner.PolicyRunContext) (bytecode.Value, error) {
	program, err := e.lookup(kind, key)
	if err != nil {
		return bytecode.Null(), err
	}
	rc = rc.WithPolicy(key, string(kind))
	res, err := e.runner.Run(ctx, program, h, rc)
	if err != nil {
		e.logger.Debug("entry point failed", "kind", kind, "key", key, "caller", rc.CallerDID, "error", err)
		return bytecode.Null(), err
	}
	return res.Value, nil
}

// RunAPI runs the API handler for route.
func (e *Entrypoints) RunAPI(ctx context.Context, route, caller, realm string) (bytecode.Value, error) {
	return e.Run(ctx, API, route, caller, realm)
}

// RunUI runs the UI handler for component.
func (e *Entrypoints) RunUI(ctx context.Context, component, caller, realm string) (bytecode.Value, error) {
	return e.Run(ctx, UI, component, caller, realm)
}

// RunDataLogic runs the data logic handler for a stream or aggregation.
func (e *Entrypoints) RunDataLogic(ctx context.Context, stream, caller, realm string) (bytecode.Value, error) {
	return e.Run(ctx, DataLogic, stream, caller, realm)
}

// RunGovernance runs the governance handler for a proposal type.
func (e *Entrypoints) RunGovernance(ctx context.Context, proposalType, voter, realm string) (bytecode.Value, error) {
	return e.Run(ctx, Governance, proposalType, voter, realm)
}

// RunController runs the controller handler for a permission.
func (e *Entrypoints) RunController(ctx context.Context, permission, caller, realm string) (bytecode.Value, error) {
	return e.Run(ctx, Controller, permission, caller, realm)
}
