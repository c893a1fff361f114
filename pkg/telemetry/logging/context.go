package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// Execution holds the fields attached to every record logged within a
// policy run.
type Execution struct {
	ID     string
	Realm  string
	Caller string
	Policy string
}

// WithExecution stores e in ctx. Empty fields of e keep the values of an
// enclosing execution.
func WithExecution(ctx context.Context, e Execution) context.Context {
	prev := ExecutionFrom(ctx)
	if e.ID == "" {
		e.ID = prev.ID
	}
	if e.Realm == "" {
		e.Realm = prev.Realm
	}
	if e.Caller == "" {
		e.Caller = prev.Caller
	}
	if e.Policy == "" {
		e.Policy = prev.Policy
	}
	return context.WithValue(ctx, contextKey{}, e)
}

// ExecutionFrom returns the execution stored in ctx, if any.
func ExecutionFrom(ctx context.Context) Execution {
	if ctx == nil {
		return Execution{}
	}
	e, _ := ctx.Value(contextKey{}).(Execution)
	return e
}

func (e Execution) attrs() []slog.Attr {
	var attrs []slog.Attr
	if e.ID != "" {
		attrs = append(attrs, slog.String("execution_id", e.ID))
	}
	if e.Realm != "" {
		attrs = append(attrs, slog.String("realm", e.Realm))
	}
	if e.Caller != "" {
		attrs = append(attrs, slog.String("caller", e.Caller))
	}
	if e.Policy != "" {
		attrs = append(attrs, slog.String("policy", e.Policy))
	}
	return attrs
}

// contextHandler adds execution fields from the record's context.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := ExecutionFrom(ctx).attrs(); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
