package runner

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"erynoa/eclvm/pkg/ecl/budget"
)

// PolicyRunContext binds one policy invocation to its caller, realm and
// budget.
type PolicyRunContext struct {
	// CallerDID is pushed onto the stack before the first instruction.
	CallerDID string
	RealmID   string
	// Budget is charged for the run. Nil means budget.DefaultLimits().
	Budget *budget.Budget

	// PolicyID and PolicyType label metrics and spans, e.g. "finance_entry"
	// and "entry" or "POST /action" and "api".
	PolicyID   string
	PolicyType string

	// ExecutionID identifies the run. Empty means one is drawn from the
	// runner's IDSource.
	ExecutionID string
}

// NewContext creates a context that charges b.
func NewContext(caller, realm string, b *budget.Budget) PolicyRunContext {
	return PolicyRunContext{CallerDID: caller, RealmID: realm, Budget: b}
}

// NewLegacyContext creates a context with only a gas limit; mana, stack and
// timeout take their defaults.
func NewLegacyContext(caller, realm string, gasLimit uint64) PolicyRunContext {
	return NewContext(caller, realm, budget.WithGasLimit(gasLimit))
}

// WithLimits creates a context with a fresh budget for limits.
func WithLimits(caller, realm string, limits budget.Limits) PolicyRunContext {
	return NewContext(caller, realm, budget.New(limits))
}

// GasLimit returns the gas limit of the context budget.
func (c PolicyRunContext) GasLimit() uint64 {
	if c.Budget == nil {
		return budget.DefaultGasLimit
	}
	return c.Budget.Limits().GasLimit
}

// WithPolicy returns a copy labelled with id and kind.
func (c PolicyRunContext) WithPolicy(id, kind string) PolicyRunContext {
	c.PolicyID = id
	c.PolicyType = kind
	return c
}

// IDSource hands out execution ids.
type IDSource interface {
	NewID() string
}

// UUIDSource issues random UUIDs.
type UUIDSource struct{}

// NewID returns a new UUID string.
func (UUIDSource) NewID() string { return uuid.NewString() }

// SequenceSource issues "<prefix>-1", "<prefix>-2", ... It is safe for
// concurrent use.
type SequenceSource struct {
	Prefix string
	n      atomic.Uint64
}

// NewID returns the next id in the sequence.
func (s *SequenceSource) NewID() string {
	return s.Prefix + "-" + strconv.FormatUint(s.n.Add(1), 10)
}
