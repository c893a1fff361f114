// Package statehost adapts an in-memory state snapshot to host.Host.
//
// The snapshot only carries an aggregate trust value per identity, which
// is spread across all six dimensions. Store writes are charged mana from
// the run budget and recorded as dirty keys but not persisted; store reads
// see nothing. Schema operations are not supported.
package statehost

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
)

// WriteBaseCost is the mana charged for every store write before the
// value complexity is added.
const WriteBaseCost uint64 = 10

// View is the read side of the state snapshot.
type View interface {
	// Trust returns the aggregate trust of did.
	Trust(did string) (float64, bool)
	// HasIdentity reports whether did is a known identity.
	HasIdentity(did string) bool
	// HasCredential reports whether did holds a credential of schema.
	HasCredential(did, schema string) bool
}

// MapView is a View backed by maps.
type MapView struct {
	TrustByDID  map[string]float64
	Identities  map[string]bool
	Credentials map[string][]string
}

func (v MapView) Trust(did string) (float64, bool) {
	t, ok := v.TrustByDID[did]
	return t, ok
}

func (v MapView) HasIdentity(did string) bool {
	if v.Identities[did] {
		return true
	}
	_, ok := v.TrustByDID[did]
	return ok
}

func (v MapView) HasCredential(did, schema string) bool {
	for _, s := range v.Credentials[did] {
		if s == schema {
			return true
		}
	}
	return false
}

// Context is the per-execution state a Host reads from.
type Context struct {
	ExecutionID string
	Realm       string
	Budget      *budget.Budget
	View        View
}

// Host implements host.Host over a Context.
type Host struct {
	host.Unsupported

	ctx    Context
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	dirty  []string
	logged []string
}

// Option customizes a Host.
type Option func(*Host)

// WithLogger sets the logger used for policy log messages.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// New creates a Host. A nil View knows nothing; a nil Budget gets defaults.
func New(c Context, opts ...Option) *Host {
	if c.View == nil {
		c.View = MapView{}
	}
	if c.Budget == nil {
		c.Budget = budget.New(budget.DefaultLimits())
	}
	h := &Host{ctx: c, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) GetTrustVector(_ context.Context, did string) (bytecode.TrustVector, error) {
	t, ok := h.ctx.View.Trust(did)
	if !ok {
		return bytecode.NewcomerTrust, nil
	}
	return bytecode.TrustVector{t, t, t, t, t, t}, nil
}

func (h *Host) HasCredential(_ context.Context, did, schema string) (bool, error) {
	return h.ctx.View.HasCredential(did, schema), nil
}

// GetBalance always reports zero; the snapshot carries no balances.
func (h *Host) GetBalance(context.Context, string) (uint64, error) {
	return 0, nil
}

func (h *Host) ResolveDID(_ context.Context, did string) (bool, error) {
	return h.ctx.View.HasIdentity(did), nil
}

func (h *Host) GetTimestamp(context.Context) (uint64, error) {
	return uint64(h.now().Unix()), nil
}

func (h *Host) Log(msg string) {
	h.mu.Lock()
	h.logged = append(h.logged, msg)
	h.mu.Unlock()
	h.logger.Debug("ecl log",
		"execution_id", h.ctx.ExecutionID,
		"realm", h.ctx.Realm,
		"message", msg,
	)
}

// GetMetric exposes budget counters and cached trust values.
func (h *Host) GetMetric(name string) (float64, bool) {
	b := h.ctx.Budget
	switch name {
	case "budget.gas_remaining":
		return float64(b.GasRemaining()), true
	case "budget.mana_remaining":
		return float64(b.ManaRemaining()), true
	case "budget.time_remaining_ms":
		if b.Limits().Timeout <= 0 {
			return 0, false
		}
		return float64(b.TimeRemaining().Milliseconds()), true
	case "context.elapsed_ms":
		return float64(b.Elapsed().Milliseconds()), true
	}
	if did, ok := strings.CutPrefix(name, "trust."); ok {
		return h.ctx.View.Trust(did)
	}
	return 0, false
}

// StoreGet sees no stored data.
func (h *Host) StoreGet(context.Context, host.StoreRef, string) (*host.StoreValue, error) {
	return nil, nil
}

// StorePut charges WriteBaseCost plus the value complexity and records
// the key as dirty.
func (h *Host) StorePut(_ context.Context, ref host.StoreRef, key string, value host.StoreValue) error {
	cost := WriteBaseCost + value.Complexity()
	if !h.ctx.Budget.ConsumeMana(cost) {
		return &host.OpError{Op: "store_put", Err: fmt.Errorf("%w: write costs %d", host.ErrInsufficientMana, cost)}
	}
	h.mu.Lock()
	h.dirty = append(h.dirty, "store:"+ref.String()+":"+key)
	h.mu.Unlock()
	h.logger.Debug("ephemeral store write",
		"execution_id", h.ctx.ExecutionID,
		"store", ref.String(),
		"key", key,
		"mana", cost,
	)
	return nil
}

func (h *Host) StoreDelete(context.Context, host.StoreRef, string) (bool, error) {
	return false, nil
}

func (h *Host) StoreExists(context.Context, host.StoreRef, string) (bool, error) {
	return false, nil
}

func (h *Host) StoreCount(context.Context, host.StoreRef) (uint64, error) {
	return 0, nil
}

func (h *Host) StoreListKeys(context.Context, host.StoreRef, string, int) ([]string, error) {
	return []string{}, nil
}

// DirtyKeys returns the keys written so far, in order.
func (h *Host) DirtyKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.dirty...)
}

// Logs returns the messages logged so far.
func (h *Host) Logs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.logged...)
}

var _ host.Host = (*Host)(nil)
