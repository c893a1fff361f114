package host

import (
	"context"
	"sync"

	"erynoa/eclvm/pkg/ecl/bytecode"
)

// StubTimestamp is the fixed clock of StubHost.
const StubTimestamp uint64 = 1700000000

// StubHost is an in-memory Host for tests and the command line. Facts are
// configured with the With* builders before use; logs are captured.
// Store and schema operations are not supported.
type StubHost struct {
	Unsupported

	DefaultTrust bytecode.TrustVector
	Timestamp    uint64

	mu          sync.Mutex
	trust       map[string]bytecode.TrustVector
	balances    map[string]uint64
	credentials map[string]map[string]bool
	known       map[string]bool
	metrics     map[string]float64
	logs        []string
}

// NewStubHost returns a StubHost that knows no identities.
func NewStubHost() *StubHost {
	return &StubHost{
		DefaultTrust: bytecode.NewcomerTrust,
		Timestamp:    StubTimestamp,
		trust:        make(map[string]bytecode.TrustVector),
		balances:     make(map[string]uint64),
		credentials:  make(map[string]map[string]bool),
		known:        make(map[string]bool),
		metrics:      make(map[string]float64),
	}
}

// WithTrust sets the trust vector of did and marks it known.
func (h *StubHost) WithTrust(did string, tv bytecode.TrustVector) *StubHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trust[did] = tv
	h.known[did] = true
	return h
}

// WithBalance sets the balance of did and marks it known.
func (h *StubHost) WithBalance(did string, balance uint64) *StubHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.balances[did] = balance
	h.known[did] = true
	return h
}

// WithCredential grants a credential schema to did and marks it known.
func (h *StubHost) WithCredential(did, schema string) *StubHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.credentials[did] == nil {
		h.credentials[did] = make(map[string]bool)
	}
	h.credentials[did][schema] = true
	h.known[did] = true
	return h
}

// WithDID marks did as resolvable.
func (h *StubHost) WithDID(did string) *StubHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.known[did] = true
	return h
}

// WithMetric sets a metric returned by GetMetric.
func (h *StubHost) WithMetric(name string, v float64) *StubHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics[name] = v
	return h
}

func (h *StubHost) GetTrustVector(_ context.Context, did string) (bytecode.TrustVector, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tv, ok := h.trust[did]; ok {
		return tv, nil
	}
	return h.DefaultTrust, nil
}

func (h *StubHost) HasCredential(_ context.Context, did, schema string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.credentials[did][schema], nil
}

func (h *StubHost) GetBalance(_ context.Context, did string) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.balances[did], nil
}

func (h *StubHost) ResolveDID(_ context.Context, did string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.known[did], nil
}

func (h *StubHost) GetTimestamp(context.Context) (uint64, error) {
	return h.Timestamp, nil
}

func (h *StubHost) Log(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, msg)
}

// Logs returns a copy of the captured log messages.
func (h *StubHost) Logs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.logs...)
}

func (h *StubHost) GetMetric(name string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.metrics[name]
	return v, ok
}

var _ Host = (*StubHost)(nil)
