package mana

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/storage"
)

// RateLimitedError reports that an identity cannot afford an operation.
type RateLimitedError struct {
	DID        string
	Needed     uint64
	Available  uint64
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s needs %d mana, has %d (retry after %s)",
		e.DID, e.Needed, e.Available, e.RetryAfter.Round(time.Millisecond))
}

// Status is a point-in-time view of an account.
type Status struct {
	Current     uint64        `json:"current_mana"`
	Max         uint64        `json:"max_mana"`
	RegenRate   uint64        `json:"regen_rate"`
	FillPercent float64       `json:"fill_percent"`
	Tier        BandwidthTier `json:"tier"`
}

// Manager owns the mana accounts of all identities.
//
// Every operation runs get-or-create, regeneration and consumption under
// one lock, so concurrent callers never observe a half-updated account.
type Manager struct {
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
	backend storage.Backend

	mu       sync.Mutex
	accounts map[string]*Account
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithBackend enables Save and Load against the mana bucket of b.
func WithBackend(b storage.Backend) Option {
	return func(m *Manager) { m.backend = b }
}

// NewManager creates a Manager. Zero fields of cfg take their defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg.ApplyDefaults()
	m := &Manager{
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default().With("component", "ecl.mana"),
		accounts: make(map[string]*Account),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// accountLocked returns the refreshed account for did, creating it if
// needed. m.mu must be held.
func (m *Manager) accountLocked(did string, trust bytecode.TrustVector) *Account {
	r := trust[bytecode.DimR]
	now := m.now()
	acc, ok := m.accounts[did]
	if !ok {
		acc = newAccount(r, m.cfg, now)
		m.accounts[did] = acc
		m.metrics.setAccounts(len(m.accounts))
		return acc
	}
	acc.update(r, m.cfg, now)
	return acc
}

// GetOrCreate returns a copy of the refreshed account for did.
func (m *Manager) GetOrCreate(did string, trust bytecode.TrustVector) Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accountLocked(did, trust)
}

// Preflight checks that did can afford estimatedGas without consuming it.
// It returns a *RateLimitedError when it cannot.
func (m *Manager) Preflight(did string, trust bytecode.TrustVector, estimatedGas uint64) error {
	m.mu.Lock()
	acc := *m.accountLocked(did, trust)
	m.mu.Unlock()

	tier := TierFromTrust(trust[bytecode.DimR])
	ok := acc.CanAfford(estimatedGas)
	m.metrics.recordCheck(tier, ok)
	if ok {
		return nil
	}
	m.logger.Debug("mana preflight rejected",
		"did", did,
		"needed", estimatedGas,
		"available", acc.Current(),
	)
	return &RateLimitedError{
		DID:        did,
		Needed:     estimatedGas,
		Available:  acc.Current(),
		RetryAfter: acc.TimeToRegenerate(estimatedGas),
	}
}

// Deduct consumes actualGas from did's account after execution.
func (m *Manager) Deduct(did string, trust bytecode.TrustVector, actualGas uint64) error {
	m.mu.Lock()
	acc := m.accountLocked(did, trust)
	available := acc.Current()
	retry, ok := acc.consume(actualGas)
	m.mu.Unlock()

	m.metrics.recordDeduct(TierFromTrust(trust[bytecode.DimR]), actualGas, ok)
	if ok {
		return nil
	}
	return &RateLimitedError{DID: did, Needed: actualGas, Available: available, RetryAfter: retry}
}

// Status returns the refreshed state of did's account.
func (m *Manager) Status(did string, trust bytecode.TrustVector) Status {
	acc := m.GetOrCreate(did, trust)
	return Status{
		Current:     acc.Current(),
		Max:         acc.Max(),
		RegenRate:   acc.RegenRate(),
		FillPercent: acc.FillPercent(),
		Tier:        TierFromTrust(trust[bytecode.DimR]),
	}
}

// Len returns the number of live accounts.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// CleanupInactive removes accounts whose last regeneration is at least
// maxAge old and returns how many were removed.
func (m *Manager) CleanupInactive(maxAge time.Duration) int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for did, acc := range m.accounts {
		if now.Sub(acc.lastUpdate) >= maxAge {
			delete(m.accounts, did)
			removed++
		}
	}
	m.metrics.setAccounts(len(m.accounts))
	m.mu.Unlock()

	m.metrics.recordSweep(removed)
	return removed
}

// accountRecord is the persisted form of an Account.
type accountRecord struct {
	Current       uint64  `cbor:"1,keyasint"`
	Max           uint64  `cbor:"2,keyasint"`
	RegenRate     uint64  `cbor:"3,keyasint"`
	LastUpdate    int64   `cbor:"4,keyasint"`
	TrustSnapshot float64 `cbor:"5,keyasint"`
}

// Save writes every account to the configured backend.
func (m *Manager) Save(ctx context.Context) (int, error) {
	if m.backend == nil {
		return 0, fmt.Errorf("mana: no backend configured")
	}

	m.mu.Lock()
	records := make(map[string]accountRecord, len(m.accounts))
	for did, acc := range m.accounts {
		records[did] = accountRecord{
			Current:       acc.current,
			Max:           acc.max,
			RegenRate:     acc.regenRate,
			LastUpdate:    acc.lastUpdate.UnixNano(),
			TrustSnapshot: acc.trustSnapshot,
		}
	}
	m.mu.Unlock()

	for did, rec := range records {
		data, err := cbor.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("failed to encode account %s: %w", did, err)
		}
		if err := m.backend.Put(ctx, storage.BucketMana, did, data); err != nil {
			return 0, fmt.Errorf("failed to save account %s: %w", did, err)
		}
	}
	return len(records), nil
}

// Load replaces in-memory accounts with those found in the backend.
func (m *Manager) Load(ctx context.Context) (int, error) {
	if m.backend == nil {
		return 0, fmt.Errorf("mana: no backend configured")
	}

	keys, err := m.backend.List(ctx, storage.BucketMana, "", 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	loaded := make(map[string]*Account, len(keys))
	for _, did := range keys {
		data, err := m.backend.Get(ctx, storage.BucketMana, did)
		if err != nil {
			return 0, fmt.Errorf("failed to load account %s: %w", did, err)
		}
		if data == nil {
			continue
		}
		var rec accountRecord
		if err := cbor.Unmarshal(data, &rec); err != nil {
			m.logger.Warn("skipping corrupt mana account", "did", did, "error", err)
			continue
		}
		loaded[did] = &Account{
			current:       min(rec.Current, rec.Max),
			max:           rec.Max,
			regenRate:     rec.RegenRate,
			lastUpdate:    time.Unix(0, rec.LastUpdate),
			trustSnapshot: rec.TrustSnapshot,
		}
	}

	m.mu.Lock()
	for did, acc := range loaded {
		m.accounts[did] = acc
	}
	m.metrics.setAccounts(len(m.accounts))
	m.mu.Unlock()

	m.logger.Info("mana accounts loaded", "count", len(loaded))
	return len(loaded), nil
}
