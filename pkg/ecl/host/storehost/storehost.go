// Package storehost implements host.Host over a persistent storage.Backend.
//
// Identity facts come from an injected host.Facts source. Store documents
// are JSON encoded under
//
//	store/<realm>/<scope>/<store>/<key>
//
// where scope is "shared" or "personal/<caller>". Schema history is kept
// in a host.SchemaRegistry and written to the schemas bucket after every
// change, so a restarted process picks it up again.
package storehost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/storage"
)

// WriteBaseCost is the mana charged for every store write before the
// value complexity is added.
const WriteBaseCost uint64 = 10

// Config configures a Host.
type Config struct {
	Backend storage.Backend
	Facts   host.Facts

	// Realm scopes every key written by this host.
	Realm string
	// Caller owns the personal stores and is recorded as the author of
	// schema changes.
	Caller string

	// Schemas holds schema state. Default: a registry with default settings.
	Schemas *host.SchemaRegistry
	// Budget is charged mana for writes and schema changes when set.
	Budget *budget.Budget
	Logger *slog.Logger
}

// Host is a host.Host backed by storage.
type Host struct {
	cfg Config

	mu   sync.Mutex
	logs []string
}

// New creates a Host. Backend and Facts are required.
func New(cfg Config) (*Host, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("storehost: backend is required")
	}
	if cfg.Facts == nil {
		return nil, fmt.Errorf("storehost: facts source is required")
	}
	if cfg.Realm == "" {
		cfg.Realm = "default"
	}
	if cfg.Schemas == nil {
		cfg.Schemas = host.NewSchemaRegistry(host.RegistryConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "ecl.storehost", "realm", cfg.Realm)
	return &Host{cfg: cfg}, nil
}

func (h *Host) GetTrustVector(ctx context.Context, did string) (bytecode.TrustVector, error) {
	return h.cfg.Facts.GetTrustVector(ctx, did)
}

func (h *Host) HasCredential(ctx context.Context, did, schema string) (bool, error) {
	return h.cfg.Facts.HasCredential(ctx, did, schema)
}

func (h *Host) GetBalance(ctx context.Context, did string) (uint64, error) {
	return h.cfg.Facts.GetBalance(ctx, did)
}

func (h *Host) ResolveDID(ctx context.Context, did string) (bool, error) {
	return h.cfg.Facts.ResolveDID(ctx, did)
}

func (h *Host) GetTimestamp(ctx context.Context) (uint64, error) {
	return h.cfg.Facts.GetTimestamp(ctx)
}

func (h *Host) Log(msg string) {
	h.mu.Lock()
	h.logs = append(h.logs, msg)
	h.mu.Unlock()
	h.cfg.Logger.Info("ecl log", "caller", h.cfg.Caller, "message", msg)
}

// Logs returns the messages logged so far.
func (h *Host) Logs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.logs...)
}

// GetMetric exposes budget counters when a budget is configured.
func (h *Host) GetMetric(name string) (float64, bool) {
	b := h.cfg.Budget
	if b == nil {
		return 0, false
	}
	switch name {
	case "budget.gas_remaining":
		return float64(b.GasRemaining()), true
	case "budget.mana_remaining":
		return float64(b.ManaRemaining()), true
	case "context.elapsed_ms":
		return float64(b.Elapsed().Milliseconds()), true
	}
	return 0, false
}

// storePrefix is the key prefix of every document of ref.
func (h *Host) storePrefix(ref host.StoreRef) (string, error) {
	if ref.Name == "" || strings.Contains(ref.Name, "/") {
		return "", fmt.Errorf("invalid store name %q", ref.Name)
	}
	scope := "shared"
	if ref.Personal {
		if h.cfg.Caller == "" {
			return "", fmt.Errorf("personal store %q needs a caller", ref.Name)
		}
		scope = "personal/" + h.cfg.Caller
	}
	return fmt.Sprintf("store/%s/%s/%s/", h.cfg.Realm, scope, ref.Name), nil
}

func (h *Host) StoreGet(ctx context.Context, ref host.StoreRef, key string) (*host.StoreValue, error) {
	prefix, err := h.storePrefix(ref)
	if err != nil {
		return nil, &host.OpError{Op: "store_get", Err: err}
	}
	data, err := h.cfg.Backend.Get(ctx, storage.BucketStores, prefix+key)
	if err != nil {
		return nil, &host.OpError{Op: "store_get", Err: err}
	}
	if data == nil {
		return nil, nil
	}
	var v host.StoreValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &host.OpError{Op: "store_get", Err: fmt.Errorf("decode %s: %w", key, err)}
	}
	return &v, nil
}

// StorePut writes value. With a budget configured it first charges
// WriteBaseCost plus the value complexity.
func (h *Host) StorePut(ctx context.Context, ref host.StoreRef, key string, value host.StoreValue) error {
	prefix, err := h.storePrefix(ref)
	if err != nil {
		return &host.OpError{Op: "store_put", Err: err}
	}
	if key == "" {
		return &host.OpError{Op: "store_put", Err: fmt.Errorf("key cannot be empty")}
	}
	if err := h.charge("store_put", WriteBaseCost+value.Complexity()); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return &host.OpError{Op: "store_put", Err: err}
	}
	if err := h.cfg.Backend.Put(ctx, storage.BucketStores, prefix+key, data); err != nil {
		return &host.OpError{Op: "store_put", Err: err}
	}
	return nil
}

func (h *Host) StoreDelete(ctx context.Context, ref host.StoreRef, key string) (bool, error) {
	prefix, err := h.storePrefix(ref)
	if err != nil {
		return false, &host.OpError{Op: "store_delete", Err: err}
	}
	existed, err := h.cfg.Backend.Delete(ctx, storage.BucketStores, prefix+key)
	if err != nil {
		return false, &host.OpError{Op: "store_delete", Err: err}
	}
	return existed, nil
}

func (h *Host) StoreExists(ctx context.Context, ref host.StoreRef, key string) (bool, error) {
	v, err := h.StoreGet(ctx, ref, key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (h *Host) StoreCount(ctx context.Context, ref host.StoreRef) (uint64, error) {
	prefix, err := h.storePrefix(ref)
	if err != nil {
		return 0, &host.OpError{Op: "store_count", Err: err}
	}
	n, err := h.cfg.Backend.Count(ctx, storage.BucketStores, prefix)
	if err != nil {
		return 0, &host.OpError{Op: "store_count", Err: err}
	}
	return n, nil
}

func (h *Host) StoreListKeys(ctx context.Context, ref host.StoreRef, keyPrefix string, limit int) ([]string, error) {
	prefix, err := h.storePrefix(ref)
	if err != nil {
		return nil, &host.OpError{Op: "store_list_keys", Err: err}
	}
	full, err := h.cfg.Backend.List(ctx, storage.BucketStores, prefix+keyPrefix, limit)
	if err != nil {
		return nil, &host.OpError{Op: "store_list_keys", Err: err}
	}
	keys := make([]string, len(full))
	for i, k := range full {
		keys[i] = strings.TrimPrefix(k, prefix)
	}
	return keys, nil
}

func (h *Host) charge(op string, cost uint64) error {
	if h.cfg.Budget == nil || h.cfg.Budget.ConsumeMana(cost) {
		return nil
	}
	return &host.OpError{Op: op, Err: fmt.Errorf("%w: needs %d", host.ErrInsufficientMana, cost)}
}

var _ host.Host = (*Host)(nil)
