package storehost

import (
	"context"
	"errors"
	"testing"
	"time"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/storage"
)

func newTestHost(t *testing.T, backend storage.Backend, caller string, b *budget.Budget) *Host {
	t.Helper()
	h, err := New(Config{
		Backend: backend,
		Facts:   host.NewStubHost(),
		Realm:   "realm-1",
		Caller:  caller,
		Budget:  b,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

// TestHost_SharedStore tests document operations on a shared store.
func TestHost_SharedStore(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	defer backend.Close()
	h := newTestHost(t, backend, "did:alice", nil)
	ref := host.StoreRef{Name: "notes"}

	doc := host.ObjectValue(map[string]host.StoreValue{"title": host.StringValue("hi")})
	for _, k := range []string{"b", "a", "c"} {
		if err := h.StorePut(ctx, ref, k, doc); err != nil {
			t.Fatalf("StorePut failed: %v", err)
		}
	}

	got, err := h.StoreGet(ctx, ref, "a")
	if err != nil || got == nil || !got.Equal(doc) {
		t.Fatalf("Expected stored document, got %v (%v)", got, err)
	}
	raw, _ := backend.Get(ctx, storage.BucketStores, "store/realm-1/shared/notes/a")
	if raw == nil {
		t.Error("Expected document under the documented key layout")
	}

	keys, err := h.StoreListKeys(ctx, ref, "", 2)
	if err != nil || len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Unexpected keys %v (%v)", keys, err)
	}
	if n, _ := h.StoreCount(ctx, ref); n != 3 {
		t.Errorf("Expected 3 documents, got %d", n)
	}
	if ok, _ := h.StoreDelete(ctx, ref, "a"); !ok {
		t.Error("Expected delete to report existing key")
	}
	if ok, _ := h.StoreExists(ctx, ref, "a"); ok {
		t.Error("Expected deleted key to be gone")
	}
}

// TestHost_PersonalStoresAreIsolated tests per-caller scoping.
func TestHost_PersonalStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	defer backend.Close()
	alice := newTestHost(t, backend, "did:alice", nil)
	bob := newTestHost(t, backend, "did:bob", nil)
	ref := host.StoreRef{Name: "wallet", Personal: true}

	if err := alice.StorePut(ctx, ref, "k", host.NumberValue(1)); err != nil {
		t.Fatalf("StorePut failed: %v", err)
	}
	if v, _ := bob.StoreGet(ctx, ref, "k"); v != nil {
		t.Error("Expected bob not to see alice's personal store")
	}
	if v, _ := alice.StoreGet(ctx, host.StoreRef{Name: "wallet"}, "k"); v != nil {
		t.Error("Expected shared store to be separate from personal store")
	}
}

// TestHost_WriteChargesMana tests write pricing against the budget.
func TestHost_WriteChargesMana(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	defer backend.Close()
	b := budget.New(budget.Limits{GasLimit: 100, ManaLimit: 12})
	h := newTestHost(t, backend, "did:alice", b)
	ref := host.StoreRef{Name: "notes"}

	if err := h.StorePut(ctx, ref, "k", host.BoolValue(true)); err != nil {
		t.Fatalf("StorePut failed: %v", err)
	}
	if b.ManaUsed() != 11 {
		t.Errorf("Expected 11 mana, got %d", b.ManaUsed())
	}
	err := h.StorePut(ctx, ref, "k2", host.BoolValue(true))
	if !errors.Is(err, host.ErrInsufficientMana) {
		t.Fatalf("Expected ErrInsufficientMana, got %v", err)
	}
	if ok, _ := h.StoreExists(ctx, ref, "k2"); ok {
		t.Error("Unpaid write must not be stored")
	}
	// Writes are not transactional: the earlier write survives the failure.
	if ok, _ := h.StoreExists(ctx, ref, "k"); !ok {
		t.Error("Expected the first write to remain")
	}
}

// TestHost_SchemaPersistence tests that schema state survives a new host.
func TestHost_SchemaPersistence(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	defer backend.Close()
	h := newTestHost(t, backend, "did:admin", nil)

	if err := h.DefineSchema(ctx, "profiles", map[string]host.FieldType{"name": {Kind: host.FieldString}}); err != nil {
		t.Fatalf("DefineSchema failed: %v", err)
	}
	res, err := h.EvolveSchema(ctx, "profiles", []host.SchemaChange{host.RemoveField("name")}, "drop name")
	if err != nil {
		t.Fatalf("EvolveSchema failed: %v", err)
	}
	if !res.IsBreaking || res.Status.State != host.StatePending {
		t.Fatalf("Expected pending breaking change, got %+v", res)
	}

	var active *host.ChallengeActiveError
	if err := h.ActivateSchema(ctx, "profiles", 2); !errors.As(err, &active) {
		t.Errorf("Expected ChallengeActiveError, got %v", err)
	}

	// A fresh host with its own registry loads the persisted history.
	later := time.Now().Add(8 * 24 * time.Hour)
	fresh, err := New(Config{
		Backend: backend,
		Facts:   host.NewStubHost(),
		Realm:   "realm-1",
		Caller:  "did:admin",
		Schemas: host.NewSchemaRegistry(host.RegistryConfig{Now: func() time.Time { return later }}),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	hist, err := fresh.SchemaHistory(ctx, "profiles")
	if err != nil {
		t.Fatalf("SchemaHistory failed: %v", err)
	}
	if len(hist.Changelog) != 2 || hist.Changelog[1].ChangedBy != "did:admin" {
		t.Errorf("Unexpected history %+v", hist)
	}
	if err := fresh.ActivateSchema(ctx, "profiles", 2); err != nil {
		t.Fatalf("ActivateSchema failed: %v", err)
	}
	if v, _ := fresh.SchemaVersion(ctx, "profiles"); v != 2 {
		t.Errorf("Expected version 2, got %d", v)
	}
}

// TestHost_EvolveInvalidIsFree tests that rejected change sets cost nothing.
func TestHost_EvolveInvalidIsFree(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	defer backend.Close()
	b := budget.New(budget.Limits{GasLimit: 100, ManaLimit: 10_000})
	h := newTestHost(t, backend, "did:admin", b)

	_, err := h.EvolveSchema(ctx, "profiles", []host.SchemaChange{host.RemoveField("missing")}, "")
	if !errors.Is(err, host.ErrInvalidSchemaChange) {
		t.Fatalf("Expected ErrInvalidSchemaChange, got %v", err)
	}
	if b.ManaUsed() != 0 {
		t.Errorf("Expected no mana charged, got %d", b.ManaUsed())
	}
	if got := h.EvolutionCost([]host.SchemaChange{host.AddIndex("x")}); got != 150 {
		t.Errorf("Expected cost 150, got %d", got)
	}
}

// TestNew_Validation tests required configuration.
func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Facts: host.NewStubHost()}); err == nil {
		t.Error("Expected error without backend")
	}
	if _, err := New(Config{Backend: storage.NewMemoryBackend()}); err == nil {
		t.Error("Expected error without facts")
	}
}
