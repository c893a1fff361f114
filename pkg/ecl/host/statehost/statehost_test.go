package statehost

import (
	"context"
	"errors"
	"testing"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
)

func newTestHost(manaLimit uint64) (*Host, *budget.Budget) {
	b := budget.New(budget.Limits{GasLimit: 1000, ManaLimit: manaLimit})
	view := MapView{
		TrustByDID:  map[string]float64{"did:alice": 0.7},
		Identities:  map[string]bool{"did:bob": true},
		Credentials: map[string][]string{"did:alice": {"KYC"}},
	}
	return New(Context{ExecutionID: "exec-1", Realm: "realm-1", Budget: b, View: view}), b
}

// TestHost_Trust tests the aggregate trust spread and newcomer default.
func TestHost_Trust(t *testing.T) {
	h, _ := newTestHost(100)
	ctx := context.Background()
	tv, _ := h.GetTrustVector(ctx, "did:alice")
	if tv != (bytecode.TrustVector{0.7, 0.7, 0.7, 0.7, 0.7, 0.7}) {
		t.Errorf("Expected uniform 0.7, got %v", tv)
	}
	tv, _ = h.GetTrustVector(ctx, "did:nobody")
	if tv != bytecode.NewcomerTrust {
		t.Errorf("Expected newcomer trust, got %v", tv)
	}
	if ok, _ := h.ResolveDID(ctx, "did:bob"); !ok {
		t.Error("Expected bob to resolve")
	}
	if ok, _ := h.ResolveDID(ctx, "did:alice"); !ok {
		t.Error("Expected identities with trust to resolve")
	}
	if ok, _ := h.HasCredential(ctx, "did:alice", "KYC"); !ok {
		t.Error("Expected KYC credential")
	}
}

// TestHost_GetMetric tests budget and trust metrics.
func TestHost_GetMetric(t *testing.T) {
	h, b := newTestHost(100)
	b.ConsumeGas(250)
	if v, ok := h.GetMetric("budget.gas_remaining"); !ok || v != 750 {
		t.Errorf("Expected 750 gas remaining, got %v/%v", v, ok)
	}
	if v, ok := h.GetMetric("trust.did:alice"); !ok || v != 0.7 {
		t.Errorf("Expected trust metric 0.7, got %v/%v", v, ok)
	}
	if _, ok := h.GetMetric("trust.did:nobody"); ok {
		t.Error("Expected unknown trust metric to be absent")
	}
	if _, ok := h.GetMetric("cpu"); ok {
		t.Error("Expected unknown metric to be absent")
	}
}

// TestHost_StorePutChargesMana tests write pricing and exhaustion.
func TestHost_StorePutChargesMana(t *testing.T) {
	h, b := newTestHost(25)
	ctx := context.Background()
	ref := host.StoreRef{Name: "notes"}

	if err := h.StorePut(ctx, ref, "k", host.StringValue("hello")); err != nil {
		t.Fatalf("StorePut failed: %v", err)
	}
	if b.ManaUsed() != 11 {
		t.Errorf("Expected 11 mana used, got %d", b.ManaUsed())
	}
	if keys := h.DirtyKeys(); len(keys) != 1 || keys[0] != "store:shared/notes:k" {
		t.Errorf("Unexpected dirty keys %v", keys)
	}

	err := h.StorePut(ctx, ref, "k2", host.ListValue(host.NumberValue(1), host.NumberValue(2), host.NumberValue(3), host.NumberValue(4)))
	if !errors.Is(err, host.ErrInsufficientMana) {
		t.Fatalf("Expected ErrInsufficientMana, got %v", err)
	}

	if v, _ := h.StoreGet(ctx, ref, "k"); v != nil {
		t.Error("Expected writes to stay ephemeral")
	}
	if _, err := h.SchemaVersion(ctx, "notes"); !errors.Is(err, host.ErrNotSupported) {
		t.Errorf("Expected schema ops unsupported, got %v", err)
	}
}
