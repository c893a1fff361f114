package policyset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/gateway"
	"erynoa/eclvm/pkg/ecl/host"
)

const financeSource = `const MIN_TRUST = 0.7

policy "finance_entry" "KYC plus reliability" {
    require sender.trust.R >= MIN_TRUST, "insufficient trust"
    require sender.credential("kyc-verified"), "kyc required"
    return true
}

policy "transfer_limit" {
    return sender.trust.R >= 0.9
}
`

const governanceSource = `policy "treasury_vote" {
    return sender.trust.R >= 0.5
}
`

const manifestSource = `realms:
  finance:
    entry: finance_entry
    damping: [1, 1, 1, 1, 1, 1]
    policies:
      api: [transfer_limit]
      governance: [treasury_vote]
  open:
    policies:
      governance: [treasury_vote]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func newSetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "finance.ecl", financeSource)
	writeFile(t, dir, "gov/treasury.ecl", governanceSource)
	writeFile(t, dir, ManifestFile, manifestSource)
	return dir
}

// TestLoad tests loading sources and binding the manifest.
func TestLoad(t *testing.T) {
	dir := newSetDir(t)
	writeFile(t, dir, ".hidden/ignored.ecl", "this is not ecl")

	set, err := NewLoader(DefaultLoaderConfig(), nil).Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(set.Files) != 2 {
		t.Errorf("Expected 2 files, got %v", set.Files)
	}
	if len(set.Policies) != 3 {
		t.Fatalf("Expected 3 policies, got %d", len(set.Policies))
	}
	fin := set.Policies["finance_entry"]
	if fin.Description != "KYC plus reliability" || fin.EstimatedGas == 0 {
		t.Errorf("Unexpected policy: %+v", fin)
	}

	realm, ok := set.Realms["finance"]
	if !ok {
		t.Fatal("Expected finance realm")
	}
	if realm.Config.EntryPolicy != "finance_entry" {
		t.Errorf("Expected entry policy, got %q", realm.Config.EntryPolicy)
	}
	if realm.Config.Damping == nil || realm.Config.Damping.Factors[0] != 1 {
		t.Errorf("Expected manifest damping, got %+v", realm.Config.Damping)
	}
	if _, ok := realm.Policies[gateway.KindEntry]["finance_entry"]; !ok {
		t.Error("Expected entry policy registered under entry kind")
	}
	if _, ok := realm.Policies[gateway.KindAPI]["transfer_limit"]; !ok {
		t.Error("Expected api policy")
	}
	if set.Realms["open"].Config.Damping != nil {
		t.Error("Expected default damping for open realm")
	}
}

// TestLoad_SwapIntoGateway tests that a loaded set drives admission.
func TestLoad_SwapIntoGateway(t *testing.T) {
	set, err := NewLoader(DefaultLoaderConfig(), nil).Load(newSetDir(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	h := host.NewStubHost().
		WithTrust("did:bob", bytecode.TrustVector{0.9, 0.5, 0.5, 0.5, 0.5, 0.5}).
		WithCredential("did:bob", "kyc-verified").
		WithTrust("did:alice", bytecode.TrustVector{0.9, 0.5, 0.5, 0.5, 0.5, 0.5})
	g := gateway.New(h)
	g.Swap(set.Realms)

	tests := []struct {
		sender  string
		allowed bool
	}{
		{"did:bob", true},
		{"did:alice", false},
	}
	for _, tt := range tests {
		d, err := g.ValidateEntry(context.Background(), tt.sender, bytecode.TrustVector{0.9, 0.5, 0.5, 0.5, 0.5, 0.5}, "finance")
		if err != nil {
			t.Fatalf("ValidateEntry(%s) failed: %v", tt.sender, err)
		}
		if d.Allowed != tt.allowed {
			t.Errorf("%s: expected allowed=%v, got %+v", tt.sender, tt.allowed, d)
		}
	}
	if d, _ := g.ValidateEntry(context.Background(), "did:alice", bytecode.TrustVector{}, "finance"); d.Message != "Entry denied by policy 'finance_entry': kyc required" {
		t.Errorf("Unexpected message %q", d.Message)
	}
}

// TestLoad_Errors tests batched diagnostics and manifest validation.
func TestLoad_Errors(t *testing.T) {
	loader := NewLoader(DefaultLoaderConfig(), nil)

	t.Run("duplicate policy", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.ecl", governanceSource)
		writeFile(t, dir, "b.ecl", governanceSource)
		_, err := loader.Load(dir)
		var diags *ast.Diagnostics
		if !errors.As(err, &diags) || len(diags.ByCode(ast.CodeDuplicatePolicy)) != 1 {
			t.Fatalf("Expected duplicate policy diagnostic, got %v", err)
		}
	})

	t.Run("errors in several files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.ecl", `policy "a" { return sender.trust.R >= }`)
		writeFile(t, dir, "b.ecl", `policy "b" { return @ }`)
		_, err := loader.Load(dir)
		var diags *ast.Diagnostics
		if !errors.As(err, &diags) {
			t.Fatalf("Expected diagnostics, got %v", err)
		}
		files := map[string]bool{}
		for _, d := range diags.Items() {
			files[filepath.Base(d.Location.File)] = true
		}
		if !files["a.ecl"] || !files["b.ecl"] {
			t.Errorf("Expected diagnostics from both files, got %v", diags)
		}
	})

	t.Run("unknown manifest policy", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.ecl", governanceSource)
		writeFile(t, dir, ManifestFile, "realms:\n  x:\n    entry: missing\n")
		_, err := loader.Load(dir)
		var me *ManifestError
		if !errors.As(err, &me) || me.Realm != "x" {
			t.Fatalf("Expected ManifestError, got %v", err)
		}
	})

	t.Run("bad damping", func(t *testing.T) {
		_, err := ParseManifest("realms.yaml", []byte("realms:\n  x:\n    damping: [1, 1]\n"))
		var me *ManifestError
		if !errors.As(err, &me) {
			t.Fatalf("Expected ManifestError, got %v", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ParseManifest("realms.yaml", []byte("realms:\n  x:\n    policies:\n      billing: [a]\n"))
		var me *ManifestError
		if !errors.As(err, &me) {
			t.Fatalf("Expected ManifestError, got %v", err)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ParseManifest("realms.yaml", []byte("realms:\n  x:\n    entrance: a\n"))
		var le *LoadError
		if !errors.As(err, &le) {
			t.Fatalf("Expected LoadError, got %v", err)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := loader.Load(filepath.Join(t.TempDir(), "nope"))
		var le *LoadError
		if !errors.As(err, &le) {
			t.Fatalf("Expected LoadError, got %v", err)
		}
	})

	t.Run("file too large", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.ecl", governanceSource)
		_, err := NewLoader(LoaderConfig{MaxFileSize: 8}, nil).Load(dir)
		var le *LoadError
		if !errors.As(err, &le) {
			t.Fatalf("Expected LoadError, got %v", err)
		}
	})
}

// TestLoad_NoManifest tests a set without realms.yaml.
func TestLoad_NoManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ecl", governanceSource)
	set, err := NewLoader(DefaultLoaderConfig(), nil).Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(set.Realms) != 0 || len(set.Policies) != 1 {
		t.Errorf("Unexpected set: %d realms, %d policies", len(set.Realms), len(set.Policies))
	}
}

type recordingSwapper struct {
	mu    sync.Mutex
	swaps []map[string]*gateway.Realm
}

func (s *recordingSwapper) Swap(realms map[string]*gateway.Realm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps = append(s.swaps, realms)
}

func (s *recordingSwapper) last() (int, map[string]*gateway.Realm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.swaps) == 0 {
		return 0, nil
	}
	return len(s.swaps), s.swaps[len(s.swaps)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// TestWatcher_Reload tests reloading after a manifest change and keeping
// the previous realms after a broken edit.
func TestWatcher_Reload(t *testing.T) {
	dir := newSetDir(t)
	target := &recordingSwapper{}
	w, err := NewWatcher(dir, NewLoader(DefaultLoaderConfig(), nil), target, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	var failures atomic.Int32
	w.OnReload = func(_ *Set, err error) {
		if err != nil {
			failures.Add(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	waitFor(t, func() bool { n, _ := target.last(); return n == 1 })

	writeFile(t, dir, ManifestFile, manifestSource+"  extra:\n    entry: treasury_vote\n")
	waitFor(t, func() bool { _, realms := target.last(); return len(realms) == 3 })

	n, _ := target.last()
	writeFile(t, dir, "broken.ecl", `policy "x" { return @ }`)
	waitFor(t, func() bool { return failures.Load() > 0 })
	if m, _ := target.last(); m != n {
		t.Errorf("Expected no swap after a failed reload, got %d swaps (was %d)", m, n)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Watch did not return after Stop")
	}
}

// TestDebouncer tests that bursts collapse into one callback.
func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
	}
	waitFor(t, func() bool { return calls.Load() == 1 })
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("Expected one callback, got %d", calls.Load())
	}

	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Error("Expected no callback after Stop")
	}
}
