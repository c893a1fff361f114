package entrypoints

import (
	"context"
	"errors"
	"sync"
	"testing"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/host/statehost"
	"erynoa/eclvm/pkg/ecl/runner"
	"erynoa/eclvm/pkg/ecl/vm"
)

type recordingObserver struct {
	mu         sync.Mutex
	executions []runner.PolicyExecution
}

func (o *recordingObserver) OnPolicyExecuted(e runner.PolicyExecution) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executions = append(o.executions, e)
}

func (o *recordingObserver) OnCrossingEvaluated(runner.CrossingEvaluation) {}

func trustGate(threshold float64) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(bytecode.DimR),
		bytecode.Push(bytecode.Number(threshold)),
		bytecode.Simple(bytecode.OpGte),
		bytecode.Simple(bytecode.OpReturn),
	}
}

func newTestEntrypoints(obs runner.Observer) *Entrypoints {
	h := host.NewStubHost().WithTrust("did:alice", bytecode.TrustVector{0.8, 0.8, 0.8, 0.8, 0.8, 0.8})
	var ropts []runner.Option
	if obs != nil {
		ropts = append(ropts, runner.WithObserver(obs))
	}
	return New(h, WithRunner(runner.New(ropts...)))
}

// TestRun_AllKinds tests that every registry runs its handlers.
func TestRun_AllKinds(t *testing.T) {
	obs := &recordingObserver{}
	e := newTestEntrypoints(obs)

	for _, k := range Kinds {
		if err := e.Register(k, "gate", trustGate(0.5)); err != nil {
			t.Fatalf("Register(%s) failed: %v", k, err)
		}
	}

	runs := map[Kind]func(context.Context, string, string, string) (bytecode.Value, error){
		API:        e.RunAPI,
		UI:         e.RunUI,
		DataLogic:  e.RunDataLogic,
		Governance: e.RunGovernance,
		Controller: e.RunController,
	}
	for kind, run := range runs {
		v, err := run(context.Background(), "gate", "did:alice", "realm:main")
		if err != nil {
			t.Fatalf("%s run failed: %v", kind, err)
		}
		if !v.Equal(bytecode.Bool(true)) {
			t.Errorf("%s: expected true, got %s", kind, v)
		}
	}

	if len(obs.executions) != len(Kinds) {
		t.Fatalf("Expected %d events, got %d", len(Kinds), len(obs.executions))
	}
	for _, ev := range obs.executions {
		if !ev.Passed || ev.PolicyID != "gate" || ev.RealmID != "realm:main" {
			t.Errorf("Unexpected event: %+v", ev)
		}
		if !Kind(ev.PolicyType).Valid() {
			t.Errorf("Unexpected policy type %q", ev.PolicyType)
		}
	}
}

// TestRun_NotFound tests missing handlers.
func TestRun_NotFound(t *testing.T) {
	e := newTestEntrypoints(nil)

	_, err := e.Run(context.Background(), API, "POST /missing", "did:alice", "realm")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != API || nf.Key != "POST /missing" {
		t.Errorf("Unexpected error: %v", err)
	}
	if err.Error() != "ecl api handler not found: POST /missing" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

// TestRegister_Validation tests rejection of bad kinds and programs.
func TestRegister_Validation(t *testing.T) {
	e := newTestEntrypoints(nil)

	if err := e.Register(Kind("billing"), "x", trustGate(0.5)); err == nil {
		t.Error("Expected error for unknown kind")
	}
	bad := bytecode.Program{bytecode.Jump(7)}
	if err := e.Register(UI, "x", bad); err == nil {
		t.Error("Expected error for invalid program")
	}

	_ = e.Register(UI, "b-panel", trustGate(0.1))
	_ = e.Register(UI, "a-panel", trustGate(0.1))
	if !e.Has(UI, "a-panel") || e.Has(API, "a-panel") {
		t.Error("Unexpected Has result")
	}
	keys := e.Keys(UI)
	if len(keys) != 2 || keys[0] != "a-panel" || keys[1] != "b-panel" {
		t.Errorf("Unexpected keys %v", keys)
	}
}

// TestRun_FalseVerdictNotPassed tests the observer's passed flag on deny.
func TestRun_FalseVerdictNotPassed(t *testing.T) {
	obs := &recordingObserver{}
	e := newTestEntrypoints(obs)
	_ = e.Register(Governance, "treasury", trustGate(0.9))

	v, err := e.RunGovernance(context.Background(), "treasury", "did:alice", "realm")
	if err != nil {
		t.Fatalf("RunGovernance failed: %v", err)
	}
	if !v.Equal(bytecode.Bool(false)) {
		t.Errorf("Expected false, got %s", v)
	}
	if obs.executions[0].Passed {
		t.Error("Expected passed=false")
	}
}

// TestRun_GasLimit tests the configured gas limit.
func TestRun_GasLimit(t *testing.T) {
	h := host.NewStubHost()
	e := New(h, WithGasLimit(50))
	_ = e.Register(Controller, "admin", trustGate(0.5))

	_, err := e.RunController(context.Background(), "admin", "did:alice", "realm")
	var oog *vm.OutOfGasError
	if !errors.As(err, &oog) {
		t.Fatalf("Expected OutOfGasError, got %v", err)
	}

	b := budget.WithGasLimit(1000)
	if _, err := e.RunWithBudget(context.Background(), Controller, "admin", "did:alice", "realm", b); err != nil {
		t.Fatalf("RunWithBudget failed: %v", err)
	}
	if b.GasUsed() != bytecode.EstimateGas(trustGate(0.5)) {
		t.Errorf("Unexpected gas used %d", b.GasUsed())
	}
}

// TestRun_Limits tests that every configured limit bounds a run, not only
// the gas limit.
func TestRun_Limits(t *testing.T) {
	limits := budget.DefaultLimits()
	limits.MaxStackDepth = 2
	e := New(host.NewStubHost(), WithLimits(limits))
	// Two values on top of the caller DID need a depth of 3.
	_ = e.Register(API, "GET /deep", bytecode.Program{
		bytecode.Push(bytecode.Bool(true)),
		bytecode.Push(bytecode.Bool(true)),
		bytecode.Simple(bytecode.OpReturn),
	})

	_, err := e.RunAPI(context.Background(), "GET /deep", "did:alice", "realm")
	var overflow *vm.StackOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("Expected StackOverflowError, got %v", err)
	}
	if overflow.Limit != 2 {
		t.Errorf("Expected limit 2, got %d", overflow.Limit)
	}

	d := New(host.NewStubHost(), WithGasLimit(70))
	if got := d.Limits(); got.GasLimit != 70 || got.MaxStackDepth != budget.DefaultMaxStackDepth {
		t.Errorf("Expected gas override on default limits, got %+v", got)
	}
}

// TestRunWithHost tests evaluation against an in-memory state host that
// shares the run's budget.
func TestRunWithHost(t *testing.T) {
	e := newTestEntrypoints(nil)
	_ = e.Register(DataLogic, "feed", trustGate(0.5))

	b := budget.New(budget.DefaultLimits())
	sh := statehost.New(statehost.Context{
		ExecutionID: "what-if",
		Realm:       "realm",
		Budget:      b,
		View:        statehost.MapView{TrustByDID: map[string]float64{"did:dave": 0.7}},
	})

	v, err := e.RunWithHost(context.Background(), sh, DataLogic, "feed", runner.NewContext("did:dave", "realm", b))
	if err != nil {
		t.Fatalf("RunWithHost failed: %v", err)
	}
	if !v.Equal(bytecode.Bool(true)) {
		t.Errorf("Expected true from state view, got %s", v)
	}

	// The registered stub host does not know dave.
	v, err = e.RunDataLogic(context.Background(), "feed", "did:dave", "realm")
	if err != nil {
		t.Fatalf("RunDataLogic failed: %v", err)
	}
	if !v.Equal(bytecode.Bool(false)) {
		t.Errorf("Expected false from stub host, got %s", v)
	}
}
