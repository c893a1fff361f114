package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/vm"
	"erynoa/eclvm/pkg/telemetry/logging"
)

type recordingObserver struct {
	mu         sync.Mutex
	executions []PolicyExecution
	crossings  []CrossingEvaluation
}

func (o *recordingObserver) OnPolicyExecuted(e PolicyExecution) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executions = append(o.executions, e)
}

func (o *recordingObserver) OnCrossingEvaluated(e CrossingEvaluation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.crossings = append(o.crossings, e)
}

// trustCheck compares the caller's reliability against threshold.
func trustCheck(threshold float64) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(bytecode.DimR),
		bytecode.Push(bytecode.Number(threshold)),
		bytecode.Simple(bytecode.OpGte),
		bytecode.Simple(bytecode.OpReturn),
	}
}

// TestRun_ReturnsBool tests a trust policy through the runner.
func TestRun_ReturnsBool(t *testing.T) {
	h := host.NewStubHost().WithTrust("did:test:alice", bytecode.TrustVector{0.8, 0.5, 0.5, 0.5, 0.5, 0.5})
	r := New(WithIDSource(&SequenceSource{Prefix: "exec"}))

	res, err := r.Run(context.Background(), trustCheck(0.3), h, NewLegacyContext("did:test:alice", "realm:test", 10_000))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Value.Equal(bytecode.Bool(true)) {
		t.Errorf("Expected true, got %s", res.Value)
	}
	if res.ExecutionID != "exec-1" {
		t.Errorf("Expected exec-1, got %q", res.ExecutionID)
	}
	want := bytecode.EstimateGas(trustCheck(0.3))
	if res.GasUsed != want {
		t.Errorf("Expected gas %d, got %d", want, res.GasUsed)
	}

	// Unknown callers fall back to newcomer trust.
	res, err = r.Run(context.Background(), trustCheck(0.3), h, NewLegacyContext("did:test:nobody", "realm:test", 10_000))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Value.Equal(bytecode.Bool(false)) {
		t.Errorf("Expected false for newcomer, got %s", res.Value)
	}
	if res.ExecutionID != "exec-2" {
		t.Errorf("Expected exec-2, got %q", res.ExecutionID)
	}
}

// TestContext_Constructors tests the context helpers.
func TestContext_Constructors(t *testing.T) {
	ctx := NewLegacyContext("did:a", "realm", 1234)
	if ctx.GasLimit() != 1234 {
		t.Errorf("Expected gas limit 1234, got %d", ctx.GasLimit())
	}
	if ctx.Budget.Limits().ManaLimit != budget.DefaultManaLimit {
		t.Errorf("Expected default mana limit, got %d", ctx.Budget.Limits().ManaLimit)
	}

	limits := budget.Limits{GasLimit: 100_000, ManaLimit: 5_000, MaxStackDepth: 512, Timeout: budget.DefaultTimeout}
	ctx = WithLimits("did:a", "realm", limits).WithPolicy("entry", "crossing")
	if ctx.Budget.Limits() != limits {
		t.Errorf("Unexpected limits %+v", ctx.Budget.Limits())
	}
	if ctx.PolicyID != "entry" || ctx.PolicyType != "crossing" {
		t.Errorf("Unexpected labels %q/%q", ctx.PolicyID, ctx.PolicyType)
	}

	if (PolicyRunContext{}).GasLimit() != budget.DefaultGasLimit {
		t.Error("Expected default gas limit for nil budget")
	}
}

// TestRun_SharedBudget tests that sequential runs accumulate on one budget.
func TestRun_SharedBudget(t *testing.T) {
	h := host.NewStubHost()
	b := budget.New(budget.DefaultLimits())
	r := New()
	program := bytecode.Program{
		bytecode.Push(bytecode.Number(1)),
		bytecode.Push(bytecode.Number(2)),
		bytecode.Simple(bytecode.OpAdd),
		bytecode.Simple(bytecode.OpReturn),
	}

	first, err := r.Run(context.Background(), program, h, NewContext("did:a", "realm", b))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	second, err := r.Run(context.Background(), program, h, NewContext("did:a", "realm", b))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if second.GasUsed != 2*first.GasUsed {
		t.Errorf("Expected accumulated gas %d, got %d", 2*first.GasUsed, second.GasUsed)
	}
	if first.ExecutionID == second.ExecutionID {
		t.Error("Expected distinct execution ids")
	}
}

// TestRun_Observer tests observer notification for success and failure.
func TestRun_Observer(t *testing.T) {
	obs := &recordingObserver{}
	r := New(WithObserver(obs))
	h := host.NewStubHost().WithTrust("did:a", bytecode.TrustVector{0.9, 0, 0, 0, 0, 0})

	rc := NewLegacyContext("did:a", "realm:x", 10_000).WithPolicy("entry", "crossing")
	if _, err := r.Run(context.Background(), trustCheck(0.5), h, rc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	failing := bytecode.Program{
		bytecode.Push(bytecode.Bool(false)),
		bytecode.Simple(bytecode.OpAssert),
	}
	_, err := r.Run(context.Background(), failing, h, rc)
	var rejected *vm.PolicyRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Expected PolicyRejectedError, got %v", err)
	}

	if len(obs.executions) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.executions))
	}
	ok, failed := obs.executions[0], obs.executions[1]
	if !ok.Passed || ok.PolicyID != "entry" || ok.PolicyType != "crossing" || ok.RealmID != "realm:x" {
		t.Errorf("Unexpected success event: %+v", ok)
	}
	if failed.Passed || failed.Err == nil || failed.GasUsed == 0 {
		t.Errorf("Unexpected failure event: %+v", failed)
	}
}

// TestRun_NonBoolNotPassed tests that only a true boolean counts as passed.
func TestRun_NonBoolNotPassed(t *testing.T) {
	obs := &recordingObserver{}
	r := New(WithObserver(obs))
	program := bytecode.Program{
		bytecode.Push(bytecode.Number(1)),
		bytecode.Simple(bytecode.OpReturn),
	}
	if _, err := r.Run(context.Background(), program, host.NewStubHost(), NewLegacyContext("did:a", "r", 100)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if obs.executions[0].Passed {
		t.Error("Expected number result not to count as passed")
	}
}

// TestRun_Logs tests that log messages reach the result and the host.
func TestRun_Logs(t *testing.T) {
	h := host.NewStubHost()
	program := bytecode.Program{
		bytecode.Push(bytecode.String("checked")),
		bytecode.Simple(bytecode.OpLog),
		bytecode.Push(bytecode.Bool(true)),
		bytecode.Simple(bytecode.OpReturn),
	}
	res, err := New().Run(context.Background(), program, h, NewLegacyContext("did:a", "r", 1000))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "checked" {
		t.Errorf("Unexpected logs %v", res.Logs)
	}
	if logs := h.Logs(); len(logs) != 1 {
		t.Errorf("Expected host to capture 1 log, got %v", logs)
	}
}

// TestRun_LogFields tests that policy logs carry the execution fields.
func TestRun_LogFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "debug", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}
	program := bytecode.Program{
		bytecode.Push(bytecode.String("checked")),
		bytecode.Simple(bytecode.OpLog),
		bytecode.Push(bytecode.Bool(true)),
		bytecode.Simple(bytecode.OpReturn),
	}
	r := New(WithLogger(logger), WithIDSource(&SequenceSource{Prefix: "run"}))
	rc := NewLegacyContext("did:a", "realm:x", 1000).WithPolicy("audit", "api")
	if _, err := r.Run(context.Background(), program, host.NewStubHost(), rc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"message=checked", "execution_id=run-1", "realm=realm:x", "caller=did:a", "policy=audit"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}
}

// TestRun_OutOfGas tests that budget errors surface unchanged.
func TestRun_OutOfGas(t *testing.T) {
	_, err := New().Run(context.Background(), trustCheck(0.5), host.NewStubHost(), NewLegacyContext("did:a", "r", 2))
	var oog *vm.OutOfGasError
	if !errors.As(err, &oog) {
		t.Fatalf("Expected OutOfGasError, got %v", err)
	}
}

// TestRun_Span tests span recording.
func TestRun_Span(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	r := New(WithTracer(tp.Tracer("test")), WithIDSource(&SequenceSource{Prefix: "span"}))

	rc := NewLegacyContext("did:a", "realm:x", 1000).WithPolicy("entry", "crossing")
	if _, err := r.Run(context.Background(), trustCheck(0.5), host.NewStubHost(), rc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "ecl.policy.run" {
		t.Errorf("Unexpected span name %q", spans[0].Name())
	}
	found := false
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "ecl.execution_id" && kv.Value.AsString() == "span-1" {
			found = true
		}
	}
	if !found {
		t.Error("Expected execution id attribute")
	}
}

// TestObservers tests fan-out.
func TestObservers(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	obs := Observers{a, b}
	obs.OnPolicyExecuted(PolicyExecution{PolicyID: "p"})
	obs.OnCrossingEvaluated(CrossingEvaluation{ToRealm: "r"})
	if len(a.executions) != 1 || len(b.crossings) != 1 {
		t.Error("Expected events delivered to all observers")
	}
}
