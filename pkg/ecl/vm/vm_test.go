package vm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"erynoa/eclvm/pkg/ecl/budget"
	bc "erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
)

func run(t *testing.T, p bc.Program, h host.Host) (*Result, error) {
	t.Helper()
	if h == nil {
		h = host.NewStubHost()
	}
	return Run(context.Background(), p, budget.WithGasLimit(10_000), h)
}

func mustRun(t *testing.T, p bc.Program, h host.Host) *Result {
	t.Helper()
	res, err := run(t, p, h)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res
}

func num(n float64) bc.Instruction { return bc.Push(bc.Number(n)) }

func op(o bc.Op) bc.Instruction { return bc.Simple(o) }

func trustProgram(threshold float64) bc.Program {
	return bc.Program{
		bc.Push(bc.DID("alice")),
		op(bc.OpLoadTrust),
		bc.TrustDim(bc.DimR),
		num(threshold),
		op(bc.OpGte),
		op(bc.OpAssert),
		bc.Push(bc.Bool(true)),
		op(bc.OpReturn),
	}
}

// TestRun_TrustThreshold tests the canonical trust gate against high and low trust.
func TestRun_TrustThreshold(t *testing.T) {
	high := host.NewStubHost().WithTrust("alice", bc.TrustVector{0.8, 0.5, 0.5, 0.5, 0.5, 0.5})
	res := mustRun(t, trustProgram(0.5), high)
	if !res.Value.Equal(bc.Bool(true)) {
		t.Errorf("Expected true, got %s", res.Value)
	}
	if want := bc.EstimateGas(trustProgram(0.5)); res.GasUsed != want {
		t.Errorf("Expected gas %d, got %d", want, res.GasUsed)
	}

	low := host.NewStubHost().WithTrust("alice", bc.TrustVector{0.3, 0.5, 0.5, 0.5, 0.5, 0.5})
	_, err := run(t, trustProgram(0.5), low)
	var rejected *PolicyRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Expected PolicyRejectedError, got %v", err)
	}
}

// TestRun_Arithmetic tests numeric opcodes.
func TestRun_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		prog bc.Program
		want bc.Value
	}{
		{"add", bc.Program{num(5), num(3), op(bc.OpAdd), op(bc.OpReturn)}, bc.Number(8)},
		{"sub mul", bc.Program{num(10), num(3), op(bc.OpSub), num(2), op(bc.OpMul), op(bc.OpReturn)}, bc.Number(14)},
		{"div", bc.Program{num(9), num(2), op(bc.OpDiv), op(bc.OpReturn)}, bc.Number(4.5)},
		{"mod", bc.Program{num(7), num(3), op(bc.OpMod), op(bc.OpReturn)}, bc.Number(1)},
		{"neg", bc.Program{num(7), op(bc.OpNeg), op(bc.OpReturn)}, bc.Number(-7)},
		{"min", bc.Program{num(7), num(3), op(bc.OpMin), op(bc.OpReturn)}, bc.Number(3)},
		{"max", bc.Program{num(7), num(3), op(bc.OpMax), op(bc.OpReturn)}, bc.Number(7)},
		{"bool coerces", bc.Program{bc.Push(bc.Bool(true)), num(2), op(bc.OpAdd), op(bc.OpReturn)}, bc.Number(3)},
		{"gt", bc.Program{num(5), num(3), op(bc.OpGt), op(bc.OpReturn)}, bc.Bool(true)},
		{"lte", bc.Program{num(5), num(3), op(bc.OpLte), op(bc.OpReturn)}, bc.Bool(false)},
		{"eq strings", bc.Program{bc.Push(bc.String("a")), bc.Push(bc.String("a")), op(bc.OpEq), op(bc.OpReturn)}, bc.Bool(true)},
		{"neq kinds", bc.Program{bc.Push(bc.String("a")), bc.Push(bc.DID("a")), op(bc.OpNeq), op(bc.OpReturn)}, bc.Bool(true)},
		{"and", bc.Program{bc.Push(bc.Bool(true)), bc.Push(bc.Bool(false)), op(bc.OpAnd), op(bc.OpReturn)}, bc.Bool(false)},
		{"or null", bc.Program{bc.Push(bc.Null()), bc.Push(bc.Bool(true)), op(bc.OpOr), op(bc.OpReturn)}, bc.Bool(true)},
		{"not number", bc.Program{num(0), op(bc.OpNot), op(bc.OpReturn)}, bc.Bool(true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustRun(t, tt.prog, nil)
			if !res.Value.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, res.Value)
			}
		})
	}
}

// TestRun_StackOps tests Dup, Swap, Pick and Pop.
func TestRun_StackOps(t *testing.T) {
	res := mustRun(t, bc.Program{
		num(1), num(2), op(bc.OpSwap), // 2 1
		op(bc.OpDup), // 2 1 1
		op(bc.OpPop), // 2 1
		bc.Pick(1),   // 2 1 2
		op(bc.OpSub), // 2 -1
		op(bc.OpReturn),
	}, nil)
	if !res.Value.Equal(bc.Number(-1)) {
		t.Errorf("Expected -1, got %s", res.Value)
	}
	if res.StackDepthMax != 3 {
		t.Errorf("Expected max depth 3, got %d", res.StackDepthMax)
	}
}

// TestRun_ControlFlow tests conditional jumps and subroutine calls.
func TestRun_ControlFlow(t *testing.T) {
	branch := bc.Program{
		num(5), num(3), op(bc.OpGt), // 0-2
		bc.JumpIfFalse(6), // 3
		num(100),          // 4
		op(bc.OpReturn),   // 5
		num(200),          // 6
		op(bc.OpReturn),   // 7
	}
	if res := mustRun(t, branch, nil); !res.Value.Equal(bc.Number(100)) {
		t.Errorf("Expected 100, got %s", res.Value)
	}

	call := bc.Program{
		num(20),         // 0
		bc.Call(4, 1),   // 1
		num(1),          // 2
		op(bc.OpAdd),    // 3 -> returns here after subroutine, adds 1
		op(bc.OpDup),    // 4 subroutine: double the argument
		op(bc.OpAdd),    // 5
		op(bc.OpReturn), // 6
	}
	// (20*2 + 1) * 2: the second pass through the body returns from the outer frame.
	res := mustRun(t, call, nil)
	if !res.Value.Equal(bc.Number(82)) {
		t.Errorf("Expected 82, got %s", res.Value)
	}
}

// TestRun_Termination tests Halt, fall-through and Abort.
func TestRun_Termination(t *testing.T) {
	if res := mustRun(t, bc.Program{num(1), op(bc.OpHalt), num(2)}, nil); !res.Value.Equal(bc.Number(1)) {
		t.Errorf("Expected Halt to return 1, got %s", res.Value)
	}
	if res := mustRun(t, bc.Program{num(1), num(2)}, nil); !res.Value.Equal(bc.Number(2)) {
		t.Errorf("Expected fall-through to return top, got %s", res.Value)
	}
	if res := mustRun(t, bc.Program{}, nil); !res.Value.IsNull() {
		t.Errorf("Expected Null for empty program, got %s", res.Value)
	}
	if _, err := run(t, bc.Program{op(bc.OpAbort)}, nil); !errors.Is(err, ErrAborted) {
		t.Errorf("Expected ErrAborted, got %v", err)
	}
}

// TestRun_Errors tests runtime failures.
func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name  string
		prog  bc.Program
		check func(error) bool
	}{
		{"underflow", bc.Program{op(bc.OpAdd)}, func(err error) bool { return errors.Is(err, ErrStackUnderflow) }},
		{"division by zero", bc.Program{num(1), num(0), op(bc.OpDiv)}, func(err error) bool { return errors.Is(err, ErrDivisionByZero) }},
		{"mod by zero", bc.Program{num(1), num(0), op(bc.OpMod)}, func(err error) bool { return errors.Is(err, ErrDivisionByZero) }},
		{"invalid jump", bc.Program{bc.Jump(9)}, func(err error) bool { return errors.Is(err, ErrInvalidJump) }},
		{"type", bc.Program{bc.Push(bc.String("x")), num(1), op(bc.OpAdd)}, func(err error) bool {
			var te *TypeError
			var mismatch *bc.TypeMismatchError
			return errors.As(err, &te) && errors.As(err, &mismatch) && mismatch.Expected == "number"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.prog, nil)
			if !tt.check(err) {
				t.Errorf("Unexpected error %v", err)
			}
		})
	}
}

// TestRun_Require tests that Require carries its message.
func TestRun_Require(t *testing.T) {
	_, err := run(t, bc.Program{bc.Push(bc.Bool(false)), bc.Push(bc.String("needs KYC")), op(bc.OpRequire)}, nil)
	var rejected *PolicyRejectedError
	if !errors.As(err, &rejected) || rejected.Message != "needs KYC" {
		t.Fatalf("Expected rejection with message, got %v", err)
	}
	res := mustRun(t, bc.Program{num(1), bc.Push(bc.String("ok")), op(bc.OpRequire), num(7)}, nil)
	if !res.Value.Equal(bc.Number(7)) {
		t.Errorf("Expected 7, got %s", res.Value)
	}
}

// TestRun_OutOfGas tests that exhaustion never reports usage above the limit.
func TestRun_OutOfGas(t *testing.T) {
	loop := bc.Program{num(1), op(bc.OpPop), bc.Jump(0)}
	b := budget.WithGasLimit(100)
	_, err := Run(context.Background(), loop, b, host.NewStubHost())
	var oog *OutOfGasError
	if !errors.As(err, &oog) {
		t.Fatalf("Expected OutOfGasError, got %v", err)
	}
	if b.GasUsed() > 100 {
		t.Errorf("Gas used %d exceeds limit", b.GasUsed())
	}
	if oog.Limit != 100 || oog.Attempted <= 100 {
		t.Errorf("Unexpected error fields %+v", oog)
	}
	if !IsResourceError(err) {
		t.Error("Expected OutOfGasError to be a resource error")
	}
}

// TestRun_StackOverflow tests the depth limit.
func TestRun_StackOverflow(t *testing.T) {
	b := budget.New(budget.Limits{GasLimit: 10_000, MaxStackDepth: 4})
	_, err := Run(context.Background(), bc.Program{op(bc.OpDup), bc.Jump(0)}, b, host.NewStubHost(), bc.Number(1))
	var so *StackOverflowError
	if !errors.As(err, &so) {
		t.Fatalf("Expected StackOverflowError, got %v", err)
	}
	if so.Limit != 4 || so.Attempted != 5 {
		t.Errorf("Unexpected error fields %+v", so)
	}

	b = budget.New(budget.Limits{GasLimit: 10_000, MaxStackDepth: 1})
	if _, err := Run(context.Background(), nil, b, nil, bc.Null(), bc.Null()); !errors.As(err, &so) {
		t.Errorf("Expected oversized initial stack to overflow, got %v", err)
	}
}

// TestRun_Timeout tests the budget deadline with an injected clock.
func TestRun_Timeout(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
	b := budget.New(budget.Limits{GasLimit: 1 << 40, Timeout: 50 * time.Millisecond}, budget.WithClock(clock))
	_, err := Run(context.Background(), bc.Program{bc.Jump(0)}, b, host.NewStubHost())
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	if te.Cause != nil {
		t.Errorf("Expected no cause for deadline timeout, got %v", te.Cause)
	}
}

// TestRun_ContextCancelled tests cancellation at an instruction boundary.
func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, bc.Program{num(1)}, budget.WithGasLimit(100), host.NewStubHost())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

// TestRun_HostOps tests the domain opcodes against a stub host.
func TestRun_HostOps(t *testing.T) {
	h := host.NewStubHost().
		WithCredential("did:bob", "KYC").
		WithBalance("did:bob", 250)

	tests := []struct {
		name string
		prog bc.Program
		want bc.Value
	}{
		{"credential", bc.Program{bc.Push(bc.DID("did:bob")), bc.Push(bc.String("KYC")), op(bc.OpHasCredential)}, bc.Bool(true)},
		{"missing credential", bc.Program{bc.Push(bc.DID("did:eve")), bc.Push(bc.String("KYC")), op(bc.OpHasCredential)}, bc.Bool(false)},
		{"balance", bc.Program{bc.Push(bc.DID("did:bob")), op(bc.OpGetBalance)}, bc.Number(250)},
		{"resolve", bc.Program{bc.Push(bc.DID("did:bob")), op(bc.OpResolveDID)}, bc.Bool(true)},
		{"timestamp", bc.Program{op(bc.OpGetTimestamp)}, bc.Number(float64(host.StubTimestamp))},
		{"newcomer trust", bc.Program{bc.Push(bc.DID("did:eve")), op(bc.OpLoadTrust), op(bc.OpTrustNorm)}, bc.Number(bc.NewcomerTrust.Norm())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustRun(t, tt.prog, h)
			if !res.Value.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, res.Value)
			}
		})
	}
}

// TestRun_TrustOps tests vector construction and combination.
func TestRun_TrustOps(t *testing.T) {
	res := mustRun(t, bc.Program{
		num(0.9), num(0.8), num(0.7), num(0.6), num(0.5), num(0.4),
		op(bc.OpTrustCreate),
		bc.TrustDim(bc.DimOmega),
	}, nil)
	if !res.Value.Equal(bc.Number(0.4)) {
		t.Errorf("Expected Ω 0.4, got %s", res.Value)
	}

	a := bc.TrustVector{1, 1, 1, 1, 1, 1}
	b := bc.TrustVector{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	res = mustRun(t, bc.Program{bc.Push(bc.Trust(a)), bc.Push(bc.Trust(b)), op(bc.OpTrustCombine)}, nil)
	if !res.Value.Equal(bc.Trust(a.Combine(b))) {
		t.Errorf("Expected %s, got %s", a.Combine(b), res.Value)
	}
}

// TestRun_Logs tests that Log reaches both the result and the host.
func TestRun_Logs(t *testing.T) {
	h := host.NewStubHost()
	res := mustRun(t, bc.Program{bc.Push(bc.String("hello")), op(bc.OpLog), num(1)}, h)
	if len(res.Logs) != 1 || res.Logs[0] != "hello" {
		t.Errorf("Unexpected result logs %v", res.Logs)
	}
	if logs := h.Logs(); len(logs) != 1 || logs[0] != "hello" {
		t.Errorf("Unexpected host logs %v", logs)
	}
}

// TestRun_InitialStack tests that preloaded values are visible to the program.
func TestRun_InitialStack(t *testing.T) {
	res, err := Run(context.Background(), bc.Program{bc.Pick(1), op(bc.OpReturn)}, budget.WithGasLimit(100), nil,
		bc.DID("caller"), bc.Number(3))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Value.Equal(bc.DID("caller")) {
		t.Errorf("Expected caller DID, got %s", res.Value)
	}
}

// TestRun_Trace tests the per-instruction trace output.
func TestRun_Trace(t *testing.T) {
	var buf bytes.Buffer
	v := New(Options{Trace: &buf})
	if _, err := v.Run(context.Background(), bc.Program{num(1), op(bc.OpReturn)}, budget.WithGasLimit(100), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 trace lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "0000 PushConst") {
		t.Errorf("Unexpected first trace line %q", lines[0])
	}
}

// TestRun_HostFailure tests wrapping of host errors.
func TestRun_HostFailure(t *testing.T) {
	_, err := Run(context.Background(), bc.Program{op(bc.OpGetTimestamp)}, budget.WithGasLimit(100), nil)
	var he *HostError
	if !errors.As(err, &he) || !errors.Is(err, host.ErrNotSupported) {
		t.Errorf("Expected HostError wrapping ErrNotSupported, got %v", err)
	}
}
