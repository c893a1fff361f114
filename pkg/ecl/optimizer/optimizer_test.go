package optimizer

import (
	"testing"

	bc "erynoa/eclvm/pkg/ecl/bytecode"
)

func num(n float64) bc.Instruction { return bc.Push(bc.Number(n)) }

func op(o bc.Op) bc.Instruction { return bc.Simple(o) }

// TestOptimize_ConstantFolding tests folding of nested arithmetic.
func TestOptimize_ConstantFolding(t *testing.T) {
	p := bc.Program{num(2), num(3), op(bc.OpAdd), num(4), op(bc.OpMul), op(bc.OpReturn)}
	got, stats := New(DefaultOptions()).Optimize(p)
	want := bc.Program{num(20), op(bc.OpReturn)}
	if !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if stats.Folded != 2 {
		t.Errorf("Expected 2 folds, got %d", stats.Folded)
	}
	if stats.OriginalSize != 6 || stats.OptimizedSize != 2 {
		t.Errorf("Unexpected sizes %d -> %d", stats.OriginalSize, stats.OptimizedSize)
	}
	if s := stats.SavingsPercent(); s < 66.6 || s > 66.7 {
		t.Errorf("Expected ~66.7%% savings, got %.2f", s)
	}
	if len(p) != 6 {
		t.Error("Input program was modified")
	}
}

// TestOptimize_DeadCode tests removal of code after return.
func TestOptimize_DeadCode(t *testing.T) {
	p := bc.Program{num(1), op(bc.OpReturn), num(999), op(bc.OpReturn)}
	got := Optimize(p)
	want := bc.Program{num(1), op(bc.OpReturn)}
	if !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

// TestOptimize_FoldingRules tests which operand combinations fold.
func TestOptimize_FoldingRules(t *testing.T) {
	tests := []struct {
		name string
		in   bc.Program
		want bc.Program
	}{
		{
			name: "division by zero is kept",
			in:   bc.Program{num(1), num(0), op(bc.OpDiv), op(bc.OpReturn)},
			want: bc.Program{num(1), num(0), op(bc.OpDiv), op(bc.OpReturn)},
		},
		{
			name: "modulo by zero is kept",
			in:   bc.Program{num(1), num(0), op(bc.OpMod), op(bc.OpReturn)},
			want: bc.Program{num(1), num(0), op(bc.OpMod), op(bc.OpReturn)},
		},
		{
			name: "modulo",
			in:   bc.Program{num(7), num(4), op(bc.OpMod), op(bc.OpReturn)},
			want: bc.Program{num(3), op(bc.OpReturn)},
		},
		{
			name: "boolean and",
			in:   bc.Program{bc.Push(bc.Bool(true)), bc.Push(bc.Bool(false)), op(bc.OpAnd), op(bc.OpReturn)},
			want: bc.Program{bc.Push(bc.Bool(false)), op(bc.OpReturn)},
		},
		{
			name: "mixed kinds are kept",
			in:   bc.Program{num(1), bc.Push(bc.Bool(true)), op(bc.OpAdd), op(bc.OpReturn)},
			want: bc.Program{num(1), bc.Push(bc.Bool(true)), op(bc.OpAdd), op(bc.OpReturn)},
		},
		{
			name: "negate",
			in:   bc.Program{num(5), op(bc.OpNeg), op(bc.OpReturn)},
			want: bc.Program{num(-5), op(bc.OpReturn)},
		},
		{
			name: "not",
			in:   bc.Program{bc.Push(bc.Bool(false)), op(bc.OpNot), op(bc.OpReturn)},
			want: bc.Program{bc.Push(bc.Bool(true)), op(bc.OpReturn)},
		},
		{
			name: "comparison",
			in:   bc.Program{num(0.8), num(0.5), op(bc.OpGte), op(bc.OpReturn)},
			want: bc.Program{bc.Push(bc.Bool(true)), op(bc.OpReturn)},
		},
		{
			name: "min and max",
			in:   bc.Program{num(3), num(9), op(bc.OpMin), num(4), op(bc.OpMax), op(bc.OpReturn)},
			want: bc.Program{num(4), op(bc.OpReturn)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Optimize(tt.in); !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestOptimize_Peephole tests the local rewrites.
func TestOptimize_Peephole(t *testing.T) {
	did := bc.Push(bc.DID("alice"))
	tests := []struct {
		name string
		in   bc.Program
		want bc.Program
	}{
		{
			name: "push pop",
			in:   bc.Program{did, num(1), op(bc.OpPop), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpReturn)},
		},
		{
			name: "dup pop",
			in:   bc.Program{did, op(bc.OpDup), op(bc.OpPop), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpReturn)},
		},
		{
			name: "swap swap",
			in:   bc.Program{did, did, op(bc.OpSwap), op(bc.OpSwap), op(bc.OpReturn)},
			want: bc.Program{did, did, op(bc.OpReturn)},
		},
		{
			name: "jump to next",
			in:   bc.Program{did, bc.Jump(2), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpReturn)},
		},
		{
			name: "true before jump-if-false",
			in:   bc.Program{bc.Push(bc.Bool(true)), bc.JumpIfFalse(3), did, op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpReturn)},
		},
		{
			name: "false before jump-if-true",
			in:   bc.Program{bc.Push(bc.Bool(false)), bc.JumpIfTrue(3), did, op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpReturn)},
		},
		{
			name: "false before jump-if-false becomes a jump",
			in:   bc.Program{bc.Push(bc.Bool(false)), bc.JumpIfFalse(4), did, op(bc.OpReturn), num(7), op(bc.OpReturn)},
			want: bc.Program{num(7), op(bc.OpReturn)},
		},
		{
			name: "double not over a comparison",
			in:   bc.Program{did, op(bc.OpLoadTrust), did, op(bc.OpLoadTrust), op(bc.OpEq), op(bc.OpNot), op(bc.OpNot), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpLoadTrust), did, op(bc.OpLoadTrust), op(bc.OpEq), op(bc.OpReturn)},
		},
		{
			name: "double not over a did is kept",
			in:   bc.Program{did, op(bc.OpNot), op(bc.OpNot), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpNot), op(bc.OpNot), op(bc.OpReturn)},
		},
		{
			name: "double negate over a balance",
			in:   bc.Program{did, op(bc.OpGetBalance), op(bc.OpNeg), op(bc.OpNeg), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpGetBalance), op(bc.OpReturn)},
		},
		{
			name: "add zero",
			in:   bc.Program{did, op(bc.OpGetBalance), num(0), op(bc.OpAdd), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpGetBalance), op(bc.OpReturn)},
		},
		{
			name: "multiply one",
			in:   bc.Program{did, op(bc.OpLoadTrust), op(bc.OpTrustNorm), num(1), op(bc.OpMul), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpLoadTrust), op(bc.OpTrustNorm), op(bc.OpReturn)},
		},
		{
			name: "add zero to a bool is kept",
			in:   bc.Program{did, did, op(bc.OpHasCredential), num(0), op(bc.OpAdd), op(bc.OpReturn)},
			want: bc.Program{did, did, op(bc.OpHasCredential), num(0), op(bc.OpAdd), op(bc.OpReturn)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Optimize(tt.in); !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestOptimize_JumpTargetsRemapped tests that branches survive removals.
func TestOptimize_JumpTargetsRemapped(t *testing.T) {
	did := bc.Push(bc.DID("alice"))
	// if <cond> { 1+1 } else { 2 }
	p := bc.Program{
		did,                  // 0
		op(bc.OpLoadTrust),   // 1
		bc.TrustDim(bc.DimR), // 2
		num(0.5),             // 3
		op(bc.OpGte),         // 4
		bc.JumpIfFalse(10),   // 5
		num(1),               // 6
		num(1),               // 7
		op(bc.OpAdd),         // 8
		bc.Jump(11),          // 9
		num(2),               // 10
		op(bc.OpReturn),      // 11
	}
	got := Optimize(p)
	want := bc.Program{
		did,
		op(bc.OpLoadTrust),
		bc.TrustDim(bc.DimR),
		num(0.5),
		op(bc.OpGte),
		bc.JumpIfFalse(8),
		num(2),
		bc.Jump(9),
		num(2),
		op(bc.OpReturn),
	}
	if !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Optimized program invalid: %v", err)
	}
}

// TestOptimize_NoFoldAcrossJumpTarget tests that patterns never span a target.
func TestOptimize_NoFoldAcrossJumpTarget(t *testing.T) {
	p := bc.Program{
		bc.Push(bc.DID("x")), // 0
		bc.JumpIfTrue(4),     // 1
		num(1),               // 2
		bc.Jump(5),           // 3
		num(2),               // 4: target
		num(3),               // 5: target
		op(bc.OpAdd),         // 6
		op(bc.OpReturn),      // 7
	}
	got := Optimize(p)
	for _, in := range got {
		if in.Op == bc.OpPushConst && in.Const.Equal(bc.Number(5)) {
			t.Fatalf("Folded across a jump target: %s", got)
		}
	}
}

// TestOptimize_StackNeutralPairsNeedDepth tests that Dup+Pop and Swap+Swap
// are kept when the stack may be too shallow for them.
func TestOptimize_StackNeutralPairsNeedDepth(t *testing.T) {
	did := bc.Push(bc.DID("alice"))
	tests := []struct {
		name string
		in   bc.Program
		want bc.Program
	}{
		{
			name: "swap swap on empty stack",
			in:   bc.Program{op(bc.OpSwap), op(bc.OpSwap), op(bc.OpReturn)},
			want: bc.Program{op(bc.OpSwap), op(bc.OpSwap), op(bc.OpReturn)},
		},
		{
			name: "swap swap on one slot",
			in:   bc.Program{did, op(bc.OpSwap), op(bc.OpSwap), op(bc.OpReturn)},
			want: bc.Program{did, op(bc.OpSwap), op(bc.OpSwap), op(bc.OpReturn)},
		},
		{
			name: "dup pop on empty stack",
			in:   bc.Program{op(bc.OpDup), op(bc.OpPop), op(bc.OpReturn)},
			want: bc.Program{op(bc.OpDup), op(bc.OpPop), op(bc.OpReturn)},
		},
		{
			name: "shallow branch keeps pair",
			in: bc.Program{
				did,              // 0
				bc.JumpIfTrue(4), // 1
				did,              // 2
				did,              // 3
				op(bc.OpSwap),    // 4: reached with 0 or 2 slots
				op(bc.OpSwap),    // 5
				op(bc.OpReturn),  // 6
			},
			want: bc.Program{did, bc.JumpIfTrue(4), did, did, op(bc.OpSwap), op(bc.OpSwap), op(bc.OpReturn)},
		},
		{
			name: "deep enough after a join",
			in: bc.Program{
				did,              // 0
				did,              // 1
				did,              // 2
				bc.JumpIfTrue(5), // 3
				did,              // 4
				op(bc.OpSwap),    // 5: reached with 2 or 3 slots
				op(bc.OpSwap),    // 6
				op(bc.OpReturn),  // 7
			},
			want: bc.Program{did, did, did, bc.JumpIfTrue(5), did, op(bc.OpReturn)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Optimize(tt.in); !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestMinStackHeights tests the lower bounds used by the peephole pass.
func TestMinStackHeights(t *testing.T) {
	did := bc.Push(bc.DID("alice"))
	p := bc.Program{
		did,              // 0: 0
		did,              // 1: 1
		bc.JumpIfTrue(5), // 2: 2
		did,              // 3: 1
		op(bc.OpPop),     // 4: 2
		op(bc.OpDup),     // 5: 1
		op(bc.OpReturn),  // 6: 2
		op(bc.OpHalt),    // 7: unreachable
	}
	want := []int{0, 1, 2, 1, 2, 1, 2, 0}
	got := minStackHeights(p)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instruction %d: expected height %d, got %d", i, want[i], got[i])
		}
	}
}

// TestOptimize_Idempotent tests that optimization reaches a fixed point.
func TestOptimize_Idempotent(t *testing.T) {
	programs := []bc.Program{
		{num(2), num(3), op(bc.OpAdd), num(4), op(bc.OpMul), op(bc.OpReturn)},
		{bc.Push(bc.Bool(true)), bc.JumpIfFalse(5), num(1), num(0), op(bc.OpAdd), op(bc.OpReturn)},
		{bc.Push(bc.DID("a")), op(bc.OpLoadTrust), bc.TrustDim(bc.DimC), bc.Jump(4), op(bc.OpNeg), op(bc.OpNeg), op(bc.OpNeg), op(bc.OpReturn)},
		{num(1), num(2), op(bc.OpSwap), op(bc.OpSwap), op(bc.OpPop), op(bc.OpReturn), num(3), op(bc.OpHalt)},
	}
	for i, p := range programs {
		once := Optimize(p)
		twice := Optimize(once)
		if !once.Equal(twice) {
			t.Errorf("program %d not idempotent:\n once %s\ntwice %s", i, once, twice)
		}
	}
}

// TestOptimize_PassSelection tests disabling passes.
func TestOptimize_PassSelection(t *testing.T) {
	p := bc.Program{num(1), num(2), op(bc.OpAdd), op(bc.OpReturn), num(9)}
	got, stats := New(Options{DeadCodeElimination: true}).Optimize(p)
	want := bc.Program{num(1), num(2), op(bc.OpAdd), op(bc.OpReturn)}
	if !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if stats.Folded != 0 || stats.DeadRemoved != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
