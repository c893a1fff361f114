package optimizer

import "erynoa/eclvm/pkg/ecl/bytecode"

// peepholePass removes local no-op sequences and resolves conditional
// jumps whose condition is a constant. It returns the rewritten program
// and the number of rewrites.
func peepholePass(p bytecode.Program) (bytecode.Program, int) {
	targets := jumpTargets(p)
	heights := minStackHeights(p)
	var edits []edit
	lastEditEnd := 0

	for i := 0; i < len(p); {
		e, ok := matchPeephole(p, i, targets, heights, lastEditEnd)
		if !ok {
			i++
			continue
		}
		edits = append(edits, e)
		i += e.n
		lastEditEnd = i
	}
	return apply(p, edits), len(edits)
}

func matchPeephole(p bytecode.Program, i int, targets map[int]bool, heights []int, lastEditEnd int) (edit, bool) {
	in := p[i]

	// Jump to the next instruction.
	if in.Op == bytecode.OpJump && in.Arg == i+1 {
		return edit{start: i, n: 1}, true
	}

	if i+1 >= len(p) || spansTarget(targets, i, 2) {
		return edit{}, false
	}
	next := p[i+1]

	switch {
	case in.Op == bytecode.OpPushConst && next.Op == bytecode.OpPop:
		return edit{start: i, n: 2}, true

	// Dup+Pop and Swap+Swap fail on a short stack, so they are only
	// dropped where the stack is known to be deep enough.
	case in.Op == bytecode.OpDup && next.Op == bytecode.OpPop && heights[i] >= 1,
		in.Op == bytecode.OpSwap && next.Op == bytecode.OpSwap && heights[i] >= 2:
		return edit{start: i, n: 2}, true

	case in.Op == bytecode.OpPushConst && in.Const.Kind() == bytecode.KindBool:
		cond, _ := in.Const.AsBool()
		switch {
		case next.Op == bytecode.OpJumpIfFalse && cond, next.Op == bytecode.OpJumpIfTrue && !cond:
			// Never taken.
			return edit{start: i, n: 2}, true
		case next.Op == bytecode.OpJumpIfFalse && !cond, next.Op == bytecode.OpJumpIfTrue && cond:
			// Always taken.
			j := bytecode.Jump(next.Arg)
			return edit{start: i, n: 2, repl: &j}, true
		}
	}

	// The remaining rewrites drop an operation whose result type depends
	// on its input. They apply only when the input is produced by the
	// directly preceding instruction, has a statically known type and
	// control cannot enter at i from elsewhere.
	if i == 0 || targets[i] || i-1 < lastEditEnd {
		return edit{}, false
	}
	prev := p[i-1]

	switch {
	case in.Op == bytecode.OpNot && next.Op == bytecode.OpNot && producesBool(prev),
		in.Op == bytecode.OpNeg && next.Op == bytecode.OpNeg && producesNumber(prev):
		return edit{start: i, n: 2}, true

	case in.Op == bytecode.OpPushConst && producesNumber(prev) && isNumber(in.Const, 0) && next.Op == bytecode.OpAdd,
		in.Op == bytecode.OpPushConst && producesNumber(prev) && isNumber(in.Const, 1) && next.Op == bytecode.OpMul:
		return edit{start: i, n: 2}, true
	}
	return edit{}, false
}

func isNumber(v bytecode.Value, want float64) bool {
	n, err := v.AsNumber()
	return err == nil && v.Kind() == bytecode.KindNumber && n == want
}

func producesNumber(in bytecode.Instruction) bool {
	switch in.Op {
	case bytecode.OpPushConst:
		return in.Const.Kind() == bytecode.KindNumber
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpNeg, bytecode.OpMin, bytecode.OpMax,
		bytecode.OpTrustDim, bytecode.OpTrustNorm, bytecode.OpGetBalance, bytecode.OpGetTimestamp:
		return true
	}
	return false
}

func producesBool(in bytecode.Instruction) bool {
	switch in.Op {
	case bytecode.OpPushConst:
		return in.Const.Kind() == bytecode.KindBool
	case bytecode.OpEq, bytecode.OpNeq, bytecode.OpGt, bytecode.OpGte, bytecode.OpLt, bytecode.OpLte,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpNot,
		bytecode.OpHasCredential, bytecode.OpResolveDID:
		return true
	}
	return false
}
