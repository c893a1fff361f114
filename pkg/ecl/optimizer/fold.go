package optimizer

import (
	"math"

	"erynoa/eclvm/pkg/ecl/bytecode"
)

// foldPass collapses constant expressions. It returns the rewritten
// program and the number of folds performed.
func foldPass(p bytecode.Program) (bytecode.Program, int) {
	targets := jumpTargets(p)
	var edits []edit
	for i := 0; i < len(p); {
		if i+2 < len(p) && isPush(p[i]) && isPush(p[i+1]) && !spansTarget(targets, i, 3) {
			if v, ok := foldBinary(p[i+2].Op, p[i].Const, p[i+1].Const); ok {
				in := bytecode.Push(v)
				edits = append(edits, edit{start: i, n: 3, repl: &in})
				i += 3
				continue
			}
		}
		if i+1 < len(p) && isPush(p[i]) && !spansTarget(targets, i, 2) {
			if v, ok := foldUnary(p[i+1].Op, p[i].Const); ok {
				in := bytecode.Push(v)
				edits = append(edits, edit{start: i, n: 2, repl: &in})
				i += 2
				continue
			}
		}
		i++
	}
	return apply(p, edits), len(edits)
}

func isPush(in bytecode.Instruction) bool { return in.Op == bytecode.OpPushConst }

func foldBinary(op bytecode.Op, a, b bytecode.Value) (bytecode.Value, bool) {
	switch op {
	case bytecode.OpEq:
		return bytecode.Bool(a.Equal(b)), true
	case bytecode.OpNeq:
		return bytecode.Bool(!a.Equal(b)), true
	}

	if a.Kind() == bytecode.KindBool && b.Kind() == bytecode.KindBool {
		x, _ := a.AsBool()
		y, _ := b.AsBool()
		switch op {
		case bytecode.OpAnd:
			return bytecode.Bool(x && y), true
		case bytecode.OpOr:
			return bytecode.Bool(x || y), true
		}
		return bytecode.Value{}, false
	}

	if a.Kind() != bytecode.KindNumber || b.Kind() != bytecode.KindNumber {
		return bytecode.Value{}, false
	}
	x, _ := a.AsNumber()
	y, _ := b.AsNumber()
	switch op {
	case bytecode.OpAdd:
		return bytecode.Number(x + y), true
	case bytecode.OpSub:
		return bytecode.Number(x - y), true
	case bytecode.OpMul:
		return bytecode.Number(x * y), true
	case bytecode.OpDiv:
		if y == 0 {
			return bytecode.Value{}, false
		}
		return bytecode.Number(x / y), true
	case bytecode.OpMod:
		if y == 0 {
			return bytecode.Value{}, false
		}
		return bytecode.Number(math.Mod(x, y)), true
	case bytecode.OpMin:
		return bytecode.Number(math.Min(x, y)), true
	case bytecode.OpMax:
		return bytecode.Number(math.Max(x, y)), true
	case bytecode.OpGt:
		return bytecode.Bool(x > y), true
	case bytecode.OpGte:
		return bytecode.Bool(x >= y), true
	case bytecode.OpLt:
		return bytecode.Bool(x < y), true
	case bytecode.OpLte:
		return bytecode.Bool(x <= y), true
	}
	return bytecode.Value{}, false
}

func foldUnary(op bytecode.Op, a bytecode.Value) (bytecode.Value, bool) {
	switch {
	case op == bytecode.OpNeg && a.Kind() == bytecode.KindNumber:
		x, _ := a.AsNumber()
		return bytecode.Number(-x), true
	case op == bytecode.OpNot && a.Kind() == bytecode.KindBool:
		x, _ := a.AsBool()
		return bytecode.Bool(!x), true
	}
	return bytecode.Value{}, false
}
