package optimizer

import "erynoa/eclvm/pkg/ecl/bytecode"

// stackUse returns how many slots in needs on the stack and how many it
// leaves in their place.
func stackUse(in bytecode.Instruction) (needs, leaves int) {
	switch in.Op {
	case bytecode.OpPushConst, bytecode.OpGetTimestamp:
		return 0, 1
	case bytecode.OpPop, bytecode.OpLog, bytecode.OpAssert,
		bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
		return 1, 0
	case bytecode.OpDup:
		return 1, 2
	case bytecode.OpSwap:
		return 2, 2
	case bytecode.OpPick:
		return in.Arg + 1, in.Arg + 2
	case bytecode.OpNeg, bytecode.OpNot, bytecode.OpTrustDim, bytecode.OpTrustNorm,
		bytecode.OpLoadTrust, bytecode.OpResolveDID, bytecode.OpGetBalance:
		return 1, 1
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpMin, bytecode.OpMax,
		bytecode.OpEq, bytecode.OpNeq, bytecode.OpGt, bytecode.OpGte, bytecode.OpLt, bytecode.OpLte,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpTrustCombine, bytecode.OpHasCredential:
		return 2, 1
	case bytecode.OpTrustCreate:
		return 6, 1
	case bytecode.OpRequire:
		return 2, 0
	}
	return 0, 0
}

// minStackHeights returns, per instruction, a lower bound on the stack
// height whenever control reaches it, counting from an empty stack at
// entry. Instructions reached after a Call returns and unreachable ones
// get 0. An instruction that would underflow is treated as if the missing
// slots were present, so the bound stays a valid lower bound for every
// execution that gets past it.
func minStackHeights(p bytecode.Program) []int {
	const unseen = -1
	h := make([]int, len(p))
	for i := range h {
		h[i] = unseen
	}
	if len(p) == 0 {
		return h
	}

	var work []int
	reach := func(i, height int) {
		if i < 0 || i >= len(p) {
			return
		}
		if h[i] == unseen || height < h[i] {
			h[i] = height
			work = append(work, i)
		}
	}
	reach(0, 0)

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		in := p[i]

		needs, leaves := stackUse(in)
		out := max(h[i], needs) - needs + leaves

		switch in.Op {
		case bytecode.OpJump:
			reach(in.Arg, out)
		case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
			reach(in.Arg, out)
			reach(i+1, out)
		case bytecode.OpCall:
			reach(in.Arg, out)
			reach(i+1, 0)
		case bytecode.OpReturn, bytecode.OpHalt, bytecode.OpAbort:
		default:
			reach(i+1, out)
		}
	}

	for i := range h {
		if h[i] == unseen {
			h[i] = 0
		}
	}
	return h
}
