package optimizer

import "erynoa/eclvm/pkg/ecl/bytecode"

// successors lists the indices control may reach after executing p[i].
func successors(p bytecode.Program, i int) []int {
	in := p[i]
	switch in.Op {
	case bytecode.OpReturn, bytecode.OpHalt, bytecode.OpAbort:
		return nil
	case bytecode.OpJump:
		return []int{in.Arg}
	case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue, bytecode.OpCall:
		return []int{in.Arg, i + 1}
	}
	return []int{i + 1}
}

// reachable marks every instruction reachable from index 0.
func reachable(p bytecode.Program) []bool {
	seen := make([]bool, len(p))
	if len(p) == 0 {
		return seen
	}
	work := []int{0}
	seen[0] = true
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range successors(p, i) {
			if s >= 0 && s < len(p) && !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}
	return seen
}

// dcePass drops unreachable instructions. It returns the rewritten
// program and the number of instructions removed.
func dcePass(p bytecode.Program) (bytecode.Program, int) {
	keep := reachable(p)
	removed := 0
	for _, k := range keep {
		if !k {
			removed++
		}
	}
	if removed == 0 {
		return p, 0
	}
	return rebuild(p, keep, nil), removed
}
