package optimizer

import "erynoa/eclvm/pkg/ecl/bytecode"

// edit replaces n instructions starting at start with repl (nil deletes them).
type edit struct {
	start int
	n     int
	repl  *bytecode.Instruction
}

// jumpTargets returns the set of indices some instruction can jump or call to.
func jumpTargets(p bytecode.Program) map[int]bool {
	targets := make(map[int]bool)
	for _, in := range p {
		if t, ok := in.Target(); ok {
			targets[t] = true
		}
	}
	return targets
}

// spansTarget reports whether a jump lands strictly inside [start, start+n).
func spansTarget(targets map[int]bool, start, n int) bool {
	for i := start + 1; i < start+n; i++ {
		if targets[i] {
			return true
		}
	}
	return false
}

// apply performs non-overlapping edits sorted by start and remaps targets.
// A target pointing at a removed instruction moves to the next surviving
// one, which is where control would have arrived after the removed no-op.
func apply(p bytecode.Program, edits []edit) bytecode.Program {
	if len(edits) == 0 {
		return p
	}
	keep := make([]bool, len(p))
	for i := range keep {
		keep[i] = true
	}
	repl := make(map[int]bytecode.Instruction)
	for _, e := range edits {
		for i := e.start; i < e.start+e.n; i++ {
			keep[i] = false
		}
		if e.repl != nil {
			keep[e.start] = true
			repl[e.start] = *e.repl
		}
	}
	return rebuild(p, keep, repl)
}

func rebuild(p bytecode.Program, keep []bool, repl map[int]bytecode.Instruction) bytecode.Program {
	// newIndex[i] is the number of kept instructions before i; for a kept
	// i that is its new position, for a removed i the position of the
	// next kept instruction. newIndex[len(p)] is the new end.
	newIndex := make([]int, len(p)+1)
	n := 0
	for i := range p {
		newIndex[i] = n
		if keep[i] {
			n++
		}
	}
	newIndex[len(p)] = n

	out := make(bytecode.Program, 0, n)
	for i, in := range p {
		if !keep[i] {
			continue
		}
		if r, ok := repl[i]; ok {
			in = r
		}
		if t, ok := in.Target(); ok && t >= 0 && t <= len(p) {
			in = in.WithTarget(newIndex[t])
		}
		out = append(out, in)
	}
	return out
}
