package bytecode

import (
	"fmt"
	"strings"
)

// Program is a compiled instruction sequence.
type Program []Instruction

// EstimateGas returns the sum of static instruction costs. It is an upper
// bound only for straight-line programs; loops via Call are not unrolled.
func EstimateGas(p Program) uint64 {
	var total uint64
	for _, in := range p {
		total += in.Gas()
	}
	return total
}

// Clone returns an independent copy of the program.
func (p Program) Clone() Program {
	cp := make(Program, len(p))
	copy(cp, p)
	return cp
}

// Equal reports whether two programs contain identical instructions.
func (p Program) Equal(o Program) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if !p[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Validate checks opcodes and operands without executing anything.
// A jump to len(p) is allowed and ends execution.
func (p Program) Validate() error {
	for i, in := range p {
		if !in.Op.Valid() {
			return &InvalidProgramError{Index: i, Reason: fmt.Sprintf("unknown opcode %d", uint8(in.Op))}
		}
		switch in.Op {
		case OpPick:
			if in.Arg < 0 || in.Arg > 255 {
				return &InvalidProgramError{Index: i, Reason: fmt.Sprintf("pick depth %d out of range", in.Arg)}
			}
		case OpTrustDim:
			if !Dimension(in.Arg).Valid() {
				return &InvalidProgramError{Index: i, Reason: fmt.Sprintf("trust dimension %d out of range", in.Arg)}
			}
		case OpCall:
			if in.Argc < 0 || in.Argc > 255 {
				return &InvalidProgramError{Index: i, Reason: fmt.Sprintf("argument count %d out of range", in.Argc)}
			}
		}
		if t, ok := in.Target(); ok && (t < 0 || t > len(p)) {
			return &InvalidProgramError{Index: i, Reason: fmt.Sprintf("target %d outside program of length %d", t, len(p))}
		}
	}
	return nil
}

// Disassemble renders one instruction per line with its index and gas cost.
func (p Program) Disassemble() string {
	var b strings.Builder
	for i, in := range p {
		fmt.Fprintf(&b, "%04d  %-28s ; gas %d\n", i, in.String(), in.Gas())
	}
	return b.String()
}

func (p Program) String() string {
	parts := make([]string, len(p))
	for i, in := range p {
		parts[i] = in.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
