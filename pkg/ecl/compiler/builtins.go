package compiler

import "erynoa/eclvm/pkg/ecl/bytecode"

type builtin struct {
	argc int
	op   bytecode.Op
	// void builtins leave nothing on the stack; a Null is pushed when they
	// are used as expressions.
	void bool
}

var builtins = map[string]builtin{
	"credential":     {argc: 2, op: bytecode.OpHasCredential},
	"has_credential": {argc: 2, op: bytecode.OpHasCredential},
	"balance":        {argc: 1, op: bytecode.OpGetBalance},
	"timestamp":      {argc: 0, op: bytecode.OpGetTimestamp},
	"resolve":        {argc: 1, op: bytecode.OpResolveDID},
	"trust":          {argc: 1, op: bytecode.OpLoadTrust},
	"norm":           {argc: 1, op: bytecode.OpTrustNorm},
	"combine":        {argc: 2, op: bytecode.OpTrustCombine},
	"trust_vector":   {argc: 6, op: bytecode.OpTrustCreate},
	"min":            {argc: 2, op: bytecode.OpMin},
	"max":            {argc: 2, op: bytecode.OpMax},
	"log":            {argc: 1, op: bytecode.OpLog, void: true},
}

// Builtins returns the names of all callable functions.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

var knownFields = []string{"trust"}

// stackEffect is the net change in stack height caused by an instruction
// that falls through.
func stackEffect(in bytecode.Instruction) int {
	switch in.Op {
	case bytecode.OpPushConst, bytecode.OpDup, bytecode.OpPick, bytecode.OpGetTimestamp:
		return 1
	case bytecode.OpSwap, bytecode.OpNeg, bytecode.OpNot, bytecode.OpJump,
		bytecode.OpTrustDim, bytecode.OpTrustNorm, bytecode.OpLoadTrust,
		bytecode.OpResolveDID, bytecode.OpGetBalance, bytecode.OpHalt, bytecode.OpAbort:
		return 0
	case bytecode.OpTrustCreate:
		return -5
	case bytecode.OpRequire:
		return -2
	case bytecode.OpCall:
		return 0
	}
	// Binary operators, conditional jumps, Pop, Log, Assert, Return,
	// TrustCombine and HasCredential all consume one net slot.
	return -1
}
