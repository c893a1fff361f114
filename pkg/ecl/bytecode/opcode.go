package bytecode

import "fmt"

// Op is an ECL opcode.
type Op uint8

const (
	// Stack
	OpPushConst Op = iota
	OpPop
	OpDup
	OpSwap
	OpPick

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpMin
	OpMax

	// Comparison
	OpEq
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte

	// Logic
	OpAnd
	OpOr
	OpNot

	// Control flow
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpCall
	OpReturn

	// Trust
	OpTrustDim
	OpTrustNorm
	OpTrustCombine
	OpTrustCreate

	// Host
	OpLoadTrust
	OpHasCredential
	OpResolveDID
	OpGetBalance
	OpGetTimestamp
	OpLog

	// Assertions
	OpAssert
	OpRequire

	// Termination
	OpHalt
	OpAbort

	opCount
)

type opInfo struct {
	name string
	gas  uint64
}

var opTable = [opCount]opInfo{
	OpPushConst:     {"PushConst", 1},
	OpPop:           {"Pop", 1},
	OpDup:           {"Dup", 1},
	OpSwap:          {"Swap", 1},
	OpPick:          {"Pick", 2},
	OpAdd:           {"Add", 2},
	OpSub:           {"Sub", 2},
	OpMul:           {"Mul", 3},
	OpDiv:           {"Div", 5},
	OpMod:           {"Mod", 5},
	OpNeg:           {"Neg", 1},
	OpMin:           {"Min", 2},
	OpMax:           {"Max", 2},
	OpEq:            {"Eq", 2},
	OpNeq:           {"Neq", 2},
	OpGt:            {"Gt", 2},
	OpGte:           {"Gte", 2},
	OpLt:            {"Lt", 2},
	OpLte:           {"Lte", 2},
	OpAnd:           {"And", 2},
	OpOr:            {"Or", 2},
	OpNot:           {"Not", 1},
	OpJump:          {"Jump", 1},
	OpJumpIfFalse:   {"JumpIfFalse", 2},
	OpJumpIfTrue:    {"JumpIfTrue", 2},
	OpCall:          {"Call", 10},
	OpReturn:        {"Return", 5},
	OpTrustDim:      {"TrustDim", 3},
	OpTrustNorm:     {"TrustNorm", 10},
	OpTrustCombine:  {"TrustCombine", 15},
	OpTrustCreate:   {"TrustCreate", 8},
	OpLoadTrust:     {"LoadTrust", 100},
	OpHasCredential: {"HasCredential", 50},
	OpResolveDID:    {"ResolveDID", 50},
	OpGetBalance:    {"GetBalance", 50},
	OpGetTimestamp:  {"GetTimestamp", 5},
	OpLog:           {"Log", 20},
	OpAssert:        {"Assert", 3},
	OpRequire:       {"Require", 5},
	OpHalt:          {"Halt", 0},
	OpAbort:         {"Abort", 0},
}

// Valid reports whether op is a known opcode.
func (op Op) Valid() bool { return op < opCount }

// Gas returns the static gas cost charged before the opcode executes.
func (op Op) Gas() uint64 {
	if !op.Valid() {
		return 0
	}
	return opTable[op].gas
}

func (op Op) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Op(%d)", uint8(op))
	}
	return opTable[op].name
}

// IsJump reports whether the opcode carries an absolute instruction target.
func (op Op) IsJump() bool {
	switch op {
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpCall:
		return true
	}
	return false
}

// IsTerminator reports whether control never falls through the opcode.
func (op Op) IsTerminator() bool {
	switch op {
	case OpReturn, OpHalt, OpAbort, OpJump:
		return true
	}
	return false
}

// Instruction is a single decoded ECL instruction.
//
// Operand usage by opcode:
//   - PushConst: Const
//   - Pick: Arg is the depth, 0 being the top of the stack
//   - Jump, JumpIfFalse, JumpIfTrue: Arg is the absolute target
//   - Call: Arg is the absolute target, Argc the argument count
//   - TrustDim: Arg is the Dimension
type Instruction struct {
	Op    Op
	Const Value
	Arg   int
	Argc  int
}

// Simple returns an operand-less instruction.
func Simple(op Op) Instruction { return Instruction{Op: op} }

// Push returns a PushConst instruction.
func Push(v Value) Instruction { return Instruction{Op: OpPushConst, Const: v} }

// Pick copies the stack element depth slots below the top.
func Pick(depth int) Instruction { return Instruction{Op: OpPick, Arg: depth} }

// Jump returns an unconditional jump.
func Jump(target int) Instruction { return Instruction{Op: OpJump, Arg: target} }

// JumpIfFalse returns a jump taken when the popped condition is false.
func JumpIfFalse(target int) Instruction { return Instruction{Op: OpJumpIfFalse, Arg: target} }

// JumpIfTrue returns a jump taken when the popped condition is true.
func JumpIfTrue(target int) Instruction { return Instruction{Op: OpJumpIfTrue, Arg: target} }

// Call returns a subroutine call.
func Call(target, argc int) Instruction { return Instruction{Op: OpCall, Arg: target, Argc: argc} }

// TrustDim extracts one dimension from a trust vector.
func TrustDim(d Dimension) Instruction { return Instruction{Op: OpTrustDim, Arg: int(d)} }

// Gas returns the static cost of the instruction.
func (in Instruction) Gas() uint64 { return in.Op.Gas() }

// Target returns the jump or call target and whether the instruction has one.
func (in Instruction) Target() (int, bool) {
	if in.Op.IsJump() {
		return in.Arg, true
	}
	return 0, false
}

// WithTarget returns a copy of a jump or call with its target replaced.
func (in Instruction) WithTarget(target int) Instruction {
	in.Arg = target
	return in
}

// Equal compares two instructions operand by operand.
func (in Instruction) Equal(o Instruction) bool {
	if in.Op != o.Op {
		return false
	}
	switch in.Op {
	case OpPushConst:
		return in.Const.identical(o.Const)
	case OpCall:
		return in.Arg == o.Arg && in.Argc == o.Argc
	case OpPick, OpJump, OpJumpIfFalse, OpJumpIfTrue, OpTrustDim:
		return in.Arg == o.Arg
	}
	return true
}

func (in Instruction) String() string {
	switch in.Op {
	case OpPushConst:
		return fmt.Sprintf("%s %s", in.Op, in.Const)
	case OpPick, OpJump, OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	case OpCall:
		return fmt.Sprintf("%s %d %d", in.Op, in.Arg, in.Argc)
	case OpTrustDim:
		return fmt.Sprintf("%s %s", in.Op, Dimension(in.Arg))
	}
	return in.Op.String()
}
