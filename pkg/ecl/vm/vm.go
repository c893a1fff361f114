package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
)

// Options configures a VM.
type Options struct {
	// Trace receives one line per executed instruction when non-nil.
	Trace io.Writer
	// Logger receives debug output for host calls. Defaults to slog.Default().
	Logger *slog.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	Value         bytecode.Value
	GasUsed       uint64
	ManaUsed      uint64
	StackDepthMax int
	// Logs holds the messages emitted by Log instructions, in order.
	Logs     []string
	Duration time.Duration
}

// VM runs programs. A VM holds no per-run state and may be shared.
type VM struct {
	opts Options
}

// New creates a VM.
func New(opts Options) *VM {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &VM{opts: opts}
}

// Run executes program with a default VM. initialStack is pushed in order
// before the first instruction.
func Run(ctx context.Context, program bytecode.Program, b *budget.Budget, h host.Host, initialStack ...bytecode.Value) (*Result, error) {
	return New(Options{}).Run(ctx, program, b, h, initialStack...)
}

// Run executes program against b and h.
func (v *VM) Run(ctx context.Context, program bytecode.Program, b *budget.Budget, h host.Host, initialStack ...bytecode.Value) (*Result, error) {
	if b == nil {
		b = budget.New(budget.DefaultLimits())
	}
	m := &machine{
		ctx:     ctx,
		program: program,
		budget:  b,
		host:    h,
		opts:    &v.opts,
		limit:   b.MaxStackDepth(),
		stack:   make([]bytecode.Value, 0, min(len(initialStack)+16, max(b.MaxStackDepth(), 1))),
	}
	if m.limit <= 0 {
		m.limit = budget.DefaultMaxStackDepth
	}
	if len(initialStack) > m.limit {
		return nil, &StackOverflowError{Limit: m.limit, Attempted: len(initialStack)}
	}
	m.stack = append(m.stack, initialStack...)
	m.maxDepth = len(m.stack)

	value, err := m.run()
	if err != nil {
		v.opts.Logger.Debug("ecl execution failed",
			"error", err,
			"ip", m.ip,
			"gas_used", b.GasUsed(),
		)
		return nil, err
	}
	return &Result{
		Value:         value,
		GasUsed:       b.GasUsed(),
		ManaUsed:      b.ManaUsed(),
		StackDepthMax: m.maxDepth,
		Logs:          m.logs,
		Duration:      b.Elapsed(),
	}, nil
}

type machine struct {
	ctx      context.Context
	program  bytecode.Program
	budget   *budget.Budget
	host     host.Host
	opts     *Options
	limit    int
	stack    []bytecode.Value
	calls    []int
	ip       int
	maxDepth int
	logs     []string
}

func (m *machine) run() (bytecode.Value, error) {
	for m.ip < len(m.program) {
		if err := m.checkDeadline(); err != nil {
			return bytecode.Value{}, err
		}

		at := m.ip
		in := m.program[at]
		m.ip++

		cost := in.Gas()
		if !m.budget.ConsumeGas(cost) {
			return bytecode.Value{}, &OutOfGasError{
				Limit:     m.budget.Limits().GasLimit,
				Attempted: m.budget.GasUsed() + cost,
			}
		}
		if m.opts.Trace != nil {
			fmt.Fprintf(m.opts.Trace, "%04d %-14s depth=%d gas=%d\n", at, in.Op, len(m.stack), m.budget.GasUsed())
		}

		done, err := m.step(in)
		if err != nil {
			var te *bytecode.TypeMismatchError
			if errors.As(err, &te) {
				return bytecode.Value{}, &TypeError{IP: at, Op: in.Op.String(), Err: err}
			}
			return bytecode.Value{}, err
		}
		if len(m.stack) > m.limit {
			return bytecode.Value{}, &StackOverflowError{Limit: m.limit, Attempted: len(m.stack)}
		}
		if len(m.stack) > m.maxDepth {
			m.maxDepth = len(m.stack)
		}
		if done {
			return m.popOrNull(), nil
		}
	}
	return m.popOrNull(), nil
}

func (m *machine) checkDeadline() error {
	if err := m.ctx.Err(); err != nil {
		return &TimeoutError{Limit: m.budget.Limits().Timeout, Elapsed: m.budget.Elapsed(), Cause: err}
	}
	if m.budget.TimedOut() {
		return &TimeoutError{Limit: m.budget.Limits().Timeout, Elapsed: m.budget.Elapsed()}
	}
	return nil
}

// step executes one instruction. It reports true when the run is complete.
func (m *machine) step(in bytecode.Instruction) (bool, error) {
	switch in.Op {
	case bytecode.OpPushConst:
		m.push(in.Const)
	case bytecode.OpPop:
		if _, err := m.pop(); err != nil {
			return false, err
		}
	case bytecode.OpDup:
		top, err := m.peek(0)
		if err != nil {
			return false, err
		}
		m.push(top)
	case bytecode.OpSwap:
		n := len(m.stack)
		if n < 2 {
			return false, ErrStackUnderflow
		}
		m.stack[n-1], m.stack[n-2] = m.stack[n-2], m.stack[n-1]
	case bytecode.OpPick:
		v, err := m.peek(in.Arg)
		if err != nil {
			return false, err
		}
		m.push(v)

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpMin, bytecode.OpMax:
		return false, m.arith(in.Op)
	case bytecode.OpNeg:
		n, err := m.popNumber()
		if err != nil {
			return false, err
		}
		m.push(bytecode.Number(-n))

	case bytecode.OpEq, bytecode.OpNeq:
		b, err := m.pop()
		if err != nil {
			return false, err
		}
		a, err := m.pop()
		if err != nil {
			return false, err
		}
		m.push(bytecode.Bool(a.Equal(b) == (in.Op == bytecode.OpEq)))
	case bytecode.OpGt, bytecode.OpGte, bytecode.OpLt, bytecode.OpLte:
		return false, m.compare(in.Op)

	case bytecode.OpAnd, bytecode.OpOr:
		b, err := m.popBool()
		if err != nil {
			return false, err
		}
		a, err := m.popBool()
		if err != nil {
			return false, err
		}
		if in.Op == bytecode.OpAnd {
			m.push(bytecode.Bool(a && b))
		} else {
			m.push(bytecode.Bool(a || b))
		}
	case bytecode.OpNot:
		a, err := m.popBool()
		if err != nil {
			return false, err
		}
		m.push(bytecode.Bool(!a))

	case bytecode.OpJump:
		return m.jump(in.Arg)
	case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
		cond, err := m.popBool()
		if err != nil {
			return false, err
		}
		if cond == (in.Op == bytecode.OpJumpIfTrue) {
			return m.jump(in.Arg)
		}
	case bytecode.OpCall:
		if len(m.calls) >= m.limit {
			return false, &StackOverflowError{Limit: m.limit, Attempted: len(m.calls) + 1}
		}
		m.calls = append(m.calls, m.ip)
		return m.jump(in.Arg)
	case bytecode.OpReturn:
		if n := len(m.calls); n > 0 {
			m.ip = m.calls[n-1]
			m.calls = m.calls[:n-1]
			return false, nil
		}
		return true, nil

	case bytecode.OpTrustDim:
		tv, err := m.popTrust()
		if err != nil {
			return false, err
		}
		d := bytecode.Dimension(in.Arg)
		if in.Arg < 0 || !d.Valid() {
			return false, &bytecode.InvalidProgramError{Index: m.ip - 1, Reason: fmt.Sprintf("invalid trust dimension %d", in.Arg)}
		}
		m.push(bytecode.Number(tv[d]))
	case bytecode.OpTrustNorm:
		tv, err := m.popTrust()
		if err != nil {
			return false, err
		}
		m.push(bytecode.Number(tv.Norm()))
	case bytecode.OpTrustCombine:
		tv2, err := m.popTrust()
		if err != nil {
			return false, err
		}
		tv1, err := m.popTrust()
		if err != nil {
			return false, err
		}
		m.push(bytecode.Trust(tv1.Combine(tv2)))
	case bytecode.OpTrustCreate:
		var tv bytecode.TrustVector
		for i := bytecode.NumDimensions - 1; i >= 0; i-- {
			n, err := m.popNumber()
			if err != nil {
				return false, err
			}
			tv[i] = n
		}
		m.push(bytecode.Trust(tv))

	case bytecode.OpLoadTrust, bytecode.OpHasCredential, bytecode.OpResolveDID,
		bytecode.OpGetBalance, bytecode.OpGetTimestamp, bytecode.OpLog:
		return false, m.hostCall(in.Op)

	case bytecode.OpAssert:
		ok, err := m.popBool()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, &PolicyRejectedError{Message: "assertion failed"}
		}
	case bytecode.OpRequire:
		msg, err := m.popString()
		if err != nil {
			return false, err
		}
		ok, err := m.popBool()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, &PolicyRejectedError{Message: msg}
		}

	case bytecode.OpHalt:
		return true, nil
	case bytecode.OpAbort:
		return false, ErrAborted

	default:
		return false, &bytecode.InvalidProgramError{Index: m.ip - 1, Reason: fmt.Sprintf("unknown opcode %d", in.Op)}
	}
	return false, nil
}

func (m *machine) arith(op bytecode.Op) error {
	b, err := m.popNumber()
	if err != nil {
		return err
	}
	a, err := m.popNumber()
	if err != nil {
		return err
	}
	var r float64
	switch op {
	case bytecode.OpAdd:
		r = a + b
	case bytecode.OpSub:
		r = a - b
	case bytecode.OpMul:
		r = a * b
	case bytecode.OpDiv:
		if b == 0 {
			return ErrDivisionByZero
		}
		r = a / b
	case bytecode.OpMod:
		if b == 0 {
			return ErrDivisionByZero
		}
		r = math.Mod(a, b)
	case bytecode.OpMin:
		r = math.Min(a, b)
	case bytecode.OpMax:
		r = math.Max(a, b)
	}
	m.push(bytecode.Number(r))
	return nil
}

func (m *machine) compare(op bytecode.Op) error {
	b, err := m.popNumber()
	if err != nil {
		return err
	}
	a, err := m.popNumber()
	if err != nil {
		return err
	}
	var r bool
	switch op {
	case bytecode.OpGt:
		r = a > b
	case bytecode.OpGte:
		r = a >= b
	case bytecode.OpLt:
		r = a < b
	case bytecode.OpLte:
		r = a <= b
	}
	m.push(bytecode.Bool(r))
	return nil
}

// jump moves to an absolute target. A target equal to the program length
// ends the run on the next loop check.
func (m *machine) jump(target int) (bool, error) {
	if target < 0 || target > len(m.program) {
		return false, fmt.Errorf("%w: %d", ErrInvalidJump, target)
	}
	m.ip = target
	return false, nil
}

func (m *machine) hostCall(op bytecode.Op) error {
	if m.host == nil {
		return &HostError{Op: op.String(), Err: host.ErrNotSupported}
	}
	ctx := m.ctx
	switch op {
	case bytecode.OpLoadTrust:
		did, err := m.popString()
		if err != nil {
			return err
		}
		tv, err := m.host.GetTrustVector(ctx, did)
		if err != nil {
			return m.hostErr(op, err)
		}
		m.push(bytecode.Trust(tv))
	case bytecode.OpHasCredential:
		schema, err := m.popString()
		if err != nil {
			return err
		}
		did, err := m.popString()
		if err != nil {
			return err
		}
		ok, err := m.host.HasCredential(ctx, did, schema)
		if err != nil {
			return m.hostErr(op, err)
		}
		m.push(bytecode.Bool(ok))
	case bytecode.OpResolveDID:
		did, err := m.popString()
		if err != nil {
			return err
		}
		ok, err := m.host.ResolveDID(ctx, did)
		if err != nil {
			return m.hostErr(op, err)
		}
		m.push(bytecode.Bool(ok))
	case bytecode.OpGetBalance:
		did, err := m.popString()
		if err != nil {
			return err
		}
		bal, err := m.host.GetBalance(ctx, did)
		if err != nil {
			return m.hostErr(op, err)
		}
		m.push(bytecode.Number(float64(bal)))
	case bytecode.OpGetTimestamp:
		ts, err := m.host.GetTimestamp(ctx)
		if err != nil {
			return m.hostErr(op, err)
		}
		m.push(bytecode.Number(float64(ts)))
	case bytecode.OpLog:
		msg, err := m.popString()
		if err != nil {
			return err
		}
		m.logs = append(m.logs, msg)
		m.host.Log(msg)
	}
	m.opts.Logger.Debug("ecl host call", "op", op.String(), "ip", m.ip-1)
	return nil
}

// hostErr wraps a host failure. Mana exhaustion reported by the host
// becomes OutOfManaError.
func (m *machine) hostErr(op bytecode.Op, err error) error {
	if errors.Is(err, host.ErrInsufficientMana) {
		return &OutOfManaError{Limit: m.budget.Limits().ManaLimit, Attempted: m.budget.ManaUsed()}
	}
	return &HostError{Op: op.String(), Err: err}
}

func (m *machine) push(v bytecode.Value) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop() (bytecode.Value, error) {
	n := len(m.stack)
	if n == 0 {
		return bytecode.Value{}, ErrStackUnderflow
	}
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	return v, nil
}

// peek returns the value depth slots below the top.
func (m *machine) peek(depth int) (bytecode.Value, error) {
	idx := len(m.stack) - depth - 1
	if depth < 0 || idx < 0 {
		return bytecode.Value{}, ErrStackUnderflow
	}
	return m.stack[idx], nil
}

func (m *machine) popOrNull() bytecode.Value {
	v, err := m.pop()
	if err != nil {
		return bytecode.Null()
	}
	return v
}

func (m *machine) popNumber() (float64, error) {
	v, err := m.pop()
	if err != nil {
		return 0, err
	}
	return v.AsNumber()
}

func (m *machine) popBool() (bool, error) {
	v, err := m.pop()
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

func (m *machine) popString() (string, error) {
	v, err := m.pop()
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (m *machine) popTrust() (bytecode.TrustVector, error) {
	v, err := m.pop()
	if err != nil {
		return bytecode.TrustVector{}, err
	}
	return v.AsTrustVector()
}
