// Package budget provides the shared resource ledger consulted by the VM
// on every instruction.
//
// A Budget tracks gas (CPU metering), mana (bandwidth charged by host
// side effects such as store writes), the maximum stack depth and a
// wall-clock timeout. Consumption is lock-free: counters are advanced with
// compare-and-swap so that used never exceeds limit at any observation
// point, even when several goroutines share one Budget for sub-executions
// of the same request.
//
// A failed consumption permanently exhausts the resource for this Budget;
// callers start a new run with a fresh Budget instead of topping one up.
package budget

import (
	"math"
	"sync/atomic"
	"time"
)

// Defaults used by DefaultLimits and WithGasLimit.
const (
	DefaultGasLimit      uint64 = 50_000
	DefaultManaLimit     uint64 = 10_000
	DefaultMaxStackDepth        = 1024
	DefaultTimeout              = 5 * time.Second
)

// Limits is the construction input of a Budget.
type Limits struct {
	GasLimit      uint64
	ManaLimit     uint64
	MaxStackDepth int
	// Timeout of zero disables the wall-clock deadline.
	Timeout time.Duration
}

// DefaultLimits returns the engine defaults.
func DefaultLimits() Limits {
	return Limits{
		GasLimit:      DefaultGasLimit,
		ManaLimit:     DefaultManaLimit,
		MaxStackDepth: DefaultMaxStackDepth,
		Timeout:       DefaultTimeout,
	}
}

// ScaledByTrust scales gas and mana by 0.5 + r, with r clamped to [0, 1].
// A newcomer (r = 0) gets half the configured limits and a fully trusted
// identity one and a half times. Results never drop below 1.
func (l Limits) ScaledByTrust(r float64) Limits {
	if math.IsNaN(r) {
		r = 0
	}
	r = math.Max(0, math.Min(1, r))
	factor := 0.5 + r
	scale := func(v uint64) uint64 {
		return max(uint64(math.Round(float64(v)*factor)), 1)
	}
	l.GasLimit = scale(l.GasLimit)
	l.ManaLimit = scale(l.ManaLimit)
	return l
}

// Option customizes a Budget.
type Option func(*Budget)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Budget) { b.now = now }
}

// Budget is a thread-safe gas/mana/time ledger for one logical request.
type Budget struct {
	limits Limits
	start  time.Time
	now    func() time.Time

	gasUsed  atomic.Uint64
	manaUsed atomic.Uint64

	gasExhausted  atomic.Bool
	manaExhausted atomic.Bool
}

// New creates a Budget. A zero MaxStackDepth is replaced by the default.
func New(l Limits, opts ...Option) *Budget {
	if l.MaxStackDepth <= 0 {
		l.MaxStackDepth = DefaultMaxStackDepth
	}
	b := &Budget{limits: l, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	b.start = b.now()
	return b
}

// WithGasLimit creates a Budget with the given gas limit and default
// mana, stack depth and timeout.
func WithGasLimit(gas uint64) *Budget {
	l := DefaultLimits()
	l.GasLimit = gas
	return New(l)
}

// Limits returns the limits the Budget was created with.
func (b *Budget) Limits() Limits { return b.limits }

// ConsumeGas deducts amount and reports whether it fit.
func (b *Budget) ConsumeGas(amount uint64) bool {
	return consume(&b.gasUsed, &b.gasExhausted, b.limits.GasLimit, amount)
}

// ConsumeMana deducts amount and reports whether it fit.
func (b *Budget) ConsumeMana(amount uint64) bool {
	return consume(&b.manaUsed, &b.manaExhausted, b.limits.ManaLimit, amount)
}

func consume(used *atomic.Uint64, exhausted *atomic.Bool, limit, amount uint64) bool {
	for {
		if exhausted.Load() {
			return false
		}
		cur := used.Load()
		if amount > limit-cur {
			exhausted.Store(true)
			return false
		}
		if used.CompareAndSwap(cur, cur+amount) {
			return true
		}
	}
}

// GasUsed returns the gas consumed so far.
func (b *Budget) GasUsed() uint64 { return b.gasUsed.Load() }

// ManaUsed returns the mana consumed so far.
func (b *Budget) ManaUsed() uint64 { return b.manaUsed.Load() }

// GasRemaining returns the gas still available, zero once exhausted.
func (b *Budget) GasRemaining() uint64 {
	if b.gasExhausted.Load() {
		return 0
	}
	return b.limits.GasLimit - b.gasUsed.Load()
}

// ManaRemaining returns the mana still available, zero once exhausted.
func (b *Budget) ManaRemaining() uint64 {
	if b.manaExhausted.Load() {
		return 0
	}
	return b.limits.ManaLimit - b.manaUsed.Load()
}

// MaxStackDepth returns the stack bound enforced by the VM.
func (b *Budget) MaxStackDepth() int { return b.limits.MaxStackDepth }

// Elapsed returns the time since the Budget was created.
func (b *Budget) Elapsed() time.Duration { return b.now().Sub(b.start) }

// TimeRemaining returns the time left before the deadline. It is zero
// after the deadline and the maximum duration when no timeout is set.
func (b *Budget) TimeRemaining() time.Duration {
	if b.limits.Timeout <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return max(b.limits.Timeout-b.Elapsed(), 0)
}

// TimedOut reports whether the deadline has passed.
func (b *Budget) TimedOut() bool {
	return b.limits.Timeout > 0 && b.Elapsed() > b.limits.Timeout
}

// GasExhausted reports whether a gas consumption has failed.
func (b *Budget) GasExhausted() bool { return b.gasExhausted.Load() }

// ManaExhausted reports whether a mana consumption has failed.
func (b *Budget) ManaExhausted() bool { return b.manaExhausted.Load() }

// IsExhausted reports whether any resource ran out.
func (b *Budget) IsExhausted() bool {
	return b.gasExhausted.Load() || b.manaExhausted.Load() || b.TimedOut()
}

// Snapshot is a point-in-time view of a Budget.
type Snapshot struct {
	GasUsed       uint64
	GasLimit      uint64
	ManaUsed      uint64
	ManaLimit     uint64
	Elapsed       time.Duration
	Timeout       time.Duration
	MaxStackDepth int
	Exhausted     bool
}

// Snapshot captures the current counters.
func (b *Budget) Snapshot() Snapshot {
	return Snapshot{
		GasUsed:       b.GasUsed(),
		GasLimit:      b.limits.GasLimit,
		ManaUsed:      b.ManaUsed(),
		ManaLimit:     b.limits.ManaLimit,
		Elapsed:       b.Elapsed(),
		Timeout:       b.limits.Timeout,
		MaxStackDepth: b.limits.MaxStackDepth,
		Exhausted:     b.IsExhausted(),
	}
}
