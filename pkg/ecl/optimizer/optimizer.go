package optimizer

import "erynoa/eclvm/pkg/ecl/bytecode"

// Options selects passes.
type Options struct {
	ConstantFolding     bool
	Peephole            bool
	DeadCodeElimination bool

	// MaxRounds bounds the number of fold/peephole/DCE rounds. Every
	// rewrite shrinks the program, so the loop also ends on its own once a
	// round makes no change. Zero means unbounded.
	MaxRounds int
}

// DefaultOptions enables every pass.
func DefaultOptions() Options {
	return Options{
		ConstantFolding:     true,
		Peephole:            true,
		DeadCodeElimination: true,
		MaxRounds:           16,
	}
}

// Stats reports what an optimization run did.
type Stats struct {
	OriginalSize  int
	OptimizedSize int
	OriginalGas   uint64
	OptimizedGas  uint64
	Rounds        int
	Folded        int
	PeepholeEdits int
	DeadRemoved   int
}

// SavingsPercent is the relative reduction in instruction count.
func (s Stats) SavingsPercent() float64 {
	if s.OriginalSize == 0 {
		return 0
	}
	return float64(s.OriginalSize-s.OptimizedSize) / float64(s.OriginalSize) * 100
}

// Optimizer applies the configured passes.
type Optimizer struct {
	opts Options
}

// New creates an optimizer.
func New(opts Options) *Optimizer {
	return &Optimizer{opts: opts}
}

// Optimize returns an optimized copy of p; p itself is not modified.
func (o *Optimizer) Optimize(p bytecode.Program) (bytecode.Program, Stats) {
	stats := Stats{OriginalSize: len(p), OriginalGas: bytecode.EstimateGas(p)}
	cur := p.Clone()

	for o.opts.MaxRounds == 0 || stats.Rounds < o.opts.MaxRounds {
		changed := 0
		if o.opts.ConstantFolding {
			for {
				var n int
				cur, n = foldPass(cur)
				if n == 0 {
					break
				}
				stats.Folded += n
				changed += n
			}
		}
		if o.opts.Peephole {
			for {
				var n int
				cur, n = peepholePass(cur)
				if n == 0 {
					break
				}
				stats.PeepholeEdits += n
				changed += n
			}
		}
		if o.opts.DeadCodeElimination {
			var n int
			cur, n = dcePass(cur)
			stats.DeadRemoved += n
			changed += n
		}
		stats.Rounds++
		if changed == 0 {
			break
		}
	}

	stats.OptimizedSize = len(cur)
	stats.OptimizedGas = bytecode.EstimateGas(cur)
	return cur, stats
}

// Optimize runs all passes with default options.
func Optimize(p bytecode.Program) bytecode.Program {
	out, _ := New(DefaultOptions()).Optimize(p)
	return out
}
