package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/runner"
	"erynoa/eclvm/pkg/ecl/vm"
)

var benchFlags struct {
	context     string
	policy      string
	iterations  int
	concurrency int
	progress    bool
}

var benchCmd = &cobra.Command{
	Use:   "bench <file>",
	Short: "Measure policy execution latency",
	Long: `Run a policy repeatedly and report latency percentiles and gas use.

Each iteration runs the program in a fresh VM against the same caller
context. Denials count as completed runs; resource errors count as
failures.

Examples:
  ecl bench policies/finance.ecl --iterations 10000 --concurrency 8
  ecl bench finance.eclb --context alice.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVar(&benchFlags.context, "context", "", "JSON file with the caller and known identities")
	benchCmd.Flags().StringVarP(&benchFlags.policy, "policy", "p", "", "policy to run when the file defines several")
	benchCmd.Flags().IntVarP(&benchFlags.iterations, "iterations", "n", 1000, "number of runs")
	benchCmd.Flags().IntVarP(&benchFlags.concurrency, "concurrency", "c", 1, "concurrent runners")
	benchCmd.Flags().BoolVar(&benchFlags.progress, "progress", false, "show a progress bar")
}

type benchResults struct {
	runs      int
	failed    int64
	denied    int64
	gas       uint64
	duration  time.Duration
	latencies []time.Duration
	firstErr  error
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchFlags.iterations <= 0 || benchFlags.concurrency <= 0 {
		return fmt.Errorf("iterations and concurrency must be positive")
	}
	cfg := runtimeConfig()
	prog, name, err := loadProgram(args[0], benchFlags.policy, cfg.Engine.OptimizeEnabled(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	rc, err := loadRunContext(benchFlags.context)
	if err != nil {
		return err
	}
	h, err := rc.stubHost()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	limits := cfg.Engine.Limits()
	r := runner.New(runner.WithIDSource(&runner.SequenceSource{Prefix: "bench"}), runner.WithLogger(runtimeLogger()))

	var progress cli.ProgressReporter
	if benchFlags.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "runs")
		progress.Start(int64(benchFlags.iterations))
	}

	res := &benchResults{runs: benchFlags.iterations, latencies: make([]time.Duration, benchFlags.iterations)}
	var (
		next    atomic.Int64
		done    atomic.Int64
		gasOnce sync.Once
		errOnce sync.Once
		wg      sync.WaitGroup
	)
	start := time.Now()
	for range benchFlags.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= benchFlags.iterations || ctx.Err() != nil {
					return
				}
				t := time.Now()
				runCtx := runner.WithLimits(rc.Caller, rc.Realm, limits).WithPolicy(name, "bench")
				out, err := r.Run(ctx, prog, h, runCtx)
				res.latencies[i] = time.Since(t)

				var rejected *vm.PolicyRejectedError
				switch {
				case errors.As(err, &rejected):
					atomic.AddInt64(&res.denied, 1)
				case err != nil:
					atomic.AddInt64(&res.failed, 1)
					errOnce.Do(func() { res.firstErr = err })
				default:
					if b, err := out.Value.AsBool(); err == nil && !b {
						atomic.AddInt64(&res.denied, 1)
					}
					gasOnce.Do(func() { res.gas = out.GasUsed })
				}
				if progress != nil {
					progress.Update(done.Add(1))
				}
			}
		}()
	}
	wg.Wait()
	res.duration = time.Since(start)
	if progress != nil {
		progress.Finish()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	displayBench(cmd.OutOrStdout(), name, res)
	if res.failed == int64(res.runs) {
		return fmt.Errorf("every run failed: %w", res.firstErr)
	}
	return nil
}

func displayBench(w io.Writer, name string, res *benchResults) {
	fmt.Fprintf(w, "Policy:      %s\n", name)
	fmt.Fprintf(w, "Runs:        %d total, %d denied, %d failed\n", res.runs, res.denied, res.failed)
	fmt.Fprintf(w, "Gas:         %d per run\n", res.gas)
	fmt.Fprintf(w, "Duration:    %s\n", res.duration.Round(time.Millisecond))
	if secs := res.duration.Seconds(); secs > 0 {
		fmt.Fprintf(w, "Throughput:  %.0f runs/s\n", float64(res.runs)/secs)
	}
	if res.firstErr != nil {
		fmt.Fprintf(w, "First error: %v\n", res.firstErr)
	}

	p := percentiles(res.latencies)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Latency:")
	fmt.Fprintf(w, "  Min:     %s\n", p.min)
	fmt.Fprintf(w, "  Mean:    %s\n", p.mean)
	fmt.Fprintf(w, "  Median:  %s\n", p.median)
	fmt.Fprintf(w, "  p95:     %s\n", p.p95)
	fmt.Fprintf(w, "  p99:     %s\n", p.p99)
	fmt.Fprintf(w, "  Max:     %s\n", p.max)
}

type latencyStats struct {
	min, mean, median, p95, p99, max time.Duration
}

func percentiles(latencies []time.Duration) latencyStats {
	if len(latencies) == 0 {
		return latencyStats{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	at := func(q float64) time.Duration {
		return sorted[min(int(float64(len(sorted))*q), len(sorted)-1)]
	}
	return latencyStats{
		min:    sorted[0],
		mean:   sum / time.Duration(len(sorted)),
		median: at(0.5),
		p95:    at(0.95),
		p99:    at(0.99),
		max:    sorted[len(sorted)-1],
	}
}
