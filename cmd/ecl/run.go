package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/runner"
	"erynoa/eclvm/pkg/ecl/vm"
)

var runFlags struct {
	context  string
	gasLimit uint64
	trace    bool
	policy   string
	noOpt    bool
	format   string
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a policy against a caller context",
	Long: `Run a policy from an .ecl source file or a compiled .eclb blob.

The caller identity and the facts visible to the policy come from a JSON
context file. Without one the caller is did:erynoa:cli with newcomer trust.

The exit code is 0 when the policy allows, 2 when it denies and 4 when it
runs out of gas, mana, stack or time.

Examples:
  # Run the only policy of a file
  ecl run entry.ecl

  # Pick a policy and trace every instruction
  ecl run realms.ecl --policy finance_entry --context alice.json --trace

  # Run a compiled blob with a tight gas limit
  ecl run finance.eclb --gas-limit 200 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicy,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.context, "context", "", "JSON file with the caller and known identities")
	runCmd.Flags().Uint64Var(&runFlags.gasLimit, "gas-limit", 0, "gas limit (default engine.gas_limit)")
	runCmd.Flags().BoolVar(&runFlags.trace, "trace", false, "print one line per executed instruction to stderr")
	runCmd.Flags().StringVarP(&runFlags.policy, "policy", "p", "", "policy to run when the file defines several")
	runCmd.Flags().BoolVar(&runFlags.noOpt, "no-opt", false, "skip the optimizer for source files")
	runCmd.Flags().StringVar(&runFlags.format, "format", "text", "output format: text, json")
}

// RunReport is the printed outcome of a run.
type RunReport struct {
	Policy         string   `json:"policy"`
	Caller         string   `json:"caller"`
	Value          string   `json:"value"`
	Allowed        *bool    `json:"allowed,omitempty"`
	Message        string   `json:"message,omitempty"`
	GasUsed        uint64   `json:"gas_used"`
	ManaUsed       uint64   `json:"mana_used"`
	DurationMicros uint64   `json:"duration_us"`
	ExecutionID    string   `json:"execution_id,omitempty"`
	Logs           []string `json:"logs,omitempty"`
}

func (r RunReport) String() string {
	var sb strings.Builder
	verdict := "value"
	if r.Allowed != nil {
		verdict = "denied"
		if *r.Allowed {
			verdict = "allowed"
		}
	}
	fmt.Fprintf(&sb, "%s: %s", verdict, r.Value)
	if r.Message != "" {
		fmt.Fprintf(&sb, " (%s)", r.Message)
	}
	fmt.Fprintf(&sb, "\npolicy %s, caller %s\ngas %d, mana %d, %dµs", r.Policy, r.Caller, r.GasUsed, r.ManaUsed, r.DurationMicros)
	for _, l := range r.Logs {
		fmt.Fprintf(&sb, "\nlog: %s", l)
	}
	return sb.String()
}

func runPolicy(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(runFlags.format)
	if err != nil {
		return err
	}
	cfg := runtimeConfig()
	optimize := cfg.Engine.OptimizeEnabled() && !runFlags.noOpt

	prog, name, err := loadProgram(args[0], runFlags.policy, optimize, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	rc, err := loadRunContext(runFlags.context)
	if err != nil {
		return err
	}
	h, err := rc.stubHost()
	if err != nil {
		return err
	}

	limits := cfg.Engine.Limits()
	if runFlags.gasLimit > 0 {
		limits.GasLimit = runFlags.gasLimit
	}
	opts := vm.Options{Logger: runtimeLogger()}
	if runFlags.trace {
		opts.Trace = cmd.ErrOrStderr()
	}
	r := runner.New(runner.WithVM(vm.New(opts)), runner.WithLogger(runtimeLogger()))

	report := RunReport{Policy: name, Caller: rc.Caller}
	res, err := r.Run(commandContext(cmd), prog, h, runner.WithLimits(rc.Caller, rc.Realm, limits).WithPolicy(name, "cli"))
	var rejected *vm.PolicyRejectedError
	switch {
	case errors.As(err, &rejected):
		denied := false
		report.Allowed = &denied
		report.Value = bytecode.Bool(false).String()
		report.Message = rejected.Message
	case err != nil:
		return err
	default:
		report.Value = res.Value.String()
		report.GasUsed = res.GasUsed
		report.ManaUsed = res.ManaUsed
		report.DurationMicros = res.DurationMicros
		report.ExecutionID = res.ExecutionID
		report.Logs = res.Logs
		if b, err := res.Value.AsBool(); err == nil {
			report.Allowed = &b
		}
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Allowed != nil && !*report.Allowed {
		return cli.ErrDenied
	}
	return nil
}
