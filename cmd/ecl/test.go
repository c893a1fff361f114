package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/compiler"
	"erynoa/eclvm/pkg/ecl/runner"
	"erynoa/eclvm/pkg/ecl/vm"
)

var testFlags struct {
	policyFile string
	testsFile  string
	format     string
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run policy test cases",
	Long: `Run every case of a YAML test file against the policies of a source file.

Test Case Format (YAML):
  tests:
    - name: "verified member enters finance"
      policy: finance_entry      # optional when the file defines one policy
      caller: did:erynoa:alice
      trust: [0.8, 0.7, 0.6, 0.5, 0.5, 0.5]
      credentials: [kyc]
      identities:
        did:erynoa:bob: {trust: [0.2, 0.2, 0.2, 0.2, 0.2, 0.2]}
      expect:
        outcome: allow           # allow, deny or error
        message: ""              # optional substring of the deny message
        max_gas: 500             # optional gas ceiling

Examples:
  ecl test --policy policies/finance.ecl --tests policies/finance_test.yaml
  ecl test -p finance.ecl -t cases.yaml --format json`,
	RunE: runTests,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVarP(&testFlags.policyFile, "policy", "p", "", "ECL source file to test")
	testCmd.Flags().StringVarP(&testFlags.testsFile, "tests", "t", "", "YAML test case file")
	testCmd.Flags().StringVar(&testFlags.format, "format", "text", "output format: text, json")

	if err := testCmd.MarkFlagRequired("policy"); err != nil {
		panic(fmt.Sprintf("failed to mark policy flag as required: %v", err))
	}
	if err := testCmd.MarkFlagRequired("tests"); err != nil {
		panic(fmt.Sprintf("failed to mark tests flag as required: %v", err))
	}
}

// Test outcomes.
const (
	OutcomeAllow = "allow"
	OutcomeDeny  = "deny"
	OutcomeError = "error"
)

// TestSuite is the content of a test case file.
type TestSuite struct {
	Tests []TestCase `yaml:"tests"`
}

// TestCase runs one policy for one caller context.
type TestCase struct {
	Name       string `yaml:"name"`
	Policy     string `yaml:"policy,omitempty"`
	runContext `yaml:",inline"`
	Expect     TestExpectation `yaml:"expect"`
}

// TestExpectation is the expected outcome of a case.
type TestExpectation struct {
	Outcome string `yaml:"outcome"`
	Message string `yaml:"message,omitempty"`
	MaxGas  uint64 `yaml:"max_gas,omitempty"`
}

// TestResult is the outcome of one case.
type TestResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Outcome  string        `json:"outcome"`
	Message  string        `json:"message,omitempty"`
	GasUsed  uint64        `json:"gas_used"`
	Failure  string        `json:"failure,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

func loadTestCases(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, tc := range suite.Tests {
		switch tc.Expect.Outcome {
		case OutcomeAllow, OutcomeDeny, OutcomeError:
		default:
			return nil, fmt.Errorf("test %d (%s): expect.outcome must be allow, deny or error, got %q", i, tc.Name, tc.Expect.Outcome)
		}
	}
	return &suite, nil
}

func runTests(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseOutputFormat(testFlags.format)
	if err != nil {
		return err
	}
	suite, err := loadTestCases(testFlags.testsFile)
	if err != nil {
		return cli.NewCommandError("test", err)
	}
	if len(suite.Tests) == 0 {
		return fmt.Errorf("no test cases found in %s", testFlags.testsFile)
	}

	cfg := runtimeConfig()
	units, diags, err := compileSource(testFlags.policyFile, cfg.Engine.OptimizeEnabled())
	if err != nil {
		return err
	}
	if diags.HasErrors() {
		cli.PrintDiagnostics(cmd.ErrOrStderr(), diags)
		return cli.ErrCompile
	}

	r := runner.New(runner.WithLogger(runtimeLogger()))
	results := make([]TestResult, 0, len(suite.Tests))
	for _, tc := range suite.Tests {
		results = append(results, runTestCase(cmd, r, units, tc))
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if err := cli.NewFormatter(format).FormatTo(out, results); err != nil {
			return err
		}
	} else {
		printTestResults(out, results)
	}

	for _, res := range results {
		if !res.Passed {
			return cli.NewCommandError("test", errors.New("test failures"))
		}
	}
	return nil
}

func runTestCase(cmd *cobra.Command, r *runner.Runner, units []compiler.Unit, tc TestCase) (res TestResult) {
	start := time.Now()
	res.Name = tc.Name
	defer func() { res.Duration = time.Since(start) }()

	u, err := selectUnit(testFlags.policyFile, units, tc.Policy)
	if err != nil {
		res.Outcome = OutcomeError
		res.Failure = err.Error()
		return res
	}
	rc := tc.runContext
	rc.applyDefaults()
	h, err := rc.stubHost()
	if err != nil {
		res.Outcome = OutcomeError
		res.Failure = err.Error()
		return res
	}

	limits := runtimeConfig().Engine.Limits()
	out, err := r.Run(commandContext(cmd), u.Program, h, runner.WithLimits(rc.Caller, rc.Realm, limits).WithPolicy(u.Name, "test"))
	var rejected *vm.PolicyRejectedError
	switch {
	case errors.As(err, &rejected):
		res.Outcome = OutcomeDeny
		res.Message = rejected.Message
	case err != nil:
		res.Outcome = OutcomeError
		res.Message = err.Error()
	default:
		res.GasUsed = out.GasUsed
		res.Outcome = OutcomeAllow
		if b, err := out.Value.AsBool(); err == nil && !b {
			res.Outcome = OutcomeDeny
		}
	}

	switch {
	case res.Outcome != tc.Expect.Outcome:
		res.Failure = fmt.Sprintf("expected %s, got %s", tc.Expect.Outcome, res.Outcome)
	case tc.Expect.Message != "" && !strings.Contains(res.Message, tc.Expect.Message):
		res.Failure = fmt.Sprintf("expected message containing %q, got %q", tc.Expect.Message, res.Message)
	case tc.Expect.MaxGas > 0 && res.GasUsed > tc.Expect.MaxGas:
		res.Failure = fmt.Sprintf("used %d gas, limit %d", res.GasUsed, tc.Expect.MaxGas)
	default:
		res.Passed = true
	}
	return res
}

func printTestResults(w io.Writer, results []TestResult) {
	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
			fmt.Fprintf(w, "✓ %s (%s, gas %d)\n", res.Name, res.Outcome, res.GasUsed)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n  %s\n", res.Name, res.Failure)
		if res.Message != "" {
			fmt.Fprintf(w, "  message: %s\n", res.Message)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d tests run, %d passed, %d failed\n", len(results), passed, len(results)-passed)
}
