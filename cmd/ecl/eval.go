package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/compiler"
	"erynoa/eclvm/pkg/ecl/optimizer"
	"erynoa/eclvm/pkg/ecl/parser"
	"erynoa/eclvm/pkg/ecl/runner"
)

var evalFlags struct {
	bytecode bool
	context  string
}

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate a single expression",
	Long: `Compile and evaluate one ECL expression. The caller identity is bound
to "sender".

Examples:
  ecl eval '1 + 2 * 3'
  ecl eval 'sender.trust.R >= 0.5 && credential(sender, "kyc")' --context alice.json
  ecl eval 'min(0.4, 0.7)' --bytecode`,
	Args: cobra.ExactArgs(1),
	RunE: evalExpression,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().BoolVar(&evalFlags.bytecode, "bytecode", false, "print the compiled bytecode before the result")
	evalCmd.Flags().StringVar(&evalFlags.context, "context", "", "JSON file with the caller and known identities")
}

func evalExpression(cmd *cobra.Command, args []string) error {
	expr, diags := parser.ParseExpr(args[0])
	var prog bytecode.Program
	if !diags.HasErrors() {
		var cdiags *ast.Diagnostics
		prog, cdiags = compiler.CompileExpr(expr, compiler.PolicyOptions())
		diags.Merge(cdiags)
	}
	if diags.HasErrors() {
		cli.PrintDiagnostics(cmd.ErrOrStderr(), diags)
		return cli.ErrCompile
	}
	if runtimeConfig().Engine.OptimizeEnabled() {
		prog = optimizer.Optimize(prog)
	}
	if evalFlags.bytecode {
		fmt.Fprintln(cmd.OutOrStdout(), prog.Disassemble())
	}

	rc, err := loadRunContext(evalFlags.context)
	if err != nil {
		return err
	}
	h, err := rc.stubHost()
	if err != nil {
		return err
	}
	r := runner.New(runner.WithLogger(runtimeLogger()))
	res, err := r.Run(commandContext(cmd), prog, h, runner.WithLimits(rc.Caller, rc.Realm, runtimeConfig().Engine.Limits()))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Value)
	return nil
}
