package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/compiler"
	"erynoa/eclvm/pkg/ecl/optimizer"
)

var compileFlags struct {
	output   string
	optimize bool
	disasm   bool
	compress bool
	policy   string
}

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "Compile policies to bytecode",
	Long: `Compile the policies of an .ecl file and report their size, estimated
gas and content id. With -o the selected policy is written as an .eclb blob.

Examples:
  # Summarize every policy of a file
  ecl compile realms.ecl -O

  # Show the optimized bytecode
  ecl compile entry.ecl -O --disasm

  # Write a compressed blob
  ecl compile realms.ecl --policy finance_entry -O --compress -o finance.eclb`,
	Args: cobra.ExactArgs(1),
	RunE: compilePolicies,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&compileFlags.output, "output", "o", "", "write the selected policy to this .eclb file")
	compileCmd.Flags().BoolVarP(&compileFlags.optimize, "optimize", "O", false, "run the optimizer")
	compileCmd.Flags().BoolVar(&compileFlags.disasm, "disasm", false, "print the disassembly")
	compileCmd.Flags().BoolVar(&compileFlags.compress, "compress", false, "zstd-compress the written blob")
	compileCmd.Flags().StringVarP(&compileFlags.policy, "policy", "p", "", "policy to write when the file defines several")
}

func compilePolicies(cmd *cobra.Command, args []string) error {
	path := args[0]
	units, diags, err := compileSource(path, false)
	if err != nil {
		return err
	}
	if diags.HasErrors() {
		cli.PrintDiagnostics(cmd.ErrOrStderr(), diags)
		return cli.ErrCompile
	}
	if diags.Count() > 0 {
		cli.PrintDiagnostics(cmd.ErrOrStderr(), diags)
	}

	out := cmd.OutOrStdout()
	for i, u := range units {
		if compileFlags.optimize {
			opt, stats := optimizer.New(optimizer.DefaultOptions()).Optimize(u.Program)
			units[i].Program = opt
			fmt.Fprintf(out, "%s: %d -> %d instructions (%.1f%% smaller), gas %d -> %d\n",
				u.Name, stats.OriginalSize, stats.OptimizedSize, stats.SavingsPercent(), stats.OriginalGas, stats.OptimizedGas)
		} else {
			fmt.Fprintf(out, "%s: %d instructions, gas %d\n", u.Name, len(u.Program), bytecode.EstimateGas(u.Program))
		}
		id, err := bytecode.ContentID(units[i].Program)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  id %s\n", id)
		if compileFlags.disasm {
			fmt.Fprintln(out, indent(units[i].Program.Disassemble(), "  "))
		}
	}

	if compileFlags.output == "" {
		return nil
	}
	u, err := selectUnit(path, units, compileFlags.policy)
	if err != nil {
		return err
	}
	return writeBlob(cmd, compileFlags.output, u, compileFlags.compress)
}

func writeBlob(cmd *cobra.Command, path string, u compiler.Unit, compress bool) error {
	if filepath.Ext(path) == "" {
		path += BlobExt
	}
	data, err := bytecode.Encode(u.Program, bytecode.EncodeOptions{Compress: compress})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d bytes)\n", path, u.Name, len(data))
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
