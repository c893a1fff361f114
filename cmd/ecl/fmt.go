package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/ast"
)

var fmtFlags struct {
	write bool
	tree  bool
	list  bool
}

var fmtCmd = &cobra.Command{
	Use:   "fmt <file>...",
	Short: "Format ECL sources",
	Long: `Print ECL sources in canonical form. Comments are not preserved.

Examples:
  ecl fmt entry.ecl
  ecl fmt --write policies/*.ecl
  ecl fmt --list policies/*.ecl
  ecl fmt --tree entry.ecl`,
	Args: cobra.MinimumNArgs(1),
	RunE: formatSources,
}

func init() {
	rootCmd.AddCommand(fmtCmd)

	fmtCmd.Flags().BoolVarP(&fmtFlags.write, "write", "w", false, "write the result back to the source file")
	fmtCmd.Flags().BoolVar(&fmtFlags.tree, "tree", false, "print the syntax tree instead")
	fmtCmd.Flags().BoolVarP(&fmtFlags.list, "list", "l", false, "list files whose formatting differs")
}

func formatSources(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := false
	for _, path := range args {
		f, diags, err := parseSource(path)
		if err != nil {
			return err
		}
		if diags.HasErrors() {
			cli.PrintDiagnostics(cmd.ErrOrStderr(), diags)
			failed = true
			continue
		}

		if fmtFlags.tree {
			fmt.Fprint(out, ast.Tree(f))
			continue
		}

		formatted := ast.Format(f)
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		changed := string(src) != formatted
		switch {
		case fmtFlags.list:
			if changed {
				fmt.Fprintln(out, path)
			}
		case fmtFlags.write:
			if changed {
				if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
			}
		default:
			fmt.Fprint(out, formatted)
		}
	}
	if failed {
		return cli.ErrCompile
	}
	return nil
}
