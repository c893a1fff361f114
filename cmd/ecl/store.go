package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/policyset"
	"erynoa/eclvm/pkg/ecl/storage"
)

var storeFlags struct {
	policy   string
	output   string
	disasm   bool
	compress bool
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage compiled programs in the configured storage backend",
	Long: `Store, fetch and list compiled programs. Programs are addressed by
policy name or by content id; the backend comes from the storage section
of the config file.

Examples:
  ecl store put policies/finance.ecl
  ecl store get finance-entry --disasm
  ecl store get 5Hx... -o finance.eclb
  ecl store ls`,
}

var storePutCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Compile a source file (or read a blob) and store it",
	Args:  cobra.ExactArgs(1),
	RunE:  storePut,
}

var storeGetCmd = &cobra.Command{
	Use:   "get <name-or-id>",
	Short: "Fetch a stored program",
	Args:  cobra.ExactArgs(1),
	RunE:  storeGet,
}

var storeLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored programs",
	Args:  cobra.NoArgs,
	RunE:  storeList,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storePutCmd, storeGetCmd, storeLsCmd)

	storePutCmd.Flags().StringVarP(&storeFlags.policy, "policy", "p", "", "store only this policy")
	storePutCmd.Flags().BoolVar(&storeFlags.compress, "compress", true, "zstd-compress stored blobs")
	storeGetCmd.Flags().StringVarP(&storeFlags.output, "output", "o", "", "write the blob to this file")
	storeGetCmd.Flags().BoolVar(&storeFlags.disasm, "disasm", false, "print the disassembly")
}

func openArchive(compress bool) (*policyset.Archive, func() error, error) {
	b, err := storage.Open(runtimeConfig().Storage)
	if err != nil {
		return nil, nil, cli.NewConfigError("storage", err.Error())
	}
	return policyset.NewArchive(b, compress), b.Close, nil
}

func storePut(cmd *cobra.Command, args []string) error {
	path := args[0]
	optimize := runtimeConfig().Engine.OptimizeEnabled()

	type named struct {
		name string
		prog bytecode.Program
	}
	var progs []named
	if strings.EqualFold(filepath.Ext(path), BlobExt) || storeFlags.policy != "" {
		p, name, err := loadProgram(path, storeFlags.policy, optimize, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		progs = append(progs, named{name, p})
	} else {
		units, diags, err := compileSource(path, optimize)
		if err != nil {
			return err
		}
		if diags.HasErrors() {
			cli.PrintDiagnostics(cmd.ErrOrStderr(), diags)
			return cli.ErrCompile
		}
		for _, u := range units {
			progs = append(progs, named{u.Name, u.Program})
		}
	}

	archive, closeFn, err := openArchive(storeFlags.compress)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := commandContext(cmd)
	for _, p := range progs {
		id, err := archive.Save(ctx, p.name, p.prog)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, p.name)
	}
	return nil
}

func storeGet(cmd *cobra.Command, args []string) error {
	archive, closeFn, err := openArchive(true)
	if err != nil {
		return err
	}
	defer closeFn()

	p, id, err := archive.Load(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d instructions, estimated gas %d\n", id, len(p), bytecode.EstimateGas(p))
	if storeFlags.disasm {
		fmt.Fprintln(out, indent(p.Disassemble(), "  "))
	}
	if storeFlags.output == "" {
		return nil
	}
	data, err := bytecode.Encode(p, bytecode.EncodeOptions{})
	if err != nil {
		return err
	}
	if err := os.WriteFile(storeFlags.output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", storeFlags.output, err)
	}
	fmt.Fprintf(out, "wrote %s (%d bytes)\n", storeFlags.output, len(data))
	return nil
}

func storeList(cmd *cobra.Command, _ []string) error {
	archive, closeFn, err := openArchive(true)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := archive.List(commandContext(cmd))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.ID)
	}
	return tw.Flush()
}
