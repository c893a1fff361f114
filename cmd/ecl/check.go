package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/policyset"
)

var checkFlags struct {
	format   string
	progress bool
	strict   bool
}

var checkCmd = &cobra.Command{
	Use:   "check [file|dir]...",
	Short: "Parse and compile policies without running them",
	Long: `Check reports every parse and compile diagnostic of the given files.
Directories are searched for .ecl files; a directory holding realms.yaml is
additionally loaded as a policy set, which validates the manifest and
policy names across files.

Examples:
  ecl check entry.ecl
  ecl check policies/ --progress
  ecl check policies/ --format json --strict`,
	RunE: checkPolicies,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.format, "format", "text", "output format: text, json")
	checkCmd.Flags().BoolVar(&checkFlags.progress, "progress", false, "show a progress bar on stderr")
	checkCmd.Flags().BoolVar(&checkFlags.strict, "strict", false, "treat warnings as errors")
}

// CheckResult is the outcome for one file or policy set.
type CheckResult struct {
	Path        string               `json:"path"`
	Valid       bool                 `json:"valid"`
	Policies    []string             `json:"policies,omitempty"`
	Realms      int                  `json:"realms,omitempty"`
	Diagnostics []cli.DiagnosticJSON `json:"diagnostics,omitempty"`
	Error       string               `json:"error,omitempty"`
}

func checkPolicies(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(checkFlags.format)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{"."}
	}
	files, err := sourceFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no %s files found", policyset.SourceExt)
	}

	var progress cli.ProgressReporter
	if checkFlags.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "files")
		progress.Start(int64(len(files)))
	}

	text := format == cli.FormatText
	results := make([]CheckResult, 0, len(files))
	for i, path := range files {
		res := checkFile(cmd, path, text)
		results = append(results, res)
		if progress != nil {
			progress.Update(int64(i + 1))
		}
	}
	if progress != nil {
		progress.Finish()
	}

	for _, dir := range args {
		if _, err := os.Stat(filepath.Join(dir, policyset.ManifestFile)); err == nil {
			results = append(results, checkSet(dir))
		}
	}

	failed := 0
	for _, r := range results {
		if !r.Valid {
			failed++
		}
	}
	out := cmd.OutOrStdout()
	if text {
		for _, r := range results {
			switch {
			case r.Error != "":
				fmt.Fprintf(out, "✗ %s: %s\n", r.Path, r.Error)
			case r.Valid && r.Realms > 0:
				fmt.Fprintf(out, "✓ %s (%d policies, %d realms)\n", r.Path, len(r.Policies), r.Realms)
			case r.Valid:
				fmt.Fprintf(out, "✓ %s (%d policies)\n", r.Path, len(r.Policies))
			default:
				fmt.Fprintf(out, "✗ %s\n", r.Path)
			}
		}
	} else if err := cli.NewFormatter(format).FormatTo(out, results); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d checked", cli.ErrCompile, failed, len(results))
	}
	return nil
}

func checkFile(cmd *cobra.Command, path string, printDiags bool) CheckResult {
	res := CheckResult{Path: path}
	units, diags, err := compileSource(path, false)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if printDiags && diags.Count() > 0 {
		cli.PrintDiagnostics(cmd.ErrOrStderr(), diags)
	}
	res.Diagnostics = cli.DiagnosticsJSON(diags)
	res.Valid = !diags.HasErrors() && (!checkFlags.strict || diags.Count() == 0)
	for _, u := range units {
		res.Policies = append(res.Policies, u.Name)
	}
	return res
}

func checkSet(dir string) CheckResult {
	res := CheckResult{Path: filepath.Join(dir, policyset.ManifestFile)}
	set, err := policyset.NewLoader(runtimeConfig().Loader(), runtimeLogger()).Load(dir)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Valid = true
	for name := range set.Policies {
		res.Policies = append(res.Policies, name)
	}
	sort.Strings(res.Policies)
	res.Realms = len(set.Realms)
	return res
}
