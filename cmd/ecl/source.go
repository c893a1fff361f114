package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/compiler"
	"erynoa/eclvm/pkg/ecl/optimizer"
	"erynoa/eclvm/pkg/ecl/parser"
	"erynoa/eclvm/pkg/ecl/policyset"
)

// BlobExt marks compiled bytecode files.
const BlobExt = ".eclb"

// errorsReported reports whether err only signals diagnostics that were
// already printed.
func errorsReported(err error) bool {
	return errors.Is(err, cli.ErrCompile) || errors.Is(err, cli.ErrDenied)
}

// parseSource reads and parses an .ecl file.
func parseSource(path string) (*ast.File, *ast.Diagnostics, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, diags := parser.ParseFile(path, string(src))
	return f, diags, nil
}

// compileSource parses and compiles every policy of an .ecl file.
func compileSource(path string, optimize bool) ([]compiler.Unit, *ast.Diagnostics, error) {
	f, diags, err := parseSource(path)
	if err != nil {
		return nil, nil, err
	}
	if diags.HasErrors() {
		return nil, diags, nil
	}
	units, cdiags := compiler.Compile(f, compiler.PolicyOptions())
	diags.Merge(cdiags)
	if optimize && !diags.HasErrors() {
		for i := range units {
			units[i].Program = optimizer.Optimize(units[i].Program)
		}
	}
	return units, diags, nil
}

// selectUnit picks the policy called name, or the only policy when name is
// empty.
func selectUnit(path string, units []compiler.Unit, name string) (compiler.Unit, error) {
	if name == "" {
		if len(units) == 1 {
			return units[0], nil
		}
		names := make([]string, len(units))
		for i, u := range units {
			names[i] = u.Name
		}
		return compiler.Unit{}, cli.NewConfigError("policy",
			fmt.Sprintf("%s defines %d policies (%s); choose one with --policy", path, len(units), strings.Join(names, ", ")))
	}
	for _, u := range units {
		if u.Name == name {
			return u, nil
		}
	}
	return compiler.Unit{}, cli.NewConfigError("policy", fmt.Sprintf("no policy named %q in %s", name, path))
}

// loadProgram returns the program at path: a decoded blob for .eclb files,
// otherwise the selected policy compiled from source. Diagnostics are
// printed to stderr.
func loadProgram(path, policy string, optimize bool, stderr io.Writer) (bytecode.Program, string, error) {
	if strings.EqualFold(filepath.Ext(path), BlobExt) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		p, err := bytecode.Decode(data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode %s: %w", path, err)
		}
		name := policy
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return p, name, nil
	}

	units, diags, err := compileSource(path, optimize)
	if err != nil {
		return nil, "", err
	}
	if diags.HasErrors() {
		cli.PrintDiagnostics(stderr, diags)
		return nil, "", cli.ErrCompile
	}
	u, err := selectUnit(path, units, policy)
	if err != nil {
		return nil, "", err
	}
	return u.Program, u.Name, nil
}

// sourceFiles expands args into .ecl files, walking directories.
func sourceFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && path != arg && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !d.IsDir() && filepath.Ext(path) == policyset.SourceExt {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
