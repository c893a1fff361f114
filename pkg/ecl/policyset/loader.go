package policyset

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/compiler"
	"erynoa/eclvm/pkg/ecl/gateway"
	"erynoa/eclvm/pkg/ecl/optimizer"
	"erynoa/eclvm/pkg/ecl/parser"
)

// SourceExt is the extension of ECL source files.
const SourceExt = ".ecl"

// DefaultMaxFileSize bounds a single source file.
const DefaultMaxFileSize int64 = 1 << 20

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// Optimize runs the optimizer over every compiled policy.
	Optimize bool
	// MaxFileSize rejects larger source files.
	MaxFileSize int64
	// SkipHidden ignores dot files and directories.
	SkipHidden bool
}

// DefaultLoaderConfig returns the default configuration.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		Optimize:    true,
		MaxFileSize: DefaultMaxFileSize,
		SkipHidden:  true,
	}
}

// Set is a loaded policy set.
type Set struct {
	// Policies holds every compiled policy by name.
	Policies map[string]gateway.CompiledPolicy
	// Realms is ready for gateway.Swap.
	Realms map[string]*gateway.Realm
	// Files lists the loaded sources in load order.
	Files []string
	// Warnings collects non-fatal diagnostics.
	Warnings []*ast.Diagnostic
}

// Loader reads policy set directories.
type Loader struct {
	config LoaderConfig
	logger *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(config LoaderConfig, logger *slog.Logger) *Loader {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{config: config, logger: logger.With("component", "ecl.policyset")}
}

// Load compiles every source under dir and builds the realms named by
// its manifest. Diagnostics of all files are reported together.
func (l *Loader) Load(dir string) (*Set, error) {
	files, err := l.sourceFiles(dir)
	if err != nil {
		return nil, err
	}

	set := &Set{
		Policies: make(map[string]gateway.CompiledPolicy),
		Realms:   make(map[string]*gateway.Realm),
		Files:    files,
	}
	origin := make(map[string]string)
	diags := ast.NewDiagnostics()

	for _, path := range files {
		src, err := l.readSource(path)
		if err != nil {
			return nil, err
		}
		f, parseDiags := parser.ParseFile(path, src)
		diags.Merge(parseDiags)
		if parseDiags.HasErrors() {
			continue
		}
		units, compileDiags := compiler.Compile(f, compiler.PolicyOptions())
		diags.Merge(compileDiags)
		for _, u := range units {
			if prev, dup := origin[u.Name]; dup {
				diags.Errorf(ast.CodeDuplicatePolicy, u.Location, "policy %q already declared in %s", u.Name, prev)
				continue
			}
			origin[u.Name] = path
			program := u.Program
			if l.config.Optimize {
				program = optimizer.Optimize(program)
			}
			set.Policies[u.Name] = gateway.NewPolicy(u.Name, program).WithDescription(u.Description)
		}
	}
	if err := diags.Err(); err != nil {
		return nil, err
	}
	set.Warnings = diags.Items()

	manifest, err := l.manifest(dir)
	if err != nil {
		return nil, err
	}
	if err := set.bind(manifest); err != nil {
		return nil, err
	}

	l.logger.Info("policy set loaded",
		"dir", dir,
		"files", len(files),
		"policies", len(set.Policies),
		"realms", len(set.Realms),
		"warnings", len(set.Warnings),
	)
	return set, nil
}

func (s *Set) bind(m *Manifest) error {
	for name, rm := range m.Realms {
		realm := &gateway.Realm{
			Config:   gateway.RealmConfig{EntryPolicy: rm.Entry, Damping: rm.damping()},
			Policies: make(map[string]map[string]gateway.CompiledPolicy),
		}
		add := func(kind, policy string) error {
			p, ok := s.Policies[policy]
			if !ok {
				return &ManifestError{Realm: name, Message: fmt.Sprintf("unknown %s policy %q", kind, policy)}
			}
			if realm.Policies[kind] == nil {
				realm.Policies[kind] = make(map[string]gateway.CompiledPolicy)
			}
			realm.Policies[kind][policy] = p
			return nil
		}
		if rm.Entry != "" {
			if err := add(gateway.KindEntry, rm.Entry); err != nil {
				return err
			}
		}
		for kind, names := range rm.Policies {
			for _, policy := range names {
				if err := add(kind, policy); err != nil {
					return err
				}
			}
		}
		s.Realms[name] = realm
	}
	return nil
}

func (l *Loader) manifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		l.logger.Debug("no realm manifest", "dir", dir)
		return &Manifest{}, nil
	}
	return ReadManifest(path)
}

func (l *Loader) sourceFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Message: "directory not accessible", Cause: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{Path: dir, Message: "not a directory"}
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if l.config.SkipHidden && path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), SourceExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{Path: dir, Message: "failed to walk directory", Cause: err}
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) readSource(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &LoadError{Path: path, Message: "failed to access file", Cause: err}
	}
	if info.Size() > l.config.MaxFileSize {
		return "", &LoadError{Path: path, Message: fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), l.config.MaxFileSize)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &LoadError{Path: path, Message: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return "", &LoadError{Path: path, Message: "file contains invalid UTF-8 encoding"}
	}
	return string(data), nil
}
