package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/compiler"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/parser"
	"erynoa/eclvm/pkg/ecl/runner"
)

var replFlags struct {
	context string
	history string
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive ECL session",
	Long: `Start an interactive session. Each line is an expression, a statement
or a const declaration. let bindings and consts persist between lines.

Commands:
  :ast <expr>                 print the syntax tree of an expression
  :bc <expr>                  print the bytecode of an expression
  :trust <did> r i c p v ω    set the trust vector of an identity
  :env                        list bindings
  :reset                      forget bindings
  :quit                       leave the session`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)

	replCmd.Flags().StringVar(&replFlags.context, "context", "", "JSON file with the caller and known identities")
	replCmd.Flags().StringVar(&replFlags.history, "history", defaultHistoryFile(), "history file, empty to disable")
}

func defaultHistoryFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ecl", "history")
}

func runREPL(cmd *cobra.Command, _ []string) error {
	s, err := newSession(replFlags.context, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if replFlags.history != "" {
		_ = os.MkdirAll(filepath.Dir(replFlags.history), 0o755)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ecl> ",
		HistoryFile:     replFlags.history,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "ecl %s, caller %s. Type :help for commands.\n", Version, s.caller)
	ctx := commandContext(cmd)
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		if err := s.eval(ctx, line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			fmt.Fprintln(s.errOut, "error:", err)
		}
	}
}

// session is the state of one REPL.
type session struct {
	caller string
	realm  string
	host   *host.StubHost
	runner *runner.Runner
	limits budget.Limits

	consts []*ast.ConstDecl
	lets   []ast.Stmt

	out, errOut io.Writer
}

func newSession(contextPath string, out, errOut io.Writer) (*session, error) {
	rc, err := loadRunContext(contextPath)
	if err != nil {
		return nil, err
	}
	h, err := rc.stubHost()
	if err != nil {
		return nil, err
	}
	return &session{
		caller: rc.Caller,
		realm:  rc.Realm,
		host:   h,
		runner: runner.New(runner.WithLogger(runtimeLogger())),
		limits: runtimeConfig().Engine.Limits(),
		out:    out,
		errOut: errOut,
	}, nil
}

// eval handles one input line. io.EOF means the session should end.
func (s *session) eval(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case strings.HasPrefix(line, ":"):
		return s.command(line)
	case strings.HasPrefix(line, "const "):
		f, diags := parser.ParseFile("", line)
		if err := s.report(diags); err != nil {
			return err
		}
		consts := append(append([]*ast.ConstDecl{}, s.consts...), f.Consts...)
		if _, diags := compiler.CompileStmts(nil, consts, compiler.PolicyOptions()); diags.HasErrors() {
			return s.report(diags)
		}
		s.consts = consts
		return nil
	}

	if expr, diags := parser.ParseExpr(line); !diags.HasErrors() {
		v, err := s.run(ctx, []ast.Stmt{&ast.Return{Value: expr}})
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, v)
		return nil
	}

	stmts, diags := parser.ParseStmts(line)
	if err := s.report(diags); err != nil {
		return err
	}
	v, err := s.run(ctx, stmts)
	if err != nil {
		return err
	}
	if allLets(stmts) {
		s.lets = append(s.lets, stmts...)
		return nil
	}
	fmt.Fprintln(s.out, v)
	return nil
}

func (s *session) compile(stmts []ast.Stmt) (bytecode.Program, error) {
	body := append(append([]ast.Stmt{}, s.lets...), stmts...)
	prog, diags := compiler.CompileStmts(body, s.consts, compiler.PolicyOptions())
	if err := s.report(diags); err != nil {
		return nil, err
	}
	return prog, nil
}

func (s *session) run(ctx context.Context, stmts []ast.Stmt) (bytecode.Value, error) {
	prog, err := s.compile(stmts)
	if err != nil {
		return bytecode.Value{}, err
	}
	res, err := s.runner.Run(ctx, prog, s.host, runner.WithLimits(s.caller, s.realm, s.limits))
	if err != nil {
		return bytecode.Value{}, err
	}
	for _, l := range res.Logs {
		fmt.Fprintln(s.out, "log:", l)
	}
	return res.Value, nil
}

func (s *session) report(diags *ast.Diagnostics) error {
	if diags == nil || diags.Count() == 0 {
		return nil
	}
	cli.PrintDiagnostics(s.errOut, diags)
	if diags.HasErrors() {
		return cli.ErrCompile
	}
	return nil
}

func (s *session) command(line string) error {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case ":q", ":quit", ":exit":
		return io.EOF
	case ":help":
		fmt.Fprintln(s.out, ":ast <expr>  :bc <expr>  :trust <did> r i c p v ω  :env  :reset  :quit")
	case ":ast":
		expr, diags := parser.ParseExpr(rest)
		if err := s.report(diags); err != nil {
			return err
		}
		fmt.Fprint(s.out, ast.ExprTree(expr))
	case ":bc":
		expr, diags := parser.ParseExpr(rest)
		if err := s.report(diags); err != nil {
			return err
		}
		prog, err := s.compile([]ast.Stmt{&ast.Return{Value: expr}})
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, prog.Disassemble())
	case ":trust":
		fields := strings.Fields(rest)
		if len(fields) != 1+bytecode.NumDimensions {
			return fmt.Errorf("usage: :trust <did> r i c p v ω")
		}
		values := make([]float64, bytecode.NumDimensions)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("invalid trust value %q", f)
			}
			values[i] = v
		}
		tv, err := parseTrust(values)
		if err != nil {
			return err
		}
		s.host.WithTrust(fields[0], tv)
	case ":env":
		for _, c := range s.consts {
			fmt.Fprintf(s.out, "const %s = %s\n", c.Name, ast.FormatExpr(c.Value))
		}
		fmt.Fprint(s.out, ast.FormatStmts(s.lets))
	case ":reset":
		s.consts, s.lets = nil, nil
	default:
		return fmt.Errorf("unknown command %s (try :help)", name)
	}
	return nil
}

func allLets(stmts []ast.Stmt) bool {
	for _, st := range stmts {
		if _, ok := st.(*ast.Let); !ok {
			return false
		}
	}
	return len(stmts) > 0
}
