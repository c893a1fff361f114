package compiler

import (
	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/bytecode"
)

// Options controls code generation.
type Options struct {
	// Preload names the values present on the stack before the program
	// starts, bottom first.
	Preload []string
}

// PolicyOptions returns the options used for policies run by the policy
// runner, which pushes the caller DID before execution.
func PolicyOptions() Options {
	return Options{Preload: []string{"sender"}}
}

// Unit is one compiled policy.
type Unit struct {
	Name        string
	Description string
	Program     bytecode.Program
	Location    ast.Location
}

// Compile compiles every policy in f.
func Compile(f *ast.File, opts Options) ([]Unit, *ast.Diagnostics) {
	diags := ast.NewDiagnostics()
	consts := collectConsts(f.Consts, diags)

	seen := make(map[string]bool, len(f.Policies))
	units := make([]Unit, 0, len(f.Policies))
	for _, pol := range f.Policies {
		if seen[pol.Name] {
			diags.Errorf(ast.CodeDuplicatePolicy, pol.Location, "policy %q declared more than once", pol.Name)
			continue
		}
		seen[pol.Name] = true

		c := newCompiler(opts, consts, diags)
		c.stmts(pol.Body)
		c.finish()
		units = append(units, Unit{
			Name:        pol.Name,
			Description: pol.Description,
			Program:     c.code,
			Location:    pol.Location,
		})
	}
	return units, diags
}

// CompilePolicy compiles the named policy of f.
func CompilePolicy(f *ast.File, name string, opts Options) (bytecode.Program, *ast.Diagnostics) {
	units, diags := Compile(f, opts)
	for _, u := range units {
		if u.Name == name {
			return u.Program, diags
		}
	}
	diags.Errorf(ast.CodeUnknownPolicy, ast.Location{File: f.Name}, "no policy named %q", name)
	return nil, diags
}

// CompileStmts compiles a bare statement list as if it were a policy body.
func CompileStmts(stmts []ast.Stmt, consts []*ast.ConstDecl, opts Options) (bytecode.Program, *ast.Diagnostics) {
	diags := ast.NewDiagnostics()
	c := newCompiler(opts, collectConsts(consts, diags), diags)
	c.stmts(stmts)
	c.finish()
	return c.code, diags
}

// CompileExpr compiles a single expression followed by Return, so the
// program evaluates to the expression's value.
func CompileExpr(e ast.Expr, opts Options) (bytecode.Program, *ast.Diagnostics) {
	diags := ast.NewDiagnostics()
	c := newCompiler(opts, nil, diags)
	c.expr(e)
	c.emit(bytecode.Simple(bytecode.OpReturn))
	return c.code, diags
}

func collectConsts(decls []*ast.ConstDecl, diags *ast.Diagnostics) map[string]*ast.Literal {
	consts := make(map[string]*ast.Literal, len(decls))
	for _, d := range decls {
		if _, dup := consts[d.Name]; dup {
			diags.Errorf(ast.CodeDuplicateConstant, d.Location, "constant %s declared more than once", d.Name)
			continue
		}
		consts[d.Name] = d.Value
	}
	return consts
}

type compiler struct {
	code   bytecode.Program
	height int
	scopes []*scope
	consts map[string]*ast.Literal
	diags  *ast.Diagnostics
}

func newCompiler(opts Options, consts map[string]*ast.Literal, diags *ast.Diagnostics) *compiler {
	c := &compiler{consts: consts, diags: diags}
	c.pushScope()
	for _, name := range opts.Preload {
		c.bind(name, c.height)
		c.height++
	}
	return c
}

func (c *compiler) emit(in bytecode.Instruction) int {
	c.code = append(c.code, in)
	c.height += stackEffect(in)
	return len(c.code) - 1
}

// patch overwrites the target of the jump at idx with the current end of code.
func (c *compiler) patch(idx int) {
	c.code[idx] = c.code[idx].WithTarget(len(c.code))
}

// finish appends the implicit successful return.
func (c *compiler) finish() {
	c.emit(bytecode.Push(bytecode.Bool(true)))
	c.emit(bytecode.Simple(bytecode.OpReturn))
}

// scope maps names to absolute stack slots. slots counts every value the
// scope owns, including shadowed bindings.
type scope struct {
	names map[string]int
	slots int
}

func (c *compiler) pushScope() {
	c.scopes = append(c.scopes, &scope{names: map[string]int{}})
}

// popScope drops the innermost scope and returns how many stack slots it owned.
func (c *compiler) popScope() int {
	n := c.scopes[len(c.scopes)-1].slots
	c.scopes = c.scopes[:len(c.scopes)-1]
	return n
}

// bind names an absolute stack slot in the innermost scope.
func (c *compiler) bind(name string, slot int) {
	s := c.scopes[len(c.scopes)-1]
	s.names[name] = slot
	s.slots++
}

func (c *compiler) lookup(name string) (int, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if slot, ok := c.scopes[i].names[name]; ok {
			return slot, true
		}
	}
	return 0, false
}
