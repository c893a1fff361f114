package compiler

import (
	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/bytecode"
)

var binaryOps = map[ast.BinaryOp]bytecode.Op{
	ast.OpOr:  bytecode.OpOr,
	ast.OpAnd: bytecode.OpAnd,
	ast.OpEq:  bytecode.OpEq,
	ast.OpNeq: bytecode.OpNeq,
	ast.OpLt:  bytecode.OpLt,
	ast.OpLte: bytecode.OpLte,
	ast.OpGt:  bytecode.OpGt,
	ast.OpGte: bytecode.OpGte,
	ast.OpAdd: bytecode.OpAdd,
	ast.OpSub: bytecode.OpSub,
	ast.OpMul: bytecode.OpMul,
	ast.OpDiv: bytecode.OpDiv,
	ast.OpMod: bytecode.OpMod,
}

const maxPickDepth = 255

// expr emits code leaving exactly one value on the stack. After a
// diagnostic a Null placeholder is pushed so that stack accounting for
// the rest of the body stays consistent.
func (c *compiler) expr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.Literal:
		c.emit(bytecode.Push(literalValue(e)))

	case *ast.Ident:
		c.ident(e)

	case *ast.ArrayLit:
		v, ok := c.constArray(e)
		if !ok {
			c.diags.Errorf(ast.CodeUnsupportedExpr, e.Location, "array literals may only contain constants")
			c.placeholder()
			return
		}
		c.emit(bytecode.Push(v))

	case *ast.Unary:
		c.expr(e.X)
		if e.Op == ast.OpNot {
			c.emit(bytecode.Simple(bytecode.OpNot))
		} else {
			c.emit(bytecode.Simple(bytecode.OpNeg))
		}

	case *ast.Binary:
		c.expr(e.Left)
		c.expr(e.Right)
		c.emit(bytecode.Simple(binaryOps[e.Op]))

	case *ast.Member:
		if e.Field != "trust" {
			d := c.diags.Errorf(ast.CodeUnknownField, e.Location, "unknown field '%s'", e.Field)
			d.Suggestion = ast.Suggest(e.Field, knownFields)
			c.placeholder()
			return
		}
		c.expr(e.X)
		c.emit(bytecode.Simple(bytecode.OpLoadTrust))

	case *ast.TrustDim:
		dim, ok := bytecode.ParseDimension(e.Dim)
		if !ok {
			c.diags.Errorf(ast.CodeUnknownField, e.Location, "unknown trust dimension '%s'", e.Dim)
			c.placeholder()
			return
		}
		c.expr(e.X)
		c.emit(bytecode.TrustDim(dim))

	case *ast.Call:
		c.call(e)

	case *ast.Index:
		c.diags.Errorf(ast.CodeUnsupportedExpr, e.Location, "index expressions are not supported")
		c.placeholder()

	default:
		c.diags.Errorf(ast.CodeUnsupportedExpr, e.Loc(), "unsupported expression")
		c.placeholder()
	}
}

func (c *compiler) placeholder() {
	c.emit(bytecode.Push(bytecode.Null()))
}

func (c *compiler) ident(e *ast.Ident) {
	if slot, ok := c.lookup(e.Name); ok {
		depth := c.height - 1 - slot
		if depth > maxPickDepth {
			c.diags.Errorf(ast.CodeUnsupportedExpr, e.Location, "binding '%s' is %d slots deep, limit is %d", e.Name, depth, maxPickDepth)
			c.placeholder()
			return
		}
		c.emit(bytecode.Pick(depth))
		return
	}
	if lit, ok := c.consts[e.Name]; ok {
		c.emit(bytecode.Push(literalValue(lit)))
		return
	}
	c.emit(bytecode.Push(bytecode.DID(e.Name)))
}

func (c *compiler) call(e *ast.Call) {
	b, ok := builtins[e.Func]
	if !ok {
		d := c.diags.Errorf(ast.CodeUnknownFunction, e.Location, "unknown function '%s'", e.Func)
		d.Suggestion = ast.Suggest(e.Func, Builtins())
		c.placeholder()
		return
	}
	if len(e.Args) != b.argc {
		c.diags.Errorf(ast.CodeArgumentCount, e.Location, "%s expects %d argument(s), got %d", e.Func, b.argc, len(e.Args))
		c.placeholder()
		return
	}
	for _, a := range e.Args {
		c.expr(a)
	}
	c.emit(bytecode.Simple(b.op))
	if b.void {
		c.placeholder()
	}
}

func (c *compiler) constArray(e *ast.ArrayLit) (bytecode.Value, bool) {
	items := make([]bytecode.Value, 0, len(e.Elems))
	for _, el := range e.Elems {
		switch el := el.(type) {
		case *ast.Literal:
			items = append(items, literalValue(el))
		case *ast.Ident:
			lit, ok := c.consts[el.Name]
			if !ok {
				return bytecode.Value{}, false
			}
			items = append(items, literalValue(lit))
		case *ast.ArrayLit:
			v, ok := c.constArray(el)
			if !ok {
				return bytecode.Value{}, false
			}
			items = append(items, v)
		default:
			return bytecode.Value{}, false
		}
	}
	return bytecode.Array(items...), true
}

func literalValue(l *ast.Literal) bytecode.Value {
	switch l.Kind {
	case ast.LitBool:
		return bytecode.Bool(l.Bool)
	case ast.LitNumber:
		return bytecode.Number(l.Number)
	case ast.LitString:
		return bytecode.String(l.String)
	}
	return bytecode.Null()
}
