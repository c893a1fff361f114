package compiler

import (
	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/bytecode"
)

func (c *compiler) stmts(list []ast.Stmt) {
	for _, s := range list {
		c.stmt(s)
	}
}

func (c *compiler) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Require:
		c.expr(s.Cond)
		if s.HasMessage {
			c.emit(bytecode.Push(bytecode.String(s.Message)))
			c.emit(bytecode.Simple(bytecode.OpRequire))
		} else {
			c.emit(bytecode.Simple(bytecode.OpAssert))
		}

	case *ast.Let:
		c.expr(s.Value)
		c.bind(s.Name, c.height-1)

	case *ast.Emit:
		c.emit(bytecode.Push(bytecode.String("emit:" + s.Event)))
		c.emit(bytecode.Simple(bytecode.OpLog))

	case *ast.Return:
		before := c.height
		c.expr(s.Value)
		c.emit(bytecode.Simple(bytecode.OpReturn))
		c.height = before

	case *ast.If:
		c.ifStmt(s)

	case *ast.ExprStmt:
		before := c.height
		c.expr(s.X)
		for c.height > before {
			c.emit(bytecode.Simple(bytecode.OpPop))
		}
	}
}

// ifStmt emits
//
//	cond
//	JumpIfFalse else
//	then...
//	Jump end        (only with an else branch)
//	else: else...
//	end:
//
// Bindings introduced inside a branch are popped before the branch joins.
func (c *compiler) ifStmt(s *ast.If) {
	c.expr(s.Cond)
	jf := c.emit(bytecode.JumpIfFalse(0))
	base := c.height

	c.branch(s.Then)

	if len(s.Else) == 0 {
		c.patch(jf)
		return
	}
	jmp := c.emit(bytecode.Jump(0))
	c.patch(jf)
	c.height = base
	c.branch(s.Else)
	c.patch(jmp)
}

func (c *compiler) branch(body []ast.Stmt) {
	base := c.height
	c.pushScope()
	c.stmts(body)
	for n := c.popScope(); n > 0; n-- {
		c.emit(bytecode.Simple(bytecode.OpPop))
	}
	c.height = base
}
