package ast

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// Tree renders the file as an indented tree for inspection.
func Tree(f *File) string {
	root := treeprint.New()
	name := f.Name
	if name == "" {
		name = "<input>"
	}
	root.SetValue("file " + name)
	for _, c := range f.Consts {
		root.AddNode(fmt.Sprintf("const %s = %s", c.Name, FormatExpr(c.Value)))
	}
	for _, p := range f.Policies {
		br := root.AddBranch(fmt.Sprintf("policy %q", p.Name))
		if p.Description != "" {
			br.AddNode("description " + quote(p.Description))
		}
		addStmts(br, p.Body)
	}
	return root.String()
}

// ExprTree renders a single expression as a tree.
func ExprTree(e Expr) string {
	root := treeprint.New()
	root.SetValue("expr")
	addExpr(root, e)
	return root.String()
}

func addStmts(t treeprint.Tree, stmts []Stmt) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *Require:
			label := "require"
			if s.HasMessage {
				label += " " + quote(s.Message)
			}
			addExpr(t.AddBranch(label), s.Cond)
		case *Let:
			addExpr(t.AddBranch("let "+s.Name), s.Value)
		case *Emit:
			t.AddNode("emit " + quote(s.Event))
		case *Return:
			addExpr(t.AddBranch("return"), s.Value)
		case *ExprStmt:
			addExpr(t.AddBranch("expr"), s.X)
		case *If:
			br := t.AddBranch("if")
			addExpr(br.AddBranch("cond"), s.Cond)
			addStmts(br.AddBranch("then"), s.Then)
			if len(s.Else) > 0 {
				addStmts(br.AddBranch("else"), s.Else)
			}
		}
	}
}

func addExpr(t treeprint.Tree, e Expr) {
	switch e := e.(type) {
	case *Literal:
		t.AddNode("lit " + formatLiteral(e))
	case *Ident:
		t.AddNode("ident " + e.Name)
	case *ArrayLit:
		br := t.AddBranch("array")
		for _, el := range e.Elems {
			addExpr(br, el)
		}
	case *Unary:
		addExpr(t.AddBranch("unary "+e.Op.String()), e.X)
	case *Binary:
		br := t.AddBranch("binary " + e.Op.String())
		addExpr(br, e.Left)
		addExpr(br, e.Right)
	case *Member:
		addExpr(t.AddBranch("member ."+e.Field), e.X)
	case *TrustDim:
		addExpr(t.AddBranch("trust_dim ."+e.Dim), e.X)
	case *Index:
		br := t.AddBranch("index")
		addExpr(br, e.X)
		addExpr(br, e.Index)
	case *Call:
		br := t.AddBranch("call " + e.Func)
		for _, a := range e.Args {
			addExpr(br, a)
		}
	}
}
