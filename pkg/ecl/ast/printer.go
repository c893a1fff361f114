package ast

import (
	"strconv"
	"strings"
)

const indentUnit = "    "

// Format renders a File as canonical ECL source. Formatting a parsed file
// and parsing the result yields an equivalent tree.
func Format(f *File) string {
	var p printer
	for _, c := range f.Consts {
		p.line(0, "const "+c.Name+" = "+FormatExpr(c.Value))
	}
	for i, pol := range f.Policies {
		if i > 0 || len(f.Consts) > 0 {
			p.sb.WriteString("\n")
		}
		head := "policy " + quote(pol.Name)
		if pol.Description != "" {
			head += " " + quote(pol.Description)
		}
		p.line(0, head+" {")
		p.block(1, pol.Body)
		p.line(0, "}")
	}
	return p.sb.String()
}

// FormatStmts renders a statement list at the top indentation level.
func FormatStmts(stmts []Stmt) string {
	var p printer
	p.block(0, stmts)
	return p.sb.String()
}

type printer struct {
	sb strings.Builder
}

func (p *printer) line(depth int, s string) {
	p.sb.WriteString(strings.Repeat(indentUnit, depth))
	p.sb.WriteString(s)
	p.sb.WriteString("\n")
}

func (p *printer) block(depth int, stmts []Stmt) {
	for _, s := range stmts {
		p.stmt(depth, s)
	}
}

func (p *printer) stmt(depth int, s Stmt) {
	switch s := s.(type) {
	case *Require:
		text := "require " + FormatExpr(s.Cond)
		if s.HasMessage {
			text += ", " + quote(s.Message)
		}
		p.line(depth, text)
	case *Let:
		p.line(depth, "let "+s.Name+" = "+FormatExpr(s.Value))
	case *Emit:
		p.line(depth, "emit "+quote(s.Event))
	case *Return:
		p.line(depth, "return "+FormatExpr(s.Value))
	case *ExprStmt:
		p.line(depth, FormatExpr(s.X))
	case *If:
		p.ifChain(depth, s, "")
	}
}

func (p *printer) ifChain(depth int, s *If, prefix string) {
	p.line(depth, prefix+"if "+FormatExpr(s.Cond)+" {")
	p.block(depth+1, s.Then)
	switch {
	case len(s.Else) == 1:
		if nested, ok := s.Else[0].(*If); ok {
			p.ifChain(depth, nested, "} else ")
			return
		}
		fallthrough
	case len(s.Else) > 0:
		p.line(depth, "} else {")
		p.block(depth+1, s.Else)
	}
	p.line(depth, "}")
}

const (
	precUnary   = 6
	precPostfix = 7
)

// FormatExpr renders an expression with the minimum parentheses needed to
// preserve its structure.
func FormatExpr(e Expr) string {
	s, _ := formatExpr(e)
	return s
}

func formatExpr(e Expr) (string, int) {
	switch e := e.(type) {
	case *Literal:
		if e.Kind == LitNumber && e.Number < 0 {
			return formatLiteral(e), precUnary
		}
		return formatLiteral(e), precPostfix
	case *Ident:
		return e.Name, precPostfix
	case *ArrayLit:
		parts := make([]string, len(e.Elems))
		for i, el := range e.Elems {
			parts[i] = FormatExpr(el)
		}
		return "[" + strings.Join(parts, ", ") + "]", precPostfix
	case *Unary:
		x, xp := formatExpr(e.X)
		if xp < precUnary {
			x = "(" + x + ")"
		}
		return e.Op.String() + x, precUnary
	case *Binary:
		prec := e.Op.Precedence()
		l, lp := formatExpr(e.Left)
		if lp < prec || (e.Op.IsComparison() && lp == prec) {
			l = "(" + l + ")"
		}
		r, rp := formatExpr(e.Right)
		if rp <= prec {
			r = "(" + r + ")"
		}
		return l + " " + e.Op.String() + " " + r, prec
	case *Member:
		return postfixReceiver(e.X) + "." + e.Field, precPostfix
	case *TrustDim:
		return postfixReceiver(e.X) + "." + e.Dim, precPostfix
	case *Index:
		return postfixReceiver(e.X) + "[" + FormatExpr(e.Index) + "]", precPostfix
	case *Call:
		args := e.Args
		prefix := e.Func
		if e.Method && len(args) > 0 {
			prefix = postfixReceiver(args[0]) + "." + e.Func
			args = args[1:]
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = FormatExpr(a)
		}
		return prefix + "(" + strings.Join(parts, ", ") + ")", precPostfix
	}
	return "<?>", precPostfix
}

func postfixReceiver(x Expr) string {
	s, p := formatExpr(x)
	if p < precPostfix {
		return "(" + s + ")"
	}
	return s
}

func formatLiteral(l *Literal) string {
	switch l.Kind {
	case LitBool:
		return strconv.FormatBool(l.Bool)
	case LitNumber:
		return strconv.FormatFloat(l.Number, 'f', -1, 64)
	case LitString:
		return quote(l.String)
	}
	return "null"
}

// quote produces a string literal using only the escapes the lexer understands.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
