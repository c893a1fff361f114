package parser

import (
	"erynoa/eclvm/pkg/ecl/ast"
)

// bailout unwinds the parser to the nearest statement or declaration
// boundary after a syntax error has been recorded.
type bailout struct{}

// Parser is a recursive-descent parser over a token slice.
type Parser struct {
	toks  []Token
	pos   int
	diags *ast.Diagnostics
}

func newParser(file, src string) *Parser {
	diags := ast.NewDiagnostics()
	toks := NewLexer(file, src, diags).Tokenize()
	return &Parser{toks: toks, diags: diags}
}

// ParseFile parses a complete source file. The returned file is never
// nil; it holds every declaration that parsed cleanly.
func ParseFile(name, src string) (*ast.File, *ast.Diagnostics) {
	p := newParser(name, src)
	f := &ast.File{Name: name}
	for {
		p.skipNewlines()
		if p.at(TokEOF) {
			break
		}
		p.parseDecl(f)
	}
	return f, p.diags
}

// ParseExpr parses a single expression, for interactive evaluation.
func ParseExpr(src string) (ast.Expr, *ast.Diagnostics) {
	p := newParser("", src)
	var e ast.Expr
	func() {
		defer p.recoverTo(func() {})
		p.skipNewlines()
		e = p.parseExpr()
		p.skipNewlines()
		if !p.at(TokEOF) {
			p.failUnexpected("end of expression")
		}
	}()
	return e, p.diags
}

// ParseStmts parses a bare statement list without a policy wrapper.
func ParseStmts(src string) ([]ast.Stmt, *ast.Diagnostics) {
	p := newParser("", src)
	var stmts []ast.Stmt
	for {
		p.skipNewlines()
		if p.at(TokEOF) {
			break
		}
		if t := p.peek(); t.Kind == TokRBrace {
			// No block is open; recovery always stops in front of a closing brace.
			p.diags.Errorf(ast.CodeUnexpectedToken, t.Loc, "unexpected %s outside a block", t.describe())
			p.next()
			continue
		}
		start := p.pos
		if s := p.parseStmtRecover(); s != nil {
			stmts = append(stmts, s)
		}
		if p.pos == start {
			p.next()
		}
	}
	return stmts, p.diags
}

func (p *Parser) peek() Token { return p.toks[p.pos] }

func (p *Parser) peekAt(n int) Token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) at(k TokenKind) bool { return p.toks[p.pos].Kind == k }

func (p *Parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) accept(k TokenKind) bool {
	if p.at(k) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(k TokenKind) Token {
	if !p.at(k) {
		p.failUnexpected(k.String())
	}
	return p.next()
}

func (p *Parser) skipNewlines() {
	for p.at(TokNewline) {
		p.next()
	}
}

func (p *Parser) failUnexpected(want string) {
	t := p.peek()
	if t.Kind != TokIllegal {
		p.diags.Errorf(ast.CodeUnexpectedToken, t.Loc, "expected %s, found %s", want, t.describe())
	}
	panic(bailout{})
}

// recoverTo swallows a bailout and runs sync to resynchronize.
func (p *Parser) recoverTo(sync func()) {
	if r := recover(); r != nil {
		if _, ok := r.(bailout); !ok {
			panic(r)
		}
		sync()
	}
}

func (p *Parser) syncStmt() {
	for !p.at(TokNewline) && !p.at(TokRBrace) && !p.at(TokEOF) {
		p.next()
	}
}

func (p *Parser) syncDecl() {
	p.next()
	for !p.at(TokPolicy) && !p.at(TokConst) && !p.at(TokEOF) {
		p.next()
	}
}

func (p *Parser) parseDecl(f *ast.File) {
	defer p.recoverTo(p.syncDecl)
	switch p.peek().Kind {
	case TokConst:
		f.Consts = append(f.Consts, p.parseConst())
	case TokPolicy:
		f.Policies = append(f.Policies, p.parsePolicy())
	default:
		p.failUnexpected("'policy' or 'const'")
	}
}

func (p *Parser) parseConst() *ast.ConstDecl {
	loc := p.expect(TokConst).Loc
	name := p.expect(TokIdent)
	p.expect(TokAssign)
	negate := p.accept(TokMinus)
	lit := p.parseLiteral()
	if negate {
		if lit.Kind != ast.LitNumber {
			p.diags.Errorf(ast.CodeUnexpectedToken, lit.Location, "cannot negate a non-numeric constant")
			panic(bailout{})
		}
		lit.Number = -lit.Number
	}
	p.endOfStmt()
	return &ast.ConstDecl{Name: name.Text, Value: lit, Location: loc}
}

func (p *Parser) parseLiteral() *ast.Literal {
	t := p.peek()
	switch t.Kind {
	case TokNumber:
		p.next()
		return &ast.Literal{Kind: ast.LitNumber, Number: t.Num, Location: t.Loc}
	case TokString:
		p.next()
		return &ast.Literal{Kind: ast.LitString, String: t.Text, Location: t.Loc}
	case TokTrue, TokFalse:
		p.next()
		return &ast.Literal{Kind: ast.LitBool, Bool: t.Kind == TokTrue, Location: t.Loc}
	case TokNull:
		p.next()
		return &ast.Literal{Kind: ast.LitNull, Location: t.Loc}
	}
	p.failUnexpected("literal")
	return nil
}

func (p *Parser) parsePolicy() *ast.Policy {
	loc := p.expect(TokPolicy).Loc
	name := p.expect(TokString)
	pol := &ast.Policy{Name: name.Text, Location: loc}
	if p.at(TokString) {
		pol.Description = p.next().Text
	}
	pol.Body = p.parseBlock()
	return pol
}

func (p *Parser) parseBlock() []ast.Stmt {
	p.expect(TokLBrace)
	var stmts []ast.Stmt
	for {
		p.skipNewlines()
		if p.at(TokRBrace) {
			p.next()
			return stmts
		}
		if p.at(TokEOF) {
			p.failUnexpected("'}'")
		}
		if s := p.parseStmtRecover(); s != nil {
			stmts = append(stmts, s)
		}
	}
}

func (p *Parser) parseStmtRecover() (s ast.Stmt) {
	defer p.recoverTo(func() {
		s = nil
		p.syncStmt()
	})
	return p.parseStmt()
}

// endOfStmt requires a separator, a closing brace or end of input.
func (p *Parser) endOfStmt() {
	switch p.peek().Kind {
	case TokNewline:
		p.next()
	case TokRBrace, TokEOF:
	default:
		p.failUnexpected("end of statement")
	}
}

func (p *Parser) parseStmt() ast.Stmt {
	t := p.peek()
	switch t.Kind {
	case TokRequire:
		p.next()
		s := &ast.Require{Cond: p.parseExpr(), Location: t.Loc}
		if p.accept(TokComma) {
			s.Message = p.expect(TokString).Text
			s.HasMessage = true
		}
		p.endOfStmt()
		return s
	case TokLet:
		p.next()
		name := p.expect(TokIdent)
		p.expect(TokAssign)
		s := &ast.Let{Name: name.Text, Value: p.parseExpr(), Location: t.Loc}
		p.endOfStmt()
		return s
	case TokEmit:
		p.next()
		s := &ast.Emit{Event: p.expect(TokString).Text, Location: t.Loc}
		p.endOfStmt()
		return s
	case TokReturn:
		p.next()
		s := &ast.Return{Value: p.parseExpr(), Location: t.Loc}
		p.endOfStmt()
		return s
	case TokIf:
		s := p.parseIf()
		p.endOfStmt()
		return s
	}
	x := p.parseExpr()
	p.endOfStmt()
	return &ast.ExprStmt{X: x, Location: t.Loc}
}

func (p *Parser) parseIf() *ast.If {
	loc := p.expect(TokIf).Loc
	s := &ast.If{Cond: p.parseExpr(), Location: loc}
	s.Then = p.parseBlock()

	// Allow `}` and `else` on separate lines.
	if p.at(TokNewline) && p.peekAt(1).Kind == TokElse {
		p.next()
	}
	if p.accept(TokElse) {
		if p.at(TokIf) {
			s.Else = []ast.Stmt{p.parseIf()}
		} else {
			s.Else = p.parseBlock()
		}
	}
	return s
}

func (p *Parser) parseExpr() ast.Expr { return p.parseOr() }

func (p *Parser) parseOr() ast.Expr {
	x := p.parseAnd()
	for p.at(TokOrOr) {
		t := p.next()
		p.skipNewlines()
		x = &ast.Binary{Op: ast.OpOr, Left: x, Right: p.parseAnd(), Location: t.Loc}
	}
	return x
}

func (p *Parser) parseAnd() ast.Expr {
	x := p.parseCmp()
	for p.at(TokAndAnd) {
		t := p.next()
		p.skipNewlines()
		x = &ast.Binary{Op: ast.OpAnd, Left: x, Right: p.parseCmp(), Location: t.Loc}
	}
	return x
}

var cmpOps = map[TokenKind]ast.BinaryOp{
	TokEq: ast.OpEq, TokNeq: ast.OpNeq,
	TokLt: ast.OpLt, TokLte: ast.OpLte,
	TokGt: ast.OpGt, TokGte: ast.OpGte,
}

func (p *Parser) parseCmp() ast.Expr {
	x := p.parseAdd()
	if op, ok := cmpOps[p.peek().Kind]; ok {
		t := p.next()
		p.skipNewlines()
		x = &ast.Binary{Op: op, Left: x, Right: p.parseAdd(), Location: t.Loc}
	}
	return x
}

func (p *Parser) parseAdd() ast.Expr {
	x := p.parseMul()
	for p.at(TokPlus) || p.at(TokMinus) {
		t := p.next()
		p.skipNewlines()
		op := ast.OpAdd
		if t.Kind == TokMinus {
			op = ast.OpSub
		}
		x = &ast.Binary{Op: op, Left: x, Right: p.parseMul(), Location: t.Loc}
	}
	return x
}

func (p *Parser) parseMul() ast.Expr {
	x := p.parseUnary()
	for p.at(TokStar) || p.at(TokSlash) || p.at(TokPercent) {
		t := p.next()
		p.skipNewlines()
		op := ast.OpMul
		switch t.Kind {
		case TokSlash:
			op = ast.OpDiv
		case TokPercent:
			op = ast.OpMod
		}
		x = &ast.Binary{Op: op, Left: x, Right: p.parseUnary(), Location: t.Loc}
	}
	return x
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.peek().Kind {
	case TokBang:
		t := p.next()
		return &ast.Unary{Op: ast.OpNot, X: p.parseUnary(), Location: t.Loc}
	case TokMinus:
		t := p.next()
		return &ast.Unary{Op: ast.OpNeg, X: p.parseUnary(), Location: t.Loc}
	}
	return p.parsePostfix()
}

// dimensionSelector maps the accepted spellings of a trust dimension to
// its canonical selector.
var dimensionSelector = map[string]string{
	"R": "R", "I": "I", "C": "C", "P": "P", "V": "V",
	"Ω": "Ω", "omega": "Ω", "Omega": "Ω",
}

func (p *Parser) parsePostfix() ast.Expr {
	x := p.parsePrimary()
	for {
		switch p.peek().Kind {
		case TokDot:
			dot := p.next()
			name := p.expect(TokIdent)
			if dim, ok := dimensionSelector[name.Text]; ok {
				x = &ast.TrustDim{X: x, Dim: dim, Location: dot.Loc}
				continue
			}
			if p.at(TokLParen) {
				args := append([]ast.Expr{x}, p.parseArgs()...)
				x = &ast.Call{Func: name.Text, Args: args, Method: true, Location: name.Loc}
				continue
			}
			x = &ast.Member{X: x, Field: name.Text, Location: name.Loc}
		case TokLBracket:
			t := p.next()
			idx := p.parseExpr()
			p.expect(TokRBracket)
			x = &ast.Index{X: x, Index: idx, Location: t.Loc}
		default:
			return x
		}
	}
}

func (p *Parser) parseArgs() []ast.Expr {
	p.expect(TokLParen)
	var args []ast.Expr
	for !p.at(TokRParen) {
		args = append(args, p.parseExpr())
		if !p.accept(TokComma) {
			break
		}
	}
	p.expect(TokRParen)
	return args
}

func (p *Parser) parsePrimary() ast.Expr {
	t := p.peek()
	switch t.Kind {
	case TokNumber, TokString, TokTrue, TokFalse, TokNull:
		return p.parseLiteral()
	case TokIdent:
		p.next()
		if p.at(TokLParen) {
			return &ast.Call{Func: t.Text, Args: p.parseArgs(), Location: t.Loc}
		}
		return &ast.Ident{Name: t.Text, Location: t.Loc}
	case TokLParen:
		p.next()
		x := p.parseExpr()
		p.expect(TokRParen)
		return x
	case TokLBracket:
		p.next()
		arr := &ast.ArrayLit{Location: t.Loc}
		for !p.at(TokRBracket) {
			arr.Elems = append(arr.Elems, p.parseExpr())
			if !p.accept(TokComma) {
				break
			}
		}
		p.expect(TokRBracket)
		return arr
	}
	p.failUnexpected("expression")
	return nil
}
