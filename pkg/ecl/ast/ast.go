package ast

// Node is implemented by every syntax tree node.
type Node interface {
	Loc() Location
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// File is a parsed source file.
type File struct {
	Name     string
	Consts   []*ConstDecl
	Policies []*Policy
}

// Policy looks up a policy by name.
func (f *File) Policy(name string) *Policy {
	for _, p := range f.Policies {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// ConstDecl is `const NAME = literal`.
type ConstDecl struct {
	Name     string
	Value    *Literal
	Location Location
}

func (d *ConstDecl) Loc() Location { return d.Location }

// Policy is `policy "name" ["description"] { ... }`.
type Policy struct {
	Name        string
	Description string
	Body        []Stmt
	Location    Location
}

func (p *Policy) Loc() Location { return p.Location }

// LiteralKind tags the variant of a Literal.
type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitBool
	LitNumber
	LitString
)

// Literal is a null, boolean, number or string constant.
type Literal struct {
	Kind     LiteralKind
	Bool     bool
	Number   float64
	String   string
	Location Location
}

// Ident is a bare name: a let binding, a constant or a contextual identity such as sender.
type Ident struct {
	Name     string
	Location Location
}

// ArrayLit is `[a, b, ...]`.
type ArrayLit struct {
	Elems    []Expr
	Location Location
}

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota // !
	OpNeg                // -
)

func (op UnaryOp) String() string {
	if op == OpNot {
		return "!"
	}
	return "-"
}

// Unary is a prefix operation.
type Unary struct {
	Op       UnaryOp
	X        Expr
	Location Location
}

// BinaryOp is an infix operator.
type BinaryOp int

const (
	OpOr BinaryOp = iota
	OpAnd
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

var binaryOpText = [...]string{
	OpOr: "||", OpAnd: "&&",
	OpEq: "==", OpNeq: "!=", OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">=",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
}

func (op BinaryOp) String() string { return binaryOpText[op] }

// Precedence returns the binding strength, higher binds tighter.
func (op BinaryOp) Precedence() int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return 3
	case OpAdd, OpSub:
		return 4
	}
	return 5
}

// IsComparison reports whether op is a non-associative comparison.
func (op BinaryOp) IsComparison() bool { return op.Precedence() == 3 }

// Binary is an infix operation.
type Binary struct {
	Op       BinaryOp
	Left     Expr
	Right    Expr
	Location Location
}

// Member is `x.field`, e.g. `sender.trust`.
type Member struct {
	X        Expr
	Field    string
	Location Location
}

// TrustDim is `x.R`, `x.I`, ... `x.omega`. Dim holds the canonical
// selector: R, I, C, P, V or Ω.
type TrustDim struct {
	X        Expr
	Dim      string
	Location Location
}

// Call is `f(args)`. Method is set when the call was written as
// `recv.f(rest)`, in which case Args[0] is the receiver.
type Call struct {
	Func     string
	Args     []Expr
	Method   bool
	Location Location
}

// Index is `x[i]`.
type Index struct {
	X        Expr
	Index    Expr
	Location Location
}

func (e *Literal) Loc() Location  { return e.Location }
func (e *Ident) Loc() Location    { return e.Location }
func (e *ArrayLit) Loc() Location { return e.Location }
func (e *Unary) Loc() Location    { return e.Location }
func (e *Binary) Loc() Location   { return e.Location }
func (e *Member) Loc() Location   { return e.Location }
func (e *TrustDim) Loc() Location { return e.Location }
func (e *Call) Loc() Location     { return e.Location }
func (e *Index) Loc() Location    { return e.Location }

func (*Literal) exprNode()  {}
func (*Ident) exprNode()    {}
func (*ArrayLit) exprNode() {}
func (*Unary) exprNode()    {}
func (*Binary) exprNode()   {}
func (*Member) exprNode()   {}
func (*TrustDim) exprNode() {}
func (*Call) exprNode()     {}
func (*Index) exprNode()    {}

// Require is `require cond [, "message"]`.
type Require struct {
	Cond       Expr
	Message    string
	HasMessage bool
	Location   Location
}

// Let is `let name = value`.
type Let struct {
	Name     string
	Value    Expr
	Location Location
}

// Emit is `emit "event"`.
type Emit struct {
	Event    string
	Location Location
}

// Return is `return value`.
type Return struct {
	Value    Expr
	Location Location
}

// If is `if cond { ... } else { ... }`. An `else if` chain is stored as a
// single nested If in Else.
type If struct {
	Cond     Expr
	Then     []Stmt
	Else     []Stmt
	Location Location
}

// ExprStmt is an expression evaluated for its side effects, e.g. `log("x")`.
type ExprStmt struct {
	X        Expr
	Location Location
}

func (s *Require) Loc() Location  { return s.Location }
func (s *Let) Loc() Location      { return s.Location }
func (s *Emit) Loc() Location     { return s.Location }
func (s *Return) Loc() Location   { return s.Location }
func (s *If) Loc() Location       { return s.Location }
func (s *ExprStmt) Loc() Location { return s.Location }

func (*Require) stmtNode()  {}
func (*Let) stmtNode()      {}
func (*Emit) stmtNode()     {}
func (*Return) stmtNode()   {}
func (*If) stmtNode()       {}
func (*ExprStmt) stmtNode() {}
