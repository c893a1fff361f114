package parser

import (
	"fmt"

	"erynoa/eclvm/pkg/ecl/ast"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokNewline
	TokIllegal
	TokIdent
	TokNumber
	TokString

	// Keywords
	TokPolicy
	TokRequire
	TokLet
	TokIf
	TokElse
	TokReturn
	TokEmit
	TokConst
	TokTrue
	TokFalse
	TokNull

	// Operators and punctuation
	TokOrOr
	TokAndAnd
	TokEq
	TokNeq
	TokLt
	TokLte
	TokGt
	TokGte
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent
	TokBang
	TokDot
	TokComma
	TokAssign
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
)

var keywords = map[string]TokenKind{
	"policy":  TokPolicy,
	"require": TokRequire,
	"let":     TokLet,
	"if":      TokIf,
	"else":    TokElse,
	"return":  TokReturn,
	"emit":    TokEmit,
	"const":   TokConst,
	"true":    TokTrue,
	"false":   TokFalse,
	"null":    TokNull,
}

var tokenNames = map[TokenKind]string{
	TokEOF: "end of file", TokNewline: "newline", TokIllegal: "illegal token",
	TokIdent: "identifier", TokNumber: "number", TokString: "string",
	TokOrOr: "'||'", TokAndAnd: "'&&'", TokEq: "'=='", TokNeq: "'!='",
	TokLt: "'<'", TokLte: "'<='", TokGt: "'>'", TokGte: "'>='",
	TokPlus: "'+'", TokMinus: "'-'", TokStar: "'*'", TokSlash: "'/'", TokPercent: "'%'",
	TokBang: "'!'", TokDot: "'.'", TokComma: "','", TokAssign: "'='",
	TokLParen: "'('", TokRParen: "')'", TokLBrace: "'{'", TokRBrace: "'}'",
	TokLBracket: "'['", TokRBracket: "']'",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	for word, kind := range keywords {
		if kind == k {
			return "'" + word + "'"
		}
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is a lexical token with its source position.
type Token struct {
	Kind TokenKind
	Text string
	Num  float64
	Loc  ast.Location
}

func (t Token) describe() string {
	switch t.Kind {
	case TokIdent, TokNumber:
		return fmt.Sprintf("%s '%s'", t.Kind, t.Text)
	case TokString:
		return fmt.Sprintf("string %q", t.Text)
	}
	return t.Kind.String()
}
