package parser

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"erynoa/eclvm/pkg/ecl/ast"
)

// Lexer splits ECL source into tokens.
type Lexer struct {
	src   string
	file  string
	pos   int
	line  int
	col   int
	nest  int // open ( and [
	diags *ast.Diagnostics
}

// NewLexer returns a lexer over src. Lexical errors are added to diags.
func NewLexer(file, src string, diags *ast.Diagnostics) *Lexer {
	return &Lexer{src: src, file: file, line: 1, col: 1, diags: diags}
}

// Tokenize lexes the entire input. The last token is always TokEOF.
func (l *Lexer) Tokenize() []Token {
	var toks []Token
	for {
		t := l.Next()
		// Collapse runs of separators.
		if t.Kind == TokNewline && (len(toks) == 0 || toks[len(toks)-1].Kind == TokNewline) {
			continue
		}
		toks = append(toks, t)
		if t.Kind == TokEOF {
			return toks
		}
	}
}

func (l *Lexer) loc() ast.Location {
	return ast.Location{File: l.file, Line: l.line, Column: l.col}
}

func (l *Lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r
}

func (l *Lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

// Next returns the next token.
func (l *Lexer) Next() Token {
	for l.pos < len(l.src) {
		r := l.peekRune()
		switch {
		case r == '\n' || r == ';':
			start := l.loc()
			l.advance()
			if l.nest > 0 && r == '\n' {
				continue
			}
			return Token{Kind: TokNewline, Text: string(r), Loc: start}
		case unicode.IsSpace(r):
			l.advance()
		case r == '/' && strings.HasPrefix(l.src[l.pos:], "//"):
			for l.pos < len(l.src) && l.peekRune() != '\n' {
				l.advance()
			}
		default:
			return l.scanToken()
		}
	}
	return Token{Kind: TokEOF, Loc: l.loc()}
}

func (l *Lexer) scanToken() Token {
	start := l.loc()
	r := l.peekRune()

	switch {
	case r == '_' || unicode.IsLetter(r):
		begin := l.pos
		for l.pos < len(l.src) {
			c := l.peekRune()
			if c != '_' && !unicode.IsLetter(c) && !unicode.IsDigit(c) {
				break
			}
			l.advance()
		}
		text := l.src[begin:l.pos]
		if kw, ok := keywords[text]; ok {
			return Token{Kind: kw, Text: text, Loc: start}
		}
		return Token{Kind: TokIdent, Text: text, Loc: start}
	case r >= '0' && r <= '9':
		return l.scanNumber(start)
	case r == '"':
		return l.scanString(start)
	}

	l.advance()
	two := func(next rune, yes, no TokenKind) Token {
		if l.peekRune() == next {
			l.advance()
			return Token{Kind: yes, Text: string(r) + string(next), Loc: start}
		}
		return Token{Kind: no, Text: string(r), Loc: start}
	}

	switch r {
	case '|':
		if l.peekRune() == '|' {
			l.advance()
			return Token{Kind: TokOrOr, Text: "||", Loc: start}
		}
	case '&':
		if l.peekRune() == '&' {
			l.advance()
			return Token{Kind: TokAndAnd, Text: "&&", Loc: start}
		}
	case '=':
		return two('=', TokEq, TokAssign)
	case '!':
		return two('=', TokNeq, TokBang)
	case '<':
		return two('=', TokLte, TokLt)
	case '>':
		return two('=', TokGte, TokGt)
	case '+':
		return Token{Kind: TokPlus, Text: "+", Loc: start}
	case '-':
		return Token{Kind: TokMinus, Text: "-", Loc: start}
	case '*':
		return Token{Kind: TokStar, Text: "*", Loc: start}
	case '/':
		return Token{Kind: TokSlash, Text: "/", Loc: start}
	case '%':
		return Token{Kind: TokPercent, Text: "%", Loc: start}
	case '.':
		return Token{Kind: TokDot, Text: ".", Loc: start}
	case ',':
		return Token{Kind: TokComma, Text: ",", Loc: start}
	case '(':
		l.nest++
		return Token{Kind: TokLParen, Text: "(", Loc: start}
	case ')':
		if l.nest > 0 {
			l.nest--
		}
		return Token{Kind: TokRParen, Text: ")", Loc: start}
	case '[':
		l.nest++
		return Token{Kind: TokLBracket, Text: "[", Loc: start}
	case ']':
		if l.nest > 0 {
			l.nest--
		}
		return Token{Kind: TokRBracket, Text: "]", Loc: start}
	case '{':
		return Token{Kind: TokLBrace, Text: "{", Loc: start}
	case '}':
		return Token{Kind: TokRBrace, Text: "}", Loc: start}
	}

	l.diags.Errorf(ast.CodeUnexpectedChar, start, "unexpected character %q", r)
	return Token{Kind: TokIllegal, Text: string(r), Loc: start}
}

func (l *Lexer) scanNumber(start ast.Location) Token {
	begin := l.pos
	for l.pos < len(l.src) && isDigit(l.peekRune()) {
		l.advance()
	}
	if l.peekRune() == '.' && l.pos+1 < len(l.src) && isDigit(rune(l.src[l.pos+1])) {
		l.advance()
		for l.pos < len(l.src) && isDigit(l.peekRune()) {
			l.advance()
		}
	}
	text := l.src[begin:l.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		l.diags.Errorf(ast.CodeInvalidNumber, start, "invalid number %q", text)
		return Token{Kind: TokIllegal, Text: text, Loc: start}
	}
	return Token{Kind: TokNumber, Text: text, Num: n, Loc: start}
}

func (l *Lexer) scanString(start ast.Location) Token {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) || l.peekRune() == '\n' {
			l.diags.Errorf(ast.CodeUnterminatedString, start, "unterminated string literal")
			return Token{Kind: TokIllegal, Text: sb.String(), Loc: start}
		}
		r := l.advance()
		switch r {
		case '"':
			return Token{Kind: TokString, Text: sb.String(), Loc: start}
		case '\\':
			if l.pos >= len(l.src) {
				continue
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '"', '\\':
				sb.WriteRune(esc)
			default:
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(r)
		}
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
