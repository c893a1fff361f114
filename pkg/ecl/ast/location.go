package ast

import "fmt"

// Location is a position in an ECL source file.
type Location struct {
	File   string // Path to the source file, empty for inline input
	Line   int    // 1-based
	Column int    // 1-based
}

// String returns "file:line:column", or "line:column" for inline input.
func (l Location) String() string {
	if !l.IsValid() {
		return "<unknown>"
	}
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// IsValid reports whether the location carries line information.
func (l Location) IsValid() bool {
	return l.Line > 0
}
