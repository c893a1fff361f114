// Package parser turns ECL source text into an ast.File.
//
// The lexer treats newlines and ';' as statement separators, except
// inside parentheses or brackets and directly after a binary operator.
// Parsing never stops at the first problem: each malformed statement is
// reported to the returned ast.Diagnostics and skipped, so a single run
// reports every syntax error in a file.
//
// Example:
//
//	file, diags := parser.ParseFile("entry.ecl", src)
//	if diags.HasErrors() {
//	    return diags.Err()
//	}
package parser
