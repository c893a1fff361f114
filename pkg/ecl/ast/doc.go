// Package ast defines the syntax tree of ECL source files.
//
// A File holds top-level constant declarations and named policies. Policy
// bodies are statement lists (require, let, emit, return, if/else and
// expression statements); expressions cover literals, identifiers,
// unary and binary operators, member access, trust dimension selection,
// calls, array literals and indexing.
//
// The package also provides the Diagnostics collector shared by the
// parser and compiler, a canonical source printer (Format) and a tree
// view (Tree) used by tooling.
package ast
