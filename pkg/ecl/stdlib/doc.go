// Package stdlib provides reusable bytecode fragments for hand-assembled
// ECL policies.
//
// Snippets are small stack transformations (trust accessors, math helpers)
// that can be spliced into any program. Patterns are guard sequences that
// abort the run with a PolicyRejectedError when a condition does not hold.
// PolicyBuilder strings patterns together into a complete admission policy.
//
// All snippets are relocatable: Append shifts the jump targets of a
// fragment to its insertion offset, so fragments carrying jumps can be
// placed anywhere in a program.
//
// Stack effects use the notation [before] -> [after], top of stack last.
package stdlib
