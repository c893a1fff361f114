// Package compiler lowers ECL syntax trees to bytecode.
//
// Code generation is single pass over an append-only instruction buffer.
// Forward jumps for if/else are emitted with a placeholder target and
// patched by index once the branch length is known.
//
// # Bindings
//
// There is no heap: `let x = e` leaves the value of e on the stack and
// later reads of x are compiled to Pick with a depth computed from the
// compiler's running stack height. Names listed in Options.Preload are
// bound to the slots the caller pushes before execution (the policy
// runner pushes the caller DID, bound as `sender`).
//
// Identifiers that are neither bindings nor constants compile to a DID
// literal of the same name, so contextual identities can be written
// without declaration.
//
// # Diagnostics
//
// Unknown fields, unknown functions, wrong argument counts and
// unsupported expressions are collected in an ast.Diagnostics instead of
// aborting, so tooling can report all problems at once. A program
// produced alongside errors must not be executed.
package compiler
