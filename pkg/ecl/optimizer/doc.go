// Package optimizer rewrites ECL bytecode without changing its observable
// behaviour.
//
// Three passes run in rounds until a round changes nothing:
//
//   - constant folding: PushConst PushConst <binop> and PushConst <unop>
//     collapse to a single PushConst (division and modulo by zero are left
//     for the VM to report)
//   - peephole: no-op pairs (push/pop, dup/pop, swap/swap, jump to next)
//     are removed and statically decided conditional jumps are resolved;
//     dup/pop and swap/swap go only where a forward pass over the control
//     flow proves the stack holds enough slots, so an underflow stays an
//     underflow
//   - dead code elimination: instructions unreachable from index 0 are
//     dropped
//
// Every pass removes instructions through the same rebuild step, which
// remaps jump and call targets to the new indices. A rewrite never spans
// a jump target, so control entering the middle of a pattern keeps its
// meaning.
package optimizer
