// Package vm executes ECL bytecode.
//
// The machine is a fetch-decode-execute loop over a single value stack
// plus a call stack of return addresses. Every instruction is charged its
// static gas cost against a budget.Budget before it touches the stack, so
// a run that fails with OutOfGasError never reports more gas used than its
// limit. Domain opcodes (trust, credential, balance, identity, time, log)
// delegate to a host.Host.
//
// A run ends on Return from the outermost frame, on Halt, when execution
// falls off the end of the program, or with an error. The value left on
// top of the stack is the verdict. There is no resume: callers start a
// new run with a fresh Budget.
//
// Basic usage:
//
//	b := budget.WithGasLimit(10_000)
//	res, err := vm.Run(ctx, program, b, host.NewStubHost())
//	if err != nil {
//	    var rejected *vm.PolicyRejectedError
//	    if errors.As(err, &rejected) {
//	        // deny
//	    }
//	}
//
// The timeout of the budget and cancellation of ctx are checked at every
// instruction boundary.
package vm
