package vm

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel runtime errors.
var (
	// ErrStackUnderflow indicates an instruction needed more operands than the stack holds.
	ErrStackUnderflow = errors.New("stack underflow")

	// ErrDivisionByZero indicates Div or Mod with a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrAborted indicates the program executed Abort.
	ErrAborted = errors.New("program aborted")

	// ErrInvalidJump indicates a jump or call outside the program.
	ErrInvalidJump = errors.New("invalid jump target")
)

// TypeError reports an operand of the wrong kind.
type TypeError struct {
	IP  int
	Op  string
	Err error
}

// Error returns the error message.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type error at %d (%s): %v", e.IP, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TypeError) Unwrap() error { return e.Err }

// StackOverflowError reports a stack deeper than the budget allows.
type StackOverflowError struct {
	Limit     int
	Attempted int
}

// Error returns the error message.
func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("stack overflow: depth %d exceeds limit %d", e.Attempted, e.Limit)
}

// OutOfGasError reports gas exhaustion. Attempted is the total the failing
// instruction would have brought usage to.
type OutOfGasError struct {
	Limit     uint64
	Attempted uint64
}

// Error returns the error message.
func (e *OutOfGasError) Error() string {
	return fmt.Sprintf("out of gas: needed %d, limit %d", e.Attempted, e.Limit)
}

// OutOfManaError reports mana exhaustion.
type OutOfManaError struct {
	Limit     uint64
	Attempted uint64
}

// Error returns the error message.
func (e *OutOfManaError) Error() string {
	return fmt.Sprintf("out of mana: needed %d, limit %d", e.Attempted, e.Limit)
}

// TimeoutError reports that the budget deadline passed or the context was
// cancelled. Cause is the context error in the latter case.
type TimeoutError struct {
	Limit   time.Duration
	Elapsed time.Duration
	Cause   error
}

// Error returns the error message.
func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("execution cancelled after %v: %v", e.Elapsed, e.Cause)
	}
	return fmt.Sprintf("execution timeout after %v (limit %v)", e.Elapsed, e.Limit)
}

// Unwrap returns the underlying cause.
func (e *TimeoutError) Unwrap() error { return e.Cause }

// PolicyRejectedError reports a failed Assert or Require.
type PolicyRejectedError struct {
	Message string
}

// Error returns the error message.
func (e *PolicyRejectedError) Error() string {
	return "policy rejected: " + e.Message
}

// HostError wraps a failure reported by the host.
type HostError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *HostError) Error() string {
	return fmt.Sprintf("host %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *HostError) Unwrap() error { return e.Err }

// IsResourceError reports whether err is a budget exhaustion error.
func IsResourceError(err error) bool {
	var (
		gas      *OutOfGasError
		mana     *OutOfManaError
		timeout  *TimeoutError
		overflow *StackOverflowError
	)
	return errors.As(err, &gas) || errors.As(err, &mana) || errors.As(err, &timeout) || errors.As(err, &overflow)
}
