package host

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned by adapters for capabilities they do not provide.
	ErrNotSupported = errors.New("operation not supported by host")

	// ErrInsufficientMana is returned when a store write cannot be paid for.
	ErrInsufficientMana = errors.New("insufficient mana")

	// ErrSchemaNotFound is returned for an unknown schema version.
	ErrSchemaNotFound = errors.New("schema version not found")

	// ErrInvalidSchemaChange is returned when a change does not apply to the current schema.
	ErrInvalidSchemaChange = errors.New("invalid schema change")

	// ErrNotPending is returned when activating or rejecting a version that is not pending.
	ErrNotPending = errors.New("schema version is not pending")
)

// OpError reports which host operation failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *OpError) Unwrap() error { return e.Err }

func notSupported(op string) error {
	return &OpError{Op: op, Err: ErrNotSupported}
}

// ChallengeActiveError is returned when activating a breaking change
// before its challenge period has ended.
type ChallengeActiveError struct {
	Version          uint32
	RemainingSeconds uint64
}

func (e *ChallengeActiveError) Error() string {
	return fmt.Sprintf("challenge period for schema version %d not ended, %ds remaining", e.Version, e.RemainingSeconds)
}
