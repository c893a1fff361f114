package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMagic is returned when a blob does not start with "ECLB".
	ErrInvalidMagic = errors.New("bytecode: invalid magic")

	// ErrUnsupportedVersion is returned for blobs written by a newer encoder.
	ErrUnsupportedVersion = errors.New("bytecode: unsupported format version")

	// ErrChecksumMismatch is returned when the body hash does not match the header.
	ErrChecksumMismatch = errors.New("bytecode: checksum mismatch")

	// ErrTruncated is returned when a blob ends before the declared content.
	ErrTruncated = errors.New("bytecode: truncated blob")
)

// TypeMismatchError reports a value of the wrong kind.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Got)
}

// InvalidProgramError reports a structurally broken instruction.
type InvalidProgramError struct {
	Index  int
	Reason string
}

func (e *InvalidProgramError) Error() string {
	return fmt.Sprintf("invalid instruction at %d: %s", e.Index, e.Reason)
}
