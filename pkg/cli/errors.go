package cli

import (
	"errors"
	"fmt"

	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/vm"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitDenied   = 2 // the policy evaluated to false or rejected the caller
	ExitCompile  = 3 // parse or compile diagnostics
	ExitResource = 4 // gas, mana, stack or time exhausted
)

// ConfigError represents an invalid flag or configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError wraps the failure of a command.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

var (
	// ErrDenied is returned by commands whose policy evaluated to false.
	ErrDenied = errors.New("policy denied")
	// ErrCompile is returned after diagnostics were already reported.
	ErrCompile = errors.New("compilation failed")
)

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var diags *ast.Diagnostics
	var rejected *vm.PolicyRejectedError
	switch {
	case errors.Is(err, ErrCompile), errors.As(err, &diags):
		return ExitCompile
	case errors.Is(err, ErrDenied), errors.As(err, &rejected):
		return ExitDenied
	case vm.IsResourceError(err):
		return ExitResource
	}
	return ExitFailure
}
