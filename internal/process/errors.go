package process

import (
	"errors"
	"fmt"
)

// Domain-specific errors for command execution.
var (
	// ErrTimeout is returned when the command did not finish before its deadline.
	ErrTimeout = errors.New("process: command timed out")

	// ErrInvalidCommand is returned when Command has no Name.
	ErrInvalidCommand = errors.New("process: invalid command")
)

// ExitError reports a command that ran but exited with a non-zero status.
type ExitError struct {
	Name     string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process: %s exited with status %d", e.Name, e.ExitCode)
}
