package dispatch

import "errors"

// Domain errors for the dispatch package.
var (
	// ErrInvalidCommand is returned when registering a command without a name or handler.
	ErrInvalidCommand = errors.New("dispatch: invalid command")

	// ErrCommandConflict is returned when a name or alias is already registered.
	ErrCommandConflict = errors.New("dispatch: command name conflict")

	// ErrUsage is returned by handlers for malformed arguments. The dispatcher
	// replies with the command's usage line instead of a warning.
	ErrUsage = errors.New("dispatch: usage")
)
