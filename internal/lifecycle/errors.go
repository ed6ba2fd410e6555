package lifecycle

import "errors"

// Domain errors for the lifecycle package.
var (
	// ErrAlreadyStarted is returned when Startup is called more than once.
	ErrAlreadyStarted = errors.New("lifecycle: already started")

	// ErrShuttingDown is returned when Startup is interrupted by Shutdown.
	ErrShuttingDown = errors.New("lifecycle: shutting down")

	// ErrInvalidOptions is returned by New when a required dependency is missing.
	ErrInvalidOptions = errors.New("lifecycle: invalid options")
)
