package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration loading and resolution.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConfigLoad is returned when no document can be read or parsed.
	ErrConfigLoad = errors.New("config: load failed")

	// ErrMissingConfigKey is returned when a path is absent from the document.
	ErrMissingConfigKey = errors.New("config: missing key")

	// ErrMissingEnvironmentVariable is returned when a value is marked "!ENV"
	// but the corresponding environment variable is not set.
	ErrMissingEnvironmentVariable = errors.New("config: missing environment variable")

	// ErrWrongType is returned when a value cannot be converted to the requested type.
	ErrWrongType = errors.New("config: wrong value type")
)

// ResolveError describes a failed resolution.
// It always carries the full path so misconfiguration can be located at a glance.
type ResolveError struct {
	// Path is the requested path.
	Path Path

	// Env is the environment variable that was consulted, if any.
	Env string

	// Err is one of ErrMissingConfigKey, ErrMissingEnvironmentVariable or ErrWrongType.
	Err error
}

func (e *ResolveError) Error() string {
	switch {
	case errors.Is(e.Err, ErrMissingEnvironmentVariable):
		return fmt.Sprintf("%v: %s (for %s)", e.Err, e.Env, e.Path)
	default:
		return fmt.Sprintf("%v: %s", e.Err, e.Path)
	}
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
