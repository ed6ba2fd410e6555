package extension

import (
	"errors"
	"fmt"
)

// Domain errors for the extension package.
//
//	if errors.Is(err, extension.ErrExtensionNotLoaded) {
//	    // tell the operator
//	}
var (
	// ErrExtensionLoad is returned when an extension cannot be found or fails to initialize.
	ErrExtensionLoad = errors.New("extension: load failed")

	// ErrExtensionNotFound is wrapped by ErrExtensionLoad when no catalog entry or manifest exists.
	ErrExtensionNotFound = errors.New("extension: not found")

	// ErrExtensionNotLoaded is returned when unloading or reloading an unloaded extension.
	ErrExtensionNotLoaded = errors.New("extension: not loaded")

	// ErrExtensionAlreadyLoaded is returned when loading an extension that is loaded.
	ErrExtensionAlreadyLoaded = errors.New("extension: already loaded")

	// ErrInvalidName is returned for names that are empty or not of the form exts.<name>.
	ErrInvalidName = errors.New("extension: invalid name")
)

// Error describes a failed registry operation.
type Error struct {
	Op   string // load, unload or reload
	Name string // qualified extension name
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
