package database

import "errors"

var (
	// ErrStorageConnection is returned when the database cannot be opened or reached.
	ErrStorageConnection = errors.New("database: storage connection failed")

	// ErrInvalidConfig is returned when the database configuration is unusable.
	ErrInvalidConfig = errors.New("database: invalid configuration")
)
