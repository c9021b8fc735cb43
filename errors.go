package lsmkv

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lsmkv/engine"
)

var (
	// ErrNotFound is returned by Get for keys that do not exist. Absence
	// is a normal outcome, not a failure.
	ErrNotFound = engine.ErrNotFound

	// ErrClosed is returned for any operation on a closed database.
	ErrClosed = engine.ErrClosed

	// ErrInvalidSyncMode indicates an unknown WAL sync mode.
	ErrInvalidSyncMode = errors.New("invalid WAL sync mode")

	// ErrInvalidConcurrency indicates a non-positive operation limit.
	ErrInvalidConcurrency = errors.New("max concurrent operations must be positive")
)

// ConfigurationError reports an invalid option at construction time.
type ConfigurationError struct {
	Option string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration option %s: %v", e.Option, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
