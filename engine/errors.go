package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get for keys that do not exist. Absence
	// is a normal outcome, not a failure.
	ErrNotFound = errors.New("key not found")

	// ErrClosed is returned for any operation on a closed engine.
	ErrClosed = errors.New("engine is closed")
)

// CompactionError wraps a failure while merging or registering segments.
// The source segments stay authoritative when it occurs.
type CompactionError struct {
	Level int
	Err   error
}

func (e *CompactionError) Error() string {
	return fmt.Sprintf("compaction failed on level %d: %v", e.Level, e.Err)
}

func (e *CompactionError) Unwrap() error {
	return e.Err
}
