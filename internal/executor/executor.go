// Package executor defines the boundary to the interactive execution
// backend. The core treats it as a black box: it issues execute calls
// and reads tagged results, nothing more.
package executor

import (
	"context"
	"time"
)

// Result is the tagged outcome of executing one source fragment:
// success with output, or failure with a classified error kind.
type Result struct {
	Success bool

	Stdout string
	Stderr string
	// Value is the textual form of the fragment's final expression
	// value, empty when there is none.
	Value string

	// ErrorKind classifies a failure (exception class name, or
	// "timeout"). Passed through unchanged from the backend.
	ErrorKind   string
	ErrorDetail string
	Traceback   []string

	Duration time.Duration
}

// Executor runs source fragments in a live session with persistent
// state across calls.
type Executor interface {
	// Execute runs source and returns its tagged result. A timeout is a
	// Result with ErrorKind "timeout", not an error; the error return
	// is for the session itself breaking (or ctx cancellation).
	Execute(ctx context.Context, source string, timeout time.Duration) (Result, error)

	// Close shuts the session down.
	Close() error
}

// NamespaceLister is an optional executor capability: enumerating the
// names currently bound in the live namespace. Used for inspection
// output, never for correctness.
type NamespaceLister interface {
	Names(ctx context.Context) ([]string, error)
}
