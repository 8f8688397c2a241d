package accumulator

import (
	"errors"
	"fmt"
)

var (
	ErrStoreClosed     = errors.New("store is closed")
	ErrNoDocument      = errors.New("node document has not been written")
	ErrCorruptDocument = errors.New("node document is corrupt")
	ErrUnknownBackend  = errors.New("unknown accumulator backend")
)

// StoreError provides structured error information for accumulator operations.
type StoreError struct {
	Op      string // Operation that failed (e.g. "put_stat")
	NodeID  string
	Key     string // Pair key, for statistic operations
	Cause   error
	Context string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s node %s (%s): %v", e.Op, e.NodeID, e.Key, e.Cause)
	case e.NodeID != "":
		return fmt.Sprintf("%s node %s: %v", e.Op, e.NodeID, e.Cause)
	case e.Context != "":
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Context, e.Cause)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
}

// Unwrap returns the underlying cause for error chain support.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for building StoreErrors.
type ErrorBuilder struct {
	err StoreError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: StoreError{Op: op}}
}

func (b *ErrorBuilder) Node(id string) *ErrorBuilder {
	b.err.NodeID = id
	return b
}

func (b *ErrorBuilder) Key(key string) *ErrorBuilder {
	b.err.Key = key
	return b
}

func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// IsNoDocument reports whether err means the node's document is missing.
func IsNoDocument(err error) bool {
	return errors.Is(err, ErrNoDocument)
}
