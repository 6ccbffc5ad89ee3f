package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument signals a malformed caller-supplied value.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrModelProviderError signals a chat model failure.
	ErrModelProviderError = errors.New("model provider error")

	// ErrStore signals a relational store failure.
	ErrStore = errors.New("store error")
	// ErrReadOnlyViolation signals a free-form query that is not a single read statement.
	ErrReadOnlyViolation = errors.New("query is not read-only")

	// ErrToolNotFound signals that the model picked a function absent from the catalog.
	ErrToolNotFound = errors.New("tool not found")
	// ErrIterationCap signals that the orchestration loop hit its iteration limit.
	ErrIterationCap = errors.New("iteration cap exceeded")
	// ErrTimeout signals an abandoned model or tool call.
	ErrTimeout = errors.New("timed out")
)

// StoreError wraps a relational store failure with the operation that produced it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore.Error(), e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the driver error to errors.Is.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// NewStoreError wraps err as a StoreError. Returns nil for a nil err.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
