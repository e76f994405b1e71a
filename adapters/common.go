package adapters

import (
	"fmt"

	"github.com/google/uuid"
)

// ConcurrencyError provides details about a concurrency conflict.
// It is returned when an optimistic concurrency check fails during Append operations.
type ConcurrencyError struct {
	AggregateID uuid.UUID
	Expected    uint64
	Actual      uint64
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(aggregateID uuid.UUID, expected, actual uint64) *ConcurrencyError {
	return &ConcurrencyError{
		AggregateID: aggregateID,
		Expected:    expected,
		Actual:      actual,
	}
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("chronicle: concurrency conflict on aggregate %s: expected version %d, actual version %d",
		e.AggregateID, e.Expected, e.Actual)
}

// Is implements errors.Is compatibility.
// Returns true when compared with ErrConcurrencyConflict.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// StorageError wraps a failure of the backing store.
// It never matches ErrConcurrencyConflict.
type StorageError struct {
	Op          string
	AggregateID uuid.UUID
	Cause       error
}

// NewStorageError creates a new StorageError.
func NewStorageError(op string, aggregateID uuid.UUID, cause error) *StorageError {
	return &StorageError{Op: op, AggregateID: aggregateID, Cause: cause}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.AggregateID == uuid.Nil {
		return fmt.Sprintf("chronicle: storage %s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("chronicle: storage %s failed for aggregate %s: %v", e.Op, e.AggregateID, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// CheckVersion validates the expected version against the current version.
// This implements the optimistic concurrency rule shared by all adapters:
// the write is accepted only when the caller saw the latest version.
func CheckVersion(aggregateID uuid.UUID, expected, current uint64) error {
	if expected != current {
		return NewConcurrencyError(aggregateID, expected, current)
	}
	return nil
}

// CopyRecord returns a copy of the record that shares no memory with the input.
func CopyRecord(r EventRecord) EventRecord {
	if r.Payload != nil {
		payload := make([]byte, len(r.Payload))
		copy(payload, r.Payload)
		r.Payload = payload
	}
	return r
}
