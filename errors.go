package chronicle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
// Storage-level sentinels are aliases to the adapters package errors.
var (
	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	// Recover by reloading the aggregate and re-applying the command.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrNilAggregateID indicates uuid.Nil was passed as an aggregate ID.
	ErrNilAggregateID = adapters.ErrNilAggregateID

	// ErrAdapterClosed indicates the adapter has been closed.
	ErrAdapterClosed = adapters.ErrAdapterClosed

	// ErrStorage indicates a failure of the durable backing store.
	ErrStorage = adapters.ErrStorage

	// ErrUnknownEventType indicates a persisted event type has no registered shape.
	ErrUnknownEventType = errors.New("chronicle: unknown event type")

	// ErrDecodeFailed indicates a payload could not be parsed into its event shape.
	ErrDecodeFailed = errors.New("chronicle: decode failed")

	// ErrEncodeFailed indicates an event could not be encoded.
	ErrEncodeFailed = errors.New("chronicle: encode failed")

	// ErrPublishFailed indicates committed events could not be published.
	ErrPublishFailed = errors.New("chronicle: publish failed")

	// ErrNilAggregate indicates a nil aggregate was passed.
	ErrNilAggregate = errors.New("chronicle: nil aggregate")
)

// ConcurrencyError provides detailed information about a concurrency conflict.
type ConcurrencyError = adapters.ConcurrencyError

// StorageError wraps a backing store failure.
type StorageError = adapters.StorageError

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(aggregateID uuid.UUID, expected, actual uint64) *ConcurrencyError {
	return adapters.NewConcurrencyError(aggregateID, expected, actual)
}

// UnknownEventTypeError reports an event type the registry cannot resolve.
// Known lists every type registered at the time of the lookup so the
// mismatch can be diagnosed without inspecting storage.
type UnknownEventTypeError struct {
	Requested string
	Known     []string
}

// Error returns the error message.
func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("chronicle: unknown event type %q (known types: [%s])",
		e.Requested, strings.Join(e.Known, ", "))
}

// Is reports whether this error matches the target error.
func (e *UnknownEventTypeError) Is(target error) bool {
	return target == ErrUnknownEventType
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *UnknownEventTypeError) Unwrap() error {
	return ErrUnknownEventType
}

// DecodeError provides detailed information about a payload that could not be decoded.
// AggregateID and Sequence are filled in by the store when the payload came from a stream.
type DecodeError struct {
	AggregateID uuid.UUID
	Sequence    uint64
	EventType   string
	Cause       error
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	if e.AggregateID == uuid.Nil {
		return fmt.Sprintf("chronicle: failed to decode event type %q: %v", e.EventType, e.Cause)
	}
	return fmt.Sprintf("chronicle: failed to decode event type %q at %s@%d: %v",
		e.EventType, e.AggregateID, e.Sequence, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecodeFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// NewDecodeError creates a new DecodeError.
func NewDecodeError(eventType string, cause error) *DecodeError {
	return &DecodeError{EventType: eventType, Cause: cause}
}

// EncodeError provides detailed information about an event that could not be encoded.
type EncodeError struct {
	AggregateID uuid.UUID
	Index       int
	EventType   string
	Cause       error
}

// Error returns the error message.
func (e *EncodeError) Error() string {
	if e.AggregateID == uuid.Nil {
		return fmt.Sprintf("chronicle: failed to encode event type %q: %v", e.EventType, e.Cause)
	}
	return fmt.Sprintf("chronicle: failed to encode event %d (type %q) for aggregate %s: %v",
		e.Index, e.EventType, e.AggregateID, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *EncodeError) Is(target error) bool {
	return target == ErrEncodeFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *EncodeError) Unwrap() error {
	return e.Cause
}

// NewEncodeError creates a new EncodeError.
func NewEncodeError(eventType string, cause error) *EncodeError {
	return &EncodeError{EventType: eventType, Cause: cause}
}

// PublishError reports that events were durably appended but publishing them failed.
// The append itself must not be retried.
type PublishError struct {
	AggregateID uuid.UUID
	FromVersion uint64
	ToVersion   uint64
	Cause       error
}

// Error returns the error message.
func (e *PublishError) Error() string {
	return fmt.Sprintf("chronicle: events %d..%d of aggregate %s were stored but not published: %v",
		e.FromVersion, e.ToVersion, e.AggregateID, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *PublishError) Is(target error) bool {
	return target == ErrPublishFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *PublishError) Unwrap() error {
	return e.Cause
}
