// Package adapters provides interfaces for event store backends.
package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// to enable consistent error handling across different backends.
var (
	// ErrConcurrencyConflict is returned when the optimistic concurrency check fails.
	ErrConcurrencyConflict = errors.New("chronicle: concurrency conflict")

	// ErrNilAggregateID is returned when uuid.Nil is used as an aggregate ID.
	ErrNilAggregateID = errors.New("chronicle: aggregate ID is required")

	// ErrAdapterClosed is returned when operations are attempted on a closed adapter.
	ErrAdapterClosed = errors.New("chronicle: adapter is closed")

	// ErrStorage marks failures of the durable backing store itself
	// (connectivity, unexpected constraint violations, scan errors).
	ErrStorage = errors.New("chronicle: storage failure")
)

// EventData is an encoded event waiting to be appended.
// The adapter assigns the sequence number and the record timestamp.
type EventData struct {
	// Type is the stable event type tag.
	Type string

	// Payload is the encoded event body.
	Payload []byte
}

// EventRecord is one persisted event. Records are immutable once written
// and uniquely identified by (AggregateID, Sequence).
type EventRecord struct {
	// AggregateID identifies the stream the record belongs to.
	AggregateID uuid.UUID

	// Sequence is the 1-based, contiguous position within the stream.
	Sequence uint64

	// EventType is the type tag used to resolve the payload shape.
	EventType string

	// Payload is the opaque encoded event.
	Payload []byte

	// RecordedAt is when the record was written.
	RecordedAt time.Time
}

// EventStoreAdapter is the interface that durable backends must implement.
type EventStoreAdapter interface {
	// Append writes events to the aggregate's stream if and only if the
	// stream's current version equals expectedVersion. The version check and
	// all writes form a single atomic unit with respect to other appends for
	// the same aggregate: either every record is written or none is.
	//
	// An empty events slice is a no-op and returns (nil, nil).
	// On a version mismatch it returns a *ConcurrencyError.
	Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []EventData) ([]EventRecord, error)

	// Load returns every record of the aggregate ordered by ascending sequence.
	// An unknown aggregate yields an empty slice, not an error.
	Load(ctx context.Context, aggregateID uuid.UUID) ([]EventRecord, error)

	// CurrentVersion returns the highest sequence for the aggregate, or 0.
	CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error)

	// Initialize sets up the required storage schema.
	Initialize(ctx context.Context) error

	// Close releases any resources held by the adapter.
	Close() error
}

// HealthChecker provides health check capability.
type HealthChecker interface {
	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}
