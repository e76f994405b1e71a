// Package memory provides an in-memory implementation of the event store adapter.
// This adapter is primarily intended for testing and development purposes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle/adapters"
)

// Ensure MemoryAdapter implements all required interfaces.
var (
	_ adapters.EventStoreAdapter = (*MemoryAdapter)(nil)
	_ adapters.HealthChecker     = (*MemoryAdapter)(nil)
)

// MemoryAdapter is an in-memory implementation of EventStoreAdapter.
// It is thread-safe and suitable for unit testing.
type MemoryAdapter struct {
	mu      sync.RWMutex
	streams map[uuid.UUID][]adapters.EventRecord
	count   int
	closed  bool
	now     func() time.Time
}

// Option configures a MemoryAdapter.
type Option func(*MemoryAdapter)

// WithClock sets the clock used to stamp RecordedAt.
func WithClock(now func() time.Time) Option {
	return func(a *MemoryAdapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter creates a new in-memory event store adapter.
func NewAdapter(opts ...Option) *MemoryAdapter {
	adapter := &MemoryAdapter{
		streams: make(map[uuid.UUID][]adapters.EventRecord),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// Initialize is a no-op for the memory adapter.
func (a *MemoryAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Append stores events with optimistic concurrency control.
// The write lock covers both the version check and the write.
func (a *MemoryAdapter) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []adapters.EventData) ([]adapters.EventRecord, error) {
	if len(events) == 0 {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if aggregateID == uuid.Nil {
		return nil, adapters.ErrNilAggregateID
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	stream := a.streams[aggregateID]
	current := uint64(len(stream))

	if err := adapters.CheckVersion(aggregateID, expectedVersion, current); err != nil {
		return nil, err
	}

	now := a.now().UTC()
	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		records[i] = adapters.CopyRecord(adapters.EventRecord{
			AggregateID: aggregateID,
			Sequence:    current + uint64(i) + 1,
			EventType:   event.Type,
			Payload:     event.Payload,
			RecordedAt:  now,
		})
	}

	a.streams[aggregateID] = append(stream, records...)
	a.count += len(records)

	out := make([]adapters.EventRecord, len(records))
	for i, r := range records {
		out[i] = adapters.CopyRecord(r)
	}
	return out, nil
}

// Load retrieves all events of the aggregate in sequence order.
func (a *MemoryAdapter) Load(ctx context.Context, aggregateID uuid.UUID) ([]adapters.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if aggregateID == uuid.Nil {
		return nil, adapters.ErrNilAggregateID
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	stream := a.streams[aggregateID]
	records := make([]adapters.EventRecord, len(stream))
	for i, r := range stream {
		records[i] = adapters.CopyRecord(r)
	}
	return records, nil
}

// CurrentVersion returns the highest sequence of the aggregate, or 0.
func (a *MemoryAdapter) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if aggregateID == uuid.Nil {
		return 0, adapters.ErrNilAggregateID
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return 0, adapters.ErrAdapterClosed
	}

	return uint64(len(a.streams[aggregateID])), nil
}

// Close releases any resources held by the adapter.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	return nil
}

// Ping checks if the adapter is open.
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}
	return nil
}

// Reset clears all data. Useful for testing.
func (a *MemoryAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streams = make(map[uuid.UUID][]adapters.EventRecord)
	a.count = 0
}

// EventCount returns the total number of stored events.
func (a *MemoryAdapter) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}

// StreamCount returns the number of aggregates with at least one event.
func (a *MemoryAdapter) StreamCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.streams)
}
