package chronicle

import "github.com/google/uuid"

// Aggregate defines the interface for event-sourced aggregates.
// An aggregate is a domain object whose state is derived from its event stream.
type Aggregate interface {
	// AggregateID returns the unique identifier for this aggregate instance.
	AggregateID() uuid.UUID

	// Version returns the sequence of the last persisted event applied, or 0.
	Version() uint64

	// SetVersion records the version the aggregate was loaded or saved at.
	SetVersion(v uint64)

	// ApplyEvent applies an event to update the aggregate's state.
	// It must be deterministic.
	ApplyEvent(event DomainEvent) error

	// UncommittedEvents returns events that have been recorded but not yet persisted.
	UncommittedEvents() []DomainEvent

	// ClearUncommittedEvents removes all uncommitted events after successful persistence.
	ClearUncommittedEvents()
}

// AggregateBase provides a default partial implementation of the Aggregate interface.
// Embed it and implement ApplyEvent.
type AggregateBase struct {
	id                uuid.UUID
	version           uint64
	uncommittedEvents []DomainEvent
}

// NewAggregateBase creates a new AggregateBase with the given ID.
func NewAggregateBase(id uuid.UUID) AggregateBase {
	return AggregateBase{id: id}
}

// AggregateID returns the aggregate's unique identifier.
func (a *AggregateBase) AggregateID() uuid.UUID {
	return a.id
}

// SetID sets the aggregate's ID.
func (a *AggregateBase) SetID(id uuid.UUID) {
	a.id = id
}

// Version returns the current version of the aggregate.
func (a *AggregateBase) Version() uint64 {
	return a.version
}

// SetVersion sets the aggregate version.
func (a *AggregateBase) SetVersion(v uint64) {
	a.version = v
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateBase) UncommittedEvents() []DomainEvent {
	return a.uncommittedEvents
}

// ClearUncommittedEvents removes all uncommitted events.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.uncommittedEvents = nil
}

// Record queues an event for the next save.
// The embedding aggregate applies the event to its own state separately.
func (a *AggregateBase) Record(event DomainEvent) {
	a.uncommittedEvents = append(a.uncommittedEvents, event)
}

// HasUncommittedEvents returns true if there are events waiting to be persisted.
func (a *AggregateBase) HasUncommittedEvents() bool {
	return len(a.uncommittedEvents) > 0
}

// AggregateFactory creates an empty aggregate for the given ID.
type AggregateFactory[A Aggregate] func(id uuid.UUID) A
