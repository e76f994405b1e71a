package chronicle

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the capability set shared by every business event.
//
// EventType returns the stable tag used as the registry key. It must be
// declared explicitly by every event and never change once events of that
// type have been persisted.
type DomainEvent interface {
	AggregateID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
}

// EventBase carries the fields every domain event has.
// Embed it in event structs and add an EventType method:
//
//	type ConsentGranted struct {
//	    chronicle.EventBase
//	    Scope string `json:"scope"`
//	}
//
//	func (ConsentGranted) EventType() string { return "ConsentGranted" }
type EventBase struct {
	// Aggregate is the ID of the aggregate the event belongs to.
	Aggregate uuid.UUID `json:"aggregateId" msgpack:"aggregateId"`

	// Occurred is when the event happened in the domain.
	Occurred time.Time `json:"occurredAt" msgpack:"occurredAt"`
}

// NewEventBase creates an EventBase for the given aggregate at the given time.
func NewEventBase(aggregateID uuid.UUID, occurredAt time.Time) EventBase {
	return EventBase{Aggregate: aggregateID, Occurred: occurredAt}
}

// AggregateID returns the aggregate the event belongs to.
func (b EventBase) AggregateID() uuid.UUID {
	return b.Aggregate
}

// OccurredAt returns when the event happened.
func (b EventBase) OccurredAt() time.Time {
	return b.Occurred
}

// EventEnvelope is a decoded event together with its storage metadata.
// Envelopes are produced by Load and are never persisted directly.
type EventEnvelope struct {
	// AggregateID identifies the stream the event was read from.
	AggregateID uuid.UUID

	// Sequence is the 1-based position within the stream.
	Sequence uint64

	// RecordedAt is when the store wrote the event.
	RecordedAt time.Time

	// Event is the decoded domain event.
	Event DomainEvent
}
