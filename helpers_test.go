package chronicle

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Shared test events and aggregate for chronicle package tests.

var testTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type TestNoteCreated struct {
	EventBase
	Title  string `json:"title" msgpack:"title"`
	Author string `json:"author" msgpack:"author"`
}

func (TestNoteCreated) EventType() string { return "TestNoteCreated" }

type TestNoteAmended struct {
	EventBase
	Body string `json:"body" msgpack:"body"`
}

func (TestNoteAmended) EventType() string { return "TestNoteAmended" }

type TestNoteSealed struct {
	EventBase
	Reason string `json:"reason" msgpack:"reason"`
}

func (TestNoteSealed) EventType() string { return "TestNoteSealed" }

// unencodable carries a channel, which encoding/json rejects.
type unencodable struct {
	EventBase
	Ch chan int `json:"ch"`
}

func (unencodable) EventType() string { return "Unencodable" }

func testShapes() []EventShape {
	return []EventShape{
		Shape[TestNoteCreated](),
		Shape[TestNoteAmended](),
		Shape[TestNoteSealed](),
	}
}

func newTestRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	r.RegisterEvents(testShapes()...)
	return r
}

var errNoteSealed = errors.New("note is sealed")

type TestNote struct {
	AggregateBase
	Title   string
	Body    string
	Sealed  bool
	Amends  int
	Applied []string
}

func NewTestNote(id uuid.UUID) *TestNote {
	return &TestNote{AggregateBase: NewAggregateBase(id)}
}

func (n *TestNote) Create(title, author string) {
	e := TestNoteCreated{EventBase: NewEventBase(n.AggregateID(), testTime), Title: title, Author: author}
	_ = n.ApplyEvent(e)
	n.Record(e)
}

func (n *TestNote) Amend(body string) error {
	if n.Sealed {
		return errNoteSealed
	}
	e := TestNoteAmended{EventBase: NewEventBase(n.AggregateID(), testTime), Body: body}
	_ = n.ApplyEvent(e)
	n.Record(e)
	return nil
}

func (n *TestNote) Seal(reason string) {
	e := TestNoteSealed{EventBase: NewEventBase(n.AggregateID(), testTime), Reason: reason}
	_ = n.ApplyEvent(e)
	n.Record(e)
}

func (n *TestNote) ApplyEvent(event DomainEvent) error {
	switch e := event.(type) {
	case TestNoteCreated:
		n.Title = e.Title
	case TestNoteAmended:
		n.Body = e.Body
		n.Amends++
	case TestNoteSealed:
		n.Sealed = true
	default:
		return errors.New("unexpected event " + event.EventType())
	}
	n.Applied = append(n.Applied, event.EventType())
	return nil
}
