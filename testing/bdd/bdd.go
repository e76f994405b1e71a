// Package bdd provides Given-When-Then fixtures for event-sourced aggregates.
//
// An aggregate test replays history, runs one command method and checks the
// events the command recorded:
//
//	bdd.Given(t, consent.New(id), granted).
//	    When(func() error { return c.Revoke(by, "asked", now) }).
//	    Then(revoked)
//
// StoreFixture does the same through a real EventStore and Repository, which
// also checks that the recorded events survive encoding and the version check.
package bdd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/testing/assertions"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// TestFixture provides BDD-style testing for a single aggregate in memory.
type TestFixture struct {
	t           TB
	aggregate   chronicle.Aggregate
	givenEvents []chronicle.DomainEvent
	result      error
	executed    bool
}

// Given sets up the aggregate with historical events.
func Given(t TB, aggregate chronicle.Aggregate, events ...chronicle.DomainEvent) *TestFixture {
	t.Helper()
	return &TestFixture{
		t:           t,
		aggregate:   aggregate,
		givenEvents: events,
	}
}

// When replays the given events and then runs the command.
// The command should call methods on the aggregate and return any error.
func (f *TestFixture) When(command func() error) *TestFixture {
	f.t.Helper()

	for _, event := range f.givenEvents {
		if err := f.aggregate.ApplyEvent(event); err != nil {
			f.t.Fatalf("Failed to apply given event %s: %v", event.EventType(), err)
		}
	}
	f.aggregate.SetVersion(uint64(len(f.givenEvents)))
	f.aggregate.ClearUncommittedEvents()

	f.result = command()
	f.executed = true

	return f
}

// Then asserts that the command succeeded and recorded exactly the expected events.
func (f *TestFixture) Then(expected ...chronicle.DomainEvent) {
	f.t.Helper()
	f.requireSuccess("Then")

	actual := f.aggregate.UncommittedEvents()
	if diffs := assertions.DiffEvents(expected, actual); len(diffs) > 0 {
		f.t.Error(assertions.FormatDiffs(diffs))
	}
}

// ThenNoEvents asserts that the command succeeded without recording anything.
func (f *TestFixture) ThenNoEvents() {
	f.t.Helper()
	f.requireSuccess("ThenNoEvents")

	if uncommitted := f.aggregate.UncommittedEvents(); len(uncommitted) > 0 {
		f.t.Errorf("Expected no events, got %d: %+v", len(uncommitted), uncommitted)
	}
}

// ThenError asserts that the command failed with an error matching expected
// and recorded nothing.
func (f *TestFixture) ThenError(expected error) {
	f.t.Helper()
	f.requireExecuted("ThenError")

	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}

	if !errors.Is(f.result, expected) {
		f.t.Errorf("Expected error %v, got %v", expected, f.result)
	}

	if uncommitted := f.aggregate.UncommittedEvents(); len(uncommitted) > 0 {
		f.t.Errorf("Failed command recorded %d events", len(uncommitted))
	}
}

// ThenErrorContains asserts that the error message contains a substring.
func (f *TestFixture) ThenErrorContains(substring string) {
	f.t.Helper()
	f.requireExecuted("ThenErrorContains")

	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}

	if !strings.Contains(f.result.Error(), substring) {
		f.t.Errorf("Expected error containing %q, got %q", substring, f.result.Error())
	}
}

func (f *TestFixture) requireExecuted(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When() - no command was executed", step)
	}
}

func (f *TestFixture) requireSuccess(step string) {
	f.t.Helper()
	f.requireExecuted(step)
	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}
}

// StoreFixture runs a command through a Repository backed by a real EventStore.
type StoreFixture[A chronicle.Aggregate] struct {
	t           TB
	ctx         context.Context
	store       *chronicle.EventStore
	repo        *chronicle.Repository[A]
	aggregateID uuid.UUID
	given       []chronicle.DomainEvent
	err         error
	executed    bool
}

// GivenStore appends history to the stream of aggregateID and prepares a
// repository that builds aggregates with factory.
func GivenStore[A chronicle.Aggregate](t TB, store *chronicle.EventStore, factory chronicle.AggregateFactory[A], aggregateID uuid.UUID, events ...chronicle.DomainEvent) *StoreFixture[A] {
	t.Helper()
	return &StoreFixture[A]{
		t:           t,
		ctx:         context.Background(),
		store:       store,
		repo:        chronicle.NewRepository(store, factory),
		aggregateID: aggregateID,
		given:       events,
	}
}

// WithContext sets a custom context for the command execution.
func (f *StoreFixture[A]) WithContext(ctx context.Context) *StoreFixture[A] {
	f.ctx = ctx
	return f
}

// When stores the history, then loads the aggregate, runs command and saves it.
func (f *StoreFixture[A]) When(command func(A) error) *StoreFixture[A] {
	f.t.Helper()

	if len(f.given) > 0 {
		version, err := f.store.Version(f.ctx, f.aggregateID)
		if err != nil {
			f.t.Fatalf("Failed to read version: %v", err)
		}
		if err := f.store.Append(f.ctx, f.aggregateID, version, f.given); err != nil {
			f.t.Fatalf("Failed to store given events: %v", err)
		}
	}

	_, f.err = f.repo.Execute(f.ctx, f.aggregateID, command)
	f.executed = true
	return f
}

// ThenStream asserts the command succeeded and the full stream, history
// included, now holds exactly the expected events.
func (f *StoreFixture[A]) ThenStream(expected ...chronicle.DomainEvent) {
	f.t.Helper()

	if !f.executed {
		f.t.Fatal("bdd: ThenStream() must be called after When() - no command was executed")
	}
	if f.err != nil {
		f.t.Fatalf("Expected success but got error: %v", f.err)
	}

	envelopes, err := f.store.Load(f.ctx, f.aggregateID)
	if err != nil {
		f.t.Fatalf("Failed to load stream: %v", err)
	}

	assertions.AssertStream(f.t, envelopes, f.aggregateID)
	assertions.AssertEventsEqual(f.t, expected, assertions.Events(envelopes))
}

// ThenFails asserts the command failed with an error matching expected.
func (f *StoreFixture[A]) ThenFails(expected error) {
	f.t.Helper()

	if !f.executed {
		f.t.Fatal("bdd: ThenFails() must be called after When() - no command was executed")
	}
	if f.err == nil {
		f.t.Fatal("Expected failure but got success")
	}
	if !errors.Is(f.err, expected) {
		f.t.Errorf("Expected error %v, got %v", expected, f.err)
	}
}
