// Package assertions provides event assertion utilities for testing event-sourced code.
// It compares domain events by their type tag and value and renders readable diffs.
package assertions

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// Events strips the storage metadata from loaded envelopes.
func Events(envelopes []chronicle.EventEnvelope) []chronicle.DomainEvent {
	events := make([]chronicle.DomainEvent, len(envelopes))
	for i, env := range envelopes {
		events[i] = env.Event
	}
	return events
}

// AssertEventTypes checks that the events carry the expected type tags in order.
func AssertEventTypes(t TB, events []chronicle.DomainEvent, types ...string) {
	t.Helper()

	if len(events) != len(types) {
		t.Fatalf("Expected %d events, got %d: %v", len(types), len(events), typeTags(events))
	}

	for i, expectedType := range types {
		if actual := typeTag(events[i]); actual != expectedType {
			t.Errorf("Event %d: expected type %s, got %s", i, expectedType, actual)
		}
	}
}

// AssertEventData checks that a specific event has type T and equals expected.
func AssertEventData[T chronicle.DomainEvent](t TB, event chronicle.DomainEvent, expected T) {
	t.Helper()

	actual, ok := event.(T)
	if !ok {
		t.Fatalf("Event is not of expected type %T, got %T", expected, event)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("Event data mismatch:\nExpected: %+v\nActual: %+v", expected, actual)
	}
}

// AssertEventAtIndex checks the event at index has type T and equals expected.
func AssertEventAtIndex[T chronicle.DomainEvent](t TB, events []chronicle.DomainEvent, index int, expected T) {
	t.Helper()

	if index < 0 || index >= len(events) {
		t.Fatalf("Index %d out of bounds, have %d events", index, len(events))
	}

	AssertEventData(t, events[index], expected)
}

// AssertNoEvents checks that no events were produced.
func AssertNoEvents(t TB, events []chronicle.DomainEvent) {
	t.Helper()

	if len(events) > 0 {
		t.Errorf("Expected no events, got %d: %v", len(events), typeTags(events))
	}
}

// AssertStream checks that envelopes form a valid stream of aggregateID:
// sequences 1..n without gaps and every event owned by that aggregate.
func AssertStream(t TB, envelopes []chronicle.EventEnvelope, aggregateID uuid.UUID) {
	t.Helper()

	for i, env := range envelopes {
		if want := uint64(i + 1); env.Sequence != want {
			t.Errorf("Envelope %d: expected sequence %d, got %d", i, want, env.Sequence)
		}
		if env.AggregateID != aggregateID {
			t.Errorf("Envelope %d: expected aggregate %s, got %s", i, aggregateID, env.AggregateID)
		}
		if env.Event != nil && env.Event.AggregateID() != aggregateID {
			t.Errorf("Envelope %d: event belongs to %s, not %s", i, env.Event.AggregateID(), aggregateID)
		}
	}
}

// EventDiff represents a difference between expected and actual events.
type EventDiff struct {
	Index    int
	Expected chronicle.DomainEvent
	Actual   chronicle.DomainEvent
	Type     DiffType
}

// DiffType represents the type of difference.
type DiffType int

const (
	// DiffMissing indicates an expected event was not present.
	DiffMissing DiffType = iota
	// DiffExtra indicates an unexpected event was present.
	DiffExtra
	// DiffMismatch indicates event data did not match.
	DiffMismatch
)

// String returns a human-readable representation of the diff type.
func (d DiffType) String() string {
	switch d {
	case DiffMissing:
		return "missing"
	case DiffExtra:
		return "extra"
	case DiffMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// DiffEvents compares two event slices position by position.
func DiffEvents(expected, actual []chronicle.DomainEvent) []EventDiff {
	var diffs []EventDiff

	n := max(len(expected), len(actual))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(expected):
			diffs = append(diffs, EventDiff{Index: i, Actual: actual[i], Type: DiffExtra})
		case i >= len(actual):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Type: DiffMissing})
		case !reflect.DeepEqual(expected[i], actual[i]):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Actual: actual[i], Type: DiffMismatch})
		}
	}

	return diffs
}

// FormatDiffs formats event diffs as a human-readable string.
func FormatDiffs(diffs []EventDiff) string {
	if len(diffs) == 0 {
		return "no differences"
	}

	var buf strings.Builder
	buf.WriteString("Event differences:\n")

	for _, diff := range diffs {
		fmt.Fprintf(&buf, "  Event %d (%s):\n", diff.Index, diff.Type)
		switch diff.Type {
		case DiffExtra:
			fmt.Fprintf(&buf, "    + %s %+v (unexpected)\n", typeTag(diff.Actual), diff.Actual)
		case DiffMissing:
			fmt.Fprintf(&buf, "    - %s %+v (missing)\n", typeTag(diff.Expected), diff.Expected)
		case DiffMismatch:
			fmt.Fprintf(&buf, "    - %s %+v\n", typeTag(diff.Expected), diff.Expected)
			fmt.Fprintf(&buf, "    + %s %+v\n", typeTag(diff.Actual), diff.Actual)
		}
	}

	return buf.String()
}

// AssertEventsEqual compares two event slices and fails if they differ.
func AssertEventsEqual(t TB, expected, actual []chronicle.DomainEvent) {
	t.Helper()

	if diffs := DiffEvents(expected, actual); len(diffs) > 0 {
		t.Error(FormatDiffs(diffs))
	}
}

// EventMatcher reports whether an event meets some criteria.
type EventMatcher func(event chronicle.DomainEvent) bool

// MatchEventType returns a matcher on the event's type tag.
func MatchEventType(eventType string) EventMatcher {
	return func(event chronicle.DomainEvent) bool {
		return typeTag(event) == eventType
	}
}

// MatchEvent returns a matcher that checks for exact event equality.
func MatchEvent[T chronicle.DomainEvent](expected T) EventMatcher {
	return func(event chronicle.DomainEvent) bool {
		actual, ok := event.(T)
		return ok && reflect.DeepEqual(actual, expected)
	}
}

// AssertAnyMatch checks that at least one event matches.
func AssertAnyMatch(t TB, events []chronicle.DomainEvent, matcher EventMatcher) {
	t.Helper()

	for _, event := range events {
		if matcher(event) {
			return
		}
	}

	t.Errorf("No event matched the criteria: %v", typeTags(events))
}

// AssertNoneMatch checks that no event matches.
func AssertNoneMatch(t TB, events []chronicle.DomainEvent, matcher EventMatcher) {
	t.Helper()

	for i, event := range events {
		if matcher(event) {
			t.Errorf("Event %d unexpectedly matched: %+v", i, event)
		}
	}
}

// FilterEvents returns events that match the matcher.
func FilterEvents(events []chronicle.DomainEvent, matcher EventMatcher) []chronicle.DomainEvent {
	var result []chronicle.DomainEvent
	for _, event := range events {
		if matcher(event) {
			result = append(result, event)
		}
	}
	return result
}

func typeTag(event chronicle.DomainEvent) string {
	if event == nil {
		return "<nil>"
	}
	return event.EventType()
}

func typeTags(events []chronicle.DomainEvent) []string {
	tags := make([]string, len(events))
	for i, e := range events {
		tags[i] = typeTag(e)
	}
	return tags
}
