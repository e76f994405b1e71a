package chronicle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAggregateBase(t *testing.T) {
	id := uuid.New()

	t.Run("NewAggregateBase starts at version 0", func(t *testing.T) {
		base := NewAggregateBase(id)

		assert.Equal(t, id, base.AggregateID())
		assert.Equal(t, uint64(0), base.Version())
		assert.Empty(t, base.UncommittedEvents())
		assert.False(t, base.HasUncommittedEvents())
	})

	t.Run("SetID and SetVersion", func(t *testing.T) {
		base := AggregateBase{}
		base.SetID(id)
		base.SetVersion(7)

		assert.Equal(t, id, base.AggregateID())
		assert.Equal(t, uint64(7), base.Version())
	})

	t.Run("Record queues events in order", func(t *testing.T) {
		base := NewAggregateBase(id)
		first := TestNoteCreated{EventBase: NewEventBase(id, testTime), Title: "a"}
		second := TestNoteSealed{EventBase: NewEventBase(id, testTime)}

		base.Record(first)
		base.Record(second)

		assert.Equal(t, []DomainEvent{first, second}, base.UncommittedEvents())
		assert.Equal(t, uint64(0), base.Version())
	})

	t.Run("ClearUncommittedEvents", func(t *testing.T) {
		base := NewAggregateBase(id)
		base.Record(TestNoteSealed{})

		base.ClearUncommittedEvents()

		assert.False(t, base.HasUncommittedEvents())
	})
}

func TestTestNote_Behaviour(t *testing.T) {
	note := NewTestNote(uuid.New())
	note.Create("Intake", "dr-lee")
	assert.NoError(t, note.Amend("body"))
	note.Seal("done")

	assert.True(t, note.Sealed)
	assert.Equal(t, "body", note.Body)
	assert.Len(t, note.UncommittedEvents(), 3)
	assert.ErrorIs(t, note.Amend("late"), errNoteSealed)

	var _ Aggregate = note
}
