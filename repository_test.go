package chronicle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenhq/chronicle/adapters"
	"github.com/havenhq/chronicle/adapters/memory"
	"github.com/havenhq/chronicle/testing/testutil"
)

func newTestRepository(opts ...RepositoryOption) (*Repository[*TestNote], *EventStore) {
	store, _ := newTestStore()
	return NewRepository(store, NewTestNote, opts...), store
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestRepository_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("new aggregate", func(t *testing.T) {
		repo, _ := newTestRepository()
		id := uuid.New()

		note, version, err := repo.Load(ctx, id)

		require.NoError(t, err)
		assert.Equal(t, uint64(0), version)
		assert.Equal(t, id, note.AggregateID())
		assert.Equal(t, uint64(0), note.Version())
		assert.Empty(t, note.Applied)
	})

	t.Run("folds events in order", func(t *testing.T) {
		repo, store := newTestRepository()
		id := uuid.New()
		require.NoError(t, store.Append(ctx, id, 0, []DomainEvent{
			TestNoteCreated{EventBase: NewEventBase(id, testTime), Title: "Intake"},
			TestNoteAmended{EventBase: NewEventBase(id, testTime), Body: "one"},
			TestNoteAmended{EventBase: NewEventBase(id, testTime), Body: "two"},
		}))

		note, version, err := repo.Load(ctx, id)

		require.NoError(t, err)
		assert.Equal(t, uint64(3), version)
		assert.Equal(t, uint64(3), note.Version())
		assert.Equal(t, "Intake", note.Title)
		assert.Equal(t, "two", note.Body)
		assert.Equal(t, 2, note.Amends)
		assert.Equal(t, []string{"TestNoteCreated", "TestNoteAmended", "TestNoteAmended"}, note.Applied)
		assert.Empty(t, note.UncommittedEvents())
	})

	t.Run("apply failure", func(t *testing.T) {
		registry := newTestRegistry()
		registry.RegisterEvents(Shape[unencodable]())
		mock := testutil.NewMockAdapter()
		store := New(mock, WithRegistry(registry))
		repo := NewRepository(store, NewTestNote)
		id := uuid.New()
		mock.Plant(id, adapters.EventRecord{AggregateID: id, Sequence: 1, EventType: "Unencodable", Payload: []byte(`{}`)})

		_, _, err := repo.Load(ctx, id)

		assert.Error(t, err)
	})

	t.Run("decode failure", func(t *testing.T) {
		mock := testutil.NewMockAdapter()
		repo := NewRepository(New(mock, WithRegistry(newTestRegistry())), NewTestNote)
		id := uuid.New()
		mock.Plant(id, adapters.EventRecord{AggregateID: id, Sequence: 1, EventType: "Gone", Payload: []byte(`{}`)})

		_, _, err := repo.Load(ctx, id)

		assert.ErrorIs(t, err, ErrUnknownEventType)
	})
}

func TestRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepository()
	id := uuid.New()

	require.NoError(t, repo.Save(ctx, id, 0, noteEvents(id)[:1]))

	err := repo.Save(ctx, id, 0, noteEvents(id)[1:2])
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	version, err := store.Version(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func TestRepository_SaveAggregate(t *testing.T) {
	ctx := context.Background()

	t.Run("advances version and clears events", func(t *testing.T) {
		repo, _ := newTestRepository()
		note := NewTestNote(uuid.New())
		note.Create("Intake", "dr-lee")
		require.NoError(t, note.Amend("body"))

		require.NoError(t, repo.SaveAggregate(ctx, note))

		assert.Equal(t, uint64(2), note.Version())
		assert.False(t, note.HasUncommittedEvents())

		loaded, version, err := repo.Load(ctx, note.AggregateID())
		require.NoError(t, err)
		assert.Equal(t, uint64(2), version)
		assert.Equal(t, "body", loaded.Body)
	})

	t.Run("nothing to save", func(t *testing.T) {
		repo, _ := newTestRepository()
		note := NewTestNote(uuid.New())

		assert.NoError(t, repo.SaveAggregate(ctx, note))
	})

	t.Run("nil aggregate", func(t *testing.T) {
		repo, _ := newTestRepository()

		assert.ErrorIs(t, repo.SaveAggregate(ctx, nil), ErrNilAggregate)
	})

	t.Run("stale copy conflicts and keeps its events", func(t *testing.T) {
		repo, _ := newTestRepository()
		id := uuid.New()
		seed := NewTestNote(id)
		seed.Create("Intake", "dr-lee")
		require.NoError(t, repo.SaveAggregate(ctx, seed))

		first, _, err := repo.Load(ctx, id)
		require.NoError(t, err)
		second, _, err := repo.Load(ctx, id)
		require.NoError(t, err)

		require.NoError(t, first.Amend("from first"))
		require.NoError(t, repo.SaveAggregate(ctx, first))

		require.NoError(t, second.Amend("from second"))
		err = repo.SaveAggregate(ctx, second)

		var concErr *ConcurrencyError
		require.True(t, errors.As(err, &concErr))
		assert.Equal(t, uint64(1), concErr.Expected)
		assert.Equal(t, uint64(2), concErr.Actual)
		assert.Equal(t, uint64(1), second.Version())
		assert.True(t, second.HasUncommittedEvents())
	})

	t.Run("publish failure still commits", func(t *testing.T) {
		pub := &testutil.RecordingPublisher{Err: errors.New("down")}
		store, _ := newTestStore(WithPublisher(pub))
		repo := NewRepository(store, NewTestNote)
		note := NewTestNote(uuid.New())
		note.Create("Intake", "dr-lee")

		err := repo.SaveAggregate(ctx, note)

		assert.ErrorIs(t, err, ErrPublishFailed)
		assert.Equal(t, uint64(1), note.Version())
		assert.False(t, note.HasUncommittedEvents())
	})
}

// racingAdapter lets a competing writer commit right before the first
// append it sees, simulating a concurrent modification.
type racingAdapter struct {
	*memory.MemoryAdapter
	races atomic.Int32
}

func (r *racingAdapter) Append(ctx context.Context, id uuid.UUID, expected uint64, events []adapters.EventData) ([]adapters.EventRecord, error) {
	if r.races.Add(-1) >= 0 {
		current, _ := r.MemoryAdapter.CurrentVersion(ctx, id)
		_, err := r.MemoryAdapter.Append(ctx, id, current, []adapters.EventData{
			{Type: "TestNoteAmended", Payload: []byte(`{"body":"competing"}`)},
		})
		if err != nil {
			return nil, err
		}
	}
	return r.MemoryAdapter.Append(ctx, id, expected, events)
}

func TestRepository_Execute(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, store *EventStore) uuid.UUID {
		id := uuid.New()
		require.NoError(t, store.Append(ctx, id, 0, noteEvents(id)[:1]))
		return id
	}

	t.Run("runs command and saves", func(t *testing.T) {
		repo, store := newTestRepository()
		id := seed(t, store)

		note, err := repo.Execute(ctx, id, func(n *TestNote) error {
			return n.Amend("updated")
		})

		require.NoError(t, err)
		assert.Equal(t, uint64(2), note.Version())
		version, _ := store.Version(ctx, id)
		assert.Equal(t, uint64(2), version)
	})

	t.Run("command error is returned without retry", func(t *testing.T) {
		repo, store := newTestRepository(WithMaxAttempts(5), WithRetryBackOff(zeroBackOff))
		id := seed(t, store)
		var calls int

		_, err := repo.Execute(ctx, id, func(n *TestNote) error {
			calls++
			return errNoteSealed
		})

		assert.ErrorIs(t, err, errNoteSealed)
		assert.Equal(t, 1, calls)
	})

	t.Run("no retry by default", func(t *testing.T) {
		adapter := &racingAdapter{MemoryAdapter: memory.NewAdapter()}
		store := New(adapter, WithRegistry(newTestRegistry()))
		repo := NewRepository(store, NewTestNote)
		id := seed(t, store)
		adapter.races.Store(1)
		var calls int

		_, err := repo.Execute(ctx, id, func(n *TestNote) error {
			calls++
			return n.Amend("mine")
		})

		assert.ErrorIs(t, err, ErrConcurrencyConflict)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries against fresh state", func(t *testing.T) {
		adapter := &racingAdapter{MemoryAdapter: memory.NewAdapter()}
		store := New(adapter, WithRegistry(newTestRegistry()))
		repo := NewRepository(store, NewTestNote, WithMaxAttempts(3), WithRetryBackOff(zeroBackOff))
		id := seed(t, store)
		adapter.races.Store(2)
		var seen []int

		note, err := repo.Execute(ctx, id, func(n *TestNote) error {
			seen = append(seen, n.Amends)
			return n.Amend("mine")
		})

		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, seen)
		assert.Equal(t, "mine", note.Body)
		assert.Equal(t, uint64(4), note.Version())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		adapter := &racingAdapter{MemoryAdapter: memory.NewAdapter()}
		store := New(adapter, WithRegistry(newTestRegistry()))
		repo := NewRepository(store, NewTestNote, WithMaxAttempts(2), WithRetryBackOff(zeroBackOff))
		id := seed(t, store)
		adapter.races.Store(10)
		var calls int

		_, err := repo.Execute(ctx, id, func(n *TestNote) error {
			calls++
			return n.Amend("mine")
		})

		assert.ErrorIs(t, err, ErrConcurrencyConflict)
		assert.Equal(t, 2, calls)
	})

	t.Run("storage failure is not retried", func(t *testing.T) {
		mock := testutil.NewMockAdapter()
		store := New(mock, WithRegistry(newTestRegistry()))
		repo := NewRepository(store, NewTestNote, WithMaxAttempts(3), WithRetryBackOff(zeroBackOff))
		mock.AppendErr = adapters.NewStorageError("insert", uuid.Nil, errors.New("disk full"))

		_, err := repo.Execute(ctx, uuid.New(), func(n *TestNote) error {
			n.Create("Intake", "dr-lee")
			return nil
		})

		assert.ErrorIs(t, err, ErrStorage)
		assert.Equal(t, 1, mock.AppendCalls)
	})
}
