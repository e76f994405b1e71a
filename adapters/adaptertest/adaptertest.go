// Package adaptertest provides a conformance suite that every
// adapters.EventStoreAdapter implementation must pass.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenhq/chronicle/adapters"
)

// Factory returns a fresh, initialized adapter for one subtest.
// The suite closes it when the subtest finishes.
type Factory func(t *testing.T) adapters.EventStoreAdapter

// Run executes the conformance suite against adapters built by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, a adapters.EventStoreAdapter)
	}{
		{"AppendThenLoadRoundTrip", testRoundTrip},
		{"SequentialAppends", testSequentialAppends},
		{"StaleExpectedVersion", testStaleExpectedVersion},
		{"AheadExpectedVersion", testAheadExpectedVersion},
		{"EmptyBatchIsNoOp", testEmptyBatch},
		{"UnknownAggregateLoadsEmpty", testUnknownAggregate},
		{"AggregatesAreIndependent", testIndependentAggregates},
		{"ConcurrentAppendsSameVersion", testConcurrentAppends},
		{"PayloadIsOpaque", testPayloadIsOpaque},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t)
			t.Cleanup(func() { _ = a.Close() })
			tt.fn(t, a)
		})
	}
}

func events(types ...string) []adapters.EventData {
	out := make([]adapters.EventData, len(types))
	for i, typ := range types {
		out[i] = adapters.EventData{
			Type:    typ,
			Payload: []byte(fmt.Sprintf(`{"n":%d}`, i)),
		}
	}
	return out
}

func testRoundTrip(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	id := uuid.New()
	batch := events("RestrictedNoteCreated", "RestrictedNoteAccessGranted", "RestrictedNoteSealed")

	records, err := a.Append(ctx, id, 0, batch)
	require.NoError(t, err)
	require.Len(t, records, 3)

	loaded, err := a.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	for i, rec := range loaded {
		assert.Equal(t, id, rec.AggregateID)
		assert.Equal(t, uint64(i+1), rec.Sequence)
		assert.Equal(t, batch[i].Type, rec.EventType)
		assert.JSONEq(t, string(batch[i].Payload), string(rec.Payload))
		assert.False(t, rec.RecordedAt.IsZero())

		assert.Equal(t, records[i].Sequence, rec.Sequence)
		assert.Equal(t, records[i].EventType, rec.EventType)
	}

	version, err := a.CurrentVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), version)
}

func testSequentialAppends(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	id := uuid.New()

	_, err := a.Append(ctx, id, 0, events("ConsentGranted", "ConsentScopeUpdated"))
	require.NoError(t, err)

	records, err := a.Append(ctx, id, 2, events("ConsentRevoked"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(3), records[0].Sequence)

	loaded, err := a.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, "ConsentGranted", loaded[0].EventType)
	assert.Equal(t, "ConsentScopeUpdated", loaded[1].EventType)
	assert.Equal(t, "ConsentRevoked", loaded[2].EventType)
}

func testStaleExpectedVersion(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	id := uuid.New()

	_, err := a.Append(ctx, id, 0, events("A", "B", "C"))
	require.NoError(t, err)

	_, err = a.Append(ctx, id, 1, events("D"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, adapters.ErrConcurrencyConflict))
	assert.False(t, errors.Is(err, adapters.ErrStorage))

	var concErr *adapters.ConcurrencyError
	require.True(t, errors.As(err, &concErr))
	assert.Equal(t, id, concErr.AggregateID)
	assert.Equal(t, uint64(1), concErr.Expected)
	assert.Equal(t, uint64(3), concErr.Actual)

	loaded, err := a.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func testAheadExpectedVersion(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	id := uuid.New()

	_, err := a.Append(ctx, id, 5, events("A"))
	require.Error(t, err)

	var concErr *adapters.ConcurrencyError
	require.True(t, errors.As(err, &concErr))
	assert.Equal(t, uint64(5), concErr.Expected)
	assert.Equal(t, uint64(0), concErr.Actual)

	loaded, err := a.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func testEmptyBatch(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	id := uuid.New()

	_, err := a.Append(ctx, id, 0, events("A"))
	require.NoError(t, err)

	// The expected version is deliberately wrong; empty batches skip the check.
	records, err := a.Append(ctx, id, 42, nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = a.Append(ctx, id, 42, []adapters.EventData{})
	require.NoError(t, err)
	assert.Empty(t, records)

	version, err := a.CurrentVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func testUnknownAggregate(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	id := uuid.New()

	loaded, err := a.Load(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)

	version, err := a.CurrentVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
}

func testIndependentAggregates(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	_, err := a.Append(ctx, first, 0, events("A", "B"))
	require.NoError(t, err)

	// second is still at 0 regardless of first.
	records, err := a.Append(ctx, second, 0, events("C"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), records[0].Sequence)

	loaded, err := a.Load(ctx, first)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	loaded, err = a.Load(ctx, second)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, second, loaded[0].AggregateID)
}

func testConcurrentAppends(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	id := uuid.New()

	_, err := a.Append(ctx, id, 0, events("A"))
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts []*adapters.ConcurrencyError
		others    []error
	)

	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := a.Append(ctx, id, 1, events("B", "C"))

			mu.Lock()
			defer mu.Unlock()

			var concErr *adapters.ConcurrencyError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &concErr):
				conflicts = append(conflicts, concErr)
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, succeeded)
	assert.Len(t, conflicts, writers-1)
	for _, c := range conflicts {
		assert.Equal(t, uint64(1), c.Expected)
		assert.Equal(t, uint64(3), c.Actual)
	}

	loaded, err := a.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, rec := range loaded {
		assert.Equal(t, uint64(i+1), rec.Sequence)
	}
}

func testPayloadIsOpaque(t *testing.T, a adapters.EventStoreAdapter) {
	ctx := context.Background()
	id := uuid.New()

	payload := []byte(`{"note":"ünïcödé","nested":{"list":[1,2,3]}}`)
	batch := []adapters.EventData{{Type: "RestrictedNoteCreated", Payload: payload}}

	_, err := a.Append(ctx, id, 0, batch)
	require.NoError(t, err)

	// Mutating the caller's buffer must not reach stored data.
	payload[2] = 'X'

	loaded, err := a.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.JSONEq(t, `{"note":"ünïcödé","nested":{"list":[1,2,3]}}`, string(loaded[0].Payload))
}
