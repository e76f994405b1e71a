package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenhq/chronicle/adapters"
	"github.com/havenhq/chronicle/adapters/adaptertest"
)

func openTestAdapter(t *testing.T, opts ...Option) *SQLiteAdapter {
	t.Helper()

	adapter, err := NewAdapter(filepath.Join(t.TempDir(), "events.db"), opts...)
	require.NoError(t, err)
	require.NoError(t, adapter.Initialize(context.Background()))
	return adapter
}

func TestSQLiteAdapter_Conformance(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) adapters.EventStoreAdapter {
		return openTestAdapter(t)
	})
}

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter("   ")
	assert.Error(t, err)

	_, err = NewAdapter(filepath.Join(t.TempDir(), "x.db"), WithTable("drop table"))
	assert.Error(t, err)
}

func TestSQLiteAdapter_Initialize_Idempotent(t *testing.T) {
	adapter := openTestAdapter(t, WithTable("journal"))
	defer adapter.Close()

	require.NoError(t, adapter.Initialize(context.Background()))

	var name string
	err := adapter.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'journal'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "journal", name)
}

func TestSQLiteAdapter_RecordedAtMillis(t *testing.T) {
	fixed := time.Date(2024, 5, 17, 14, 3, 9, 123456789, time.UTC)
	adapter := openTestAdapter(t, WithClock(func() time.Time { return fixed }))
	defer adapter.Close()

	ctx := context.Background()
	id := uuid.New()

	records, err := adapter.Append(ctx, id, 0, []adapters.EventData{{Type: "ConsentGranted", Payload: []byte(`{}`)}})
	require.NoError(t, err)

	want := fixed.Truncate(time.Millisecond)
	assert.Equal(t, want, records[0].RecordedAt)

	loaded, err := adapter.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, want, loaded[0].RecordedAt)
}

func TestSQLiteAdapter_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()
	id := uuid.New()

	first, err := NewAdapter(path)
	require.NoError(t, err)
	require.NoError(t, first.Initialize(ctx))
	_, err = first.Append(ctx, id, 0, []adapters.EventData{
		{Type: "RestrictedNoteCreated", Payload: []byte(`{"a":1}`)},
		{Type: "RestrictedNoteSealed", Payload: []byte(`{"b":2}`)},
	})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewAdapter(path)
	require.NoError(t, err)
	defer second.Close()

	version, err := second.CurrentVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
}

func TestSQLiteAdapter_CancelledAppendWritesNothing(t *testing.T) {
	adapter := openTestAdapter(t)
	defer adapter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := uuid.New()
	_, err := adapter.Append(ctx, id, 0, []adapters.EventData{{Type: "A", Payload: []byte(`{}`)}})
	require.Error(t, err)

	version, err := adapter.CurrentVersion(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
}

func TestSQLiteAdapter_Closed(t *testing.T) {
	adapter := openTestAdapter(t)
	require.NoError(t, adapter.Close())
	require.NoError(t, adapter.Close())

	_, err := adapter.Load(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, adapters.ErrAdapterClosed))
	assert.True(t, errors.Is(adapter.Ping(context.Background()), adapters.ErrAdapterClosed))
}

func TestIsConstraintError(t *testing.T) {
	adapter := openTestAdapter(t)
	defer adapter.Close()

	id := uuid.New().String()
	insert := `INSERT INTO events (aggregate_id, sequence, event_type, event_data, recorded_at) VALUES (?, 1, 'A', x'00', 0)`

	_, err := adapter.DB().Exec(insert, id)
	require.NoError(t, err)

	_, err = adapter.DB().Exec(insert, id)
	require.Error(t, err)
	assert.True(t, isConstraintError(err))
	assert.False(t, isConstraintError(errors.New("boom")))
}
