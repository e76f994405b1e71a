// Package sqlite provides a SQLite implementation of the event store adapter
// using the pure-Go modernc.org/sqlite driver.
//
// Appends run in a BEGIN IMMEDIATE transaction on a single connection, so the
// version check and the inserts are serialized against every other writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/havenhq/chronicle/adapters"
)

// Ensure SQLiteAdapter implements required interfaces.
var (
	_ adapters.EventStoreAdapter = (*SQLiteAdapter)(nil)
	_ adapters.HealthChecker     = (*SQLiteAdapter)(nil)
)

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteAdapter is a SQLite implementation of EventStoreAdapter.
type SQLiteAdapter struct {
	db     *sql.DB
	table  string
	now    func() time.Time
	closed atomic.Bool
}

// Option configures a SQLiteAdapter.
type Option func(*SQLiteAdapter)

// WithTable sets the events table name.
func WithTable(table string) Option {
	return func(a *SQLiteAdapter) {
		a.table = table
	}
}

// WithClock sets the clock used to stamp recorded_at.
func WithClock(now func() time.Time) Option {
	return func(a *SQLiteAdapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter opens (creating if needed) the database file at path.
func NewAdapter(path string, opts ...Option) (*SQLiteAdapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("chronicle/sqlite: database path is required")
	}

	adapter := &SQLiteAdapter{
		table: "events",
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(adapter)
	}

	if !tablePattern.MatchString(adapter.table) {
		return nil, fmt.Errorf("chronicle/sqlite: invalid table name %q", adapter.table)
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("chronicle/sqlite: open database: %w", err)
	}

	// One connection serializes writers; readers share it.
	db.SetMaxOpenConns(1)

	adapter.db = db
	return adapter, nil
}

// Initialize creates the events table.
func (a *SQLiteAdapter) Initialize(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				aggregate_id TEXT    NOT NULL,
				sequence     INTEGER NOT NULL CHECK (sequence > 0),
				event_type   TEXT    NOT NULL,
				event_data   BLOB    NOT NULL,
				recorded_at  INTEGER NOT NULL,
				PRIMARY KEY (aggregate_id, sequence)
			)`, a.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_event_type ON %[1]s (event_type)`, a.table),
	}

	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return adapters.NewStorageError("initialize", uuid.Nil, err)
		}
	}
	return nil
}

// Append stores events with optimistic concurrency control.
func (a *SQLiteAdapter) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []adapters.EventData) ([]adapters.EventRecord, error) {
	if len(events) == 0 {
		return nil, nil
	}

	if aggregateID == uuid.Nil {
		return nil, adapters.ErrNilAggregateID
	}

	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, adapters.NewStorageError("begin", aggregateID, err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentVersion(ctx, tx, a.table, aggregateID)
	if err != nil {
		return nil, err
	}

	if err := adapters.CheckVersion(aggregateID, expectedVersion, current); err != nil {
		return nil, err
	}

	recordedAt := a.now().UTC().Truncate(time.Millisecond)
	insert := fmt.Sprintf(`
		INSERT INTO %s (aggregate_id, sequence, event_type, event_data, recorded_at)
		VALUES (?, ?, ?, ?, ?)`, a.table)

	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		sequence := expectedVersion + uint64(i) + 1

		_, err := tx.ExecContext(ctx, insert,
			aggregateID.String(), int64(sequence), event.Type, payloadOrEmpty(event.Payload), toMillis(recordedAt))
		if err != nil {
			if isConstraintError(err) {
				// Unreachable while writers are serialized; kept as the contract backstop.
				latest, verr := currentVersion(ctx, tx, a.table, aggregateID)
				if verr == nil {
					return nil, adapters.NewConcurrencyError(aggregateID, expectedVersion, latest)
				}
			}
			return nil, adapters.NewStorageError("insert", aggregateID, err)
		}

		records[i] = adapters.CopyRecord(adapters.EventRecord{
			AggregateID: aggregateID,
			Sequence:    sequence,
			EventType:   event.Type,
			Payload:     event.Payload,
			RecordedAt:  recordedAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, adapters.NewStorageError("commit", aggregateID, err)
	}

	return records, nil
}

// Load retrieves all events of the aggregate in sequence order.
func (a *SQLiteAdapter) Load(ctx context.Context, aggregateID uuid.UUID) ([]adapters.EventRecord, error) {
	if aggregateID == uuid.Nil {
		return nil, adapters.ErrNilAggregateID
	}

	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT sequence, event_type, event_data, recorded_at
		FROM %s
		WHERE aggregate_id = ?
		ORDER BY sequence ASC`, a.table), aggregateID.String())
	if err != nil {
		return nil, adapters.NewStorageError("load", aggregateID, err)
	}
	defer rows.Close()

	records := make([]adapters.EventRecord, 0)
	for rows.Next() {
		var (
			sequence   int64
			recordedAt int64
			rec        adapters.EventRecord
		)
		if err := rows.Scan(&sequence, &rec.EventType, &rec.Payload, &recordedAt); err != nil {
			return nil, adapters.NewStorageError("scan", aggregateID, err)
		}
		rec.AggregateID = aggregateID
		rec.Sequence = uint64(sequence)
		rec.RecordedAt = fromMillis(recordedAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, adapters.NewStorageError("load", aggregateID, err)
	}

	return records, nil
}

// CurrentVersion returns the highest sequence of the aggregate, or 0.
func (a *SQLiteAdapter) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	if aggregateID == uuid.Nil {
		return 0, adapters.ErrNilAggregateID
	}

	if a.closed.Load() {
		return 0, adapters.ErrAdapterClosed
	}

	return currentVersion(ctx, a.db, a.table, aggregateID)
}

// Close closes the database.
func (a *SQLiteAdapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.db.Close()
}

// Ping checks that the database is usable.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (a *SQLiteAdapter) DB() *sql.DB {
	return a.db
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, q queryer, table string, aggregateID uuid.UUID) (uint64, error) {
	var version int64
	err := q.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(MAX(sequence), 0) FROM %s WHERE aggregate_id = ?`, table),
		aggregateID.String(),
	).Scan(&version)
	if err != nil {
		return 0, adapters.NewStorageError("read version", aggregateID, err)
	}
	return uint64(version), nil
}

// payloadOrEmpty keeps NOT NULL satisfied for zero-length payloads.
func payloadOrEmpty(p []byte) []byte {
	if p == nil {
		return []byte{}
	}
	return p
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
