// Package postgres provides a PostgreSQL implementation of the event store adapter.
//
// Events live in a single table keyed by (aggregate_id, sequence). The primary
// key is the backstop for optimistic concurrency: an append that loses a race
// hits a unique violation and is reported as a concurrency conflict.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/havenhq/chronicle/adapters"
)

const (
	// DriverPgx selects the jackc/pgx database/sql driver.
	DriverPgx = "pgx"

	// DriverPQ selects the lib/pq driver.
	DriverPQ = "postgres"

	uniqueViolation = "23505"
)

// Sentinel errors for the postgres adapter.
// These are aliases to the adapters package errors for compatibility with errors.Is().
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrNilAggregateID      = adapters.ErrNilAggregateID
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
)

// Ensure PostgresAdapter implements required interfaces.
var (
	_ adapters.EventStoreAdapter = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker     = (*PostgresAdapter)(nil)
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresAdapter is a PostgreSQL implementation of EventStoreAdapter.
type PostgresAdapter struct {
	db         *sql.DB
	driver     string
	schema     string
	table      string
	maxRetries int
	ownsDB     bool
	closed     atomic.Bool

	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// Option configures a PostgresAdapter.
type Option func(*PostgresAdapter)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(a *PostgresAdapter) {
		a.schema = schema
	}
}

// WithTable sets the events table name.
func WithTable(table string) Option {
	return func(a *PostgresAdapter) {
		a.table = table
	}
}

// WithDriver selects the database/sql driver, DriverPgx (default) or DriverPQ.
func WithDriver(driver string) Option {
	return func(a *PostgresAdapter) {
		a.driver = driver
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.maxOpenConns = n
	}
}

// WithMaxIdleConnections sets the maximum number of idle connections.
func WithMaxIdleConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.maxIdleConns = n
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *PostgresAdapter) {
		a.connMaxLifetime = d
	}
}

// WithAppendRetries bounds how often Append is retried after a unique
// violation when the re-read version still equals the expected version.
func WithAppendRetries(n int) Option {
	return func(a *PostgresAdapter) {
		if n > 0 {
			a.maxRetries = n
		}
	}
}

func newAdapter(opts []Option) (*PostgresAdapter, error) {
	adapter := &PostgresAdapter{
		driver:     DriverPgx,
		schema:     "chronicle",
		table:      "events",
		maxRetries: 3,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	if !identifierPattern.MatchString(adapter.schema) {
		return nil, fmt.Errorf("chronicle/postgres: invalid schema name %q", adapter.schema)
	}
	if !identifierPattern.MatchString(adapter.table) {
		return nil, fmt.Errorf("chronicle/postgres: invalid table name %q", adapter.table)
	}
	if adapter.driver != DriverPgx && adapter.driver != DriverPQ {
		return nil, fmt.Errorf("chronicle/postgres: unsupported driver %q", adapter.driver)
	}

	return adapter, nil
}

// NewAdapter opens a connection pool and creates a PostgreSQL event store adapter.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	adapter, err := newAdapter(opts)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(adapter.driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("chronicle/postgres: failed to open database: %w", err)
	}

	if adapter.maxOpenConns > 0 {
		db.SetMaxOpenConns(adapter.maxOpenConns)
	}
	if adapter.maxIdleConns > 0 {
		db.SetMaxIdleConns(adapter.maxIdleConns)
	}
	if adapter.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(adapter.connMaxLifetime)
	}

	adapter.db = db
	adapter.ownsDB = true
	return adapter, nil
}

// NewAdapterWithDB creates a new adapter with an existing database connection.
// Close does not close db.
func NewAdapterWithDB(db *sql.DB, opts ...Option) (*PostgresAdapter, error) {
	adapter, err := newAdapter(opts)
	if err != nil {
		return nil, err
	}
	adapter.db = db
	return adapter, nil
}

func (a *PostgresAdapter) qualifiedTable() string {
	return pq.QuoteIdentifier(a.schema) + "." + pq.QuoteIdentifier(a.table)
}

// Initialize creates the schema and the events table.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(a.schema)),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				aggregate_id UUID         NOT NULL,
				sequence     BIGINT       NOT NULL CHECK (sequence > 0),
				event_type   VARCHAR(255) NOT NULL,
				event_data   BYTEA        NOT NULL,
				recorded_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				PRIMARY KEY (aggregate_id, sequence)
			)`, a.qualifiedTable()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (event_type)`,
			pq.QuoteIdentifier("idx_"+a.table+"_event_type"), a.qualifiedTable()),
	}

	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return adapters.NewStorageError("initialize", uuid.Nil, err)
		}
	}
	return nil
}

// Append stores events with optimistic concurrency control.
func (a *PostgresAdapter) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []adapters.EventData) ([]adapters.EventRecord, error) {
	if len(events) == 0 {
		return nil, nil
	}

	if aggregateID == uuid.Nil {
		return nil, ErrNilAggregateID
	}

	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		records, err := a.appendOnce(ctx, aggregateID, expectedVersion, events)
		if err == nil {
			return records, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err

		// Another writer committed first. Report the version it left behind.
		current, verr := a.CurrentVersion(ctx, aggregateID)
		if verr != nil {
			return nil, verr
		}
		if current != expectedVersion {
			return nil, adapters.NewConcurrencyError(aggregateID, expectedVersion, current)
		}
	}

	return nil, adapters.NewStorageError("append", aggregateID, lastErr)
}

func (a *PostgresAdapter) appendOnce(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []adapters.EventData) ([]adapters.EventRecord, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, adapters.NewStorageError("begin", aggregateID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(MAX(sequence), 0) FROM %s WHERE aggregate_id = $1`, a.qualifiedTable()),
		aggregateID,
	).Scan(&current)
	if err != nil {
		return nil, adapters.NewStorageError("read version", aggregateID, err)
	}

	if err := adapters.CheckVersion(aggregateID, expectedVersion, uint64(current)); err != nil {
		return nil, err
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (aggregate_id, sequence, event_type, event_data)
		VALUES ($1, $2, $3, $4)
		RETURNING recorded_at`, a.qualifiedTable())

	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		sequence := expectedVersion + uint64(i) + 1

		var recordedAt time.Time
		err := tx.QueryRowContext(ctx, insert,
			aggregateID, int64(sequence), event.Type, event.Payload,
		).Scan(&recordedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, err
			}
			return nil, adapters.NewStorageError("insert", aggregateID, err)
		}

		records[i] = adapters.CopyRecord(adapters.EventRecord{
			AggregateID: aggregateID,
			Sequence:    sequence,
			EventType:   event.Type,
			Payload:     event.Payload,
			RecordedAt:  recordedAt.UTC(),
		})
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, adapters.NewStorageError("commit", aggregateID, err)
	}

	return records, nil
}

// Load retrieves all events of the aggregate in sequence order.
func (a *PostgresAdapter) Load(ctx context.Context, aggregateID uuid.UUID) ([]adapters.EventRecord, error) {
	if aggregateID == uuid.Nil {
		return nil, ErrNilAggregateID
	}

	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT sequence, event_type, event_data, recorded_at
		FROM %s
		WHERE aggregate_id = $1
		ORDER BY sequence ASC`, a.qualifiedTable()), aggregateID)
	if err != nil {
		return nil, adapters.NewStorageError("load", aggregateID, err)
	}
	defer rows.Close()

	records := make([]adapters.EventRecord, 0)
	for rows.Next() {
		var (
			sequence   int64
			rec        adapters.EventRecord
			recordedAt time.Time
		)
		if err := rows.Scan(&sequence, &rec.EventType, &rec.Payload, &recordedAt); err != nil {
			return nil, adapters.NewStorageError("scan", aggregateID, err)
		}
		rec.AggregateID = aggregateID
		rec.Sequence = uint64(sequence)
		rec.RecordedAt = recordedAt.UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, adapters.NewStorageError("load", aggregateID, err)
	}

	return records, nil
}

// CurrentVersion returns the highest sequence of the aggregate, or 0.
func (a *PostgresAdapter) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	if aggregateID == uuid.Nil {
		return 0, ErrNilAggregateID
	}

	if a.closed.Load() {
		return 0, ErrAdapterClosed
	}

	var version int64
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(MAX(sequence), 0) FROM %s WHERE aggregate_id = $1`, a.qualifiedTable()),
		aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, adapters.NewStorageError("read version", aggregateID, err)
	}

	return uint64(version), nil
}

// Close marks the adapter closed and closes the pool it opened.
func (a *PostgresAdapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.ownsDB {
		return a.db.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (a *PostgresAdapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *PostgresAdapter) Schema() string {
	return a.schema
}

// Table returns the events table name.
func (a *PostgresAdapter) Table() string {
	return a.table
}

// isUniqueViolation recognizes SQLSTATE 23505 from either supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}

	return false
}
