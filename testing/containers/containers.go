// Package containers connects integration tests to a running PostgreSQL
// (docker compose or a CI service) and gives each test its own schema.
// Tests are skipped when no database is reachable.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// Postgres is the connection target read from the environment.
// TEST_DATABASE_URL wins over the individual fields.
type Postgres struct {
	URL      string `env:"TEST_DATABASE_URL"`
	Host     string `env:"TEST_POSTGRES_HOST" envDefault:"localhost"`
	Port     string `env:"TEST_POSTGRES_PORT" envDefault:"5432"`
	Database string `env:"TEST_POSTGRES_DB" envDefault:"chronicle_test"`
	User     string `env:"TEST_POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"TEST_POSTGRES_PASSWORD" envDefault:"postgres"`
}

// FromEnv reads the connection target.
func FromEnv() (Postgres, error) {
	var pg Postgres
	if err := env.Parse(&pg); err != nil {
		return Postgres{}, fmt.Errorf("containers: failed to read environment: %w", err)
	}
	return pg, nil
}

// ConnectionString returns the PostgreSQL URL.
func (p Postgres) ConnectionString() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Database)
}

// Open opens and pings a pool with driver ("pgx" or "postgres"), retrying
// until ctx expires.
func (p Postgres) Open(ctx context.Context, driver string) (*sql.DB, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		db, err := sql.Open(driver, p.ConnectionString())
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				return db, nil
			}
			db.Close()
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("containers: %w (last error: %v)", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}

// Option configures a Schema.
type Option func(*options)

type options struct {
	prefix  string
	driver  string
	timeout time.Duration
}

// WithSchemaPrefix sets the prefix of the generated schema name.
func WithSchemaPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithDriver selects the database/sql driver.
func WithDriver(driver string) Option {
	return func(o *options) { o.driver = driver }
}

// IntegrationTest is a per-test schema, dropped on cleanup.
type IntegrationTest struct {
	t      *testing.T
	ctx    context.Context
	db     *sql.DB
	schema string
}

// NewIntegrationTest connects and creates a fresh schema. It skips in short
// mode and when the database does not answer within ten seconds.
func NewIntegrationTest(t *testing.T, opts ...Option) *IntegrationTest {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	o := options{prefix: "test", driver: "pgx", timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	pg, err := FromEnv()
	if err != nil {
		t.Fatalf("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	t.Cleanup(cancel)

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()
	db, err := pg.Open(dialCtx, o.driver)
	if err != nil {
		t.Skipf("PostgreSQL not available (set TEST_DATABASE_URL or run docker compose -f docker-compose.test.yml up -d): %v", err)
	}

	schema := fmt.Sprintf("%s_%d", o.prefix, time.Now().UnixNano())
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA "+pq.QuoteIdentifier(schema)); err != nil {
		db.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		if _, err := db.Exec("DROP SCHEMA IF EXISTS " + pq.QuoteIdentifier(schema) + " CASCADE"); err != nil {
			t.Logf("Warning: failed to drop schema %s: %v", schema, err)
		}
		db.Close()
	})

	return &IntegrationTest{t: t, ctx: ctx, db: db, schema: schema}
}

// Context returns the test context.
func (it *IntegrationTest) Context() context.Context { return it.ctx }

// DB returns the pool.
func (it *IntegrationTest) DB() *sql.DB { return it.db }

// Schema returns the schema name.
func (it *IntegrationTest) Schema() string { return it.schema }

// HasTable reports whether the schema holds table.
func (it *IntegrationTest) HasTable(table string) bool {
	it.t.Helper()

	var exists bool
	err := it.db.QueryRowContext(it.ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, it.schema, table).Scan(&exists)
	if err != nil {
		it.t.Fatalf("Failed to inspect schema: %v", err)
	}
	return exists
}
