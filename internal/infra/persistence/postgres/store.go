// Package postgres provides the Postgres backend for the strategy store. It
// applies the schema (tables, count triggers, and the JSON read-model
// functions) on startup and delegates queries to the shared SQL store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/nrzngr/exvoria-strat-management/internal/infra/persistence/sqlstore"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// Compile-time contract assertions ensuring the store satisfies the domain interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.DetailLoader    = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/stratbook?sslmode=disable"

	uniqueViolationCode = "23505"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect describes Postgres for the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:                "postgres",
	Numbered:            true,
	IsUniqueViolation:   isUniqueViolation,
	StrategyDetailQuery: strategyDetailQuery,
	MapStrategiesQuery:  mapStrategiesQuery,
}

// Store persists maps and strategies to Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// defaultDSN), verifies connectivity, and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, Dialect)}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Migrate applies the schema to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	return applyDDLStatements(ctx, db, schema)
}

func applyDDLStatements(ctx context.Context, exec execer, statements []string) error {
	for _, stmt := range statements {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
