// Package sqlite provides the embedded SQLite backend for the strategy store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite" // pure go sqlite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nrzngr/exvoria-strat-management/internal/infra/persistence/sqlstore"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "stratbook.db"

// Dialect describes SQLite for the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:                "sqlite",
	IsUniqueViolation:   isUniqueViolation,
	StrategyDetailQuery: strategyDetailQuery,
	MapStrategiesQuery:  mapStrategiesQuery,
}

// Store is a SQLite-backed persistent store.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating when needed) the database at path and applies the
// schema. Foreign keys are enabled for every connection through the DSN.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection keeps transactions and
	// deferred constraint checks on one handle.
	db.SetMaxOpenConns(1)
	if err := Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, Dialect), path: path}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Migrate applies the schema to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
