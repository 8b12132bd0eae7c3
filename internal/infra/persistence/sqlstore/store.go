package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.DetailLoader    = (*Store)(nil)
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the domain persistence interfaces against a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	nowFn   func() time.Time
}

// New wraps an open database. The schema must already be applied.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the dialect the store was built with.
func (s *Store) Dialect() Dialect { return s.dialect }

// SetClock overrides the clock used for timestamps. Intended for tests.
func (s *Store) SetClock(fn func() time.Time) { s.nowFn = fn }

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunInTransaction executes fn inside a database transaction, committing when
// fn succeeds and rolling back otherwise.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s transaction: %w", s.dialect.Name, err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	tx := &transaction{
		reader: reader{ctx: ctx, q: sqlTx, d: s.dialect},
		now:    encodeTime(s.nowFn()),
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		if s.dialect.uniqueViolation(err) {
			return fmt.Errorf("commit: %w", domain.ErrConflict)
		}
		return fmt.Errorf("commit %s transaction: %w", s.dialect.Name, err)
	}
	return nil
}

// View executes fn with read access outside any explicit transaction.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(reader{ctx: ctx, q: s.db, d: s.dialect})
}

type reader struct {
	ctx context.Context
	q   querier
	d   Dialect
}

func (r reader) queryRow(query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(r.ctx, r.d.Rebind(query), args...)
}

func (r reader) query(query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(r.ctx, r.d.Rebind(query), args...)
}

func (r reader) exec(query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(r.ctx, r.d.Rebind(query), args...)
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer func() { _ = rows.Close() }()
	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func found[T any](item T, err error) (T, bool, error) {
	var zero T
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return item, true, nil
}

func (r reader) FindMap(id string) (domain.Map, bool, error) {
	return found(scanMap(r.queryRow("SELECT "+mapColumns+" FROM maps WHERE id = ?", id)))
}

func (r reader) ListMaps() ([]domain.Map, error) {
	rows, err := r.query("SELECT " + mapColumns + " FROM maps ORDER BY LOWER(name), id")
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	return collect(rows, scanMap)
}

func (r reader) SearchMaps(query string) ([]domain.Map, error) {
	if strings.TrimSpace(query) == "" {
		return r.ListMaps()
	}
	p := likePattern(query)
	rows, err := r.query("SELECT "+mapColumns+` FROM maps
		WHERE LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'
		ORDER BY LOWER(name), id`, p, p)
	if err != nil {
		return nil, fmt.Errorf("search maps: %w", err)
	}
	return collect(rows, scanMap)
}

func (r reader) FindStrategy(id string) (domain.Strategy, bool, error) {
	return found(scanStrategy(r.queryRow("SELECT "+strategyColumns+" FROM strategies WHERE id = ?", id)))
}

func (r reader) ListStrategies(mapID string) ([]domain.Strategy, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if mapID == "" {
		rows, err = r.query("SELECT " + strategyColumns + " FROM strategies ORDER BY created_at DESC, id")
	} else {
		rows, err = r.query("SELECT "+strategyColumns+" FROM strategies WHERE map_id = ? ORDER BY created_at DESC, id", mapID)
	}
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	return collect(rows, scanStrategy)
}

func (r reader) SearchStrategies(query, mapID string) ([]domain.Strategy, error) {
	if strings.TrimSpace(query) == "" {
		return r.ListStrategies(mapID)
	}
	p := likePattern(query)
	q := `SELECT s.id, s.map_id, s.current_version_id, s.title, s.description, s.created_at, s.updated_at
		FROM strategies s LEFT JOIN strategy_versions v ON v.id = s.current_version_id
		WHERE (LOWER(COALESCE(v.title, s.title)) LIKE ? ESCAPE '\' OR LOWER(COALESCE(v.description, s.description)) LIKE ? ESCAPE '\')`
	args := []any{p, p}
	if mapID != "" {
		q += " AND s.map_id = ?"
		args = append(args, mapID)
	}
	rows, err := r.query(q+" ORDER BY s.created_at DESC, s.id", args...)
	if err != nil {
		return nil, fmt.Errorf("search strategies: %w", err)
	}
	return collect(rows, scanStrategy)
}

func (r reader) FindVersion(id string) (domain.StrategyVersion, bool, error) {
	return found(scanVersion(r.queryRow("SELECT "+versionColumns+" FROM strategy_versions WHERE id = ?", id)))
}

func (r reader) FindVersionByNumber(strategyID string, number int) (domain.StrategyVersion, bool, error) {
	return found(scanVersion(r.queryRow("SELECT "+versionColumns+" FROM strategy_versions WHERE strategy_id = ? AND version_number = ?", strategyID, number)))
}

func (r reader) ListVersions(strategyID string) ([]domain.StrategyVersion, error) {
	rows, err := r.query("SELECT "+versionColumns+" FROM strategy_versions WHERE strategy_id = ? ORDER BY version_number", strategyID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return collect(rows, scanVersion)
}

func (r reader) FindImage(id string) (domain.StrategyImage, bool, error) {
	return found(scanImage(r.queryRow("SELECT "+imageColumns+" FROM strategy_images WHERE id = ?", id)))
}

func (r reader) ListImages(filter domain.ImageFilter) ([]domain.StrategyImage, error) {
	q := "SELECT " + imageColumns + " FROM strategy_images WHERE strategy_id = ?"
	args := []any{filter.StrategyID}
	switch {
	case filter.VersionID != nil:
		q += " AND version_id = ?"
		args = append(args, *filter.VersionID)
	case filter.Unversioned:
		q += " AND version_id IS NULL"
	}
	rows, err := r.query(q+" ORDER BY position_in_content, created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return collect(rows, scanImage)
}

func (r reader) CountImageReferences(storagePath string) (int, error) {
	var n int
	if err := r.queryRow("SELECT COUNT(*) FROM strategy_images WHERE storage_path = ?", storagePath).Scan(&n); err != nil {
		return 0, fmt.Errorf("count image references: %w", err)
	}
	return n, nil
}

type transaction struct {
	reader
	now string
}

func newID() string { return uuid.NewString() }

func (tx *transaction) Snapshot() domain.TransactionView { return tx.reader }

func (tx *transaction) conflict(err error, format string, args ...any) error {
	if tx.d.uniqueViolation(err) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrConflict)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func (tx *transaction) CreateMap(m domain.Map) (domain.Map, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	meta, err := encodeMetadata(m.Metadata)
	if err != nil {
		return domain.Map{}, err
	}
	if _, err := tx.exec(`INSERT INTO maps (id, name, description, thumbnail_url, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, m.ID, m.Name, m.Description, m.ThumbnailURL, meta, tx.now, tx.now); err != nil {
		return domain.Map{}, tx.conflict(err, "insert map %q", m.Name)
	}
	return tx.mustMap(m.ID)
}

func (tx *transaction) mustMap(id string) (domain.Map, error) {
	m, ok, err := tx.FindMap(id)
	if err != nil {
		return domain.Map{}, err
	}
	if !ok {
		return domain.Map{}, domain.ErrNotFound{Entity: domain.EntityMap, ID: id}
	}
	return m, nil
}

// UpdateMap never writes strategy_count; triggers own that column.
func (tx *transaction) UpdateMap(id string, mutator func(*domain.Map) error) (domain.Map, error) {
	current, err := tx.mustMap(id)
	if err != nil {
		return domain.Map{}, err
	}
	if err := mutator(&current); err != nil {
		return domain.Map{}, err
	}
	meta, err := encodeMetadata(current.Metadata)
	if err != nil {
		return domain.Map{}, err
	}
	if _, err := tx.exec(`UPDATE maps SET name = ?, description = ?, thumbnail_url = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		current.Name, current.Description, current.ThumbnailURL, meta, tx.now, id); err != nil {
		return domain.Map{}, tx.conflict(err, "update map %q", id)
	}
	return tx.mustMap(id)
}

func (tx *transaction) DeleteMap(id string) error {
	return tx.deleteRow("maps", domain.EntityMap, id)
}

func (tx *transaction) deleteRow(table string, entity domain.EntityType, id string) error {
	res, err := tx.exec("DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s %q: %w", entity, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound{Entity: entity, ID: id}
	}
	return nil
}

func (tx *transaction) mustStrategy(id string) (domain.Strategy, error) {
	st, ok, err := tx.FindStrategy(id)
	if err != nil {
		return domain.Strategy{}, err
	}
	if !ok {
		return domain.Strategy{}, domain.ErrNotFound{Entity: domain.EntityStrategy, ID: id}
	}
	return st, nil
}

func (tx *transaction) CreateStrategy(st domain.Strategy) (domain.Strategy, error) {
	if st.ID == "" {
		st.ID = newID()
	}
	if st.CurrentVersionID != nil {
		return domain.Strategy{}, fmt.Errorf("strategy %q cannot reference a version before it exists", st.ID)
	}
	if _, err := tx.mustMap(st.MapID); err != nil {
		return domain.Strategy{}, err
	}
	if _, err := tx.exec(`INSERT INTO strategies (id, map_id, title, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, st.ID, st.MapID, st.Title, st.Description, tx.now, tx.now); err != nil {
		return domain.Strategy{}, tx.conflict(err, "insert strategy %q", st.ID)
	}
	return tx.mustStrategy(st.ID)
}

func (tx *transaction) UpdateStrategy(id string, mutator func(*domain.Strategy) error) (domain.Strategy, error) {
	current, err := tx.mustStrategy(id)
	if err != nil {
		return domain.Strategy{}, err
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Strategy{}, err
	}
	if current.CurrentVersionID != nil {
		v, ok, err := tx.FindVersion(*current.CurrentVersionID)
		if err != nil {
			return domain.Strategy{}, err
		}
		if !ok {
			return domain.Strategy{}, domain.ErrNotFound{Entity: domain.EntityStrategyVersion, ID: *current.CurrentVersionID}
		}
		if v.StrategyID != id {
			return domain.Strategy{}, fmt.Errorf("version %q belongs to strategy %q, not %q", v.ID, v.StrategyID, id)
		}
	}
	if current.MapID != before.MapID {
		if _, err := tx.mustMap(current.MapID); err != nil {
			return domain.Strategy{}, err
		}
	}
	if _, err := tx.exec(`UPDATE strategies SET map_id = ?, current_version_id = ?, title = ?, description = ?, updated_at = ? WHERE id = ?`,
		current.MapID, nullString(current.CurrentVersionID), current.Title, current.Description, tx.now, id); err != nil {
		return domain.Strategy{}, fmt.Errorf("update strategy %q: %w", id, err)
	}
	return tx.mustStrategy(id)
}

func (tx *transaction) DeleteStrategy(id string) error {
	return tx.deleteRow("strategies", domain.EntityStrategy, id)
}

func (tx *transaction) CreateVersion(v domain.StrategyVersion) (domain.StrategyVersion, error) {
	if v.ID == "" {
		v.ID = newID()
	}
	if v.VersionNumber < 1 {
		return domain.StrategyVersion{}, domain.ValidationError{Field: "version_number", Message: "must be positive"}
	}
	if _, err := tx.mustStrategy(v.StrategyID); err != nil {
		return domain.StrategyVersion{}, err
	}
	if _, err := tx.exec(`INSERT INTO strategy_versions (id, strategy_id, version_number, title, description, change_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, v.ID, v.StrategyID, v.VersionNumber, v.Title, v.Description, nullString(v.ChangeNotes), tx.now); err != nil {
		return domain.StrategyVersion{}, tx.conflict(err, "strategy %q version %d", v.StrategyID, v.VersionNumber)
	}
	created, ok, err := tx.FindVersion(v.ID)
	if err != nil {
		return domain.StrategyVersion{}, err
	}
	if !ok {
		return domain.StrategyVersion{}, domain.ErrNotFound{Entity: domain.EntityStrategyVersion, ID: v.ID}
	}
	return created, nil
}

// CreateImage inserts under a savepoint so a failed row leaves the enclosing
// transaction usable and the caller may skip it.
func (tx *transaction) CreateImage(img domain.StrategyImage) (domain.StrategyImage, error) {
	if img.ID == "" {
		img.ID = newID()
	}
	if img.VersionID != nil {
		v, ok, err := tx.FindVersion(*img.VersionID)
		if err != nil {
			return domain.StrategyImage{}, err
		}
		if !ok {
			return domain.StrategyImage{}, domain.ErrNotFound{Entity: domain.EntityStrategyVersion, ID: *img.VersionID}
		}
		if img.StrategyID == nil || *img.StrategyID != v.StrategyID {
			return domain.StrategyImage{}, fmt.Errorf("image version %q belongs to strategy %q", v.ID, v.StrategyID)
		}
	}
	if _, err := tx.exec("SAVEPOINT image_insert"); err != nil {
		return domain.StrategyImage{}, fmt.Errorf("savepoint: %w", err)
	}
	_, err := tx.exec(`INSERT INTO strategy_images (id, strategy_id, version_id, storage_path, bucket_name, url, alt_text, position_in_content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, img.ID, nullString(img.StrategyID), nullString(img.VersionID), img.StoragePath, img.BucketName, img.URL,
		nullString(img.AltText), img.PositionInContent, tx.now)
	if err != nil {
		if _, rbErr := tx.exec("ROLLBACK TO SAVEPOINT image_insert"); rbErr != nil {
			return domain.StrategyImage{}, errors.Join(fmt.Errorf("insert image: %w", err), rbErr)
		}
		_, _ = tx.exec("RELEASE SAVEPOINT image_insert")
		return domain.StrategyImage{}, tx.conflict(err, "insert image %q", img.StoragePath)
	}
	if _, err := tx.exec("RELEASE SAVEPOINT image_insert"); err != nil {
		return domain.StrategyImage{}, fmt.Errorf("release savepoint: %w", err)
	}
	created, ok, err := tx.FindImage(img.ID)
	if err != nil {
		return domain.StrategyImage{}, err
	}
	if !ok {
		return domain.StrategyImage{}, domain.ErrNotFound{Entity: domain.EntityStrategyImage, ID: img.ID}
	}
	return created, nil
}

func (tx *transaction) UpdateImage(id string, mutator func(*domain.StrategyImage) error) (domain.StrategyImage, error) {
	current, ok, err := tx.FindImage(id)
	if err != nil {
		return domain.StrategyImage{}, err
	}
	if !ok {
		return domain.StrategyImage{}, domain.ErrNotFound{Entity: domain.EntityStrategyImage, ID: id}
	}
	if err := mutator(&current); err != nil {
		return domain.StrategyImage{}, err
	}
	if _, err := tx.exec("UPDATE strategy_images SET alt_text = ?, position_in_content = ? WHERE id = ?",
		nullString(current.AltText), current.PositionInContent, id); err != nil {
		return domain.StrategyImage{}, fmt.Errorf("update image %q: %w", id, err)
	}
	updated, _, err := tx.FindImage(id)
	return updated, err
}

func (tx *transaction) DeleteImage(id string) error {
	return tx.deleteRow("strategy_images", domain.EntityStrategyImage, id)
}
