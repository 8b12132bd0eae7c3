package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// timeLayout is fixed width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(timeLayout)
}

// timeValue scans TIMESTAMPTZ values (postgres) and TEXT values (sqlite).
type timeValue struct{ t *time.Time }

func (v timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*v.t = time.Time{}
	case time.Time:
		*v.t = x.UTC()
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (v timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	*v.t = t.UTC()
	return nil
}

// jsonValue scans JSON stored as TEXT (sqlite) or JSONB (postgres).
type jsonValue struct{ dst *map[string]any }

func (v jsonValue) Scan(src any) error {
	var raw []byte
	switch x := src.(type) {
	case nil:
		*v.dst = map[string]any{}
		return nil
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	default:
		return fmt.Errorf("unsupported json value %T", src)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
	}
	*v.dst = out
	return nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func ptrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	mapColumns      = "id, name, description, thumbnail_url, metadata, strategy_count, created_at, updated_at"
	strategyColumns = "id, map_id, current_version_id, title, description, created_at, updated_at"
	versionColumns  = "id, strategy_id, version_number, title, description, change_notes, created_at"
	imageColumns    = "id, strategy_id, version_id, storage_path, bucket_name, url, alt_text, position_in_content, created_at"
)

func scanMap(row rowScanner) (domain.Map, error) {
	var m domain.Map
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.ThumbnailURL, jsonValue{&m.Metadata}, &m.StrategyCount, timeValue{&m.CreatedAt}, timeValue{&m.UpdatedAt})
	return m, err
}

func scanStrategy(row rowScanner) (domain.Strategy, error) {
	var (
		s       domain.Strategy
		current sql.NullString
	)
	err := row.Scan(&s.ID, &s.MapID, &current, &s.Title, &s.Description, timeValue{&s.CreatedAt}, timeValue{&s.UpdatedAt})
	s.CurrentVersionID = ptrFromNull(current)
	return s, err
}

func scanVersion(row rowScanner) (domain.StrategyVersion, error) {
	var (
		v     domain.StrategyVersion
		notes sql.NullString
	)
	err := row.Scan(&v.ID, &v.StrategyID, &v.VersionNumber, &v.Title, &v.Description, &notes, timeValue{&v.CreatedAt})
	v.ChangeNotes = ptrFromNull(notes)
	return v, err
}

func scanImage(row rowScanner) (domain.StrategyImage, error) {
	var (
		img                        domain.StrategyImage
		strategyID, versionID, alt sql.NullString
	)
	err := row.Scan(&img.ID, &strategyID, &versionID, &img.StoragePath, &img.BucketName, &img.URL, &alt, &img.PositionInContent, timeValue{&img.CreatedAt})
	img.StrategyID = ptrFromNull(strategyID)
	img.VersionID = ptrFromNull(versionID)
	img.AltText = ptrFromNull(alt)
	return img, err
}
