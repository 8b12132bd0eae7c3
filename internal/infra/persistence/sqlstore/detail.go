package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// ErrNoAggregate is returned when the dialect has no single-call query for a
// read model.
var ErrNoAggregate = domain.ErrNoAggregate

func (s *Store) loadJSON(ctx context.Context, query, id string) ([]byte, bool, error) {
	if query == "" {
		return nil, false, ErrNoAggregate
	}
	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, false, nil
	}
	return []byte(raw.String), true, nil
}

// LoadStrategyDetail assembles a strategy with its map, current version, and
// images in one database round trip.
func (s *Store) LoadStrategyDetail(ctx context.Context, id string) (domain.StrategyDetail, error) {
	raw, ok, err := s.loadJSON(ctx, s.dialect.StrategyDetailQuery, id)
	if err != nil {
		return domain.StrategyDetail{}, fmt.Errorf("load strategy detail: %w", err)
	}
	if !ok {
		return domain.StrategyDetail{}, domain.ErrNotFound{Entity: domain.EntityStrategy, ID: id}
	}
	var detail domain.StrategyDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return domain.StrategyDetail{}, fmt.Errorf("decode strategy detail: %w", err)
	}
	if detail.Map != nil && detail.Map.Metadata == nil {
		detail.Map.Metadata = map[string]any{}
	}
	if detail.Images == nil {
		detail.Images = []domain.StrategyImage{}
	}
	domain.SortImages(detail.Images)
	return detail, nil
}

// LoadMapStrategies returns summaries of every strategy under a map in one
// database round trip.
func (s *Store) LoadMapStrategies(ctx context.Context, mapID string) ([]domain.StrategySummary, error) {
	raw, ok, err := s.loadJSON(ctx, s.dialect.MapStrategiesQuery, mapID)
	if err != nil {
		return nil, fmt.Errorf("load map strategies: %w", err)
	}
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityMap, ID: mapID}
	}
	out := []domain.StrategySummary{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode map strategies: %w", err)
	}
	domain.SortSummaries(out)
	return out, nil
}
