package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// GetStrategy returns a strategy joined with its map, current version, and
// that version's images. It tries the store's aggregated query first and
// falls back to separate queries when that fails for any reason other than
// the strategy not existing.
func (s *Service) GetStrategy(ctx context.Context, id string) (domain.StrategyDetail, error) {
	start := s.now()
	detail, err := s.getStrategy(ctx, id)
	s.observe(ctx, "get_strategy", start, err)
	return detail, err
}

func (s *Service) getStrategy(ctx context.Context, id string) (domain.StrategyDetail, error) {
	if loader, ok := s.store.(domain.DetailLoader); ok {
		detail, err := loader.LoadStrategyDetail(ctx, id)
		if err == nil || domain.IsNotFound(err) || ctx.Err() != nil {
			return detail, err
		}
		s.fallback("get_strategy", err)
	}
	var detail domain.StrategyDetail
	err := s.store.View(ctx, func(v TransactionView) error {
		var err error
		detail, err = assembleDetail(v, id)
		return err
	})
	return detail, err
}

// ListStrategies returns summaries of a map's strategies, newest first, with
// the same aggregated-then-fallback policy as GetStrategy.
func (s *Service) ListStrategies(ctx context.Context, mapID string) ([]domain.StrategySummary, error) {
	start := s.now()
	out, err := s.listStrategies(ctx, mapID)
	s.observe(ctx, "list_strategies", start, err)
	return out, err
}

func (s *Service) listStrategies(ctx context.Context, mapID string) ([]domain.StrategySummary, error) {
	if loader, ok := s.store.(domain.DetailLoader); ok {
		out, err := loader.LoadMapStrategies(ctx, mapID)
		if err == nil || domain.IsNotFound(err) || ctx.Err() != nil {
			return out, err
		}
		s.fallback("list_strategies", err)
	}
	var out []domain.StrategySummary
	err := s.store.View(ctx, func(v TransactionView) error {
		if _, ok, err := v.FindMap(mapID); err != nil {
			return err
		} else if !ok {
			return domain.ErrNotFound{Entity: domain.EntityMap, ID: mapID}
		}
		strategies, err := v.ListStrategies(mapID)
		if err != nil {
			return err
		}
		out, err = summarize(v, strategies)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) fallback(op string, err error) {
	level := s.logger.Debug
	if !errors.Is(err, domain.ErrNoAggregate) {
		level = s.logger.Warn
	}
	level("aggregated read failed, using separate queries", zap.String("operation", op), zap.Error(err))
	if fr, ok := s.metrics.(FallbackRecorder); ok {
		fr.Fallback(op)
	}
}

// assembleDetail builds a StrategyDetail from individual queries. The
// current version is fetched separately since it is referenced by id.
func assembleDetail(v TransactionView, id string) (domain.StrategyDetail, error) {
	st, ok, err := v.FindStrategy(id)
	if err != nil {
		return domain.StrategyDetail{}, fmt.Errorf("find strategy: %w", err)
	}
	if !ok {
		return domain.StrategyDetail{}, domain.ErrNotFound{Entity: domain.EntityStrategy, ID: id}
	}
	detail := domain.StrategyDetail{Strategy: st}
	if m, ok, err := v.FindMap(st.MapID); err != nil {
		return domain.StrategyDetail{}, fmt.Errorf("find map: %w", err)
	} else if ok {
		detail.Map = &m
	}
	filter := domain.ImageFilter{StrategyID: id, Unversioned: true}
	if st.CurrentVersionID != nil {
		cv, ok, err := v.FindVersion(*st.CurrentVersionID)
		if err != nil {
			return domain.StrategyDetail{}, fmt.Errorf("find current version: %w", err)
		}
		if ok {
			detail.CurrentVersion = &cv
			filter = domain.ImageFilter{StrategyID: id, VersionID: &cv.ID}
		}
	}
	images, err := v.ListImages(filter)
	if err != nil {
		return domain.StrategyDetail{}, fmt.Errorf("list images: %w", err)
	}
	if images == nil {
		images = []domain.StrategyImage{}
	}
	domain.SortImages(images)
	detail.Images = images
	return detail, nil
}

// summarize resolves the displayed content and image count of each strategy.
func summarize(v TransactionView, strategies []domain.Strategy) ([]domain.StrategySummary, error) {
	out := make([]domain.StrategySummary, 0, len(strategies))
	for _, st := range strategies {
		sum := domain.StrategySummary{Strategy: st, Title: st.Title, Description: st.Description}
		filter := domain.ImageFilter{StrategyID: st.ID, Unversioned: true}
		if st.CurrentVersionID != nil {
			cv, ok, err := v.FindVersion(*st.CurrentVersionID)
			if err != nil {
				return nil, err
			}
			if ok {
				sum.Title, sum.Description, sum.VersionNumber = cv.Title, cv.Description, cv.VersionNumber
				filter = domain.ImageFilter{StrategyID: st.ID, VersionID: &cv.ID}
			}
		}
		images, err := v.ListImages(filter)
		if err != nil {
			return nil, err
		}
		sum.ImageCount = len(images)
		out = append(out, sum)
	}
	domain.SortSummaries(out)
	return out, nil
}
