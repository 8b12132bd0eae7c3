package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nrzngr/exvoria-strat-management/internal/media"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// MapInput carries the editable fields of a map. On update, empty
// ThumbnailURL and nil Metadata leave the stored values untouched.
type MapInput struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (in MapInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.ValidationError{Field: "name", Message: "is required"}
	}
	return nil
}

// ListMaps returns every map ordered by name.
func (s *Service) ListMaps(ctx context.Context) ([]domain.Map, error) {
	var maps []domain.Map
	err := s.view(ctx, "list_maps", func(v TransactionView) error {
		var err error
		maps, err = v.ListMaps()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	return maps, nil
}

// SearchMaps returns maps whose name or description contains query. An empty
// query lists every map.
func (s *Service) SearchMaps(ctx context.Context, query string) ([]domain.Map, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListMaps(ctx)
	}
	var maps []domain.Map
	err := s.view(ctx, "search_maps", func(v TransactionView) error {
		var err error
		maps, err = v.SearchMaps(query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search maps: %w", err)
	}
	return maps, nil
}

// GetMap returns a single map.
func (s *Service) GetMap(ctx context.Context, id string) (domain.Map, error) {
	var m domain.Map
	err := s.view(ctx, "get_map", func(v TransactionView) error {
		found, ok, err := v.FindMap(id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityMap, ID: id}
		}
		m = found
		return nil
	})
	return m, err
}

// GetMapDetail fetches a map and its strategy summaries concurrently.
func (s *Service) GetMapDetail(ctx context.Context, id string) (domain.MapDetail, error) {
	var detail domain.MapDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.GetMap(gctx, id)
		detail.Map = m
		return err
	})
	g.Go(func() error {
		summaries, err := s.ListStrategies(gctx, id)
		detail.Strategies = summaries
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MapDetail{}, err
	}
	return detail, nil
}

// CreateMap persists a new map. Names are unique case-insensitively.
func (s *Service) CreateMap(ctx context.Context, in MapInput) (domain.Map, error) {
	if err := in.validate(); err != nil {
		return domain.Map{}, err
	}
	var created domain.Map
	err := s.run(ctx, "create_map", func(tx Transaction) error {
		var err error
		created, err = tx.CreateMap(domain.Map{
			Name:         strings.TrimSpace(in.Name),
			Description:  in.Description,
			ThumbnailURL: in.ThumbnailURL,
			Metadata:     in.Metadata,
		})
		return err
	})
	if err != nil {
		return domain.Map{}, fmt.Errorf("create map: %w", err)
	}
	s.logger.Info("map created", zap.String("map_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

// UpdateMap replaces a map's name and description, and its thumbnail URL and
// metadata when supplied.
func (s *Service) UpdateMap(ctx context.Context, id string, in MapInput) (domain.Map, error) {
	if err := in.validate(); err != nil {
		return domain.Map{}, err
	}
	var updated domain.Map
	err := s.run(ctx, "update_map", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateMap(id, func(m *domain.Map) error {
			m.Name = strings.TrimSpace(in.Name)
			m.Description = in.Description
			if in.ThumbnailURL != "" {
				m.ThumbnailURL = in.ThumbnailURL
			}
			if in.Metadata != nil {
				m.Metadata = in.Metadata
			}
			return nil
		})
		return err
	})
	if err != nil {
		return domain.Map{}, fmt.Errorf("update map: %w", err)
	}
	return updated, nil
}

// DeleteMap removes a map together with its strategies, their versions, and
// their images. Objects no longer referenced afterwards are removed from
// object storage on a best-effort basis.
func (s *Service) DeleteMap(ctx context.Context, id string) error {
	var paths []string
	err := s.run(ctx, "delete_map", func(tx Transaction) error {
		view := tx.Snapshot()
		strategies, err := view.ListStrategies(id)
		if err != nil {
			return err
		}
		for _, st := range strategies {
			images, err := view.ListImages(domain.ImageFilter{StrategyID: st.ID})
			if err != nil {
				return err
			}
			paths = appendPaths(paths, images, s.blobs.Bucket())
		}
		return tx.DeleteMap(id)
	})
	if err != nil {
		return fmt.Errorf("delete map: %w", err)
	}
	s.logger.Info("map deleted", zap.String("map_id", id))
	s.removeUnreferenced(ctx, paths)
	s.removePrefix(ctx, media.MapPrefix(id)+"/")
	return nil
}

// SetMapThumbnail uploads f and points the map's thumbnail at it.
func (s *Service) SetMapThumbnail(ctx context.Context, id string, f media.File) (domain.Map, error) {
	if _, err := s.GetMap(ctx, id); err != nil {
		return domain.Map{}, err
	}
	stored, err := s.uploader.Upload(ctx, media.MapPrefix(id), f)
	if err != nil {
		return domain.Map{}, fmt.Errorf("upload thumbnail: %w", err)
	}
	var updated domain.Map
	err = s.run(ctx, "set_map_thumbnail", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateMap(id, func(m *domain.Map) error {
			m.ThumbnailURL = stored.URL
			return nil
		})
		return err
	})
	if err != nil {
		return domain.Map{}, fmt.Errorf("set thumbnail: %w", err)
	}
	return updated, nil
}
