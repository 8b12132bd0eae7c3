package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/internal/media"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// StrategyInput creates a strategy together with its first version.
type StrategyInput struct {
	MapID       string
	Title       string
	Description string
	ChangeNotes *string
	Images      []media.File
}

// StrategyUpdate describes an edit. Every edit produces a new version.
// ImageDescriptions maps image ids of the previous version to new alt text;
// MapID moves the strategy when set; Images are appended to the new version.
type StrategyUpdate struct {
	Title             string
	Description       string
	ChangeNotes       *string
	ImageDescriptions map[string]string
	MapID             string
	Images            []media.File
}

// StrategyResult is the outcome of a create or update: the resulting detail
// plus what happened to the supplied images.
type StrategyResult struct {
	Detail   domain.StrategyDetail
	Version  domain.StrategyVersion
	Copied   CopyResult
	Uploads  media.Report
	Attached []domain.StrategyImage
}

func validateContent(title string) error {
	if strings.TrimSpace(title) == "" {
		return domain.ValidationError{Field: "title", Message: "is required"}
	}
	return nil
}

// CreateStrategy stores a strategy with version 1 and attaches the uploaded
// images to that version. Images rejected by validation are skipped and
// reported. When storage fails partway the strategy is still created with the
// images stored before the failure, and the *media.UploadError is returned
// with the result.
func (s *Service) CreateStrategy(ctx context.Context, in StrategyInput) (StrategyResult, error) {
	if strings.TrimSpace(in.MapID) == "" {
		return StrategyResult{}, domain.ValidationError{Field: "map_id", Message: "is required"}
	}
	if err := validateContent(in.Title); err != nil {
		return StrategyResult{}, err
	}
	if _, err := s.GetMap(ctx, in.MapID); err != nil {
		return StrategyResult{}, err
	}
	if len(in.Images) > 0 {
		if err := s.uploader.Ready(); err != nil {
			return StrategyResult{}, err
		}
	}
	id := uuid.NewString()
	var (
		res       StrategyResult
		uploadErr error
	)
	if len(in.Images) > 0 {
		res.Uploads, uploadErr = s.uploader.UploadAll(ctx, media.StrategyPrefix(id), in.Images)
	}
	err := s.run(ctx, "create_strategy", func(tx Transaction) error {
		if _, err := tx.CreateStrategy(domain.Strategy{
			ID:          id,
			MapID:       in.MapID,
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
		}); err != nil {
			return err
		}
		version, copied, err := s.createVersion(tx, id, VersionContent{
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
			ChangeNotes: in.ChangeNotes,
		})
		if err != nil {
			return err
		}
		res.Version, res.Copied = version, copied
		res.Attached, err = attachUploads(tx, id, version.ID, 0, res.Uploads.Uploaded)
		return err
	})
	if err != nil {
		s.discardUploads(ctx, res.Uploads.Uploaded)
		return res, fmt.Errorf("create strategy: %w", err)
	}
	s.logger.Info("strategy created",
		zap.String("strategy_id", id),
		zap.String("map_id", in.MapID),
		zap.Int("images", len(res.Attached)),
		zap.Int("rejected", len(res.Uploads.Rejected)))
	res.Detail, err = s.GetStrategy(ctx, id)
	if err != nil {
		return res, err
	}
	if uploadErr != nil {
		return res, fmt.Errorf("upload images: %w", uploadErr)
	}
	return res, nil
}

// UpdateStrategy records an edit as a new version, copies the previous
// version's images forward, applies image description edits to the copies,
// and appends any new images. A storage failure partway through the new
// images keeps the edit and the images stored before it; the
// *media.UploadError is returned with the result.
func (s *Service) UpdateStrategy(ctx context.Context, id string, up StrategyUpdate) (StrategyResult, error) {
	if err := validateContent(up.Title); err != nil {
		return StrategyResult{}, err
	}
	if _, err := s.findStrategy(ctx, id); err != nil {
		return StrategyResult{}, err
	}
	if len(up.Images) > 0 {
		if err := s.uploader.Ready(); err != nil {
			return StrategyResult{}, err
		}
	}
	var (
		res       StrategyResult
		uploadErr error
	)
	if len(up.Images) > 0 {
		res.Uploads, uploadErr = s.uploader.UploadAll(ctx, media.StrategyPrefix(id), up.Images)
	}
	err := s.run(ctx, "update_strategy", func(tx Transaction) error {
		if up.MapID != "" {
			if _, err := tx.UpdateStrategy(id, func(st *domain.Strategy) error {
				st.MapID = up.MapID
				return nil
			}); err != nil {
				return err
			}
		}
		version, copied, err := s.createVersion(tx, id, VersionContent{
			Title:       strings.TrimSpace(up.Title),
			Description: up.Description,
			ChangeNotes: up.ChangeNotes,
		})
		if err != nil {
			return err
		}
		res.Version, res.Copied = version, copied
		for oldID, alt := range up.ImageDescriptions {
			target, err := ownedImage(tx.Snapshot(), id, copied.Resolve(oldID))
			if err != nil {
				return err
			}
			if _, err := tx.UpdateImage(target, setAltText(alt)); err != nil {
				return fmt.Errorf("update image %s: %w", oldID, err)
			}
		}
		start, err := nextPosition(tx.Snapshot(), id, &version.ID)
		if err != nil {
			return err
		}
		res.Attached, err = attachUploads(tx, id, version.ID, start, res.Uploads.Uploaded)
		return err
	})
	if err != nil {
		s.discardUploads(ctx, res.Uploads.Uploaded)
		return res, fmt.Errorf("update strategy: %w", err)
	}
	s.logger.Info("strategy updated",
		zap.String("strategy_id", id),
		zap.Int("version", res.Version.VersionNumber),
		zap.Int("copied", len(res.Copied.Mapping)),
		zap.Int("skipped", len(res.Copied.Skipped)))
	res.Detail, err = s.GetStrategy(ctx, id)
	if err != nil {
		return res, err
	}
	if uploadErr != nil {
		return res, fmt.Errorf("upload images: %w", uploadErr)
	}
	return res, nil
}

// ownedImage returns imageID when the row belongs to strategyID.
func ownedImage(view TransactionView, strategyID, imageID string) (string, error) {
	img, ok, err := view.FindImage(imageID)
	if err != nil {
		return "", err
	}
	if !ok || img.StrategyID == nil || *img.StrategyID != strategyID {
		return "", domain.ValidationError{
			Field:   "image_descriptions",
			Message: fmt.Sprintf("image %s is not an image of strategy %s", imageID, strategyID),
		}
	}
	return imageID, nil
}

// DeleteStrategy removes a strategy with its versions and images, then
// deletes objects no other row references.
func (s *Service) DeleteStrategy(ctx context.Context, id string) error {
	var paths []string
	err := s.run(ctx, "delete_strategy", func(tx Transaction) error {
		images, err := tx.Snapshot().ListImages(domain.ImageFilter{StrategyID: id})
		if err != nil {
			return err
		}
		paths = appendPaths(paths, images, s.blobs.Bucket())
		return tx.DeleteStrategy(id)
	})
	if err != nil {
		return fmt.Errorf("delete strategy: %w", err)
	}
	s.logger.Info("strategy deleted", zap.String("strategy_id", id))
	s.removeUnreferenced(ctx, paths)
	return nil
}

// SearchStrategies returns summaries of strategies whose legacy or current
// version title/description contains query, optionally restricted to a map.
func (s *Service) SearchStrategies(ctx context.Context, query, mapID string) ([]domain.StrategySummary, error) {
	var out []domain.StrategySummary
	err := s.view(ctx, "search_strategies", func(v TransactionView) error {
		var (
			strategies []domain.Strategy
			err        error
		)
		if strings.TrimSpace(query) == "" {
			strategies, err = v.ListStrategies(mapID)
		} else {
			strategies, err = v.SearchStrategies(strings.TrimSpace(query), mapID)
		}
		if err != nil {
			return err
		}
		out, err = summarize(v, strategies)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search strategies: %w", err)
	}
	return out, nil
}

// ListVersions returns every version of a strategy, oldest first.
func (s *Service) ListVersions(ctx context.Context, strategyID string) ([]domain.StrategyVersion, error) {
	var versions []domain.StrategyVersion
	err := s.view(ctx, "list_versions", func(v TransactionView) error {
		if _, ok, err := v.FindStrategy(strategyID); err != nil {
			return err
		} else if !ok {
			return domain.ErrNotFound{Entity: domain.EntityStrategy, ID: strategyID}
		}
		var err error
		versions, err = v.ListVersions(strategyID)
		return err
	})
	return versions, err
}

// GetVersion returns one version of a strategy with its own image set.
func (s *Service) GetVersion(ctx context.Context, strategyID string, number int) (domain.VersionDetail, error) {
	var out domain.VersionDetail
	err := s.view(ctx, "get_version", func(v TransactionView) error {
		version, ok, err := v.FindVersionByNumber(strategyID, number)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityStrategyVersion, ID: fmt.Sprintf("%s#%d", strategyID, number)}
		}
		images, err := v.ListImages(domain.ImageFilter{StrategyID: strategyID, VersionID: &version.ID})
		if err != nil {
			return err
		}
		out = domain.VersionDetail{Version: version, Images: images}
		return nil
	})
	return out, err
}

func (s *Service) findStrategy(ctx context.Context, id string) (domain.Strategy, error) {
	var st domain.Strategy
	err := s.store.View(ctx, func(v TransactionView) error {
		found, ok, err := v.FindStrategy(id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityStrategy, ID: id}
		}
		st = found
		return nil
	})
	return st, err
}
