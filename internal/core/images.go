package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/internal/media"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// UploadImages stores files and attaches them to the strategy's current
// version, or as unversioned images when it has none. Validation rejects are
// skipped and reported in the returned report. When storage fails partway the
// files stored before the failure are still attached, and the *media.UploadError
// is returned alongside them.
func (s *Service) UploadImages(ctx context.Context, strategyID string, files []media.File) ([]domain.StrategyImage, media.Report, error) {
	if _, err := s.findStrategy(ctx, strategyID); err != nil {
		return nil, media.Report{}, err
	}
	if err := s.uploader.Ready(); err != nil {
		return nil, media.Report{}, err
	}
	report, uploadErr := s.uploader.UploadAll(ctx, media.StrategyPrefix(strategyID), files)
	var attached []domain.StrategyImage
	err := s.run(ctx, "upload_images", func(tx Transaction) error {
		view := tx.Snapshot()
		st, ok, err := view.FindStrategy(strategyID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityStrategy, ID: strategyID}
		}
		start, err := nextPosition(view, strategyID, st.CurrentVersionID)
		if err != nil {
			return err
		}
		versionID := ""
		if st.CurrentVersionID != nil {
			versionID = *st.CurrentVersionID
		}
		attached, err = attachUploads(tx, strategyID, versionID, start, report.Uploaded)
		return err
	})
	if err != nil {
		s.discardUploads(ctx, report.Uploaded)
		return nil, report, fmt.Errorf("attach images: %w", err)
	}
	if uploadErr != nil {
		return attached, report, fmt.Errorf("upload images: %w", uploadErr)
	}
	return attached, report, nil
}

// UpdateImageDescription sets the alt text of a single image row. An empty
// description clears it.
func (s *Service) UpdateImageDescription(ctx context.Context, imageID, altText string) (domain.StrategyImage, error) {
	var updated domain.StrategyImage
	err := s.run(ctx, "update_image", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateImage(imageID, setAltText(altText))
		return err
	})
	if err != nil {
		return domain.StrategyImage{}, fmt.Errorf("update image: %w", err)
	}
	return updated, nil
}

// DeleteImage removes one image row and deletes its object when no other row
// references it.
func (s *Service) DeleteImage(ctx context.Context, imageID string) error {
	var paths []string
	err := s.run(ctx, "delete_image", func(tx Transaction) error {
		img, ok, err := tx.Snapshot().FindImage(imageID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityStrategyImage, ID: imageID}
		}
		paths = appendPaths(paths, []domain.StrategyImage{img}, s.blobs.Bucket())
		return tx.DeleteImage(imageID)
	})
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	s.removeUnreferenced(ctx, paths)
	return nil
}

func setAltText(alt string) func(*domain.StrategyImage) error {
	return func(img *domain.StrategyImage) error {
		if strings.TrimSpace(alt) == "" {
			img.AltText = nil
			return nil
		}
		img.AltText = domain.StringPtr(alt)
		return nil
	}
}

// nextPosition is one past the highest position among the images of a
// version (or of the unversioned set when versionID is nil).
func nextPosition(view TransactionView, strategyID string, versionID *string) (int, error) {
	filter := domain.ImageFilter{StrategyID: strategyID, VersionID: versionID, Unversioned: versionID == nil}
	images, err := view.ListImages(filter)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, img := range images {
		if img.PositionInContent >= next {
			next = img.PositionInContent + 1
		}
	}
	return next, nil
}

// attachUploads inserts one image row per stored upload, in upload order.
// An empty versionID attaches them unversioned.
func attachUploads(tx Transaction, strategyID, versionID string, start int, uploads []media.Stored) ([]domain.StrategyImage, error) {
	attached := make([]domain.StrategyImage, 0, len(uploads))
	for i, up := range uploads {
		img := domain.StrategyImage{
			StrategyID:        domain.StringPtr(strategyID),
			StoragePath:       up.StoragePath,
			BucketName:        up.BucketName,
			URL:               up.URL,
			PositionInContent: start + i,
		}
		if versionID != "" {
			img.VersionID = domain.StringPtr(versionID)
		}
		created, err := tx.CreateImage(img)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", up.Name, err)
		}
		attached = append(attached, created)
	}
	return attached, nil
}

// appendPaths collects the distinct storage paths of images held in bucket.
func appendPaths(paths []string, images []domain.StrategyImage, bucket string) []string {
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
	}
	for _, img := range images {
		if img.BucketName != bucket {
			continue
		}
		if _, ok := seen[img.StoragePath]; ok {
			continue
		}
		seen[img.StoragePath] = struct{}{}
		paths = append(paths, img.StoragePath)
	}
	return paths
}

// removeUnreferenced deletes objects whose storage path no longer appears in
// any image row. Failures are logged only.
func (s *Service) removeUnreferenced(ctx context.Context, paths []string) {
	for _, p := range paths {
		var refs int
		if err := s.store.View(ctx, func(v TransactionView) error {
			var err error
			refs, err = v.CountImageReferences(p)
			return err
		}); err != nil {
			s.logger.Warn("count image references", zap.String("path", p), zap.Error(err))
			continue
		}
		if refs > 0 {
			continue
		}
		if _, err := s.blobs.Delete(ctx, p); err != nil {
			s.logger.Debug("blob cleanup failed", zap.String("path", p), zap.Error(err))
		}
	}
}

// discardUploads removes objects whose rows were never committed.
func (s *Service) discardUploads(ctx context.Context, uploads []media.Stored) {
	paths := make([]string, 0, len(uploads))
	for _, up := range uploads {
		paths = append(paths, up.StoragePath)
	}
	s.removeUnreferenced(ctx, paths)
}

// removePrefix deletes every object under prefix. Failures are logged only.
func (s *Service) removePrefix(ctx context.Context, prefix string) {
	infos, err := s.blobs.List(ctx, prefix)
	if err != nil {
		s.logger.Debug("blob cleanup list failed", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	for _, info := range infos {
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			s.logger.Debug("blob cleanup failed", zap.String("path", info.Key), zap.Error(err))
		}
	}
}
