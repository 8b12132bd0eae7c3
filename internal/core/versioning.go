package core

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// VersionContent is the text content captured by a strategy version.
type VersionContent struct {
	Title       string
	Description string
	ChangeNotes *string
}

// CopyResult maps each source image id to the id of its copy on the new
// version. Sources whose copy failed are listed in Skipped.
type CopyResult struct {
	Mapping map[string]string
	Skipped []string
}

// Resolve returns the id edits to oldID should apply to: its copy when one
// exists, otherwise oldID itself.
func (r CopyResult) Resolve(oldID string) string {
	if id, ok := r.Mapping[oldID]; ok {
		return id
	}
	return oldID
}

// nextVersionNumber is one past the highest existing version number, so a
// strategy without versions starts at 1.
func nextVersionNumber(view TransactionView, strategyID string) (int, error) {
	versions, err := view.ListVersions(strategyID)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, v := range versions {
		if v.VersionNumber > highest {
			highest = v.VersionNumber
		}
	}
	return highest + 1, nil
}

// createVersion inserts the next version of a strategy, repoints the current
// version pointer at it, and copies the previous version's images forward.
// It must run inside the caller's transaction.
func (s *Service) createVersion(tx Transaction, strategyID string, content VersionContent) (domain.StrategyVersion, CopyResult, error) {
	view := tx.Snapshot()
	st, ok, err := view.FindStrategy(strategyID)
	if err != nil {
		return domain.StrategyVersion{}, CopyResult{}, err
	}
	if !ok {
		return domain.StrategyVersion{}, CopyResult{}, domain.ErrNotFound{Entity: domain.EntityStrategy, ID: strategyID}
	}
	previous := st.CurrentVersionID
	number, err := nextVersionNumber(view, strategyID)
	if err != nil {
		return domain.StrategyVersion{}, CopyResult{}, err
	}
	version, err := tx.CreateVersion(domain.StrategyVersion{
		StrategyID:    strategyID,
		VersionNumber: number,
		Title:         content.Title,
		Description:   content.Description,
		ChangeNotes:   content.ChangeNotes,
	})
	if err != nil {
		return domain.StrategyVersion{}, CopyResult{}, fmt.Errorf("create version %d: %w", number, err)
	}
	if _, err := tx.UpdateStrategy(strategyID, func(st *domain.Strategy) error {
		st.CurrentVersionID = &version.ID
		return nil
	}); err != nil {
		return domain.StrategyVersion{}, CopyResult{}, fmt.Errorf("set current version: %w", err)
	}
	copied, err := s.copyImagesForward(tx, strategyID, previous, version.ID)
	if err != nil {
		return domain.StrategyVersion{}, CopyResult{}, err
	}
	return version, copied, nil
}

// copyImagesForward duplicates the image rows of the previous current version
// (or the unversioned rows when there was none) onto the new version. A row
// that fails to copy is logged and skipped.
func (s *Service) copyImagesForward(tx Transaction, strategyID string, previous *string, versionID string) (CopyResult, error) {
	filter := domain.ImageFilter{StrategyID: strategyID, Unversioned: true}
	if previous != nil {
		filter = domain.ImageFilter{StrategyID: strategyID, VersionID: previous}
	}
	sources, err := tx.Snapshot().ListImages(filter)
	if err != nil {
		return CopyResult{}, fmt.Errorf("list images to copy: %w", err)
	}
	result := CopyResult{Mapping: make(map[string]string, len(sources))}
	for _, src := range sources {
		copied, err := tx.CreateImage(domain.StrategyImage{
			StrategyID:        domain.StringPtr(strategyID),
			VersionID:         domain.StringPtr(versionID),
			StoragePath:       src.StoragePath,
			BucketName:        src.BucketName,
			URL:               src.URL,
			AltText:           src.AltText,
			PositionInContent: src.PositionInContent,
		})
		if err != nil {
			s.logger.Warn("image copy skipped",
				zap.String("strategy_id", strategyID),
				zap.String("image_id", src.ID),
				zap.Error(err))
			result.Skipped = append(result.Skipped, src.ID)
			continue
		}
		result.Mapping[src.ID] = copied.ID
	}
	return result, nil
}
