// Package domain defines the persistent entities, read models, and error
// taxonomy shared by the strategy service and its storage backends.
package domain

import (
	"sort"
	"time"
)

// EntityType identifies the type of record stored in the domain.
type EntityType string

// Supported entity type identifiers used in errors and logging.
const (
	// EntityMap identifies a game map record.
	EntityMap EntityType = "map"
	// EntityStrategy identifies a strategy record.
	EntityStrategy EntityType = "strategy"
	// EntityStrategyVersion identifies an immutable strategy version record.
	EntityStrategyVersion EntityType = "strategy_version"
	// EntityStrategyImage identifies an image attached to a strategy.
	EntityStrategyImage EntityType = "strategy_image"
)

// Map is a game level/location that strategies are organized under.
type Map struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	ThumbnailURL  string         `json:"thumbnail_url,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	StrategyCount int            `json:"strategy_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Strategy is a tactical plan tied to a map. Its displayed content lives in
// the version referenced by CurrentVersionID; Title and Description are legacy
// fallback fields only.
type Strategy struct {
	ID               string    `json:"id"`
	MapID            string    `json:"map_id"`
	CurrentVersionID *string   `json:"current_version_id,omitempty"`
	Title            string    `json:"title,omitempty"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StrategyVersion is an immutable snapshot of a strategy's content.
type StrategyVersion struct {
	ID            string    `json:"id"`
	StrategyID    string    `json:"strategy_id"`
	VersionNumber int       `json:"version_number"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ChangeNotes   *string   `json:"change_notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// StrategyImage is an image stored in object storage and attached to a
// strategy. A nil VersionID marks a legacy/unversioned image.
type StrategyImage struct {
	ID                string    `json:"id"`
	StrategyID        *string   `json:"strategy_id,omitempty"`
	VersionID         *string   `json:"version_id,omitempty"`
	StoragePath       string    `json:"storage_path"`
	BucketName        string    `json:"bucket_name"`
	URL               string    `json:"url"`
	AltText           *string   `json:"alt_text,omitempty"`
	PositionInContent int       `json:"position_in_content"`
	CreatedAt         time.Time `json:"created_at"`
}

// StrategyDetail is the joined read model of a strategy with its map, its
// current version, and the images attached to that version.
type StrategyDetail struct {
	Strategy       Strategy         `json:"strategy"`
	Map            *Map             `json:"map,omitempty"`
	CurrentVersion *StrategyVersion `json:"current_version,omitempty"`
	Images         []StrategyImage  `json:"images"`
}

// Title resolves the displayed title, preferring the current version.
func (d StrategyDetail) Title() string {
	if d.CurrentVersion != nil {
		return d.CurrentVersion.Title
	}
	return d.Strategy.Title
}

// Description resolves the displayed description, preferring the current version.
func (d StrategyDetail) Description() string {
	if d.CurrentVersion != nil {
		return d.CurrentVersion.Description
	}
	return d.Strategy.Description
}

// StrategySummary is the list representation of a strategy.
type StrategySummary struct {
	Strategy      Strategy `json:"strategy"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	VersionNumber int      `json:"version_number"`
	ImageCount    int      `json:"image_count"`
}

// VersionDetail is a version together with its own image set.
type VersionDetail struct {
	Version StrategyVersion `json:"version"`
	Images  []StrategyImage `json:"images"`
}

// MapDetail is a map together with summaries of its strategies.
type MapDetail struct {
	Map        Map               `json:"map"`
	Strategies []StrategySummary `json:"strategies"`
}

// SortImages orders images by position in content, then creation time, then id.
func SortImages(images []StrategyImage) {
	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		if a.PositionInContent != b.PositionInContent {
			return a.PositionInContent < b.PositionInContent
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortSummaries orders summaries newest first.
func SortSummaries(summaries []StrategySummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].Strategy, summaries[j].Strategy
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string { return &s }

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
