package domain

import "context"

// ImageFilter selects image rows of a strategy by version association.
type ImageFilter struct {
	StrategyID string
	// VersionID selects images of a specific version. When nil and
	// Unversioned is true only legacy rows with a null version are returned;
	// when nil and Unversioned is false every image of the strategy is returned.
	VersionID   *string
	Unversioned bool
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateMap(Map) (Map, error)
	UpdateMap(id string, mutator func(*Map) error) (Map, error)
	DeleteMap(id string) error
	CreateStrategy(Strategy) (Strategy, error)
	UpdateStrategy(id string, mutator func(*Strategy) error) (Strategy, error)
	DeleteStrategy(id string) error
	CreateVersion(StrategyVersion) (StrategyVersion, error)
	CreateImage(StrategyImage) (StrategyImage, error)
	UpdateImage(id string, mutator func(*StrategyImage) error) (StrategyImage, error)
	DeleteImage(id string) error
}

// TransactionView provides read-only access to persisted state.
type TransactionView interface {
	FindMap(id string) (Map, bool, error)
	ListMaps() ([]Map, error)
	SearchMaps(query string) ([]Map, error)
	FindStrategy(id string) (Strategy, bool, error)
	ListStrategies(mapID string) ([]Strategy, error)
	SearchStrategies(query, mapID string) ([]Strategy, error)
	FindVersion(id string) (StrategyVersion, bool, error)
	FindVersionByNumber(strategyID string, number int) (StrategyVersion, bool, error)
	ListVersions(strategyID string) ([]StrategyVersion, error)
	FindImage(id string) (StrategyImage, bool, error)
	ListImages(filter ImageFilter) ([]StrategyImage, error)
	CountImageReferences(storagePath string) (int, error)
}

// PersistentStore is the abstraction over the relational backend. Both the
// durable SQL backends and the in-memory repository implement it.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}

// DetailLoader is implemented by stores that can assemble joined read models
// in a single backend call. Callers must be prepared to fall back to
// TransactionView queries when it fails.
type DetailLoader interface {
	LoadStrategyDetail(ctx context.Context, id string) (StrategyDetail, error)
	LoadMapStrategies(ctx context.Context, mapID string) ([]StrategySummary, error)
}
