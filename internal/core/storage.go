package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/nrzngr/exvoria-strat-management/internal/infra/persistence/memory"
	"github.com/nrzngr/exvoria-strat-management/internal/infra/persistence/postgres"
	"github.com/nrzngr/exvoria-strat-management/internal/infra/persistence/sqlite"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / unconfigured)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	// Seed inserts DefaultSeedMaps that are not present yet.
	Seed bool
}

// OpenPersistentStore opens the configured backend. An empty driver selects
// the in-memory store.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig) (PersistentStore, error) {
	var (
		store PersistentStore
		err   error
	)
	switch cfg.Driver {
	case "", StorageMemory:
		store = memory.NewStore()
	case StorageSQLite:
		store, err = sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		store, err = postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	if cfg.Seed {
		if _, err := SeedMaps(ctx, store, DefaultSeedMaps()); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// DefaultSeedMaps returns the sample maps available in a fresh deployment.
func DefaultSeedMaps() []domain.Map {
	return []domain.Map{
		{Name: "Desert Storm", Description: "Open dunes with two contested oases.", Metadata: map[string]any{"mode": "attack_defend", "size": "large"}},
		{Name: "Frozen Harbor", Description: "Icebound docks, narrow warehouse lanes.", Metadata: map[string]any{"mode": "attack_defend", "size": "medium"}},
		{Name: "Jungle Ruins", Description: "Overgrown temple with vertical sightlines.", Metadata: map[string]any{"mode": "control", "size": "medium"}},
		{Name: "Neon District", Description: "Dense city blocks and rooftop routes.", Metadata: map[string]any{"mode": "control", "size": "small"}},
	}
}

// SeedMaps creates each map whose name is not taken yet and returns how many
// were inserted.
func SeedMaps(ctx context.Context, store PersistentStore, maps []domain.Map) (int, error) {
	inserted := 0
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		existing, err := tx.Snapshot().ListMaps()
		if err != nil {
			return err
		}
		taken := make(map[string]struct{}, len(existing))
		for _, m := range existing {
			taken[strings.ToLower(m.Name)] = struct{}{}
		}
		for _, m := range maps {
			if _, ok := taken[strings.ToLower(m.Name)]; ok {
				continue
			}
			if _, err := tx.CreateMap(m); err != nil {
				return fmt.Errorf("seed map %q: %w", m.Name, err)
			}
			taken[strings.ToLower(m.Name)] = struct{}{}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed maps: %w", err)
	}
	return inserted, nil
}
