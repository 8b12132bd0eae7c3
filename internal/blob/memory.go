package blob

import (
	memorystore "github.com/nrzngr/exvoria-strat-management/internal/infra/blob/memory"
)

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory(bucket string) Store { return memorystore.New(bucket) }
