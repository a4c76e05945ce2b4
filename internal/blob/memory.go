package blob

import (
	memorystore "vialcore/internal/infra/blob/memory"
)

// NewMemory returns the process-memory backend.
func NewMemory() Store { return memorystore.New() }
