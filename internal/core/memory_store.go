package core

import "vialcore/internal/infra/persistence/memory"

// NewMemoryStore constructs the in-memory transactional store.
func NewMemoryStore(engine *RulesEngine) *memory.Store {
	return memory.NewStore(engine)
}

func newMemoryStore(engine *RulesEngine) *memory.Store {
	return memory.NewStore(engine)
}
