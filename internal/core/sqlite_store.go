package core

import "vialcore/internal/infra/persistence/sqlite"

// NewSQLiteStore opens the sqlite backend at path. An empty path uses the
// backend's default file.
func NewSQLiteStore(path string, engine *RulesEngine) (*sqlite.Store, error) {
	return sqlite.NewStore(path, engine)
}
