package core

import (
	"vialcore/internal/infra/persistence/postgres"
	"vialcore/pkg/domain"
)

// NewPostgresStore opens the postgres backend for dsn.
func NewPostgresStore(dsn string, engine *domain.RulesEngine) (*postgres.Store, error) {
	return postgres.NewStore(dsn, engine)
}
