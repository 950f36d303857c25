package agents

import (
	"context"

	"github.com/meggy-ai/meggy/internal/storage"
)

// NewStore picks the store implementation matching the configured backend.
func NewStore(ctx context.Context, backends storage.Backends) (Store, error) {
	switch {
	case backends.Postgres != nil:
		return NewPostgresStore(ctx, backends.Postgres)
	case backends.SQLite != nil:
		return NewSQLiteStore(ctx, backends.SQLite)
	default:
		return NewInMemoryStore(), nil
	}
}
