package docstore

import (
	"context"
	"fmt"

	"handraise/pkg/database"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg *database.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	switch cfg.Driver {
	case database.DriverMemory:
		return NewMemoryStore(opts...), nil
	case database.DriverSQLite:
		return NewSQLiteStore(cfg, opts...)
	case database.DriverPostgres:
		return NewPostgresStore(ctx, cfg, opts...)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
