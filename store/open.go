package store

import (
	"context"
	"fmt"

	"github.com/ViVse/ecg-v2/config"
)

// Open builds and loads the backend named in cfg.
func Open(ctx context.Context, cfg *config.Config, projectRoot string) (OverrideStore, error) {
	switch cfg.Store.Backend {
	case "gob":
		st := NewGOBStore(cfg.GetOverridesPath(projectRoot))
		if err := st.Load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
		return st, nil
	case "postgres":
		st, err := NewPostgresStore(ctx, cfg.Store.Postgres.DSN, projectRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return st, nil
	case "none", "":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Store.Backend)
	}
}
