package app

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/repo/filestore"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/repo/memory"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/repo/redisstore"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/repo/sqlite"
	"github.com/fairyhunter13/ai-orchestrator/internal/config"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// OpenStore returns the state store selected by STORE_DRIVER and a function
// releasing its resources.
func OpenStore(ctx context.Context, cfg config.Config) (domain.Store, func(), error) {
	noop := func() {}
	switch cfg.StoreDriver {
	case "memory":
		return memory.NewStore(), noop, nil
	case "file":
		s, err := filestore.NewStore(cfg.StoreFilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("op=app.open_store: %w", err)
		}
		return s, noop, nil
	case "redis":
		s, err := redisstore.Open(cfg.RedisURL, cfg.StoreKeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("op=app.open_store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, fmt.Errorf("op=app.open_store: %w", err)
		}
		repo := postgres.NewStateRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("op=app.open_store: %w", err)
		}
		return repo, pool.Close, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("op=app.open_store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("op=app.open_store: %w: unknown driver %q", domain.ErrInvalidArgument, cfg.StoreDriver)
}
