package cli

import (
	"context"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/config"
	"github.com/accented-ai/partitioncache/internal/partitionlog"
	"github.com/accented-ai/partitioncache/internal/queue"
	"github.com/accented-ai/partitioncache/pkg/database"
)

// deps bundles the config-derived objects every subcommand needs, built
// once per invocation rather than threaded through global state (the
// pattern pgtofu's cli package used for its own database.Pool).
type deps struct {
	cfg   *config.Config
	pool  *database.Pool
	cache cache.Backend
	queue queue.Provider
}

func loadDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	partitionlog.SetLevel(cfg.LogLevel)

	var pool *database.Pool

	if cfg.CacheBackend != config.BackendInMemory || cfg.QueueProvider == config.QueuePostgreSQL {
		pool, err = database.NewPoolFromURL(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, err
		}
	}

	backend, err := cache.New(cfg, pool)
	if err != nil {
		return nil, err
	}

	q, err := queue.New(cfg, pool)
	if err != nil {
		return nil, err
	}

	return &deps{cfg: cfg, pool: pool, cache: backend, queue: q}, nil
}

func (d *deps) Close() {
	if d.queue != nil {
		_ = d.queue.Close() //nolint:errcheck
	}

	if d.cache != nil {
		_ = d.cache.Close() //nolint:errcheck
	}

	if d.pool != nil {
		d.pool.Close()
	}
}
