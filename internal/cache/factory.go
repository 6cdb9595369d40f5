package cache

import (
	"github.com/accented-ai/partitioncache/internal/config"
	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/pkg/database"
)

// New constructs the Backend selected by cfg.CacheBackend (§4.2). The
// Postgres-resident backends share a pool; the in-memory backend ignores
// pool entirely and is safe to use with a nil pool.
func New(cfg *config.Config, pool database.Querier) (Backend, error) {
	switch cfg.CacheBackend {
	case config.BackendArray:
		return NewArrayBackend(pool, cfg.TablePrefix), nil
	case config.BackendBitstring:
		return NewBitstringBackend(pool, cfg.TablePrefix), nil
	case config.BackendBitmap:
		return NewBitmapBackend(pool, cfg.TablePrefix), nil
	case config.BackendInMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, errs.New("cache.New", errs.KindConfiguration, "unknown cache backend: "+string(cfg.CacheBackend))
	}
}
