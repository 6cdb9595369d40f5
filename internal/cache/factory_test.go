package cache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/config"
)

func TestNewDispatchesInMemoryBackendWithoutAPool(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{CacheBackend: config.BackendInMemory}

	b, err := cache.New(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &cache.MemoryBackend{}, b)
}

func TestNewRejectsUnknownCacheBackend(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{CacheBackend: config.CacheBackendKind("bogus")}

	_, err := cache.New(cfg, nil)
	require.Error(t, err)
}
