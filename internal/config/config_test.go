package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/config"
	"github.com/accented-ai/partitioncache/internal/errs"
)

func TestLoadInMemoryBackendWithRedisQueueNeedsNoPostgres(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("QUERY_QUEUE_PROVIDER", "redis")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("QUERY_QUEUE_REDIS_DB", "0")
	t.Setenv("QUERY_QUEUE_REDIS_QUEUE_KEY", "pc")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.BackendInMemory, cfg.CacheBackend)
	require.Equal(t, config.QueueRedis, cfg.QueueProvider)
}

func TestLoadArrayBackendRequiresPostgresEnv(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "array")
	t.Setenv("QUERY_QUEUE_PROVIDER", "postgresql")

	_, err := config.Load()
	require.Error(t, err)
	require.Equal(t, errs.KindConfiguration, errs.KindOf(err))
}

func TestLoadArrayBackendSucceedsWithFullPostgresEnv(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "array")
	t.Setenv("QUERY_QUEUE_PROVIDER", "postgresql")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "partitioncache")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "localhost", cfg.Postgres.Host)
	require.Equal(t, 5432, cfg.Postgres.Port)
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "not-a-real-backend")
	t.Setenv("QUERY_QUEUE_PROVIDER", "postgresql")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "partitioncache")

	_, err := config.Load()
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	p := config.Postgres{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d"}
	require.Equal(t, "postgres://u:p@db:5432/d", p.DSN())
}
