// Package config loads the environment-variable configuration described in
// spec §6 using viper, the way steveyegge-beads and untoldecay-BeadsLog
// configure themselves from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/accented-ai/partitioncache/internal/errs"
)

// CacheBackendKind enumerates the §4.2 backend families.
type CacheBackendKind string

const (
	BackendArray    CacheBackendKind = "array"
	BackendBitstring CacheBackendKind = "bitstring"
	BackendBitmap   CacheBackendKind = "bitmap"
	BackendInMemory CacheBackendKind = "memory"
)

// QueueProviderKind enumerates the §4.4 queue providers.
type QueueProviderKind string

const (
	QueuePostgreSQL QueueProviderKind = "postgresql"
	QueueRedis      QueueProviderKind = "redis"
)

// Postgres bundles connection parameters shared by the cache, queue and
// cron-worker config replicas.
type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", p.User, p.Password, p.Host, p.Port, p.Database)
}

// Redis bundles the Redis queue-provider connection parameters.
type Redis struct {
	Host     string
	Port     int
	DB       int
	Password string
	QueueKey string
}

// Config is the single typed configuration record for the whole process,
// populated from environment variables (§9 "Config as data").
type Config struct {
	LogLevel string

	CacheBackend    CacheBackendKind
	TablePrefix     string
	DefaultBitsize  int

	QueueProvider     QueueProviderKind
	QueueTablePrefix  string

	Postgres Postgres
	Redis    Redis

	PGCronDatabase   string
	PGQueueTablePrefix string
}

// Load reads the environment into a Config, returning a KindConfiguration
// error listing every missing required variable for the selected backends
// (§7 "Missing env var for chosen backend").
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("PARTITIONCACHE_LOG_LEVEL", "info")
	v.SetDefault("CACHE_BACKEND", string(BackendArray))
	v.SetDefault("PARTITIONCACHE_TABLE_PREFIX", "partitioncache")
	v.SetDefault("PARTITIONCACHE_DEFAULT_BITSIZE", 100000)
	v.SetDefault("QUERY_QUEUE_PROVIDER", string(QueuePostgreSQL))
	v.SetDefault("PG_QUEUE_TABLE_PREFIX", "partitioncache_queue")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("QUERY_QUEUE_REDIS_DB", 0)

	cfg := &Config{
		LogLevel:           v.GetString("PARTITIONCACHE_LOG_LEVEL"),
		CacheBackend:       CacheBackendKind(strings.ToLower(v.GetString("CACHE_BACKEND"))),
		TablePrefix:        v.GetString("PARTITIONCACHE_TABLE_PREFIX"),
		DefaultBitsize:     v.GetInt("PARTITIONCACHE_DEFAULT_BITSIZE"),
		QueueProvider:      QueueProviderKind(strings.ToLower(v.GetString("QUERY_QUEUE_PROVIDER"))),
		QueueTablePrefix:   v.GetString("PG_QUEUE_TABLE_PREFIX"),
		PGQueueTablePrefix: v.GetString("PG_QUEUE_TABLE_PREFIX"),
		PGCronDatabase:     v.GetString("PG_CRON_DATABASE"),
		Postgres: Postgres{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_NAME"),
		},
		Redis: Redis{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			DB:       v.GetInt("QUERY_QUEUE_REDIS_DB"),
			Password: v.GetString("REDIS_PASSWORD"),
			QueueKey: v.GetString("QUERY_QUEUE_REDIS_QUEUE_KEY"),
		},
	}

	var missing []string

	switch cfg.CacheBackend {
	case BackendArray, BackendBitstring, BackendBitmap:
		missing = append(missing, requireAll(v, "DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME")...)
	case BackendInMemory:
		// no external connection required
	default:
		return nil, errs.New("config.Load", errs.KindConfiguration, fmt.Sprintf("unknown CACHE_BACKEND %q", cfg.CacheBackend))
	}

	switch cfg.QueueProvider {
	case QueuePostgreSQL:
		missing = append(missing, requireAll(v, "DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME")...)
	case QueueRedis:
		missing = append(missing, requireAll(v, "REDIS_HOST", "REDIS_PORT", "QUERY_QUEUE_REDIS_DB", "QUERY_QUEUE_REDIS_QUEUE_KEY")...)
	default:
		return nil, errs.New("config.Load", errs.KindConfiguration, fmt.Sprintf("unknown QUERY_QUEUE_PROVIDER %q", cfg.QueueProvider))
	}

	missing = dedupe(missing)
	if len(missing) > 0 {
		return nil, errs.New("config.Load", errs.KindConfiguration,
			fmt.Sprintf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}

	return cfg, nil
}

func requireAll(v *viper.Viper, keys ...string) []string {
	var missing []string

	for _, k := range keys {
		if !v.IsSet(k) || v.GetString(k) == "" {
			missing = append(missing, k)
		}
	}

	return missing
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))

	out := make([]string, 0, len(in))

	for _, s := range in {
		if !seen[s] {
			seen[s] = true

			out = append(out, s)
		}
	}

	return out
}
