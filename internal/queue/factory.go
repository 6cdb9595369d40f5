package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/accented-ai/partitioncache/internal/config"
	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/pkg/database"
)

// New constructs the Provider selected by cfg.QueueProvider (§4.4, §6).
func New(cfg *config.Config, pool *database.Pool) (Provider, error) {
	switch cfg.QueueProvider {
	case config.QueuePostgreSQL:
		return NewPostgresProvider(pool, cfg.PGQueueTablePrefix), nil
	case config.QueueRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		return NewRedisProvider(client, cfg.Redis.QueueKey), nil
	default:
		return nil, errs.New("queue.New", errs.KindConfiguration, "unknown queue provider: "+string(cfg.QueueProvider))
	}
}
