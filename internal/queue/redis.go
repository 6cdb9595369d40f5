package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/accented-ai/partitioncache/internal/errs"
)

// RedisProvider is the alternative queue provider of §4.4/§9: a sorted-set
// per queue, scored by priority, so pop always claims the highest-priority
// job. Grounded on the go-redis/v9 client used elsewhere in the example
// corpus (other_examples' Redis cache/batch helpers).
type RedisProvider struct {
	client       *redis.Client
	queryKey     string
	fragmentKey  string
}

func NewRedisProvider(client *redis.Client, queueKeyPrefix string) *RedisProvider {
	return &RedisProvider{
		client:      client,
		queryKey:    queueKeyPrefix + ":queries",
		fragmentKey: queueKeyPrefix + ":fragments",
	}
}

type redisPayload struct {
	PartitionKey string `json:"partition_key"`
	Hash         string `json:"hash"`
	Query        string `json:"query"`
}

func (r *RedisProvider) PushQuery(ctx context.Context, job Job) error {
	return r.push(ctx, r.queryKey, job)
}

func (r *RedisProvider) PushFragment(ctx context.Context, job Job) error {
	return r.push(ctx, r.fragmentKey, job)
}

// push adds the job at its given priority via ZADD NX (only when the
// member is new); a duplicate member (same partition_key/hash payload) has
// its score incremented by one instead, implementing the same
// priority-bump-on-duplicate-push semantics as the Postgres provider — the
// act of re-pushing is what raises priority, not the caller-supplied value.
func (r *RedisProvider) push(ctx context.Context, key string, job Job) error {
	payload, err := json.Marshal(redisPayload{PartitionKey: job.PartitionKey, Hash: job.Hash, Query: job.Query})
	if err != nil {
		return errs.Wrap("marshal queue payload", err)
	}

	added, err := r.client.ZAddArgs(ctx, key, redis.ZAddArgs{
		NX:      true,
		Members: []redis.Z{{Score: float64(job.Priority), Member: payload}},
	}).Result()
	if err != nil {
		return errs.Wrap("push redis queue job", err)
	}

	if added == 0 {
		if err := r.client.ZIncrBy(ctx, key, 1, string(payload)).Err(); err != nil {
			return errs.Wrap("bump redis queue priority", err)
		}
	}

	return nil
}

func (r *RedisProvider) PopQuery(ctx context.Context) (Job, error) {
	return r.pop(ctx, r.queryKey)
}

func (r *RedisProvider) PopFragment(ctx context.Context) (Job, error) {
	return r.pop(ctx, r.fragmentKey)
}

// pop uses BZPOPMAX to block for the highest-priority member, relying on
// Redis's own blocking semantics instead of a client-side poll loop.
func (r *RedisProvider) pop(ctx context.Context, key string) (Job, error) {
	result, err := r.client.BZPopMax(ctx, 0, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return Job{}, ctx.Err()
		}

		return Job{}, errs.WrapKind("pop redis queue job", errs.KindTransient, err)
	}

	raw, ok := result.Member.(string)
	if !ok {
		return Job{}, errs.New("queue.RedisProvider.pop", errs.KindInternal, "unexpected queue member type")
	}

	var payload redisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Job{}, errs.Wrap("unmarshal queue payload", err)
	}

	return Job{
		PartitionKey: payload.PartitionKey,
		Hash:         payload.Hash,
		Query:        payload.Query,
		Priority:     int(result.Score),
	}, nil
}

func (r *RedisProvider) QueryLength(ctx context.Context) (int, error) {
	return r.length(ctx, r.queryKey)
}

func (r *RedisProvider) FragmentLength(ctx context.Context) (int, error) {
	return r.length(ctx, r.fragmentKey)
}

func (r *RedisProvider) length(ctx context.Context, key string) (int, error) {
	n, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, errs.Wrap("get redis queue length", err)
	}

	return int(n), nil
}

func (r *RedisProvider) ClearQueries(ctx context.Context) error {
	return errs.Wrap("clear redis query queue", r.client.Del(ctx, r.queryKey).Err())
}

func (r *RedisProvider) ClearFragments(ctx context.Context) error {
	return errs.Wrap("clear redis fragment queue", r.client.Del(ctx, r.fragmentKey).Err())
}

func (r *RedisProvider) Close() error {
	return errs.Wrap("close redis client", r.client.Close())
}
