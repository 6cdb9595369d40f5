// Package fillworker implements the external fill pipeline of spec
// component E: a fragment generator that expands queued original queries
// into fragments, and a bounded pool of executor goroutines that run each
// fragment against Postgres and write the result back into the cache.
package fillworker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/metrics"
	"github.com/accented-ai/partitioncache/internal/partitionlog"
	"github.com/accented-ai/partitioncache/internal/queue"
	"github.com/accented-ai/partitioncache/internal/schema"
	"github.com/accented-ai/partitioncache/internal/sqlfrag"
	"github.com/accented-ai/partitioncache/pkg/database"
)

var log = partitionlog.With("fillworker") //nolint:gochecknoglobals

// Config controls the worker pool's concurrency and failure handling
// (§4.5, §5 Concurrency & Resource Model).
type Config struct {
	Concurrency      int
	StatementTimeout time.Duration
	MaxResultRows    int
	SqlfragOptions   sqlfrag.Options
	ConsecutiveErrorExit int // exit worker after this many consecutive job failures; 0 disables
}

// Worker drives the generator + executor pipeline against one queue
// Provider, one cache Backend and one database Pool.
type Worker struct {
	cfg   Config
	queue queue.Provider
	cache cache.Backend
	pool  *database.Pool
	sem   *semaphore.Weighted
}

func New(cfg Config, q queue.Provider, c cache.Backend, pool *database.Pool) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	return &Worker{cfg: cfg, queue: q, cache: c, pool: pool, sem: semaphore.NewWeighted(int64(cfg.Concurrency))}
}

// Run drives the generator loop until ctx is cancelled: pop an original
// query, fragment it, push every fragment hash onto the fragment queue
// (skipping hashes already cached, §4.4 "skip-if-cached"). No status is
// recorded for the original query itself.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.queue.PopQuery(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}

		if err := w.fragmentJob(ctx, job); err != nil {
			log.Warn().Err(err).Str("partition_key", job.PartitionKey).Msg("fragment generation failed")
		}
	}
}

func (w *Worker) fragmentJob(ctx context.Context, job queue.Job) error {
	opts := w.cfg.SqlfragOptions
	opts.PartitionKey = job.PartitionKey

	result, err := sqlfrag.GenerateAllQueryHashPairs(job.Query, opts)
	if err != nil {
		return errs.Wrap("generate fragments", err)
	}

	for _, warning := range result.Warnings {
		log.Warn().Str("partition_key", job.PartitionKey).Msg(warning)
	}

	hashes := make([]string, 0, len(result.Fragments))
	for _, f := range result.Fragments {
		hashes = append(hashes, f.Hash)
	}

	_, missing, err := w.cache.FilterExistingKeys(ctx, job.PartitionKey, hashes)
	if err != nil {
		return err
	}

	byHash := make(map[string]sqlfrag.Fragment, len(result.Fragments))
	for _, f := range result.Fragments {
		byHash[f.Hash] = f
	}

	for _, h := range missing {
		frag := byHash[h]
		if err := w.queue.PushFragment(ctx, queue.Job{PartitionKey: job.PartitionKey, Hash: h, Query: frag.SQL}); err != nil {
			return err
		}
	}

	return nil
}

// RunExecutors starts cfg.Concurrency goroutines popping fragment jobs and
// blocks until ctx is cancelled or every executor exits (§5 "bounded
// executor pool").
func (w *Worker) RunExecutors(ctx context.Context) error {
	errCh := make(chan error, w.cfg.Concurrency)

	for i := 0; i < w.cfg.Concurrency; i++ {
		go func() {
			errCh <- w.executorLoop(ctx)
		}()
	}

	var firstErr error

	for i := 0; i < w.cfg.Concurrency; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (w *Worker) executorLoop(ctx context.Context) error {
	consecutiveErrors := 0

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 500 * time.Millisecond
	boff.MaxInterval = 30 * time.Second

	for {
		job, err := w.queue.PopFragment(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}

		if err := w.executeFragment(ctx, job); err != nil {
			consecutiveErrors++

			log.Warn().Err(err).Str("hash", job.Hash).Int("consecutive_errors", consecutiveErrors).
				Msg("fragment execution failed")

			if w.cfg.ConsecutiveErrorExit > 0 && consecutiveErrors >= w.cfg.ConsecutiveErrorExit {
				return errs.WrapKind("executor exiting after repeated failures", errs.KindTransient, err)
			}

			select {
			case <-time.After(boff.NextBackOff()):
			case <-ctx.Done():
				return nil
			}

			continue
		}

		consecutiveErrors = 0
		boff.Reset()
	}
}

// executeFragment runs one fragment's SQL with the configured statement
// timeout, writes a tombstone on timeout/row-limit/failure, and otherwise
// stores the resolved key set (§4.5 "tombstone-on-timeout/failure/limit").
func (w *Worker) executeFragment(ctx context.Context, job queue.Job) error {
	start := time.Now()

	keys, status, err := w.runFragmentQuery(ctx, job.Query)

	finalStatus := string(status)
	if err != nil {
		finalStatus = string(schema.StatusFailed)
	}

	metrics.FragmentExecutionSeconds.WithLabelValues(finalStatus).Observe(time.Since(start).Seconds())
	metrics.FragmentsExecuted.WithLabelValues(finalStatus).Inc()

	if err != nil {
		return w.cache.SetQueryStatus(ctx, job.PartitionKey, job.Hash, job.Query, schema.StatusFailed)
	}

	if status != schema.StatusOK {
		return w.cache.SetQueryStatus(ctx, job.PartitionKey, job.Hash, job.Query, status)
	}

	if len(keys) == 0 {
		return w.cache.SetCache(ctx, job.PartitionKey, job.Hash, cache.SetValue([]int64{}), job.Query)
	}

	if w.cfg.MaxResultRows > 0 && len(keys) > w.cfg.MaxResultRows {
		return w.cache.SetQueryStatus(ctx, job.PartitionKey, job.Hash, job.Query, schema.StatusLimit)
	}

	return w.cache.SetCache(ctx, job.PartitionKey, job.Hash, cache.SetValue(keys), job.Query)
}

func (w *Worker) runFragmentQuery(ctx context.Context, sql string) ([]int64, schema.Status, error) {
	qctx := ctx

	if w.cfg.StatementTimeout > 0 {
		var cancel context.CancelFunc

		qctx, cancel = context.WithTimeout(ctx, w.cfg.StatementTimeout)
		defer cancel()
	}

	rows, err := w.pool.Query(qctx, sql)
	if err != nil {
		if errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return nil, schema.StatusTimeout, nil
		}

		return nil, schema.StatusFailed, err
	}
	defer rows.Close()

	var keys []int64

	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, schema.StatusFailed, err
		}

		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		if errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return nil, schema.StatusTimeout, nil
		}

		return nil, schema.StatusFailed, err
	}

	return keys, schema.StatusOK, nil
}
