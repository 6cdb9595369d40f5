package fillworker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/fillworker"
	"github.com/accented-ai/partitioncache/internal/queue"
	"github.com/accented-ai/partitioncache/internal/queue/queuetest"
	"github.com/accented-ai/partitioncache/internal/schema"
	"github.com/accented-ai/partitioncache/internal/sqlfrag"
)

func TestWorkerRunFragmentsQueryAndPushesMissingFragments(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queuetest.New()
	c := cache.NewMemoryBackend()
	require.NoError(t, c.RegisterPartitionKey(ctx, "customer_id", schema.DatatypeInteger, 0))

	worker := fillworker.New(fillworker.Config{
		SqlfragOptions: sqlfrag.Options{},
	}, q, c, nil)

	require.NoError(t, q.PushQuery(ctx, queue.Job{
		PartitionKey: "customer_id",
		Query:        "SELECT p0.id FROM orders p0 WHERE p0.customer_id = 1",
	}))

	runDone := make(chan error, 1)

	go func() { runDone <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := q.FragmentLength(ctx)
		return err == nil && n > 0
	}, time.Second, 10*time.Millisecond, "expected at least one fragment to be queued")

	cancel()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestWorkerRunSkipsAlreadyCachedFragments(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queuetest.New()
	c := cache.NewMemoryBackend()
	require.NoError(t, c.RegisterPartitionKey(ctx, "customer_id", schema.DatatypeInteger, 0))

	query := "SELECT p0.id FROM orders p0 WHERE p0.customer_id = 1"

	result, err := sqlfrag.GenerateAllQueryHashPairs(query, sqlfrag.Options{PartitionKey: "customer_id"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Fragments)

	for _, f := range result.Fragments {
		require.NoError(t, c.SetCache(ctx, "customer_id", f.Hash, cache.SetValue([]int64{1}), f.SQL))
	}

	worker := fillworker.New(fillworker.Config{}, q, c, nil)

	require.NoError(t, q.PushQuery(ctx, queue.Job{PartitionKey: "customer_id", Query: query}))

	runDone := make(chan error, 1)

	go func() { runDone <- worker.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	n, err := q.FragmentLength(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n, "every fragment was already cached, none should have been enqueued")
}
