package management_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/management"
	"github.com/accented-ai/partitioncache/internal/schema"
)

func newManager(t *testing.T) (*management.Manager, *cache.MemoryBackend) {
	t.Helper()

	b := cache.NewMemoryBackend()
	require.NoError(t, b.RegisterPartitionKey(context.Background(), "customer_id", schema.DatatypeInteger, 0))

	return management.NewManager(b), b
}

func TestManagerStatusReportsEntryCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, b := newManager(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1}), ""))
	require.NoError(t, b.SetCache(ctx, "customer_id", "h2", cache.SetValue([]int64{2}), ""))

	statuses, err := mgr.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.Equal(t, "customer_id", statuses[0].Meta.Name)
	require.Equal(t, 2, statuses[0].EntryCount)
}

func TestManagerExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, b := newManager(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1, 2}), "SELECT 1"))

	entries, err := mgr.Export(ctx, "customer_id")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	other := cache.NewMemoryBackend()
	require.NoError(t, other.RegisterPartitionKey(ctx, "customer_id", schema.DatatypeInteger, 0))

	otherMgr := management.NewManager(other)
	require.NoError(t, otherMgr.Import(ctx, "customer_id", entries))

	v, ok, err := other.Get(ctx, "customer_id", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []int64{1, 2}, v.Keys)
}

func TestManagerEvictLargestKeepsSmallestEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, b := newManager(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "small", cache.SetValue([]int64{1}), ""))
	require.NoError(t, b.SetCache(ctx, "customer_id", "big", cache.SetValue([]int64{1, 2, 3, 4}), ""))

	n, err := mgr.Evict(ctx, "customer_id", management.EvictLargest, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok, err := b.Get(ctx, "customer_id", "big")
	require.NoError(t, err)
	require.False(t, ok, "the largest entry should have been evicted")

	_, ok, err = b.Get(ctx, "customer_id", "small")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestManagerEvictNoopWhenUnderBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, b := newManager(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1}), ""))

	n, err := mgr.Evict(ctx, "customer_id", management.EvictOldest, 10)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestManagerPruneOldQueriesRemovesEntriesWithNoQueryText(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, b := newManager(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "with-query", cache.SetValue([]int64{1}), "SELECT 1"))
	require.NoError(t, b.SetCache(ctx, "customer_id", "without-query", cache.SetValue([]int64{2}), ""))

	n, err := mgr.PruneOldQueries(ctx, "customer_id", 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok, err := b.Get(ctx, "customer_id", "without-query")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = b.Get(ctx, "customer_id", "with-query")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestManagerTeardownRemovesPartition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, b := newManager(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1}), ""))
	require.NoError(t, mgr.Teardown(ctx, "customer_id"))

	metas, err := b.GetPartitionKeys(ctx)
	require.NoError(t, err)
	require.Empty(t, metas)
}
