package cache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/schema"
)

func newRegisteredBackend(t *testing.T) *cache.MemoryBackend {
	t.Helper()

	b := cache.NewMemoryBackend()
	require.NoError(t, b.RegisterPartitionKey(context.Background(), "customer_id", schema.DatatypeInteger, 0))

	return b
}

func TestMemoryBackendSetAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "hash1", cache.SetValue([]int64{1, 2, 3}), "SELECT 1"))

	v, ok, err := b.Get(ctx, "customer_id", "hash1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cache.KindSet, v.Kind)
	require.Equal(t, []int64{1, 2, 3}, v.Keys)

	exists, err := b.Exists(ctx, "customer_id", "hash1")
	require.NoError(t, err)
	require.True(t, exists)

	_, ok, err = b.Get(ctx, "customer_id", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryBackendFilterExistingKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "hash1", cache.SetValue([]int64{1}), ""))

	cached, missing, err := b.FilterExistingKeys(ctx, "customer_id", []string{"hash1", "hash2"})
	require.NoError(t, err)
	require.Equal(t, []string{"hash1"}, cached)
	require.Equal(t, []string{"hash2"}, missing)
}

func TestMemoryBackendTombstoneIsMonotone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetQueryStatus(ctx, "customer_id", "hash1", "SELECT 1", schema.StatusFailed))

	v, ok, err := b.Get(ctx, "customer_id", "hash1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cache.KindTombstone, v.Kind)

	// A late success must never silently overwrite the tombstone.
	require.NoError(t, b.SetCache(ctx, "customer_id", "hash1", cache.SetValue([]int64{9}), "SELECT 1"))

	v, ok, err = b.Get(ctx, "customer_id", "hash1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cache.KindTombstone, v.Kind, "tombstone must dominate a late successful write")
}

func TestMemoryBackendSetNull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetNull(ctx, "customer_id", "hash1", "SELECT 1"))

	v, ok, err := b.Get(ctx, "customer_id", "hash1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cache.KindNull, v.Kind)
}

func TestMemoryBackendGetIntersected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "hash1", cache.SetValue([]int64{1, 2, 3}), ""))
	require.NoError(t, b.SetCache(ctx, "customer_id", "hash2", cache.SetValue([]int64{2, 3, 4}), ""))

	keys, matched, err := b.GetIntersected(ctx, "customer_id", []string{"hash1", "hash2"})
	require.NoError(t, err)
	require.Equal(t, 2, matched)
	require.Equal(t, []int64{2, 3}, keys)
}

func TestMemoryBackendGetIntersectedMissingFragmentIsSkippedNotFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "hash1", cache.SetValue([]int64{1, 2}), ""))

	// §4.2/P8: a missing fragment only narrows the hit count, it doesn't
	// abort the whole intersection.
	keys, matched, err := b.GetIntersected(ctx, "customer_id", []string{"hash1", "hash-never-computed"})
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Equal(t, []int64{1, 2}, keys)
}

func TestMemoryBackendGetIntersectedAllMissingYieldsZeroMatched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	keys, matched, err := b.GetIntersected(ctx, "customer_id", []string{"hash-never-computed"})
	require.NoError(t, err)
	require.Equal(t, 0, matched)
	require.Nil(t, keys)
}

func TestMemoryBackendGetIntersectedTombstonedFragmentIsSkippedNotFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "hash1", cache.SetValue([]int64{1, 2}), ""))
	require.NoError(t, b.SetQueryStatus(ctx, "customer_id", "hash2", "SELECT 1", schema.StatusTimeout))

	keys, matched, err := b.GetIntersected(ctx, "customer_id", []string{"hash1", "hash2"})
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Equal(t, []int64{1, 2}, keys)
}

func TestMemoryBackendGetIntersectedNullFragmentContributesNoRestriction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "hash1", cache.SetValue([]int64{1, 2}), ""))
	require.NoError(t, b.SetNull(ctx, "customer_id", "hash2", ""))

	// §3/§4.2: NULL is the identity of intersection, so the result is
	// hash1's own set, not an empty/nil narrowing.
	keys, matched, err := b.GetIntersected(ctx, "customer_id", []string{"hash1", "hash2"})
	require.NoError(t, err)
	require.Equal(t, 2, matched)
	require.Equal(t, []int64{1, 2}, keys)
}

func TestMemoryBackendGetIntersectedAllNullYieldsNoRestriction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetNull(ctx, "customer_id", "hash1", ""))
	require.NoError(t, b.SetNull(ctx, "customer_id", "hash2", ""))

	keys, matched, err := b.GetIntersected(ctx, "customer_id", []string{"hash1", "hash2"})
	require.NoError(t, err)
	require.Equal(t, 2, matched)
	require.Nil(t, keys)
}

func TestMemoryBackendDeletePartition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	require.NoError(t, b.SetCache(ctx, "customer_id", "hash1", cache.SetValue([]int64{1}), ""))
	require.NoError(t, b.DeletePartition(ctx, "customer_id"))

	metas, err := b.GetPartitionKeys(ctx)
	require.NoError(t, err)
	require.Empty(t, metas)
}

func TestMemoryBackendRejectsDatatypeChangeOnReregister(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newRegisteredBackend(t)

	err := b.RegisterPartitionKey(ctx, "customer_id", schema.DatatypeText, 0)
	require.Error(t, err)
}
