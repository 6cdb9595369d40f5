package rewrite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/rewrite"
	"github.com/accented-ai/partitioncache/internal/schema"
)

func setup(t *testing.T) *cache.MemoryBackend {
	t.Helper()

	b := cache.NewMemoryBackend()
	require.NoError(t, b.RegisterPartitionKey(context.Background(), "customer_id", schema.DatatypeInteger, 0))

	return b
}

func TestExtendQueryWithPartitionKeysINStrategy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)
	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1, 2, 3}), ""))

	rewritten, stats, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, "SELECT * FROM orders p0", []string{"h1"}, rewrite.Options{
		PartitionKey: "customer_id",
		Strategy:     rewrite.StrategyIN,
		P0Alias:      "p0",
	})
	require.NoError(t, err)
	require.True(t, stats.Applied)
	require.Equal(t, 3, stats.KeyCount)
	require.Contains(t, rewritten, "p0.customer_id IN (1, 2, 3)")
	require.Contains(t, rewritten, "WHERE")
}

func TestExtendQueryWithPartitionKeysLeavesQueryUnmodifiedWhenFragmentMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)

	original := "SELECT * FROM orders p0"

	rewritten, stats, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, original, []string{"never-computed"}, rewrite.Options{
		PartitionKey: "customer_id",
		Strategy:     rewrite.StrategyIN,
		P0Alias:      "p0",
	})
	require.NoError(t, err)
	require.False(t, stats.Applied)
	require.Equal(t, original, rewritten)
}

func TestExtendQueryWithPartitionKeysNullFragmentLeavesQueryUnrestricted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)
	require.NoError(t, b.SetNull(ctx, "customer_id", "h1", ""))

	original := "SELECT * FROM orders p0"

	// §3/§4.2: NULL is the identity of intersection, and P4 forbids the
	// cache from dropping rows the original query would return, so a
	// wholly-NULL resolution must not splice "1 = 0".
	rewritten, stats, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, original, []string{"h1"}, rewrite.Options{
		PartitionKey: "customer_id",
		Strategy:     rewrite.StrategyIN,
		P0Alias:      "p0",
	})
	require.NoError(t, err)
	require.False(t, stats.Applied)
	require.Equal(t, 1, stats.FragmentsResolved)
	require.Equal(t, original, rewritten)
}

func TestExtendQueryWithPartitionKeysEmptyConcreteIntersectionYieldsDeterministicEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)
	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1, 2}), ""))
	require.NoError(t, b.SetCache(ctx, "customer_id", "h2", cache.SetValue([]int64{3, 4}), ""))

	rewritten, stats, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, "SELECT * FROM orders p0", []string{"h1", "h2"}, rewrite.Options{
		PartitionKey: "customer_id",
		Strategy:     rewrite.StrategyIN,
		P0Alias:      "p0",
	})
	require.NoError(t, err)
	require.True(t, stats.Applied)
	require.Contains(t, rewritten, "1 = 0")
}

func TestExtendQueryWithPartitionKeysPartialHitStillNarrows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)
	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1, 2, 3}), ""))

	// §4.2/P8: one missing fragment out of two must not degrade the whole
	// rewrite to a no-op; the resolved fragment still narrows the query.
	rewritten, stats, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, "SELECT * FROM orders p0", []string{"h1", "never-computed"}, rewrite.Options{
		PartitionKey: "customer_id",
		Strategy:     rewrite.StrategyIN,
		P0Alias:      "p0",
	})
	require.NoError(t, err)
	require.True(t, stats.Applied)
	require.Equal(t, 1, stats.FragmentsResolved)
	require.Equal(t, 1, stats.FragmentsMissing)
	require.Contains(t, rewritten, "p0.customer_id IN (1, 2, 3)")
}

func TestExtendQueryWithPartitionKeysExistingWhereClauseIsAnded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)
	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{5}), ""))

	rewritten, _, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, "SELECT * FROM orders p0 WHERE p0.status = 'open'",
		[]string{"h1"}, rewrite.Options{PartitionKey: "customer_id", Strategy: rewrite.StrategyIN, P0Alias: "p0"})
	require.NoError(t, err)
	require.Contains(t, rewritten, "p0.status = 'open'")
	require.Contains(t, rewritten, "p0.customer_id IN (5)")
}

func TestExtendQueryWithPartitionKeysVALUESStrategy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)
	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1, 2}), ""))

	rewritten, _, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, "SELECT * FROM orders p0", []string{"h1"}, rewrite.Options{
		PartitionKey: "customer_id",
		Strategy:     rewrite.StrategyVALUES,
		P0Alias:      "p0",
	})
	require.NoError(t, err)
	require.Contains(t, rewritten, "WITH")
	require.Contains(t, rewritten, "VALUES")
	require.Contains(t, rewritten, "EXISTS")
}

func TestExtendQueryWithPartitionKeysTmpTableJoinStrategy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)
	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1, 2}), ""))

	rewritten, _, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, "SELECT * FROM orders p0", []string{"h1"}, rewrite.Options{
		PartitionKey: "customer_id",
		Strategy:     rewrite.StrategyTMPTableJOIN,
		P0Alias:      "p0",
	})
	require.NoError(t, err)
	require.Contains(t, rewritten, "CREATE TEMPORARY TABLE")
	require.Contains(t, rewritten, "JOIN")
}

func TestExtendQueryWithSpatialFilterUsesExplicitBufferDistance(t *testing.T) {
	t.Parallel()

	rewritten, err := rewrite.ExtendQueryWithSpatialFilter(
		"SELECT * FROM pois p0",
		"SELECT geom FROM regions WHERE name = 'west'",
		rewrite.Options{P0Alias: "p0", GeometryColumn: "geom", BufferDistance: 1000},
	)
	require.NoError(t, err)
	require.Contains(t, rewritten, "ST_DWithin(ST_Transform(p0.geom, 4326)::geography")
	require.Contains(t, rewritten, "1000")
}

func TestExtendQueryWithSpatialFilterDerivesBufferFromQuery(t *testing.T) {
	t.Parallel()

	query := "SELECT * FROM pois p0, landmarks l WHERE ST_DWithin(p0.geom, l.geom, 750)"

	rewritten, err := rewrite.ExtendQueryWithSpatialFilter(query, "SELECT geom FROM regions", rewrite.Options{
		P0Alias: "p0", GeometryColumn: "geom",
	})
	require.NoError(t, err)
	require.Contains(t, rewritten, "750")
}

func TestExtendQueryWithSpatialFilterNoopOnEmptyFilter(t *testing.T) {
	t.Parallel()

	original := "SELECT * FROM pois p0"

	rewritten, err := rewrite.ExtendQueryWithSpatialFilter(original, "", rewrite.Options{P0Alias: "p0", GeometryColumn: "geom"})
	require.NoError(t, err)
	require.Equal(t, original, rewritten)
}

func TestExtendQueryWithSpatialFilterRequiresGeometryColumn(t *testing.T) {
	t.Parallel()

	_, err := rewrite.ExtendQueryWithSpatialFilter("SELECT * FROM pois p0", "SELECT geom FROM regions", rewrite.Options{P0Alias: "p0"})
	require.Error(t, err)
}

func TestExtendQueryWithPartitionKeysRequiresP0Alias(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := setup(t)
	require.NoError(t, b.SetCache(ctx, "customer_id", "h1", cache.SetValue([]int64{1}), ""))

	_, _, err := rewrite.ExtendQueryWithPartitionKeys(ctx, b, "SELECT * FROM orders", []string{"h1"}, rewrite.Options{
		PartitionKey: "customer_id",
		Strategy:     rewrite.StrategyIN,
	})
	require.Error(t, err)
}
