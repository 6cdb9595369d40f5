package sqlfrag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/sqlfrag"
)

func TestGenerateAllQueryHashPairsRequiresPartitionKey(t *testing.T) {
	t.Parallel()

	_, err := sqlfrag.GenerateAllQueryHashPairs("SELECT 1 FROM t", sqlfrag.Options{})
	require.Error(t, err)
}

func TestGenerateAllQueryHashPairsResolvesConventionalP0Alias(t *testing.T) {
	t.Parallel()

	query := "SELECT p0.id FROM orders p0, customers t1 WHERE p0.customer_id = t1.id AND t1.region = 'west'"

	result, err := sqlfrag.GenerateAllQueryHashPairs(query, sqlfrag.Options{PartitionKey: "customer_id"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Fragments)
	require.NotEmpty(t, result.OriginalHash)
}

func TestGenerateAllQueryHashPairsIsInvariantUnderAliasRenaming(t *testing.T) {
	t.Parallel()

	// Same shape, different alias names/order: the canonical remap (partition
	// alias -> p1, everything else -> t1..tn in sorted original-alias order)
	// should make these two queries hash identically (spec property P1).
	queryA := "SELECT p0.id FROM orders p0, customers c WHERE p0.customer_id = c.id AND c.region = 'west'"
	queryB := "SELECT z.id FROM customers c, orders z WHERE z.customer_id = c.id AND c.region = 'west'"

	resultA, err := sqlfrag.GenerateAllQueryHashPairs(queryA, sqlfrag.Options{
		PartitionKey: "customer_id", PartitionKeyTable: "orders",
	})
	require.NoError(t, err)

	resultB, err := sqlfrag.GenerateAllQueryHashPairs(queryB, sqlfrag.Options{
		PartitionKey: "customer_id", PartitionKeyTable: "orders",
	})
	require.NoError(t, err)

	hashesA := hashSet(resultA)
	hashesB := hashSet(resultB)

	require.Equal(t, hashesA, hashesB)
}

func TestGenerateAllQueryHashPairsDeduplicatesIdenticalFragments(t *testing.T) {
	t.Parallel()

	query := "SELECT p0.id FROM orders p0 WHERE p0.customer_id = 1"

	result, err := sqlfrag.GenerateAllQueryHashPairs(query, sqlfrag.Options{PartitionKey: "customer_id"})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, f := range result.Fragments {
		require.False(t, seen[f.Hash], "fragment hash emitted more than once")
		seen[f.Hash] = true
	}
}

func TestGenerateAllQueryHashPairsWithoutFollowGraphStillEnumeratesTableCombinations(t *testing.T) {
	t.Parallel()

	// §4.1 step 4: follow_graph=false still enumerates every combination
	// within the size window, not just the single full-join fragment.
	query := `SELECT p0.id FROM orders p0, customers c, regions r
WHERE p0.customer_id = c.id AND c.region_id = r.id AND r.name = 'west'`

	result, err := sqlfrag.GenerateAllQueryHashPairs(query, sqlfrag.Options{
		PartitionKey: "customer_id", FollowGraph: false,
	})
	require.NoError(t, err)

	var sawPartial bool

	for _, f := range result.Fragments {
		if len(f.Tables) < 3 {
			sawPartial = true
		}
	}

	require.True(t, sawPartial, "expected a sub-full-join fragment among %+v", result.Fragments)
}

func TestGenerateAllQueryHashPairsFollowGraphExcludesDisconnectedCombinations(t *testing.T) {
	t.Parallel()

	// r and z are only joined to each other, not to the partition-key
	// alias's component, so follow_graph=true must never enumerate a subset
	// containing them alongside p0, unlike the plain-combination fallback.
	query := `SELECT p0.id FROM orders p0, customers c, regions r, zones z
WHERE p0.customer_id = c.id AND r.id = z.region_id`

	withoutGraph, err := sqlfrag.GenerateAllQueryHashPairs(query, sqlfrag.Options{
		PartitionKey: "customer_id", FollowGraph: false,
	})
	require.NoError(t, err)

	withGraph, err := sqlfrag.GenerateAllQueryHashPairs(query, sqlfrag.Options{
		PartitionKey: "customer_id", FollowGraph: true,
	})
	require.NoError(t, err)

	require.Greater(t, len(withoutGraph.Fragments), len(withGraph.Fragments))

	for _, f := range withGraph.Fragments {
		require.NotContains(t, f.Tables, "regions")
		require.NotContains(t, f.Tables, "zones")
	}
}

func TestHashQueryIsStableAcrossWhitespaceAndComments(t *testing.T) {
	t.Parallel()

	a := sqlfrag.HashQuery("SELECT  1   FROM t -- trailing comment\n", "customer_id")
	b := sqlfrag.HashQuery("SELECT 1 FROM t", "customer_id")

	require.Equal(t, a, b)
}

func TestHashQueryDiffersByPartitionKey(t *testing.T) {
	t.Parallel()

	a := sqlfrag.HashQuery("SELECT 1 FROM t", "customer_id")
	b := sqlfrag.HashQuery("SELECT 1 FROM t", "order_id")

	require.NotEqual(t, a, b)
}

func hashSet(r *sqlfrag.Result) map[string]bool {
	out := make(map[string]bool, len(r.Fragments))
	for _, f := range r.Fragments {
		out[f.Hash] = true
	}

	return out
}
