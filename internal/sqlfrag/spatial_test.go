package sqlfrag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/sqlfrag"
)

func TestComputeBufferDistanceReturnsZeroWithoutDistanceConstraints(t *testing.T) {
	t.Parallel()

	got := sqlfrag.ComputeBufferDistance("SELECT p0.id FROM orders p0 WHERE p0.customer_id = 1")
	require.Equal(t, 0.0, got)
}

func TestComputeBufferDistanceSingleEdgeEqualsItsWeight(t *testing.T) {
	t.Parallel()

	query := "SELECT t.id FROM trips t JOIN pois p ON ST_DWithin(t.geom, p.geom, 500) WHERE t.fare > 10"

	got := sqlfrag.ComputeBufferDistance(query)
	require.Equal(t, 500.0, got)
}

func TestComputeBufferDistanceChainSumsAlongLongestPath(t *testing.T) {
	t.Parallel()

	query := `SELECT t.id FROM trips t, pois a, pois b
WHERE ST_DWithin(t.geom, a.geom, 200) AND ST_DWithin(a.geom, b.geom, 300)`

	got := sqlfrag.ComputeBufferDistance(query)
	require.Equal(t, 500.0, got)
}

func TestComputeBufferDistanceStarUsesTwoLargestThroughHub(t *testing.T) {
	t.Parallel()

	query := `SELECT t.id FROM trips t, pois a, pois b, pois c
WHERE ST_DWithin(t.geom, a.geom, 100) AND ST_DWithin(t.geom, b.geom, 400) AND ST_DWithin(t.geom, c.geom, 200)`

	got := sqlfrag.ComputeBufferDistance(query)
	require.Equal(t, 600.0, got)
}

func TestComputeBufferDistanceDuplicateEdgeKeepsMaxDistance(t *testing.T) {
	t.Parallel()

	query := `SELECT t.id FROM trips t, pois a
WHERE ST_DWithin(t.geom, a.geom, 100) AND ST_DWithin(t.geom, a.geom, 250)`

	got := sqlfrag.ComputeBufferDistance(query)
	require.Equal(t, 250.0, got)
}

func TestComputeBufferDistanceComparisonStyleUpperBound(t *testing.T) {
	t.Parallel()

	query := "SELECT t.id FROM trips t, pois a WHERE ST_Distance(t.geom, a.geom) < 150"

	got := sqlfrag.ComputeBufferDistance(query)
	require.Equal(t, 150.0, got)
}
