package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/graph"
)

func TestUndirectedGraphReachable(t *testing.T) {
	t.Parallel()

	g := graph.NewUndirectedGraph[string]()
	g.AddEdge("p0", "t1")
	g.AddEdge("t1", "t2")
	g.AddNode("orphan")

	reachable := g.Reachable("p0")

	require.True(t, reachable["p0"])
	require.True(t, reachable["t1"])
	require.True(t, reachable["t2"])
	require.False(t, reachable["orphan"])
}

func TestUndirectedGraphConnectedSubgraphsIncludesSingletonsAndFullSet(t *testing.T) {
	t.Parallel()

	g := graph.NewUndirectedGraph[string]()
	g.AddEdge("p0", "t1")
	g.AddEdge("t1", "t2")

	bySize := g.ConnectedSubgraphs(1, 3)

	require.Len(t, bySize[1], 3, "every node is a connected subgraph of size 1")
	require.NotEmpty(t, bySize[3])

	found := false

	for _, set := range bySize[3] {
		if set["p0"] && set["t1"] && set["t2"] {
			found = true
		}
	}

	require.True(t, found, "expected the full three-node set among size-3 connected subgraphs")
}

func TestUndirectedGraphConnectedSubgraphsExcludesDisconnectedPairs(t *testing.T) {
	t.Parallel()

	g := graph.NewUndirectedGraph[string]()
	g.AddEdge("p0", "t1")
	g.AddNode("t2") // disconnected from p0/t1

	bySize := g.ConnectedSubgraphs(2, 2)

	for _, set := range bySize[2] {
		require.False(t, set["t2"], "t2 is disconnected and must never appear in a size-2 connected subgraph")
	}
}

func TestUndirectedGraphMaxComponentSizeBoundsEnumeration(t *testing.T) {
	t.Parallel()

	g := graph.NewUndirectedGraph[string]()
	g.AddEdge("p0", "t1")
	g.AddEdge("t1", "t2")
	g.AddEdge("t2", "t3")

	bySize := g.ConnectedSubgraphs(1, 2)

	require.Empty(t, bySize[3])
	require.Empty(t, bySize[4])
}
