// Package graph provides the generic graph types the query processor uses
// to reason about table-alias connectivity (§4.1 step 4: connected
// subgraph enumeration, step 8: orphan-alias reachability).
package graph

import "sort"

// UndirectedGraph is a simple adjacency-map graph over comparable node
// values, kept deliberately minimal: the query processor only needs
// membership, neighbor lookup, BFS reachability and connected-subgraph
// enumeration.
type UndirectedGraph[T comparable] struct {
	nodes map[T]bool
	edges map[T]map[T]bool
}

func NewUndirectedGraph[T comparable]() *UndirectedGraph[T] {
	return &UndirectedGraph[T]{
		nodes: make(map[T]bool),
		edges: make(map[T]map[T]bool),
	}
}

func (g *UndirectedGraph[T]) AddNode(node T) {
	g.nodes[node] = true
	if g.edges[node] == nil {
		g.edges[node] = make(map[T]bool)
	}
}

func (g *UndirectedGraph[T]) HasNode(node T) bool {
	return g.nodes[node]
}

func (g *UndirectedGraph[T]) Nodes() []T {
	out := make([]T, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}

	return out
}

// AddEdge adds an undirected edge, implicitly adding any endpoint that is
// not already a node.
func (g *UndirectedGraph[T]) AddEdge(a, b T) {
	g.AddNode(a)
	g.AddNode(b)
	g.edges[a][b] = true
	g.edges[b][a] = true
}

func (g *UndirectedGraph[T]) Neighbors(node T) []T {
	out := make([]T, 0, len(g.edges[node]))
	for n := range g.edges[node] {
		out = append(out, n)
	}

	return out
}

// Reachable returns the set of nodes reachable from start via BFS,
// including start itself. Used for orphan-alias removal (§4.1 step 8):
// an alias not reachable from the anchor after constraint removal is
// dropped along with the conditions that reference it.
func (g *UndirectedGraph[T]) Reachable(start T) map[T]bool {
	visited := map[T]bool{start: true}
	queue := []T{start}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, neighbor := range g.Neighbors(node) {
			if !visited[neighbor] {
				visited[neighbor] = true

				queue = append(queue, neighbor)
			}
		}
	}

	return visited
}

// ConnectedSubgraphs enumerates every connected node subset of size in
// [minSize, maxSize], grouped by size. This mirrors the reference
// implementation's all_connected_subgraphs: grow a frontier one node at a
// time, only ever adding neighbors of the set built so far, then dedupe.
func (g *UndirectedGraph[T]) ConnectedSubgraphs(minSize, maxSize int) map[int][]map[T]bool {
	type setKey = string

	seen := make(map[setKey]bool)
	results := make(map[int][]map[T]bool)

	nodes := g.Nodes()
	sortNodes(nodes)

	var expand func(current map[T]bool, frontier map[T]bool, excluded map[T]bool)
	expand = func(current map[T]bool, frontier map[T]bool, excluded map[T]bool) {
		size := len(current)
		if size >= minSize && size <= maxSize {
			key := subsetKey(current)
			if !seen[key] {
				seen[key] = true

				copySet := make(map[T]bool, size)
				for k := range current {
					copySet[k] = true
				}

				results[size] = append(results[size], copySet)
			}
		}

		if size >= maxSize {
			return
		}

		candidates := make([]T, 0, len(frontier))
		for n := range frontier {
			if !excluded[n] {
				candidates = append(candidates, n)
			}
		}

		sortNodes(candidates)

		for _, next := range candidates {
			newCurrent := make(map[T]bool, size+1)
			for k := range current {
				newCurrent[k] = true
			}

			newCurrent[next] = true

			newExcluded := make(map[T]bool, len(excluded)+1)
			for k := range excluded {
				newExcluded[k] = true
			}

			newExcluded[next] = true

			newFrontier := make(map[T]bool, len(frontier))
			for k := range frontier {
				newFrontier[k] = true
			}

			for _, nb := range g.Neighbors(next) {
				if !newExcluded[nb] {
					newFrontier[nb] = true
				}
			}

			delete(newFrontier, next)

			expand(newCurrent, newFrontier, newExcluded)
		}
	}

	for _, start := range nodes {
		frontier := make(map[T]bool)
		for _, nb := range g.Neighbors(start) {
			frontier[nb] = true
		}

		expand(map[T]bool{start: true}, frontier, map[T]bool{start: true})
	}

	return results
}

func subsetKey[T comparable](set map[T]bool) string {
	parts := make([]string, 0, len(set))
	for k := range set {
		parts = append(parts, toComparableString(k))
	}

	sort.Strings(parts)

	key := ""
	for _, p := range parts {
		key += p + "\x00"
	}

	return key
}

func toComparableString[T comparable](v T) string {
	if s, ok := any(v).(string); ok {
		return s
	}

	return ""
}

func sortNodes[T comparable](nodes []T) {
	sort.Slice(nodes, func(i, j int) bool {
		return toComparableString(nodes[i]) < toComparableString(nodes[j])
	})
}
