package sqlfrag

import (
	"regexp"
	"strconv"
	"strings"
)

// distanceEdgeRe pulls (alias1, alias2, distance) out of an
// ST_DWithin(a.geom, b.geom, distance) call, the common case handled by
// the reference implementation's extract_distance_constraints.
var distanceEdgeRe = regexp.MustCompile(
	`(?i)ST_DWithin\s*\(\s*([a-zA-Z_][a-zA-Z0-9_]*)\.[a-zA-Z0-9_]+\s*,\s*([a-zA-Z_][a-zA-Z0-9_]*)\.[a-zA-Z0-9_]+\s*,\s*(-?\d+(?:\.\d+)?)\s*\)`,
)

var (
	betweenUpperRe = regexp.MustCompile(`(?i)BETWEEN\s+-?\d+(?:\.\d+)?\s+AND\s+(-?\d+(?:\.\d+)?)`)
	lteBoundRe     = regexp.MustCompile(`<=\s*(-?\d+(?:\.\d+)?)`)
	ltBoundRe      = regexp.MustCompile(`<\s*(-?\d+(?:\.\d+)?)`)
)

type distanceEdge struct {
	a, b string
	dist float64
}

// ComputeBufferDistance implements the supplemented compute_buffer_distance
// feature: it builds a weighted graph whose nodes are table aliases and
// whose edges are the query's distance constraints (ST_DWithin calls and
// comparison-style ST_Distance/ST_Intersects conjuncts such as
// ST_Distance(...) < radius or ST_Distance(...) BETWEEN x AND y; other
// distance expressions are not recognised), then returns the weighted diameter — the
// longest shortest path across all alias pairs. apply_cache uses this to
// size the spatial envelope radius when a cached fragment's rows must be
// re-joined against a buffered geometry. It returns 0 when the query
// carries no distance constraints or the constraint graph has fewer than
// two aliases.
func ComputeBufferDistance(query string) float64 {
	edges := extractDistanceConstraints(query)
	if len(edges) == 0 {
		return 0
	}

	weights := make(map[string]map[string]float64)
	addNode := func(n string) {
		if weights[n] == nil {
			weights[n] = make(map[string]float64)
		}
	}

	for _, e := range edges {
		addNode(e.a)
		addNode(e.b)

		if cur, ok := weights[e.a][e.b]; !ok || e.dist > cur {
			weights[e.a][e.b] = e.dist
			weights[e.b][e.a] = e.dist
		}
	}

	if len(weights) < 2 {
		return 0
	}

	var maxDist float64

	for source := range weights {
		for _, length := range dijkstra(weights, source) {
			if length > maxDist {
				maxDist = length
			}
		}
	}

	return maxDist
}

// extractDistanceConstraints mirrors extract_distance_constraints: ST_DWithin
// calls are collected first, then any remaining distance-function conjuncts
// (is_distance_function) contribute an upper-bound distance parsed from a
// BETWEEN, <= or < comparison, skipping pairs ST_DWithin already covered.
func extractDistanceConstraints(query string) []distanceEdge {
	var edges []distanceEdge

	seen := make(map[string]bool)

	for _, m := range distanceEdgeRe.FindAllStringSubmatch(query, -1) {
		dist, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}

		a, b := orderedPair(m[1], m[2])
		edges = append(edges, distanceEdge{a: a, b: b, dist: dist})
		seen[a+"\x00"+b] = true
	}

	_, _, _, whereClause, err := splitStatement(query)
	if err != nil {
		return edges
	}

	for _, cond := range conjunctsOf(whereClause) {
		cond = strings.TrimSpace(cond)
		if !isDistanceFunction(cond) || distanceEdgeRe.MatchString(cond) {
			continue
		}

		aliases := aliasesIn(cond)
		if len(aliases) != 2 {
			continue
		}

		a, b := orderedPair(aliases[0], aliases[1])
		if seen[a+"\x00"+b] {
			continue
		}

		dist, ok := upperBoundDistance(cond)
		if !ok {
			continue
		}

		edges = append(edges, distanceEdge{a: a, b: b, dist: dist})
		seen[a+"\x00"+b] = true
	}

	return edges
}

func orderedPair(x, y string) (string, string) {
	if x <= y {
		return x, y
	}

	return y, x
}

// upperBoundDistance extracts the upper bound of a distance comparison:
// BETWEEN's second operand, or the right-hand literal of <=/<. A
// lower-bound-only comparison (>=, >) carries no usable buffer radius.
func upperBoundDistance(cond string) (float64, bool) {
	if m := betweenUpperRe.FindStringSubmatch(cond); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	}

	if m := lteBoundRe.FindStringSubmatch(cond); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	}

	if m := ltBoundRe.FindStringSubmatch(cond); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	}

	return 0, false
}

// dijkstra runs single-source shortest paths over a small, dense alias
// graph; the alias count per query is low enough that an O(V^2) scan beats
// the bookkeeping of a heap-based implementation.
func dijkstra(weights map[string]map[string]float64, source string) map[string]float64 {
	dist := map[string]float64{source: 0}
	visited := make(map[string]bool)

	for len(visited) < len(weights) {
		var (
			u     string
			found bool
			best  float64
		)

		for n, d := range dist {
			if visited[n] {
				continue
			}

			if !found || d < best {
				u, best, found = n, d, true
			}
		}

		if !found {
			break
		}

		visited[u] = true

		for v, w := range weights[u] {
			if visited[v] {
				continue
			}

			cand := dist[u] + w
			if existing, ok := dist[v]; !ok || cand < existing {
				dist[v] = cand
			}
		}
	}

	return dist
}
