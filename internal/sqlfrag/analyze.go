package sqlfrag

import (
	"strings"

	"github.com/accented-ai/partitioncache/internal/graph"
)

// analyze decomposes sql into the intermediate form the fragment generator
// consumes, following the reference implementation's
// extract_and_group_query_conditions: classify every top-level WHERE
// conjunct as a join, a partition-key constraint, a single-alias attribute
// constraint, a spatial distance constraint, an OR group, or an
// opaque function call, then build the alias connectivity graph from the
// join conditions.
func analyze(sql string, opts Options) (*analysis, []string, error) {
	selectList, distinct, fromClause, whereClause, err := splitStatement(sql)
	if err != nil {
		return nil, nil, err
	}

	tables, onJoins, err := parseFrom(fromClause)
	if err != nil {
		return nil, nil, err
	}

	a := &analysis{
		selectRaw: selectList,
		distinct:  distinct,
		tables:    tables,
	}

	var warnings []string

	g := graph.NewUndirectedGraph[string]()

	for _, t := range tables {
		g.AddNode(t.Alias)
	}

	partitionAlias := resolvePartitionAlias(tables, opts)
	a.partitionAlias = partitionAlias

	conjuncts := conjunctsOf(whereClause)

	for _, c := range onJoins {
		classifyJoin(a, g, c, partitionAlias, opts.PartitionKey)
	}

	for _, c := range conjuncts {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}

		switch {
		case isOrGroup(c):
			a.orConditions = append(a.orConditions, c)
		case isDistanceFunction(c):
			classifyDistance(a, c, opts.BucketSteps)
		case mentionsPartitionKey(c, partitionAlias, opts.PartitionKey):
			a.partitionKeyConds = append(a.partitionKeyConds, c)
		default:
			if jc, ok := parseEquality(c); ok {
				classifyJoin(a, g, jc, partitionAlias, opts.PartitionKey)
				continue
			}

			aliases := aliasesIn(c)

			switch {
			case len(aliases) == 1:
				a.attributeConds = append(a.attributeConds, AttributeCondition{Alias: aliases[0], Raw: c})
			case functionCallRe.MatchString(c):
				a.otherFunctions = append(a.otherFunctions, c)
			case len(aliases) == 0:
				a.otherFunctions = append(a.otherFunctions, c)
			default:
				warnings = append(warnings, "skipped unclassifiable conjunct: "+c)
			}
		}
	}

	a.aliasGraph = g

	if a.partitionAlias == "" {
		a.partitionAlias = detectPartitionAliasFromJoins(a, opts.PartitionKey)
	}

	return a, warnings, nil
}

func classifyJoin(a *analysis, g *graph.UndirectedGraph[string], jc JoinCondition, partitionAlias, partitionKey string) {
	g.AddEdge(jc.LeftAlias, jc.RightAlias)

	if (jc.LeftCol == partitionKey || jc.RightCol == partitionKey) &&
		(jc.LeftAlias == partitionAlias || jc.RightAlias == partitionAlias || partitionAlias == "") {
		a.partitionJoins = append(a.partitionJoins, jc)
		return
	}

	a.joinConditions = append(a.joinConditions, jc)
}

func classifyDistance(a *analysis, cond string, bucketSteps float64) {
	aliases := aliasesIn(cond)

	dc := DistanceCondition{Raw: cond}
	if len(aliases) > 0 {
		dc.LeftAlias = aliases[0]
	}

	if len(aliases) > 1 {
		dc.RightAlias = aliases[1]
	}

	if bucketed, bucket, ok := bucketDistance(cond, bucketSteps); ok {
		dc.Raw = bucketed
		dc.Bucket = bucket
		dc.HasBucket = true
	}

	a.distanceConds = append(a.distanceConds, dc)
}

// conjunctsOf splits a WHERE clause into top-level AND conjuncts, treating
// any parenthesized OR group as a single atomic conjunct so it is never
// split or dropped (§4.1 "OR groups are always carried, never fragmented").
func conjunctsOf(where string) []string {
	if strings.TrimSpace(where) == "" {
		return nil
	}

	return splitTopLevel(where, "AND")
}

func isOrGroup(cond string) bool {
	trimmed := strings.TrimSpace(cond)
	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		inner := trimmed[1 : len(trimmed)-1]
		return hasKeyword(inner, "OR")
	}

	return hasKeyword(trimmed, "OR")
}

func mentionsPartitionKey(cond, partitionAlias, partitionKey string) bool {
	if partitionKey == "" {
		return false
	}

	for _, m := range aliasColRe.FindAllStringSubmatch(cond, -1) {
		if m[2] != partitionKey {
			continue
		}

		if partitionAlias == "" || m[1] == partitionAlias {
			return true
		}
	}

	return false
}

// resolvePartitionAlias implements §4.1's partition-table detection order:
// an explicit PartitionKeyTable hint wins; otherwise fall back to the
// conventional "p0" alias if present.
func resolvePartitionAlias(tables []TableRef, opts Options) string {
	if opts.PartitionKeyTable != "" {
		for _, t := range tables {
			if t.Alias == opts.PartitionKeyTable || t.Table == opts.PartitionKeyTable {
				return t.Alias
			}
		}
	}

	for _, t := range tables {
		if t.Alias == "p0" {
			return t.Alias
		}
	}

	return ""
}

// detectPartitionAliasFromJoins runs the "smart detection" fallback of
// §4.1: when no naming convention or hint resolves the partition table,
// infer it as the alias whose partition-key column occurs most often in the
// partition-key join conditions (ties go to the alphabetically first alias).
func detectPartitionAliasFromJoins(a *analysis, partitionKey string) string {
	if partitionKey == "" {
		return ""
	}

	counts := make(map[string]int)

	for _, jc := range a.partitionJoins {
		if jc.LeftCol == partitionKey {
			counts[jc.LeftAlias]++
		}

		if jc.RightCol == partitionKey {
			counts[jc.RightAlias]++
		}
	}

	best, bestCount := "", 0

	for alias, n := range counts {
		if n > bestCount || (n == bestCount && alias < best) {
			best, bestCount = alias, n
		}
	}

	return best
}
