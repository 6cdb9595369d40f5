package sqlfrag

import (
	"github.com/accented-ai/partitioncache/internal/errs"
)

const maxPartitionCondPowerset = 4

// GenerateAllQueryHashPairs is the query processor's entry point (§4.1, the
// reference implementation's generate_all_query_hash_pairs): it decomposes
// a single-statement conjunctive SELECT into every independently-cacheable
// fragment, each paired with its stable hash.
//
// Deprecated StarJoinTable/AutoDetectStarJoin fields in opts are translated
// to PartitionKeyTable/FollowGraph before processing (§9 deprecated-kwarg
// shim), matching the reference implementation's
// _handle_deprecated_kwargs.
func GenerateAllQueryHashPairs(sql string, opts Options) (*Result, error) {
	if opts.PartitionKey == "" {
		return nil, errs.New("sqlfrag.GenerateAllQueryHashPairs", errs.KindConfiguration, "partition key is required")
	}

	norm := opts.normalized()

	a, warnings, err := analyze(sql, norm)
	if err != nil {
		return nil, errs.WrapKind("sqlfrag.GenerateAllQueryHashPairs", errs.KindParse, err)
	}

	if a.partitionAlias == "" {
		return nil, errs.New("sqlfrag.GenerateAllQueryHashPairs", errs.KindParse,
			"could not resolve the partition key table; set PartitionKeyTable explicitly")
	}

	result := &Result{
		OriginalHash:   HashQuery(sql, norm.PartitionKey),
		OriginalQuery:  normalizeWhitespace(stripComments(sql)),
		PartitionAlias: a.partitionAlias,
		Warnings:       warnings,
	}

	subsets := candidateSubsets(a, norm)

	seen := make(map[string]bool)

	for _, subset := range subsets {
		for _, condsMask := range partitionCondVariants(a.partitionKeyConds) {
			frag, ok := buildFragment(a, subset, condsMask, norm)
			if !ok {
				continue
			}

			if seen[frag.Hash] {
				continue
			}

			seen[frag.Hash] = true

			result.Fragments = append(result.Fragments, frag)
		}
	}

	return result, nil
}

// candidateSubsets enumerates the alias subsets to fragment over (§4.1 step
// 4): with V the outer aliases other than the partition-key alias, when
// FollowGraph is set it enumerates every connected subgraph of V (plus the
// partition alias) of size in [MinComponentSize, MaxComponentSize];
// otherwise it enumerates every plain combination of V in that same size
// window, matching the reference implementation's
// itertools.combinations(table_aliases, i) fallback for follow_graph=false.
func candidateSubsets(a *analysis, opts Options) []map[string]bool {
	full := make(map[string]bool, len(a.tables))
	for _, t := range a.tables {
		full[t.Alias] = true
	}

	var out []map[string]bool

	if opts.FollowGraph {
		bySize := a.aliasGraph.ConnectedSubgraphs(opts.MinComponentSize, opts.MaxComponentSize)

		for _, sets := range bySize {
			for _, set := range sets {
				if set[a.partitionAlias] {
					out = append(out, set)
				}
			}
		}
	} else {
		others := make([]string, 0, len(a.tables))
		for _, t := range a.tables {
			if t.Alias != a.partitionAlias {
				others = append(others, t.Alias)
			}
		}

		for size := opts.MinComponentSize; size <= opts.MaxComponentSize && size <= len(others); size++ {
			for _, combo := range combinations(others, size) {
				set := make(map[string]bool, len(combo)+1)
				for _, alias := range combo {
					set[alias] = true
				}

				if a.partitionAlias != "" {
					set[a.partitionAlias] = true
				}

				out = append(out, set)
			}
		}
	}

	if len(out) == 0 {
		out = append(out, full)
	}

	return out
}

// combinations returns every size-k subset of items, order-preserved within
// each subset, in lexicographic index order.
func combinations(items []string, k int) [][]string {
	if k <= 0 || k > len(items) {
		return nil
	}

	var out [][]string

	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}

	for {
		combo := make([]string, k)
		for i, v := range idx {
			combo[i] = items[v]
		}

		out = append(out, combo)

		i := k - 1
		for i >= 0 && idx[i] == i+len(items)-k {
			i--
		}

		if i < 0 {
			break
		}

		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}

	return out
}

// partitionCondVariants returns the powerset of extra partition-key
// conjuncts to apply on top of each table subset (§4.1: "partial queries
// vary not only by table subset but by which partition-key constraints are
// already pinned"), capped to keep the fragment count bounded for queries
// with many partition-key conjuncts.
func partitionCondVariants(conds []string) []map[string]bool {
	if len(conds) == 0 {
		return []map[string]bool{nil}
	}

	n := len(conds)
	if n > maxPartitionCondPowerset {
		full := make(map[string]bool, n)
		for _, c := range conds {
			full[c] = true
		}

		return []map[string]bool{nil, full}
	}

	var out []map[string]bool

	for mask := 0; mask < (1 << n); mask++ {
		set := make(map[string]bool, n)

		for i, c := range conds {
			if mask&(1<<i) != 0 {
				set[c] = true
			}
		}

		out = append(out, set)
	}

	return out
}
