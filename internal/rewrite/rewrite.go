// Package rewrite implements the apply-cache/query-rewriter of spec
// component C: given a fragment hash set, intersect the cached
// partition-key values of the fragments that resolve and splice that value
// set into the original query as an extra restriction.
package rewrite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/metrics"
	"github.com/accented-ai/partitioncache/internal/sqlfrag"
)

// Strategy selects how the resolved partition-key set is spliced into the
// rewritten query (§4.3).
type Strategy string

const (
	StrategyIN            Strategy = "in"
	StrategyVALUES        Strategy = "values"
	StrategyTMPTableIN    Strategy = "tmp_table_in"
	StrategyTMPTableJOIN  Strategy = "tmp_table_join"
)

// Options configures one rewrite call.
type Options struct {
	PartitionKey string
	Strategy     Strategy
	// P0Alias names the alias in the original query that carries the
	// partition key, used to anchor the injected predicate (§4.3,
	// §9 Open Question: hint vs. reject when ambiguous).
	P0Alias string
	// TmpTableName is used by the TMP_TABLE_* strategies; defaults to a
	// derived name when empty.
	TmpTableName string
	// GeometryColumn and BufferDistance configure
	// ExtendQueryWithSpatialFilter. BufferDistance <= 0 means "compute it
	// from the query's own distance constraints" via
	// sqlfrag.ComputeBufferDistance.
	GeometryColumn string
	BufferDistance float64
}

// Stats reports what a rewrite attempt did, for logging/metrics (§4.3).
type Stats struct {
	FragmentsResolved int
	FragmentsMissing  int
	KeyCount          int
	Applied           bool
}

// ExtendQueryWithPartitionKeys is the rewriter's entry point (§4.3's
// extend_query_with_partition_keys): it resolves every hash, intersects the
// value sets of whichever fragments actually have a usable cache entry, and
// splices the result into query using opts.Strategy (§4.2/P8: a partial hit
// still narrows using the fragments that resolved; only a wholly unresolved
// lookup leaves query untouched). A KindNull fragment carries no
// restriction of its own (§3 "NULL is the identity of intersection") and
// never causes a query to be rewritten to an empty result by itself — only
// a genuinely empty concrete intersection does that (§8 P4: "the cache may
// only restrict, never drop rows the original query would return").
func ExtendQueryWithPartitionKeys(
	ctx context.Context,
	backend cache.Backend,
	query string,
	hashes []string,
	opts Options,
) (string, Stats, error) {
	keys, matched, err := backend.GetIntersected(ctx, opts.PartitionKey, hashes)
	if err != nil {
		return query, Stats{}, err
	}

	stats := Stats{
		KeyCount:          len(keys),
		FragmentsResolved: matched,
		FragmentsMissing:  len(hashes) - matched,
	}

	if matched > 0 {
		metrics.CacheHits.WithLabelValues(opts.PartitionKey).Add(float64(matched))
	}

	if stats.FragmentsMissing > 0 {
		metrics.CacheMisses.WithLabelValues(opts.PartitionKey).Add(float64(stats.FragmentsMissing))
	}

	if matched == 0 {
		return query, stats, nil
	}

	if keys == nil {
		// every matched fragment was a KindNull universal set: no
		// restriction to add, the query stands as written.
		return query, stats, nil
	}

	stats.Applied = true

	if len(keys) == 0 {
		// a genuinely empty concrete intersection: the predicate matches
		// no keys at all, so the rewritten query deterministically returns
		// zero rows.
		rewritten, err := spliceEmpty(query, opts)
		return rewritten, stats, err
	}

	rewritten, err := splice(query, keys, opts)

	return rewritten, stats, err
}

// ExtendQueryWithSpatialFilter is the supplemented
// extend_query_with_spatial_filter_lazy: it adds
// ST_DWithin(opts.P0Alias.GeometryColumn, spatialFilterSQL, buffer) to
// query's WHERE clause, anchoring the apply-cache path's spatial envelope
// around a subquery that returns the cached geometry to filter against.
// When opts.BufferDistance is <= 0, the radius is derived from query's own
// distance constraints via sqlfrag.ComputeBufferDistance, matching the
// reference implementation's fallback of sizing the envelope from the
// query instead of requiring a caller-supplied constant.
func ExtendQueryWithSpatialFilter(query, spatialFilterSQL string, opts Options) (string, error) {
	if strings.TrimSpace(spatialFilterSQL) == "" {
		return query, nil
	}

	if opts.P0Alias == "" {
		return "", errs.New("rewrite.ExtendQueryWithSpatialFilter", errs.KindConfiguration, "p0 alias is required to anchor the spatial filter")
	}

	if opts.GeometryColumn == "" {
		return "", errs.New("rewrite.ExtendQueryWithSpatialFilter", errs.KindConfiguration, "geometry column is required to anchor the spatial filter")
	}

	buffer := opts.BufferDistance
	if buffer <= 0 {
		buffer = sqlfrag.ComputeBufferDistance(query)
	}

	predicate := fmt.Sprintf(
		"ST_DWithin(ST_Transform(%s.%s, 4326)::geography, ST_Transform((%s)::geometry, 4326)::geography, %s)",
		opts.P0Alias, opts.GeometryColumn, spatialFilterSQL, strconv.FormatFloat(buffer, 'f', -1, 64),
	)

	return addWhere(query, predicate), nil
}

func splice(query string, keys []int64, opts Options) (string, error) {
	if opts.P0Alias == "" {
		return "", errs.New("rewrite.splice", errs.KindConfiguration, "p0 alias is required to anchor the rewrite")
	}

	predicateCol := fmt.Sprintf("%s.%s", opts.P0Alias, opts.PartitionKey)

	switch opts.Strategy {
	case StrategyIN, "":
		return addWhere(query, fmt.Sprintf("%s IN (%s)", predicateCol, joinInts(keys))), nil
	case StrategyVALUES:
		table := tmpTableName(opts)
		values := make([]string, len(keys))

		for i, k := range keys {
			values[i] = fmt.Sprintf("(%d)", k)
		}

		cte := fmt.Sprintf("WITH %s(%s) AS (VALUES %s)", table, opts.PartitionKey, strings.Join(values, ", "))

		return cte + " " + addWhere(query, fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s)",
			table, table, opts.PartitionKey, predicateCol)), nil
	case StrategyTMPTableIN:
		table := tmpTableName(opts)
		ddl := fmt.Sprintf("CREATE TEMPORARY TABLE %s (%s bigint); INSERT INTO %s VALUES %s; ",
			table, opts.PartitionKey, table, rowValues(keys))

		return ddl + addWhere(query, fmt.Sprintf("%s IN (SELECT %s FROM %s)", predicateCol, opts.PartitionKey, table)), nil
	case StrategyTMPTableJOIN:
		table := tmpTableName(opts)
		ddl := fmt.Sprintf("CREATE TEMPORARY TABLE %s (%s bigint); INSERT INTO %s VALUES %s; ",
			table, opts.PartitionKey, table, rowValues(keys))

		joined := addFromJoin(query, fmt.Sprintf("JOIN %s ON %s.%s = %s", table, table, opts.PartitionKey, predicateCol))

		return ddl + joined, nil
	default:
		return "", errs.New("rewrite.splice", errs.KindConfiguration, "unknown rewrite strategy: "+string(opts.Strategy))
	}
}

func spliceEmpty(query string, opts Options) (string, error) {
	if opts.P0Alias == "" {
		return "", errs.New("rewrite.spliceEmpty", errs.KindConfiguration, "p0 alias is required to anchor the rewrite")
	}

	return addWhere(query, "1 = 0"), nil
}

func joinInts(keys []int64) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.FormatInt(k, 10)
	}

	return strings.Join(parts, ", ")
}

func rowValues(keys []int64) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("(%d)", k)
	}

	return strings.Join(parts, ", ")
}

func tmpTableName(opts Options) string {
	if opts.TmpTableName != "" {
		return opts.TmpTableName
	}

	return "pc_tmp_" + opts.PartitionKey
}

// addWhere appends predicate as an additional top-level AND conjunct,
// inserting a WHERE clause if the query doesn't already have one. This is
// a textual splice rather than an AST rewrite, matching the teacher's
// lexer-level approach to SQL manipulation rather than reaching for a
// nonexistent SQL-AST dependency.
func addWhere(query string, predicate string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	upper := strings.ToUpper(trimmed)

	if idx := strings.LastIndex(upper, " WHERE "); idx >= 0 {
		return trimmed[:idx+len(" WHERE ")] + "(" + predicate + ") AND " + trimmed[idx+len(" WHERE "):]
	}

	return trimmed + " WHERE " + predicate
}

// addFromJoin appends an additional JOIN clause right after the FROM
// clause's table list, before any WHERE/GROUP BY tail.
func addFromJoin(query string, joinClause string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	upper := strings.ToUpper(trimmed)

	if idx := strings.Index(upper, " WHERE "); idx >= 0 {
		return trimmed[:idx] + " " + joinClause + trimmed[idx:]
	}

	return trimmed + " " + joinClause
}
