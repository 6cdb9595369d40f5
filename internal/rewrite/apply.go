package rewrite

import (
	"context"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/sqlfrag"
)

// ApplyOptions bundles the two configuration bags one apply_cache call
// needs (§6): how to fragment the query (A) and how to splice the
// resolved key set back into it (C).
type ApplyOptions struct {
	Fragment sqlfrag.Options
	Rewrite  Options
}

// ApplyCache is the library's single entry point (§2's data-flow summary:
// "user call apply_cache(Q, handler, P) -> A produces hashes -> B looks
// them up -> C rewrites Q"), wiring the query processor
// (sqlfrag.GenerateAllQueryHashPairs), the cache lookup
// (cache.Backend.GetIntersected) and the splice (ExtendQueryWithPartitionKeys)
// into the one call a host application actually makes.
func ApplyCache(ctx context.Context, backend cache.Backend, query string, opts ApplyOptions) (string, Stats, error) {
	hashes, rwOpts, err := resolveHashes(query, opts)
	if err != nil {
		return query, Stats{}, err
	}

	return ExtendQueryWithPartitionKeys(ctx, backend, query, hashes, rwOpts)
}

// GetPartitionKeys resolves and intersects a query's fragments without
// splicing the result into any SQL (§6 "get_partition_keys ... variants
// returning the intersection ... without splicing"), for callers that want
// the raw key set rather than a rewritten query.
func GetPartitionKeys(ctx context.Context, backend cache.Backend, query string, opts ApplyOptions) ([]int64, Stats, error) {
	hashes, rwOpts, err := resolveHashes(query, opts)
	if err != nil {
		return nil, Stats{}, err
	}

	keys, matched, err := backend.GetIntersected(ctx, rwOpts.PartitionKey, hashes)
	if err != nil {
		return nil, Stats{}, err
	}

	return keys, Stats{
		KeyCount:          len(keys),
		FragmentsResolved: matched,
		FragmentsMissing:  len(hashes) - matched,
		Applied:           matched > 0,
	}, nil
}

// ApplyCacheLazy is ApplyCache's lazy counterpart (§6 "apply_cache_lazy —
// same, backend must support get_intersected_lazy"): instead of pulling
// the resolved key set into the application, it splices the backend's own
// SQL sub-query (method IN_SUBQUERY, §4.3's splice table) directly into
// query.
func ApplyCacheLazy(ctx context.Context, backend cache.LazyBackend, query string, opts ApplyOptions) (string, Stats, error) {
	subquery, rwOpts, matched, missing, err := resolveLazy(ctx, backend, query, opts)
	if err != nil {
		return query, Stats{}, err
	}

	stats := Stats{FragmentsResolved: matched, FragmentsMissing: missing}

	if matched == 0 || subquery == "" {
		return query, stats, nil
	}

	stats.Applied = true

	rewritten, err := spliceSubquery(query, subquery, rwOpts)

	return rewritten, stats, err
}

// GetPartitionKeysLazy returns the backend's lazy SQL sub-query for query's
// fragments without splicing it into anything (§6
// "get_partition_keys_lazy").
func GetPartitionKeysLazy(ctx context.Context, backend cache.LazyBackend, query string, opts ApplyOptions) (string, Stats, error) {
	subquery, _, matched, missing, err := resolveLazy(ctx, backend, query, opts)
	if err != nil {
		return "", Stats{}, err
	}

	return subquery, Stats{
		FragmentsResolved: matched,
		FragmentsMissing:  missing,
		Applied:           matched > 0 && subquery != "",
	}, nil
}

func resolveHashes(query string, opts ApplyOptions) ([]string, Options, error) {
	result, err := sqlfrag.GenerateAllQueryHashPairs(query, opts.Fragment)
	if err != nil {
		return nil, Options{}, errs.WrapKind("rewrite.ApplyCache", errs.KindParse, err)
	}

	rwOpts := opts.Rewrite
	rwOpts.PartitionKey = opts.Fragment.PartitionKey

	if rwOpts.P0Alias == "" {
		rwOpts.P0Alias = result.PartitionAlias
	}

	hashes := make([]string, 0, len(result.Fragments))
	for _, f := range result.Fragments {
		hashes = append(hashes, f.Hash)
	}

	return hashes, rwOpts, nil
}

func resolveLazy(ctx context.Context, backend cache.LazyBackend, query string, opts ApplyOptions) (string, Options, int, int, error) {
	hashes, rwOpts, err := resolveHashes(query, opts)
	if err != nil {
		return "", Options{}, 0, 0, err
	}

	subquery, matched, err := backend.GetIntersectedLazy(ctx, rwOpts.PartitionKey, hashes)
	if err != nil {
		return "", Options{}, 0, 0, err
	}

	return subquery, rwOpts, matched, len(hashes) - matched, nil
}

// spliceSubquery implements the IN_SUBQUERY splice of §4.3's method table:
// anchor.P IN (<lazy SQL>), anchored the same way ExtendQueryWithPartitionKeys
// anchors its literal-value strategies.
func spliceSubquery(query, subquery string, opts Options) (string, error) {
	if opts.P0Alias == "" {
		return "", errs.New("rewrite.spliceSubquery", errs.KindConfiguration, "p0 alias is required to anchor the rewrite")
	}

	predicateCol := opts.P0Alias + "." + opts.PartitionKey

	return addWhere(query, predicateCol+" IN "+subquery), nil
}
