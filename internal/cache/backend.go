package cache

import (
	"context"

	"github.com/accented-ai/partitioncache/internal/schema"
)

// Backend is the capability-set storage abstraction of §4.2: a
// partition-keyed, fragment-hash-addressed cache of value sets, with the
// bookkeeping operations the queue handler and fill workers need to avoid
// redundant concurrent builds of the same fragment.
//
// Every concrete backend (array, bitstring, compressed bitmap, in-memory)
// implements this same surface so the rewriter and fill pipeline are
// backend-agnostic, mirroring the reference implementation's
// AbstractCacheHandler.
type Backend interface {
	// RegisterPartitionKey records a partition key's datatype (and, for
	// fixed-width backends, its bitsize) the first time it is seen
	// (§4.2 "write-once datatype").
	RegisterPartitionKey(ctx context.Context, partitionKey string, datatype schema.Datatype, bitsize int) error

	// Get returns the stored value for a fragment hash. The second
	// return is false if no entry exists at all (as opposed to an
	// explicit KindNull entry).
	Get(ctx context.Context, partitionKey, hash string) (Value, bool, error)

	// Exists reports whether any entry (of any kind) is stored for hash.
	// The fill worker's skip-if-cached check (§4.4) uses
	// FilterExistingKeys, not Exists.
	Exists(ctx context.Context, partitionKey, hash string) (bool, error)

	// FilterExistingKeys partitions hashes into those already cached and
	// those not yet present, in one round trip.
	FilterExistingKeys(ctx context.Context, partitionKey string, hashes []string) (cached, missing []string, err error)

	// SetCache stores a concrete value set for hash, and the query text
	// that produced it (§4.2 "set_cache").
	SetCache(ctx context.Context, partitionKey, hash string, value Value, query string) error

	// SetNull stores a KindNull entry for hash: the fragment matches every
	// key, so GetIntersected treats it as no restriction.
	SetNull(ctx context.Context, partitionKey, hash, query string) error

	// SetQueryStatus records a query association (original or fragment) with
	// its status, without necessarily attaching a value. Used for
	// timeout/failed/limit tombstones (§4.2 "set_query_status").
	SetQueryStatus(ctx context.Context, partitionKey, hash, query string, status schema.Status) error

	// GetIntersected computes the intersection of the key sets of every
	// hash in hashes that actually has a usable entry (§4.2/P8:
	// get_intersected({H1,...,Hk}, P) = (intersection of get(Hi,P), k')
	// where k' is the number of Hi present). Missing and tombstoned
	// hashes are skipped, not fatal; a KindNull entry contributes no
	// restriction (identity of intersection) but still counts toward
	// matched. matched is 0, with keys nil, only when none of hashes
	// resolved to a usable entry at all.
	GetIntersected(ctx context.Context, partitionKey string, hashes []string) (keys []int64, matched int, err error)

	GetAllKeys(ctx context.Context, partitionKey string) ([]string, error)
	GetAllQueries(ctx context.Context, partitionKey string) (map[string]string, error)
	GetPartitionKeys(ctx context.Context) ([]schema.PartitionKeyMeta, error)

	Delete(ctx context.Context, partitionKey, hash string) error
	DeletePartition(ctx context.Context, partitionKey string) error

	Close() error
}

// LazyBackend is implemented by backends that live in the same DBMS as the
// query being rewritten and can therefore answer get_intersected as a SQL
// sub-query instead of a materialized key set (§4.2 "get_intersected_lazy
// ... only backends that live in the same DBMS as the target query
// implement this"). The array and bitstring Postgres backends qualify; the
// in-memory backend and the compressed bitmap backend (custom binary
// encoding, not expressible as a plain subquery) do not.
type LazyBackend interface {
	Backend

	// GetIntersectedLazy returns a SQL expression that evaluates to the
	// intersection of hashes' key sets when embedded in the caller's own
	// query, alongside matched (the same partial-hit count GetIntersected
	// reports). An empty subquery with matched > 0 means every matched
	// hash was a KindNull universal set: no restriction to splice.
	GetIntersectedLazy(ctx context.Context, partitionKey string, hashes []string) (subquery string, matched int, err error)
}
