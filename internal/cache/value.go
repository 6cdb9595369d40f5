// Package cache implements the partition-key-set cache abstraction (spec
// component B): a capability-scoped key/value store keyed by fragment hash,
// storing the set of partition-key values that satisfy a fragment's
// predicate, plus the bookkeeping tables that track per-partition-key
// metadata and per-query/per-fragment status.
package cache

// Kind discriminates a cache entry's tagged-variant payload (§3: a fragment
// hash maps to either a concrete value set, a NULL "matches every key"
// marker that places no restriction on the intersection, or a tombstone
// recording why the fragment could not be computed).
type Kind int

const (
	KindSet Kind = iota
	KindNull
	KindTombstone
)

// Value is the tagged-variant cache payload described in §3. Exactly one
// of Keys (KindSet) or Reason (KindTombstone) is meaningful for a given
// Kind; KindNull carries neither.
type Value struct {
	Kind   Kind
	Keys   []int64
	Reason string
}

func SetValue(keys []int64) Value {
	return Value{Kind: KindSet, Keys: keys}
}

func NullValue() Value {
	return Value{Kind: KindNull}
}

func TombstoneValue(reason string) Value {
	return Value{Kind: KindTombstone, Reason: reason}
}

func (v Value) IsEmpty() bool {
	return v.Kind == KindSet && len(v.Keys) == 0
}
