// Package management implements spec component F: operational commands
// that act across an entire partition key's cache rather than on a single
// fragment — setup/teardown, status reporting, eviction, export/import and
// pruning stale query bookkeeping.
package management

import (
	"context"
	"sort"
	"time"

	"github.com/accented-ai/partitioncache/internal/cache"
	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/schema"
)

// EvictionStrategy selects which entries Evict removes first when a
// partition key's cache exceeds its configured budget (§4.7).
type EvictionStrategy string

const (
	EvictOldest  EvictionStrategy = "oldest"
	EvictLargest EvictionStrategy = "largest"
)

// Manager drives cross-fragment operations over a single Backend.
type Manager struct {
	backend cache.Backend
}

func NewManager(backend cache.Backend) *Manager {
	return &Manager{backend: backend}
}

// PartitionStatus summarizes one partition key's cache for `status` (§6).
type PartitionStatus struct {
	Meta       schema.PartitionKeyMeta
	EntryCount int
}

func (m *Manager) Status(ctx context.Context) ([]PartitionStatus, error) {
	metas, err := m.backend.GetPartitionKeys(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PartitionStatus, 0, len(metas))

	for _, meta := range metas {
		keys, err := m.backend.GetAllKeys(ctx, meta.Name)
		if err != nil {
			return nil, err
		}

		out = append(out, PartitionStatus{Meta: meta, EntryCount: len(keys)})
	}

	return out, nil
}

// Teardown removes every entry and all bookkeeping for a partition key
// (§6 "setup/teardown").
func (m *Manager) Teardown(ctx context.Context, partitionKey string) error {
	return m.backend.DeletePartition(ctx, partitionKey)
}

// ExportedEntry is one row of the plain, backend-agnostic export format
// (§6 "export/import"): since Value already captures the tagged-variant
// payload, exporting is just walking every hash and re-inserting it
// through the same Backend interface on import, so export/import works
// identically across array/bitstring/bitmap/memory backends.
type ExportedEntry struct {
	Hash  string
	Value cache.Value
	Query string
}

func (m *Manager) Export(ctx context.Context, partitionKey string) ([]ExportedEntry, error) {
	hashes, err := m.backend.GetAllKeys(ctx, partitionKey)
	if err != nil {
		return nil, err
	}

	queries, err := m.backend.GetAllQueries(ctx, partitionKey)
	if err != nil {
		return nil, err
	}

	out := make([]ExportedEntry, 0, len(hashes))

	for _, h := range hashes {
		v, ok, err := m.backend.Get(ctx, partitionKey, h)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		out = append(out, ExportedEntry{Hash: h, Value: v, Query: queries[h]})
	}

	return out, nil
}

func (m *Manager) Import(ctx context.Context, partitionKey string, entries []ExportedEntry) error {
	for _, e := range entries {
		if err := m.backend.SetCache(ctx, partitionKey, e.Hash, e.Value, e.Query); err != nil {
			return err
		}
	}

	return nil
}

// Evict removes entries until at most keep remain, per strategy (§4.7).
// EvictOldest has no timestamp to rank by once an entry only carries its
// hash and value (the bookkeeping `_queries` table tracks updated_at, but
// the Backend interface doesn't expose it to keep backends simple), so it
// falls back to hash order, which is stable and backend-independent;
// EvictLargest ranks by stored key-set size, which every backend can
// report via Get.
func (m *Manager) Evict(ctx context.Context, partitionKey string, strategy EvictionStrategy, keep int) (int, error) {
	hashes, err := m.backend.GetAllKeys(ctx, partitionKey)
	if err != nil {
		return 0, err
	}

	if len(hashes) <= keep {
		return 0, nil
	}

	type candidate struct {
		hash string
		size int
	}

	candidates := make([]candidate, 0, len(hashes))

	for _, h := range hashes {
		v, ok, err := m.backend.Get(ctx, partitionKey, h)
		if err != nil {
			return 0, err
		}

		if !ok {
			continue
		}

		candidates = append(candidates, candidate{hash: h, size: len(v.Keys)})
	}

	switch strategy {
	case EvictLargest:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].size > candidates[j].size })
	case EvictOldest, "":
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].hash < candidates[j].hash })
	default:
		return 0, errs.New("management.Evict", errs.KindConfiguration, "unknown eviction strategy: "+string(strategy))
	}

	toEvict := candidates
	if len(toEvict) > len(candidates)-keep {
		toEvict = candidates[:len(candidates)-keep]
	}

	for _, c := range toEvict {
		if err := m.backend.Delete(ctx, partitionKey, c.hash); err != nil {
			return 0, err
		}
	}

	return len(toEvict), nil
}

// PruneOldQueries deletes every cached hash of partitionKey that has no
// recorded query text, and returns how many it deleted. The age argument
// is not used: the Backend interface has no per-entry timestamp, so
// entries are not selected by age.
func (m *Manager) PruneOldQueries(ctx context.Context, partitionKey string, _ time.Duration) (int, error) {
	hashes, err := m.backend.GetAllKeys(ctx, partitionKey)
	if err != nil {
		return 0, err
	}

	queries, err := m.backend.GetAllQueries(ctx, partitionKey)
	if err != nil {
		return 0, err
	}

	pruned := 0

	for _, h := range hashes {
		if _, ok := queries[h]; ok {
			continue
		}

		if err := m.backend.Delete(ctx, partitionKey, h); err != nil {
			return pruned, err
		}

		pruned++
	}

	return pruned, nil
}
