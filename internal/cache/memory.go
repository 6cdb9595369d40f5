package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/schema"
)

// MemoryBackend is the §4.2 "generic in-memory backend": a process-local
// cache with no durability guarantee, intended for single-process batch use
// and for exercising the rewriter/fill pipeline in tests without a live
// Postgres instance.
type MemoryBackend struct {
	mu         sync.RWMutex
	partitions map[string]schema.PartitionKeyMeta
	entries    map[string]map[string]Value  // partitionKey -> hash -> value
	queries    map[string]map[string]string // partitionKey -> hash -> query text
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		partitions: make(map[string]schema.PartitionKeyMeta),
		entries:    make(map[string]map[string]Value),
		queries:    make(map[string]map[string]string),
	}
}

func (m *MemoryBackend) RegisterPartitionKey(_ context.Context, partitionKey string, datatype schema.Datatype, bitsize int) error {
	if err := schema.ValidateIdentifier(partitionKey); err != nil {
		return err
	}

	if !datatype.Valid() {
		return errs.New("cache.MemoryBackend.RegisterPartitionKey", errs.KindConfiguration, "invalid datatype: "+string(datatype))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.partitions[partitionKey]; ok {
		if existing.Datatype != datatype {
			return errs.New("cache.MemoryBackend.RegisterPartitionKey", errs.KindConfiguration,
				"partition key "+partitionKey+" already registered with a different datatype")
		}

		return nil
	}

	m.partitions[partitionKey] = schema.PartitionKeyMeta{Name: partitionKey, Datatype: datatype, Bitsize: bitsize}
	m.entries[partitionKey] = make(map[string]Value)
	m.queries[partitionKey] = make(map[string]string)

	return nil
}

func (m *MemoryBackend) Get(_ context.Context, partitionKey, hash string) (Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[partitionKey][hash]

	return v, ok, nil
}

func (m *MemoryBackend) Exists(ctx context.Context, partitionKey, hash string) (bool, error) {
	_, ok, err := m.Get(ctx, partitionKey, hash)
	return ok, err
}

func (m *MemoryBackend) FilterExistingKeys(_ context.Context, partitionKey string, hashes []string) ([]string, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cached, missing []string

	for _, h := range hashes {
		if _, ok := m.entries[partitionKey][h]; ok {
			cached = append(cached, h)
		} else {
			missing = append(missing, h)
		}
	}

	return cached, missing, nil
}

func (m *MemoryBackend) SetCache(_ context.Context, partitionKey, hash string, value Value, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensurePartitionLocked(partitionKey); err != nil {
		return err
	}

	if existing, ok := m.entries[partitionKey][hash]; ok && existing.Kind == KindTombstone && value.Kind != KindTombstone {
		// monotone status rule (§4.2): a tombstone is never silently overwritten
		// by a successful result produced by a stale, still-running attempt.
		return nil
	}

	m.entries[partitionKey][hash] = value
	if query != "" {
		m.queries[partitionKey][hash] = query
	}

	return nil
}

func (m *MemoryBackend) SetNull(ctx context.Context, partitionKey, hash, query string) error {
	return m.SetCache(ctx, partitionKey, hash, NullValue(), query)
}

func (m *MemoryBackend) SetQueryStatus(ctx context.Context, partitionKey, hash, query string, status schema.Status) error {
	if status.IsTombstone() {
		return m.SetCache(ctx, partitionKey, hash, TombstoneValue(string(status)), query)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensurePartitionLocked(partitionKey); err != nil {
		return err
	}

	if query != "" {
		m.queries[partitionKey][hash] = query
	}

	return nil
}

func (m *MemoryBackend) GetIntersected(_ context.Context, partitionKey string, hashes []string) ([]int64, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(hashes) == 0 {
		return nil, 0, nil
	}

	var (
		result  map[int64]bool
		matched int
		narrow  bool
	)

	for _, h := range hashes {
		v, ok := m.entries[partitionKey][h]
		if !ok || v.Kind == KindTombstone {
			continue
		}

		matched++

		if v.Kind == KindNull {
			// universal set: contributes no restriction, identity of intersection.
			continue
		}

		if !narrow {
			narrow = true
			result = make(map[int64]bool, len(v.Keys))
			for _, k := range v.Keys {
				result[k] = true
			}

			continue
		}

		for k := range result {
			if !containsInt64(v.Keys, k) {
				delete(result, k)
			}
		}
	}

	if matched == 0 {
		return nil, 0, nil
	}

	if !narrow {
		return nil, matched, nil
	}

	out := make([]int64, 0, len(result))
	for k := range result {
		out = append(out, k)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, matched, nil
}

func (m *MemoryBackend) GetAllKeys(_ context.Context, partitionKey string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.entries[partitionKey]))
	for h := range m.entries[partitionKey] {
		out = append(out, h)
	}

	sort.Strings(out)

	return out, nil
}

func (m *MemoryBackend) GetAllQueries(_ context.Context, partitionKey string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.queries[partitionKey]))
	for k, v := range m.queries[partitionKey] {
		out[k] = v
	}

	return out, nil
}

func (m *MemoryBackend) GetPartitionKeys(_ context.Context) ([]schema.PartitionKeyMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]schema.PartitionKeyMeta, 0, len(m.partitions))
	for _, p := range m.partitions {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (m *MemoryBackend) Delete(_ context.Context, partitionKey, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries[partitionKey], hash)
	delete(m.queries[partitionKey], hash)

	return nil
}

func (m *MemoryBackend) DeletePartition(_ context.Context, partitionKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, partitionKey)
	delete(m.queries, partitionKey)
	delete(m.partitions, partitionKey)

	return nil
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) ensurePartitionLocked(partitionKey string) error {
	if _, ok := m.entries[partitionKey]; !ok {
		return errs.New("cache.MemoryBackend", errs.KindConfiguration, "partition key not registered: "+partitionKey)
	}

	return nil
}

func containsInt64(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}

	return false
}
