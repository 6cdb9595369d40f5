package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/schema"
	"github.com/accented-ai/partitioncache/pkg/database"
)

// BitstringBackend is the §4.2 "fixed-width bitstring" backend: each key is
// a fixed bit position in a Postgres `varbit` column sized to the
// partition key's configured bitsize, so intersection reduces to a
// database-side bitwise AND (`&`) rather than a row-by-row merge.
type BitstringBackend struct {
	base postgresBase
}

func NewBitstringBackend(pool database.Querier, tablePrefix string) *BitstringBackend {
	return &BitstringBackend{base: postgresBase{pool: pool, tablePrefix: tablePrefix, payloadDDL: "bits varbit"}}
}

func (b *BitstringBackend) RegisterPartitionKey(ctx context.Context, partitionKey string, datatype schema.Datatype, bitsize int) error {
	if !datatype.SupportsBitsize() {
		return errs.New("cache.BitstringBackend.RegisterPartitionKey", errs.KindConfiguration,
			"bitstring backend requires an integer partition key")
	}

	if bitsize <= 0 {
		return errs.New("cache.BitstringBackend.RegisterPartitionKey", errs.KindConfiguration,
			"bitstring backend requires a positive bitsize")
	}

	return b.base.registerPartitionKey(ctx, partitionKey, datatype, bitsize)
}

func (b *BitstringBackend) Get(ctx context.Context, partitionKey, hash string) (Value, bool, error) {
	table, err := b.base.cacheTable(partitionKey)
	if err != nil {
		return Value{}, false, err
	}

	var (
		kind   int
		reason *string
		bitstr *string
	)

	row := b.base.pool.QueryRow(ctx, fmt.Sprintf(`SELECT kind, reason, bits::text FROM %s WHERE hash = $1`, table), hash)
	if err := row.Scan(&kind, &reason, &bitstr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Value{}, false, nil
		}

		return Value{}, false, errs.Wrap("fetch bitstring entry", err)
	}

	if Kind(kind) != KindSet {
		return decodeRow(Kind(kind), reason, nil), true, nil
	}

	keys := []int64(nil)
	if bitstr != nil {
		keys = bitstringToKeys(*bitstr)
	}

	return SetValue(keys), true, nil
}

func (b *BitstringBackend) Exists(ctx context.Context, partitionKey, hash string) (bool, error) {
	return b.base.exists(ctx, partitionKey, hash)
}

func (b *BitstringBackend) FilterExistingKeys(ctx context.Context, partitionKey string, hashes []string) ([]string, []string, error) {
	return b.base.filterExistingKeys(ctx, partitionKey, hashes)
}

func (b *BitstringBackend) SetCache(ctx context.Context, partitionKey, hash string, value Value, query string) error {
	table, err := b.base.cacheTable(partitionKey)
	if err != nil {
		return err
	}

	meta, err := b.partitionMeta(ctx, partitionKey)
	if err != nil {
		return err
	}

	var bitstr *string
	if value.Kind == KindSet {
		s := keysToBitstring(value.Keys, meta.Bitsize)
		bitstr = &s
	}

	sql := fmt.Sprintf(`
INSERT INTO %s (hash, kind, reason, bits) VALUES ($1, $2, $3, $4::varbit)
ON CONFLICT (hash) DO UPDATE SET
  kind = CASE WHEN %[1]s.kind = %d THEN %[1]s.kind ELSE EXCLUDED.kind END,
  reason = CASE WHEN %[1]s.kind = %d THEN %[1]s.reason ELSE EXCLUDED.reason END,
  bits = CASE WHEN %[1]s.kind = %d THEN %[1]s.bits ELSE EXCLUDED.bits END`,
		table, KindTombstone, KindTombstone, KindTombstone)

	if _, err := b.base.pool.Exec(ctx, sql, hash, int(value.Kind), nullableReason(value), bitstr); err != nil {
		return errs.Wrap("store bitstring entry", err)
	}

	return b.base.setStatus(ctx, partitionKey, hash, query, statusForValue(value))
}

func (b *BitstringBackend) SetNull(ctx context.Context, partitionKey, hash, query string) error {
	return b.SetCache(ctx, partitionKey, hash, NullValue(), query)
}

func (b *BitstringBackend) SetQueryStatus(ctx context.Context, partitionKey, hash, query string, status schema.Status) error {
	if status.IsTombstone() {
		return b.SetCache(ctx, partitionKey, hash, TombstoneValue(string(status)), query)
	}

	return b.base.setStatus(ctx, partitionKey, hash, query, status)
}

// GetIntersected delegates the AND-reduction to Postgres itself via the
// bit_and aggregate, the one operation where the bitstring encoding earns
// its keep over the array backend.
func (b *BitstringBackend) GetIntersected(ctx context.Context, partitionKey string, hashes []string) ([]int64, int, error) {
	table, err := b.base.cacheTable(partitionKey)
	if err != nil {
		return nil, 0, err
	}

	if len(hashes) == 0 {
		return nil, 0, nil
	}

	var matched int

	row := b.base.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE hash = ANY($1) AND kind != %d`, table, KindTombstone), hashes)
	if err := row.Scan(&matched); err != nil {
		return nil, 0, errs.Wrap("count bitstring rows", err)
	}

	if matched == 0 {
		return nil, 0, nil
	}

	// bit_and(bits) over the non-tombstoned rows: a KindNull row stores bits
	// = NULL, which Postgres's aggregate skips on its own, so it never
	// narrows the intersection — exactly the "universal set" identity §4.2
	// requires.
	var result *string

	row = b.base.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT bit_and(bits)::text FROM %s WHERE hash = ANY($1) AND kind != %d`, table, KindTombstone), hashes)
	if err := row.Scan(&result); err != nil {
		return nil, 0, errs.Wrap("intersect bitstrings", err)
	}

	if result == nil {
		return nil, matched, nil
	}

	return bitstringToKeys(*result), matched, nil
}

// GetIntersectedLazy implements cache.LazyBackend for the bitstring
// backend (§4.2 get_intersected_lazy): the AND-reduction runs inside the
// sub-query itself via bit_and, and generate_series/get_bit unpacks the
// resulting bit-vector into the set of integer positions that are set,
// so the caller's own query can embed it without a round trip through the
// application.
func (b *BitstringBackend) GetIntersectedLazy(ctx context.Context, partitionKey string, hashes []string) (string, int, error) {
	table, err := b.base.cacheTable(partitionKey)
	if err != nil {
		return "", 0, err
	}

	if len(hashes) == 0 {
		return "", 0, nil
	}

	meta, err := b.partitionMeta(ctx, partitionKey)
	if err != nil {
		return "", 0, err
	}

	hashList := sqlStringArray(hashes)

	var matched, concrete int

	row := b.base.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*) FILTER (WHERE kind != %d), count(*) FILTER (WHERE kind = %d) FROM %s WHERE hash = ANY(%s)`,
		KindTombstone, KindSet, table, hashList))
	if err := row.Scan(&matched, &concrete); err != nil {
		return "", 0, errs.Wrap("count lazy bitstring rows", err)
	}

	if matched == 0 {
		return "", 0, nil
	}

	if concrete == 0 {
		// every matched hash was KindNull: universal set, no restriction.
		// bit_and over all-NULL bits rows would itself be NULL and make
		// get_bit(NULL, ...) = 1 vacuously false, so this must be handled
		// before building the subquery rather than left to SQL.
		return "", matched, nil
	}

	subquery := fmt.Sprintf(
		`(SELECT gs AS k FROM generate_series(0, %d) AS gs
WHERE get_bit((SELECT bit_and(bits) FROM %s WHERE hash = ANY(%s) AND kind != %d), gs) = 1)`,
		meta.Bitsize-1, table, hashList, KindTombstone)

	return subquery, matched, nil
}

func (b *BitstringBackend) GetAllKeys(ctx context.Context, partitionKey string) ([]string, error) {
	return b.base.getAllKeys(ctx, partitionKey)
}

func (b *BitstringBackend) GetAllQueries(ctx context.Context, partitionKey string) (map[string]string, error) {
	return b.base.getAllQueries(ctx, partitionKey)
}

func (b *BitstringBackend) GetPartitionKeys(ctx context.Context) ([]schema.PartitionKeyMeta, error) {
	return b.base.getPartitionKeys(ctx)
}

func (b *BitstringBackend) Delete(ctx context.Context, partitionKey, hash string) error {
	return b.base.delete(ctx, partitionKey, hash)
}

func (b *BitstringBackend) DeletePartition(ctx context.Context, partitionKey string) error {
	return b.base.deletePartition(ctx, partitionKey)
}

func (b *BitstringBackend) Close() error { return nil }

func (b *BitstringBackend) partitionMeta(ctx context.Context, partitionKey string) (schema.PartitionKeyMeta, error) {
	metas, err := b.base.getPartitionKeys(ctx)
	if err != nil {
		return schema.PartitionKeyMeta{}, err
	}

	for _, m := range metas {
		if m.Name == partitionKey {
			return m, nil
		}
	}

	return schema.PartitionKeyMeta{}, errs.New("cache.BitstringBackend", errs.KindConfiguration, "partition key not registered: "+partitionKey)
}

func keysToBitstring(keys []int64, bitsize int) string {
	buf := make([]byte, bitsize)
	for i := range buf {
		buf[i] = '0'
	}

	for _, k := range keys {
		if k >= 0 && int(k) < bitsize {
			buf[k] = '1'
		}
	}

	return string(buf)
}

func bitstringToKeys(bitstr string) []int64 {
	var out []int64

	for i, c := range bitstr {
		if c == '1' {
			out = append(out, int64(i))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
