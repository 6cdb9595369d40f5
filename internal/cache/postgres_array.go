package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/schema"
	"github.com/accented-ai/partitioncache/pkg/database"
)

// ArrayBackend is the §4.2 "sorted array" backend: each cache entry stores
// its value set as a native Postgres bigint[] column, sorted.
// GetIntersected intersects the fetched arrays in memory via per-fragment
// key sets; it does not merge-join the sorted arrays.
type ArrayBackend struct {
	base postgresBase
}

func NewArrayBackend(pool database.Querier, tablePrefix string) *ArrayBackend {
	return &ArrayBackend{base: postgresBase{pool: pool, tablePrefix: tablePrefix, payloadDDL: "keys bigint[]"}}
}

func (a *ArrayBackend) RegisterPartitionKey(ctx context.Context, partitionKey string, datatype schema.Datatype, bitsize int) error {
	return a.base.registerPartitionKey(ctx, partitionKey, datatype, bitsize)
}

func (a *ArrayBackend) Get(ctx context.Context, partitionKey, hash string) (Value, bool, error) {
	table, err := a.base.cacheTable(partitionKey)
	if err != nil {
		return Value{}, false, err
	}

	var (
		kind   int
		reason *string
		keys   []int64
	)

	row := a.base.pool.QueryRow(ctx, fmt.Sprintf(`SELECT kind, reason, keys FROM %s WHERE hash = $1`, table), hash)
	if err := row.Scan(&kind, &reason, &keys); err != nil {
		if isNoRows(err) {
			return Value{}, false, nil
		}

		return Value{}, false, errs.Wrap("fetch cache entry", err)
	}

	return decodeRow(Kind(kind), reason, keys), true, nil
}

func (a *ArrayBackend) Exists(ctx context.Context, partitionKey, hash string) (bool, error) {
	return a.base.exists(ctx, partitionKey, hash)
}

func (a *ArrayBackend) FilterExistingKeys(ctx context.Context, partitionKey string, hashes []string) ([]string, []string, error) {
	return a.base.filterExistingKeys(ctx, partitionKey, hashes)
}

func (a *ArrayBackend) SetCache(ctx context.Context, partitionKey, hash string, value Value, query string) error {
	table, err := a.base.cacheTable(partitionKey)
	if err != nil {
		return err
	}

	sorted := append([]int64(nil), value.Keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	sql := fmt.Sprintf(`
INSERT INTO %s (hash, kind, reason, keys) VALUES ($1, $2, $3, $4)
ON CONFLICT (hash) DO UPDATE SET
  kind = CASE WHEN %[1]s.kind = %d THEN %[1]s.kind ELSE EXCLUDED.kind END,
  reason = CASE WHEN %[1]s.kind = %d THEN %[1]s.reason ELSE EXCLUDED.reason END,
  keys = CASE WHEN %[1]s.kind = %d THEN %[1]s.keys ELSE EXCLUDED.keys END`,
		table, KindTombstone, KindTombstone, KindTombstone)

	if _, err := a.base.pool.Exec(ctx, sql, hash, int(value.Kind), nullableReason(value), sorted); err != nil {
		return errs.Wrap("store cache entry", err)
	}

	return a.base.setStatus(ctx, partitionKey, hash, query, statusForValue(value))
}

func (a *ArrayBackend) SetNull(ctx context.Context, partitionKey, hash, query string) error {
	return a.SetCache(ctx, partitionKey, hash, NullValue(), query)
}

func (a *ArrayBackend) SetQueryStatus(ctx context.Context, partitionKey, hash, query string, status schema.Status) error {
	if status.IsTombstone() {
		return a.SetCache(ctx, partitionKey, hash, TombstoneValue(string(status)), query)
	}

	return a.base.setStatus(ctx, partitionKey, hash, query, status)
}

func (a *ArrayBackend) GetIntersected(ctx context.Context, partitionKey string, hashes []string) ([]int64, int, error) {
	table, err := a.base.cacheTable(partitionKey)
	if err != nil {
		return nil, 0, err
	}

	if len(hashes) == 0 {
		return nil, 0, nil
	}

	rows, err := a.base.pool.Query(ctx, fmt.Sprintf(`SELECT hash, kind, keys FROM %s WHERE hash = ANY($1)`, table), hashes)
	if err != nil {
		return nil, 0, errs.Wrap("fetch intersection rows", err)
	}
	defer rows.Close()

	type found struct {
		kind Kind
		keys []int64
	}

	byHash := make(map[string]found, len(hashes))

	for rows.Next() {
		var (
			hash string
			kind int
			keys []int64
		)

		if err := rows.Scan(&hash, &kind, &keys); err != nil {
			return nil, 0, errs.Wrap("scan intersection row", err)
		}

		if Kind(kind) == KindTombstone {
			continue
		}

		byHash[hash] = found{kind: Kind(kind), keys: keys}
	}

	var (
		result  map[int64]bool
		matched int
		narrow  bool
	)

	for _, h := range hashes {
		f, ok := byHash[h]
		if !ok {
			continue
		}

		matched++

		if f.kind == KindNull {
			continue
		}

		if !narrow {
			narrow = true
			result = make(map[int64]bool, len(f.keys))
			for _, k := range f.keys {
				result[k] = true
			}

			continue
		}

		present := make(map[int64]bool, len(f.keys))
		for _, k := range f.keys {
			present[k] = true
		}

		for k := range result {
			if !present[k] {
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

// GetIntersectedLazy implements cache.LazyBackend for the array backend
// (§4.2 get_intersected_lazy): the intersection is expressed as a
// GROUP BY/HAVING count-match over the unnested key arrays of every
// matched, non-tombstoned, non-NULL row, so the caller's own query can
// embed it as a sub-query instead of pulling the keys into the
// application first.
func (a *ArrayBackend) GetIntersectedLazy(ctx context.Context, partitionKey string, hashes []string) (string, int, error) {
	table, err := a.base.cacheTable(partitionKey)
	if err != nil {
		return "", 0, err
	}

	if len(hashes) == 0 {
		return "", 0, nil
	}

	hashList := sqlStringArray(hashes)

	var matched, concrete int

	row := a.base.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*) FILTER (WHERE kind != %d), count(*) FILTER (WHERE kind = %d) FROM %s WHERE hash = ANY(%s)`,
		KindTombstone, KindSet, table, hashList))
	if err := row.Scan(&matched, &concrete); err != nil {
		return "", 0, errs.Wrap("count lazy intersection rows", err)
	}

	if matched == 0 {
		return "", 0, nil
	}

	if concrete == 0 {
		// every matched hash was KindNull: universal set, no restriction.
		return "", matched, nil
	}

	subquery := fmt.Sprintf(
		`(SELECT k FROM %s, LATERAL unnest(keys) AS k WHERE hash = ANY(%s) AND kind = %d GROUP BY k HAVING count(*) = %d)`,
		table, hashList, KindSet, concrete)

	return subquery, matched, nil
}

func sqlStringArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}

	return "ARRAY[" + strings.Join(quoted, ", ") + "]"
}

func (a *ArrayBackend) GetAllKeys(ctx context.Context, partitionKey string) ([]string, error) {
	return a.base.getAllKeys(ctx, partitionKey)
}

func (a *ArrayBackend) GetAllQueries(ctx context.Context, partitionKey string) (map[string]string, error) {
	return a.base.getAllQueries(ctx, partitionKey)
}

func (a *ArrayBackend) GetPartitionKeys(ctx context.Context) ([]schema.PartitionKeyMeta, error) {
	return a.base.getPartitionKeys(ctx)
}

func (a *ArrayBackend) Delete(ctx context.Context, partitionKey, hash string) error {
	return a.base.delete(ctx, partitionKey, hash)
}

func (a *ArrayBackend) DeletePartition(ctx context.Context, partitionKey string) error {
	return a.base.deletePartition(ctx, partitionKey)
}

func (a *ArrayBackend) Close() error { return nil }

func decodeRow(kind Kind, reason *string, keys []int64) Value {
	switch kind {
	case KindTombstone:
		r := ""
		if reason != nil {
			r = *reason
		}

		return TombstoneValue(r)
	case KindNull:
		return NullValue()
	default:
		return SetValue(keys)
	}
}

func nullableReason(v Value) any {
	if v.Kind == KindTombstone {
		return v.Reason
	}

	return nil
}

func statusForValue(v Value) schema.Status {
	if v.Kind == KindTombstone {
		return schema.Status(v.Reason)
	}

	return schema.StatusOK
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
