package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/schema"
	"github.com/accented-ai/partitioncache/pkg/database"
)

// postgresBase implements the bookkeeping shared by every SQL-resident
// backend (§4.2): the `<prefix>_partition_metadata` and `<prefix>_queries`
// tables, plus DDL for the per-partition `<prefix>_cache_<key>` value
// table whose payload column type each concrete backend supplies.
type postgresBase struct {
	pool       database.Querier
	tablePrefix string
	payloadDDL string // e.g. "keys bigint[]", "bits varbit", "bitmap bytea"
}

func (b *postgresBase) metadataTable() string { return b.tablePrefix + "_partition_metadata" }
func (b *postgresBase) queriesTable() string  { return b.tablePrefix + "_queries" }

func (b *postgresBase) cacheTable(partitionKey string) (string, error) {
	if err := schema.ValidateIdentifier(partitionKey); err != nil {
		return "", err
	}

	return b.tablePrefix + "_cache_" + partitionKey, nil
}

func (b *postgresBase) registerPartitionKey(ctx context.Context, partitionKey string, datatype schema.Datatype, bitsize int) error {
	if err := schema.ValidateIdentifier(partitionKey); err != nil {
		return err
	}

	if !datatype.Valid() {
		return errs.New("cache.registerPartitionKey", errs.KindConfiguration, "invalid datatype: "+string(datatype))
	}

	cacheTable, err := b.cacheTable(partitionKey)
	if err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  partition_key text PRIMARY KEY,
  datatype text NOT NULL,
  bitsize integer NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT now()
)`, b.metadataTable())
	if _, err := b.pool.Exec(ctx, ddl); err != nil {
		return errs.Wrap("create partition_metadata table", err)
	}

	ddl = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  partition_key text NOT NULL,
  hash text NOT NULL,
  query text,
  status text NOT NULL DEFAULT 'ok',
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (partition_key, hash)
)`, b.queriesTable())
	if _, err := b.pool.Exec(ctx, ddl); err != nil {
		return errs.Wrap("create queries table", err)
	}

	ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (hash text PRIMARY KEY, kind smallint NOT NULL, reason text, %s)`,
		cacheTable, b.payloadDDL)
	if _, err := b.pool.Exec(ctx, ddl); err != nil {
		return errs.Wrap("create cache table", err)
	}

	var existingDatatype string

	var existingBitsize int

	row := b.pool.QueryRow(ctx, fmt.Sprintf(`SELECT datatype, bitsize FROM %s WHERE partition_key = $1`, b.metadataTable()), partitionKey)

	switch err := row.Scan(&existingDatatype, &existingBitsize); {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = b.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (partition_key, datatype, bitsize) VALUES ($1, $2, $3)`,
			b.metadataTable()), partitionKey, string(datatype), bitsize)
		if err != nil {
			return errs.Wrap("register partition key", err)
		}
	case err != nil:
		return errs.Wrap("check existing partition key registration", err)
	case existingDatatype != string(datatype) || existingBitsize != bitsize:
		return errs.New("cache.registerPartitionKey", errs.KindConfiguration,
			fmt.Sprintf("partition key %s already registered as datatype=%s bitsize=%d", partitionKey, existingDatatype, existingBitsize))
	}

	return nil
}

func (b *postgresBase) exists(ctx context.Context, partitionKey, hash string) (bool, error) {
	table, err := b.cacheTable(partitionKey)
	if err != nil {
		return false, err
	}

	var exists bool

	row := b.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE hash = $1)`, table), hash)
	if err := row.Scan(&exists); err != nil {
		return false, errs.Wrap("check cache entry existence", err)
	}

	return exists, nil
}

func (b *postgresBase) filterExistingKeys(ctx context.Context, partitionKey string, hashes []string) ([]string, []string, error) {
	table, err := b.cacheTable(partitionKey)
	if err != nil {
		return nil, nil, err
	}

	rows, err := b.pool.Query(ctx, fmt.Sprintf(`SELECT hash FROM %s WHERE hash = ANY($1)`, table), hashes)
	if err != nil {
		return nil, nil, errs.Wrap("filter existing keys", err)
	}
	defer rows.Close()

	present := make(map[string]bool, len(hashes))

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, nil, errs.Wrap("scan existing key", err)
		}

		present[h] = true
	}

	var cached, missing []string

	for _, h := range hashes {
		if present[h] {
			cached = append(cached, h)
		} else {
			missing = append(missing, h)
		}
	}

	return cached, missing, nil
}

// setStatus upserts the queries bookkeeping row, applying the monotone
// status rule: a row already holding a tombstone status is never
// downgraded back to ok by a late-arriving success (§4.2 concurrency
// contract).
func (b *postgresBase) setStatus(ctx context.Context, partitionKey, hash, query string, status schema.Status) error {
	sql := fmt.Sprintf(`
INSERT INTO %s (partition_key, hash, query, status, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (partition_key, hash) DO UPDATE SET
  query = COALESCE(EXCLUDED.query, %[1]s.query),
  status = CASE WHEN %[1]s.status IN ('timeout', 'failed', 'limit') THEN %[1]s.status ELSE EXCLUDED.status END,
  updated_at = now()`, b.queriesTable())

	if _, err := b.pool.Exec(ctx, sql, partitionKey, hash, nullIfEmpty(query), string(status)); err != nil {
		return errs.Wrap("upsert query status", err)
	}

	return nil
}

func (b *postgresBase) getAllQueries(ctx context.Context, partitionKey string) (map[string]string, error) {
	rows, err := b.pool.Query(ctx, fmt.Sprintf(`SELECT hash, query FROM %s WHERE partition_key = $1`, b.queriesTable()), partitionKey)
	if err != nil {
		return nil, errs.Wrap("list queries", err)
	}
	defer rows.Close()

	out := make(map[string]string)

	for rows.Next() {
		var hash string

		var query *string
		if err := rows.Scan(&hash, &query); err != nil {
			return nil, errs.Wrap("scan query row", err)
		}

		if query != nil {
			out[hash] = *query
		}
	}

	return out, nil
}

func (b *postgresBase) getPartitionKeys(ctx context.Context) ([]schema.PartitionKeyMeta, error) {
	rows, err := b.pool.Query(ctx, fmt.Sprintf(`SELECT partition_key, datatype, bitsize, created_at FROM %s`, b.metadataTable()))
	if err != nil {
		return nil, errs.Wrap("list partition keys", err)
	}
	defer rows.Close()

	var out []schema.PartitionKeyMeta

	for rows.Next() {
		var m schema.PartitionKeyMeta

		var datatype string
		if err := rows.Scan(&m.Name, &datatype, &m.Bitsize, &m.CreatedAt); err != nil {
			return nil, errs.Wrap("scan partition key row", err)
		}

		m.Datatype = schema.Datatype(datatype)
		out = append(out, m)
	}

	return out, nil
}

func (b *postgresBase) getAllKeys(ctx context.Context, partitionKey string) ([]string, error) {
	table, err := b.cacheTable(partitionKey)
	if err != nil {
		return nil, err
	}

	rows, err := b.pool.Query(ctx, fmt.Sprintf(`SELECT hash FROM %s`, table))
	if err != nil {
		return nil, errs.Wrap("list cache keys", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, errs.Wrap("scan cache key", err)
		}

		out = append(out, h)
	}

	return out, nil
}

func (b *postgresBase) delete(ctx context.Context, partitionKey, hash string) error {
	table, err := b.cacheTable(partitionKey)
	if err != nil {
		return err
	}

	if _, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE hash = $1`, table), hash); err != nil {
		return errs.Wrap("delete cache entry", err)
	}

	_, err = b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1 AND hash = $2`, b.queriesTable()), partitionKey, hash)

	return errs.Wrap("delete query bookkeeping row", err)
}

func (b *postgresBase) deletePartition(ctx context.Context, partitionKey string) error {
	table, err := b.cacheTable(partitionKey)
	if err != nil {
		return err
	}

	if _, err := b.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return errs.Wrap("drop cache table", err)
	}

	if _, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1`, b.queriesTable()), partitionKey); err != nil {
		return errs.Wrap("delete query bookkeeping rows", err)
	}

	_, err = b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1`, b.metadataTable()), partitionKey)

	return errs.Wrap("delete partition metadata", err)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}
