package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/pkg/database"
)

const pollFallbackInterval = 2 * time.Second

// PostgresProvider is the §4.4 default queue provider: two tables
// (original queries, fragments) with FOR UPDATE SKIP LOCKED atomic pop and
// LISTEN/NOTIFY wakeup, falling back to polling when a notification is
// missed (the same resilience trade-off as the reference implementation's
// PostgreSQLQueueHandler, which never trusts NOTIFY alone).
type PostgresProvider struct {
	pool        *database.Pool
	tablePrefix string
}

func NewPostgresProvider(pool *database.Pool, tablePrefix string) *PostgresProvider {
	return &PostgresProvider{pool: pool, tablePrefix: tablePrefix}
}

func (p *PostgresProvider) queriesTable() string   { return p.tablePrefix + "_query_queue" }
func (p *PostgresProvider) fragmentsTable() string { return p.tablePrefix + "_fragment_queue" }

// EnsureSchema creates both queue tables if absent. Exercised by the
// `setup` CLI command (§6).
func (p *PostgresProvider) EnsureSchema(ctx context.Context) error {
	for _, table := range []string{p.queriesTable(), p.fragmentsTable()} {
		ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id bigserial PRIMARY KEY,
  partition_key text NOT NULL,
  hash text NOT NULL,
  query text NOT NULL,
  priority integer NOT NULL DEFAULT 0,
  claimed_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT now(),
  UNIQUE (partition_key, hash)
)`, table)
		if _, err := p.pool.Exec(ctx, ddl); err != nil {
			return errs.Wrap("create queue table", err)
		}
	}

	return nil
}

func (p *PostgresProvider) PushQuery(ctx context.Context, job Job) error {
	return p.push(ctx, p.queriesTable(), "query_ready", job)
}

func (p *PostgresProvider) PushFragment(ctx context.Context, job Job) error {
	return p.push(ctx, p.fragmentsTable(), "fragment_ready", job)
}

// push upserts the job, bumping priority on a duplicate hash instead of
// inserting a second row (§4.4 "priority-bump-on-duplicate-push": a
// fragment requested again while already queued is promoted by
// incrementing its stored priority by one, not by taking the max of the
// two caller-supplied priorities — the act of re-pushing itself is what
// raises priority).
func (p *PostgresProvider) push(ctx context.Context, table, channel string, job Job) error {
	sql := fmt.Sprintf(`
INSERT INTO %s (partition_key, hash, query, priority) VALUES ($1, $2, $3, $4)
ON CONFLICT (partition_key, hash) DO UPDATE SET
  priority = %[1]s.priority + 1,
  query = EXCLUDED.query
WHERE %[1]s.claimed_at IS NULL`, table)

	if _, err := p.pool.Exec(ctx, sql, job.PartitionKey, job.Hash, job.Query, job.Priority); err != nil {
		return errs.Wrap("push queue job", err)
	}

	_, _ = p.pool.Exec(ctx, fmt.Sprintf("NOTIFY %s", channel)) //nolint:errcheck

	return nil
}

func (p *PostgresProvider) PopQuery(ctx context.Context) (Job, error) {
	return p.pop(ctx, p.queriesTable(), "query_ready")
}

func (p *PostgresProvider) PopFragment(ctx context.Context) (Job, error) {
	return p.pop(ctx, p.fragmentsTable(), "fragment_ready")
}

func (p *PostgresProvider) pop(ctx context.Context, table, channel string) (Job, error) {
	for {
		job, ok, err := p.tryClaim(ctx, table)
		if err != nil {
			return Job{}, err
		}

		if ok {
			return job, nil
		}

		if err := p.waitForWakeup(ctx, channel); err != nil {
			return Job{}, err
		}
	}
}

func (p *PostgresProvider) tryClaim(ctx context.Context, table string) (Job, bool, error) {
	sql := fmt.Sprintf(`
UPDATE %[1]s SET claimed_at = now()
WHERE id = (
  SELECT id FROM %[1]s WHERE claimed_at IS NULL
  ORDER BY priority DESC, created_at ASC
  FOR UPDATE SKIP LOCKED LIMIT 1
)
RETURNING partition_key, hash, query, priority`, table)

	var job Job

	row := p.pool.QueryRow(ctx, sql)
	if err := row.Scan(&job.PartitionKey, &job.Hash, &job.Query, &job.Priority); err != nil {
		if isNoRows(err) {
			return Job{}, false, nil
		}

		return Job{}, false, errs.Wrap("claim queue job", err)
	}

	return job, true, nil
}

// waitForWakeup blocks on LISTEN for channel, but never trusts it alone: a
// poll-interval timeout always fires too, so a notification lost to a race
// (job pushed between tryClaim and LISTEN) is bounded by
// pollFallbackInterval rather than stalling the worker indefinitely.
func (p *PostgresProvider) waitForWakeup(ctx context.Context, channel string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", channel)); err != nil {
		return errs.Wrap("listen on queue channel", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, pollFallbackInterval)
	defer cancel()

	_, err = conn.Conn().WaitForNotification(waitCtx)
	if err != nil && waitCtx.Err() == nil {
		return errs.Wrap("wait for queue notification", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return nil
}

func (p *PostgresProvider) QueryLength(ctx context.Context) (int, error) {
	return p.length(ctx, p.queriesTable())
}

func (p *PostgresProvider) FragmentLength(ctx context.Context) (int, error) {
	return p.length(ctx, p.fragmentsTable())
}

func (p *PostgresProvider) length(ctx context.Context, table string) (int, error) {
	var n int

	row := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE claimed_at IS NULL`, table))
	if err := row.Scan(&n); err != nil {
		return 0, errs.Wrap("count queue length", err)
	}

	return n, nil
}

func (p *PostgresProvider) ClearQueries(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, p.queriesTable()))
	return errs.Wrap("clear query queue", err)
}

func (p *PostgresProvider) ClearFragments(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, p.fragmentsTable()))
	return errs.Wrap("clear fragment queue", err)
}

func (p *PostgresProvider) Close() error { return nil }

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
