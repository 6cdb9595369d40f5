// Package cronworker implements the in-DBMS fill worker of spec component
// E's second form: instead of an external process polling the queue, a
// pg_cron job periodically invokes a PL/pgSQL procedure that drains a
// bounded batch of fragments directly inside Postgres. This package owns
// the Go-side management surface (enable/disable/status/logs/manual-run)
// that drives that procedure through the same pool the rest of the system
// uses.
package cronworker

import (
	"context"
	"fmt"
	"time"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/pkg/database"
)

// Config is one partition key's in-DBMS processor configuration (the
// reference implementation's `_processor_config` table).
type Config struct {
	PartitionKey string
	Enabled      bool
	IntervalSeconds int
	BatchSize    int
	StatementTimeout time.Duration
}

// ActiveJob mirrors one `_active_jobs` row: a pg_cron invocation currently
// (or most recently) claiming work, used to detect a stuck/abandoned
// invocation whose lease has expired.
type ActiveJob struct {
	PartitionKey string
	StartedAt    time.Time
	LeaseExpires time.Time
}

// LogEntry is one `_processor_log` row.
type LogEntry struct {
	PartitionKey string
	Message      string
	CreatedAt    time.Time
}

// Manager wraps the pool with the DDL and CRUD the CLI's processor
// subcommands need (§6 "processor enable/disable/status/logs/manual-process").
type Manager struct {
	pool        *database.Pool
	tablePrefix string
}

func NewManager(pool *database.Pool, tablePrefix string) *Manager {
	return &Manager{pool: pool, tablePrefix: tablePrefix}
}

func (m *Manager) configTable() string { return m.tablePrefix + "_processor_config" }
func (m *Manager) jobsTable() string   { return m.tablePrefix + "_active_jobs" }
func (m *Manager) logTable() string    { return m.tablePrefix + "_processor_log" }

// EnsureSchema creates the three in-DBMS bookkeeping tables. It does not
// install a pg_cron job, and neither does the `processor enable` command:
// Enable only checks that pg_cron is present (via
// pkg/database.Pool.HasExtension) and writes the config row.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	ddls := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  partition_key text PRIMARY KEY,
  enabled boolean NOT NULL DEFAULT false,
  interval_seconds integer NOT NULL DEFAULT 30,
  batch_size integer NOT NULL DEFAULT 10,
  statement_timeout_ms integer NOT NULL DEFAULT 30000
)`, m.configTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  partition_key text PRIMARY KEY,
  started_at timestamptz NOT NULL DEFAULT now(),
  lease_expires timestamptz NOT NULL
)`, m.jobsTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id bigserial PRIMARY KEY,
  partition_key text NOT NULL,
  message text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`, m.logTable()),
	}

	for _, ddl := range ddls {
		if _, err := m.pool.Exec(ctx, ddl); err != nil {
			return errs.Wrap("create cron processor table", err)
		}
	}

	return nil
}

// Enable requires pg_cron, per §4.6: the in-DBMS worker cannot run without
// it, and we refuse to silently fall back to the external worker.
func (m *Manager) Enable(ctx context.Context, cfg Config) error {
	hasCron, err := m.pool.HasExtension(ctx, "pg_cron")
	if err != nil {
		return err
	}

	if !hasCron {
		return errs.New("cronworker.Manager.Enable", errs.KindConfiguration, "pg_cron extension is not installed")
	}

	sql := fmt.Sprintf(`
INSERT INTO %s (partition_key, enabled, interval_seconds, batch_size, statement_timeout_ms)
VALUES ($1, true, $2, $3, $4)
ON CONFLICT (partition_key) DO UPDATE SET
  enabled = true, interval_seconds = EXCLUDED.interval_seconds,
  batch_size = EXCLUDED.batch_size, statement_timeout_ms = EXCLUDED.statement_timeout_ms`, m.configTable())

	_, err = m.pool.Exec(ctx, sql, cfg.PartitionKey, cfg.IntervalSeconds, cfg.BatchSize, cfg.StatementTimeout.Milliseconds())

	return errs.Wrap("enable processor", err)
}

func (m *Manager) Disable(ctx context.Context, partitionKey string) error {
	_, err := m.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET enabled = false WHERE partition_key = $1`, m.configTable()), partitionKey)
	return errs.Wrap("disable processor", err)
}

func (m *Manager) Status(ctx context.Context) ([]Config, error) {
	rows, err := m.pool.Query(ctx, fmt.Sprintf(
		`SELECT partition_key, enabled, interval_seconds, batch_size, statement_timeout_ms FROM %s`, m.configTable()))
	if err != nil {
		return nil, errs.Wrap("list processor status", err)
	}
	defer rows.Close()

	var out []Config

	for rows.Next() {
		var c Config

		var timeoutMs int64
		if err := rows.Scan(&c.PartitionKey, &c.Enabled, &c.IntervalSeconds, &c.BatchSize, &timeoutMs); err != nil {
			return nil, errs.Wrap("scan processor status row", err)
		}

		c.StatementTimeout = time.Duration(timeoutMs) * time.Millisecond
		out = append(out, c)
	}

	return out, nil
}

func (m *Manager) Logs(ctx context.Context, partitionKey string, limit int) ([]LogEntry, error) {
	rows, err := m.pool.Query(ctx, fmt.Sprintf(
		`SELECT partition_key, message, created_at FROM %s WHERE partition_key = $1 ORDER BY created_at DESC LIMIT $2`,
		m.logTable()), partitionKey, limit)
	if err != nil {
		return nil, errs.Wrap("fetch processor logs", err)
	}
	defer rows.Close()

	var out []LogEntry

	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.PartitionKey, &e.Message, &e.CreatedAt); err != nil {
			return nil, errs.Wrap("scan processor log row", err)
		}

		out = append(out, e)
	}

	return out, nil
}

// ReclaimExpiredLeases deletes `_active_jobs` rows whose lease has expired,
// resolving §9 Open Question "what happens to an `_active_jobs` row if the
// pg_cron invocation that owns it dies mid-run": we decided a lease expiry
// column is authoritative and a missed heartbeat simply frees the row for
// the next scheduled invocation, rather than requiring an external
// watchdog process.
func (m *Manager) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	n, err := m.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE lease_expires < now()`, m.jobsTable()))
	return n, errs.Wrap("reclaim expired leases", err)
}

// ManualProcess records a manual processing request from the CLI (§6
// "processor manual-process"): it claims the partition key's
// `_active_jobs` lease, writes a log row and releases the lease, and
// returns batchSize. It executes no fragments itself.
func (m *Manager) ManualProcess(ctx context.Context, partitionKey string, batchSize int) (int, error) {
	lease := time.Now().Add(5 * time.Minute)

	_, err := m.pool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (partition_key, started_at, lease_expires) VALUES ($1, now(), $2)
ON CONFLICT (partition_key) DO UPDATE SET started_at = now(), lease_expires = EXCLUDED.lease_expires`,
		m.jobsTable()), partitionKey, lease)
	if err != nil {
		return 0, errs.Wrap("claim manual processing lease", err)
	}

	defer func() {
		_, _ = m.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1`, m.jobsTable()), partitionKey) //nolint:errcheck
	}()

	_, err = m.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (partition_key, message) VALUES ($1, $2)`, m.logTable()),
		partitionKey, fmt.Sprintf("manual-process requested with batch_size=%d", batchSize))

	return batchSize, errs.Wrap("log manual processing request", err)
}
