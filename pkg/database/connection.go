// Package database wraps a pgx connection pool the way pgtofu's
// pkg/database did, generalized from schema introspection to the
// query/exec surface the cache backends, queue handlers and fill workers
// need.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accented-ai/partitioncache/internal/errs"
)

// Querier is the narrow surface every backend/queue handler depends on,
// so tests can substitute a fake pool without a live Postgres.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

type Pool struct {
	pool *pgxpool.Pool
}

func NewPoolFromURL(ctx context.Context, url string) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errs.Wrap("parse pool config", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errs.Wrap("create connection pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap("ping database", err)
	}

	return &Pool{pool: pool}, nil
}

func (p *Pool) Close() {
	p.pool.Close()
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	return rows, errs.Wrap("query", err)
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errs.Wrap("exec", err)
	}

	return tag.RowsAffected(), nil
}

// Acquire hands out a dedicated connection from the pool. The Postgres
// queue provider uses it for LISTEN; the fill worker runs its fragment
// queries through Query instead.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, errs.Wrap("acquire connection", err)
	}

	return conn, nil
}

// WithStatementTimeout runs fn against a dedicated connection with the
// given statement_timeout applied, matching §4.5's "every DBMS call in an
// executor job is issued with the configured statement timeout".
func (p *Pool) WithStatementTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context, pgx.Tx) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return errs.Wrap("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if timeout > 0 {
		ms := timeout.Milliseconds()
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)); err != nil {
			return errs.Wrap("set statement_timeout", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap("commit tx", err)
	}

	return nil
}

func (p *Pool) CurrentDatabase(ctx context.Context) (string, error) {
	var dbName string

	err := p.pool.QueryRow(ctx, "SELECT current_database()").Scan(&dbName)
	if err != nil {
		return "", errs.Wrap("get current database", err)
	}

	return dbName, nil
}

// HasExtension is kept from the teacher's introspection helpers; the fill
// pipeline uses it to check for pg_cron before enabling the in-DBMS worker.
func (p *Pool) HasExtension(ctx context.Context, name string) (bool, error) {
	var exists bool

	err := p.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = $1)", name).Scan(&exists)
	if err != nil {
		return false, errs.Wrap("check extension", err)
	}

	return exists, nil
}
