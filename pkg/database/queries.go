package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/accented-ai/partitioncache/internal/errs"
)

type QueryHelper struct {
	pool Querier
}

func NewQueryHelper(pool Querier) *QueryHelper {
	return &QueryHelper{pool: pool}
}

func (qh *QueryHelper) FetchAll(
	ctx context.Context,
	query string,
	scanFunc func(pgx.Rows) error,
	args ...any,
) error {
	rows, err := qh.pool.Query(ctx, query, args...)
	if err != nil {
		return errs.Wrap("execute query", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scanFunc(rows); err != nil {
			return errs.Wrap("scan row", err)
		}
	}

	if err := rows.Err(); err != nil {
		return errs.Wrap("iterate rows", err)
	}

	return nil
}

func (qh *QueryHelper) FetchOne(
	ctx context.Context,
	query string,
	scanFunc func(pgx.Row) error,
	args ...any,
) error {
	row := qh.pool.QueryRow(ctx, query, args...)
	if err := scanFunc(row); err != nil {
		return errs.Wrap("scan row", err)
	}

	return nil
}
