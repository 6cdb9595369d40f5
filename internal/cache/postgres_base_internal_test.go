package cache //nolint:testpackage // exercises the unexported postgresBase table-naming helpers directly

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/errs"
)

func TestPostgresBaseCacheTableName(t *testing.T) {
	t.Parallel()

	b := postgresBase{tablePrefix: "pc"}

	table, err := b.cacheTable("customer_id")
	require.NoError(t, err)
	require.Equal(t, "pc_cache_customer_id", table)
}

func TestPostgresBaseCacheTableRejectsInvalidIdentifier(t *testing.T) {
	t.Parallel()

	b := postgresBase{tablePrefix: "pc"}

	_, err := b.cacheTable("bad; drop table users")
	require.Error(t, err)
	require.Equal(t, errs.KindConfiguration, errs.KindOf(err))
}

func TestPostgresBaseMetadataAndQueriesTableNames(t *testing.T) {
	t.Parallel()

	b := postgresBase{tablePrefix: "pc"}

	require.Equal(t, "pc_partition_metadata", b.metadataTable())
	require.Equal(t, "pc_queries", b.queriesTable())
}

func TestNullIfEmpty(t *testing.T) {
	t.Parallel()

	require.Nil(t, nullIfEmpty(""))
	require.Equal(t, "x", nullIfEmpty("x"))
}
