package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/schema"
)

func TestValidateIdentifierAcceptsPlainNames(t *testing.T) {
	t.Parallel()

	require.NoError(t, schema.ValidateIdentifier("customer_id"))
	require.NoError(t, schema.ValidateIdentifier("_private"))
	require.NoError(t, schema.ValidateIdentifier("p0"))
}

func TestValidateIdentifierRejectsInvalidNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "1leading-digit", "has space", "quote\"", "drop table;"} {
		err := schema.ValidateIdentifier(name)
		require.Error(t, err)
		require.Equal(t, errs.KindConfiguration, errs.KindOf(err))
	}
}

func TestDatatypeSupportsBitsizeOnlyForInteger(t *testing.T) {
	t.Parallel()

	require.True(t, schema.DatatypeInteger.SupportsBitsize())
	require.False(t, schema.DatatypeFloat.SupportsBitsize())
	require.False(t, schema.DatatypeText.SupportsBitsize())
	require.False(t, schema.DatatypeGeometry.SupportsBitsize())
}

func TestDatatypeValid(t *testing.T) {
	t.Parallel()

	require.True(t, schema.DatatypeInteger.Valid())
	require.False(t, schema.Datatype("bogus").Valid())
}

func TestStatusIsTombstone(t *testing.T) {
	t.Parallel()

	require.False(t, schema.StatusOK.IsTombstone())
	require.True(t, schema.StatusTimeout.IsTombstone())
	require.True(t, schema.StatusFailed.IsTombstone())
	require.True(t, schema.StatusLimit.IsTombstone())
}

func TestStatusDominatesIsMonotone(t *testing.T) {
	t.Parallel()

	// A tombstone status dominates a prior ok, never the reverse.
	require.True(t, schema.StatusFailed.Dominates(schema.StatusOK))
	require.True(t, schema.StatusTimeout.Dominates(schema.StatusOK))
	require.True(t, schema.StatusLimit.Dominates(schema.StatusOK))
	require.False(t, schema.StatusOK.Dominates(schema.StatusFailed))

	// Two tombstones never dominate one another; the first one wins.
	require.False(t, schema.StatusFailed.Dominates(schema.StatusTimeout))
	require.False(t, schema.StatusTimeout.Dominates(schema.StatusFailed))

	// A status never dominates itself.
	require.False(t, schema.StatusOK.Dominates(schema.StatusOK))
	require.False(t, schema.StatusFailed.Dominates(schema.StatusFailed))
}
