package cache //nolint:testpackage // exercises the unexported bitstring encoding helpers directly

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeysToBitstringRoundTrip(t *testing.T) {
	t.Parallel()

	keys := []int64{0, 3, 7, 15}

	bitstr := keysToBitstring(keys, 16)
	require.Len(t, bitstr, 16)

	got := bitstringToKeys(bitstr)
	require.Equal(t, keys, got)
}

func TestKeysToBitstringIgnoresOutOfRangeKeys(t *testing.T) {
	t.Parallel()

	bitstr := keysToBitstring([]int64{-1, 100}, 8)
	require.Equal(t, "00000000", bitstr)
}

func TestBitstringToKeysEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, bitstringToKeys("0000"))
}
