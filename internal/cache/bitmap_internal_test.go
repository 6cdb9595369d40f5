package cache //nolint:testpackage // exercises the unexported bit-packing helpers directly

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackBitmapRoundTrip(t *testing.T) {
	t.Parallel()

	keys := []int64{5, 7, 8, 100, 101}

	buf, offset := packBitmap(keys)
	got := unpackBitmap(buf, offset)

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })

	require.Equal(t, keys, got)
}

func TestPackBitmapEmpty(t *testing.T) {
	t.Parallel()

	buf, offset := packBitmap(nil)
	require.Nil(t, buf)
	require.Equal(t, int64(0), offset)
	require.Empty(t, unpackBitmap(buf, offset))
}

func TestPackBitmapSingleKey(t *testing.T) {
	t.Parallel()

	buf, offset := packBitmap([]int64{42})
	got := unpackBitmap(buf, offset)

	require.Equal(t, []int64{42}, got)
}
