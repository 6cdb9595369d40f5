package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/errs"
)

func TestWrapPreservesNilAndExistingKind(t *testing.T) {
	t.Parallel()

	require.NoError(t, errs.Wrap("op", nil))

	base := errs.New("inner", errs.KindParse, "bad sql")
	wrapped := errs.Wrap("outer", base)

	require.Equal(t, errs.KindParse, errs.KindOf(wrapped))
	require.Contains(t, wrapped.Error(), "outer")
}

func TestWrapDefaultsToInternalKind(t *testing.T) {
	t.Parallel()

	wrapped := errs.Wrap("op", errors.New("boom"))

	require.Equal(t, errs.KindInternal, errs.KindOf(wrapped))
}

func TestWrapKindOverridesExistingKind(t *testing.T) {
	t.Parallel()

	base := errs.New("inner", errs.KindParse, "bad sql")
	wrapped := errs.WrapKind("outer", errs.KindTransient, base)

	require.Equal(t, errs.KindTransient, errs.KindOf(wrapped))
}

func TestKindOfDefaultsToInternalForPlainErrors(t *testing.T) {
	t.Parallel()

	require.Equal(t, errs.KindInternal, errs.KindOf(errors.New("plain")))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, errs.ExitCode(nil))
	require.Equal(t, 1, errs.ExitCode(errs.New("op", errs.KindConfiguration, "bad config")))
	require.Equal(t, 2, errs.ExitCode(errs.New("op", errs.KindInternal, "boom")))
	require.Equal(t, 2, errs.ExitCode(errs.New("op", errs.KindParse, "bad sql")))
	require.Equal(t, 2, errs.ExitCode(errs.New("op", errs.KindTransient, "retry")))
}

func TestUnwrapExposesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	wrapped := errs.Wrap("op", cause)

	require.ErrorIs(t, wrapped, cause)
}
