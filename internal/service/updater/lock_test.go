package updater

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockIsExclusive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "update.lock")

	first, err := AcquireLock(ctx, path)
	require.NoError(t, err)
	require.Equal(t, path, first.Path())

	_, err = AcquireLock(ctx, path)
	require.ErrorIs(t, err, ErrUpdateInProgress)
	require.ErrorIs(t, err, ErrLock)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := AcquireLock(ctx, path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}
