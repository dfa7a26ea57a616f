package fs

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRealLockTryLockReturnsErrWouldBlockWhenPathIsLocked(t *testing.T) {
	t.Parallel()

	r := NewReal()
	path := filepath.Join(t.TempDir(), "lock")

	lock1, err := r.Lock(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock1.Close() })

	lock2, err := r.TryLock(path)
	require.ErrorIs(t, err, ErrWouldBlock)
	require.Nil(t, lock2)

	require.NoError(t, lock1.Close())

	lock3, err := r.TryLock(path)
	require.NoError(t, err)
	require.NoError(t, lock3.Close())
}

func TestRealLockWithTimeoutReturnsErrWouldBlockWhenPathIsLocked(t *testing.T) {
	t.Parallel()

	r := NewReal()
	path := filepath.Join(t.TempDir(), "lock")

	lock1, err := r.Lock(path)
	require.NoError(t, err)
	defer lock1.Close()

	_, err = r.LockWithTimeout(path, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrWouldBlock)
	require.True(t, strings.Contains(err.Error(), "timed out"))
}

func TestRealLockWithTimeoutRejectsNonPositiveTimeout(t *testing.T) {
	t.Parallel()

	r := NewReal()
	path := filepath.Join(t.TempDir(), "lock")

	_, err := r.LockWithTimeout(path, 0)
	require.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestRealRLockAllowsMultipleReadersAndBlocksWriter(t *testing.T) {
	t.Parallel()

	r := NewReal()
	path := filepath.Join(t.TempDir(), "lock")

	r1, err := r.RLock(path)
	require.NoError(t, err)
	defer r1.Close()

	r2, err := r.RLock(path)
	require.NoError(t, err)
	defer r2.Close()

	_, err = r.TryLock(path)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestRealLocksDoNotInterfereAcrossPaths(t *testing.T) {
	t.Parallel()

	r := NewReal()
	dir := t.TempDir()
	path1 := filepath.Join(dir, "lock1")
	path2 := filepath.Join(dir, "lock2")

	l1, err := r.Lock(path1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l1.Close() })

	l2, err := r.TryLock(path2)
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}

func TestRealLockCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewReal()
	path := filepath.Join(t.TempDir(), "lock")

	lock, err := r.TryLock(path)
	require.NoError(t, err)
	require.NoError(t, lock.Close())
	require.NoError(t, lock.Close())
}

func TestChaosLockPassesThroughToWrappedFS(t *testing.T) {
	t.Parallel()

	real := NewReal()
	c := NewChaos(real, 1, ChaosConfig{})
	path := filepath.Join(t.TempDir(), "lock")

	lock, err := c.Lock(path)
	require.NoError(t, err)

	_, err = c.TryLock(path)
	require.True(t, errors.Is(err, ErrWouldBlock))

	require.NoError(t, lock.Close())
}
