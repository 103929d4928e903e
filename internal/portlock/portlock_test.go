package portlock

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := New(dir, "COM3")
	require.NoError(t, err)

	require.NoError(t, lock.TryAcquire())
	require.NoError(t, lock.Release())

	// Reacquirable after release.
	require.NoError(t, lock.TryAcquire())
	require.NoError(t, lock.Release())
}

func TestSecondHolderRejected(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir, "COM3")
	require.NoError(t, err)
	require.NoError(t, first.TryAcquire())
	defer first.Release()

	second, err := New(dir, "COM3")
	require.NoError(t, err)
	err = second.TryAcquire()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")
}

func TestDifferentPortsDoNotConflict(t *testing.T) {
	dir := t.TempDir()

	com3, err := New(dir, "COM3")
	require.NoError(t, err)
	com4, err := New(dir, "COM4")
	require.NoError(t, err)

	require.NoError(t, com3.TryAcquire())
	defer com3.Release()
	require.NoError(t, com4.TryAcquire())
	defer com4.Release()
}

func TestEmptyPortName(t *testing.T) {
	_, err := New(t.TempDir(), "")
	require.Error(t, err)
}

func TestDevicePathLockFileName(t *testing.T) {
	dir := t.TempDir()

	lock, err := New(dir, "/dev/ttyUSB0")
	require.NoError(t, err)

	base := filepath.Base(lock.Path())
	assert.Equal(t, "dev_ttyUSB0.lock", base)
	assert.False(t, strings.ContainsAny(base, "/\\:"))
}
