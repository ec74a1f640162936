package tileio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameReplacesDestination(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old")
	newPath := filepath.Join(dir, "new")

	require.NoError(t, os.WriteFile(oldPath, []byte("fresh"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("stale"), 0o644))

	require.NoError(t, Rename(oldPath, newPath))

	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err), "expected old path removed by rename")

	got, err := os.ReadFile(newPath)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestFsyncAcceptsOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("data")
	require.NoError(t, err)
	assert.NoError(t, Fsync(f))
}

func TestFsyncDirAcceptsExistingDirectory(t *testing.T) {
	assert.NoError(t, FsyncDir(t.TempDir()))
}

func TestFsyncDirRejectsMissingDirectory(t *testing.T) {
	err := FsyncDir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
