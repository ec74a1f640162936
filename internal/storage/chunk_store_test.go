package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessera-mmo/core/internal/tilemap"
)

func TestChunkStoreRoundTripsSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewChunkStore(dir)
	require.NoError(t, err)
	defer store.Close()

	sprites := tilemap.NewStaticSpriteRegistry()
	c := tilemap.NewChunk(tilemap.ChunkPos{X: 1, Y: 2, Z: 0})

	require.NoError(t, store.SaveChunk(c))

	loaded, ok, err := store.LoadChunk(c.Pos, sprites)
	require.NoError(t, err)
	require.True(t, ok, "expected chunk to be found after save")
	require.Equal(t, c.Pos, loaded.Pos)
}

func TestChunkStoreLoadMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewChunkStore(dir)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load(tilemap.ChunkPos{X: 9, Y: 9, Z: 9})
	require.NoError(t, err)
	require.False(t, ok, "expected not-found for a chunk never stored")
}

func TestChunkStoreBatchStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewChunkStore(dir)
	require.NoError(t, err)
	defer store.Close()

	a := tilemap.ChunkPos{X: 0, Y: 0, Z: 0}
	b := tilemap.ChunkPos{X: 1, Y: 0, Z: 0}
	snapshots := map[tilemap.ChunkPos][]byte{
		a: []byte("snapshot-a"),
		b: []byte("snapshot-b"),
	}
	require.NoError(t, store.BatchStore(snapshots))

	got, ok, err := store.Load(b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "snapshot-b", string(got))
}
