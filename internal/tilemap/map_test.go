package tilemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallExtent() ChunkExtent {
	return ChunkExtent{OriginX: 0, OriginY: 0, OriginZ: 0, LenX: 2, LenY: 2, LenZ: 1}
}

func TestSetLayerCreatesChunkLazily(t *testing.T) {
	m := NewTileMap(smallExtent(), nil)
	require.Zero(t, m.ChunkCount(), "expected no chunks before any write")
	require.NoError(t, m.SetLayer(TilePos{X: 5, Y: 5, Z: 0}, 0, LayerFloor, 42, WallNone))
	assert.Equal(t, 1, m.ChunkCount(), "expected exactly one chunk after first write")
}

func TestSetLayerRejectsOutsideExtent(t *testing.T) {
	m := NewTileMap(smallExtent(), nil)
	err := m.SetLayer(TilePos{X: 1000, Y: 0, Z: 0}, 0, LayerFloor, 1, WallNone)
	assert.Error(t, err, "expected rejection for out-of-extent tile")
}

func TestGetTileReturnsEmptyWithoutMaterializingChunk(t *testing.T) {
	m := NewTileMap(smallExtent(), nil)
	tile, err := m.GetTile(TilePos{X: 3, Y: 3, Z: 0})
	require.NoError(t, err)
	assert.Zero(t, tile.NonEmptyLayerCount(), "expected empty tile")
	assert.Zero(t, m.ChunkCount(), "read should not create a chunk")
}

func TestClearTileDeletesChunkWhenFullyEmpty(t *testing.T) {
	m := NewTileMap(smallExtent(), nil)
	pos := TilePos{X: 0, Y: 0, Z: 0}
	require.NoError(t, m.SetLayer(pos, 0, LayerFloor, 7, WallNone))
	require.Equal(t, 1, m.ChunkCount())
	require.NoError(t, m.ClearTile(pos))
	assert.Zero(t, m.ChunkCount(), "chunk should be deleted once its last non-empty layer is cleared")
}

func TestClearLayersTruncatesAtTileEnd(t *testing.T) {
	m := NewTileMap(smallExtent(), nil)
	pos := TilePos{X: 1, Y: 1, Z: 0}
	require.NoError(t, m.SetLayer(pos, 0, LayerFloor, 1, WallNone))
	require.NoError(t, m.SetLayer(pos, 1, LayerObject, 2, WallNone))
	require.NoError(t, m.ClearLayers(pos, 1, 1))
	tile, err := m.GetTile(pos)
	require.NoError(t, err)
	assert.Equal(t, 1, tile.LayerCount(), "expected layer vector truncated to length 1")
}

func TestTakeDirtyTilesDrainsAndKeepsLowestLayerIndex(t *testing.T) {
	m := NewTileMap(smallExtent(), nil)
	pos := TilePos{X: 0, Y: 0, Z: 0}
	require.NoError(t, m.SetLayer(pos, 2, LayerObject, 9, WallNone))
	require.NoError(t, m.SetLayer(pos, 0, LayerFloor, 1, WallNone))
	dirty := m.TakeDirtyTiles()
	idx, ok := dirty[pos]
	require.True(t, ok, "expected tile to be marked dirty")
	assert.Equal(t, 0, idx, "expected lowest touched layer index 0")
	assert.Empty(t, m.TakeDirtyTiles(), "second drain should be empty")
}

func TestSetLayerMarksCollidableSprite(t *testing.T) {
	sprites := NewStaticSpriteRegistry()
	sprites.Register(SpriteInfo{ID: 5, CollisionEnabled: true})
	m := NewTileMap(smallExtent(), sprites)
	pos := TilePos{X: 0, Y: 0, Z: 0}
	require.NoError(t, m.SetLayer(pos, 0, LayerObject, 5, WallNone))
	tile, err := m.GetTile(pos)
	require.NoError(t, err)
	assert.True(t, tile.At(0).Collidable, "expected layer to be marked collidable")
}

func TestFloorLayersNeverCollide(t *testing.T) {
	sprites := NewStaticSpriteRegistry()
	sprites.Register(SpriteInfo{ID: 5, CollisionEnabled: true})
	m := NewTileMap(smallExtent(), sprites)
	pos := TilePos{X: 0, Y: 0, Z: 0}
	require.NoError(t, m.SetLayer(pos, 0, LayerFloor, 5, WallNone))
	tile, _ := m.GetTile(pos)
	assert.False(t, tile.At(0).Collidable, "floor layers must never be collidable regardless of sprite")
}
