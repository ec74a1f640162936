package tilemap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	sprites := NewStaticSpriteRegistry()
	sprites.Register(SpriteInfo{ID: 3, CollisionEnabled: true})

	extent := ChunkExtent{OriginX: -1, OriginY: -1, OriginZ: 0, LenX: 3, LenY: 3, LenZ: 1}
	m := NewTileMap(extent, sprites)

	require.NoError(t, m.SetLayer(TilePos{X: -10, Y: 4, Z: 0}, 0, LayerFloor, 1, WallNone))
	require.NoError(t, m.SetLayer(TilePos{X: -10, Y: 4, Z: 0}, 2, LayerObject, 3, WallNone))
	require.NoError(t, m.SetLayer(TilePos{X: 20, Y: 20, Z: 0}, 1, LayerWall, 7, WallNorth))

	path := filepath.Join(t.TempDir(), "world.bin")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path, sprites)
	require.NoError(t, err)

	assert.Equal(t, m.ChunkExtent(), loaded.ChunkExtent())
	assert.Equal(t, m.ChunkCount(), loaded.ChunkCount())

	tile, err := loaded.GetTile(TilePos{X: -10, Y: 4, Z: 0})
	require.NoError(t, err)
	assert.Equal(t, SpriteID(1), tile.At(0).SpriteID)
	assert.Equal(t, SpriteID(3), tile.At(2).SpriteID)
	assert.True(t, tile.At(2).Collidable, "expected layer 2 to regain collidable status from sprite registry on load")

	wallTile, err := loaded.GetTile(TilePos{X: 20, Y: 20, Z: 0})
	require.NoError(t, err)
	assert.Equal(t, LayerWall, wallTile.At(1).Kind)
	assert.Equal(t, WallNorth, wallTile.At(1).WallType)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	m := NewTileMap(smallExtent(), nil)
	path := filepath.Join(t.TempDir(), "world.bin")
	require.NoError(t, m.Save(path))

	corruptVersion(t, path)

	_, err := Load(path, nil)
	assert.Error(t, err, "expected error loading a file with an unsupported version")
}

func corruptVersion(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = 0xFF
	data[1] = 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
