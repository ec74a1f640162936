package tilemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMortonRoundTrip(t *testing.T) {
	for x := uint8(0); x < ChunkWidth; x++ {
		for y := uint8(0); y < ChunkWidth; y++ {
			idx := mortonEncode(x, y)
			gx, gy := mortonDecode(idx)
			require.Equalf(t, x, gx, "round trip failed for (%d,%d)", x, y)
			require.Equalf(t, y, gy, "round trip failed for (%d,%d)", x, y)
		}
	}
}

func TestMortonIndicesAreDistinctWithinChunk(t *testing.T) {
	seen := make(map[uint16]bool)
	for x := uint8(0); x < ChunkWidth; x++ {
		for y := uint8(0); y < ChunkWidth; y++ {
			idx := mortonEncode(x, y)
			require.Falsef(t, seen[idx], "duplicate morton index %d for (%d,%d)", idx, x, y)
			seen[idx] = true
		}
	}
	assert.Len(t, seen, TilesPerChunk)
}

func TestTilePosChunkPosHandlesNegativeCoordinates(t *testing.T) {
	p := TilePos{X: -1, Y: -16, Z: 0}
	cp := p.ChunkPos()
	assert.Equal(t, int32(-1), cp.X)
	assert.Equal(t, int32(-1), cp.Y)
	lx, ly := p.Local()
	assert.Equal(t, uint8(15), lx)
	assert.Equal(t, uint8(0), ly)
}

func TestForEachTileVisitsAll256InRowMajorOrder(t *testing.T) {
	c := NewChunk(ChunkPos{})
	var order []struct{ x, y uint8 }
	c.forEachTile(func(x, y uint8, _ *Tile) {
		order = append(order, struct{ x, y uint8 }{x, y})
	})
	require.Len(t, order, TilesPerChunk)
	assert.Equal(t, uint8(0), order[0].x)
	assert.Equal(t, uint8(0), order[0].y)
	assert.Equal(t, uint8(1), order[1].x, "expected row-major second visit (1,0)")
	assert.Equal(t, uint8(0), order[1].y)
}
