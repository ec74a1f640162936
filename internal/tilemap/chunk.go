package tilemap

import "github.com/tessera-mmo/core/internal/vec"

// ChunkWidth is the canonical CHUNK_WIDTH (§3.3, §6.3), fixed at compile
// time; with 16x16 chunks local coordinates fit in 4 bits each, well within
// the 8 bits per coordinate that the Morton helpers in morton.go interleave.
const ChunkWidth = 16

// TilesPerChunk — CHUNK_WIDTH² (§3.3).
const TilesPerChunk = ChunkWidth * ChunkWidth

// ChunkPos identifies a chunk in chunk-space (world position divided by
// CHUNK_WIDTH on X/Y; Z addresses a vertical chunk layer directly, since the
// map's extent is 3D, §3.3).
type ChunkPos struct {
	X, Y, Z int32
}

// TilePos identifies a single tile in world-space tile coordinates.
type TilePos struct {
	X, Y, Z int32
}

// ChunkPos returns the chunk that contains this tile.
func (p TilePos) ChunkPos() ChunkPos {
	return ChunkPos{X: floorDiv(p.X, ChunkWidth), Y: floorDiv(p.Y, ChunkWidth), Z: p.Z}
}

// Local returns the tile's 0..15 coordinates within its chunk.
func (p TilePos) Local() (x, y uint8) {
	return uint8(floorMod(p.X, ChunkWidth)), uint8(floorMod(p.Y, ChunkWidth))
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int32) int32 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Chunk — a fixed 16x16 grid of tiles stored in Morton order (§3.3). A
// chunk tracks its own non-empty layer count so the owning TileMap can
// decide when it becomes eligible for deletion (§3.3 Lifecycle, §8 P7).
type Chunk struct {
	Pos            ChunkPos
	tiles          [TilesPerChunk]Tile
	tileLayerCount int // sum of NonEmptyLayerCount across all tiles
}

// NewChunk создаёт пустой чанк по указанным координатам.
func NewChunk(pos ChunkPos) *Chunk {
	return &Chunk{Pos: pos}
}

func (c *Chunk) tileAt(local1, local2 uint8) *Tile {
	return &c.tiles[mortonEncode(local1, local2)]
}

// TileLayerCount returns the chunk's total non-empty layer count (§3.3 —
// "a chunk is eligible for deletion when its tileLayerCount drops to 0").
func (c *Chunk) TileLayerCount() int { return c.tileLayerCount }

// forEachTile invokes fn for every local (x, y) in row-major order,
// regardless of the Morton storage layout, which callers use for
// serialization (§6.1 record order is a straightforward per-chunk loop).
func (c *Chunk) forEachTile(fn func(localX, localY uint8, tile *Tile)) {
	for y := uint8(0); y < ChunkWidth; y++ {
		for x := uint8(0); x < ChunkWidth; x++ {
			fn(x, y, c.tileAt(x, y))
		}
	}
}

// worldOrigin returns the world-space tile coordinate of this chunk's
// (0,0) local tile, used to compute per-tile world bounds for collision
// (§4.1 invariant).
func (c *Chunk) worldOrigin() vec.Vec3 {
	return vec.Vec3{X: int(c.Pos.X) * ChunkWidth, Y: int(c.Pos.Y) * ChunkWidth, Z: int(c.Pos.Z)}
}
