package tilemap

import (
	"fmt"

	"github.com/tessera-mmo/core/internal/apperrors"
)

// ChunkExtent is the tile map's fixed 3D bounding volume, measured in
// chunks (§3.3, §6.1). The map never grows past its declared extent at
// runtime (§4.1 invariant).
type ChunkExtent struct {
	OriginX, OriginY, OriginZ int32
	LenX, LenY, LenZ          int32
}

// Contains reports whether a chunk position falls inside the extent.
func (e ChunkExtent) Contains(pos ChunkPos) bool {
	return pos.X >= e.OriginX && pos.X < e.OriginX+e.LenX &&
		pos.Y >= e.OriginY && pos.Y < e.OriginY+e.LenY &&
		pos.Z >= e.OriginZ && pos.Z < e.OriginZ+e.LenZ
}

// TileExtent is ChunkExtent expressed in tile units on X/Y (Z chunk layers
// are not subdivided, so Z stays in chunk units).
type TileExtent struct {
	OriginX, OriginY, OriginZ int32
	LenX, LenY, LenZ          int32
}

// Contains reports whether a tile position falls inside the extent.
func (e TileExtent) Contains(pos TilePos) bool {
	return pos.X >= e.OriginX && pos.X < e.OriginX+e.LenX &&
		pos.Y >= e.OriginY && pos.Y < e.OriginY+e.LenY &&
		pos.Z >= e.OriginZ && pos.Z < e.OriginZ+e.LenZ
}

// TileMap owns the chunked, layered tile grid described in §3.3/§4.1. It is
// owned by the simulation thread (§5); there is no internal locking —
// callers that need concurrent read access must arrange it the way §5
// describes for the entity store (read while the simulation is parked).
type TileMap struct {
	extent  ChunkExtent
	sprites SpriteRegistry
	chunks  map[ChunkPos]*Chunk
	dirty   map[TilePos]int // tile -> lowest changed layer index
}

// NewTileMap создаёт пустую карту с заданным экстентом и реестром спрайтов.
func NewTileMap(extent ChunkExtent, sprites SpriteRegistry) *TileMap {
	return &TileMap{
		extent:  extent,
		sprites: sprites,
		chunks:  make(map[ChunkPos]*Chunk),
		dirty:   make(map[TilePos]int),
	}
}

// ChunkExtent возвращает объявленный экстент карты в единицах чанков.
func (m *TileMap) ChunkExtent() ChunkExtent { return m.extent }

// TileExtent возвращает экстент карты в единицах тайлов по X/Y.
func (m *TileMap) TileExtent() TileExtent {
	return TileExtent{
		OriginX: m.extent.OriginX * ChunkWidth,
		OriginY: m.extent.OriginY * ChunkWidth,
		OriginZ: m.extent.OriginZ,
		LenX:    m.extent.LenX * ChunkWidth,
		LenY:    m.extent.LenY * ChunkWidth,
		LenZ:    m.extent.LenZ,
	}
}

func (m *TileMap) validate(pos TilePos) error {
	if !m.TileExtent().Contains(pos) {
		return apperrors.Capacity("tilemap", fmt.Errorf("tile %+v outside declared extent %+v", pos, m.extent))
	}
	return nil
}

// chunkFor returns the chunk containing pos, creating it lazily if create
// is true and it doesn't exist yet (§3.3 Lifecycle).
func (m *TileMap) chunkFor(pos TilePos, create bool) *Chunk {
	cp := pos.ChunkPos()
	c, ok := m.chunks[cp]
	if !ok {
		if !create {
			return nil
		}
		c = NewChunk(cp)
		m.chunks[cp] = c
	}
	return c
}

// GetTile возвращает тайл по мировым координатам. Всегда существует
// логически (пустой тайл, если чанк ещё не создан); физический чанк не
// создаётся запросом на чтение.
func (m *TileMap) GetTile(pos TilePos) (*Tile, error) {
	if err := m.validate(pos); err != nil {
		return nil, err
	}
	c := m.chunkFor(pos, false)
	if c == nil {
		empty := &Tile{}
		return empty, nil
	}
	lx, ly := pos.Local()
	return c.tileAt(lx, ly), nil
}

// markDirty records pos as changed at layerIndex, keeping the lowest index
// ever recorded since the last drain (§3.3 — "streaming code can send
// minimal updates").
func (m *TileMap) markDirty(pos TilePos, layerIndex int) {
	if existing, ok := m.dirty[pos]; !ok || layerIndex < existing {
		m.dirty[pos] = layerIndex
	}
}

// TakeDirtyTiles drains and returns the set of tiles changed since the last
// call, each mapped to the lowest layer index touched.
func (m *TileMap) TakeDirtyTiles() map[TilePos]int {
	out := m.dirty
	m.dirty = make(map[TilePos]int)
	return out
}

func (m *TileMap) resolveLayer(kind LayerKind, sprite SpriteID, wallType WallType) Layer {
	layer := Layer{Kind: kind, SpriteID: sprite, WallType: wallType}
	if sprite == EmptySpriteID {
		return layer
	}
	if m.sprites == nil {
		return layer
	}
	info, ok := m.sprites.Lookup(sprite)
	if !ok || kind == LayerFloor {
		// §3.3: floors never contribute collision regardless of the sprite.
		return layer
	}
	if info.CollisionEnabled {
		layer.Collidable = true
		layer.WorldBounds = info.ModelBounds
	}
	return layer
}

// SetLayer inserts or replaces the layer at layerIndex (§4.1). If the
// tile's layer vector is shorter than layerIndex, it is extended with empty
// layers of the same kind being set, matching §4.1's "extended with empty
// layers".
func (m *TileMap) SetLayer(pos TilePos, layerIndex int, kind LayerKind, sprite SpriteID, wallType WallType) error {
	if err := m.validate(pos); err != nil {
		return err
	}
	if layerIndex < 0 {
		return apperrors.Capacity("tilemap", fmt.Errorf("negative layer index %d", layerIndex))
	}

	c := m.chunkFor(pos, true)
	lx, ly := pos.Local()
	tile := c.tileAt(lx, ly)

	for len(tile.Layers) <= layerIndex {
		tile.Layers = append(tile.Layers, EmptyLayer(kind))
	}

	worldOrigin := c.worldOrigin()
	layer := m.resolveLayer(kind, sprite, wallType)
	if layer.Collidable {
		layer.WorldBounds = layer.WorldBounds.Translated(
			float64(worldOrigin.X)+float64(lx),
			float64(worldOrigin.Y)+float64(ly),
			float64(worldOrigin.Z),
		)
	}

	before := tile.Layers[layerIndex].IsEmpty()
	c.tileLayerCount -= boolToInt(!before)
	tile.Layers[layerIndex] = layer
	c.tileLayerCount += boolToInt(!layer.IsEmpty())

	m.markDirty(pos, layerIndex)
	m.deleteChunkIfEmpty(c)
	return nil
}

// ClearLayers clears layers in [startIndex, endIndex] inclusive (§4.1). If
// endIndex reaches the tile's last layer, the vector is truncated;
// otherwise the cleared slots are replaced with empty sprites.
func (m *TileMap) ClearLayers(pos TilePos, startIndex, endIndex int) error {
	if err := m.validate(pos); err != nil {
		return err
	}
	c := m.chunkFor(pos, false)
	if c == nil {
		return nil
	}
	lx, ly := pos.Local()
	tile := c.tileAt(lx, ly)

	if startIndex < 0 || startIndex >= len(tile.Layers) {
		return nil
	}
	if endIndex >= len(tile.Layers) {
		endIndex = len(tile.Layers) - 1
	}

	for i := startIndex; i <= endIndex; i++ {
		if !tile.Layers[i].IsEmpty() {
			c.tileLayerCount--
		}
		tile.Layers[i] = EmptyLayer(tile.Layers[i].Kind)
	}

	if endIndex == len(tile.Layers)-1 {
		tile.Layers = tile.Layers[:startIndex]
	}

	m.markDirty(pos, startIndex)
	m.deleteChunkIfEmpty(c)
	return nil
}

// ClearTile — bulk equivalent of ClearLayers covering every layer (§4.1).
func (m *TileMap) ClearTile(pos TilePos) error {
	c := m.chunkFor(pos, false)
	if c == nil {
		return nil
	}
	lx, ly := pos.Local()
	tile := c.tileAt(lx, ly)
	return m.ClearLayers(pos, 0, len(tile.Layers)-1)
}

// ClearExtent clears every tile within the given tile-space extent.
func (m *TileMap) ClearExtent(extent TileExtent) error {
	for z := extent.OriginZ; z < extent.OriginZ+extent.LenZ; z++ {
		for y := extent.OriginY; y < extent.OriginY+extent.LenY; y++ {
			for x := extent.OriginX; x < extent.OriginX+extent.LenX; x++ {
				if err := m.ClearTile(TilePos{X: x, Y: y, Z: z}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// deleteChunkIfEmpty removes c from the map once it carries no non-empty
// layers (§3.3 Lifecycle, §8 P7). We delete eagerly rather than deferring
// to a sweep; both satisfy P7's "eligible for deletion" wording, and eager
// deletion means takeDirtyTiles/iteration never see stale empty chunks.
func (m *TileMap) deleteChunkIfEmpty(c *Chunk) {
	if c.tileLayerCount == 0 {
		delete(m.chunks, c.Pos)
	}
}

// ChunkCount returns the number of materialized chunks — the same count
// (len of the chunk map) that Save writes as its chunk-count header field
// (§6.1).
func (m *TileMap) ChunkCount() int { return len(m.chunks) }

// ChunkAt returns the materialized chunk at pos, if any — used by chunk
// streaming to build a ChunkUpdate snapshot on request (§3.4, §4.9).
func (m *TileMap) ChunkAt(pos ChunkPos) (*Chunk, bool) {
	c, ok := m.chunks[pos]
	return c, ok
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
