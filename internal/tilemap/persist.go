package tilemap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tessera-mmo/core/internal/apperrors"
	"github.com/tessera-mmo/core/internal/tileio"
)

// FormatVersion is the on-disk format version written to every save file
// (§6.1). Bumping it is a breaking change — Load refuses anything else.
const FormatVersion uint16 = 1

var byteOrder = binary.LittleEndian

// Save writes the map to path using the §6.1 binary layout:
//
//	uint16   version
//	int32 x6 extent (origin x/y/z, len x/y/z, chunk units)
//	uint32   chunk count
//	per chunk:
//	  int32 x3 chunk position
//	  256 tile records, row-major, each:
//	    uint16 layer count
//	    per layer: uint8 kind, int32 spriteId, uint8 wallType
//
// The write goes to a temp file in the same directory, gets fsynced, then
// lands via tileio.Rename followed by an fsync of the directory itself, so
// a crash mid-write — or a crash right after the rename, before its
// directory entry is durable — never corrupts or loses the previous save
// (§6.1 — "the save must be atomic from an external reader's point of
// view").
func (m *TileMap) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tilemap-*.tmp")
	if err != nil {
		return apperrors.Serialization("tilemap.Save", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	if err := m.encode(w); err != nil {
		tmp.Close()
		return apperrors.Serialization("tilemap.Save", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return apperrors.Serialization("tilemap.Save", err)
	}
	if err := tileio.Fsync(tmp); err != nil {
		tmp.Close()
		return apperrors.Serialization("tilemap.Save", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Serialization("tilemap.Save", err)
	}
	if err := tileio.Rename(tmpPath, path); err != nil {
		return apperrors.Serialization("tilemap.Save", err)
	}
	if err := tileio.FsyncDir(dir); err != nil {
		return apperrors.Serialization("tilemap.Save", err)
	}
	return nil
}

func (m *TileMap) encode(w io.Writer) error {
	if err := binary.Write(w, byteOrder, FormatVersion); err != nil {
		return err
	}
	extent := [6]int32{m.extent.OriginX, m.extent.OriginY, m.extent.OriginZ, m.extent.LenX, m.extent.LenY, m.extent.LenZ}
	if err := binary.Write(w, byteOrder, extent); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(len(m.chunks))); err != nil {
		return err
	}
	for _, c := range m.chunks {
		if err := encodeChunk(w, c); err != nil {
			return err
		}
	}
	return nil
}

// EncodeChunkSnapshot serializes a single chunk using the same per-chunk
// record layout as Save/Load (position + 256 tile records), for use by
// ChunkUpdate messages that stream individual chunks outside of a full map
// save (§3.4, §4.9).
func EncodeChunkSnapshot(c *Chunk) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeChunk(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeChunkSnapshot parses a chunk previously produced by
// EncodeChunkSnapshot, resolving collision bounds against sprites exactly
// as Load does for a full map.
func DecodeChunkSnapshot(data []byte, sprites SpriteRegistry) (*Chunk, error) {
	r := bytes.NewReader(data)
	c, err := decodeChunk(r)
	if err != nil {
		return nil, err
	}
	resolveChunkCollisionForRegistry(c, sprites)
	return c, nil
}

func resolveChunkCollisionForRegistry(c *Chunk, sprites SpriteRegistry) {
	m := &TileMap{sprites: sprites}
	resolveChunkCollision(m, c)
}

func encodeChunk(w io.Writer, c *Chunk) error {
	pos := [3]int32{c.Pos.X, c.Pos.Y, c.Pos.Z}
	if err := binary.Write(w, byteOrder, pos); err != nil {
		return err
	}
	var encErr error
	c.forEachTile(func(_, _ uint8, tile *Tile) {
		if encErr != nil {
			return
		}
		encErr = encodeTile(w, tile)
	})
	return encErr
}

func encodeTile(w io.Writer, tile *Tile) error {
	if err := binary.Write(w, byteOrder, uint16(len(tile.Layers))); err != nil {
		return err
	}
	for _, l := range tile.Layers {
		if err := binary.Write(w, byteOrder, uint8(l.Kind)); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, int32(l.SpriteID)); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, uint8(l.WallType)); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a map previously written by Save, resolving collision bounds
// for non-empty layers against sprites. On any failure — unknown version,
// truncated stream, corrupt record — Load returns an error and a nil map,
// so no partially decoded map reaches the caller (§6.1 — "a failed load must not partially populate the
// map"); callers should treat a load error as fatal for that world.
func Load(path string, sprites SpriteRegistry) (*TileMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Serialization("tilemap.Load", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	m, err := decode(r, sprites)
	if err != nil {
		return nil, apperrors.Serialization("tilemap.Load", err)
	}
	return m, nil
}

func decode(r io.Reader, sprites SpriteRegistry) (*TileMap, error) {
	var version uint16
	if err := binary.Read(r, byteOrder, &version); err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("tilemap: unsupported save format version %d (want %d)", version, FormatVersion)
	}

	var extentFields [6]int32
	if err := binary.Read(r, byteOrder, &extentFields); err != nil {
		return nil, err
	}
	extent := ChunkExtent{
		OriginX: extentFields[0], OriginY: extentFields[1], OriginZ: extentFields[2],
		LenX: extentFields[3], LenY: extentFields[4], LenZ: extentFields[5],
	}

	var chunkCount uint32
	if err := binary.Read(r, byteOrder, &chunkCount); err != nil {
		return nil, err
	}

	m := NewTileMap(extent, sprites)
	for i := uint32(0); i < chunkCount; i++ {
		c, err := decodeChunk(r)
		if err != nil {
			return nil, fmt.Errorf("tilemap: decoding chunk %d: %w", i, err)
		}
		if !extent.Contains(c.Pos) {
			return nil, fmt.Errorf("tilemap: chunk %+v outside declared extent %+v", c.Pos, extent)
		}
		resolveChunkCollision(m, c)
		m.chunks[c.Pos] = c
	}
	return m, nil
}

func decodeChunk(r io.Reader) (*Chunk, error) {
	var pos [3]int32
	if err := binary.Read(r, byteOrder, &pos); err != nil {
		return nil, err
	}
	c := NewChunk(ChunkPos{X: pos[0], Y: pos[1], Z: pos[2]})

	var decErr error
	c.forEachTile(func(_, _ uint8, tile *Tile) {
		if decErr != nil {
			return
		}
		decErr = decodeTile(r, tile)
		if decErr == nil {
			c.tileLayerCount += tile.NonEmptyLayerCount()
		}
	})
	if decErr != nil {
		return nil, decErr
	}
	return c, nil
}

func decodeTile(r io.Reader, tile *Tile) error {
	var layerCount uint16
	if err := binary.Read(r, byteOrder, &layerCount); err != nil {
		return err
	}
	tile.Layers = make([]Layer, layerCount)
	for i := range tile.Layers {
		var kind, wallType uint8
		var spriteID int32
		if err := binary.Read(r, byteOrder, &kind); err != nil {
			return err
		}
		if err := binary.Read(r, byteOrder, &spriteID); err != nil {
			return err
		}
		if err := binary.Read(r, byteOrder, &wallType); err != nil {
			return err
		}
		tile.Layers[i] = Layer{Kind: LayerKind(kind), SpriteID: SpriteID(spriteID), WallType: WallType(wallType)}
	}
	return nil
}

// resolveChunkCollision recomputes Collidable/WorldBounds for every loaded
// layer against the live sprite registry, mirroring SetLayer's bookkeeping
// (§4.1 invariant — world bounds are derived, not stored).
func resolveChunkCollision(m *TileMap, c *Chunk) {
	origin := c.worldOrigin()
	c.forEachTile(func(x, y uint8, tile *Tile) {
		for i, l := range tile.Layers {
			if l.IsEmpty() || l.Kind == LayerFloor || m.sprites == nil {
				continue
			}
			info, ok := m.sprites.Lookup(l.SpriteID)
			if !ok || !info.CollisionEnabled {
				continue
			}
			tile.Layers[i].Collidable = true
			tile.Layers[i].WorldBounds = info.ModelBounds.Translated(
				float64(origin.X)+float64(x),
				float64(origin.Y)+float64(y),
				float64(origin.Z),
			)
		}
	})
}
