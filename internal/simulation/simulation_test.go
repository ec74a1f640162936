package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/netruntime"
	"github.com/tessera-mmo/core/internal/tilemap"
	"github.com/tessera-mmo/core/internal/vec"
)

func TestDedupeIDsRemovesDuplicatesPreservingOrder(t *testing.T) {
	in := []entity.ID{3, 1, 3, 2, 1}
	got := dedupeIDs(in)
	assert.Equal(t, []entity.ID{3, 1, 2}, got)
}

func newTestStore() (*entity.Store, entity.ID) {
	store := entity.NewStore(entity.NewPool())
	id := store.Spawn()
	return store, id
}

func TestStepMovementAppliesInputAndAdvancesPosition(t *testing.T) {
	store, id := newTestStore()
	entity.Replace(store, id, entity.Position{X: 0, Y: 0, Z: 0})
	entity.Replace(store, id, entity.Input{Bits: uint8(entity.InputRight)})
	entity.Replace(store, id, entity.Movement{})
	bounds := vec.Box{MinX: -0.4, MinY: -0.4, MinZ: 0, MaxX: 0.4, MaxY: 0.4, MaxZ: 1}
	col := entity.Collision{ModelBounds: bounds}
	col.SyncToPosition(entity.Position{})
	entity.Insert(store, id, col)

	tiles := tilemap.NewTileMap(tilemap.ChunkExtent{LenX: 4, LenY: 4, LenZ: 1}, nil)

	sim := &Sim{
		cfg:   Config{Timestep: 100 * time.Millisecond},
		store: store,
		tiles: tiles,
	}
	sim.stepMovement()

	pos, ok := entity.Get[entity.Position](store, id)
	require.True(t, ok, "expected Position to remain attached")
	wantX := MovementSpeed * 0.1
	assert.True(t, pos.X > 0 && pos.X <= wantX+1e-9, "expected position to advance along +X up to %v, got %+v", wantX, pos)

	rot, ok := entity.Get[entity.Rotation](store, id)
	require.True(t, ok)
	assert.Equal(t, entity.RotationEast, rot)
}

func TestStepMovementStopsAtCollidableTile(t *testing.T) {
	store, id := newTestStore()
	entity.Replace(store, id, entity.Position{X: 0, Y: 0, Z: 0})
	entity.Replace(store, id, entity.Input{Bits: uint8(entity.InputRight)})
	entity.Replace(store, id, entity.Movement{})
	bounds := vec.Box{MinX: -0.4, MinY: -0.4, MinZ: 0, MaxX: 0.4, MaxY: 0.4, MaxZ: 1}
	col := entity.Collision{ModelBounds: bounds}
	col.SyncToPosition(entity.Position{})
	entity.Insert(store, id, col)

	sprites := tilemap.NewStaticSpriteRegistry()
	sprites.Register(tilemap.SpriteInfo{
		ID:               7,
		CollisionEnabled: true,
		ModelBounds:      vec.Box{MinX: 0, MinY: 0, MinZ: 0, MaxX: 1, MaxY: 1, MaxZ: 1},
	})
	tiles := tilemap.NewTileMap(tilemap.ChunkExtent{LenX: 4, LenY: 4, LenZ: 1}, sprites)
	require.NoError(t, tiles.SetLayer(tilemap.TilePos{X: 1, Y: 0, Z: 0}, 1, tilemap.LayerWall, 7, tilemap.WallWest))

	sim := &Sim{
		// Timestep chosen so the proposed move (0.8 units) overlaps the wall at
		// world x=[1,2] without tunneling past it in one step.
		cfg:   Config{Timestep: 200 * time.Millisecond},
		store: store,
		tiles: tiles,
	}
	sim.stepMovement()

	pos, _ := entity.Get[entity.Position](store, id)
	const wantX = 0.6 // wall.MinX(1) - half model width(0.4)
	assert.InDelta(t, wantX, pos.X, 1e-9, "expected position snapped to the wall boundary")
}

func TestWithinChunkStreamRadiusAcceptsNearbyChunk(t *testing.T) {
	client := vec.Vec2{X: 0, Y: 0}
	assert.True(t, withinChunkStreamRadius(client, vec.Vec2{X: 1, Y: 1}, 3))
}

func TestWithinChunkStreamRadiusRejectsFarChunk(t *testing.T) {
	client := vec.Vec2{X: 0, Y: 0}
	assert.False(t, withinChunkStreamRadius(client, vec.Vec2{X: 10, Y: 10}, 3))
}

func TestWithinChunkStreamRadiusRejectsDiagonalBeyondEuclideanRadius(t *testing.T) {
	client := vec.Vec2{X: 0, Y: 0}
	// (4,4) passes a radius-4 Chebyshev prefilter but its Euclidean
	// distance (~5.66) exceeds the radius, so it should still be rejected.
	assert.False(t, withinChunkStreamRadius(client, vec.Vec2{X: 4, Y: 4}, 4))
}

func TestClientChunkPosReportsEntityChunk(t *testing.T) {
	store, id := newTestStore()
	entity.Replace(store, id, entity.Position{X: 33, Y: -5, Z: 0})

	sim := &Sim{store: store}
	handle := &netruntime.ClientHandle{Entity: id}

	got, ok := sim.clientChunkPos(handle)
	require.True(t, ok)
	assert.Equal(t, vec.Vec2{X: 2, Y: -1}, got, "expected floor-divided chunk coordinates for a negative Y")
}

func TestClientChunkPosReportsFalseForUnspawnedClient(t *testing.T) {
	sim := &Sim{store: entity.NewStore(entity.NewPool())}
	handle := &netruntime.ClientHandle{Entity: entity.Invalid}

	_, ok := sim.clientChunkPos(handle)
	assert.False(t, ok)
}
