// Package physics implements the axis-by-axis AABB collision resolve used
// by the movement step of the simulation (§4.7 step 6).
//
// Box-collider overlap tests against an integer block grid, generalized to
// continuous-space float AABBs resolved against the tile map and nearby
// entities.
package physics

import (
	"math"

	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/tilemap"
	"github.com/tessera-mmo/core/internal/vec"
)

// StaticObstacle is anything with a fixed world AABB the mover must not
// penetrate — a collidable tile layer.
type StaticObstacle struct {
	Bounds vec.Box
}

// DynamicObstacle is another entity's current world AABB.
type DynamicObstacle struct {
	Entity entity.ID
	Bounds vec.Box
}

// ObstacleQuery resolves the obstacles relevant to a proposed move. The
// simulation supplies this so internal/physics stays free of entity-store
// and tile-map iteration details.
type ObstacleQuery struct {
	// Tiles returns the collidable tile layers whose world bounds might
	// overlap area.
	Tiles func(area vec.Box) []StaticObstacle
	// Entities returns other entities' current bounds that might overlap
	// area, excluding the mover itself.
	Entities func(area vec.Box) []DynamicObstacle
}

// Resolve computes the actual position for a move from `from` by `delta`,
// given the mover's model bounds. It resolves one axis at a time — X, then
// Y, then Z — snapping to the obstacle boundary on any axis where the
// full-delta move would intersect (§4.7 step 6d).
func Resolve(from vec.Vec3Float, modelBounds vec.Box, delta vec.Vec3Float, query ObstacleQuery) vec.Vec3Float {
	current := from

	current.X += delta.X
	current = snapAxis(current, modelBounds, query, axisX)

	current.Y += delta.Y
	current = snapAxis(current, modelBounds, query, axisY)

	current.Z += delta.Z
	current = snapAxis(current, modelBounds, query, axisZ)

	return current
}

type axis int

const (
	axisX axis = iota
	axisY
	axisZ
)

// snapAxis checks the mover's bounds at its current (tentative) position
// against every relevant obstacle; if any intersects, the position is
// snapped back to the nearest non-intersecting boundary along axis only,
// leaving the other axes' already-resolved components untouched.
func snapAxis(pos vec.Vec3Float, modelBounds vec.Box, query ObstacleQuery, a axis) vec.Vec3Float {
	proposed := modelBounds.Translated(pos.X, pos.Y, pos.Z)

	var obstacles []vec.Box
	if query.Tiles != nil {
		for _, o := range query.Tiles(proposed) {
			obstacles = append(obstacles, o.Bounds)
		}
	}
	if query.Entities != nil {
		for _, o := range query.Entities(proposed) {
			obstacles = append(obstacles, o.Bounds)
		}
	}

	for _, obstacle := range obstacles {
		if !proposed.Intersects(obstacle) {
			continue
		}
		pos = snapToBoundary(pos, proposed, obstacle, a)
		proposed = modelBounds.Translated(pos.X, pos.Y, pos.Z)
	}
	return pos
}

// snapToBoundary moves pos back along axis a just enough that proposed no
// longer overlaps obstacle on that axis, choosing the boundary requiring
// the smaller correction (so a mover grazing an edge doesn't get flung to
// the far side).
func snapToBoundary(pos vec.Vec3Float, proposed, obstacle vec.Box, a axis) vec.Vec3Float {
	switch a {
	case axisX:
		pushLeft := obstacle.MinX - proposed.MaxX
		pushRight := obstacle.MaxX - proposed.MinX
		if abs(pushLeft) < abs(pushRight) {
			pos.X += pushLeft
		} else {
			pos.X += pushRight
		}
	case axisY:
		pushUp := obstacle.MinY - proposed.MaxY
		pushDown := obstacle.MaxY - proposed.MinY
		if abs(pushUp) < abs(pushDown) {
			pos.Y += pushUp
		} else {
			pos.Y += pushDown
		}
	case axisZ:
		pushUp := obstacle.MinZ - proposed.MaxZ
		pushDown := obstacle.MaxZ - proposed.MinZ
		if abs(pushUp) < abs(pushDown) {
			pos.Z += pushUp
		} else {
			pos.Z += pushDown
		}
	}
	return pos
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// TilesInRadius adapts a TileMap into an ObstacleQuery.Tiles function,
// scanning every tile touching the query box.
func TilesInRadius(m *tilemap.TileMap) func(area vec.Box) []StaticObstacle {
	return func(area vec.Box) []StaticObstacle {
		minX := int32(math.Floor(area.MinX))
		maxX := int32(math.Floor(area.MaxX))
		minY := int32(math.Floor(area.MinY))
		maxY := int32(math.Floor(area.MaxY))
		z := int32(math.Floor(area.MinZ))

		var obstacles []StaticObstacle
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				tile, err := m.GetTile(tilemap.TilePos{X: x, Y: y, Z: z})
				if err != nil {
					continue
				}
				for i := 0; i < tile.LayerCount(); i++ {
					layer := tile.At(i)
					if layer.Collidable {
						obstacles = append(obstacles, StaticObstacle{Bounds: layer.WorldBounds})
					}
				}
			}
		}
		return obstacles
	}
}
