package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tessera-mmo/core/internal/vec"
)

func unitModel() vec.Box {
	return vec.Box{MinX: -0.5, MinY: -0.5, MinZ: 0, MaxX: 0.5, MaxY: 0.5, MaxZ: 1}
}

func TestResolvePassesThroughWithNoObstacles(t *testing.T) {
	query := ObstacleQuery{}
	got := Resolve(vec.Vec3Float{X: 0, Y: 0, Z: 0}, unitModel(), vec.Vec3Float{X: 2, Y: 3, Z: 0}, query)
	assert.Equal(t, vec.Vec3Float{X: 2, Y: 3, Z: 0}, got)
}

func TestResolveSnapsOnXAxis(t *testing.T) {
	wall := StaticObstacle{Bounds: vec.Box{MinX: 1.5, MinY: -10, MinZ: 0, MaxX: 2.5, MaxY: 10, MaxZ: 1}}
	query := ObstacleQuery{
		Tiles: func(area vec.Box) []StaticObstacle { return []StaticObstacle{wall} },
	}
	got := Resolve(vec.Vec3Float{X: 0, Y: 0, Z: 0}, unitModel(), vec.Vec3Float{X: 1.2, Y: 0, Z: 0}, query)
	assert.Equal(t, 1.0, got.X, "expected snap to x=1.0 (wall.MinX - half-width)")
	assert.Zero(t, got.Y)
	assert.Zero(t, got.Z)
}

func TestResolveResolvesAxesIndependently(t *testing.T) {
	// Стена блокирует движение по Y, но не по X — после X-фазы(нет столкновений)
	// Y-фаза должна снэпнуться к границе стены.
	wall := StaticObstacle{Bounds: vec.Box{MinX: -10, MinY: 1.5, MinZ: 0, MaxX: 10, MaxY: 2.5, MaxZ: 1}}
	query := ObstacleQuery{
		Tiles: func(area vec.Box) []StaticObstacle { return []StaticObstacle{wall} },
	}
	got := Resolve(vec.Vec3Float{X: 0, Y: 0, Z: 0}, unitModel(), vec.Vec3Float{X: 5, Y: 1.2, Z: 0}, query)
	assert.Equal(t, 5.0, got.X, "expected unobstructed x move to complete")
	assert.Equal(t, 1.0, got.Y, "expected snap to y=1.0")
}

func TestResolveIgnoresNonIntersectingObstacle(t *testing.T) {
	farAway := StaticObstacle{Bounds: vec.Box{MinX: 100, MinY: 100, MinZ: 0, MaxX: 101, MaxY: 101, MaxZ: 1}}
	query := ObstacleQuery{
		Tiles: func(area vec.Box) []StaticObstacle { return []StaticObstacle{farAway} },
	}
	got := Resolve(vec.Vec3Float{X: 0, Y: 0, Z: 0}, unitModel(), vec.Vec3Float{X: 1, Y: 1, Z: 0}, query)
	assert.Equal(t, vec.Vec3Float{X: 1, Y: 1, Z: 0}, got)
}

func TestResolveSnapsToNearerBoundary(t *testing.T) {
	// Модель начинает внутри стены по X; ожидаем снэп к ближайшей границе.
	wall := StaticObstacle{Bounds: vec.Box{MinX: -1, MinY: -10, MinZ: 0, MaxX: 1, MaxY: 10, MaxZ: 1}}
	query := ObstacleQuery{
		Tiles: func(area vec.Box) []StaticObstacle { return []StaticObstacle{wall} },
	}
	got := Resolve(vec.Vec3Float{X: 0.9, Y: 0, Z: 0}, unitModel(), vec.Vec3Float{X: 0, Y: 0, Z: 0}, query)
	assert.Equal(t, 1.5, got.X, "expected snap to the nearer boundary (right, x=1.5)")
}

func TestResolveQueriesBothTilesAndEntities(t *testing.T) {
	tileCalled := false
	entityCalled := false
	query := ObstacleQuery{
		Tiles: func(area vec.Box) []StaticObstacle {
			tileCalled = true
			return nil
		},
		Entities: func(area vec.Box) []DynamicObstacle {
			entityCalled = true
			return nil
		},
	}
	Resolve(vec.Vec3Float{}, unitModel(), vec.Vec3Float{X: 1}, query)
	assert.True(t, tileCalled)
	assert.True(t, entityCalled)
}
