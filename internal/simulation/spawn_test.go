package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tessera-mmo/core/internal/config"
)

func TestSpawnAllocatorFixedReturnsConstantPosition(t *testing.T) {
	a := NewSpawnAllocator(config.SpawnConfig{Strategy: config.SpawnFixed, FixedX: 12, FixedY: 34})
	for i := 0; i < 3; i++ {
		got := a.Next()
		assert.Equalf(t, 12.0, got.X, "call %d", i)
		assert.Equalf(t, 34.0, got.Y, "call %d", i)
	}
}

func TestSpawnAllocatorFixedDefault(t *testing.T) {
	a := NewSpawnAllocator(config.SpawnConfig{})
	got := a.Next()
	assert.Zero(t, got.X)
	assert.Zero(t, got.Y)
}

func TestSpawnAllocatorRandomStaysWithinRectangle(t *testing.T) {
	cfg := config.SpawnConfig{
		Strategy:   config.SpawnRandom,
		RandomMinX: 10, RandomMaxX: 20,
		RandomMinY: -5, RandomMaxY: 5,
	}
	a := NewSpawnAllocator(cfg)
	for i := 0; i < 200; i++ {
		got := a.Next()
		assert.GreaterOrEqual(t, got.X, 10.0)
		assert.LessOrEqual(t, got.X, 20.0)
		assert.GreaterOrEqual(t, got.Y, -5.0)
		assert.LessOrEqual(t, got.Y, 5.0)
	}
}

func TestSpawnAllocatorGroupedFillsColumnsThenRows(t *testing.T) {
	cfg := config.SpawnConfig{
		Strategy:      config.SpawnGrouped,
		GroupColumns:  2,
		GroupRows:     2,
		GroupPaddingX: 1,
		GroupPaddingY: 1,
	}
	a := NewSpawnAllocator(cfg)

	positions := make(map[[2]float64]bool)
	for i := 0; i < 4; i++ {
		p := a.Next()
		positions[[2]float64{p.X, p.Y}] = true
	}
	assert.Len(t, positions, 4, "expected 4 distinct positions filling the 2x2 block")

	// The 5th call starts a new anchor block, offset along X by the block width.
	fifth := a.Next()
	assert.NotZero(t, fifth.X, "expected 5th spawn to advance to a new group anchor")
}
