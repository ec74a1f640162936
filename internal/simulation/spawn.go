package simulation

import (
	"math/rand"

	"github.com/tessera-mmo/core/internal/config"
	"github.com/tessera-mmo/core/internal/entity"
)

// SpawnAllocator computes a connecting client's spawn position according to
// the configured strategy (§4.7: "Fixed, Random-in-rectangle, Grouped").
// Grouped keeps the running grid cursor so repeated calls fill out the
// configured columns x rows before the anchor advances.
type SpawnAllocator struct {
	cfg config.SpawnConfig

	groupCol, groupRow int
	groupIndex         int // how many (columns x rows) blocks have been filled
}

// NewSpawnAllocator creates an allocator from the configured strategy.
func NewSpawnAllocator(cfg config.SpawnConfig) *SpawnAllocator {
	return &SpawnAllocator{cfg: cfg}
}

// Next returns the next spawn position.
func (a *SpawnAllocator) Next() entity.Position {
	switch a.cfg.StrategyOrDefault() {
	case config.SpawnRandom:
		return a.nextRandom()
	case config.SpawnGrouped:
		return a.nextGrouped()
	default:
		return a.nextFixed()
	}
}

func (a *SpawnAllocator) nextFixed() entity.Position {
	return entity.Position{X: a.cfg.FixedX, Y: a.cfg.FixedY, Z: 0}
}

func (a *SpawnAllocator) nextRandom() entity.Position {
	minX, maxX := a.cfg.RandomMinX, a.cfg.RandomMaxX
	minY, maxY := a.cfg.RandomMinY, a.cfg.RandomMaxY
	x := minX
	if maxX > minX {
		x = minX + rand.Float64()*(maxX-minX)
	}
	y := minY
	if maxY > minY {
		y = minY + rand.Float64()*(maxY-minY)
	}
	return entity.Position{X: x, Y: y, Z: 0}
}

func (a *SpawnAllocator) nextGrouped() entity.Position {
	columns := a.cfg.GroupColumns
	if columns < 1 {
		columns = 1
	}
	rows := a.cfg.GroupRows
	if rows < 1 {
		rows = 1
	}

	col, row := a.groupCol, a.groupRow
	groupIndex := a.groupIndex

	a.groupCol++
	if a.groupCol >= columns {
		a.groupCol = 0
		a.groupRow++
		if a.groupRow >= rows {
			a.groupRow = 0
			a.groupIndex++
		}
	}

	groupWidth := float64(columns) * a.cfg.GroupPaddingX
	anchorX := a.cfg.GroupOffsetX + float64(groupIndex)*(groupWidth+a.cfg.GroupPaddingX)
	anchorY := a.cfg.GroupOffsetY

	x := anchorX + float64(col)*a.cfg.GroupPaddingX
	y := anchorY + float64(row)*a.cfg.GroupPaddingY
	return entity.Position{X: x, Y: y, Z: 0}
}
