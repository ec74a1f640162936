package kinematics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/vec"
)

func TestDirectionCancelsOpposingBits(t *testing.T) {
	in := entity.Input{Bits: uint8(entity.InputUp) | uint8(entity.InputDown)}
	got := Direction(in)
	assert.Zero(t, got.X)
	assert.Zero(t, got.Y)
}

func TestDirectionNormalizesDiagonal(t *testing.T) {
	in := entity.Input{Bits: uint8(entity.InputUp) | uint8(entity.InputRight)}
	got := Direction(in)
	assert.InDelta(t, 1.0, got.Length(), 0.001, "expected unit-length diagonal")
}

func TestRotationFromInputEightDirections(t *testing.T) {
	cases := []struct {
		bits uint8
		want entity.Rotation
	}{
		{0, entity.RotationNone},
		{uint8(entity.InputUp), entity.RotationNorth},
		{uint8(entity.InputDown), entity.RotationSouth},
		{uint8(entity.InputLeft), entity.RotationWest},
		{uint8(entity.InputRight), entity.RotationEast},
		{uint8(entity.InputUp) | uint8(entity.InputRight), entity.RotationNorthEast},
		{uint8(entity.InputUp) | uint8(entity.InputLeft), entity.RotationNorthWest},
		{uint8(entity.InputDown) | uint8(entity.InputRight), entity.RotationSouthEast},
		{uint8(entity.InputDown) | uint8(entity.InputLeft), entity.RotationSouthWest},
	}
	for _, c := range cases {
		got := RotationFromInput(entity.Input{Bits: c.bits})
		assert.Equalf(t, c.want, got, "bits %08b", c.bits)
	}
}

func noopResolve(from vec.Vec3Float, _ vec.Box, delta vec.Vec3Float) vec.Vec3Float {
	return from.Add(delta)
}

func TestStepAdvancesPositionUnobstructed(t *testing.T) {
	pos := entity.Position{X: 0, Y: 0, Z: 0}
	in := entity.Input{Bits: uint8(entity.InputRight)}
	newPos, mv, rot := Step(pos, in, 0.1, vec.Box{}, noopResolve)

	wantX := MovementSpeed * 0.1
	assert.Equal(t, wantX, newPos.X)
	assert.Zero(t, newPos.Y)
	assert.Equal(t, MovementSpeed, mv.VelocityX)
	assert.Equal(t, entity.RotationEast, rot)
}

func TestStepZeroInputHoldsPosition(t *testing.T) {
	pos := entity.Position{X: 5, Y: 5, Z: 0}
	newPos, mv, rot := Step(pos, entity.Input{}, 0.1, vec.Box{}, noopResolve)
	assert.Equal(t, pos, newPos, "expected position unchanged")
	assert.Zero(t, mv.VelocityX)
	assert.Zero(t, mv.VelocityY)
	assert.Equal(t, entity.RotationNone, rot)
}
