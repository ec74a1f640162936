// Package kinematics holds the one movement function both the server
// simulation and the client predictor call, so that a replayed client input
// and the corresponding server tick produce the same position given the
// same obstacle answers (§4.9: "run the same movement function the server
// uses"). Only the obstacle query differs between the two callers — the
// server resolves against the full tile map plus nearby dynamic entities,
// the client only against its locally streamed tiles (§3.4: Collision is
// not a replicated component, so the client never learns another entity's
// AABB and cannot resolve against it).
package kinematics

import (
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/vec"
)

// MovementSpeed is world units per second applied along the normalized
// input direction. The core has no per-entity speed stat; project-specific
// speed modifiers are expected to ride the opaque Modifiers byte on
// wire.MovementState.
const MovementSpeed = 4.0

// Direction maps an Input bitset to a unit (or zero) direction, canceling
// opposing bits and normalizing diagonals (§4.7 step 6a).
func Direction(in entity.Input) vec.Vec3Float {
	var dx, dy float64
	if in.Has(entity.InputUp) {
		dy--
	}
	if in.Has(entity.InputDown) {
		dy++
	}
	if in.Has(entity.InputLeft) {
		dx--
	}
	if in.Has(entity.InputRight) {
		dx++
	}
	dir := vec.Vec3Float{X: dx, Y: dy}
	if dir.X == 0 && dir.Y == 0 {
		return dir
	}
	return dir.Normalized()
}

// RotationFromInput derives the 8-direction facing (or None) from the same
// bitset used for Direction.
func RotationFromInput(in entity.Input) entity.Rotation {
	up, down := in.Has(entity.InputUp), in.Has(entity.InputDown)
	left, right := in.Has(entity.InputLeft), in.Has(entity.InputRight)
	switch {
	case up && !down && right && !left:
		return entity.RotationNorthEast
	case up && !down && left && !right:
		return entity.RotationNorthWest
	case down && !up && right && !left:
		return entity.RotationSouthEast
	case down && !up && left && !right:
		return entity.RotationSouthWest
	case up && !down:
		return entity.RotationNorth
	case down && !up:
		return entity.RotationSouth
	case left && !right:
		return entity.RotationWest
	case right && !left:
		return entity.RotationEast
	default:
		return entity.RotationNone
	}
}

// Resolver clips a proposed delta against whatever obstacles the caller
// knows about, returning the actual applied delta (§4.7 step 6b-6d). Both
// internal/simulation and internal/predictor satisfy this by closing over
// internal/physics.Resolve with different internal/physics.ObstacleQuery
// values.
type Resolver func(from vec.Vec3Float, modelBounds vec.Box, delta vec.Vec3Float) vec.Vec3Float

// Step advances one entity by one tick of dt seconds under in, returning its
// new Position, Movement and Rotation. It is the single function SPEC_FULL's
// §4.9 requires the server and the client predictor to share.
func Step(pos entity.Position, in entity.Input, dt float64, modelBounds vec.Box, resolve Resolver) (entity.Position, entity.Movement, entity.Rotation) {
	dir := Direction(in)
	vel := dir.Mul(MovementSpeed)
	delta := vel.Mul(dt)

	resolved := resolve(pos.ToVec3Float(), modelBounds, delta)
	newPos := entity.Position{X: resolved.X, Y: resolved.Y, Z: resolved.Z}
	newMovement := entity.Movement{VelocityX: vel.X, VelocityY: vel.Y, VelocityZ: vel.Z}
	return newPos, newMovement, RotationFromInput(in)
}
