// Package predictor implements the client-side prediction/reconciliation
// loop described by §4.9: the player's own entity is simulated locally on
// every client tick using the same movement function the server runs, and
// is corrected whenever an authoritative MovementUpdate arrives, by
// replaying the buffered inputs recorded since the update's tick.
//
// Per-player buffered-input state with an applied-then-corrected flow,
// generalized into the tick-indexed replay §4.9 specifies, and built on
// internal/entity.InputHistory plus internal/kinematics.Step, the function
// shared with internal/simulation.
package predictor

import (
	"fmt"
	"time"

	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/kinematics"
	"github.com/tessera-mmo/core/internal/logging"
	"github.com/tessera-mmo/core/internal/physics"
	"github.com/tessera-mmo/core/internal/tilemap"
	"github.com/tessera-mmo/core/internal/vec"
	"github.com/tessera-mmo/core/internal/wire"
)

// Predictor holds one player entity's predicted kinematic state plus the
// input history needed to replay it after a correction (§3.2 invariant: the
// player entity has exactly one InputHistory).
type Predictor struct {
	entityID    entity.ID
	tiles       *tilemap.TileMap
	modelBounds vec.Box
	history     *entity.InputHistory

	currentTick uint32
	position    entity.Position
	velocity    entity.Movement
	rotation    entity.Rotation
}

// New creates a predictor for the player entity starting at spawn, with an
// input-history ring sized to cover the worst-case RTT plus server-batch
// delay expressed in ticks (§4.9 — capacity is the caller's responsibility;
// internal/config.ReplicationConfig.InputHistoryCapacityOrDefault is the
// grounded source for that number).
func New(entityID entity.ID, tiles *tilemap.TileMap, modelBounds vec.Box, historyCapacity int, spawn entity.Position) *Predictor {
	return &Predictor{
		entityID:    entityID,
		tiles:       tiles,
		modelBounds: modelBounds,
		history:     entity.NewInputHistory(historyCapacity),
		position:    spawn,
	}
}

// resolve clips a proposed delta against the client's locally streamed tile
// geometry only — Collision is not a replicated component (§3.4), so the
// client never learns another entity's AABB and cannot resolve against
// dynamic obstacles the way the server does.
func (p *Predictor) resolve(from vec.Vec3Float, modelBounds vec.Box, delta vec.Vec3Float) vec.Vec3Float {
	query := physics.ObstacleQuery{Tiles: physics.TilesInRadius(p.tiles)}
	return physics.Resolve(from, modelBounds, delta, query)
}

// Position returns the predictor's current predicted position.
func (p *Predictor) Position() entity.Position { return p.position }

// Velocity returns the predictor's current predicted velocity.
func (p *Predictor) Velocity() entity.Movement { return p.velocity }

// Rotation returns the predictor's current predicted facing.
func (p *Predictor) Rotation() entity.Rotation { return p.rotation }

// Sample runs §4.9 steps 1-2 for one client tick: records in into the input
// history at tick and advances the predicted position by dt seconds of
// movement under in. The caller is responsible for deciding whether to
// actually send an InputChangeRequest for this tick (see InputSampler) —
// the history records every sampled input regardless of whether it changed.
func (p *Predictor) Sample(tick uint32, in entity.Input, dt float64) entity.Position {
	p.currentTick = tick
	p.history.Record(tick, in)
	p.position, p.velocity, p.rotation = kinematics.Step(p.position, in, dt, p.modelBounds, p.resolve)
	return p.position
}

// Reconcile applies §4.9 step 3 for one inbound MovementUpdate: if it
// carries a state for this predictor's entity, the predictor snaps to the
// authoritative (position, velocity) at update.Tick and replays every
// recorded input from update.Tick+1 through currentTick. Ticks with no
// recorded input (because they predate the first Sample call) are treated
// as no movement for that tick. Returns an error only to report the clock-
// skew condition §4.9 calls out (update.Tick > currentTick); the predictor's
// state is left untouched in that case, matching "log an error" rather than
// "force a correction."
func (p *Predictor) Reconcile(update wire.MovementUpdate, dt float64) error {
	var state wire.MovementState
	found := false
	for _, s := range update.States {
		if s.Entity == p.entityID {
			state = s
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	if update.Tick > p.currentTick {
		return fmt.Errorf("authoritative tick %d ahead of local tick %d", update.Tick, p.currentTick)
	}

	p.position = entity.Position{X: state.PosX, Y: state.PosY, Z: state.PosZ}
	p.velocity = entity.Movement{VelocityX: state.VelX, VelocityY: state.VelY, VelocityZ: state.VelZ, IsFalling: state.IsFalling}

	lag := p.currentTick - update.Tick
	if lag > p.history.Capacity() {
		logging.Warn("predictor: authoritative tick %d is %d ticks behind current %d, exceeding history capacity %d; accepting server state without replay",
			update.Tick, lag, p.currentTick, p.history.Capacity())
		return nil
	}

	for t := update.Tick + 1; t <= p.currentTick; t++ {
		in, ok := p.history.At(t)
		if !ok {
			continue
		}
		p.position, p.velocity, p.rotation = kinematics.Step(p.position, in, dt, p.modelBounds, p.resolve)
	}
	return nil
}

// InputSampler decides, once per client tick, whether to emit an
// InputChangeRequest (the input bits changed since the last one sent) or a
// bare Heartbeat (nothing changed, but the heartbeat interval elapsed) —
// §4.9 step 1. It holds no clock of its own; the caller supplies "now" so
// the decision stays deterministic and testable.
type InputSampler struct {
	lastSent      entity.Input
	hasSent       bool
	lastHeartbeat time.Time
	hasHeartbeat  bool
}

// NewInputSampler creates a sampler with no input sent yet.
func NewInputSampler() *InputSampler {
	return &InputSampler{}
}

// Changed reports whether in differs from the last input actually sent,
// and records in as sent if so.
func (s *InputSampler) Changed(in entity.Input) bool {
	if s.hasSent && in == s.lastSent {
		return false
	}
	s.lastSent = in
	s.hasSent = true
	return true
}

// HeartbeatDue reports whether at least interval has elapsed since the last
// heartbeat (or since the sampler was created) as of now, recording now as
// the new last-heartbeat time if so.
func (s *InputSampler) HeartbeatDue(now time.Time, interval time.Duration) bool {
	if s.hasHeartbeat && now.Sub(s.lastHeartbeat) < interval {
		return false
	}
	s.lastHeartbeat = now
	s.hasHeartbeat = true
	return true
}
