// Package npcreplication implements the client's §4.10 replication of
// non-player entities: updates are buffered into a FIFO keyed by tick and
// applied a fixed PAST_TICK_OFFSET behind the client's own tick, so the
// client only ever renders authoritative data for NPCs and never predicts
// them the way it predicts its own entity (internal/predictor).
//
// Grounded on internal/tickadjust's ring-buffer style (fixed-capacity state
// keyed by tick) generalized to an unbounded-arrival FIFO, since unlike a
// tick-diff sample an NPC update's absence is itself meaningful (a gap
// means "confirmed no change," not "no data yet" — the gap-fill rule
// §4.10 describes).
package npcreplication

import (
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/logging"
	"github.com/tessera-mmo/core/internal/wire"
)

// entry is one FIFO slot: either an authoritative MovementUpdate for that
// tick, or nil meaning "confirmed, nothing changed" (filled in by the
// gap-fill rule or by a bare ExplicitConfirmation).
type entry struct {
	update *wire.MovementUpdate
}

// Replicator buffers inbound NPC movement data and applies it PastTickOffset
// ticks behind the client's current tick (§4.10).
type Replicator struct {
	pastTickOffset uint32
	entries        map[uint32]entry

	hasReceived      bool
	lastReceivedTick uint32
}

// New creates a replicator with the configured PAST_TICK_OFFSET (default 10,
// see internal/config.SimulationConfig.PastTickOffsetOrDefault).
func New(pastTickOffset uint32) *Replicator {
	return &Replicator{pastTickOffset: pastTickOffset, entries: make(map[uint32]entry)}
}

// fillGap records every tick strictly between the last received tick and
// upToExclusive as confirmed-no-change — the gap-fill rule: receipt of data
// for tick T implicitly confirms (lastReceivedTick, T) as unchanged.
func (r *Replicator) fillGap(upToExclusive uint32) {
	if !r.hasReceived {
		return
	}
	for t := r.lastReceivedTick + 1; t < upToExclusive; t++ {
		r.entries[t] = entry{}
	}
}

// ObserveMovementUpdate feeds one inbound MovementUpdate into the FIFO.
func (r *Replicator) ObserveMovementUpdate(update wire.MovementUpdate) {
	r.fillGap(update.Tick)
	r.entries[update.Tick] = entry{update: &update}
	r.lastReceivedTick = update.Tick
	r.hasReceived = true
}

// ObserveConfirmation feeds one inbound ExplicitConfirmation (the server
// completed tick with nothing to send) into the FIFO as a confirmed-empty
// entry.
func (r *Replicator) ObserveConfirmation(tick uint32) {
	r.fillGap(tick)
	r.entries[tick] = entry{}
	r.lastReceivedTick = tick
	r.hasReceived = true
}

// Drain applies §4.10's apply step for one client tick: if the FIFO holds an
// entry for currentTick-PastTickOffset, it is applied to store and removed;
// otherwise NPCs stall visibly this tick, matching the spec's documented
// behavior for missing data. Returns whether an entry was applied.
func (r *Replicator) Drain(currentTick uint32, store *entity.Store) bool {
	if currentTick < r.pastTickOffset {
		return false
	}
	target := currentTick - r.pastTickOffset
	e, ok := r.entries[target]
	if !ok {
		return false
	}
	delete(r.entries, target)
	if e.update != nil {
		applyMovementUpdate(store, *e.update)
	}
	return true
}

// applyMovementUpdate mutates every entity named in update: PreviousPosition
// becomes the entity's position before this apply, Position/Movement/
// Input become the authoritative values (§4.10 — "mutate entity
// positions/inputs accordingly").
func applyMovementUpdate(store *entity.Store, update wire.MovementUpdate) {
	for _, state := range update.States {
		prev, ok := entity.Get[entity.Position](store, state.Entity)
		if !ok {
			logging.Warn("npcreplication: movement update for unknown entity %d at tick %d, ignoring", state.Entity, update.Tick)
			continue
		}
		entity.Insert(store, state.Entity, entity.PreviousPosition{X: prev.X, Y: prev.Y, Z: prev.Z})
		entity.Replace(store, state.Entity, entity.Position{X: state.PosX, Y: state.PosY, Z: state.PosZ})
		entity.Replace(store, state.Entity, entity.Movement{
			VelocityX: state.VelX, VelocityY: state.VelY, VelocityZ: state.VelZ,
			IsFalling: state.IsFalling,
		})
		entity.Replace(store, state.Entity, entity.Input{Bits: state.InputBits})
	}
}

// Interpolate blends PreviousPosition and Position by fraction in [0, 1],
// the sim tick progress used between applied NPC frames (§4.10 — "the
// renderer interpolates ... using the sim tick progress fraction").
func Interpolate(prev, curr entity.Position, fraction float64) entity.Position {
	if fraction <= 0 {
		return prev
	}
	if fraction >= 1 {
		return curr
	}
	return entity.Position{
		X: prev.X + (curr.X-prev.X)*fraction,
		Y: prev.Y + (curr.Y-prev.Y)*fraction,
		Z: prev.Z + (curr.Z-prev.Z)*fraction,
	}
}
