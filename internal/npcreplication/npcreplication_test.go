package npcreplication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/wire"
)

func newTestStore() (*entity.Store, entity.ID) {
	store := entity.NewStore(entity.NewPool())
	id := store.Spawn()
	entity.Insert(store, id, entity.Position{})
	return store, id
}

func TestDrainStallsWithoutData(t *testing.T) {
	r := New(10)
	store, _ := newTestStore()
	assert.False(t, r.Drain(5, store), "expected no entry to apply before offset elapses or data arrives")
}

func TestDrainAppliesEntryAtPastTickOffset(t *testing.T) {
	r := New(10)
	store, id := newTestStore()

	update := wire.MovementUpdate{
		Tick:   3,
		States: []wire.MovementState{{Entity: id, PosX: 7, PosY: 8, PosZ: 0}},
	}
	r.ObserveMovementUpdate(update)

	require.True(t, r.Drain(13, store), "expected an entry to apply at currentTick-offset == 3")
	pos, _ := entity.Get[entity.Position](store, id)
	assert.Equal(t, float64(7), pos.X)
	assert.Equal(t, float64(8), pos.Y)
	assert.False(t, r.Drain(13, store), "expected the entry to be consumed after the first Drain")
}

func TestGapFillConfirmsSkippedTicksAsNoChange(t *testing.T) {
	r := New(0)
	store, id := newTestStore()

	r.ObserveMovementUpdate(wire.MovementUpdate{Tick: 1, States: []wire.MovementState{{Entity: id, PosX: 1}}})
	// Tick 5 arriving confirms 2, 3, 4 as "no change" without data for them.
	r.ObserveMovementUpdate(wire.MovementUpdate{Tick: 5, States: []wire.MovementState{{Entity: id, PosX: 5}}})

	for tick := uint32(2); tick <= 4; tick++ {
		assert.Truef(t, r.Drain(tick, store), "expected gap-filled tick %d to be present (confirmed no-change)", tick)
	}
	require.True(t, r.Drain(5, store), "expected tick 5's update to apply")
	pos, _ := entity.Get[entity.Position](store, id)
	assert.Equal(t, float64(5), pos.X)
}

func TestObserveConfirmationFillsEntryWithoutData(t *testing.T) {
	r := New(0)
	store, id := newTestStore()

	r.ObserveConfirmation(2)
	require.True(t, r.Drain(2, store), "expected a bare confirmation to produce a drainable (no-op) entry")
	pos, _ := entity.Get[entity.Position](store, id)
	assert.Equal(t, entity.Position{}, pos, "expected position unchanged by a no-op confirmation")
}

func TestDrainIgnoresUnknownEntityWithoutPanicking(t *testing.T) {
	r := New(0)
	store, _ := newTestStore()

	r.ObserveMovementUpdate(wire.MovementUpdate{Tick: 1, States: []wire.MovementState{{Entity: entity.ID(999), PosX: 1}}})
	assert.True(t, r.Drain(1, store), "expected the entry to still be consumed even if its entity is unknown")
}

func TestInterpolateBlendsBetweenPreviousAndCurrent(t *testing.T) {
	prev := entity.Position{X: 0, Y: 0, Z: 0}
	curr := entity.Position{X: 10, Y: 0, Z: 0}

	got := Interpolate(prev, curr, 0.25)
	assert.Equal(t, float64(2.5), got.X)
	assert.Equal(t, prev, Interpolate(prev, curr, 0), "fraction 0 should return prev exactly")
	assert.Equal(t, curr, Interpolate(prev, curr, 1), "fraction 1 should return curr exactly")
}
