package predictor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/kinematics"
	"github.com/tessera-mmo/core/internal/tilemap"
	"github.com/tessera-mmo/core/internal/vec"
	"github.com/tessera-mmo/core/internal/wire"
)

func newTestPredictor(capacity int) *Predictor {
	tiles := tilemap.NewTileMap(tilemap.ChunkExtent{LenX: 4, LenY: 4, LenZ: 1}, nil)
	bounds := vec.Box{MinX: -0.4, MinY: -0.4, MinZ: 0, MaxX: 0.4, MaxY: 0.4, MaxZ: 1}
	return New(entity.ID(1), tiles, bounds, capacity, entity.Position{})
}

func TestSampleAdvancesPredictedPosition(t *testing.T) {
	p := newTestPredictor(128)
	right := entity.Input{Bits: uint8(entity.InputRight)}

	var pos entity.Position
	for tick := uint32(1); tick <= 5; tick++ {
		pos = p.Sample(tick, right, 0.1)
	}

	const want = 5 * kinematics.MovementSpeed * 0.1
	assert.InDelta(t, want, pos.X, 1e-9)
}

func TestReconcileSnapsThenReplaysNewerInputs(t *testing.T) {
	p := newTestPredictor(128)
	right := entity.Input{Bits: uint8(entity.InputRight)}
	for tick := uint32(1); tick <= 5; tick++ {
		p.Sample(tick, right, 0.1)
	}

	// Server authoritative position at tick 3 is 1.0, not the 1.2 the client
	// locally predicted (simulating a mid-flight correction).
	update := wire.MovementUpdate{
		Tick: 3,
		States: []wire.MovementState{
			{Entity: 1, PosX: 1.0, PosY: 0, PosZ: 0, VelX: kinematics.MovementSpeed},
		},
	}
	require.NoError(t, p.Reconcile(update, 0.1))

	// Replays the stored tick-4 and tick-5 inputs (Right) on top of the
	// corrected tick-3 position: 1.0 + 0.4 + 0.4 = 1.8.
	assert.InDelta(t, 1.8, p.Position().X, 1e-9)
}

func TestReconcileIgnoresUpdateForOtherEntity(t *testing.T) {
	p := newTestPredictor(128)
	right := entity.Input{Bits: uint8(entity.InputRight)}
	p.Sample(1, right, 0.1)
	before := p.Position()

	update := wire.MovementUpdate{Tick: 1, States: []wire.MovementState{{Entity: 99, PosX: 50}}}
	require.NoError(t, p.Reconcile(update, 0.1))
	assert.Equal(t, before, p.Position(), "expected position unchanged for an update about a different entity")
}

func TestReconcileReportsClockSkew(t *testing.T) {
	p := newTestPredictor(128)
	p.Sample(1, entity.Input{}, 0.1)

	update := wire.MovementUpdate{Tick: 5, States: []wire.MovementState{{Entity: 1}}}
	assert.Error(t, p.Reconcile(update, 0.1), "expected an error when the authoritative tick is ahead of the local tick")
}

func TestReconcileAcceptsServerStateWhenLagExceedsHistoryCapacity(t *testing.T) {
	p := newTestPredictor(2)
	right := entity.Input{Bits: uint8(entity.InputRight)}
	for tick := uint32(1); tick <= 10; tick++ {
		p.Sample(tick, right, 0.1)
	}

	update := wire.MovementUpdate{
		Tick:   0,
		States: []wire.MovementState{{Entity: 1, PosX: 99, PosY: 0, PosZ: 0}},
	}
	require.NoError(t, p.Reconcile(update, 0.1))
	assert.Equal(t, 99.0, p.Position().X, "expected server position accepted as-is without replay")
}

func TestInputSamplerChangedOnlyOnDifference(t *testing.T) {
	s := NewInputSampler()
	right := entity.Input{Bits: uint8(entity.InputRight)}

	assert.True(t, s.Changed(right), "first observation should always report changed")
	assert.False(t, s.Changed(right), "repeating the same input should not report changed")
	assert.True(t, s.Changed(entity.Input{}), "a different input should report changed")
}

func TestInputSamplerHeartbeatDue(t *testing.T) {
	s := NewInputSampler()
	start := time.Unix(0, 0)

	assert.True(t, s.HeartbeatDue(start, 500*time.Millisecond), "first check should always be due")
	assert.False(t, s.HeartbeatDue(start.Add(100*time.Millisecond), 500*time.Millisecond), "should not be due before the interval elapses")
	assert.True(t, s.HeartbeatDue(start.Add(600*time.Millisecond), 500*time.Millisecond), "should be due once the interval elapses")
}
