package tickadjust

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultBounds() Bounds {
	return Bounds{
		HistoryLength:        15,
		MinFreshDiffs:        3,
		Target:               2,
		AcceptableBoundLower: 1,
		AcceptableBoundUpper: 3,
		MaxBoundLower:        -128,
		MaxBoundUpper:        60,
	}
}

func TestNoAdjustmentWithinAcceptableBounds(t *testing.T) {
	c := New(defaultBounds())
	for _, d := range []Diff{2, 2, 2} {
		out := c.Observe(d)
		assert.Falsef(t, out.ForceDisconnect, "unexpected disconnect for diff %d", d)
	}
	out := c.Tick()
	assert.False(t, out.Adjustment.Issued, "expected no adjustment")
}

func TestNoAdjustmentBelowMinFreshDiffs(t *testing.T) {
	c := New(defaultBounds())
	c.Observe(50)
	c.Observe(50)
	out := c.Tick()
	assert.False(t, out.Adjustment.Issued, "expected no adjustment before MinFreshDiffs reached")
}

func TestAdjustmentIssuedWhenMeanOutsideAcceptableBounds(t *testing.T) {
	c := New(defaultBounds())
	for _, d := range []Diff{10, 10, 10, 10, 10} {
		c.Observe(d)
	}
	out := c.Tick()
	assert.True(t, out.Adjustment.Issued, "expected an adjustment to be issued")
	assert.Equal(t, int8(2-10), out.Adjustment.TickAdjustment)
	assert.Equal(t, uint8(1), out.Adjustment.AdjustmentIteration)
}

func TestTruncatedMeanDropsExtremes(t *testing.T) {
	c := New(defaultBounds())
	// min=0, max=100 are dropped; mean of {2,2,2} = 2, inside the acceptable window
	for _, d := range []Diff{0, 2, 2, 2, 100} {
		c.Observe(d)
	}
	out := c.Tick()
	assert.False(t, out.Adjustment.Issued, "expected extremes to be dropped leaving mean in bounds")
}

func TestForceDisconnectOnMaxBoundViolation(t *testing.T) {
	c := New(defaultBounds())
	out := c.Observe(1000)
	assert.True(t, out.ForceDisconnect, "expected force-disconnect for out-of-max-bound diff")
}

func TestIterationIncrementsAcrossAdjustments(t *testing.T) {
	c := New(defaultBounds())
	for _, d := range []Diff{10, 10, 10, 10, 10} {
		c.Observe(d)
	}
	first := c.Tick()
	for _, d := range []Diff{10, 10, 10, 10, 10} {
		c.Observe(d)
	}
	second := c.Tick()
	assert.Equal(t, uint8(1), first.Adjustment.AdjustmentIteration)
	assert.Equal(t, uint8(2), second.Adjustment.AdjustmentIteration)
}

func TestFreshCounterResetsAfterTick(t *testing.T) {
	c := New(defaultBounds())
	for _, d := range []Diff{2, 2, 2} {
		c.Observe(d)
	}
	c.Tick()
	// only 2 fresh diffs after the reset, below MinFreshDiffs
	c.Observe(10)
	c.Observe(10)
	out := c.Tick()
	assert.False(t, out.Adjustment.Issued, "expected no adjustment with fresh count below threshold after reset")
}
