// Package tickadjust implements the per-client tick-skew controller (§4.8):
// it tracks the diff between each inbound message's tick and the server's
// currentTick, issues corrective adjustments when the client drifts outside
// an acceptable window, and flags clients for force-disconnect when drift
// exceeds the hard bound.
//
// Tracks a per-client rolling measure and acts on the aggregate rather than
// individual samples; the ring buffer follows the same design as
// internal/entity.InputHistory (fixed-size slice indexed by tick modulo
// capacity). The bounds and truncated-mean algorithm are transcribed
// directly from SPEC_FULL.md §4.8, which states the thresholds and formula
// normatively.
package tickadjust

// Diff — a single tick-diff sample: messageTick - currentTick at the time
// the message was received.
type Diff = int64

// Bounds describes the acceptable and max tick-diff windows plus the
// controller's tunables, supplied by internal/config.TickAdjustConfig.
type Bounds struct {
	HistoryLength        int
	MinFreshDiffs        int
	Target               Diff
	AcceptableBoundLower Diff
	AcceptableBoundUpper Diff
	MaxBoundLower        Diff
	MaxBoundUpper        Diff
}

// Controller tracks one client's tick-diff history and decides when to
// issue an adjustment or force-disconnect.
type Controller struct {
	bounds Bounds

	history   []Diff
	filled    bool
	next      int // индекс следующей записи в кольце
	numFresh  int
	iteration uint8
}

// New creates a Controller with the ring sized to bounds.HistoryLength.
func New(bounds Bounds) *Controller {
	n := bounds.HistoryLength
	if n < 1 {
		n = 1
	}
	return &Controller{
		bounds:  bounds,
		history: make([]Diff, n),
	}
}

// Outcome reports the result of Observe for one inbound message.
type Outcome struct {
	// ForceDisconnect is true if this single diff violated the max bound.
	ForceDisconnect bool
	// Adjustment is set (Issued=true) if an aggregate correction must be
	// embedded in the next outgoing server header for this client.
	Adjustment Adjustment
}

// Adjustment is the (tickAdjustment, adjustmentIteration) pair the server
// header carries when a correction is issued.
type Adjustment struct {
	Issued              bool
	TickAdjustment      int8
	AdjustmentIteration uint8
}

// Observe records one inbound message's tick diff. Call this once per
// received message that carries a tick field.
func (c *Controller) Observe(diff Diff) Outcome {
	if diff < c.bounds.MaxBoundLower || diff > c.bounds.MaxBoundUpper {
		return Outcome{ForceDisconnect: true}
	}

	c.history[c.next%len(c.history)] = diff
	c.next++
	if c.next >= len(c.history) {
		c.filled = true
	}
	c.numFresh++

	return Outcome{}
}

// Tick evaluates the accumulated fresh diffs for this network tick and
// decides whether to issue an adjustment (§4.8). Call this once per
// network tick per client, after all of that tick's Observe calls.
func (c *Controller) Tick() Outcome {
	if c.numFresh < c.bounds.MinFreshDiffs {
		return Outcome{}
	}

	mean := c.truncatedMean()
	if mean >= c.bounds.AcceptableBoundLower && mean <= c.bounds.AcceptableBoundUpper {
		c.numFresh = 0
		return Outcome{}
	}

	adjustment := c.bounds.Target - mean
	c.iteration++
	c.numFresh = 0

	return Outcome{
		Adjustment: Adjustment{
			Issued:              true,
			TickAdjustment:      clampInt8(adjustment),
			AdjustmentIteration: c.iteration,
		},
	}
}

// truncatedMean computes the mean of the fresh diffs (the last numFresh
// recorded, at most the ring size) after dropping the single largest and
// single smallest sample, matching §4.8's "truncated mean of the fresh diffs
// (drop extremes)".
func (c *Controller) truncatedMean() Diff {
	count := c.numFresh
	if count > len(c.history) {
		count = len(c.history)
	}
	if count == 0 {
		return 0
	}
	// fresh(0) is the most recent diff, written at slot c.next-1.
	fresh := func(i int) Diff { return c.history[(c.next-1-i)%len(c.history)] }
	if count <= 2 {
		var sum Diff
		for i := 0; i < count; i++ {
			sum += fresh(i)
		}
		return sum / Diff(count)
	}

	minV, maxV := fresh(0), fresh(0)
	var sum Diff
	for i := 0; i < count; i++ {
		v := fresh(i)
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	sum -= minV + maxV
	return sum / Diff(count-2)
}

// Acknowledge is called when a client message echoes an adjustment
// iteration, confirming the client applied it. It is a no-op: no caller
// compares the echoed iteration against c.iteration, and the controller's
// own state needs no update on acknowledgement since it only ever looks
// forward.
func (c *Controller) Acknowledge(iteration uint8) {
	_ = iteration
}

func clampInt8(v Diff) int8 {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return int8(v)
}
