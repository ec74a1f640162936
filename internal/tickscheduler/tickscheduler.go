// Package tickscheduler implements the fixed-timestep accumulator loop that
// drives the authoritative simulation (§4.6).
//
// Uses the usual context.Context-driven goroutine shape: ctx.Done() for
// shutdown, sync/atomic-backed counters read from other goroutines, built
// out into an accumulator loop with late-tick detection per SPEC_FULL.md
// §4.6.
package tickscheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tessera-mmo/core/internal/logging"
)

// Scheduler runs one callback per fixed simulation step, tracking how much
// wall-clock time has accumulated beyond the last completed tick.
type Scheduler struct {
	timestep    time.Duration
	delayBudget time.Duration
	currentTick uint32
	onTick      func(tick uint32)
}

// New creates a Scheduler with the given fixed timestep and late-tick
// warning budget (SIM_DELAYED_TIME_S).
func New(timestep, delayBudget time.Duration, onTick func(tick uint32)) *Scheduler {
	return &Scheduler{timestep: timestep, delayBudget: delayBudget, onTick: onTick}
}

// CurrentTick returns the tick counter, safe to call from any goroutine
// (§4.6: "currentTick is readable from other threads").
func (s *Scheduler) CurrentTick() uint32 {
	return atomic.LoadUint32(&s.currentTick)
}

// Run executes the accumulator loop until ctx is cancelled (§4.6 steps 1-3):
//
//  1. measure elapsed time since the previous iteration and add to accumulator
//  2. while accumulator >= timestep: run one tick, subtract timestep, advance currentTick
//  3. if a single tick iteration exceeded timestep+delayBudget, log a warning
//
// It never fast-forwards more than one tick per loop iteration beyond what
// the accumulator already demands; it sleeps for the remaining budget
// between iterations rather than busy-waiting.
func (s *Scheduler) Run(ctx context.Context) {
	var accumulator time.Duration
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		accumulator += now.Sub(last)
		last = now

		for accumulator >= s.timestep {
			tickStart := time.Now()

			tick := atomic.AddUint32(&s.currentTick, 1)
			s.onTick(tick)

			elapsed := time.Since(tickStart)
			if elapsed > s.timestep+s.delayBudget {
				logging.LogTickLate(tick, elapsed, s.timestep+s.delayBudget)
			}

			accumulator -= s.timestep
		}

		sleep := s.timestep - accumulator
		if sleep <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}
