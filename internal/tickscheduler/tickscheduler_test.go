package tickscheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunAdvancesTickMonotonically(t *testing.T) {
	var count uint32
	var lastTick uint32
	s := New(time.Millisecond, 50*time.Millisecond, func(tick uint32) {
		assert.Equal(t, atomic.LoadUint32(&lastTick)+1, tick)
		atomic.StoreUint32(&lastTick, tick)
		atomic.AddUint32(&count, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	assert.NotZero(t, atomic.LoadUint32(&count), "expected at least one tick to run")
	assert.Equal(t, atomic.LoadUint32(&count), s.CurrentTick())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(time.Millisecond, 50*time.Millisecond, func(tick uint32) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return promptly after context cancellation")
	}
}
