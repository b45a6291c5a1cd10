package mixer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsBothTicks(t *testing.T) {
	s := NewScheduler(time.Millisecond, 5*time.Millisecond)
	var fast, slow atomic.Int32

	s.Start(context.Background(),
		func(context.Context) { fast.Add(1) },
		func(context.Context) { slow.Add(1) },
	)
	defer s.Stop()

	require.Eventually(t, func() bool {
		return fast.Load() >= 5 && slow.Load() >= 2
	}, 2*time.Second, time.Millisecond)
}

func TestSchedulerCallbacksNeverOverlap(t *testing.T) {
	s := NewScheduler(time.Millisecond, 2*time.Millisecond)
	var running, overlaps, calls atomic.Int32
	cb := func(context.Context) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(200 * time.Microsecond)
		running.Add(-1)
		calls.Add(1)
	}

	s.Start(context.Background(), cb, cb)
	require.Eventually(t, func() bool { return calls.Load() >= 20 }, 2*time.Second, time.Millisecond)
	s.Stop()

	assert.Zero(t, overlaps.Load())
}

func TestSchedulerStopWaitsForInFlightCallback(t *testing.T) {
	s := NewScheduler(time.Millisecond, time.Hour)
	entered := make(chan struct{})
	var finished atomic.Bool
	var once atomic.Bool

	s.Start(context.Background(), func(context.Context) {
		if once.Swap(true) {
			return
		}
		close(entered)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}, func(context.Context) {})

	<-entered
	s.Stop()
	assert.True(t, finished.Load(), "Stop returned before the callback finished")

	// Stop is idempotent.
	s.Stop()
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	s := NewScheduler(time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	s.Start(ctx, func(context.Context) { calls.Add(1) }, func(context.Context) {})
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, time.Millisecond)

	cancel()
	s.Stop()
	n := calls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, calls.Load())
}
