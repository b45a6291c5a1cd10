package mixer

import (
	"context"
	"sync"
	"time"
)

// Scheduler drives the fast (metering) and slow (reconciliation) ticks from
// a single goroutine, so the two callbacks never run concurrently.
type Scheduler struct {
	fast time.Duration
	slow time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(fast, slow time.Duration) *Scheduler {
	return &Scheduler{fast: fast, slow: slow}
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
// Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context, onFast, onSlow func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done, onFast, onSlow)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}, onFast, onSlow func(ctx context.Context)) {
	defer close(done)

	fast := time.NewTicker(s.fast)
	defer fast.Stop()
	slow := time.NewTicker(s.slow)
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fast.C:
			onFast(ctx)
		case <-slow.C:
			onSlow(ctx)
		}
	}
}

// Stop cancels the loop and waits for an in-flight callback to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
