// Package scheduler triggers a run function at a fixed interval, guaranteeing
// at most one run in flight. A tick that arrives while the previous run is
// still going is skipped rather than queued.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mirrorlabs.io/repomirror/pkg/plog"
)

// Scheduler drives periodic mirror runs.
type Scheduler struct {
	interval time.Duration
	run      func(ctx context.Context)

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a scheduler that calls run every interval.
func New(interval time.Duration, run func(ctx context.Context)) *Scheduler {
	return &Scheduler{interval: interval, run: run}
}

// Start runs one immediate trigger and then ticks until ctx is cancelled. It
// blocks until ctx is done and any in-flight run has finished.
func (s *Scheduler) Start(ctx context.Context) {
	plog.Info("Scheduler started", "interval", s.interval)

	s.trigger(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			plog.Info("Scheduler stopping")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

// trigger starts one run unless another is still in flight.
func (s *Scheduler) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		plog.Warn("Previous run still in progress, skipping this interval")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.run(ctx)
	}()
}
