package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives the pipeline on a fixed interval. Ticks never overlap:
// Poll itself drops re-entrant calls, so a slow poll simply swallows the
// ticks that fire while it runs.
type Scheduler struct {
	pipe     *Pipeline
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(pipe *Pipeline, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		pipe:     pipe,
		interval: interval,
		log:      log.With(zap.String("component", "scheduler")),
	}
}

// Start launches the poll loop. Returns false if it was already running;
// starting is idempotent.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	s.log.Info("listener started", zap.Duration("interval", s.interval))
	return true
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop halts the loop and waits for it to exit. Safe to call when stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("listener stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	// the loop owns the running flag so an externally cancelled context
	// leaves the scheduler restartable, not stuck reporting active
	defer func() {
		s.mu.Lock()
		s.running = false
		close(done)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// first pass immediately so a fresh process pins its cursor without
	// waiting a full interval
	if err := s.pipe.Poll(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("poll failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pipe.Poll(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("poll failed", zap.Error(err))
			}
		}
	}
}
