package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"feed_syncer/internal/domain"
	"feed_syncer/internal/metrics"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

// Scheduler runs the syncer once on start and then on every wall-clock
// multiple of interval. At most one run is in flight.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewScheduler(syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.trigger(ctx)

	timer := time.NewTimer(s.untilNextTick())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for in-flight run")
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.trigger(ctx)
			timer.Reset(s.untilNextTick())
		}
	}
}

// trigger starts a run in the background and reports whether it did. A run
// is not cancelled when ctx is done.
func (s *Scheduler) trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous sync still running, skipping tick")
		metrics.RunSkipped()
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		if _, err := s.syncer.Sync(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("sync failed", "error", err)
		}
	}()
	return true
}

func (s *Scheduler) untilNextTick() time.Duration {
	now := s.now()
	return now.Truncate(s.interval).Add(s.interval).Sub(now)
}
