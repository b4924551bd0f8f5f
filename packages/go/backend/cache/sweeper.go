package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleaner is any resource with its own age-based cleanup that should run on
// the sweep timer, such as generated audio files.
type Cleaner interface {
	Cleanup(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically evicts expired documents and runs extra cleaners.
type Sweeper struct {
	store    Store
	interval time.Duration
	cleaners []Cleaner
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewSweeper builds a sweeper. A non-positive interval selects DefaultSweepInterval.
func NewSweeper(store Store, interval time.Duration, logger *zap.SugaredLogger, cleaners ...Cleaner) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		cleaners: cleaners,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done. The first sweep happens one
// interval after start.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single pass. Failures are logged and never stop the timer.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	now := s.now()
	removed, err := s.store.Sweep(ctx, now)
	if err != nil {
		s.logger.Errorw("cache sweep failed", "error", err)
	} else if removed > 0 {
		s.logger.Infow("evicted expired documents", "count", removed)
	}

	for _, cleaner := range s.cleaners {
		n, err := cleaner.Cleanup(ctx, now)
		if err != nil {
			s.logger.Errorw("cleanup failed", "error", err)
			continue
		}
		if n > 0 {
			s.logger.Infow("removed stale files", "count", n)
		}
	}
	return removed
}
