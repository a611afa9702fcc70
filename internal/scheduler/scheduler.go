// Package scheduler periodically re-runs the full pricing ingestion.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is how often ingestion re-runs when not configured.
const DefaultInterval = 6 * time.Hour

// RunFunc is one scheduled ingestion pass.
type RunFunc func(ctx context.Context) error

// Scheduler runs ingestion on a fixed interval. Runs are single-flight:
// a tick that fires while the previous pass is still going is skipped,
// not queued.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	log      zerolog.Logger
	mu       sync.Mutex
}

// New builds a scheduler. interval defaults to 6h when zero.
func New(interval time.Duration, run RunFunc, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		interval: interval,
		run:      run,
		log:      logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start blocks until ctx is cancelled, triggering a pass every interval.
// Failed passes are logged and the schedule continues; transient
// upstream outages should not kill the refresh loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("ingestion scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("ingestion scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.mu.TryLock() {
		s.log.Warn().Msg("previous ingestion pass still running, skipping tick")
		return
	}
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.run(ctx); err != nil {
		s.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("scheduled ingestion failed")
		return
	}
	s.log.Info().Dur("elapsed", time.Since(start)).Msg("scheduled ingestion completed")
}
