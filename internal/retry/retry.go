package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Retrier couples exponential backoff with a breaker. One instance per
// external integration; Do is safe for concurrent use.
type Retrier struct {
	maxRetries int
	backoff    time.Duration
	breaker    *Breaker
	log        zerolog.Logger
}

// NewRetrier builds a retrier named after its integration. maxRetries
// defaults to 3 and backoff to 1s when zero.
func NewRetrier(name string, maxRetries int, backoff time.Duration, breaker *Breaker, logger zerolog.Logger) *Retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Retrier{
		maxRetries: maxRetries,
		backoff:    backoff,
		breaker:    breaker,
		log:        logger.With().Str("retrier", name).Logger(),
	}
}

// Do runs fn with backoff `backoff * 2^attempt` between attempts. When
// the breaker is open it fails fast with ErrCircuitOpen. Exhaustion
// propagates the last error and records one failure against the
// breaker; any success resets it.
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	if r.breaker != nil {
		if err := r.breaker.Allow(); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			wait := r.backoff * (1 << (attempt - 1))
			r.log.Warn().
				Int("attempt", attempt).
				Int("max", r.maxRetries).
				Dur("wait", wait).
				Err(lastErr).
				Msg("retrying")
			select {
			case <-ctx.Done():
				// The run is abandoned mid-sequence; its outcome must
				// still reach the breaker, or a half-open trial would
				// stay unresolved and reject every later call.
				if r.breaker != nil {
					r.breaker.RecordFailure()
				}
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		if r.breaker != nil {
			r.breaker.RecordSuccess()
		}
		return nil
	}

	if r.breaker != nil {
		r.breaker.RecordFailure()
	}
	r.log.Error().Int("attempts", r.maxRetries).Err(lastErr).Msg("retries exhausted")
	return fmt.Errorf("exhausted %d attempts: %w", r.maxRetries, lastErr)
}
