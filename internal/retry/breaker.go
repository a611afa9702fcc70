// Package retry provides the one retry-with-backoff and circuit-breaker
// component used for every live pricing API integration. Each external
// integration holds a single named breaker instance shared across its
// callers.
package retry

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned without attempting the call while a
// breaker is open. Callers can errors.Is on it to apply degraded-mode
// handling instead of hanging on a dead upstream.
var ErrCircuitOpen = errors.New("circuit breaker open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker is a named circuit breaker. Closed passes calls through; at
// failureThreshold consecutive failures it opens and fails fast; after
// timeout it allows exactly one half-open trial call whose outcome
// decides between closing and reopening.
type Breaker struct {
	name      string
	threshold int
	timeout   time.Duration
	log       zerolog.Logger

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       breakerState
}

// NewBreaker creates a breaker. threshold defaults to 5 and timeout to
// 60s when zero.
func NewBreaker(name string, threshold int, timeout time.Duration, logger zerolog.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		timeout:   timeout,
		log:       logger.With().Str("breaker", name).Logger(),
	}
}

// Allow reports whether a call may proceed. Transitioning from open to
// half-open admits a single trial; further calls keep failing fast
// until that trial's outcome is recorded.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		if time.Since(b.lastFailure) > b.timeout {
			b.state = stateHalfOpen
			b.log.Info().Msg("circuit breaker half-open, allowing trial call")
			return nil
		}
		return ErrCircuitOpen
	}
}

// RecordSuccess resets the breaker to closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateClosed {
		b.log.Info().Msg("circuit breaker closed")
	}
	b.failures = 0
	b.state = stateClosed
}

// RecordFailure counts a failure. A failed half-open trial or reaching
// the threshold opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		if b.state != stateOpen {
			b.log.Error().Int("failures", b.failures).Msg("circuit breaker open")
		}
		b.state = stateOpen
	}
}

// State returns the current state name, mostly for health reporting.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Surface half-open when the cool-down elapsed, even before the
	// next Allow formally transitions.
	if b.state == stateOpen && time.Since(b.lastFailure) > b.timeout {
		return stateHalfOpen.String()
	}
	return b.state.String()
}
