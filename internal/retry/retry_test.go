package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func TestRetrierSucceedsAfterFailures(t *testing.T) {
	r := NewRetrier("test", 3, time.Millisecond, nil, zerolog.Nop())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errUpstream
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetrierExhaustsAttempts(t *testing.T) {
	r := NewRetrier("test", 3, time.Millisecond, nil, zerolog.Nop())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errUpstream
	})
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, 3, calls)
}

func TestRetrierRespectsContextCancellation(t *testing.T) {
	r := NewRetrier("test", 5, time.Hour, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := r.Do(ctx, func(context.Context) error {
		calls++
		return errUpstream
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestRetrierExhaustionTripsBreaker(t *testing.T) {
	// threshold 1: a single exhausted Do opens the breaker
	b := NewBreaker("test", 1, time.Hour, zerolog.Nop())
	r := NewRetrier("test", 2, time.Millisecond, b, zerolog.Nop())

	err := r.Do(context.Background(), func(context.Context) error { return errUpstream })
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, "open", b.State())

	// While open, Do fails fast without invoking fn.
	calls := 0
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, 0, calls)
}

func TestRetrierCancelledTrialReopensBreaker(t *testing.T) {
	b := NewBreaker("test", 1, 10*time.Millisecond, zerolog.Nop())
	r := NewRetrier("test", 2, time.Hour, b, zerolog.Nop())

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	// The half-open trial fails once, then the context is cancelled
	// during the backoff wait. The breaker must settle back to open.
	ctx, cancel := context.WithCancel(context.Background())
	err := r.Do(ctx, func(context.Context) error {
		cancel()
		return errUpstream
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "open", b.State())

	// After another timeout window the breaker admits a new trial.
	time.Sleep(20 * time.Millisecond)
	calls := 0
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "closed", b.State())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker("test", 3, time.Hour, zerolog.Nop())

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	require.Equal(t, "closed", b.State())

	b.RecordFailure()
	require.Equal(t, "open", b.State())
	require.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b := NewBreaker("test", 1, 20*time.Millisecond, zerolog.Nop())
	b.RecordFailure()
	require.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)

	// One trial call goes through; concurrent calls keep failing fast.
	require.NoError(t, b.Allow())
	require.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	b.RecordSuccess()
	require.Equal(t, "closed", b.State())
	require.NoError(t, b.Allow())
}

func TestBreakerReopensOnFailedTrial(t *testing.T) {
	b := NewBreaker("test", 1, 20*time.Millisecond, zerolog.Nop())
	b.RecordFailure()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	require.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", 2, time.Hour, zerolog.Nop())
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	require.Equal(t, "closed", b.State())
}
