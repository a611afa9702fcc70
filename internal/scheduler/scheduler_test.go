package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := New(10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	s := New(time.Hour, func(context.Context) error { return nil }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	var started atomic.Int32
	block := make(chan struct{})
	s := New(10*time.Millisecond, func(context.Context) error {
		started.Add(1)
		<-block
		return nil
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	// Several ticks fire while the first run is blocked; none of them
	// start a second run.
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), started.Load())

	close(block)
	cancel()
}

func TestSchedulerContinuesAfterFailure(t *testing.T) {
	var runs atomic.Int32
	s := New(10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("upstream down")
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestNewDefaultsInterval(t *testing.T) {
	s := New(0, func(context.Context) error { return nil }, zerolog.Nop())
	require.Equal(t, DefaultInterval, s.interval)
}
