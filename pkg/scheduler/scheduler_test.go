package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-dev/resalt/pkg/errors"
)

func TestAddRejectsBadSpec(t *testing.T) {
	s := New()
	err := s.Add("broken", "every once in a while", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequest(err))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("noop", "@hourly", func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	s := New()
	var runs atomic.Int32
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	require.NoError(t, s.Add("blocker", "@every 50ms", func(context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	// Several ticks pass while the first run blocks; none may stack.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not drain after cancel")
	}
}

func TestFailingJobKeepsSchedule(t *testing.T) {
	s := New()
	runs := make(chan struct{}, 8)
	require.NoError(t, s.Add("flaky", "@every 50ms", func(context.Context) error {
		select {
		case runs <- struct{}{}:
		default:
		}
		return fmt.Errorf("boom")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-runs:
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d never happened", i+1)
		}
	}
}

func TestJobSeesRunContext(t *testing.T) {
	s := New()
	type key struct{}
	got := make(chan any, 1)
	require.NoError(t, s.Add("probe", "@every 10ms", func(ctx context.Context) error {
		select {
		case got <- ctx.Value(key{}):
		default:
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "wired"))
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case v := <-got:
		assert.Equal(t, "wired", v)
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
}
