package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitAll(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestRunner_Go(t *testing.T) {
	t.Run("Should run tasks in the background", func(t *testing.T) {
		r := NewRunner(Config{Concurrency: 4, Timeout: time.Second})
		var ran atomic.Int32
		for i := 0; i < 3; i++ {
			assert.True(t, r.Go(context.Background(), "count", func(ctx context.Context) error {
				ran.Add(1)
				return nil
			}))
		}
		waitAll(t, r)
		assert.Equal(t, int32(3), ran.Load())
	})

	t.Run("Should survive cancellation of the scheduling context", func(t *testing.T) {
		r := NewRunner(Config{Concurrency: 1, Timeout: time.Second})
		ctx, cancel := context.WithCancel(context.Background())
		var sawErr atomic.Value
		r.Go(ctx, "detached", func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			sawErr.Store(ctx.Err() == nil)
			return nil
		})
		cancel()
		waitAll(t, r)
		assert.Equal(t, true, sawErr.Load())
	})

	t.Run("Should isolate failures and panics", func(t *testing.T) {
		r := NewRunner(Config{Concurrency: 4, Timeout: time.Second})
		var ok atomic.Bool
		r.Go(context.Background(), "fails", func(ctx context.Context) error { return errors.New("boom") })
		r.Go(context.Background(), "panics", func(ctx context.Context) error { panic("bad") })
		r.Go(context.Background(), "succeeds", func(ctx context.Context) error {
			ok.Store(true)
			return nil
		})
		waitAll(t, r)
		assert.True(t, ok.Load())
	})

	t.Run("Should drop tasks when saturated", func(t *testing.T) {
		r := NewRunner(Config{Concurrency: 1, Timeout: time.Second})
		release := make(chan struct{})
		require.True(t, r.Go(context.Background(), "blocker", func(ctx context.Context) error {
			<-release
			return nil
		}))
		assert.False(t, r.Go(context.Background(), "dropped", func(ctx context.Context) error { return nil }))
		close(release)
		waitAll(t, r)
	})

	t.Run("Should bound task duration", func(t *testing.T) {
		r := NewRunner(Config{Concurrency: 1, Timeout: 10 * time.Millisecond})
		var deadline atomic.Bool
		r.Go(context.Background(), "slow", func(ctx context.Context) error {
			<-ctx.Done()
			deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		})
		waitAll(t, r)
		assert.True(t, deadline.Load())
	})
}
