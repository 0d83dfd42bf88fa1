// Package tasks runs detached best-effort work such as persistence and cache
// writes, isolated from the request that scheduled it.
package tasks

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

type Config struct {
	Concurrency int64         `envconfig:"BACKGROUND_CONCURRENCY" default:"16"`
	Timeout     time.Duration `envconfig:"BACKGROUND_TIMEOUT" default:"10s"`
}

// Runner bounds the number of concurrent background tasks. Tasks outlive the
// scheduling request's cancellation but not their own timeout.
type Runner struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Runner{sem: semaphore.NewWeighted(cfg.Concurrency), timeout: cfg.Timeout}
}

// Go schedules fn and returns immediately. It reports false when the runner
// is saturated and the task was dropped. Errors and panics are logged only.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	if !r.sem.TryAcquire(1) {
		logx.Warn().Str("task", name).Msg("background runner saturated, dropping task")
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				logx.Error().Str("task", name).Msgf("background task panic: %v", rec)
			}
		}()

		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		start := time.Now()
		if err := fn(bgCtx); err != nil {
			logx.Error().Err(err).Str("task", name).Dur("elapsed", time.Since(start)).Msg("background task failed")
			return
		}
		logx.Debug().Str("task", name).Dur("elapsed", time.Since(start)).Msg("background task done")
	}()
	return true
}

// Wait blocks until every scheduled task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
