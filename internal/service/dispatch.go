package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher schedules background pipeline tasks. Dispatch must not block
// the caller; the task records its own outcome in a terminal status field.
type Dispatcher interface {
	Dispatch(name string, task func(ctx context.Context))
	// Wait blocks until every dispatched task has finished.
	Wait()
}

type goroutineDispatcher struct {
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher builds a goroutine-backed dispatcher. Each task runs on a
// detached context bounded by the operational timeout, so an abandoned
// request cannot cancel an in-flight pipeline run.
func NewDispatcher(timeout time.Duration, logger zerolog.Logger) Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &goroutineDispatcher{
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

func (d *goroutineDispatcher) Dispatch(name string, task func(ctx context.Context)) {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Str("task", name).Interface("panic", r).Msg("background task panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		task(ctx)
	}()
}

// Wait is used on shutdown and by tests that need the pipeline drained.
func (d *goroutineDispatcher) Wait() {
	d.wg.Wait()
}
