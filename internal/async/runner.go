// Package async runs detached background tasks whose outcome is only logged.
package async

import (
	"context"
	"fmt"
	"sync"

	"feedhub/internal/observability"
)

// Task is a unit of detached work.
type Task func(ctx context.Context) error

// Runner starts detached tasks and tracks them so shutdown and tests can wait.
type Runner struct {
	wg sync.WaitGroup
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Go runs task in its own goroutine. The task keeps the values of ctx but not
// its cancellation, so it outlives the request that started it. Failures and
// panics are logged and counted, never returned.
func (r *Runner) Go(ctx context.Context, operation string, fields map[string]interface{}, task Task) {
	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				observability.AsyncTaskFailures.WithLabelValues(operation).Inc()
				observability.LogAsyncOperationError(detached, operation, fmt.Errorf("panic: %v", rec), fields)
			}
		}()

		observability.LogAsyncOperationStart(detached, operation, fields)
		if err := task(detached); err != nil {
			observability.AsyncTaskFailures.WithLabelValues(operation).Inc()
			observability.LogAsyncOperationError(detached, operation, err, fields)
			return
		}
		observability.LogAsyncOperationEnd(detached, operation, fields)
	}()
}

// Wait blocks until every started task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown waits for in-flight tasks or until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
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
