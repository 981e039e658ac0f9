package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Logger receives failures of background tasks. *logrus.Logger and
// *observability.Logger both satisfy it.
type Logger interface {
	Errorf(format string, args ...any)
}

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
func SafeGo(parentCtx context.Context, logger Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := run(ctx, fn); err != nil {
			logger.Errorf("background task %q failed: %v", taskName, err)
		}
	}()
}

// run calls fn and turns a panic into an error carrying the stack.
func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Batch processes items concurrently with at most workers in flight. Every
// item gets its own timeout. All errors are returned, including recovered
// panics; one failing item does not stop the others.
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(workers)

	for _, item := range items {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := run(taskCtx, func(ctx context.Context) error { return fn(ctx, item) }); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}
