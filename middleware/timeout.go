package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// Timeout returns middleware that bounds each attempt by d. A zero d
// disables the deadline.
//
// The handler runs on its own goroutine. Once the deadline passes the
// attempt fails with a recoverable error whether or not the strategy
// honours its context; a result it returns later is discarded.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("strategy panicked",
						slog.String("job_id", j.ID.String()),
						slog.String("strategy", j.Strategy),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)
					done <- strategy.Recoverable("strategy panicked", fmt.Errorf("%v", r))
				}
			}()
			done <- next(ctx)
		}()

		select {
		case err := <-done:
			if err == nil && ctx.Err() != nil {
				return strategy.Recoverable("fetch timed out", ctx.Err())
			}
			return err
		case <-ctx.Done():
			logger.Warn("attempt abandoned at deadline",
				slog.String("job_id", j.ID.String()),
				slog.String("strategy", j.Strategy),
				slog.Duration("timeout", d),
			)
			return strategy.Recoverable("fetch timed out", ctx.Err())
		}
	}
}
