package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// Recover returns middleware that recovers from panics in the handler chain.
// A panic becomes a recoverable strategy error and is logged with a stack
// trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("strategy panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("strategy", j.Strategy),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = strategy.Recoverable("strategy panicked", fmt.Errorf("%v", r))
			}
		}()
		return next(ctx)
	}
}
