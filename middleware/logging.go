package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// Logging returns middleware that logs attempt start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("attempt started",
			slog.String("job_id", j.ID.String()),
			slog.String("strategy", j.Strategy),
			slog.String("target", j.Target),
			slog.Int("attempt", j.Attempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("attempt failed",
				slog.String("job_id", j.ID.String()),
				slog.String("strategy", j.Strategy),
				slog.Int("attempt", j.Attempts),
				slog.String("kind", string(strategy.Classify(err))),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("attempt completed",
				slog.String("job_id", j.ID.String()),
				slog.String("strategy", j.Strategy),
				slog.Int("attempt", j.Attempts),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
