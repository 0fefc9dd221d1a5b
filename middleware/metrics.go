package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// meterName is the instrumentation scope name for scrapper metrics.
const meterName = "github.com/rahulsharmaah/content-scrapper"

// Metrics returns middleware that records per-attempt metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - scrapper.fetch.duration (Float64Histogram): attempt time in seconds
//   - scrapper.fetch.executions (Int64Counter): attempts
//
// Both carry the attributes strategy and status ("ok", "recoverable" or
// "non_recoverable").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"scrapper.fetch.duration",
		metric.WithDescription("Duration of strategy execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"scrapper.fetch.executions",
		metric.WithDescription("Total number of strategy executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = string(strategy.Classify(err))
		}

		attrs := metric.WithAttributes(
			attribute.String("strategy", j.Strategy),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
