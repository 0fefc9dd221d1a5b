package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// tracerName is the instrumentation scope name for scrapper tracing.
const tracerName = "github.com/rahulsharmaah/content-scrapper"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span. Without a global TracerProvider the noop tracer is used.
//
// Span attributes: scrapper.job.id, scrapper.strategy, scrapper.target,
// scrapper.attempt. Failed attempts also carry scrapper.failure_kind.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "scrapper.fetch.execute",
			trace.WithAttributes(
				attribute.String("scrapper.job.id", j.ID.String()),
				attribute.String("scrapper.strategy", j.Strategy),
				attribute.String("scrapper.target", j.Target),
				attribute.Int("scrapper.attempt", j.Attempts),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.SetAttributes(attribute.String("scrapper.failure_kind", string(strategy.Classify(err))))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
