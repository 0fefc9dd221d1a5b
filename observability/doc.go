// Package observability provides a Prometheus metrics extension for the
// scrapper engine. MetricsExtension implements the lifecycle hooks to count
// submissions, deduplicated submissions, attempts, successes, failures by
// kind, scheduled retries, dead jobs and schedule fires.
//
// For per-attempt tracing and OpenTelemetry metrics, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
