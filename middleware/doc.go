// Package middleware provides composable middleware around strategy
// execution.
//
// A [Middleware] wraps the call that runs a job's fetch strategy. Middleware
// are composed into a chain using [Chain] and applied for every attempt.
// The first middleware in the slice is the outermost wrapper.
//
//	// recover → tracing → logging → timeout → strategy
//	chain := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.Tracing(),
//	    middleware.Logging(logger),
//	    middleware.Timeout(30*time.Second, logger),
//	)
//
// # Built-in Middleware
//
//   - [Logging] logs target, strategy, attempt, duration and outcome
//   - [Recover] converts panics into recoverable strategy errors
//   - [Timeout] bounds each attempt with a deadline
//   - [Tracing] wraps the attempt in an OpenTelemetry span
//   - [Metrics] records per-strategy duration and outcome
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
