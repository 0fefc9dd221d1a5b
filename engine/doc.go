// Package engine wires the scrapper subsystems together and provides the
// application-level API: submission with deduplication, status queries,
// operator actions and recurring schedules.
//
// The engine package sits above every subsystem package (job, dedup,
// queue, worker, schedule) and below the application layer (api,
// cmd/scrapper), which keeps the root package free to define the shared
// Entity and error values.
//
// # Building an Engine
//
//	eng, err := engine.New(
//	    engine.WithStore(pgStore),
//	    engine.WithBroker(redisBroker),
//	    engine.WithDedupIndex(redisBroker),
//	    engine.WithStrategy(web.NewHTML()),
//	    engine.WithConcurrency(20),
//	)
//
// # Submitting and Polling
//
//	jobID, err := eng.Submit(ctx, engine.Request{
//	    Target:   "https://example.com/pricing",
//	    Strategy: "html",
//	})
//	j, err := eng.Get(ctx, jobID)
//
// Identical requests (same normalized target, strategy and params) share
// one job while it is active.
//
// # Options
//
//   - [WithStore], [WithBroker], [WithDedupIndex]: backends
//   - [WithConfig], [WithConcurrency], [WithMaxAttempts]: tunables
//   - [WithStrategy]: register a fetch strategy
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add middleware around strategy execution
//   - [WithBackoff]: replace the retry delay curve
//   - [WithThrottle]: per-host politeness limits
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
package engine
