// Package scrapper is the job lifecycle engine behind content-scrapper:
// durable, deduplicated, retried scrape jobs executed by a pool of
// workers that coordinate only through a broker and a job store.
//
// Clients submit a target, an extraction strategy and its parameters.
// The engine fingerprints the request, reuses any active job for the same
// fingerprint, persists a pending job and hands it to the broker. Workers
// claim the job with a compare-and-set on the store, run the strategy under
// a timeout and persist the outcome before acknowledging the message.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithStore(memory.New()),
//	    engine.WithBroker(memqueue.New()),
//	)
//	eng.RegisterStrategy(web.NewHTML())
//	_ = eng.Start(ctx)
//	jobID, err := eng.Submit(ctx, engine.Request{Target: "https://example.com", Strategy: "html"})
//
// # Architecture
//
// Each subsystem (job, dedup, schedule) defines its own store interface and
// every backend under store/ implements all of them. The broker is a
// separate interface (queue.Broker) so the job store stays authoritative and
// the queue is only a scheduling hint.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package scrapper
