// Package job defines the scrape job entity, its state machine and the
// store contract every backend implements.
//
// # State machine
//
//	pending → running → succeeded
//	pending → running → failed → retry_scheduled → pending → running → ...
//	pending → running → failed → dead
//	running → running            (stale attempt reclaimed, attempts+1)
//	any non-terminal → dead      (operator cancel)
//
// succeeded and dead are terminal. A failure is always recorded as failed
// before the retry decision is persisted, so a crash between the two never
// re-runs the strategy: the redelivered message finds the job in failed and
// goes straight to the retry controller.
//
// # Compare-and-set
//
// Every state change goes through [Transition], which validates the edge
// and persists with [Store.UpdateJobIf] conditioned on the state and
// attempt count the caller read. A concurrent writer makes the update fail
// with scrapper.ErrStateConflict and the caller re-reads.
package job
