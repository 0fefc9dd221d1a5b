// Package dedup maps request fingerprints to the job that owns them.
//
// A fingerprint is the SHA-256 of the normalized target, the strategy name
// and the canonical JSON of the parameters, so two submissions that differ
// only in URL casing, default ports, fragments, query order or parameter key
// order collapse onto the same job.
//
// The [Index] contract is an atomic insert-if-absent keyed by fingerprint.
// [Service] layers the ownership rules on top: an entry whose job is still
// active (or cooling down after a terminal state) keeps its owner, while
// stale entries (terminal jobs that were never released, reservations whose
// job row was never written) are taken over with a compare-and-swap.
package dedup
