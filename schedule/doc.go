// Package schedule submits scrape jobs on a recurring basis.
//
// An [Entry] names a target, a strategy, its parameters and a cron spec.
// Standard five-field expressions and descriptors such as "@daily",
// "@weekly", "@monthly" or "@every 1h" are accepted.
//
// Any number of [Scheduler] instances may run against the same [Store].
// Each due entry is claimed with [Store.AdvanceSchedule], a compare-and-set
// on its NextRunAt, so a fire happens at most once per slot. The submission
// itself goes through the normal deduplicated path, so a fire that lands
// while the previous job for the same target is still active is folded
// into that job.
package schedule
