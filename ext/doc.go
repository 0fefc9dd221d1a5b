// Package ext defines the extension system.
//
// Extensions are notified of job lifecycle events and can react to them:
// counting outcomes, forwarding to a webhook, writing an audit trail.
// Each hook is a separate interface so extensions opt in only to the
// events they care about.
//
// # Implementing an Extension
//
//	type Audit struct{}
//
//	func (a *Audit) Name() string { return "audit" }
//
//	func (a *Audit) OnJobDead(ctx context.Context, j *job.Job) error {
//	    log.Printf("job %s gave up on %s", j.ID, j.Target)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobSubmitted]: a new job was persisted
//   - [JobDeduplicated]: a submission was folded into an active job
//   - [JobStarted]: a worker claimed an attempt
//   - [JobSucceeded]: the strategy returned a result
//   - [JobFailed]: an attempt failed (before the retry decision)
//   - [JobRetryScheduled]: another attempt was scheduled
//   - [JobDead]: the job will never run again
//   - [ScheduleFired]: a recurring entry submitted a job
//   - [Shutdown]: the engine is stopping
//
// Hook errors are logged and never propagated.
package ext
