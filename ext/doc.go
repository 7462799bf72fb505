// Package ext is the engine's diagnostics sink.
//
// # Implementing an Extension
//
//	type Audit struct{}
//
//	func (a *Audit) Name() string { return "audit" }
//
//	func (a *Audit) OnJobSucceeded(ctx context.Context, x *job.Execution, res *job.Result, elapsed time.Duration) error {
//	    log.Printf("job %s done in %s", x.JobID(), elapsed)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobStarted], [JobRetrying], [JobSucceeded], [JobFailed] and
//     [JobChained] fire only when diagnostics are enabled on the engine
//   - [JobDeadLettered], [JobEnqueued], [TriggerFired] and [Shutdown]
//     always fire
//
// Hook errors are logged by the [Registry] and never reach the job.
package ext
