// Package worker runs jobs. The [Executor] drives one dispatch through
// locking, middleware, per-attempt timeouts and the retry loop, then records
// the outcome: a history log, chain items, and a dead letter when retries
// are exhausted. The [Dispatcher] resolves a job.Request against the
// registry, and the [QueueWorker] drains the ad-hoc queue into it one job
// at a time.
//
// The executor never lets an error escape: every path produces a
// *job.Result. Only Dispatch of an unknown job ID returns an error.
package worker
