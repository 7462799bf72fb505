// Package chrono is a job scheduling and execution engine for Go.
//
// Jobs are registered by id with a typed handler and optional trigger
// (cron, interval, one-shot delay), retry policy, timeout, distributed lock
// and success/failure chains. The engine polls triggers, drains ad-hoc
// enqueued work, retries failed attempts with backoff, records one execution
// log per dispatch, chains follow-on jobs, and moves exhausted failures to a
// dead-letter store.
//
// # Quick Start
//
//	eng, err := engine.New(engine.WithStore(memory.New()))
//	if err != nil { ... }
//
//	err = eng.Register(job.New("report",
//	    func(ctx context.Context, in ReportInput) (*job.Result, error) {
//	        return job.Succeeded(nil), build(ctx, in)
//	    },
//	    job.WithTrigger(trigger.MustCron("0 6 * * *")),
//	    job.WithRetry(job.ExponentialRetry(3, time.Second)),
//	))
//
//	eng.Start(ctx)
//	defer eng.Stop(ctx)
//
// # Architecture
//
// Each subsystem (scheduler, history, dlq, chain, queue) defines its own
// store interface. A single backend in store/memory, store/redis or
// store/postgres implements all of them, composed as store.Store. The root
// package holds configuration and sentinel errors shared by every
// subsystem.
package chrono
