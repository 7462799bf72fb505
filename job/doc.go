// Package job defines what a job is: its [Definition], the [RetryPolicy]
// that governs failed attempts, the [Result] a handler returns, and the
// insertion-ordered [Registry] the scheduler and dispatcher resolve ids
// against.
//
// # Defining a Job
//
// Handlers are typed. [New] captures, at registration time, both a decoder
// from stored or enqueued input into T and a factory for a default T used
// when a trigger fires without static input:
//
//	report := job.New("nightly-report",
//	    func(ctx context.Context, in ReportInput) (*job.Result, error) {
//	        url, err := build(ctx, in)
//	        if err != nil {
//	            return nil, err
//	        }
//	        return job.Succeeded(url), nil
//	    },
//	    job.WithTrigger(trigger.MustCron("0 2 * * *")),
//	    job.WithRetry(job.ExponentialRetry(3, time.Second)),
//	    job.WithLock(),
//	    job.WithOnSuccess("notify-report"),
//	)
//
// A returned error is a failed attempt and is subject to the retry policy.
// A Result with Success=false and a nil error is a final, soft failure: it
// is logged and chained but never retried.
//
// # Validation
//
// [Validate] is advisory. It reports dangling chain targets, invalid retry
// policies and triggered jobs that can never build an input, without
// stopping anything from running.
package job
