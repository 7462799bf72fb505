// Package middleware provides composable middleware for job execution.
//
// A [Middleware] wraps one attempt of a job. The executor builds the chain
// fresh for every attempt, with the first registered middleware outermost:
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs each attempt's outcome and duration
//   - [Recover] turns handler panics into errors, so they are retried
//   - [Timeout] bounds an attempt and marks expiry with chrono.ErrJobTimeout
//   - [Tracing] wraps the attempt in an OpenTelemetry span
//   - [Metrics] records per-job duration and outcome counters
//   - [CircuitBreaker] stops calling a job's handler after repeated errors
//
// # Writing Custom Middleware
//
//	func Audit(sink AuditSink) middleware.Middleware {
//	    return func(ctx context.Context, x *job.Execution, next middleware.Handler) (*job.Result, error) {
//	        res, err := next(ctx)
//	        sink.Record(x.JobID(), err)
//	        return res, err
//	    }
//	}
package middleware
