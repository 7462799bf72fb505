package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/chrono/job"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics become errors, so they count as a failed attempt.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, x *job.Execution, next Handler) (res *job.Result, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("job_id", x.JobID()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				res = nil
				retErr = fmt.Errorf("panic in job %s: %v", x.JobID(), r)
			}
		}()
		return next(ctx)
	}
}
