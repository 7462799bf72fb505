package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/job"
)

// Timeout returns middleware that bounds an attempt to d. An error returned
// after the deadline passed is wrapped with chrono.ErrJobTimeout; it is
// still an ordinary failed attempt and is retried like any other. A zero
// d disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, x *job.Execution, next Handler) (*job.Result, error) {
		if d <= 0 {
			return next(ctx)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		res, err := next(attemptCtx)
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: job %s after %s: %w", chrono.ErrJobTimeout, x.JobID(), d, err)
		}
		return res, err
	}
}
