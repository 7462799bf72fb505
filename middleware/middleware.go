// Package middleware provides composable middleware for job execution.
// Middleware wraps each attempt's handler call synchronously and can
// observe or alter it (recover from panics, log, trace, trip a breaker).
package middleware

import (
	"context"

	"github.com/xraph/chrono/job"
)

// Handler is the rest of the chain down to the job's handler.
type Handler func(ctx context.Context) (*job.Result, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// attempt's context, the execution, and the next handler. Middleware MUST
// call next to continue the chain unless short-circuiting.
type Middleware func(ctx context.Context, x *job.Execution, next Handler) (*job.Result, error)

// Chain composes middleware into one. The first middleware in the list is
// the outermost wrapper:
//
//	Chain(logging, recover, tracing) runs logging → recover → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, x *job.Execution, next Handler) (*job.Result, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (*job.Result, error) {
				return mw(ctx, x, prev)
			}
		}
		return h(ctx)
	}
}
