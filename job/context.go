package job

import "context"

type executionKey struct{}

type attemptKey struct{}

// ContextWithExecution returns a context carrying x, so handlers can read
// their job ID, metadata and trigger.
func ContextWithExecution(ctx context.Context, x *Execution) context.Context {
	return context.WithValue(ctx, executionKey{}, x)
}

// ExecutionFromContext returns the execution the context belongs to.
func ExecutionFromContext(ctx context.Context) (*Execution, bool) {
	x, ok := ctx.Value(executionKey{}).(*Execution)
	return x, ok
}

// ContextWithAttempt records the 1-indexed attempt number.
func ContextWithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFromContext returns the attempt number, or 0 outside an executor.
func AttemptFromContext(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}
