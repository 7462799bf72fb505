// Package ext defines the diagnostics sink of the engine. Extensions are
// notified of execution events and react to them: logging, metrics,
// tracing.
//
// Each hook is a separate interface so extensions opt in only to the
// events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Execution hooks
// ──────────────────────────────────────────────────

// JobStarted is called when a dispatch begins, before the first attempt.
type JobStarted interface {
	OnJobStarted(ctx context.Context, x *job.Execution, scheduledAt time.Time) error
}

// JobRetrying is called after a failed attempt, before the backoff wait.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, x *job.Execution, attempt int, delay time.Duration) error
}

// JobSucceeded is called after a dispatch ends in success.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, x *job.Execution, res *job.Result, elapsed time.Duration) error
}

// JobFailed is called for every failed attempt, and once for a soft
// failure. attempt is 1-indexed.
type JobFailed interface {
	OnJobFailed(ctx context.Context, x *job.Execution, err error, attempt int) error
}

// JobChained is called for each follow-on job pushed to the chain queue.
type JobChained interface {
	OnJobChained(ctx context.Context, fromJobID, toJobID string) error
}

// JobDeadLettered is called after a terminal failure was recorded as a
// dead letter.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, item *dlq.Item) error
}

// ──────────────────────────────────────────────────
// Ingestion hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after an ad-hoc job was accepted by the queue.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, jobID string, meta job.Metadata) error
}

// TriggerFired is called after the scheduler dispatched a due trigger.
type TriggerFired interface {
	OnTriggerFired(ctx context.Context, jobID, triggerID string, dueAt time.Time) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
