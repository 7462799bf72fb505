package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/ext"
	"github.com/xraph/chrono/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*LoggingExtension)(nil)
	_ ext.JobStarted      = (*LoggingExtension)(nil)
	_ ext.JobRetrying     = (*LoggingExtension)(nil)
	_ ext.JobSucceeded    = (*LoggingExtension)(nil)
	_ ext.JobFailed       = (*LoggingExtension)(nil)
	_ ext.JobChained      = (*LoggingExtension)(nil)
	_ ext.JobDeadLettered = (*LoggingExtension)(nil)
	_ ext.JobEnqueued     = (*LoggingExtension)(nil)
	_ ext.TriggerFired    = (*LoggingExtension)(nil)
	_ ext.Shutdown        = (*LoggingExtension)(nil)
)

// LoggingExtension is the diagnostics listener: it writes every lifecycle
// hook as a structured record. Starts and chains log at debug.
type LoggingExtension struct {
	logger *slog.Logger
}

// NewLoggingExtension creates a LoggingExtension. A nil logger uses
// slog.Default().
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingExtension{logger: logger.With(slog.String("component", "chrono.diagnostics"))}
}

// Name implements ext.Extension.
func (l *LoggingExtension) Name() string { return "observability-logging" }

// OnJobStarted implements ext.JobStarted.
func (l *LoggingExtension) OnJobStarted(ctx context.Context, x *job.Execution, scheduledAt time.Time) error {
	l.logger.DebugContext(ctx, "job started",
		slog.String("job_id", x.JobID()),
		slog.Int("attempt", job.AttemptFromContext(ctx)),
		slog.Time("scheduled_at", scheduledAt),
	)
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (l *LoggingExtension) OnJobRetrying(ctx context.Context, x *job.Execution, attempt int, delay time.Duration) error {
	l.logger.WarnContext(ctx, "job retrying",
		slog.String("job_id", x.JobID()),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (l *LoggingExtension) OnJobSucceeded(ctx context.Context, x *job.Execution, _ *job.Result, elapsed time.Duration) error {
	l.logger.InfoContext(ctx, "job succeeded",
		slog.String("job_id", x.JobID()),
		slog.Duration("elapsed", elapsed),
		slog.String("correlation_id", x.Metadata.CorrelationID),
	)
	return nil
}

// OnJobFailed implements ext.JobFailed. err is nil for a soft failure.
func (l *LoggingExtension) OnJobFailed(ctx context.Context, x *job.Execution, err error, attempt int) error {
	attrs := []any{
		slog.String("job_id", x.JobID()),
		slog.Int("attempt", attempt),
		slog.String("correlation_id", x.Metadata.CorrelationID),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.ErrorContext(ctx, "job failed", attrs...)
	return nil
}

// OnJobChained implements ext.JobChained.
func (l *LoggingExtension) OnJobChained(ctx context.Context, fromJobID, toJobID string) error {
	l.logger.DebugContext(ctx, "job chained",
		slog.String("from_job_id", fromJobID),
		slog.String("to_job_id", toJobID),
	)
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (l *LoggingExtension) OnJobDeadLettered(ctx context.Context, item *dlq.Item) error {
	l.logger.ErrorContext(ctx, "job dead-lettered",
		slog.String("job_id", item.JobID),
		slog.String("dead_letter_id", item.ID.String()),
		slog.Int("retry_attempt", item.RetryAttempt),
		slog.String("error", item.Error),
	)
	return nil
}

// OnJobEnqueued implements ext.JobEnqueued.
func (l *LoggingExtension) OnJobEnqueued(ctx context.Context, jobID string, meta job.Metadata) error {
	l.logger.InfoContext(ctx, "job enqueued",
		slog.String("job_id", jobID),
		slog.String("correlation_id", meta.CorrelationID),
		slog.String("trigger_source", meta.TriggerSource),
	)
	return nil
}

// OnTriggerFired implements ext.TriggerFired.
func (l *LoggingExtension) OnTriggerFired(ctx context.Context, jobID, triggerID string, dueAt time.Time) error {
	l.logger.InfoContext(ctx, "trigger fired",
		slog.String("job_id", jobID),
		slog.String("trigger_id", triggerID),
		slog.Time("due_at", dueAt),
	)
	return nil
}

// OnShutdown implements ext.Shutdown.
func (l *LoggingExtension) OnShutdown(ctx context.Context) error {
	l.logger.InfoContext(ctx, "engine shutting down")
	return nil
}
