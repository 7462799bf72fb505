package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/ext"
	"github.com/xraph/chrono/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobEnqueued     = (*Extension)(nil)
	_ ext.JobStarted      = (*Extension)(nil)
	_ ext.JobSucceeded    = (*Extension)(nil)
	_ ext.JobFailed       = (*Extension)(nil)
	_ ext.JobRetrying     = (*Extension)(nil)
	_ ext.JobChained      = (*Extension)(nil)
	_ ext.JobDeadLettered = (*Extension)(nil)
	_ ext.TriggerFired    = (*Extension)(nil)
	_ ext.Shutdown        = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string    `json:"action"`
	Resource string    `json:"resource"`
	Category string    `json:"category"`
	At       time.Time `json:"at"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges chrono lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, jobID string, meta job.Metadata) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceJob, jobID, CategoryJob, nil,
		metadataPairs(meta)...,
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, x *job.Execution, scheduledAt time.Time) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess,
		ResourceJob, x.JobID(), CategoryJob, nil,
		append(metadataPairs(x.Metadata), "scheduled_at", scheduledAt.Format(time.RFC3339))...,
	)
}

// OnJobSucceeded implements ext.JobSucceeded.
func (e *Extension) OnJobSucceeded(ctx context.Context, x *job.Execution, _ *job.Result, elapsed time.Duration) error {
	return e.record(ctx, ActionJobSucceeded, SeverityInfo, OutcomeSuccess,
		ResourceJob, x.JobID(), CategoryJob, nil,
		append(metadataPairs(x.Metadata), "elapsed_ms", elapsed.Milliseconds())...,
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, x *job.Execution, jobErr error, attempt int) error {
	return e.record(ctx, ActionJobFailed, SeverityWarning, OutcomeFailure,
		ResourceJob, x.JobID(), CategoryJob, jobErr,
		append(metadataPairs(x.Metadata),
			"attempt", attempt,
			"max_attempts", x.Definition.MaxAttempts(),
		)...,
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, x *job.Execution, attempt int, delay time.Duration) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		ResourceJob, x.JobID(), CategoryJob, nil,
		append(metadataPairs(x.Metadata),
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
		)...,
	)
}

// OnJobChained implements ext.JobChained.
func (e *Extension) OnJobChained(ctx context.Context, fromJobID, toJobID string) error {
	return e.record(ctx, ActionJobChained, SeverityInfo, OutcomeSuccess,
		ResourceJob, fromJobID, CategoryJob, nil,
		"to_job_id", toJobID,
	)
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *Extension) OnJobDeadLettered(ctx context.Context, item *dlq.Item) error {
	var reason error
	if item.Error != "" {
		reason = fmt.Errorf("%s", item.Error)
	}
	return e.record(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceDeadLetter, item.ID.String(), CategoryJob, reason,
		append(metadataPairs(item.Metadata),
			"job_id", item.JobID,
			"attempt", item.RetryAttempt,
			"max_attempts", item.MaxAttempts,
		)...,
	)
}

// ── Trigger and engine hooks ────────────────────────

// OnTriggerFired implements ext.TriggerFired.
func (e *Extension) OnTriggerFired(ctx context.Context, jobID, triggerID string, dueAt time.Time) error {
	return e.record(ctx, ActionTriggerFired, SeverityInfo, OutcomeSuccess,
		ResourceJob, jobID, CategoryTrigger, nil,
		"trigger_id", triggerID,
		"due_at", dueAt.Format(time.RFC3339),
	)
}

// OnShutdown implements ext.Shutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionEngineShutdown, SeverityInfo, OutcomeSuccess,
		ResourceEngine, "", CategoryEngine, nil,
	)
}

// ── Internal helpers ────────────────────────────────

func metadataPairs(m job.Metadata) []any {
	var kv []any
	if m.CorrelationID != "" {
		kv = append(kv, "correlation_id", m.CorrelationID)
	}
	if m.TriggerSource != "" {
		kv = append(kv, "trigger_source", m.TriggerSource)
	}
	if m.UserID != "" {
		kv = append(kv, "user_id", m.UserID)
	}
	return kv
}

// record builds and sends an audit event if the action is enabled.
// kvPairs are added to Metadata. Recorder errors are logged and swallowed.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		At:         e.now(),
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
