package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/ext"
	"github.com/xraph/chrono/job"
)

const meterName = "github.com/xraph/chrono/observability"

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobStarted      = (*MetricsExtension)(nil)
	_ ext.JobRetrying     = (*MetricsExtension)(nil)
	_ ext.JobSucceeded    = (*MetricsExtension)(nil)
	_ ext.JobFailed       = (*MetricsExtension)(nil)
	_ ext.JobChained      = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.JobEnqueued     = (*MetricsExtension)(nil)
	_ ext.TriggerFired    = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters through an
// OpenTelemetry meter. Every counter carries a job_id attribute.
type MetricsExtension struct {
	JobStarted      metric.Int64Counter
	JobRetried      metric.Int64Counter
	JobSucceeded    metric.Int64Counter
	JobFailed       metric.Int64Counter
	JobChained      metric.Int64Counter
	JobDeadLettered metric.Int64Counter
	JobEnqueued     metric.Int64Counter
	TriggerFired    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc)) //nolint:errcheck // noop on error
		return c
	}
	return &MetricsExtension{
		JobStarted:      counter("chrono.job.started", "Job attempts started"),
		JobRetried:      counter("chrono.job.retried", "Job retries scheduled"),
		JobSucceeded:    counter("chrono.job.succeeded", "Jobs that completed successfully"),
		JobFailed:       counter("chrono.job.failed", "Failed job attempts"),
		JobChained:      counter("chrono.job.chained", "Follow-up jobs enqueued by chains"),
		JobDeadLettered: counter("chrono.job.dead_lettered", "Jobs moved to the dead-letter store"),
		JobEnqueued:     counter("chrono.job.enqueued", "Jobs pushed onto the ad-hoc queue"),
		TriggerFired:    counter("chrono.trigger.fired", "Trigger occurrences dispatched"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobAttr(jobID string) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_id", jobID))
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, x *job.Execution, _ time.Time) error {
	m.JobStarted.Add(ctx, 1, jobAttr(x.JobID()))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, x *job.Execution, _ int, _ time.Duration) error {
	m.JobRetried.Add(ctx, 1, jobAttr(x.JobID()))
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, x *job.Execution, _ *job.Result, _ time.Duration) error {
	m.JobSucceeded.Add(ctx, 1, jobAttr(x.JobID()))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, x *job.Execution, _ error, _ int) error {
	m.JobFailed.Add(ctx, 1, jobAttr(x.JobID()))
	return nil
}

// OnJobChained implements ext.JobChained. The counter is keyed by the
// target job.
func (m *MetricsExtension) OnJobChained(ctx context.Context, _, toJobID string) error {
	m.JobChained.Add(ctx, 1, jobAttr(toJobID))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, item *dlq.Item) error {
	m.JobDeadLettered.Add(ctx, 1, jobAttr(item.JobID))
	return nil
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, jobID string, _ job.Metadata) error {
	m.JobEnqueued.Add(ctx, 1, jobAttr(jobID))
	return nil
}

// OnTriggerFired implements ext.TriggerFired.
func (m *MetricsExtension) OnTriggerFired(ctx context.Context, jobID, _ string, _ time.Time) error {
	m.TriggerFired.Add(ctx, 1, jobAttr(jobID))
	return nil
}
