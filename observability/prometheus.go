package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/ext"
	"github.com/xraph/chrono/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*PrometheusExtension)(nil)
	_ ext.JobSucceeded    = (*PrometheusExtension)(nil)
	_ ext.JobFailed       = (*PrometheusExtension)(nil)
	_ ext.JobRetrying     = (*PrometheusExtension)(nil)
	_ ext.JobDeadLettered = (*PrometheusExtension)(nil)
	_ ext.JobEnqueued     = (*PrometheusExtension)(nil)
	_ ext.TriggerFired    = (*PrometheusExtension)(nil)
)

// PrometheusExtension exports lifecycle counters for scraping.
type PrometheusExtension struct {
	succeeded    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	enqueued     *prometheus.CounterVec
	triggered    *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewPrometheusExtension creates the collectors and registers them on reg.
// A collector that is already registered is reused; other registration
// errors are logged and leave the collector unexported.
func NewPrometheusExtension(reg prometheus.Registerer, logger *slog.Logger) *PrometheusExtension {
	if logger == nil {
		logger = slog.Default()
	}
	byJob := []string{"job_id"}
	p := &PrometheusExtension{
		succeeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_job_succeeded_total",
			Help: "Total number of successful job dispatches.",
		}, byJob),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_job_failed_total",
			Help: "Total number of failed job attempts.",
		}, byJob),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_job_retried_total",
			Help: "Total number of scheduled retries.",
		}, byJob),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_job_dead_lettered_total",
			Help: "Total number of dead-lettered jobs.",
		}, byJob),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_job_enqueued_total",
			Help: "Total number of ad-hoc enqueues.",
		}, byJob),
		triggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_trigger_fired_total",
			Help: "Total number of trigger occurrences dispatched.",
		}, byJob),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chrono_job_duration_seconds",
			Help:    "Duration of successful dispatches in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, byJob),
	}

	p.succeeded = register(reg, logger, p.succeeded)
	p.failed = register(reg, logger, p.failed)
	p.retried = register(reg, logger, p.retried)
	p.deadLettered = register(reg, logger, p.deadLettered)
	p.enqueued = register(reg, logger, p.enqueued)
	p.triggered = register(reg, logger, p.triggered)
	p.duration = register(reg, logger, p.duration)
	return p
}

func register[C prometheus.Collector](reg prometheus.Registerer, logger *slog.Logger, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	logger.Warn("observability: prometheus registration failed", slog.String("error", err.Error()))
	return c
}

// Name implements ext.Extension.
func (p *PrometheusExtension) Name() string { return "observability-prometheus" }

// OnJobSucceeded implements ext.JobSucceeded.
func (p *PrometheusExtension) OnJobSucceeded(_ context.Context, x *job.Execution, _ *job.Result, elapsed time.Duration) error {
	p.succeeded.WithLabelValues(x.JobID()).Inc()
	p.duration.WithLabelValues(x.JobID()).Observe(elapsed.Seconds())
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (p *PrometheusExtension) OnJobFailed(_ context.Context, x *job.Execution, _ error, _ int) error {
	p.failed.WithLabelValues(x.JobID()).Inc()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (p *PrometheusExtension) OnJobRetrying(_ context.Context, x *job.Execution, _ int, _ time.Duration) error {
	p.retried.WithLabelValues(x.JobID()).Inc()
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (p *PrometheusExtension) OnJobDeadLettered(_ context.Context, item *dlq.Item) error {
	p.deadLettered.WithLabelValues(item.JobID).Inc()
	return nil
}

// OnJobEnqueued implements ext.JobEnqueued.
func (p *PrometheusExtension) OnJobEnqueued(_ context.Context, jobID string, _ job.Metadata) error {
	p.enqueued.WithLabelValues(jobID).Inc()
	return nil
}

// OnTriggerFired implements ext.TriggerFired.
func (p *PrometheusExtension) OnTriggerFired(_ context.Context, jobID, _ string, _ time.Time) error {
	p.triggered.WithLabelValues(jobID).Inc()
	return nil
}
