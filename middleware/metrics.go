package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/chrono/job"
)

// meterName is the instrumentation scope name for chrono metrics.
const meterName = "github.com/xraph/chrono"

// Metrics returns middleware that records per-attempt metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - chrono.job.duration (Float64Histogram): attempt time in seconds
//   - chrono.job.executions (Int64Counter): attempts
//
// Both carry job_id, trigger_source and status ("ok", "failed" or "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"chrono.job.duration",
		metric.WithDescription("Duration of job attempts in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"chrono.job.executions",
		metric.WithDescription("Total number of job attempts"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, x *job.Execution, next Handler) (*job.Result, error) {
		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case res != nil && !res.Success:
			status = "failed"
		}

		attrs := metric.WithAttributes(
			attribute.String("job_id", x.JobID()),
			attribute.String("trigger_source", x.Metadata.TriggerSource),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return res, err
	}
}
