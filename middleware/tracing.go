package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/chrono/job"
)

// tracerName is the instrumentation scope name for chrono tracing.
const tracerName = "github.com/xraph/chrono"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span. Without a global TracerProvider the noop tracer makes it a
// pass-through.
//
// Span attributes: chrono.job.id, chrono.attempt, chrono.trigger.id,
// chrono.trigger.source, chrono.correlation_id.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, x *job.Execution, next Handler) (*job.Result, error) {
		ctx, span := tracer.Start(ctx, "chrono.job.execute",
			trace.WithAttributes(
				attribute.String("chrono.job.id", x.JobID()),
				attribute.Int("chrono.attempt", job.AttemptFromContext(ctx)),
				attribute.String("chrono.trigger.id", x.TriggerID),
				attribute.String("chrono.trigger.source", x.Metadata.TriggerSource),
				attribute.String("chrono.correlation_id", x.Metadata.CorrelationID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		res, err := next(ctx)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res != nil && !res.Success:
			span.SetStatus(codes.Error, res.Message)
		default:
			span.SetStatus(codes.Ok, "")
		}
		return res, err
	}
}
