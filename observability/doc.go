// Package observability provides extensions that turn chrono lifecycle
// hooks into telemetry. Register them on the engine with WithExtension.
//
//   - [MetricsExtension] records OpenTelemetry counters
//   - [PrometheusExtension] exports Prometheus counters labelled by job
//   - [LoggingExtension] writes each hook as a structured slog record
//
// For per-attempt tracing and duration metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
