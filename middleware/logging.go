package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/chrono/job"
)

// Logging returns middleware that logs every attempt's outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, x *job.Execution, next Handler) (*job.Result, error) {
		attempt := job.AttemptFromContext(ctx)
		logger.Debug("job attempt started",
			slog.String("job_id", x.JobID()),
			slog.Int("attempt", attempt),
			slog.String("trigger_source", x.Metadata.TriggerSource),
		)

		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			logger.Error("job attempt failed",
				slog.String("job_id", x.JobID()),
				slog.Int("attempt", attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		case res != nil && !res.Success:
			logger.Warn("job reported failure",
				slog.String("job_id", x.JobID()),
				slog.Int("attempt", attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("message", res.Message),
			)
		default:
			logger.Info("job attempt completed",
				slog.String("job_id", x.JobID()),
				slog.Int("attempt", attempt),
				slog.Duration("elapsed", elapsed),
			)
		}
		return res, err
	}
}
