package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/xraph/chrono/job"
)

// BreakerConfig tunes CircuitBreaker. Zero fields take gobreaker defaults,
// except ConsecutiveFailures which defaults to 5.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many trial requests run while half-open.
	HalfOpenRequests uint32
}

// CircuitBreaker returns middleware that keeps one breaker per job ID.
// Only returned errors count as failures; a Result with Success=false is a
// handled outcome. While open, attempts fail fast with gobreaker.ErrOpenState
// and go through the normal retry and dead-letter path.
func CircuitBreaker(cfg BreakerConfig, logger *slog.Logger) Middleware {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	var (
		mu       sync.Mutex
		breakers = make(map[string]*gobreaker.CircuitBreaker)
	)
	get := func(jobID string) *gobreaker.CircuitBreaker {
		mu.Lock()
		defer mu.Unlock()
		if cb, ok := breakers[jobID]; ok {
			return cb
		}
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        jobID,
			MaxRequests: cfg.HalfOpenRequests,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("job circuit breaker state changed",
					slog.String("job_id", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		})
		breakers[jobID] = cb
		return cb
	}

	return func(ctx context.Context, x *job.Execution, next Handler) (*job.Result, error) {
		out, err := get(x.JobID()).Execute(func() (interface{}, error) {
			return next(ctx)
		})
		if err != nil {
			if res, ok := out.(*job.Result); ok {
				return res, err
			}
			return nil, fmt.Errorf("job %s: %w", x.JobID(), err)
		}
		res, _ := out.(*job.Result)
		return res, nil
	}
}
