package queue

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LimitConfig throttles one job ID.
type LimitConfig struct {
	// JobID is the job the limit applies to.
	JobID string

	// RateLimit is the maximum sustained dispatches per second. Zero
	// disables the limit.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1.
	RateBurst int
}

// Limiter throttles queue draining with token buckets, one global and one
// per configured job. It is safe for concurrent use; a nil *Limiter never
// waits.
type Limiter struct {
	mu     sync.Mutex
	global *rate.Limiter
	jobs   map[string]*rate.Limiter
}

// NewLimiter creates a Limiter. A zero global rate disables the global
// bucket.
func NewLimiter(global float64, burst int, perJob ...LimitConfig) *Limiter {
	l := &Limiter{
		global: newBucket(global, burst),
		jobs:   make(map[string]*rate.Limiter, len(perJob)),
	}
	for _, cfg := range perJob {
		l.SetJobLimit(cfg)
	}
	return l
}

// SetJobLimit updates (or creates, or with a zero rate removes) the limit
// of one job.
func (l *Limiter) SetJobLimit(cfg LimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b := newBucket(cfg.RateLimit, cfg.RateBurst); b != nil {
		l.jobs[cfg.JobID] = b
		return
	}
	delete(l.jobs, cfg.JobID)
}

// Wait blocks until jobID may be dispatched or ctx ends.
func (l *Limiter) Wait(ctx context.Context, jobID string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	perJob := l.jobs[jobID]
	l.mu.Unlock()

	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return err
		}
	}
	if perJob != nil {
		return perJob.Wait(ctx)
	}
	return nil
}

func newBucket(limit float64, burst int) *rate.Limiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}
