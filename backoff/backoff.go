// Package backoff computes the wait between retry attempts of a job.
// All strategies are stateless and safe for concurrent use.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Kind names a retry strategy as it appears in configuration.
type Kind string

const (
	KindNone        Kind = "none"
	KindConstant    Kind = "constant"
	KindExponential Kind = "exponential"
)

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (1-indexed)
	// before attempt n+1 starts.
	Delay(attempt int) time.Duration
}

// New returns the strategy for kind with base delay d. A positive maxDelay
// caps every delay the strategy returns.
func New(kind Kind, d, maxDelay time.Duration) (Strategy, error) {
	switch kind {
	case KindNone, "":
		return None{}, nil
	case KindConstant:
		if maxDelay > 0 && d > maxDelay {
			d = maxDelay
		}
		return NewConstant(d), nil
	case KindExponential:
		return NewExponential(d, maxDelay), nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q", kind)
	}
}

// ──────────────────────────────────────────────────
// None
// ──────────────────────────────────────────────────

// None retries immediately.
type None struct{}

// Delay always returns zero.
func (None) Delay(int) time.Duration { return 0 }

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant waits the same interval before every retry.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay after every failed attempt.
// Delay(n) = min(Initial * 2^(n-1), Max); a zero Max means uncapped.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max. Without a Max the
// delay saturates at the largest Duration instead of overflowing.
func (e *Exponential) Delay(attempt int) time.Duration {
	if e.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	ceiling := time.Duration(math.MaxInt64)
	if e.Max > 0 {
		ceiling = e.Max
	}
	// float64(MaxInt64) rounds up to 2^63, which no longer fits.
	f := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if f >= math.MaxInt64 || math.IsInf(f, 1) {
		return ceiling
	}
	if d := time.Duration(f); d < ceiling {
		return d
	}
	return ceiling
}

// ──────────────────────────────────────────────────
// Jitter
// ──────────────────────────────────────────────────

// Jitter applies full jitter on top of another strategy: the delay is a
// random value in [0, Base.Delay(n)]. Useful when many instances retry the
// same downstream at once.
type Jitter struct {
	Base Strategy
}

// WithJitter wraps s with full jitter.
func WithJitter(s Strategy) *Jitter {
	return &Jitter{Base: s}
}

// Delay returns a random duration up to the wrapped strategy's delay.
func (j *Jitter) Delay(attempt int) time.Duration {
	d := j.Base.Delay(attempt)
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * float64(d)) //nolint:gosec // jitter intentionally uses non-crypto rand
}
