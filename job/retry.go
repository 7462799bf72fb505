package job

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/backoff"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RetryPolicy bounds how many times a failing job is attempted and how long
// the executor waits in between.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt, so 1 means "never retry".
	MaxAttempts int `json:"max_attempts" validate:"min=1"`

	// Delay is the wait after the first failure. Exponential doubles it for
	// every later failure; Constant keeps it.
	Delay time.Duration `json:"delay" validate:"required_unless=Strategy none,gte=0"`

	Strategy backoff.Kind `json:"strategy" validate:"oneof=none constant exponential"`

	// MaxDelay caps every wait. Zero means uncapped.
	MaxDelay time.Duration `json:"max_delay,omitempty" validate:"gte=0"`

	// Jitter randomizes each wait within [0, delay].
	Jitter bool `json:"jitter,omitempty"`
}

// ExponentialRetry doubles delay after every failure.
func ExponentialRetry(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Delay: delay, Strategy: backoff.KindExponential}
}

// ConstantRetry waits delay between every attempt.
func ConstantRetry(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Delay: delay, Strategy: backoff.KindConstant}
}

// ImmediateRetry retries without waiting.
func ImmediateRetry(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Strategy: backoff.KindNone}
}

// Capped returns a copy of p whose waits never exceed maxDelay.
func (p RetryPolicy) Capped(maxDelay time.Duration) RetryPolicy {
	p.MaxDelay = maxDelay
	return p
}

// Jittered returns a copy of p with full jitter applied to every wait.
func (p RetryPolicy) Jittered() RetryPolicy {
	p.Jitter = true
	return p
}

// Validate reports whether the policy can be used.
func (p RetryPolicy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: retry policy: %w", chrono.ErrInvalidJob, err)
	}
	return nil
}

// Backoff returns the delay strategy for the policy.
func (p RetryPolicy) Backoff() backoff.Strategy {
	s, err := backoff.New(p.Strategy, p.Delay, p.MaxDelay)
	if err != nil {
		return backoff.None{}
	}
	if p.Jitter {
		return backoff.WithJitter(s)
	}
	return s
}
