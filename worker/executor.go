package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/backoff"
	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/ext"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/lock"
	"github.com/xraph/chrono/middleware"
)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithHistory sets the store execution logs are appended to.
func WithHistory(s history.Store) ExecutorOption {
	return func(e *Executor) { e.history = s }
}

// WithChainStore sets the durable queue chain targets are pushed into.
func WithChainStore(s chain.Store) ExecutorOption {
	return func(e *Executor) { e.chains = s }
}

// WithDeadLetters sets the store final failures are written to. Without
// one, final failures are only logged.
func WithDeadLetters(s dlq.Store) ExecutorOption {
	return func(e *Executor) { e.dead = s }
}

// WithLocks sets the lock provider. Defaults to an in-process lock.Local.
func WithLocks(p lock.Provider) ExecutorOption {
	return func(e *Executor) { e.locks = p }
}

// WithExtensions sets the hook registry.
func WithExtensions(r *ext.Registry) ExecutorOption {
	return func(e *Executor) { e.extensions = r }
}

// WithMiddleware appends middleware. The first one registered is the
// outermost.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.middleware = append(e.middleware, mws...) }
}

// WithRunningSet shares a running set with a status provider.
func WithRunningSet(r *RunningSet) ExecutorOption {
	return func(e *Executor) { e.running = r }
}

// WithDiagnostics turns on the per-attempt hooks: started, retrying,
// succeeded, failed and chained.
func WithDiagnostics(on bool) ExecutorOption {
	return func(e *Executor) { e.diagnostics = on }
}

// WithForceLock locks every job, whether or not its definition asks to.
func WithForceLock(on bool) ExecutorOption {
	return func(e *Executor) { e.forceLock = on }
}

// WithDisabled makes Execute fail every dispatch without running it.
func WithDisabled(on bool) ExecutorOption {
	return func(e *Executor) { e.disabled = on }
}

// WithDefaultTimeout bounds attempts of jobs that set no timeout.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.defaultTimeout = d }
}

// WithInstanceID stamps logs and dead letters with the process identity.
func WithInstanceID(instanceID string) ExecutorOption {
	return func(e *Executor) { e.instanceID = instanceID }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// Executor runs one dispatch of a job to its final outcome.
type Executor struct {
	history    history.Store
	chains     chain.Store
	dead       dlq.Store
	locks      lock.Provider
	extensions *ext.Registry
	middleware []middleware.Middleware
	running    *RunningSet

	diagnostics    bool
	forceLock      bool
	disabled       bool
	defaultTimeout time.Duration
	instanceID     string
	logger         *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:  slog.Default(),
		running: NewRunningSet(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.locks == nil {
		e.locks = lock.NewLocal()
	}
	if e.instanceID == "" {
		e.instanceID = id.NewInstanceID().String()
	}
	return e
}

// Running returns the executor's running set.
func (e *Executor) Running() *RunningSet { return e.running }

// InstanceID returns the identity stamped on logs and dead letters.
func (e *Executor) InstanceID() string { return e.instanceID }

// Execute runs x through locking, middleware and retries, records the
// outcome and returns it. It never returns nil.
func (e *Executor) Execute(ctx context.Context, x *job.Execution) *job.Result {
	jobID := x.JobID()
	if e.disabled {
		e.logger.Warn("worker disabled, job not executed", slog.String("job_id", jobID))
		return job.Failed("", chrono.ErrWorkerDisabled)
	}

	e.running.Add(jobID)
	defer e.running.Remove(jobID)

	def := x.Definition
	maxAttempts := def.MaxAttempts()
	var strategy backoff.Strategy = backoff.None{}
	if def.Retry != nil {
		strategy = def.Retry.Backoff()
	}
	start := time.Now().UTC()
	var lastDelay time.Duration

	for attempt := 1; ; attempt++ {
		if e.diagnostics {
			e.extensions.EmitJobStarted(ctx, x, x.ScheduledAt)
		}

		handle, lockErr := e.acquire(ctx, x)
		if lockErr != nil {
			e.logger.Warn("job lock not acquired",
				slog.String("job_id", jobID),
				slog.String("lock_key", def.LockName()),
				slog.String("error", lockErr.Error()),
			)
			return job.Failed(lockErr.Error(), lockErr)
		}

		res, err := e.attempt(ctx, x, attempt)
		e.release(ctx, x, handle)

		if err == nil {
			if res == nil {
				res = job.Succeeded(nil)
			}
			e.complete(ctx, x, res, attempt, lastDelay, start)
			return res
		}

		if e.diagnostics {
			e.extensions.EmitJobFailed(ctx, x, err, attempt)
		}
		if attempt >= maxAttempts {
			return e.fail(ctx, x, err, attempt, lastDelay, start)
		}

		delay := strategy.Delay(attempt)
		if e.diagnostics {
			e.extensions.EmitJobRetrying(ctx, x, attempt, delay)
		}
		e.logger.Info("job attempt failed, retrying",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		if waitErr := sleep(ctx, delay); waitErr != nil {
			return e.fail(ctx, x, fmt.Errorf("%w (retry wait: %w)", err, waitErr), attempt, lastDelay, start)
		}
		lastDelay = delay
	}
}

// acquire takes the job's lock when it needs one. A nil handle with a nil
// error means no lock is required.
func (e *Executor) acquire(ctx context.Context, x *job.Execution) (lock.Handle, error) {
	if !x.Definition.Lock && !e.forceLock {
		return nil, nil
	}
	key := x.Definition.LockName()
	h, err := e.locks.TryAcquire(ctx, key, lock.AcquireTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: lock %q: %w", chrono.ErrLockNotAcquired, key, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: lock %q held elsewhere", chrono.ErrLockNotAcquired, key)
	}
	return h, nil
}

func (e *Executor) release(ctx context.Context, x *job.Execution, h lock.Handle) {
	if h == nil {
		return
	}
	if err := h.Release(context.WithoutCancel(ctx)); err != nil {
		e.logger.Error("job lock release failed",
			slog.String("job_id", x.JobID()),
			slog.String("error", err.Error()),
		)
	}
}

// attempt runs the handler once through a middleware chain built for this
// attempt. The timeout wraps the whole chain.
func (e *Executor) attempt(ctx context.Context, x *job.Execution, attempt int) (*job.Result, error) {
	timeout := x.Definition.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	mws := make([]middleware.Middleware, 0, len(e.middleware)+1)
	mws = append(mws, middleware.Timeout(timeout))
	mws = append(mws, e.middleware...)

	actx := job.ContextWithAttempt(job.ContextWithExecution(ctx, x), attempt)
	terminal := func(ctx context.Context) (*job.Result, error) {
		return x.Definition.Handler(ctx, x.Input)
	}
	return middleware.Chain(mws...)(actx, x, terminal)
}

// complete records a returned result: one log row, then chaining.
func (e *Executor) complete(ctx context.Context, x *job.Execution, res *job.Result, attempt int, lastDelay time.Duration, start time.Time) {
	def := x.Definition
	l := e.newLog(x, start, attempt, lastDelay)
	l.Success = res.Success
	l.Message = res.Message
	l.Output = res.Data
	if res.Err != nil {
		l.Error = res.Err.Error()
	}
	e.appendLog(ctx, l)

	targets := res.NextJobIDs
	if targets == nil {
		if res.Success {
			targets = def.OnSuccess
		} else {
			targets = def.OnFailure
		}
	}
	e.enqueueChain(ctx, x, targets, res.Data)

	if !e.diagnostics {
		return
	}
	if res.Success {
		e.extensions.EmitJobSucceeded(ctx, x, res, time.Since(start))
		return
	}
	failErr := res.Err
	if failErr == nil {
		failErr = errors.New(res.Message)
	}
	e.extensions.EmitJobFailed(ctx, x, failErr, attempt)
}

// fail records a final thrown failure: one log row, a dead letter, and the
// failure chain.
func (e *Executor) fail(ctx context.Context, x *job.Execution, err error, attempt int, lastDelay time.Duration, start time.Time) *job.Result {
	l := e.newLog(x, start, attempt, lastDelay)
	l.Success = false
	l.Message = err.Error()
	l.Error = err.Error()
	l.MaxAttemptsReached = attempt >= x.Definition.MaxAttempts()
	e.appendLog(ctx, l)

	e.logger.Error("job failed",
		slog.String("job_id", x.JobID()),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)

	if e.dead != nil {
		item := dlq.NewItem(x, err, attempt, e.instanceID)
		if addErr := e.dead.AddDeadLetter(context.WithoutCancel(ctx), item); addErr != nil {
			e.logger.Error("dead letter write failed",
				slog.String("job_id", x.JobID()),
				slog.String("error", addErr.Error()),
			)
		} else {
			e.extensions.EmitJobDeadLettered(ctx, item)
		}
	}

	e.enqueueChain(ctx, x, x.Definition.OnFailure, nil)
	return job.Failed(err.Error(), err)
}

func (e *Executor) newLog(x *job.Execution, start time.Time, attempt int, lastDelay time.Duration) *history.Log {
	return &history.Log{
		ID:            id.NewLogID(),
		JobID:         x.JobID(),
		ExecutedAt:    start,
		Duration:      time.Since(start),
		RetryAttempt:  attempt,
		RetryCount:    x.Definition.MaxAttempts(),
		RetryDelay:    lastDelay,
		TriggerID:     x.TriggerID,
		InstanceID:    e.instanceID,
		Tags:          append([]string(nil), x.Definition.Tags...),
		CorrelationID: x.Metadata.CorrelationID,
		TriggerSource: x.Metadata.TriggerSource,
		UserID:        x.Metadata.UserID,
	}
}

func (e *Executor) appendLog(ctx context.Context, l *history.Log) {
	if e.history == nil {
		return
	}
	if err := e.history.AppendLog(context.WithoutCancel(ctx), l); err != nil {
		e.logger.Error("execution log write failed",
			slog.String("job_id", l.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) enqueueChain(ctx context.Context, x *job.Execution, targets []string, data any) {
	if len(targets) == 0 {
		return
	}
	if e.chains == nil {
		e.logger.Warn("job has chain targets but no chain store is configured",
			slog.String("job_id", x.JobID()),
			slog.Any("targets", targets),
		)
		return
	}
	for _, target := range targets {
		if err := e.chains.EnqueueChain(context.WithoutCancel(ctx), chain.NewItem(x, target, data)); err != nil {
			e.logger.Error("chain enqueue failed",
				slog.String("job_id", x.JobID()),
				slog.String("target", target),
				slog.String("error", err.Error()),
			)
			continue
		}
		if e.diagnostics {
			e.extensions.EmitJobChained(ctx, x.JobID(), target)
		}
	}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
