package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/backoff"
	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/ext"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/lock"
	mw "github.com/xraph/chrono/middleware"
	"github.com/xraph/chrono/observability"
	"github.com/xraph/chrono/queue"
	"github.com/xraph/chrono/scheduler"
	"github.com/xraph/chrono/status"
	"github.com/xraph/chrono/store"
	"github.com/xraph/chrono/store/memory"
	"github.com/xraph/chrono/worker"
)

const instrumentationName = "github.com/xraph/chrono"

// Engine owns the registry, the scheduler, the queue worker, the chain
// consumer and the retention sweeper, all sharing one Dispatcher.
type Engine struct {
	cfg    chrono.Config
	store  store.Store
	locks  lock.Provider
	logger *slog.Logger

	extensions  *ext.Registry
	registry    *job.Registry
	queue       *queue.Queue
	enqueuer    *queue.Enqueuer
	executor    *worker.Executor
	dispatcher  *worker.Dispatcher
	queueWorker *worker.QueueWorker
	scheduler   *scheduler.Scheduler
	chains      *chain.Consumer
	sweeper     *history.Sweeper
	deadLetters *dlq.Service
	statuses    *status.Provider
	metrics     *status.MetricsProvider

	exts           []ext.Extension
	mws            []mw.Middleware
	jobLimits      []queue.LimitConfig
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg chrono.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithStore sets the persistence backend. Defaults to an in-memory store.
func WithStore(s store.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithLocks sets the lock provider. Defaults to a process-local one.
func WithLocks(p lock.Provider) Option {
	return func(eng *Engine) { eng.locks = p }
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.exts = append(eng.exts, e) }
}

// WithMiddleware appends middleware after the built-in stack.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m...) }
}

// WithJobRateLimit throttles how fast the queue worker drains the given
// jobs.
func WithJobRateLimit(limits ...queue.LimitConfig) Option {
	return func(eng *Engine) { eng.jobLimits = append(eng.jobLimits, limits...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine. Both
// the metrics middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New builds an Engine. Nothing runs until Start.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		cfg:      chrono.DefaultConfig(),
		store:    memory.New(),
		logger:   slog.Default(),
		registry: job.NewRegistry(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.store == nil {
		return nil, chrono.ErrNoStore
	}
	if err := eng.cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := eng.cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("chrono: time zone: %w", err)
	}
	if eng.locks == nil {
		eng.locks = lock.NewLocal()
	}
	eng.extensions = ext.NewRegistry(eng.logger)
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	if eng.cfg.RetryMaxAttempts > 0 {
		p := job.RetryPolicy{
			MaxAttempts: eng.cfg.RetryMaxAttempts,
			Delay:       eng.cfg.RetryDelay,
			Strategy:    backoff.Kind(eng.cfg.RetryStrategy),
			MaxDelay:    eng.cfg.RetryMaxDelay,
			Jitter:      eng.cfg.RetryJitter,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		eng.registry.SetDefaultRetry(&p)
	}

	eng.registerObservability()

	instanceID := eng.cfg.InstanceID
	if instanceID == "" {
		instanceID = id.NewInstanceID().String()
	}

	eng.executor = worker.NewExecutor(
		worker.WithHistory(eng.store),
		worker.WithChainStore(eng.store),
		worker.WithDeadLetters(eng.store),
		worker.WithLocks(eng.locks),
		worker.WithExtensions(eng.extensions),
		worker.WithMiddleware(eng.middleware()...),
		worker.WithDiagnostics(eng.cfg.EnableDiagnostics),
		worker.WithForceLock(eng.cfg.EnableDistributedLocking),
		worker.WithDisabled(eng.cfg.DisableWorker),
		worker.WithDefaultTimeout(eng.cfg.Timeout),
		worker.WithInstanceID(instanceID),
		worker.WithLogger(eng.logger),
	)
	eng.dispatcher = worker.NewDispatcher(eng.registry, eng.executor)

	eng.queue = queue.New()
	eng.enqueuer = queue.NewEnqueuer(eng.queue,
		queue.WithJournal(eng.store),
		queue.WithNotifier(eng.extensions),
		queue.WithKnownJobs(func(jobID string) bool {
			_, ok := eng.registry.Get(jobID)
			return ok
		}),
		queue.WithLogger(eng.logger),
	)

	qwOpts := []worker.QueueWorkerOption{
		worker.WithJournal(eng.store),
		worker.WithReplayJobs(eng.registry.IDs),
		worker.WithQueueLogger(eng.logger),
	}
	if eng.cfg.QueueRateLimit > 0 || len(eng.jobLimits) > 0 {
		burst := max(1, int(eng.cfg.QueueRateLimit))
		qwOpts = append(qwOpts, worker.WithLimiter(queue.NewLimiter(eng.cfg.QueueRateLimit, burst, eng.jobLimits...)))
	}
	eng.queueWorker = worker.NewQueueWorker(eng.queue, eng.dispatcher, qwOpts...)

	eng.scheduler = scheduler.New(eng.registry, eng.store, eng.dispatcher,
		scheduler.WithPollInterval(eng.cfg.PollInterval),
		scheduler.WithMisfireThreshold(eng.cfg.EffectiveMisfireThreshold()),
		scheduler.WithLocation(loc),
		scheduler.WithMisfireHandling(eng.cfg.EnableMisfireHandling),
		scheduler.WithEmitter(eng.extensions),
		scheduler.WithLogger(eng.logger),
	)

	eng.chains = chain.NewConsumer(eng.store, eng.dispatcher,
		chain.WithPollInterval(eng.cfg.PollInterval),
		chain.WithLogger(eng.logger),
	)

	if eng.cfg.Retention.Enabled {
		eng.sweeper = history.NewSweeper(eng.store, history.SweeperConfig{
			Interval:  eng.cfg.Retention.Interval,
			MaxAge:    eng.cfg.Retention.MaxAge,
			MaxPerJob: eng.cfg.Retention.MaxPerJob,
		}, history.WithLogger(eng.logger))
	}

	eng.deadLetters = dlq.NewService(eng.store, eng.enqueuer, eng.logger)
	eng.statuses = status.NewProvider(eng.registry, eng.store, eng.store, eng.executor.Running(), eng.queue)
	eng.metrics = status.NewMetricsProvider(eng.store, eng.store)

	return eng, nil
}

// registerObservability adds the OTel counters extension, plus the
// diagnostics logger when diagnostics are on.
func (eng *Engine) registerObservability() {
	if eng.meterProvider != nil {
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter(instrumentationName + "/observability"),
		))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	if eng.cfg.EnableDiagnostics {
		eng.extensions.Register(observability.NewLoggingExtension(eng.logger))
	}
}

// middleware builds the default stack: recover → tracing → metrics →
// logging, then whatever was passed with WithMiddleware.
func (eng *Engine) middleware() []mw.Middleware {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	all := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
	}
	return append(all, eng.mws...)
}

// ──────────────────────────────────────────────────
// Registration and submission
// ──────────────────────────────────────────────────

// Register adds job definitions. Registration after Start is allowed; the
// scheduler picks new triggers up on its next pass.
func (eng *Engine) Register(defs ...*job.Definition) error {
	for _, def := range defs {
		if err := eng.registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueOption sets caller metadata on an enqueued job.
type EnqueueOption func(*job.Metadata)

// WithCorrelationID overrides the generated correlation id.
func WithCorrelationID(cid string) EnqueueOption {
	return func(m *job.Metadata) { m.CorrelationID = cid }
}

// WithUserID records who asked for the run.
func WithUserID(userID string) EnqueueOption {
	return func(m *job.Metadata) { m.UserID = userID }
}

// WithTriggerSource records where the request came from. Defaults to
// job.SourceQueue.
func WithTriggerSource(source string) EnqueueOption {
	return func(m *job.Metadata) { m.TriggerSource = source }
}

// Enqueue submits an ad-hoc run of jobID. The queue worker dispatches it
// once the engine is started.
func (eng *Engine) Enqueue(ctx context.Context, jobID string, input any, opts ...EnqueueOption) (*queue.EnqueuedJob, error) {
	var meta job.Metadata
	for _, o := range opts {
		o(&meta)
	}
	return eng.enqueuer.Enqueue(ctx, jobID, input, meta)
}

// Dispatch runs req synchronously on the calling goroutine.
func (eng *Engine) Dispatch(ctx context.Context, req job.Request) (*job.Result, error) {
	return eng.dispatcher.Dispatch(ctx, req)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start prepares the store and launches the background loops. The loops
// outlive ctx; call Stop to end them. A stopped engine cannot be started
// again.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.stopped {
		return fmt.Errorf("%w: engine stopped", chrono.ErrInvalidState)
	}
	if eng.started {
		return fmt.Errorf("%w: engine already started", chrono.ErrInvalidState)
	}

	if err := eng.store.Migrate(ctx); err != nil {
		return fmt.Errorf("chrono: migrate store: %w", err)
	}
	if err := eng.store.Ping(ctx); err != nil {
		return fmt.Errorf("chrono: ping store: %w", err)
	}

	for _, finding := range eng.registry.Validate() {
		eng.logger.Warn("job definition problem",
			slog.String("job_id", finding.JobID),
			slog.String("field", finding.Field),
			slog.String("error", finding.Error()),
		)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return eng.queueWorker.Run(gctx) })
	g.Go(func() error { return eng.chains.Run(gctx) })
	if eng.sweeper != nil {
		g.Go(func() error { return eng.sweeper.Run(gctx) })
	}

	if eng.cfg.AutoStartScheduler {
		if err := eng.scheduler.Start(runCtx); err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("chrono: start scheduler: %w", err)
		}
	}

	eng.cancel = cancel
	eng.group = g
	eng.started = true
	eng.logger.Info("chrono engine started",
		slog.String("instance_id", eng.executor.InstanceID()),
		slog.Int("jobs", eng.registry.Len()),
	)
	return nil
}

// Stop stops the scheduler, ends the background loops and waits for them
// or for ctx. It is safe to call more than once.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	if eng.stopped {
		eng.mu.Unlock()
		return nil
	}
	eng.stopped = true
	cancel, g := eng.cancel, eng.group
	eng.mu.Unlock()

	var errs []error
	if err := eng.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	if cancel != nil {
		cancel()
		done := make(chan error, 1)
		go func() { done <- g.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	eng.extensions.EmitShutdown(ctx)
	eng.logger.Info("chrono engine stopped")
	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns the configuration the engine was built with.
func (eng *Engine) Config() chrono.Config { return eng.cfg }

// Store returns the persistence backend.
func (eng *Engine) Store() store.Store { return eng.store }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Scheduler returns the trigger scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.scheduler }

// Queue returns the in-process ad-hoc queue.
func (eng *Engine) Queue() *queue.Queue { return eng.queue }

// Enqueuer returns the enqueuer behind Enqueue.
func (eng *Engine) Enqueuer() *queue.Enqueuer { return eng.enqueuer }

// Dispatcher returns the shared dispatcher.
func (eng *Engine) Dispatcher() *worker.Dispatcher { return eng.dispatcher }

// DeadLetters returns the dead-letter service.
func (eng *Engine) DeadLetters() *dlq.Service { return eng.deadLetters }

// Statuses returns the job status provider.
func (eng *Engine) Statuses() *status.Provider { return eng.statuses }

// Metrics returns the per-job metrics provider.
func (eng *Engine) Metrics() *status.MetricsProvider { return eng.metrics }

// Logs returns up to take execution logs of jobID, newest first.
func (eng *Engine) Logs(ctx context.Context, jobID string, take int) ([]*history.Log, error) {
	return eng.store.QueryLogs(ctx, jobID, take)
}
