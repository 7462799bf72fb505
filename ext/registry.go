package ext

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/job"
)

type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and fans events out to them. It
// type-caches extensions at registration time so emit calls iterate only
// over extensions that implement the relevant hook. A nil *Registry is
// valid and drops every event.
type Registry struct {
	mu         sync.RWMutex
	extensions []Extension
	logger     *slog.Logger

	jobStarted      []entry[JobStarted]
	jobRetrying     []entry[JobRetrying]
	jobSucceeded    []entry[JobSucceeded]
	jobFailed       []entry[JobFailed]
	jobChained      []entry[JobChained]
	jobDeadLettered []entry[JobDeadLettered]
	jobEnqueued     []entry[JobEnqueued]
	triggerFired    []entry[TriggerFired]
	shutdown        []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable hook
// caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, entry[JobStarted]{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, entry[JobRetrying]{name, h})
	}
	if h, ok := e.(JobSucceeded); ok {
		r.jobSucceeded = append(r.jobSucceeded, entry[JobSucceeded]{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, entry[JobFailed]{name, h})
	}
	if h, ok := e.(JobChained); ok {
		r.jobChained = append(r.jobChained, entry[JobChained]{name, h})
	}
	if h, ok := e.(JobDeadLettered); ok {
		r.jobDeadLettered = append(r.jobDeadLettered, entry[JobDeadLettered]{name, h})
	}
	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, entry[JobEnqueued]{name, h})
	}
	if h, ok := e.(TriggerFired); ok {
		r.triggerFired = append(r.triggerFired, entry[TriggerFired]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extension(nil), r.extensions...)
}

// emit calls fn for every entry, logging hook errors. Hook errors are
// never propagated.
func emit[H any](r *Registry, hookName string, entries func(*Registry) []entry[H], fn func(H) error) {
	if r == nil {
		return
	}
	r.mu.RLock()
	list := entries(r)
	r.mu.RUnlock()
	for _, e := range list {
		if err := fn(e.hook); err != nil {
			r.logger.Warn("extension hook error",
				slog.String("hook", hookName),
				slog.String("extension", e.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ──────────────────────────────────────────────────
// Emitters
// ──────────────────────────────────────────────────

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, x *job.Execution, scheduledAt time.Time) {
	emit(r, "OnJobStarted", func(r *Registry) []entry[JobStarted] { return r.jobStarted },
		func(h JobStarted) error { return h.OnJobStarted(ctx, x, scheduledAt) })
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, x *job.Execution, attempt int, delay time.Duration) {
	emit(r, "OnJobRetrying", func(r *Registry) []entry[JobRetrying] { return r.jobRetrying },
		func(h JobRetrying) error { return h.OnJobRetrying(ctx, x, attempt, delay) })
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, x *job.Execution, res *job.Result, elapsed time.Duration) {
	emit(r, "OnJobSucceeded", func(r *Registry) []entry[JobSucceeded] { return r.jobSucceeded },
		func(h JobSucceeded) error { return h.OnJobSucceeded(ctx, x, res, elapsed) })
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, x *job.Execution, jobErr error, attempt int) {
	emit(r, "OnJobFailed", func(r *Registry) []entry[JobFailed] { return r.jobFailed },
		func(h JobFailed) error { return h.OnJobFailed(ctx, x, jobErr, attempt) })
}

// EmitJobChained notifies all extensions that implement JobChained.
func (r *Registry) EmitJobChained(ctx context.Context, fromJobID, toJobID string) {
	emit(r, "OnJobChained", func(r *Registry) []entry[JobChained] { return r.jobChained },
		func(h JobChained) error { return h.OnJobChained(ctx, fromJobID, toJobID) })
}

// EmitJobDeadLettered notifies all extensions that implement JobDeadLettered.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, item *dlq.Item) {
	emit(r, "OnJobDeadLettered", func(r *Registry) []entry[JobDeadLettered] { return r.jobDeadLettered },
		func(h JobDeadLettered) error { return h.OnJobDeadLettered(ctx, item) })
}

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, jobID string, meta job.Metadata) {
	emit(r, "OnJobEnqueued", func(r *Registry) []entry[JobEnqueued] { return r.jobEnqueued },
		func(h JobEnqueued) error { return h.OnJobEnqueued(ctx, jobID, meta) })
}

// EmitTriggerFired notifies all extensions that implement TriggerFired.
func (r *Registry) EmitTriggerFired(ctx context.Context, jobID, triggerID string, dueAt time.Time) {
	emit(r, "OnTriggerFired", func(r *Registry) []entry[TriggerFired] { return r.triggerFired },
		func(h TriggerFired) error { return h.OnTriggerFired(ctx, jobID, triggerID, dueAt) })
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, "OnShutdown", func(r *Registry) []entry[Shutdown] { return r.shutdown },
		func(h Shutdown) error { return h.OnShutdown(ctx) })
}
