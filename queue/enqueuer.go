package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
)

// Journal persists enqueued jobs so they survive a restart.
type Journal interface {
	// EnqueueJob records qj.
	EnqueueJob(ctx context.Context, qj *EnqueuedJob) error

	// DequeueJob removes and returns the oldest entry for jobID, or nil
	// when there is none.
	DequeueJob(ctx context.Context, jobID string) (*EnqueuedJob, error)

	// AckJob removes the entry of jobID stamped with requestID. Acking an
	// entry that is not journaled is not an error.
	AckJob(ctx context.Context, jobID, requestID string) error
}

// Notifier is told about accepted jobs. *ext.Registry satisfies it.
type Notifier interface {
	EmitJobEnqueued(ctx context.Context, jobID string, meta job.Metadata)
}

// EnqueuerOption configures an Enqueuer.
type EnqueuerOption func(*Enqueuer)

// WithJournal makes enqueued jobs durable.
func WithJournal(j Journal) EnqueuerOption {
	return func(e *Enqueuer) { e.journal = j }
}

// WithNotifier sets the sink for enqueue events.
func WithNotifier(n Notifier) EnqueuerOption {
	return func(e *Enqueuer) { e.notifier = n }
}

// WithKnownJobs rejects job IDs for which known returns false.
func WithKnownJobs(known func(jobID string) bool) EnqueuerOption {
	return func(e *Enqueuer) { e.known = known }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) EnqueuerOption {
	return func(e *Enqueuer) { e.logger = l }
}

// Enqueuer is the producer side of the ad-hoc path.
type Enqueuer struct {
	mu       sync.Mutex
	queue    *Queue
	journal  Journal
	notifier Notifier
	known    func(string) bool
	logger   *slog.Logger
}

// NewEnqueuer creates an Enqueuer feeding q.
func NewEnqueuer(q *Queue, opts ...EnqueuerOption) *Enqueuer {
	e := &Enqueuer{queue: q, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue stamps and queues a job. The journal write, when configured,
// happens before the in-memory push, and both happen under one lock so the
// queue order matches the journal order across concurrent producers.
func (e *Enqueuer) Enqueue(ctx context.Context, jobID string, input any, meta job.Metadata) (*EnqueuedJob, error) {
	if e.known != nil && !e.known(jobID) {
		return nil, fmt.Errorf("%w: %q", chrono.ErrJobNotFound, jobID)
	}
	if meta.TriggerSource == "" {
		meta.TriggerSource = job.SourceQueue
	}
	qj := &EnqueuedJob{
		RequestID: id.NewRequestID().String(),
		JobID:     jobID,
		Input:     input,
		Metadata:  meta,
	}
	if meta.CorrelationID == "" {
		qj.Metadata.CorrelationID = qj.RequestID
	}

	if err := e.record(ctx, qj); err != nil {
		return nil, err
	}

	e.logger.Debug("job enqueued",
		slog.String("job_id", jobID),
		slog.String("request_id", qj.RequestID),
	)
	if e.notifier != nil {
		e.notifier.EmitJobEnqueued(ctx, jobID, qj.Metadata)
	}
	return qj, nil
}

func (e *Enqueuer) record(ctx context.Context, qj *EnqueuedJob) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	qj.EnqueuedAt = time.Now().UTC()
	if e.journal != nil {
		if err := e.journal.EnqueueJob(ctx, qj); err != nil {
			return fmt.Errorf("journal enqueue %s: %w", qj.JobID, err)
		}
	}
	return e.queue.Push(qj)
}

// Queue returns the queue the Enqueuer feeds.
func (e *Enqueuer) Queue() *Queue { return e.queue }

// Journal returns the configured journal, or nil.
func (e *Enqueuer) Journal() Journal { return e.journal }
