package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/queue"
)

// QueueWorker is the single consumer of the ad-hoc queue. It dispatches
// strictly one job at a time in FIFO order.
type QueueWorker struct {
	queue      *queue.Queue
	journal    queue.Journal
	dispatcher *Dispatcher
	limiter    *queue.Limiter
	jobIDs     func() []string
	logger     *slog.Logger
}

// QueueWorkerOption configures a QueueWorker.
type QueueWorkerOption func(*QueueWorker)

// WithJournal sets the journal entries are removed from after dispatch and
// replayed from at start.
func WithJournal(j queue.Journal) QueueWorkerOption {
	return func(w *QueueWorker) { w.journal = j }
}

// WithLimiter throttles draining.
func WithLimiter(l *queue.Limiter) QueueWorkerOption {
	return func(w *QueueWorker) { w.limiter = l }
}

// WithReplayJobs sets the job IDs whose journal entries are replayed at
// start. Usually the registry's IDs.
func WithReplayJobs(ids func() []string) QueueWorkerOption {
	return func(w *QueueWorker) { w.jobIDs = ids }
}

// WithQueueLogger sets a custom logger.
func WithQueueLogger(l *slog.Logger) QueueWorkerOption {
	return func(w *QueueWorker) { w.logger = l }
}

// NewQueueWorker creates a QueueWorker draining q into d.
func NewQueueWorker(q *queue.Queue, d *Dispatcher, opts ...QueueWorkerOption) *QueueWorker {
	w := &QueueWorker{queue: q, dispatcher: d, logger: slog.Default()}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run replays the journal, then drains the queue until ctx ends or the
// queue is closed and empty. Items still queued when ctx ends stay queued.
func (w *QueueWorker) Run(ctx context.Context) error {
	if n, err := w.Replay(ctx); err != nil {
		w.logger.Error("queue: journal replay failed", slog.String("error", err.Error()))
	} else if n > 0 {
		w.logger.Info("queue: replayed journal entries", slog.Int("count", n))
	}

	for ctx.Err() == nil {
		qj, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, chrono.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := w.limiter.Wait(ctx, qj.JobID); err != nil {
			w.queue.PushFront(qj)
			return nil
		}
		w.dispatch(ctx, qj)
	}
	return nil
}

// Replay moves journal entries of the configured jobs that are not already
// queued into the queue, oldest first, and returns how many it moved.
func (w *QueueWorker) Replay(ctx context.Context) (int, error) {
	if w.journal == nil || w.jobIDs == nil {
		return 0, nil
	}

	queued := make(map[string]struct{})
	for _, qj := range w.queue.Snapshot() {
		queued[qj.RequestID] = struct{}{}
	}

	var entries, present []*queue.EnqueuedJob
	for _, jobID := range w.jobIDs() {
		for {
			qj, err := w.journal.DequeueJob(ctx, jobID)
			if err != nil {
				return 0, w.restore(ctx, append(entries, present...), err)
			}
			if qj == nil {
				break
			}
			if _, ok := queued[qj.RequestID]; ok {
				present = append(present, qj)
				continue
			}
			entries = append(entries, qj)
		}
	}

	// Entries were popped to be read; put every one back.
	all := append(append([]*queue.EnqueuedJob(nil), present...), entries...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].EnqueuedAt.Before(all[j].EnqueuedAt) })
	for _, qj := range all {
		if err := w.journal.EnqueueJob(ctx, qj); err != nil {
			return 0, err
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt) })
	for _, qj := range entries {
		if err := w.queue.Push(qj); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// restore writes back entries read before a journal error.
func (w *QueueWorker) restore(ctx context.Context, entries []*queue.EnqueuedJob, cause error) error {
	for _, qj := range entries {
		if err := w.journal.EnqueueJob(ctx, qj); err != nil {
			w.logger.Error("queue: journal restore failed",
				slog.String("job_id", qj.JobID),
				slog.String("request_id", qj.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}
	return cause
}

func (w *QueueWorker) dispatch(ctx context.Context, qj *queue.EnqueuedJob) {
	res, err := w.dispatcher.Dispatch(ctx, job.Request{
		JobID:       qj.JobID,
		Input:       qj.Input,
		Metadata:    qj.Metadata,
		ScheduledAt: qj.EnqueuedAt,
	})
	switch {
	case err != nil:
		w.logger.Error("queue: dispatch failed",
			slog.String("job_id", qj.JobID),
			slog.String("request_id", qj.RequestID),
			slog.String("error", err.Error()),
		)
	case !res.Success:
		w.logger.Warn("queue: job failed",
			slog.String("job_id", qj.JobID),
			slog.String("request_id", qj.RequestID),
			slog.String("message", res.Message),
		)
	}

	if w.journal == nil {
		return
	}
	if err := w.journal.AckJob(context.WithoutCancel(ctx), qj.JobID, qj.RequestID); err != nil {
		w.logger.Error("queue: journal ack failed",
			slog.String("job_id", qj.JobID),
			slog.String("request_id", qj.RequestID),
			slog.String("error", err.Error()),
		)
	}
}
