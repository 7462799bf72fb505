package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/queue"
)

// Enqueuer accepts ad-hoc work. *queue.Enqueuer satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string, input any, meta job.Metadata) (*queue.EnqueuedJob, error)
}

// Service provides operator-facing operations over a Store.
type Service struct {
	store    Store
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewService creates a dead-letter service.
func NewService(store Store, enqueuer Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, enqueuer: enqueuer, logger: logger}
}

// Requeue enqueues the item's job again with its original input and
// metadata. The item stays in the store, stamped with RequeuedAt.
func (s *Service) Requeue(ctx context.Context, itemID id.ID) (*queue.EnqueuedJob, error) {
	item, err := s.store.GetDeadLetter(ctx, itemID)
	if err != nil {
		return nil, err
	}

	meta := item.Metadata
	meta.TriggerSource = job.SourceDeadLetter
	qj, err := s.enqueuer.Enqueue(ctx, item.JobID, item.Input, meta)
	if err != nil {
		return nil, fmt.Errorf("requeue %s: %w", itemID, err)
	}

	if err := s.store.MarkRequeued(ctx, itemID, time.Now().UTC()); err != nil {
		// The job is already enqueued. Log but don't fail.
		s.logger.Warn("dlq: failed to mark item requeued",
			slog.String("dead_letter_id", itemID.String()),
			slog.String("error", err.Error()),
		)
	}
	return qj, nil
}

// Discard deletes every item of a job.
func (s *Service) Discard(ctx context.Context, jobID string) (int64, error) {
	return s.store.DeleteDeadLetters(ctx, jobID)
}

// List returns items matching opts.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Item, error) {
	return s.store.ListDeadLetters(ctx, opts)
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, itemID id.ID) (*Item, error) {
	return s.store.GetDeadLetter(ctx, itemID)
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}
