package dlq

import (
	"context"
	"time"

	"github.com/xraph/chrono/id"
)

// ListOpts controls pagination and filtering for dead-letter queries.
type ListOpts struct {
	// JobID filters by job. Empty means all jobs.
	JobID string
	// Limit is the maximum number of items to return. Zero means no limit.
	Limit int
	// Offset is the number of items to skip.
	Offset int
}

// Store defines the persistence contract for dead letters. Lists are
// ordered most recent failure first.
type Store interface {
	// AddDeadLetter persists an item.
	AddDeadLetter(ctx context.Context, item *Item) error

	// ListDeadLetters returns items matching opts.
	ListDeadLetters(ctx context.Context, opts ListOpts) ([]*Item, error)

	// GetDeadLetter returns one item, or chrono.ErrDeadLetterNotFound.
	GetDeadLetter(ctx context.Context, itemID id.ID) (*Item, error)

	// MarkRequeued stamps RequeuedAt on an item.
	MarkRequeued(ctx context.Context, itemID id.ID, at time.Time) error

	// DeleteDeadLetters removes every item of a job and returns how many
	// were removed.
	DeleteDeadLetters(ctx context.Context, jobID string) (int64, error)
}
