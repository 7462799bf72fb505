// Package chain carries follow-on work between jobs. After a dispatch the
// executor pushes one [Item] per chain target into a durable [Store]; a
// [Consumer] drains the store into the dispatcher.
//
// Chaining is a flat one-hop fan-out: a chained job may chain further jobs
// of its own, but there is no graph of dependencies between them.
package chain

import (
	"context"
	"time"

	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
)

// Item is one pending chained dispatch.
type Item struct {
	ID          id.ID        `json:"id"`
	JobID       string       `json:"job_id"`
	Input       any          `json:"input,omitempty"`
	EnqueuedAt  time.Time    `json:"enqueued_at"`
	SourceJobID string       `json:"source_job_id"`
	Metadata    job.Metadata `json:"metadata"`
}

// NewItem builds an Item chaining toJobID after x, passing the source
// result's data as input.
func NewItem(x *job.Execution, toJobID string, data any) *Item {
	meta := x.Metadata
	meta.TriggerSource = job.SourceChain
	return &Item{
		ID:          id.NewChainItemID(),
		JobID:       toJobID,
		Input:       data,
		EnqueuedAt:  time.Now().UTC(),
		SourceJobID: x.JobID(),
		Metadata:    meta,
	}
}

// Store is the durable chain queue. Dequeued items stay reserved until
// they are acknowledged.
type Store interface {
	// EnqueueChain appends an item.
	EnqueueChain(ctx context.Context, item *Item) error

	// DequeueChain reserves and returns the oldest item, or nil when the
	// queue is empty.
	DequeueChain(ctx context.Context) (*Item, error)

	// AckChain removes a reserved item for good.
	AckChain(ctx context.Context, itemID id.ID) error
}

// Recoverer is implemented by stores that can hand reserved but
// unacknowledged items out again. The Consumer calls it once at start.
type Recoverer interface {
	RecoverChain(ctx context.Context) (int, error)
}
