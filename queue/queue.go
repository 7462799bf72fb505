package queue

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/job"
)

// EnqueuedJob is one unit of ad-hoc work.
type EnqueuedJob struct {
	RequestID  string       `json:"request_id"`
	JobID      string       `json:"job_id"`
	Input      any          `json:"input,omitempty"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	Metadata   job.Metadata `json:"metadata"`
}

// Queue is an unbounded multi-producer FIFO. Push never blocks; Pop blocks
// until an item is available, the context ends, or the queue is closed and
// drained.
type Queue struct {
	mu     sync.Mutex
	items  []*EnqueuedJob
	signal chan struct{}
	closed bool
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends qj.
func (q *Queue) Push(qj *EnqueuedJob) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return chrono.ErrQueueClosed
	}
	q.items = append(q.items, qj)
	q.mu.Unlock()
	q.notify()
	return nil
}

// PushFront puts qj back at the head of the queue. The consumer uses it to
// return an item it popped but could not dispatch. Closed queues accept it
// so the item is still drained.
func (q *Queue) PushFront(qj *EnqueuedJob) {
	q.mu.Lock()
	q.items = append([]*EnqueuedJob{qj}, q.items...)
	q.mu.Unlock()
	q.notify()
}

// Pop removes and returns the oldest item. Items left in the queue when
// ctx ends stay queued.
func (q *Queue) Pop(ctx context.Context) (*EnqueuedJob, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			qj := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return qj, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, chrono.ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// Peek returns the oldest item without removing it.
func (q *Queue) Peek() (*EnqueuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Snapshot returns the queued items in order.
func (q *Queue) Snapshot() []*EnqueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*EnqueuedJob(nil), q.items...)
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting pushes. Pop keeps returning queued items and then
// chrono.ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
