package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/queue"
)

// State is the derived state of a job.
type State string

const (
	StateDeadLettered State = "dead_lettered"
	StateRunning      State = "running"
	StateQueued       State = "queued"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// JobStatus is the current view of one job.
type JobStatus struct {
	JobID         string     `json:"job_id"`
	State         State      `json:"state"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastSuccess   *bool      `json:"last_success,omitempty"`
	RetryAttempt  int        `json:"retry_attempt,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	TriggerSource string     `json:"trigger_source,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
}

// RunningSet reports in-flight jobs. *worker.RunningSet satisfies it.
type RunningSet interface {
	IsRunning(jobID string) bool
}

// QueueHead exposes the head of the ad-hoc queue. *queue.Queue satisfies it.
type QueueHead interface {
	Peek() (*queue.EnqueuedJob, bool)
}

// JobLister lists registered job IDs. *job.Registry satisfies it.
type JobLister interface {
	IDs() []string
}

// Provider computes JobStatus values.
type Provider struct {
	jobs    JobLister
	logs    history.Store
	dead    dlq.Store
	running RunningSet
	queue   QueueHead
}

// NewProvider creates a Provider. dead, running and queue may be nil, in
// which case the states they feed are never reported.
func NewProvider(jobs JobLister, logs history.Store, dead dlq.Store, running RunningSet, queue QueueHead) *Provider {
	return &Provider{jobs: jobs, logs: logs, dead: dead, running: running, queue: queue}
}

// Get returns the status of jobID. The state is the first that applies of
// dead-lettered, running, queued (at the head of the queue), then the
// outcome of the latest log. chrono.ErrNoStatus is returned when none do.
// Dead letters that were already requeued do not count.
func (p *Provider) Get(ctx context.Context, jobID string) (*JobStatus, error) {
	latest, err := p.latestLog(ctx, jobID)
	if err != nil {
		return nil, err
	}
	dead, err := p.openDeadLetter(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var state State
	switch {
	case dead != nil:
		state = StateDeadLettered
	case p.running != nil && p.running.IsRunning(jobID):
		state = StateRunning
	case p.queuedAtHead(jobID):
		state = StateQueued
	case latest != nil && latest.Success:
		state = StateSucceeded
	case latest != nil:
		state = StateFailed
	default:
		return nil, fmt.Errorf("%w: %s", chrono.ErrNoStatus, jobID)
	}

	st := &JobStatus{JobID: jobID, State: state}
	if latest != nil {
		executed, success := latest.ExecutedAt, latest.Success
		st.LastRun = &executed
		st.LastSuccess = &success
		st.RetryAttempt = latest.RetryAttempt
		st.ErrorMessage = latest.Error
		st.Tags = latest.Tags
		st.CorrelationID = latest.CorrelationID
		st.TriggerSource = latest.TriggerSource
		st.UserID = latest.UserID
	}
	if dead != nil {
		st.CorrelationID = firstNonEmpty(st.CorrelationID, dead.Metadata.CorrelationID)
		st.TriggerSource = firstNonEmpty(st.TriggerSource, dead.Metadata.TriggerSource)
		st.UserID = firstNonEmpty(st.UserID, dead.Metadata.UserID)
		if st.Tags == nil {
			st.Tags = dead.Tags
		}
	}
	return st, nil
}

// All returns the status of every registered job that has one, in
// registration order.
func (p *Provider) All(ctx context.Context) ([]*JobStatus, error) {
	ids := p.jobs.IDs()
	out := make([]*JobStatus, 0, len(ids))
	for _, jobID := range ids {
		st, err := p.Get(ctx, jobID)
		if errors.Is(err, chrono.ErrNoStatus) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (p *Provider) latestLog(ctx context.Context, jobID string) (*history.Log, error) {
	logs, err := p.logs.QueryLogs(ctx, jobID, 1)
	if err != nil {
		return nil, fmt.Errorf("status: query logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return logs[0], nil
}

// openDeadLetter returns the first item of jobID not yet requeued. Requeued
// items stay in the store until discarded but no longer decide the state.
func (p *Provider) openDeadLetter(ctx context.Context, jobID string) (*dlq.Item, error) {
	if p.dead == nil {
		return nil, nil
	}
	items, err := p.dead.ListDeadLetters(ctx, dlq.ListOpts{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("status: list dead letters: %w", err)
	}
	for _, item := range items {
		if item.RequeuedAt == nil {
			return item, nil
		}
	}
	return nil, nil
}

func (p *Provider) queuedAtHead(jobID string) bool {
	if p.queue == nil {
		return false
	}
	head, ok := p.queue.Peek()
	return ok && head.JobID == jobID
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
