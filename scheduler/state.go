package scheduler

import (
	"context"
	"time"
)

// State is the persisted firing record of one job's trigger. Only the
// scheduler writes it.
type State struct {
	JobID       string     `json:"job_id"`
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
	NextDueAt   *time.Time `json:"next_due_at,omitempty"`
	TriggerID   string     `json:"trigger_id,omitempty"`
}

// StateStore persists trigger state.
type StateStore interface {
	// GetTriggerState returns the state of jobID, or nil when none exists.
	GetTriggerState(ctx context.Context, jobID string) (*State, error)
	// SetTriggerState upserts a state.
	SetTriggerState(ctx context.Context, s *State) error
	// RemoveTriggerState deletes the state of jobID. Missing state is not
	// an error.
	RemoveTriggerState(ctx context.Context, jobID string) error
}
