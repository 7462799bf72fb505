package dlq

import (
	"time"

	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
)

// Item is a dead-lettered dispatch.
type Item struct {
	ID           id.ID        `json:"id"`
	JobID        string       `json:"job_id"`
	FailedAt     time.Time    `json:"failed_at"`
	Input        any          `json:"input,omitempty"`
	Error        string       `json:"error"`
	RetryAttempt int          `json:"retry_attempt"`
	MaxAttempts  int          `json:"max_attempts"`
	TriggerID    string       `json:"trigger_id,omitempty"`
	InstanceID   string       `json:"instance_id,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	Metadata     job.Metadata `json:"metadata"`
	RequeuedAt   *time.Time   `json:"requeued_at,omitempty"`
}

// NewItem builds an Item for the final failed attempt of x.
func NewItem(x *job.Execution, err error, attempt int, instanceID string) *Item {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Item{
		ID:           id.NewDeadLetterID(),
		JobID:        x.JobID(),
		FailedAt:     time.Now().UTC(),
		Input:        x.Input,
		Error:        msg,
		RetryAttempt: attempt,
		MaxAttempts:  x.Definition.MaxAttempts(),
		TriggerID:    x.TriggerID,
		InstanceID:   instanceID,
		Tags:         append([]string(nil), x.Definition.Tags...),
		Metadata:     x.Metadata,
	}
}
