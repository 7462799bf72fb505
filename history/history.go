// Package history records one execution log per dispatch and keeps the
// log store bounded with a periodic retention sweep.
package history

import (
	"context"
	"time"

	"github.com/xraph/chrono/id"
)

// Log is the final outcome of one dispatch, after all retries.
type Log struct {
	ID         id.ID     `json:"id"`
	JobID      string    `json:"job_id"`
	ExecutedAt time.Time `json:"executed_at"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`

	// Duration spans the whole dispatch including retry waits.
	Duration time.Duration `json:"duration"`

	// RetryAttempt is the number of attempts made; RetryCount is the
	// attempt budget.
	RetryAttempt       int           `json:"retry_attempt"`
	RetryCount         int           `json:"retry_count"`
	MaxAttemptsReached bool          `json:"max_attempts_reached"`
	RetryDelay         time.Duration `json:"retry_delay"`

	Output any `json:"output,omitempty"`

	TriggerID     string   `json:"trigger_id,omitempty"`
	InstanceID    string   `json:"instance_id,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	TriggerSource string   `json:"trigger_source,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
}

// Store persists execution logs. Implementations must tolerate concurrent
// appends from the scheduler, queue and chain paths.
type Store interface {
	// AppendLog adds a log row.
	AppendLog(ctx context.Context, l *Log) error

	// QueryLogs returns up to take logs of jobID, most recent first. A take
	// of zero or less returns all of them.
	QueryLogs(ctx context.Context, jobID string, take int) ([]*Log, error)

	// ListLogs returns every log, most recent first.
	ListLogs(ctx context.Context) ([]*Log, error)

	// PurgeLogsBefore deletes logs executed before cutoff.
	PurgeLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// PurgeLogsOverLimit keeps the newest maxPerJob logs of every job and
	// deletes the rest.
	PurgeLogsOverLimit(ctx context.Context, maxPerJob int) (int64, error)
}
