// Package stream fans chrono lifecycle events out to live subscribers over
// topic-based pub/sub. The Broker is an ext.Extension; Handler exposes it as
// a Server-Sent Events endpoint.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Job events.
	EventJobEnqueued     EventType = "job.enqueued"
	EventJobStarted      EventType = "job.started"
	EventJobSucceeded    EventType = "job.succeeded"
	EventJobFailed       EventType = "job.failed"
	EventJobRetrying     EventType = "job.retrying"
	EventJobChained      EventType = "job.chained"
	EventJobDeadLettered EventType = "job.dead_lettered"

	// Trigger events.
	EventTriggerFired EventType = "trigger.fired"
)

// Event is the envelope sent to subscribers.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity topic the event belongs to, e.g. "job:report".
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job events.
type JobEventData struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	TriggerSource string `json:"trigger_source,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
	ElapsedMs     int64  `json:"elapsed_ms,omitempty"`
	DelayMs       int64  `json:"delay_ms,omitempty"`
	Error         string `json:"error,omitempty"`
	NextJobID     string `json:"next_job_id,omitempty"`
	DeadLetterID  string `json:"dead_letter_id,omitempty"`
}

// TriggerEventData is the payload for trigger events.
type TriggerEventData struct {
	JobID     string    `json:"job_id"`
	TriggerID string    `json:"trigger_id"`
	DueAt     time.Time `json:"due_at"`
}
