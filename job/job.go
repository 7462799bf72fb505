package job

import "time"

// Trigger sources recorded on logs and dead letters.
const (
	SourceTrigger    = "trigger"
	SourceQueue      = "queue"
	SourceChain      = "chain"
	SourceDeadLetter = "dead-letter"
	SourceAPI        = "api"
)

// Metadata travels with an enqueued job into its execution log and, on
// terminal failure, its dead letter.
type Metadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	TriggerSource string `json:"trigger_source,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// IsZero reports whether no field is set.
func (m Metadata) IsZero() bool {
	return m == Metadata{}
}

// Result is the outcome of a dispatch.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// Err is the error that ended the final attempt, kept for diagnostics.
	Err error `json:"-"`

	// Data is the handler's output payload, stored on the execution log.
	Data any `json:"data,omitempty"`

	// NextJobIDs, when non-nil, replaces the definition's success or
	// failure chain for this run. An empty non-nil slice chains nothing.
	NextJobIDs []string `json:"next_job_ids,omitempty"`
}

// Succeeded returns a successful result carrying data. Passing next
// overrides the definition's success chain.
func Succeeded(data any, next ...string) *Result {
	r := &Result{Success: true, Data: data}
	if len(next) > 0 {
		r.NextJobIDs = next
	}
	return r
}

// Failed returns a failed result. err may be nil for a soft failure.
func Failed(message string, err error) *Result {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Result{Message: message, Err: err}
}

// Request asks the dispatcher to run one job.
type Request struct {
	JobID       string
	Input       any
	Metadata    Metadata
	TriggerID   string
	ScheduledAt time.Time
}

// Execution is a resolved Request: the definition plus everything the
// executor and middleware need to run it.
type Execution struct {
	Definition  *Definition
	Input       any
	Metadata    Metadata
	TriggerID   string
	ScheduledAt time.Time
}

// JobID is a shorthand for Definition.ID.
func (x *Execution) JobID() string {
	return x.Definition.ID
}
