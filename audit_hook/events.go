package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued     = "job.enqueued"
	ActionJobStarted      = "job.started"
	ActionJobSucceeded    = "job.succeeded"
	ActionJobFailed       = "job.failed"
	ActionJobRetrying     = "job.retrying"
	ActionJobChained      = "job.chained"
	ActionJobDeadLettered = "job.dead_lettered"
	ActionTriggerFired    = "trigger.fired"
	ActionEngineShutdown  = "engine.shutdown"
)

// Audit event categories group related actions.
const (
	CategoryJob     = "chrono.job"
	CategoryTrigger = "chrono.trigger"
	CategoryEngine  = "chrono.engine"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob        = "job"
	ResourceDeadLetter = "dead_letter"
	ResourceEngine     = "engine"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobSucceeded,
		ActionJobFailed,
		ActionJobRetrying,
		ActionJobChained,
		ActionJobDeadLettered,
		ActionTriggerFired,
		ActionEngineShutdown,
	}
}
