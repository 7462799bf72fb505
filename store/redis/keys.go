package redis

// Redis key naming conventions for chrono data.
// All keys are prefixed with "chrono:" to avoid collisions.

const keyPrefix = "chrono:"

// ── Trigger state keys ──

// stateKey returns the key holding a job's trigger state: chrono:state:{jobID}
func stateKey(jobID string) string { return keyPrefix + "state:" + jobID }

// ── History keys ──

// logsKey returns the Sorted Set of a job's logs, scored by execution time
// in microseconds: chrono:logs:{jobID}
func logsKey(jobID string) string { return keyPrefix + "logs:" + jobID }

// logJobsKey is the Set of job IDs that have logs.
const logJobsKey = keyPrefix + "log_jobs"

// ── Journal keys ──

// journalKey returns the List of a job's pending request IDs, oldest first.
func journalKey(jobID string) string { return keyPrefix + "journal:" + jobID }

// journalEntriesKey returns the Hash of a job's journal entries keyed by
// request ID.
func journalEntriesKey(jobID string) string { return keyPrefix + "journal_entries:" + jobID }

// ── Dead-letter keys ──

// deadLettersKey is the Hash of dead-letter envelopes keyed by item ID.
const deadLettersKey = keyPrefix + "dlq"

// deadLetterIndexKey is the Sorted Set of all item IDs scored by FailedAt.
const deadLetterIndexKey = keyPrefix + "dlq_idx"

// deadLetterJobKey returns the Sorted Set of a job's item IDs.
func deadLetterJobKey(jobID string) string { return keyPrefix + "dlq_job:" + jobID }

// ── Chain keys ──

// chainItemsKey is the Hash of chain item envelopes keyed by item ID.
const chainItemsKey = keyPrefix + "chain"

// chainPendingKey is the List of item IDs waiting for a consumer.
const chainPendingKey = keyPrefix + "chain_pending"

// chainReservedKey is the List of item IDs handed out but not acknowledged.
const chainReservedKey = keyPrefix + "chain_reserved"
