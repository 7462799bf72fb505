// Package dlq holds dispatches that failed on their final attempt.
//
// When the last attempt of a job fails and a dead-letter store is
// configured, the executor records an [Item] with the original input, the
// final error and the attempt counts. Items are never removed implicitly:
// [Service.Requeue] enqueues the job again and leaves the item in place,
// and [Service.Discard] deletes every item of a job.
package dlq
