// Package queue is the ad-hoc ingestion path: producers hand jobs to an
// [Enqueuer], which pushes them onto an unbounded in-process [Queue] that a
// single worker drains in FIFO order.
//
// The in-memory queue loses unconsumed items on restart. Configuring a
// [Journal] makes the path durable: every enqueued job is also written to
// the journal, removed once dispatched, and replayed into the queue when
// the worker starts.
//
// A [Limiter] optionally throttles draining, globally and per job.
package queue
