// Package store defines the aggregate persistence interface. Each subsystem
// (scheduler, history, queue, dlq, chain) defines its own store interface.
// The composite Store composes them all. Backends: Memory, Redis and
// PostgreSQL.
package store

import (
	"context"

	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/queue"
	"github.com/xraph/chrono/scheduler"
)

// Store is the aggregate persistence interface. A single backend
// implements all of the subsystem stores.
type Store interface {
	scheduler.StateStore
	history.Store
	queue.Journal
	dlq.Store
	chain.Store

	// Migrate prepares the backend schema.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases resources the store owns.
	Close() error
}
