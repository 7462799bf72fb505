// Package store defines the aggregate persistence interface.
//
// Each subsystem (scheduler, history, queue, dlq, chain) defines its own
// store interface. The composite [Store] composes them all. A single backend
// need only implement Store to satisfy every subsystem's persistence contract.
//
// The composite interface:
//
//	type Store interface {
//	    scheduler.StateStore
//	    history.Store
//	    queue.Journal
//	    dlq.Store
//	    chain.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory: in-memory store for development and testing
//   - store/redis: Redis backend using go-redis/v9
//   - store/postgres: PostgreSQL backend using pgx/v5
//
// # Usage
//
//	s := memory.New()
//	eng, err := engine.New(engine.WithStore(s))
package store
