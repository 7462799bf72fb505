// Package lock defines the mutual-exclusion contract the executor uses for
// jobs that opt into locking, plus an in-process implementation.
//
// Clustered implementations live in lock/redislock and lock/pglock.
package lock

import (
	"context"
	"time"
)

// AcquireTimeout bounds every acquisition made by the executor, independent
// of any lease a provider keeps on its own.
const AcquireTimeout = 5 * time.Second

// Provider hands out named locks.
type Provider interface {
	// TryAcquire waits up to timeout for key. It returns a nil Handle and a
	// nil error when the lock is held elsewhere for the whole wait; errors
	// are reserved for provider failures.
	TryAcquire(ctx context.Context, key string, timeout time.Duration) (Handle, error)
}

// Handle is a held lock.
type Handle interface {
	// Release gives the lock up. Releasing twice is a no-op.
	Release(ctx context.Context) error
}
