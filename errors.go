package chrono

import "errors"

var (
	// Registry errors.
	ErrJobNotFound  = errors.New("chrono: job not found")
	ErrDuplicateJob = errors.New("chrono: job already registered")
	ErrInvalidJob   = errors.New("chrono: invalid job definition")

	// Execution errors.
	ErrLockNotAcquired = errors.New("chrono: distributed lock not acquired")
	ErrJobTimeout      = errors.New("chrono: job attempt timed out")
	ErrWorkerDisabled  = errors.New("chrono: worker execution is disabled by configuration")

	// Read-side and storage errors.
	ErrDeadLetterNotFound = errors.New("chrono: dead letter not found")
	ErrNoStatus           = errors.New("chrono: no status recorded for job")
	ErrNoStore            = errors.New("chrono: no store configured")

	// State errors.
	ErrInvalidState = errors.New("chrono: invalid state transition")
	ErrQueueClosed  = errors.New("chrono: queue closed")
)
