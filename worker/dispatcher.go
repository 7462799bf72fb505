package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/job"
)

// Dispatcher resolves requests against the registry and hands them to the
// Executor. It is stateless.
type Dispatcher struct {
	registry *job.Registry
	executor *Executor
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *job.Registry, executor *Executor) *Dispatcher {
	return &Dispatcher{registry: registry, executor: executor}
}

// Dispatch runs req to completion. An unknown job ID is the only error;
// every other outcome is reported in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req job.Request) (*job.Result, error) {
	def, ok := d.registry.Get(req.JobID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", chrono.ErrJobNotFound, req.JobID)
	}
	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}
	x := &job.Execution{
		Definition:  def,
		Input:       req.Input,
		Metadata:    req.Metadata,
		TriggerID:   req.TriggerID,
		ScheduledAt: scheduledAt,
	}
	return d.executor.Execute(ctx, x), nil
}

// Executor returns the executor requests are forwarded to.
func (d *Dispatcher) Executor() *Executor { return d.executor }
