package worker_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/ext"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/lock"
	"github.com/xraph/chrono/middleware"
	"github.com/xraph/chrono/store/memory"
	"github.com/xraph/chrono/worker"
)

// hookSpy records every hook it receives as "<hook>:<job>".
type hookSpy struct {
	mu     sync.Mutex
	events []string
}

func (h *hookSpy) Name() string { return "spy" }

func (h *hookSpy) add(e string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *hookSpy) count(prefix string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (h *hookSpy) OnJobStarted(_ context.Context, x *job.Execution, _ time.Time) error {
	h.add("started:" + x.JobID())
	return nil
}

func (h *hookSpy) OnJobRetrying(_ context.Context, x *job.Execution, _ int, _ time.Duration) error {
	h.add("retrying:" + x.JobID())
	return nil
}

func (h *hookSpy) OnJobSucceeded(_ context.Context, x *job.Execution, _ *job.Result, _ time.Duration) error {
	h.add("succeeded:" + x.JobID())
	return nil
}

func (h *hookSpy) OnJobFailed(_ context.Context, x *job.Execution, _ error, _ int) error {
	h.add("failed:" + x.JobID())
	return nil
}

func (h *hookSpy) OnJobChained(_ context.Context, from, to string) error {
	h.add("chained:" + from + "->" + to)
	return nil
}

func (h *hookSpy) OnJobDeadLettered(_ context.Context, item *dlq.Item) error {
	h.add("deadlettered:" + item.JobID)
	return nil
}

// refusingLocks never grants a lock.
type refusingLocks struct{ asked []string }

func (r *refusingLocks) TryAcquire(_ context.Context, key string, _ time.Duration) (lock.Handle, error) {
	r.asked = append(r.asked, key)
	return nil, nil
}

type fixture struct {
	store    *memory.Store
	spy      *hookSpy
	registry *job.Registry
	executor *worker.Executor
	dispatch *worker.Dispatcher
}

func newFixture(t *testing.T, opts ...worker.ExecutorOption) *fixture {
	t.Helper()
	s := memory.New()
	spy := &hookSpy{}
	extensions := ext.NewRegistry(slog.Default())
	extensions.Register(spy)

	base := []worker.ExecutorOption{
		worker.WithHistory(s),
		worker.WithChainStore(s),
		worker.WithDeadLetters(s),
		worker.WithExtensions(extensions),
		worker.WithDiagnostics(true),
		worker.WithMiddleware(middleware.Recover(slog.Default())),
	}
	exec := worker.NewExecutor(append(base, opts...)...)
	reg := job.NewRegistry()
	return &fixture{
		store:    s,
		spy:      spy,
		registry: reg,
		executor: exec,
		dispatch: worker.NewDispatcher(reg, exec),
	}
}

func (f *fixture) register(t *testing.T, def *job.Definition) *job.Definition {
	t.Helper()
	if err := f.registry.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return def
}

func (f *fixture) run(t *testing.T, jobID string, input any) *job.Result {
	t.Helper()
	res, err := f.dispatch.Dispatch(context.Background(), job.Request{
		JobID:    jobID,
		Input:    input,
		Metadata: job.Metadata{CorrelationID: "corr", TriggerSource: job.SourceAPI, UserID: "u1"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res == nil {
		t.Fatal("Dispatch returned a nil result")
	}
	return res
}
