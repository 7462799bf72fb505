package chain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/store/memory"
)

type dispatchSpy struct {
	mu       sync.Mutex
	requests []job.Request
	results  map[string]*job.Result
	errs     map[string]error
}

func (d *dispatchSpy) Dispatch(_ context.Context, req job.Request) (*job.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if err := d.errs[req.JobID]; err != nil {
		return nil, err
	}
	if res := d.results[req.JobID]; res != nil {
		return res, nil
	}
	return job.Succeeded(nil), nil
}

func (d *dispatchSpy) seen() []job.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]job.Request(nil), d.requests...)
}

func sourceExecution(jobID string) *job.Execution {
	return &job.Execution{
		Definition: job.New(jobID, func(context.Context, any) (*job.Result, error) { return nil, nil }),
		Metadata:   job.Metadata{CorrelationID: "corr-9", TriggerSource: job.SourceTrigger, UserID: "u1"},
	}
}

func TestNewItem(t *testing.T) {
	item := chain.NewItem(sourceExecution("report"), "notify", map[string]any{"rows": 3})
	if item.JobID != "notify" || item.SourceJobID != "report" {
		t.Errorf("item = %+v", item)
	}
	if item.Metadata.TriggerSource != job.SourceChain {
		t.Errorf("TriggerSource = %q, want chain", item.Metadata.TriggerSource)
	}
	if item.Metadata.CorrelationID != "corr-9" || item.Metadata.UserID != "u1" {
		t.Errorf("metadata not carried over: %+v", item.Metadata)
	}
	if item.ID.IsNil() || item.EnqueuedAt.IsZero() {
		t.Error("expected id and timestamp")
	}
}

func TestConsumer_DrainDispatchesAndAcks(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	x := sourceExecution("report")
	for _, target := range []string{"notify", "ghost", "broken", "sad"} {
		_ = s.EnqueueChain(ctx, chain.NewItem(x, target, "data"))
	}

	spy := &dispatchSpy{
		errs: map[string]error{
			"ghost":  chrono.ErrJobNotFound,
			"broken": errors.New("store down"),
		},
		results: map[string]*job.Result{"sad": job.Failed("nope", nil)},
	}
	c := chain.NewConsumer(s, spy)

	n, err := c.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 4 {
		t.Fatalf("drained %d, want 4", n)
	}

	got := spy.seen()
	for i, want := range []string{"notify", "ghost", "broken", "sad"} {
		if got[i].JobID != want {
			t.Errorf("dispatch %d = %q, want %q", i, got[i].JobID, want)
		}
	}
	if got[0].Input != "data" || got[0].Metadata.TriggerSource != job.SourceChain {
		t.Errorf("request = %+v", got[0])
	}

	// Everything was acknowledged, failures included.
	if recovered, _ := s.RecoverChain(ctx); recovered != 0 {
		t.Errorf("%d items left unacknowledged", recovered)
	}
	if s.PendingChain() != 0 {
		t.Errorf("PendingChain = %d", s.PendingChain())
	}
}

func TestConsumer_RunRecoversAndStops(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	_ = s.EnqueueChain(ctx, chain.NewItem(sourceExecution("a"), "b", nil))

	// Reserved by a consumer that died before acknowledging.
	if item, _ := s.DequeueChain(ctx); item == nil {
		t.Fatal("expected an item")
	}

	spy := &dispatchSpy{}
	c := chain.NewConsumer(s, spy, chain.WithPollInterval(5*time.Millisecond))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	deadline := time.After(time.Second)
	for len(spy.seen()) == 0 {
		select {
		case <-deadline:
			t.Fatal("recovered item was never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Items arriving later are picked up by polling.
	_ = s.EnqueueChain(ctx, chain.NewItem(sourceExecution("a"), "c", nil))
	for len(spy.seen()) < 2 {
		select {
		case <-deadline:
			t.Fatal("late item was never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
