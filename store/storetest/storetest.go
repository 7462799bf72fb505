// Package storetest holds the behavioral contract every store.Store backend
// must pass. Backend test files call Run with a factory returning a fresh,
// empty store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/codec"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/queue"
	"github.com/xraph/chrono/scheduler"
	"github.com/xraph/chrono/store"
)

// Payload is the input type the contract round-trips through a store.
type Payload struct {
	Name  string `json:"name" msgpack:"name"`
	Count int    `json:"count" msgpack:"count"`
}

// Run executes the full contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"Lifecycle", testLifecycle},
		{"TriggerState", testTriggerState},
		{"LogsOrderAndTake", testLogsOrderAndTake},
		{"PurgeLogsBefore", testPurgeLogsBefore},
		{"PurgeLogsOverLimit", testPurgeLogsOverLimit},
		{"Journal", testJournal},
		{"JournalAck", testJournalAck},
		{"DeadLetters", testDeadLetters},
		{"ChainQueue", testChainQueue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// DecodeInput turns whatever a store hands back into a Payload. In-process
// stores return the value as stored; serializing stores return codec.Raw.
func DecodeInput(t *testing.T, in any) Payload {
	t.Helper()
	switch v := in.(type) {
	case Payload:
		return v
	case *Payload:
		return *v
	case codec.Raw:
		var p Payload
		if err := v.Decode(&p); err != nil {
			t.Fatalf("decode input: %v", err)
		}
		return p
	default:
		t.Fatalf("unexpected input type %T", in)
		return Payload{}
	}
}

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testTriggerState(t *testing.T, s store.Store) {
	ctx := context.Background()

	got, err := s.GetTriggerState(ctx, "report")
	if err != nil || got != nil {
		t.Fatalf("missing state = %+v, %v; want nil, nil", got, err)
	}

	fired := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	next := fired.Add(24 * time.Hour)
	want := &scheduler.State{JobID: "report", LastFiredAt: &fired, NextDueAt: &next, TriggerID: "cron:0 6 * * *"}
	if err := s.SetTriggerState(ctx, want); err != nil {
		t.Fatalf("SetTriggerState: %v", err)
	}
	got, err = s.GetTriggerState(ctx, "report")
	if err != nil || got == nil {
		t.Fatalf("GetTriggerState = %+v, %v", got, err)
	}
	if !got.LastFiredAt.Equal(fired) || !got.NextDueAt.Equal(next) || got.TriggerID != want.TriggerID {
		t.Errorf("state = %+v, want %+v", got, want)
	}

	// Upsert clears NextDueAt.
	if err := s.SetTriggerState(ctx, &scheduler.State{JobID: "report", LastFiredAt: &next}); err != nil {
		t.Fatalf("SetTriggerState: %v", err)
	}
	got, _ = s.GetTriggerState(ctx, "report")
	if got.NextDueAt != nil || !got.LastFiredAt.Equal(next) {
		t.Errorf("after upsert = %+v", got)
	}

	if err := s.RemoveTriggerState(ctx, "report"); err != nil {
		t.Fatalf("RemoveTriggerState: %v", err)
	}
	if got, _ := s.GetTriggerState(ctx, "report"); got != nil {
		t.Errorf("state survived removal: %+v", got)
	}
	if err := s.RemoveTriggerState(ctx, "report"); err != nil {
		t.Errorf("removing missing state: %v", err)
	}
}

func newLog(jobID string, at time.Time, success bool) *history.Log {
	return &history.Log{
		ID:            id.NewLogID(),
		JobID:         jobID,
		ExecutedAt:    at,
		Success:       success,
		Duration:      150 * time.Millisecond,
		RetryAttempt:  1,
		RetryCount:    3,
		TriggerSource: job.SourceTrigger,
		Tags:          []string{"nightly"},
	}
}

func testLogsOrderAndTake(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		if err := s.AppendLog(ctx, newLog("report", base.Add(time.Duration(i)*time.Minute), i%2 == 0)); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}
	_ = s.AppendLog(ctx, newLog("other", base, true))

	logs, err := s.QueryLogs(ctx, "report", 3)
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("got %d logs, want 3", len(logs))
	}
	if !logs[0].ExecutedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("first log at %v, want most recent", logs[0].ExecutedAt)
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].ExecutedAt.After(logs[i-1].ExecutedAt) {
			t.Errorf("logs not most-recent-first: %v", logs)
		}
	}
	if logs[0].Duration != 150*time.Millisecond || logs[0].RetryCount != 3 || len(logs[0].Tags) != 1 {
		t.Errorf("log fields lost: %+v", logs[0])
	}

	all, _ := s.QueryLogs(ctx, "report", 0)
	if len(all) != 5 {
		t.Errorf("take 0 returned %d logs, want 5", len(all))
	}
	every, _ := s.ListLogs(ctx)
	if len(every) != 6 {
		t.Errorf("ListLogs returned %d, want 6", len(every))
	}
}

func testPurgeLogsBefore(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	_ = s.AppendLog(ctx, newLog("a", now.Add(-48*time.Hour), true))
	_ = s.AppendLog(ctx, newLog("a", now.Add(-47*time.Hour), true))
	_ = s.AppendLog(ctx, newLog("a", now, true))

	n, err := s.PurgeLogsBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeLogsBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
	left, _ := s.QueryLogs(ctx, "a", 0)
	if len(left) != 1 {
		t.Errorf("%d logs left, want 1", len(left))
	}
}

func testPurgeLogsOverLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	for i := range 5 {
		_ = s.AppendLog(ctx, newLog("a", base.Add(time.Duration(i)*time.Second), true))
	}
	for i := range 2 {
		_ = s.AppendLog(ctx, newLog("b", base.Add(time.Duration(i)*time.Second), true))
	}

	n, err := s.PurgeLogsOverLimit(ctx, 3)
	if err != nil {
		t.Fatalf("PurgeLogsOverLimit: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
	a, _ := s.QueryLogs(ctx, "a", 0)
	if len(a) != 3 {
		t.Fatalf("job a has %d logs, want 3", len(a))
	}
	if !a[2].ExecutedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("oldest kept = %v, want the newest three", a[2].ExecutedAt)
	}
	if b, _ := s.QueryLogs(ctx, "b", 0); len(b) != 2 {
		t.Errorf("job b has %d logs, want 2", len(b))
	}
}

func testJournal(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC()
	for i := range 2 {
		qj := &queue.EnqueuedJob{
			RequestID:  id.NewRequestID().String(),
			JobID:      "report",
			Input:      Payload{Name: "run", Count: i},
			EnqueuedAt: base.Add(time.Duration(i) * time.Millisecond),
			Metadata:   job.Metadata{CorrelationID: "c", TriggerSource: job.SourceQueue},
		}
		if err := s.EnqueueJob(ctx, qj); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}

	first, err := s.DequeueJob(ctx, "report")
	if err != nil || first == nil {
		t.Fatalf("DequeueJob = %v, %v", first, err)
	}
	if p := DecodeInput(t, first.Input); p.Count != 0 {
		t.Errorf("first entry count = %d, want 0", p.Count)
	}
	if first.Metadata.CorrelationID != "c" {
		t.Errorf("metadata lost: %+v", first.Metadata)
	}
	second, _ := s.DequeueJob(ctx, "report")
	if second == nil || DecodeInput(t, second.Input).Count != 1 {
		t.Fatalf("second = %+v", second)
	}
	if empty, err := s.DequeueJob(ctx, "report"); err != nil || empty != nil {
		t.Errorf("drained journal = %v, %v", empty, err)
	}
}

func testJournalAck(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC()
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = id.NewRequestID().String()
		err := s.EnqueueJob(ctx, &queue.EnqueuedJob{
			RequestID:  ids[i],
			JobID:      "report",
			Input:      Payload{Count: i},
			EnqueuedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}

	// Acking the middle entry leaves its neighbours in order.
	if err := s.AckJob(ctx, "report", ids[1]); err != nil {
		t.Fatalf("AckJob: %v", err)
	}
	if err := s.AckJob(ctx, "report", ids[1]); err != nil {
		t.Errorf("second AckJob: %v", err)
	}
	if err := s.AckJob(ctx, "other", "missing"); err != nil {
		t.Errorf("AckJob of unknown entry: %v", err)
	}

	for _, want := range []string{ids[0], ids[2]} {
		qj, err := s.DequeueJob(ctx, "report")
		if err != nil || qj == nil {
			t.Fatalf("DequeueJob = %v, %v", qj, err)
		}
		if qj.RequestID != want {
			t.Errorf("RequestID = %q, want %q", qj.RequestID, want)
		}
	}
	if left, err := s.DequeueJob(ctx, "report"); err != nil || left != nil {
		t.Errorf("drained journal = %v, %v", left, err)
	}
}

func newItem(jobID string, failedAt time.Time) *dlq.Item {
	return &dlq.Item{
		ID:           id.NewDeadLetterID(),
		JobID:        jobID,
		FailedAt:     failedAt,
		Input:        Payload{Name: jobID, Count: 7},
		Error:        "boom",
		RetryAttempt: 3,
		MaxAttempts:  3,
		Metadata:     job.Metadata{UserID: "u1"},
	}
}

func testDeadLetters(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	older := newItem("a", base)
	newer := newItem("a", base.Add(time.Minute))
	other := newItem("b", base.Add(2*time.Minute))
	for _, item := range []*dlq.Item{older, newer, other} {
		if err := s.AddDeadLetter(ctx, item); err != nil {
			t.Fatalf("AddDeadLetter: %v", err)
		}
	}

	got, err := s.GetDeadLetter(ctx, older.ID)
	if err != nil {
		t.Fatalf("GetDeadLetter: %v", err)
	}
	if got.Error != "boom" || got.Metadata.UserID != "u1" || got.RetryAttempt != 3 {
		t.Errorf("item = %+v", got)
	}
	if DecodeInput(t, got.Input).Count != 7 {
		t.Errorf("input = %v", got.Input)
	}
	if _, err := s.GetDeadLetter(ctx, id.NewDeadLetterID()); !errors.Is(err, chrono.ErrDeadLetterNotFound) {
		t.Errorf("missing item err = %v", err)
	}

	list, _ := s.ListDeadLetters(ctx, dlq.ListOpts{})
	if len(list) != 3 || list[0].ID.String() != other.ID.String() {
		t.Fatalf("list = %v", list)
	}
	byJob, _ := s.ListDeadLetters(ctx, dlq.ListOpts{JobID: "a", Limit: 1})
	if len(byJob) != 1 || byJob[0].ID.String() != newer.ID.String() {
		t.Errorf("filtered list = %v", byJob)
	}
	paged, _ := s.ListDeadLetters(ctx, dlq.ListOpts{Offset: 2})
	if len(paged) != 1 || paged[0].ID.String() != older.ID.String() {
		t.Errorf("offset list = %v", paged)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.MarkRequeued(ctx, older.ID, at); err != nil {
		t.Fatalf("MarkRequeued: %v", err)
	}
	got, _ = s.GetDeadLetter(ctx, older.ID)
	if got.RequeuedAt == nil || !got.RequeuedAt.Equal(at) {
		t.Errorf("RequeuedAt = %v, want %v", got.RequeuedAt, at)
	}

	n, err := s.DeleteDeadLetters(ctx, "a")
	if err != nil || n != 2 {
		t.Fatalf("DeleteDeadLetters = %d, %v; want 2", n, err)
	}
	rest, _ := s.ListDeadLetters(ctx, dlq.ListOpts{})
	if len(rest) != 1 || rest[0].JobID != "b" {
		t.Errorf("after delete = %v", rest)
	}
}

func testChainQueue(t *testing.T, s store.Store) {
	ctx := context.Background()
	if item, err := s.DequeueChain(ctx); err != nil || item != nil {
		t.Fatalf("empty chain queue = %v, %v", item, err)
	}

	base := time.Now().UTC()
	first := &chain.Item{ID: id.NewChainItemID(), JobID: "notify", Input: Payload{Count: 1}, EnqueuedAt: base, SourceJobID: "report"}
	second := &chain.Item{ID: id.NewChainItemID(), JobID: "archive", EnqueuedAt: base.Add(time.Millisecond), SourceJobID: "report"}
	for _, item := range []*chain.Item{first, second} {
		if err := s.EnqueueChain(ctx, item); err != nil {
			t.Fatalf("EnqueueChain: %v", err)
		}
	}

	got, err := s.DequeueChain(ctx)
	if err != nil || got == nil {
		t.Fatalf("DequeueChain = %v, %v", got, err)
	}
	if got.JobID != "notify" || got.SourceJobID != "report" {
		t.Errorf("first item = %+v", got)
	}
	if DecodeInput(t, got.Input).Count != 1 {
		t.Errorf("input = %v", got.Input)
	}

	// Reserved items are not handed out twice.
	next, _ := s.DequeueChain(ctx)
	if next == nil || next.JobID != "archive" {
		t.Fatalf("second item = %+v", next)
	}
	if none, _ := s.DequeueChain(ctx); none != nil {
		t.Errorf("reserved item redelivered: %+v", none)
	}

	if err := s.AckChain(ctx, got.ID); err != nil {
		t.Fatalf("AckChain: %v", err)
	}
	if err := s.AckChain(ctx, next.ID); err != nil {
		t.Fatalf("AckChain: %v", err)
	}
}
