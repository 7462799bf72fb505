package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/api"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/engine"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/status"
	"github.com/xraph/chrono/store/memory"
	"github.com/xraph/chrono/stream"
)

// ──────────────────────────────────────────────────
// Fixture
// ──────────────────────────────────────────────────

type reportInput struct {
	Day int `json:"day"`
}

type fixture struct {
	eng    *engine.Engine
	server *httptest.Server
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, opts...)
}

func newFixtureWith(t *testing.T, engOpts []engine.Option, opts ...api.Option) *fixture {
	t.Helper()
	cfg := chrono.DefaultConfig()
	cfg.AutoStartScheduler = false
	cfg.Retention.Enabled = false

	engOpts = append([]engine.Option{engine.WithConfig(cfg), engine.WithStore(memory.New())}, engOpts...)
	eng, err := engine.New(engOpts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	err = eng.Register(
		job.New("report", func(context.Context, reportInput) (*job.Result, error) {
			return job.Succeeded("done"), nil
		}),
		job.New("broken", func(context.Context, reportInput) (*job.Result, error) {
			return nil, errors.New("disk full")
		}),
	)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	srv := httptest.NewServer(api.New(eng, opts...).Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return &fixture{eng: eng, server: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("%s %s = %d (%s), want %d",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, e.Error, want)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

func (f *fixture) dispatch(t *testing.T, jobID string) {
	t.Helper()
	if _, err := f.eng.Dispatch(context.Background(), job.Request{JobID: jobID, Input: reportInput{Day: 1}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Enqueue
// ──────────────────────────────────────────────────

func TestEnqueue(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/chrono/jobs/enqueue",
		`{"jobId":"report","input":{"day":3},"metadata":{"userId":"u-7","correlationId":"c-1"}}`)
	expectStatus(t, resp, http.StatusAccepted)
	got := decode[api.EnqueueResponse](t, resp)

	if got.JobID != "report" || got.CorrelationID != "c-1" || got.RequestID == "" {
		t.Errorf("response = %+v", got)
	}
	head, ok := f.eng.Queue().Peek()
	if !ok {
		t.Fatal("expected the job to be queued")
	}
	if head.Metadata.TriggerSource != job.SourceAPI || head.Metadata.UserID != "u-7" {
		t.Errorf("metadata = %+v", head.Metadata)
	}

	st := decode[status.JobStatus](t, f.do(t, http.MethodGet, "/chrono/jobs/status/report", ""))
	if st.State != status.StateQueued {
		t.Errorf("state = %q, want queued", st.State)
	}
}

func TestEnqueue_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{"jobId":`, http.StatusBadRequest},
		{"missing job id", `{"input":{}}`, http.StatusBadRequest},
		{"unknown job", `{"jobId":"ghost"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, f.do(t, http.MethodPost, "/chrono/jobs/enqueue", tt.body), tt.want)
		})
	}
	if f.eng.Queue().Len() != 0 {
		t.Error("rejected requests must not queue anything")
	}
}

// ──────────────────────────────────────────────────
// Status, metrics and logs
// ──────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	f := newFixture(t)

	expectStatus(t, f.do(t, http.MethodGet, "/chrono/jobs/status/report", ""), http.StatusNotFound)

	f.dispatch(t, "report")
	resp := f.do(t, http.MethodGet, "/chrono/jobs/status/report", "")
	expectStatus(t, resp, http.StatusOK)
	st := decode[status.JobStatus](t, resp)
	if st.State != status.StateSucceeded || st.LastSuccess == nil || !*st.LastSuccess {
		t.Errorf("status = %+v", st)
	}

	all := decode[[]status.JobStatus](t, f.do(t, http.MethodGet, "/chrono/jobs/status", ""))
	if len(all) != 1 || all[0].JobID != "report" {
		t.Errorf("all = %+v", all)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	expectStatus(t, f.do(t, http.MethodGet, "/chrono/jobs/metrics/report", ""), http.StatusNotFound)

	f.dispatch(t, "report")
	f.dispatch(t, "report")
	f.dispatch(t, "broken")

	var m struct {
		JobID           string  `json:"job_id"`
		TotalExecutions int     `json:"total_executions"`
		SuccessRate     float64 `json:"success_rate"`
	}
	resp := f.do(t, http.MethodGet, "/chrono/jobs/metrics/report", "")
	expectStatus(t, resp, http.StatusOK)
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.TotalExecutions != 2 || m.SuccessRate != 100 {
		t.Errorf("metrics = %+v", m)
	}

	all := decode[[]map[string]any](t, f.do(t, http.MethodGet, "/chrono/jobs/metrics", ""))
	if len(all) != 2 {
		t.Fatalf("all = %v", all)
	}
	if all[0]["job_id"] != "broken" || all[0]["success_rate"] != float64(0) {
		t.Errorf("first = %v", all[0])
	}
}

func TestLogs(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		f.dispatch(t, "report")
	}

	logs := decode[[]history.Log](t, f.do(t, http.MethodGet, "/chrono/jobs/report/logs?take=2", ""))
	if len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}
	if logs[0].ExecutedAt.Before(logs[1].ExecutedAt) {
		t.Error("logs should be newest first")
	}

	empty := decode[[]history.Log](t, f.do(t, http.MethodGet, "/chrono/jobs/broken/logs", ""))
	if empty == nil || len(empty) != 0 {
		t.Errorf("logs = %v, want empty array", empty)
	}

	for _, bad := range []string{"-1", "0", "many"} {
		expectStatus(t, f.do(t, http.MethodGet, "/chrono/jobs/report/logs?take="+bad, ""), http.StatusBadRequest)
	}

	huge := decode[[]history.Log](t, f.do(t, http.MethodGet, "/chrono/jobs/report/logs?take=1000000", ""))
	if len(huge) != 3 {
		t.Errorf("take above the bound returned %d logs, want all 3", len(huge))
	}
}

// ──────────────────────────────────────────────────
// Dead letters
// ──────────────────────────────────────────────────

func TestDeadLetters(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, "broken")

	items := decode[[]dlq.Item](t, f.do(t, http.MethodGet, "/chrono/dead-letters?jobId=broken", ""))
	if len(items) != 1 || items[0].Error == "" {
		t.Fatalf("items = %+v", items)
	}

	resp := f.do(t, http.MethodPost, "/chrono/jobs/retry/"+items[0].ID.String(), "")
	expectStatus(t, resp, http.StatusAccepted)
	if got := decode[api.EnqueueResponse](t, resp); got.JobID != "broken" {
		t.Errorf("retry response = %+v", got)
	}
	head, _ := f.eng.Queue().Peek()
	if head == nil || head.Metadata.TriggerSource != job.SourceDeadLetter {
		t.Errorf("queued = %+v", head)
	}

	resp = f.do(t, http.MethodDelete, "/chrono/jobs/broken/dead-letters", "")
	expectStatus(t, resp, http.StatusOK)
	if got := decode[api.DiscardResponse](t, resp); got.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", got.Deleted)
	}
}

func TestRetryDeadLetter_Errors(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.do(t, http.MethodPost, "/chrono/jobs/retry/not-an-id", ""), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, "/chrono/jobs/retry/"+id.NewDeadLetterID().String(), ""), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodGet, "/chrono/dead-letters?limit=x", ""), http.StatusBadRequest)
}

// ──────────────────────────────────────────────────
// Scheduler control
// ──────────────────────────────────────────────────

func TestSchedulerControl(t *testing.T) {
	f := newFixture(t)

	state := func(resp *http.Response) string {
		t.Helper()
		expectStatus(t, resp, http.StatusOK)
		return decode[api.SchedulerResponse](t, resp).Status
	}

	if got := state(f.do(t, http.MethodGet, "/chrono/scheduler/status", "")); got != "not_started" {
		t.Errorf("status = %q", got)
	}
	expectStatus(t, f.do(t, http.MethodPost, "/chrono/scheduler/pause", ""), http.StatusConflict)

	if err := f.eng.Scheduler().Start(context.Background()); err != nil {
		t.Fatalf("scheduler Start: %v", err)
	}
	if got := state(f.do(t, http.MethodPost, "/chrono/scheduler/pause", "")); got != "paused" {
		t.Errorf("after pause = %q", got)
	}
	if got := state(f.do(t, http.MethodPost, "/chrono/scheduler/resume", "")); got != "running" {
		t.Errorf("after resume = %q", got)
	}
	if got := state(f.do(t, http.MethodPost, "/chrono/scheduler/stop", "")); got != "stopped" {
		t.Errorf("after stop = %q", got)
	}
	expectStatus(t, f.do(t, http.MethodPost, "/chrono/scheduler/resume", ""), http.StatusConflict)
}

func TestPrefix(t *testing.T) {
	f := newFixture(t, api.WithPrefix("/ops/"))

	resp := f.do(t, http.MethodGet, "/ops/scheduler/status", "")
	expectStatus(t, resp, http.StatusOK)
	expectStatus(t, f.do(t, http.MethodGet, "/chrono/scheduler/status", ""), http.StatusNotFound)

	root := newFixture(t, api.WithPrefix("/"))
	expectStatus(t, root.do(t, http.MethodGet, "/scheduler/status", ""), http.StatusOK)
}

func TestEnqueue_ThenProcessed(t *testing.T) {
	f := newFixture(t)
	if err := f.eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/chrono/jobs/enqueue", `{"jobId":"report","input":{"day":1}}`), http.StatusAccepted)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp := f.do(t, http.MethodGet, "/chrono/jobs/status/report", "")
		if resp.StatusCode == http.StatusOK {
			if st := decode[status.JobStatus](t, resp); st.State == status.StateSucceeded {
				if st.TriggerSource != job.SourceAPI {
					t.Errorf("TriggerSource = %q, want api", st.TriggerSource)
				}
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("enqueued job never succeeded")
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

func TestEvents_NotMountedByDefault(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.do(t, http.MethodGet, "/chrono/events", ""), http.StatusNotFound)
}

func TestEvents_InvalidTopic(t *testing.T) {
	b := stream.NewBroker(nil)
	f := newFixtureWith(t, []engine.Option{engine.WithExtension(b)}, api.WithEvents(b))
	expectStatus(t, f.do(t, http.MethodGet, "/chrono/events?topic=nope", ""), http.StatusBadRequest)
}

func TestEvents_StreamsEnqueue(t *testing.T) {
	b := stream.NewBroker(nil)
	f := newFixtureWith(t, []engine.Option{engine.WithExtension(b)}, api.WithEvents(b))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/chrono/events?topic=job:report", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	expectStatus(t, f.do(t, http.MethodPost, "/chrono/jobs/enqueue", `{"jobId":"report"}`), http.StatusAccepted)

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() == "event: job.enqueued" {
			return
		}
	}
	t.Fatalf("stream ended without a job.enqueued event: %v", sc.Err())
}
