package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/scheduler"
	"github.com/xraph/chrono/store/memory"
	"github.com/xraph/chrono/trigger"
)

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type dispatchSpy struct {
	mu   sync.Mutex
	reqs []job.Request
	err  error
}

func (d *dispatchSpy) Dispatch(_ context.Context, req job.Request) (*job.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.reqs = append(d.reqs, req)
	return job.Succeeded(nil), nil
}

func (d *dispatchSpy) Requests() []job.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]job.Request(nil), d.reqs...)
}

type emitSpy struct {
	mu    sync.Mutex
	fired []string
}

func (e *emitSpy) EmitTriggerFired(_ context.Context, jobID, _ string, _ time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fired = append(e.fired, jobID)
}

// panicTrigger blows up whenever it is asked for an occurrence.
type panicTrigger struct{}

func (panicTrigger) ID() string                       { return "broken" }
func (panicTrigger) Kind() trigger.Kind               { return trigger.KindInterval }
func (panicTrigger) Location() *time.Location         { return nil }
func (panicTrigger) Next(time.Time) (time.Time, bool) { panic("corrupt schedule") }

type payload struct {
	Region string `json:"region"`
}

func noop(context.Context, payload) (*job.Result, error) { return job.Succeeded(nil), nil }

type fixture struct {
	clock    *clock
	store    *memory.Store
	dispatch *dispatchSpy
	emitter  *emitSpy
	sched    *scheduler.Scheduler
}

func newFixture(t *testing.T, start time.Time, defs []*job.Definition, opts ...scheduler.Option) *fixture {
	t.Helper()
	reg := job.NewRegistry()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	f := &fixture{
		clock:    &clock{now: start},
		store:    memory.New(),
		dispatch: &dispatchSpy{},
		emitter:  &emitSpy{},
	}
	base := []scheduler.Option{
		scheduler.WithPollInterval(time.Hour),
		scheduler.WithClock(f.clock.Now),
		scheduler.WithEmitter(f.emitter),
		scheduler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.sched = scheduler.New(reg, f.store, f.dispatch, append(base, opts...)...)
	t.Cleanup(func() { _ = f.sched.Stop(context.Background()) })
	return f
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestTick_DueIntervalFiresOnce(t *testing.T) {
	def := job.New("sync", noop,
		job.WithTrigger(trigger.Every(time.Minute)),
		job.WithInput(payload{Region: "eu"}),
	)
	f := newFixture(t, at("2026-03-01T10:00:30Z"), []*job.Definition{def})
	ctx := context.Background()

	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sched.Tick(ctx)
	if n := len(f.dispatch.Requests()); n != 0 {
		t.Fatalf("dispatched %d before the first boundary", n)
	}

	f.clock.Set(at("2026-03-01T10:01:05Z"))
	f.sched.Tick(ctx)
	f.sched.Tick(ctx)

	reqs := f.dispatch.Requests()
	if len(reqs) != 1 {
		t.Fatalf("dispatched %d times, want 1", len(reqs))
	}
	req := reqs[0]
	if req.JobID != "sync" || req.Input != (payload{Region: "eu"}) {
		t.Errorf("request = %+v", req)
	}
	if !req.ScheduledAt.Equal(at("2026-03-01T10:01:00Z")) {
		t.Errorf("ScheduledAt = %v", req.ScheduledAt)
	}
	if req.Metadata.TriggerSource != job.SourceTrigger || req.TriggerID != def.Trigger.ID() {
		t.Errorf("metadata = %+v, trigger = %q", req.Metadata, req.TriggerID)
	}

	st, err := f.store.GetTriggerState(ctx, "sync")
	if err != nil || st == nil {
		t.Fatalf("GetTriggerState = %v, %v", st, err)
	}
	if st.LastFiredAt == nil || !st.LastFiredAt.Equal(at("2026-03-01T10:01:05Z")) {
		t.Errorf("LastFiredAt = %v", st.LastFiredAt)
	}
	if st.NextDueAt == nil || !st.NextDueAt.Equal(at("2026-03-01T10:02:00Z")) {
		t.Errorf("NextDueAt = %v", st.NextDueAt)
	}
	if len(f.emitter.fired) != 1 {
		t.Errorf("trigger fired events = %v", f.emitter.fired)
	}
}

func TestTick_SkipsJobsWithoutTrigger(t *testing.T) {
	f := newFixture(t, at("2026-03-01T10:00:00Z"), []*job.Definition{job.New("adhoc", noop)})
	f.clock.Set(at("2026-03-02T10:00:00Z"))
	f.sched.Tick(context.Background())
	if n := len(f.dispatch.Requests()); n != 0 {
		t.Fatalf("dispatched %d untriggered jobs", n)
	}
}

func TestPause_SuppressesDispatch(t *testing.T) {
	def := job.New("sync", noop, job.WithTrigger(trigger.Every(time.Minute)))
	f := newFixture(t, at("2026-03-01T10:00:30Z"), []*job.Definition{def})
	ctx := context.Background()

	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.sched.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := f.sched.Pause(); !errors.Is(err, chrono.ErrInvalidState) {
		t.Fatalf("second Pause = %v, want ErrInvalidState", err)
	}

	f.clock.Set(at("2026-03-01T10:05:00Z"))
	f.sched.Tick(ctx)
	if n := len(f.dispatch.Requests()); n != 0 {
		t.Fatalf("paused scheduler dispatched %d jobs", n)
	}

	if err := f.sched.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	f.sched.Tick(ctx)
	if n := len(f.dispatch.Requests()); n != 1 {
		t.Fatalf("dispatched %d after resume, want 1", n)
	}
}

func TestStop_IsTerminal(t *testing.T) {
	def := job.New("sync", noop, job.WithTrigger(trigger.Every(time.Minute)))
	f := newFixture(t, at("2026-03-01T10:00:30Z"), []*job.Definition{def})
	ctx := context.Background()

	if got := f.sched.Status(); got != scheduler.StatusNotStarted {
		t.Fatalf("Status = %s", got)
	}
	if err := f.sched.Resume(); !errors.Is(err, chrono.ErrInvalidState) {
		t.Fatalf("Resume before start = %v", err)
	}
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := f.sched.Status(); got != scheduler.StatusStopped {
		t.Fatalf("Status = %s, want stopped", got)
	}
	if err := f.sched.Stop(ctx); err != nil {
		t.Fatalf("second Stop = %v", err)
	}
	if err := f.sched.Start(ctx); !errors.Is(err, chrono.ErrInvalidState) {
		t.Fatalf("Start after Stop = %v, want ErrInvalidState", err)
	}
	if err := f.sched.Resume(); !errors.Is(err, chrono.ErrInvalidState) {
		t.Fatalf("Resume after Stop = %v, want ErrInvalidState", err)
	}

	f.clock.Set(at("2026-03-01T10:05:00Z"))
	f.sched.Tick(ctx)
	if n := len(f.dispatch.Requests()); n != 0 {
		t.Fatalf("stopped scheduler dispatched %d jobs", n)
	}
}

func TestTick_Misfire(t *testing.T) {
	now := at("2026-03-01T10:10:30Z")
	last := at("2026-03-01T10:00:05Z")
	missed := at("2026-03-01T10:01:00Z")

	seed := func(t *testing.T, f *fixture) {
		t.Helper()
		err := f.store.SetTriggerState(context.Background(), &scheduler.State{
			JobID: "sync", LastFiredAt: &last, NextDueAt: &missed,
		})
		if err != nil {
			t.Fatalf("SetTriggerState: %v", err)
		}
	}

	t.Run("skipped by default", func(t *testing.T) {
		def := job.New("sync", noop, job.WithTrigger(trigger.Every(time.Minute)))
		f := newFixture(t, now, []*job.Definition{def}, scheduler.WithMisfireThreshold(time.Minute))
		seed(t, f)

		f.sched.Tick(context.Background())
		if n := len(f.dispatch.Requests()); n != 0 {
			t.Fatalf("misfire dispatched %d times", n)
		}
		st, _ := f.store.GetTriggerState(context.Background(), "sync")
		if st.NextDueAt == nil || !st.NextDueAt.Equal(at("2026-03-01T10:11:00Z")) {
			t.Errorf("NextDueAt = %v, want the next boundary after now", st.NextDueAt)
		}
		if st.LastFiredAt == nil || !st.LastFiredAt.Equal(last) {
			t.Errorf("LastFiredAt = %v, want unchanged", st.LastFiredAt)
		}
	})

	t.Run("run when opted in", func(t *testing.T) {
		def := job.New("sync", noop,
			job.WithTrigger(trigger.Every(time.Minute)),
			job.WithMisfireHandling(true),
		)
		f := newFixture(t, now, []*job.Definition{def}, scheduler.WithMisfireThreshold(time.Minute))
		seed(t, f)

		f.sched.Tick(context.Background())
		reqs := f.dispatch.Requests()
		if len(reqs) != 1 || !reqs[0].ScheduledAt.Equal(missed) {
			t.Fatalf("requests = %+v, want one for the missed occurrence", reqs)
		}
	})

	t.Run("within threshold is not a misfire", func(t *testing.T) {
		def := job.New("sync", noop, job.WithTrigger(trigger.Every(time.Minute)))
		f := newFixture(t, at("2026-03-01T10:01:20Z"), []*job.Definition{def}, scheduler.WithMisfireThreshold(time.Minute))
		seed(t, f)

		f.sched.Tick(context.Background())
		if n := len(f.dispatch.Requests()); n != 1 {
			t.Fatalf("dispatched %d, want 1", n)
		}
	})
}

func TestTick_CronUsesSchedulerLocation(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	def := job.New("report", noop, job.WithTrigger(trigger.MustCron("0 9 * * *")))
	f := newFixture(t, at("2026-01-15T13:30:00Z"), []*job.Definition{def}, scheduler.WithLocation(est))
	ctx := context.Background()

	f.sched.Tick(ctx)
	if n := len(f.dispatch.Requests()); n != 0 {
		t.Fatalf("fired %d times before 09:00 EST", n)
	}

	f.clock.Set(at("2026-01-15T14:00:30Z"))
	f.sched.Tick(ctx)
	reqs := f.dispatch.Requests()
	if len(reqs) != 1 {
		t.Fatalf("dispatched %d, want 1", len(reqs))
	}
	if !reqs[0].ScheduledAt.Equal(at("2026-01-15T14:00:00Z")) {
		t.Errorf("ScheduledAt = %v, want 09:00 EST", reqs[0].ScheduledAt)
	}

	st, _ := f.store.GetTriggerState(ctx, "report")
	if st.NextDueAt == nil || !st.NextDueAt.Equal(at("2026-01-16T14:00:00Z")) {
		t.Errorf("NextDueAt = %v", st.NextDueAt)
	}
}

func TestTick_DispatchErrorRetriesNextPass(t *testing.T) {
	def := job.New("sync", noop, job.WithTrigger(trigger.Every(time.Minute)))
	f := newFixture(t, at("2026-03-01T10:00:30Z"), []*job.Definition{def})
	ctx := context.Background()
	f.sched.Tick(ctx)

	f.clock.Set(at("2026-03-01T10:01:05Z"))
	f.dispatch.err = errors.New("unavailable")
	f.sched.Tick(ctx)
	if st, _ := f.store.GetTriggerState(ctx, "sync"); st != nil {
		t.Fatalf("state persisted after failed dispatch: %+v", st)
	}

	f.dispatch.err = nil
	f.sched.Tick(ctx)
	if n := len(f.dispatch.Requests()); n != 1 {
		t.Fatalf("dispatched %d, want 1", n)
	}
}

func TestTick_ChangedTriggerIgnoresStoredDueTime(t *testing.T) {
	ctx := context.Background()
	lastYear := at("2025-12-31T00:00:00Z")
	yearEnd := at("2026-12-31T00:00:00Z")

	def := job.New("sync", noop, job.WithTrigger(trigger.Every(time.Minute)))
	f := newFixture(t, at("2026-03-01T10:00:30Z"), []*job.Definition{def})
	// State left behind by a yearly cron the job used to run on.
	err := f.store.SetTriggerState(ctx, &scheduler.State{
		JobID:       "sync",
		TriggerID:   "cron:0 0 31 12 *",
		LastFiredAt: &lastYear,
		NextDueAt:   &yearEnd,
	})
	if err != nil {
		t.Fatalf("SetTriggerState: %v", err)
	}

	f.sched.Tick(ctx)
	st, _ := f.store.GetTriggerState(ctx, "sync")
	if st.TriggerID != def.Trigger.ID() {
		t.Errorf("TriggerID = %q, want %q", st.TriggerID, def.Trigger.ID())
	}
	if st.NextDueAt == nil || !st.NextDueAt.Equal(at("2026-03-01T10:01:00Z")) {
		t.Fatalf("NextDueAt = %v, want the interval's next boundary", st.NextDueAt)
	}

	f.clock.Set(at("2026-03-01T10:01:05Z"))
	f.sched.Tick(ctx)
	reqs := f.dispatch.Requests()
	if len(reqs) != 1 || !reqs[0].ScheduledAt.Equal(at("2026-03-01T10:01:00Z")) {
		t.Fatalf("requests = %+v, want one at 10:01", reqs)
	}
}

func TestTick_PanickingJobDoesNotStopOthers(t *testing.T) {
	broken := job.New("broken", noop, job.WithTrigger(panicTrigger{}))
	healthy := job.New("sync", noop, job.WithTrigger(trigger.Every(time.Minute)))
	f := newFixture(t, at("2026-03-01T10:00:30Z"), []*job.Definition{broken, healthy})
	ctx := context.Background()

	f.sched.Tick(ctx)
	f.clock.Set(at("2026-03-01T10:01:05Z"))
	f.sched.Tick(ctx)
	f.clock.Set(at("2026-03-01T10:02:05Z"))
	f.sched.Tick(ctx)

	reqs := f.dispatch.Requests()
	if len(reqs) != 2 {
		t.Fatalf("dispatched %d, want 2", len(reqs))
	}
	for _, req := range reqs {
		if req.JobID != "sync" {
			t.Errorf("dispatched %q", req.JobID)
		}
	}
}

func TestTick_PanickingJobKeepsLoopAlive(t *testing.T) {
	broken := job.New("broken", noop, job.WithTrigger(panicTrigger{}))
	f := newFixture(t, at("2026-03-01T10:00:30Z"), []*job.Definition{broken},
		scheduler.WithPollInterval(5*time.Millisecond))
	if err := f.sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.sched.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v, want the loop to still be running", err)
	}
}

func TestTick_DelayFiresExactlyOnce(t *testing.T) {
	anchor := at("2026-03-01T10:00:00Z")
	once, err := trigger.NewDelay(5*time.Minute, anchor)
	if err != nil {
		t.Fatalf("NewDelay: %v", err)
	}
	def := job.New("warmup", noop, job.WithTrigger(once))
	f := newFixture(t, at("2026-03-01T10:00:30Z"), []*job.Definition{def})
	ctx := context.Background()

	f.sched.Tick(ctx)
	if n := len(f.dispatch.Requests()); n != 0 {
		t.Fatalf("fired %d times before the target", n)
	}

	for _, now := range []string{
		"2026-03-01T10:05:10Z",
		"2026-03-01T10:05:20Z",
		"2026-03-01T10:30:00Z",
		"2026-03-02T10:00:00Z",
	} {
		f.clock.Set(at(now))
		f.sched.Tick(ctx)
	}

	reqs := f.dispatch.Requests()
	if len(reqs) != 1 {
		t.Fatalf("dispatched %d times, want 1", len(reqs))
	}
	if !reqs[0].ScheduledAt.Equal(at("2026-03-01T10:05:00Z")) {
		t.Errorf("ScheduledAt = %v", reqs[0].ScheduledAt)
	}
	st, _ := f.store.GetTriggerState(ctx, "warmup")
	if st == nil || st.NextDueAt != nil {
		t.Errorf("state = %+v, want no next due time", st)
	}

	// A scheduler restarted over the same state does not fire it again.
	reg := job.NewRegistry()
	if err := reg.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}
	again := &dispatchSpy{}
	restarted := scheduler.New(reg, f.store, again,
		scheduler.WithClock(f.clock.Now),
		scheduler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	restarted.Tick(ctx)
	if n := len(again.Requests()); n != 0 {
		t.Errorf("restarted scheduler dispatched %d times", n)
	}
}

func TestStatus_String(t *testing.T) {
	for s, want := range map[scheduler.Status]string{
		scheduler.StatusNotStarted: "not_started",
		scheduler.StatusRunning:    "running",
		scheduler.StatusPaused:     "paused",
		scheduler.StatusStopped:    "stopped",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
