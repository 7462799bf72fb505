package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/trigger"
)

// Status is the lifecycle state of a Scheduler.
type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusPaused
	StatusStopped
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Dispatcher runs a job request. *worker.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req job.Request) (*job.Result, error)
}

// Emitter is told about fired triggers. *ext.Registry satisfies it.
type Emitter interface {
	EmitTriggerFired(ctx context.Context, jobID, triggerID string, dueAt time.Time)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval sets the time between poll passes. Defaults to 5s.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithMisfireThreshold sets how far a due time may fall behind before it
// counts as a misfire. Defaults to the poll interval.
func WithMisfireThreshold(d time.Duration) Option {
	return func(s *Scheduler) { s.misfireThreshold = d }
}

// WithLocation sets the default time zone for triggers without their own.
// Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithMisfireHandling sets whether jobs that did not choose run their
// misfires.
func WithMisfireHandling(on bool) Option {
	return func(s *Scheduler) { s.misfireDefault = on }
}

// WithEmitter sets the sink for fired triggers.
func WithEmitter(e Emitter) Option {
	return func(s *Scheduler) { s.emitter = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler fires time-based jobs.
type Scheduler struct {
	registry   *job.Registry
	states     StateStore
	dispatcher Dispatcher
	emitter    Emitter
	logger     *slog.Logger
	now        func() time.Time

	pollInterval     time.Duration
	misfireThreshold time.Duration
	location         *time.Location
	misfireDefault   bool

	tickMu sync.Mutex

	mu        sync.Mutex
	status    Status
	startedAt time.Time
	stopCh    chan struct{}
	done      chan struct{}
}

// New creates a Scheduler over the registry's triggered jobs.
func New(registry *job.Registry, states StateStore, dispatcher Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:     registry,
		states:       states,
		dispatcher:   dispatcher,
		logger:       slog.Default(),
		now:          time.Now,
		pollInterval: 5 * time.Second,
		location:     time.UTC,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.misfireThreshold <= 0 {
		s.misfireThreshold = s.pollInterval
	}
	if s.location == nil {
		s.location = time.UTC
	}
	return s
}

// Status reports the lifecycle state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start moves a new scheduler to Running and launches the poll loop. The
// loop also ends when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusNotStarted {
		st := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", chrono.ErrInvalidState, st)
	}
	s.status = StatusRunning
	s.startedAt = s.now().UTC()
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		slog.Duration("poll_interval", s.pollInterval),
		slog.String("location", s.location.String()),
	)
	go s.loop(ctx)
	return nil
}

// Pause suspends evaluation; the loop keeps ticking.
func (s *Scheduler) Pause() error {
	return s.transition(StatusRunning, StatusPaused)
}

// Resume continues evaluation after Pause.
func (s *Scheduler) Resume() error {
	return s.transition(StatusPaused, StatusRunning)
}

func (s *Scheduler) transition(from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != from {
		return fmt.Errorf("%w: %s from %s", chrono.ErrInvalidState, to, s.status)
	}
	s.status = to
	s.logger.Info("scheduler state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	return nil
}

// Stop moves the scheduler to Stopped, which is terminal, and waits for the
// loop to finish its current pass or for ctx to end. Stopping twice is a
// no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	prev := s.status
	if prev == StatusStopped {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusStopped
	close(s.stopCh)
	s.mu.Unlock()

	if prev == StatusNotStarted {
		return nil
	}
	select {
	case <-s.done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one poll pass unless the scheduler is paused or stopped. The
// poll loop calls it; callers may also drive it by hand. Passes never
// overlap.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	switch s.Status() {
	case StatusPaused, StatusStopped:
		return
	}
	for _, def := range s.registry.All() {
		if def.Trigger == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.evaluateSafe(ctx, def); err != nil {
			s.logger.Error("scheduler: trigger evaluation failed",
				slog.String("job_id", def.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// evaluateSafe runs evaluate, turning a panic into an error.
func (s *Scheduler) evaluateSafe(ctx context.Context, def *job.Definition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: trigger evaluation panicked",
				slog.String("job_id", def.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic evaluating job %s: %v", def.ID, r)
		}
	}()
	return s.evaluate(ctx, def)
}

// evaluate fires def when its trigger is due.
func (s *Scheduler) evaluate(ctx context.Context, def *job.Definition) error {
	trig := def.Trigger
	now := s.now().UTC()

	st, err := s.states.GetTriggerState(ctx, def.ID)
	if err != nil {
		return fmt.Errorf("load trigger state: %w", err)
	}
	loc := trig.Location()
	if loc == nil {
		loc = s.location
	}

	due, ok := s.dueTime(st, trig, loc)
	if !ok || due.After(now) {
		return nil
	}

	misfire := st != nil && st.LastFiredAt != nil && due.Before(now.Add(-s.misfireThreshold))
	if misfire && !def.MisfireEnabled(s.misfireDefault) {
		s.logger.Warn("scheduler: misfire skipped",
			slog.String("job_id", def.ID),
			slog.Time("due_at", due),
			slog.Duration("behind", now.Sub(due)),
		)
		skipped := &State{JobID: def.ID, LastFiredAt: st.LastFiredAt, TriggerID: trig.ID()}
		if next, ok := trig.Next(now.In(loc)); ok {
			skipped.NextDueAt = &next
		}
		if err := s.states.SetTriggerState(ctx, skipped); err != nil {
			return fmt.Errorf("save trigger state: %w", err)
		}
		return nil
	}

	input, ok := def.TriggerInput()
	if !ok {
		return fmt.Errorf("%w: job %q has a trigger but no input", chrono.ErrInvalidJob, def.ID)
	}

	if s.emitter != nil {
		s.emitter.EmitTriggerFired(ctx, def.ID, trig.ID(), due)
	}
	res, err := s.dispatcher.Dispatch(ctx, job.Request{
		JobID: def.ID,
		Input: input,
		Metadata: job.Metadata{
			CorrelationID: id.NewRequestID().String(),
			TriggerSource: job.SourceTrigger,
		},
		TriggerID:   trig.ID(),
		ScheduledAt: due,
	})
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if !res.Success {
		s.logger.Warn("scheduler: triggered job failed",
			slog.String("job_id", def.ID),
			slog.String("message", res.Message),
		)
	}

	fired := &State{JobID: def.ID, LastFiredAt: &now, TriggerID: trig.ID()}
	if next, ok := trig.Next(now.In(loc)); ok {
		fired.NextDueAt = &next
	}
	if err := s.states.SetTriggerState(context.WithoutCancel(ctx), fired); err != nil {
		return fmt.Errorf("save trigger state: %w", err)
	}
	return nil
}

// dueTime returns the occurrence to compare against now: the persisted
// next due time, else the one after the last fire, else the first one
// after the scheduler started. A next due time persisted by a different
// trigger is ignored.
func (s *Scheduler) dueTime(st *State, trig trigger.Trigger, loc *time.Location) (time.Time, bool) {
	next := trig.Next
	if st != nil && st.NextDueAt != nil && (st.TriggerID == "" || st.TriggerID == trig.ID()) {
		return *st.NextDueAt, true
	}
	if st != nil && st.LastFiredAt != nil {
		return next(st.LastFiredAt.In(loc))
	}
	s.mu.Lock()
	if s.startedAt.IsZero() {
		s.startedAt = s.now().UTC()
	}
	started := s.startedAt
	s.mu.Unlock()
	return next(started.In(loc))
}
