package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/middleware"
	"github.com/xraph/chrono/worker"
)

type report struct {
	Day  int `json:"day"`
	Rows int `json:"rows"`
}

func TestExecutor_SuccessLogsAndChains(t *testing.T) {
	f := newFixture(t)
	f.register(t, job.New("report", func(_ context.Context, in report) (*job.Result, error) {
		return job.Succeeded(report{Day: in.Day, Rows: 42}), nil
	}, job.WithOnSuccess("notify"), job.WithOnFailure("page"), job.WithTags("nightly")))

	res := f.run(t, "report", report{Day: 3})
	if !res.Success {
		t.Fatalf("res = %+v", res)
	}

	ctx := context.Background()
	logs, _ := f.store.QueryLogs(ctx, "report", 0)
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	l := logs[0]
	if !l.Success || l.RetryAttempt != 1 || l.RetryCount != 1 || l.MaxAttemptsReached {
		t.Errorf("log = %+v", l)
	}
	if l.CorrelationID != "corr" || l.TriggerSource != job.SourceAPI || l.UserID != "u1" {
		t.Errorf("metadata not logged: %+v", l)
	}
	if l.InstanceID != f.executor.InstanceID() || len(l.Tags) != 1 {
		t.Errorf("log context = %+v", l)
	}
	if out, ok := l.Output.(report); !ok || out.Rows != 42 {
		t.Errorf("Output = %v", l.Output)
	}

	item, _ := f.store.DequeueChain(ctx)
	if item == nil || item.JobID != "notify" || item.SourceJobID != "report" {
		t.Fatalf("chain item = %+v", item)
	}
	if data, ok := item.Input.(report); !ok || data.Rows != 42 {
		t.Errorf("chain input = %v, want result data", item.Input)
	}
	if extra, _ := f.store.DequeueChain(ctx); extra != nil {
		t.Errorf("unexpected chain item %+v", extra)
	}

	if f.spy.count("started:report") != 1 || f.spy.count("succeeded:report") != 1 || f.spy.count("chained:report->notify") != 1 {
		t.Errorf("hooks = %v", f.spy.events)
	}
}

func TestExecutor_NextJobIDsOverrideChains(t *testing.T) {
	f := newFixture(t)
	f.register(t, job.New("router", func(context.Context, any) (*job.Result, error) {
		return job.Succeeded(nil, "b", "c"), nil
	}, job.WithOnSuccess("a")))

	f.run(t, "router", nil)

	var got []string
	for {
		item, _ := f.store.DequeueChain(context.Background())
		if item == nil {
			break
		}
		got = append(got, item.JobID)
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("chained = %v, want [b c]", got)
	}
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.register(t, job.New("flaky", func(context.Context, any) (*job.Result, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return job.Succeeded(nil), nil
	}, job.WithRetry(job.ConstantRetry(3, time.Millisecond))))

	res := f.run(t, "flaky", nil)
	if !res.Success || calls.Load() != 3 {
		t.Fatalf("res = %+v after %d calls", res, calls.Load())
	}

	logs, _ := f.store.QueryLogs(context.Background(), "flaky", 0)
	if len(logs) != 1 {
		t.Fatalf("one dispatch should write one log, got %d", len(logs))
	}
	if logs[0].RetryAttempt != 3 || logs[0].RetryDelay != time.Millisecond {
		t.Errorf("log = %+v", logs[0])
	}
	if f.spy.count("started:") != 3 || f.spy.count("failed:") != 2 || f.spy.count("retrying:") != 2 {
		t.Errorf("hooks = %v", f.spy.events)
	}
	if dead, _ := f.store.ListDeadLetters(context.Background(), dlq.ListOpts{}); len(dead) != 0 {
		t.Errorf("unexpected dead letters %v", dead)
	}
}

func TestExecutor_ExponentialBackoffDoubles(t *testing.T) {
	f := newFixture(t)
	var stamps []time.Time
	f.register(t, job.New("slow", func(context.Context, any) (*job.Result, error) {
		stamps = append(stamps, time.Now())
		return nil, errors.New("down")
	}, job.WithRetry(job.ExponentialRetry(3, 20*time.Millisecond))))

	f.run(t, "slow", nil)

	if len(stamps) != 3 {
		t.Fatalf("calls = %d, want 3", len(stamps))
	}
	first, second := stamps[1].Sub(stamps[0]), stamps[2].Sub(stamps[1])
	if first < 20*time.Millisecond || second < 40*time.Millisecond {
		t.Errorf("waits = %v, %v; want >= 20ms, 40ms", first, second)
	}
	logs, _ := f.store.QueryLogs(context.Background(), "slow", 0)
	if logs[0].RetryDelay != 40*time.Millisecond {
		t.Errorf("RetryDelay = %v, want last wait", logs[0].RetryDelay)
	}
}

func TestExecutor_ExhaustedRetriesDeadLetter(t *testing.T) {
	f := newFixture(t)
	f.register(t, job.New("charge", func(context.Context, any) (*job.Result, error) {
		return nil, errors.New("card declined")
	},
		job.WithRetry(job.ImmediateRetry(2)),
		job.WithOnSuccess("receipt"),
		job.WithOnFailure("refund"),
	))

	res := f.run(t, "charge", map[string]any{"amount": 10})
	if res.Success || !strings.Contains(res.Message, "card declined") {
		t.Fatalf("res = %+v", res)
	}

	ctx := context.Background()
	logs, _ := f.store.QueryLogs(ctx, "charge", 0)
	if len(logs) != 1 || !logs[0].MaxAttemptsReached || logs[0].RetryAttempt != 2 || logs[0].Error == "" {
		t.Fatalf("logs = %+v", logs)
	}

	dead, _ := f.store.ListDeadLetters(ctx, dlq.ListOpts{JobID: "charge"})
	if len(dead) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dead))
	}
	if dead[0].RetryAttempt != 2 || dead[0].MaxAttempts != 2 || dead[0].Metadata.UserID != "u1" {
		t.Errorf("dead letter = %+v", dead[0])
	}

	item, _ := f.store.DequeueChain(ctx)
	if item == nil || item.JobID != "refund" || item.Input != nil {
		t.Errorf("failure chain = %+v", item)
	}
	if f.spy.count("deadlettered:charge") != 1 {
		t.Errorf("hooks = %v", f.spy.events)
	}
}

func TestExecutor_NoPolicySingleAttempt(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.register(t, job.New("once", func(context.Context, any) (*job.Result, error) {
		calls.Add(1)
		return nil, errors.New("nope")
	}))

	f.run(t, "once", nil)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if dead, _ := f.store.ListDeadLetters(context.Background(), dlq.ListOpts{}); len(dead) != 1 {
		t.Errorf("dead letters = %d, want 1", len(dead))
	}
}

func TestExecutor_WithoutDeadLetterStore(t *testing.T) {
	f := newFixture(t, worker.WithDeadLetters(nil))
	f.register(t, job.New("once", func(context.Context, any) (*job.Result, error) {
		return nil, errors.New("nope")
	}))

	if res := f.run(t, "once", nil); res.Success {
		t.Fatal("expected failure")
	}
	if dead, _ := f.store.ListDeadLetters(context.Background(), dlq.ListOpts{}); len(dead) != 0 {
		t.Errorf("dead letters written without a store: %v", dead)
	}
	if logs, _ := f.store.QueryLogs(context.Background(), "once", 0); len(logs) != 1 {
		t.Errorf("logs = %d, want 1", len(logs))
	}
}

func TestExecutor_SoftFailureIsNotRetried(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.register(t, job.New("validate", func(context.Context, any) (*job.Result, error) {
		calls.Add(1)
		return job.Failed("bad row 7", nil), nil
	}, job.WithRetry(job.ImmediateRetry(3)), job.WithOnFailure("alert")))

	res := f.run(t, "validate", nil)
	if res.Success || res.Message != "bad row 7" || calls.Load() != 1 {
		t.Fatalf("res = %+v, calls = %d", res, calls.Load())
	}

	ctx := context.Background()
	logs, _ := f.store.QueryLogs(ctx, "validate", 0)
	if len(logs) != 1 || logs[0].Success || logs[0].Message != "bad row 7" {
		t.Errorf("logs = %+v", logs)
	}
	if item, _ := f.store.DequeueChain(ctx); item == nil || item.JobID != "alert" {
		t.Errorf("failure chain = %+v", item)
	}
	if dead, _ := f.store.ListDeadLetters(ctx, dlq.ListOpts{}); len(dead) != 0 {
		t.Errorf("soft failures are not dead-lettered: %v", dead)
	}
	if f.spy.count("failed:validate") != 1 {
		t.Errorf("hooks = %v", f.spy.events)
	}
}

func TestExecutor_LockNotAcquired(t *testing.T) {
	locks := &refusingLocks{}
	f := newFixture(t, worker.WithLocks(locks))
	var calls atomic.Int32
	f.register(t, job.New("exclusive", func(context.Context, any) (*job.Result, error) {
		calls.Add(1)
		return job.Succeeded(nil), nil
	}, job.WithLock("billing"), job.WithRetry(job.ImmediateRetry(3))))

	res := f.run(t, "exclusive", nil)
	if res.Success || !strings.Contains(res.Message, "lock") {
		t.Fatalf("res = %+v", res)
	}
	if !errors.Is(res.Err, chrono.ErrLockNotAcquired) {
		t.Errorf("Err = %v, want ErrLockNotAcquired", res.Err)
	}
	if calls.Load() != 0 {
		t.Error("handler ran without the lock")
	}
	if len(locks.asked) != 1 || locks.asked[0] != "billing" {
		t.Errorf("lock requests = %v, want one for billing", locks.asked)
	}

	ctx := context.Background()
	if logs, _ := f.store.QueryLogs(ctx, "exclusive", 0); len(logs) != 0 {
		t.Errorf("lock failures write no log, got %d", len(logs))
	}
	if dead, _ := f.store.ListDeadLetters(ctx, dlq.ListOpts{}); len(dead) != 0 {
		t.Errorf("lock failures are not dead-lettered: %v", dead)
	}
}

func TestExecutor_ForceLockAppliesToEveryJob(t *testing.T) {
	locks := &refusingLocks{}
	f := newFixture(t, worker.WithLocks(locks), worker.WithForceLock(true))
	f.register(t, job.New("plain", func(context.Context, any) (*job.Result, error) {
		return job.Succeeded(nil), nil
	}))

	if res := f.run(t, "plain", nil); res.Success {
		t.Fatal("expected lock failure")
	}
	if len(locks.asked) != 1 || locks.asked[0] != "plain" {
		t.Errorf("lock requests = %v, want the job id", locks.asked)
	}
}

func TestExecutor_LockReleasedAfterEachAttempt(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.register(t, job.New("locked", func(context.Context, any) (*job.Result, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("first fails")
		}
		return job.Succeeded(nil), nil
	}, job.WithLock(), job.WithRetry(job.ImmediateRetry(2))))

	// The default provider is in-process; a lock leaked by attempt 1 would
	// stall attempt 2 for the acquire timeout.
	start := time.Now()
	if res := f.run(t, "locked", nil); !res.Success {
		t.Fatalf("res = %+v", res)
	}
	if time.Since(start) > time.Second {
		t.Error("second attempt waited on a leaked lock")
	}
}

func TestExecutor_TimeoutIsRetryable(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.register(t, job.New("hang", func(ctx context.Context, _ any) (*job.Result, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	}, job.WithTimeout(10*time.Millisecond), job.WithRetry(job.ImmediateRetry(2))))

	res := f.run(t, "hang", nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, chrono.ErrJobTimeout) {
		t.Errorf("Err = %v, want ErrJobTimeout", res.Err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, timeouts should be retried", calls.Load())
	}
}

func TestExecutor_DefaultTimeout(t *testing.T) {
	f := newFixture(t, worker.WithDefaultTimeout(10*time.Millisecond))
	f.register(t, job.New("hang", func(ctx context.Context, _ any) (*job.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	if res := f.run(t, "hang", nil); !errors.Is(res.Err, chrono.ErrJobTimeout) {
		t.Errorf("Err = %v, want ErrJobTimeout", res.Err)
	}
}

func TestExecutor_PanicIsDeadLettered(t *testing.T) {
	f := newFixture(t)
	f.register(t, job.New("crash", func(context.Context, any) (*job.Result, error) {
		panic("index out of range")
	}))

	res := f.run(t, "crash", nil)
	if res.Success || !strings.Contains(res.Message, "index out of range") {
		t.Fatalf("res = %+v", res)
	}
	if dead, _ := f.store.ListDeadLetters(context.Background(), dlq.ListOpts{}); len(dead) != 1 {
		t.Errorf("dead letters = %d, want 1", len(dead))
	}
}

func TestExecutor_Disabled(t *testing.T) {
	f := newFixture(t, worker.WithDisabled(true))
	var calls atomic.Int32
	f.register(t, job.New("any", func(context.Context, any) (*job.Result, error) {
		calls.Add(1)
		return job.Succeeded(nil), nil
	}))

	res := f.run(t, "any", nil)
	if res.Success || !errors.Is(res.Err, chrono.ErrWorkerDisabled) || calls.Load() != 0 {
		t.Fatalf("res = %+v, calls = %d", res, calls.Load())
	}
}

func TestExecutor_DiagnosticsOff(t *testing.T) {
	f := newFixture(t, worker.WithDiagnostics(false))
	f.register(t, job.New("boom", func(context.Context, any) (*job.Result, error) {
		return nil, errors.New("boom")
	}, job.WithRetry(job.ImmediateRetry(2))))

	f.run(t, "boom", nil)
	for _, hook := range []string{"started:", "failed:", "retrying:"} {
		if n := f.spy.count(hook); n != 0 {
			t.Errorf("%s fired %d times with diagnostics off", hook, n)
		}
	}
	if f.spy.count("deadlettered:boom") != 1 {
		t.Errorf("dead-letter hook should always fire: %v", f.spy.events)
	}
}

func TestExecutor_HandlerContext(t *testing.T) {
	f := newFixture(t)
	var (
		sawExec    *job.Execution
		sawAttempt int
		sawRunning bool
	)
	f.register(t, job.New("introspect", func(ctx context.Context, _ any) (*job.Result, error) {
		sawExec, _ = job.ExecutionFromContext(ctx)
		sawAttempt = job.AttemptFromContext(ctx)
		sawRunning = f.executor.Running().IsRunning("introspect")
		return job.Succeeded(nil), nil
	}))

	f.run(t, "introspect", nil)
	if sawExec == nil || sawExec.JobID() != "introspect" || sawExec.Metadata.CorrelationID != "corr" {
		t.Errorf("execution in context = %+v", sawExec)
	}
	if sawAttempt != 1 {
		t.Errorf("attempt = %d, want 1", sawAttempt)
	}
	if !sawRunning {
		t.Error("job should be in the running set while executing")
	}
	if f.executor.Running().IsRunning("introspect") {
		t.Error("job should leave the running set on return")
	}
}

func TestExecutor_MiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *job.Execution, next middleware.Handler) (*job.Result, error) {
			order = append(order, name)
			return next(ctx)
		}
	}
	f := newFixture(t, worker.WithMiddleware(mark("outer"), mark("inner")))
	f.register(t, job.New("mw", func(context.Context, any) (*job.Result, error) {
		order = append(order, "handler")
		return job.Succeeded(nil), nil
	}))

	f.run(t, "mw", nil)
	want := []string{"outer", "inner", "handler"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestExecutor_CancelDuringRetryWait(t *testing.T) {
	f := newFixture(t)
	f.register(t, job.New("slow-retry", func(context.Context, any) (*job.Result, error) {
		return nil, errors.New("down")
	}, job.WithRetry(job.ConstantRetry(5, time.Hour))))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan *job.Result, 1)
	go func() {
		res, _ := f.dispatch.Dispatch(ctx, job.Request{JobID: "slow-retry"})
		done <- res
	}()

	select {
	case res := <-done:
		if res.Success || !errors.Is(res.Err, context.DeadlineExceeded) {
			t.Errorf("res = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry wait ignored cancellation")
	}
	logs, _ := f.store.QueryLogs(context.Background(), "slow-retry", 0)
	if len(logs) != 1 || logs[0].MaxAttemptsReached {
		t.Errorf("logs = %+v", logs)
	}
}

func TestRunningSet_RefCounted(t *testing.T) {
	r := worker.NewRunningSet()
	r.Add("a")
	r.Add("a")
	r.Remove("a")
	if !r.IsRunning("a") {
		t.Fatal("one dispatch of a is still in flight")
	}
	r.Remove("a")
	if r.IsRunning("a") || len(r.IDs()) != 0 {
		t.Errorf("IDs = %v, want empty", r.IDs())
	}
	r.Remove("never-added")
}
