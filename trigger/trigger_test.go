package trigger_test

import (
	"testing"
	"time"

	"github.com/xraph/chrono/trigger"
)

// ──────────────────────────────────────────────────
// Cron
// ──────────────────────────────────────────────────

func TestCron_InvalidExpressionFailsConstruction(t *testing.T) {
	if _, err := trigger.NewCron("not a cron"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := trigger.NewCron("* * * * * *"); err == nil {
		t.Fatal("six-field expressions should be rejected")
	}
}

func TestCron_NextUTC(t *testing.T) {
	c := trigger.MustCron("30 6 * * *")
	after := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)

	next, ok := c.Next(after)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2024, 3, 2, 6, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
	if c.ID() != "cron:30 6 * * *" {
		t.Errorf("ID = %q", c.ID())
	}
	if c.Kind() != trigger.KindCron {
		t.Errorf("Kind = %q", c.Kind())
	}
}

func TestCron_NextInLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}
	c := trigger.MustCron("0 9 * * *", trigger.WithLocation(tokyo))

	// 2024-03-01 00:30 UTC is 09:30 in Tokyo, so the next 09:00 Tokyo is
	// the following day, 00:00 UTC.
	after := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)
	next, ok := c.Next(after)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
	if next.Location() != time.UTC {
		t.Errorf("result should be UTC, got %v", next.Location())
	}
}

func TestCron_CustomID(t *testing.T) {
	c := trigger.MustCron("@hourly", trigger.WithID("hourly-report"))
	if c.ID() != "hourly-report" {
		t.Errorf("ID = %q", c.ID())
	}
}

// ──────────────────────────────────────────────────
// Interval
// ──────────────────────────────────────────────────

func TestInterval_EpochAligned(t *testing.T) {
	period := 7 * time.Minute
	iv := trigger.Every(period)

	instants := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 3, 17, 999, time.UTC),
		time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Unix(0, 0),
		time.Unix(0, int64(period)),
	}

	for _, after := range instants {
		next, ok := iv.Next(after)
		if !ok {
			t.Fatalf("Next(%v) returned none", after)
		}
		if !next.After(after) {
			t.Errorf("Next(%v) = %v, not strictly after", after, next)
		}
		if next.UnixNano()%int64(period) != 0 {
			t.Errorf("Next(%v) = %v, not a multiple of %v from epoch", after, next, period)
		}
		if next.Sub(after) > period {
			t.Errorf("Next(%v) = %v skipped a boundary", after, next)
		}
	}
}

func TestInterval_OnBoundaryAdvances(t *testing.T) {
	iv := trigger.Every(time.Hour)
	at := time.Date(2024, 5, 5, 10, 0, 0, 0, time.UTC)
	next, _ := iv.Next(at)
	if !next.Equal(at.Add(time.Hour)) {
		t.Errorf("Next = %v, want %v", next, at.Add(time.Hour))
	}
}

func TestInterval_RejectsNonPositive(t *testing.T) {
	if _, err := trigger.NewInterval(0); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := trigger.NewInterval(-time.Second); err == nil {
		t.Fatal("expected error for negative interval")
	}
}

// ──────────────────────────────────────────────────
// Delay
// ──────────────────────────────────────────────────

func TestDelay_FiresOnce(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	d, err := trigger.NewDelay(10*time.Minute, anchor)
	if err != nil {
		t.Fatalf("NewDelay: %v", err)
	}
	target := anchor.Add(10 * time.Minute)

	next, ok := d.Next(anchor)
	if !ok || !next.Equal(target) {
		t.Fatalf("Next(anchor) = %v, %v; want %v", next, ok, target)
	}
	next, ok = d.Next(target.Add(-time.Nanosecond))
	if !ok || !next.Equal(target) {
		t.Fatalf("Next(just before) = %v, %v; want %v", next, ok, target)
	}
	if _, ok := d.Next(target); ok {
		t.Error("Next(target) should be none")
	}
	if _, ok := d.Next(target.Add(time.Hour)); ok {
		t.Error("Next after firing should stay none")
	}
}

func TestDelay_DefaultAnchorIsNow(t *testing.T) {
	before := time.Now()
	d := trigger.After(time.Minute)
	target := d.Target()
	if target.Before(before.Add(time.Minute)) || target.After(time.Now().Add(time.Minute)) {
		t.Errorf("target %v not anchored at construction time", target)
	}
}
