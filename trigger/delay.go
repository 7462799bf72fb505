package trigger

import (
	"fmt"
	"time"
)

// Delay fires once, at anchor+delay.
type Delay struct {
	base
	delay  time.Duration
	anchor time.Time
}

var _ Trigger = (*Delay)(nil)

// NewDelay returns a one-shot trigger due delay after anchor. A zero anchor
// means "now".
func NewDelay(delay time.Duration, anchor time.Time, opts ...Option) (*Delay, error) {
	if delay < 0 {
		return nil, fmt.Errorf("trigger: delay must not be negative, got %s", delay)
	}
	if anchor.IsZero() {
		anchor = time.Now()
	}
	return &Delay{
		base:   newBase("delay:"+delay.String(), opts),
		delay:  delay,
		anchor: anchor.UTC(),
	}, nil
}

// After is like NewDelay anchored at the current time; it panics on a
// negative delay.
func After(delay time.Duration, opts ...Option) *Delay {
	d, err := NewDelay(delay, time.Time{}, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Kind implements Trigger.
func (d *Delay) Kind() Kind { return KindDelay }

// Target returns the single due instant.
func (d *Delay) Target() time.Time { return d.anchor.Add(d.delay) }

// Next returns the target while after precedes it, and none afterwards.
func (d *Delay) Next(after time.Time) (time.Time, bool) {
	target := d.Target()
	if after.Before(target) {
		return target, true
	}
	return time.Time{}, false
}
