package trigger

import (
	"fmt"
	"time"
)

// Interval fires every Period, aligned to the Unix epoch rather than to the
// last execution, so every instance computes the same boundaries.
type Interval struct {
	base
	period time.Duration
}

var _ Trigger = (*Interval)(nil)

// NewInterval returns an Interval trigger. period must be positive.
func NewInterval(period time.Duration, opts ...Option) (*Interval, error) {
	if period <= 0 {
		return nil, fmt.Errorf("trigger: interval must be positive, got %s", period)
	}
	return &Interval{
		base:   newBase("interval:"+period.String(), opts),
		period: period,
	}, nil
}

// Every is like NewInterval but panics on a non-positive period.
func Every(period time.Duration, opts ...Option) *Interval {
	i, err := NewInterval(period, opts...)
	if err != nil {
		panic(err)
	}
	return i
}

// Kind implements Trigger.
func (i *Interval) Kind() Kind { return KindInterval }

// Period returns the interval length.
func (i *Interval) Period() time.Duration { return i.period }

// Next returns the smallest multiple of the period since the epoch that is
// strictly after after.
func (i *Interval) Next(after time.Time) (time.Time, bool) {
	p := int64(i.period)
	ns := after.UnixNano()
	q := ns / p
	if ns < 0 && ns%p != 0 {
		q-- // floor division for instants before the epoch
	}
	return time.Unix(0, (q+1)*p).UTC(), true
}
