// Package trigger computes when time-based jobs are due.
//
// A [Trigger] is a pure function from "last considered instant" to "next
// due instant or none". Three variants are provided:
//
//   - [Cron]: a standard 5-field cron expression evaluated in a location
//   - [Interval]: fixed-length periods phase-aligned to the Unix epoch
//   - [Delay]: a one-shot occurrence at anchor+delay
//
// Triggers hold no mutable state; the scheduler persists what has fired.
package trigger

import "time"

// Kind tags the trigger variant.
type Kind string

const (
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
	KindDelay    Kind = "delay"
)

// Trigger computes occurrences. Implementations must be side-effect free
// and deterministic for a given receiver.
type Trigger interface {
	// ID identifies the trigger in persisted state and logs.
	ID() string

	// Kind returns the variant tag.
	Kind() Kind

	// Location returns the trigger's own time zone, or nil to use the
	// scheduler default.
	Location() *time.Location

	// Next returns the first occurrence strictly after after. The second
	// result is false when the trigger will never fire again.
	Next(after time.Time) (time.Time, bool)
}

// Option configures a trigger at construction time.
type Option func(*base)

// WithID overrides the generated trigger ID.
func WithID(id string) Option {
	return func(b *base) { b.id = id }
}

// WithLocation sets the time zone the trigger evaluates in.
func WithLocation(loc *time.Location) Option {
	return func(b *base) { b.loc = loc }
}

type base struct {
	id  string
	loc *time.Location
}

func (b *base) ID() string               { return b.id }
func (b *base) Location() *time.Location { return b.loc }

func newBase(defaultID string, opts []Option) base {
	b := base{id: defaultID}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}
