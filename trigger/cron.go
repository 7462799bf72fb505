package trigger

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field form and descriptors like
// "@hourly".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Cron fires on a cron schedule.
type Cron struct {
	base
	expr  string
	sched cronlib.Schedule
}

var _ Trigger = (*Cron)(nil)

// NewCron parses expr and returns a Cron trigger. The default ID is
// "cron:<expr>" and the default location is the scheduler's.
func NewCron(expr string, opts ...Option) (*Cron, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("trigger: parse cron %q: %w", expr, err)
	}
	return &Cron{
		base:  newBase("cron:"+expr, opts),
		expr:  expr,
		sched: sched,
	}, nil
}

// MustCron is like NewCron but panics on an invalid expression. Use for
// hardcoded schedules.
func MustCron(expr string, opts ...Option) *Cron {
	c, err := NewCron(expr, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Kind implements Trigger.
func (c *Cron) Kind() Kind { return KindCron }

// Expression returns the source cron expression.
func (c *Cron) Expression() string { return c.expr }

// Next converts after to the trigger's location, finds the next match
// there, and returns it as a UTC instant.
func (c *Cron) Next(after time.Time) (time.Time, bool) {
	loc := c.loc
	if loc == nil {
		loc = after.Location()
	}
	next := c.sched.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.UTC(), true
}
