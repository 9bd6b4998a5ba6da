// Package jobs implements the built-in job kinds. Each kind registers itself
// with core.RegisterJobType from init(); import the package for its side
// effect to make them available to config.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Cadence decides when a job runs next: either a fixed interval after each
// run, or the time left until the next tick of a 5-field cron expression.
type Cadence struct {
	Interval time.Duration `yaml:"interval"`
	Schedule string        `yaml:"schedule"`

	sched cron.Schedule
}

// defaults sets the interval when neither field is configured.
func (c *Cadence) defaults(interval time.Duration) {
	if c.Interval == 0 && c.Schedule == "" {
		c.Interval = interval
	}
}

// parse compiles Schedule. Call once after decoding.
func (c *Cadence) parse() error {
	if c.Schedule == "" {
		return nil
	}
	sched, err := cronParser.Parse(c.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}
	c.sched = sched
	return nil
}

func (c *Cadence) validate() error {
	switch {
	case c.Interval != 0 && c.Schedule != "":
		return errors.New("interval and schedule are mutually exclusive")
	case c.Interval < 0:
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	case c.Schedule != "" && c.sched == nil:
		return errors.New("schedule not parsed")
	}
	return nil
}

// Next returns the delay from now until the next run.
func (c *Cadence) Next(now time.Time) time.Duration {
	if c.sched == nil {
		return c.Interval
	}
	return c.sched.Next(now).Sub(now)
}
