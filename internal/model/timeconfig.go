package model

import (
	"strings"
	"time"
)

type TimeKind string

const (
	TimeAllDay    TimeKind = "allDay"
	TimeTimed     TimeKind = "timed"
	TimeTimeRange TimeKind = "timeRange"
)

// BaseTime is the first occurrence of a template. The variants are closed:
// AllDay, Timed and TimeRange.
type BaseTime interface {
	Kind() TimeKind
	StartTime() time.Time
	// EndFor returns the end of an occurrence starting at start, if the
	// variant has one.
	EndFor(start time.Time) (time.Time, bool)
	validate() error
}

type AllDay struct {
	Date time.Time
}

func (a AllDay) Kind() TimeKind { return TimeAllDay }

func (a AllDay) StartTime() time.Time {
	y, m, d := a.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.Date.Location())
}

func (a AllDay) EndFor(time.Time) (time.Time, bool) { return time.Time{}, false }

func (a AllDay) validate() error {
	if a.Date.IsZero() {
		return invalid("timeConfig.baseTime.date", "required for %s", TimeAllDay)
	}
	return nil
}

type Timed struct {
	Start    time.Time
	Duration time.Duration
}

func (t Timed) Kind() TimeKind { return TimeTimed }

func (t Timed) StartTime() time.Time { return t.Start }

func (t Timed) EndFor(start time.Time) (time.Time, bool) {
	if t.Duration <= 0 {
		return time.Time{}, false
	}
	return start.Add(t.Duration), true
}

func (t Timed) validate() error {
	if t.Start.IsZero() {
		return invalid("timeConfig.baseTime.start", "required for %s", TimeTimed)
	}
	if t.Duration < 0 {
		return invalid("timeConfig.baseTime.duration", "must not be negative, got %s", t.Duration)
	}
	return nil
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) Kind() TimeKind { return TimeTimeRange }

func (r TimeRange) StartTime() time.Time { return r.Start }

func (r TimeRange) EndFor(start time.Time) (time.Time, bool) {
	return start.Add(r.End.Sub(r.Start)), true
}

func (r TimeRange) validate() error {
	if r.Start.IsZero() {
		return invalid("timeConfig.baseTime.start", "required for %s", TimeTimeRange)
	}
	if r.End.IsZero() {
		return invalid("timeConfig.baseTime.end", "required for %s", TimeTimeRange)
	}
	if !r.End.After(r.Start) {
		return invalid("timeConfig.baseTime.end", "%s is not after start %s",
			r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

type TimeConfig struct {
	Base       BaseTime
	Recurrence RecurrenceRule
	Timezone   string
}

func (c TimeConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, invalid("timeConfig.timezone", "unknown zone %q", tz)
	}
	return loc, nil
}

// Anchor is the base start expressed in the configured zone.
func (c TimeConfig) Anchor() time.Time {
	if c.Base == nil {
		return time.Time{}
	}
	loc, err := c.Location()
	if err != nil {
		return c.Base.StartTime()
	}
	if c.Base.Kind() == TimeAllDay {
		y, m, d := c.Base.StartTime().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return c.Base.StartTime().In(loc)
}

func (c TimeConfig) IsAllDay() bool {
	return c.Base != nil && c.Base.Kind() == TimeAllDay
}

func (c TimeConfig) Validate() error {
	if c.Base == nil {
		return invalid("timeConfig.baseTime", "required")
	}
	if err := c.Base.validate(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return c.Recurrence.Validate(c.Anchor())
}
