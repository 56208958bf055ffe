package model

import (
	"fmt"
	"sync"
	"time"
)

const isoLayout = time.RFC3339Nano

// DateTime is the serialized form of an instant. The epoch value and the
// wall-clock text must denote the same moment in Zone.
type DateTime struct {
	ISO     string `json:"iso"`
	EpochMs int64  `json:"epochMs"`
	Zone    string `json:"zone"`
	AllDay  bool   `json:"allDay,omitempty"`
}

func ToDateTime(t time.Time) DateTime {
	return DateTime{
		ISO:     t.Format(isoLayout),
		EpochMs: t.UnixMilli(),
		Zone:    t.Location().String(),
	}
}

func ToDate(t time.Time) DateTime {
	y, m, d := t.Date()
	return ToDateTime(time.Date(y, m, d, 0, 0, 0, 0, t.Location())).withAllDay()
}

func (d DateTime) withAllDay() DateTime {
	d.AllDay = true
	return d
}

func (d DateTime) IsZero() bool {
	return d.ISO == "" && d.EpochMs == 0
}

// Resolve parses d and re-checks its invariants.
func (d DateTime) Resolve() (time.Time, error) {
	if d.ISO == "" {
		return time.Time{}, invalid("datetime", "empty iso value")
	}
	t, err := time.Parse(isoLayout, d.ISO)
	if err != nil {
		return time.Time{}, invalid("datetime", "parse %q: %v", d.ISO, err)
	}
	if t.UnixMilli() != d.EpochMs {
		return time.Time{}, invalid("datetime", "epoch %d does not match %s", d.EpochMs, d.ISO)
	}
	if d.Zone != "" {
		loc, err := time.LoadLocation(d.Zone)
		if err != nil {
			return time.Time{}, invalid("datetime", "unknown zone %q", d.Zone)
		}
		_, written := t.Zone()
		t = t.In(loc)
		if _, off := t.Zone(); off != written {
			return time.Time{}, invalid("datetime", "offset of %s does not match zone %s", d.ISO, d.Zone)
		}
	}
	if d.AllDay && (t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0) {
		return time.Time{}, invalid("datetime", "all-day value %s carries a clock time", d.ISO)
	}
	return t, nil
}

func resolveOptional(d *DateTime) (*time.Time, error) {
	if d == nil || d.IsZero() {
		return nil, nil
	}
	t, err := d.Resolve()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalDateTime(t *time.Time) *DateTime {
	if t == nil {
		return nil
	}
	d := ToDateTime(*t)
	return &d
}

// Clock is the only source of "now" in the scheduling core.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var SystemClock Clock = ClockFunc(time.Now)

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *ManualClock) String() string {
	return fmt.Sprintf("ManualClock(%s)", c.Now().Format(isoLayout))
}
