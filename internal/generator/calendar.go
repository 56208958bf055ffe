package generator

import (
	"fmt"
	"strings"
	"time"
)

// HolidayCalendar is supplied by the caller; the generator never computes
// holidays itself.
type HolidayCalendar interface {
	IsHoliday(t time.Time) bool
}

type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

const dateLayout = "2006-01-02"

// Holidays is a static set of local calendar dates.
type Holidays map[string]struct{}

func NewHolidays(dates ...time.Time) Holidays {
	h := make(Holidays, len(dates))
	for _, d := range dates {
		h[d.Format(dateLayout)] = struct{}{}
	}
	return h
}

// ParseHolidays accepts YYYY-MM-DD strings.
func ParseHolidays(dates []string) (Holidays, error) {
	h := make(Holidays, len(dates))
	for _, raw := range dates {
		d, err := time.Parse(dateLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("generator: holiday %q: %w", raw, err)
		}
		h[d.Format(dateLayout)] = struct{}{}
	}
	return h, nil
}

// IsHoliday compares t's date in its own location.
func (h Holidays) IsHoliday(t time.Time) bool {
	_, ok := h[t.Format(dateLayout)]
	return ok
}

// WorkingHours is a daily window expressed as offsets from local midnight.
// Start is inclusive, End exclusive.
type WorkingHours struct {
	Start time.Duration
	End   time.Duration
}

var DefaultWorkingHours = WorkingHours{Start: 9 * time.Hour, End: 18 * time.Hour}

// ParseWorkingHours reads "HH:MM" bounds.
func ParseWorkingHours(start, end string) (WorkingHours, error) {
	s, err := parseClock(start)
	if err != nil {
		return WorkingHours{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return WorkingHours{}, err
	}
	if e <= s {
		return WorkingHours{}, fmt.Errorf("generator: working hours end %s is not after start %s", end, start)
	}
	return WorkingHours{Start: s, End: e}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("generator: clock %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (w WorkingHours) IsZero() bool { return w.Start == 0 && w.End == 0 }

func (w WorkingHours) Contains(t time.Time) bool {
	tod := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	return tod >= w.Start && tod < w.End
}

func (w WorkingHours) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d",
		int(w.Start.Hours()), int(w.Start.Minutes())%60, int(w.End.Hours()), int(w.End.Minutes())%60)
}
