package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

var natural = newNaturalParser()

func newNaturalParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseWhen resolves a reschedule target time. ref is the current scheduled
// time of the instance; its zone and clock are kept for date-only forms.
//
//	+1d, -2h, +90m     shift ref
//	2006-01-02 [15:04] or RFC 3339
//	in 2 hours, tomorrow at 15:04, next monday, 16:45, ...
//
// Anything else is read as English relative to now.
func ParseWhen(s string, now, ref time.Time) (time.Time, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return time.Time{}, invalidArg("time is empty")
	}
	loc := ref.Location()
	now = now.In(loc)
	fields := strings.Fields(raw)

	if raw[0] == '+' || raw[0] == '-' {
		d, days, err := parseSpan(strings.Join(fields, ""))
		if err != nil {
			return time.Time{}, err
		}
		return ref.AddDate(0, 0, days).Add(d), nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), loc); err == nil {
			return t, nil
		}
	}
	if d, err := time.ParseInLocation("2006-01-02", fields[0], loc); err == nil {
		return atClock(d, ref, fields[1:])
	}
	return parseNatural(raw, now, ref)
}

// parseNatural anchors spans ("in 2 hours") at now and everything else at
// today with ref's clock, so "tomorrow" keeps the instance's time of day.
func parseNatural(raw string, now, ref time.Time) (time.Time, error) {
	base := time.Date(now.Year(), now.Month(), now.Day(), ref.Hour(), ref.Minute(), 0, 0, now.Location())
	if strings.HasPrefix(raw, "in ") {
		base = now
	}
	r, err := natural.Parse(raw, base)
	if err != nil {
		return time.Time{}, invalidArg(fmt.Sprintf("cannot parse time %q: %v", raw, err))
	}
	if r == nil {
		return time.Time{}, invalidArg(fmt.Sprintf("cannot parse time %q", raw))
	}
	if rest := strings.TrimSpace(raw[:r.Index] + raw[r.Index+len(r.Text):]); rest != "" {
		return time.Time{}, invalidArg(fmt.Sprintf("cannot parse %q in time %q", rest, raw))
	}
	return r.Time, nil
}

// ParseFor reads a snooze length such as "10m", "1h30m", "2 days" or "15
// minutes". An empty string yields zero.
func ParseFor(s string) (time.Duration, error) {
	raw := strings.ToLower(strings.Join(strings.Fields(s), ""))
	if raw == "" {
		return 0, nil
	}
	d, days, err := parseSpan(raw)
	if err != nil {
		return 0, err
	}
	total := d + time.Duration(days)*24*time.Hour
	if total <= 0 {
		return 0, invalidArg(fmt.Sprintf("duration %q must be positive", s))
	}
	return total, nil
}

var unitWords = []struct{ word, unit string }{
	{"minutes", "m"}, {"minute", "m"}, {"mins", "m"}, {"min", "m"},
	{"hours", "h"}, {"hour", "h"}, {"hrs", "h"}, {"hr", "h"},
	{"days", "d"}, {"day", "d"},
	{"weeks", "w"}, {"week", "w"},
}

// parseSpan splits a compact span into a clock duration and whole days so
// that day shifts follow the calendar across DST changes.
func parseSpan(raw string) (time.Duration, int, error) {
	sign := 1
	switch {
	case strings.HasPrefix(raw, "+"):
		raw = raw[1:]
	case strings.HasPrefix(raw, "-"):
		sign, raw = -1, raw[1:]
	}
	for _, u := range unitWords {
		raw = strings.ReplaceAll(raw, u.word, u.unit)
	}
	if raw == "" {
		return 0, 0, invalidArg("span is empty")
	}

	days := 0
	for _, unit := range []string{"w", "d"} {
		i := strings.Index(raw, unit)
		if i < 0 {
			continue
		}
		n, err := strconv.Atoi(leadingNumber(raw[:i]))
		if err != nil {
			return 0, 0, invalidArg(fmt.Sprintf("bad span %q", raw))
		}
		prefix := raw[:i-len(leadingNumber(raw[:i]))]
		raw = prefix + raw[i+1:]
		if unit == "w" {
			n *= 7
		}
		days += n
	}
	var d time.Duration
	if raw != "" {
		var err error
		if d, err = time.ParseDuration(raw); err != nil {
			return 0, 0, invalidArg(fmt.Sprintf("bad span %q", raw))
		}
	}
	return time.Duration(sign) * d, sign * days, nil
}

// leadingNumber returns the digits that end s.
func leadingNumber(s string) string {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	return s[i:]
}

func atClock(day, ref time.Time, rest []string) (time.Time, error) {
	h, m := ref.Hour(), ref.Minute()
	if len(rest) > 0 && rest[0] == "at" {
		rest = rest[1:]
	}
	if len(rest) > 0 {
		var ok bool
		if h, m, ok = clock(rest[0]); !ok || len(rest) > 1 {
			return time.Time{}, invalidArg(fmt.Sprintf("bad clock %q", strings.Join(rest, " ")))
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, ref.Location()), nil
}

func clock(s string) (int, int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}

func invalidArg(msg string) error {
	return &CommandError{Code: ErrCodeInvalidArgument, Message: msg}
}
