package model

import (
	"slices"
	"time"
)

type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = "none"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
	RecurrenceCustom  RecurrenceType = "custom"
)

func (t RecurrenceType) IsValid() bool {
	switch t {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly, RecurrenceCustom:
		return true
	default:
		return false
	}
}

type EndType string

const (
	EndNever EndType = "never"
	EndDate  EndType = "date"
	EndCount EndType = "count"
)

type EndCondition struct {
	Type  EndType
	Date  time.Time
	Count int
}

// RecurrenceConfig narrows a rule to specific calendar positions. Empty sets
// fall back to the base occurrence's own weekday, day of month or month.
type RecurrenceConfig struct {
	Weekdays  []time.Weekday
	MonthDays []int
	Months    []time.Month
}

type RecurrenceRule struct {
	Type     RecurrenceType
	Interval int
	End      EndCondition
	Config   RecurrenceConfig
}

// maxSearchPeriods bounds period scanning so rules that can never match
// (for example custom Feb 30) terminate.
const maxSearchPeriods = 5000

// Normalize fills defaults and fails open on a non-positive interval.
func (r RecurrenceRule) Normalize() RecurrenceRule {
	out := r
	if out.Type == "" {
		out.Type = RecurrenceNone
	}
	if out.Interval < 1 {
		out.Interval = 1
	}
	if out.End.Type == "" {
		out.End.Type = EndNever
	}
	out.Config.Weekdays = sortedUnique(r.Config.Weekdays, func(w time.Weekday) int { return mondayIndex(w) })
	out.Config.MonthDays = sortedUnique(r.Config.MonthDays, func(d int) int { return d })
	out.Config.Months = sortedUnique(r.Config.Months, func(m time.Month) int { return int(m) })
	return out
}

func (r RecurrenceRule) Validate(base time.Time) error {
	n := r.Normalize()
	if !n.Type.IsValid() {
		return invalid("recurrence.type", "unknown type %q", r.Type)
	}
	switch n.End.Type {
	case EndNever:
	case EndCount:
		if n.End.Count < 1 {
			return invalid("recurrence.end.count", "must be at least 1, got %d", n.End.Count)
		}
	case EndDate:
		if n.End.Date.IsZero() {
			return invalid("recurrence.end.date", "required for end type %q", EndDate)
		}
		if !base.IsZero() && n.End.Date.Before(base) {
			return invalid("recurrence.end.date", "%s precedes base start %s",
				n.End.Date.Format(time.RFC3339), base.Format(time.RFC3339))
		}
	default:
		return invalid("recurrence.end.type", "unknown end type %q", r.End.Type)
	}
	for _, w := range n.Config.Weekdays {
		if w < time.Sunday || w > time.Saturday {
			return invalid("recurrence.config.weekdays", "weekday %d out of range", w)
		}
	}
	for _, d := range n.Config.MonthDays {
		if d < 1 || d > 31 {
			return invalid("recurrence.config.monthDays", "day %d out of range", d)
		}
	}
	for _, m := range n.Config.Months {
		if m < time.January || m > time.December {
			return invalid("recurrence.config.months", "month %d out of range", m)
		}
	}
	return nil
}

// CountLimit reports the rule's own occurrence limit, if any.
func (r RecurrenceRule) CountLimit() (int, bool) {
	if r.End.Type == EndCount && r.End.Count > 0 {
		return r.End.Count, true
	}
	return 0, false
}

// NextOccurrence returns the first occurrence of rule anchored at base that
// is strictly after from. Occurrences never precede base; base itself is the
// first occurrence of every non-empty series. The evaluation is pure and
// count-agnostic: callers enforce count end conditions across calls.
func NextOccurrence(base time.Time, rule RecurrenceRule, from time.Time) (time.Time, bool) {
	rule = rule.Normalize()
	from = from.In(base.Location())
	if rule.End.Type == EndDate && from.After(rule.End.Date) {
		return time.Time{}, false
	}

	// lower is an exclusive bound; clamping it just below base makes base eligible.
	lower := from
	if lower.Before(base) {
		lower = base.Add(-time.Nanosecond)
	}

	var next time.Time
	var ok bool
	switch rule.Type {
	case RecurrenceNone:
		next, ok = base, base.After(from)
	case RecurrenceDaily:
		next, ok = nextDaily(base, rule.Interval, lower)
	case RecurrenceWeekly:
		next, ok = nextWeekly(base, rule, lower)
	case RecurrenceMonthly:
		next, ok = nextMonthly(base, rule, lower)
	case RecurrenceYearly:
		next, ok = nextYearly(base, rule, lower)
	case RecurrenceCustom:
		next, ok = nextCustom(base, rule, lower)
	}
	if !ok {
		return time.Time{}, false
	}
	if rule.End.Type == EndDate && next.After(rule.End.Date) {
		return time.Time{}, false
	}
	return next, true
}

func nextDaily(base time.Time, interval int, lower time.Time) (time.Time, bool) {
	offset := dayNumber(lower) - dayNumber(base)
	if offset < 0 {
		offset = 0
	}
	k := (offset / interval) * interval
	for i := 0; i < 3; i++ {
		cand := addDays(base, k)
		if cand.After(lower) {
			return cand, true
		}
		k += interval
	}
	return time.Time{}, false
}

func nextWeekly(base time.Time, rule RecurrenceRule, lower time.Time) (time.Time, bool) {
	weekdays := rule.Config.Weekdays
	if len(weekdays) == 0 {
		weekdays = []time.Weekday{base.Weekday()}
	}
	baseWeekStart := dayNumber(base) - mondayIndex(base.Weekday())
	week := floorDiv(dayNumber(lower)-baseWeekStart, 7)
	if week < 0 {
		week = 0
	}
	week = ceilToMultiple(week, rule.Interval)
	for i := 0; i < maxSearchPeriods; i++ {
		start := baseWeekStart + week*7
		for _, wd := range weekdays {
			cand := dateAt(start+mondayIndex(wd), base)
			if cand.After(lower) {
				return cand, true
			}
		}
		week += rule.Interval
	}
	return time.Time{}, false
}

func nextMonthly(base time.Time, rule RecurrenceRule, lower time.Time) (time.Time, bool) {
	days := rule.Config.MonthDays
	if len(days) == 0 {
		days = []int{base.Day()}
	}
	baseMonth := monthIndex(base)
	k := monthIndex(lower) - baseMonth
	if k < 0 {
		k = 0
	}
	k = ceilToMultiple(k, rule.Interval)
	for i := 0; i < maxSearchPeriods; i++ {
		y, m := fromMonthIndex(baseMonth + k)
		if cand, ok := firstInMonth(y, m, days, base, lower); ok {
			return cand, true
		}
		k += rule.Interval
	}
	return time.Time{}, false
}

func nextYearly(base time.Time, rule RecurrenceRule, lower time.Time) (time.Time, bool) {
	months := rule.Config.Months
	if len(months) == 0 {
		months = []time.Month{base.Month()}
	}
	days := rule.Config.MonthDays
	if len(days) == 0 {
		days = []int{base.Day()}
	}
	k := lower.Year() - base.Year()
	if k < 0 {
		k = 0
	}
	k = ceilToMultiple(k, rule.Interval)
	for i := 0; i < maxSearchPeriods; i++ {
		y := base.Year() + k
		for _, m := range months {
			if cand, ok := firstInMonth(y, m, days, base, lower); ok {
				return cand, true
			}
		}
		k += rule.Interval
	}
	return time.Time{}, false
}

// nextCustom steps interval days from base and keeps the first day matching
// every non-empty calendar set.
func nextCustom(base time.Time, rule RecurrenceRule, lower time.Time) (time.Time, bool) {
	offset := dayNumber(lower) - dayNumber(base)
	if offset < 0 {
		offset = 0
	}
	k := (offset / rule.Interval) * rule.Interval
	for i := 0; i < maxSearchPeriods; i++ {
		cand := addDays(base, k)
		if cand.After(lower) && matchesConfig(cand, rule.Config) {
			return cand, true
		}
		k += rule.Interval
	}
	return time.Time{}, false
}

func matchesConfig(t time.Time, cfg RecurrenceConfig) bool {
	if len(cfg.Weekdays) > 0 && !slices.Contains(cfg.Weekdays, t.Weekday()) {
		return false
	}
	if len(cfg.MonthDays) > 0 && !slices.Contains(cfg.MonthDays, t.Day()) {
		return false
	}
	if len(cfg.Months) > 0 && !slices.Contains(cfg.Months, t.Month()) {
		return false
	}
	return true
}

// firstInMonth clamps each configured day to the month length.
func firstInMonth(y int, m time.Month, days []int, base, lower time.Time) (time.Time, bool) {
	last := daysIn(y, m)
	for _, d := range days {
		if d > last {
			d = last
		}
		cand := withBaseClock(y, m, d, base)
		if cand.After(lower) {
			return cand, true
		}
	}
	return time.Time{}, false
}

func withBaseClock(y int, m time.Month, d int, base time.Time) time.Time {
	return time.Date(y, m, d, base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), base.Location())
}

func addDays(base time.Time, n int) time.Time {
	y, m, d := base.Date()
	return withBaseClock(y, m, d+n, base)
}

func dateAt(day int, base time.Time) time.Time {
	y, m, d := time.Unix(int64(day)*86400, 0).UTC().Date()
	return withBaseClock(y, m, d, base)
}

// dayNumber is the civil day index of t's local date.
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return int(floorDiv64(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix(), 86400))
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func fromMonthIndex(i int) (int, time.Month) {
	return floorDiv(i, 12), time.Month(i - floorDiv(i, 12)*12 + 1)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorDiv64(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilToMultiple(x, n int) int {
	return ((x + n - 1) / n) * n
}

func sortedUnique[T comparable](in []T, key func(T) int) []T {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b T) int { return key(a) - key(b) })
	return slices.Compact(out)
}
