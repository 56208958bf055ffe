// Package generator materializes task instances from a template's
// recurrence. It is pure apart from reading the injected clock and is safe
// for concurrent use.
package generator

import (
	"fmt"
	"time"

	"github.com/sandeepkv93/taskd/internal/model"
)

// DefaultHardCap bounds every generation loop.
const DefaultHardCap = 1000

// scanFactor bounds engine calls relative to the hard cap so that policy
// filters which reject every occurrence still terminate.
const scanFactor = 8

type Options struct {
	HardCap      int
	Holidays     HolidayCalendar
	WorkingHours WorkingHours
	Clock        model.Clock
}

type Generator struct {
	hardCap  int
	holidays HolidayCalendar
	hours    WorkingHours
	clock    model.Clock
}

func New(opts Options) *Generator {
	g := &Generator{
		hardCap:  opts.HardCap,
		holidays: opts.Holidays,
		hours:    opts.WorkingHours,
		clock:    opts.Clock,
	}
	if g.hardCap <= 0 {
		g.hardCap = DefaultHardCap
	}
	if g.holidays == nil {
		g.holidays = NoHolidays{}
	}
	if g.hours.IsZero() {
		g.hours = DefaultWorkingHours
	}
	if g.clock == nil {
		g.clock = model.SystemClock
	}
	return g
}

func (g *Generator) HardCap() int { return g.hardCap }

// ByCount returns at most min(maxInstances, rule count, hard cap) instances
// starting at the template's base occurrence.
func (g *Generator) ByCount(tpl *model.TaskTemplate, maxInstances int) ([]*model.TaskInstance, error) {
	if maxInstances < 1 {
		return nil, &model.ValidationError{Field: "generate.count", Reason: fmt.Sprintf("must be at least 1, got %d", maxInstances)}
	}
	if err := g.check(tpl); err != nil {
		return nil, err
	}
	limit := min(maxInstances, g.hardCap)
	occ := g.occurrences(tpl, time.Time{}, time.Time{}, limit)
	return g.materialize(tpl, occ)
}

// ByRange returns the occurrences in [start, end], both inclusive. Elapsed
// occurrences are included.
func (g *Generator) ByRange(tpl *model.TaskTemplate, start, end time.Time) ([]*model.TaskInstance, error) {
	if start.IsZero() || end.IsZero() {
		return nil, &model.ValidationError{Field: "generate.range", Reason: "start and end are required"}
	}
	if end.Before(start) {
		return nil, &model.ValidationError{
			Field:  "generate.range",
			Reason: fmt.Sprintf("end %s precedes start %s", end.Format(time.RFC3339), start.Format(time.RFC3339)),
		}
	}
	if err := g.check(tpl); err != nil {
		return nil, err
	}
	occ := g.occurrences(tpl, start, end, g.hardCap)
	return g.materialize(tpl, occ)
}

// Occurrences previews the scheduled times ByCount would produce without
// building instances.
func (g *Generator) Occurrences(tpl *model.TaskTemplate, maxInstances int) ([]time.Time, error) {
	if maxInstances < 1 {
		return nil, &model.ValidationError{Field: "generate.count", Reason: fmt.Sprintf("must be at least 1, got %d", maxInstances)}
	}
	if err := g.check(tpl); err != nil {
		return nil, err
	}
	return g.occurrences(tpl, time.Time{}, time.Time{}, min(maxInstances, g.hardCap)), nil
}

func (g *Generator) check(tpl *model.TaskTemplate) error {
	if tpl == nil {
		return &model.ValidationError{Field: "template", Reason: "required"}
	}
	if !tpl.CanGenerate() {
		return &model.TransitionError{Entity: "template", From: string(tpl.Status()), Event: "generate"}
	}
	return tpl.TimeConfig().Validate()
}

// occurrences walks the rule from its anchor. A zero start or end leaves
// that side unbounded. Accepted occurrences before start still count toward
// the rule's count limit.
func (g *Generator) occurrences(tpl *model.TaskTemplate, start, end time.Time, limit int) []time.Time {
	base := tpl.Anchor()
	rule := tpl.Recurrence()
	policy := tpl.Policy()
	allDay := tpl.TimeConfig().IsAllDay()

	ruleCount, counted := rule.CountLimit()
	cursor := base.Add(-time.Nanosecond)
	if !counted && !start.IsZero() && start.After(base) {
		cursor = start.Add(-time.Nanosecond)
	}

	var out []time.Time
	accepted := 0
	for calls := 0; calls < g.hardCap*scanFactor && len(out) < limit; calls++ {
		if counted && accepted >= ruleCount {
			break
		}
		next, ok := model.NextOccurrence(base, rule, cursor)
		if !ok || (!end.IsZero() && next.After(end)) {
			break
		}
		cursor = next
		if !g.allowed(next, policy, allDay) {
			continue
		}
		accepted++
		if !start.IsZero() && next.Before(start) {
			continue
		}
		out = append(out, next)
	}
	return out
}

func (g *Generator) allowed(t time.Time, p model.SchedulingPolicy, allDay bool) bool {
	if p.SkipWeekends {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if p.SkipHolidays && g.holidays.IsHoliday(t) {
		return false
	}
	if p.WorkingHoursOnly && !allDay && !g.hours.Contains(t) {
		return false
	}
	return true
}

func (g *Generator) materialize(tpl *model.TaskTemplate, occ []time.Time) ([]*model.TaskInstance, error) {
	now := g.clock.Now()
	tc := tpl.TimeConfig()
	meta := tpl.Metadata()
	out := make([]*model.TaskInstance, 0, len(occ))
	for _, at := range occ {
		in := model.InstanceInput{
			TemplateID:    tpl.ID(),
			Title:         tpl.Title(),
			Description:   tpl.Description(),
			Metadata:      meta,
			ScheduledTime: at,
			AllDay:        tc.IsAllDay(),
		}
		if end, ok := tc.Base.EndFor(at); ok {
			in.EndTime = &end
		}
		inst, err := model.NewInstance(in, now)
		if err != nil {
			return nil, fmt.Errorf("generator: instance at %s: %w", at.Format(time.RFC3339), err)
		}
		out = append(out, inst)
	}
	return out, nil
}
