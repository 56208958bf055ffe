package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sandeepkv93/taskd/internal/model"
)

const stamp = "2006-01-02 15:04 MST"

// DescribeTemplate returns a markdown summary of tpl with the next few
// occurrences.
func DescribeTemplate(tpl *model.TaskTemplate, upcoming []time.Time) string {
	tc := tpl.TimeConfig()
	loc, err := tc.Location()
	if err != nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", tpl.Title())
	if d := strings.TrimSpace(tpl.Description()); d != "" {
		fmt.Fprintf(&b, "%s\n\n", d)
	}
	fmt.Fprintf(&b, "- **id:** `%s`\n", tpl.ID())
	fmt.Fprintf(&b, "- **status:** %s\n", tpl.Status())
	fmt.Fprintf(&b, "- **starts:** %s\n", describeBase(tc, loc))
	fmt.Fprintf(&b, "- **repeats:** %s\n", describeRule(tc.Recurrence))
	if md := tpl.Metadata(); md.Category != "" || len(md.Tags) > 0 {
		fmt.Fprintf(&b, "- **labels:** %s\n", strings.TrimSpace(md.Category+" "+hashTags(md.Tags)))
	}

	cfg := tpl.Reminders()
	b.WriteString("\n## Reminders\n\n")
	if !cfg.Enabled || len(cfg.Alerts) == 0 {
		b.WriteString("_none_\n")
	} else {
		for _, a := range cfg.Alerts {
			fmt.Fprintf(&b, "- `%s` %s", a.ID, describeTiming(a.Timing, loc))
			if a.Channel != "" {
				fmt.Fprintf(&b, " via %s", a.Channel)
			}
			if a.Message != "" {
				fmt.Fprintf(&b, ": %s", a.Message)
			}
			b.WriteString("\n")
		}
		if s := cfg.Snooze; s.Enabled {
			fmt.Fprintf(&b, "\nSnooze %s, at most %d times per occurrence.\n", s.Interval, s.MaxCount)
		}
	}

	p := tpl.Policy()
	b.WriteString("\n## Policy\n\n")
	if p.AllowReschedule {
		fmt.Fprintf(&b, "- reschedule up to %d day(s) late\n", p.MaxDelayDays)
	} else {
		b.WriteString("- rescheduling disabled\n")
	}
	for _, f := range []struct {
		on   bool
		text string
	}{
		{p.SkipWeekends, "skip weekends"},
		{p.SkipHolidays, "skip holidays"},
		{p.WorkingHoursOnly, "working hours only"},
	} {
		if f.on {
			fmt.Fprintf(&b, "- %s\n", f.text)
		}
	}

	an := tpl.Analytics()
	b.WriteString("\n## Analytics\n\n")
	b.WriteString("| generated | completed | cancelled | rescheduled | snoozed |\n|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n", an.InstancesGenerated, an.Completed, an.Cancelled, an.Rescheduled, an.Snoozed)

	if len(upcoming) > 0 {
		b.WriteString("\n## Upcoming\n\n")
		for _, t := range upcoming {
			fmt.Fprintf(&b, "1. %s\n", t.In(loc).Format("Mon "+stamp))
		}
	}
	return b.String()
}

// DescribeInstance returns a markdown summary of inst, its alerts and its
// most recent lifecycle events.
func DescribeInstance(inst *model.TaskInstance, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", inst.Title())
	fmt.Fprintf(&b, "- **id:** `%s`\n", inst.ID())
	fmt.Fprintf(&b, "- **template:** `%s`\n", inst.TemplateID())
	fmt.Fprintf(&b, "- **status:** %s\n", inst.Status())
	fmt.Fprintf(&b, "- **scheduled:** %s\n", inst.ScheduledTime().In(loc).Format(stamp))
	if !inst.OriginalScheduledTime().Equal(inst.ScheduledTime()) {
		fmt.Fprintf(&b, "- **originally:** %s (moved %d time(s))\n",
			inst.OriginalScheduledTime().In(loc).Format(stamp), inst.RescheduleCount())
	}
	if d, ok := inst.ActualDuration(); ok {
		fmt.Fprintf(&b, "- **took:** %s\n", d.Round(time.Second))
	}

	rs := inst.Reminder()
	if len(rs.Alerts) > 0 {
		b.WriteString("\n## Alerts\n\n| alert | status | fires | snoozes |\n|---|---|---|---|\n")
		for _, a := range rs.Alerts {
			fires := "-"
			if at, ok := a.NextFireAt(); ok {
				fires = at.In(loc).Format("15:04")
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", a.AlertID, a.Status, fires, len(a.SnoozeHistory))
		}
	}

	events := inst.Events()
	if n := len(events); n > 0 {
		if n > 10 {
			events = events[n-10:]
		}
		b.WriteString("\n## History\n\n")
		for _, ev := range events {
			fmt.Fprintf(&b, "- %s **%s**%s\n", ev.At.In(loc).Format("01-02 15:04"), ev.Type, describeDetail(ev.Detail))
		}
	}
	return b.String()
}

func describeBase(tc model.TimeConfig, loc *time.Location) string {
	start := tc.Anchor()
	switch base := tc.Base.(type) {
	case model.AllDay:
		return start.Format("Mon 2006-01-02") + " (all day)"
	case model.Timed:
		s := start.Format("Mon " + stamp)
		if base.Duration > 0 {
			s += " for " + base.Duration.String()
		}
		return s
	case model.TimeRange:
		return start.Format("Mon "+stamp) + " until " + base.End.In(loc).Format("15:04")
	default:
		return "-"
	}
}

func describeRule(r model.RecurrenceRule) string {
	if r.Type == model.RecurrenceNone || r.Type == "" {
		return "once"
	}
	s := string(r.Type)
	if r.Interval > 1 {
		s = fmt.Sprintf("every %d (%s)", r.Interval, r.Type)
	}
	if len(r.Config.Weekdays) > 0 {
		days := make([]string, len(r.Config.Weekdays))
		for i, d := range r.Config.Weekdays {
			days[i] = d.String()[:3]
		}
		s += " on " + strings.Join(days, ", ")
	}
	if len(r.Config.MonthDays) > 0 {
		days := make([]string, len(r.Config.MonthDays))
		for i, d := range r.Config.MonthDays {
			days[i] = fmt.Sprint(d)
		}
		s += " on day " + strings.Join(days, ", ")
	}
	switch r.End.Type {
	case model.EndDate:
		s += ", until " + r.End.Date.Format("2006-01-02")
	case model.EndCount:
		s += fmt.Sprintf(", %d times", r.End.Count)
	}
	return s
}

func describeTiming(t model.ReminderTiming, loc *time.Location) string {
	if t.Kind == model.TimingAbsolute {
		return "at " + t.At.In(loc).Format(stamp)
	}
	if t.MinutesBefore == 0 {
		return "at start"
	}
	return (time.Duration(t.MinutesBefore) * time.Minute).String() + " before"
}

func describeDetail(detail map[string]string) string {
	if len(detail) == 0 {
		return ""
	}
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + detail[k]
	}
	return " " + strings.Join(parts, " ")
}

func hashTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "#" + strings.Join(tags, " #")
}
