package model

import (
	"errors"
	"testing"
	"time"
)

func validTemplateInput() TemplateInput {
	return TemplateInput{
		Title:    "Standup",
		Metadata: Metadata{Category: "work", Tags: []string{"team"}, EstimatedDuration: 15 * time.Minute},
		TimeConfig: TimeConfig{
			Base:       Timed{Start: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC), Duration: 15 * time.Minute},
			Recurrence: RecurrenceRule{Type: RecurrenceWeekly, Config: RecurrenceConfig{Weekdays: []time.Weekday{time.Monday, time.Thursday}}},
		},
		Reminders: ReminderConfig{
			Enabled: true,
			Alerts:  []ReminderAlert{{ID: "heads-up", Timing: Relative(10), Channel: ChannelNotification}},
			Snooze:  SnoozePolicy{Enabled: true, Interval: 5 * time.Minute, MaxCount: 3},
		},
		Policy: SchedulingPolicy{AllowReschedule: true, MaxDelayDays: 2},
	}
}

func TestNewTemplateNormalizesRule(t *testing.T) {
	in := validTemplateInput()
	in.TimeConfig.Recurrence.Interval = 0
	tpl, err := NewTemplate(in, time.Now())
	if err != nil {
		t.Fatalf("new template failed: %v", err)
	}
	if tpl.ID() == "" || tpl.Status() != TemplateDraft {
		t.Fatalf("unexpected id=%q status=%s", tpl.ID(), tpl.Status())
	}
	if tpl.Recurrence().Interval != 1 {
		t.Fatalf("expected interval normalized to 1, got %d", tpl.Recurrence().Interval)
	}
}

func TestNewTemplateRejectsTimeRangeWithoutEnd(t *testing.T) {
	in := validTemplateInput()
	in.TimeConfig.Base = TimeRange{Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	_, err := NewTemplate(in, time.Now())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "timeConfig.baseTime.end" {
		t.Fatalf("expected end validation error, got %v", err)
	}
}

func TestNewTemplateRejectsUnknownZoneAndEmptyTitle(t *testing.T) {
	in := validTemplateInput()
	in.TimeConfig.Timezone = "Mars/Olympus"
	if _, err := NewTemplate(in, time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected zone validation error, got %v", err)
	}
	in = validTemplateInput()
	in.Title = "  "
	if _, err := NewTemplate(in, time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected title validation error, got %v", err)
	}
}

func TestTemplateLifecycle(t *testing.T) {
	tpl, err := NewTemplate(validTemplateInput(), time.Now())
	if err != nil {
		t.Fatalf("new template failed: %v", err)
	}
	now := time.Now()
	if err := tpl.Pause(now); !errors.Is(err, ErrTransition) {
		t.Fatalf("pause from draft: expected transition error, got %v", err)
	}
	if err := tpl.Activate(now); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if err := tpl.Pause(now); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if tpl.CanGenerate() {
		t.Fatalf("paused template must not generate")
	}
	if err := tpl.Activate(now); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if err := tpl.Archive(now); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if err := tpl.Activate(now); !errors.Is(err, ErrTransition) {
		t.Fatalf("activate from archived: expected transition error, got %v", err)
	}
	if err := tpl.Rename("New", "", now); !errors.Is(err, ErrTransition) {
		t.Fatalf("rename archived: expected transition error, got %v", err)
	}
}

func TestTemplateUpdatesValidate(t *testing.T) {
	tpl, _ := NewTemplate(validTemplateInput(), time.Now())
	now := time.Now()
	if err := tpl.UpdateSchedulingPolicy(SchedulingPolicy{MaxDelayDays: -1}, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if tpl.Policy().MaxDelayDays != 2 {
		t.Fatalf("policy mutated on failed update")
	}
	bad := tpl.TimeConfig()
	bad.Recurrence.End = EndCondition{Type: EndDate, Date: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := tpl.UpdateTimeConfig(bad, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected end-before-base rejection, got %v", err)
	}
	meta := tpl.Metadata()
	meta.Tags[0] = "mutated"
	if tpl.Metadata().Tags[0] != "team" {
		t.Fatalf("metadata getter leaked internal slice")
	}
}

func TestTemplateAnalytics(t *testing.T) {
	tpl, _ := NewTemplate(validTemplateInput(), time.Now())
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	tpl.RecordGenerated(0, now)
	if tpl.Analytics().LastGeneratedAt != nil {
		t.Fatalf("zero batch must not touch lastGeneratedAt")
	}
	tpl.RecordGenerated(4, now)
	tpl.RecordCompleted()
	tpl.RecordUncompleted()
	tpl.RecordUncompleted()
	a := tpl.Analytics()
	if a.InstancesGenerated != 4 || a.Completed != 0 || a.LastGeneratedAt == nil {
		t.Fatalf("unexpected analytics: %+v", a)
	}
}

func TestAllDayAnchorUsesTemplateZone(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Tokyo"); err != nil {
		t.Skipf("zone data unavailable: %v", err)
	}
	cfg := TimeConfig{Base: AllDay{Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}, Timezone: "Asia/Tokyo"}
	anchor := cfg.Anchor()
	if anchor.Location().String() != "Asia/Tokyo" {
		t.Fatalf("unexpected anchor zone: %s", anchor.Location())
	}
	if anchor.Format("2006-01-02 15:04") != "2024-04-01 00:00" {
		t.Fatalf("unexpected anchor: %s", anchor.Format(time.RFC3339))
	}
}
