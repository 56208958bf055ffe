package model

import (
	"errors"
	"testing"
	"time"
)

func armedInstance(t *testing.T, alertIDs ...string) *TaskInstance {
	t.Helper()
	inst := newTestInstance(t)
	now := day0.Add(-time.Hour)
	for _, id := range alertIDs {
		err := inst.ArmAlert(ReminderStatusAlert{AlertID: id, Channel: ChannelPush, ScheduledTime: day0.Add(-15 * time.Minute)}, now)
		if err != nil {
			t.Fatalf("arm %s failed: %v", id, err)
		}
	}
	return inst
}

func TestRelativeFireTime(t *testing.T) {
	scheduled := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	fire := Relative(15).FireTime(scheduled)
	if fire.Format("15:04") != "08:45" {
		t.Fatalf("unexpected fire time: %s", fire.Format(time.RFC3339))
	}
	at := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	if got := Absolute(at).FireTime(scheduled); !got.Equal(at) {
		t.Fatalf("absolute timing moved: %s", got)
	}
}

func TestReminderConfigValidate(t *testing.T) {
	cases := []ReminderConfig{
		{Alerts: []ReminderAlert{{Timing: Relative(5)}}},
		{Alerts: []ReminderAlert{{ID: "a", Timing: Relative(5)}, {ID: "a", Timing: Relative(10)}}},
		{Alerts: []ReminderAlert{{ID: "a", Timing: Relative(-1)}}},
		{Alerts: []ReminderAlert{{ID: "a", Timing: ReminderTiming{Kind: TimingAbsolute}}}},
		{Alerts: []ReminderAlert{{ID: "a", Timing: Relative(1), Channel: "pager"}}},
		{Snooze: SnoozePolicy{Enabled: true, MaxCount: 3}},
		{Snooze: SnoozePolicy{MaxCount: -1}},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	ok := ReminderConfig{
		Enabled: true,
		Alerts:  []ReminderAlert{{ID: "a", Timing: Relative(15), Channel: ChannelEmail}},
		Snooze:  SnoozePolicy{Enabled: true, Interval: 10 * time.Minute, MaxCount: 3},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestArmAlertRejectsPastAndDuplicate(t *testing.T) {
	inst := newTestInstance(t)
	now := day0.Add(-10 * time.Minute)
	past := ReminderStatusAlert{AlertID: "a", ScheduledTime: day0.Add(-15 * time.Minute)}
	if err := inst.ArmAlert(past, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for past fire time, got %v", err)
	}
	future := ReminderStatusAlert{AlertID: "a", ScheduledTime: day0.Add(-5 * time.Minute)}
	if err := inst.ArmAlert(future, now); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	if err := inst.ArmAlert(future, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if !inst.DropAlert("a") || inst.DropAlert("a") {
		t.Fatalf("drop should succeed exactly once")
	}
}

func TestAlertTriggerThenDismiss(t *testing.T) {
	inst := armedInstance(t, "a")
	if err := inst.DismissAlert("a", day0); !errors.Is(err, ErrTransition) {
		t.Fatalf("dismiss from pending: expected transition error, got %v", err)
	}
	if err := inst.TriggerAlert("a", day0.Add(-15*time.Minute)); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if err := inst.TriggerAlert("a", day0); !errors.Is(err, ErrTransition) {
		t.Fatalf("double trigger: expected transition error, got %v", err)
	}
	if err := inst.DismissAlert("a", day0.Add(-14*time.Minute)); err != nil {
		t.Fatalf("dismiss failed: %v", err)
	}
	a, _ := inst.Alert("a")
	if a.Status != AlertDismissed || a.TriggeredAt == nil || a.DismissedAt == nil {
		t.Fatalf("unexpected alert state: %+v", a)
	}
	if a.Outstanding() {
		t.Fatalf("dismissed alert must not be outstanding")
	}
}

func TestUnknownAlert(t *testing.T) {
	inst := newTestInstance(t)
	if err := inst.TriggerAlert("missing", day0); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSnoozeLimitLeavesCountUnchanged(t *testing.T) {
	inst := armedInstance(t, "a", "b")
	policy := SnoozePolicy{Enabled: true, Interval: 5 * time.Minute, MaxCount: 1}
	now := day0.Add(-15 * time.Minute)
	_ = inst.TriggerAlert("a", now)
	_ = inst.TriggerAlert("b", now)

	if err := inst.SnoozeAlert("a", time.Time{}, "busy", policy, now); err != nil {
		t.Fatalf("snooze failed: %v", err)
	}
	a, _ := inst.Alert("a")
	if a.Status != AlertSnoozed || len(a.SnoozeHistory) != 1 {
		t.Fatalf("unexpected snoozed alert: %+v", a)
	}
	if until, ok := a.NextFireAt(); !ok || !until.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("unexpected snooze until: %s", until)
	}

	err := inst.SnoozeAlert("b", now.Add(time.Hour), "", policy, now)
	var perr *PolicyViolation
	if !errors.As(err, &perr) || perr.Policy != "snooze.maxCount" {
		t.Fatalf("expected max count violation, got %v", err)
	}
	if got := inst.Reminder().GlobalSnoozeCount; got != 1 {
		t.Fatalf("global snooze count changed to %d", got)
	}
	b, _ := inst.Alert("b")
	if b.Status != AlertTriggered || len(b.SnoozeHistory) != 0 {
		t.Fatalf("alert b mutated: %+v", b)
	}
}

func TestSnoozeDisabled(t *testing.T) {
	inst := armedInstance(t, "a")
	now := day0.Add(-15 * time.Minute)
	_ = inst.TriggerAlert("a", now)
	err := inst.SnoozeAlert("a", now.Add(time.Minute), "", SnoozePolicy{MaxCount: 5}, now)
	if !errors.Is(err, ErrPolicy) {
		t.Fatalf("expected policy violation, got %v", err)
	}
}

func TestSnoozeThenRefire(t *testing.T) {
	inst := armedInstance(t, "a")
	policy := SnoozePolicy{Enabled: true, Interval: 5 * time.Minute, MaxCount: 3}
	now := day0.Add(-15 * time.Minute)
	_ = inst.TriggerAlert("a", now)
	if err := inst.SnoozeAlert("a", now.Add(-time.Minute), "", policy, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for past until, got %v", err)
	}
	if err := inst.SnoozeAlert("a", now.Add(10*time.Minute), "meeting", policy, now); err != nil {
		t.Fatalf("snooze failed: %v", err)
	}
	if err := inst.TriggerAlert("a", now.Add(10*time.Minute)); !errors.Is(err, ErrTransition) {
		t.Fatalf("trigger from snoozed: expected transition error, got %v", err)
	}
	if err := inst.RefireAlert("a", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("refire failed: %v", err)
	}
	if err := inst.DismissAlert("a", now.Add(11*time.Minute)); err != nil {
		t.Fatalf("dismiss after refire failed: %v", err)
	}
}

func TestClearAlertsReturnsOutstanding(t *testing.T) {
	inst := armedInstance(t, "a", "b")
	_ = inst.TriggerAlert("a", day0.Add(-15*time.Minute))
	outstanding := inst.ClearAlerts(day0)
	if len(outstanding) != 1 || outstanding[0].AlertID != "b" {
		t.Fatalf("unexpected outstanding alerts: %+v", outstanding)
	}
	if len(inst.Reminder().Alerts) != 0 {
		t.Fatalf("expected alerts cleared")
	}
	if len(inst.ClearAlerts(day0)) != 0 {
		t.Fatalf("second clear should be a no-op")
	}
}
