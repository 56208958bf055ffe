package planner

import (
	"testing"
	"time"

	"github.com/sandeepkv93/taskd/internal/model"
)

var nine = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func instanceAt(t *testing.T, at time.Time) *model.TaskInstance {
	t.Helper()
	inst, err := model.NewInstance(model.InstanceInput{TemplateID: "tpl", Title: "Call", ScheduledTime: at}, at.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("new instance failed: %v", err)
	}
	return inst
}

func config(alerts ...model.ReminderAlert) model.ReminderConfig {
	return model.ReminderConfig{Enabled: true, Alerts: alerts}
}

func TestRelativeReminderFireTime(t *testing.T) {
	clock := model.NewManualClock(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC))
	alerts := New(clock).Plan(instanceAt(t, nine), config(model.ReminderAlert{ID: "r15", Timing: model.Relative(15)}))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.ScheduledTime.Format("15:04") != "08:45" {
		t.Fatalf("unexpected fire time: %s", a.ScheduledTime.Format(time.RFC3339))
	}
	if a.Status != model.AlertPending || a.Channel != model.ChannelNotification {
		t.Fatalf("unexpected alert: %+v", a)
	}
}

func TestElapsedReminderIsDropped(t *testing.T) {
	clock := model.NewManualClock(time.Date(2024, 3, 4, 8, 50, 0, 0, time.UTC))
	alerts := New(clock).Plan(instanceAt(t, nine), config(
		model.ReminderAlert{ID: "r15", Timing: model.Relative(15)},
		model.ReminderAlert{ID: "r5", Timing: model.Relative(5)},
	))
	if len(alerts) != 1 || alerts[0].AlertID != "r5" {
		t.Fatalf("expected only r5 to survive, got %+v", alerts)
	}
}

func TestFireTimeEqualToNowIsDropped(t *testing.T) {
	clock := model.NewManualClock(time.Date(2024, 3, 4, 8, 45, 0, 0, time.UTC))
	if alerts := New(clock).Plan(instanceAt(t, nine), config(model.ReminderAlert{ID: "r15", Timing: model.Relative(15)})); len(alerts) != 0 {
		t.Fatalf("expected alert due exactly now to be dropped, got %+v", alerts)
	}
}

func TestAbsoluteRemindersSortedByFireTime(t *testing.T) {
	clock := model.NewManualClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	alerts := New(clock).Plan(instanceAt(t, nine), config(
		model.ReminderAlert{ID: "late", Timing: model.Relative(0), Channel: model.ChannelSound},
		model.ReminderAlert{ID: "eve", Timing: model.Absolute(time.Date(2024, 3, 3, 20, 0, 0, 0, time.UTC)), Message: "prep"},
	))
	if len(alerts) != 2 || alerts[0].AlertID != "eve" || alerts[1].AlertID != "late" {
		t.Fatalf("unexpected order: %+v", alerts)
	}
	if alerts[0].Message != "prep" || alerts[1].Channel != model.ChannelSound {
		t.Fatalf("descriptor fields not carried: %+v", alerts)
	}
}

func TestDisabledConfigPlansNothing(t *testing.T) {
	cfg := config(model.ReminderAlert{ID: "r", Timing: model.Relative(10)})
	cfg.Enabled = false
	if alerts := New(model.NewManualClock(nine.Add(-time.Hour))).Plan(instanceAt(t, nine), cfg); alerts != nil {
		t.Fatalf("expected no alerts, got %+v", alerts)
	}
}

func TestPlanDoesNotMutateInstance(t *testing.T) {
	inst := instanceAt(t, nine)
	_ = New(model.NewManualClock(nine.Add(-time.Hour))).Plan(inst, config(model.ReminderAlert{ID: "r", Timing: model.Relative(10)}))
	if len(inst.Reminder().Alerts) != 0 {
		t.Fatalf("planner attached alerts itself")
	}
}
