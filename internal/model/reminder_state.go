package model

import (
	"fmt"
	"strconv"
	"time"
)

func (i *TaskInstance) alertIndex(alertID string) (int, error) {
	for idx := range i.reminder.Alerts {
		if i.reminder.Alerts[idx].AlertID == alertID {
			return idx, nil
		}
	}
	return -1, fmt.Errorf("%w: %s/%s", ErrAlertNotFound, i.id, alertID)
}

func (i *TaskInstance) Alert(alertID string) (ReminderStatusAlert, bool) {
	idx, err := i.alertIndex(alertID)
	if err != nil {
		return ReminderStatusAlert{}, false
	}
	return i.reminder.Alerts[idx].clone(), true
}

func (i *TaskInstance) SetRemindersEnabled(enabled bool) {
	i.reminder.Enabled = enabled
}

// ArmAlert records a pending alert locally. It is the first half of the arm
// protocol; the caller removes it again with DropAlert if registration fails.
func (i *TaskInstance) ArmAlert(a ReminderStatusAlert, now time.Time) error {
	if _, err := i.alertIndex(a.AlertID); err == nil {
		return invalid("reminder.alertId", "alert %q already armed on %s", a.AlertID, i.id)
	}
	if !a.ScheduledTime.After(now) {
		return invalid("reminder.scheduledTime", "alert %q fire time %s is not in the future",
			a.AlertID, a.ScheduledTime.Format(time.RFC3339))
	}
	a.Status = AlertPending
	a.TriggeredAt = nil
	a.DismissedAt = nil
	a.SnoozeHistory = nil
	i.reminder.Alerts = append(i.reminder.Alerts, a)
	i.record(EventReminderArmed, now, map[string]string{
		"alertId": a.AlertID,
		"fireAt":  a.ScheduledTime.Format(time.RFC3339),
	})
	return nil
}

// DropAlert removes an alert without recording a lifecycle event; it rolls
// back an ArmAlert whose registration never completed.
func (i *TaskInstance) DropAlert(alertID string) bool {
	idx, err := i.alertIndex(alertID)
	if err != nil {
		return false
	}
	i.reminder.Alerts = append(i.reminder.Alerts[:idx], i.reminder.Alerts[idx+1:]...)
	return true
}

// ClearAlerts discards every alert and returns the ones that may still hold
// trigger registrations.
func (i *TaskInstance) ClearAlerts(now time.Time) []ReminderStatusAlert {
	outstanding := i.OutstandingAlerts()
	if len(i.reminder.Alerts) > 0 {
		i.record(EventReminderDisarmed, now, map[string]string{"count": strconv.Itoa(len(i.reminder.Alerts))})
	}
	i.reminder.Alerts = nil
	return outstanding
}

func (i *TaskInstance) OutstandingAlerts() []ReminderStatusAlert {
	out := make([]ReminderStatusAlert, 0, len(i.reminder.Alerts))
	for _, a := range i.reminder.Alerts {
		if a.Outstanding() {
			out = append(out, a.clone())
		}
	}
	return out
}

func (i *TaskInstance) alertIllegal(a ReminderStatusAlert, event string) error {
	return &TransitionError{Entity: "reminder " + a.AlertID, From: string(a.Status), Event: event}
}

func (i *TaskInstance) TriggerAlert(alertID string, now time.Time) error {
	idx, err := i.alertIndex(alertID)
	if err != nil {
		return err
	}
	a := &i.reminder.Alerts[idx]
	if a.Status != AlertPending {
		return i.alertIllegal(*a, "trigger")
	}
	a.Status = AlertTriggered
	at := now
	a.TriggeredAt = &at
	i.record(EventReminderFired, now, map[string]string{"alertId": alertID})
	return nil
}

// RefireAlert moves a snoozed alert back to triggered once snoozeUntil is reached.
func (i *TaskInstance) RefireAlert(alertID string, now time.Time) error {
	idx, err := i.alertIndex(alertID)
	if err != nil {
		return err
	}
	a := &i.reminder.Alerts[idx]
	if a.Status != AlertSnoozed {
		return i.alertIllegal(*a, "re-fire")
	}
	a.Status = AlertTriggered
	at := now
	a.TriggeredAt = &at
	i.record(EventReminderFired, now, map[string]string{"alertId": alertID, "refire": "true"})
	return nil
}

func (i *TaskInstance) DismissAlert(alertID string, now time.Time) error {
	idx, err := i.alertIndex(alertID)
	if err != nil {
		return err
	}
	a := &i.reminder.Alerts[idx]
	if a.Status != AlertTriggered {
		return i.alertIllegal(*a, "dismiss")
	}
	a.Status = AlertDismissed
	at := now
	a.DismissedAt = &at
	i.record(EventReminderDismiss, now, map[string]string{"alertId": alertID})
	return nil
}

// SnoozeAlert defers a triggered alert. A zero until means now plus the
// policy interval. Policy failures leave the instance unchanged.
func (i *TaskInstance) SnoozeAlert(alertID string, until time.Time, reason string, policy SnoozePolicy, now time.Time) error {
	idx, err := i.alertIndex(alertID)
	if err != nil {
		return err
	}
	a := &i.reminder.Alerts[idx]
	if a.Status != AlertTriggered {
		return i.alertIllegal(*a, "snooze")
	}
	if !policy.Enabled {
		return &PolicyViolation{Policy: "snooze.enabled", Reason: "snooze is disabled for this template"}
	}
	if i.reminder.GlobalSnoozeCount >= policy.MaxCount {
		return &PolicyViolation{
			Policy: "snooze.maxCount",
			Reason: fmt.Sprintf("snoozed %d of %d times", i.reminder.GlobalSnoozeCount, policy.MaxCount),
		}
	}
	if until.IsZero() {
		until = now.Add(policy.Interval)
	}
	if !until.After(now) {
		return invalid("snooze.until", "%s is not in the future", until.Format(time.RFC3339))
	}
	a.SnoozeHistory = append(a.SnoozeHistory, SnoozeRecord{SnoozedAt: now, SnoozeUntil: until, Reason: reason})
	a.Status = AlertSnoozed
	i.reminder.GlobalSnoozeCount++
	detail := map[string]string{"alertId": alertID, "until": until.Format(time.RFC3339)}
	if reason != "" {
		detail["reason"] = reason
	}
	i.record(EventReminderSnoozed, now, detail)
	return nil
}
