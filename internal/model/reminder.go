package model

import (
	"slices"
	"strings"
	"time"
)

type TimingKind string

const (
	TimingRelative TimingKind = "relative"
	TimingAbsolute TimingKind = "absolute"
)

type ReminderTiming struct {
	Kind          TimingKind
	MinutesBefore int
	At            time.Time
}

func Relative(minutesBefore int) ReminderTiming {
	return ReminderTiming{Kind: TimingRelative, MinutesBefore: minutesBefore}
}

func Absolute(at time.Time) ReminderTiming {
	return ReminderTiming{Kind: TimingAbsolute, At: at}
}

// FireTime computes when the alert fires for an occurrence at scheduled.
func (t ReminderTiming) FireTime(scheduled time.Time) time.Time {
	if t.Kind == TimingAbsolute {
		return t.At
	}
	return scheduled.Add(-time.Duration(t.MinutesBefore) * time.Minute)
}

type Channel string

const (
	ChannelNotification Channel = "notification"
	ChannelEmail        Channel = "email"
	ChannelPush         Channel = "push"
	ChannelSound        Channel = "sound"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelNotification, ChannelEmail, ChannelPush, ChannelSound:
		return true
	default:
		return false
	}
}

// ReminderAlert is the template-level alert descriptor.
type ReminderAlert struct {
	ID      string
	Timing  ReminderTiming
	Channel Channel
	Message string
}

type SnoozePolicy struct {
	Enabled  bool
	Interval time.Duration
	MaxCount int
}

type ReminderConfig struct {
	Enabled bool
	Alerts  []ReminderAlert
	Snooze  SnoozePolicy
}

func (c ReminderConfig) Validate() error {
	seen := make(map[string]bool, len(c.Alerts))
	for i, a := range c.Alerts {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return invalid("reminderConfig.alerts", "alert %d has no id", i)
		}
		if seen[id] {
			return invalid("reminderConfig.alerts", "duplicate alert id %q", id)
		}
		seen[id] = true
		switch a.Timing.Kind {
		case TimingRelative:
			if a.Timing.MinutesBefore < 0 {
				return invalid("reminderConfig.alerts", "alert %q has negative minutesBefore", id)
			}
		case TimingAbsolute:
			if a.Timing.At.IsZero() {
				return invalid("reminderConfig.alerts", "absolute alert %q has no time", id)
			}
		default:
			return invalid("reminderConfig.alerts", "alert %q has unknown timing %q", id, a.Timing.Kind)
		}
		if a.Channel != "" && !a.Channel.IsValid() {
			return invalid("reminderConfig.alerts", "alert %q has unknown channel %q", id, a.Channel)
		}
	}
	if c.Snooze.MaxCount < 0 {
		return invalid("reminderConfig.snooze.maxCount", "must not be negative, got %d", c.Snooze.MaxCount)
	}
	if c.Snooze.Enabled && c.Snooze.Interval <= 0 {
		return invalid("reminderConfig.snooze.interval", "must be positive when snooze is enabled")
	}
	return nil
}

func (c ReminderConfig) clone() ReminderConfig {
	out := c
	out.Alerts = slices.Clone(c.Alerts)
	return out
}

type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"
	AlertTriggered AlertStatus = "triggered"
	AlertDismissed AlertStatus = "dismissed"
	AlertSnoozed   AlertStatus = "snoozed"
)

func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertPending, AlertTriggered, AlertDismissed, AlertSnoozed:
		return true
	default:
		return false
	}
}

type SnoozeRecord struct {
	SnoozedAt   time.Time
	SnoozeUntil time.Time
	Reason      string
}

// ReminderStatusAlert is one armed alert on a concrete instance.
type ReminderStatusAlert struct {
	AlertID       string
	Channel       Channel
	Message       string
	Status        AlertStatus
	ScheduledTime time.Time
	TriggeredAt   *time.Time
	DismissedAt   *time.Time
	SnoozeHistory []SnoozeRecord
}

// NextFireAt is when the trigger collaborator should next deliver this alert.
func (a ReminderStatusAlert) NextFireAt() (time.Time, bool) {
	switch a.Status {
	case AlertPending:
		return a.ScheduledTime, true
	case AlertSnoozed:
		if n := len(a.SnoozeHistory); n > 0 {
			return a.SnoozeHistory[n-1].SnoozeUntil, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Outstanding reports whether a trigger registration may exist for the alert.
func (a ReminderStatusAlert) Outstanding() bool {
	return a.Status == AlertPending || a.Status == AlertSnoozed
}

func (a ReminderStatusAlert) clone() ReminderStatusAlert {
	out := a
	out.TriggeredAt = cloneTime(a.TriggeredAt)
	out.DismissedAt = cloneTime(a.DismissedAt)
	out.SnoozeHistory = slices.Clone(a.SnoozeHistory)
	return out
}

type ReminderStatus struct {
	Enabled           bool
	Alerts            []ReminderStatusAlert
	GlobalSnoozeCount int
}

func (s ReminderStatus) clone() ReminderStatus {
	out := s
	out.Alerts = make([]ReminderStatusAlert, 0, len(s.Alerts))
	for _, a := range s.Alerts {
		out.Alerts = append(out.Alerts, a.clone())
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
