package model

import (
	"time"

	"github.com/sandeepkv93/taskd/internal/ring"
)

// Snapshots are the persisted shapes of the aggregates. The FromPersistence
// constructors rebuild aggregates from them and re-validate every invariant
// instead of trusting stored rows.

type RecurrenceSnapshot struct {
	Type      RecurrenceType `json:"type"`
	Interval  int            `json:"interval"`
	EndType   EndType        `json:"endType"`
	EndDate   *DateTime      `json:"endDate,omitempty"`
	EndCount  int            `json:"endCount,omitempty"`
	Weekdays  []int          `json:"weekdays,omitempty"`
	MonthDays []int          `json:"monthDays,omitempty"`
	Months    []int          `json:"months,omitempty"`
}

type TimeConfigSnapshot struct {
	Type       TimeKind           `json:"type"`
	Start      DateTime           `json:"start"`
	End        *DateTime          `json:"end,omitempty"`
	DurationMs int64              `json:"durationMs,omitempty"`
	Timezone   string             `json:"timezone,omitempty"`
	Recurrence RecurrenceSnapshot `json:"recurrence"`
}

type AlertSnapshot struct {
	ID            string     `json:"id"`
	Timing        TimingKind `json:"timing"`
	MinutesBefore int        `json:"minutesBefore,omitempty"`
	At            *DateTime  `json:"at,omitempty"`
	Channel       Channel    `json:"channel,omitempty"`
	Message       string     `json:"message,omitempty"`
}

type ReminderConfigSnapshot struct {
	Enabled          bool            `json:"enabled"`
	Alerts           []AlertSnapshot `json:"alerts,omitempty"`
	SnoozeEnabled    bool            `json:"snoozeEnabled"`
	SnoozeIntervalMs int64           `json:"snoozeIntervalMs,omitempty"`
	SnoozeMaxCount   int             `json:"snoozeMaxCount"`
}

type MetadataSnapshot struct {
	Category            string   `json:"category,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	EstimatedDurationMs int64    `json:"estimatedDurationMs,omitempty"`
	KeyResultLinks      []string `json:"keyResultLinks,omitempty"`
}

type AnalyticsSnapshot struct {
	InstancesGenerated int       `json:"instancesGenerated"`
	Completed          int       `json:"completed"`
	Cancelled          int       `json:"cancelled"`
	Rescheduled        int       `json:"rescheduled"`
	Snoozed            int       `json:"snoozed"`
	LastGeneratedAt    *DateTime `json:"lastGeneratedAt,omitempty"`
}

type TemplateSnapshot struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Metadata    MetadataSnapshot       `json:"metadata"`
	TimeConfig  TimeConfigSnapshot     `json:"timeConfig"`
	Reminders   ReminderConfigSnapshot `json:"reminderConfig"`
	Policy      SchedulingPolicy       `json:"schedulingPolicy"`
	Status      TemplateStatus         `json:"status"`
	Analytics   AnalyticsSnapshot      `json:"analytics"`
	CreatedAt   DateTime               `json:"createdAt"`
	UpdatedAt   DateTime               `json:"updatedAt"`
}

type SnoozeSnapshot struct {
	SnoozedAt   DateTime `json:"snoozedAt"`
	SnoozeUntil DateTime `json:"snoozeUntil"`
	Reason      string   `json:"reason,omitempty"`
}

type StatusAlertSnapshot struct {
	AlertID       string           `json:"alertId"`
	Channel       Channel          `json:"channel,omitempty"`
	Message       string           `json:"message,omitempty"`
	Status        AlertStatus      `json:"status"`
	ScheduledTime DateTime         `json:"scheduledTime"`
	TriggeredAt   *DateTime        `json:"triggeredAt,omitempty"`
	DismissedAt   *DateTime        `json:"dismissedAt,omitempty"`
	SnoozeHistory []SnoozeSnapshot `json:"snoozeHistory,omitempty"`
}

type EventSnapshot struct {
	Type   EventType         `json:"type"`
	At     DateTime          `json:"at"`
	Detail map[string]string `json:"detail,omitempty"`
}

type InstanceSnapshot struct {
	ID                    string                `json:"id"`
	TemplateID            string                `json:"templateId"`
	Title                 string                `json:"title"`
	Description           string                `json:"description,omitempty"`
	Metadata              MetadataSnapshot      `json:"metadata"`
	AllDay                bool                  `json:"allDay,omitempty"`
	ScheduledTime         DateTime              `json:"scheduledTime"`
	OriginalScheduledTime DateTime              `json:"originalScheduledTime"`
	EndTime               *DateTime             `json:"endTime,omitempty"`
	Status                InstanceStatus        `json:"status"`
	StartedAt             *DateTime             `json:"startedAt,omitempty"`
	CompletedAt           *DateTime             `json:"completedAt,omitempty"`
	CancelledAt           *DateTime             `json:"cancelledAt,omitempty"`
	ActualDurationMs      *int64                `json:"actualDurationMs,omitempty"`
	RescheduleCount       int                   `json:"rescheduleCount,omitempty"`
	RemindersEnabled      bool                  `json:"remindersEnabled"`
	Alerts                []StatusAlertSnapshot `json:"alerts,omitempty"`
	GlobalSnoozeCount     int                   `json:"globalSnoozeCount"`
	Events                []EventSnapshot       `json:"events,omitempty"`
	CreatedAt             DateTime              `json:"createdAt"`
	UpdatedAt             DateTime              `json:"updatedAt"`
}

func (t *TaskTemplate) Snapshot() TemplateSnapshot {
	return TemplateSnapshot{
		ID:          t.id,
		Title:       t.title,
		Description: t.description,
		Metadata:    metadataSnapshot(t.metadata),
		TimeConfig:  timeConfigSnapshot(t.timeConfig),
		Reminders:   reminderConfigSnapshot(t.reminders),
		Policy:      t.policy,
		Status:      t.status,
		Analytics: AnalyticsSnapshot{
			InstancesGenerated: t.analytics.InstancesGenerated,
			Completed:          t.analytics.Completed,
			Cancelled:          t.analytics.Cancelled,
			Rescheduled:        t.analytics.Rescheduled,
			Snoozed:            t.analytics.Snoozed,
			LastGeneratedAt:    optionalDateTime(t.analytics.LastGeneratedAt),
		},
		CreatedAt: ToDateTime(t.createdAt),
		UpdatedAt: ToDateTime(t.updatedAt),
	}
}

func TemplateFromPersistence(s TemplateSnapshot) (*TaskTemplate, error) {
	tc, err := s.TimeConfig.restore()
	if err != nil {
		return nil, err
	}
	rc, err := s.Reminders.restore()
	if err != nil {
		return nil, err
	}
	created, err := s.CreatedAt.Resolve()
	if err != nil {
		return nil, err
	}
	updated, err := s.UpdatedAt.Resolve()
	if err != nil {
		return nil, err
	}
	last, err := resolveOptional(s.Analytics.LastGeneratedAt)
	if err != nil {
		return nil, err
	}
	t := &TaskTemplate{
		id:          s.ID,
		title:       s.Title,
		description: s.Description,
		metadata:    s.Metadata.restore(),
		timeConfig:  tc,
		reminders:   rc,
		policy:      s.Policy,
		status:      s.Status,
		analytics: Analytics{
			InstancesGenerated: s.Analytics.InstancesGenerated,
			Completed:          s.Analytics.Completed,
			Cancelled:          s.Analytics.Cancelled,
			Rescheduled:        s.Analytics.Rescheduled,
			Snoozed:            s.Analytics.Snoozed,
			LastGeneratedAt:    last,
		},
		createdAt: created,
		updatedAt: updated,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (i *TaskInstance) Snapshot() InstanceSnapshot {
	out := InstanceSnapshot{
		ID:                    i.id,
		TemplateID:            i.templateID,
		Title:                 i.title,
		Description:           i.description,
		Metadata:              metadataSnapshot(i.metadata),
		AllDay:                i.allDay,
		ScheduledTime:         ToDateTime(i.scheduledTime),
		OriginalScheduledTime: ToDateTime(i.originalTime),
		EndTime:               optionalDateTime(i.endTime),
		Status:                i.status,
		StartedAt:             optionalDateTime(i.startedAt),
		CompletedAt:           optionalDateTime(i.completedAt),
		CancelledAt:           optionalDateTime(i.cancelledAt),
		RescheduleCount:       i.reschedules,
		RemindersEnabled:      i.reminder.Enabled,
		GlobalSnoozeCount:     i.reminder.GlobalSnoozeCount,
		CreatedAt:             ToDateTime(i.createdAt),
		UpdatedAt:             ToDateTime(i.updatedAt),
	}
	if i.actualDur != nil {
		ms := i.actualDur.Milliseconds()
		out.ActualDurationMs = &ms
	}
	for _, a := range i.reminder.Alerts {
		as := StatusAlertSnapshot{
			AlertID:       a.AlertID,
			Channel:       a.Channel,
			Message:       a.Message,
			Status:        a.Status,
			ScheduledTime: ToDateTime(a.ScheduledTime),
			TriggeredAt:   optionalDateTime(a.TriggeredAt),
			DismissedAt:   optionalDateTime(a.DismissedAt),
		}
		for _, h := range a.SnoozeHistory {
			as.SnoozeHistory = append(as.SnoozeHistory, SnoozeSnapshot{
				SnoozedAt:   ToDateTime(h.SnoozedAt),
				SnoozeUntil: ToDateTime(h.SnoozeUntil),
				Reason:      h.Reason,
			})
		}
		out.Alerts = append(out.Alerts, as)
	}
	for _, ev := range i.events.Items() {
		out.Events = append(out.Events, EventSnapshot{Type: ev.Type, At: ToDateTime(ev.At), Detail: ev.Detail})
	}
	return out
}

func InstanceFromPersistence(s InstanceSnapshot) (*TaskInstance, error) {
	if s.ID == "" {
		return nil, invalid("instance.id", "required")
	}
	if s.TemplateID == "" {
		return nil, invalid("instance.templateId", "required")
	}
	if !s.Status.IsValid() {
		return nil, invalid("instance.status", "unknown status %q", s.Status)
	}
	var firstErr error
	resolve := func(d DateTime) time.Time {
		t, err := d.Resolve()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return t
	}
	optional := func(d *DateTime) *time.Time {
		t, err := resolveOptional(d)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return t
	}
	i := &TaskInstance{
		id:            s.ID,
		templateID:    s.TemplateID,
		title:         s.Title,
		description:   s.Description,
		metadata:      s.Metadata.restore(),
		allDay:        s.AllDay,
		scheduledTime: resolve(s.ScheduledTime),
		originalTime:  resolve(s.OriginalScheduledTime),
		endTime:       optional(s.EndTime),
		status:        s.Status,
		startedAt:     optional(s.StartedAt),
		completedAt:   optional(s.CompletedAt),
		cancelledAt:   optional(s.CancelledAt),
		reschedules:   s.RescheduleCount,
		reminder: ReminderStatus{
			Enabled:           s.RemindersEnabled,
			GlobalSnoozeCount: s.GlobalSnoozeCount,
		},
		events:    ring.New[LifecycleEvent](EventLogCapacity),
		createdAt: resolve(s.CreatedAt),
		updatedAt: resolve(s.UpdatedAt),
	}
	if s.ActualDurationMs != nil {
		d := time.Duration(*s.ActualDurationMs) * time.Millisecond
		i.actualDur = &d
	}
	for _, as := range s.Alerts {
		if !as.Status.IsValid() {
			return nil, invalid("instance.alerts.status", "unknown status %q", as.Status)
		}
		a := ReminderStatusAlert{
			AlertID:       as.AlertID,
			Channel:       as.Channel,
			Message:       as.Message,
			Status:        as.Status,
			ScheduledTime: resolve(as.ScheduledTime),
			TriggeredAt:   optional(as.TriggeredAt),
			DismissedAt:   optional(as.DismissedAt),
		}
		for _, h := range as.SnoozeHistory {
			a.SnoozeHistory = append(a.SnoozeHistory, SnoozeRecord{
				SnoozedAt:   resolve(h.SnoozedAt),
				SnoozeUntil: resolve(h.SnoozeUntil),
				Reason:      h.Reason,
			})
		}
		i.reminder.Alerts = append(i.reminder.Alerts, a)
	}
	for _, ev := range s.Events {
		i.events.Push(LifecycleEvent{Type: ev.Type, At: resolve(ev.At), Detail: ev.Detail})
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := i.validate(); err != nil {
		return nil, err
	}
	return i, nil
}

func (i *TaskInstance) validate() error {
	switch i.status {
	case InstanceCompleted:
		if i.completedAt == nil {
			return invalid("instance.completedAt", "required when status is %s", i.status)
		}
	case InstanceCancelled:
		if i.cancelledAt == nil {
			return invalid("instance.cancelledAt", "required when status is %s", i.status)
		}
	case InstanceInProgress:
		if i.startedAt == nil {
			return invalid("instance.startedAt", "required when status is %s", i.status)
		}
	}
	if i.status != InstanceCompleted && i.actualDur != nil {
		return invalid("instance.actualDuration", "set while status is %s", i.status)
	}
	if i.reminder.GlobalSnoozeCount < 0 {
		return invalid("instance.globalSnoozeCount", "must not be negative")
	}
	seen := make(map[string]bool, len(i.reminder.Alerts))
	for _, a := range i.reminder.Alerts {
		if a.AlertID == "" || seen[a.AlertID] {
			return invalid("instance.alerts", "missing or duplicate alert id %q", a.AlertID)
		}
		seen[a.AlertID] = true
		if a.Status == AlertSnoozed && len(a.SnoozeHistory) == 0 {
			return invalid("instance.alerts", "snoozed alert %q has no snooze history", a.AlertID)
		}
	}
	return nil
}

func metadataSnapshot(m Metadata) MetadataSnapshot {
	return MetadataSnapshot{
		Category:            m.Category,
		Tags:                m.Tags,
		EstimatedDurationMs: m.EstimatedDuration.Milliseconds(),
		KeyResultLinks:      m.KeyResultLinks,
	}
}

func (s MetadataSnapshot) restore() Metadata {
	return Metadata{
		Category:          s.Category,
		Tags:              s.Tags,
		EstimatedDuration: time.Duration(s.EstimatedDurationMs) * time.Millisecond,
		KeyResultLinks:    s.KeyResultLinks,
	}
}

func timeConfigSnapshot(c TimeConfig) TimeConfigSnapshot {
	out := TimeConfigSnapshot{Timezone: c.Timezone, Recurrence: recurrenceSnapshot(c.Recurrence)}
	switch b := c.Base.(type) {
	case AllDay:
		out.Type = TimeAllDay
		out.Start = ToDate(b.Date)
	case Timed:
		out.Type = TimeTimed
		out.Start = ToDateTime(b.Start)
		out.DurationMs = b.Duration.Milliseconds()
	case TimeRange:
		out.Type = TimeTimeRange
		out.Start = ToDateTime(b.Start)
		end := ToDateTime(b.End)
		out.End = &end
	}
	return out
}

func (s TimeConfigSnapshot) restore() (TimeConfig, error) {
	start, err := s.Start.Resolve()
	if err != nil {
		return TimeConfig{}, err
	}
	rule, err := s.Recurrence.restore()
	if err != nil {
		return TimeConfig{}, err
	}
	out := TimeConfig{Timezone: s.Timezone, Recurrence: rule}
	switch s.Type {
	case TimeAllDay:
		out.Base = AllDay{Date: start}
	case TimeTimed:
		out.Base = Timed{Start: start, Duration: time.Duration(s.DurationMs) * time.Millisecond}
	case TimeTimeRange:
		end, err := resolveOptional(s.End)
		if err != nil {
			return TimeConfig{}, err
		}
		if end == nil {
			return TimeConfig{}, invalid("timeConfig.baseTime.end", "required for %s", TimeTimeRange)
		}
		out.Base = TimeRange{Start: start, End: *end}
	default:
		return TimeConfig{}, invalid("timeConfig.type", "unknown type %q", s.Type)
	}
	return out, nil
}

func recurrenceSnapshot(r RecurrenceRule) RecurrenceSnapshot {
	out := RecurrenceSnapshot{
		Type:      r.Type,
		Interval:  r.Interval,
		EndType:   r.End.Type,
		EndCount:  r.End.Count,
		MonthDays: r.Config.MonthDays,
	}
	if r.End.Type == EndDate && !r.End.Date.IsZero() {
		d := ToDateTime(r.End.Date)
		out.EndDate = &d
	}
	for _, w := range r.Config.Weekdays {
		out.Weekdays = append(out.Weekdays, int(w))
	}
	for _, m := range r.Config.Months {
		out.Months = append(out.Months, int(m))
	}
	return out
}

func (s RecurrenceSnapshot) restore() (RecurrenceRule, error) {
	end, err := resolveOptional(s.EndDate)
	if err != nil {
		return RecurrenceRule{}, err
	}
	out := RecurrenceRule{
		Type:     s.Type,
		Interval: s.Interval,
		End:      EndCondition{Type: s.EndType, Count: s.EndCount},
		Config:   RecurrenceConfig{MonthDays: s.MonthDays},
	}
	if end != nil {
		out.End.Date = *end
	}
	for _, w := range s.Weekdays {
		out.Config.Weekdays = append(out.Config.Weekdays, time.Weekday(w))
	}
	for _, m := range s.Months {
		out.Config.Months = append(out.Config.Months, time.Month(m))
	}
	return out.Normalize(), nil
}

func reminderConfigSnapshot(c ReminderConfig) ReminderConfigSnapshot {
	out := ReminderConfigSnapshot{
		Enabled:          c.Enabled,
		SnoozeEnabled:    c.Snooze.Enabled,
		SnoozeIntervalMs: c.Snooze.Interval.Milliseconds(),
		SnoozeMaxCount:   c.Snooze.MaxCount,
	}
	for _, a := range c.Alerts {
		as := AlertSnapshot{
			ID:            a.ID,
			Timing:        a.Timing.Kind,
			MinutesBefore: a.Timing.MinutesBefore,
			Channel:       a.Channel,
			Message:       a.Message,
		}
		if a.Timing.Kind == TimingAbsolute {
			at := ToDateTime(a.Timing.At)
			as.At = &at
		}
		out.Alerts = append(out.Alerts, as)
	}
	return out
}

func (s ReminderConfigSnapshot) restore() (ReminderConfig, error) {
	out := ReminderConfig{
		Enabled: s.Enabled,
		Snooze: SnoozePolicy{
			Enabled:  s.SnoozeEnabled,
			Interval: time.Duration(s.SnoozeIntervalMs) * time.Millisecond,
			MaxCount: s.SnoozeMaxCount,
		},
	}
	for _, as := range s.Alerts {
		timing := ReminderTiming{Kind: as.Timing, MinutesBefore: as.MinutesBefore}
		at, err := resolveOptional(as.At)
		if err != nil {
			return ReminderConfig{}, err
		}
		if at != nil {
			timing.At = *at
		}
		out.Alerts = append(out.Alerts, ReminderAlert{ID: as.ID, Timing: timing, Channel: as.Channel, Message: as.Message})
	}
	return out, nil
}
