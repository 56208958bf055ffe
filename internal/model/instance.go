package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/taskd/internal/ring"
)

type InstanceStatus string

const (
	InstancePending    InstanceStatus = "pending"
	InstanceInProgress InstanceStatus = "inProgress"
	InstanceCompleted  InstanceStatus = "completed"
	InstanceCancelled  InstanceStatus = "cancelled"
	InstanceOverdue    InstanceStatus = "overdue"
)

func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstancePending, InstanceInProgress, InstanceCompleted, InstanceCancelled, InstanceOverdue:
		return true
	default:
		return false
	}
}

// EventLogCapacity is how many lifecycle events an instance retains.
const EventLogCapacity = 50

type EventType string

const (
	EventCreated          EventType = "created"
	EventStarted          EventType = "started"
	EventCompleted        EventType = "completed"
	EventCancelled        EventType = "cancelled"
	EventUndone           EventType = "undone"
	EventOverdue          EventType = "overdue"
	EventRescheduled      EventType = "rescheduled"
	EventReminderArmed    EventType = "reminder.armed"
	EventReminderDisarmed EventType = "reminder.disarmed"
	EventReminderFired    EventType = "reminder.triggered"
	EventReminderDismiss  EventType = "reminder.dismissed"
	EventReminderSnoozed  EventType = "reminder.snoozed"
)

type LifecycleEvent struct {
	Type   EventType
	At     time.Time
	Detail map[string]string
}

type InstanceInput struct {
	ID            string
	TemplateID    string
	Title         string
	Description   string
	Metadata      Metadata
	ScheduledTime time.Time
	EndTime       *time.Time
	AllDay        bool
}

// TaskInstance is one concrete occurrence of a template. It refers to its
// template by id only. Methods perform no locking; callers serialize writes
// per instance id.
type TaskInstance struct {
	id            string
	templateID    string
	title         string
	description   string
	metadata      Metadata
	allDay        bool
	scheduledTime time.Time
	originalTime  time.Time
	endTime       *time.Time
	status        InstanceStatus
	startedAt     *time.Time
	completedAt   *time.Time
	cancelledAt   *time.Time
	actualDur     *time.Duration
	reschedules   int
	reminder      ReminderStatus
	events        *ring.Buffer[LifecycleEvent]
	createdAt     time.Time
	updatedAt     time.Time
}

func NewInstance(in InstanceInput, now time.Time) (*TaskInstance, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(in.TemplateID) == "" {
		return nil, invalid("instance.templateId", "required")
	}
	if in.ScheduledTime.IsZero() {
		return nil, invalid("instance.scheduledTime", "required")
	}
	if in.EndTime != nil && in.EndTime.Before(in.ScheduledTime) {
		return nil, invalid("instance.endTime", "precedes scheduled time")
	}
	i := &TaskInstance{
		id:            id,
		templateID:    in.TemplateID,
		title:         in.Title,
		description:   in.Description,
		metadata:      in.Metadata.clone(),
		allDay:        in.AllDay,
		scheduledTime: in.ScheduledTime,
		originalTime:  in.ScheduledTime,
		endTime:       cloneTime(in.EndTime),
		status:        InstancePending,
		events:        ring.New[LifecycleEvent](EventLogCapacity),
		createdAt:     now,
		updatedAt:     now,
	}
	i.record(EventCreated, now, nil)
	return i, nil
}

func (i *TaskInstance) ID() string                       { return i.id }
func (i *TaskInstance) TemplateID() string               { return i.templateID }
func (i *TaskInstance) Title() string                    { return i.title }
func (i *TaskInstance) Description() string              { return i.description }
func (i *TaskInstance) Metadata() Metadata               { return i.metadata.clone() }
func (i *TaskInstance) AllDay() bool                     { return i.allDay }
func (i *TaskInstance) ScheduledTime() time.Time         { return i.scheduledTime }
func (i *TaskInstance) OriginalScheduledTime() time.Time { return i.originalTime }
func (i *TaskInstance) EndTime() *time.Time              { return cloneTime(i.endTime) }
func (i *TaskInstance) Status() InstanceStatus           { return i.status }
func (i *TaskInstance) StartedAt() *time.Time            { return cloneTime(i.startedAt) }
func (i *TaskInstance) CompletedAt() *time.Time          { return cloneTime(i.completedAt) }
func (i *TaskInstance) CancelledAt() *time.Time          { return cloneTime(i.cancelledAt) }
func (i *TaskInstance) RescheduleCount() int             { return i.reschedules }
func (i *TaskInstance) Reminder() ReminderStatus         { return i.reminder.clone() }
func (i *TaskInstance) Events() []LifecycleEvent         { return i.events.Items() }
func (i *TaskInstance) CreatedAt() time.Time             { return i.createdAt }
func (i *TaskInstance) UpdatedAt() time.Time             { return i.updatedAt }

func (i *TaskInstance) ActualDuration() (time.Duration, bool) {
	if i.actualDur == nil {
		return 0, false
	}
	return *i.actualDur, true
}

// IsOpen reports whether the instance can still be worked on.
func (i *TaskInstance) IsOpen() bool {
	return i.status == InstancePending || i.status == InstanceInProgress
}

func (i *TaskInstance) record(t EventType, at time.Time, detail map[string]string) {
	i.events.Push(LifecycleEvent{Type: t, At: at, Detail: detail})
	i.updatedAt = at
}

func (i *TaskInstance) illegal(event, reason string) error {
	return &TransitionError{Entity: "instance", From: string(i.status), Event: event, Reason: reason}
}

func (i *TaskInstance) Start(now time.Time) error {
	if i.status != InstancePending {
		return i.illegal("start", "")
	}
	i.status = InstanceInProgress
	at := now
	i.startedAt = &at
	i.record(EventStarted, now, nil)
	return nil
}

func (i *TaskInstance) Complete(now time.Time) error {
	if !i.IsOpen() {
		return i.illegal("complete", "")
	}
	i.status = InstanceCompleted
	at := now
	i.completedAt = &at
	i.actualDur = nil
	var detail map[string]string
	if i.startedAt != nil {
		d := now.Sub(*i.startedAt)
		i.actualDur = &d
		detail = map[string]string{"actualDuration": d.String()}
	}
	i.record(EventCompleted, now, detail)
	return nil
}

func (i *TaskInstance) Cancel(now time.Time, reason string) error {
	if !i.IsOpen() {
		return i.illegal("cancel", "")
	}
	i.status = InstanceCancelled
	at := now
	i.cancelledAt = &at
	var detail map[string]string
	if reason != "" {
		detail = map[string]string{"reason": reason}
	}
	i.record(EventCancelled, now, detail)
	return nil
}

func (i *TaskInstance) Undo(now time.Time) error {
	if i.status != InstanceCompleted {
		return i.illegal("undo", "")
	}
	i.status = InstancePending
	i.startedAt = nil
	i.completedAt = nil
	i.actualDur = nil
	i.record(EventUndone, now, nil)
	return nil
}

// MarkOverdue is system driven; it applies only while pending and past due.
func (i *TaskInstance) MarkOverdue(now time.Time) error {
	if i.status != InstancePending {
		return i.illegal("mark overdue", "")
	}
	if !now.After(i.scheduledTime) {
		return i.illegal("mark overdue", "scheduled time has not passed")
	}
	i.status = InstanceOverdue
	i.record(EventOverdue, now, nil)
	return nil
}

// Reschedule moves the occurrence. The delay bound is measured from the
// original scheduled time, not from the latest reschedule. On any error the
// instance is left untouched.
func (i *TaskInstance) Reschedule(newTime time.Time, reason string, policy SchedulingPolicy, now time.Time) error {
	if !i.IsOpen() {
		return i.illegal("reschedule", "")
	}
	if newTime.IsZero() {
		return invalid("reschedule.newTime", "required")
	}
	if !policy.AllowReschedule {
		return &PolicyViolation{Policy: "allowReschedule", Reason: "template does not allow rescheduling"}
	}
	limit := i.originalTime.AddDate(0, 0, policy.MaxDelayDays)
	if newTime.After(limit) {
		return &PolicyViolation{
			Policy: "maxDelayDays",
			Reason: newTime.Format(time.RFC3339) + " is beyond " + limit.Format(time.RFC3339),
		}
	}
	prev := i.scheduledTime
	if i.endTime != nil {
		end := i.endTime.Add(newTime.Sub(prev))
		i.endTime = &end
	}
	i.scheduledTime = newTime
	i.reschedules++
	detail := map[string]string{
		"from": prev.Format(time.RFC3339),
		"to":   newTime.Format(time.RFC3339),
	}
	if reason != "" {
		detail["reason"] = reason
	}
	i.record(EventRescheduled, now, detail)
	return nil
}

func (i *TaskInstance) Clone() *TaskInstance {
	out := *i
	out.metadata = i.metadata.clone()
	out.endTime = cloneTime(i.endTime)
	out.startedAt = cloneTime(i.startedAt)
	out.completedAt = cloneTime(i.completedAt)
	out.cancelledAt = cloneTime(i.cancelledAt)
	if i.actualDur != nil {
		d := *i.actualDur
		out.actualDur = &d
	}
	out.reminder = i.reminder.clone()
	out.events = i.events.Clone()
	return &out
}
