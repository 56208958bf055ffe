package model

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TemplateStatus string

const (
	TemplateDraft    TemplateStatus = "draft"
	TemplateActive   TemplateStatus = "active"
	TemplatePaused   TemplateStatus = "paused"
	TemplateArchived TemplateStatus = "archived"
)

func (s TemplateStatus) IsValid() bool {
	switch s {
	case TemplateDraft, TemplateActive, TemplatePaused, TemplateArchived:
		return true
	default:
		return false
	}
}

type SchedulingPolicy struct {
	AllowReschedule  bool `json:"allowReschedule"`
	MaxDelayDays     int  `json:"maxDelayDays"`
	SkipWeekends     bool `json:"skipWeekends,omitempty"`
	SkipHolidays     bool `json:"skipHolidays,omitempty"`
	WorkingHoursOnly bool `json:"workingHoursOnly,omitempty"`
}

func (p SchedulingPolicy) Validate() error {
	if p.MaxDelayDays < 0 {
		return invalid("schedulingPolicy.maxDelayDays", "must not be negative, got %d", p.MaxDelayDays)
	}
	return nil
}

// Metadata is copied verbatim onto every generated instance.
type Metadata struct {
	Category          string
	Tags              []string
	EstimatedDuration time.Duration
	KeyResultLinks    []string
}

func (m Metadata) clone() Metadata {
	out := m
	out.Tags = slices.Clone(m.Tags)
	out.KeyResultLinks = slices.Clone(m.KeyResultLinks)
	return out
}

type Analytics struct {
	InstancesGenerated int
	Completed          int
	Cancelled          int
	Rescheduled        int
	Snoozed            int
	LastGeneratedAt    *time.Time
}

type TemplateInput struct {
	ID          string
	Title       string
	Description string
	Metadata    Metadata
	TimeConfig  TimeConfig
	Reminders   ReminderConfig
	Policy      SchedulingPolicy
}

// TaskTemplate is the declarative definition instances are generated from.
// All mutation goes through its methods.
type TaskTemplate struct {
	id          string
	title       string
	description string
	metadata    Metadata
	timeConfig  TimeConfig
	reminders   ReminderConfig
	policy      SchedulingPolicy
	status      TemplateStatus
	analytics   Analytics
	createdAt   time.Time
	updatedAt   time.Time
}

func NewTemplate(in TemplateInput, now time.Time) (*TaskTemplate, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	t := &TaskTemplate{
		id:          id,
		title:       strings.TrimSpace(in.Title),
		description: in.Description,
		metadata:    in.Metadata.clone(),
		timeConfig:  in.TimeConfig,
		reminders:   in.Reminders.clone(),
		policy:      in.Policy,
		status:      TemplateDraft,
		createdAt:   now,
		updatedAt:   now,
	}
	t.timeConfig.Recurrence = t.timeConfig.Recurrence.Normalize()
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TaskTemplate) validate() error {
	if t.id == "" {
		return invalid("template.id", "required")
	}
	if t.title == "" {
		return invalid("template.title", "required")
	}
	if !t.status.IsValid() {
		return invalid("template.status", "unknown status %q", t.status)
	}
	if t.metadata.EstimatedDuration < 0 {
		return invalid("template.metadata.estimatedDuration", "must not be negative")
	}
	if err := t.timeConfig.Validate(); err != nil {
		return err
	}
	if err := t.reminders.Validate(); err != nil {
		return err
	}
	return t.policy.Validate()
}

func (t *TaskTemplate) ID() string                 { return t.id }
func (t *TaskTemplate) Title() string              { return t.title }
func (t *TaskTemplate) Description() string        { return t.description }
func (t *TaskTemplate) Metadata() Metadata         { return t.metadata.clone() }
func (t *TaskTemplate) TimeConfig() TimeConfig     { return t.timeConfig }
func (t *TaskTemplate) Reminders() ReminderConfig  { return t.reminders.clone() }
func (t *TaskTemplate) Policy() SchedulingPolicy   { return t.policy }
func (t *TaskTemplate) Status() TemplateStatus     { return t.status }
func (t *TaskTemplate) Analytics() Analytics       { return t.analytics }
func (t *TaskTemplate) CreatedAt() time.Time       { return t.createdAt }
func (t *TaskTemplate) UpdatedAt() time.Time       { return t.updatedAt }
func (t *TaskTemplate) Recurrence() RecurrenceRule { return t.timeConfig.Recurrence }
func (t *TaskTemplate) Anchor() time.Time          { return t.timeConfig.Anchor() }
func (t *TaskTemplate) SnoozePolicy() SnoozePolicy { return t.reminders.Snooze }
func (t *TaskTemplate) CanGenerate() bool          { return t.status == TemplateActive || t.status == TemplateDraft }
func (t *TaskTemplate) IsArchived() bool           { return t.status == TemplateArchived }

func (t *TaskTemplate) transition(event string) error {
	return &TransitionError{Entity: "template", From: string(t.status), Event: event}
}

func (t *TaskTemplate) Rename(title, description string, now time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalid("template.title", "required")
	}
	if t.IsArchived() {
		return t.transition("rename")
	}
	t.title = title
	t.description = description
	t.updatedAt = now
	return nil
}

func (t *TaskTemplate) UpdateMetadata(m Metadata, now time.Time) error {
	if t.IsArchived() {
		return t.transition("update metadata")
	}
	if m.EstimatedDuration < 0 {
		return invalid("template.metadata.estimatedDuration", "must not be negative")
	}
	t.metadata = m.clone()
	t.updatedAt = now
	return nil
}

func (t *TaskTemplate) UpdateTimeConfig(c TimeConfig, now time.Time) error {
	if t.IsArchived() {
		return t.transition("update time config")
	}
	c.Recurrence = c.Recurrence.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	t.timeConfig = c
	t.updatedAt = now
	return nil
}

func (t *TaskTemplate) UpdateReminderConfig(c ReminderConfig, now time.Time) error {
	if t.IsArchived() {
		return t.transition("update reminders")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	t.reminders = c.clone()
	t.updatedAt = now
	return nil
}

func (t *TaskTemplate) UpdateSchedulingPolicy(p SchedulingPolicy, now time.Time) error {
	if t.IsArchived() {
		return t.transition("update policy")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	t.policy = p
	t.updatedAt = now
	return nil
}

func (t *TaskTemplate) Activate(now time.Time) error {
	switch t.status {
	case TemplateDraft, TemplatePaused:
		t.status = TemplateActive
		t.updatedAt = now
		return nil
	default:
		return t.transition("activate")
	}
}

func (t *TaskTemplate) Pause(now time.Time) error {
	if t.status != TemplateActive {
		return t.transition("pause")
	}
	t.status = TemplatePaused
	t.updatedAt = now
	return nil
}

func (t *TaskTemplate) Archive(now time.Time) error {
	if t.status == TemplateArchived {
		return t.transition("archive")
	}
	t.status = TemplateArchived
	t.updatedAt = now
	return nil
}

func (t *TaskTemplate) RecordGenerated(n int, now time.Time) {
	if n <= 0 {
		return
	}
	t.analytics.InstancesGenerated += n
	at := now
	t.analytics.LastGeneratedAt = &at
	t.updatedAt = now
}

func (t *TaskTemplate) RecordCompleted()   { t.analytics.Completed++ }
func (t *TaskTemplate) RecordCancelled()   { t.analytics.Cancelled++ }
func (t *TaskTemplate) RecordRescheduled() { t.analytics.Rescheduled++ }
func (t *TaskTemplate) RecordSnoozed()     { t.analytics.Snoozed++ }

func (t *TaskTemplate) RecordUncompleted() {
	if t.analytics.Completed > 0 {
		t.analytics.Completed--
	}
}

func (t *TaskTemplate) Clone() *TaskTemplate {
	out := *t
	out.metadata = t.metadata.clone()
	out.reminders = t.reminders.clone()
	out.analytics.LastGeneratedAt = cloneTime(t.analytics.LastGeneratedAt)
	return &out
}
