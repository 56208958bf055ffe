// Package update holds the interactive watch screen: the open agenda on the
// left, fired alerts on the right, and a command palette.
package update

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
	"github.com/sandeepkv93/taskd/internal/views"
)

// Backend is the slice of the orchestration service the watch screen drives.
type Backend interface {
	Agenda(ctx context.Context, from, to time.Time) ([]*model.TaskInstance, error)
	GetInstance(ctx context.Context, id string) (*model.TaskInstance, error)
	Start(ctx context.Context, id string) (*model.TaskInstance, error)
	Complete(ctx context.Context, id string) (*model.TaskInstance, error)
	Cancel(ctx context.Context, id, reason string) (*model.TaskInstance, error)
	Undo(ctx context.Context, id string) (*model.TaskInstance, error)
	Reschedule(ctx context.Context, id string, newTime time.Time, reason string) (*model.TaskInstance, error)
	SnoozeAlert(ctx context.Context, instanceID, alertID string, until time.Time, reason string) (*model.TaskInstance, error)
	DismissAlert(ctx context.Context, instanceID, alertID string) (*model.TaskInstance, error)
}

type Pane string

const (
	PaneAgenda Pane = "agenda"
	PaneAlerts Pane = "alerts"
)

// Subjects accepted by "show".
const (
	SubjectToday   = "today"
	SubjectWeek    = "week"
	SubjectOverdue = "overdue"
)

const maxFired = 50

type StatusBar struct {
	Text    string
	IsError bool
}

type FilterState struct {
	Subject string
	Tag     string
}

type PaletteState struct {
	Active bool
	Input  string
}

type Options struct {
	Backend  Backend
	Alerts   <-chan notify.Notification
	Location *time.Location
	Clock    model.Clock
	Refresh  time.Duration
	Context  context.Context
}

type Model struct {
	Pane        Pane
	Items       []*model.TaskInstance
	Cursor      int
	Fired       []views.FiredAlert
	AlertCursor int
	Filter      FilterState
	Palette     PaletteState
	HelpVisible bool
	Status      StatusBar
	Keys        KeyMap
	LastError   error
	Quitting    bool
	Width       int

	backend      Backend
	alerts       <-chan notify.Notification
	loc          *time.Location
	clock        model.Clock
	refresh      time.Duration
	ctx          context.Context
	commandInput textinput.Model
	helpModel    help.Model
}

func NewModel(opts Options) Model {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = model.SystemClock
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 30 * time.Second
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	input := textinput.New()
	input.Prompt = "/"
	input.Placeholder = "complete selected"
	input.CharLimit = 200

	return Model{
		Pane:         PaneAgenda,
		Filter:       FilterState{Subject: SubjectToday},
		Keys:         DefaultKeyMap(),
		backend:      opts.Backend,
		alerts:       opts.Alerts,
		loc:          opts.Location,
		clock:        opts.Clock,
		refresh:      opts.Refresh,
		ctx:          opts.Context,
		commandInput: input,
		helpModel:    help.New(),
	}
}

// Selected returns the highlighted agenda instance, if any.
func (m Model) Selected() *model.TaskInstance {
	if m.Cursor < 0 || m.Cursor >= len(m.Items) {
		return nil
	}
	return m.Items[m.Cursor]
}

// SelectedAlert returns the highlighted fired alert, if any.
func (m Model) SelectedAlert() (views.FiredAlert, bool) {
	if m.AlertCursor < 0 || m.AlertCursor >= len(m.Fired) {
		return views.FiredAlert{}, false
	}
	return m.Fired[m.AlertCursor], true
}

// window is the agenda range for the current subject.
func (m Model) window() (time.Time, time.Time) {
	now := m.clock.Now().In(m.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.loc)
	switch m.Filter.Subject {
	case SubjectWeek:
		return day, day.AddDate(0, 0, 7)
	case SubjectOverdue:
		return day.AddDate(0, 0, -90), now
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

// visible applies the subject and tag filters to a loaded agenda.
func (m Model) visible(items []*model.TaskInstance) []*model.TaskInstance {
	out := make([]*model.TaskInstance, 0, len(items))
	for _, inst := range items {
		if m.Filter.Subject == SubjectOverdue && inst.Status() != model.InstanceOverdue {
			continue
		}
		if m.Filter.Tag != "" && !hasTag(inst.Metadata().Tags, m.Filter.Tag) {
			continue
		}
		out = append(out, inst)
	}
	return out
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func (m *Model) clampCursors() {
	if m.Cursor >= len(m.Items) {
		m.Cursor = len(m.Items) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	if m.AlertCursor >= len(m.Fired) {
		m.AlertCursor = len(m.Fired) - 1
	}
	if m.AlertCursor < 0 {
		m.AlertCursor = 0
	}
}

// dropFired removes fired entries for the alert, or for every alert of the
// instance when alertID is empty.
func (m *Model) dropFired(instanceID, alertID string) {
	kept := m.Fired[:0]
	for _, f := range m.Fired {
		if f.InstanceID == instanceID && (alertID == "" || f.AlertID == alertID) {
			continue
		}
		kept = append(kept, f)
	}
	m.Fired = kept
	m.clampCursors()
}
