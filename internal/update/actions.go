package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
)

type AlertMsg struct {
	Notification notify.Notification
}

// AlertsClosedMsg reports that the notification subscription ended.
type AlertsClosedMsg struct{}

type AgendaMsg struct {
	Items []*model.TaskInstance
	Err   error
}

// ActionMsg reports a finished backend call. A non-empty InstanceID clears
// the matching fired alerts on success.
type ActionMsg struct {
	Text       string
	Err        error
	InstanceID string
	AlertID    string
}

type RefreshMsg struct{}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

var errNoBackend = errors.New("watch: no backend configured")

func waitForAlert(ch <-chan notify.Notification) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return AlertsClosedMsg{}
		}
		return AlertMsg{Notification: n}
	}
}

func refreshAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return RefreshMsg{} })
}

func (m Model) loadAgenda() tea.Cmd {
	backend, ctx := m.backend, m.ctx
	from, to := m.window()
	return func() tea.Msg {
		if backend == nil {
			return AgendaMsg{Err: errNoBackend}
		}
		items, err := backend.Agenda(ctx, from, to)
		return AgendaMsg{Items: items, Err: err}
	}
}

// act runs fn against the backend off the UI goroutine.
func (m Model) act(fn func(ctx context.Context, b Backend) (ActionMsg, error)) tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		if backend == nil {
			return ActionMsg{Err: errNoBackend}
		}
		msg, err := fn(ctx, backend)
		if err != nil {
			return ActionMsg{Err: err}
		}
		return msg
	}
}

type lifecycleFunc func(ctx context.Context, b Backend, id string) (*model.TaskInstance, error)

var lifecycle = map[string]lifecycleFunc{
	"started": func(ctx context.Context, b Backend, id string) (*model.TaskInstance, error) {
		return b.Start(ctx, id)
	},
	"completed": func(ctx context.Context, b Backend, id string) (*model.TaskInstance, error) {
		return b.Complete(ctx, id)
	},
	"cancelled": func(ctx context.Context, b Backend, id string) (*model.TaskInstance, error) {
		return b.Cancel(ctx, id, "cancelled from watch")
	},
	"reopened": func(ctx context.Context, b Backend, id string) (*model.TaskInstance, error) {
		return b.Undo(ctx, id)
	},
}

func (m Model) transition(verb, instanceID string) tea.Cmd {
	fn := lifecycle[verb]
	clearFired := verb == "completed" || verb == "cancelled"
	return m.act(func(ctx context.Context, b Backend) (ActionMsg, error) {
		inst, err := fn(ctx, b, instanceID)
		if err != nil {
			return ActionMsg{}, err
		}
		msg := ActionMsg{Text: fmt.Sprintf("%s %s", verb, inst.Title())}
		if clearFired {
			msg.InstanceID = inst.ID()
		}
		return msg, nil
	})
}

func (m Model) snooze(instanceID, alertID string, d time.Duration) tea.Cmd {
	clock := m.clock
	return m.act(func(ctx context.Context, b Backend) (ActionMsg, error) {
		alertID, err := resolveAlert(ctx, b, instanceID, alertID)
		if err != nil {
			return ActionMsg{}, err
		}
		var until time.Time
		if d > 0 {
			until = clock.Now().Add(d)
		}
		inst, err := b.SnoozeAlert(ctx, instanceID, alertID, until, "")
		if err != nil {
			return ActionMsg{}, err
		}
		a, _ := inst.Alert(alertID)
		at, _ := a.NextFireAt()
		return ActionMsg{
			Text:       fmt.Sprintf("snoozed %s until %s", inst.Title(), at.Format("15:04")),
			InstanceID: instanceID,
			AlertID:    alertID,
		}, nil
	})
}

func (m Model) dismiss(instanceID, alertID string) tea.Cmd {
	return m.act(func(ctx context.Context, b Backend) (ActionMsg, error) {
		alertID, err := resolveAlert(ctx, b, instanceID, alertID)
		if err != nil {
			return ActionMsg{}, err
		}
		inst, err := b.DismissAlert(ctx, instanceID, alertID)
		if err != nil {
			return ActionMsg{}, err
		}
		return ActionMsg{Text: "dismissed " + inst.Title(), InstanceID: instanceID, AlertID: alertID}, nil
	})
}

// resolveAlert picks the first triggered alert when none is named.
func resolveAlert(ctx context.Context, b Backend, instanceID, alertID string) (string, error) {
	if alertID != "" {
		return alertID, nil
	}
	inst, err := b.GetInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	for _, a := range inst.Reminder().Alerts {
		if a.Status == model.AlertTriggered {
			return a.AlertID, nil
		}
	}
	return "", fmt.Errorf("%s has no triggered alert", inst.Title())
}
