package update

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/taskd/internal/views"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadAgenda(), waitForAlert(m.alerts), refreshAfter(m.refresh))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = typed.Width
		m.helpModel.Width = typed.Width
		return m, nil
	case tea.KeyMsg:
		if m.Palette.Active {
			return m.handlePaletteKey(typed)
		}
		return m.handleKey(typed)
	case AlertMsg:
		n := typed.Notification
		m.Fired = append([]views.FiredAlert{{
			InstanceID: n.InstanceID,
			AlertID:    n.AlertID,
			Title:      n.Title,
			Message:    n.Message,
			FiredAt:    n.FiredAt.In(m.loc),
			Refire:     n.Refire,
		}}, m.Fired...)
		if len(m.Fired) > maxFired {
			m.Fired = m.Fired[:maxFired]
		}
		m.clampCursors()
		m.Status = StatusBar{Text: "reminder: " + n.Text()}
		return m, tea.Batch(waitForAlert(m.alerts), m.loadAgenda())
	case AlertsClosedMsg:
		m.alerts = nil
		m.Status = StatusBar{Text: "notification stream closed", IsError: true}
		return m, nil
	case AgendaMsg:
		if typed.Err != nil {
			m.LastError = typed.Err
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
			return m, nil
		}
		selected := ""
		if inst := m.Selected(); inst != nil {
			selected = inst.ID()
		}
		m.Items = m.visible(typed.Items)
		for i, inst := range m.Items {
			if inst.ID() == selected {
				m.Cursor = i
			}
		}
		m.clampCursors()
		return m, nil
	case ActionMsg:
		if typed.Err != nil {
			m.LastError = typed.Err
			text := typed.Err.Error()
			if typed.Text != "" {
				text = fmt.Sprintf("%s (%v)", typed.Text, typed.Err)
			}
			m.Status = StatusBar{Text: text, IsError: true}
			return m, m.loadAgenda()
		}
		if typed.InstanceID != "" {
			m.dropFired(typed.InstanceID, typed.AlertID)
		}
		m.Status = StatusBar{Text: typed.Text}
		return m, m.loadAgenda()
	case RefreshMsg:
		return m, tea.Batch(m.loadAgenda(), refreshAfter(m.refresh))
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.Keys
	switch {
	case key.Matches(msg, k.Quit):
		m.Quitting = true
		return m, tea.Quit
	case key.Matches(msg, k.Help):
		m.HelpVisible = !m.HelpVisible
		m.helpModel.ShowAll = m.HelpVisible
		return m, nil
	case key.Matches(msg, k.Palette):
		return m.openPalette(), nil
	case key.Matches(msg, k.Switch):
		if m.Pane == PaneAgenda {
			m.Pane = PaneAlerts
		} else {
			m.Pane = PaneAgenda
		}
		return m, nil
	case key.Matches(msg, k.Up):
		m.move(-1)
		return m, nil
	case key.Matches(msg, k.Down):
		m.move(1)
		return m, nil
	case key.Matches(msg, k.Refresh):
		return m, m.loadAgenda()
	case key.Matches(msg, k.Start):
		return m.onSelected("started")
	case key.Matches(msg, k.Complete):
		return m.onSelected("completed")
	case key.Matches(msg, k.Cancel):
		return m.onSelected("cancelled")
	case key.Matches(msg, k.Undo):
		return m.onSelected("reopened")
	case key.Matches(msg, k.Snooze), key.Matches(msg, k.Dismiss):
		a, ok := m.SelectedAlert()
		if !ok || m.Pane != PaneAlerts {
			m.Status = StatusBar{Text: "select a fired alert first (tab)", IsError: true}
			return m, nil
		}
		if key.Matches(msg, k.Snooze) {
			return m, m.snooze(a.InstanceID, a.AlertID, 0)
		}
		return m, m.dismiss(a.InstanceID, a.AlertID)
	}
	return m, nil
}

func (m *Model) move(delta int) {
	if m.Pane == PaneAlerts {
		m.AlertCursor += delta
	} else {
		m.Cursor += delta
	}
	m.clampCursors()
}

func (m Model) onSelected(verb string) (tea.Model, tea.Cmd) {
	id, err := m.targetID("selected")
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}
	return m, m.transition(verb, id)
}
