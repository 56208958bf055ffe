package update

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/taskd/internal/commands"
)

func (m Model) openPalette() Model {
	m.Palette = PaletteState{Active: true}
	m.commandInput.SetValue("")
	m.commandInput.Focus()
	m.Status = StatusBar{Text: "command palette active"}
	return m
}

func (m Model) closePalette() Model {
	m.Palette = PaletteState{}
	m.commandInput.SetValue("")
	m.commandInput.Blur()
	return m
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m = m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case "enter":
		raw := m.commandInput.Value()
		m = m.closePalette()
		return m.executeCommand(raw)
	}
	var cmd tea.Cmd
	m.commandInput, cmd = m.commandInput.Update(msg)
	m.Palette.Input = m.commandInput.Value()
	return m, cmd
}

// targetID resolves "selected" against the focused pane.
func (m Model) targetID(target string) (string, error) {
	if target != commands.Selected {
		return target, nil
	}
	if m.Pane == PaneAlerts {
		if a, ok := m.SelectedAlert(); ok {
			return a.InstanceID, nil
		}
	}
	if inst := m.Selected(); inst != nil {
		return inst.ID(), nil
	}
	return "", &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: "nothing selected"}
}

// alertFor names the selected fired alert when it belongs to instanceID.
func (m Model) alertFor(instanceID, named string) string {
	if named != "" {
		return named
	}
	if a, ok := m.SelectedAlert(); ok && m.Pane == PaneAlerts && a.InstanceID == instanceID {
		return a.AlertID
	}
	return ""
}

// executeCommand parses raw and dispatches it. Backend work is returned as a
// command; show is applied to the model directly.
func (m Model) executeCommand(raw string) (Model, tea.Cmd) {
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}

	var next tea.Cmd
	pending := func(c tea.Cmd, text string) (commands.Result, error) {
		next = c
		return commands.Result{Message: text}, nil
	}
	withTarget := func(target string, fn func(id string) tea.Cmd, text string) (commands.Result, error) {
		id, err := m.targetID(target)
		if err != nil {
			return commands.Result{}, err
		}
		return pending(fn(id), text)
	}

	res, err := commands.Execute(cmd, commands.Handlers{
		Start: func(a commands.TargetArgs) (commands.Result, error) {
			return withTarget(a.Target, func(id string) tea.Cmd { return m.transition("started", id) }, "starting")
		},
		Complete: func(a commands.TargetArgs) (commands.Result, error) {
			return withTarget(a.Target, func(id string) tea.Cmd { return m.transition("completed", id) }, "completing")
		},
		Undo: func(a commands.TargetArgs) (commands.Result, error) {
			return withTarget(a.Target, func(id string) tea.Cmd { return m.transition("reopened", id) }, "reopening")
		},
		Cancel: func(a commands.CancelArgs) (commands.Result, error) {
			return withTarget(a.Target, func(id string) tea.Cmd {
				reason := a.Reason
				return m.act(func(ctx context.Context, b Backend) (ActionMsg, error) {
					inst, err := b.Cancel(ctx, id, reason)
					if err != nil {
						return ActionMsg{}, err
					}
					return ActionMsg{Text: "cancelled " + inst.Title(), InstanceID: id}, nil
				})
			}, "cancelling")
		},
		Reschedule: func(a commands.RescheduleArgs) (commands.Result, error) {
			return withTarget(a.Target, func(id string) tea.Cmd {
				now := m.clock.Now()
				return m.act(func(ctx context.Context, b Backend) (ActionMsg, error) {
					inst, err := b.GetInstance(ctx, id)
					if err != nil {
						return ActionMsg{}, err
					}
					when, err := commands.ParseWhen(a.When, now, inst.ScheduledTime().In(m.loc))
					if err != nil {
						return ActionMsg{}, err
					}
					moved, err := b.Reschedule(ctx, id, when, a.Reason)
					if moved == nil {
						return ActionMsg{}, err
					}
					msg := ActionMsg{Text: fmt.Sprintf("moved %s to %s", moved.Title(), moved.ScheduledTime().In(m.loc).Format("Mon 15:04")), Err: err}
					return msg, nil
				})
			}, "rescheduling")
		},
		Snooze: func(a commands.AlertArgs) (commands.Result, error) {
			d, err := commands.ParseFor(a.For)
			if err != nil {
				return commands.Result{}, err
			}
			return withTarget(a.Target, func(id string) tea.Cmd { return m.snooze(id, m.alertFor(id, a.Alert), d) }, "snoozing")
		},
		Dismiss: func(a commands.AlertArgs) (commands.Result, error) {
			return withTarget(a.Target, func(id string) tea.Cmd { return m.dismiss(id, m.alertFor(id, a.Alert)) }, "dismissing")
		},
		Show: func(s commands.ShowArgs) (commands.Result, error) {
			switch s.Subject {
			case SubjectToday, SubjectWeek, SubjectOverdue:
			default:
				return commands.Result{}, &commands.CommandError{
					Code:    commands.ErrCodeInvalidArgument,
					Message: fmt.Sprintf("show supports %s, %s or %s", SubjectToday, SubjectWeek, SubjectOverdue),
				}
			}
			m.Filter = FilterState{Subject: s.Subject, Tag: s.Tag}
			m.Cursor = 0
			next = m.loadAgenda()
			text := "showing " + s.Subject
			if s.Tag != "" {
				text += " tag:" + s.Tag
			}
			return commands.Result{Message: text}, nil
		},
	})
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}
	m.Status = StatusBar{Text: strings.TrimSpace(res.Message)}
	return m, next
}
