package update

import (
	"fmt"
	"strings"

	"github.com/sandeepkv93/taskd/internal/views"
)

func (m Model) View() string {
	if m.Quitting {
		return ""
	}
	items := make([]views.AgendaItem, 0, len(m.Items))
	for _, inst := range m.Items {
		items = append(items, views.AgendaItemFrom(inst, m.loc))
	}
	selected := ""
	if inst := m.Selected(); inst != nil && m.Pane == PaneAgenda {
		selected = inst.ID()
	}
	title := m.Filter.Subject
	if m.Filter.Tag != "" {
		title += " #" + m.Filter.Tag
	}

	alertCursor := -1
	if m.Pane == PaneAlerts {
		alertCursor = m.AlertCursor
	}
	right := views.RenderAlerts(views.AlertsData{Alerts: m.Fired, Selected: alertCursor})
	if m.HelpVisible {
		right += "\n\n" + m.helpModel.View(m.Keys)
	}

	status := m.Status.Text
	if status != "" {
		status = "status: " + status
	}
	notification := ""
	if len(m.Fired) > 0 {
		last := m.Fired[0]
		notification = fmt.Sprintf("%s  %s", last.FiredAt.Format("15:04"), strings.TrimSpace(last.Title+" "+last.Message))
	}
	footer := ""
	if !m.HelpVisible {
		footer = m.helpModel.View(m.Keys)
	}

	return views.RenderWatch(views.WatchData{
		Header:       fmt.Sprintf("taskd watch · %s · %s", m.Pane, m.clock.Now().In(m.loc).Format("Mon Jan 2 15:04")),
		LeftPane:     views.RenderAgenda(views.AgendaData{Title: title, Items: items, SelectedID: selected}),
		RightPane:    right,
		StatusLine:   status,
		StatusError:  m.Status.IsError,
		Palette:      views.RenderCommandPalette(m.Palette.Active, m.commandInput.View()),
		Notification: notification,
		Footer:       footer,
	})
}
