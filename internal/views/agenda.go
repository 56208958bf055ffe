package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sandeepkv93/taskd/internal/model"
)

type AgendaItem struct {
	ID        string
	Title     string
	Date      string
	Time      string
	Status    string
	Alerts    int
	Tags      []string
	Scheduled time.Time
}

type AgendaData struct {
	Title      string
	Items      []AgendaItem
	SelectedID string
}

// AgendaItemFrom flattens an instance for display in loc.
func AgendaItemFrom(inst *model.TaskInstance, loc *time.Location) AgendaItem {
	if loc == nil {
		loc = time.Local
	}
	at := inst.ScheduledTime().In(loc)
	clock := at.Format("15:04")
	if inst.AllDay() {
		clock = "all day"
	}
	return AgendaItem{
		ID:        inst.ID(),
		Title:     inst.Title(),
		Date:      at.Format("Mon 2006-01-02"),
		Time:      clock,
		Status:    string(inst.Status()),
		Alerts:    len(inst.OutstandingAlerts()),
		Tags:      inst.Metadata().Tags,
		Scheduled: at,
	}
}

// RenderAgenda groups items by day in scheduled order.
func RenderAgenda(data AgendaData) string {
	var b strings.Builder
	title := data.Title
	if title == "" {
		title = "agenda"
	}
	b.WriteString(headerStyle.Render(title) + "\n")
	if len(data.Items) == 0 {
		b.WriteString(dimStyle.Render("(agenda empty)"))
		return b.String()
	}

	items := append([]AgendaItem(nil), data.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Scheduled.Before(items[j].Scheduled) })
	day := ""
	for _, item := range items {
		if item.Date != day {
			day = item.Date
			b.WriteString(fmt.Sprintf("\n%s:\n", day))
		}
		cursor := " "
		if data.SelectedID != "" && data.SelectedID == item.ID {
			cursor = ">"
		}
		line := fmt.Sprintf("%s %s %-7s %s", cursor, statusBadge(item.Status), item.Time, item.Title)
		if item.Alerts > 0 {
			line += fmt.Sprintf(" (%d alert", item.Alerts)
			if item.Alerts > 1 {
				line += "s"
			}
			line += ")"
		}
		if len(item.Tags) > 0 {
			line += dimStyle.Render(" #" + strings.Join(item.Tags, " #"))
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func statusBadge(status string) string {
	switch model.InstanceStatus(status) {
	case model.InstanceOverdue:
		return errorStyle.Render("[OVERDUE]")
	case model.InstanceInProgress:
		return alertStyle.Render("[ACTIVE] ")
	case model.InstanceCompleted:
		return statusStyle.Render("[DONE]   ")
	case model.InstanceCancelled:
		return dimStyle.Render("[SKIP]   ")
	default:
		return "[TODO]   "
	}
}

// FiredAlert is an alert that has triggered and awaits the user.
type FiredAlert struct {
	InstanceID string
	AlertID    string
	Title      string
	Message    string
	FiredAt    time.Time
	Refire     bool
}

type AlertsData struct {
	Alerts   []FiredAlert
	Selected int
}

func RenderAlerts(data AlertsData) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("fired alerts") + "\n")
	if len(data.Alerts) == 0 {
		b.WriteString(dimStyle.Render("(nothing waiting)"))
		return b.String()
	}
	for i, a := range data.Alerts {
		cursor := " "
		if i == data.Selected {
			cursor = ">"
		}
		prefix := ""
		if a.Refire {
			prefix = "[snoozed] "
		}
		line := fmt.Sprintf("%s %s %s%s", cursor, a.FiredAt.Format("15:04"), prefix, a.Title)
		if a.Message != "" {
			line += ": " + a.Message
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// RenderPreview lists upcoming occurrence times, one per line.
func RenderPreview(title string, times []time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(title) + "\n")
	if len(times) == 0 {
		b.WriteString(dimStyle.Render("(no occurrences)"))
		return b.String()
	}
	for i, t := range times {
		b.WriteString(fmt.Sprintf("%3d. %s\n", i+1, t.In(loc).Format("Mon 2006-01-02 15:04 MST")))
	}
	return strings.TrimSuffix(b.String(), "\n")
}
