package update

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
)

var now = time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

type fakeBackend struct {
	insts     map[string]*model.TaskInstance
	calls     []string
	snoozedTo time.Time
}

func newFakeBackend(t *testing.T, titles ...string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{insts: make(map[string]*model.TaskInstance)}
	for i, title := range titles {
		inst, err := model.NewInstance(model.InstanceInput{
			ID:            "inst-" + title,
			TemplateID:    "tpl",
			Title:         title,
			Metadata:      model.Metadata{Tags: []string{strings.ToLower(title)}},
			ScheduledTime: now.Add(time.Duration(i+1) * time.Hour),
		}, now)
		if err != nil {
			t.Fatalf("new instance: %v", err)
		}
		b.insts[inst.ID()] = inst
	}
	return b
}

func (b *fakeBackend) get(id string) (*model.TaskInstance, error) {
	inst, ok := b.insts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return inst, nil
}

func (b *fakeBackend) Agenda(_ context.Context, from, to time.Time) ([]*model.TaskInstance, error) {
	var out []*model.TaskInstance
	for _, inst := range b.insts {
		at := inst.ScheduledTime()
		if !at.Before(from) && at.Before(to) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime().Before(out[j].ScheduledTime()) })
	return out, nil
}

func (b *fakeBackend) GetInstance(_ context.Context, id string) (*model.TaskInstance, error) {
	return b.get(id)
}

func (b *fakeBackend) apply(call, id string, fn func(inst *model.TaskInstance) error) (*model.TaskInstance, error) {
	b.calls = append(b.calls, call+" "+id)
	inst, err := b.get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (b *fakeBackend) Start(_ context.Context, id string) (*model.TaskInstance, error) {
	return b.apply("start", id, func(inst *model.TaskInstance) error { return inst.Start(now) })
}

func (b *fakeBackend) Complete(_ context.Context, id string) (*model.TaskInstance, error) {
	return b.apply("complete", id, func(inst *model.TaskInstance) error { return inst.Complete(now) })
}

func (b *fakeBackend) Cancel(_ context.Context, id, reason string) (*model.TaskInstance, error) {
	return b.apply("cancel", id, func(inst *model.TaskInstance) error { return inst.Cancel(now, reason) })
}

func (b *fakeBackend) Undo(_ context.Context, id string) (*model.TaskInstance, error) {
	return b.apply("undo", id, func(inst *model.TaskInstance) error { return inst.Undo(now) })
}

func (b *fakeBackend) Reschedule(_ context.Context, id string, newTime time.Time, reason string) (*model.TaskInstance, error) {
	policy := model.SchedulingPolicy{AllowReschedule: true, MaxDelayDays: 7}
	return b.apply("reschedule", id, func(inst *model.TaskInstance) error {
		return inst.Reschedule(newTime, reason, policy, now)
	})
}

func (b *fakeBackend) SnoozeAlert(_ context.Context, instanceID, alertID string, until time.Time, _ string) (*model.TaskInstance, error) {
	b.snoozedTo = until
	return b.apply("snooze", instanceID+"/"+alertID, func(inst *model.TaskInstance) error {
		policy := model.SnoozePolicy{Enabled: true, Interval: 10 * time.Minute, MaxCount: 3}
		return inst.SnoozeAlert(alertID, until, "", policy, now)
	})
}

func (b *fakeBackend) DismissAlert(_ context.Context, instanceID, alertID string) (*model.TaskInstance, error) {
	return b.apply("dismiss", instanceID+"/"+alertID, func(inst *model.TaskInstance) error {
		return inst.DismissAlert(alertID, now)
	})
}

// fire arms and triggers alertID on the instance.
func (b *fakeBackend) fire(t *testing.T, id, alertID string) notify.Notification {
	t.Helper()
	inst := b.insts[id]
	at := now.Add(-time.Minute)
	if err := inst.ArmAlert(model.ReminderStatusAlert{AlertID: alertID, Status: model.AlertPending, ScheduledTime: at}, now.Add(-time.Hour)); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := inst.TriggerAlert(alertID, now); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	return notify.Notification{InstanceID: id, AlertID: alertID, Title: inst.Title(), FiredAt: now}
}

func newTestModel(b *fakeBackend) Model {
	return NewModel(Options{
		Backend:  b,
		Location: time.UTC,
		Clock:    model.NewManualClock(now),
	})
}

// run executes cmd and feeds its message back, following batches.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			m = run(t, m, c)
		}
		return m
	case RefreshMsg:
		return m
	case nil:
		return m
	default:
		updated, next := m.Update(msg)
		return run(t, updated.(Model), next)
	}
}

func loaded(t *testing.T, b *fakeBackend) Model {
	t.Helper()
	m := newTestModel(b)
	return run(t, m, m.loadAgenda())
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch keys {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)}
	}
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestNewModelDefaults(t *testing.T) {
	m := NewModel(Options{})
	if m.Pane != PaneAgenda {
		t.Fatalf("expected agenda pane, got %q", m.Pane)
	}
	if m.Filter.Subject != SubjectToday {
		t.Fatalf("expected today subject, got %q", m.Filter.Subject)
	}
	if m.refresh != 30*time.Second {
		t.Fatalf("unexpected refresh %s", m.refresh)
	}
}

func TestAgendaLoadsTodaysItems(t *testing.T) {
	b := newFakeBackend(t, "Standup", "Review")
	policy := model.SchedulingPolicy{AllowReschedule: true, MaxDelayDays: 7}
	if err := b.insts["inst-Review"].Reschedule(now.AddDate(0, 0, 3), "", policy, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	m := loaded(t, b)
	if len(m.Items) != 1 || m.Items[0].Title() != "Standup" {
		t.Fatalf("expected only today's standup, got %d items", len(m.Items))
	}
	if !strings.Contains(m.View(), "Standup") {
		t.Fatalf("expected view to list the standup")
	}
}

func TestUpdateKeySwitchesPaneAndMovesCursor(t *testing.T) {
	m := loaded(t, newFakeBackend(t, "Standup", "Review"))

	m, _ = press(t, m, "j")
	if m.Cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", m.Cursor)
	}
	m, _ = press(t, m, "j")
	if m.Cursor != 1 {
		t.Fatalf("expected cursor clamped at 1, got %d", m.Cursor)
	}

	m, _ = press(t, m, "tab")
	if m.Pane != PaneAlerts {
		t.Fatalf("expected alerts pane, got %q", m.Pane)
	}
	m, _ = press(t, m, "tab")
	if m.Pane != PaneAgenda {
		t.Fatalf("expected agenda pane, got %q", m.Pane)
	}
}

func TestCompleteKeyActsOnSelection(t *testing.T) {
	b := newFakeBackend(t, "Standup", "Review")
	m := loaded(t, b)
	m, _ = press(t, m, "j")

	m, cmd := press(t, m, "c")
	m = run(t, m, cmd)

	if len(b.calls) != 1 || b.calls[0] != "complete inst-Review" {
		t.Fatalf("unexpected calls: %v", b.calls)
	}
	if m.Status.IsError || m.Status.Text != "completed Review" {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
}

func TestActionErrorSetsStatus(t *testing.T) {
	b := newFakeBackend(t, "Standup")
	m := loaded(t, b)

	m, cmd := press(t, m, "u")
	m = run(t, m, cmd)
	if !m.Status.IsError || !errors.Is(m.LastError, model.ErrTransition) {
		t.Fatalf("expected transition error, got %+v (%v)", m.Status, m.LastError)
	}
}

func TestAlertMessagesAreListedAndCleared(t *testing.T) {
	b := newFakeBackend(t, "Standup")
	m := loaded(t, b)

	updated, _ := m.Update(AlertMsg{Notification: b.fire(t, "inst-Standup", "early")})
	m = updated.(Model)
	if len(m.Fired) != 1 || m.Fired[0].AlertID != "early" {
		t.Fatalf("expected fired alert, got %+v", m.Fired)
	}
	if !strings.Contains(m.Status.Text, "reminder") {
		t.Fatalf("unexpected status: %+v", m.Status)
	}

	m, _ = press(t, m, "d")
	if !m.Status.IsError {
		t.Fatalf("expected dismiss outside the alerts pane to be rejected")
	}

	m, _ = press(t, m, "tab")
	m, cmd := press(t, m, "d")
	m = run(t, m, cmd)
	if len(m.Fired) != 0 {
		t.Fatalf("expected fired list cleared, got %+v", m.Fired)
	}
	a, _ := b.insts["inst-Standup"].Alert("early")
	if a.Status != model.AlertDismissed {
		t.Fatalf("expected dismissed alert, got %s", a.Status)
	}
}

func TestFiredListIsCapped(t *testing.T) {
	m := newTestModel(newFakeBackend(t))
	for i := 0; i < maxFired+5; i++ {
		updated, _ := m.Update(AlertMsg{Notification: notify.Notification{InstanceID: "x", AlertID: "a", FiredAt: now}})
		m = updated.(Model)
	}
	if len(m.Fired) != maxFired {
		t.Fatalf("expected %d fired entries, got %d", maxFired, len(m.Fired))
	}
}

func TestPaletteCompletesSelected(t *testing.T) {
	b := newFakeBackend(t, "Standup")
	m := loaded(t, b)

	m, _ = press(t, m, "/")
	if !m.Palette.Active {
		t.Fatalf("expected palette active")
	}
	for _, r := range "complete selected" {
		m, _ = press(t, m, string(r))
	}
	if m.Palette.Input != "complete selected" {
		t.Fatalf("unexpected palette input %q", m.Palette.Input)
	}
	m, cmd := press(t, m, "enter")
	if m.Palette.Active {
		t.Fatalf("expected palette closed after enter")
	}
	m = run(t, m, cmd)
	if b.insts["inst-Standup"].Status() != model.InstanceCompleted {
		t.Fatalf("expected completed, got %s", b.insts["inst-Standup"].Status())
	}
}

func TestPaletteEscCloses(t *testing.T) {
	m := loaded(t, newFakeBackend(t, "Standup"))
	m, _ = press(t, m, "/")
	m, _ = press(t, m, "q")
	if m.Quitting {
		t.Fatalf("expected q to be typed into the palette")
	}
	m, _ = press(t, m, "esc")
	if m.Palette.Active || m.Status.Text != "command palette closed" {
		t.Fatalf("unexpected palette state: %+v %+v", m.Palette, m.Status)
	}
}

func TestPaletteRescheduleUsesScheduledTime(t *testing.T) {
	b := newFakeBackend(t, "Standup")
	m := loaded(t, b)

	m, cmd := m.executeCommand("reschedule selected +1d because travel")
	m = run(t, m, cmd)

	inst := b.insts["inst-Standup"]
	want := now.Add(time.Hour).AddDate(0, 0, 1)
	if !inst.ScheduledTime().Equal(want) {
		t.Fatalf("expected %s, got %s", want, inst.ScheduledTime())
	}
	if !strings.HasPrefix(m.Status.Text, "moved Standup") {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
}

func TestPaletteSnoozeNamedAlert(t *testing.T) {
	b := newFakeBackend(t, "Standup")
	b.fire(t, "inst-Standup", "early")
	m := loaded(t, b)

	m, cmd := m.executeCommand("snooze inst-Standup alert:early for 5m")
	m = run(t, m, cmd)
	if m.Status.IsError {
		t.Fatalf("unexpected error status: %+v", m.Status)
	}
	if !b.snoozedTo.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expected snooze until %s, got %s", now.Add(5*time.Minute), b.snoozedTo)
	}
}

func TestPaletteShowFiltersByTag(t *testing.T) {
	b := newFakeBackend(t, "Standup", "Review")
	m := loaded(t, b)

	m, cmd := m.executeCommand("show today tag:review")
	m = run(t, m, cmd)
	if len(m.Items) != 1 || m.Items[0].Title() != "Review" {
		t.Fatalf("expected review only, got %d items", len(m.Items))
	}
	if m.Filter.Tag != "review" {
		t.Fatalf("unexpected filter %+v", m.Filter)
	}

	m, _ = m.executeCommand("show someday")
	if !m.Status.IsError {
		t.Fatalf("expected unknown subject to be rejected")
	}
}

func TestPaletteRejectsUnknownCommand(t *testing.T) {
	m := loaded(t, newFakeBackend(t, "Standup"))
	m, cmd := m.executeCommand("explode selected")
	if cmd != nil || !m.Status.IsError {
		t.Fatalf("expected parse error, got %+v", m.Status)
	}
}

func TestStatusMessages(t *testing.T) {
	m := newTestModel(newFakeBackend(t))
	updated, _ := m.Update(SetStatusMsg{Text: "ready"})
	m = updated.(Model)
	if m.Status.Text != "ready" || m.Status.IsError {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
	updated, _ = m.Update(ClearStatusMsg{})
	m = updated.(Model)
	if m.Status.Text != "" {
		t.Fatalf("expected cleared status, got %+v", m.Status)
	}
}

func TestQuitKey(t *testing.T) {
	m := newTestModel(newFakeBackend(t))
	m, cmd := press(t, m, "q")
	if !m.Quitting || cmd == nil {
		t.Fatalf("expected quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Fatalf("expected empty view after quit")
	}
}

func TestAlertStreamClosed(t *testing.T) {
	ch := make(chan notify.Notification)
	close(ch)
	m := NewModel(Options{Backend: newFakeBackend(t), Alerts: ch, Clock: model.NewManualClock(now)})
	msg := waitForAlert(ch)()
	if _, ok := msg.(AlertsClosedMsg); !ok {
		t.Fatalf("expected AlertsClosedMsg, got %T", msg)
	}
	updated, _ := m.Update(msg)
	if !updated.(Model).Status.IsError {
		t.Fatalf("expected closed stream to be reported")
	}
}
