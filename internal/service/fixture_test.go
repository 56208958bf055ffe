package service

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
	"github.com/sandeepkv93/taskd/internal/scheduler"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// t0 is Monday 08:00 UTC; the default template starts Tuesday 09:00.
var (
	t0    = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	first = time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
)

var errTriggerDown = errors.New("trigger unavailable")

// fakeTrigger records registrations. failSchedule, when set, is consulted
// before every Schedule call with the 1-based call number.
type fakeTrigger struct {
	mu           sync.Mutex
	events       map[string]scheduler.Event
	cancelled    []string
	calls        int
	failSchedule func(ev scheduler.Event, call int) error
	failCancel   error
	ch           chan scheduler.Event
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{events: make(map[string]scheduler.Event), ch: make(chan scheduler.Event, 16)}
}

func (f *fakeTrigger) Schedule(ctx context.Context, ev scheduler.Event) error {
	f.mu.Lock()
	f.calls++
	call, hook := f.calls, f.failSchedule
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ev, call); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.events[ev.ID] = ev
	f.mu.Unlock()
	return nil
}

func (f *fakeTrigger) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCancel != nil {
		return f.failCancel
	}
	delete(f.events, id)
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeTrigger) C() <-chan scheduler.Event { return f.ch }

func (f *fakeTrigger) registered() []scheduler.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]scheduler.Event, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerAt.Before(out[j].TriggerAt) })
	return out
}

func (f *fakeTrigger) event(id string) (scheduler.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	return ev, ok
}

type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) Notify(ctx context.Context, n notify.Notification) error {
	return m.Called(ctx, n).Error(0)
}

// countingNotifier is safe under concurrent fires.
type countingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *countingNotifier) Notify(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	c.sent = append(c.sent, n)
	c.mu.Unlock()
	return nil
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fixture struct {
	svc   *Service
	repo  *storage.SQLiteRepository
	clock *model.ManualClock
	trig  *fakeTrigger
}

func newFixture(t *testing.T, notifier Notifier, opts Options) *fixture {
	t.Helper()
	repo, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := model.NewManualClock(t0)
	trig := newFakeTrigger()
	svc, err := New(Deps{
		Repo:     repo,
		Clock:    clock,
		Trigger:  trig,
		Notifier: notifier,
		Log:      logx.Nop(),
	}, opts)
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, clock: clock, trig: trig}
}

func templateInput() model.TemplateInput {
	return model.TemplateInput{
		Title:       "Standup",
		Description: "daily sync",
		Metadata:    model.Metadata{Category: "team", Tags: []string{"sync"}},
		TimeConfig: model.TimeConfig{
			Base:       model.Timed{Start: first, Duration: 15 * time.Minute},
			Recurrence: model.RecurrenceRule{Type: model.RecurrenceDaily, Interval: 1},
		},
		Reminders: model.ReminderConfig{
			Enabled: true,
			Alerts: []model.ReminderAlert{
				{ID: "early", Timing: model.Relative(60), Channel: model.ChannelEmail, Message: "standup in an hour"},
				{ID: "late", Timing: model.Relative(15)},
			},
			Snooze: model.SnoozePolicy{Enabled: true, Interval: 10 * time.Minute, MaxCount: 2},
		},
		Policy: model.SchedulingPolicy{AllowReschedule: true, MaxDelayDays: 2},
	}
}

func (f *fixture) activeTemplate(t *testing.T, in model.TemplateInput) *model.TaskTemplate {
	t.Helper()
	ctx := context.Background()
	tpl, err := f.svc.CreateTemplate(ctx, in)
	require.NoError(t, err)
	tpl, err = f.svc.ActivateTemplate(ctx, tpl.ID())
	require.NoError(t, err)
	return tpl
}

func (f *fixture) generate(t *testing.T, tplID string, count int) []*model.TaskInstance {
	t.Helper()
	insts, err := f.svc.GenerateInstances(context.Background(), tplID, GenerateRequest{Count: count})
	require.NoError(t, err)
	require.Len(t, insts, count)
	return insts
}

// armedInstance returns the first generated instance with both alerts armed.
func (f *fixture) armedInstance(t *testing.T) *model.TaskInstance {
	t.Helper()
	tpl := f.activeTemplate(t, templateInput())
	inst := f.generate(t, tpl.ID(), 1)[0]
	armed, err := f.svc.ArmReminders(context.Background(), inst.ID())
	require.NoError(t, err)
	require.Len(t, armed, 2)
	return inst
}

func (f *fixture) reload(t *testing.T, id string) *model.TaskInstance {
	t.Helper()
	inst, err := f.svc.GetInstance(context.Background(), id)
	require.NoError(t, err)
	return inst
}

func fireFor(inst *model.TaskInstance, alertID string, kind scheduler.Kind, at time.Time) scheduler.Event {
	return scheduler.Event{
		ID:         eventID(inst.ID(), alertID),
		InstanceID: inst.ID(),
		AlertID:    alertID,
		Kind:       kind,
		TriggerAt:  at,
	}
}
