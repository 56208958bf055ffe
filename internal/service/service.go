// Package service orchestrates templates, instances and reminders against the
// injected repository, clock and time trigger. Mutations are serialized per
// aggregate id; nothing here is process-global.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/taskd/internal/generator"
	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
	"github.com/sandeepkv93/taskd/internal/planner"
	"github.com/sandeepkv93/taskd/internal/scheduler"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// Trigger is the time-trigger collaborator. Delivery on C() is at or after
// TriggerAt and may repeat; Schedule with an existing id replaces it and
// Cancel of an unknown id is not an error.
type Trigger interface {
	Schedule(ctx context.Context, ev scheduler.Event) error
	Cancel(ctx context.Context, id string) error
	C() <-chan scheduler.Event
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

type Deps struct {
	Repo     storage.Repository
	Clock    model.Clock
	Trigger  Trigger
	Notifier Notifier
	Holidays generator.HolidayCalendar
	Log      logx.Logger
}

type Options struct {
	HardCap      int
	WorkingHours generator.WorkingHours
	// ArmRetries is how many extra registration attempts an alert gets.
	ArmRetries   int
	RetryBackoff time.Duration
}

type Service struct {
	repo     storage.Repository
	clock    model.Clock
	trigger  Trigger
	notifier Notifier
	gen      *generator.Generator
	planner  *planner.Planner
	log      logx.Logger
	locks    *keyedMutex
	retries  int
	backoff  time.Duration
}

func New(d Deps, o Options) (*Service, error) {
	if d.Repo == nil {
		return nil, errors.New("service: repository is required")
	}
	if d.Trigger == nil {
		return nil, errors.New("service: trigger is required")
	}
	if d.Clock == nil {
		d.Clock = model.SystemClock
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if o.ArmRetries < 0 {
		o.ArmRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 100 * time.Millisecond
	}
	return &Service{
		repo:     d.Repo,
		clock:    d.Clock,
		trigger:  d.Trigger,
		notifier: d.Notifier,
		gen: generator.New(generator.Options{
			HardCap:      o.HardCap,
			Holidays:     d.Holidays,
			WorkingHours: o.WorkingHours,
			Clock:        d.Clock,
		}),
		planner: planner.New(d.Clock),
		log:     d.Log.With(logx.String("component", "service")),
		locks:   newKeyedMutex(),
		retries: o.ArmRetries,
		backoff: o.RetryBackoff,
	}, nil
}

// Generator exposes the configured generator for read-only previews.
func (s *Service) Generator() *generator.Generator { return s.gen }

func (s *Service) now() time.Time { return s.clock.Now() }

func (s *Service) loadTemplate(ctx context.Context, id string) (*model.TaskTemplate, error) {
	tpl, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("service: template %s: %w", id, storage.ErrNotFound)
		}
		return nil, model.External("load template", err)
	}
	return tpl, nil
}

func (s *Service) loadInstance(ctx context.Context, id string) (*model.TaskInstance, error) {
	inst, err := s.repo.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("service: instance %s: %w", id, storage.ErrNotFound)
		}
		return nil, model.External("load instance", err)
	}
	return inst, nil
}

func (s *Service) saveInstance(ctx context.Context, inst *model.TaskInstance) error {
	return model.External("save instance", s.repo.SaveInstance(ctx, inst))
}

func (s *Service) GetInstance(ctx context.Context, id string) (*model.TaskInstance, error) {
	return s.loadInstance(ctx, id)
}

func (s *Service) ListInstances(ctx context.Context, filter storage.InstanceListFilter) ([]*model.TaskInstance, error) {
	out, err := s.repo.ListInstances(ctx, filter)
	if err != nil {
		return nil, model.External("list instances", err)
	}
	return out, nil
}

// Agenda lists instances scheduled in [from, to], open ones and overdue ones.
func (s *Service) Agenda(ctx context.Context, from, to time.Time) ([]*model.TaskInstance, error) {
	return s.ListInstances(ctx, storage.InstanceListFilter{
		Statuses:      []model.InstanceStatus{model.InstancePending, model.InstanceInProgress, model.InstanceOverdue},
		ScheduledFrom: from,
		ScheduledTo:   to,
	})
}

// bumpAnalytics updates template counters after an instance change has been
// committed. Counters are advisory, so failures are logged only.
func (s *Service) bumpAnalytics(ctx context.Context, templateID string, fn func(*model.TaskTemplate)) {
	unlock := s.locks.Lock(templateKey(templateID))
	defer unlock()
	tpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		s.log.Warn("analytics not updated", logx.String("template", templateID), logx.Err(err))
		return
	}
	fn(tpl)
	if err := s.repo.SaveTemplate(ctx, tpl); err != nil {
		s.log.Warn("analytics not saved", logx.String("template", templateID), logx.Err(err))
	}
}

// eventID is the trigger registration id for one alert of one instance.
func eventID(instanceID, alertID string) string {
	return instanceID + "/" + alertID
}
