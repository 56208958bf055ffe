package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/scheduler"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// Run consumes trigger deliveries until ctx is done or the channel closes.
// Handler errors are logged; delivery is at least once, so a failed fire is
// retried by the next delivery of the same registration, never here.
func (s *Service) Run(ctx context.Context) error {
	fires := s.trigger.C()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fires:
			if !ok {
				return nil
			}
			if err := s.HandleFire(ctx, ev); err != nil {
				s.log.Error("fire handling failed",
					logx.String("event", ev.ID), logx.String("kind", string(ev.Kind)), logx.Err(err))
			}
		}
	}
}

// Restore re-registers the outstanding alerts of every open instance with
// the trigger, for use after a process restart. Alerts already due fire on
// the next delivery. It returns how many registrations were issued.
func (s *Service) Restore(ctx context.Context) (int, error) {
	open, err := s.repo.ListInstances(ctx, storage.InstanceListFilter{
		Statuses: []model.InstanceStatus{model.InstancePending, model.InstanceInProgress},
	})
	if err != nil {
		return 0, model.External("list instances", err)
	}
	restored := 0
	var errs []error
	for _, candidate := range open {
		n, err := s.restoreInstance(ctx, candidate.ID())
		restored += n
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return restored, ctxErr
			}
			errs = append(errs, err)
		}
	}
	if restored > 0 {
		s.log.Info("reminders restored", logx.Int("registrations", restored))
	}
	return restored, errors.Join(errs...)
}

func (s *Service) restoreInstance(ctx context.Context, id string) (int, error) {
	unlock := s.locks.Lock(instanceKey(id))
	defer unlock()
	inst, err := s.loadInstance(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !inst.IsOpen() {
		return 0, nil
	}
	n := 0
	for _, a := range inst.OutstandingAlerts() {
		at, ok := a.NextFireAt()
		if !ok {
			continue
		}
		kind := scheduler.KindReminder
		if a.Status == model.AlertSnoozed {
			kind = scheduler.KindSnooze
		}
		ev := scheduler.Event{
			ID:         eventID(inst.ID(), a.AlertID),
			InstanceID: inst.ID(),
			AlertID:    a.AlertID,
			Kind:       kind,
			TriggerAt:  at,
		}
		if err := s.register(ctx, ev); err != nil {
			return n, model.External("register trigger", err)
		}
		n++
	}
	return n, nil
}

// SweepSpecs names the cron specs for the periodic jobs.
type SweepSpecs struct {
	Overdue string
	TopUp   string
	// Restore re-syncs registrations with storage, picking up changes made
	// by other processes.
	Restore string
	Horizon time.Duration
}

// RegisterSweeps adds the overdue, top-up and restore jobs to sw. Empty
// specs are skipped.
func (s *Service) RegisterSweeps(sw *scheduler.Sweeper, specs SweepSpecs) error {
	if specs.Overdue != "" {
		if err := sw.Add("overdue", specs.Overdue, func(ctx context.Context) error {
			_, err := s.MarkOverdue(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	if specs.TopUp != "" {
		horizon := specs.Horizon
		if horizon <= 0 {
			horizon = 14 * 24 * time.Hour
		}
		if err := sw.Add("topup", specs.TopUp, func(ctx context.Context) error {
			_, err := s.TopUp(ctx, horizon)
			return err
		}); err != nil {
			return err
		}
	}
	if specs.Restore != "" {
		if err := sw.Add("restore", specs.Restore, func(ctx context.Context) error {
			_, err := s.Restore(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}
