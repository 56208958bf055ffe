package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
	"github.com/sandeepkv93/taskd/internal/scheduler"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// ArmReminders plans the template's alerts for the instance and registers
// each with the trigger. Alerts already on the instance are left alone.
// Arming is all or nothing: if any registration fails, or ctx is cancelled,
// the registrations already issued are cancelled and nothing is persisted.
func (s *Service) ArmReminders(ctx context.Context, instanceID string) ([]model.ReminderStatusAlert, error) {
	unlock := s.locks.Lock(instanceKey(instanceID))
	defer unlock()
	inst, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.loadTemplate(ctx, inst.TemplateID())
	if err != nil {
		return nil, err
	}
	return s.armLocked(ctx, tpl, inst)
}

func (s *Service) armLocked(ctx context.Context, tpl *model.TaskTemplate, inst *model.TaskInstance) ([]model.ReminderStatusAlert, error) {
	if !inst.IsOpen() {
		return nil, &model.TransitionError{Entity: "instance", From: string(inst.Status()), Event: "arm reminders"}
	}
	cfg := tpl.Reminders()
	now := s.now()
	inst.SetRemindersEnabled(cfg.Enabled)

	var armed []model.ReminderStatusAlert
	for _, a := range s.planner.PlanAt(inst, cfg, now) {
		if _, exists := inst.Alert(a.AlertID); exists {
			continue
		}
		if err := inst.ArmAlert(a, now); err != nil {
			s.rollbackArm(ctx, inst, armed)
			return nil, err
		}
		ev := scheduler.Event{
			ID:         eventID(inst.ID(), a.AlertID),
			InstanceID: inst.ID(),
			AlertID:    a.AlertID,
			Kind:       scheduler.KindReminder,
			TriggerAt:  a.ScheduledTime,
		}
		if err := s.register(ctx, ev); err != nil {
			inst.DropAlert(a.AlertID)
			s.rollbackArm(ctx, inst, armed)
			s.log.Warn("arm failed", logx.String("instance", inst.ID()), logx.String("alert", a.AlertID), logx.Err(err))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, model.External("register trigger", err)
		}
		armed = append(armed, a)
	}
	if err := ctx.Err(); err != nil {
		s.rollbackArm(ctx, inst, armed)
		return nil, err
	}
	if err := s.saveInstance(ctx, inst); err != nil {
		s.rollbackArm(ctx, inst, armed)
		return nil, err
	}
	if len(armed) > 0 {
		s.log.Debug("reminders armed", logx.String("instance", inst.ID()), logx.Int("alerts", len(armed)))
	}
	return armed, nil
}

// register schedules ev, retrying up to the configured count.
func (s *Service) register(ctx context.Context, ev scheduler.Event) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(s.backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err = s.trigger.Schedule(ctx, ev); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// rollbackArm cancels registrations issued during a failed arm. It runs even
// when ctx is already cancelled.
func (s *Service) rollbackArm(ctx context.Context, inst *model.TaskInstance, armed []model.ReminderStatusAlert) {
	cleanup := context.WithoutCancel(ctx)
	for i := len(armed) - 1; i >= 0; i-- {
		id := armed[i].AlertID
		inst.DropAlert(id)
		if err := s.trigger.Cancel(cleanup, eventID(inst.ID(), id)); err != nil {
			s.log.Error("rollback cancel failed", logx.String("instance", inst.ID()), logx.String("alert", id), logx.Err(err))
		}
	}
}

// DisarmReminders unregisters every outstanding alert and then clears the
// instance's alerts. Disarming a missing instance is a no-op.
func (s *Service) DisarmReminders(ctx context.Context, instanceID string) error {
	unlock := s.locks.Lock(instanceKey(instanceID))
	defer unlock()
	inst, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if len(inst.Reminder().Alerts) == 0 {
		return nil
	}
	if err := s.disarmLocked(ctx, inst); err != nil {
		return err
	}
	return s.saveInstance(ctx, inst)
}

// disarmLocked cancels registrations before touching local state. The caller
// persists inst.
func (s *Service) disarmLocked(ctx context.Context, inst *model.TaskInstance) error {
	for _, a := range inst.OutstandingAlerts() {
		if err := s.trigger.Cancel(ctx, eventID(inst.ID(), a.AlertID)); err != nil {
			return model.External("cancel trigger", err)
		}
	}
	inst.ClearAlerts(s.now())
	return nil
}

// Replan disarms and re-arms the instance from its template's current
// reminder config.
func (s *Service) Replan(ctx context.Context, instanceID string) ([]model.ReminderStatusAlert, error) {
	unlock := s.locks.Lock(instanceKey(instanceID))
	defer unlock()
	inst, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.loadTemplate(ctx, inst.TemplateID())
	if err != nil {
		return nil, err
	}
	return s.replanLocked(ctx, tpl, inst)
}

func (s *Service) replanLocked(ctx context.Context, tpl *model.TaskTemplate, inst *model.TaskInstance) ([]model.ReminderStatusAlert, error) {
	if err := s.disarmLocked(ctx, inst); err != nil {
		return nil, err
	}
	if err := s.saveInstance(ctx, inst); err != nil {
		return nil, err
	}
	return s.armLocked(ctx, tpl, inst)
}

func (s *Service) TriggerAlert(ctx context.Context, instanceID, alertID string) (*model.TaskInstance, error) {
	unlock := s.locks.Lock(instanceKey(instanceID))
	defer unlock()
	inst, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := inst.TriggerAlert(alertID, now); err != nil {
		return nil, err
	}
	if err := s.saveInstance(ctx, inst); err != nil {
		return nil, err
	}
	s.announce(ctx, inst, alertID, now, false)
	return inst, nil
}

func (s *Service) DismissAlert(ctx context.Context, instanceID, alertID string) (*model.TaskInstance, error) {
	unlock := s.locks.Lock(instanceKey(instanceID))
	defer unlock()
	inst, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := inst.DismissAlert(alertID, s.now()); err != nil {
		return nil, err
	}
	if err := s.saveInstance(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// SnoozeAlert defers a triggered alert and registers its re-fire. A zero
// until uses the template's snooze interval.
func (s *Service) SnoozeAlert(ctx context.Context, instanceID, alertID string, until time.Time, reason string) (*model.TaskInstance, error) {
	unlock := s.locks.Lock(instanceKey(instanceID))
	defer unlock()
	inst, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.loadTemplate(ctx, inst.TemplateID())
	if err != nil {
		return nil, err
	}
	if err := inst.SnoozeAlert(alertID, until, reason, tpl.SnoozePolicy(), s.now()); err != nil {
		return nil, err
	}
	a, _ := inst.Alert(alertID)
	fireAt, _ := a.NextFireAt()
	ev := scheduler.Event{
		ID:         eventID(inst.ID(), alertID),
		InstanceID: inst.ID(),
		AlertID:    alertID,
		Kind:       scheduler.KindSnooze,
		TriggerAt:  fireAt,
	}
	if err := s.register(ctx, ev); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.External("register snooze", err)
	}
	if err := s.saveInstance(ctx, inst); err != nil {
		if cerr := s.trigger.Cancel(context.WithoutCancel(ctx), ev.ID); cerr != nil {
			s.log.Error("snooze rollback failed", logx.String("instance", inst.ID()), logx.Err(cerr))
		}
		return nil, err
	}
	s.bumpAnalytics(ctx, inst.TemplateID(), (*model.TaskTemplate).RecordSnoozed)
	return inst, nil
}

// HandleFire routes one trigger delivery. Pending alerts trigger, snoozed
// alerts re-fire once their snooze has elapsed; anything else is a stale or
// duplicate delivery and is ignored.
func (s *Service) HandleFire(ctx context.Context, ev scheduler.Event) error {
	unlock := s.locks.Lock(instanceKey(ev.InstanceID))
	defer unlock()
	log := s.log.With(logx.String("instance", ev.InstanceID), logx.String("alert", ev.AlertID))

	inst, err := s.loadInstance(ctx, ev.InstanceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Debug("fire for missing instance ignored")
			return nil
		}
		return err
	}
	a, ok := inst.Alert(ev.AlertID)
	if !ok || !inst.IsOpen() {
		log.Debug("stale fire ignored", logx.String("status", string(inst.Status())))
		return nil
	}
	due, ok := a.NextFireAt()
	now := s.now()
	if !ok || now.Before(due) {
		log.Debug("early or stale fire ignored", logx.String("alert_status", string(a.Status)))
		return nil
	}

	refire := a.Status == model.AlertSnoozed
	if refire {
		err = inst.RefireAlert(ev.AlertID, now)
	} else {
		err = inst.TriggerAlert(ev.AlertID, now)
	}
	if err != nil {
		return err
	}
	if err := s.saveInstance(ctx, inst); err != nil {
		return err
	}
	s.announce(ctx, inst, ev.AlertID, now, refire)
	return nil
}

func (s *Service) announce(ctx context.Context, inst *model.TaskInstance, alertID string, at time.Time, refire bool) {
	if s.notifier == nil {
		return
	}
	a, _ := inst.Alert(alertID)
	n := notify.Notification{
		InstanceID: inst.ID(),
		AlertID:    alertID,
		Title:      inst.Title(),
		Message:    a.Message,
		Channel:    a.Channel,
		Scheduled:  inst.ScheduledTime(),
		FiredAt:    at,
		Refire:     refire,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("notification not queued", logx.String("instance", inst.ID()), logx.String("alert", alertID), logx.Err(err))
	}
}
