package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// transition loads the instance, applies fn and persists the result. With
// disarm set, outstanding reminders are unregistered before saving.
func (s *Service) transition(ctx context.Context, id string, disarm bool, fn func(inst *model.TaskInstance, now time.Time) error) (*model.TaskInstance, error) {
	unlock := s.locks.Lock(instanceKey(id))
	defer unlock()
	inst, err := s.loadInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(inst, s.now()); err != nil {
		return nil, err
	}
	if disarm {
		if err := s.disarmLocked(ctx, inst); err != nil {
			return nil, err
		}
	}
	if err := s.saveInstance(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Service) Start(ctx context.Context, id string) (*model.TaskInstance, error) {
	return s.transition(ctx, id, false, (*model.TaskInstance).Start)
}

// Complete finishes the instance and disarms its outstanding reminders.
func (s *Service) Complete(ctx context.Context, id string) (*model.TaskInstance, error) {
	inst, err := s.transition(ctx, id, true, (*model.TaskInstance).Complete)
	if err != nil {
		return nil, err
	}
	s.bumpAnalytics(ctx, inst.TemplateID(), (*model.TaskTemplate).RecordCompleted)
	s.log.Debug("instance completed", logx.String("instance", id))
	return inst, nil
}

func (s *Service) Cancel(ctx context.Context, id, reason string) (*model.TaskInstance, error) {
	inst, err := s.transition(ctx, id, true, func(inst *model.TaskInstance, now time.Time) error {
		return inst.Cancel(now, reason)
	})
	if err != nil {
		return nil, err
	}
	s.bumpAnalytics(ctx, inst.TemplateID(), (*model.TaskTemplate).RecordCancelled)
	s.log.Debug("instance cancelled", logx.String("instance", id), logx.String("reason", reason))
	return inst, nil
}

// Undo reopens a completed instance and re-arms any reminders still in the
// future. A failed re-arm leaves the instance pending without reminders.
func (s *Service) Undo(ctx context.Context, id string) (*model.TaskInstance, error) {
	inst, err := s.transition(ctx, id, false, (*model.TaskInstance).Undo)
	if err != nil {
		return nil, err
	}
	s.bumpAnalytics(ctx, inst.TemplateID(), (*model.TaskTemplate).RecordUncompleted)
	if _, err := s.ArmReminders(ctx, id); err != nil {
		s.log.Warn("re-arm after undo failed", logx.String("instance", id), logx.Err(err))
		return inst, nil
	}
	return s.loadInstance(ctx, id)
}

// Reschedule moves the instance and re-plans its reminders. Policy errors
// leave everything untouched. If re-arming fails the move is kept, the
// instance has no reminders, and the arm error is returned with it.
func (s *Service) Reschedule(ctx context.Context, id string, newTime time.Time, reason string) (*model.TaskInstance, error) {
	unlock := s.locks.Lock(instanceKey(id))
	defer unlock()
	inst, err := s.loadInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl, err := s.loadTemplate(ctx, inst.TemplateID())
	if err != nil {
		return nil, err
	}
	if err := inst.Reschedule(newTime, reason, tpl.Policy(), s.now()); err != nil {
		return nil, err
	}
	if err := s.disarmLocked(ctx, inst); err != nil {
		return nil, err
	}
	if err := s.saveInstance(ctx, inst); err != nil {
		return nil, err
	}
	s.bumpAnalytics(ctx, inst.TemplateID(), (*model.TaskTemplate).RecordRescheduled)

	if _, err := s.armLocked(ctx, tpl, inst); err != nil {
		s.log.Warn("reschedule kept without reminders", logx.String("instance", id), logx.Err(err))
		stored, loadErr := s.loadInstance(context.WithoutCancel(ctx), id)
		if loadErr != nil {
			return nil, errors.Join(err, loadErr)
		}
		return stored, err
	}
	return inst, nil
}

// MarkOverdue moves every pending instance whose scheduled time has passed
// to overdue, disarming its outstanding reminders, and returns how many moved.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.ListInstances(ctx, storage.InstanceListFilter{
		Statuses:    []model.InstanceStatus{model.InstancePending},
		ScheduledTo: now,
	})
	if err != nil {
		return 0, model.External("list instances", err)
	}
	moved := 0
	var errs []error
	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		_, err := s.transition(ctx, candidate.ID(), true, func(inst *model.TaskInstance, _ time.Time) error {
			return inst.MarkOverdue(now)
		})
		switch {
		case err == nil:
			moved++
		case errors.Is(err, model.ErrTransition), errors.Is(err, storage.ErrNotFound):
			// Changed since the listing.
		default:
			errs = append(errs, err)
		}
	}
	if moved > 0 {
		s.log.Info("instances marked overdue", logx.Int("count", moved))
	}
	return moved, errors.Join(errs...)
}

// DeleteInstance disarms and then removes the instance. Deleting a missing
// instance is not an error.
func (s *Service) DeleteInstance(ctx context.Context, id string) error {
	unlock := s.locks.Lock(instanceKey(id))
	defer unlock()
	inst, err := s.loadInstance(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.disarmLocked(ctx, inst); err != nil {
		return err
	}
	if err := s.repo.DeleteInstance(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return model.External("delete instance", err)
	}
	s.log.Debug("instance deleted", logx.String("instance", id))
	return nil
}
