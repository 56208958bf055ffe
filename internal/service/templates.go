package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/storage"
)

func (s *Service) CreateTemplate(ctx context.Context, in model.TemplateInput) (*model.TaskTemplate, error) {
	tpl, err := model.NewTemplate(in, s.now())
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(templateKey(tpl.ID()))
	defer unlock()
	if err := s.repo.SaveTemplate(ctx, tpl); err != nil {
		return nil, model.External("save template", err)
	}
	s.log.Debug("template created", logx.String("template", tpl.ID()), logx.String("title", tpl.Title()))
	return tpl, nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (*model.TaskTemplate, error) {
	return s.loadTemplate(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, statuses ...model.TemplateStatus) ([]*model.TaskTemplate, error) {
	out, err := s.repo.ListTemplates(ctx, storage.TemplateListFilter{Statuses: statuses})
	if err != nil {
		return nil, model.External("list templates", err)
	}
	return out, nil
}

// UpdateTemplate applies fn to a fresh copy and saves it only if fn succeeds.
func (s *Service) UpdateTemplate(ctx context.Context, id string, fn func(tpl *model.TaskTemplate, now time.Time) error) (*model.TaskTemplate, error) {
	unlock := s.locks.Lock(templateKey(id))
	defer unlock()
	tpl, err := s.loadTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(tpl, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveTemplate(ctx, tpl); err != nil {
		return nil, model.External("save template", err)
	}
	return tpl, nil
}

func (s *Service) ActivateTemplate(ctx context.Context, id string) (*model.TaskTemplate, error) {
	return s.UpdateTemplate(ctx, id, (*model.TaskTemplate).Activate)
}

func (s *Service) PauseTemplate(ctx context.Context, id string) (*model.TaskTemplate, error) {
	return s.UpdateTemplate(ctx, id, (*model.TaskTemplate).Pause)
}

// ArchiveTemplate archives the template, then cancels every open instance of
// it, disarming their reminders first.
func (s *Service) ArchiveTemplate(ctx context.Context, id string) (*model.TaskTemplate, error) {
	tpl, err := s.UpdateTemplate(ctx, id, (*model.TaskTemplate).Archive)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.ListInstances(ctx, storage.InstanceListFilter{
		TemplateID: id,
		Statuses:   []model.InstanceStatus{model.InstancePending, model.InstanceInProgress},
	})
	if err != nil {
		return tpl, model.External("list instances", err)
	}
	var errs []error
	for _, inst := range open {
		if _, err := s.Cancel(ctx, inst.ID(), "template archived"); err != nil && !errors.Is(err, model.ErrTransition) {
			errs = append(errs, fmt.Errorf("cancel %s: %w", inst.ID(), err))
		}
	}
	s.log.Info("template archived", logx.String("template", id), logx.Int("cancelled", len(open)-len(errs)))
	return tpl, errors.Join(errs...)
}

// GenerateRequest selects byCount when Count is set and byRange otherwise.
type GenerateRequest struct {
	Count int
	Start time.Time
	End   time.Time
}

// GenerateInstances materializes and persists one batch atomically. No
// reminders are armed.
func (s *Service) GenerateInstances(ctx context.Context, templateID string, req GenerateRequest) ([]*model.TaskInstance, error) {
	ranged := !req.Start.IsZero() || !req.End.IsZero()
	if req.Count > 0 && ranged {
		return nil, &model.ValidationError{Field: "generate", Reason: "count and range are mutually exclusive"}
	}
	if req.Count <= 0 && !ranged {
		return nil, &model.ValidationError{Field: "generate", Reason: "count or range is required"}
	}

	unlock := s.locks.Lock(templateKey(templateID))
	defer unlock()
	tpl, err := s.loadTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	var insts []*model.TaskInstance
	if req.Count > 0 {
		insts, err = s.gen.ByCount(tpl, req.Count)
	} else {
		insts, err = s.gen.ByRange(tpl, req.Start, req.End)
	}
	if err != nil {
		return nil, err
	}
	tpl.RecordGenerated(len(insts), s.now())
	if err := s.repo.SaveBatch(ctx, tpl, insts); err != nil {
		return nil, model.External("save batch", err)
	}
	s.log.Debug("instances generated", logx.String("template", templateID), logx.Int("count", len(insts)))
	return insts, nil
}

// TopUp keeps every active template generated through now+horizon. Only
// occurrences without an instance are created; new instances are armed.
// It returns how many instances were created.
func (s *Service) TopUp(ctx context.Context, horizon time.Duration) (int, error) {
	if horizon <= 0 {
		return 0, &model.ValidationError{Field: "topUp.horizon", Reason: "must be positive"}
	}
	templates, err := s.ListTemplates(ctx, model.TemplateActive)
	if err != nil {
		return 0, err
	}
	now := s.now()
	created := 0
	var errs []error
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		fresh, err := s.topUpTemplate(ctx, t.ID(), now, now.Add(horizon))
		if err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", t.ID(), err))
			continue
		}
		created += len(fresh)
		for _, inst := range fresh {
			if _, err := s.ArmReminders(ctx, inst.ID()); err != nil {
				s.log.Warn("top-up arm failed", logx.String("instance", inst.ID()), logx.Err(err))
				errs = append(errs, fmt.Errorf("arm %s: %w", inst.ID(), err))
			}
		}
	}
	if created > 0 {
		s.log.Info("top-up generated instances", logx.Int("created", created), logx.Int("templates", len(templates)))
	}
	return created, errors.Join(errs...)
}

func (s *Service) topUpTemplate(ctx context.Context, id string, from, to time.Time) ([]*model.TaskInstance, error) {
	unlock := s.locks.Lock(templateKey(id))
	defer unlock()
	tpl, err := s.loadTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl.Status() != model.TemplateActive {
		return nil, nil
	}
	candidates, err := s.gen.ByRange(tpl, from, to)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	existing, err := s.repo.ListInstances(ctx, storage.InstanceListFilter{TemplateID: id})
	if err != nil {
		return nil, model.External("list instances", err)
	}
	seen := make(map[int64]bool, len(existing))
	for _, inst := range existing {
		seen[inst.OriginalScheduledTime().UnixMilli()] = true
	}
	fresh := candidates[:0]
	for _, inst := range candidates {
		if !seen[inst.ScheduledTime().UnixMilli()] {
			fresh = append(fresh, inst)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	tpl.RecordGenerated(len(fresh), s.now())
	if err := s.repo.SaveBatch(ctx, tpl, fresh); err != nil {
		return nil, model.External("save batch", err)
	}
	return fresh, nil
}
