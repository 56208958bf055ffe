// Package planner computes concrete reminder fire times for an instance.
package planner

import (
	"slices"
	"time"

	"github.com/sandeepkv93/taskd/internal/model"
)

type Planner struct {
	clock model.Clock
}

func New(clock model.Clock) *Planner {
	if clock == nil {
		clock = model.SystemClock
	}
	return &Planner{clock: clock}
}

// Plan returns one pending alert per configured reminder whose fire time is
// strictly after now, ordered by fire time. Alerts already due are dropped
// silently. Plan never mutates inst.
func (p *Planner) Plan(inst *model.TaskInstance, cfg model.ReminderConfig) []model.ReminderStatusAlert {
	return p.PlanAt(inst, cfg, p.clock.Now())
}

func (p *Planner) PlanAt(inst *model.TaskInstance, cfg model.ReminderConfig, now time.Time) []model.ReminderStatusAlert {
	if inst == nil || !cfg.Enabled || len(cfg.Alerts) == 0 {
		return nil
	}
	scheduled := inst.ScheduledTime()
	out := make([]model.ReminderStatusAlert, 0, len(cfg.Alerts))
	for _, a := range cfg.Alerts {
		fire := a.Timing.FireTime(scheduled)
		if !fire.After(now) {
			continue
		}
		channel := a.Channel
		if channel == "" {
			channel = model.ChannelNotification
		}
		out = append(out, model.ReminderStatusAlert{
			AlertID:       a.ID,
			Channel:       channel,
			Message:       a.Message,
			Status:        model.AlertPending,
			ScheduledTime: fire,
		})
	}
	slices.SortStableFunc(out, func(a, b model.ReminderStatusAlert) int {
		return a.ScheduledTime.Compare(b.ScheduledTime)
	})
	return out
}
