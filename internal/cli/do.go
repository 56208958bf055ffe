package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/taskd/internal/commands"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/service"
)

func newDoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "do <command>",
		Short: "Run one command against an instance",
		Long: `Run one command against an instance, for example:

  taskd do complete 6f1c...
  taskd do reschedule 6f1c... tomorrow 09:30 because travel
  taskd do snooze 6f1c... alert:alert-1 for 10m
  taskd do show week tag:home`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := commands.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			a, err := openApp(opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := commands.Execute(parsed, oneShotHandlers(cmd, a))
			if res.Message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			}
			return err
		},
	}
}

// oneShotHandlers run each command synchronously against the service.
func oneShotHandlers(cmd *cobra.Command, a *app) commands.Handlers {
	ctx := cmd.Context()
	svc := a.svc
	done := func(verb string, inst *model.TaskInstance, err error) (commands.Result, error) {
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{Message: fmt.Sprintf("%s %s (%s)", verb, inst.Title(), inst.ID())}, nil
	}
	return commands.Handlers{
		Start: func(t commands.TargetArgs) (commands.Result, error) {
			id, err := explicit(t.Target)
			if err != nil {
				return commands.Result{}, err
			}
			inst, err := svc.Start(ctx, id)
			return done("started", inst, err)
		},
		Complete: func(t commands.TargetArgs) (commands.Result, error) {
			id, err := explicit(t.Target)
			if err != nil {
				return commands.Result{}, err
			}
			inst, err := svc.Complete(ctx, id)
			return done("completed", inst, err)
		},
		Undo: func(t commands.TargetArgs) (commands.Result, error) {
			id, err := explicit(t.Target)
			if err != nil {
				return commands.Result{}, err
			}
			inst, err := svc.Undo(ctx, id)
			return done("reopened", inst, err)
		},
		Cancel: func(c commands.CancelArgs) (commands.Result, error) {
			id, err := explicit(c.Target)
			if err != nil {
				return commands.Result{}, err
			}
			inst, err := svc.Cancel(ctx, id, c.Reason)
			return done("cancelled", inst, err)
		},
		Reschedule: func(r commands.RescheduleArgs) (commands.Result, error) {
			id, err := explicit(r.Target)
			if err != nil {
				return commands.Result{}, err
			}
			return reschedule(ctx, svc, a.loc, id, r, time.Now())
		},
		Snooze: func(s commands.AlertArgs) (commands.Result, error) {
			id, err := explicit(s.Target)
			if err != nil {
				return commands.Result{}, err
			}
			d, err := commands.ParseFor(s.For)
			if err != nil {
				return commands.Result{}, err
			}
			alertID, err := triggeredAlert(ctx, svc, id, s.Alert)
			if err != nil {
				return commands.Result{}, err
			}
			var until time.Time
			if d > 0 {
				until = time.Now().Add(d)
			}
			inst, err := svc.SnoozeAlert(ctx, id, alertID, until, "")
			if err != nil {
				return commands.Result{}, err
			}
			alert, _ := inst.Alert(alertID)
			at, _ := alert.NextFireAt()
			return commands.Result{Message: fmt.Sprintf("snoozed %s until %s", inst.Title(), at.In(a.loc).Format("Mon 15:04"))}, nil
		},
		Dismiss: func(s commands.AlertArgs) (commands.Result, error) {
			id, err := explicit(s.Target)
			if err != nil {
				return commands.Result{}, err
			}
			alertID, err := triggeredAlert(ctx, svc, id, s.Alert)
			if err != nil {
				return commands.Result{}, err
			}
			inst, err := svc.DismissAlert(ctx, id, alertID)
			return done("dismissed", inst, err)
		},
		Show: func(s commands.ShowArgs) (commands.Result, error) {
			return commands.Result{}, printAgenda(cmd, a, s.Subject, s.Tag)
		},
	}
}

func explicit(target string) (string, error) {
	if target == commands.Selected {
		return "", &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: "nothing is selected outside watch; pass an instance id"}
	}
	return target, nil
}

// reschedule resolves relative times against the instance's current slot.
// A move kept without reminders is reported together with the arm error.
func reschedule(ctx context.Context, svc *service.Service, loc *time.Location, id string, r commands.RescheduleArgs, now time.Time) (commands.Result, error) {
	inst, err := svc.GetInstance(ctx, id)
	if err != nil {
		return commands.Result{}, err
	}
	when, err := commands.ParseWhen(r.When, now, inst.ScheduledTime().In(loc))
	if err != nil {
		return commands.Result{}, err
	}
	moved, err := svc.Reschedule(ctx, id, when, r.Reason)
	if moved == nil {
		return commands.Result{}, err
	}
	msg := fmt.Sprintf("moved %s to %s", moved.Title(), moved.ScheduledTime().In(loc).Format("Mon Jan 2 15:04"))
	if err != nil {
		msg += " without reminders"
	}
	return commands.Result{Message: msg}, err
}

func triggeredAlert(ctx context.Context, svc *service.Service, instanceID, named string) (string, error) {
	if named != "" {
		return named, nil
	}
	inst, err := svc.GetInstance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	for _, a := range inst.Reminder().Alerts {
		if a.Status == model.AlertTriggered {
			return a.AlertID, nil
		}
	}
	return "", fmt.Errorf("%s has no triggered alert", inst.Title())
}
