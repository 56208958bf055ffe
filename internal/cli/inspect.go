package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/storage"
	"github.com/sandeepkv93/taskd/internal/views"
)

const markdownWidth = 100

func newDescribeCmd(opts *rootOptions) *cobra.Command {
	var (
		upcoming int
		raw      bool
	)
	cmd := &cobra.Command{
		Use:       "describe template|instance <id>",
		Short:     "Describe a template or an instance",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"template", "instance"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var md string
			switch args[0] {
			case "template":
				tpl, err := a.svc.GetTemplate(ctx, args[1])
				if err != nil {
					return err
				}
				next, err := a.svc.ListInstances(ctx, storage.InstanceListFilter{
					TemplateID:    tpl.ID(),
					Statuses:      []model.InstanceStatus{model.InstancePending},
					ScheduledFrom: time.Now(),
					Limit:         upcoming,
				})
				if err != nil {
					return err
				}
				times := make([]time.Time, 0, len(next))
				for _, inst := range next {
					times = append(times, inst.ScheduledTime())
				}
				md = views.DescribeTemplate(tpl, times)
			case "instance":
				inst, err := a.svc.GetInstance(ctx, args[1])
				if err != nil {
					return err
				}
				md = views.DescribeInstance(inst, a.loc)
			default:
				return fmt.Errorf("describe: unknown kind %q (want template or instance)", args[0])
			}
			if raw {
				fmt.Fprint(cmd.OutOrStdout(), md)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), views.RenderMarkdown(md, markdownWidth))
			return nil
		},
	}
	cmd.Flags().IntVar(&upcoming, "upcoming", 5, "pending instances to list for a template")
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	return cmd
}

// agendaWindow is the time range shown for a subject.
func agendaWindow(subject string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch subject {
	case "", "today":
		return day, day.AddDate(0, 0, 1), nil
	case "week":
		return day, day.AddDate(0, 0, 7), nil
	case "overdue":
		return day.AddDate(0, 0, -90), now, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("agenda: unknown subject %q (want today, week or overdue)", subject)
	}
}

func newAgendaCmd(opts *rootOptions) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "agenda [today|week|overdue]",
		Short: "List open instances",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := "today"
			if len(args) == 1 {
				subject = args[0]
			}
			a, err := openApp(opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			return printAgenda(cmd, a, subject, tag)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only instances with this tag")
	return cmd
}

func printAgenda(cmd *cobra.Command, a *app, subject, tag string) error {
	from, to, err := agendaWindow(subject, time.Now(), a.loc)
	if err != nil {
		return err
	}
	insts, err := a.svc.Agenda(cmd.Context(), from, to)
	if err != nil {
		return err
	}
	items := make([]views.AgendaItem, 0, len(insts))
	for _, inst := range insts {
		if subject == "overdue" && inst.Status() != model.InstanceOverdue {
			continue
		}
		if tag != "" && !hasTag(inst.Metadata().Tags, tag) {
			continue
		}
		items = append(items, views.AgendaItemFrom(inst, a.loc))
	}
	title := subject
	if tag != "" {
		title += " #" + tag
	}
	fmt.Fprintln(cmd.OutOrStdout(), views.RenderAgenda(views.AgendaData{Title: title, Items: items}))
	return nil
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
