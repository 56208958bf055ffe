package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/taskd/internal/generator"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/service"
	"github.com/sandeepkv93/taskd/internal/storage"
	"github.com/sandeepkv93/taskd/internal/templatefile"
	"github.com/sandeepkv93/taskd/internal/views"
)

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "preview [file|dir]",
		Short: "Show the occurrences a template file would generate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			file, err := templatefile.NewOsLoader().Load(args[0])
			if err != nil {
				return err
			}
			hours, err := cfg.WorkingHours()
			if err != nil {
				return err
			}
			holidays, err := cfg.Holidays()
			if err != nil {
				return err
			}
			for day := range file.Holidays {
				holidays[day] = struct{}{}
			}
			gen := generator.New(generator.Options{
				HardCap:      cfg.Generation.HardCap,
				Holidays:     holidays,
				WorkingHours: hours,
			})
			if count <= 0 {
				count = cfg.Generation.DefaultCount
			}
			return preview(cmd.OutOrStdout(), gen, file.Templates, count, time.Now())
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "occurrences per template (default generation.default_count)")
	return cmd
}

func preview(out io.Writer, gen *generator.Generator, inputs []model.TemplateInput, count int, now time.Time) error {
	for i, in := range inputs {
		tpl, err := model.NewTemplate(in, now)
		if err != nil {
			return fmt.Errorf("template %q: %w", in.Title, err)
		}
		times, err := gen.Occurrences(tpl, count)
		if err != nil {
			return fmt.Errorf("template %q: %w", in.Title, err)
		}
		loc, err := tpl.TimeConfig().Location()
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprint(out, views.RenderPreview(tpl.Title(), times, loc))
	}
	return nil
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		count int
		noArm bool
		draft bool
	)
	cmd := &cobra.Command{
		Use:   "import [file|dir]",
		Short: "Create templates from a template file and generate their first instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := templatefile.NewOsLoader().Load(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(opts, appOptions{holidays: file.Holidays})
			if err != nil {
				return err
			}
			defer a.Close()
			if count <= 0 {
				count = a.cfg.Generation.DefaultCount
			}
			return importTemplates(cmd, a.svc, file.Templates, importOptions{count: count, arm: !noArm, activate: !draft})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "instances to generate per template (default generation.default_count)")
	cmd.Flags().BoolVar(&noArm, "no-arm", false, "generate instances without arming reminders")
	cmd.Flags().BoolVar(&draft, "draft", false, "leave templates in draft")
	return cmd
}

type importOptions struct {
	count    int
	arm      bool
	activate bool
}

func importTemplates(cmd *cobra.Command, svc *service.Service, inputs []model.TemplateInput, o importOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	for _, in := range inputs {
		if in.ID != "" {
			if _, err := svc.GetTemplate(ctx, in.ID); err == nil {
				fmt.Fprintf(out, "skip  %s (%s already exists)\n", in.Title, in.ID)
				continue
			} else if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}
		tpl, err := svc.CreateTemplate(ctx, in)
		if err != nil {
			return fmt.Errorf("template %q: %w", in.Title, err)
		}
		if !o.activate {
			fmt.Fprintf(out, "draft %s (%s)\n", tpl.Title(), tpl.ID())
			continue
		}
		if tpl, err = svc.ActivateTemplate(ctx, tpl.ID()); err != nil {
			return err
		}
		insts, err := svc.GenerateInstances(ctx, tpl.ID(), service.GenerateRequest{Count: o.count})
		if err != nil {
			return fmt.Errorf("template %q: %w", in.Title, err)
		}
		armed := 0
		if o.arm {
			for _, inst := range insts {
				alerts, err := svc.ArmReminders(ctx, inst.ID())
				if err != nil {
					return fmt.Errorf("arm %s: %w", inst.ID(), err)
				}
				armed += len(alerts)
			}
		}
		fmt.Fprintf(out, "added %s (%s): %d instances, %d alerts armed\n", tpl.Title(), tpl.ID(), len(insts), armed)
	}
	return nil
}
