package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/notify"
	"github.com/sandeepkv93/taskd/internal/update"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reminder daemon",
		Long:  "Run arms due reminders, prints each one as it fires and keeps the generation horizon topped up.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.startDaemon(ctx, notify.WriterSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			a.log.Info("taskd running",
				logx.String("db", a.cfg.Storage.Path),
				logx.String("tz", a.loc.String()),
				logx.Bool("desktop", a.cfg.Notify.Desktop))
			<-ctx.Done()
			a.log.Info("shutting down")
			d.Stop()
			return nil
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the daemon with an interactive agenda",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			a, err := openApp(opts, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer a.Close()

			alerts, unsubscribe := a.notifier.Subscribe(32)
			defer unsubscribe()
			d, err := a.startDaemon(ctx)
			if err != nil {
				return err
			}
			defer d.Stop()

			program := tea.NewProgram(update.NewModel(update.Options{
				Backend:  a.svc,
				Alerts:   alerts,
				Location: a.loc,
				Context:  ctx,
			}), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
}
