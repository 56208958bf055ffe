// Package cli wires the taskd commands: template preview and import,
// one-shot lifecycle commands, the reminder daemon and the watch screen.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "taskd",
		Short: "taskd - recurring tasks with reminders",
		Long: `taskd generates task instances from recurring templates, arms their
reminders and tracks each instance from pending to done.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./taskd.yaml or ~/.taskd.yaml)")

	root.AddCommand(newPreviewCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newDescribeCmd(opts))
	root.AddCommand(newAgendaCmd(opts))
	root.AddCommand(newDoCmd(opts))
	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	root := NewRootCmd()
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
