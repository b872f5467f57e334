package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/taskflow-dev/taskflow/internal/config"
	"github.com/taskflow-dev/taskflow/internal/logger"
	"github.com/taskflow-dev/taskflow/internal/notify"
	"github.com/taskflow-dev/taskflow/internal/procdiscovery"
)

func newMonitorCommand() *cobra.Command {
	var (
		name   string
		silent bool
	)

	cmd := &cobra.Command{
		Use:   "monitor <pid>",
		Short: "Watch an external process and notify on its exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}
			if name == "" {
				name = "pid " + args[0]
			}

			logger.Init("info", true)
			log := logger.Get()

			opsCfg, err := config.LoadOps()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			notifier := notify.NewClient(notify.Config{
				Timeout:        opsCfg.Notify.Timeout,
				RetryBaseDelay: opsCfg.Notify.RetryBaseDelay,
				RetryAttempts:  opsCfg.Notify.RetryAttempts,
				LogTailLines:   opsCfg.Notify.LogTailLines,
			}, *log)

			if !silent {
				fmt.Printf("watching pid %d (%s) for exit...\n", pid, name)
			}

			err = procdiscovery.Monitor(cmd.Context(), pid, name, notifier, nil, 0)
			if err != nil && !silent {
				fmt.Printf("monitor stopped: %v\n", err)
			}
			if err == nil && !silent {
				fmt.Printf("pid %d exited, notification sent.\n", pid)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "friendly name used in the exit notification")
	cmd.Flags().BoolVar(&silent, "silent", false, "suppress terminal output (notification still sent unless MTF_SILENT_MODE is set)")

	return cmd
}
