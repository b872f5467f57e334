// Command taskflow is the CLI entrypoint: a bare "<config>"
// argument drives one queue to completion in the foreground, "web"
// serves the HTTP/WS API, "status" lists other live instances, and
// "monitor" watches an external PID. Grounded on the cobra command
// tree in cklxx-elephant.ai's cmd/cobra_cli.go (NewRootCommand +
// AddCommand per subcommand).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskflow-dev/taskflow/internal/logger"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "taskflow [config]",
		Short:         "Multi-queue GPU task supervisor",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			logger.Init(logLevel(verbose), true)
			return runForeground(args[0])
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	root.AddCommand(newWebCommand(&verbose))
	root.AddCommand(newStatusCommand())
	root.AddCommand(newMonitorCommand())

	return root
}

func logLevel(verbose bool) string {
	if verbose {
		return "debug"
	}
	return "info"
}
