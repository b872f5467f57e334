package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskflow-dev/taskflow/internal/procdiscovery"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List running taskflow web instances on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, err := procdiscovery.Discover()
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Println("no running taskflow web instances found")
				return nil
			}
			header := color.New(color.Bold).Sprintf("%-8s %-6s %-30s %s", "PID", "PORT", "WORKSPACE", "UPTIME")
			fmt.Println(header)
			for _, in := range instances {
				fmt.Printf("%-8d %-6d %-30s %s\n", in.PID, in.Port, in.Workspace, formatUptime(in.Uptime))
			}
			return nil
		},
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	return d.String()
}
