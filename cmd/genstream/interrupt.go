package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func interruptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt [job-id]",
		Short: "Ask the backend to stop a job, or the running job when no id is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			return a.interrupt(cmd, jobID)
		},
	}
}

func (a *app) interrupt(cmd *cobra.Command, jobID string) error {
	ctx := cmd.Context()

	c, err := a.newClient()
	if err != nil {
		return err
	}
	defer a.closeClient(ctx, c)

	if err := c.InterruptJob(ctx, jobID); err != nil {
		return fmt.Errorf("interrupt: %w", err)
	}

	target := jobID
	if target == "" {
		target = "current job"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "interrupt sent for %s\n", target)
	return nil
}
