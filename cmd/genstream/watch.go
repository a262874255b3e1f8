package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/c360/genstream/protocol"
	"github.com/c360/genstream/transport"
)

func watchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Log every event the backend sends until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watch(cmd)
		},
	}
}

func (a *app) watch(cmd *cobra.Command) error {
	ctx := cmd.Context()

	c, err := a.newClient()
	if err != nil {
		return err
	}
	defer a.closeClient(ctx, c)

	stopHTTP, err := a.serveHTTP(ctx, c)
	if err != nil {
		return err
	}
	defer stopHTTP()

	logger := a.logger.With("component", "watch")

	unsubscribe := []func(){
		c.OnConnection(func(ev transport.StateEvent) {
			if ev.Err != nil {
				logger.Warn("Connection", "state", ev.State.String(), "reconnect", ev.Reconnect, "error", ev.Err)
				return
			}
			logger.Info("Connection", "state", ev.State.String(), "reconnect", ev.Reconnect)
		}),
		c.OnStatus(func(ev protocol.Status) {
			logger.Info("Status", "queue_remaining", ev.QueueRemaining, "sid", ev.SessionID)
		}),
		c.OnExecuting(func(ev protocol.Executing) {
			if ev.Terminal() {
				logger.Info("Job finished", "job_id", ev.JobID)
				return
			}
			logger.Info("Executing", "job_id", ev.JobID, "node", ev.Node)
		}),
		c.OnProgress(func(ev protocol.Progress) {
			logger.Info("Progress", "job_id", ev.JobID, "node", ev.Node, "value", ev.Value, "max", ev.Max)
		}),
		c.OnPreview(func(ev protocol.Preview) {
			logger.Info("Preview", "job_id", ev.JobID, "format", ev.Format.String(),
				"size", humanize.Bytes(uint64(len(ev.Data))))
		}),
	}
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}()

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", a.cfg.Backend.URL, err)
	}
	logger.Info("Watching backend events", "backend", a.cfg.Backend.URL, "client_id", c.ID())

	<-ctx.Done()
	logger.Info("Stopped watching")
	return nil
}
