package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/genstream/client"
	"github.com/c360/genstream/config"
	"github.com/c360/genstream/metric"
	"github.com/c360/genstream/notify"
)

const shutdownTimeout = 5 * time.Second

// app holds what every subcommand shares once the root command has run
type app struct {
	configPath string
	backend    string
	logLevel   string
	logFormat  string

	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "genstream drives image generation jobs on a workflow backend.",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to a JSON or YAML configuration file")
	flags.StringVar(&a.backend, "backend", "", "Backend base URL, e.g. http://127.0.0.1:8188")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: json, text")

	cmd.AddCommand(
		generateCmd(a),
		watchCmd(a),
		outputsCmd(a),
		interruptCmd(a),
	)

	return cmd
}

// setup loads configuration, applies flag overrides and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if a.configPath != "" {
		loader.AddLayer(a.configPath)
	}
	loader.EnableValidation(false)

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if a.backend != "" {
		cfg.Backend.URL = a.backend
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a.cfg = cfg
	a.logger = setupLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	a.registry = metric.NewMetricsRegistry()

	a.logger.Debug("Configuration loaded",
		"config_path", a.configPath,
		"backend", cfg.Backend.URL,
		"build_time", BuildTime)
	return nil
}

// newClient creates a protocol client for the configured backend. It does
// not connect; commands that need the event stream call Connect.
func (a *app) newClient() (*client.Client, error) {
	c, err := client.New(client.ConfigFrom(a.cfg),
		client.WithLogger(a.logger),
		client.WithMetricsRegistry(a.registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

// newNotifier always logs notifications and also publishes them to NATS
// when notify.nats_url is set. The returned func releases the connection.
func (a *app) newNotifier(ctx context.Context) (notify.Notifier, func(), error) {
	logNotifier := notify.NewLogNotifier(a.logger)
	if a.cfg.Notify.NATSURL == "" {
		return logNotifier, func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.Backend.HandshakeTimeout.Std())
	defer cancel()

	publisher, err := notify.NewNATSNotifier(connectCtx, a.cfg.Notify.NATSURL, a.cfg.Notify.Subject,
		notify.WithClientName(appName),
		notify.WithLogger(a.logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect notifier: %w", err)
	}

	release := func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := publisher.Close(closeCtx); err != nil {
			a.logger.Warn("Failed to close notifier", "error", err)
		}
	}
	return notify.Multi(logNotifier, publisher), release, nil
}

// closeClient closes c with a bounded context that survives cancellation of ctx
func (a *app) closeClient(ctx context.Context, c *client.Client) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := c.Close(closeCtx); err != nil {
		a.logger.Warn("Failed to close client", "error", err)
	}
}
