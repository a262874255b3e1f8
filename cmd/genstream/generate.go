package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/c360/genstream/generation"
)

type generateOptions struct {
	workflow    string
	outputSlots []string
	name        string
	outputDir   string
}

func generateCmd(a *app) *cobra.Command {
	o := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate --workflow graph.json --output-slot <node>",
		Short: "Run one generation and save its outputs.",
		Long: `Submit a workflow graph, follow its progress and download the artifacts of
the requested output slots. The first --output-slot is the primary slot: the
run reports no output when it is empty. Ctrl-C cancels the run and asks the
backend to interrupt the job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.generate(cmd, o)
		},
	}
	cmd.Flags().StringVarP(&o.workflow, "workflow", "w", "", "Path to the workflow graph (JSON)")
	cmd.Flags().StringArrayVarP(&o.outputSlots, "output-slot", "s", nil, "Output node id to collect; repeatable, first is primary")
	cmd.Flags().StringVar(&o.name, "name", "", "Name used in notifications (default: workflow file name)")
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", "", "Directory for downloaded artifacts (default: generation.output_dir)")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("output-slot")
	return cmd
}

func (a *app) generate(cmd *cobra.Command, o *generateOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	workflow, err := readWorkflow(o.workflow)
	if err != nil {
		return err
	}
	name := o.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(o.workflow), filepath.Ext(o.workflow))
	}
	outputDir := o.outputDir
	if outputDir == "" {
		outputDir = a.cfg.Generation.OutputDir
	}

	notifier, releaseNotifier, err := a.newNotifier(ctx)
	if err != nil {
		return err
	}
	defer releaseNotifier()

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

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", a.cfg.Backend.URL, err)
	}

	gen := a.cfg.Generation
	orchestrator := generation.New(c, outputDir,
		generation.WithObserver(newProgressPrinter(out)),
		generation.WithNotifier(notifier),
		generation.WithInterruptTimeout(gen.InterruptTimeout.Std()),
		generation.WithPreviewFrames(gen.PreviewFrames),
		generation.WithDownloadConcurrency(gen.DownloadConcurrency),
		generation.WithLogger(a.logger),
		generation.WithMetrics(a.registry.CoreMetrics()),
	)

	result, err := orchestrator.Run(ctx, generation.Request{
		Name:        name,
		Workflow:    workflow,
		OutputSlots: o.outputSlots,
	})
	orchestrator.Wait()
	if err != nil {
		return err
	}

	printResult(out, result)
	if result.Outcome == generation.NoOutput {
		return fmt.Errorf("job %s produced no output in slot %s", result.JobID, o.outputSlots[0])
	}
	return nil
}

// readWorkflow loads the graph file and keeps it as raw JSON so it reaches
// the backend unchanged
func readWorkflow(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("read workflow: %s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

func printResult(w io.Writer, result generation.Result) {
	fmt.Fprintf(w, "%s: %s in %s\n", result.JobID, result.Outcome, result.Duration.Round(time.Millisecond))
	for _, path := range result.Files {
		size := "?"
		if info, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(w, "  %s (%s)\n", path, size)
	}
}
