package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/c360/genstream/client"
	"github.com/c360/genstream/generation"
)

func outputsCmd(a *app) *cobra.Command {
	var download string
	cmd := &cobra.Command{
		Use:   "outputs <job-id>",
		Short: "Print the output slots of a finished job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.outputs(cmd, args[0], download)
		},
	}
	cmd.Flags().StringVarP(&download, "download", "d", "", "Also download every artifact into this directory")
	return cmd
}

func (a *app) outputs(cmd *cobra.Command, jobID, downloadDir string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	c, err := a.newClient()
	if err != nil {
		return err
	}
	defer a.closeClient(ctx, c)

	outputs, err := c.FetchOutputs(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch outputs of %s: %w", jobID, err)
	}

	slots := make([]string, 0, len(outputs))
	for slot := range outputs {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	printOutputs(out, slots, outputs)
	if downloadDir == "" {
		return nil
	}

	sink := generation.NewFileSink(downloadDir, nil)
	var total int64
	for _, slot := range slots {
		for _, artifact := range outputs.Slot(slot) {
			path, size, err := saveArtifact(cmd, c, sink, jobID, slot, artifact)
			if err != nil {
				return err
			}
			total += size
			fmt.Fprintf(out, "saved %s (%s)\n", path, humanize.Bytes(uint64(size)))
		}
	}
	fmt.Fprintf(out, "%d files, %s\n", outputs.Count(), humanize.Bytes(uint64(total)))
	return nil
}

func printOutputs(w io.Writer, slots []string, outputs client.Outputs) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tFILENAME\tSUBFOLDER\tTYPE")
	for _, slot := range slots {
		for _, artifact := range outputs.Slot(slot) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", slot, artifact.Filename, artifact.Subfolder, artifact.Type)
		}
	}
	_ = tw.Flush()
}

// countingReader reports how many bytes passed through it
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func saveArtifact(cmd *cobra.Command, c *client.Client, sink *generation.FileSink,
	jobID, slot string, artifact client.ArtifactDescriptor) (string, int64, error) {
	body, err := c.Download(cmd.Context(), artifact)
	if err != nil {
		return "", 0, fmt.Errorf("download %s: %w", artifact.Filename, err)
	}
	defer body.Close()

	data := &countingReader{r: body}
	path, err := sink.Process(cmd.Context(), generation.Artifact{
		JobID:      jobID,
		Slot:       slot,
		Descriptor: artifact,
		Data:       data,
	})
	if err != nil {
		return "", 0, fmt.Errorf("save %s: %w", artifact.Filename, err)
	}
	return path, data.n, nil
}
