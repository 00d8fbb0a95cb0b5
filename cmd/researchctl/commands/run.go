package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/suPer8Hu/market-research/internal/client"
	"github.com/suPer8Hu/market-research/internal/poller"
)

// RunAction submits a research job, follows it to completion and saves the export.
func RunAction(ctx context.Context, cmd *cli.Command) error {
	c := newClient(cmd)

	cfg := poller.Config{
		InitialInterval: cmd.Duration("interval"),
		MaxInterval:     cmd.Duration("max-interval"),
		Multiplier:      1.5,
		MaxAttempts:     cmd.Int("max-attempts"),
	}
	p := poller.New(c, cfg, progressPrinter(os.Stderr))

	res, err := p.Run(ctx, client.SubmitRequest{
		Target:      cmd.String("target"),
		Mode:        cmd.String("mode"),
		Credentials: cmd.String("credentials"),
	})
	if err != nil {
		if errors.Is(err, poller.ErrCancelled) && res != nil && res.JobID != "" {
			fmt.Fprintf(os.Stderr, "\nstopped following job %s; it keeps running on the server\n", res.JobID)
		}
		return err
	}

	format := cmd.String("format")
	d, err := c.Export(ctx, res.JobID, format)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	path, err := writeArtifact(cmd.String("out"), d.Filename, d.Body)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n✓ job %s completed after %d polls, saved %s\n", res.JobID, res.Attempts, path)
	slog.Debug("research finished", "job_id", res.JobID, "format", format, "path", path)
	return nil
}

func progressPrinter(w io.Writer) poller.Observer {
	lastStage := ""
	return func(e poller.Event) {
		switch {
		case e.State == poller.StateSubmitting:
			fmt.Fprintln(w, "submitting...")
		case e.State == poller.StatePolling && e.Err != nil:
			fmt.Fprintf(w, "  poll %d failed, retrying: %v\n", e.Attempt, e.Err)
		case e.State == poller.StatePolling && e.View != nil && e.View.Progress != nil:
			if e.View.Progress.Stage != lastStage {
				lastStage = e.View.Progress.Stage
				if e.View.Progress.Steps > 0 {
					fmt.Fprintf(w, "  [%d/%d] %s\n", e.View.Progress.Step, e.View.Progress.Steps, lastStage)
				} else {
					fmt.Fprintf(w, "  %s\n", lastStage)
				}
			}
		case e.State == poller.StatePolling && e.JobID != "" && e.Attempt == 0:
			fmt.Fprintf(w, "job %s accepted\n", e.JobID)
		case e.State.Terminal():
			fmt.Fprintf(w, "%s\n", e.State)
		}
	}
}
