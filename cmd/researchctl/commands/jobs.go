package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
)

// StatusAction prints the current view of a job as JSON.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	v, err := newClient(cmd).Status(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ExportAction downloads one artifact of a completed job.
func ExportAction(ctx context.Context, cmd *cli.Command) error {
	d, err := newClient(cmd).Export(ctx, cmd.String("id"), cmd.String("format"))
	if err != nil {
		return err
	}
	path, err := writeArtifact(cmd.String("out"), d.Filename, d.Body)
	if err != nil {
		return err
	}
	if path != "stdout" {
		fmt.Fprintf(os.Stderr, "saved %s (%d bytes)\n", path, len(d.Body))
	}
	return nil
}

func DeleteAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	if err := newClient(cmd).Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

// ListAction prints known jobs, newest first.
func ListAction(ctx context.Context, cmd *cli.Command) error {
	list, err := newClient(cmd).List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMODE\tTARGET\tCREATED")
	for _, j := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Status, j.Mode, j.Target, j.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
