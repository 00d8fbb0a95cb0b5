package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/suPer8Hu/market-research/internal/client"
)

// newClient builds an API client from the root flags.
func newClient(cmd *cli.Command) *client.Client {
	opts := []client.Option{}
	if tok := cmd.String("token"); tok != "" {
		opts = append(opts, client.WithToken(tok))
	}
	return client.New(cmd.String("server"), opts...)
}

// writeArtifact writes body to out, or to dir/filename when out is a directory
// or empty. "-" writes to stdout.
func writeArtifact(out, filename string, body []byte) (string, error) {
	if out == "-" {
		_, err := os.Stdout.Write(body)
		return "stdout", err
	}
	path := out
	if path == "" {
		path = filename
	} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, filename)
	}
	if path == "" {
		return "", fmt.Errorf("no output path")
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
