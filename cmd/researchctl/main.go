package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/suPer8Hu/market-research/cmd/researchctl/commands"
	"github.com/suPer8Hu/market-research/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.New(logger.Config{Level: logger.ParseLevel(os.Getenv("LOG_LEVEL")), Format: "text", Output: os.Stderr})

	idFlag := &cli.StringFlag{Name: "id", Usage: "job id", Required: true}

	app := &cli.Command{
		Name:  "researchctl",
		Usage: "submit and follow market research jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "API base URL",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("RESEARCH_SERVER"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token (see `researchctl token`)",
				Sources: cli.EnvVars("RESEARCH_TOKEN"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "submit a job, wait for it and save the report",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "target", Usage: "product, company or industry to research", Required: true},
					&cli.StringFlag{Name: "mode", Usage: "quick or detailed", Value: "quick"},
					&cli.StringFlag{
						Name:     "credentials",
						Usage:    "API key for the AI provider",
						Sources:  cli.EnvVars("RESEARCH_API_KEY"),
						Required: true,
					},
					&cli.StringFlag{Name: "format", Usage: "markdown, html, citations or json", Value: "markdown"},
					&cli.StringFlag{Name: "out", Usage: "output file or directory, - for stdout"},
					&cli.DurationFlag{Name: "interval", Usage: "first poll interval", Value: 10 * time.Second},
					&cli.DurationFlag{Name: "max-interval", Usage: "poll interval cap", Value: 30 * time.Second},
					&cli.IntFlag{Name: "max-attempts", Usage: "poll budget", Value: 60},
				},
				Action: commands.RunAction,
			},
			{
				Name:   "status",
				Usage:  "show a job",
				Flags:  []cli.Flag{idFlag},
				Action: commands.StatusAction,
			},
			{
				Name:  "export",
				Usage: "download a completed job's report",
				Flags: []cli.Flag{
					idFlag,
					&cli.StringFlag{Name: "format", Usage: "markdown, html, citations or json", Value: "markdown"},
					&cli.StringFlag{Name: "out", Usage: "output file or directory, - for stdout"},
				},
				Action: commands.ExportAction,
			},
			{
				Name:   "delete",
				Usage:  "delete a job",
				Flags:  []cli.Flag{idFlag},
				Action: commands.DeleteAction,
			},
			{
				Name:   "list",
				Usage:  "list jobs",
				Action: commands.ListAction,
			},
			{
				Name:  "token",
				Usage: "mint a bearer token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Usage: "HS256 secret", Sources: cli.EnvVars("AUTH_JWT_SECRET"), Required: true},
					&cli.StringFlag{Name: "subject", Usage: "token subject", Value: "researchctl"},
					&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: 24 * time.Hour},
				},
				Action: commands.TokenAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
