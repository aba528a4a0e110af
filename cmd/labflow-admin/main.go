// Package main provides the labflow administration tool.
package main

import (
	"context"
	"os"

	"github.com/dukex/labflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("admin")

	command := &cli.Command{
		Name:                  "labflow-admin",
		Usage:                 "Maintain the labflow catalog and stores",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (memory://, file://<dir>, postgres://)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			CatalogCommand(),
			SweepCommand(),
			EventsCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("labflow-admin exited", "error", err)
		os.Exit(1)
	}
}
