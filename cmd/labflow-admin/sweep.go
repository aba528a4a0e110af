package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/dukex/labflow/pkg/cmd"
	"github.com/dukex/labflow/pkg/log"
	"github.com/dukex/labflow/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Delete nodes and edges no workflow or bundle references",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron schedule for repeated sweeps",
				Value:   "@hourly",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Sweep once and exit",
			},
			&cli.DurationFlag{
				Name:    "grace",
				Usage:   "Minimum age of an unreferenced document before it is deleted",
				Value:   sweeper.DefaultGracePeriod,
				Sources: cli.EnvVars("SWEEP_GRACE_PERIOD"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("admin")

			p, err := cmd.NewPersistence(ctx, logger, command.Root().String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := p.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			s := sweeper.New(p, command.Duration("grace"), logger)

			if command.Bool("once") {
				result, err := s.SweepOnce(ctx)
				if err != nil {
					return err
				}

				logger.InfoContext(ctx, "Sweep completed", "nodes", result.Nodes, "edges", result.Edges)

				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return s.Run(ctx, command.String("schedule"))
		},
	}
}
