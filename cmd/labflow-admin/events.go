package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dukex/labflow/pkg/cmd"
	"github.com/dukex/labflow/pkg/eventbus"
	"github.com/dukex/labflow/pkg/events"
	"github.com/dukex/labflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Log every domain event published on the bus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("admin")

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := tailEvents(ctx, eventBus, logger); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Listening for events")
			<-ctx.Done()

			return nil
		},
	}
}

// tailEvents registers a logging handler for every event type and subscribes.
func tailEvents(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	for _, eventType := range events.Types {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			logger.InfoContext(ctx, "Event received", "type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
