package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/labflow/pkg/catalog"
	"github.com/dukex/labflow/pkg/cmd"
	"github.com/dukex/labflow/pkg/log"
	"github.com/dukex/labflow/pkg/otelhelper"
	"github.com/dukex/labflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "labflow-api",
		Usage:                 "Order lab services through workflows, jobs and statements of work",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (memory://, file://<dir>, postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the catalog cache, disabled when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "catalog-cache-ttl",
				Usage:   "Lifetime of cached catalog services",
				Value:   catalog.DefaultCacheTTL,
				Sources: cli.EnvVars("CATALOG_CACHE_TTL"),
			},
			&cli.StringFlag{
				Name:    "build-mode",
				Usage:   "Graph build mode (best-effort, transactional)",
				Value:   string(services.BuildModeBestEffort),
				Sources: cli.EnvVars("BUILD_MODE"),
			},
			&cli.IntFlag{
				Name:    "build-concurrency",
				Usage:   "Maximum concurrent node writes per graph build",
				Value:   services.DefaultBuildConcurrency,
				Sources: cli.EnvVars("BUILD_CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "enforce-allowed-connections",
				Usage:   "Reject edges between services that do not allow the connection",
				Sources: cli.EnvVars("ENFORCE_ALLOWED_CONNECTIONS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))
			logger = log.WithModule("api")

			logger.InfoContext(ctx, "Initializing labflow API")

			mode, err := services.ParseBuildMode(command.String("build-mode"))
			if err != nil {
				return err
			}

			if command.Bool("tracing") {
				tracerProvider, err := otelhelper.NewTracerProvider(ctx, "labflow-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := tracerProvider.Shutdown(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			catalogService, closeCatalog, err := cmd.NewCatalog(ctx, persistence, logger, cmd.CatalogOptions{
				RedisURL: command.String("redis-url"),
				CacheTTL: command.Duration("catalog-cache-ttl"),
			})
			if err != nil {
				return err
			}

			defer func() {
				if err := closeCatalog(); err != nil {
					logger.ErrorContext(ctx, "Failed to close catalog cache", "error", err)
				}
			}()

			stack := cmd.NewStack(persistence, catalogService, eventBus, logger, services.BuildOptions{
				Mode:                      mode,
				Concurrency:               command.Int("build-concurrency"),
				EnforceAllowedConnections: command.Bool("enforce-allowed-connections"),
			})

			api := NewAPI(logger, stack)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("labflow-api exited", "error", err)
		os.Exit(1)
	}
}
