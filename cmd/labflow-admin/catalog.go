package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/labflow/pkg/catalog"
	"github.com/dukex/labflow/pkg/cmd"
	"github.com/dukex/labflow/pkg/log"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func CatalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Manage the service catalog",
		Commands: []*cli.Command{
			{
				Name:  "reload",
				Usage: "Replace categories, services and bundles with a catalog document",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the catalog JSON document",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "redis-url",
						Usage:   "Redis URL of the API catalog cache to flush after reload",
						Sources: cli.EnvVars("REDIS_URL"),
					},
					&cli.StringFlag{
						Name:    "event-bus",
						Usage:   "Event bus type (gochannel, kafka) for the reload event",
						Value:   "gochannel",
						Sources: cli.EnvVars("EVENT_BUS_TYPE"),
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

					eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
					if err != nil {
						return err
					}

					defer func() {
						if err := eventBus.Close(); err != nil {
							logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
						}
					}()

					catalogService, closeCatalog, err := cmd.NewCatalog(ctx, p, logger, cmd.CatalogOptions{
						RedisURL: command.String("redis-url"),
						CacheTTL: catalog.DefaultCacheTTL,
					})
					if err != nil {
						return err
					}

					defer func() {
						if err := closeCatalog(); err != nil {
							logger.ErrorContext(ctx, "Failed to close catalog cache", "error", err)
						}
					}()

					if !transactional(p) {
						logger.WarnContext(ctx, "Store is not transactional, a failed reload can leave the catalog partially cleared")
					}

					stack := cmd.NewStack(p, catalogService, eventBus, logger, services.BuildOptions{})

					result, err := reloadCatalog(ctx, stack.Loader, command.String("file"))
					if err != nil {
						return err
					}

					logger.InfoContext(ctx, "Catalog reloaded",
						"categories", result.Categories,
						"services", result.Services,
						"bundles", result.Bundles)

					return nil
				},
			},
		},
	}
}

func reloadCatalog(ctx context.Context, loader *catalog.Loader, path string) (*catalog.ReloadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog document: %w", err)
	}

	return loader.Reload(ctx, data)
}

// transactional reports whether a failed reload rolls back.
func transactional(p persistence.Persistence) bool {
	_, ok := p.(persistence.Transactor)

	return ok
}
