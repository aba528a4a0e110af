// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/persistence/file"
	"github.com/dukex/labflow/pkg/persistence/memory"
	"github.com/dukex/labflow/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"memory", "file", "postgres", "postgresql"}

// NewPersistence opens the store named by the URL scheme: memory://, file://<dir> or
// postgres://.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, err := parsePersistenceProvider(databaseURL)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Initializing persistence", "provider", provider)

	switch provider {
	case "memory":
		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, error) {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", fmt.Errorf("database url %q has no scheme, expected one of %v", databaseURL, supportedPersistenceProviders)
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider, nil
		}
	}

	return "", fmt.Errorf("unsupported persistence provider %q, expected one of %v", provider, supportedPersistenceProviders)
}
