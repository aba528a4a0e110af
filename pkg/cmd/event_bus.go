package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/labflow/pkg/channels/gochannel"
	"github.com/dukex/labflow/pkg/channels/kafka"
	"github.com/dukex/labflow/pkg/eventbus"
)

const serviceName = "labflow"

// NewEventBus creates the domain event bus for the provider: gochannel for a single
// process, kafka with brokers from KAFKA_BROKERS.
func NewEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, eventbus.WithLogger(logger)), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName, kafka.BrokersFromEnv())
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, eventbus.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
