package services

import (
	"context"
	"log/slog"

	"github.com/dukex/labflow/pkg/eventbus"
)

// emitter publishes domain events after the operation producing them has committed.
// Publishing failures are logged and never fail the operation.
type emitter struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func (e emitter) emit(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.GetType(),
			"key", key,
			"error", err,
		)
	}
}

type pendingEvent struct {
	key   string
	event eventbus.Event
}
