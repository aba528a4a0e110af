// Package eventbus provides event-driven communication for domain events.
package eventbus

import (
	"context"

	"github.com/dukex/labflow/pkg/events"
)

// Event is any domain event value.
type Event interface {
	GetType() events.EventType
}

// Identified events carry their own occurrence id, reused as the message id so
// consumers can deduplicate redeliveries.
type Identified interface {
	EventID() string
}

// EventPublisher publishes events. The key orders events of one aggregate on
// partitioned transports.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches received events to handlers registered per type.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event, as returned by events.New.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
