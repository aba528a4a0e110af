package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/labflow/pkg/events"
)

// WatermillEventBus carries domain events over a single watermill topic. The event
// type travels in message metadata so subscribers decode without a type switch.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[events.EventType][]EventHandler
}

type Option func(*WatermillEventBus)

// WithLogger sets the logger used for dropped and failed messages.
func WithLogger(logger *slog.Logger) Option {
	return func(eb *WatermillEventBus) {
		eb.logger = logger
	}
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, opts ...Option) *WatermillEventBus {
	eb := &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		handlers:   make(map[events.EventType][]EventHandler),
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
	}

	id := eb.GenerateID()
	if identified, ok := event.(Identified); ok && identified.EventID() != "" {
		id = identified.EventID()
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	if err := eb.publisher.Publish(events.Topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	return nil
}

// Subscribe starts dispatching in the background until ctx is done. Messages with no
// registered handler are acknowledged and skipped.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			if err := eb.dispatch(ctx, msg); err != nil {
				eb.logger.ErrorContext(ctx, "event handler failed, message will be redelivered",
					"message_id", msg.UUID,
					"error", err,
				)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

var errUndecodable = errors.New("undecodable event")

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) error {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handlers := eb.handlers[eventType]
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	event, known := events.New(eventType)
	if !known {
		eb.logger.WarnContext(ctx, "dropping event of unknown type", "message_id", msg.UUID, "event_type", eventType)

		return nil
	}

	// Redelivery cannot fix a malformed payload, so it is dropped.
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		eb.logger.WarnContext(ctx, "dropping event",
			"message_id", msg.UUID,
			"event_type", eventType,
			"error", errors.Join(errUndecodable, err),
		)

		return nil
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return fmt.Errorf("%s handler: %w", eventType, err)
		}
	}

	return nil
}

// Handle adds handler for eventType. Handlers of one type run in registration order.
func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s", eventType)
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)

	return nil
}

func (eb *WatermillEventBus) Close() error {
	return errors.Join(eb.publisher.Close(), eb.subscriber.Close())
}
