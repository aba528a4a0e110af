package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/labflow/pkg/channels/gochannel"
	"github.com/dukex/labflow/pkg/eventbus"
	"github.com/dukex/labflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.SOWSigned, 1)

	require.NoError(t, bus.Handle(events.SOWSignedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.SOWSigned)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, bus.Subscribe(ctx))

	// Unhandled types are acknowledged and skipped.
	require.NoError(t, bus.Publish(ctx, "job-1", events.JobCreated{
		BaseEvent: events.NewBaseEvent(events.JobCreatedEvent, ""),
		JobID:     "job-1",
	}))

	require.NoError(t, bus.Publish(ctx, "sow-1", events.SOWSigned{
		BaseEvent: events.NewBaseEvent(events.SOWSignedEvent, "tech@example.org"),
		SOWID:     "sow-1",
		JobID:     "job-1",
	}))

	select {
	case event := <-received:
		assert.Equal(t, events.SOWSignedEvent, event.Type)
		assert.Equal(t, "sow-1", string(event.SOWID))
		assert.Equal(t, "tech@example.org", event.Actor)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}

func TestWatermillEventBus_HandlersRunInOrder(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	calls := make(chan string, 2)

	for _, name := range []string{"first", "second"} {
		require.NoError(t, bus.Handle(events.CatalogReloadedEvent, func(_ context.Context, _ any) error {
			calls <- name

			return nil
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, bus.Subscribe(ctx))
	require.NoError(t, bus.Publish(ctx, "catalog", events.CatalogReloaded{
		BaseEvent: events.NewBaseEvent(events.CatalogReloadedEvent, ""),
		Services:  3,
	}))

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatal("handler was not called")
		}
	}
}

func TestWatermillEventBus_MessageIDIsEventID(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	messages, err := sub.Subscribe(ctx, events.Topic)
	require.NoError(t, err)

	event := events.SOWUpserted{BaseEvent: events.NewBaseEvent(events.SOWUpsertedEvent, "tech@example.org")}
	require.NoError(t, bus.Publish(ctx, "job-1", event))

	select {
	case msg := <-messages:
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, "job-1", msg.Metadata.Get(events.EventMetadataKey))
		assert.Equal(t, string(events.SOWUpsertedEvent), msg.Metadata.Get(events.EventTypeMetadataKey))
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestWatermillEventBus_DropsMalformedPayload(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.JobCreated, 2)

	require.NoError(t, bus.Handle(events.JobCreatedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.JobCreated)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, bus.Subscribe(ctx))

	malformed := message.NewMessage(watermill.NewULID(), []byte("{not json"))
	malformed.Metadata.Set(events.EventTypeMetadataKey, string(events.JobCreatedEvent))
	require.NoError(t, pub.Publish(events.Topic, malformed))

	require.NoError(t, bus.Publish(ctx, "job-2", events.JobCreated{
		BaseEvent: events.NewBaseEvent(events.JobCreatedEvent, ""),
		JobID:     "job-2",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "job-2", string(event.JobID))
	case <-time.After(5 * time.Second):
		t.Fatal("event after malformed payload was not delivered")
	}
}

func TestWatermillEventBus_RejectsNilHandler(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	assert.Error(t, bus.Handle(events.JobCreatedEvent, nil))
}
