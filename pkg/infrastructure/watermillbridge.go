package infrastructure

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/akeemphilbert/mercato/pkg/domain"
)

// WatermillPublisherHandler is an outbox handler that republishes delivered
// events onto a watermill publisher, one topic per event name. Downstream
// consumers subscribe to the pub/sub instead of polling the outbox tables
// themselves; the poller's processing rows still guarantee each event is
// published exactly once.
type WatermillPublisherHandler struct {
	publisher message.Publisher
	handlerID string
}

// NewWatermillPublisherHandler creates the bridge handler.
func NewWatermillPublisherHandler(publisher message.Publisher) *WatermillPublisherHandler {
	return &WatermillPublisherHandler{
		publisher: publisher,
		handlerID: "watermill-publisher",
	}
}

// ID implements OutboxHandler.
func (h *WatermillPublisherHandler) ID() string {
	return h.handlerID
}

// Handle publishes the event payload to the topic named after the event.
// Publish failures are transient: the broker may come back.
func (h *WatermillPublisherHandler) Handle(_ context.Context, m OutboxMessage) error {
	msg := message.NewMessage(watermill.NewUUID(), []byte(m.Payload))
	msg.Metadata.Set("event_name", m.EventName)
	msg.Metadata.Set("aggregate_id", m.AggregateID)
	msg.Metadata.Set("outbox_id", m.OutboxID)

	if err := h.publisher.Publish(m.EventName, msg); err != nil {
		return domain.NewTransientHandlerError(
			fmt.Errorf("failed to publish %s to topic %s: %w", m.OutboxID, m.EventName, err))
	}
	return nil
}
