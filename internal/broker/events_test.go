package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fulfillment-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageFor(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("order-ORD-1"), Value: raw}
}

func TestHandleMessageRoutesRefundSettled(t *testing.T) {
	handler := NewEventHandler()

	var got *models.RefundSettledEvent
	handler.OnRefundSettled(func(_ context.Context, event *models.RefundSettledEvent) error {
		got = event
		return nil
	})

	event := &models.RefundSettledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "EV-1",
			EventType: models.EventTypeRefundSettled,
			Timestamp: time.Now(),
		},
		OrderID: "ORD-1",
		LineID:  "LN-1",
	}

	err := handler.HandleMessage(context.Background(), messageFor(t, event))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ORD-1", got.OrderID)
	assert.Equal(t, "LN-1", got.LineID)
}

func TestHandleMessageRoutesTrackingUpdated(t *testing.T) {
	handler := NewEventHandler()

	var got *models.TrackingUpdatedEvent
	handler.OnTrackingUpdated(func(_ context.Context, event *models.TrackingUpdatedEvent) error {
		got = event
		return nil
	})

	event := &models.TrackingUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "EV-2",
			EventType: models.EventTypeTrackingUpdated,
			Timestamp: time.Now(),
		},
		OrderID: "ORD-1",
		LineID:  "LN-1",
		Level:   6,
	}

	err := handler.HandleMessage(context.Background(), messageFor(t, event))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 6, got.Level)
}

func TestHandleMessageSkipsUnroutedTypes(t *testing.T) {
	handler := NewEventHandler()

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "EV-3",
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID: "ORD-1",
	}

	// No callbacks registered; the message is acknowledged without error.
	err := handler.HandleMessage(context.Background(), messageFor(t, event))
	assert.NoError(t, err)
}

func TestHandleMessageRejectsMalformedPayload(t *testing.T) {
	handler := NewEventHandler()

	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}
