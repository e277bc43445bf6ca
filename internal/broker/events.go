package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID string) string {
	return "order-" + orderID
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderPaymentFailed publishes OrderPaymentFailed event
func (ep *EventPublisher) PublishOrderPaymentFailed(ctx context.Context, event *models.OrderPaymentFailedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishLineStatusChanged publishes LineStatusChanged event
func (ep *EventPublisher) PublishLineStatusChanged(ctx context.Context, event *models.LineStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishFeeRecalculated publishes FeeRecalculated event
func (ep *EventPublisher) PublishFeeRecalculated(ctx context.Context, event *models.FeeRecalculatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishRefundSettled publishes RefundSettled event
func (ep *EventPublisher) PublishRefundSettled(ctx context.Context, event *models.RefundSettledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishRefundApplied publishes RefundApplied event
func (ep *EventPublisher) PublishRefundApplied(ctx context.Context, event *models.RefundAppliedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishGatewayRefundIssued publishes GatewayRefundIssued event
func (ep *EventPublisher) PublishGatewayRefundIssued(ctx context.Context, event *models.GatewayRefundIssuedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler routes incoming events to registered callbacks. Event types
// without a registered callback are skipped.
type EventHandler struct {
	onTrackingUpdated func(context.Context, *models.TrackingUpdatedEvent) error
	onRefundSettled   func(context.Context, *models.RefundSettledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnTrackingUpdated registers a handler for carrier tracking events
func (eh *EventHandler) OnTrackingUpdated(handler func(context.Context, *models.TrackingUpdatedEvent) error) {
	eh.onTrackingUpdated = handler
}

// OnRefundSettled registers a handler for settlement events
func (eh *EventHandler) OnRefundSettled(handler func(context.Context, *models.RefundSettledEvent) error) {
	eh.onRefundSettled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeTrackingUpdated:
		if eh.onTrackingUpdated != nil {
			var event models.TrackingUpdatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal TrackingUpdated event: %w", err)
			}
			return eh.onTrackingUpdated(ctx, &event)
		}

	case models.EventTypeRefundSettled:
		if eh.onRefundSettled != nil {
			var event models.RefundSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RefundSettled event: %w", err)
			}
			return eh.onRefundSettled(ctx, &event)
		}

	default:
		util.GetLogger().Debug("Skipping event without handler",
			zap.String("event_type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
	}

	return nil
}
