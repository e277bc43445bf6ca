package worker

import (
	"context"
	"errors"
	"log"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/domain"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// TrackingWorker consumes carrier tracking callbacks and applies the
// resulting line transitions
type TrackingWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	claimService *service.ClaimService
	logger       *zap.Logger
}

// NewTrackingWorker creates a new tracking worker
func NewTrackingWorker(
	consumer *broker.Consumer,
	store *store.Store,
	claimService *service.ClaimService,
) *TrackingWorker {
	w := &TrackingWorker{
		consumer:     consumer,
		store:        store,
		claimService: claimService,
		logger:       util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnTrackingUpdated(w.handleTrackingUpdated)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *TrackingWorker) Start(ctx context.Context) error {
	log.Println("Starting tracking worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *TrackingWorker) Stop() error {
	log.Println("Stopping tracking worker...")
	return w.consumer.Close()
}

// SettlementWorker consumes refund settlement events and re-applies any
// settlement still outstanding on the order. In the normal flow the request
// path applies the settlement itself; this worker picks up the ones where
// the process died between persisting the settlement and committing.
type SettlementWorker struct {
	consumer      *broker.Consumer
	eventHandler  *broker.EventHandler
	store         *store.Store
	refundService *service.RefundService
	logger        *zap.Logger
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(
	consumer *broker.Consumer,
	store *store.Store,
	refundService *service.RefundService,
) *SettlementWorker {
	w := &SettlementWorker{
		consumer:      consumer,
		store:         store,
		refundService: refundService,
		logger:        util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnRefundSettled(w.handleRefundSettled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *SettlementWorker) Start(ctx context.Context) error {
	log.Println("Starting settlement worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SettlementWorker) Stop() error {
	log.Println("Stopping settlement worker...")
	return w.consumer.Close()
}

func (w *SettlementWorker) handleRefundSettled(ctx context.Context, event *models.RefundSettledEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	// A no-op when the request path already applied it; otherwise this
	// replays the stored apportionment.
	if err := w.refundService.ApplyOutstandingSettlement(ctx, event.OrderID); err != nil {
		return err
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (w *TrackingWorker) handleTrackingUpdated(ctx context.Context, event *models.TrackingUpdatedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Info("Applying carrier tracking callback",
		zap.String("order_id", event.OrderID),
		zap.String("line_id", event.LineID),
		zap.Int("level", event.Level))

	err = w.claimService.ApplyTracking(ctx, event.OrderID, event.LineID,
		event.CarrierCode, event.CarrierNumber, event.Level)
	if errors.Is(err, domain.ErrUnknownCarrier) {
		// Redelivery cannot fix a bad carrier code; drop the callback.
		w.logger.Warn("Rejected tracking callback",
			zap.String("event_id", event.EventID), zap.Error(err))
	} else if err != nil {
		return err
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
