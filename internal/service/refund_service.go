package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/domain"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefundService runs the cancellation and refund settlement flow
type RefundService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	gateway        *GatewayClient
	engine         *domain.SettlementEngine
	logger         *zap.Logger
	lockTTL        time.Duration
}

// NewRefundService creates a new refund service
func NewRefundService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	gateway *GatewayClient,
	lockTTL time.Duration,
) *RefundService {
	return &RefundService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		gateway:        gateway,
		engine:         domain.NewSettlementEngine(),
		logger:         util.GetLogger(),
		lockTTL:        lockTTL,
	}
}

// cancelIdemTTL is how long a completed cancellation request stays
// replayable under its idempotency key.
const cancelIdemTTL = 24 * time.Hour

// CancelLineRequest asks for one line to be canceled and refunded
type CancelLineRequest struct {
	LineID         string `json:"line_id" binding:"required"`
	Context        string `json:"context" binding:"required"`
	Note           string `json:"note,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CancelResult reports the applied settlement
type CancelResult struct {
	Settlement *domain.Settlement     `json:"settlement"`
	Records    []*domain.RefundRecord `json:"records"`
}

// CancelLine settles and applies a partial cancellation. The settlement is
// persisted as an outstanding record before any side effect, so a crash
// between gateway refund and commit replays the same amounts.
func (rs *RefundService) CancelLine(ctx context.Context, orderID string, req *CancelLineRequest) (*CancelResult, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.CancelLine")
	defer span.End()

	idemKey := cancelIdemKey(orderID, req.IdempotencyKey)
	if replayed, err := rs.replayedResult(ctx, idemKey); err != nil {
		return nil, err
	} else if replayed != nil {
		return replayed, nil
	}

	var result *CancelResult
	err := rs.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		order, err := rs.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}

		settlement, err := rs.engine.SettlePartial(order, req.LineID, domain.CancellationContext(req.Context), req.Note)
		if err != nil {
			rs.countRejection(err)
			return err
		}
		util.RefundSettlementsTotal.WithLabelValues(string(settlement.Context)).Inc()

		// Persist the outstanding record (and any absorbed loss fee) before
		// touching the gateway.
		if err := rs.store.SaveOrder(ctx, order, nil, nil); err != nil {
			return fmt.Errorf("failed to persist settlement: %w", err)
		}
		rs.publishSettled(ctx, order, settlement)

		records, err := rs.applySettlement(ctx, order, settlement)
		if err != nil {
			return err
		}
		result = &CancelResult{Settlement: settlement, Records: records}
		return nil
	})
	if err == nil {
		rs.storeResult(ctx, idemKey, result)
	}
	return result, err
}

// CancelOrder settles and applies a full cancellation: every credit balance
// plus the remaining gateway charge.
func (rs *RefundService) CancelOrder(ctx context.Context, orderID, note, idempotencyKey string) (*CancelResult, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.CancelOrder")
	defer span.End()

	idemKey := cancelIdemKey(orderID, idempotencyKey)
	if replayed, err := rs.replayedResult(ctx, idemKey); err != nil {
		return nil, err
	} else if replayed != nil {
		return replayed, nil
	}

	var result *CancelResult
	err := rs.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		order, err := rs.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}

		settlement, err := rs.engine.SettleFull(order, note)
		if err != nil {
			return err
		}
		util.RefundSettlementsTotal.WithLabelValues("full").Inc()

		if err := rs.store.SaveOrder(ctx, order, nil, nil); err != nil {
			return fmt.Errorf("failed to persist settlement: %w", err)
		}
		rs.publishSettled(ctx, order, settlement)

		records, err := rs.applySettlement(ctx, order, settlement)
		if err != nil {
			return err
		}
		result = &CancelResult{Settlement: settlement, Records: records}
		return nil
	})
	if err == nil {
		rs.storeResult(ctx, idemKey, result)
	}
	return result, err
}

// ApplyOutstandingSettlement re-drives a settlement that was persisted but
// never committed, e.g. after a crash between the gateway call and the final
// save. An order without an outstanding record is a no-op.
func (rs *RefundService) ApplyOutstandingSettlement(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "RefundService.ApplyOutstandingSettlement")
	defer span.End()

	return rs.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		order, err := rs.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		settlement, err := rs.engine.Outstanding(order)
		if err != nil {
			return err
		}
		if settlement == nil {
			return nil
		}
		rs.logger.Info("Re-applying outstanding settlement",
			zap.String("order_id", orderID), zap.String("line_id", settlement.LineID))
		_, err = rs.applySettlement(ctx, order, settlement)
		return err
	})
}

// applySettlement runs the gateway refund, applies the stored settlement to
// the aggregate, transitions the affected lines and commits everything.
func (rs *RefundService) applySettlement(ctx context.Context, order *domain.Order, settlement *domain.Settlement) ([]*domain.RefundRecord, error) {
	if settlement.GatewayAmount.IsPositive() {
		txID, err := rs.gateway.IssueRefund(ctx, order.ID, settlement.GatewayAmount)
		if err != nil {
			// The outstanding record stays in place; a retry reuses it.
			return nil, fmt.Errorf("gateway refund failed: %w", err)
		}
		rs.logger.Info("Gateway portion refunded",
			zap.String("order_id", order.ID), zap.String("tx_id", txID))
		rs.publishGatewayRefund(ctx, order.ID, txID, settlement)
	}

	now := time.Now()
	records, err := rs.engine.ApplyOutstanding(order, now)
	if err != nil {
		return nil, err
	}

	var changes []*domain.StatusChange
	if settlement.Partial {
		if c := order.UpdateLineStatus(settlement.LineID, settlement.TargetStatus, now); c != nil {
			changes = append(changes, c)
		}
	} else {
		changes = order.BulkUpdateStatus(settlement.TargetStatus, now)
	}
	domain.StampInitiator(changes, settlement.Context.Initiator())

	if err := order.RecalculateFees(); err != nil {
		return nil, fmt.Errorf("fee recalculation failed: %w", err)
	}
	util.FeeRecalculationsTotal.Inc()

	if err := rs.store.SaveOrder(ctx, order, records, changes); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}
	util.RefundAppliedTotal.Inc()

	if err := rs.redis.InvalidateEstimates(ctx, order.ID); err != nil {
		rs.logger.Warn("Failed to invalidate estimate cache", zap.Error(err))
	}

	recordIDs := make([]string, 0, len(records))
	for _, r := range records {
		recordIDs = append(recordIDs, r.ID)
	}
	event := &models.RefundAppliedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRefundApplied,
			Timestamp: now,
		},
		OrderID:   order.ID,
		LineID:    settlement.LineID,
		RecordIDs: recordIDs,
	}
	if err := rs.eventPublisher.PublishRefundApplied(ctx, event); err != nil {
		rs.logger.Error("Failed to publish RefundApplied event", zap.Error(err))
	}
	feeEvent := &models.FeeRecalculatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeFeeRecalculated,
			Timestamp: now,
		},
		OrderID:     order.ID,
		PVAmount:    order.CurrPVAmount,
		DeliveryFee: order.CurrDeliveryFee,
	}
	if err := rs.eventPublisher.PublishFeeRecalculated(ctx, feeEvent); err != nil {
		rs.logger.Error("Failed to publish FeeRecalculated event", zap.Error(err))
	}

	return records, nil
}

// QuoteLineRefund computes the fee delta a cancellation would cause without
// committing anything.
func (rs *RefundService) QuoteLineRefund(ctx context.Context, orderID, lineID string) (*domain.Settlement, error) {
	order, err := rs.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	delta, err := rs.engine.FeeDelta(order, lineID)
	if err != nil {
		return nil, err
	}
	line, ok := order.Lines[lineID]
	if !ok {
		return nil, fmt.Errorf("line not found: %s", lineID)
	}
	return &domain.Settlement{
		Partial:         true,
		LineID:          lineID,
		RequestedAmount: line.Value().Add(delta),
	}, nil
}

// GetRefundLedger returns the immutable refund history of an order.
func (rs *RefundService) GetRefundLedger(ctx context.Context, orderID string) ([]models.RefundRecordRow, error) {
	return rs.store.GetRefundRecords(ctx, orderID)
}

func (rs *RefundService) withOrderLock(ctx context.Context, orderID string, fn func(context.Context) error) error {
	acquired, err := rs.redis.AcquireOrderLock(ctx, orderID, rs.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("order %s is locked by another operation", orderID)
	}
	defer func() {
		if err := rs.redis.ReleaseOrderLock(ctx, orderID); err != nil {
			rs.logger.Error("Failed to release order lock",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (rs *RefundService) countRejection(err error) {
	switch {
	case errors.Is(err, domain.ErrNotEligible):
		util.RefundRejectionsTotal.WithLabelValues("not_eligible").Inc()
	case errors.Is(err, domain.ErrNegativeRefund):
		util.RefundRejectionsTotal.WithLabelValues("negative_refund").Inc()
	case errors.Is(err, domain.ErrUnknownContext):
		util.RefundRejectionsTotal.WithLabelValues("unknown_context").Inc()
	}
}

// cancelIdemKey namespaces a caller-supplied idempotency key per order.
// Empty when the caller sent none.
func cancelIdemKey(orderID, key string) string {
	if key == "" {
		return ""
	}
	return fmt.Sprintf("cancel:%s:%s", orderID, key)
}

// replayedResult returns the stored outcome of an already-completed
// cancellation request, nil on miss.
func (rs *RefundService) replayedResult(ctx context.Context, idemKey string) (*CancelResult, error) {
	if idemKey == "" {
		return nil, nil
	}
	stored, err := rs.redis.GetIdempotencyKey(ctx, idemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check cancellation idempotency: %w", err)
	}
	if stored == "" {
		return nil, nil
	}
	var result CancelResult
	if err := json.Unmarshal([]byte(stored), &result); err != nil {
		return nil, fmt.Errorf("failed to parse stored cancellation result: %w", err)
	}
	rs.logger.Info("Replaying completed cancellation", zap.String("key", idemKey))
	return &result, nil
}

func (rs *RefundService) storeResult(ctx context.Context, idemKey string, result *CancelResult) {
	if idemKey == "" {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		rs.logger.Error("Failed to serialize cancellation result", zap.Error(err))
		return
	}
	if err := rs.redis.SetIdempotencyKey(ctx, idemKey, string(raw), cancelIdemTTL); err != nil {
		rs.logger.Warn("Failed to store cancellation idempotency key", zap.Error(err))
	}
}

func (rs *RefundService) publishGatewayRefund(ctx context.Context, orderID, txID string, settlement *domain.Settlement) {
	event := &models.GatewayRefundIssuedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeGatewayRefundIssued,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		TxID:    txID,
		Amount:  settlement.GatewayAmount,
	}
	if err := rs.eventPublisher.PublishGatewayRefundIssued(ctx, event); err != nil {
		rs.logger.Error("Failed to publish GatewayRefundIssued event", zap.Error(err))
	}
}

func (rs *RefundService) publishSettled(ctx context.Context, order *domain.Order, settlement *domain.Settlement) {
	deductions := make([]models.RefundDeductionData, 0, len(settlement.Deductions))
	for _, dd := range settlement.Deductions {
		deductions = append(deductions, models.RefundDeductionData{
			CreditID: dd.CreditID,
			LineID:   dd.LineID,
			Amount:   dd.Amount,
		})
	}
	event := &models.RefundSettledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRefundSettled,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		LineID:        settlement.LineID,
		Context:       string(settlement.Context),
		Requested:     settlement.RequestedAmount,
		GatewayAmount: settlement.GatewayAmount,
		PointAmount:   settlement.PointAmount,
		Deductions:    deductions,
	}
	if err := rs.eventPublisher.PublishRefundSettled(ctx, event); err != nil {
		rs.logger.Error("Failed to publish RefundSettled event", zap.Error(err))
	}
}
