package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/domain"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	estimateKindReturn   = "return"
	estimateKindExchange = "exchange"
)

// ClaimService handles line status transitions, carrier tracking and claim
// fee estimates
type ClaimService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	engine         *domain.SettlementEngine
	logger         *zap.Logger
	lockTTL        time.Duration
	estimateTTL    time.Duration
}

// NewClaimService creates a new claim service
func NewClaimService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	lockTTL, estimateTTL time.Duration,
) *ClaimService {
	return &ClaimService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		engine:         domain.NewSettlementEngine(),
		logger:         util.GetLogger(),
		lockTTL:        lockTTL,
		estimateTTL:    estimateTTL,
	}
}

// withOrderLock serializes mutations on one order across instances.
func (cs *ClaimService) withOrderLock(ctx context.Context, orderID string, fn func(context.Context) error) error {
	acquired, err := cs.redis.AcquireOrderLock(ctx, orderID, cs.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("order %s is locked by another operation", orderID)
	}
	defer func() {
		if err := cs.redis.ReleaseOrderLock(ctx, orderID); err != nil {
			cs.logger.Error("Failed to release order lock",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// ChangeLineStatus applies one transition plus its fast-forward follow-ups,
// recalculates fees when countability flipped, and persists the audit trail
// under the given initiator.
func (cs *ClaimService) ChangeLineStatus(ctx context.Context, orderID, lineID string, target domain.LineStatus, initiator string) ([]*domain.StatusChange, error) {
	ctx, span := util.StartSpan(ctx, "ClaimService.ChangeLineStatus")
	defer span.End()

	if initiator == "" {
		initiator = domain.InitiatorUser
	}

	var changes []*domain.StatusChange
	err := cs.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		order, err := cs.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}

		now := time.Now()
		change := order.UpdateLineStatus(lineID, target, now)
		if change == nil {
			return fmt.Errorf("line not found: %s", lineID)
		}
		changes = append(changes, change)
		changes = append(changes, order.FastForward(lineID, now)...)
		domain.StampInitiator(changes, initiator)

		recalced, err := cs.recalculateIfNeeded(order, changes)
		if err != nil {
			return err
		}
		if err := cs.store.SaveOrder(ctx, order, nil, changes); err != nil {
			return fmt.Errorf("failed to save status change: %w", err)
		}
		if err := cs.redis.InvalidateEstimates(ctx, orderID); err != nil {
			cs.logger.Warn("Failed to invalidate estimate cache", zap.Error(err))
		}

		cs.publishChanges(ctx, order, changes)
		if recalced {
			cs.publishFeeRecalculated(ctx, order)
		}
		return nil
	})
	return changes, err
}

// ApplyTracking turns a carrier milestone callback into a status transition.
// Callbacks carrying an unknown carrier code are rejected before any line is
// touched.
func (cs *ClaimService) ApplyTracking(ctx context.Context, orderID, lineID, carrierCode, carrierNumber string, level int) error {
	ctx, span := util.StartSpan(ctx, "ClaimService.ApplyTracking")
	defer span.End()

	if carrierCode != "" {
		if err := domain.ValidateShipment(carrierCode, carrierNumber); err != nil {
			util.TrackingCallbacksTotal.WithLabelValues("rejected").Inc()
			return fmt.Errorf("invalid tracking callback: %w", err)
		}
	}

	return cs.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		order, err := cs.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		line, ok := order.Lines[lineID]
		if !ok {
			return fmt.Errorf("line not found: %s", lineID)
		}
		if carrierCode != "" {
			line.CarrierCode = carrierCode
			line.CarrierNumber = carrierNumber
		}

		change := order.ApplyTrackingLevel(lineID, level, time.Now())
		if change == nil {
			util.TrackingCallbacksTotal.WithLabelValues("ignored").Inc()
			// Carrier fields may still have changed.
			return cs.store.SaveOrder(ctx, order, nil, nil)
		}
		change.Initiator = domain.InitiatorSystem

		changes := []*domain.StatusChange{change}
		recalced, err := cs.recalculateIfNeeded(order, changes)
		if err != nil {
			return err
		}
		if err := cs.store.SaveOrder(ctx, order, nil, changes); err != nil {
			return fmt.Errorf("failed to save tracking update: %w", err)
		}
		util.TrackingCallbacksTotal.WithLabelValues("applied").Inc()

		cs.publishChanges(ctx, order, changes)
		if recalced {
			cs.publishFeeRecalculated(ctx, order)
		}
		return nil
	})
}

// EstimateReturnFee quotes the return delivery fee for a claim, serving
// repeated quotes from cache.
func (cs *ClaimService) EstimateReturnFee(ctx context.Context, orderID, lineID string) (decimal.Decimal, error) {
	return cs.estimate(ctx, orderID, lineID, estimateKindReturn)
}

// EstimateExchangeFee quotes the exchange delivery fee for a claim.
func (cs *ClaimService) EstimateExchangeFee(ctx context.Context, orderID, lineID string) (decimal.Decimal, error) {
	return cs.estimate(ctx, orderID, lineID, estimateKindExchange)
}

func (cs *ClaimService) estimate(ctx context.Context, orderID, lineID, kind string) (decimal.Decimal, error) {
	ctx, span := util.StartSpan(ctx, "ClaimService.Estimate")
	defer span.End()

	if cached, err := cs.redis.GetCachedEstimate(ctx, orderID, lineID, kind); err == nil && cached != "" {
		return decimal.NewFromString(cached)
	}

	order, err := cs.store.GetOrder(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}

	var fee decimal.Decimal
	switch kind {
	case estimateKindReturn:
		fee, err = cs.engine.CalculateReturnFee(order, lineID)
	case estimateKindExchange:
		fee, err = cs.engine.CalculateExchangeFee(order, lineID)
	default:
		return decimal.Zero, fmt.Errorf("unknown estimate kind: %s", kind)
	}
	if err != nil {
		return decimal.Zero, err
	}

	if err := cs.store.SaveOrder(ctx, order, nil, nil); err != nil {
		return decimal.Zero, fmt.Errorf("failed to persist calculated fee: %w", err)
	}
	if err := cs.redis.CacheEstimate(ctx, orderID, lineID, kind, fee.String(), cs.estimateTTL); err != nil {
		cs.logger.Warn("Failed to cache estimate", zap.Error(err))
	}
	return fee, nil
}

func (cs *ClaimService) recalculateIfNeeded(order *domain.Order, changes []*domain.StatusChange) (bool, error) {
	flipped := false
	for _, c := range changes {
		if c.FlipsCountability() {
			flipped = true
			break
		}
	}
	if !flipped {
		return false, nil
	}
	start := time.Now()
	if err := order.RecalculateFees(); err != nil {
		return false, fmt.Errorf("fee recalculation failed: %w", err)
	}
	util.FeeRecalculationsTotal.Inc()
	util.FeeRecalculationLatency.Observe(time.Since(start).Seconds())
	return true, nil
}

func (cs *ClaimService) publishFeeRecalculated(ctx context.Context, order *domain.Order) {
	event := &models.FeeRecalculatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeFeeRecalculated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		PVAmount:    order.CurrPVAmount,
		DeliveryFee: order.CurrDeliveryFee,
	}
	if err := cs.eventPublisher.PublishFeeRecalculated(ctx, event); err != nil {
		cs.logger.Error("Failed to publish FeeRecalculated event", zap.Error(err))
	}
}

func (cs *ClaimService) publishChanges(ctx context.Context, order *domain.Order, changes []*domain.StatusChange) {
	for _, c := range changes {
		util.LineStatusChangesTotal.WithLabelValues(string(c.To)).Inc()
		event := &models.LineStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeLineStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID:    order.ID,
			LineID:     c.LineID,
			FromStatus: string(c.From),
			ToStatus:   string(c.To),
			Countable:  c.Countable,
			OccurredAt: c.OccurredAt,
		}
		if err := cs.eventPublisher.PublishLineStatusChanged(ctx, event); err != nil {
			cs.logger.Error("Failed to publish LineStatusChanged event", zap.Error(err))
		}
	}
}
