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

// OrderService handles order creation and lifecycle
type OrderService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
) *OrderService {
	return &OrderService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	UserID         string                 `json:"user_id" binding:"required"`
	Country        string                 `json:"country" binding:"required"`
	PostalCode     string                 `json:"postal_code" binding:"required"`
	Groups         []GroupRequest         `json:"groups"`
	Products       []ProductRequest       `json:"products" binding:"required,min=1"`
	Lines          []LineRequest          `json:"lines" binding:"required,min=1"`
	GatewayAmount  decimal.Decimal        `json:"gateway_amount"`
	Credits        []PointCreditRequest   `json:"credits"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

// GroupRequest is a shipment group in an order request
type GroupRequest struct {
	ID                   string          `json:"id" binding:"required"`
	SupplierGroupID      string          `json:"supplier_group_id"`
	SupplierName         string          `json:"supplier_name"`
	DiscountMethod       string          `json:"discount_method"`
	RegionDivisionLevel  int             `json:"region_division_level"`
	Division2Fee         decimal.Decimal `json:"division2_fee"`
	Division3JejuFee     decimal.Decimal `json:"division3_jeju_fee"`
	Division3OutsideFee  decimal.Decimal `json:"division3_outside_fee"`
	AdditionalPricingSet bool            `json:"additional_pricing_set"`
}

// ProductRequest is a product snapshot in an order request
type ProductRequest struct {
	ID                      string          `json:"id" binding:"required"`
	GroupID                 string          `json:"group_id"`
	Title                   string          `json:"title"`
	SupplierID              string          `json:"supplier_id"`
	PricingMethod           string          `json:"pricing_method" binding:"required"`
	HasDeliverySchedule     bool            `json:"has_delivery_schedule"`
	BaseFee                 decimal.Decimal `json:"base_fee"`
	ChargeStandard          decimal.Decimal `json:"charge_standard"`
	ExchangeFee             decimal.Decimal `json:"exchange_fee"`
	ReturnFee               decimal.Decimal `json:"return_fee"`
	ReturnFeeIfFreeDelivery decimal.Decimal `json:"return_fee_if_free_delivery"`
}

// LineRequest is an order line in an order request
type LineRequest struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id" binding:"required"`
	Title     string          `json:"title"`
	SellPrice decimal.Decimal `json:"sell_price" binding:"required"`
	Quantity  int64           `json:"quantity" binding:"required,min=1"`
}

// PointCreditRequest is a point credit in an order request
type PointCreditRequest struct {
	ID           string          `json:"id"`
	Priority     int             `json:"priority"`
	ProviderName string          `json:"provider_name"`
	ProviderCode string          `json:"provider_code"`
	LineID       string          `json:"line_id"`
	GroupID      string          `json:"group_id"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID     string          `json:"order_id"`
	Status      string          `json:"status"`
	PVAmount    decimal.Decimal `json:"pv_amount"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
}

// CreateOrder builds the aggregate, runs the initial fee aggregation and
// persists the snapshot.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existingID, err := s.store.GetOrderIDByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existingID != "" {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("order_id", existingID))
		existing, err := s.store.GetOrder(ctx, existingID)
		if err != nil {
			return nil, err
		}
		return &CreateOrderResponse{
			OrderID:     existing.ID,
			Status:      string(existing.Status),
			PVAmount:    existing.CurrPVAmount,
			DeliveryFee: existing.CurrDeliveryFee,
		}, nil
	}

	order, err := s.buildAggregate(req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	start := time.Now()
	if err := order.RecalculateFees(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("fee_calculation").Inc()
		return nil, fmt.Errorf("fee calculation failed: %w", err)
	}
	util.FeeRecalculationsTotal.Inc()
	util.FeeRecalculationLatency.Observe(time.Since(start).Seconds())
	order.SnapshotInitialFees()

	if err := s.store.CreateOrder(ctx, order, req.IdempotencyKey); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("delivery_fee", order.CurrDeliveryFee.String()))

	lineIDs := make([]string, 0, len(order.Lines))
	for id := range order.Lines {
		lineIDs = append(lineIDs, id)
	}
	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		UserID:      order.UserID,
		PVAmount:    order.CurrPVAmount,
		DeliveryFee: order.CurrDeliveryFee,
		LineIDs:     lineIDs,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID:     order.ID,
		Status:      string(order.Status),
		PVAmount:    order.CurrPVAmount,
		DeliveryFee: order.CurrDeliveryFee,
	}, nil
}

func (s *OrderService) buildAggregate(req *CreateOrderRequest) (*domain.Order, error) {
	order := &domain.Order{
		ID:         "ORD-" + uuid.New().String()[:12],
		UserID:     req.UserID,
		Country:    req.Country,
		PostalCode: req.PostalCode,
		Region:     domain.ResolveRegion(req.PostalCode),
		Status:     domain.OrderPaymentRequired,
		Lines:      map[string]*domain.OrderLine{},
		Products:   map[string]*domain.Product{},
		Groups:     map[string]*domain.ShipmentGroup{},
	}

	for _, g := range req.Groups {
		order.Groups[g.ID] = &domain.ShipmentGroup{
			ID:                   g.ID,
			SupplierGroupID:      g.SupplierGroupID,
			SupplierName:         g.SupplierName,
			DiscountMethod:       domain.DiscountMethod(g.DiscountMethod),
			RegionDivisionLevel:  g.RegionDivisionLevel,
			Division2Fee:         g.Division2Fee,
			Division3JejuFee:     g.Division3JejuFee,
			Division3OutsideFee:  g.Division3OutsideFee,
			AdditionalPricingSet: g.AdditionalPricingSet,
		}
	}

	for _, p := range req.Products {
		if p.GroupID != "" {
			if _, ok := order.Groups[p.GroupID]; !ok {
				return nil, fmt.Errorf("product %s references unknown group %s", p.ID, p.GroupID)
			}
		}
		order.Products[p.ID] = &domain.Product{
			ID:                      p.ID,
			GroupID:                 p.GroupID,
			Title:                   p.Title,
			SupplierID:              p.SupplierID,
			PricingMethod:           domain.PricingMethod(p.PricingMethod),
			HasDeliverySchedule:     p.HasDeliverySchedule,
			BaseFee:                 p.BaseFee,
			ChargeStandard:          p.ChargeStandard,
			ExchangeFee:             p.ExchangeFee,
			ReturnFee:               p.ReturnFee,
			ReturnFeeIfFreeDelivery: p.ReturnFeeIfFreeDelivery,
		}
	}

	for _, l := range req.Lines {
		product, ok := order.Products[l.ProductID]
		if !ok {
			return nil, fmt.Errorf("line references unknown product %s", l.ProductID)
		}
		lineID := l.ID
		if lineID == "" {
			lineID = "LN-" + uuid.New().String()[:12]
		}
		order.Lines[lineID] = &domain.OrderLine{
			ID:              lineID,
			ProductID:       l.ProductID,
			GroupID:         product.GroupID,
			Title:           l.Title,
			Status:          domain.StatusPaymentRequired,
			SellPrice:       l.SellPrice,
			Quantity:        l.Quantity,
			ReturnFeeMethod: domain.ReturnFeeDefault,
		}
	}

	pointTotal := decimal.Zero
	credits := make([]*domain.PointCredit, 0, len(req.Credits))
	for _, c := range req.Credits {
		creditID := c.ID
		if creditID == "" {
			creditID = "PC-" + uuid.New().String()[:12]
		}
		if c.LineID != "" {
			if _, ok := order.Lines[c.LineID]; !ok {
				return nil, fmt.Errorf("credit %s references unknown line %s", creditID, c.LineID)
			}
		}
		credits = append(credits, &domain.PointCredit{
			ID:           creditID,
			Priority:     c.Priority,
			ProviderName: c.ProviderName,
			ProviderCode: c.ProviderCode,
			LineID:       c.LineID,
			GroupID:      c.GroupID,
			InitBalance:  c.Amount,
			Balance:      c.Amount,
		})
		pointTotal = pointTotal.Add(c.Amount)
	}

	order.Payment = &domain.PaymentAccount{
		ID:                "PAY-" + uuid.New().String()[:12],
		InitGatewayAmount: req.GatewayAmount,
		CurrGatewayAmount: req.GatewayAmount,
		InitPointAmount:   pointTotal,
		CurrPointAmount:   pointTotal,
		Credits:           credits,
	}

	return order, nil
}

// CompletePayment marks the order paid and fans every line out to the
// fulfillment pipeline.
func (s *OrderService) CompletePayment(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CompletePayment")
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == domain.OrderPaid {
		return nil
	}

	now := time.Now()
	order.MarkPaid(now)
	changes := order.BulkUpdateStatus(domain.StatusCheckRequired, now)
	domain.StampInitiator(changes, domain.InitiatorSystem)
	if err := order.RecalculateFees(); err != nil {
		return fmt.Errorf("fee recalculation failed: %w", err)
	}

	if err := s.store.SaveOrder(ctx, order, nil, changes); err != nil {
		return fmt.Errorf("failed to save paid order: %w", err)
	}
	util.OrdersPaidTotal.Inc()

	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: now,
		},
		OrderID:       order.ID,
		PaymentID:     order.Payment.ID,
		GatewayAmount: order.Payment.CurrGatewayAmount,
		PointAmount:   order.Payment.CurrPointAmount,
	}
	if err := s.eventPublisher.PublishOrderPaid(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}

	s.logger.Info("Order paid", zap.String("order_id", order.ID))
	return nil
}

// FailPayment marks the order failed and fans the lines out to the matching
// payment-fail status.
func (s *OrderService) FailPayment(ctx context.Context, orderID string, failStatus domain.LineStatus, reason string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.FailPayment")
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	now := time.Now()
	order.MarkFailed()
	changes := order.BulkUpdateStatus(failStatus, now)
	domain.StampInitiator(changes, domain.InitiatorSystem)
	if err := order.RecalculateFees(); err != nil {
		return fmt.Errorf("fee recalculation failed: %w", err)
	}

	if err := s.store.SaveOrder(ctx, order, nil, changes); err != nil {
		return fmt.Errorf("failed to save failed order: %w", err)
	}
	util.OrdersFailedTotal.WithLabelValues(reason).Inc()

	event := &models.OrderPaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaymentFailed,
			Timestamp: now,
		},
		OrderID: order.ID,
		Reason:  reason,
	}
	if err := s.eventPublisher.PublishOrderPaymentFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPaymentFailed event", zap.Error(err))
	}

	s.logger.Warn("Order payment failed",
		zap.String("order_id", order.ID), zap.String("reason", reason))
	return nil
}

// GetOrder retrieves the full aggregate with its status audit trail.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, []models.LineStatusLogRow, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.store.GetLineStatusLogs(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, logs, nil
}
