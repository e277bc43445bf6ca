package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated        = "ORDER_CREATED"
	EventTypeOrderPaid           = "ORDER_PAID"
	EventTypeOrderPaymentFailed  = "ORDER_PAYMENT_FAILED"
	EventTypeLineStatusChanged   = "LINE_STATUS_CHANGED"
	EventTypeFeeRecalculated     = "FEE_RECALCULATED"
	EventTypeRefundSettled       = "REFUND_SETTLED"
	EventTypeRefundApplied       = "REFUND_APPLIED"
	EventTypeTrackingUpdated     = "TRACKING_UPDATED"
	EventTypeGatewayRefundIssued = "GATEWAY_REFUND_ISSUED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order and its fee snapshot are stored
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	PVAmount    decimal.Decimal `json:"pv_amount"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	LineIDs     []string        `json:"line_ids"`
}

// OrderPaidEvent published when payment completes and lines fan out
type OrderPaidEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	PaymentID     string          `json:"payment_id"`
	GatewayAmount decimal.Decimal `json:"gateway_amount"`
	PointAmount   decimal.Decimal `json:"point_amount"`
}

// OrderPaymentFailedEvent published when the payment attempt fails
type OrderPaymentFailedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// LineStatusChangedEvent published per applied line transition
type LineStatusChangedEvent struct {
	BaseEvent
	OrderID    string    `json:"order_id"`
	LineID     string    `json:"line_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Countable  bool      `json:"countable"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FeeRecalculatedEvent published when an aggregation pass changes the order
// totals
type FeeRecalculatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	PVAmount    decimal.Decimal `json:"pv_amount"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
}

// RefundSettledEvent published when a settlement has been computed and
// stored as outstanding
type RefundSettledEvent struct {
	BaseEvent
	OrderID       string                `json:"order_id"`
	LineID        string                `json:"line_id,omitempty"`
	Context       string                `json:"context,omitempty"`
	Requested     decimal.Decimal       `json:"requested"`
	GatewayAmount decimal.Decimal       `json:"gateway_amount"`
	PointAmount   decimal.Decimal       `json:"point_amount"`
	Deductions    []RefundDeductionData `json:"deductions,omitempty"`
}

// RefundAppliedEvent published once the settlement side effects have landed
type RefundAppliedEvent struct {
	BaseEvent
	OrderID   string   `json:"order_id"`
	LineID    string   `json:"line_id,omitempty"`
	RecordIDs []string `json:"record_ids"`
}

// GatewayRefundIssuedEvent published after the gateway confirms its portion
type GatewayRefundIssuedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	TxID    string          `json:"tx_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// TrackingUpdatedEvent consumed from the carrier callback ingestion
type TrackingUpdatedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	LineID        string `json:"line_id"`
	CarrierCode   string `json:"carrier_code"`
	CarrierNumber string `json:"carrier_number"`
	Level         int    `json:"level"`
}

// RefundDeductionData is one point-credit slice inside a refund event
type RefundDeductionData struct {
	CreditID string          `json:"credit_id"`
	LineID   string          `json:"line_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}
