package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRow is the orders table row.
type OrderRow struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Country         string          `db:"country" json:"country"`
	PostalCode      string          `db:"postal_code" json:"postal_code"`
	Status          string          `db:"status" json:"status"`
	PaidDate        *time.Time      `db:"paid_date" json:"paid_date,omitempty"`
	Version         int64           `db:"version" json:"version"`
	InitPVAmount    decimal.Decimal `db:"init_pv_amount" json:"init_pv_amount"`
	InitDeliveryFee decimal.Decimal `db:"init_delivery_fee" json:"init_delivery_fee"`
	CurrPVAmount    decimal.Decimal `db:"curr_pv_amount" json:"curr_pv_amount"`
	CurrDeliveryFee decimal.Decimal `db:"curr_delivery_fee" json:"curr_delivery_fee"`
	IdempotencyKey  string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderLineRow is the order_lines table row.
type OrderLineRow struct {
	ID                    string          `db:"id" json:"id"`
	OrderID               string          `db:"order_id" json:"order_id"`
	ProductID             string          `db:"product_id" json:"product_id"`
	GroupID               string          `db:"group_id" json:"group_id,omitempty"`
	Title                 string          `db:"title" json:"title"`
	Status                string          `db:"status" json:"status"`
	SellPrice             decimal.Decimal `db:"sell_price" json:"sell_price"`
	Quantity              int64           `db:"quantity" json:"quantity"`
	RequestStatus         string          `db:"request_status" json:"request_status,omitempty"`
	RequestStatusDate     *time.Time      `db:"request_status_date" json:"request_status_date,omitempty"`
	PurchaseFinalizedDate *time.Time      `db:"purchase_finalized_date" json:"purchase_finalized_date,omitempty"`
	ReturnFeeMethod       string          `db:"return_fee_method" json:"return_fee_method"`
	ExchangeFeeMethod     string          `db:"exchange_fee_method" json:"exchange_fee_method"`
	CarrierCode           string          `db:"carrier_code" json:"carrier_code,omitempty"`
	CarrierNumber         string          `db:"carrier_number" json:"carrier_number,omitempty"`
	TrackingLevel         int             `db:"tracking_level" json:"tracking_level"`
	LineValue             decimal.Decimal `db:"line_value" json:"line_value"`
	CalculatedReturnFee   decimal.Decimal `db:"calculated_return_fee" json:"calculated_return_fee"`
	CalculatedExchangeFee decimal.Decimal `db:"calculated_exchange_fee" json:"calculated_exchange_fee"`
}

// OrderProductRow is the order_products table row: the per-order snapshot of
// a listing's delivery pricing.
type OrderProductRow struct {
	ID                      string          `db:"id" json:"id"`
	OrderID                 string          `db:"order_id" json:"order_id"`
	GroupID                 string          `db:"group_id" json:"group_id,omitempty"`
	Title                   string          `db:"title" json:"title"`
	SupplierID              string          `db:"supplier_id" json:"supplier_id"`
	PricingMethod           string          `db:"pricing_method" json:"pricing_method"`
	HasDeliverySchedule     bool            `db:"has_delivery_schedule" json:"has_delivery_schedule"`
	BaseFee                 decimal.Decimal `db:"base_fee" json:"base_fee"`
	ChargeStandard          decimal.Decimal `db:"charge_standard" json:"charge_standard"`
	ExchangeFee             decimal.Decimal `db:"exchange_fee" json:"exchange_fee"`
	ReturnFee               decimal.Decimal `db:"return_fee" json:"return_fee"`
	ReturnFeeIfFreeDelivery decimal.Decimal `db:"return_fee_if_free_delivery" json:"return_fee_if_free_delivery"`
	CountableLines          int             `db:"countable_lines" json:"countable_lines"`
	CountableQty            int64           `db:"countable_qty" json:"countable_qty"`
	PVAmount                decimal.Decimal `db:"pv_amount" json:"pv_amount"`
	Fee                     decimal.Decimal `db:"fee" json:"fee"`
	InitFee                 decimal.Decimal `db:"init_fee" json:"init_fee"`
}

// ShipmentGroupRow is the shipment_groups table row.
type ShipmentGroupRow struct {
	ID                   string          `db:"id" json:"id"`
	OrderID              string          `db:"order_id" json:"order_id"`
	SupplierGroupID      string          `db:"supplier_group_id" json:"supplier_group_id,omitempty"`
	SupplierName         string          `db:"supplier_name" json:"supplier_name"`
	DiscountMethod       string          `db:"discount_method" json:"discount_method"`
	RegionDivisionLevel  int             `db:"region_division_level" json:"region_division_level"`
	Division2Fee         decimal.Decimal `db:"division2_fee" json:"division2_fee"`
	Division3JejuFee     decimal.Decimal `db:"division3_jeju_fee" json:"division3_jeju_fee"`
	Division3OutsideFee  decimal.Decimal `db:"division3_outside_fee" json:"division3_outside_fee"`
	AdditionalPricingSet bool            `db:"additional_pricing_set" json:"additional_pricing_set"`
	LossFee              decimal.Decimal `db:"loss_fee" json:"loss_fee"`
	RawFee               decimal.Decimal `db:"raw_fee" json:"raw_fee"`
	Discount             decimal.Decimal `db:"discount" json:"discount"`
	Surcharge            decimal.Decimal `db:"surcharge" json:"surcharge"`
	PVAmount             decimal.Decimal `db:"pv_amount" json:"pv_amount"`
	InitRawFee           decimal.Decimal `db:"init_raw_fee" json:"init_raw_fee"`
	InitDiscount         decimal.Decimal `db:"init_discount" json:"init_discount"`
	InitSurcharge        decimal.Decimal `db:"init_surcharge" json:"init_surcharge"`
}

// PaymentRow is the payments table row.
type PaymentRow struct {
	ID                string          `db:"id" json:"id"`
	OrderID           string          `db:"order_id" json:"order_id"`
	InitGatewayAmount decimal.Decimal `db:"init_gateway_amount" json:"init_gateway_amount"`
	CurrGatewayAmount decimal.Decimal `db:"curr_gateway_amount" json:"curr_gateway_amount"`
	GatewayRefunded   decimal.Decimal `db:"gateway_refunded" json:"gateway_refunded"`
	InitPointAmount   decimal.Decimal `db:"init_point_amount" json:"init_point_amount"`
	CurrPointAmount   decimal.Decimal `db:"curr_point_amount" json:"curr_point_amount"`
	Outstanding       string          `db:"outstanding" json:"outstanding,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// PointCreditRow is the point_credits table row.
type PointCreditRow struct {
	ID           string          `db:"id" json:"id"`
	PaymentID    string          `db:"payment_id" json:"payment_id"`
	Priority     int             `db:"priority" json:"priority"`
	ProviderName string          `db:"provider_name" json:"provider_name"`
	ProviderCode string          `db:"provider_code" json:"provider_code"`
	LineID       string          `db:"line_id" json:"line_id,omitempty"`
	GroupID      string          `db:"group_id" json:"group_id,omitempty"`
	InitBalance  decimal.Decimal `db:"init_balance" json:"init_balance"`
	Balance      decimal.Decimal `db:"balance" json:"balance"`
	Refunded     decimal.Decimal `db:"refunded" json:"refunded"`
	ConfirmDate  *time.Time      `db:"confirm_date" json:"confirm_date,omitempty"`
}

// RefundRecordRow is the refund_records ledger row. Rows are insert-only.
type RefundRecordRow struct {
	ID            string          `db:"id" json:"id"`
	PaymentID     string          `db:"payment_id" json:"payment_id"`
	OrderID       string          `db:"order_id" json:"order_id"`
	ContextLineID string          `db:"context_line_id" json:"context_line_id,omitempty"`
	LineID        string          `db:"line_id" json:"line_id,omitempty"`
	CreditID      string          `db:"credit_id" json:"credit_id,omitempty"`
	PointAmount   decimal.Decimal `db:"point_amount" json:"point_amount"`
	GatewayAmount decimal.Decimal `db:"gateway_amount" json:"gateway_amount"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// LineStatusLogRow is the line_status_logs audit row, one per transition.
// Initiator records who drove it: supplier, channel, user or system.
type LineStatusLogRow struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    string    `db:"order_id" json:"order_id"`
	LineID     string    `db:"line_id" json:"line_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	Initiator  string    `db:"initiator" json:"initiator"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}

// ProcessedEvent for consumer idempotency.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
