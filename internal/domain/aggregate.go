package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the aggregate-level lifecycle.
type OrderStatus string

const (
	OrderPaymentRequired   OrderStatus = "payment_required"
	OrderPaymentInProgress OrderStatus = "payment_in_progress"
	OrderPaid              OrderStatus = "paid"
	OrderFailed            OrderStatus = "failed"
)

// PricingMethod selects how a product's delivery fee is computed.
type PricingMethod string

const (
	PricingFree              PricingMethod = "free"
	PricingUnitCharge        PricingMethod = "unit_charge"
	PricingConditionalCharge PricingMethod = "conditional_charge"
	PricingRegularCharge     PricingMethod = "regular_charge"
)

// DiscountMethod selects which sibling product fee survives the group
// discount.
type DiscountMethod string

const (
	DiscountMax DiscountMethod = "max"
	DiscountMin DiscountMethod = "min"
)

// Return/exchange fee responsibility methods.
const (
	ReturnFeeDefault                  = "default"
	ReturnFeeCustomerChargeCardCancel = "customer_charge_card_cancel"
	ReturnFeeCustomerChargeCash       = "customer_charge_cash_complete"
	ReturnFeeCustomerDirectTransfer   = "customer_charge_direct_transfer"
	ReturnFeeCustomerDirectDelivery   = "customer_charge_direct_delivery"
	ReturnFeeChannelCharge            = "channel_charge"
	ReturnFeeSupplierCharge           = "supplier_charge"
)

// Order is the aggregate root. All cross-references inside the aggregate are
// ID-indexed through these maps rather than mutual pointers.
type Order struct {
	ID         string
	UserID     string
	Country    string
	PostalCode string
	Region     RegionTier
	Status     OrderStatus
	PaidDate   *time.Time
	Version    int64

	Lines    map[string]*OrderLine
	Products map[string]*Product
	Groups   map[string]*ShipmentGroup
	Payment  *PaymentAccount

	InitPVAmount    decimal.Decimal
	InitDeliveryFee decimal.Decimal
	CurrPVAmount    decimal.Decimal
	CurrDeliveryFee decimal.Decimal
}

// OrderLine is a single unit-trackable SKU position.
type OrderLine struct {
	ID        string
	ProductID string
	GroupID   string // empty when the product ships ungrouped

	Title     string
	Status    LineStatus
	SellPrice decimal.Decimal
	Quantity  int64

	RequestStatus         LineStatus
	RequestStatusDate     *time.Time
	PurchaseFinalizedDate *time.Time

	ReturnFeeMethod   string
	ExchangeFeeMethod string

	CarrierCode   string
	CarrierNumber string
	TrackingLevel int

	// Derived per aggregation pass.
	LineValue decimal.Decimal

	// Derived by the claim fee calculator.
	CalculatedReturnFee   decimal.Decimal
	CalculatedExchangeFee decimal.Decimal
}

// Value is quantity times unit price regardless of countability.
func (l *OrderLine) Value() decimal.Decimal {
	return l.SellPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// Product groups order lines sold under one listing.
type Product struct {
	ID      string
	GroupID string

	Title         string
	SupplierID    string
	PricingMethod PricingMethod
	// HasDeliverySchedule is false for products that never ship (e.g.
	// intangibles); their fee is always zero.
	HasDeliverySchedule bool
	BaseFee             decimal.Decimal
	// ChargeStandard is the unit size for UNIT_CHARGE and the free-shipping
	// threshold for CONDITIONAL_CHARGE.
	ChargeStandard decimal.Decimal

	ExchangeFee             decimal.Decimal
	ReturnFee               decimal.Decimal
	ReturnFeeIfFreeDelivery decimal.Decimal

	// Derived per aggregation pass.
	CountableLines int
	CountableQty   int64
	PVAmount       decimal.Decimal
	Fee            decimal.Decimal
	InitFee        decimal.Decimal
}

// ShipmentGroup bundles products shipped together from one supplier batch.
// A group without a SupplierGroupID is "virtual": it wraps a single product
// and has no discount concept.
type ShipmentGroup struct {
	ID              string
	SupplierGroupID string
	SupplierName    string
	DiscountMethod  DiscountMethod

	// Region surcharge schedule. Level 0 means no regional granularity,
	// 2 means one flat remote fee, 3 distinguishes Jeju from other islands.
	RegionDivisionLevel  int
	Division2Fee         decimal.Decimal
	Division3JejuFee     decimal.Decimal
	Division3OutsideFee  decimal.Decimal
	AdditionalPricingSet bool

	// LossFee accumulates fee shortfall absorbed by the supplier/channel
	// on early single-item cancellations.
	LossFee decimal.Decimal

	// Derived per aggregation pass.
	RawFee    decimal.Decimal
	Discount  decimal.Decimal
	Surcharge decimal.Decimal
	PVAmount  decimal.Decimal

	InitRawFee    decimal.Decimal
	InitDiscount  decimal.Decimal
	InitSurcharge decimal.Decimal
}

// Virtual reports whether this is a single-product wrapper group.
func (g *ShipmentGroup) Virtual() bool {
	return g.SupplierGroupID == ""
}

// NetFee is what the group actually charges: raw fee plus surcharge minus
// group discount.
func (g *ShipmentGroup) NetFee() decimal.Decimal {
	return g.RawFee.Add(g.Surcharge).Sub(g.Discount)
}

// PaymentAccount holds the gateway charge and the ordered point credits for
// one order.
type PaymentAccount struct {
	ID string

	InitGatewayAmount decimal.Decimal
	CurrGatewayAmount decimal.Decimal
	GatewayRefunded   decimal.Decimal

	InitPointAmount decimal.Decimal
	CurrPointAmount decimal.Decimal

	Credits []*PointCredit

	// Outstanding is the serialized settlement computed before any side
	// effect is applied; a retry observing it must reuse it.
	Outstanding string

	Refunds []*RefundRecord
}

// PointCredit is one non-gateway payment instrument. Lower Priority is spent
// first on refund.
type PointCredit struct {
	ID           string
	Priority     int
	ProviderName string
	ProviderCode string

	// LineID scopes the credit to one line; empty means order-wide.
	LineID  string
	GroupID string

	InitBalance decimal.Decimal
	Balance     decimal.Decimal
	Refunded    decimal.Decimal

	ConfirmDate *time.Time
}

// RefundRecord is an immutable ledger entry written once a settlement
// completes.
type RefundRecord struct {
	ID            string
	PaymentID     string
	OrderID       string
	ContextLineID string // triggering line for partial refunds, empty for full
	LineID        string // line the credit was scoped to, if any
	CreditID      string // empty for the gateway portion
	PointAmount   decimal.Decimal
	GatewayAmount decimal.Decimal
	CreatedAt     time.Time
}

// LinesOfProduct returns the lines owned by a product.
func (o *Order) LinesOfProduct(productID string) []*OrderLine {
	var lines []*OrderLine
	for _, l := range o.Lines {
		if l.ProductID == productID {
			lines = append(lines, l)
		}
	}
	return lines
}

// ProductsOfGroup returns the sibling products of a shipment group.
func (o *Order) ProductsOfGroup(groupID string) []*Product {
	var products []*Product
	for _, p := range o.Products {
		if p.GroupID == groupID {
			products = append(products, p)
		}
	}
	return products
}

// LinesOfGroup returns every line whose product belongs to a group.
func (o *Order) LinesOfGroup(groupID string) []*OrderLine {
	var lines []*OrderLine
	for _, l := range o.Lines {
		if l.GroupID == groupID {
			lines = append(lines, l)
		}
	}
	return lines
}

// GroupOfLine resolves a line's shipment group, nil for ungrouped products.
func (o *Order) GroupOfLine(line *OrderLine) *ShipmentGroup {
	if line.GroupID == "" {
		return nil
	}
	return o.Groups[line.GroupID]
}

// IsLastLine reports whether no sibling line in the same group is still in
// progress or finished without a claim. Lines of ungrouped products are
// always "last".
func (o *Order) IsLastLine(lineID string) bool {
	line, ok := o.Lines[lineID]
	if !ok || line.GroupID == "" {
		return true
	}
	for _, sibling := range o.LinesOfGroup(line.GroupID) {
		if sibling.ID == lineID {
			continue
		}
		if sibling.Status == StatusOrderFinished || sibling.Status == StatusOrderFinishedReviewed {
			return false
		}
		if sibling.Status.Countable() {
			return false
		}
	}
	return true
}

// BulkUpdateStatus transitions every line of the order, stamping request
// dates when the order is already paid. Used on payment completion and on
// payment failure fan-out.
func (o *Order) BulkUpdateStatus(target LineStatus, now time.Time) []*StatusChange {
	onPayment := o.Status == OrderPaid
	changes := make([]*StatusChange, 0, len(o.Lines))
	for id, line := range o.Lines {
		if c := o.UpdateLineStatus(id, target, now); c != nil {
			changes = append(changes, c)
		}
		if onPayment {
			line.RequestStatus = target
			line.RequestStatusDate = &now
		}
	}
	return changes
}

// MarkPaid moves the order into the paid state and stamps the paid date.
func (o *Order) MarkPaid(now time.Time) {
	o.Status = OrderPaid
	o.PaidDate = &now
}

// MarkFailed moves the order into the terminal failed state.
func (o *Order) MarkFailed() {
	o.Status = OrderFailed
	o.PaidDate = nil
}

// SnapshotInitialFees freezes the current aggregation results as the order's
// initial amounts. Called once after order creation.
func (o *Order) SnapshotInitialFees() {
	o.InitPVAmount = o.CurrPVAmount
	o.InitDeliveryFee = o.CurrDeliveryFee
	for _, p := range o.Products {
		p.InitFee = p.Fee
	}
	for _, g := range o.Groups {
		g.InitRawFee = g.RawFee
		g.InitDiscount = g.Discount
		g.InitSurcharge = g.Surcharge
	}
}
