package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fulfillment-service/internal/util"
)

// CancellationContext tags who initiated a cancellation and why. The engine
// maps a line's current status plus the context into a concrete target
// status, or rejects the request as ineligible.
type CancellationContext string

const (
	CtxMarketplaceCancel          CancellationContext = "mp_order_cancel"
	CtxBackofficeClaimApproved    CancellationContext = "backoffice_order_cancel_on_claim"
	CtxBackofficeSupplierRejected CancellationContext = "backoffice_order_cancel_on_supplier_rejection"
	CtxBackofficeCheckRejected    CancellationContext = "backoffice_order_cancel_on_supplier_check_rejection"
	CtxBackofficeShipRejected     CancellationContext = "backoffice_order_cancel_on_supplier_ship_rejection"
	CtxBackofficeSpecialCase      CancellationContext = "backoffice_order_cancel_on_special_case"
)

// cancelTargetStatus maps each concrete context to the terminal status the
// canceled line lands in.
var cancelTargetStatus = map[CancellationContext]LineStatus{
	CtxMarketplaceCancel:       StatusRefundFinishedOrderCanceled,
	CtxBackofficeClaimApproved: StatusRefundFinishedNormal,
	CtxBackofficeCheckRejected: StatusRefundFinishedCheckRejected,
	CtxBackofficeShipRejected:  StatusRefundFinishedShipRejected,
	CtxBackofficeSpecialCase:   StatusRefundFinishedOrderCanceled,
}

// Initiator reports who drives a cancellation in this context, for the
// status audit trail.
func (c CancellationContext) Initiator() string {
	switch c {
	case CtxMarketplaceCancel:
		return InitiatorUser
	case CtxBackofficeCheckRejected, CtxBackofficeShipRejected, CtxBackofficeSupplierRejected:
		return InitiatorSupplier
	default:
		return InitiatorChannel
	}
}

// ResolveContext validates that the line's current status admits the
// requested context and narrows the generic supplier-rejection context to
// its check- or ship-rejection form. An unknown context is a programming
// error, not a business rejection.
func ResolveContext(line *OrderLine, ctx CancellationContext) (CancellationContext, LineStatus, error) {
	switch ctx {
	case CtxMarketplaceCancel:
		if !line.Status.Cancelable() {
			return "", "", fmt.Errorf("%w: line %s in status %s", ErrNotEligible, line.ID, line.Status)
		}
	case CtxBackofficeClaimApproved:
		if line.Status != StatusRefundInspectPass {
			return "", "", fmt.Errorf("%w: line %s in status %s", ErrNotEligible, line.ID, line.Status)
		}
	case CtxBackofficeSupplierRejected:
		switch line.Status {
		case StatusOrderFailCheckRejected:
			ctx = CtxBackofficeCheckRejected
		case StatusOrderFailShipRejected:
			ctx = CtxBackofficeShipRejected
		default:
			return "", "", fmt.Errorf("%w: line %s in status %s", ErrNotEligible, line.ID, line.Status)
		}
	case CtxBackofficeCheckRejected:
		if line.Status != StatusOrderFailCheckRejected {
			return "", "", fmt.Errorf("%w: line %s in status %s", ErrNotEligible, line.ID, line.Status)
		}
	case CtxBackofficeShipRejected:
		if line.Status != StatusOrderFailShipRejected {
			return "", "", fmt.Errorf("%w: line %s in status %s", ErrNotEligible, line.ID, line.Status)
		}
	case CtxBackofficeSpecialCase:
		// Operator override; no status restriction.
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownContext, ctx)
	}
	return ctx, cancelTargetStatus[ctx], nil
}

// SettlementEngine derives refund settlements over one order aggregate. It
// is pure computation: nothing is persisted or published here.
type SettlementEngine struct {
	logger *zap.Logger
}

// NewSettlementEngine creates a settlement engine.
func NewSettlementEngine() *SettlementEngine {
	return &SettlementEngine{logger: util.GetLogger()}
}

// CreditDeduction is one slice of a refund taken from a point credit.
type CreditDeduction struct {
	CreditID string          `json:"credit_id"`
	LineID   string          `json:"line_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// Settlement is the apportionment of one refund request across the point
// credits and the gateway charge. It is written to the payment's outstanding
// record before any side effect is applied.
type Settlement struct {
	Partial         bool                `json:"partial"`
	LineID          string              `json:"line_id,omitempty"`
	Context         CancellationContext `json:"context,omitempty"`
	TargetStatus    LineStatus          `json:"target_status,omitempty"`
	RequestedAmount decimal.Decimal     `json:"requested_amount"`
	GatewayAmount   decimal.Decimal     `json:"gateway_amount"`
	PointAmount     decimal.Decimal     `json:"point_amount"`
	Deductions      []CreditDeduction   `json:"deductions"`
	Note            string              `json:"note,omitempty"`
}

// FeeDelta simulates removing the line from its group and returns the signed
// fee difference (current net fee minus net fee without the line). A
// negative delta means removing the line would increase the shipping charged
// to the remaining items.
func (e *SettlementEngine) FeeDelta(o *Order, lineID string) (decimal.Decimal, error) {
	line, ok := o.Lines[lineID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: line %s not in order %s", ErrInvariant, lineID, o.ID)
	}
	group := o.GroupOfLine(line)
	if group == nil {
		return decimal.Zero, nil
	}
	current, err := o.tallyGroup(group, nil)
	if err != nil {
		return decimal.Zero, err
	}
	without, err := o.groupNetFeeExcluding(group, lineID)
	if err != nil {
		return decimal.Zero, err
	}
	return current.net().Sub(without), nil
}

// quote computes the expected refund amount for a partial cancellation,
// handling loss-fee absorption on virtual groups. The returned flag reports
// whether a loss fee was absorbed in this call.
func (e *SettlementEngine) quote(o *Order, line *OrderLine, ctx CancellationContext) (decimal.Decimal, bool, error) {
	value := line.Value()
	group := o.GroupOfLine(line)
	if group == nil {
		return value, false, nil
	}

	if ctx == CtxBackofficeSpecialCase {
		// Operator-driven cancels refund the plain line value; fee deltas do
		// not apply.
		return value, false, nil
	}

	if ctx == CtxBackofficeClaimApproved {
		// Post-inspection returns also owe the return delivery fee; compute
		// it before the delta so the settlement can deduct it.
		if _, err := e.CalculateReturnFee(o, line.ID); err != nil {
			return decimal.Zero, false, err
		}
	}

	delta, err := e.FeeDelta(o, line.ID)
	if err != nil {
		return decimal.Zero, false, err
	}

	absorbed := false
	if delta.IsNegative() {
		if group.Virtual() {
			// The supplier/channel absorbs group-discount erosion caused by
			// an early single-item cancellation, never the customer. The
			// group keeps a running total until its final refund recoups it.
			group.LossFee = group.LossFee.Add(delta.Abs())
			delta = decimal.Zero
			absorbed = true
			util.LossFeeAbsorbedTotal.Inc()
			e.logger.Info("Loss fee absorbed on virtual group",
				zap.String("order_id", o.ID),
				zap.String("group_id", group.ID),
				zap.String("loss_fee", group.LossFee.String()))
		} else if value.LessThan(delta.Abs()) {
			return decimal.Zero, false, fmt.Errorf(
				"%w: line value %s below fee increase %s", ErrNegativeRefund, value, delta.Abs())
		}
	}

	return value.Add(delta), absorbed, nil
}

// SettlePartial computes the apportionment for canceling one line. If an
// outstanding settlement already exists on the payment it is returned
// unchanged, so a retried request cannot double-refund.
func (e *SettlementEngine) SettlePartial(o *Order, lineID string, ctx CancellationContext, note string) (*Settlement, error) {
	if existing, err := loadOutstanding(o.Payment); err != nil {
		return nil, err
	} else if existing != nil {
		e.logger.Info("Reusing outstanding settlement",
			zap.String("order_id", o.ID), zap.String("line_id", existing.LineID))
		return existing, nil
	}

	line, ok := o.Lines[lineID]
	if !ok {
		return nil, fmt.Errorf("%w: line %s not in order %s", ErrInvariant, lineID, o.ID)
	}

	resolved, target, err := ResolveContext(line, ctx)
	if err != nil {
		return nil, err
	}

	amount, absorbed, err := e.quote(o, line, resolved)
	if err != nil {
		return nil, err
	}

	group := o.GroupOfLine(line)
	var eligible []*PointCredit

	if o.IsLastLine(lineID) {
		if group != nil && !absorbed {
			// Loss fee accrued by earlier cancellations is recouped from the
			// final refund of the group.
			amount = amount.Sub(group.LossFee)
		}
		if line.ReturnFeeMethod == ReturnFeeCustomerChargeCardCancel {
			amount = amount.Sub(line.CalculatedReturnFee)
		}
		for _, credit := range o.Payment.Credits {
			switch {
			case credit.LineID == "" || credit.LineID == lineID:
				eligible = append(eligible, credit)
			case group != nil && credit.GroupID == group.ID:
				eligible = append(eligible, credit)
				// Sibling-scoped credits in a fully canceled group are
				// refunded alongside.
				amount = amount.Add(credit.Balance)
			}
		}
	} else {
		for _, credit := range o.Payment.Credits {
			if credit.LineID == "" || credit.LineID == lineID {
				eligible = append(eligible, credit)
			}
		}
	}
	amount = clampToRefundable(amount, o.Payment, eligible)

	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: settled amount %s below zero", ErrNegativeRefund, amount)
	}

	settlement := apportion(amount, eligible)
	settlement.Partial = true
	settlement.LineID = lineID
	settlement.Context = resolved
	settlement.TargetStatus = target
	settlement.Note = note

	if err := storeOutstanding(o.Payment, settlement); err != nil {
		return nil, err
	}
	return settlement, nil
}

// SettleFull computes the apportionment for canceling the whole order:
// every credit's remaining balance plus the remaining gateway charge.
func (e *SettlementEngine) SettleFull(o *Order, note string) (*Settlement, error) {
	if existing, err := loadOutstanding(o.Payment); err != nil {
		return nil, err
	} else if existing != nil {
		e.logger.Info("Reusing outstanding settlement", zap.String("order_id", o.ID))
		return existing, nil
	}

	settlement := &Settlement{
		Partial:       false,
		Context:       CtxMarketplaceCancel,
		TargetStatus:  cancelTargetStatus[CtxMarketplaceCancel],
		GatewayAmount: o.Payment.CurrGatewayAmount,
		PointAmount:   decimal.Zero,
		Note:          note,
	}
	for _, credit := range sortedCredits(o.Payment.Credits) {
		if credit.Balance.IsZero() {
			continue
		}
		settlement.Deductions = append(settlement.Deductions, CreditDeduction{
			CreditID: credit.ID,
			LineID:   credit.LineID,
			Amount:   credit.Balance,
		})
		settlement.PointAmount = settlement.PointAmount.Add(credit.Balance)
	}
	settlement.RequestedAmount = settlement.GatewayAmount.Add(settlement.PointAmount)

	if err := storeOutstanding(o.Payment, settlement); err != nil {
		return nil, err
	}
	return settlement, nil
}

// clampToRefundable caps a partial refund at what the payment can actually
// give back: the remaining gateway amount plus the eligible credit balances.
func clampToRefundable(amount decimal.Decimal, payment *PaymentAccount, eligible []*PointCredit) decimal.Decimal {
	limit := payment.CurrGatewayAmount
	for _, credit := range eligible {
		limit = limit.Add(credit.Balance)
	}
	if amount.GreaterThan(limit) {
		return limit
	}
	return amount
}

// sortedCredits orders credits by ascending priority; line-scoped credits
// win ties so a line's own grant is consumed before an order-wide one of the
// same priority.
func sortedCredits(credits []*PointCredit) []*PointCredit {
	sorted := make([]*PointCredit, len(credits))
	copy(sorted, credits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		if (sorted[i].LineID != "") != (sorted[j].LineID != "") {
			return sorted[i].LineID != ""
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// apportion walks the eligible credits in strict priority order, deducting
// from each until the amount is exhausted; whatever remains is charged
// against the gateway. It never deducts more than a credit's balance.
func apportion(amount decimal.Decimal, eligible []*PointCredit) *Settlement {
	settlement := &Settlement{
		RequestedAmount: amount,
		GatewayAmount:   decimal.Zero,
		PointAmount:     decimal.Zero,
	}

	remaining := amount
	for _, credit := range sortedCredits(eligible) {
		if remaining.IsZero() || credit.Balance.IsZero() {
			continue
		}
		take := credit.Balance
		if take.GreaterThan(remaining) {
			take = remaining
		}
		settlement.Deductions = append(settlement.Deductions, CreditDeduction{
			CreditID: credit.ID,
			LineID:   credit.LineID,
			Amount:   take,
		})
		settlement.PointAmount = settlement.PointAmount.Add(take)
		remaining = remaining.Sub(take)
	}
	settlement.GatewayAmount = remaining
	return settlement
}

// Outstanding returns the settlement persisted on the order's payment, nil
// when none is pending. Recovery callers use it to re-drive an apply that
// never committed.
func (e *SettlementEngine) Outstanding(o *Order) (*Settlement, error) {
	return loadOutstanding(o.Payment)
}

// ApplyOutstanding applies the stored settlement to the credit balances and
// the gateway amount, appends the immutable refund ledger entries, and
// clears the outstanding record. Violating a balance here means the
// settlement was computed against different state, which is a defect.
func (e *SettlementEngine) ApplyOutstanding(o *Order, now time.Time) ([]*RefundRecord, error) {
	payment := o.Payment
	settlement, err := loadOutstanding(payment)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, ErrNoOutstanding
	}

	creditsByID := make(map[string]*PointCredit, len(payment.Credits))
	for _, credit := range payment.Credits {
		creditsByID[credit.ID] = credit
	}

	var records []*RefundRecord
	for _, d := range settlement.Deductions {
		credit, ok := creditsByID[d.CreditID]
		if !ok {
			return nil, fmt.Errorf("%w: credit %s not on payment %s", ErrInvariant, d.CreditID, payment.ID)
		}
		if d.Amount.GreaterThan(credit.Balance) {
			return nil, fmt.Errorf("%w: deduction %s exceeds balance %s on credit %s",
				ErrInvariant, d.Amount, credit.Balance, credit.ID)
		}
		credit.Balance = credit.Balance.Sub(d.Amount)
		credit.Refunded = credit.Refunded.Add(d.Amount)
		payment.CurrPointAmount = payment.CurrPointAmount.Sub(d.Amount)
		records = append(records, &RefundRecord{
			ID:            refundSN(),
			PaymentID:     payment.ID,
			OrderID:       o.ID,
			ContextLineID: settlement.LineID,
			LineID:        credit.LineID,
			CreditID:      credit.ID,
			PointAmount:   d.Amount,
			GatewayAmount: decimal.Zero,
			CreatedAt:     now,
		})
	}

	if settlement.GatewayAmount.IsPositive() {
		if settlement.GatewayAmount.GreaterThan(payment.CurrGatewayAmount) {
			return nil, fmt.Errorf("%w: gateway refund %s exceeds remaining charge %s",
				ErrInvariant, settlement.GatewayAmount, payment.CurrGatewayAmount)
		}
		payment.CurrGatewayAmount = payment.CurrGatewayAmount.Sub(settlement.GatewayAmount)
		payment.GatewayRefunded = payment.GatewayRefunded.Add(settlement.GatewayAmount)
		records = append(records, &RefundRecord{
			ID:            refundSN(),
			PaymentID:     payment.ID,
			OrderID:       o.ID,
			ContextLineID: settlement.LineID,
			GatewayAmount: settlement.GatewayAmount,
			PointAmount:   decimal.Zero,
			CreatedAt:     now,
		})
	}

	payment.Refunds = append(payment.Refunds, records...)
	payment.Outstanding = ""
	return records, nil
}

// CalculateReturnFee computes the return delivery fee for a line in the
// refund claim flow and caches it on the line. Lines outside the claim flow
// keep their previous value.
func (e *SettlementEngine) CalculateReturnFee(o *Order, lineID string) (decimal.Decimal, error) {
	line, ok := o.Lines[lineID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: line %s not in order %s", ErrInvariant, lineID, o.ID)
	}
	switch line.Status {
	case StatusDeliveryOK, StatusRefundRequested, StatusRefundChecked,
		StatusRefundAgreed, StatusRefundReturnOK, StatusRefundInspectPass:
	default:
		return line.CalculatedReturnFee, nil
	}

	product := o.Products[line.ProductID]
	group := o.GroupOfLine(line)
	if product == nil || group == nil {
		return decimal.Zero, fmt.Errorf("%w: line %s has no grouped product", ErrInvariant, lineID)
	}
	if err := o.RecalculateFees(); err != nil {
		return decimal.Zero, err
	}

	free, err := e.deliveredForFree(o, line)
	if err != nil {
		return decimal.Zero, err
	}
	fee := product.ReturnFee
	if free {
		fee = product.ReturnFeeIfFreeDelivery
	}

	boxes := decimal.NewFromInt(1)
	if product.PricingMethod == PricingUnitCharge {
		boxes = unitCount(line.Quantity, product.ChargeStandard)
	}
	fee = fee.Mul(boxes)

	surcharge := group.regionSurcharge(o.Region)
	if group.Virtual() && product.PricingMethod == PricingUnitCharge {
		surcharge = surcharge.Mul(boxes)
	}
	fee = fee.Add(surcharge)

	line.CalculatedReturnFee = fee
	return fee, nil
}

// CalculateExchangeFee computes the exchange delivery fee for a line and
// caches it on the line. The regional surcharge doubles for the round trip.
func (e *SettlementEngine) CalculateExchangeFee(o *Order, lineID string) (decimal.Decimal, error) {
	line, ok := o.Lines[lineID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: line %s not in order %s", ErrInvariant, lineID, o.ID)
	}
	product := o.Products[line.ProductID]
	group := o.GroupOfLine(line)
	if product == nil || group == nil {
		return decimal.Zero, fmt.Errorf("%w: line %s has no grouped product", ErrInvariant, lineID)
	}

	boxes := decimal.NewFromInt(1)
	if product.PricingMethod == PricingUnitCharge {
		boxes = unitCount(line.Quantity, product.ChargeStandard)
	}
	fee := product.ExchangeFee.Mul(boxes)

	surcharge := group.regionSurcharge(o.Region).Mul(decimal.NewFromInt(2))
	if group.Virtual() && product.PricingMethod == PricingUnitCharge {
		surcharge = surcharge.Mul(boxes)
	}
	fee = fee.Add(surcharge)

	line.CalculatedExchangeFee = fee
	return fee, nil
}

// deliveredForFree reports whether the line's product effectively shipped
// for free under the group discount: true unless its fee is the unique
// maximum among sibling products that still have countable lines.
func (e *SettlementEngine) deliveredForFree(o *Order, line *OrderLine) (bool, error) {
	product := o.Products[line.ProductID]
	group := o.GroupOfLine(line)
	if group == nil {
		return false, nil
	}

	var fees []decimal.Decimal
	for _, sibling := range o.ProductsOfGroup(group.ID) {
		if sibling.CountableLines > 0 {
			fees = append(fees, sibling.Fee)
		}
	}
	if len(fees) == 0 {
		return true, nil
	}

	maxFee := fees[0]
	duplicates := 0
	for _, f := range fees {
		if f.GreaterThan(maxFee) {
			maxFee = f
		}
	}
	for _, f := range fees {
		if f.Equal(product.Fee) {
			duplicates++
		}
	}
	if maxFee.Equal(product.Fee) && duplicates == 1 {
		return false, nil
	}
	return true, nil
}

func loadOutstanding(payment *PaymentAccount) (*Settlement, error) {
	if payment.Outstanding == "" {
		return nil, nil
	}
	var settlement Settlement
	if err := json.Unmarshal([]byte(payment.Outstanding), &settlement); err != nil {
		return nil, fmt.Errorf("failed to parse outstanding settlement: %w", err)
	}
	return &settlement, nil
}

func storeOutstanding(payment *PaymentAccount, settlement *Settlement) error {
	raw, err := json.Marshal(settlement)
	if err != nil {
		return fmt.Errorf("failed to serialize settlement: %w", err)
	}
	payment.Outstanding = string(raw)
	return nil
}

func refundSN() string {
	return "PR-" + uuid.New().String()[:12]
}
