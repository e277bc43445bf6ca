package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveContext(t *testing.T) {
	line := &OrderLine{ID: "L1", Status: StatusCheckRequired}

	ctx, target, err := ResolveContext(line, CtxMarketplaceCancel)
	require.NoError(t, err)
	assert.Equal(t, CtxMarketplaceCancel, ctx)
	assert.Equal(t, StatusRefundFinishedOrderCanceled, target)

	line.Status = StatusShipOK
	_, _, err = ResolveContext(line, CtxMarketplaceCancel)
	assert.ErrorIs(t, err, ErrNotEligible)

	line.Status = StatusOrderFailCheckRejected
	ctx, target, err = ResolveContext(line, CtxBackofficeSupplierRejected)
	require.NoError(t, err)
	assert.Equal(t, CtxBackofficeCheckRejected, ctx)
	assert.Equal(t, StatusRefundFinishedCheckRejected, target)

	line.Status = StatusOrderFailShipRejected
	ctx, target, err = ResolveContext(line, CtxBackofficeSupplierRejected)
	require.NoError(t, err)
	assert.Equal(t, CtxBackofficeShipRejected, ctx)
	assert.Equal(t, StatusRefundFinishedShipRejected, target)

	line.Status = StatusRefundInspectPass
	_, target, err = ResolveContext(line, CtxBackofficeClaimApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusRefundFinishedNormal, target)

	_, _, err = ResolveContext(line, CancellationContext("nonsense"))
	assert.ErrorIs(t, err, ErrUnknownContext)
}

func TestApportionmentPriorityOrder(t *testing.T) {
	credits := []*PointCredit{
		{ID: "C2", Priority: 2, InitBalance: d(5000), Balance: d(5000)},
		{ID: "C1", Priority: 1, InitBalance: d(2000), Balance: d(2000)},
	}

	s := apportion(d(4000), credits)

	require.Len(t, s.Deductions, 2)
	assert.Equal(t, "C1", s.Deductions[0].CreditID)
	assert.True(t, s.Deductions[0].Amount.Equal(d(2000)))
	assert.Equal(t, "C2", s.Deductions[1].CreditID)
	assert.True(t, s.Deductions[1].Amount.Equal(d(2000)))
	assert.True(t, s.PointAmount.Equal(d(4000)))
	assert.True(t, s.GatewayAmount.Equal(decimal.Zero))
}

func TestApportionmentGatewayRemainder(t *testing.T) {
	credits := []*PointCredit{
		{ID: "C1", Priority: 1, InitBalance: d(1500), Balance: d(1500)},
	}

	s := apportion(d(4000), credits)

	require.Len(t, s.Deductions, 1)
	assert.True(t, s.PointAmount.Equal(d(1500)))
	assert.True(t, s.GatewayAmount.Equal(d(2500)))
	assert.True(t, s.PointAmount.Add(s.GatewayAmount).Equal(s.RequestedAmount))
}

func TestApportionmentLineScopedWinsTies(t *testing.T) {
	credits := []*PointCredit{
		{ID: "C-order", Priority: 1, Balance: d(1000)},
		{ID: "C-line", Priority: 1, LineID: "L1", Balance: d(1000)},
	}

	s := apportion(d(500), credits)

	require.Len(t, s.Deductions, 1)
	assert.Equal(t, "C-line", s.Deductions[0].CreditID)
}

// Canceling a line whose removal leaves the group discount intact refunds
// the plain line value.
func TestSettlePartialZeroDelta(t *testing.T) {
	o := newTestOrder()
	o.Groups["G1"] = &ShipmentGroup{ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMax}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(4000),
	}
	o.Products["P2"] = &Product{
		ID: "P2", GroupID: "G1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(6000),
	}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)
	addLine(o, "L2", "P2", 20000, 1, StatusCheckRequired)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	s, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)

	// Without L1 the max fee 6000 still survives, so the delta is zero.
	assert.True(t, s.RequestedAmount.Equal(d(10000)))
	assert.True(t, s.GatewayAmount.Equal(d(10000)))
	assert.Equal(t, StatusRefundFinishedOrderCanceled, s.TargetStatus)
	assert.NotEmpty(t, o.Payment.Outstanding)
}

// Canceling the line that carried the discounted max fee hands the customer
// the fee difference on top of the line value.
func TestSettlePartialPositiveDelta(t *testing.T) {
	o := newTestOrder()
	o.Groups["G1"] = &ShipmentGroup{ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMax}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(4000),
	}
	o.Products["P2"] = &Product{
		ID: "P2", GroupID: "G1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(6000),
	}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)
	addLine(o, "L2", "P2", 20000, 1, StatusCheckRequired)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	s, err := engine.SettlePartial(o, "L2", CtxMarketplaceCancel, "")
	require.NoError(t, err)

	// Net drops 6000 -> 4000, delta +2000.
	assert.True(t, s.RequestedAmount.Equal(d(22000)))
}

func TestLossFeeAbsorbedOnVirtualGroup(t *testing.T) {
	o := newTestOrder()
	o.Region = RegionJeju
	o.Groups["G1"] = &ShipmentGroup{
		ID: "G1", DiscountMethod: DiscountMax,
		AdditionalPricingSet: true, RegionDivisionLevel: 2, Division2Fee: d(6000),
	}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingConditionalCharge,
		HasDeliverySchedule: true, BaseFee: d(3000), ChargeStandard: d(4000),
	}
	addLine(o, "L1", "P1", 2000, 1, StatusCheckRequired)
	addLine(o, "L2", "P1", 2500, 1, StatusOrderFinished)
	require.NoError(t, o.RecalculateFees())
	require.True(t, o.Groups["G1"].NetFee().Equal(d(6000)))

	engine := NewSettlementEngine()

	// Removing L1 drops PV below the free-shipping threshold: net would rise
	// to 9000, delta -3000, exceeding the 2000 line value.
	delta, err := engine.FeeDelta(o, "L1")
	require.NoError(t, err)
	require.True(t, delta.Equal(d(-3000)))

	s, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)

	assert.True(t, s.RequestedAmount.Equal(d(2000)), "full line value, no delta deduction")
	assert.True(t, o.Groups["G1"].LossFee.Equal(d(3000)))
}

func TestLossFeeAccumulatesAcrossCancellations(t *testing.T) {
	o := newTestOrder()
	o.Region = RegionJeju
	o.Groups["G1"] = &ShipmentGroup{
		ID: "G1", DiscountMethod: DiscountMax,
		AdditionalPricingSet: true, RegionDivisionLevel: 2, Division2Fee: d(6000),
		LossFee: d(500),
	}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingConditionalCharge,
		HasDeliverySchedule: true, BaseFee: d(3000), ChargeStandard: d(4000),
	}
	addLine(o, "L1", "P1", 2000, 1, StatusCheckRequired)
	addLine(o, "L2", "P1", 2500, 1, StatusOrderFinished)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	_, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)

	// An earlier absorption on the same group is added to, not overwritten.
	assert.True(t, o.Groups["G1"].LossFee.Equal(d(3500)))
}

func TestContextInitiator(t *testing.T) {
	assert.Equal(t, InitiatorUser, CtxMarketplaceCancel.Initiator())
	assert.Equal(t, InitiatorSupplier, CtxBackofficeCheckRejected.Initiator())
	assert.Equal(t, InitiatorSupplier, CtxBackofficeShipRejected.Initiator())
	assert.Equal(t, InitiatorChannel, CtxBackofficeClaimApproved.Initiator())
	assert.Equal(t, InitiatorChannel, CtxBackofficeSpecialCase.Initiator())
}

func TestNegativeRefundRejectedOnRealGroup(t *testing.T) {
	o := newTestOrder()
	o.Groups["G1"] = &ShipmentGroup{ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMin}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingConditionalCharge,
		HasDeliverySchedule: true, BaseFee: d(5000), ChargeStandard: d(4000),
	}
	addLine(o, "L1", "P1", 2000, 1, StatusCheckRequired)
	addLine(o, "L2", "P1", 2500, 1, StatusOrderFinished)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	_, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")

	assert.ErrorIs(t, err, ErrNegativeRefund)
	assert.Empty(t, o.Payment.Outstanding)
}

func TestSettlePartialClampsToRefundable(t *testing.T) {
	o := newTestOrder()
	o.Payment.CurrGatewayAmount = d(3000)
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)
	addLine(o, "L2", "P1", 10000, 1, StatusCheckRequired)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	s, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)

	assert.True(t, s.RequestedAmount.Equal(d(3000)))
	assert.True(t, s.GatewayAmount.Equal(d(3000)))
}

func TestOutstandingReplay(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	first, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)

	// A retried request must observe the stored settlement, not recompute.
	second, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)
	assert.True(t, first.RequestedAmount.Equal(second.RequestedAmount))
	assert.Equal(t, first.LineID, second.LineID)
}

func TestApplyOutstanding(t *testing.T) {
	o := newTestOrder()
	o.Payment.CurrGatewayAmount = d(20000)
	o.Payment.CurrPointAmount = d(3000)
	o.Payment.Credits = []*PointCredit{
		{ID: "C1", Priority: 1, InitBalance: d(3000), Balance: d(3000)},
	}
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)
	addLine(o, "L2", "P1", 10000, 1, StatusCheckRequired)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	s, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)
	require.True(t, s.RequestedAmount.Equal(d(10000)))

	records, err := engine.ApplyOutstanding(o, time.Now())
	require.NoError(t, err)

	// 3000 from the credit, 7000 from the gateway.
	require.Len(t, records, 2)
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.PointAmount).Add(r.GatewayAmount)
	}
	assert.True(t, total.Equal(s.RequestedAmount), "ledger sums to the requested amount")
	assert.True(t, o.Payment.Credits[0].Balance.Equal(decimal.Zero))
	assert.True(t, o.Payment.Credits[0].Refunded.Equal(d(3000)))
	assert.True(t, o.Payment.CurrGatewayAmount.Equal(d(13000)))
	assert.True(t, o.Payment.GatewayRefunded.Equal(d(7000)))
	assert.Empty(t, o.Payment.Outstanding)

	_, err = engine.ApplyOutstanding(o, time.Now())
	assert.ErrorIs(t, err, ErrNoOutstanding)
}

func TestSettleFull(t *testing.T) {
	o := newTestOrder()
	o.Payment.CurrGatewayAmount = d(15000)
	o.Payment.CurrPointAmount = d(4000)
	o.Payment.Credits = []*PointCredit{
		{ID: "C1", Priority: 2, InitBalance: d(2500), Balance: d(2500)},
		{ID: "C2", Priority: 1, InitBalance: d(1500), Balance: d(1500)},
	}

	engine := NewSettlementEngine()
	s, err := engine.SettleFull(o, "order canceled")
	require.NoError(t, err)

	assert.True(t, s.RequestedAmount.Equal(d(19000)))
	assert.True(t, s.GatewayAmount.Equal(d(15000)))
	assert.True(t, s.PointAmount.Equal(d(4000)))
	require.Len(t, s.Deductions, 2)
	assert.Equal(t, "C2", s.Deductions[0].CreditID, "priority order holds on full cancel too")

	records, err := engine.ApplyOutstanding(o, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, o.Payment.CurrGatewayAmount.Equal(decimal.Zero))
	assert.True(t, o.Payment.CurrPointAmount.Equal(decimal.Zero))
}

func TestSiblingCreditsRefundedOnLastLine(t *testing.T) {
	o := newTestOrder()
	o.Payment.CurrGatewayAmount = d(50000)
	o.Payment.CurrPointAmount = d(1000)
	o.Payment.Credits = []*PointCredit{
		{ID: "C-sibling", Priority: 1, LineID: "L2", GroupID: "G1", InitBalance: d(1000), Balance: d(1000)},
	}
	o.Groups["G1"] = &ShipmentGroup{ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMax}
	o.Products["P1"] = &Product{ID: "P1", GroupID: "G1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)
	addLine(o, "L2", "P1", 10000, 1, StatusRefundFinishedOrderCanceled)
	require.NoError(t, o.RecalculateFees())
	require.True(t, o.IsLastLine("L1"))

	engine := NewSettlementEngine()
	s, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)

	// The sibling-scoped credit's balance rides along with the last refund.
	assert.True(t, s.RequestedAmount.Equal(d(11000)))
	assert.True(t, s.PointAmount.Equal(d(1000)))
	assert.True(t, s.GatewayAmount.Equal(d(10000)))
}

func TestLossFeeRecoupedOnLastLine(t *testing.T) {
	o := newTestOrder()
	o.Payment.CurrGatewayAmount = d(50000)
	o.Groups["G1"] = &ShipmentGroup{
		ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMax, LossFee: d(1500),
	}
	o.Products["P1"] = &Product{ID: "P1", GroupID: "G1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)
	addLine(o, "L2", "P1", 10000, 1, StatusRefundFinishedOrderCanceled)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	s, err := engine.SettlePartial(o, "L1", CtxMarketplaceCancel, "")
	require.NoError(t, err)

	assert.True(t, s.RequestedAmount.Equal(d(8500)))
}

func TestReturnFeeDeliveredForFree(t *testing.T) {
	o := newTestOrder()
	o.Groups["G1"] = &ShipmentGroup{ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMax}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(4000),
		ReturnFee: d(3000), ReturnFeeIfFreeDelivery: d(5500),
	}
	o.Products["P2"] = &Product{
		ID: "P2", GroupID: "G1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(6000),
		ReturnFee: d(3000), ReturnFeeIfFreeDelivery: d(5500),
	}
	addLine(o, "L1", "P1", 10000, 1, StatusDeliveryOK)
	addLine(o, "L2", "P2", 20000, 1, StatusDeliveryOK)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()

	// P2 carries the unique max fee, so it was NOT delivered for free.
	fee, err := engine.CalculateReturnFee(o, "L2")
	require.NoError(t, err)
	assert.True(t, fee.Equal(d(3000)))

	// P1 rode the group discount: the free-delivery return fee applies.
	fee, err = engine.CalculateReturnFee(o, "L1")
	require.NoError(t, err)
	assert.True(t, fee.Equal(d(5500)))
	assert.True(t, o.Lines["L1"].CalculatedReturnFee.Equal(d(5500)))
}

func TestExchangeFeeDoublesSurcharge(t *testing.T) {
	o := newTestOrder()
	o.Region = RegionJeju
	o.Groups["G1"] = &ShipmentGroup{
		ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMax,
		AdditionalPricingSet: true, RegionDivisionLevel: 2, Division2Fee: d(3000),
	}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(4000), ExchangeFee: d(6000),
	}
	addLine(o, "L1", "P1", 10000, 1, StatusDeliveryOK)
	require.NoError(t, o.RecalculateFees())

	engine := NewSettlementEngine()
	fee, err := engine.CalculateExchangeFee(o, "L1")
	require.NoError(t, err)

	// 6000 exchange fee + 3000 surcharge both ways.
	assert.True(t, fee.Equal(d(12000)))
}
