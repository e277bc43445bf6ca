package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func newTestOrder() *Order {
	return &Order{
		ID:       "ORD-1",
		UserID:   "USR-1",
		Country:  "KR",
		Region:   RegionMainland,
		Status:   OrderPaid,
		Lines:    map[string]*OrderLine{},
		Products: map[string]*Product{},
		Groups:   map[string]*ShipmentGroup{},
		Payment: &PaymentAccount{
			ID:                "PAY-1",
			InitGatewayAmount: d(1000000),
			CurrGatewayAmount: d(1000000),
		},
	}
}

func addLine(o *Order, id, productID string, price, qty int64, status LineStatus) *OrderLine {
	p := o.Products[productID]
	groupID := ""
	if p != nil {
		groupID = p.GroupID
	}
	line := &OrderLine{
		ID:              id,
		ProductID:       productID,
		GroupID:         groupID,
		Status:          status,
		SellPrice:       d(price),
		Quantity:        qty,
		ReturnFeeMethod: ReturnFeeDefault,
	}
	o.Lines[id] = line
	return line
}

func TestUnitChargeFee(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{
		ID:                  "P1",
		PricingMethod:       PricingUnitCharge,
		HasDeliverySchedule: true,
		BaseFee:             d(3000),
		ChargeStandard:      d(5),
	}
	addLine(o, "L1", "P1", 10000, 7, StatusCheckRequired)

	require.NoError(t, o.RecalculateFees())

	// ceil(7/5) = 2 boxes
	assert.True(t, o.Products["P1"].Fee.Equal(d(6000)))
}

func TestGroupMaxDiscount(t *testing.T) {
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

	g := o.Groups["G1"]
	assert.True(t, g.RawFee.Equal(d(10000)))
	assert.True(t, g.Discount.Equal(d(4000)))
	assert.True(t, g.NetFee().Equal(d(6000)))
	assert.True(t, o.CurrDeliveryFee.Equal(d(6000)))
}

func TestGroupMinDiscount(t *testing.T) {
	fees := []decimal.Decimal{d(4000), d(6000)}

	discount, err := groupDiscount(DiscountMin, fees)
	require.NoError(t, err)

	// min survives: 10000 - 4000 = 6000 discounted
	assert.True(t, discount.Equal(d(6000)))
}

func TestRegionSurchargeTwoTier(t *testing.T) {
	g := &ShipmentGroup{
		AdditionalPricingSet: true,
		RegionDivisionLevel:  2,
		Division2Fee:         d(3000),
		Division3JejuFee:     d(5000),
		Division3OutsideFee:  d(8000),
	}

	assert.True(t, g.regionSurcharge(RegionJeju).Equal(d(3000)))
	assert.True(t, g.regionSurcharge(RegionOutsideJeju).Equal(d(3000)))
	assert.True(t, g.regionSurcharge(RegionMainland).Equal(decimal.Zero))
}

func TestRegionSurchargeThreeTier(t *testing.T) {
	g := &ShipmentGroup{
		AdditionalPricingSet: true,
		RegionDivisionLevel:  3,
		Division3JejuFee:     d(5000),
		Division3OutsideFee:  d(8000),
	}

	assert.True(t, g.regionSurcharge(RegionJeju).Equal(d(5000)))
	assert.True(t, g.regionSurcharge(RegionOutsideJeju).Equal(d(8000)))
	assert.True(t, g.regionSurcharge(RegionMainland).Equal(decimal.Zero))
}

func TestRegionSurchargeRequiresPricingSet(t *testing.T) {
	g := &ShipmentGroup{RegionDivisionLevel: 2, Division2Fee: d(3000)}

	assert.True(t, g.regionSurcharge(RegionJeju).Equal(decimal.Zero))
}

func TestConditionalChargeThreshold(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{
		ID: "P1", PricingMethod: PricingConditionalCharge,
		HasDeliverySchedule: true, BaseFee: d(2500), ChargeStandard: d(30000),
	}
	addLine(o, "L1", "P1", 10000, 2, StatusCheckRequired)

	require.NoError(t, o.RecalculateFees())
	assert.True(t, o.Products["P1"].Fee.Equal(d(2500)), "below threshold charges base fee")

	o.Lines["L1"].Quantity = 3
	require.NoError(t, o.RecalculateFees())
	assert.True(t, o.Products["P1"].Fee.Equal(decimal.Zero), "at threshold ships free")
}

func TestNoScheduleMeansNoFee(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{
		ID: "P1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: false, BaseFee: d(3000),
	}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)

	require.NoError(t, o.RecalculateFees())

	assert.True(t, o.Products["P1"].Fee.Equal(decimal.Zero))
}

func TestAllCanceledGroupChargesNothing(t *testing.T) {
	o := newTestOrder()
	o.Groups["G1"] = &ShipmentGroup{ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMax}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(4000),
	}
	addLine(o, "L1", "P1", 10000, 1, StatusRefundFinishedNormal)

	require.NoError(t, o.RecalculateFees())

	assert.True(t, o.Groups["G1"].NetFee().Equal(decimal.Zero))
	assert.True(t, o.CurrDeliveryFee.Equal(decimal.Zero))
}

func TestVirtualGroupUnitSurchargeMultiplies(t *testing.T) {
	o := newTestOrder()
	o.Region = RegionJeju
	o.Groups["G1"] = &ShipmentGroup{
		ID: "G1", DiscountMethod: DiscountMax,
		AdditionalPricingSet: true, RegionDivisionLevel: 2, Division2Fee: d(1000),
	}
	o.Products["P1"] = &Product{
		ID: "P1", GroupID: "G1", PricingMethod: PricingUnitCharge,
		HasDeliverySchedule: true, BaseFee: d(3000), ChargeStandard: d(5),
	}
	addLine(o, "L1", "P1", 10000, 7, StatusCheckRequired)

	require.NoError(t, o.RecalculateFees())

	g := o.Groups["G1"]
	assert.True(t, g.RawFee.Equal(d(6000)))
	assert.True(t, g.Surcharge.Equal(d(2000)), "surcharge scales with box count")
	assert.True(t, g.NetFee().Equal(d(8000)))
}

func TestExclusionSimulationLeavesAggregateUntouched(t *testing.T) {
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

	without, err := o.groupNetFeeExcluding(o.Groups["G1"], "L2")
	require.NoError(t, err)

	assert.True(t, without.Equal(d(4000)))
	assert.True(t, o.Groups["G1"].NetFee().Equal(d(6000)), "live aggregate unchanged")
	assert.Equal(t, StatusCheckRequired, o.Lines["L2"].Status)
}

func TestRecalculateAfterStatusFlip(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{
		ID: "P1", PricingMethod: PricingRegularCharge,
		HasDeliverySchedule: true, BaseFee: d(3000),
	}
	addLine(o, "L1", "P1", 10000, 2, StatusCheckRequired)
	require.NoError(t, o.RecalculateFees())
	require.True(t, o.CurrPVAmount.Equal(d(20000)))

	change := o.UpdateLineStatus("L1", StatusRefundFinishedOrderCanceled, time.Now())
	require.NotNil(t, change)
	require.True(t, change.FlipsCountability())
	require.NoError(t, o.RecalculateFees())

	assert.True(t, o.CurrPVAmount.Equal(decimal.Zero))
	assert.True(t, o.CurrDeliveryFee.Equal(decimal.Zero))
}
