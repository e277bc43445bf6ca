package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountability(t *testing.T) {
	assert.False(t, StatusUnselectedInCart.Countable())
	assert.False(t, StatusPaymentFailTimeOut.Countable())
	assert.False(t, StatusRefundFinishedNormal.Countable())
	assert.False(t, StatusRefundFinishedOrderCanceled.Countable())

	assert.True(t, StatusCheckRequired.Countable())
	assert.True(t, StatusDeliveryOK.Countable())
	assert.True(t, StatusOrderFinished.Countable())
	// Mid-claim lines keep counting until the settlement lands.
	assert.True(t, StatusRefundRequested.Countable())
	assert.True(t, StatusRefundInspectPass.Countable())
	assert.True(t, StatusExchangeDeliveryOK.Countable())
}

func TestCancelable(t *testing.T) {
	assert.True(t, StatusPaymentRequired.Cancelable())
	assert.True(t, StatusCheckRequired.Cancelable())

	assert.False(t, StatusShipOK.Cancelable())
	assert.False(t, StatusDeliveryOK.Cancelable())
	assert.False(t, StatusRefundRequested.Cancelable())
}

func TestUpdateLineStatusEffects(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	line := addLine(o, "L1", "P1", 10000, 1, StatusDeliveryOK)
	now := time.Now()

	change := o.UpdateLineStatus("L1", StatusRefundRequested, now)
	require.NotNil(t, change)
	assert.Equal(t, StatusDeliveryOK, change.From)
	assert.Equal(t, StatusRefundRequested, line.RequestStatus)
	require.NotNil(t, line.RequestStatusDate)

	line.ReturnFeeMethod = ReturnFeeCustomerChargeCardCancel
	o.UpdateLineStatus("L1", StatusRefundFailAgreeRejected, now)
	assert.Equal(t, ReturnFeeDefault, line.ReturnFeeMethod)

	o.UpdateLineStatus("L1", StatusOrderFinished, now)
	require.NotNil(t, line.PurchaseFinalizedDate)
}

func TestFastForwardShipToDelivered(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusShipOK)

	changes := o.FastForward("L1", time.Now())

	require.Len(t, changes, 2)
	assert.Equal(t, StatusDeliveryIng, changes[0].To)
	assert.Equal(t, StatusDeliveryOK, changes[1].To)
	assert.Equal(t, StatusDeliveryOK, o.Lines["L1"].Status)
}

func TestFastForwardNoSteps(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)

	assert.Empty(t, o.FastForward("L1", time.Now()))
}

func TestApplyTrackingLevel(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	line := addLine(o, "L1", "P1", 10000, 1, StatusShipOK)
	now := time.Now()

	change := o.ApplyTrackingLevel("L1", 3, now)
	require.NotNil(t, change)
	assert.Equal(t, StatusDeliveryIng, line.Status)
	assert.Equal(t, 3, line.TrackingLevel)

	change = o.ApplyTrackingLevel("L1", 6, now)
	require.NotNil(t, change)
	assert.Equal(t, StatusDeliveryOK, line.Status)
	assert.Equal(t, 6, line.TrackingLevel)

	// Delivered is terminal for the tracking mapping.
	assert.Nil(t, o.ApplyTrackingLevel("L1", 6, now))
}

func TestApplyTrackingLevelIgnoresLowMilestones(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	line := addLine(o, "L1", "P1", 10000, 1, StatusShipOK)

	assert.Nil(t, o.ApplyTrackingLevel("L1", 1, time.Now()))
	assert.Equal(t, StatusShipOK, line.Status)
}

func TestBulkUpdateStatusStampsRequestWhenPaid(t *testing.T) {
	o := newTestOrder()
	o.Products["P1"] = &Product{ID: "P1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusPaymentRequired)
	addLine(o, "L2", "P1", 10000, 1, StatusPaymentRequired)
	now := time.Now()
	o.MarkPaid(now)

	changes := o.BulkUpdateStatus(StatusCheckRequired, now)

	require.Len(t, changes, 2)
	for _, line := range o.Lines {
		assert.Equal(t, StatusCheckRequired, line.Status)
		assert.Equal(t, StatusCheckRequired, line.RequestStatus)
		require.NotNil(t, line.RequestStatusDate)
	}
}

func TestIsLastLine(t *testing.T) {
	o := newTestOrder()
	o.Groups["G1"] = &ShipmentGroup{ID: "G1", SupplierGroupID: "SG1", DiscountMethod: DiscountMax}
	o.Products["P1"] = &Product{ID: "P1", GroupID: "G1", PricingMethod: PricingFree, HasDeliverySchedule: true}
	addLine(o, "L1", "P1", 10000, 1, StatusCheckRequired)
	addLine(o, "L2", "P1", 10000, 1, StatusCheckRequired)

	assert.False(t, o.IsLastLine("L1"), "sibling still countable")

	o.Lines["L2"].Status = StatusRefundFinishedOrderCanceled
	assert.True(t, o.IsLastLine("L1"))

	o.Lines["L2"].Status = StatusOrderFinished
	assert.False(t, o.IsLastLine("L1"), "finished sibling keeps the group alive")
}
