package service

import (
	"testing"

	"fulfillment-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAggregate(t *testing.T) {
	os := &OrderService{}

	req := &CreateOrderRequest{
		UserID:     "USR-1",
		Country:    "KR",
		PostalCode: "63100",
		Groups: []GroupRequest{
			{ID: "G1", SupplierGroupID: "SG1", DiscountMethod: "max"},
		},
		Products: []ProductRequest{
			{ID: "P1", GroupID: "G1", PricingMethod: "regular_charge",
				HasDeliverySchedule: true, BaseFee: decimal.NewFromInt(3000)},
		},
		Lines: []LineRequest{
			{ID: "L1", ProductID: "P1", SellPrice: decimal.NewFromInt(12000), Quantity: 2},
		},
		GatewayAmount: decimal.NewFromInt(20000),
		Credits: []PointCreditRequest{
			{ID: "C1", Priority: 1, Amount: decimal.NewFromInt(7000)},
		},
	}

	order, err := os.buildAggregate(req)
	require.NoError(t, err)

	assert.Equal(t, domain.RegionJeju, order.Region)
	assert.Equal(t, domain.OrderPaymentRequired, order.Status)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "G1", order.Lines["L1"].GroupID, "line inherits the product's group")
	assert.Equal(t, domain.StatusPaymentRequired, order.Lines["L1"].Status)
	require.Len(t, order.Payment.Credits, 1)
	assert.True(t, order.Payment.InitPointAmount.Equal(decimal.NewFromInt(7000)))
	assert.True(t, order.Payment.CurrGatewayAmount.Equal(decimal.NewFromInt(20000)))

	require.NoError(t, order.RecalculateFees())
	assert.True(t, order.CurrPVAmount.Equal(decimal.NewFromInt(24000)))
	assert.True(t, order.CurrDeliveryFee.Equal(decimal.NewFromInt(3000)))
}

func TestBuildAggregateRejectsDanglingRefs(t *testing.T) {
	os := &OrderService{}

	_, err := os.buildAggregate(&CreateOrderRequest{
		UserID:     "USR-1",
		Country:    "KR",
		PostalCode: "06236",
		Products: []ProductRequest{
			{ID: "P1", GroupID: "G-missing", PricingMethod: "free"},
		},
	})
	assert.Error(t, err)

	_, err = os.buildAggregate(&CreateOrderRequest{
		UserID:     "USR-1",
		Country:    "KR",
		PostalCode: "06236",
		Products: []ProductRequest{
			{ID: "P1", PricingMethod: "free"},
		},
		Lines: []LineRequest{
			{ProductID: "P-missing", SellPrice: decimal.NewFromInt(1000), Quantity: 1},
		},
	})
	assert.Error(t, err)
}
