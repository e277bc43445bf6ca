package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GatewayClient talks to the payment gateway for refund issuance (mocked)
type GatewayClient struct {
	logger      *zap.Logger
	timeout     time.Duration
	successRate float64 // Mock success rate (0.0 - 1.0)
}

// NewGatewayClient creates a new gateway client
func NewGatewayClient(timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		logger:      util.GetLogger(),
		timeout:     timeout,
		successRate: 0.98,
	}
}

// IssueRefund asks the gateway to return the given amount to the original
// payment instrument and returns the gateway transaction id.
func (gc *GatewayClient) IssueRefund(ctx context.Context, orderID string, amount decimal.Decimal) (string, error) {
	ctx, span := util.StartSpan(ctx, "GatewayClient.IssueRefund")
	defer span.End()

	if amount.IsZero() {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, gc.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		util.GatewayRefundLatency.Observe(time.Since(start).Seconds())
	}()

	gc.logger.Info("Issuing gateway refund",
		zap.String("order_id", orderID),
		zap.String("amount", amount.String()))

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Duration(100+rand.Intn(400)) * time.Millisecond):
	}

	if rand.Float64() >= gc.successRate {
		return "", fmt.Errorf("gateway declined refund for order %s", orderID)
	}

	txID := fmt.Sprintf("RTX-%s", uuid.New().String()[:8])
	gc.logger.Info("Gateway refund issued",
		zap.String("order_id", orderID),
		zap.String("tx_id", txID))
	return txID, nil
}
