package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"fulfillment-service/internal/domain"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService  *service.OrderService
	claimService  *service.ClaimService
	refundService *service.RefundService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	claimService *service.ClaimService,
	refundService *service.RefundService,
) *Handler {
	return &Handler{
		orderService:  orderService,
		claimService:  claimService,
		refundService: refundService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/payment/complete", h.completePayment)
		v1.POST("/orders/:id/payment/fail", h.failPayment)
		v1.POST("/orders/:id/lines/:lineID/status", h.changeLineStatus)
		v1.GET("/orders/:id/lines/:lineID/refund-quote", h.quoteLineRefund)
		v1.GET("/orders/:id/claims/:lineID/return-fee", h.estimateReturnFee)
		v1.GET("/orders/:id/claims/:lineID/exchange-fee", h.estimateExchangeFee)
		v1.POST("/orders/:id/cancellations", h.cancelLine)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.GET("/orders/:id/refunds", h.getRefundLedger)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, logs, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":       order,
		"status_logs": logs,
	})
}

// completePayment marks the order paid and fans the lines out
func (h *Handler) completePayment(c *gin.Context) {
	if err := h.orderService.CompletePayment(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to complete payment",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}

type failPaymentRequest struct {
	FailStatus string `json:"fail_status" binding:"required"`
	Reason     string `json:"reason"`
}

// failPayment marks the order failed
func (h *Handler) failPayment(c *gin.Context) {
	var req failPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	err := h.orderService.FailPayment(c.Request.Context(), c.Param("id"),
		domain.LineStatus(req.FailStatus), req.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to fail payment",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "failed"})
}

type changeStatusRequest struct {
	Target    string `json:"target" binding:"required"`
	Initiator string `json:"initiator" binding:"omitempty,oneof=user supplier channel system"`
}

// changeLineStatus applies one status transition to a line
func (h *Handler) changeLineStatus(c *gin.Context) {
	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	changes, err := h.claimService.ChangeLineStatus(c.Request.Context(),
		c.Param("id"), c.Param("lineID"), domain.LineStatus(req.Target), req.Initiator)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to change line status",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// quoteLineRefund previews the refund amount a cancellation would produce
func (h *Handler) quoteLineRefund(c *gin.Context) {
	quote, err := h.refundService.QuoteLineRefund(c.Request.Context(),
		c.Param("id"), c.Param("lineID"))
	if err != nil {
		c.JSON(refundStatusCode(err), gin.H{
			"error":   "Failed to quote refund",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// estimateReturnFee quotes the return delivery fee for a claim
func (h *Handler) estimateReturnFee(c *gin.Context) {
	fee, err := h.claimService.EstimateReturnFee(c.Request.Context(),
		c.Param("id"), c.Param("lineID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to estimate return fee",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"return_fee": fee})
}

// estimateExchangeFee quotes the exchange delivery fee for a claim
func (h *Handler) estimateExchangeFee(c *gin.Context) {
	fee, err := h.claimService.EstimateExchangeFee(c.Request.Context(),
		c.Param("id"), c.Param("lineID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to estimate exchange fee",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchange_fee": fee})
}

// cancelLine settles and applies a partial cancellation
func (h *Handler) cancelLine(c *gin.Context) {
	var req service.CancelLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.refundService.CancelLine(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.JSON(refundStatusCode(err), gin.H{
			"error":   "Failed to cancel line",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

type cancelOrderRequest struct {
	Note string `json:"note,omitempty"`
}

// cancelOrder settles and applies a full cancellation
func (h *Handler) cancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.refundService.CancelOrder(c.Request.Context(), c.Param("id"),
		req.Note, c.GetHeader("Idempotency-Key"))
	if err != nil {
		c.JSON(refundStatusCode(err), gin.H{
			"error":   "Failed to cancel order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// getRefundLedger returns the refund history of an order
func (h *Handler) getRefundLedger(c *gin.Context) {
	refunds, err := h.refundService.GetRefundLedger(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load refund ledger",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": refunds})
}

// refundStatusCode maps business rejections to 4xx and everything else to
// 5xx.
func refundStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotEligible),
		errors.Is(err, domain.ErrNegativeRefund),
		errors.Is(err, domain.ErrUnknownContext):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
