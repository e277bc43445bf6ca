package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders successfully paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	LineStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "line_status_changes_total",
		Help: "Total number of applied line status transitions",
	}, []string{"to_status"})

	FeeRecalculationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fee_recalculations_total",
		Help: "Total number of delivery fee aggregation passes",
	})

	FeeRecalculationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fee_recalculation_latency_seconds",
		Help:    "Latency of delivery fee aggregation passes",
		Buckets: prometheus.DefBuckets,
	})

	RefundSettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_settlements_total",
		Help: "Total number of refund settlements computed",
	}, []string{"context"})

	RefundRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_rejections_total",
		Help: "Total number of rejected refund requests",
	}, []string{"reason"})

	RefundAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refund_applied_total",
		Help: "Total number of applied refund settlements",
	})

	LossFeeAbsorbedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loss_fee_absorbed_total",
		Help: "Total number of loss fee absorptions on virtual groups",
	})

	GatewayRefundLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_refund_latency_seconds",
		Help:    "Latency of payment gateway refund calls",
		Buckets: prometheus.DefBuckets,
	})

	TrackingCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_callbacks_total",
		Help: "Total number of carrier tracking callbacks processed",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
