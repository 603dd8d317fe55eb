package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DiscountsComputedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discounts_computed_total",
		Help: "Total number of discount computations",
	}, []string{"scope", "result"})

	RedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voucher_redemptions_total",
		Help: "Total number of successful voucher redemptions",
	})

	RedemptionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_redemptions_rejected_total",
		Help: "Total number of rejected voucher redemptions",
	}, []string{"reason"})

	RedemptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voucher_redemption_latency_seconds",
		Help:    "Latency of voucher redemption transactions",
		Buckets: prometheus.DefBuckets,
	})

	AwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awards_total",
		Help: "Total number of ledger awards created",
	}, []string{"ledger", "source"})

	DuplicateAwardsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duplicate_awards_suppressed_total",
		Help: "Total number of awards deduplicated by the unique constraint",
	}, []string{"ledger"})

	SpendsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spends_rejected_insufficient_total",
		Help: "Total number of spends rejected for insufficient balance",
	})

	BalanceDriftDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_drift_detected_total",
		Help: "Total number of users whose denormalized balance disagreed with the ledger sum",
	}, []string{"ledger"})

	OTPSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_sends_total",
		Help: "Total number of OTP send attempts",
	}, []string{"result"})

	OTPVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verifications_total",
		Help: "Total number of OTP verification attempts",
	}, []string{"result"})

	VoucherCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_cache_requests_total",
		Help: "Voucher config cache lookups",
	}, []string{"result"})

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
