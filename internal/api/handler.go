package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"wonderstars/internal/models"
	"wonderstars/internal/service"
	"wonderstars/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	vouchers *service.VoucherService
	awards   *service.AwardService
	otp      *service.OTPService
}

// NewHandler creates a new HTTP handler
func NewHandler(vouchers *service.VoucherService, awards *service.AwardService, otp *service.OTPService) *Handler {
	return &Handler{
		vouchers: vouchers,
		awards:   awards,
		otp:      otp,
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

	// Legacy phone-verification endpoints, contract preserved
	router.POST("/send-otp-sms", h.sendOTP)
	router.POST("/verify-otp", h.verifyOTP)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/vouchers", h.createVoucher)
		v1.GET("/vouchers/:code", h.getVoucher)
		v1.POST("/vouchers/:code/claim", h.claimVoucher)
		v1.POST("/vouchers/:code/redeem", h.redeemVoucher)
		v1.POST("/cart/discount", h.cartDiscount)
		v1.GET("/users/:id/balances", h.getBalances)
		v1.GET("/users/:id/vouchers/:voucher_id/redeemable", h.canRedeemToday)
		v1.GET("/users/:id/redemptions", h.getRedemptions)
		v1.GET("/users/:id/transactions/:ledger", h.getTransactions)
		v1.POST("/wallet/topups", h.recordWalletTopup)
		v1.POST("/awards", h.createAward)
		v1.POST("/awards/spend", h.spend)
		v1.POST("/admin/adjustments", h.adminAdjust)
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

// createVoucher handles voucher configuration creation
func (h *Handler) createVoucher(c *gin.Context) {
	var voucher models.Voucher
	if err := c.ShouldBindJSON(&voucher); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.vouchers.CreateVoucher(c.Request.Context(), &voucher); err != nil {
		if errors.Is(err, models.ErrInvalidVoucherConfig) || errors.Is(err, models.ErrDuplicateOperation) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create voucher"})
		return
	}

	c.JSON(http.StatusCreated, voucher)
}

// getVoucher handles voucher lookup by code
func (h *Handler) getVoucher(c *gin.Context) {
	voucher, err := h.vouchers.GetVoucher(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, models.ErrVoucherNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load voucher"})
		return
	}
	c.JSON(http.StatusOK, voucher)
}

type claimRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// claimVoucher handles a user claiming a voucher
func (h *Handler) claimVoucher(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	uv, err := h.vouchers.Claim(c.Request.Context(), req.UserID, c.Param("code"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrVoucherNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
		case errors.Is(err, models.ErrVoucherInactive):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Voucher is not active"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to claim voucher"})
		}
		return
	}

	c.JSON(http.StatusOK, uv)
}

type redeemRequest struct {
	UserID int64                   `json:"user_id" binding:"required"`
	Method models.RedemptionMethod `json:"method"`
}

// redeemVoucher handles voucher redemption
func (h *Handler) redeemVoucher(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Method == "" {
		req.Method = models.RedeemManualCode
	}

	result, err := h.vouchers.Redeem(c.Request.Context(), req.UserID, c.Param("code"), req.Method)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong, please try again"})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

type cartDiscountRequest struct {
	VoucherCode string                `json:"voucher_code" binding:"required"`
	Items       []models.CartLineItem `json:"items" binding:"required,min=1"`
}

// cartDiscount computes the discount a voucher yields for a cart
func (h *Handler) cartDiscount(c *gin.Context) {
	var req cartDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.vouchers.ComputeCartDiscount(c.Request.Context(), req.VoucherCode, req.Items)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrVoucherNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
			return
		case errors.Is(err, models.ErrInvalidVoucherConfig):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "result": result})
			return
		case errors.Is(err, models.ErrVoucherInactive):
			// Not an error for the cart page: zero discount with a message
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute discount"})
			return
		}
	}

	c.JSON(http.StatusOK, result)
}

// canRedeemToday reports whether a redemption attempt would succeed now
func (h *Handler) canRedeemToday(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	voucherID, err := strconv.ParseInt(c.Param("voucher_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid voucher ID"})
		return
	}

	ok, reason, err := h.vouchers.CanRedeemToday(c.Request.Context(), userID, voucherID)
	if err != nil {
		if errors.Is(err, models.ErrVoucherNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check voucher"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"redeemable": ok, "reason": reason})
}

// getRedemptions returns a user's voucher redemption history
func (h *Handler) getRedemptions(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	redemptions, err := h.vouchers.RedemptionHistory(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load redemptions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"redemptions": redemptions})
}

// getBalances returns the balances snapshot for a user
func (h *Handler) getBalances(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	balances, err := h.awards.GetBalances(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load balances"})
		return
	}

	c.JSON(http.StatusOK, balances)
}

// getTransactions returns a user's ledger history
func (h *Handler) getTransactions(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	kind := models.LedgerKind(c.Param("ledger"))
	if kind.Table() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown ledger"})
		return
	}

	txs, err := h.awards.GetHistory(c.Request.Context(), kind, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

type walletTopupRequest struct {
	UserID     int64           `json:"user_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	GatewayRef string          `json:"gateway_ref" binding:"required"`
}

// recordWalletTopup handles a settled payment-gateway callback. Gateways
// retry delivery, so a repeated gateway_ref is absorbed, not re-credited.
func (h *Handler) recordWalletTopup(c *gin.Context) {
	var req walletTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.awards.RecordWalletTopup(c.Request.Context(), req.UserID, req.Amount, req.GatewayRef)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record top-up"})
		return
	}

	c.JSON(http.StatusOK, result)
}

type awardRequest struct {
	UserID         int64             `json:"user_id" binding:"required"`
	Ledger         models.LedgerKind `json:"ledger" binding:"required"`
	Amount         decimal.Decimal   `json:"amount" binding:"required"`
	Source         string            `json:"source" binding:"required"`
	CorrelationKey string            `json:"correlation_key" binding:"required"`
	Metadata       models.Metadata   `json:"metadata"`
}

// createAward handles an idempotent ledger credit
func (h *Handler) createAward(c *gin.Context) {
	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Ledger.Table() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown ledger"})
		return
	}

	result, err := h.awards.Award(c.Request.Context(), req.Ledger, req.UserID, req.Amount, req.Source, req.CorrelationKey, req.Metadata)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record award"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// spend handles a ledger debit
func (h *Handler) spend(c *gin.Context) {
	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Ledger.Table() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown ledger"})
		return
	}

	result, err := h.awards.Spend(c.Request.Context(), req.Ledger, req.UserID, req.Amount, req.Source, req.CorrelationKey, req.Metadata)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record spend"})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

type adjustmentRequest struct {
	UserID   int64             `json:"user_id" binding:"required"`
	Ledger   models.LedgerKind `json:"ledger" binding:"required"`
	Delta    decimal.Decimal   `json:"delta" binding:"required"`
	Reason   string            `json:"reason" binding:"required"`
	Operator string            `json:"operator" binding:"required"`
}

// adminAdjust handles an audited administrative balance adjustment
func (h *Handler) adminAdjust(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Ledger.Table() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown ledger"})
		return
	}

	result, err := h.awards.AdminAdjust(c.Request.Context(), req.Ledger, req.UserID, req.Delta, req.Reason, req.Operator)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply adjustment"})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

type sendOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// sendOTP handles POST /send-otp-sms
func (h *Handler) sendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.otp.SendOTP(c.Request.Context(), req.Phone)
	if err != nil {
		if errors.Is(err, models.ErrOTPRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":       false,
				"remainingTime": result.RemainingTime,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send verification code"})
		return
	}

	c.JSON(http.StatusOK, result)
}

type verifyOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// verifyOTP handles POST /verify-otp
func (h *Handler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	err := h.otp.VerifyOTP(c.Request.Context(), req.Phone, req.Code)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, models.ErrOTPNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "No verification code pending"})
	case errors.Is(err, models.ErrOTPMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Verification code does not match"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify code"})
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
