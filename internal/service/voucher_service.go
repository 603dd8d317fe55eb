package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wonderstars/internal/models"
	"wonderstars/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const voucherCacheTTL = 5 * time.Minute

// VoucherStore is the datastore surface the voucher service depends on.
// Declared here so tests can substitute fakes.
type VoucherStore interface {
	GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
	GetVoucherByID(ctx context.Context, id int64) (*models.Voucher, error)
	GetActiveSpecialDiscountVoucher(ctx context.Context) (*models.Voucher, error)
	CreateVoucher(ctx context.Context, v *models.Voucher) error
	ClaimVoucher(ctx context.Context, userID int64, voucher *models.Voucher) (*models.UserVoucher, error)
	GetUserVoucher(ctx context.Context, userID, voucherID int64) (*models.UserVoucher, error)
	RedeemVoucherTx(ctx context.Context, userID int64, voucher *models.Voucher, method models.RedemptionMethod, today time.Time, expiresAt *time.Time) (*models.UserVoucher, error)
	GetRedemptionsByUser(ctx context.Context, userID int64) ([]models.VoucherRedemption, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// VoucherCache is the cache surface for voucher configuration.
type VoucherCache interface {
	GetCachedVoucher(ctx context.Context, code string) (*models.Voucher, error)
	CacheVoucher(ctx context.Context, voucher *models.Voucher, ttl time.Duration) error
	InvalidateVoucher(ctx context.Context, code string) error
}

// Publisher is the event-stream surface services publish to.
type Publisher interface {
	PublishVoucherRedeemed(ctx context.Context, event *models.VoucherRedeemedEvent) error
	PublishBonusAwarded(ctx context.Context, event *models.BonusAwardedEvent) error
	PublishStarsAwarded(ctx context.Context, event *models.StarsAwardedEvent) error
	PublishBalanceDrift(ctx context.Context, event *models.BalanceDriftEvent) error
	PublishWalletTopupCompleted(ctx context.Context, event *models.WalletTopupCompletedEvent) error
}

// VoucherService handles the voucher catalog, discount computation and the
// redemption ledger.
type VoucherService struct {
	store     VoucherStore
	cache     VoucherCache
	publisher Publisher
	logger    *zap.Logger
	dailyTTL  time.Duration
	now       func() time.Time
}

// NewVoucherService creates a new voucher service. cache and publisher may be
// nil, which disables caching and event publication respectively.
func NewVoucherService(store VoucherStore, cache VoucherCache, publisher Publisher, dailyTTL time.Duration) *VoucherService {
	return &VoucherService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
		dailyTTL:  dailyTTL,
		now:       time.Now,
	}
}

// CreateVoucher validates and persists a voucher configuration. At most one
// special-discount voucher may be active system-wide; that policy is checked
// here rather than by a database constraint.
func (s *VoucherService) CreateVoucher(ctx context.Context, v *models.Voucher) error {
	ctx, span := util.StartSpan(ctx, "VoucherService.CreateVoucher")
	defer span.End()

	if err := v.Validate(); err != nil {
		return err
	}

	if v.RestrictionType == models.RestrictSpecialDiscount && v.IsActive {
		existing, err := s.store.GetActiveSpecialDiscountVoucher(ctx)
		if err != nil {
			return fmt.Errorf("failed to check active special discount voucher: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: special discount voucher %s is already active", models.ErrInvalidVoucherConfig, existing.Code)
		}
	}

	if err := s.store.CreateVoucher(ctx, v); err != nil {
		return err
	}

	s.logger.Info("Voucher created",
		zap.Int64("voucher_id", v.ID),
		zap.String("code", v.Code))
	return nil
}

// GetVoucher loads a voucher by code, trying the cache first.
func (s *VoucherService) GetVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	if s.cache != nil {
		cached, err := s.cache.GetCachedVoucher(ctx, code)
		if err != nil {
			s.logger.Warn("Voucher cache read failed", zap.String("code", code), zap.Error(err))
		}
		if cached != nil {
			util.VoucherCacheRequests.WithLabelValues("hit").Inc()
			return cached, nil
		}
		util.VoucherCacheRequests.WithLabelValues("miss").Inc()
	}

	voucher, err := s.store.GetVoucherByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.CacheVoucher(ctx, voucher, voucherCacheTTL); err != nil {
			s.logger.Warn("Voucher cache write failed", zap.String("code", code), zap.Error(err))
		}
	}
	return voucher, nil
}

// ComputeCartDiscount resolves the voucher and computes the discount for a
// cart. Products are loaded so eligibility can see product-side attributes.
func (s *VoucherService) ComputeCartDiscount(ctx context.Context, code string, cart []models.CartLineItem) (DiscountResult, error) {
	ctx, span := util.StartSpan(ctx, "VoucherService.ComputeCartDiscount")
	defer span.End()

	voucher, err := s.GetVoucher(ctx, code)
	if err != nil {
		return zeroResult(models.Subtotal(cart), "voucher not found"), err
	}

	productIDs := make([]int64, 0, len(cart))
	for _, item := range cart {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return zeroResult(models.Subtotal(cart), "failed to load products"), err
	}
	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	result, err := ComputeDiscount(cart, productMap, voucher)
	scope := string(voucher.ApplicationScope)
	if result.Applicable {
		util.DiscountsComputedTotal.WithLabelValues(scope, "applied").Inc()
	} else {
		util.DiscountsComputedTotal.WithLabelValues(scope, "not_applicable").Inc()
	}
	return result, err
}

// Claim creates the user's claim on a voucher. Claiming twice is a no-op.
func (s *VoucherService) Claim(ctx context.Context, userID int64, code string) (*models.UserVoucher, error) {
	ctx, span := util.StartSpan(ctx, "VoucherService.Claim")
	defer span.End()

	voucher, err := s.GetVoucher(ctx, code)
	if err != nil {
		return nil, err
	}
	if !voucher.IsActive {
		return nil, models.ErrVoucherInactive
	}
	return s.store.ClaimVoucher(ctx, userID, voucher)
}

// CanRedeemToday reports whether a redemption would succeed right now,
// with a human-readable reason when it would not. A missing claim counts as
// redeemable because Redeem claims implicitly.
func (s *VoucherService) CanRedeemToday(ctx context.Context, userID, voucherID int64) (bool, string, error) {
	voucher, err := s.store.GetVoucherByID(ctx, voucherID)
	if err != nil {
		return false, "", err
	}
	if !voucher.IsActive {
		return false, "This voucher is no longer active", nil
	}

	uv, err := s.store.GetUserVoucher(ctx, userID, voucherID)
	if errors.Is(err, models.ErrNoClaim) {
		return true, "", nil
	}
	if err != nil {
		return false, "", err
	}

	switch {
	case uv.Status == models.UserVoucherUsed:
		return false, "You've already used this voucher", nil
	case uv.Status == models.UserVoucherExpired:
		return false, "This voucher has expired", nil
	case voucher.IsDailyRedeemable && uv.LastRedeemedDate.Valid && sameDay(uv.LastRedeemedDate.Time, s.now()):
		return false, "You've already used this voucher today", nil
	}
	return true, "", nil
}

// RedeemResult is the structured outcome of a redemption attempt. Expected
// rejections (already used, already redeemed today) come back with
// Success=false and a message, not an error.
type RedeemResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	UserVoucherID int64      `json:"user_voucher_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Redeem redeems a voucher for a user. The state transition runs inside a
// single datastore transaction, so two concurrent attempts for the same day
// produce exactly one success.
func (s *VoucherService) Redeem(ctx context.Context, userID int64, code string, method models.RedemptionMethod) (RedeemResult, error) {
	ctx, span := util.StartSpan(ctx, "VoucherService.Redeem")
	defer span.End()

	start := s.now()
	defer func() {
		util.RedemptionLatency.Observe(time.Since(start).Seconds())
	}()

	voucher, err := s.GetVoucher(ctx, code)
	if errors.Is(err, models.ErrVoucherNotFound) {
		util.RedemptionsRejectedTotal.WithLabelValues("not_found").Inc()
		return RedeemResult{Success: false, Message: "Voucher code not recognised"}, nil
	}
	if err != nil {
		return RedeemResult{}, err
	}
	if !voucher.IsActive {
		util.RedemptionsRejectedTotal.WithLabelValues("inactive").Inc()
		return RedeemResult{Success: false, Message: "This voucher is no longer active"}, nil
	}

	if _, err := s.store.ClaimVoucher(ctx, userID, voucher); err != nil {
		return RedeemResult{}, fmt.Errorf("failed to ensure claim: %w", err)
	}

	today := s.now()
	var expiresAt *time.Time
	if voucher.IsDailyRedeemable {
		exp := today.Add(s.dailyTTL)
		expiresAt = &exp
	}

	uv, err := s.store.RedeemVoucherTx(ctx, userID, voucher, method, today, expiresAt)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAlreadyRedeemedToday):
			util.RedemptionsRejectedTotal.WithLabelValues("already_redeemed_today").Inc()
			return RedeemResult{Success: false, Message: "You've already used this voucher today"}, nil
		case errors.Is(err, models.ErrAlreadyUsed):
			util.RedemptionsRejectedTotal.WithLabelValues("already_used").Inc()
			return RedeemResult{Success: false, Message: "You've already used this voucher"}, nil
		case errors.Is(err, models.ErrVoucherInactive):
			util.RedemptionsRejectedTotal.WithLabelValues("expired").Inc()
			return RedeemResult{Success: false, Message: "This voucher has expired"}, nil
		default:
			util.RedemptionsRejectedTotal.WithLabelValues("datastore_error").Inc()
			return RedeemResult{}, fmt.Errorf("redemption failed: %w", err)
		}
	}

	util.RedemptionsTotal.Inc()
	s.logger.Info("Voucher redeemed",
		zap.Int64("user_id", userID),
		zap.Int64("voucher_id", voucher.ID),
		zap.String("code", voucher.Code),
		zap.Int("redemption_count", uv.RedemptionCount))

	if s.publisher != nil {
		event := &models.VoucherRedeemedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeVoucherRedeemed,
				Timestamp: s.now(),
			},
			UserID:        userID,
			VoucherID:     voucher.ID,
			VoucherCode:   voucher.Code,
			Method:        method,
			UserVoucherID: uv.ID,
			ExpiresAt:     expiresAt,
		}
		if err := s.publisher.PublishVoucherRedeemed(ctx, event); err != nil {
			s.logger.Error("Failed to publish VoucherRedeemed event", zap.Error(err))
		}
	}

	return RedeemResult{
		Success:       true,
		Message:       "Voucher redeemed",
		UserVoucherID: uv.ID,
		ExpiresAt:     expiresAt,
	}, nil
}

// RedemptionHistory returns a user's redemption log, newest first.
func (s *VoucherService) RedemptionHistory(ctx context.Context, userID int64) ([]models.VoucherRedemption, error) {
	return s.store.GetRedemptionsByUser(ctx, userID)
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Format("2006-01-02") == b.UTC().Format("2006-01-02")
}
