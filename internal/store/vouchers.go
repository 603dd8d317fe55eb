package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wonderstars/internal/models"
)

// GetVoucherByCode retrieves a voucher by its user-facing code (case-sensitive)
func (s *Store) GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := s.db.GetContext(ctx, &voucher, "SELECT * FROM vouchers WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, models.ErrVoucherNotFound
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// GetVoucherByID retrieves a voucher by ID
func (s *Store) GetVoucherByID(ctx context.Context, id int64) (*models.Voucher, error) {
	var voucher models.Voucher
	err := s.db.GetContext(ctx, &voucher, "SELECT * FROM vouchers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrVoucherNotFound
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// GetActiveSpecialDiscountVoucher returns the active special-discount voucher,
// or nil if none is configured. The single-active policy is enforced in the
// service on activation, not by a database constraint.
func (s *Store) GetActiveSpecialDiscountVoucher(ctx context.Context) (*models.Voucher, error) {
	var voucher models.Voucher
	err := s.db.GetContext(ctx, &voucher,
		"SELECT * FROM vouchers WHERE restriction_type = $1 AND is_active = TRUE ORDER BY updated_at DESC LIMIT 1",
		models.RestrictSpecialDiscount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// CreateVoucher inserts a validated voucher configuration
func (s *Store) CreateVoucher(ctx context.Context, v *models.Voucher) error {
	query := `
		INSERT INTO vouchers (
			code, voucher_type, value, application_scope, product_application_method,
			restriction_type, eligible_product_ids, eligible_category_ids,
			eligible_subcategory_ids, min_purchase, max_products_per_use,
			is_daily_redeemable, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		v.Code, v.VoucherType, v.Value, v.ApplicationScope, v.ProductApplicationMethod,
		v.RestrictionType, v.EligibleProductIDs, v.EligibleCategoryIDs,
		v.EligibleSubcategoryIDs, v.MinPurchase, v.MaxProductsPerUse,
		v.IsDailyRedeemable, v.IsActive,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil && IsUniqueViolation(err) {
		return fmt.Errorf("%w: voucher code %s", models.ErrDuplicateOperation, v.Code)
	}
	return err
}

// ClaimVoucher creates the user's claim if it does not exist yet and returns
// the claim row. A repeated claim is a no-op returning the existing row.
func (s *Store) ClaimVoucher(ctx context.Context, userID int64, voucher *models.Voucher) (*models.UserVoucher, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_vouchers (user_id, voucher_id, status, is_daily_voucher)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, voucher_id) DO NOTHING`,
		userID, voucher.ID, models.UserVoucherAvailable, voucher.IsDailyRedeemable)
	if err != nil {
		return nil, err
	}
	return s.GetUserVoucher(ctx, userID, voucher.ID)
}

// GetUserVoucher retrieves the user's claim on a voucher
func (s *Store) GetUserVoucher(ctx context.Context, userID, voucherID int64) (*models.UserVoucher, error) {
	var uv models.UserVoucher
	err := s.db.GetContext(ctx, &uv,
		"SELECT * FROM user_vouchers WHERE user_id = $1 AND voucher_id = $2", userID, voucherID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNoClaim
	}
	if err != nil {
		return nil, err
	}
	return &uv, nil
}

// RedeemVoucherTx performs the redemption state transition atomically. The
// claim row is locked FOR UPDATE, the transition runs as a compare-and-swap
// on (status, last_redeemed_date), and the append-only redemption log's
// unique constraint on (user_id, voucher_id, redeemed_on) is the hard
// backstop. Two concurrent same-day attempts yield exactly one success.
func (s *Store) RedeemVoucherTx(
	ctx context.Context,
	userID int64,
	voucher *models.Voucher,
	method models.RedemptionMethod,
	today time.Time,
	expiresAt *time.Time,
) (*models.UserVoucher, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var uv models.UserVoucher
	err = tx.GetContext(ctx, &uv,
		"SELECT * FROM user_vouchers WHERE user_id = $1 AND voucher_id = $2 FOR UPDATE",
		userID, voucher.ID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNoClaim
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user voucher: %w", err)
	}

	if uv.Status == models.UserVoucherExpired {
		return nil, models.ErrVoucherInactive
	}

	day := today.UTC().Format("2006-01-02")

	var res sql.Result
	if voucher.IsDailyRedeemable {
		res, err = tx.ExecContext(ctx, `
			UPDATE user_vouchers
			SET redemption_count = redemption_count + 1,
			    last_redeemed_date = $1,
			    expires_at = $2,
			    updated_at = NOW()
			WHERE id = $3
			  AND status = $4
			  AND (last_redeemed_date IS NULL OR last_redeemed_date < $1)`,
			day, expiresAt, uv.ID, models.UserVoucherAvailable)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE user_vouchers
			SET status = $1,
			    redemption_count = redemption_count + 1,
			    last_redeemed_date = $2,
			    updated_at = NOW()
			WHERE id = $3
			  AND status = $4`,
			models.UserVoucherUsed, day, uv.ID, models.UserVoucherAvailable)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user voucher: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if uv.Status == models.UserVoucherUsed {
			return nil, models.ErrAlreadyUsed
		}
		return nil, models.ErrAlreadyRedeemedToday
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO voucher_redemptions (user_id, voucher_id, method, redeemed_on)
		VALUES ($1, $2, $3, $4)`,
		userID, voucher.ID, method, day)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, models.ErrAlreadyRedeemedToday
		}
		return nil, fmt.Errorf("failed to log redemption: %w", err)
	}

	err = tx.GetContext(ctx, &uv, "SELECT * FROM user_vouchers WHERE id = $1", uv.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &uv, nil
}

// GetRedemptionsByUser retrieves a user's redemption history, newest first
func (s *Store) GetRedemptionsByUser(ctx context.Context, userID int64) ([]models.VoucherRedemption, error) {
	var redemptions []models.VoucherRedemption
	err := s.db.SelectContext(ctx, &redemptions,
		"SELECT * FROM voucher_redemptions WHERE user_id = $1 ORDER BY redeemed_at DESC", userID)
	return redemptions, err
}
