package models

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// VoucherType determines how Voucher.Value is interpreted.
type VoucherType string

const (
	VoucherTypePercent VoucherType = "percent"
	VoucherTypeAmount  VoucherType = "amount"
)

// ApplicationScope determines what the discount applies to.
type ApplicationScope string

const (
	ScopeOrderTotal   ApplicationScope = "order_total"
	ScopeProductLevel ApplicationScope = "product_level"
)

// ProductApplicationMethod only matters when the scope is product_level.
type ProductApplicationMethod string

const (
	ApplyPerProduct ProductApplicationMethod = "per_product"
	ApplyTotalOnce  ProductApplicationMethod = "total_once"
)

// RestrictionType selects which axis of the cart a voucher is matched on.
type RestrictionType string

const (
	RestrictNone            RestrictionType = "none"
	RestrictByProduct       RestrictionType = "by_product"
	RestrictByCategory      RestrictionType = "by_category"
	RestrictBySubcategory   RestrictionType = "by_subcategory"
	RestrictSpecialDiscount RestrictionType = "special_discount"
)

// RedemptionMethod is an open enum; manual_code is the only method in use today.
type RedemptionMethod string

const (
	RedeemManualCode RedemptionMethod = "manual_code"
	RedeemQRScan     RedemptionMethod = "qr_scan"
)

// UserVoucher statuses
const (
	UserVoucherAvailable = "available"
	UserVoucherUsed      = "used"
	UserVoucherExpired   = "expired"
)

// Voucher is a discount rule users can claim and redeem.
type Voucher struct {
	ID                       int64                    `db:"id" json:"id"`
	Code                     string                   `db:"code" json:"code"`
	VoucherType              VoucherType              `db:"voucher_type" json:"voucher_type"`
	Value                    decimal.Decimal          `db:"value" json:"value"`
	ApplicationScope         ApplicationScope         `db:"application_scope" json:"application_scope"`
	ProductApplicationMethod ProductApplicationMethod `db:"product_application_method" json:"product_application_method"`
	RestrictionType          RestrictionType          `db:"restriction_type" json:"restriction_type"`
	EligibleProductIDs       IDSet                    `db:"eligible_product_ids" json:"eligible_product_ids"`
	EligibleCategoryIDs      IDSet                    `db:"eligible_category_ids" json:"eligible_category_ids"`
	EligibleSubcategoryIDs   IDSet                    `db:"eligible_subcategory_ids" json:"eligible_subcategory_ids"`
	MinPurchase              decimal.Decimal          `db:"min_purchase" json:"min_purchase"`
	MaxProductsPerUse        int                      `db:"max_products_per_use" json:"max_products_per_use"`
	IsDailyRedeemable        bool                     `db:"is_daily_redeemable" json:"is_daily_redeemable"`
	IsActive                 bool                     `db:"is_active" json:"is_active"`
	CreatedAt                time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time                `db:"updated_at" json:"updated_at"`
}

// Validate checks the voucher configuration at construction time. A voucher
// that fails validation must never produce a discount (fail closed).
func (v *Voucher) Validate() error {
	if v.Code == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidVoucherConfig)
	}
	if !v.Value.IsPositive() {
		return fmt.Errorf("%w: value must be positive, got %s", ErrInvalidVoucherConfig, v.Value)
	}
	switch v.VoucherType {
	case VoucherTypePercent:
		if v.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percent value %s exceeds 100", ErrInvalidVoucherConfig, v.Value)
		}
	case VoucherTypeAmount:
	default:
		return fmt.Errorf("%w: unknown voucher_type %q", ErrInvalidVoucherConfig, v.VoucherType)
	}
	switch v.ApplicationScope {
	case ScopeOrderTotal:
	case ScopeProductLevel:
		switch v.ProductApplicationMethod {
		case ApplyPerProduct:
			if v.MaxProductsPerUse <= 0 {
				return fmt.Errorf("%w: per_product voucher requires positive max_products_per_use", ErrInvalidVoucherConfig)
			}
		case ApplyTotalOnce:
		default:
			return fmt.Errorf("%w: unknown product_application_method %q", ErrInvalidVoucherConfig, v.ProductApplicationMethod)
		}
	default:
		return fmt.Errorf("%w: unknown application_scope %q", ErrInvalidVoucherConfig, v.ApplicationScope)
	}
	switch v.RestrictionType {
	case RestrictNone, RestrictSpecialDiscount:
	case RestrictByProduct:
		if len(v.EligibleProductIDs) == 0 {
			return fmt.Errorf("%w: by_product voucher has no eligible_product_ids", ErrInvalidVoucherConfig)
		}
	case RestrictByCategory:
		if len(v.EligibleCategoryIDs) == 0 {
			return fmt.Errorf("%w: by_category voucher has no eligible_category_ids", ErrInvalidVoucherConfig)
		}
	case RestrictBySubcategory:
		if len(v.EligibleSubcategoryIDs) == 0 {
			return fmt.Errorf("%w: by_subcategory voucher has no eligible_subcategory_ids", ErrInvalidVoucherConfig)
		}
	default:
		return fmt.Errorf("%w: unknown restriction_type %q", ErrInvalidVoucherConfig, v.RestrictionType)
	}
	if v.MinPurchase.IsNegative() {
		return fmt.Errorf("%w: negative min_purchase", ErrInvalidVoucherConfig)
	}
	return nil
}

// UserVoucher is a user's claim on a voucher.
type UserVoucher struct {
	ID               int64        `db:"id" json:"id"`
	UserID           int64        `db:"user_id" json:"user_id"`
	VoucherID        int64        `db:"voucher_id" json:"voucher_id"`
	Status           string       `db:"status" json:"status"`
	IsDailyVoucher   bool         `db:"is_daily_voucher" json:"is_daily_voucher"`
	RedemptionCount  int          `db:"redemption_count" json:"redemption_count"`
	LastRedeemedDate sql.NullTime `db:"last_redeemed_date" json:"last_redeemed_date,omitempty"`
	ExpiresAt        sql.NullTime `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// VoucherRedemption is one row of the append-only redemption log. The unique
// constraint on (user_id, voucher_id, redeemed_on) is the hard backstop
// against two same-day redemptions racing each other.
type VoucherRedemption struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	VoucherID  int64     `db:"voucher_id" json:"voucher_id"`
	Method     string    `db:"method" json:"method"`
	RedeemedOn time.Time `db:"redeemed_on" json:"redeemed_on"`
	RedeemedAt time.Time `db:"redeemed_at" json:"redeemed_at"`
}

// Product carries the attributes eligibility matching needs.
type Product struct {
	ID              int64           `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	CategoryID      int64           `db:"category_id" json:"category_id"`
	SubcategoryID   int64           `db:"subcategory_id" json:"subcategory_id"`
	Price           decimal.Decimal `db:"price" json:"price"`
	SpecialDiscount bool            `db:"special_discount" json:"special_discount"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// CartLineItem is consumed from the cart/checkout caller.
type CartLineItem struct {
	ProductID     int64           `json:"product_id"`
	CategoryID    int64           `json:"category_id"`
	SubcategoryID int64           `json:"subcategory_id"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
}

// LineTotal is unit price times quantity.
func (li CartLineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Subtotal sums line totals over the cart.
func Subtotal(cart []CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range cart {
		total = total.Add(li.LineTotal())
	}
	return total
}

// LedgerKind selects which award ledger a transaction belongs to.
type LedgerKind string

const (
	LedgerBonus  LedgerKind = "bonus"
	LedgerStars  LedgerKind = "stars"
	LedgerWallet LedgerKind = "wallet"
)

// Table returns the transactions table backing the ledger.
func (k LedgerKind) Table() string {
	switch k {
	case LedgerBonus:
		return "bonus_transactions"
	case LedgerStars:
		return "stars_transactions"
	case LedgerWallet:
		return "wallet_transactions"
	}
	return ""
}

// BalanceColumn returns the denormalized users column the ledger feeds.
func (k LedgerKind) BalanceColumn() string {
	switch k {
	case LedgerBonus:
		return "bonus_balance"
	case LedgerStars:
		return "stars"
	case LedgerWallet:
		return "wallet_balance"
	}
	return ""
}

// Transaction types
const (
	TxTypeCredit     = "credit"
	TxTypeDebit      = "debit"
	TxTypeAdjustment = "adjustment"
)

// Award sources
const (
	SourceTopupBonus      = "topup_bonus"
	SourcePurchaseStars   = "purchase_stars"
	SourceRedemptionStars = "redemption_stars"
	SourceWalletTopup     = "wallet_topup"
	SourceVoucherCashback = "voucher_cashback"
	SourceAdminAdjustment = "admin_adjustment"
)

// AwardTransaction is one append-only row in a bonus/stars/wallet ledger.
// (user_id, source, correlation_key) is unique per ledger: the same business
// event can never be awarded twice.
type AwardTransaction struct {
	ID              int64           `db:"id" json:"id"`
	UserID          int64           `db:"user_id" json:"user_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	TransactionType string          `db:"transaction_type" json:"transaction_type"`
	Source          string          `db:"source" json:"source"`
	CorrelationKey  string          `db:"correlation_key" json:"correlation_key"`
	Metadata        Metadata        `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// UserBalances is a read-only snapshot of the denormalized balance columns.
type UserBalances struct {
	UserID        int64           `db:"id" json:"user_id"`
	WalletBalance decimal.Decimal `db:"wallet_balance" json:"wallet_balance"`
	BonusBalance  decimal.Decimal `db:"bonus_balance" json:"bonus_balance"`
	Stars         decimal.Decimal `db:"stars" json:"stars"`
}
