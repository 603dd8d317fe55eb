package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeWalletTopupCompleted = "WALLET_TOPUP_COMPLETED"
	EventTypeVoucherRedeemed      = "VOUCHER_REDEEMED"
	EventTypeBonusAwarded         = "BONUS_AWARDED"
	EventTypeStarsAwarded         = "STARS_AWARDED"
	EventTypeBalanceDrift         = "BALANCE_DRIFT_DETECTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// WalletTopupCompletedEvent is emitted by the payment callback path when a
// top-up settles. Gateways retry callbacks, so consumers must dedup on
// WalletTransactionID.
type WalletTopupCompletedEvent struct {
	BaseEvent
	UserID              int64           `json:"user_id"`
	WalletTransactionID string          `json:"wallet_transaction_id"`
	Amount              decimal.Decimal `json:"amount"`
}

// VoucherRedeemedEvent published after a successful redemption
type VoucherRedeemedEvent struct {
	BaseEvent
	UserID        int64            `json:"user_id"`
	VoucherID     int64            `json:"voucher_id"`
	VoucherCode   string           `json:"voucher_code"`
	Method        RedemptionMethod `json:"method"`
	UserVoucherID int64            `json:"user_voucher_id"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
}

// BonusAwardedEvent published after a bonus ledger row is created
type BonusAwardedEvent struct {
	BaseEvent
	UserID         int64           `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Source         string          `json:"source"`
	CorrelationKey string          `json:"correlation_key"`
	NewBalance     decimal.Decimal `json:"new_balance"`
}

// StarsAwardedEvent published after a stars ledger row is created
type StarsAwardedEvent struct {
	BaseEvent
	UserID         int64           `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Source         string          `json:"source"`
	CorrelationKey string          `json:"correlation_key"`
	NewBalance     decimal.Decimal `json:"new_balance"`
}

// BalanceDriftEvent published when the reconciliation audit finds a
// denormalized balance that disagrees with its ledger sum
type BalanceDriftEvent struct {
	BaseEvent
	UserID        int64           `json:"user_id"`
	Ledger        LedgerKind      `json:"ledger"`
	BalanceColumn decimal.Decimal `json:"balance_column"`
	LedgerSum     decimal.Decimal `json:"ledger_sum"`
}
