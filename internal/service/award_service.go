package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wonderstars/internal/models"
	"wonderstars/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerStore is the datastore surface the award service depends on.
type LedgerStore interface {
	InsertAwardTx(ctx context.Context, kind models.LedgerKind, awardTx *models.AwardTransaction) (decimal.Decimal, bool, error)
	InsertSpendTx(ctx context.Context, kind models.LedgerKind, spendTx *models.AwardTransaction) (decimal.Decimal, error)
	GetLedgerSum(ctx context.Context, kind models.LedgerKind, userID int64) (decimal.Decimal, error)
	GetUserBalances(ctx context.Context, userID int64) (*models.UserBalances, error)
	GetUserIDs(ctx context.Context) ([]int64, error)
	GetTransactionsByUser(ctx context.Context, kind models.LedgerKind, userID int64) ([]models.AwardTransaction, error)
}

// AwardService owns the append-only bonus/stars/wallet ledgers and the
// denormalized balance columns they feed. Every balance mutation goes
// through here; nothing else writes those columns.
type AwardService struct {
	ledger       LedgerStore
	publisher    Publisher
	logger       *zap.Logger
	bonusPercent decimal.Decimal
}

// NewAwardService creates a new award service. publisher may be nil.
func NewAwardService(ledger LedgerStore, publisher Publisher, topupBonusPercent int) *AwardService {
	return &AwardService{
		ledger:       ledger,
		publisher:    publisher,
		logger:       util.GetLogger(),
		bonusPercent: decimal.NewFromInt(int64(topupBonusPercent)),
	}
}

// AwardResult is the structured outcome of an award or spend.
type AwardResult struct {
	Success        bool            `json:"success"`
	AlreadyAwarded bool            `json:"already_awarded,omitempty"`
	NewBalance     decimal.Decimal `json:"new_balance"`
	Message        string          `json:"message,omitempty"`
}

// Award credits a user's ledger idempotently. A second call with the same
// (userID, source, correlationKey) is absorbed by the unique constraint and
// reported as AlreadyAwarded with the unchanged balance — retried payment
// callbacks land here.
func (s *AwardService) Award(ctx context.Context, kind models.LedgerKind, userID int64, amount decimal.Decimal, source, correlationKey string, metadata models.Metadata) (AwardResult, error) {
	ctx, span := util.StartSpan(ctx, "AwardService.Award")
	defer span.End()

	if !amount.IsPositive() {
		return AwardResult{}, fmt.Errorf("award amount must be positive, got %s", amount)
	}
	if correlationKey == "" {
		return AwardResult{}, fmt.Errorf("correlation key is required")
	}

	awardTx := &models.AwardTransaction{
		UserID:          userID,
		Amount:          amount,
		TransactionType: models.TxTypeCredit,
		Source:          source,
		CorrelationKey:  correlationKey,
		Metadata:        metadata,
	}

	newBalance, alreadyAwarded, err := s.ledger.InsertAwardTx(ctx, kind, awardTx)
	if err != nil {
		return AwardResult{}, err
	}

	if alreadyAwarded {
		util.DuplicateAwardsSuppressed.WithLabelValues(string(kind)).Inc()
		s.logger.Info("Duplicate award suppressed",
			zap.Int64("user_id", userID),
			zap.String("ledger", string(kind)),
			zap.String("source", source),
			zap.String("correlation_key", correlationKey))
		return AwardResult{
			Success:        true,
			AlreadyAwarded: true,
			NewBalance:     newBalance,
			Message:        "already awarded",
		}, nil
	}

	util.AwardsTotal.WithLabelValues(string(kind), source).Inc()
	s.logger.Info("Award recorded",
		zap.Int64("user_id", userID),
		zap.String("ledger", string(kind)),
		zap.String("amount", amount.String()),
		zap.String("source", source),
		zap.String("correlation_key", correlationKey))

	s.publishAward(ctx, kind, userID, amount, source, correlationKey, newBalance)

	return AwardResult{Success: true, NewBalance: newBalance}, nil
}

// Spend debits a user's ledger. The balance check runs inside the same
// transaction as the ledger insert, so the balance can never go negative.
func (s *AwardService) Spend(ctx context.Context, kind models.LedgerKind, userID int64, amount decimal.Decimal, source, correlationKey string, metadata models.Metadata) (AwardResult, error) {
	ctx, span := util.StartSpan(ctx, "AwardService.Spend")
	defer span.End()

	if !amount.IsPositive() {
		return AwardResult{}, fmt.Errorf("spend amount must be positive, got %s", amount)
	}
	if correlationKey == "" {
		return AwardResult{}, fmt.Errorf("correlation key is required")
	}

	spendTx := &models.AwardTransaction{
		UserID:          userID,
		Amount:          amount.Neg(),
		TransactionType: models.TxTypeDebit,
		Source:          source,
		CorrelationKey:  correlationKey,
		Metadata:        metadata,
	}

	newBalance, err := s.ledger.InsertSpendTx(ctx, kind, spendTx)
	if errors.Is(err, models.ErrInsufficientBalance) {
		util.SpendsRejectedTotal.Inc()
		return AwardResult{Success: false, Message: "Insufficient balance"}, nil
	}
	if errors.Is(err, models.ErrDuplicateOperation) {
		return AwardResult{Success: true, AlreadyAwarded: true, Message: "already spent"}, nil
	}
	if err != nil {
		return AwardResult{}, err
	}

	s.logger.Info("Spend recorded",
		zap.Int64("user_id", userID),
		zap.String("ledger", string(kind)),
		zap.String("amount", amount.String()),
		zap.String("correlation_key", correlationKey))

	return AwardResult{Success: true, NewBalance: newBalance}, nil
}

// AdminAdjust applies an audited administrative adjustment. Delta may be
// negative; the reason and operator are mandatory and recorded in the ledger
// metadata. This replaces direct column writes from repair scripts.
func (s *AwardService) AdminAdjust(ctx context.Context, kind models.LedgerKind, userID int64, delta decimal.Decimal, reason, operator string) (AwardResult, error) {
	ctx, span := util.StartSpan(ctx, "AwardService.AdminAdjust")
	defer span.End()

	if delta.IsZero() {
		return AwardResult{}, fmt.Errorf("adjustment delta must be non-zero")
	}
	if reason == "" || operator == "" {
		return AwardResult{}, fmt.Errorf("adjustment requires a reason and an operator")
	}

	metadata := models.Metadata{"reason": reason, "operator": operator}
	correlationKey := fmt.Sprintf("adj-%s", uuid.New().String())

	adjTx := &models.AwardTransaction{
		UserID:          userID,
		Amount:          delta,
		TransactionType: models.TxTypeAdjustment,
		Source:          models.SourceAdminAdjustment,
		CorrelationKey:  correlationKey,
		Metadata:        metadata,
	}

	var newBalance decimal.Decimal
	var err error
	if delta.IsNegative() {
		newBalance, err = s.ledger.InsertSpendTx(ctx, kind, adjTx)
		if errors.Is(err, models.ErrInsufficientBalance) {
			return AwardResult{Success: false, Message: "Adjustment would drive balance negative"}, nil
		}
	} else {
		newBalance, _, err = s.ledger.InsertAwardTx(ctx, kind, adjTx)
	}
	if err != nil {
		return AwardResult{}, err
	}

	s.logger.Warn("Administrative adjustment applied",
		zap.Int64("user_id", userID),
		zap.String("ledger", string(kind)),
		zap.String("delta", delta.String()),
		zap.String("operator", operator),
		zap.String("reason", reason))

	return AwardResult{Success: true, NewBalance: newBalance}, nil
}

// AwardTopupBonus awards the percentage bonus for a completed wallet top-up.
// Deduplicated on the wallet transaction ID, so redelivered payment
// callbacks award at most once.
func (s *AwardService) AwardTopupBonus(ctx context.Context, userID int64, topupAmount decimal.Decimal, walletTransactionID string) (AwardResult, error) {
	bonus := topupAmount.Mul(s.bonusPercent).Div(decimal.NewFromInt(100)).Round(2)
	if !bonus.IsPositive() {
		return AwardResult{Success: true, Message: "no bonus due"}, nil
	}

	metadata := models.Metadata{"wallet_transaction_id": walletTransactionID}
	return s.Award(ctx, models.LedgerBonus, userID, bonus, models.SourceTopupBonus, walletTransactionID, metadata)
}

// RecordWalletTopup credits the wallet ledger for a settled gateway top-up
// and emits WALLET_TOPUP_COMPLETED so the bonus worker picks it up. The
// gateway reference doubles as the correlation key, so a retried callback
// neither double-credits nor re-emits.
func (s *AwardService) RecordWalletTopup(ctx context.Context, userID int64, amount decimal.Decimal, gatewayRef string) (AwardResult, error) {
	ctx, span := util.StartSpan(ctx, "AwardService.RecordWalletTopup")
	defer span.End()

	metadata := models.Metadata{"gateway_ref": gatewayRef}
	result, err := s.Award(ctx, models.LedgerWallet, userID, amount, models.SourceWalletTopup, gatewayRef, metadata)
	if err != nil || result.AlreadyAwarded {
		return result, err
	}

	if s.publisher != nil {
		event := &models.WalletTopupCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeWalletTopupCompleted,
				Timestamp: time.Now(),
			},
			UserID:              userID,
			WalletTransactionID: gatewayRef,
			Amount:              amount,
		}
		if err := s.publisher.PublishWalletTopupCompleted(ctx, event); err != nil {
			s.logger.Error("Failed to publish WalletTopupCompleted event", zap.Error(err))
		}
	}
	return result, nil
}

// GetBalances returns the denormalized balances snapshot for a user.
func (s *AwardService) GetBalances(ctx context.Context, userID int64) (*models.UserBalances, error) {
	return s.ledger.GetUserBalances(ctx, userID)
}

// GetHistory returns a user's ledger rows, newest first.
func (s *AwardService) GetHistory(ctx context.Context, kind models.LedgerKind, userID int64) ([]models.AwardTransaction, error) {
	return s.ledger.GetTransactionsByUser(ctx, kind, userID)
}

// ReconcileUser compares one user's denormalized balance against the ledger
// sum for a single ledger. Drift is logged, counted and published but not
// repaired automatically.
func (s *AwardService) ReconcileUser(ctx context.Context, kind models.LedgerKind, userID int64) (drifted bool, err error) {
	balances, err := s.ledger.GetUserBalances(ctx, userID)
	if err != nil {
		return false, err
	}
	ledgerSum, err := s.ledger.GetLedgerSum(ctx, kind, userID)
	if err != nil {
		return false, err
	}

	var column decimal.Decimal
	switch kind {
	case models.LedgerBonus:
		column = balances.BonusBalance
	case models.LedgerStars:
		column = balances.Stars
	case models.LedgerWallet:
		column = balances.WalletBalance
	default:
		return false, fmt.Errorf("unknown ledger kind: %q", kind)
	}

	if column.Equal(ledgerSum) {
		return false, nil
	}

	util.BalanceDriftDetected.WithLabelValues(string(kind)).Inc()
	s.logger.Error("Balance drift detected",
		zap.Int64("user_id", userID),
		zap.String("ledger", string(kind)),
		zap.String("balance_column", column.String()),
		zap.String("ledger_sum", ledgerSum.String()))

	if s.publisher != nil {
		event := &models.BalanceDriftEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeBalanceDrift,
				Timestamp: time.Now(),
			},
			UserID:        userID,
			Ledger:        kind,
			BalanceColumn: column,
			LedgerSum:     ledgerSum,
		}
		if err := s.publisher.PublishBalanceDrift(ctx, event); err != nil {
			s.logger.Error("Failed to publish BalanceDrift event", zap.Error(err))
		}
	}
	return true, nil
}

// ReconcileAll audits every user across all three ledgers and returns the
// number of drifted (user, ledger) pairs.
func (s *AwardService) ReconcileAll(ctx context.Context) (int, error) {
	userIDs, err := s.ledger.GetUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	drifts := 0
	for _, userID := range userIDs {
		for _, kind := range []models.LedgerKind{models.LedgerBonus, models.LedgerStars, models.LedgerWallet} {
			drifted, err := s.ReconcileUser(ctx, kind, userID)
			if err != nil {
				s.logger.Error("Reconciliation failed",
					zap.Int64("user_id", userID),
					zap.String("ledger", string(kind)),
					zap.Error(err))
				continue
			}
			if drifted {
				drifts++
			}
		}
	}
	return drifts, nil
}

func (s *AwardService) publishAward(ctx context.Context, kind models.LedgerKind, userID int64, amount decimal.Decimal, source, correlationKey string, newBalance decimal.Decimal) {
	if s.publisher == nil {
		return
	}

	switch kind {
	case models.LedgerBonus:
		event := &models.BonusAwardedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeBonusAwarded,
				Timestamp: time.Now(),
			},
			UserID:         userID,
			Amount:         amount,
			Source:         source,
			CorrelationKey: correlationKey,
			NewBalance:     newBalance,
		}
		if err := s.publisher.PublishBonusAwarded(ctx, event); err != nil {
			s.logger.Error("Failed to publish BonusAwarded event", zap.Error(err))
		}
	case models.LedgerStars:
		event := &models.StarsAwardedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStarsAwarded,
				Timestamp: time.Now(),
			},
			UserID:         userID,
			Amount:         amount,
			Source:         source,
			CorrelationKey: correlationKey,
			NewBalance:     newBalance,
		}
		if err := s.publisher.PublishStarsAwarded(ctx, event); err != nil {
			s.logger.Error("Failed to publish StarsAwarded event", zap.Error(err))
		}
	}
}
