package store

import (
	"context"
	"database/sql"
	"fmt"

	"wonderstars/internal/models"

	"github.com/shopspring/decimal"
)

// Ledger amounts are signed: credits positive, debits negative. The
// denormalized balance column always equals the ledger sum, because both
// are written in the same transaction and never independently.

// InsertAwardTx inserts a ledger row and updates the denormalized balance in
// a single transaction. When the (user_id, source, correlation_key) unique
// constraint rejects the insert, the award already happened: the current
// balance is returned with alreadyAwarded=true and nothing is written.
func (s *Store) InsertAwardTx(ctx context.Context, kind models.LedgerKind, awardTx *models.AwardTransaction) (newBalance decimal.Decimal, alreadyAwarded bool, err error) {
	table := kind.Table()
	column := kind.BalanceColumn()
	if table == "" || column == "" {
		return decimal.Zero, false, fmt.Errorf("unknown ledger kind: %q", kind)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(`
		INSERT INTO %s (user_id, amount, transaction_type, source, correlation_key, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`, table)

	err = tx.QueryRowxContext(ctx, insert,
		awardTx.UserID, awardTx.Amount, awardTx.TransactionType,
		awardTx.Source, awardTx.CorrelationKey, awardTx.Metadata,
	).Scan(&awardTx.ID, &awardTx.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			balances, berr := s.GetUserBalances(ctx, awardTx.UserID)
			if berr != nil {
				return decimal.Zero, true, berr
			}
			return balanceFor(balances, kind), true, nil
		}
		return decimal.Zero, false, fmt.Errorf("failed to insert %s row: %w", table, err)
	}

	update := fmt.Sprintf(`
		UPDATE users SET %s = %s + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING %s`, column, column, column)

	err = tx.GetContext(ctx, &newBalance, update, awardTx.Amount, awardTx.UserID)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, models.ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to update %s: %w", column, err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, false, err
	}
	return newBalance, false, nil
}

// InsertSpendTx records a debit and decrements the balance, refusing to go
// negative. The balance check sits in the UPDATE predicate so concurrent
// spends cannot both pass it.
func (s *Store) InsertSpendTx(ctx context.Context, kind models.LedgerKind, spendTx *models.AwardTransaction) (newBalance decimal.Decimal, err error) {
	table := kind.Table()
	column := kind.BalanceColumn()
	if table == "" || column == "" {
		return decimal.Zero, fmt.Errorf("unknown ledger kind: %q", kind)
	}
	if !spendTx.Amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("spend amount must be negative, got %s", spendTx.Amount)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	update := fmt.Sprintf(`
		UPDATE users SET %s = %s + $1, updated_at = NOW()
		WHERE id = $2 AND %s + $1 >= 0
		RETURNING %s`, column, column, column, column)

	err = tx.GetContext(ctx, &newBalance, update, spendTx.Amount, spendTx.UserID)
	if err == sql.ErrNoRows {
		if _, berr := s.GetUserBalances(ctx, spendTx.UserID); berr != nil {
			return decimal.Zero, berr
		}
		return decimal.Zero, models.ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to update %s: %w", column, err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (user_id, amount, transaction_type, source, correlation_key, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`, table)

	err = tx.QueryRowxContext(ctx, insert,
		spendTx.UserID, spendTx.Amount, spendTx.TransactionType,
		spendTx.Source, spendTx.CorrelationKey, spendTx.Metadata,
	).Scan(&spendTx.ID, &spendTx.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return decimal.Zero, models.ErrDuplicateOperation
		}
		return decimal.Zero, fmt.Errorf("failed to insert %s row: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// GetLedgerSum computes the sum over a user's ledger rows
func (s *Store) GetLedgerSum(ctx context.Context, kind models.LedgerKind, userID int64) (decimal.Decimal, error) {
	table := kind.Table()
	if table == "" {
		return decimal.Zero, fmt.Errorf("unknown ledger kind: %q", kind)
	}

	var sum decimal.Decimal
	query := fmt.Sprintf("SELECT COALESCE(SUM(amount), 0) FROM %s WHERE user_id = $1", table)
	err := s.db.GetContext(ctx, &sum, query, userID)
	return sum, err
}

// GetTransactionsByUser retrieves a user's ledger rows, newest first
func (s *Store) GetTransactionsByUser(ctx context.Context, kind models.LedgerKind, userID int64) ([]models.AwardTransaction, error) {
	table := kind.Table()
	if table == "" {
		return nil, fmt.Errorf("unknown ledger kind: %q", kind)
	}

	var txs []models.AwardTransaction
	query := fmt.Sprintf("SELECT * FROM %s WHERE user_id = $1 ORDER BY created_at DESC", table)
	err := s.db.SelectContext(ctx, &txs, query, userID)
	return txs, err
}

func balanceFor(b *models.UserBalances, kind models.LedgerKind) decimal.Decimal {
	switch kind {
	case models.LedgerBonus:
		return b.BonusBalance
	case models.LedgerStars:
		return b.Stars
	case models.LedgerWallet:
		return b.WalletBalance
	}
	return decimal.Zero
}
