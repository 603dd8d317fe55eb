package worker

import (
	"context"
	"time"

	"wonderstars/internal/broker"
	"wonderstars/internal/models"
	"wonderstars/internal/service"
	"wonderstars/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AwardWorker consumes loyalty events and applies the awards they trigger:
// the percentage bonus for wallet top-ups and the flat stars grant for
// voucher redemptions. Kafka delivers at least once and payment gateways
// redeliver callbacks, so every award here dedups through the ledger.
type AwardWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	awards       *service.AwardService
	starsPerUse  int64
	logger       *zap.Logger
}

// NewAwardWorker creates a new award worker. starsPerRedemption of zero
// disables the redemption stars grant.
func NewAwardWorker(consumer *broker.Consumer, awards *service.AwardService, starsPerRedemption int) *AwardWorker {
	w := &AwardWorker{
		consumer:    consumer,
		awards:      awards,
		starsPerUse: int64(starsPerRedemption),
		logger:      util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnWalletTopupCompleted(w.handleWalletTopup)
	eventHandler.OnVoucherRedeemed(w.handleVoucherRedeemed)
	w.eventHandler = eventHandler

	return w
}

func (w *AwardWorker) handleWalletTopup(ctx context.Context, event *models.WalletTopupCompletedEvent) error {
	result, err := w.awards.AwardTopupBonus(ctx, event.UserID, event.Amount, event.WalletTransactionID)
	if err != nil {
		return err
	}

	if result.AlreadyAwarded {
		w.logger.Info("Top-up bonus already awarded, skipping",
			zap.Int64("user_id", event.UserID),
			zap.String("wallet_transaction_id", event.WalletTransactionID))
	}
	return nil
}

func (w *AwardWorker) handleVoucherRedeemed(ctx context.Context, event *models.VoucherRedeemedEvent) error {
	if w.starsPerUse <= 0 {
		return nil
	}

	// Event ID as correlation key: a redelivered message carries the same
	// payload, so the ledger absorbs it.
	metadata := models.Metadata{"voucher_code": event.VoucherCode}
	result, err := w.awards.Award(ctx, models.LedgerStars, event.UserID,
		decimal.NewFromInt(w.starsPerUse), models.SourceRedemptionStars, event.EventID, metadata)
	if err != nil {
		return err
	}

	if result.AlreadyAwarded {
		w.logger.Info("Redemption stars already awarded, skipping",
			zap.Int64("user_id", event.UserID),
			zap.String("event_id", event.EventID))
	}
	return nil
}

// Start starts the worker
func (w *AwardWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting award worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AwardWorker) Stop() error {
	w.logger.Info("Stopping award worker")
	return w.consumer.Close()
}

// Locker guards a named critical section across service replicas.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

const reconcileLockKey = "reconcile-run"

// ReconcileWorker periodically audits the denormalized balance columns
// against their ledger sums. When replicas share a Redis, the lock keeps
// the audit to one runner per tick.
type ReconcileWorker struct {
	awards   *service.AwardService
	locker   Locker
	interval time.Duration
	logger   *zap.Logger
}

// NewReconcileWorker creates a new reconciliation worker. locker may be nil.
func NewReconcileWorker(awards *service.AwardService, locker Locker, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		awards:   awards,
		locker:   locker,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the audit on a ticker until the context is cancelled
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconciliation worker",
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconciliation worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	if w.locker != nil {
		acquired, err := w.locker.AcquireLock(ctx, reconcileLockKey, w.interval)
		if err != nil {
			w.logger.Error("Reconciliation lock acquire failed", zap.Error(err))
			return
		}
		if !acquired {
			w.logger.Debug("Reconciliation lock held elsewhere, skipping tick")
			return
		}
		defer func() {
			if err := w.locker.ReleaseLock(ctx, reconcileLockKey); err != nil {
				w.logger.Warn("Reconciliation lock release failed", zap.Error(err))
			}
		}()
	}

	drifts, err := w.awards.ReconcileAll(ctx)
	if err != nil {
		w.logger.Error("Reconciliation run failed", zap.Error(err))
		return
	}
	if drifts > 0 {
		w.logger.Warn("Reconciliation run found drift",
			zap.Int("drifted", drifts))
	} else {
		w.logger.Info("Reconciliation run clean")
	}
}
