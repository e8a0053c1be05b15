package service

import (
	"context"
	"fmt"
	"time"

	"sidebet/events"
	"sidebet/models"

	"github.com/shopspring/decimal"
)

// RecordCompletedTransaction creates a ledger entry that settles in the same
// database transaction (stakes, refunds, deposits, adjustments). Together with
// SettlePendingTransaction this is the single entry point for balance changes.
func RecordCompletedTransaction(ctx context.Context, uow UnitOfWork, tx *models.Transaction, feeRate decimal.Decimal, now time.Time) error {
	user, err := uow.UserRepository().GetByIDForUpdate(ctx, tx.UserID)
	if err != nil {
		return fmt.Errorf("failed to lock user %d: %w", tx.UserID, err)
	}
	if user == nil {
		return newRuleViolation(CodeNotFound, "user %d not found", tx.UserID)
	}

	tx.CreatedAt = now
	tx.Complete(user.Balance, feeRate, now)
	if tx.BalanceAfter.IsNegative() {
		return newRuleViolation(CodeInsufficientFunds, "insufficient balance: have %s, need %s",
			formatMoney(user.Balance), formatMoney(tx.NetAmount.Abs()))
	}

	if err := uow.TransactionRepository().Create(ctx, tx); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	if err := uow.UserRepository().UpdateBalance(ctx, user.ID, tx.BalanceAfter); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	publishSettled(uow, tx)
	return nil
}

// SettlePendingTransaction runs one settlement step for a PENDING entry: claim
// it, lock the owner's row, apply the net amount and mark it COMPLETED. All of
// it happens inside uow, so a failure leaves the entry PENDING. A concurrent
// claim surfaces as models.ErrConcurrentModification.
func SettlePendingTransaction(ctx context.Context, uow UnitOfWork, tx *models.Transaction, feeRate decimal.Decimal, now time.Time) error {
	txRepo := uow.TransactionRepository()
	if err := txRepo.TransitionStatus(ctx, tx.ID, models.TransactionStatusPending, models.TransactionStatusProcessing); err != nil {
		return fmt.Errorf("failed to claim transaction %d: %w", tx.ID, err)
	}
	tx.Status = models.TransactionStatusProcessing

	user, err := uow.UserRepository().GetByIDForUpdate(ctx, tx.UserID)
	if err != nil {
		return fmt.Errorf("failed to lock user %d: %w", tx.UserID, err)
	}
	if user == nil {
		return fmt.Errorf("user %d for transaction %d not found", tx.UserID, tx.ID)
	}

	tx.Complete(user.Balance, feeRate, now)
	if tx.BalanceAfter.IsNegative() {
		return newRuleViolation(CodeInsufficientFunds, "insufficient balance for transaction %d: have %s, need %s",
			tx.ID, formatMoney(user.Balance), formatMoney(tx.NetAmount.Abs()))
	}

	if err := txRepo.MarkCompleted(ctx, tx); err != nil {
		return fmt.Errorf("failed to complete transaction %d: %w", tx.ID, err)
	}
	if err := uow.UserRepository().UpdateBalance(ctx, user.ID, tx.BalanceAfter); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	publishSettled(uow, tx)
	return nil
}

func publishSettled(uow UnitOfWork, tx *models.Transaction) {
	uow.EventBus().Publish(events.TransactionSettledEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		TxType:        tx.Type,
		Status:        tx.Status,
		Amount:        tx.Amount,
		PlatformFee:   tx.PlatformFee,
		NetAmount:     tx.NetAmount,
		BalanceAfter:  tx.BalanceAfter,
	})
}
