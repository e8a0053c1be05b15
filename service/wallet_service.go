package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sidebet/config"
	"sidebet/events"
	"sidebet/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// walletService implements WalletService
type walletService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	clock      Clock
	limiter    *rate.Limiter
}

// NewWalletService creates a new wallet service
func NewWalletService(uowFactory UnitOfWorkFactory, cfg *config.Config, clock Clock) WalletService {
	return &walletService{
		uowFactory: uowFactory,
		config:     cfg,
		clock:      clock,
		limiter:    newSweepLimiter(cfg.SweepWritesPerSecond),
	}
}

// Deposit credits a user's balance immediately
func (s *walletService) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Transaction, error) {
	now := s.clock.Now()
	amount = models.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, newRuleViolation(CodeInvalidInput, "deposit amount must be positive")
	}

	tx, err := models.NewTransaction(userID, models.TransactionTypeDeposit, amount, "Deposit")
	if err != nil {
		return nil, asRuleViolation(err)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := RecordCompletedTransaction(ctx, uow, tx, s.config.PlatformFeeRate, now); err != nil {
		return nil, err
	}
	if err := NewTrustScoreEngine(uow, now).RewardSuccessfulDeposit(ctx, userID, tx.ID); err != nil {
		return nil, fmt.Errorf("failed to reward deposit: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID": userID,
		"amount": amount.String(),
	}).Info("Deposit completed")

	return tx, nil
}

// RequestWithdrawal queues a withdrawal released after the user's tier delay
func (s *walletService) RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Transaction, error) {
	now := s.clock.Now()
	amount = models.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, newRuleViolation(CodeInvalidInput, "withdrawal amount must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, newRuleViolation(CodeNotFound, "user %d not found", userID)
	}

	caps := user.Capabilities()
	if !caps.CanWithdraw {
		return nil, newRuleViolation(CodeTrustRestricted, "trust score %.2f is too low to withdraw", user.TrustScore)
	}
	if !user.CanAfford(amount) {
		return nil, newRuleViolation(CodeInsufficientFunds, "insufficient balance: have %s, need %s",
			formatMoney(user.Balance), formatMoney(amount))
	}

	tx, err := models.NewTransaction(userID, models.TransactionTypeWithdrawal, amount, "Withdrawal")
	if err != nil {
		return nil, asRuleViolation(err)
	}
	availableAt := now.Add(caps.WithdrawalDelay)
	tx.AvailableAt = &availableAt
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if err := uow.TransactionRepository().Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":      userID,
		"amount":      amount.String(),
		"tier":        caps.Tier,
		"availableAt": availableAt,
	}).Info("Withdrawal requested")

	return tx, nil
}

// ProcessDueWithdrawals settles every pending withdrawal whose release time has passed
func (s *walletService) ProcessDueWithdrawals(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now()

	loadCtx := ctx
	if s.config.SweepQueryTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, s.config.SweepQueryTimeout)
		defer cancel()
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(loadCtx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	due, err := uow.TransactionRepository().GetDueWithdrawals(loadCtx, now)
	uow.Rollback()
	if err != nil {
		return nil, fmt.Errorf("failed to get due withdrawals: %w", err)
	}

	return runSweep(ctx, "process_withdrawals", s.limiter, due, transactionKey, func(ctx context.Context, tx *models.Transaction) error {
		return s.settleWithdrawal(ctx, tx, now)
	})
}

func (s *walletService) settleWithdrawal(ctx context.Context, tx *models.Transaction, now time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	err := SettlePendingTransaction(ctx, uow, tx, s.config.PlatformFeeRate, now)
	if ViolationCode(err) == CodeInsufficientFunds {
		uow.Rollback()
		return s.failTransaction(ctx, tx.ID, models.TransactionStatusPending, "insufficient balance at settlement", now)
	}
	if err != nil {
		return err
	}

	if err := NewTrustScoreEngine(uow, now).RewardSuccessfulWithdrawal(ctx, tx.UserID, tx.ID); err != nil {
		return fmt.Errorf("failed to reward withdrawal: %w", err)
	}
	notify(uow.EventBus(), models.Notification{
		UserID:  tx.UserID,
		Type:    models.NotificationTypeWithdrawalCompleted,
		Title:   "Withdrawal sent",
		Message: fmt.Sprintf("Your withdrawal of %s has been processed", formatMoney(tx.Amount)),
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// failTransaction fails an entry in its own unit of work and penalizes the owner
func (s *walletService) failTransaction(ctx context.Context, txID int64, from models.TransactionStatus, reason string, now time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	tx, err := s.markFailed(ctx, uow, txID, from, reason, now)
	if err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"transactionID": txID,
		"userID":        tx.UserID,
		"reason":        reason,
	}).Warn("Transaction failed")
	return nil
}

func (s *walletService) markFailed(ctx context.Context, uow UnitOfWork, txID int64, from models.TransactionStatus, reason string, now time.Time) (*models.Transaction, error) {
	tx, err := uow.TransactionRepository().GetByID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx == nil {
		return nil, newRuleViolation(CodeNotFound, "transaction %d not found", txID)
	}

	if err := uow.TransactionRepository().MarkFailed(ctx, txID, from, reason); err != nil {
		return nil, fmt.Errorf("failed to mark transaction %d failed: %w", txID, err)
	}
	tx.Status = models.TransactionStatusFailed
	tx.FailureReason = &reason
	tx.UpdatedAt = now

	if err := NewTrustScoreEngine(uow, now).PenalizeFailedTransaction(ctx, tx.UserID, txID); err != nil {
		return nil, fmt.Errorf("failed to apply failed transaction penalty: %w", err)
	}

	uow.EventBus().Publish(events.TransactionSettledEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		TxType:        tx.Type,
		Status:        tx.Status,
		Amount:        tx.Amount,
	})
	if tx.Type == models.TransactionTypeWithdrawal {
		notify(uow.EventBus(), models.Notification{
			UserID:   tx.UserID,
			Type:     models.NotificationTypeWithdrawalFailed,
			Title:    "Withdrawal failed",
			Message:  fmt.Sprintf("Your withdrawal of %s failed: %s", formatMoney(tx.Amount), reason),
			Priority: models.NotificationPriorityHigh,
		})
	}
	return tx, nil
}

// FailTransaction lets an admin fail a pending or processing entry
func (s *walletService) FailTransaction(ctx context.Context, adminID, transactionID int64, reason string) (*models.Transaction, error) {
	now := s.clock.Now()
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newRuleViolation(CodeInvalidInput, "a failure reason is required")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAdmin(ctx, uow, adminID); err != nil {
		return nil, err
	}

	current, err := uow.TransactionRepository().GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if current == nil {
		return nil, newRuleViolation(CodeNotFound, "transaction %d not found", transactionID)
	}
	if current.Status != models.TransactionStatusPending && current.Status != models.TransactionStatusProcessing {
		return nil, newRuleViolation(CodeInvalidState, "transaction %d is %s and cannot fail", transactionID, current.Status)
	}

	tx, err := s.markFailed(ctx, uow, transactionID, current.Status, reason, now)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"adminID":       adminID,
		"transactionID": transactionID,
		"reason":        reason,
	}).Warn("Transaction failed by admin")

	return tx, nil
}

// AdjustBalance applies a signed manual correction on behalf of an admin
func (s *walletService) AdjustBalance(ctx context.Context, adminID, userID int64, amount decimal.Decimal, note string) (*models.Transaction, error) {
	now := s.clock.Now()

	note = strings.TrimSpace(note)
	if note == "" {
		note = "Admin adjustment"
	}
	tx, err := models.NewTransaction(userID, models.TransactionTypeAdminAdjustment, amount, note)
	if err != nil {
		return nil, asRuleViolation(err)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAdmin(ctx, uow, adminID); err != nil {
		return nil, err
	}
	if err := RecordCompletedTransaction(ctx, uow, tx, s.config.PlatformFeeRate, now); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"adminID": adminID,
		"userID":  userID,
		"amount":  tx.Amount.String(),
	}).Info("Balance adjusted by admin")

	return tx, nil
}

// GetTransactions returns a user's ledger, newest first
func (s *walletService) GetTransactions(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	txs, err := uow.TransactionRepository().GetByUser(ctx, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return txs, nil
}
