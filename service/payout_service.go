package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sidebet/config"
	"sidebet/events"
	"sidebet/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// errPayoutIncomplete marks a bet that still has unsettled transactions after a pass
var errPayoutIncomplete = errors.New("payout incomplete")

// payoutService implements PayoutService
type payoutService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	clock      Clock
	limiter    *rate.Limiter
}

// NewPayoutService creates a new payout service
func NewPayoutService(uowFactory UnitOfWorkFactory, cfg *config.Config, clock Clock) PayoutService {
	return &payoutService{
		uowFactory: uowFactory,
		config:     cfg,
		clock:      clock,
		limiter:    newSweepLimiter(cfg.SweepWritesPerSecond),
	}
}

// ProcessReadyPayouts settles every PENDING_RESOLUTION bet whose dispute window has
// elapsed (or that has no one to dispute it) and marks it RESOLVED
func (s *payoutService) ProcessReadyPayouts(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now()

	bets, err := loadSweepBets(ctx, s.uowFactory, s.config.SweepQueryTimeout, func(repo BetRepository, ctx context.Context) ([]*models.Bet, error) {
		return repo.GetByStatus(ctx, models.BetStatusPendingResolution)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get bets pending resolution: %w", err)
	}

	return runSweep(ctx, "process_payouts", s.limiter, bets, betKey, func(ctx context.Context, bet *models.Bet) error {
		return s.processBet(ctx, bet.ID, now)
	})
}

// processBet runs the payout saga for one bet: settle each pending transaction in
// its own database transaction, then finalize the bet once nothing is pending
func (s *payoutService) processBet(ctx context.Context, betID int64, now time.Time) error {
	bet, pending, err := s.loadReadyBet(ctx, betID, now)
	if err != nil {
		return err
	}

	failures := 0
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.settle(ctx, bet, tx, now); err != nil {
			if errors.Is(err, models.ErrConcurrentModification) {
				continue
			}
			failures++
			log.WithFields(log.Fields{
				"betID":         betID,
				"transactionID": tx.ID,
				"userID":        tx.UserID,
			}).WithError(err).Error("Failed to settle payout transaction")
		}
	}
	if failures > 0 {
		return fmt.Errorf("%w: %d of %d transactions for bet %d failed", errPayoutIncomplete, failures, len(pending), betID)
	}

	return s.finalize(ctx, betID, now)
}

// loadReadyBet checks payout readiness and returns the bet's pending transactions.
// Bets that are not ready are reported as skipped.
func (s *payoutService) loadReadyBet(ctx context.Context, betID int64, now time.Time) (*models.Bet, []*models.Transaction, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil || !bet.IsPendingResolution() {
		return nil, nil, errItemSkipped
	}
	if !bet.HasWinningSide() {
		log.WithField("betID", betID).Debug("Bet awaiting creator resolution, skipping payout")
		return nil, nil, errItemSkipped
	}
	if bet.NeedsCorrection {
		log.WithField("betID", betID).Debug("Bet awaiting manual correction, skipping payout")
		return nil, nil, errItemSkipped
	}

	open, err := uow.DisputeRepository().GetOpenByBet(ctx, betID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get open disputes: %w", err)
	}
	if len(open) > 0 {
		return nil, nil, errItemSkipped
	}

	participants, err := uow.BetRepository().GetParticipants(ctx, betID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get participants: %w", err)
	}
	creatorOnly := len(models.NonCreatorParticipants(bet, participants)) == 0
	if !creatorOnly && !bet.DisputeWindowElapsed(now) {
		return nil, nil, errItemSkipped
	}

	pending, err := uow.TransactionRepository().GetPendingByBet(ctx, betID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get pending transactions: %w", err)
	}
	return bet, pending, nil
}

// settle runs one settlement step and credits the participant's recorded payout
func (s *payoutService) settle(ctx context.Context, bet *models.Bet, tx *models.Transaction, now time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := SettlePendingTransaction(ctx, uow, tx, s.config.PlatformFeeRate, now); err != nil {
		return err
	}

	participant, err := uow.BetRepository().GetParticipant(ctx, bet.ID, tx.UserID)
	if err != nil {
		return fmt.Errorf("failed to get participant: %w", err)
	}
	if participant != nil {
		participant.Payout = models.RoundMoney(participant.Payout.Add(tx.NetAmount))
		participant.UpdatedAt = now
		if err := uow.BetRepository().UpdateParticipant(ctx, participant); err != nil {
			return fmt.Errorf("failed to record participant payout: %w", err)
		}
	}

	if tx.Type == models.TransactionTypeBetWon {
		message := fmt.Sprintf("You received %s from %q", formatMoney(tx.NetAmount), bet.Title)
		if tx.PlatformFee.IsPositive() {
			message += fmt.Sprintf(" (after a %s platform fee)", formatMoney(tx.PlatformFee))
		}
		notify(uow.EventBus(), betNotification(tx.UserID, bet, models.NotificationTypePayoutReceived, "You won!", message))
	} else {
		notify(uow.EventBus(), betNotification(tx.UserID, bet, models.NotificationTypeRefundIssued, "Stake refunded",
			fmt.Sprintf("Your %s stake on %q was refunded", formatMoney(tx.NetAmount), bet.Title)))
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// finalize marks a fully paid bet RESOLVED and rewards a clean resolution
func (s *payoutService) finalize(ctx context.Context, betID int64, now time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil || !bet.IsPendingResolution() || !bet.HasWinningSide() || bet.NeedsCorrection {
		return errItemSkipped
	}

	remaining, err := uow.TransactionRepository().GetPendingByBet(ctx, betID)
	if err != nil {
		return fmt.Errorf("failed to get pending transactions: %w", err)
	}
	if len(remaining) > 0 {
		return fmt.Errorf("%w: %d transactions still pending for bet %d", errPayoutIncomplete, len(remaining), betID)
	}

	oldStatus := bet.Status
	if err := bet.TransitionTo(models.BetStatusResolved, now); err != nil {
		return err
	}
	bet.ResolvedAt = &now
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return fmt.Errorf("failed to update bet: %w", err)
	}

	if !bet.HadDispute {
		clean, err := uow.BetRepository().CountCleanResolvedByCreator(ctx, bet.CreatorID)
		if err != nil {
			return fmt.Errorf("failed to count clean resolutions: %w", err)
		}
		if err := NewTrustScoreEngine(uow, now).RewardCleanResolution(ctx, bet.CreatorID, betID, clean); err != nil {
			return fmt.Errorf("failed to reward clean resolution: %w", err)
		}
	}

	uow.EventBus().Publish(events.BetStateChangedEvent{
		BetID:     betID,
		CreatorID: bet.CreatorID,
		OldStatus: oldStatus,
		NewStatus: bet.Status,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":      betID,
		"hadDispute": bet.HadDispute,
	}).Info("Bet resolved and paid out")
	return nil
}
