package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sidebet/config"
	"sidebet/events"
	"sidebet/models"

	log "github.com/sirupsen/logrus"
)

// disputeService implements DisputeService
type disputeService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	clock      Clock
}

// NewDisputeService creates a new dispute service
func NewDisputeService(uowFactory UnitOfWorkFactory, cfg *config.Config, clock Clock) DisputeService {
	return &disputeService{
		uowFactory: uowFactory,
		config:     cfg,
		clock:      clock,
	}
}

// CanFileDispute checks the filer's cooldown and open-dispute cap
func (s *disputeService) CanFileDispute(ctx context.Context, userID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return s.checkFiler(ctx, uow, userID, s.clock.Now())
}

// CanDisputeBet checks that the bet carries a result that can still be challenged
func (s *disputeService) CanDisputeBet(ctx context.Context, betID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return newRuleViolation(CodeNotFound, "bet %d not found", betID)
	}
	return s.checkBet(ctx, uow, bet, s.clock.Now())
}

func (s *disputeService) checkFiler(ctx context.Context, uow UnitOfWork, userID int64, now time.Time) error {
	last, err := uow.DisputeRepository().GetLatestFiledAt(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get latest dispute: %w", err)
	}
	if last != nil && now.Sub(*last) < s.config.DisputeCooldown {
		return newRuleViolation(CodeCooldown, "you can file another dispute after %s",
			last.Add(s.config.DisputeCooldown).Format(time.RFC1123))
	}

	pending, err := uow.DisputeRepository().CountPendingByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count pending disputes: %w", err)
	}
	if pending >= s.config.MaxPendingDisputes {
		return newRuleViolation(CodeLimitExceeded, "you already have %d pending disputes", pending)
	}
	return nil
}

func (s *disputeService) checkBet(ctx context.Context, uow UnitOfWork, bet *models.Bet, now time.Time) error {
	if bet.Status != models.BetStatusResolved && bet.Status != models.BetStatusPendingResolution {
		return newRuleViolation(CodeInvalidState, "bet %d is %s and cannot be disputed", bet.ID, bet.Status)
	}
	if !bet.HasWinningSide() {
		return newRuleViolation(CodeInvalidState, "bet %d has no declared result to dispute", bet.ID)
	}
	if bet.NeedsCorrection {
		return newRuleViolation(CodeInvalidState, "bet %d is awaiting a manual correction", bet.ID)
	}

	open, err := uow.DisputeRepository().GetOpenByBet(ctx, bet.ID)
	if err != nil {
		return fmt.Errorf("failed to get open disputes: %w", err)
	}
	if len(open) > 0 {
		return newRuleViolation(CodeInvalidState, "bet %d already has an open dispute", bet.ID)
	}

	if now.After(bet.UpdatedAt.Add(s.config.DisputeFilingWindow)) {
		return newRuleViolation(CodeInvalidState, "the dispute period for bet %d has ended", bet.ID)
	}
	return nil
}

// FileDispute challenges a declared result on behalf of a non-creator participant
func (s *disputeService) FileDispute(ctx context.Context, betID, userID int64, reason models.DisputeReason, details string) (*models.Dispute, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, newRuleViolation(CodeNotFound, "bet %d not found", betID)
	}

	participant, err := uow.BetRepository().GetParticipant(ctx, betID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	if participant == nil || bet.IsCreator(userID) {
		return nil, newRuleViolation(CodeForbidden, "only participants other than the creator can dispute bet %d", betID)
	}

	if err := s.checkFiler(ctx, uow, userID, now); err != nil {
		return nil, err
	}
	if err := s.checkBet(ctx, uow, bet, now); err != nil {
		return nil, err
	}

	dispute, err := models.NewDispute(bet, userID, reason, details)
	if err != nil {
		return nil, asRuleViolation(err)
	}
	dispute.CreatedAt = now
	dispute.UpdatedAt = now
	if err := uow.DisputeRepository().Create(ctx, dispute); err != nil {
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}

	oldStatus := bet.Status
	if err := bet.TransitionTo(models.BetStatusDisputed, now); err != nil {
		return nil, asRuleViolation(err)
	}
	bet.HadDispute = true
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.DisputeFiledEvent{
		DisputeID:     dispute.ID,
		BetID:         betID,
		FiledBy:       userID,
		AgainstUserID: dispute.AgainstUserID,
		Reason:        reason,
	})
	uow.EventBus().Publish(events.BetStateChangedEvent{
		BetID:     betID,
		CreatorID: bet.CreatorID,
		OldStatus: oldStatus,
		NewStatus: bet.Status,
	})
	notify(uow.EventBus(), disputeNotification(bet.CreatorID, dispute, models.NotificationTypeDisputeFiled,
		"Dispute filed", fmt.Sprintf("A participant disputed the result of %q (%s). Payouts are on hold until an admin reviews it.", bet.Title, reason)))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"disputeID": dispute.ID,
		"betID":     betID,
		"filedBy":   userID,
		"reason":    reason,
	}).Info("Dispute filed")

	return dispute, nil
}

// StartReview marks a pending dispute as being reviewed by an admin
func (s *disputeService) StartReview(ctx context.Context, disputeID, adminID int64) (*models.Dispute, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAdmin(ctx, uow, adminID); err != nil {
		return nil, err
	}

	dispute, err := uow.DisputeRepository().GetByIDForUpdate(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	if dispute == nil {
		return nil, newRuleViolation(CodeNotFound, "dispute %d not found", disputeID)
	}
	if dispute.Status != models.DisputeStatusPending {
		return nil, newRuleViolation(CodeInvalidState, "dispute %d is %s, not pending", disputeID, dispute.Status)
	}

	dispute.Status = models.DisputeStatusUnderReview
	dispute.UpdatedAt = now
	if err := uow.DisputeRepository().Update(ctx, dispute); err != nil {
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return dispute, nil
}

// ResolveDispute records an admin outcome and applies its effects on the bet
// and on both parties' trust scores
func (s *disputeService) ResolveDispute(ctx context.Context, disputeID, adminID int64, outcome models.DisputeStatus, resolution, notes string) (*models.Dispute, error) {
	now := s.clock.Now()

	if !outcome.IsTerminal() {
		return nil, newRuleViolation(CodeInvalidInput, "%s is not a dispute outcome", outcome)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAdmin(ctx, uow, adminID); err != nil {
		return nil, err
	}

	dispute, err := uow.DisputeRepository().GetByIDForUpdate(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	if dispute == nil {
		return nil, newRuleViolation(CodeNotFound, "dispute %d not found", disputeID)
	}
	if !dispute.IsOpen() {
		return nil, newRuleViolation(CodeInvalidState, "dispute %d is already %s", disputeID, dispute.Status)
	}

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, dispute.BetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("bet %d for dispute %d not found", dispute.BetID, disputeID)
	}

	if err := dispute.Resolve(outcome, resolution, adminID, notes, now); err != nil {
		return nil, asRuleViolation(err)
	}
	if err := uow.DisputeRepository().Update(ctx, dispute); err != nil {
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}

	oldStatus := bet.Status
	if bet.Status == models.BetStatusDisputed {
		if err := bet.TransitionTo(models.BetStatusPendingResolution, now); err != nil {
			return nil, asRuleViolation(err)
		}
	}

	engine := NewTrustScoreEngine(uow, now)
	if outcome == models.DisputeStatusResolvedForFiler {
		if err := s.reopenForCorrection(ctx, uow, bet, dispute); err != nil {
			return nil, err
		}
		if err := engine.PenalizeLostDisputeAsCreator(ctx, dispute.AgainstUserID, bet.ID, dispute.ID); err != nil {
			return nil, fmt.Errorf("failed to penalize creator: %w", err)
		}
		if err := engine.RewardWonDispute(ctx, dispute.FiledBy, bet.ID, dispute.ID); err != nil {
			return nil, fmt.Errorf("failed to reward filer: %w", err)
		}
	} else {
		if err := engine.RewardDisputeDismissed(ctx, dispute.AgainstUserID, bet.ID, dispute.ID); err != nil {
			return nil, fmt.Errorf("failed to reward creator: %w", err)
		}
		if err := engine.PenalizeLostDisputeAsParticipant(ctx, dispute.FiledBy, bet.ID, dispute.ID); err != nil {
			return nil, fmt.Errorf("failed to penalize filer: %w", err)
		}
	}

	bet.UpdatedAt = now
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.DisputeResolvedEvent{
		DisputeID: dispute.ID,
		BetID:     bet.ID,
		Outcome:   outcome,
		AdminID:   adminID,
	})
	uow.EventBus().Publish(events.BetStateChangedEvent{
		BetID:     bet.ID,
		CreatorID: bet.CreatorID,
		OldStatus: oldStatus,
		NewStatus: bet.Status,
	})
	message := fmt.Sprintf("The dispute on %q was resolved: %s.", bet.Title, describeOutcome(outcome, bet.NeedsCorrection))
	for _, recipient := range []int64{dispute.FiledBy, dispute.AgainstUserID} {
		notify(uow.EventBus(), disputeNotification(recipient, dispute, models.NotificationTypeDisputeResolved, "Dispute resolved", message))
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"disputeID": disputeID,
		"betID":     bet.ID,
		"outcome":   outcome,
		"adminID":   adminID,
	}).Info("Dispute resolved")

	return dispute, nil
}

// reopenForCorrection undoes an upheld result that has not been paid: queued
// payouts are cancelled and the creator must declare the outcome again. A bet
// that was already paid keeps its result and is held out of the payout sweep
// until an admin completes a manual ledger correction.
func (s *disputeService) reopenForCorrection(ctx context.Context, uow UnitOfWork, bet *models.Bet, dispute *models.Dispute) error {
	if dispute.BetStatusAtFiling != models.BetStatusPendingResolution {
		bet.NeedsCorrection = true
		log.WithFields(log.Fields{
			"betID":     bet.ID,
			"disputeID": dispute.ID,
		}).Warn("Dispute upheld on a paid bet, payouts need a manual adjustment")
		return nil
	}

	for _, txType := range []models.TransactionType{models.TransactionTypeBetWon, models.TransactionTypeBetRefund} {
		if _, err := uow.TransactionRepository().CancelPendingByBet(ctx, bet.ID, txType); err != nil {
			return fmt.Errorf("failed to cancel pending %s transactions: %w", txType, err)
		}
	}

	participants, err := uow.BetRepository().GetParticipants(ctx, bet.ID)
	if err != nil {
		return fmt.Errorf("failed to get participants: %w", err)
	}
	for _, p := range participants {
		if !p.HasAcceptedResult {
			continue
		}
		p.HasAcceptedResult = false
		p.AcceptedResultAt = nil
		if err := uow.BetRepository().UpdateParticipant(ctx, p); err != nil {
			return fmt.Errorf("failed to reset acceptance: %w", err)
		}
	}

	bet.WinningSide = nil
	bet.DisputeWindowEndsAt = nil
	return nil
}

func describeOutcome(outcome models.DisputeStatus, needsCorrection bool) string {
	switch {
	case outcome == models.DisputeStatusResolvedForFiler && needsCorrection:
		return "the challenge was upheld and an admin will correct the payouts"
	case outcome == models.DisputeStatusResolvedForFiler:
		return "the challenge was upheld and the creator must declare the result again"
	case outcome == models.DisputeStatusResolvedForCreator:
		return "the original result stands"
	default:
		return "the dispute was dismissed and the original result stands"
	}
}

// CompleteCorrection closes out a paid bet whose result was overturned once an
// admin has adjusted the ledger by hand
func (s *disputeService) CompleteCorrection(ctx context.Context, betID, adminID int64, notes string) (*models.Bet, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAdmin(ctx, uow, adminID); err != nil {
		return nil, err
	}

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, newRuleViolation(CodeNotFound, "bet %d not found", betID)
	}
	if !bet.NeedsCorrection {
		return nil, newRuleViolation(CodeInvalidState, "bet %d is not awaiting a correction", betID)
	}

	oldStatus := bet.Status
	if err := bet.TransitionTo(models.BetStatusResolved, now); err != nil {
		return nil, asRuleViolation(err)
	}
	bet.NeedsCorrection = false
	bet.ResolvedAt = &now
	if notes = strings.TrimSpace(notes); notes != "" {
		bet.ResolutionReason = &notes
	}
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.BetStateChangedEvent{
		BetID:     bet.ID,
		CreatorID: bet.CreatorID,
		OldStatus: oldStatus,
		NewStatus: bet.Status,
	})
	notify(uow.EventBus(), betNotification(bet.CreatorID, bet, models.NotificationTypeDisputeResolved, "Payouts corrected",
		fmt.Sprintf("An admin corrected the payouts on %q after the upheld dispute", bet.Title)))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":   betID,
		"adminID": adminID,
	}).Info("Bet correction completed")

	return bet, nil
}

// GetDispute returns a dispute by ID
func (s *disputeService) GetDispute(ctx context.Context, disputeID int64) (*models.Dispute, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	dispute, err := uow.DisputeRepository().GetByID(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	if dispute == nil {
		return nil, newRuleViolation(CodeNotFound, "dispute %d not found", disputeID)
	}
	return dispute, nil
}

// ListUserDisputes returns disputes filed by a user, newest first
func (s *disputeService) ListUserDisputes(ctx context.Context, userID int64, limit int) ([]*models.Dispute, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	disputes, err := uow.DisputeRepository().GetByFiler(ctx, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	return disputes, nil
}

// ListOpenDisputes returns the admin review queue: pending first, then under review
func (s *disputeService) ListOpenDisputes(ctx context.Context, limit int) ([]*models.Dispute, error) {
	limit = normalizeLimit(limit)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	var result []*models.Dispute
	for _, status := range []models.DisputeStatus{models.DisputeStatusPending, models.DisputeStatusUnderReview} {
		disputes, err := uow.DisputeRepository().GetByStatus(ctx, status, limit-len(result))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s disputes: %w", status, err)
		}
		result = append(result, disputes...)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}
