package service

import (
	"context"
	"fmt"

	"sidebet/config"
	"sidebet/events"
	"sidebet/models"

	log "github.com/sirupsen/logrus"
)

// acceptanceService implements AcceptanceService
type acceptanceService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	clock      Clock
}

// NewAcceptanceService creates a new acceptance service
func NewAcceptanceService(uowFactory UnitOfWorkFactory, cfg *config.Config, clock Clock) AcceptanceService {
	return &acceptanceService{
		uowFactory: uowFactory,
		config:     cfg,
		clock:      clock,
	}
}

// AcceptBetResult records a participant's acceptance of the declared outcome.
// Once every non-creator participant has accepted, the dispute window closes.
func (s *acceptanceService) AcceptBetResult(ctx context.Context, betID, userID int64) (*AcceptanceResult, error) {
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

	participants, err := uow.BetRepository().GetParticipants(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	participant := models.FindParticipant(participants, userID)
	if participant == nil {
		return nil, newRuleViolation(CodeForbidden, "user %d is not a participant in bet %d", userID, betID)
	}
	if bet.IsCreator(userID) {
		return nil, newRuleViolation(CodeForbidden, "the creator cannot accept their own result")
	}
	if !bet.IsPendingResolution() {
		return nil, newRuleViolation(CodeInvalidState, "bet %d is %s, not awaiting acceptance", betID, bet.Status)
	}
	if !bet.HasWinningSide() {
		return nil, newRuleViolation(CodeInvalidState, "bet %d has no declared result yet", betID)
	}
	if bet.NeedsCorrection {
		return nil, newRuleViolation(CodeInvalidState, "bet %d is awaiting a manual correction", betID)
	}

	nonCreator := models.NonCreatorParticipants(bet, participants)
	result := &AcceptanceResult{
		Bet:        bet,
		TotalCount: len(nonCreator),
	}

	if !participant.Accept(now) {
		result.AcceptedCount = models.CountAccepted(nonCreator)
		result.AlreadyAccepted = true
		return result, nil
	}
	participant.UpdatedAt = now
	if err := uow.BetRepository().UpdateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to record acceptance: %w", err)
	}

	result.AcceptedCount = models.CountAccepted(nonCreator)

	uow.EventBus().Publish(events.ResultAcceptedEvent{
		BetID:         betID,
		UserID:        userID,
		AcceptedCount: result.AcceptedCount,
		TotalCount:    result.TotalCount,
	})

	if result.AcceptedCount == result.TotalCount {
		// Backdated so the next payout sweep sees the window as elapsed
		closedAt := now.Add(-s.config.EarlyClosureBackdate)
		bet.DisputeWindowEndsAt = &closedAt
		bet.UpdatedAt = now
		if err := uow.BetRepository().Update(ctx, bet); err != nil {
			return nil, fmt.Errorf("failed to close dispute window: %w", err)
		}
		result.ClosedEarly = true

		notifyParticipants(uow.EventBus(), bet, participants, func(recipient int64) models.Notification {
			return betNotification(recipient, bet, models.NotificationTypeEarlyClosure, "Bet closing early",
				fmt.Sprintf("Everyone accepted the result of %q. Payouts will be processed shortly.", bet.Title))
		})
	} else {
		notify(uow.EventBus(), betNotification(bet.CreatorID, bet, models.NotificationTypeResultAccepted, "Result accepted",
			fmt.Sprintf("%d of %d participants have accepted the result of %q", result.AcceptedCount, result.TotalCount, bet.Title)))
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":       betID,
		"userID":      userID,
		"accepted":    result.AcceptedCount,
		"total":       result.TotalCount,
		"closedEarly": result.ClosedEarly,
	}).Info("Bet result accepted")

	return result, nil
}
