package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"sidebet/events"
	"sidebet/models"

	log "github.com/sirupsen/logrus"
)

// RelatedIDs links a trust score change to the records that caused it
type RelatedIDs struct {
	BetID         *int64
	TransactionID *int64
	DisputeID     *int64
}

func relatedBet(betID int64) RelatedIDs {
	return RelatedIDs{BetID: &betID}
}

func relatedDispute(betID, disputeID int64) RelatedIDs {
	return RelatedIDs{BetID: &betID, DisputeID: &disputeID}
}

func relatedTransaction(txID int64) RelatedIDs {
	return RelatedIDs{TransactionID: &txID}
}

// TrustScoreEngine applies trust score changes inside a unit of work, so each
// change commits or rolls back with the operation that caused it
type TrustScoreEngine struct {
	uow UnitOfWork
	now time.Time
}

// NewTrustScoreEngine creates an engine bound to an open unit of work
func NewTrustScoreEngine(uow UnitOfWork, now time.Time) *TrustScoreEngine {
	return &TrustScoreEngine{uow: uow, now: now}
}

// ApplyChange reads the user's score, clamps score+delta to [0,10], writes it
// and appends the audit row. The history records the delta actually applied.
func (e *TrustScoreEngine) ApplyChange(ctx context.Context, userID int64, delta float64, reason models.TrustReason, related RelatedIDs) (*models.TrustScoreHistory, error) {
	user, err := e.uow.UserRepository().GetByIDForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d not found", userID)
	}

	previous := user.TrustScore
	next := models.ClampTrustScore(previous + delta)
	applied := math.Round((next-previous)*100) / 100

	if err := e.uow.UserRepository().UpdateTrustScore(ctx, userID, next); err != nil {
		return nil, fmt.Errorf("failed to update trust score: %w", err)
	}

	history := &models.TrustScoreHistory{
		UserID:               userID,
		Delta:                applied,
		PreviousScore:        previous,
		NewScore:             next,
		Reason:               reason,
		RelatedBetID:         related.BetID,
		RelatedTransactionID: related.TransactionID,
		RelatedDisputeID:     related.DisputeID,
		CreatedAt:            e.now,
	}
	if err := e.uow.TrustScoreHistoryRepository().Record(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to record trust score history: %w", err)
	}

	e.uow.EventBus().Publish(events.TrustScoreChangedEvent{
		UserID:   userID,
		Delta:    applied,
		OldScore: previous,
		NewScore: next,
		Reason:   reason,
	})

	log.WithFields(log.Fields{
		"userID":   userID,
		"reason":   reason,
		"oldScore": previous,
		"newScore": next,
	}).Debug("Applied trust score change")

	return history, nil
}

// Apply uses the fixed delta for reason
func (e *TrustScoreEngine) Apply(ctx context.Context, userID int64, reason models.TrustReason, related RelatedIDs) (*models.TrustScoreHistory, error) {
	delta, ok := models.TrustDeltas[reason]
	if !ok {
		return nil, fmt.Errorf("no fixed delta for trust reason %s", reason)
	}
	return e.ApplyChange(ctx, userID, delta, reason, related)
}

func (e *TrustScoreEngine) PenalizeFailedTransaction(ctx context.Context, userID, txID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonFailedTransaction, relatedTransaction(txID))
	return err
}

func (e *TrustScoreEngine) PenalizeLostDisputeAsCreator(ctx context.Context, userID, betID, disputeID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonLostDisputeAsCreator, relatedDispute(betID, disputeID))
	return err
}

func (e *TrustScoreEngine) PenalizeLostDisputeAsParticipant(ctx context.Context, userID, betID, disputeID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonLostDisputeAsParticipant, relatedDispute(betID, disputeID))
	return err
}

func (e *TrustScoreEngine) RewardWonDispute(ctx context.Context, userID, betID, disputeID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonWonDispute, relatedDispute(betID, disputeID))
	return err
}

func (e *TrustScoreEngine) RewardDisputeDismissed(ctx context.Context, userID, betID, disputeID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonDisputeDismissed, relatedDispute(betID, disputeID))
	return err
}

func (e *TrustScoreEngine) PenalizeCancellation(ctx context.Context, userID, betID int64, othersJoined bool) error {
	reason := models.TrustReasonCancelledBeforeJoins
	if othersJoined {
		reason = models.TrustReasonCancelledAfterJoins
	}
	_, err := e.Apply(ctx, userID, reason, relatedBet(betID))
	return err
}

func (e *TrustScoreEngine) PenalizeCancellationAbuse(ctx context.Context, userID, betID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonCancellationAbuse, relatedBet(betID))
	return err
}

func (e *TrustScoreEngine) PenalizeExpiredUnresolved(ctx context.Context, userID, betID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonExpiredUnresolved, relatedBet(betID))
	return err
}

func (e *TrustScoreEngine) PenalizeSlowResolution(ctx context.Context, userID, betID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonSlowResolution, relatedBet(betID))
	return err
}

func (e *TrustScoreEngine) RewardSuccessfulDeposit(ctx context.Context, userID, txID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonSuccessfulDeposit, relatedTransaction(txID))
	return err
}

func (e *TrustScoreEngine) RewardSuccessfulWithdrawal(ctx context.Context, userID, txID int64) error {
	_, err := e.Apply(ctx, userID, models.TrustReasonSuccessfulWithdrawal, relatedTransaction(txID))
	return err
}

// RewardCleanResolution credits the creator of a bet resolved without dispute and
// grants a milestone bonus the first time the lifetime clean count reaches one.
// cleanCount must include this bet.
func (e *TrustScoreEngine) RewardCleanResolution(ctx context.Context, userID, betID int64, cleanCount int) error {
	if _, err := e.Apply(ctx, userID, models.TrustReasonCleanResolution, relatedBet(betID)); err != nil {
		return err
	}

	milestone, ok := models.CleanBetMilestones[cleanCount]
	if !ok {
		return nil
	}
	already, err := e.uow.TrustScoreHistoryRepository().HasReason(ctx, userID, milestone)
	if err != nil {
		return fmt.Errorf("failed to check milestone history: %w", err)
	}
	if already {
		return nil
	}
	_, err = e.Apply(ctx, userID, milestone, relatedBet(betID))
	return err
}

// trustScoreService implements TrustScoreService
type trustScoreService struct {
	uowFactory UnitOfWorkFactory
	clock      Clock
}

// NewTrustScoreService creates a new trust score service
func NewTrustScoreService(uowFactory UnitOfWorkFactory, clock Clock) TrustScoreService {
	return &trustScoreService{
		uowFactory: uowFactory,
		clock:      clock,
	}
}

// GetTrustProfile returns a user's score and the capabilities it grants
func (s *trustScoreService) GetTrustProfile(ctx context.Context, userID int64) (*TrustProfile, error) {
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

	return &TrustProfile{
		UserID:       user.ID,
		Score:        user.TrustScore,
		Capabilities: user.Capabilities(),
	}, nil
}

// GetHistory returns the most recent trust score changes for a user
func (s *trustScoreService) GetHistory(ctx context.Context, userID int64, limit int) ([]*models.TrustScoreHistory, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	history, err := uow.TrustScoreHistoryRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trust score history: %w", err)
	}
	return history, nil
}

// AdjustTrustScore applies a manual change on behalf of an admin
func (s *trustScoreService) AdjustTrustScore(ctx context.Context, adminID, userID int64, delta float64) (*models.TrustScoreHistory, error) {
	if delta == 0 {
		return nil, newRuleViolation(CodeInvalidInput, "adjustment cannot be zero")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAdmin(ctx, uow, adminID); err != nil {
		return nil, err
	}

	history, err := NewTrustScoreEngine(uow, s.clock.Now()).ApplyChange(ctx, userID, delta, models.TrustReasonAdminAdjustment, RelatedIDs{})
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"adminID": adminID,
		"userID":  userID,
		"delta":   history.Delta,
	}).Info("Trust score adjusted by admin")

	return history, nil
}

// requireAdmin loads the acting user and rejects non-admins
func requireAdmin(ctx context.Context, uow UnitOfWork, userID int64) error {
	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return newRuleViolation(CodeNotFound, "user %d not found", userID)
	}
	if !user.IsAdmin() {
		return newRuleViolation(CodeForbidden, "user %d is not an admin", userID)
	}
	return nil
}
