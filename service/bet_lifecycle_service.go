package service

import (
	"context"
	"fmt"
	"time"

	"sidebet/config"
	"sidebet/events"
	"sidebet/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// betLifecycleService implements BetLifecycleService
type betLifecycleService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	clock      Clock
	limiter    *rate.Limiter
}

// NewBetLifecycleService creates a new bet lifecycle service
func NewBetLifecycleService(uowFactory UnitOfWorkFactory, cfg *config.Config, clock Clock) BetLifecycleService {
	return &betLifecycleService{
		uowFactory: uowFactory,
		config:     cfg,
		clock:      clock,
		limiter:    newSweepLimiter(cfg.SweepWritesPerSecond),
	}
}

// TransitionExpiredBets closes joining on every ACTIVE bet past its deadline
func (s *betLifecycleService) TransitionExpiredBets(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now()

	bets, err := s.loadBets(ctx, func(repo BetRepository, ctx context.Context) ([]*models.Bet, error) {
		return repo.GetExpiredActive(ctx, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get expired bets: %w", err)
	}

	return runSweep(ctx, "expire_bets", s.limiter, bets, betKey, func(ctx context.Context, bet *models.Bet) error {
		return s.expireBet(ctx, bet.ID, now)
	})
}

// expireBet moves one bet to PENDING_RESOLUTION, or CANCELLED when nobody joined
func (s *betLifecycleService) expireBet(ctx context.Context, betID int64, now time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return fmt.Errorf("failed to get bet: %w", err)
	}
	// Another writer may have moved it since selection
	if bet == nil || !bet.IsActive() || !bet.IsExpired(now) {
		return errItemSkipped
	}

	count, err := uow.BetRepository().CountParticipants(ctx, betID)
	if err != nil {
		return fmt.Errorf("failed to count participants: %w", err)
	}

	oldStatus := bet.Status
	next := models.BetStatusPendingResolution
	if count == 0 {
		next = models.BetStatusCancelled
		reason := models.NoParticipantsReason
		bet.ResolutionReason = &reason
	}
	if err := bet.TransitionTo(next, now); err != nil {
		return err
	}

	// Version-conditional: a concurrent join or cancel makes this a skip
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.BetStateChangedEvent{
		BetID:     bet.ID,
		CreatorID: bet.CreatorID,
		OldStatus: oldStatus,
		NewStatus: next,
	})
	if next == models.BetStatusCancelled {
		notify(uow.EventBus(), betNotification(bet.CreatorID, bet, models.NotificationTypeBetCancelled,
			"Bet expired", fmt.Sprintf("%q was cancelled: %s.", bet.Title, models.NoParticipantsReason)))
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":        betID,
		"newStatus":    next,
		"participants": count,
	}).Info("Expired bet transitioned")
	return nil
}

// PenalizeOverdueResolutions penalizes creators once per bet when a bet sits in
// PENDING_RESOLUTION without an outcome for longer than the grace period
func (s *betLifecycleService) PenalizeOverdueResolutions(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.config.UnresolvedGrace)

	bets, err := s.loadBets(ctx, func(repo BetRepository, ctx context.Context) ([]*models.Bet, error) {
		return repo.GetOverdueUnresolved(ctx, cutoff)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue bets: %w", err)
	}

	return runSweep(ctx, "penalize_overdue", s.limiter, bets, betKey, func(ctx context.Context, bet *models.Bet) error {
		return s.penalizeOverdue(ctx, bet.ID, cutoff, now)
	})
}

func (s *betLifecycleService) penalizeOverdue(ctx context.Context, betID int64, cutoff, now time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil || !bet.IsPendingResolution() || bet.HasWinningSide() || bet.OverduePenalized || !bet.Deadline.Before(cutoff) {
		return errItemSkipped
	}

	bet.OverduePenalized = true
	bet.UpdatedAt = now
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return fmt.Errorf("failed to flag bet: %w", err)
	}

	if err := NewTrustScoreEngine(uow, now).PenalizeExpiredUnresolved(ctx, bet.CreatorID, betID); err != nil {
		return fmt.Errorf("failed to apply expired unresolved penalty: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":     betID,
		"creatorID": bet.CreatorID,
	}).Warn("Creator penalized for leaving bet unresolved")
	return nil
}

// loadBets runs a selection query in a read-only unit of work bounded by the sweep query timeout
func (s *betLifecycleService) loadBets(ctx context.Context, query func(BetRepository, context.Context) ([]*models.Bet, error)) ([]*models.Bet, error) {
	return loadSweepBets(ctx, s.uowFactory, s.config.SweepQueryTimeout, query)
}

func loadSweepBets(ctx context.Context, uowFactory UnitOfWorkFactory, timeout time.Duration, query func(BetRepository, context.Context) ([]*models.Bet, error)) ([]*models.Bet, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	uow := uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return query(uow.BetRepository(), ctx)
}
