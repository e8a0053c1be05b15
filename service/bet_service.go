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
)

const (
	betListCachePrefix = "bets:"
	defaultListLimit   = 20
	maxListLimit       = 100
)

// betService implements BetService
type betService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	clock      Clock
	cache      ListCache
}

// NewBetService creates a new bet service
func NewBetService(uowFactory UnitOfWorkFactory, cfg *config.Config, clock Clock, cache ListCache) BetService {
	return &betService{
		uowFactory: uowFactory,
		config:     cfg,
		clock:      clock,
		cache:      cache,
	}
}

// CreateBet creates a bet after checking the creator's trust gates
func (s *betService) CreateBet(ctx context.Context, req CreateBetRequest) (*models.Bet, error) {
	now := s.clock.Now()

	if !req.Deadline.After(now) {
		return nil, newRuleViolation(CodeInvalidInput, "deadline must be in the future")
	}
	if req.Visibility == "" {
		req.Visibility = models.BetVisibilityPrivate
	}

	bet, err := models.NewBet(req.CreatorID, req.Title, req.Description, req.Sides, req.Visibility, models.RoundMoney(req.Amount), req.Deadline)
	if err != nil {
		return nil, asRuleViolation(err)
	}

	var creatorSide string
	if req.CreatorSide != "" {
		if req.Draft {
			return nil, newRuleViolation(CodeInvalidInput, "a draft bet cannot take a side until it is published")
		}
		side, ok := bet.CanonicalSide(req.CreatorSide)
		if !ok {
			return nil, newRuleViolation(CodeInvalidInput, "%q is not a side of this bet", req.CreatorSide)
		}
		creatorSide = side
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	creator, err := uow.UserRepository().GetByIDForUpdate(ctx, req.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get creator: %w", err)
	}
	if creator == nil {
		return nil, newRuleViolation(CodeNotFound, "user %d not found", req.CreatorID)
	}

	caps := creator.Capabilities()
	if !caps.CanCreateBets {
		return nil, newRuleViolation(CodeTrustRestricted, "trust score %.2f is too low to create bets", creator.TrustScore)
	}
	if bet.Visibility == models.BetVisibilityPublic && !caps.CanCreatePublicBets {
		return nil, newRuleViolation(CodeTrustRestricted, "trust score %.2f is too low to create public bets", creator.TrustScore)
	}
	if !caps.AllowsStake(bet.BetAmount) {
		return nil, newRuleViolation(CodeLimitExceeded, "stake %s exceeds your limit of %s",
			formatMoney(bet.BetAmount), formatMoney(caps.MaxStake))
	}

	if !req.Draft {
		if err := bet.TransitionTo(models.BetStatusActive, now); err != nil {
			return nil, asRuleViolation(err)
		}
	}
	bet.CreatedAt = now
	bet.UpdatedAt = now

	if err := uow.BetRepository().Create(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	if creatorSide != "" {
		if _, err := s.joinParticipant(ctx, uow, bet, creator, creatorSide, bet.BetAmount, now); err != nil {
			return nil, err
		}
		if err := uow.BetRepository().Update(ctx, bet); err != nil {
			return nil, fmt.Errorf("failed to update bet pot: %w", err)
		}
	}

	uow.EventBus().Publish(events.BetCreatedEvent{
		BetID:      bet.ID,
		CreatorID:  bet.CreatorID,
		Visibility: bet.Visibility,
		Status:     bet.Status,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":      bet.ID,
		"creatorID":  bet.CreatorID,
		"status":     bet.Status,
		"visibility": bet.Visibility,
		"amount":     bet.BetAmount.String(),
	}).Info("Bet created")

	return bet, nil
}

// PublishBet makes a draft bet joinable
func (s *betService) PublishBet(ctx context.Context, betID, userID int64) (*models.Bet, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := s.loadCreatorBet(ctx, uow, betID, userID)
	if err != nil {
		return nil, err
	}
	if bet.Status != models.BetStatusDraft {
		return nil, newRuleViolation(CodeInvalidState, "bet %d is %s, only drafts can be published", betID, bet.Status)
	}
	if !bet.Deadline.After(now) {
		return nil, newRuleViolation(CodeInvalidInput, "deadline has already passed")
	}

	if err := s.transition(ctx, uow, bet, models.BetStatusActive, now); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bet, nil
}

// JoinBet places a stake on one side of an open bet
func (s *betService) JoinBet(ctx context.Context, betID, userID int64, side string, amount decimal.Decimal) (*models.Participant, error) {
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
	if !bet.CanAcceptParticipants(now) {
		return nil, newRuleViolation(CodeInvalidState, "bet %d is not open for joining", betID)
	}

	canonical, ok := bet.CanonicalSide(side)
	if !ok {
		return nil, newRuleViolation(CodeInvalidInput, "%q is not a side of this bet", side)
	}
	if amount.IsZero() {
		amount = bet.BetAmount
	}
	amount = models.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, newRuleViolation(CodeInvalidInput, "stake must be positive")
	}

	user, err := uow.UserRepository().GetByIDForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, newRuleViolation(CodeNotFound, "user %d not found", userID)
	}

	participant, err := s.joinParticipant(ctx, uow, bet, user, canonical, amount, now)
	if err != nil {
		return nil, err
	}
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet pot: %w", err)
	}

	if !bet.IsCreator(userID) {
		notify(uow.EventBus(), betNotification(bet.CreatorID, bet, models.NotificationTypeBetJoined,
			"New participant",
			fmt.Sprintf("%s joined %q on %s with %s", user.Username, bet.Title, canonical, formatMoney(amount))))
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":  betID,
		"userID": userID,
		"side":   canonical,
		"amount": amount.String(),
	}).Info("User joined bet")

	return participant, nil
}

// joinParticipant checks stake gates, records the participant and debits the stake
func (s *betService) joinParticipant(ctx context.Context, uow UnitOfWork, bet *models.Bet, user *models.User, side string, amount decimal.Decimal, now time.Time) (*models.Participant, error) {
	caps := user.Capabilities()
	if !caps.AllowsStake(amount) {
		return nil, newRuleViolation(CodeLimitExceeded, "stake %s exceeds your limit of %s",
			formatMoney(amount), formatMoney(caps.MaxStake))
	}
	if !user.CanAfford(amount) {
		return nil, newRuleViolation(CodeInsufficientFunds, "insufficient balance: have %s, need %s",
			formatMoney(user.Balance), formatMoney(amount))
	}

	existing, err := uow.BetRepository().GetParticipant(ctx, bet.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check participation: %w", err)
	}
	if existing != nil {
		return nil, newRuleViolation(CodeInvalidState, "user %d already joined bet %d", user.ID, bet.ID)
	}

	participant, err := models.NewParticipant(bet.ID, user.ID, side, amount)
	if err != nil {
		return nil, asRuleViolation(err)
	}
	participant.CreatedAt = now
	participant.UpdatedAt = now
	if err := uow.BetRepository().CreateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	stake, err := models.NewTransaction(user.ID, models.TransactionTypeBetPlaced, amount, fmt.Sprintf("Stake on %q", bet.Title))
	if err != nil {
		return nil, asRuleViolation(err)
	}
	if err := RecordCompletedTransaction(ctx, uow, stake.ForBet(bet.ID), s.config.PlatformFeeRate, now); err != nil {
		return nil, err
	}

	bet.TotalPot = models.RoundMoney(bet.TotalPot.Add(amount))
	bet.UpdatedAt = now

	uow.EventBus().Publish(events.ParticipantJoinedEvent{
		BetID:  bet.ID,
		UserID: user.ID,
		Side:   side,
		Amount: amount,
	})
	return participant, nil
}

// StartBet closes joining on an active bet
func (s *betService) StartBet(ctx context.Context, betID, userID int64) (*models.Bet, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := s.loadCreatorBet(ctx, uow, betID, userID)
	if err != nil {
		return nil, err
	}
	if bet.Status != models.BetStatusActive {
		return nil, newRuleViolation(CodeInvalidState, "bet %d is %s, only active bets can start", betID, bet.Status)
	}

	if err := s.transition(ctx, uow, bet, models.BetStatusLive, now); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bet, nil
}

// ResolveBet declares the winning side, queues payouts and opens the dispute window
func (s *betService) ResolveBet(ctx context.Context, betID, userID int64, winningSide string) (*models.Bet, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := s.loadCreatorBet(ctx, uow, betID, userID)
	if err != nil {
		return nil, err
	}

	canonical, ok := bet.CanonicalSide(winningSide)
	if !ok {
		return nil, newRuleViolation(CodeInvalidInput, "%q is not a side of this bet", winningSide)
	}

	switch {
	case bet.Status == models.BetStatusLive:
	case bet.Status == models.BetStatusActive && bet.IsExpired(now):
	case bet.Status == models.BetStatusPendingResolution && !bet.HasWinningSide():
	default:
		return nil, newRuleViolation(CodeInvalidState, "bet %d cannot be resolved while %s", betID, bet.Status)
	}

	oldStatus := bet.Status
	if bet.Status != models.BetStatusPendingResolution {
		if err := bet.TransitionTo(models.BetStatusPendingResolution, now); err != nil {
			return nil, asRuleViolation(err)
		}
	}

	participants, err := uow.BetRepository().GetParticipants(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	windowEndsAt := now.Add(s.config.DisputeWindow)
	bet.WinningSide = &canonical
	bet.DisputeWindowEndsAt = &windowEndsAt
	bet.UpdatedAt = now

	if err := s.queuePayouts(ctx, uow, bet, participants, now); err != nil {
		return nil, err
	}

	if creator := models.FindParticipant(participants, bet.CreatorID); creator != nil && creator.Accept(now) {
		creator.UpdatedAt = now
		if err := uow.BetRepository().UpdateParticipant(ctx, creator); err != nil {
			return nil, fmt.Errorf("failed to record creator acceptance: %w", err)
		}
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	if now.Sub(bet.Deadline) > s.config.SlowResolutionAfter {
		if err := NewTrustScoreEngine(uow, now).PenalizeSlowResolution(ctx, bet.CreatorID, betID); err != nil {
			return nil, fmt.Errorf("failed to apply slow resolution penalty: %w", err)
		}
	}

	uow.EventBus().Publish(events.BetStateChangedEvent{
		BetID:     betID,
		CreatorID: bet.CreatorID,
		OldStatus: oldStatus,
		NewStatus: bet.Status,
	})
	notifyParticipants(uow.EventBus(), bet, participants, func(recipient int64) models.Notification {
		return betNotification(recipient, bet, models.NotificationTypeBetResolved, "Result declared",
			fmt.Sprintf("%q was resolved: %s won. Disputes can be filed until %s.",
				bet.Title, canonical, windowEndsAt.Format(time.RFC1123)))
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":        betID,
		"winningSide":  canonical,
		"participants": len(participants),
		"windowEndsAt": windowEndsAt,
	}).Info("Bet resolved by creator")

	return bet, nil
}

// queuePayouts creates PENDING BET_WON entries for the winning side, split in
// proportion to stake. When nobody picked the winner every stake is refunded.
func (s *betService) queuePayouts(ctx context.Context, uow UnitOfWork, bet *models.Bet, participants []*models.Participant, now time.Time) error {
	var winners []*models.Participant
	for _, p := range participants {
		if p.Side == *bet.WinningSide {
			winners = append(winners, p)
		}
	}

	if len(winners) == 0 {
		for _, p := range participants {
			if err := s.queueTransaction(ctx, uow, bet, p.UserID, models.TransactionTypeBetRefund, p.Amount,
				fmt.Sprintf("Refund for %q: no stakes on the winning side", bet.Title), now); err != nil {
				return err
			}
		}
		return nil
	}

	stakes := make([]decimal.Decimal, len(winners))
	for i, w := range winners {
		stakes[i] = w.Amount
	}
	shares := models.SplitPot(bet.TotalPot, stakes)
	for i, w := range winners {
		if !shares[i].IsPositive() {
			continue
		}
		if err := s.queueTransaction(ctx, uow, bet, w.UserID, models.TransactionTypeBetWon, shares[i],
			fmt.Sprintf("Winnings for %q", bet.Title), now); err != nil {
			return err
		}
	}
	return nil
}

func (s *betService) queueTransaction(ctx context.Context, uow UnitOfWork, bet *models.Bet, userID int64, txType models.TransactionType, amount decimal.Decimal, description string, now time.Time) error {
	tx, err := models.NewTransaction(userID, txType, amount, description)
	if err != nil {
		return asRuleViolation(err)
	}
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if err := uow.TransactionRepository().Create(ctx, tx.ForBet(bet.ID)); err != nil {
		return fmt.Errorf("failed to queue %s transaction: %w", txType, err)
	}
	return nil
}

// CancelBet cancels a draft or active bet and refunds every stake immediately
func (s *betService) CancelBet(ctx context.Context, betID, userID int64, reason string) (*models.Bet, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := s.loadCreatorBet(ctx, uow, betID, userID)
	if err != nil {
		return nil, err
	}
	if bet.Status != models.BetStatusDraft && bet.Status != models.BetStatusActive {
		return nil, newRuleViolation(CodeInvalidState, "bet %d cannot be cancelled while %s", betID, bet.Status)
	}

	participants, err := uow.BetRepository().GetParticipants(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	othersJoined := len(models.NonCreatorParticipants(bet, participants)) > 0
	wasDraft := bet.Status == models.BetStatusDraft

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Cancelled by creator"
	}
	bet.ResolutionReason = &reason

	for _, p := range participants {
		refund, err := models.NewTransaction(p.UserID, models.TransactionTypeBetRefund, p.Amount, fmt.Sprintf("Refund for cancelled bet %q", bet.Title))
		if err != nil {
			return nil, asRuleViolation(err)
		}
		if err := RecordCompletedTransaction(ctx, uow, refund.ForBet(betID), s.config.PlatformFeeRate, now); err != nil {
			return nil, fmt.Errorf("failed to refund participant %d: %w", p.UserID, err)
		}
	}

	if err := s.transition(ctx, uow, bet, models.BetStatusCancelled, now); err != nil {
		return nil, err
	}

	if !wasDraft {
		engine := NewTrustScoreEngine(uow, now)
		if err := engine.PenalizeCancellation(ctx, bet.CreatorID, betID, othersJoined); err != nil {
			return nil, fmt.Errorf("failed to apply cancellation penalty: %w", err)
		}

		recent, err := uow.BetRepository().CountCancelledByCreatorSince(ctx, bet.CreatorID, now.Add(-s.config.CancellationAbuseWindow))
		if err != nil {
			return nil, fmt.Errorf("failed to count recent cancellations: %w", err)
		}
		if recent >= s.config.CancellationAbuseThreshold {
			if err := engine.PenalizeCancellationAbuse(ctx, bet.CreatorID, betID); err != nil {
				return nil, fmt.Errorf("failed to apply cancellation abuse penalty: %w", err)
			}
		}
	}

	notifyParticipants(uow.EventBus(), bet, participants, func(recipient int64) models.Notification {
		return betNotification(recipient, bet, models.NotificationTypeBetCancelled, "Bet cancelled",
			fmt.Sprintf("%q was cancelled: %s. Stakes have been refunded.", bet.Title, reason))
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":        betID,
		"participants": len(participants),
		"othersJoined": othersJoined,
	}).Info("Bet cancelled by creator")

	return bet, nil
}

// GetBet returns a bet with its participants
func (s *betService) GetBet(ctx context.Context, betID int64) (*models.BetDetail, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
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
	return &models.BetDetail{Bet: bet, Participants: participants}, nil
}

// ListOpenBets returns public bets still accepting participants
func (s *betService) ListOpenBets(ctx context.Context, limit int) ([]*models.Bet, error) {
	limit = normalizeLimit(limit)
	key := fmt.Sprintf("%sopen:%d", betListCachePrefix, limit)

	return s.cachedList(ctx, key, func(repo BetRepository) ([]*models.Bet, error) {
		return repo.ListOpenPublic(ctx, s.clock.Now(), limit)
	})
}

// ListUserBets returns bets a user created or joined
func (s *betService) ListUserBets(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	limit = normalizeLimit(limit)
	key := fmt.Sprintf("%suser:%d:%d", betListCachePrefix, userID, limit)

	return s.cachedList(ctx, key, func(repo BetRepository) ([]*models.Bet, error) {
		return repo.ListByUser(ctx, userID, limit)
	})
}

// cachedList serves a listing from the cache, loading and storing it on a miss.
// Cache failures are logged and fall through to the database.
func (s *betService) cachedList(ctx context.Context, key string, load func(BetRepository) ([]*models.Bet, error)) ([]*models.Bet, error) {
	if s.cache != nil {
		var cached []*models.Bet
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("Failed to read list cache")
		} else if hit {
			return cached, nil
		}
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := load(uow.BetRepository())
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, bets); err != nil {
			log.WithError(err).WithField("key", key).Warn("Failed to write list cache")
		}
	}
	return bets, nil
}

// loadCreatorBet locks a bet and checks that userID created it
func (s *betService) loadCreatorBet(ctx context.Context, uow UnitOfWork, betID, userID int64) (*models.Bet, error) {
	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, newRuleViolation(CodeNotFound, "bet %d not found", betID)
	}
	if !bet.IsCreator(userID) {
		return nil, newRuleViolation(CodeForbidden, "only the creator can manage bet %d", betID)
	}
	return bet, nil
}

// transition moves the bet to next, persists it and publishes the state change
func (s *betService) transition(ctx context.Context, uow UnitOfWork, bet *models.Bet, next models.BetStatus, now time.Time) error {
	oldStatus := bet.Status
	if err := bet.TransitionTo(next, now); err != nil {
		return asRuleViolation(err)
	}
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return fmt.Errorf("failed to update bet: %w", err)
	}
	uow.EventBus().Publish(events.BetStateChangedEvent{
		BetID:     bet.ID,
		CreatorID: bet.CreatorID,
		OldStatus: oldStatus,
		NewStatus: next,
	})
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// RegisterBetCacheInvalidation drops cached bet listings whenever a bet changes
func RegisterBetCacheInvalidation(bus *events.Bus, cache ListCache) {
	invalidate := func(ctx context.Context, event events.Event) {
		if err := cache.InvalidatePrefix(ctx, betListCachePrefix); err != nil {
			log.WithError(err).WithField("eventType", event.Type()).Warn("Failed to invalidate bet list cache")
		}
	}
	bus.Subscribe(events.EventTypeBetCreated, invalidate)
	bus.Subscribe(events.EventTypeBetStateChanged, invalidate)
	bus.Subscribe(events.EventTypeParticipantJoined, invalidate)
}
