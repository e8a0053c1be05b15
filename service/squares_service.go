package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"sidebet/config"
	"sidebet/events"
	"sidebet/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Shuffler supplies the random permutations used to number a board
type Shuffler interface {
	Perm(n int) []int
}

type randShuffler struct{}

func (randShuffler) Perm(n int) []int { return rand.Perm(n) }

// RandomShuffler numbers boards from the process-wide random source
var RandomShuffler Shuffler = randShuffler{}

// squaresService implements SquaresService
type squaresService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	clock      Clock
	shuffler   Shuffler
}

// NewSquaresService creates a new squares service
func NewSquaresService(uowFactory UnitOfWorkFactory, cfg *config.Config, clock Clock, shuffler Shuffler) SquaresService {
	if shuffler == nil {
		shuffler = RandomShuffler
	}
	return &squaresService{
		uowFactory: uowFactory,
		config:     cfg,
		clock:      clock,
		shuffler:   shuffler,
	}
}

// CreateGame opens a new board for sales
func (s *squaresService) CreateGame(ctx context.Context, req CreateSquaresGameRequest) (*models.SquaresGame, error) {
	now := s.clock.Now()

	game, err := models.NewSquaresGame(req.CreatorID, req.Title, req.HomeTeam, req.AwayTeam,
		models.RoundMoney(req.PricePerSquare), req.MaxSquaresPerUser, req.PayoutPercents)
	if err != nil {
		return nil, asRuleViolation(err)
	}
	game.CreatedAt = now
	game.UpdatedAt = now

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	creator, err := uow.UserRepository().GetByID(ctx, req.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get creator: %w", err)
	}
	if creator == nil {
		return nil, newRuleViolation(CodeNotFound, "user %d not found", req.CreatorID)
	}
	if !creator.Capabilities().CanCreateBets {
		return nil, newRuleViolation(CodeTrustRestricted, "trust score %.2f is too low to create games", creator.TrustScore)
	}

	if err := uow.SquaresRepository().CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to create squares game: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"gameID":    game.ID,
		"creatorID": game.CreatorID,
		"price":     game.PricePerSquare.String(),
	}).Info("Squares game created")

	return game, nil
}

// PurchaseSquare sells one free cell of an ACTIVE board to a user
func (s *squaresService) PurchaseSquare(ctx context.Context, gameID, userID int64, row, col int) (*models.SquaresPurchase, error) {
	now := s.clock.Now()
	if err := models.ValidateCell(row, col); err != nil {
		return nil, asRuleViolation(err)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	repo := uow.SquaresRepository()
	game, err := repo.GetGameForUpdate(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get squares game: %w", err)
	}
	if game == nil {
		return nil, newRuleViolation(CodeNotFound, "squares game %d not found", gameID)
	}
	if game.Status != models.SquaresGameStatusActive {
		return nil, newRuleViolation(CodeInvalidState, "squares game %d is %s and not selling squares", gameID, game.Status)
	}

	purchases, err := repo.GetPurchases(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases: %w", err)
	}
	detail := models.SquaresGameDetail{Game: game, Purchases: purchases}
	if detail.Owner(row, col) != nil {
		return nil, newRuleViolation(CodeConflict, "square (%d,%d) is already taken", row, col)
	}

	owned, err := repo.CountUserPurchases(ctx, gameID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}
	if owned >= game.MaxSquaresPerUser {
		return nil, newRuleViolation(CodeLimitExceeded, "you already own %d of %d allowed squares", owned, game.MaxSquaresPerUser)
	}

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, newRuleViolation(CodeNotFound, "user %d not found", userID)
	}
	if !user.Capabilities().AllowsStake(game.PricePerSquare) {
		return nil, newRuleViolation(CodeTrustRestricted, "trust score %.2f does not allow a %s stake",
			user.TrustScore, formatMoney(game.PricePerSquare))
	}

	tx, err := models.NewTransaction(userID, models.TransactionTypeBetPlaced, game.PricePerSquare,
		fmt.Sprintf("Square (%d,%d) on %s", row, col, game.Title))
	if err != nil {
		return nil, asRuleViolation(err)
	}
	tx.ForSquaresGame(gameID)
	if err := RecordCompletedTransaction(ctx, uow, tx, s.config.PlatformFeeRate, now); err != nil {
		return nil, err
	}

	purchase := &models.SquaresPurchase{
		GameID:        gameID,
		UserID:        userID,
		Row:           row,
		Col:           col,
		Amount:        game.PricePerSquare,
		TransactionID: &tx.ID,
		CreatedAt:     now,
	}
	if err := repo.CreatePurchase(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	game.TotalPot = models.RoundMoney(game.TotalPot.Add(game.PricePerSquare))
	game.UpdatedAt = now
	if err := repo.UpdateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to update squares pot: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"gameID": gameID,
		"userID": userID,
		"row":    row,
		"col":    col,
	}).Info("Square purchased")

	return purchase, nil
}

// LockGame closes sales and numbers the board's axes
func (s *squaresService) LockGame(ctx context.Context, gameID, userID int64) (*models.SquaresGame, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	game, err := s.loadCreatorGame(ctx, uow, gameID, userID)
	if err != nil {
		return nil, err
	}

	game.RowNumbers = s.digitPermutation()
	game.ColNumbers = s.digitPermutation()
	game.LockedAt = &now
	if err := s.transition(ctx, uow, game, models.SquaresGameStatusLocked, now); err != nil {
		return nil, err
	}

	purchases, err := uow.SquaresRepository().GetPurchases(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases: %w", err)
	}
	for _, buyer := range purchaserIDs(purchases) {
		notify(uow.EventBus(), squaresNotification(buyer, game, models.NotificationTypeSquaresLocked, "Board locked",
			fmt.Sprintf("Numbers are in for %q. Good luck!", game.Title)))
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"gameID":    gameID,
		"purchases": len(purchases),
		"pot":       game.TotalPot.String(),
	}).Info("Squares game locked")

	return game, nil
}

// StartGame marks a locked board live so scores can be recorded
func (s *squaresService) StartGame(ctx context.Context, gameID, userID int64) (*models.SquaresGame, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	game, err := s.loadCreatorGame(ctx, uow, gameID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, uow, game, models.SquaresGameStatusLive, now); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return game, nil
}

// RecordPeriodScore pays the square matching a period's score. Periods must be
// recorded in play order. An unsold winning square rolls its amount forward,
// and an unsold FINAL square returns the amount to the creator.
func (s *squaresService) RecordPeriodScore(ctx context.Context, gameID, userID int64, period models.SquaresPeriod, homeScore, awayScore int) (*models.SquaresPayout, error) {
	now := s.clock.Now()

	periodIdx := period.Index()
	if periodIdx < 0 {
		return nil, newRuleViolation(CodeInvalidInput, "unknown period %q", period)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	game, err := s.loadCreatorGame(ctx, uow, gameID, userID)
	if err != nil {
		return nil, err
	}
	if game.Status != models.SquaresGameStatusLive {
		return nil, newRuleViolation(CodeInvalidState, "squares game %d is %s, not live", gameID, game.Status)
	}

	repo := uow.SquaresRepository()
	payouts, err := repo.GetPayouts(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts: %w", err)
	}
	if periodIdx != len(payouts) {
		return nil, newRuleViolation(CodeInvalidState, "expected period %s, got %s",
			models.SquaresPeriods[min(len(payouts), len(models.SquaresPeriods)-1)], period)
	}

	row, col, err := game.WinningCell(homeScore, awayScore)
	if err != nil {
		return nil, asRuleViolation(err)
	}
	purchases, err := repo.GetPurchases(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases: %w", err)
	}
	winner := (&models.SquaresGameDetail{Game: game, Purchases: purchases}).Owner(row, col)

	payout := &models.SquaresPayout{
		GameID:    gameID,
		Period:    period,
		HomeScore: homeScore,
		AwayScore: awayScore,
		Amount:    periodPayoutAmount(game, period, payouts),
		CreatedAt: now,
	}

	if payout.Amount.IsPositive() {
		switch {
		case winner != nil:
			tx, err := s.payWinner(ctx, uow, game, winner, period, payout.Amount, now)
			if err != nil {
				return nil, err
			}
			payout.WinnerUserID = &winner.UserID
			payout.PurchaseID = &winner.ID
			payout.TransactionID = &tx.ID
		case period == models.SquaresPeriodFinal:
			tx, err := models.NewTransaction(game.CreatorID, models.TransactionTypeBetRefund, payout.Amount,
				fmt.Sprintf("Unclaimed %s pot on %s", period, game.Title))
			if err != nil {
				return nil, asRuleViolation(err)
			}
			tx.ForSquaresGame(gameID)
			if err := RecordCompletedTransaction(ctx, uow, tx, s.config.PlatformFeeRate, now); err != nil {
				return nil, err
			}
			payout.TransactionID = &tx.ID
		}
	} else if winner != nil {
		payout.WinnerUserID = &winner.UserID
		payout.PurchaseID = &winner.ID
	}

	if err := repo.CreatePayout(ctx, payout); err != nil {
		return nil, fmt.Errorf("failed to record payout: %w", err)
	}

	if period == models.SquaresPeriodFinal {
		if err := s.transition(ctx, uow, game, models.SquaresGameStatusResolved, now); err != nil {
			return nil, err
		}
	} else {
		// Bump the version so concurrent score entries for the same period conflict
		game.UpdatedAt = now
		if err := repo.UpdateGame(ctx, game); err != nil {
			return nil, fmt.Errorf("failed to update squares game: %w", err)
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"gameID": gameID,
		"period": period,
		"row":    row,
		"col":    col,
		"amount": payout.Amount.String(),
		"sold":   winner != nil,
	}).Info("Squares period recorded")

	return payout, nil
}

// payWinner settles a period win immediately, charging the platform fee
func (s *squaresService) payWinner(ctx context.Context, uow UnitOfWork, game *models.SquaresGame, winner *models.SquaresPurchase, period models.SquaresPeriod, amount decimal.Decimal, now time.Time) (*models.Transaction, error) {
	tx, err := models.NewTransaction(winner.UserID, models.TransactionTypeBetWon, amount,
		fmt.Sprintf("%s winner on %s", period, game.Title))
	if err != nil {
		return nil, asRuleViolation(err)
	}
	tx.ForSquaresGame(game.ID)
	if err := RecordCompletedTransaction(ctx, uow, tx, s.config.PlatformFeeRate, now); err != nil {
		return nil, err
	}

	notify(uow.EventBus(), squaresNotification(winner.UserID, game, models.NotificationTypeSquaresPayout, "Your square hit!",
		fmt.Sprintf("Your square won %s on %q and paid %s after fees", period, game.Title, formatMoney(tx.NetAmount))))
	return tx, nil
}

// periodPayoutAmount is the period's share plus anything rolled over from an unsold
// previous period. FINAL takes whatever has not been paid so the total equals the pot.
func periodPayoutAmount(game *models.SquaresGame, period models.SquaresPeriod, previous []*models.SquaresPayout) decimal.Decimal {
	if period == models.SquaresPeriodFinal {
		paid := decimal.Zero
		for _, p := range previous {
			if p.WinnerUserID != nil {
				paid = paid.Add(p.Amount)
			}
		}
		return models.RoundMoney(game.TotalPot.Sub(paid))
	}

	amount := game.PeriodAmount(period)
	if n := len(previous); n > 0 && previous[n-1].WinnerUserID == nil {
		amount = amount.Add(previous[n-1].Amount)
	}
	return models.RoundMoney(amount)
}

// CancelGame refunds every square and cancels a board that has not gone live
func (s *squaresService) CancelGame(ctx context.Context, gameID, userID int64) (*models.SquaresGame, error) {
	now := s.clock.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	game, err := s.loadCreatorGame(ctx, uow, gameID, userID)
	if err != nil {
		return nil, err
	}
	if !game.CanTransitionTo(models.SquaresGameStatusCancelled) {
		return nil, newRuleViolation(CodeInvalidState, "squares game %d is %s and cannot be cancelled", gameID, game.Status)
	}

	purchases, err := uow.SquaresRepository().GetPurchases(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases: %w", err)
	}
	for _, p := range purchases {
		tx, err := models.NewTransaction(p.UserID, models.TransactionTypeBetRefund, p.Amount,
			fmt.Sprintf("Refund for square (%d,%d) on %s", p.Row, p.Col, game.Title))
		if err != nil {
			return nil, asRuleViolation(err)
		}
		tx.ForSquaresGame(gameID)
		if err := RecordCompletedTransaction(ctx, uow, tx, s.config.PlatformFeeRate, now); err != nil {
			return nil, err
		}
	}

	game.TotalPot = decimal.Zero
	if err := s.transition(ctx, uow, game, models.SquaresGameStatusCancelled, now); err != nil {
		return nil, err
	}

	for _, buyer := range purchaserIDs(purchases) {
		notify(uow.EventBus(), squaresNotification(buyer, game, models.NotificationTypeSquaresCancelled, "Board cancelled",
			fmt.Sprintf("%q was cancelled and your squares were refunded", game.Title)))
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"gameID":  gameID,
		"refunds": len(purchases),
	}).Info("Squares game cancelled")

	return game, nil
}

// GetGame returns a board with its sales and payouts
func (s *squaresService) GetGame(ctx context.Context, gameID int64) (*models.SquaresGameDetail, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	repo := uow.SquaresRepository()
	game, err := repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get squares game: %w", err)
	}
	if game == nil {
		return nil, newRuleViolation(CodeNotFound, "squares game %d not found", gameID)
	}

	purchases, err := repo.GetPurchases(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases: %w", err)
	}
	payouts, err := repo.GetPayouts(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts: %w", err)
	}

	return &models.SquaresGameDetail{
		Game:      game,
		Purchases: purchases,
		Payouts:   payouts,
	}, nil
}

func (s *squaresService) loadCreatorGame(ctx context.Context, uow UnitOfWork, gameID, userID int64) (*models.SquaresGame, error) {
	game, err := uow.SquaresRepository().GetGameForUpdate(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get squares game: %w", err)
	}
	if game == nil {
		return nil, newRuleViolation(CodeNotFound, "squares game %d not found", gameID)
	}
	if game.CreatorID != userID {
		return nil, newRuleViolation(CodeForbidden, "only the creator can manage squares game %d", gameID)
	}
	return game, nil
}

func (s *squaresService) transition(ctx context.Context, uow UnitOfWork, game *models.SquaresGame, next models.SquaresGameStatus, now time.Time) error {
	oldStatus := game.Status
	if err := game.TransitionTo(next, now); err != nil {
		return asRuleViolation(err)
	}
	if err := uow.SquaresRepository().UpdateGame(ctx, game); err != nil {
		return fmt.Errorf("failed to update squares game: %w", err)
	}
	uow.EventBus().Publish(events.SquaresGameStateChangedEvent{
		GameID:    game.ID,
		OldStatus: oldStatus,
		NewStatus: next,
	})
	return nil
}

func (s *squaresService) digitPermutation() []int32 {
	perm := s.shuffler.Perm(models.GridSize)
	digits := make([]int32, len(perm))
	for i, d := range perm {
		digits[i] = int32(d)
	}
	return digits
}

func purchaserIDs(purchases []*models.SquaresPurchase) []int64 {
	seen := make(map[int64]bool, len(purchases))
	var ids []int64
	for _, p := range purchases {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
