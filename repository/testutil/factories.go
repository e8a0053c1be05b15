package testutil

import (
	"fmt"
	"time"

	"sidebet/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateTestUser creates a test user with default values
func CreateTestUser(username string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		Username:   username,
		Role:       models.UserRoleUser,
		Balance:    decimal.RequireFromString("100.00"),
		TrustScore: models.DefaultTrustScore,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CreateTestUserWithBalance creates a test user with a specific balance
func CreateTestUserWithBalance(username, balance string) *models.User {
	user := CreateTestUser(username)
	user.Balance = decimal.RequireFromString(balance)
	return user
}

// CreateTestBet creates an ACTIVE two-sided bet
func CreateTestBet(creatorID int64, deadline time.Time) *models.Bet {
	now := time.Now().UTC()
	return &models.Bet{
		CreatorID:   creatorID,
		Title:       fmt.Sprintf("Test bet %s", uuid.NewString()[:8]),
		Description: "integration",
		Sides:       []string{"Yes", "No"},
		Visibility:  models.BetVisibilityPublic,
		Status:      models.BetStatusActive,
		BetAmount:   decimal.RequireFromString("10.00"),
		TotalPot:    decimal.Zero,
		Deadline:    deadline.UTC(),
		PublishedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CreateTestParticipant creates a participant on side with amount
func CreateTestParticipant(betID, userID int64, side, amount string) *models.Participant {
	return &models.Participant{
		BetID:  betID,
		UserID: userID,
		Side:   side,
		Amount: decimal.RequireFromString(amount),
		Payout: decimal.Zero,
	}
}

// CreateTestTransaction creates a PENDING ledger entry
func CreateTestTransaction(userID int64, txType models.TransactionType, amount string) *models.Transaction {
	return &models.Transaction{
		UserID:      userID,
		Type:        txType,
		Status:      models.TransactionStatusPending,
		Amount:      decimal.RequireFromString(amount),
		PlatformFee: decimal.Zero,
		NetAmount:   decimal.Zero,
		Reference:   uuid.New(),
		Description: string(txType),
	}
}

// CreateTestSquaresGame creates an ACTIVE squares board with the default split
func CreateTestSquaresGame(creatorID int64) *models.SquaresGame {
	return &models.SquaresGame{
		CreatorID:         creatorID,
		Title:             "Championship squares",
		HomeTeam:          "Home",
		AwayTeam:          "Away",
		PricePerSquare:    decimal.RequireFromString("10.00"),
		Status:            models.SquaresGameStatusActive,
		PayoutPercents:    append([]int32(nil), models.DefaultPayoutPercents...),
		MaxSquaresPerUser: 5,
		TotalPot:          decimal.Zero,
	}
}
