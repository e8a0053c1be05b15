package service

import (
	"context"
	"testing"
	"time"

	"sidebet/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pendingWin(userID int64, amount string) *models.Transaction {
	betID := int64(TestBetID)
	return &models.Transaction{
		ID:           TestTransactionID,
		UserID:       userID,
		Type:         models.TransactionTypeBetWon,
		Status:       models.TransactionStatusPending,
		Amount:       decimal.RequireFromString(amount),
		RelatedBetID: &betID,
	}
}

func TestPayoutService_ProcessReadyPayouts(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(true)
	helper.ExpectAnyPublish()

	bet := resolvedTestBet()
	bet.TotalPot = decimal.NewFromInt(100)
	windowEnded := TestNow.Add(-time.Minute)
	bet.DisputeWindowEndsAt = &windowEnded

	winner := NewTestUser(TestParticipant1, "0.00", 5.0)
	helper.ExpectUserLookup(winner)
	helper.ExpectUserLookup(NewTestUser(TestCreatorID, "0.00", 5.0))
	winnerEntry := NewTestParticipant(1, winner.ID, "Yes", "50")
	tx := pendingWin(winner.ID, "100.00")

	mocks.BetRepo.On("GetByStatus", mock.Anything, models.BetStatusPendingResolution).Return([]*models.Bet{bet}, nil)
	mocks.BetRepo.On("GetByID", mock.Anything, bet.ID).Return(bet, nil)
	mocks.DisputeRepo.On("GetOpenByBet", mock.Anything, bet.ID).Return([]*models.Dispute{}, nil)
	mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return([]*models.Participant{
		winnerEntry, NewTestParticipant(2, TestParticipant2, "No", "50"),
	}, nil)
	mocks.TransactionRepo.On("GetPendingByBet", mock.Anything, bet.ID).Return([]*models.Transaction{tx}, nil).Once()
	mocks.TransactionRepo.On("GetPendingByBet", mock.Anything, bet.ID).Return([]*models.Transaction{}, nil).Once()

	mocks.TransactionRepo.On("TransitionStatus", mock.Anything, tx.ID,
		models.TransactionStatusPending, models.TransactionStatusProcessing).Return(nil)
	mocks.TransactionRepo.On("MarkCompleted", mock.Anything, tx).Return(nil)
	helper.ExpectBalanceUpdate(winner.ID, decimal.RequireFromString("97.00"))
	mocks.BetRepo.On("GetParticipant", mock.Anything, bet.ID, winner.ID).Return(winnerEntry, nil)
	mocks.BetRepo.On("UpdateParticipant", mock.Anything, winnerEntry).Return(nil)

	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.BetRepo.On("Update", mock.Anything, bet).Return(nil)
	mocks.BetRepo.On("CountCleanResolvedByCreator", mock.Anything, int64(TestCreatorID)).Return(1, nil)
	helper.ExpectTrustChange(TestCreatorID, 5.2, models.TrustReasonCleanResolution)

	service := NewPayoutService(mocks.Factory, SetupTestConfig(t), FixedClock{At: TestNow})
	result, err := service.ProcessReadyPayouts(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, models.BetStatusResolved, bet.Status)
	assert.True(t, tx.PlatformFee.Equal(decimal.RequireFromString("3.00")))
	assert.True(t, tx.NetAmount.Equal(decimal.RequireFromString("97.00")))
	assert.True(t, winnerEntry.Payout.Equal(decimal.RequireFromString("97.00")))

	notifications := mocks.PublishedNotifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationTypePayoutReceived, notifications[0].Type)
	assert.Contains(t, notifications[0].Message, "$97.00")
	mocks.AssertAllExpectations(t)
}

func TestPayoutService_ProcessReadyPayouts_SkipsUnready(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *models.Bet)
		open    int
		mayLoad bool
	}{
		{name: "awaiting creator", mutate: func(b *models.Bet) { b.WinningSide = nil }},
		{name: "dispute window open", mutate: func(b *models.Bet) {}, mayLoad: true},
		{name: "open dispute", mutate: func(b *models.Bet) {
			ended := TestNow.Add(-time.Minute)
			b.DisputeWindowEndsAt = &ended
		}, open: 1},
		{name: "awaiting manual correction", mutate: func(b *models.Bet) {
			ended := TestNow.Add(-time.Minute)
			b.DisputeWindowEndsAt = &ended
			b.HadDispute = true
			b.NeedsCorrection = true
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := NewTestMocks()
			helper := NewMockHelper(mocks)
			helper.ExpectTransaction(false)

			bet := resolvedTestBet()
			tt.mutate(bet)
			open := make([]*models.Dispute, tt.open)
			for i := range open {
				open[i] = &models.Dispute{ID: TestDisputeID, BetID: bet.ID, Status: models.DisputeStatusPending}
			}

			mocks.BetRepo.On("GetByStatus", mock.Anything, models.BetStatusPendingResolution).Return([]*models.Bet{bet}, nil)
			mocks.BetRepo.On("GetByID", mock.Anything, bet.ID).Return(bet, nil)
			mocks.DisputeRepo.On("GetOpenByBet", mock.Anything, bet.ID).Return(open, nil).Maybe()
			mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return([]*models.Participant{
				NewTestParticipant(1, TestParticipant1, "Yes", "10"),
			}, nil).Maybe()

			service := NewPayoutService(mocks.Factory, SetupTestConfig(t), FixedClock{At: TestNow})
			result, err := service.ProcessReadyPayouts(context.Background())

			require.NoError(t, err)
			assert.Equal(t, 1, result.Skipped)
			mocks.TransactionRepo.AssertNotCalled(t, "GetPendingByBet", mock.Anything, mock.Anything)
			mocks.BetRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		})
	}
}

func TestPayoutService_ProcessReadyPayouts_CreatorOnlyBetSkipsWindow(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(true)
	helper.ExpectAnyPublish()

	bet := resolvedTestBet()
	bet.HadDispute = true
	mocks.BetRepo.On("GetByStatus", mock.Anything, models.BetStatusPendingResolution).Return([]*models.Bet{bet}, nil)
	mocks.BetRepo.On("GetByID", mock.Anything, bet.ID).Return(bet, nil)
	mocks.DisputeRepo.On("GetOpenByBet", mock.Anything, bet.ID).Return([]*models.Dispute{}, nil)
	mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return([]*models.Participant{
		NewTestParticipant(1, TestCreatorID, "Yes", "10"),
	}, nil)
	mocks.TransactionRepo.On("GetPendingByBet", mock.Anything, bet.ID).Return([]*models.Transaction{}, nil)
	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.BetRepo.On("Update", mock.Anything, bet).Return(nil)

	service := NewPayoutService(mocks.Factory, SetupTestConfig(t), FixedClock{At: TestNow})
	result, err := service.ProcessReadyPayouts(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, models.BetStatusResolved, bet.Status)
	mocks.BetRepo.AssertNotCalled(t, "CountCleanResolvedByCreator", mock.Anything, mock.Anything)
}

func TestPayoutService_ProcessReadyPayouts_PartialFailure(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(true)
	helper.ExpectAnyPublish()

	bet := resolvedTestBet()
	bet.TotalPot = decimal.NewFromInt(100)
	windowEnded := TestNow.Add(-time.Minute)
	bet.DisputeWindowEndsAt = &windowEnded

	stuck := pendingWin(TestParticipant1, "50.00")
	paid := pendingWin(TestParticipant2, "50.00")
	paid.ID = TestTransactionID + 1
	paidEntry := NewTestParticipant(2, TestParticipant2, "Yes", "25")
	winner := NewTestUser(TestParticipant2, "0.00", 5.0)
	helper.ExpectUserLookup(winner)

	mocks.BetRepo.On("GetByStatus", mock.Anything, models.BetStatusPendingResolution).Return([]*models.Bet{bet}, nil)
	mocks.BetRepo.On("GetByID", mock.Anything, bet.ID).Return(bet, nil)
	mocks.DisputeRepo.On("GetOpenByBet", mock.Anything, bet.ID).Return([]*models.Dispute{}, nil)
	mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return([]*models.Participant{
		NewTestParticipant(1, TestParticipant1, "Yes", "25"), paidEntry,
		NewTestParticipant(3, TestCreatorID, "No", "50"),
	}, nil)
	mocks.TransactionRepo.On("GetPendingByBet", mock.Anything, bet.ID).Return([]*models.Transaction{stuck, paid}, nil).Once()

	mocks.TransactionRepo.On("TransitionStatus", mock.Anything, stuck.ID,
		models.TransactionStatusPending, models.TransactionStatusProcessing).Return(assert.AnError)
	mocks.TransactionRepo.On("TransitionStatus", mock.Anything, paid.ID,
		models.TransactionStatusPending, models.TransactionStatusProcessing).Return(nil)
	mocks.TransactionRepo.On("MarkCompleted", mock.Anything, paid).Return(nil)
	helper.ExpectBalanceUpdate(winner.ID, decimal.RequireFromString("48.50"))
	mocks.BetRepo.On("GetParticipant", mock.Anything, bet.ID, winner.ID).Return(paidEntry, nil)
	mocks.BetRepo.On("UpdateParticipant", mock.Anything, paidEntry).Return(nil)

	service := NewPayoutService(mocks.Factory, SetupTestConfig(t), FixedClock{At: TestNow})
	result, err := service.ProcessReadyPayouts(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Succeeded)
	assert.Equal(t, models.TransactionStatusCompleted, paid.Status)
	assert.True(t, paid.NetAmount.Equal(decimal.RequireFromString("48.50")))
	assert.True(t, paidEntry.Payout.Equal(decimal.RequireFromString("48.50")))
	assert.Equal(t, models.TransactionStatusPending, stuck.Status)
	assert.Equal(t, models.BetStatusPendingResolution, bet.Status)
	assert.Nil(t, bet.ResolvedAt)
	mocks.BetRepo.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything)
	mocks.BetRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	mocks.AssertAllExpectations(t)
}

func TestPayoutService_ProcessReadyPayouts_ZeroFeeMessage(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(true)
	helper.ExpectAnyPublish()

	bet := resolvedTestBet()
	windowEnded := TestNow.Add(-time.Minute)
	bet.DisputeWindowEndsAt = &windowEnded
	bet.HadDispute = true

	winner := NewTestUser(TestParticipant1, "0.00", 5.0)
	helper.ExpectUserLookup(winner)
	winnerEntry := NewTestParticipant(1, winner.ID, "Yes", "10")
	tx := pendingWin(winner.ID, "20.00")

	mocks.BetRepo.On("GetByStatus", mock.Anything, models.BetStatusPendingResolution).Return([]*models.Bet{bet}, nil)
	mocks.BetRepo.On("GetByID", mock.Anything, bet.ID).Return(bet, nil)
	mocks.DisputeRepo.On("GetOpenByBet", mock.Anything, bet.ID).Return([]*models.Dispute{}, nil)
	mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return([]*models.Participant{
		winnerEntry, NewTestParticipant(2, TestParticipant2, "No", "10"),
	}, nil)
	mocks.TransactionRepo.On("GetPendingByBet", mock.Anything, bet.ID).Return([]*models.Transaction{tx}, nil).Once()
	mocks.TransactionRepo.On("GetPendingByBet", mock.Anything, bet.ID).Return([]*models.Transaction{}, nil).Once()
	mocks.TransactionRepo.On("TransitionStatus", mock.Anything, tx.ID,
		models.TransactionStatusPending, models.TransactionStatusProcessing).Return(nil)
	mocks.TransactionRepo.On("MarkCompleted", mock.Anything, tx).Return(nil)
	helper.ExpectBalanceUpdate(winner.ID, decimal.RequireFromString("20.00"))
	mocks.BetRepo.On("GetParticipant", mock.Anything, bet.ID, winner.ID).Return(winnerEntry, nil)
	mocks.BetRepo.On("UpdateParticipant", mock.Anything, winnerEntry).Return(nil)
	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.BetRepo.On("Update", mock.Anything, bet).Return(nil)

	cfg := SetupTestConfig(t)
	cfg.PlatformFeeRate = decimal.Zero
	service := NewPayoutService(mocks.Factory, cfg, FixedClock{At: TestNow})
	result, err := service.ProcessReadyPayouts(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.True(t, tx.PlatformFee.IsZero())

	notifications := mocks.PublishedNotifications()
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0].Message, "$20.00")
	assert.NotContains(t, notifications[0].Message, "platform fee")
	mocks.AssertAllExpectations(t)
}
