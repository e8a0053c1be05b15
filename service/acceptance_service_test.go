package service

import (
	"context"
	"testing"
	"time"

	"sidebet/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func resolvedTestBet() *models.Bet {
	bet := NewTestBet(models.BetStatusPendingResolution)
	winner := "Yes"
	windowEnds := TestNow.Add(48 * time.Hour)
	bet.WinningSide = &winner
	bet.DisputeWindowEndsAt = &windowEnds
	return bet
}

func TestAcceptanceService_AcceptBetResult(t *testing.T) {
	tests := []struct {
		name           string
		alreadyAccepts []bool
		expectClosed   bool
		expectAccepted int
	}{
		{name: "first of two", alreadyAccepts: []bool{false, false}, expectClosed: false, expectAccepted: 1},
		{name: "last of two closes early", alreadyAccepts: []bool{false, true}, expectClosed: true, expectAccepted: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mocks := NewTestMocks()
			helper := NewMockHelper(mocks)
			helper.ExpectTransaction(true)
			helper.ExpectAnyPublish()

			bet := resolvedTestBet()
			p1 := NewTestParticipant(1, TestParticipant1, "Yes", "10")
			p2 := NewTestParticipant(2, TestParticipant2, "No", "10")
			p2.HasAcceptedResult = tt.alreadyAccepts[1]
			creator := NewTestParticipant(3, TestCreatorID, "Yes", "10")

			mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
			mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return([]*models.Participant{p1, p2, creator}, nil)
			mocks.BetRepo.On("UpdateParticipant", mock.Anything, p1).Return(nil)
			if tt.expectClosed {
				mocks.BetRepo.On("Update", mock.Anything, bet).Return(nil)
			}

			cfg := SetupTestConfig(t)
			service := NewAcceptanceService(mocks.Factory, cfg, FixedClock{At: TestNow})
			result, err := service.AcceptBetResult(ctx, bet.ID, TestParticipant1)

			require.NoError(t, err)
			assert.Equal(t, tt.expectAccepted, result.AcceptedCount)
			assert.Equal(t, 2, result.TotalCount, "the creator is not counted")
			assert.Equal(t, tt.expectClosed, result.ClosedEarly)
			assert.True(t, p1.HasAcceptedResult)

			if tt.expectClosed {
				require.NotNil(t, bet.DisputeWindowEndsAt)
				assert.Equal(t, TestNow.Add(-cfg.EarlyClosureBackdate), *bet.DisputeWindowEndsAt)
				assert.True(t, bet.DisputeWindowElapsed(TestNow))
				assert.Len(t, mocks.PublishedNotifications(), 3)
			} else {
				mocks.BetRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
				notifications := mocks.PublishedNotifications()
				require.Len(t, notifications, 1)
				assert.Equal(t, int64(TestCreatorID), notifications[0].UserID)
				assert.Contains(t, notifications[0].Message, "1 of 2 participants")
			}
			mocks.AssertAllExpectations(t)
		})
	}
}

func TestAcceptanceService_AcceptBetResult_Idempotent(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(false)

	bet := resolvedTestBet()
	acceptedAt := TestNow.Add(-time.Hour)
	p1 := NewTestParticipant(1, TestParticipant1, "Yes", "10")
	p1.HasAcceptedResult = true
	p1.AcceptedResultAt = &acceptedAt
	p2 := NewTestParticipant(2, TestParticipant2, "No", "10")

	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return([]*models.Participant{p1, p2}, nil)

	cfg := SetupTestConfig(t)
	service := NewAcceptanceService(mocks.Factory, cfg, FixedClock{At: TestNow})
	result, err := service.AcceptBetResult(ctx, bet.ID, TestParticipant1)

	require.NoError(t, err)
	assert.True(t, result.AlreadyAccepted)
	assert.Equal(t, 1, result.AcceptedCount)
	assert.Equal(t, acceptedAt, *p1.AcceptedResultAt)
	mocks.BetRepo.AssertNotCalled(t, "UpdateParticipant", mock.Anything, mock.Anything)
	mocks.UnitOfWork.AssertNotCalled(t, "Commit")
}

func TestAcceptanceService_AcceptBetResult_Rejections(t *testing.T) {
	tests := []struct {
		name         string
		userID       int64
		status       models.BetStatus
		declared     bool
		correction   bool
		expectedCode string
	}{
		{name: "not a participant", userID: 4242, status: models.BetStatusPendingResolution, declared: true, expectedCode: CodeForbidden},
		{name: "creator", userID: TestCreatorID, status: models.BetStatusPendingResolution, declared: true, expectedCode: CodeForbidden},
		{name: "wrong status", userID: TestParticipant1, status: models.BetStatusActive, declared: false, expectedCode: CodeInvalidState},
		{name: "no declared result", userID: TestParticipant1, status: models.BetStatusPendingResolution, declared: false, expectedCode: CodeInvalidState},
		{name: "awaiting manual correction", userID: TestParticipant1, status: models.BetStatusPendingResolution, declared: true, correction: true, expectedCode: CodeInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := NewTestMocks()
			helper := NewMockHelper(mocks)
			helper.ExpectTransaction(false)

			bet := NewTestBet(tt.status)
			if tt.declared {
				winner := "Yes"
				bet.WinningSide = &winner
			}
			bet.NeedsCorrection = tt.correction
			participants := []*models.Participant{
				NewTestParticipant(1, TestParticipant1, "Yes", "10"),
				NewTestParticipant(2, TestCreatorID, "No", "10"),
			}
			mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
			mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return(participants, nil)

			cfg := SetupTestConfig(t)
			service := NewAcceptanceService(mocks.Factory, cfg, FixedClock{At: TestNow})
			_, err := service.AcceptBetResult(context.Background(), bet.ID, tt.userID)

			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, ViolationCode(err))
		})
	}
}

func TestAcceptanceService_AcceptBetResult_NotFound(t *testing.T) {
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(false)
	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, int64(404)).Return(nil, nil)

	cfg := SetupTestConfig(t)
	service := NewAcceptanceService(mocks.Factory, cfg, FixedClock{At: TestNow})
	_, err := service.AcceptBetResult(context.Background(), 404, TestParticipant1)

	assert.Equal(t, CodeNotFound, ViolationCode(err))
}
