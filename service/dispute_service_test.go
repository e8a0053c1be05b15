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

func TestDisputeService_CanFileDispute(t *testing.T) {
	tests := []struct {
		name         string
		lastFiled    *time.Time
		pending      int
		expectedCode string
	}{
		{name: "never filed", pending: 0},
		{name: "cooldown elapsed", lastFiled: timePtr(TestNow.Add(-25 * time.Hour)), pending: 1},
		{name: "within cooldown", lastFiled: timePtr(TestNow.Add(-23 * time.Hour)), expectedCode: CodeCooldown},
		{name: "at pending cap", pending: 3, expectedCode: CodeLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := NewTestMocks()
			helper := NewMockHelper(mocks)
			helper.ExpectTransaction(false)

			mocks.DisputeRepo.On("GetLatestFiledAt", mock.Anything, int64(TestParticipant1)).Return(tt.lastFiled, nil)
			mocks.DisputeRepo.On("CountPendingByUser", mock.Anything, int64(TestParticipant1)).Return(tt.pending, nil).Maybe()

			cfg := SetupTestConfig(t)
			service := NewDisputeService(mocks.Factory, cfg, FixedClock{At: TestNow})
			err := service.CanFileDispute(context.Background(), TestParticipant1)

			if tt.expectedCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, ViolationCode(err))
		})
	}
}

func TestDisputeService_CanDisputeBet(t *testing.T) {
	tests := []struct {
		name         string
		status       models.BetStatus
		declared     bool
		updatedAgo   time.Duration
		openDisputes int
		expectedCode string
	}{
		{name: "pending resolution", status: models.BetStatusPendingResolution, declared: true, updatedAgo: time.Hour},
		{name: "resolved within filing window", status: models.BetStatusResolved, declared: true, updatedAgo: 6 * 24 * time.Hour},
		{name: "resolved after filing window", status: models.BetStatusResolved, declared: true, updatedAgo: 8 * 24 * time.Hour, expectedCode: CodeInvalidState},
		{name: "awaiting creator", status: models.BetStatusPendingResolution, declared: false, updatedAgo: time.Hour, expectedCode: CodeInvalidState},
		{name: "active", status: models.BetStatusActive, updatedAgo: time.Hour, expectedCode: CodeInvalidState},
		{name: "already disputed", status: models.BetStatusPendingResolution, declared: true, updatedAgo: time.Hour, openDisputes: 1, expectedCode: CodeInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := NewTestMocks()
			helper := NewMockHelper(mocks)
			helper.ExpectTransaction(false)

			bet := NewTestBet(tt.status)
			bet.UpdatedAt = TestNow.Add(-tt.updatedAgo)
			if tt.declared {
				winner := "Yes"
				bet.WinningSide = &winner
			}
			open := make([]*models.Dispute, tt.openDisputes)
			for i := range open {
				open[i] = &models.Dispute{ID: int64(i + 1), BetID: bet.ID, Status: models.DisputeStatusPending}
			}
			mocks.BetRepo.On("GetByID", mock.Anything, bet.ID).Return(bet, nil)
			mocks.DisputeRepo.On("GetOpenByBet", mock.Anything, bet.ID).Return(open, nil).Maybe()

			cfg := SetupTestConfig(t)
			service := NewDisputeService(mocks.Factory, cfg, FixedClock{At: TestNow})
			err := service.CanDisputeBet(context.Background(), bet.ID)

			if tt.expectedCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, ViolationCode(err))
		})
	}
}

func TestDisputeService_FileDispute(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(true)
	helper.ExpectAnyPublish()

	bet := resolvedTestBet()
	filer := NewTestParticipant(1, TestParticipant1, "No", "10")

	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.BetRepo.On("GetParticipant", mock.Anything, bet.ID, filer.UserID).Return(filer, nil)
	mocks.DisputeRepo.On("GetLatestFiledAt", mock.Anything, filer.UserID).Return(nil, nil)
	mocks.DisputeRepo.On("CountPendingByUser", mock.Anything, filer.UserID).Return(0, nil)
	mocks.DisputeRepo.On("GetOpenByBet", mock.Anything, bet.ID).Return([]*models.Dispute{}, nil)
	mocks.DisputeRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *models.Dispute) bool {
		return d.FiledBy == filer.UserID &&
			d.AgainstUserID == TestCreatorID &&
			d.BetStatusAtFiling == models.BetStatusPendingResolution
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Dispute).ID = TestDisputeID
	}).Return(nil)
	mocks.BetRepo.On("Update", mock.Anything, mock.MatchedBy(func(b *models.Bet) bool {
		return b.Status == models.BetStatusDisputed && b.HadDispute
	})).Return(nil)

	cfg := SetupTestConfig(t)
	service := NewDisputeService(mocks.Factory, cfg, FixedClock{At: TestNow})
	dispute, err := service.FileDispute(ctx, bet.ID, filer.UserID, models.DisputeReasonWrongOutcome, "score was 3-2")

	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPending, dispute.Status)

	notifications := mocks.PublishedNotifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, int64(TestCreatorID), notifications[0].UserID)
	assert.Equal(t, models.NotificationPriorityHigh, notifications[0].Priority)
	mocks.AssertAllExpectations(t)
}

func TestDisputeService_FileDispute_CreatorForbidden(t *testing.T) {
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(false)

	bet := resolvedTestBet()
	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.BetRepo.On("GetParticipant", mock.Anything, bet.ID, int64(TestCreatorID)).
		Return(NewTestParticipant(3, TestCreatorID, "Yes", "10"), nil)

	cfg := SetupTestConfig(t)
	service := NewDisputeService(mocks.Factory, cfg, FixedClock{At: TestNow})
	_, err := service.FileDispute(context.Background(), bet.ID, TestCreatorID, models.DisputeReasonOther, "")

	assert.Equal(t, CodeForbidden, ViolationCode(err))
}

func TestDisputeService_ResolveDispute_UpheldReopensBet(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(true)
	helper.ExpectAnyPublish()

	admin := NewTestUser(TestAdminID, "0", 5.0)
	admin.Role = models.UserRoleAdmin
	creator := NewTestUser(TestCreatorID, "0", 5.0)
	filer := NewTestUser(TestParticipant1, "0", 5.0)
	helper.ExpectUserLookup(admin)
	helper.ExpectUserLookup(creator)
	helper.ExpectUserLookup(filer)

	bet := resolvedTestBet()
	bet.Status = models.BetStatusDisputed
	bet.HadDispute = true
	dispute := &models.Dispute{
		ID:                TestDisputeID,
		BetID:             bet.ID,
		FiledBy:           filer.ID,
		AgainstUserID:     creator.ID,
		Reason:            models.DisputeReasonWrongOutcome,
		Status:            models.DisputeStatusUnderReview,
		BetStatusAtFiling: models.BetStatusPendingResolution,
	}
	acceptedAt := TestNow.Add(-time.Hour)
	accepted := NewTestParticipant(2, TestParticipant2, "Yes", "10")
	accepted.HasAcceptedResult = true
	accepted.AcceptedResultAt = &acceptedAt

	mocks.DisputeRepo.On("GetByIDForUpdate", mock.Anything, dispute.ID).Return(dispute, nil)
	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.DisputeRepo.On("Update", mock.Anything, dispute).Return(nil)
	mocks.TransactionRepo.On("CancelPendingByBet", mock.Anything, bet.ID, models.TransactionTypeBetWon).Return(int64(1), nil)
	mocks.TransactionRepo.On("CancelPendingByBet", mock.Anything, bet.ID, models.TransactionTypeBetRefund).Return(int64(0), nil)
	mocks.BetRepo.On("GetParticipants", mock.Anything, bet.ID).Return([]*models.Participant{
		NewTestParticipant(1, filer.ID, "No", "10"), accepted,
	}, nil)
	mocks.BetRepo.On("UpdateParticipant", mock.Anything, accepted).Return(nil)
	helper.ExpectTrustChange(creator.ID, 3.0, models.TrustReasonLostDisputeAsCreator)
	helper.ExpectTrustChange(filer.ID, 5.3, models.TrustReasonWonDispute)
	mocks.BetRepo.On("Update", mock.Anything, bet).Return(nil)

	cfg := SetupTestConfig(t)
	service := NewDisputeService(mocks.Factory, cfg, FixedClock{At: TestNow})
	resolved, err := service.ResolveDispute(ctx, dispute.ID, admin.ID, models.DisputeStatusResolvedForFiler, "wrong side declared", "")

	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolvedForFiler, resolved.Status)
	assert.Equal(t, models.BetStatusPendingResolution, bet.Status)
	assert.Nil(t, bet.WinningSide, "creator must declare again")
	assert.Nil(t, bet.DisputeWindowEndsAt)
	assert.False(t, accepted.HasAcceptedResult)
	assert.Len(t, mocks.PublishedNotifications(), 2)
	mocks.AssertAllExpectations(t)
}

func TestDisputeService_ResolveDispute_DismissedKeepsResult(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(true)
	helper.ExpectAnyPublish()

	admin := NewTestUser(TestAdminID, "0", 5.0)
	admin.Role = models.UserRoleSuperAdmin
	creator := NewTestUser(TestCreatorID, "0", 5.0)
	filer := NewTestUser(TestParticipant1, "0", 5.0)
	helper.ExpectUserLookup(admin)
	helper.ExpectUserLookup(creator)
	helper.ExpectUserLookup(filer)

	bet := resolvedTestBet()
	bet.Status = models.BetStatusDisputed
	dispute := &models.Dispute{
		ID:                TestDisputeID,
		BetID:             bet.ID,
		FiledBy:           filer.ID,
		AgainstUserID:     creator.ID,
		Reason:            models.DisputeReasonWrongOutcome,
		Status:            models.DisputeStatusPending,
		BetStatusAtFiling: models.BetStatusPendingResolution,
	}

	mocks.DisputeRepo.On("GetByIDForUpdate", mock.Anything, dispute.ID).Return(dispute, nil)
	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.DisputeRepo.On("Update", mock.Anything, dispute).Return(nil)
	helper.ExpectTrustChange(creator.ID, 5.2, models.TrustReasonDisputeDismissed)
	helper.ExpectTrustChange(filer.ID, 4.6, models.TrustReasonLostDisputeAsParticipant)
	mocks.BetRepo.On("Update", mock.Anything, bet).Return(nil)

	cfg := SetupTestConfig(t)
	service := NewDisputeService(mocks.Factory, cfg, FixedClock{At: TestNow})
	_, err := service.ResolveDispute(ctx, dispute.ID, admin.ID, models.DisputeStatusDismissed, "no evidence", "")

	require.NoError(t, err)
	assert.Equal(t, models.BetStatusPendingResolution, bet.Status)
	require.NotNil(t, bet.WinningSide)
	assert.Equal(t, "Yes", *bet.WinningSide)
	mocks.TransactionRepo.AssertNotCalled(t, "CancelPendingByBet", mock.Anything, mock.Anything, mock.Anything)
	mocks.AssertAllExpectations(t)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestDisputeService_ResolveDispute_UpheldOnPaidBetHoldsForCorrection(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(true)
	helper.ExpectAnyPublish()

	admin := NewTestUser(TestAdminID, "0", 5.0)
	admin.Role = models.UserRoleAdmin
	creator := NewTestUser(TestCreatorID, "0", 5.0)
	filer := NewTestUser(TestParticipant1, "0", 5.0)
	helper.ExpectUserLookup(admin)
	helper.ExpectUserLookup(creator)
	helper.ExpectUserLookup(filer)

	bet := resolvedTestBet()
	bet.Status = models.BetStatusDisputed
	bet.HadDispute = true
	windowEnded := TestNow.Add(-24 * time.Hour)
	bet.DisputeWindowEndsAt = &windowEnded
	bet.ResolvedAt = &windowEnded
	dispute := &models.Dispute{
		ID:                TestDisputeID,
		BetID:             bet.ID,
		FiledBy:           filer.ID,
		AgainstUserID:     creator.ID,
		Reason:            models.DisputeReasonWrongOutcome,
		Status:            models.DisputeStatusUnderReview,
		BetStatusAtFiling: models.BetStatusResolved,
	}

	mocks.DisputeRepo.On("GetByIDForUpdate", mock.Anything, dispute.ID).Return(dispute, nil)
	mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil)
	mocks.DisputeRepo.On("Update", mock.Anything, dispute).Return(nil)
	helper.ExpectTrustChange(creator.ID, 3.0, models.TrustReasonLostDisputeAsCreator)
	helper.ExpectTrustChange(filer.ID, 5.3, models.TrustReasonWonDispute)
	mocks.BetRepo.On("Update", mock.Anything, mock.MatchedBy(func(b *models.Bet) bool {
		return b.NeedsCorrection
	})).Return(nil)

	cfg := SetupTestConfig(t)
	service := NewDisputeService(mocks.Factory, cfg, FixedClock{At: TestNow})
	_, err := service.ResolveDispute(ctx, dispute.ID, admin.ID, models.DisputeStatusResolvedForFiler, "wrong side declared", "")

	require.NoError(t, err)
	assert.True(t, bet.NeedsCorrection)
	assert.Equal(t, models.BetStatusPendingResolution, bet.Status)
	require.NotNil(t, bet.WinningSide, "paid result is kept for the ledger correction")
	assert.Equal(t, "Yes", *bet.WinningSide)
	mocks.TransactionRepo.AssertNotCalled(t, "CancelPendingByBet", mock.Anything, mock.Anything, mock.Anything)

	notifications := mocks.PublishedNotifications()
	require.Len(t, notifications, 2)
	assert.Contains(t, notifications[0].Message, "an admin will correct the payouts")
	mocks.AssertAllExpectations(t)

	// The payout sweep must leave the bet alone until the correction is completed
	payouts := NewPayoutService(mocks.Factory, cfg, FixedClock{At: TestNow})
	mocks.BetRepo.On("GetByStatus", mock.Anything, models.BetStatusPendingResolution).Return([]*models.Bet{bet}, nil)
	mocks.BetRepo.On("GetByID", mock.Anything, bet.ID).Return(bet, nil)

	result, err := payouts.ProcessReadyPayouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Succeeded)
	assert.Equal(t, models.BetStatusPendingResolution, bet.Status)
	mocks.TransactionRepo.AssertNotCalled(t, "GetPendingByBet", mock.Anything, mock.Anything)
}

func TestDisputeService_CompleteCorrection(t *testing.T) {
	tests := []struct {
		name         string
		flagged      bool
		role         models.UserRole
		expectedCode string
	}{
		{name: "admin closes flagged bet", flagged: true, role: models.UserRoleAdmin},
		{name: "bet not flagged", flagged: false, role: models.UserRoleAdmin, expectedCode: CodeInvalidState},
		{name: "not an admin", flagged: true, role: models.UserRoleUser, expectedCode: CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := NewTestMocks()
			helper := NewMockHelper(mocks)
			helper.ExpectTransaction(tt.expectedCode == "")
			helper.ExpectAnyPublish()

			admin := NewTestUser(TestAdminID, "0", 5.0)
			admin.Role = tt.role
			helper.ExpectUserLookup(admin)

			bet := resolvedTestBet()
			bet.HadDispute = true
			bet.NeedsCorrection = tt.flagged
			mocks.BetRepo.On("GetByIDForUpdate", mock.Anything, bet.ID).Return(bet, nil).Maybe()
			mocks.BetRepo.On("Update", mock.Anything, bet).Return(nil).Maybe()

			service := NewDisputeService(mocks.Factory, SetupTestConfig(t), FixedClock{At: TestNow})
			corrected, err := service.CompleteCorrection(context.Background(), bet.ID, admin.ID, "  refunded the losing side by hand ")

			if tt.expectedCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedCode, ViolationCode(err))
				mocks.BetRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, models.BetStatusResolved, corrected.Status)
			assert.False(t, corrected.NeedsCorrection)
			require.NotNil(t, corrected.ResolvedAt)
			assert.True(t, corrected.ResolvedAt.Equal(TestNow))
			require.NotNil(t, corrected.ResolutionReason)
			assert.Equal(t, "refunded the losing side by hand", *corrected.ResolutionReason)

			notifications := mocks.PublishedNotifications()
			require.Len(t, notifications, 1)
			assert.Equal(t, int64(TestCreatorID), notifications[0].UserID)
		})
	}
}
