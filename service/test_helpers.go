package service

import (
	"context"
	"testing"
	"time"

	"sidebet/config"
	"sidebet/events"
	"sidebet/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// Test IDs
const (
	TestCreatorID     = 1001
	TestParticipant1  = 2001
	TestParticipant2  = 2002
	TestAdminID       = 9001
	TestBetID         = 1
	TestDisputeID     = 50
	TestTransactionID = 700
	TestGameID        = 30
)

// TestNow is the fixed instant every test clock reports
var TestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// FixedClock always returns the same instant
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// TestMocks holds all mock repositories for easy access
type TestMocks struct {
	UserRepo         *MockUserRepository
	BetRepo          *MockBetRepository
	TransactionRepo  *MockTransactionRepository
	DisputeRepo      *MockDisputeRepository
	TrustHistoryRepo *MockTrustScoreHistoryRepository
	NotificationRepo *MockNotificationRepository
	SquaresRepo      *MockSquaresRepository
	EventPublisher   *MockEventPublisher
	UnitOfWork       *MockUnitOfWork
	Factory          *MockUnitOfWorkFactory
}

// NewTestMocks creates a new set of mocks with the factory handing out a single
// unit of work wired to the repositories
func NewTestMocks() *TestMocks {
	m := &TestMocks{
		UserRepo:         new(MockUserRepository),
		BetRepo:          new(MockBetRepository),
		TransactionRepo:  new(MockTransactionRepository),
		DisputeRepo:      new(MockDisputeRepository),
		TrustHistoryRepo: new(MockTrustScoreHistoryRepository),
		NotificationRepo: new(MockNotificationRepository),
		SquaresRepo:      new(MockSquaresRepository),
		EventPublisher:   new(MockEventPublisher),
		UnitOfWork:       new(MockUnitOfWork),
		Factory:          new(MockUnitOfWorkFactory),
	}
	m.UnitOfWork.SetRepositories(m)
	m.Factory.On("Create").Return(m.UnitOfWork)
	return m
}

// AssertAllExpectations asserts all mock expectations
func (m *TestMocks) AssertAllExpectations(t *testing.T) {
	m.UserRepo.AssertExpectations(t)
	m.BetRepo.AssertExpectations(t)
	m.TransactionRepo.AssertExpectations(t)
	m.DisputeRepo.AssertExpectations(t)
	m.TrustHistoryRepo.AssertExpectations(t)
	m.NotificationRepo.AssertExpectations(t)
	m.SquaresRepo.AssertExpectations(t)
	m.UnitOfWork.AssertExpectations(t)
}

// PublishedEvents returns the events passed to the unit of work bus
func (m *TestMocks) PublishedEvents() []any {
	var published []any
	for _, call := range m.EventPublisher.Calls {
		if call.Method == "Publish" {
			published = append(published, call.Arguments.Get(0))
		}
	}
	return published
}

// PublishedNotifications returns the notifications queued on the bus
func (m *TestMocks) PublishedNotifications() []models.Notification {
	var notifications []models.Notification
	for _, e := range m.PublishedEvents() {
		if n, ok := e.(events.NotificationEvent); ok {
			notifications = append(notifications, n.Notification)
		}
	}
	return notifications
}

// MockHelper provides common mock setup patterns
type MockHelper struct {
	mocks *TestMocks
	ctx   context.Context
}

// NewMockHelper creates a new mock helper
func NewMockHelper(mocks *TestMocks) *MockHelper {
	return &MockHelper{
		mocks: mocks,
		ctx:   context.Background(),
	}
}

// ExpectTransaction sets up Begin and Rollback, plus Commit when commits is true
func (h *MockHelper) ExpectTransaction(commits bool) {
	h.mocks.UnitOfWork.On("Begin", mock.Anything).Return(nil)
	h.mocks.UnitOfWork.On("Rollback").Return(nil).Maybe()
	if commits {
		h.mocks.UnitOfWork.On("Commit").Return(nil)
	}
}

// ExpectAnyPublish accepts every event published on the bus
func (h *MockHelper) ExpectAnyPublish() {
	h.mocks.EventPublisher.On("Publish", mock.Anything).Return()
}

// ExpectUserLookup sets up plain and locking user lookups
func (h *MockHelper) ExpectUserLookup(user *models.User) {
	h.mocks.UserRepo.On("GetByID", mock.Anything, user.ID).Return(user, nil).Maybe()
	h.mocks.UserRepo.On("GetByIDForUpdate", mock.Anything, user.ID).Return(user, nil).Maybe()
}

// ExpectTrustChange expects one trust score write and its history row
func (h *MockHelper) ExpectTrustChange(userID int64, newScore float64, reason models.TrustReason) {
	h.mocks.UserRepo.On("UpdateTrustScore", mock.Anything, userID, newScore).Return(nil).Once()
	h.mocks.TrustHistoryRepo.On("Record", mock.Anything, mock.MatchedBy(func(hist *models.TrustScoreHistory) bool {
		return hist.UserID == userID && hist.Reason == reason
	})).Return(nil).Once()
}

// ExpectCompletedTransaction expects a settled ledger entry and the balance write
func (h *MockHelper) ExpectCompletedTransaction(userID int64, txType models.TransactionType, newBalance decimal.Decimal) {
	h.mocks.TransactionRepo.On("Create", mock.Anything, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.UserID == userID && tx.Type == txType && tx.Status == models.TransactionStatusCompleted
	})).Return(nil).Once()
	h.ExpectBalanceUpdate(userID, newBalance)
}

// ExpectBalanceUpdate expects a balance write of exactly newBalance
func (h *MockHelper) ExpectBalanceUpdate(userID int64, newBalance decimal.Decimal) {
	h.mocks.UserRepo.On("UpdateBalance", mock.Anything, userID, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(newBalance)
	})).Return(nil).Once()
}

// NewTestUser builds a user with a balance and trust score
func NewTestUser(id int64, balance string, trust float64) *models.User {
	return &models.User{
		ID:         id,
		Username:   "user",
		Role:       models.UserRoleUser,
		Balance:    decimal.RequireFromString(balance),
		TrustScore: trust,
	}
}

// NewTestBet builds an ACTIVE public two-sided bet owned by TestCreatorID
func NewTestBet(status models.BetStatus) *models.Bet {
	return &models.Bet{
		ID:         TestBetID,
		CreatorID:  TestCreatorID,
		Title:      "Lakers win tonight",
		Sides:      []string{"Yes", "No"},
		Visibility: models.BetVisibilityPublic,
		Status:     status,
		BetAmount:  decimal.NewFromInt(10),
		TotalPot:   decimal.Zero,
		Deadline:   TestNow.Add(24 * time.Hour),
		Version:    1,
		CreatedAt:  TestNow.Add(-time.Hour),
		UpdatedAt:  TestNow.Add(-time.Hour),
	}
}

// NewTestParticipant builds a participant on TestBetID
func NewTestParticipant(id, userID int64, side, amount string) *models.Participant {
	return &models.Participant{
		ID:     id,
		BetID:  TestBetID,
		UserID: userID,
		Side:   side,
		Amount: decimal.RequireFromString(amount),
		Payout: decimal.Zero,
	}
}

// SetupTestConfig installs a test configuration for the current test
func SetupTestConfig(t *testing.T) *config.Config {
	testConfig := config.NewTestConfig()
	config.SetTestConfig(testConfig)

	t.Cleanup(func() {
		config.ResetConfig()
	})
	return testConfig
}
