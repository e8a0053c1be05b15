package service

import (
	"context"
	"time"

	"sidebet/events"
	"sidebet/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateBalance(ctx context.Context, id int64, newBalance decimal.Decimal) error {
	args := m.Called(ctx, id, newBalance)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateTrustScore(ctx context.Context, id int64, score float64) error {
	args := m.Called(ctx, id, score)
	return args.Error(0)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) GetByID(ctx context.Context, id int64) (*models.Bet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Bet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetRepository) Update(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) GetExpiredActive(ctx context.Context, now time.Time) ([]*models.Bet, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByStatus(ctx context.Context, status models.BetStatus) ([]*models.Bet, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetOverdueUnresolved(ctx context.Context, deadlineBefore time.Time) ([]*models.Bet, error) {
	args := m.Called(ctx, deadlineBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) ListOpenPublic(ctx context.Context, now time.Time, limit int) ([]*models.Bet, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) CountCleanResolvedByCreator(ctx context.Context, creatorID int64) (int, error) {
	args := m.Called(ctx, creatorID)
	return args.Int(0), args.Error(1)
}

func (m *MockBetRepository) CountCancelledByCreatorSince(ctx context.Context, creatorID int64, since time.Time) (int, error) {
	args := m.Called(ctx, creatorID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockBetRepository) CreateParticipant(ctx context.Context, participant *models.Participant) error {
	args := m.Called(ctx, participant)
	return args.Error(0)
}

func (m *MockBetRepository) GetParticipants(ctx context.Context, betID int64) ([]*models.Participant, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Participant), args.Error(1)
}

func (m *MockBetRepository) GetParticipant(ctx context.Context, betID, userID int64) (*models.Participant, error) {
	args := m.Called(ctx, betID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Participant), args.Error(1)
}

func (m *MockBetRepository) UpdateParticipant(ctx context.Context, participant *models.Participant) error {
	args := m.Called(ctx, participant)
	return args.Error(0)
}

func (m *MockBetRepository) CountParticipants(ctx context.Context, betID int64) (int, error) {
	args := m.Called(ctx, betID)
	return args.Int(0), args.Error(1)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetPendingByBet(ctx context.Context, betID int64) ([]*models.Transaction, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetDueWithdrawals(ctx context.Context, now time.Time) ([]*models.Transaction, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) TransitionStatus(ctx context.Context, id int64, from, to models.TransactionStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkCompleted(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkFailed(ctx context.Context, id int64, from models.TransactionStatus, reason string) error {
	args := m.Called(ctx, id, from, reason)
	return args.Error(0)
}

func (m *MockTransactionRepository) CancelPendingByBet(ctx context.Context, betID int64, txType models.TransactionType) (int64, error) {
	args := m.Called(ctx, betID, txType)
	return args.Get(0).(int64), args.Error(1)
}

// MockDisputeRepository is a mock implementation of DisputeRepository
type MockDisputeRepository struct {
	mock.Mock
}

func (m *MockDisputeRepository) Create(ctx context.Context, dispute *models.Dispute) error {
	args := m.Called(ctx, dispute)
	return args.Error(0)
}

func (m *MockDisputeRepository) GetByID(ctx context.Context, id int64) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *MockDisputeRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *MockDisputeRepository) Update(ctx context.Context, dispute *models.Dispute) error {
	args := m.Called(ctx, dispute)
	return args.Error(0)
}

func (m *MockDisputeRepository) GetOpenByBet(ctx context.Context, betID int64) ([]*models.Dispute, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Dispute), args.Error(1)
}

func (m *MockDisputeRepository) GetByStatus(ctx context.Context, status models.DisputeStatus, limit int) ([]*models.Dispute, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Dispute), args.Error(1)
}

func (m *MockDisputeRepository) GetByFiler(ctx context.Context, userID int64, limit int) ([]*models.Dispute, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Dispute), args.Error(1)
}

func (m *MockDisputeRepository) CountPendingByUser(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockDisputeRepository) GetLatestFiledAt(ctx context.Context, userID int64) (*time.Time, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

// MockTrustScoreHistoryRepository is a mock implementation of TrustScoreHistoryRepository
type MockTrustScoreHistoryRepository struct {
	mock.Mock
}

func (m *MockTrustScoreHistoryRepository) Record(ctx context.Context, history *models.TrustScoreHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockTrustScoreHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.TrustScoreHistory, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TrustScoreHistory), args.Error(1)
}

func (m *MockTrustScoreHistoryRepository) HasReason(ctx context.Context, userID int64, reason models.TrustReason) (bool, error) {
	args := m.Called(ctx, userID, reason)
	return args.Bool(0), args.Error(1)
}

// MockNotificationRepository is a mock implementation of NotificationRepository
type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockNotificationRepository) GetByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, id, userID int64, readAt time.Time) error {
	args := m.Called(ctx, id, userID, readAt)
	return args.Error(0)
}

// MockSquaresRepository is a mock implementation of SquaresRepository
type MockSquaresRepository struct {
	mock.Mock
}

func (m *MockSquaresRepository) CreateGame(ctx context.Context, game *models.SquaresGame) error {
	args := m.Called(ctx, game)
	return args.Error(0)
}

func (m *MockSquaresRepository) GetGame(ctx context.Context, id int64) (*models.SquaresGame, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SquaresGame), args.Error(1)
}

func (m *MockSquaresRepository) GetGameForUpdate(ctx context.Context, id int64) (*models.SquaresGame, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SquaresGame), args.Error(1)
}

func (m *MockSquaresRepository) UpdateGame(ctx context.Context, game *models.SquaresGame) error {
	args := m.Called(ctx, game)
	return args.Error(0)
}

func (m *MockSquaresRepository) CreatePurchase(ctx context.Context, purchase *models.SquaresPurchase) error {
	args := m.Called(ctx, purchase)
	return args.Error(0)
}

func (m *MockSquaresRepository) GetPurchases(ctx context.Context, gameID int64) ([]*models.SquaresPurchase, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SquaresPurchase), args.Error(1)
}

func (m *MockSquaresRepository) CountUserPurchases(ctx context.Context, gameID, userID int64) (int, error) {
	args := m.Called(ctx, gameID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockSquaresRepository) CreatePayout(ctx context.Context, payout *models.SquaresPayout) error {
	args := m.Called(ctx, payout)
	return args.Error(0)
}

func (m *MockSquaresRepository) GetPayouts(ctx context.Context, gameID int64) ([]*models.SquaresPayout, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SquaresPayout), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockListCache is a mock implementation of ListCache
type MockListCache struct {
	mock.Mock
}

func (m *MockListCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *MockListCache) Set(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockListCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	args := m.Called(ctx, prefix)
	return args.Error(0)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return whatever SetRepositories installed.
type MockUnitOfWork struct {
	mock.Mock
	userRepo         UserRepository
	betRepo          BetRepository
	transactionRepo  TransactionRepository
	disputeRepo      DisputeRepository
	trustHistoryRepo TrustScoreHistoryRepository
	notificationRepo NotificationRepository
	squaresRepo      SquaresRepository
	eventBus         EventPublisher
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository               { return m.userRepo }
func (m *MockUnitOfWork) BetRepository() BetRepository                 { return m.betRepo }
func (m *MockUnitOfWork) TransactionRepository() TransactionRepository { return m.transactionRepo }
func (m *MockUnitOfWork) DisputeRepository() DisputeRepository         { return m.disputeRepo }
func (m *MockUnitOfWork) TrustScoreHistoryRepository() TrustScoreHistoryRepository {
	return m.trustHistoryRepo
}
func (m *MockUnitOfWork) NotificationRepository() NotificationRepository { return m.notificationRepo }
func (m *MockUnitOfWork) SquaresRepository() SquaresRepository           { return m.squaresRepo }
func (m *MockUnitOfWork) EventBus() EventPublisher                       { return m.eventBus }

// SetRepositories installs the repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(mocks *TestMocks) {
	m.userRepo = mocks.UserRepo
	m.betRepo = mocks.BetRepo
	m.transactionRepo = mocks.TransactionRepo
	m.disputeRepo = mocks.DisputeRepo
	m.trustHistoryRepo = mocks.TrustHistoryRepo
	m.notificationRepo = mocks.NotificationRepo
	m.squaresRepo = mocks.SquaresRepo
	m.eventBus = mocks.EventPublisher
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
