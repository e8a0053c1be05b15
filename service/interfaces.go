package service

import (
	"context"
	"time"

	"sidebet/events"
	"sidebet/models"

	"github.com/shopspring/decimal"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by ID, returning nil when not found
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByIDForUpdate retrieves a user and locks the row until the transaction ends
	GetByIDForUpdate(ctx context.Context, id int64) (*models.User, error)

	// Create inserts a new user
	Create(ctx context.Context, user *models.User) error

	// UpdateBalance sets a user's balance
	UpdateBalance(ctx context.Context, id int64, newBalance decimal.Decimal) error

	// UpdateTrustScore sets a user's trust score
	UpdateTrustScore(ctx context.Context, id int64, score float64) error
}

// BetRepository defines the interface for bet and participant data access
type BetRepository interface {
	// Core bet operations
	Create(ctx context.Context, bet *models.Bet) error
	GetByID(ctx context.Context, id int64) (*models.Bet, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Bet, error)

	// Update writes the bet if its version still matches and bumps the version.
	// Returns models.ErrConcurrentModification when another writer got there first.
	Update(ctx context.Context, bet *models.Bet) error

	// Sweep queries
	GetExpiredActive(ctx context.Context, now time.Time) ([]*models.Bet, error)
	GetByStatus(ctx context.Context, status models.BetStatus) ([]*models.Bet, error)
	GetOverdueUnresolved(ctx context.Context, deadlineBefore time.Time) ([]*models.Bet, error)

	// Listing
	ListOpenPublic(ctx context.Context, now time.Time, limit int) ([]*models.Bet, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error)

	// Creator history used for trust scoring
	CountCleanResolvedByCreator(ctx context.Context, creatorID int64) (int, error)
	CountCancelledByCreatorSince(ctx context.Context, creatorID int64, since time.Time) (int, error)

	// Participant operations
	CreateParticipant(ctx context.Context, participant *models.Participant) error
	GetParticipants(ctx context.Context, betID int64) ([]*models.Participant, error)
	GetParticipant(ctx context.Context, betID, userID int64) (*models.Participant, error)
	UpdateParticipant(ctx context.Context, participant *models.Participant) error
	CountParticipants(ctx context.Context, betID int64) (int, error)
}

// TransactionRepository defines the interface for ledger data access
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
	GetPendingByBet(ctx context.Context, betID int64) ([]*models.Transaction, error)
	GetDueWithdrawals(ctx context.Context, now time.Time) ([]*models.Transaction, error)

	// TransitionStatus moves a transaction from one status to another only if it is
	// still in the expected status. Returns models.ErrConcurrentModification otherwise.
	TransitionStatus(ctx context.Context, id int64, from, to models.TransactionStatus) error

	// MarkCompleted writes the settlement snapshot of a PROCESSING transaction
	MarkCompleted(ctx context.Context, tx *models.Transaction) error

	// MarkFailed fails a transaction still in the expected status
	MarkFailed(ctx context.Context, id int64, from models.TransactionStatus, reason string) error

	// CancelPendingByBet cancels every PENDING transaction of a type for a bet
	CancelPendingByBet(ctx context.Context, betID int64, txType models.TransactionType) (int64, error)
}

// DisputeRepository defines the interface for dispute data access
type DisputeRepository interface {
	Create(ctx context.Context, dispute *models.Dispute) error
	GetByID(ctx context.Context, id int64) (*models.Dispute, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Dispute, error)
	Update(ctx context.Context, dispute *models.Dispute) error

	// GetOpenByBet returns PENDING and UNDER_REVIEW disputes for a bet
	GetOpenByBet(ctx context.Context, betID int64) ([]*models.Dispute, error)
	GetByStatus(ctx context.Context, status models.DisputeStatus, limit int) ([]*models.Dispute, error)
	GetByFiler(ctx context.Context, userID int64, limit int) ([]*models.Dispute, error)

	// CountPendingByUser counts PENDING disputes filed by a user
	CountPendingByUser(ctx context.Context, userID int64) (int, error)

	// GetLatestFiledAt returns when the user last filed a dispute, or nil
	GetLatestFiledAt(ctx context.Context, userID int64) (*time.Time, error)
}

// TrustScoreHistoryRepository defines the interface for the trust audit trail
type TrustScoreHistoryRepository interface {
	Record(ctx context.Context, history *models.TrustScoreHistory) error
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.TrustScoreHistory, error)
	HasReason(ctx context.Context, userID int64, reason models.TrustReason) (bool, error)
}

// NotificationRepository defines the interface for the in-app inbox
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, userID int64, readAt time.Time) error
}

// SquaresRepository defines the interface for squares boards, sales and payouts
type SquaresRepository interface {
	CreateGame(ctx context.Context, game *models.SquaresGame) error
	GetGame(ctx context.Context, id int64) (*models.SquaresGame, error)
	GetGameForUpdate(ctx context.Context, id int64) (*models.SquaresGame, error)

	// UpdateGame writes the game if its version still matches and bumps the version
	UpdateGame(ctx context.Context, game *models.SquaresGame) error

	CreatePurchase(ctx context.Context, purchase *models.SquaresPurchase) error
	GetPurchases(ctx context.Context, gameID int64) ([]*models.SquaresPurchase, error)
	CountUserPurchases(ctx context.Context, gameID, userID int64) (int, error)

	CreatePayout(ctx context.Context, payout *models.SquaresPayout) error
	GetPayouts(ctx context.Context, gameID int64) ([]*models.SquaresPayout, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// ListCache caches read-mostly listings. Implementations must be safe for concurrent use.
type ListCache interface {
	// Get decodes the cached value into dest and reports whether it was found
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	BetRepository() BetRepository
	TransactionRepository() TransactionRepository
	DisputeRepository() DisputeRepository
	TrustScoreHistoryRepository() TrustScoreHistoryRepository
	NotificationRepository() NotificationRepository
	SquaresRepository() SquaresRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// CreateBetRequest carries the inputs for a new bet
type CreateBetRequest struct {
	CreatorID   int64
	Title       string
	Description string
	Sides       []string
	Visibility  models.BetVisibility
	Amount      decimal.Decimal
	Deadline    time.Time

	// CreatorSide joins the creator on that side with Amount when set
	CreatorSide string

	// Draft keeps the bet unpublished
	Draft bool
}

// BetService defines the interface for bet creation, joining and resolution
type BetService interface {
	CreateBet(ctx context.Context, req CreateBetRequest) (*models.Bet, error)
	PublishBet(ctx context.Context, betID, userID int64) (*models.Bet, error)
	JoinBet(ctx context.Context, betID, userID int64, side string, amount decimal.Decimal) (*models.Participant, error)
	StartBet(ctx context.Context, betID, userID int64) (*models.Bet, error)

	// ResolveBet declares the winning side, queues payouts and opens the dispute window
	ResolveBet(ctx context.Context, betID, userID int64, winningSide string) (*models.Bet, error)

	// CancelBet cancels an unresolved bet and refunds every stake
	CancelBet(ctx context.Context, betID, userID int64, reason string) (*models.Bet, error)

	GetBet(ctx context.Context, betID int64) (*models.BetDetail, error)
	ListOpenBets(ctx context.Context, limit int) ([]*models.Bet, error)
	ListUserBets(ctx context.Context, userID int64, limit int) ([]*models.Bet, error)
}

// BetLifecycleService defines the interface for the periodic bet state sweep
type BetLifecycleService interface {
	// TransitionExpiredBets moves ACTIVE bets past their deadline to PENDING_RESOLUTION,
	// or CANCELLED when nobody joined
	TransitionExpiredBets(ctx context.Context) (*SweepResult, error)

	// PenalizeOverdueResolutions penalizes creators who never declared an outcome
	PenalizeOverdueResolutions(ctx context.Context) (*SweepResult, error)
}

// AcceptanceResult reports the state of result acceptance after a participant accepts
type AcceptanceResult struct {
	Bet             *models.Bet
	AcceptedCount   int
	TotalCount      int
	AlreadyAccepted bool
	ClosedEarly     bool
}

// AcceptanceService defines the interface for participants acknowledging a declared result
type AcceptanceService interface {
	AcceptBetResult(ctx context.Context, betID, userID int64) (*AcceptanceResult, error)
}

// DisputeService defines the interface for filing and adjudicating disputes
type DisputeService interface {
	// CanFileDispute returns a RuleViolation when the user is on cooldown or at the open-dispute cap
	CanFileDispute(ctx context.Context, userID int64) error

	// CanDisputeBet returns a RuleViolation when the bet cannot be disputed now
	CanDisputeBet(ctx context.Context, betID int64) error

	FileDispute(ctx context.Context, betID, userID int64, reason models.DisputeReason, details string) (*models.Dispute, error)
	StartReview(ctx context.Context, disputeID, adminID int64) (*models.Dispute, error)
	ResolveDispute(ctx context.Context, disputeID, adminID int64, outcome models.DisputeStatus, resolution, notes string) (*models.Dispute, error)

	// CompleteCorrection marks an overturned paid bet RESOLVED after the ledger was fixed by hand
	CompleteCorrection(ctx context.Context, betID, adminID int64, notes string) (*models.Bet, error)

	GetDispute(ctx context.Context, disputeID int64) (*models.Dispute, error)
	ListUserDisputes(ctx context.Context, userID int64, limit int) ([]*models.Dispute, error)
	ListOpenDisputes(ctx context.Context, limit int) ([]*models.Dispute, error)
}

// PayoutService defines the interface for the periodic payout sweep
type PayoutService interface {
	// ProcessReadyPayouts settles every bet whose dispute window elapsed
	ProcessReadyPayouts(ctx context.Context) (*SweepResult, error)
}

// TrustProfile is a user's score with the capabilities it grants
type TrustProfile struct {
	UserID       int64
	Score        float64
	Capabilities models.TrustCapabilities
}

// TrustScoreService defines the interface for reading and adjusting trust scores
type TrustScoreService interface {
	GetTrustProfile(ctx context.Context, userID int64) (*TrustProfile, error)
	GetHistory(ctx context.Context, userID int64, limit int) ([]*models.TrustScoreHistory, error)
	AdjustTrustScore(ctx context.Context, adminID, userID int64, delta float64) (*models.TrustScoreHistory, error)
}

// WalletService defines the interface for deposits, withdrawals and admin ledger operations
type WalletService interface {
	Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Transaction, error)
	RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Transaction, error)
	ProcessDueWithdrawals(ctx context.Context) (*SweepResult, error)
	FailTransaction(ctx context.Context, adminID, transactionID int64, reason string) (*models.Transaction, error)
	AdjustBalance(ctx context.Context, adminID, userID int64, amount decimal.Decimal, note string) (*models.Transaction, error)
	GetTransactions(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
}

// CreateSquaresGameRequest carries the inputs for a new squares board
type CreateSquaresGameRequest struct {
	CreatorID         int64
	Title             string
	HomeTeam          string
	AwayTeam          string
	PricePerSquare    decimal.Decimal
	MaxSquaresPerUser int
	PayoutPercents    []int32
}

// SquaresService defines the interface for squares boards
type SquaresService interface {
	CreateGame(ctx context.Context, req CreateSquaresGameRequest) (*models.SquaresGame, error)
	PurchaseSquare(ctx context.Context, gameID, userID int64, row, col int) (*models.SquaresPurchase, error)
	LockGame(ctx context.Context, gameID, userID int64) (*models.SquaresGame, error)
	StartGame(ctx context.Context, gameID, userID int64) (*models.SquaresGame, error)
	RecordPeriodScore(ctx context.Context, gameID, userID int64, period models.SquaresPeriod, homeScore, awayScore int) (*models.SquaresPayout, error)
	CancelGame(ctx context.Context, gameID, userID int64) (*models.SquaresGame, error)
	GetGame(ctx context.Context, gameID int64) (*models.SquaresGameDetail, error)
}

// NotificationService defines the interface for reading the in-app inbox
type NotificationService interface {
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
}
