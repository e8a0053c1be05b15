package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of ledger entry
type TransactionType string

const (
	TransactionTypeDeposit         TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal      TransactionType = "WITHDRAWAL"
	TransactionTypeBetPlaced       TransactionType = "BET_PLACED"
	TransactionTypeBetWon          TransactionType = "BET_WON"
	TransactionTypeBetLost         TransactionType = "BET_LOST"
	TransactionTypeBetCancelled    TransactionType = "BET_CANCELLED"
	TransactionTypeBetRefund       TransactionType = "BET_REFUND"
	TransactionTypeAdminAdjustment TransactionType = "ADMIN_ADJUSTMENT"
)

// IsValid checks if the type is a known value
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeBetPlaced,
		TransactionTypeBetWon, TransactionTypeBetLost, TransactionTypeBetCancelled,
		TransactionTypeBetRefund, TransactionTypeAdminAdjustment:
		return true
	}
	return false
}

// IsDebit reports whether the transaction removes funds from the balance
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeWithdrawal || t == TransactionTypeBetPlaced || t == TransactionTypeBetLost
}

// TransactionStatus represents the settlement state of a ledger entry
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
)

// Transaction is a ledger entry. It is immutable once completed.
type Transaction struct {
	ID                   int64             `db:"id"`
	UserID               int64             `db:"user_id"`
	Type                 TransactionType   `db:"type"`
	Status               TransactionStatus `db:"status"`
	Amount               decimal.Decimal   `db:"amount"`
	PlatformFee          decimal.Decimal   `db:"platform_fee"`
	NetAmount            decimal.Decimal   `db:"net_amount"`
	BalanceBefore        decimal.Decimal   `db:"balance_before"`
	BalanceAfter         decimal.Decimal   `db:"balance_after"`
	RelatedBetID         *int64            `db:"related_bet_id"`
	RelatedSquaresGameID *int64            `db:"related_squares_game_id"`
	Reference            uuid.UUID         `db:"reference"`
	Description          string            `db:"description"`
	AvailableAt          *time.Time        `db:"available_at"`
	FailureReason        *string           `db:"failure_reason"`
	CreatedAt            time.Time         `db:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at"`
	CompletedAt          *time.Time        `db:"completed_at"`
}

// NewTransaction builds a PENDING ledger entry with a fresh idempotency reference
func NewTransaction(userID int64, txType TransactionType, amount decimal.Decimal, description string) (*Transaction, error) {
	tx := &Transaction{
		UserID:      userID,
		Type:        txType,
		Status:      TransactionStatusPending,
		Amount:      RoundMoney(amount),
		PlatformFee: decimal.Zero,
		NetAmount:   decimal.Zero,
		Reference:   uuid.New(),
		Description: description,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// Validate rejects malformed ledger entries
func (t *Transaction) Validate() error {
	if t.UserID == 0 {
		return validationError("transaction user is required")
	}
	if !t.Type.IsValid() {
		return validationError("unknown transaction type %q", t.Type)
	}
	if t.Type == TransactionTypeAdminAdjustment {
		if t.Amount.IsZero() {
			return validationError("adjustment amount cannot be zero")
		}
	} else if t.Amount.IsNegative() {
		return validationError("transaction amount cannot be negative")
	}
	return nil
}

// IsPending checks if the entry still awaits settlement
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// ForBet links the entry to a bet
func (t *Transaction) ForBet(betID int64) *Transaction {
	t.RelatedBetID = &betID
	return t
}

// ForSquaresGame links the entry to a squares game
func (t *Transaction) ForSquaresGame(gameID int64) *Transaction {
	t.RelatedSquaresGameID = &gameID
	return t
}

// Settlement computes the fee and signed balance change for the entry.
// Only BET_WON entries are charged the platform fee.
func (t *Transaction) Settlement(feeRate decimal.Decimal) (fee, net decimal.Decimal) {
	fee = decimal.Zero
	if t.Type == TransactionTypeBetWon {
		fee = PlatformFee(t.Amount, feeRate)
	}
	net = RoundMoney(t.Amount.Sub(fee))
	if t.Type.IsDebit() {
		net = net.Neg()
	}
	return fee, net
}

// Complete records the settlement snapshot and marks the entry COMPLETED
func (t *Transaction) Complete(balanceBefore decimal.Decimal, feeRate decimal.Decimal, now time.Time) {
	fee, net := t.Settlement(feeRate)
	t.PlatformFee = fee
	t.NetAmount = net
	t.BalanceBefore = balanceBefore
	t.BalanceAfter = RoundMoney(balanceBefore.Add(net))
	t.Status = TransactionStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
}
