package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Participant represents a user's stake on one side of a bet
type Participant struct {
	ID                int64           `db:"id"`
	BetID             int64           `db:"bet_id"`
	UserID            int64           `db:"user_id"`
	Side              string          `db:"side"`
	Amount            decimal.Decimal `db:"amount"`
	Payout            decimal.Decimal `db:"payout"`
	HasAcceptedResult bool            `db:"has_accepted_result"`
	AcceptedResultAt  *time.Time      `db:"accepted_result_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// NewParticipant builds a participant after validating its fields
func NewParticipant(betID, userID int64, side string, amount decimal.Decimal) (*Participant, error) {
	p := &Participant{
		BetID:  betID,
		UserID: userID,
		Side:   strings.TrimSpace(side),
		Amount: amount,
		Payout: decimal.Zero,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects malformed participants
func (p *Participant) Validate() error {
	if p.UserID == 0 {
		return validationError("participant user is required")
	}
	if p.Side == "" {
		return validationError("participant side is required")
	}
	if !p.Amount.IsPositive() {
		return validationError("participant stake must be positive")
	}
	return nil
}

// Accept records acceptance of the declared result. It returns false when the
// participant had already accepted, leaving the original timestamp untouched.
func (p *Participant) Accept(now time.Time) bool {
	if p.HasAcceptedResult {
		return false
	}
	p.HasAcceptedResult = true
	p.AcceptedResultAt = &now
	return true
}

// NonCreatorParticipants filters out the bet creator
func NonCreatorParticipants(bet *Bet, participants []*Participant) []*Participant {
	result := make([]*Participant, 0, len(participants))
	for _, p := range participants {
		if !bet.IsCreator(p.UserID) {
			result = append(result, p)
		}
	}
	return result
}

// CountAccepted returns how many participants have accepted the result
func CountAccepted(participants []*Participant) int {
	count := 0
	for _, p := range participants {
		if p.HasAcceptedResult {
			count++
		}
	}
	return count
}

// FindParticipant returns the participant for userID, or nil
func FindParticipant(participants []*Participant, userID int64) *Participant {
	for _, p := range participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}
