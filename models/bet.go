package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus represents the lifecycle state of a bet
type BetStatus string

const (
	BetStatusDraft             BetStatus = "DRAFT"
	BetStatusActive            BetStatus = "ACTIVE"
	BetStatusLive              BetStatus = "LIVE"
	BetStatusPendingResolution BetStatus = "PENDING_RESOLUTION"
	BetStatusDisputed          BetStatus = "DISPUTED"
	BetStatusResolved          BetStatus = "RESOLVED"
	BetStatusCancelled         BetStatus = "CANCELLED"
)

// NoParticipantsReason is recorded on bets cancelled by the expiry sweep
const NoParticipantsReason = "No participants joined before deadline"

var betTransitions = map[BetStatus][]BetStatus{
	BetStatusDraft:             {BetStatusActive, BetStatusCancelled},
	BetStatusActive:            {BetStatusLive, BetStatusPendingResolution, BetStatusCancelled},
	BetStatusLive:              {BetStatusPendingResolution},
	BetStatusPendingResolution: {BetStatusDisputed, BetStatusResolved},
	BetStatusDisputed:          {BetStatusPendingResolution},
	BetStatusResolved:          {BetStatusDisputed},
}

// IsValid checks if the status is a known value
func (s BetStatus) IsValid() bool {
	switch s {
	case BetStatusDraft, BetStatusActive, BetStatusLive, BetStatusPendingResolution,
		BetStatusDisputed, BetStatusResolved, BetStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo checks the lifecycle table
func (s BetStatus) CanTransitionTo(next BetStatus) bool {
	for _, allowed := range betTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowsWinningSide reports whether a bet in this status may carry a winning side
func (s BetStatus) AllowsWinningSide() bool {
	return s == BetStatusPendingResolution || s == BetStatusDisputed || s == BetStatusResolved
}

// BetVisibility controls who can discover a bet
type BetVisibility string

const (
	BetVisibilityPublic  BetVisibility = "PUBLIC"
	BetVisibilityPrivate BetVisibility = "PRIVATE"
)

// Bet represents a peer-to-peer wager
type Bet struct {
	ID                  int64           `db:"id"`
	CreatorID           int64           `db:"creator_id"`
	Title               string          `db:"title"`
	Description         string          `db:"description"`
	Sides               []string        `db:"sides"`
	Visibility          BetVisibility   `db:"visibility"`
	Status              BetStatus       `db:"status"`
	BetAmount           decimal.Decimal `db:"bet_amount"`
	TotalPot            decimal.Decimal `db:"total_pot"`
	Deadline            time.Time       `db:"deadline"`
	WinningSide         *string         `db:"winning_side"`
	DisputeWindowEndsAt *time.Time      `db:"dispute_window_ends_at"`
	ResolutionReason    *string         `db:"resolution_reason"`
	ResolvedAt          *time.Time      `db:"resolved_at"`
	HadDispute          bool            `db:"had_dispute"`
	OverduePenalized    bool            `db:"overdue_penalized"`
	PublishedAt         *time.Time      `db:"published_at"`
	NeedsCorrection     bool            `db:"needs_correction"`
	Version             int64           `db:"version"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

// NewBet builds a bet in DRAFT state after validating its fields
func NewBet(creatorID int64, title, description string, sides []string, visibility BetVisibility, amount decimal.Decimal, deadline time.Time) (*Bet, error) {
	cleaned := make([]string, 0, len(sides))
	for _, side := range sides {
		cleaned = append(cleaned, strings.TrimSpace(side))
	}

	bet := &Bet{
		CreatorID:   creatorID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Sides:       cleaned,
		Visibility:  visibility,
		Status:      BetStatusDraft,
		BetAmount:   amount,
		TotalPot:    decimal.Zero,
		Deadline:    deadline.UTC(),
	}
	if err := bet.Validate(); err != nil {
		return nil, err
	}
	return bet, nil
}

// Validate rejects malformed bets before they reach rule logic
func (b *Bet) Validate() error {
	if b.CreatorID == 0 {
		return validationError("bet creator is required")
	}
	if b.Title == "" {
		return validationError("bet title is required")
	}
	if len(b.Sides) < 2 {
		return validationError("bet needs at least two sides")
	}
	seen := make(map[string]bool, len(b.Sides))
	for _, side := range b.Sides {
		if side == "" {
			return validationError("bet sides cannot be empty")
		}
		key := NormalizeSide(side)
		if seen[key] {
			return validationError("duplicate side %q", side)
		}
		seen[key] = true
	}
	if b.Visibility != BetVisibilityPublic && b.Visibility != BetVisibilityPrivate {
		return validationError("unknown visibility %q", b.Visibility)
	}
	if !b.Status.IsValid() {
		return validationError("unknown bet status %q", b.Status)
	}
	if !b.BetAmount.IsPositive() {
		return validationError("bet amount must be positive")
	}
	if b.Deadline.IsZero() {
		return validationError("bet deadline is required")
	}
	if b.WinningSide != nil && !b.Status.AllowsWinningSide() {
		return validationError("bet in status %s cannot carry a winning side", b.Status)
	}
	return nil
}

// IsCreator checks if the user created the bet
func (b *Bet) IsCreator(userID int64) bool {
	return b.CreatorID == userID
}

// HasSide checks if side is one of the bet's options
func (b *Bet) HasSide(side string) bool {
	_, ok := b.CanonicalSide(side)
	return ok
}

// CanonicalSide returns the bet's spelling of side, matching loosely on case,
// accents and spacing
func (b *Bet) CanonicalSide(side string) (string, bool) {
	key := NormalizeSide(side)
	for _, s := range b.Sides {
		if NormalizeSide(s) == key {
			return s, true
		}
	}
	return "", false
}

// HasWinningSide checks if the outcome has been declared
func (b *Bet) HasWinningSide() bool {
	return b.WinningSide != nil && *b.WinningSide != ""
}

// IsActive checks if the bet is open for joining
func (b *Bet) IsActive() bool {
	return b.Status == BetStatusActive
}

// IsPendingResolution checks if the bet is waiting on resolution or payout
func (b *Bet) IsPendingResolution() bool {
	return b.Status == BetStatusPendingResolution
}

// IsTerminal checks if no further lifecycle transitions are expected
func (b *Bet) IsTerminal() bool {
	return b.Status == BetStatusCancelled || b.Status == BetStatusResolved
}

// IsExpired checks if joining has closed
func (b *Bet) IsExpired(now time.Time) bool {
	return b.Deadline.Before(now)
}

// CanAcceptParticipants checks if a new participant may join at now
func (b *Bet) CanAcceptParticipants(now time.Time) bool {
	return b.IsActive() && !b.IsExpired(now)
}

// DisputeWindowElapsed checks if the dispute window has closed
func (b *Bet) DisputeWindowElapsed(now time.Time) bool {
	return b.DisputeWindowEndsAt != nil && b.DisputeWindowEndsAt.Before(now)
}

// TransitionTo moves the bet to next if the lifecycle table allows it
func (b *Bet) TransitionTo(next BetStatus, now time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return validationError("bet %d cannot move from %s to %s", b.ID, b.Status, next)
	}
	if b.Status == BetStatusDraft && next == BetStatusActive {
		published := now
		b.PublishedAt = &published
	}
	b.Status = next
	b.UpdatedAt = now
	return nil
}

// BetDetail combines a bet with its participants
type BetDetail struct {
	Bet          *Bet           `json:"bet"`
	Participants []*Participant `json:"participants"`
}
