package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GridSize is the number of rows and columns on a squares board
const GridSize = 10

// SquaresGameStatus represents the lifecycle state of a squares board
type SquaresGameStatus string

const (
	SquaresGameStatusActive    SquaresGameStatus = "ACTIVE"
	SquaresGameStatusLocked    SquaresGameStatus = "LOCKED"
	SquaresGameStatusLive      SquaresGameStatus = "LIVE"
	SquaresGameStatusResolved  SquaresGameStatus = "RESOLVED"
	SquaresGameStatusCancelled SquaresGameStatus = "CANCELLED"
)

// SquaresPeriod identifies a scoring period that pays out
type SquaresPeriod string

const (
	SquaresPeriodQ1    SquaresPeriod = "Q1"
	SquaresPeriodQ2    SquaresPeriod = "Q2"
	SquaresPeriodQ3    SquaresPeriod = "Q3"
	SquaresPeriodFinal SquaresPeriod = "FINAL"
)

// SquaresPeriods lists payout periods in play order
var SquaresPeriods = []SquaresPeriod{SquaresPeriodQ1, SquaresPeriodQ2, SquaresPeriodQ3, SquaresPeriodFinal}

// DefaultPayoutPercents is the per-period split used when a game does not specify one
var DefaultPayoutPercents = []int32{20, 20, 20, 40}

// Index returns the period's position in play order, or -1
func (p SquaresPeriod) Index() int {
	for i, period := range SquaresPeriods {
		if period == p {
			return i
		}
	}
	return -1
}

// SquaresGame is a 10x10 pari-mutuel board tied to a sporting event
type SquaresGame struct {
	ID                int64             `db:"id"`
	CreatorID         int64             `db:"creator_id"`
	Title             string            `db:"title"`
	HomeTeam          string            `db:"home_team"`
	AwayTeam          string            `db:"away_team"`
	PricePerSquare    decimal.Decimal   `db:"price_per_square"`
	Status            SquaresGameStatus `db:"status"`
	RowNumbers        []int32           `db:"row_numbers"`
	ColNumbers        []int32           `db:"col_numbers"`
	PayoutPercents    []int32           `db:"payout_percents"`
	MaxSquaresPerUser int               `db:"max_squares_per_user"`
	TotalPot          decimal.Decimal   `db:"total_pot"`
	LockedAt          *time.Time        `db:"locked_at"`
	Version           int64             `db:"version"`
	CreatedAt         time.Time         `db:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at"`
}

// NewSquaresGame builds an ACTIVE board after validating its fields
func NewSquaresGame(creatorID int64, title, homeTeam, awayTeam string, price decimal.Decimal, maxPerUser int, payoutPercents []int32) (*SquaresGame, error) {
	if len(payoutPercents) == 0 {
		payoutPercents = append([]int32(nil), DefaultPayoutPercents...)
	}
	g := &SquaresGame{
		CreatorID:         creatorID,
		Title:             strings.TrimSpace(title),
		HomeTeam:          strings.TrimSpace(homeTeam),
		AwayTeam:          strings.TrimSpace(awayTeam),
		PricePerSquare:    price,
		Status:            SquaresGameStatusActive,
		PayoutPercents:    payoutPercents,
		MaxSquaresPerUser: maxPerUser,
		TotalPot:          decimal.Zero,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate rejects malformed boards
func (g *SquaresGame) Validate() error {
	if g.CreatorID == 0 {
		return validationError("squares creator is required")
	}
	if g.Title == "" || g.HomeTeam == "" || g.AwayTeam == "" {
		return validationError("squares title and teams are required")
	}
	if !g.PricePerSquare.IsPositive() {
		return validationError("price per square must be positive")
	}
	if g.MaxSquaresPerUser < 1 || g.MaxSquaresPerUser > GridSize*GridSize {
		return validationError("max squares per user must be between 1 and %d", GridSize*GridSize)
	}
	if len(g.PayoutPercents) != len(SquaresPeriods) {
		return validationError("payout percents must have %d entries", len(SquaresPeriods))
	}
	var sum int32
	for _, pct := range g.PayoutPercents {
		if pct < 0 {
			return validationError("payout percents cannot be negative")
		}
		sum += pct
	}
	if sum != 100 {
		return validationError("payout percents must sum to 100, got %d", sum)
	}
	if g.RowNumbers != nil && !IsDigitPermutation(g.RowNumbers) {
		return validationError("row numbers must be a permutation of 0-9")
	}
	if g.ColNumbers != nil && !IsDigitPermutation(g.ColNumbers) {
		return validationError("column numbers must be a permutation of 0-9")
	}
	return nil
}

// IsDigitPermutation checks that nums holds each digit 0-9 exactly once
func IsDigitPermutation(nums []int32) bool {
	if len(nums) != GridSize {
		return false
	}
	var seen [GridSize]bool
	for _, n := range nums {
		if n < 0 || n >= GridSize || seen[n] {
			return false
		}
		seen[n] = true
	}
	return true
}

// IsNumbered checks if the axis digits have been assigned
func (g *SquaresGame) IsNumbered() bool {
	return IsDigitPermutation(g.RowNumbers) && IsDigitPermutation(g.ColNumbers)
}

// WinningCell maps a score to the board cell whose digits match the last digit of
// each team's score. Rows carry home digits and columns carry away digits.
func (g *SquaresGame) WinningCell(homeScore, awayScore int) (row, col int, err error) {
	if !g.IsNumbered() {
		return 0, 0, validationError("squares game %d has no numbers assigned", g.ID)
	}
	if homeScore < 0 || awayScore < 0 {
		return 0, 0, validationError("scores cannot be negative")
	}
	homeDigit := int32(homeScore % 10)
	awayDigit := int32(awayScore % 10)
	row, col = -1, -1
	for i := 0; i < GridSize; i++ {
		if g.RowNumbers[i] == homeDigit {
			row = i
		}
		if g.ColNumbers[i] == awayDigit {
			col = i
		}
	}
	return row, col, nil
}

// PeriodAmount is the share of the pot for period before rollovers. The final period
// receives whatever the earlier rounded shares left so the total equals the pot.
func (g *SquaresGame) PeriodAmount(period SquaresPeriod) decimal.Decimal {
	idx := period.Index()
	if idx < 0 {
		return decimal.Zero
	}
	if period == SquaresPeriodFinal {
		paid := decimal.Zero
		for i := 0; i < idx; i++ {
			paid = paid.Add(g.percentShare(i))
		}
		return RoundMoney(g.TotalPot).Sub(paid)
	}
	return g.percentShare(idx)
}

func (g *SquaresGame) percentShare(idx int) decimal.Decimal {
	return RoundMoney(g.TotalPot.Mul(decimal.NewFromInt32(g.PayoutPercents[idx])).Div(decimal.NewFromInt(100)))
}

// SquaresPurchase is a sold cell on a board
type SquaresPurchase struct {
	ID            int64           `db:"id"`
	GameID        int64           `db:"game_id"`
	UserID        int64           `db:"user_id"`
	Row           int             `db:"row_index"`
	Col           int             `db:"col_index"`
	Amount        decimal.Decimal `db:"amount"`
	TransactionID *int64          `db:"transaction_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

// ValidateCell checks that a cell is on the board
func ValidateCell(row, col int) error {
	if row < 0 || row >= GridSize || col < 0 || col >= GridSize {
		return validationError("cell (%d,%d) is off the board", row, col)
	}
	return nil
}

// SquaresPayout records the winner of a scoring period
type SquaresPayout struct {
	ID            int64           `db:"id"`
	GameID        int64           `db:"game_id"`
	Period        SquaresPeriod   `db:"period"`
	HomeScore     int             `db:"home_score"`
	AwayScore     int             `db:"away_score"`
	WinnerUserID  *int64          `db:"winner_user_id"`
	PurchaseID    *int64          `db:"purchase_id"`
	Amount        decimal.Decimal `db:"amount"`
	TransactionID *int64          `db:"transaction_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

// SquaresGameDetail combines a board with its sales and payouts
type SquaresGameDetail struct {
	Game      *SquaresGame
	Purchases []*SquaresPurchase
	Payouts   []*SquaresPayout
}

// Owner returns the purchase at a cell, or nil when unsold
func (d *SquaresGameDetail) Owner(row, col int) *SquaresPurchase {
	for _, p := range d.Purchases {
		if p.Row == row && p.Col == col {
			return p
		}
	}
	return nil
}

var squaresTransitions = map[SquaresGameStatus][]SquaresGameStatus{
	SquaresGameStatusActive: {SquaresGameStatusLocked, SquaresGameStatusCancelled},
	SquaresGameStatusLocked: {SquaresGameStatusLive, SquaresGameStatusCancelled},
	SquaresGameStatusLive:   {SquaresGameStatusResolved},
}

// CanTransitionTo checks if the board may move to next
func (g *SquaresGame) CanTransitionTo(next SquaresGameStatus) bool {
	for _, allowed := range squaresTransitions[g.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the board to next
func (g *SquaresGame) TransitionTo(next SquaresGameStatus, now time.Time) error {
	if !g.CanTransitionTo(next) {
		return validationError("squares game %d cannot move from %s to %s", g.ID, g.Status, next)
	}
	g.Status = next
	g.UpdatedAt = now
	return nil
}
