package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinTrustScore     = 0.0
	MaxTrustScore     = 10.0
	DefaultTrustScore = 5.0
)

// TrustReason names the behavior behind a trust score change
type TrustReason string

const (
	TrustReasonFailedTransaction        TrustReason = "FAILED_TRANSACTION"
	TrustReasonLostDisputeAsCreator     TrustReason = "LOST_DISPUTE_AS_CREATOR"
	TrustReasonCancellationAbuse        TrustReason = "CANCELLATION_ABUSE"
	TrustReasonCancelledAfterJoins      TrustReason = "CANCELLED_AFTER_JOINS"
	TrustReasonExpiredUnresolved        TrustReason = "EXPIRED_UNRESOLVED"
	TrustReasonLostDisputeAsParticipant TrustReason = "LOST_DISPUTE_AS_PARTICIPANT"
	TrustReasonCancelledBeforeJoins     TrustReason = "CANCELLED_BEFORE_JOINS"
	TrustReasonSlowResolution           TrustReason = "SLOW_RESOLUTION"
	TrustReasonCleanResolution          TrustReason = "CLEAN_RESOLUTION"
	TrustReasonSuccessfulWithdrawal     TrustReason = "SUCCESSFUL_WITHDRAWAL"
	TrustReasonSuccessfulDeposit        TrustReason = "SUCCESSFUL_DEPOSIT"
	TrustReasonWonDispute               TrustReason = "WON_DISPUTE"
	TrustReasonDisputeDismissed         TrustReason = "DISPUTE_DISMISSED"
	TrustReasonMilestone10              TrustReason = "MILESTONE_10_CLEAN_BETS"
	TrustReasonMilestone25              TrustReason = "MILESTONE_25_CLEAN_BETS"
	TrustReasonMilestone50              TrustReason = "MILESTONE_50_CLEAN_BETS"
	TrustReasonAdminAdjustment          TrustReason = "ADMIN_ADJUSTMENT"
)

// TrustDeltas is the fixed point table for every scored behavior
var TrustDeltas = map[TrustReason]float64{
	TrustReasonFailedTransaction:        -3.0,
	TrustReasonLostDisputeAsCreator:     -2.0,
	TrustReasonCancellationAbuse:        -2.0,
	TrustReasonCancelledAfterJoins:      -0.6,
	TrustReasonExpiredUnresolved:        -0.8,
	TrustReasonLostDisputeAsParticipant: -0.4,
	TrustReasonCancelledBeforeJoins:     -0.2,
	TrustReasonSlowResolution:           -0.1,
	TrustReasonCleanResolution:          0.2,
	TrustReasonSuccessfulWithdrawal:     0.15,
	TrustReasonSuccessfulDeposit:        0.10,
	TrustReasonWonDispute:               0.3,
	TrustReasonDisputeDismissed:         0.2,
	TrustReasonMilestone10:              0.5,
	TrustReasonMilestone25:              1.0,
	TrustReasonMilestone50:              1.5,
}

// CleanBetMilestones maps lifetime clean-resolved bet counts to their one-time bonus
var CleanBetMilestones = map[int]TrustReason{
	10: TrustReasonMilestone10,
	25: TrustReasonMilestone25,
	50: TrustReasonMilestone50,
}

// ClampTrustScore bounds a score to [0,10] and rounds it to two decimals
func ClampTrustScore(score float64) float64 {
	score = math.Max(MinTrustScore, math.Min(MaxTrustScore, score))
	return math.Round(score*100) / 100
}

// TrustScoreHistory is an append-only audit row for a trust score change
type TrustScoreHistory struct {
	ID                   int64       `db:"id"`
	UserID               int64       `db:"user_id"`
	Delta                float64     `db:"delta"`
	PreviousScore        float64     `db:"previous_score"`
	NewScore             float64     `db:"new_score"`
	Reason               TrustReason `db:"reason"`
	RelatedBetID         *int64      `db:"related_bet_id"`
	RelatedTransactionID *int64      `db:"related_transaction_id"`
	RelatedDisputeID     *int64      `db:"related_dispute_id"`
	CreatedAt            time.Time   `db:"created_at"`
}

// TrustTier groups scores into capability bands
type TrustTier string

const (
	TrustTierRestricted    TrustTier = "RESTRICTED"
	TrustTierLimited       TrustTier = "LIMITED"
	TrustTierNormal        TrustTier = "NORMAL"
	TrustTierTrusted       TrustTier = "TRUSTED"
	TrustTierHighlyTrusted TrustTier = "HIGHLY_TRUSTED"
)

// TrustCapabilities are the read-only gates derived from a trust score
type TrustCapabilities struct {
	Tier                TrustTier
	CanCreateBets       bool
	CanCreatePublicBets bool
	CanWithdraw         bool
	WithdrawalDelay     time.Duration
	MaxStake            decimal.Decimal
}

const day = 24 * time.Hour

// CapabilitiesForScore derives capability gates from a trust score
func CapabilitiesForScore(score float64) TrustCapabilities {
	switch {
	case score < 2.0:
		return TrustCapabilities{
			Tier:     TrustTierRestricted,
			MaxStake: decimal.Zero,
		}
	case score < 4.0:
		return TrustCapabilities{
			Tier:            TrustTierLimited,
			CanCreateBets:   true,
			CanWithdraw:     true,
			WithdrawalDelay: 7 * day,
			MaxStake:        decimal.NewFromInt(25),
		}
	case score < 6.0:
		return TrustCapabilities{
			Tier:                TrustTierNormal,
			CanCreateBets:       true,
			CanCreatePublicBets: true,
			CanWithdraw:         true,
			WithdrawalDelay:     5 * day,
			MaxStake:            decimal.NewFromInt(100),
		}
	case score < 8.0:
		return TrustCapabilities{
			Tier:                TrustTierTrusted,
			CanCreateBets:       true,
			CanCreatePublicBets: true,
			CanWithdraw:         true,
			WithdrawalDelay:     3 * day,
			MaxStake:            decimal.NewFromInt(250),
		}
	default:
		return TrustCapabilities{
			Tier:                TrustTierHighlyTrusted,
			CanCreateBets:       true,
			CanCreatePublicBets: true,
			CanWithdraw:         true,
			WithdrawalDelay:     0,
			MaxStake:            decimal.NewFromInt(500),
		}
	}
}

// AllowsStake checks a stake against the tier maximum
func (c TrustCapabilities) AllowsStake(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(c.MaxStake)
}
