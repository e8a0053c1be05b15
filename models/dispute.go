package models

import (
	"strings"
	"time"
)

// DisputeStatus represents the adjudication state of a dispute
type DisputeStatus string

const (
	DisputeStatusPending            DisputeStatus = "PENDING"
	DisputeStatusUnderReview        DisputeStatus = "UNDER_REVIEW"
	DisputeStatusResolvedForFiler   DisputeStatus = "RESOLVED_FOR_FILER"
	DisputeStatusResolvedForCreator DisputeStatus = "RESOLVED_FOR_CREATOR"
	DisputeStatusDismissed          DisputeStatus = "DISMISSED"
)

// IsTerminal checks if the status is an admin outcome
func (s DisputeStatus) IsTerminal() bool {
	return s == DisputeStatusResolvedForFiler || s == DisputeStatusResolvedForCreator || s == DisputeStatusDismissed
}

// DisputeReason categorizes why a dispute was filed
type DisputeReason string

const (
	DisputeReasonWrongOutcome        DisputeReason = "WRONG_OUTCOME"
	DisputeReasonCreatorUnresponsive DisputeReason = "CREATOR_UNRESPONSIVE"
	DisputeReasonUnclearTerms        DisputeReason = "UNCLEAR_TERMS"
	DisputeReasonOther               DisputeReason = "OTHER"
)

// IsValid checks if the reason is a known value
func (r DisputeReason) IsValid() bool {
	switch r {
	case DisputeReasonWrongOutcome, DisputeReasonCreatorUnresponsive, DisputeReasonUnclearTerms, DisputeReasonOther:
		return true
	}
	return false
}

// Dispute is a participant's challenge of a bet's declared outcome
type Dispute struct {
	ID                int64         `db:"id"`
	BetID             int64         `db:"bet_id"`
	FiledBy           int64         `db:"filed_by"`
	AgainstUserID     int64         `db:"against_user_id"`
	Reason            DisputeReason `db:"reason"`
	Details           string        `db:"details"`
	Status            DisputeStatus `db:"status"`
	BetStatusAtFiling BetStatus     `db:"bet_status_at_filing"`
	Resolution        *string       `db:"resolution"`
	AdminNotes        *string       `db:"admin_notes"`
	ResolvedBy        *int64        `db:"resolved_by"`
	ResolvedAt        *time.Time    `db:"resolved_at"`
	CreatedAt         time.Time     `db:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"`
}

// NewDispute builds a PENDING dispute against the bet's creator
func NewDispute(bet *Bet, filedBy int64, reason DisputeReason, details string) (*Dispute, error) {
	d := &Dispute{
		BetID:             bet.ID,
		FiledBy:           filedBy,
		AgainstUserID:     bet.CreatorID,
		Reason:            reason,
		Details:           strings.TrimSpace(details),
		Status:            DisputeStatusPending,
		BetStatusAtFiling: bet.Status,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate rejects malformed disputes
func (d *Dispute) Validate() error {
	if d.BetID == 0 {
		return validationError("dispute bet is required")
	}
	if d.FiledBy == 0 || d.AgainstUserID == 0 {
		return validationError("dispute parties are required")
	}
	if d.FiledBy == d.AgainstUserID {
		return validationError("cannot dispute your own bet")
	}
	if !d.Reason.IsValid() {
		return validationError("unknown dispute reason %q", d.Reason)
	}
	return nil
}

// IsOpen checks if the dispute still awaits an admin outcome
func (d *Dispute) IsOpen() bool {
	return d.Status == DisputeStatusPending || d.Status == DisputeStatusUnderReview
}

// Resolve records the admin outcome
func (d *Dispute) Resolve(outcome DisputeStatus, resolution string, adminID int64, notes string, now time.Time) error {
	if !outcome.IsTerminal() {
		return validationError("%s is not a dispute outcome", outcome)
	}
	if !d.IsOpen() {
		return validationError("dispute %d is already %s", d.ID, d.Status)
	}
	d.Status = outcome
	d.Resolution = &resolution
	if notes != "" {
		d.AdminNotes = &notes
	}
	d.ResolvedBy = &adminID
	d.ResolvedAt = &now
	d.UpdatedAt = now
	return nil
}
