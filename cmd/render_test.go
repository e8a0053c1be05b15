package cmd

import (
	"bytes"
	"testing"
	"time"

	"sidebet/models"
	"sidebet/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderSweepResults_AddsTotalRow(t *testing.T) {
	var out bytes.Buffer

	renderSweepResults(&out, []*service.SweepResult{
		{Name: "expire_bets", Examined: 4, Succeeded: 3, Skipped: 1},
		{Name: "ready_payouts", Examined: 2, Succeeded: 1, Failed: 1},
	})

	text := out.String()
	assert.Contains(t, text, "expire_bets")
	assert.Contains(t, text, "ready_payouts")
	assert.Regexp(t, `total\D+6\D+4\D+1\D+1\D`, text)
}

func TestRenderTrustProfile(t *testing.T) {
	var out bytes.Buffer

	renderTrustProfile(&out, &service.TrustProfile{
		UserID: 7,
		Score:  8.25,
		Capabilities: models.TrustCapabilities{
			Tier:          models.TrustTierTrusted,
			CanWithdraw:   true,
			MaxStake:      decimal.RequireFromString("500"),
			CanCreateBets: true,
		},
	})

	assert.Contains(t, out.String(), "User 7  trust 8.25  tier TRUSTED")
	assert.Contains(t, out.String(), "max stake 500.00")
}

func TestRenderNotifications_MarksRead(t *testing.T) {
	var out bytes.Buffer
	readAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	renderNotifications(&out, []*models.Notification{
		{ID: 1, Type: models.NotificationTypeDisputeFiled, Title: "Dispute filed", Priority: models.NotificationPriorityHigh, ReadAt: &readAt},
		{ID: 2, Type: models.NotificationTypeBetJoined, Title: "New participant", Priority: models.NotificationPriorityLow},
	})

	text := out.String()
	assert.Contains(t, text, "dispute_filed")
	assert.Contains(t, text, "Dispute filed")
	assert.Contains(t, text, "yes")
}
