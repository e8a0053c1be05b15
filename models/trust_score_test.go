package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesForScore(t *testing.T) {
	tests := []struct {
		score         float64
		tier          TrustTier
		maxStake      int64
		canCreate     bool
		canPublic     bool
		canWithdraw   bool
		withdrawDelay time.Duration
	}{
		{score: 0, tier: TrustTierRestricted, maxStake: 0},
		{score: 1.99, tier: TrustTierRestricted, maxStake: 0},
		{score: 2.0, tier: TrustTierLimited, maxStake: 25, canCreate: true, canWithdraw: true, withdrawDelay: 7 * 24 * time.Hour},
		{score: 3.99, tier: TrustTierLimited, maxStake: 25, canCreate: true, canWithdraw: true, withdrawDelay: 7 * 24 * time.Hour},
		{score: 4.0, tier: TrustTierNormal, maxStake: 100, canCreate: true, canPublic: true, canWithdraw: true, withdrawDelay: 5 * 24 * time.Hour},
		{score: 5.99, tier: TrustTierNormal, maxStake: 100, canCreate: true, canPublic: true, canWithdraw: true, withdrawDelay: 5 * 24 * time.Hour},
		{score: 6.0, tier: TrustTierTrusted, maxStake: 250, canCreate: true, canPublic: true, canWithdraw: true, withdrawDelay: 3 * 24 * time.Hour},
		{score: 7.99, tier: TrustTierTrusted, maxStake: 250, canCreate: true, canPublic: true, canWithdraw: true, withdrawDelay: 3 * 24 * time.Hour},
		{score: 8.0, tier: TrustTierHighlyTrusted, maxStake: 500, canCreate: true, canPublic: true, canWithdraw: true},
		{score: 10, tier: TrustTierHighlyTrusted, maxStake: 500, canCreate: true, canPublic: true, canWithdraw: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s at %.2f", tt.tier, tt.score), func(t *testing.T) {
			caps := CapabilitiesForScore(tt.score)

			assert.Equal(t, tt.tier, caps.Tier, "score %.2f", tt.score)
			assert.True(t, caps.MaxStake.Equal(decimal.NewFromInt(tt.maxStake)), "score %.2f: max stake %s", tt.score, caps.MaxStake)
			assert.Equal(t, tt.canCreate, caps.CanCreateBets, "score %.2f", tt.score)
			assert.Equal(t, tt.canPublic, caps.CanCreatePublicBets, "score %.2f", tt.score)
			assert.Equal(t, tt.canWithdraw, caps.CanWithdraw, "score %.2f", tt.score)
			assert.Equal(t, tt.withdrawDelay, caps.WithdrawalDelay, "score %.2f", tt.score)
		})
	}
}

func TestTrustCapabilities_AllowsStake(t *testing.T) {
	caps := CapabilitiesForScore(4.0)

	assert.True(t, caps.AllowsStake(decimal.RequireFromString("100.00")))
	assert.False(t, caps.AllowsStake(decimal.RequireFromString("100.01")))
	assert.False(t, CapabilitiesForScore(1.5).AllowsStake(decimal.RequireFromString("0.01")))
}
