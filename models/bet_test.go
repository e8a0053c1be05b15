package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBet_TransitionToActiveRecordsPublication(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bet, err := NewBet(1, "Lakers win tonight", "", []string{"Yes", "No"}, BetVisibilityPrivate, decimal.NewFromInt(10), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, bet.PublishedAt)

	require.NoError(t, bet.TransitionTo(BetStatusActive, now))
	require.NotNil(t, bet.PublishedAt)
	assert.True(t, bet.PublishedAt.Equal(now))

	require.NoError(t, bet.TransitionTo(BetStatusCancelled, now.Add(time.Minute)))
	assert.True(t, bet.PublishedAt.Equal(now), "cancelling keeps the publication time")
}
