package service

import (
	"testing"

	"sidebet/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   string
		expected string
	}{
		{"0", "$0.00"},
		{"97", "$97.00"},
		{"1250", "$1,250.00"},
		{"3.005", "$3.01"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatMoney(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestNotifyParticipants_DeduplicatesCreator(t *testing.T) {
	mocks := NewTestMocks()
	mocks.EventPublisher.On("Publish", mock.Anything).Return()

	bet := NewTestBet(models.BetStatusResolved)
	participants := []*models.Participant{
		NewTestParticipant(1, TestParticipant1, "Yes", "10"),
		NewTestParticipant(2, TestCreatorID, "No", "10"),
	}
	notifyParticipants(mocks.EventPublisher, bet, participants, func(userID int64) models.Notification {
		return betNotification(userID, bet, models.NotificationTypeBetResolved, "Bet resolved", "done")
	})

	notifications := mocks.PublishedNotifications()
	require.Len(t, notifications, 2)
	assert.Equal(t, int64(TestParticipant1), notifications[0].UserID)
	assert.Equal(t, int64(TestCreatorID), notifications[1].UserID)
	assert.Equal(t, models.NotificationPriorityNormal, notifications[0].Priority)
}
