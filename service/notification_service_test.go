package service

import (
	"context"
	"testing"

	"sidebet/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_ListNotifications_DefaultsLimit(t *testing.T) {
	mocks := NewTestMocks()
	helper := NewMockHelper(mocks)
	helper.ExpectTransaction(false)

	expected := []*models.Notification{{ID: 1, UserID: TestParticipant1, Type: models.NotificationTypeBetJoined}}
	mocks.NotificationRepo.On("GetByUser", mock.Anything, int64(TestParticipant1), true, defaultListLimit).Return(expected, nil)

	service := NewNotificationService(mocks.Factory, FixedClock{At: TestNow})
	notifications, err := service.ListNotifications(context.Background(), TestParticipant1, true, 0)

	require.NoError(t, err)
	assert.Equal(t, expected, notifications)
	mocks.AssertAllExpectations(t)
}

func TestNotificationService_MarkRead(t *testing.T) {
	tests := []struct {
		name         string
		repoErr      error
		expectedCode string
	}{
		{name: "marks read", repoErr: nil},
		{name: "someone else's notification", repoErr: models.ErrNotFound, expectedCode: CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := NewTestMocks()
			helper := NewMockHelper(mocks)
			helper.ExpectTransaction(tt.expectedCode == "")
			mocks.NotificationRepo.On("MarkRead", mock.Anything, int64(55), int64(TestParticipant1), TestNow).Return(tt.repoErr)

			service := NewNotificationService(mocks.Factory, FixedClock{At: TestNow})
			err := service.MarkRead(context.Background(), TestParticipant1, 55)

			if tt.expectedCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedCode, ViolationCode(err))
				mocks.UnitOfWork.AssertNotCalled(t, "Commit")
				return
			}
			require.NoError(t, err)
			mocks.AssertAllExpectations(t)
		})
	}
}
