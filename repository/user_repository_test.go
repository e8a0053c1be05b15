package repository

import (
	"context"
	"testing"

	"sidebet/models"
	"sidebet/repository/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		user := testutil.CreateTestUserWithBalance("alice", "125.50")
		require.NoError(t, repo.Create(ctx, user))
		assert.NotZero(t, user.ID)

		found, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "alice", found.Username)
		assert.Equal(t, models.UserRoleUser, found.Role)
		assert.True(t, found.Balance.Equal(decimal.RequireFromString("125.50")))
		assert.Equal(t, models.DefaultTrustScore, found.TrustScore)
	})

	t.Run("missing user returns nil", func(t *testing.T) {
		found, err := repo.GetByID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, found)

		locked, err := repo.GetByIDForUpdate(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, locked)
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, testutil.CreateTestUser("bob")))
		err := repo.Create(ctx, testutil.CreateTestUser("bob"))
		assert.Error(t, err)
	})

	t.Run("balance and trust updates", func(t *testing.T) {
		user := testutil.CreateTestUser("carol")
		require.NoError(t, repo.Create(ctx, user))

		require.NoError(t, repo.UpdateBalance(ctx, user.ID, decimal.RequireFromString("42.10")))
		require.NoError(t, repo.UpdateTrustScore(ctx, user.ID, 7.3))

		found, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, found.Balance.Equal(decimal.RequireFromString("42.10")))
		assert.InDelta(t, 7.3, found.TrustScore, 1e-9)
	})

	t.Run("negative balance violates constraint", func(t *testing.T) {
		user := testutil.CreateTestUser("dave")
		require.NoError(t, repo.Create(ctx, user))

		err := repo.UpdateBalance(ctx, user.ID, decimal.RequireFromString("-1"))
		assert.Error(t, err)
	})

	t.Run("updates on a missing user report not found", func(t *testing.T) {
		err := repo.UpdateBalance(ctx, 999999, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, models.ErrNotFound)

		err = repo.UpdateTrustScore(ctx, 999999, 5)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
