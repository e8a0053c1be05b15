package repository

import (
	"context"
	"testing"
	"time"

	"sidebet/models"
	"sidebet/repository/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	userRepo := NewUserRepository(testDB.DB)
	repo := NewBetRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, testDB.DB.Healthy(ctx, 5*time.Second))

	creator := testutil.CreateTestUser("creator")
	require.NoError(t, userRepo.Create(ctx, creator))
	joiner := testutil.CreateTestUser("joiner")
	require.NoError(t, userRepo.Create(ctx, joiner))

	t.Run("create and get round trips sides", func(t *testing.T) {
		bet := testutil.CreateTestBet(creator.ID, now.Add(time.Hour))
		bet.Sides = []string{"Chiefs", "Eagles", "Push"}
		require.NoError(t, repo.Create(ctx, bet))
		assert.NotZero(t, bet.ID)
		assert.Equal(t, int64(1), bet.Version)

		found, err := repo.GetByID(ctx, bet.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, []string{"Chiefs", "Eagles", "Push"}, found.Sides)
		assert.Equal(t, models.BetStatusActive, found.Status)
		assert.True(t, found.Deadline.Equal(bet.Deadline))
		assert.Nil(t, found.WinningSide)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		bet := testutil.CreateTestBet(creator.ID, now.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, bet))

		first, err := repo.GetByID(ctx, bet.ID)
		require.NoError(t, err)
		second, err := repo.GetByID(ctx, bet.ID)
		require.NoError(t, err)

		first.TotalPot = decimal.RequireFromString("20.00")
		require.NoError(t, repo.Update(ctx, first))
		assert.Equal(t, int64(2), first.Version)

		second.TotalPot = decimal.RequireFromString("30.00")
		err = repo.Update(ctx, second)
		assert.ErrorIs(t, err, models.ErrConcurrentModification)

		found, err := repo.GetByID(ctx, bet.ID)
		require.NoError(t, err)
		assert.True(t, found.TotalPot.Equal(decimal.RequireFromString("20.00")))
	})

	t.Run("expired active bets", func(t *testing.T) {
		expired := testutil.CreateTestBet(creator.ID, now.Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, expired))
		open := testutil.CreateTestBet(creator.ID, now.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, open))

		bets, err := repo.GetExpiredActive(ctx, now)
		require.NoError(t, err)

		ids := betIDs(bets)
		assert.Contains(t, ids, expired.ID)
		assert.NotContains(t, ids, open.ID)
	})

	t.Run("overdue unresolved excludes declared and penalized bets", func(t *testing.T) {
		awaiting := createBetWith(t, repo, creator.ID, now.Add(-96*time.Hour), func(b *models.Bet) {
			b.Status = models.BetStatusPendingResolution
		})
		penalized := createBetWith(t, repo, creator.ID, now.Add(-96*time.Hour), func(b *models.Bet) {
			b.Status = models.BetStatusPendingResolution
			b.OverduePenalized = true
		})
		declared := createBetWith(t, repo, creator.ID, now.Add(-96*time.Hour), func(b *models.Bet) {
			b.Status = models.BetStatusPendingResolution
			winner := "Yes"
			b.WinningSide = &winner
		})

		bets, err := repo.GetOverdueUnresolved(ctx, now.Add(-72*time.Hour))
		require.NoError(t, err)

		ids := betIDs(bets)
		assert.Contains(t, ids, awaiting.ID)
		assert.NotContains(t, ids, penalized.ID)
		assert.NotContains(t, ids, declared.ID)
	})

	t.Run("participants", func(t *testing.T) {
		bet := testutil.CreateTestBet(creator.ID, now.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, bet))

		p := testutil.CreateTestParticipant(bet.ID, joiner.ID, "Yes", "10.00")
		require.NoError(t, repo.CreateParticipant(ctx, p))
		assert.NotZero(t, p.ID)

		dup := testutil.CreateTestParticipant(bet.ID, joiner.ID, "No", "10.00")
		assert.Error(t, repo.CreateParticipant(ctx, dup), "a user joins a bet once")

		count, err := repo.CountParticipants(ctx, bet.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		acceptedAt := now
		p.HasAcceptedResult = true
		p.AcceptedResultAt = &acceptedAt
		p.Payout = decimal.RequireFromString("19.40")
		require.NoError(t, repo.UpdateParticipant(ctx, p))

		found, err := repo.GetParticipant(ctx, bet.ID, joiner.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.True(t, found.HasAcceptedResult)
		assert.True(t, found.Payout.Equal(decimal.RequireFromString("19.40")))

		missing, err := repo.GetParticipant(ctx, bet.ID, creator.ID)
		require.NoError(t, err)
		assert.Nil(t, missing)

		bets, err := repo.ListByUser(ctx, joiner.ID, 50)
		require.NoError(t, err)
		assert.Contains(t, betIDs(bets), bet.ID)
	})

	t.Run("cancellation count ignores expiry cancellations", func(t *testing.T) {
		other := testutil.CreateTestUser("canceller")
		require.NoError(t, userRepo.Create(ctx, other))

		reasons := []string{"Cancelled by creator", "changed my mind", models.NoParticipantsReason}
		for _, reason := range reasons {
			r := reason
			createBetWith(t, repo, other.ID, now.Add(time.Hour), func(b *models.Bet) {
				b.Status = models.BetStatusCancelled
				b.ResolutionReason = &r
				b.UpdatedAt = now
			})
		}

		count, err := repo.CountCancelledByCreatorSince(ctx, other.ID, now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("cancellation count ignores discarded drafts", func(t *testing.T) {
		drafter := testutil.CreateTestUser("drafter")
		require.NoError(t, userRepo.Create(ctx, drafter))

		discarded := "Cancelled by creator"
		for i := 0; i < 3; i++ {
			draft := testutil.CreateTestBet(drafter.ID, now.Add(time.Hour))
			draft.Status = models.BetStatusDraft
			draft.PublishedAt = nil
			require.NoError(t, repo.Create(ctx, draft))

			draft.Status = models.BetStatusCancelled
			draft.ResolutionReason = &discarded
			draft.UpdatedAt = now
			require.NoError(t, repo.Update(ctx, draft))
		}
		createBetWith(t, repo, drafter.ID, now.Add(time.Hour), func(b *models.Bet) {
			b.Status = models.BetStatusCancelled
			b.ResolutionReason = &discarded
			b.UpdatedAt = now
		})

		count, err := repo.CountCancelledByCreatorSince(ctx, drafter.ID, now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("publication and correction flags round trip", func(t *testing.T) {
		draft := testutil.CreateTestBet(creator.ID, now.Add(time.Hour))
		draft.Status = models.BetStatusDraft
		draft.PublishedAt = nil
		require.NoError(t, repo.Create(ctx, draft))

		found, err := repo.GetByID(ctx, draft.ID)
		require.NoError(t, err)
		assert.Nil(t, found.PublishedAt)
		assert.False(t, found.NeedsCorrection)

		require.NoError(t, found.TransitionTo(models.BetStatusActive, now))
		found.NeedsCorrection = true
		require.NoError(t, repo.Update(ctx, found))

		reloaded, err := repo.GetByID(ctx, draft.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.PublishedAt)
		assert.True(t, reloaded.PublishedAt.Equal(now))
		assert.True(t, reloaded.NeedsCorrection)
	})

	t.Run("clean resolutions ignore disputed bets", func(t *testing.T) {
		resolver := testutil.CreateTestUser("resolver")
		require.NoError(t, userRepo.Create(ctx, resolver))

		for _, hadDispute := range []bool{false, false, true} {
			disputed := hadDispute
			createBetWith(t, repo, resolver.ID, now.Add(-time.Hour), func(b *models.Bet) {
				b.Status = models.BetStatusResolved
				winner := "Yes"
				b.WinningSide = &winner
				b.HadDispute = disputed
			})
		}

		count, err := repo.CountCleanResolvedByCreator(ctx, resolver.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

// createBetWith inserts an ACTIVE bet and then applies mutate through Update,
// since Create only writes the opening columns
func createBetWith(t *testing.T, repo *BetRepository, creatorID int64, deadline time.Time, mutate func(*models.Bet)) *models.Bet {
	t.Helper()
	ctx := context.Background()
	bet := testutil.CreateTestBet(creatorID, deadline)
	require.NoError(t, repo.Create(ctx, bet))
	mutate(bet)
	require.NoError(t, repo.Update(ctx, bet))
	return bet
}

func betIDs(bets []*models.Bet) []int64 {
	ids := make([]int64, 0, len(bets))
	for _, b := range bets {
		ids = append(ids, b.ID)
	}
	return ids
}
