package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"sidebet/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSweep_CountsOutcomes(t *testing.T) {
	items := []int64{1, 2, 3, 4, 5}
	process := func(_ context.Context, id int64) error {
		switch id {
		case 2:
			return errItemSkipped
		case 3:
			return fmt.Errorf("failed to update bet: %w", models.ErrConcurrentModification)
		case 4:
			return errors.New("connection reset")
		}
		return nil
	}

	result, err := runSweep(context.Background(), "test", newSweepLimiter(0), items,
		func(id int64) int64 { return id }, process)

	require.NoError(t, err)
	assert.Equal(t, &SweepResult{Name: "test", Examined: 5, Succeeded: 2, Skipped: 2, Failed: 1}, result)
}

func TestRunSweep_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	processed := 0
	process := func(_ context.Context, _ int64) error {
		processed++
		cancel()
		return nil
	}

	result, err := runSweep(ctx, "test", newSweepLimiter(1), []int64{1, 2, 3},
		func(id int64) int64 { return id }, process)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, result.Succeeded)
}

func TestSweepResult_Add(t *testing.T) {
	total := &SweepResult{Name: "all", Examined: 1, Succeeded: 1}
	total.Add(&SweepResult{Examined: 3, Succeeded: 1, Skipped: 1, Failed: 1})
	total.Add(nil)

	assert.Equal(t, &SweepResult{Name: "all", Examined: 4, Succeeded: 2, Skipped: 1, Failed: 1}, total)
}
