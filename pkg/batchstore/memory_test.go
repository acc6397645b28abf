package batchstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

func TestMemoryStoreCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	b, err := s.Create(ctx, 5, Meta{Label: "august", Mode: "standard"})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)

	assert.Equal(t, batch.StatePending, b.State)
	assert.Equal(t, 5, b.Total)
	assert.Equal(t, "august", b.Label)
	assert.Equal(t, "standard", b.Mode)
	assert.Equal(t, 0, b.CompletedCount)
	assert.Equal(t, 0, b.FailedCount)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := s.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetStatus(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetResults(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.ApplyItemOutcome(ctx, "nope", batch.WorkItem{}), ErrNotFound)
	assert.ErrorIs(t, s.Transition(ctx, "nope", batch.StateProcessing), ErrNotFound)
	assert.ErrorIs(t, s.SetActivity(ctx, "nope", "x"), ErrNotFound)
	assert.ErrorIs(t, s.Fail(ctx, "nope", "x"), ErrNotFound)
}

func TestMemoryStoreApplyItemOutcome(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b, err := s.Create(ctx, 3, Meta{})
	require.NoError(t, err)

	require.NoError(t, s.ApplyItemOutcome(ctx, b.ID, batch.WorkItem{Status: batch.ItemCompleted}))
	require.NoError(t, s.ApplyItemOutcome(ctx, b.ID, batch.WorkItem{Status: batch.ItemFailed}))
	require.NoError(t, s.ApplyItemOutcome(ctx, b.ID, batch.WorkItem{Status: batch.ItemTimedOut}))

	got, err := s.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedCount)
	// Timeouts count as failures.
	assert.Equal(t, 2, got.FailedCount)
	assert.True(t, got.UpdatedAt.After(b.UpdatedAt) || got.UpdatedAt.Equal(b.UpdatedAt))
}

func TestMemoryStoreConcurrentOutcomes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b, err := s.Create(ctx, 100, Meta{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := batch.ItemCompleted
			if i%4 == 0 {
				status = batch.ItemFailed
			}
			_ = s.ApplyItemOutcome(ctx, b.ID, batch.WorkItem{Index: i, Status: status})
		}(i)
	}
	wg.Wait()

	got, err := s.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, got.CompletedCount)
	assert.Equal(t, 25, got.FailedCount)
}

func TestMemoryStoreTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b, err := s.Create(ctx, 1, Meta{})
	require.NoError(t, err)

	require.NoError(t, s.Transition(ctx, b.ID, batch.StateProcessing))
	require.NoError(t, s.Transition(ctx, b.ID, batch.StateCompleted))

	// Terminal states never regress.
	err = s.Transition(ctx, b.ID, batch.StateProcessing)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	err = s.Fail(ctx, b.ID, "too late")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	got, err := s.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.StateCompleted, got.State)
	assert.Empty(t, got.FailureDetail)
}

func TestMemoryStoreFail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b, err := s.Create(ctx, 2, Meta{})
	require.NoError(t, err)

	require.NoError(t, s.Transition(ctx, b.ID, batch.StateProcessing))
	require.NoError(t, s.Fail(ctx, b.ID, "store unreachable"))

	got, err := s.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.StateFailed, got.State)
	assert.Equal(t, "store unreachable", got.FailureDetail)
}

func TestMemoryStoreResultsGating(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b, err := s.Create(ctx, 2, Meta{})
	require.NoError(t, err)

	// Results are unavailable until the batch is terminal.
	_, err = s.GetResults(ctx, b.ID)
	assert.ErrorIs(t, err, ErrResultsNotReady)

	require.NoError(t, s.Transition(ctx, b.ID, batch.StateProcessing))
	_, err = s.GetResults(ctx, b.ID)
	assert.ErrorIs(t, err, ErrResultsNotReady)

	results := []batch.ItemResult{
		{Index: 0, Status: batch.ItemCompleted, ResultRef: "r0"},
		{Index: 1, Status: batch.ItemFailed, ErrorDetail: "boom"},
	}
	require.NoError(t, s.PutResults(ctx, b.ID, results))
	require.NoError(t, s.Transition(ctx, b.ID, batch.StateCompleted))

	got, err := s.GetResults(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r0", got[0].ResultRef)
	assert.Equal(t, "boom", got[1].ErrorDetail)

	// Returned slice is a copy.
	got[0].ResultRef = "mutated"
	again, err := s.GetResults(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "r0", again[0].ResultRef)
}

func TestMemoryStoreSetActivityAndMetrics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b, err := s.Create(ctx, 1, Meta{})
	require.NoError(t, err)

	require.NoError(t, s.SetActivity(ctx, b.ID, "processing item 1 of 1"))
	require.NoError(t, s.SetMetrics(ctx, b.ID, batch.Metrics{MinDurationMs: 10, MaxDurationMs: 20, AvgDurationMs: 15}))

	got, err := s.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "processing item 1 of 1", got.CurrentActivity)
	assert.Equal(t, int64(15), got.Metrics.AvgDurationMs)
}
