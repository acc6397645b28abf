package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

func specItems(n int) []batch.WorkItem {
	items := make([]batch.WorkItem, n)
	for i := range items {
		items[i] = batch.WorkItem{Index: i}
	}
	return items
}

func TestSchedulerDispatchesEveryItemOnce(t *testing.T) {
	sched := NewScheduler(4)

	var mu sync.Mutex
	seen := make(map[int]int)

	err := sched.Run(context.Background(), specItems(25), func(ctx context.Context, item batch.WorkItem) error {
		mu.Lock()
		defer mu.Unlock()
		seen[item.Index]++
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 25)
	for idx, count := range seen {
		assert.Equal(t, 1, count, "item %d dispatched more than once", idx)
	}
}

func TestSchedulerEnforcesCap(t *testing.T) {
	const cap = 3
	sched := NewScheduler(cap)

	var inFlight, peak int64
	err := sched.Run(context.Background(), specItems(20), func(ctx context.Context, item batch.WorkItem) error {
		n := atomic.AddInt64(&inFlight, 1)
		defer atomic.AddInt64(&inFlight, -1)

		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(cap))
	assert.Equal(t, int64(0), atomic.LoadInt64(&inFlight))
}

func TestSchedulerCapOneSerializes(t *testing.T) {
	sched := NewScheduler(1)

	var order []int
	err := sched.Run(context.Background(), specItems(10), func(ctx context.Context, item batch.WorkItem) error {
		// No lock needed: with one slot, dispatches cannot overlap.
		order = append(order, item.Index)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, order, 10)
	for i, idx := range order {
		assert.Equal(t, i, idx, "cap 1 must run items in submission order")
	}
}

func TestSchedulerRaisesInvalidCap(t *testing.T) {
	assert.Equal(t, 1, NewScheduler(0).cap)
	assert.Equal(t, 1, NewScheduler(-5).cap)
	assert.Equal(t, 8, NewScheduler(8).cap)
}

func TestSchedulerFaultStopsAdmission(t *testing.T) {
	sched := NewScheduler(1)
	boom := errors.New("store unreachable")

	var calls int64
	err := sched.Run(context.Background(), specItems(50), func(ctx context.Context, item batch.WorkItem) error {
		atomic.AddInt64(&calls, 1)
		if item.Index == 0 {
			return batch.Fault("apply item outcome", boom)
		}
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var fault *batch.OrchestrationFault
	assert.ErrorAs(t, err, &fault)

	// A fault on the first item must leave the other 49 undispatched.
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestSchedulerFaultDrainsInFlightItems(t *testing.T) {
	sched := NewScheduler(2)
	boom := errors.New("store unreachable")

	// Item 0 occupies a slot across the fault from item 1, so Run must
	// wait for it before returning.
	holdZero := make(chan struct{})
	var calls, drained int64
	err := sched.Run(context.Background(), specItems(6), func(ctx context.Context, item batch.WorkItem) error {
		atomic.AddInt64(&calls, 1)
		switch item.Index {
		case 0:
			<-holdZero
			atomic.AddInt64(&drained, 1)
			return nil
		case 1:
			defer close(holdZero)
			return batch.Fault("apply item outcome", boom)
		default:
			return nil
		}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int64(1), atomic.LoadInt64(&drained), "in-flight item must run to completion")
	assert.Less(t, atomic.LoadInt64(&calls), int64(6), "fault must stop admission of the remaining items")
}

func TestSchedulerStopsAdmittingOnCancel(t *testing.T) {
	sched := NewScheduler(1)
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	var calls int64
	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx, specItems(5), func(ctx context.Context, item batch.WorkItem) error {
			atomic.AddInt64(&calls, 1)
			<-release
			return nil
		})
	}()

	// Let the first item occupy the only slot, then cancel while the
	// second is waiting for admission.
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) == 1
	}, time.Second, time.Millisecond)
	cancel()
	close(release)

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, atomic.LoadInt64(&calls), int64(5))
}
