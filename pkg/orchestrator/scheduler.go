package orchestrator

import (
	"context"
	"sync"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

// Scheduler bounds how many work items execute concurrently.
//
// Admission control is a counting semaphore of capacity cap. Every
// item is dispatched exactly once; the slot is released by defer on
// every exit path, so a failing or panicking dispatch can never leak
// capacity and starve sibling items.
type Scheduler struct {
	cap int
}

// NewScheduler creates a scheduler with the given concurrency cap.
// Caps below 1 are raised to 1.
func NewScheduler(concurrencyCap int) *Scheduler {
	if concurrencyCap < 1 {
		concurrencyCap = 1
	}
	return &Scheduler{cap: concurrencyCap}
}

// Run dispatches every item through fn, at most cap concurrently, and
// blocks until all dispatched items have resolved.
//
// A non-nil error from fn signals an orchestration fault, not an item
// failure; item failures are recorded on the item by the executor and
// return nil here. A recorded fault stops admission: items not yet
// admitted are never dispatched, in-flight items drain, and Run
// returns the first error observed. Cancelling ctx stops admission the
// same way.
func (s *Scheduler) Run(ctx context.Context, items []batch.WorkItem, fn func(context.Context, batch.WorkItem) error) error {
	sem := make(chan struct{}, s.cap)
	faulted := make(chan struct{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			close(faulted)
		}
	}

	drain := func() error {
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		return firstErr
	}

	for _, item := range items {
		// A free slot must not win the select below against an already
		// recorded fault.
		select {
		case <-faulted:
			return drain()
		default:
		}

		select {
		case sem <- struct{}{}:
		case <-faulted:
			return drain()
		case <-ctx.Done():
			record(batch.Fault("admit item", ctx.Err()))
			return drain()
		}

		wg.Add(1)
		go func(item batch.WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(ctx, item); err != nil {
				record(err)
			}
		}(item)
	}

	return drain()
}
