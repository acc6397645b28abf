package batch

import (
	"sync"
	"time"
)

// Aggregator incrementally folds terminal work items into batch-wide
// timing statistics.
//
// Fold is commutative and associative over item outcomes, so the final
// metrics are identical regardless of completion order. All methods
// are safe for concurrent use.
type Aggregator struct {
	mu sync.Mutex

	threshold time.Duration

	count   int64
	totalMs int64
	minMs   int64
	maxMs   int64

	timeouts       int
	underThreshold int
}

// NewAggregator creates an aggregator with the given under-threshold
// target. Completed items finishing in less than threshold increment
// UnderThresholdCount.
func NewAggregator(threshold time.Duration) *Aggregator {
	return &Aggregator{threshold: threshold}
}

// Fold updates the running statistics with one terminal item outcome.
// Non-terminal items are ignored.
func (a *Aggregator) Fold(item WorkItem) {
	if !item.Status.Terminal() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	d := item.DurationMs
	if a.count == 0 || d < a.minMs {
		a.minMs = d
	}
	if d > a.maxMs {
		a.maxMs = d
	}
	a.count++
	a.totalMs += d

	if item.Status == ItemTimedOut {
		a.timeouts++
	}
	if item.Status == ItemCompleted && a.threshold > 0 && d < a.threshold.Milliseconds() {
		a.underThreshold++
	}
}

// Snapshot returns a consistent view of the current metrics. It may be
// called mid-batch for progress polling.
func (a *Aggregator) Snapshot() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := Metrics{
		MinDurationMs:       a.minMs,
		MaxDurationMs:       a.maxMs,
		TimeoutCount:        a.timeouts,
		UnderThresholdCount: a.underThreshold,
	}
	if a.count > 0 {
		m.AvgDurationMs = a.totalMs / a.count
	}
	return m
}
