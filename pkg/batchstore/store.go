// Package batchstore provides concurrency-safe keyed storage for
// batch status and results. It is the only shared mutable state
// between concurrently finishing work items: all mutation goes through
// its synchronized API.
package batchstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

var (
	// ErrNotFound is returned when no batch exists for the given id.
	ErrNotFound = errors.New("batch not found")

	// ErrResultsNotReady is returned by GetResults before the batch
	// reaches a terminal state. Results are not streamed incrementally.
	ErrResultsNotReady = errors.New("batch results not ready")

	// ErrIllegalTransition marks a state transition that would violate
	// the monotonic batch state machine. This is a programming error in
	// the caller, not a user-facing condition.
	ErrIllegalTransition = errors.New("illegal batch state transition")
)

// Meta carries optional submission metadata recorded on the batch.
type Meta struct {
	Label string
	Mode  string
}

// Store persists batches and their results.
//
// Implementations must be safe for concurrent invocation from many
// simultaneously finishing items. The memory store uses a per-batch
// exclusive lock; the SQLite store relies on transactions.
type Store interface {
	// Create allocates a new batch in the pending state and returns it.
	Create(ctx context.Context, total int, meta Meta) (*batch.Batch, error)

	// GetStatus returns the current batch record, or ErrNotFound.
	GetStatus(ctx context.Context, batchID string) (*batch.Batch, error)

	// GetResults returns the final ordered result list. It returns
	// ErrNotFound for unknown ids and ErrResultsNotReady until the
	// batch reaches a terminal state.
	GetResults(ctx context.Context, batchID string) ([]batch.ItemResult, error)

	// ApplyItemOutcome atomically folds one terminal item into the
	// batch counters and bumps updatedAt.
	ApplyItemOutcome(ctx context.Context, batchID string, item batch.WorkItem) error

	// SetMetrics stores the latest aggregated metrics snapshot.
	SetMetrics(ctx context.Context, batchID string, m batch.Metrics) error

	// SetActivity updates the human-readable progress string.
	// Last writer wins.
	SetActivity(ctx context.Context, batchID string, activity string) error

	// Transition moves the batch to next, enforcing monotonicity.
	// Illegal transitions return ErrIllegalTransition.
	Transition(ctx context.Context, batchID string, next batch.State) error

	// Fail transitions the batch to the failed state and records the
	// orchestration fault detail. Reserved for infrastructure faults;
	// per-item failures never fail a batch.
	Fail(ctx context.Context, batchID string, detail string) error

	// PutResults stores the final ordered result list. Called once,
	// by the orchestrator, before the completed transition.
	PutResults(ctx context.Context, batchID string, results []batch.ItemResult) error

	// Close releases any resources held by the store.
	Close() error
}

func illegalTransition(from, to batch.State) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
