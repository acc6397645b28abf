package batchstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

// MemoryStore is an in-process Store keyed by batch id.
//
// A read-write mutex guards the batch map; each entry carries its own
// exclusive lock so outcome updates for one batch never contend with
// another batch's traffic.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]*memEntry
}

type memEntry struct {
	mu      sync.Mutex
	batch   batch.Batch
	results []batch.ItemResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string]*memEntry)}
}

func (s *MemoryStore) Create(_ context.Context, total int, meta Meta) (*batch.Batch, error) {
	now := time.Now().UTC()
	b := batch.Batch{
		ID:        uuid.New().String(),
		State:     batch.StatePending,
		Label:     meta.Label,
		Mode:      meta.Mode,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.batches[b.ID] = &memEntry{batch: b}
	s.mu.Unlock()

	out := b
	return &out, nil
}

func (s *MemoryStore) entry(batchID string) (*memEntry, error) {
	s.mu.RLock()
	e, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) GetStatus(_ context.Context, batchID string) (*batch.Batch, error) {
	e, err := s.entry(batchID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.batch
	return &out, nil
}

func (s *MemoryStore) GetResults(_ context.Context, batchID string) ([]batch.ItemResult, error) {
	e, err := s.entry(batchID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.batch.State.Terminal() {
		return nil, ErrResultsNotReady
	}

	out := make([]batch.ItemResult, len(e.results))
	copy(out, e.results)
	return out, nil
}

func (s *MemoryStore) ApplyItemOutcome(_ context.Context, batchID string, item batch.WorkItem) error {
	e, err := s.entry(batchID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case item.Status == batch.ItemCompleted:
		e.batch.CompletedCount++
	case item.Status.Failed():
		e.batch.FailedCount++
	}
	e.batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetMetrics(_ context.Context, batchID string, m batch.Metrics) error {
	e, err := s.entry(batchID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch.Metrics = m
	e.batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetActivity(_ context.Context, batchID string, activity string) error {
	e, err := s.entry(batchID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch.CurrentActivity = activity
	e.batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Transition(_ context.Context, batchID string, next batch.State) error {
	e, err := s.entry(batchID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.batch.State.CanTransition(next) {
		return illegalTransition(e.batch.State, next)
	}
	e.batch.State = next
	e.batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, batchID string, detail string) error {
	e, err := s.entry(batchID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.batch.State.CanTransition(batch.StateFailed) {
		return illegalTransition(e.batch.State, batch.StateFailed)
	}
	e.batch.State = batch.StateFailed
	e.batch.FailureDetail = detail
	e.batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) PutResults(_ context.Context, batchID string, results []batch.ItemResult) error {
	e, err := s.entry(batchID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = make([]batch.ItemResult, len(results))
	copy(e.results, results)
	e.batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
