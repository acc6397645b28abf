// Package orchestrator coordinates batch processing: bounded parallel
// execution of independent work items, per-item deadlines, failure
// isolation, a monotonic batch state machine, and order-independent
// metrics aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tailorforge/tailorbatch/pkg/artifact"
	"github.com/tailorforge/tailorbatch/pkg/batch"
	"github.com/tailorforge/tailorbatch/pkg/batchstore"
	"github.com/tailorforge/tailorbatch/pkg/pipeline"
)

// Orchestrator is the entry point for batch submission and polling.
//
// Submit returns as soon as the batch record exists; processing runs
// asynchronously under the orchestrator's own context, so a batch
// outlives the submitting request. Shutdown cancels that context and
// waits for in-flight batches to wind down.
type Orchestrator struct {
	store     batchstore.Store
	artifacts artifact.Store
	collab    pipeline.Collaborators
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator. All collaborators are required; a nil
// logger is replaced with a no-op logger.
func New(store batchstore.Store, artifacts artifact.Store, collab pipeline.Collaborators, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     store,
		artifacts: artifacts,
		collab:    collab,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit creates a batch for specs and begins processing it
// asynchronously. The returned batch reflects the initial state.
//
// An empty spec list completes the batch immediately.
func (o *Orchestrator) Submit(ctx context.Context, specs []batch.ItemSpec, cfg Config, meta batchstore.Meta) (*batch.Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	meta.Mode = string(cfg.Mode)

	b, err := o.store.Create(ctx, len(specs), meta)
	if err != nil {
		return nil, batch.Fault("create batch", err)
	}

	o.logger.Info("batch submitted",
		zap.String("batch_id", b.ID),
		zap.Int("total", b.Total),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("concurrency_cap", cfg.ConcurrencyCap),
		zap.Duration("item_timeout", cfg.ItemTimeout))

	if len(specs) == 0 {
		// Nothing to schedule. Finalize synchronously.
		if err := o.store.PutResults(ctx, b.ID, []batch.ItemResult{}); err != nil {
			return nil, batch.Fault("store results", err)
		}
		if err := o.store.Transition(ctx, b.ID, batch.StateCompleted); err != nil {
			return nil, batch.Fault("complete batch", err)
		}
		return o.store.GetStatus(ctx, b.ID)
	}

	o.wg.Add(1)
	go o.run(b.ID, specs, cfg)

	return b, nil
}

// GetStatus returns the current batch record.
func (o *Orchestrator) GetStatus(ctx context.Context, batchID string) (*batch.Batch, error) {
	return o.store.GetStatus(ctx, batchID)
}

// GetResults returns the final ordered result list once the batch is
// terminal.
func (o *Orchestrator) GetResults(ctx context.Context, batchID string) ([]batch.ItemResult, error) {
	return o.store.GetResults(ctx, batchID)
}

// Shutdown cancels in-flight batches and waits for their goroutines to
// exit, or until ctx expires.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}

// run drives one batch to a terminal state. An orchestration fault
// fails the batch permanently; per-item failures never do.
func (o *Orchestrator) run(batchID string, specs []batch.ItemSpec, cfg Config) {
	defer o.wg.Done()

	if err := o.process(o.ctx, batchID, specs, cfg); err != nil {
		o.logger.Error("batch failed",
			zap.String("batch_id", batchID),
			zap.Error(err))

		// Record the fault even when the orchestrator context is the
		// thing that was cancelled.
		bg := context.WithoutCancel(o.ctx)
		if ferr := o.store.Fail(bg, batchID, err.Error()); ferr != nil {
			o.logger.Error("recording batch failure",
				zap.String("batch_id", batchID),
				zap.Error(ferr))
		}
		return
	}

	o.logger.Info("batch completed", zap.String("batch_id", batchID))
}

func (o *Orchestrator) process(ctx context.Context, batchID string, specs []batch.ItemSpec, cfg Config) error {
	if err := o.store.Transition(ctx, batchID, batch.StateProcessing); err != nil {
		return batch.Fault("start processing", err)
	}

	items := make([]batch.WorkItem, len(specs))
	for i, spec := range specs {
		items[i] = batch.WorkItem{Index: i, Spec: spec, Status: batch.ItemPending}
	}

	agg := batch.NewAggregator(cfg.UnderThreshold)
	exec := newExecutor(o.collab, o.artifacts, o.store, agg, o.logger)
	total := len(items)

	// Each item writes its own index, so the slice is ordered by the
	// original submission index regardless of completion order.
	results := make([]batch.ItemResult, total)

	sched := NewScheduler(cfg.ConcurrencyCap)
	err := sched.Run(ctx, items, func(ctx context.Context, item batch.WorkItem) error {
		o.setActivity(ctx, batchID, fmt.Sprintf("processing item %d of %d: %s", item.Index+1, total, item.Spec.PostingRef))

		out, err := exec.Execute(ctx, batchID, item, cfg)
		if err != nil {
			return err
		}
		results[out.Index] = batch.ResultOf(out)

		// Refresh the stored metrics so progress polling sees a live
		// snapshot. Best effort; the final snapshot below is what
		// must land.
		if merr := o.store.SetMetrics(ctx, batchID, agg.Snapshot()); merr != nil {
			o.logger.Warn("updating batch metrics",
				zap.String("batch_id", batchID),
				zap.Error(merr))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := o.store.SetMetrics(ctx, batchID, agg.Snapshot()); err != nil {
		return batch.Fault("store metrics", err)
	}
	if err := o.store.PutResults(ctx, batchID, results); err != nil {
		return batch.Fault("store results", err)
	}
	o.setActivity(ctx, batchID, fmt.Sprintf("processed %d items", total))
	if err := o.store.Transition(ctx, batchID, batch.StateCompleted); err != nil {
		return batch.Fault("complete batch", err)
	}
	return nil
}

// setActivity updates the progress string. Last writer wins and a lost
// update only stales the progress text, so failures are logged and
// dropped.
func (o *Orchestrator) setActivity(ctx context.Context, batchID, activity string) {
	if err := o.store.SetActivity(ctx, batchID, activity); err != nil {
		o.logger.Debug("updating batch activity",
			zap.String("batch_id", batchID),
			zap.Error(err))
	}
}
