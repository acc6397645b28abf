package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tailorforge/tailorbatch/pkg/artifact"
	"github.com/tailorforge/tailorbatch/pkg/batch"
	"github.com/tailorforge/tailorbatch/pkg/batchstore"
	"github.com/tailorforge/tailorbatch/pkg/pipeline"
)

// Executor runs one work item's collaborator pipeline under a deadline
// and reports the terminal outcome.
//
// Execute always returns a terminal item. Pipeline errors, timeouts,
// and panics are captured as item data; the only error Execute returns
// is an orchestration fault from reporting the outcome.
type Executor struct {
	collab    pipeline.Collaborators
	artifacts artifact.Store
	store     batchstore.Store
	agg       *batch.Aggregator
	logger    *zap.Logger
}

func newExecutor(collab pipeline.Collaborators, artifacts artifact.Store, store batchstore.Store, agg *batch.Aggregator, logger *zap.Logger) *Executor {
	return &Executor{
		collab:    collab,
		artifacts: artifacts,
		store:     store,
		agg:       agg,
		logger:    logger,
	}
}

// Execute runs item to a terminal status under cfg.ItemTimeout, then
// folds the outcome into the aggregator and the store.
func (e *Executor) Execute(ctx context.Context, batchID string, item batch.WorkItem, cfg Config) (batch.WorkItem, error) {
	started := time.Now()
	item.Status = batch.ItemRunning
	item.StartedAt = &started

	runCtx, cancel := context.WithTimeout(ctx, cfg.ItemTimeout)
	defer cancel()

	resultRef, score, runErr := e.runPipeline(runCtx, batchID, item, cfg)

	finished := time.Now()
	item.FinishedAt = &finished
	item.DurationMs = finished.Sub(started).Milliseconds()

	switch {
	case runErr == nil:
		item.Status = batch.ItemCompleted
		item.ResultRef = resultRef
		item.Score = score
	case errors.Is(runErr, context.DeadlineExceeded):
		item.Status = batch.ItemTimedOut
		item.ErrorDetail = fmt.Sprintf("item deadline of %s exceeded after %dms", cfg.ItemTimeout, item.DurationMs)
	default:
		item.Status = batch.ItemFailed
		item.ErrorDetail = runErr.Error()
	}

	if runErr != nil {
		e.logger.Warn("work item did not complete",
			zap.String("batch_id", batchID),
			zap.Int("index", item.Index),
			zap.String("status", string(item.Status)),
			zap.Int64("duration_ms", item.DurationMs),
			zap.Error(runErr))
	} else {
		e.logger.Debug("work item completed",
			zap.String("batch_id", batchID),
			zap.Int("index", item.Index),
			zap.Int64("duration_ms", item.DurationMs))
	}

	e.agg.Fold(item)
	if err := e.store.ApplyItemOutcome(ctx, batchID, item); err != nil {
		return item, batch.Fault("apply item outcome", err)
	}
	return item, nil
}

// runPipeline drives fetch, transform, and the optional score and
// render steps, storing the produced document as an artifact.
//
// A panic anywhere in a collaborator is recovered here so one bad item
// cannot terminate the scheduler or block siblings.
func (e *Executor) runPipeline(ctx context.Context, batchID string, item batch.WorkItem, cfg Config) (resultRef string, score *batch.ScoreReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			resultRef = ""
			score = nil
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	posting, err := e.collab.Fetcher.Fetch(ctx, item.Spec.PostingRef)
	if err != nil {
		return "", nil, fmt.Errorf("fetch posting: %w", err)
	}

	text, err := e.collab.Transformer.Transform(ctx, posting, item.Spec.ProfileRef, cfg.Mode)
	if err != nil {
		return "", nil, fmt.Errorf("transform: %w", err)
	}

	if cfg.Output.Score {
		score, err = e.collab.Scorer.Score(ctx, text, posting)
		if err != nil {
			return "", nil, fmt.Errorf("score: %w", err)
		}
	}

	doc := []byte(text)
	format := pipeline.FormatMarkdown
	if cfg.Output.Render {
		format = cfg.Output.Format
		doc, err = e.collab.Renderer.Render(ctx, text, cfg.Output.Template, format)
		if err != nil {
			return "", nil, fmt.Errorf("render: %w", err)
		}
	}

	key := artifactKey(batchID, item.Index, format)
	resultRef, err = e.artifacts.Put(ctx, key, doc, contentTypeFor(format))
	if err != nil {
		return "", nil, fmt.Errorf("store artifact: %w", err)
	}

	return resultRef, score, nil
}

func artifactKey(batchID string, index int, format pipeline.Format) string {
	return fmt.Sprintf("batches/%s/items/%04d/resume%s", batchID, index, pipeline.ArtifactExt(format))
}

func contentTypeFor(format pipeline.Format) string {
	switch format {
	case pipeline.FormatHTML:
		return "text/html; charset=utf-8"
	case pipeline.FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}
