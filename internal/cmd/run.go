package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tailorforge/tailorbatch/internal/config"
	"github.com/tailorforge/tailorbatch/internal/observability"
	artifactfile "github.com/tailorforge/tailorbatch/pkg/artifact/file"
	"github.com/tailorforge/tailorbatch/pkg/batch"
	"github.com/tailorforge/tailorbatch/pkg/batchstore"
	"github.com/tailorforge/tailorbatch/pkg/manifest"
	"github.com/tailorforge/tailorbatch/pkg/orchestrator"
	"github.com/tailorforge/tailorbatch/pkg/output"
	"github.com/tailorforge/tailorbatch/pkg/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a one-shot batch from a manifest",
	Long: `Run a tailoring batch as defined in a YAML or JSON manifest file.

The manifest specifies the work items, batch parameters, and output
options. Outcomes are emitted as JSONL records.

Example:
  tailorbatch run --batch applications.yaml
  tailorbatch run --batch applications.yaml --output results.jsonl
  tailorbatch run --batch applications.yaml --quiet
  tailorbatch run --batch applications.yaml --dry-run`,
	RunE: runRun,
}

var (
	runBatchPath    string
	runOutput       string
	runQuiet        bool
	runDryRun       bool
	runPlan         bool
	runLocal        bool
	runArtifactsDir string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runBatchPath, "batch", "b", "", "Path to batch manifest (required)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Override output destination")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress records")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate manifest and show plan without executing")
	runCmd.Flags().BoolVar(&runPlan, "plan", false, "Alias for --dry-run")
	runCmd.Flags().BoolVar(&runLocal, "local", false, "Use in-memory stub fetcher instead of live HTTP")
	runCmd.Flags().StringVar(&runArtifactsDir, "artifacts-dir", "artifacts", "Directory for rendered documents")

	_ = runCmd.MarkFlagRequired("batch")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(runBatchPath)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", runBatchPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	observability.CLILogger.Debug("Loaded manifest",
		zap.String("path", runBatchPath),
		zap.String("mode", m.Batch.Mode),
		zap.Int("items", len(m.Items)))

	if runOutput != "" {
		m.Output.Destination = runOutput
	}
	if runQuiet {
		enabled := false
		m.Output.Progress = &enabled
	}

	specs, cfg, err := batchFromManifest(m)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	if runPlan || runDryRun {
		return showRunPlan(m, cfg)
	}

	return executeRun(ctx, m, specs, cfg)
}

// batchFromManifest converts manifest settings into item specs and an
// orchestrator config.
func batchFromManifest(m *manifest.Manifest) ([]batch.ItemSpec, orchestrator.Config, error) {
	var cfg orchestrator.Config

	specs := make([]batch.ItemSpec, len(m.Items))
	for i, item := range m.Items {
		specs[i] = batch.ItemSpec{PostingRef: item.PostingRef, ProfileRef: item.ProfileRef}
	}

	cfg.Mode = pipeline.Mode(m.Batch.Mode)
	cfg.ConcurrencyCap = m.Batch.Concurrency

	if m.Batch.ItemTimeout != "" {
		d, err := time.ParseDuration(m.Batch.ItemTimeout)
		if err != nil {
			return nil, cfg, fmt.Errorf("invalid item_timeout: %w", err)
		}
		cfg.ItemTimeout = d
	}
	if m.Batch.UnderThreshold != "" {
		d, err := time.ParseDuration(m.Batch.UnderThreshold)
		if err != nil {
			return nil, cfg, fmt.Errorf("invalid under_threshold: %w", err)
		}
		cfg.UnderThreshold = d
	}

	cfg.Output.Render = m.Output.RenderEnabled()
	cfg.Output.Format = pipeline.Format(m.Output.Format)
	cfg.Output.Template = m.Output.Template
	cfg.Output.Score = m.Output.Score

	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	return specs, cfg, nil
}

// showRunPlan displays what would run without executing.
func showRunPlan(m *manifest.Manifest, cfg orchestrator.Config) error {
	fmt.Println("=== Batch Plan (dry-run) ===")
	fmt.Println()
	if m.Batch.Label != "" {
		fmt.Printf("Label:       %s\n", m.Batch.Label)
	}
	fmt.Printf("Mode:        %s\n", m.Batch.Mode)
	fmt.Printf("Items:       %d\n", len(m.Items))
	for i, item := range m.Items {
		fmt.Printf("  %2d. %s\n", i, item.PostingRef)
	}
	fmt.Println()
	if m.Batch.Concurrency > 0 {
		fmt.Printf("Concurrency: %d\n", m.Batch.Concurrency)
	} else {
		fmt.Printf("Concurrency: mode default\n")
	}
	if m.Batch.ItemTimeout != "" {
		fmt.Printf("Timeout:     %s per item\n", m.Batch.ItemTimeout)
	} else {
		fmt.Printf("Timeout:     mode default per item\n")
	}
	fmt.Printf("Render:      %v (%s)\n", m.Output.RenderEnabled(), m.Output.Format)
	fmt.Printf("Score:       %v\n", m.Output.Score)
	fmt.Printf("Output:      %s\n", m.Output.Destination)
	fmt.Printf("Progress:    %v\n", m.Output.ProgressEnabled())
	fmt.Println()
	fmt.Println("Manifest validated successfully. Remove --dry-run to execute.")
	return nil
}

// executeRun runs the batch to completion, polling for progress and
// emitting JSONL records.
func executeRun(ctx context.Context, m *manifest.Manifest, specs []batch.ItemSpec, cfg orchestrator.Config) error {
	appCfg, err := config.Load(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	artifacts, err := artifactfile.New(artifactfile.Config{BaseDir: runArtifactsDir})
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create artifacts directory", err)
	}
	defer func() { _ = artifacts.Close() }()

	store := batchstore.NewMemoryStore()
	defer func() { _ = store.Close() }()

	orch := orchestrator.New(store, artifacts, buildCollaborators(appCfg, runLocal), observability.CLILogger)
	started := time.Now()

	b, err := orch.Submit(ctx, specs, cfg, batchstore.Meta{Label: m.Batch.Label})
	if err != nil {
		observability.CLILogger.Error("Batch submission failed", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Batch submission failed", err)
	}

	writer, cleanup, err := createWriter(m, b.ID)
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	observability.CLILogger.Info("Starting batch",
		zap.String("batch_id", b.ID),
		zap.Int("total", b.Total),
		zap.String("mode", string(cfg.Mode)))

	final, err := pollUntilTerminal(ctx, orch, b.ID, m.Output.ProgressEnabled(), writer)
	if err != nil {
		if ctx.Err() != nil {
			observability.CLILogger.Warn("Batch cancelled", zap.String("batch_id", b.ID))
			return exitError(foundry.ExitSignalInt, "Batch cancelled", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Batch polling failed", err)
	}

	return emitOutcome(ctx, orch, m, final, writer, time.Since(started))
}

// pollUntilTerminal polls batch status until it reaches a terminal
// state, emitting progress records along the way.
func pollUntilTerminal(ctx context.Context, orch *orchestrator.Orchestrator, batchID string, progress bool, writer output.Writer) (*batch.Batch, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastActivity string
	for {
		b, err := orch.GetStatus(ctx, batchID)
		if err != nil {
			return nil, err
		}

		if progress && b.CurrentActivity != lastActivity {
			lastActivity = b.CurrentActivity
			rec := &output.ProgressRecord{
				State:     string(b.State),
				Total:     b.Total,
				Completed: b.CompletedCount,
				Failed:    b.FailedCount,
				Activity:  b.CurrentActivity,
			}
			if err := writer.WriteProgress(ctx, rec); err != nil {
				observability.CLILogger.Warn("Failed to write progress record", zap.Error(err))
			}
		}

		if b.State.Terminal() {
			return b, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// emitOutcome writes item records and the final summary.
func emitOutcome(ctx context.Context, orch *orchestrator.Orchestrator, m *manifest.Manifest, final *batch.Batch, writer output.Writer, elapsed time.Duration) error {
	if final.State == batch.StateFailed {
		rec := &output.ErrorRecord{
			Code:    output.ErrCodeOrchestration,
			Message: final.FailureDetail,
		}
		if err := writer.WriteError(ctx, rec); err != nil {
			observability.CLILogger.Warn("Failed to write error record", zap.Error(err))
		}
		observability.CLILogger.Error("Batch failed",
			zap.String("batch_id", final.ID),
			zap.String("detail", final.FailureDetail))
		return exitError(foundry.ExitExternalServiceUnavailable, "Batch failed", fmt.Errorf("%s", final.FailureDetail))
	}

	results, err := orch.GetResults(ctx, final.ID)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to fetch results", err)
	}

	for _, res := range results {
		postingRef := ""
		if res.Index < len(m.Items) {
			postingRef = m.Items[res.Index].PostingRef
		}
		rec := &output.ItemRecord{
			Index:       res.Index,
			PostingRef:  postingRef,
			Status:      string(res.Status),
			DurationMs:  res.DurationMs,
			ResultRef:   res.ResultRef,
			ErrorDetail: res.ErrorDetail,
			Score:       res.Score,
		}
		if err := writer.WriteItem(ctx, rec); err != nil {
			observability.CLILogger.Warn("Failed to write item record", zap.Error(err))
		}
	}

	sum := &output.SummaryRecord{
		State:         string(final.State),
		Total:         final.Total,
		Completed:     final.CompletedCount,
		Failed:        final.FailedCount,
		Metrics:       final.Metrics,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
	}
	if err := writer.WriteSummary(ctx, sum); err != nil {
		observability.CLILogger.Warn("Failed to write summary record", zap.Error(err))
	}

	observability.CLILogger.Info("Batch completed",
		zap.String("batch_id", final.ID),
		zap.Int("completed", final.CompletedCount),
		zap.Int("failed", final.FailedCount),
		zap.Duration("duration", elapsed))

	return nil
}

// createWriter creates an output writer from manifest configuration.
// Returns the writer, a cleanup function, and any error.
func createWriter(m *manifest.Manifest, batchID string) (output.Writer, func(), error) {
	dest := m.Output.Destination

	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, batchID)
		return w, func() { _ = w.Close() }, nil
	}

	path := dest
	if strings.HasPrefix(dest, "file:") {
		path = strings.TrimPrefix(dest, "file:")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, batchID)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
