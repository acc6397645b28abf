// Package output provides JSONL output for batch runs.
//
// Output is structured as typed record envelopes containing item
// outcomes, errors, and progress updates. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: tailorbatch.<type>.v<version>
const (
	// TypeItem identifies work item outcome records.
	TypeItem = "tailorbatch.item.v1"

	// TypeError identifies error records.
	TypeError = "tailorbatch.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "tailorbatch.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "tailorbatch.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "tailorbatch.item.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// BatchID is the correlation ID for this batch.
	BatchID string `json:"batch_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ItemRecord is the data payload for one work item outcome.
type ItemRecord struct {
	// Index is the item's 0-based position in the submission.
	Index int `json:"index"`

	// PostingRef is the descriptor the item was submitted with.
	PostingRef string `json:"posting_ref"`

	// Status is the terminal item status.
	Status string `json:"status"`

	// DurationMs is the wall-clock execution time.
	DurationMs int64 `json:"duration_ms"`

	// ResultRef is the artifact key of the produced document.
	// Absent on failure.
	ResultRef string `json:"result_ref,omitempty"`

	// ErrorDetail describes the failure or timeout, if any.
	ErrorDetail string `json:"error_detail,omitempty"`

	// Score is the match score report, if scoring was enabled.
	Score *batch.ScoreReport `json:"score,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than aborting the run, allowing
// partial results when some operations fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeTimeout indicates an item timed out.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeItemFailed indicates an item's pipeline failed.
	ErrCodeItemFailed = "ITEM_FAILED"

	// ErrCodeOrchestration indicates a batch-level orchestration fault.
	ErrCodeOrchestration = "ORCHESTRATION_FAULT"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ProgressRecord is the data payload for progress updates.
//
// Progress records are emitted as items resolve to provide visibility
// into long-running batches.
type ProgressRecord struct {
	// State is the batch state at the time of the record.
	State string `json:"state"`

	// Total is the item count of the batch.
	Total int `json:"total"`

	// Completed is the number of items finished successfully so far.
	Completed int `json:"completed"`

	// Failed is the number of items failed or timed out so far.
	Failed int `json:"failed"`

	// Activity is the current human-readable progress string.
	Activity string `json:"activity,omitempty"`
}

// SummaryRecord is the data payload for final summaries.
//
// A summary record is emitted once at the end of a run with the batch
// outcome and aggregate metrics.
type SummaryRecord struct {
	// State is the terminal batch state.
	State string `json:"state"`

	// Total is the item count of the batch.
	Total int `json:"total"`

	// Completed is the number of items that finished successfully.
	Completed int `json:"completed"`

	// Failed is the number of items that failed or timed out.
	Failed int `json:"failed"`

	// Metrics is the final aggregated metrics snapshot.
	Metrics batch.Metrics `json:"metrics"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
