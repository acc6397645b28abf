// Package batch defines the data model for tailoring batches: one
// submission of N independent work items (one per target job posting)
// processed together under shared concurrency and timeout
// configuration.
package batch

import "time"

// State is the lifecycle state of a batch.
//
// NOTE: These values are persisted and returned over the API; they are
// part of the stable contract.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further batch transition can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// legalTransitions encodes the monotonic batch state machine.
// A batch never regresses: once terminal, no transition is legal.
var legalTransitions = map[State][]State{
	StatePending:    {StateProcessing, StateCompleted, StateFailed},
	StateProcessing: {StateCompleted, StateFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ItemStatus is the lifecycle status of a single work item.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemRunning   ItemStatus = "running"
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
	ItemTimedOut  ItemStatus = "timed_out"
)

// Terminal reports whether the item has reached a final status.
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemTimedOut
}

// Failed reports whether the item counts toward the batch failure
// counter. Timeouts are failures for counting purposes.
func (s ItemStatus) Failed() bool {
	return s == ItemFailed || s == ItemTimedOut
}

// ItemSpec describes one unit of work at submission time.
type ItemSpec struct {
	// PostingRef locates the target job posting (URL or opaque ref).
	PostingRef string `json:"posting_ref"`

	// ProfileRef locates the candidate profile the resume is tailored
	// from. Opaque to the orchestrator; interpreted by collaborators.
	ProfileRef string `json:"profile_ref,omitempty"`
}

// WorkItem is one unit of work within a batch, identified by its
// 0-based position in the original submission.
type WorkItem struct {
	Index int      `json:"index"`
	Spec  ItemSpec `json:"spec"`

	Status ItemStatus `json:"status"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`

	// ErrorDetail is set iff Status is failed or timed_out.
	ErrorDetail string `json:"error_detail,omitempty"`

	// ResultRef is the artifact key of the produced document.
	// Absent on failure.
	ResultRef string `json:"result_ref,omitempty"`

	// Score is the optional match score report for the tailored text.
	Score *ScoreReport `json:"score,omitempty"`
}

// ScoreReport summarizes how well tailored text matches a posting.
type ScoreReport struct {
	Overall         float64  `json:"overall"`
	KeywordCoverage float64  `json:"keyword_coverage"`
	MissingKeywords []string `json:"missing_keywords,omitempty"`
}

// Metrics aggregates per-item timing statistics for a batch.
//
// All fields must be computable as an order-independent fold over item
// outcomes, since items finish in arbitrary order.
type Metrics struct {
	MinDurationMs int64 `json:"min_duration_ms"`
	MaxDurationMs int64 `json:"max_duration_ms"`
	AvgDurationMs int64 `json:"avg_duration_ms"`

	TimeoutCount int `json:"timeout_count"`

	// UnderThresholdCount counts completed items that finished under
	// the configured target duration.
	UnderThresholdCount int `json:"under_threshold_count"`

	// RetryCount is reserved. No retry policy exists; nothing
	// increments it.
	RetryCount int `json:"retry_count"`
}

// Batch is the batch-level record tracked by the store.
type Batch struct {
	ID    string `json:"batch_id"`
	State State  `json:"state"`

	// Label is an optional operator-supplied name for the batch.
	Label string `json:"label,omitempty"`

	// Mode is the processing mode the batch was submitted with.
	Mode string `json:"mode,omitempty"`

	Total          int `json:"total"`
	CompletedCount int `json:"completed_count"`
	FailedCount    int `json:"failed_count"`

	// CurrentActivity is a human-readable progress string for polling
	// consumers. Last writer wins.
	CurrentActivity string `json:"current_activity,omitempty"`

	// FailureDetail explains an orchestration-level fault when State
	// is failed. Per-item failures never set this.
	FailureDetail string `json:"failure_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Metrics Metrics `json:"metrics"`
}

// ItemResult is the per-item shape exposed once a batch is terminal.
type ItemResult struct {
	Index       int          `json:"index"`
	Status      ItemStatus   `json:"status"`
	ResultRef   string       `json:"result_ref,omitempty"`
	ErrorDetail string       `json:"error_detail,omitempty"`
	DurationMs  int64        `json:"duration_ms"`
	Score       *ScoreReport `json:"score,omitempty"`
}

// ResultOf projects a terminal work item into its exposed result shape.
func ResultOf(item WorkItem) ItemResult {
	return ItemResult{
		Index:       item.Index,
		Status:      item.Status,
		ResultRef:   item.ResultRef,
		ErrorDetail: item.ErrorDetail,
		DurationMs:  item.DurationMs,
		Score:       item.Score,
	}
}
