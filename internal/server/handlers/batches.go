package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/tailorforge/tailorbatch/internal/errors"
	"github.com/tailorforge/tailorbatch/pkg/batch"
	"github.com/tailorforge/tailorbatch/pkg/batchstore"
	"github.com/tailorforge/tailorbatch/pkg/orchestrator"
	"github.com/tailorforge/tailorbatch/pkg/pipeline"
)

// MaxBatchItems bounds one submission. Larger applications should be
// split into multiple batches.
const MaxBatchItems = 500

// BatchService is the orchestrator surface the handlers consume.
type BatchService interface {
	Submit(ctx context.Context, specs []batch.ItemSpec, cfg orchestrator.Config, meta batchstore.Meta) (*batch.Batch, error)
	GetStatus(ctx context.Context, batchID string) (*batch.Batch, error)
	GetResults(ctx context.Context, batchID string) ([]batch.ItemResult, error)
}

// BatchHandler serves the /v1/batches endpoints.
type BatchHandler struct {
	service BatchService
	logger  *zap.Logger
}

// NewBatchHandler creates a batch handler backed by service.
func NewBatchHandler(service BatchService, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{service: service, logger: logger}
}

// submitRequest is the JSON body for batch submission.
type submitRequest struct {
	Label          string             `json:"label,omitempty"`
	Mode           string             `json:"mode,omitempty"`
	Concurrency    int                `json:"concurrency,omitempty"`
	ItemTimeout    string             `json:"item_timeout,omitempty"`
	UnderThreshold string             `json:"under_threshold,omitempty"`
	Items          []submitItem       `json:"items"`
	Output         *submitOutputBlock `json:"output,omitempty"`
}

type submitItem struct {
	PostingRef string `json:"posting_ref"`
	ProfileRef string `json:"profile_ref,omitempty"`
}

type submitOutputBlock struct {
	Render   *bool  `json:"render,omitempty"`
	Format   string `json:"format,omitempty"`
	Template string `json:"template,omitempty"`
	Score    bool   `json:"score,omitempty"`
}

// Submit handles POST /v1/batches. It returns 202 with the initial
// batch record; processing continues asynchronously.
func (h *BatchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.CodeValidationFailed,
			fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	specs, cfg, err := req.build()
	if err != nil {
		apperrors.WriteError(w, apperrors.CodeValidationFailed, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.service.Submit(r.Context(), specs, cfg, batchstore.Meta{Label: req.Label})
	if err != nil {
		h.logger.Error("batch submission failed", zap.Error(err))
		apperrors.RespondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, b)
}

// GetStatus handles GET /v1/batches/{batchID}.
func (h *BatchHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	b, err := h.service.GetStatus(r.Context(), batchID)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// resultsResponse wraps the ordered result list.
type resultsResponse struct {
	BatchID string             `json:"batch_id"`
	Results []batch.ItemResult `json:"results"`
}

// GetResults handles GET /v1/batches/{batchID}/results. Results are
// available only once the batch reaches a terminal state.
func (h *BatchHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	results, err := h.service.GetResults(r.Context(), batchID)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resultsResponse{BatchID: batchID, Results: results})
}

// build converts the request into item specs and an orchestrator
// config, validating as it goes.
func (r *submitRequest) build() ([]batch.ItemSpec, orchestrator.Config, error) {
	var cfg orchestrator.Config

	if len(r.Items) > MaxBatchItems {
		return nil, cfg, fmt.Errorf("too many items: %d (max %d)", len(r.Items), MaxBatchItems)
	}

	specs := make([]batch.ItemSpec, len(r.Items))
	for i, item := range r.Items {
		if item.PostingRef == "" {
			return nil, cfg, fmt.Errorf("items[%d]: posting_ref is required", i)
		}
		specs[i] = batch.ItemSpec{PostingRef: item.PostingRef, ProfileRef: item.ProfileRef}
	}

	cfg.Mode = pipeline.Mode(r.Mode)
	cfg.ConcurrencyCap = r.Concurrency

	var err error
	if cfg.ItemTimeout, err = parseDuration("item_timeout", r.ItemTimeout); err != nil {
		return nil, cfg, err
	}
	if cfg.UnderThreshold, err = parseDuration("under_threshold", r.UnderThreshold); err != nil {
		return nil, cfg, err
	}

	if r.Output != nil {
		cfg.Output.Render = r.Output.Render == nil || *r.Output.Render
		cfg.Output.Format = pipeline.Format(r.Output.Format)
		cfg.Output.Template = r.Output.Template
		cfg.Output.Score = r.Output.Score
	} else {
		cfg.Output.Render = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	return specs, cfg, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", field)
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
