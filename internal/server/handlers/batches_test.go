package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorforge/tailorbatch/pkg/batch"
	"github.com/tailorforge/tailorbatch/pkg/batchstore"
	"github.com/tailorforge/tailorbatch/pkg/orchestrator"
	"github.com/tailorforge/tailorbatch/pkg/pipeline"
)

// fakeBatchService records calls and returns canned responses.
type fakeBatchService struct {
	submitSpecs []batch.ItemSpec
	submitCfg   orchestrator.Config
	submitMeta  batchstore.Meta

	batch   *batch.Batch
	results []batch.ItemResult
	err     error
}

func (f *fakeBatchService) Submit(ctx context.Context, specs []batch.ItemSpec, cfg orchestrator.Config, meta batchstore.Meta) (*batch.Batch, error) {
	f.submitSpecs = specs
	f.submitCfg = cfg
	f.submitMeta = meta
	return f.batch, f.err
}

func (f *fakeBatchService) GetStatus(ctx context.Context, batchID string) (*batch.Batch, error) {
	return f.batch, f.err
}

func (f *fakeBatchService) GetResults(ctx context.Context, batchID string) ([]batch.ItemResult, error) {
	return f.results, f.err
}

func batchRouter(h *BatchHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/batches", h.Submit)
	r.Get("/v1/batches/{batchID}", h.GetStatus)
	r.Get("/v1/batches/{batchID}/results", h.GetResults)
	return r
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

func TestSubmitAccepted(t *testing.T) {
	svc := &fakeBatchService{batch: &batch.Batch{ID: "b1", State: batch.StatePending, Total: 2}}
	srv := batchRouter(NewBatchHandler(svc, nil))

	body := `{
		"label": "august",
		"mode": "deep",
		"concurrency": 2,
		"item_timeout": "45s",
		"items": [
			{"posting_ref": "https://jobs.example.com/1", "profile_ref": "profiles/p.yaml"},
			{"posting_ref": "https://jobs.example.com/2"}
		],
		"output": {"score": true, "format": "html"}
	}`

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var got batch.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "b1", got.ID)

	require.Len(t, svc.submitSpecs, 2)
	assert.Equal(t, "profiles/p.yaml", svc.submitSpecs[0].ProfileRef)
	assert.Equal(t, "august", svc.submitMeta.Label)
	assert.Equal(t, pipeline.ModeDeep, svc.submitCfg.Mode)
	assert.Equal(t, 2, svc.submitCfg.ConcurrencyCap)
	assert.Equal(t, 45*time.Second, svc.submitCfg.ItemTimeout)
	assert.True(t, svc.submitCfg.Output.Score)
	assert.True(t, svc.submitCfg.Output.Render)
	assert.Equal(t, pipeline.FormatHTML, svc.submitCfg.Output.Format)
}

func TestSubmitInvalidBody(t *testing.T) {
	srv := batchRouter(NewBatchHandler(&fakeBatchService{}, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, rec.Body.Bytes()))
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing posting_ref", `{"items":[{"profile_ref":"p"}]}`, "posting_ref is required"},
		{"bad mode", `{"mode":"frantic","items":[{"posting_ref":"x"}]}`, "unknown processing mode"},
		{"bad format", `{"items":[{"posting_ref":"x"}],"output":{"format":"docx"}}`, "unknown output format"},
		{"bad duration", `{"item_timeout":"soon","items":[{"posting_ref":"x"}]}`, "invalid duration"},
		{"negative duration", `{"item_timeout":"-5s","items":[{"posting_ref":"x"}]}`, "must not be negative"},
	}

	srv := batchRouter(NewBatchHandler(&fakeBatchService{}, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_FAILED", errorCode(t, rec.Body.Bytes()))
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestSubmitTooManyItems(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"items":[`)
	for i := 0; i <= MaxBatchItems; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"posting_ref":"x"}`)
	}
	sb.WriteString(`]}`)

	srv := batchRouter(NewBatchHandler(&fakeBatchService{}, nil))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(sb.String())))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many items")
}

func TestGetStatus(t *testing.T) {
	svc := &fakeBatchService{batch: &batch.Batch{ID: "b1", State: batch.StateProcessing, Total: 3, CompletedCount: 1}}
	srv := batchRouter(NewBatchHandler(svc, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/batches/b1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got batch.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, batch.StateProcessing, got.State)
	assert.Equal(t, 1, got.CompletedCount)
}

func TestGetStatusNotFound(t *testing.T) {
	svc := &fakeBatchService{err: batchstore.ErrNotFound}
	srv := batchRouter(NewBatchHandler(svc, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/batches/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec.Body.Bytes()))
}

func TestGetResults(t *testing.T) {
	svc := &fakeBatchService{results: []batch.ItemResult{
		{Index: 0, Status: batch.ItemCompleted, ResultRef: "r0"},
		{Index: 1, Status: batch.ItemTimedOut, ErrorDetail: "item deadline of 30s exceeded after 30002ms"},
	}}
	srv := batchRouter(NewBatchHandler(svc, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/batches/b1/results", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		BatchID string             `json:"batch_id"`
		Results []batch.ItemResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "b1", got.BatchID)
	require.Len(t, got.Results, 2)
	assert.Equal(t, batch.ItemTimedOut, got.Results[1].Status)
}

func TestGetResultsNotReady(t *testing.T) {
	svc := &fakeBatchService{err: batchstore.ErrResultsNotReady}
	srv := batchRouter(NewBatchHandler(svc, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/batches/b1/results", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RESULTS_NOT_READY", errorCode(t, rec.Body.Bytes()))
}

func TestSubmitServiceErrorIsOpaque(t *testing.T) {
	svc := &fakeBatchService{err: batch.Fault("create batch", context.DeadlineExceeded)}
	srv := batchRouter(NewBatchHandler(svc, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches",
		strings.NewReader(`{"items":[{"posting_ref":"x"}]}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec.Body.Bytes()))
	// Internal detail stays in the logs, not the response body.
	assert.NotContains(t, rec.Body.String(), "deadline")
}
