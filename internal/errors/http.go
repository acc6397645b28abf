// Package errors provides the HTTP error envelope and the mapping
// from domain errors to API error codes.
//
// Every non-2xx response carries the same JSON shape so clients can
// branch on a stable machine-readable code instead of parsing
// messages.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tailorforge/tailorbatch/pkg/batchstore"
	"github.com/tailorforge/tailorbatch/pkg/manifest"
)

// API error codes. These are part of the stable contract.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeResultsNotReady  = "RESULTS_NOT_READY"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

// HTTPErrorResponse is the JSON envelope for error responses.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError is the error payload inside the envelope.
type HTTPError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// RequestID correlates the response with server logs, if known.
	RequestID string `json:"request_id,omitempty"`

	// Details carries additional structured context.
	Details map[string]any `json:"details,omitempty"`
}

// WriteError writes an error envelope with the given code and status.
func WriteError(w http.ResponseWriter, code, message string, status int) {
	WriteErrorWithRequestID(w, code, message, status, "")
}

// WriteErrorWithRequestID writes an error envelope including the
// request correlation id.
func WriteErrorWithRequestID(w http.ResponseWriter, code, message string, status int, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// RespondWithError maps err onto the API taxonomy and writes the
// envelope. Unknown errors become 500 INTERNAL_ERROR with a generic
// message; the underlying detail belongs in server logs, not in the
// response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs manifest.ValidationErrors

	switch {
	case errors.Is(err, batchstore.ErrResultsNotReady):
		WriteError(w, CodeResultsNotReady, "batch has not reached a terminal state", http.StatusNotFound)
	case errors.Is(err, batchstore.ErrNotFound):
		WriteError(w, CodeNotFound, "batch not found", http.StatusNotFound)
	case errors.As(err, &verrs), errors.Is(err, manifest.ErrValidationFailed):
		WriteError(w, CodeValidationFailed, err.Error(), http.StatusBadRequest)
	default:
		WriteError(w, CodeInternal, "internal server error", http.StatusInternalServerError)
	}
}

// StatusFor returns the HTTP status RespondWithError would use for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, batchstore.ErrResultsNotReady),
		errors.Is(err, batchstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, manifest.ErrValidationFailed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
