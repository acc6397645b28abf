package middleware

import (
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/tailorforge/tailorbatch/internal/errors"
	"github.com/tailorforge/tailorbatch/internal/observability"
)

// Recovery converts handler panics into 500 responses with the
// standard error envelope. Without it, a panic tears down the
// connection with no response body at all.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := GetRequestID(r.Context())
				observability.ServerLogger.Error("handler panic",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))

				// The panic value goes to the log above, never to the
				// client.
				apperrors.WriteErrorWithRequestID(w,
					apperrors.CodeInternal,
					"internal server error",
					http.StatusInternalServerError,
					requestID)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
