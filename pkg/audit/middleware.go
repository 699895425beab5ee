package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/herbtrace/herbtrace/pkg/authz"
)

// CorrelationHeader carries a caller-supplied correlation ID.
const CorrelationHeader = "X-Correlation-ID"

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Middleware propagates the correlation ID into the request context and
// records an api.request event for every mutating call once the handler
// completes. Writes are best effort and never fail the request.
func Middleware(recorder Recorder, cfg Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = middleware.GetReqID(ctx)
			}
			if correlationID != "" {
				r = r.WithContext(WithCorrelationID(ctx, correlationID))
			}

			if !cfg.Enabled || recorder == nil || !isAuditedRequest(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(capture, r)

			statusCode := capture.statusCode
			outcome := outcomeFromStatus(statusCode)
			if outcome == OutcomeDenied && !cfg.LogDenied {
				return
			}

			actor, actorRole := "anonymous", ""
			if a, ok := authz.ActorFromContext(r.Context()); ok {
				actor, actorRole = a.ID, string(a.Role)
			}

			event := &Event{
				CorrelationID: correlationID,
				EventType:     EventAPIRequest,
				Actor:         actor,
				ActorRole:     actorRole,
				ResourceType:  extractResourceType(r.URL.Path),
				ResourceID:    extractResourceID(r.URL.Path),
				Action:        extractActionVerb(r.Method, r.URL.Path),
				Outcome:       outcome,
				StatusCode:    statusCode,
				CreatedAt:     startTime.UTC(),
				Metadata: JSONMap{
					"method":   r.Method,
					"path":     r.URL.Path,
					"duration": time.Since(startTime).String(),
				},
			}

			if err := recorder.Record(r.Context(), event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", middleware.GetReqID(r.Context()))
			}
		})
	}
}
