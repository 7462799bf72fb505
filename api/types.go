package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/status"
)

// ──────────────────────────────────────────────────
// Request and response bodies
// ──────────────────────────────────────────────────

// EnqueueRequest is the body of POST /jobs/enqueue.
type EnqueueRequest struct {
	JobID    string          `json:"jobId"`
	Input    json.RawMessage `json:"input,omitempty"`
	Metadata struct {
		CorrelationID string `json:"correlationId,omitempty"`
		UserID        string `json:"userId,omitempty"`
	} `json:"metadata"`
}

// EnqueueResponse acknowledges an enqueued job.
type EnqueueResponse struct {
	RequestID     string    `json:"request_id"`
	JobID         string    `json:"job_id"`
	CorrelationID string    `json:"correlation_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// DiscardResponse reports how many dead letters were removed.
type DiscardResponse struct {
	JobID   string `json:"job_id"`
	Deleted int64  `json:"deleted"`
}

// MetricsResponse is JobMetrics plus its derived success rate.
type MetricsResponse struct {
	*status.JobMetrics
	SuccessRate float64 `json:"success_rate"`
}

// SchedulerResponse reports the scheduler state.
type SchedulerResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newMetricsResponse(m *status.JobMetrics) MetricsResponse {
	return MetricsResponse{JobMetrics: m, SuccessRate: m.SuccessRate()}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

// fail maps err to a status code. Unmapped errors are logged and reported
// as 500 without their text.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chrono.ErrJobNotFound),
		errors.Is(err, chrono.ErrDeadLetterNotFound),
		errors.Is(err, chrono.ErrNoStatus):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chrono.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chrono.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.logger.Error("api: request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
