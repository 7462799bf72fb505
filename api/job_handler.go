package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/chrono/engine"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/job"
)

// defaultTake bounds /jobs/{jobId}/logs when take is absent; maxTake bounds
// it always.
const (
	defaultTake = 100
	maxTake     = 1000
)

func (a *API) enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}

	var input any
	if len(req.Input) > 0 && string(req.Input) != "null" {
		input = req.Input
	}
	opts := []engine.EnqueueOption{engine.WithTriggerSource(job.SourceAPI)}
	if req.Metadata.CorrelationID != "" {
		opts = append(opts, engine.WithCorrelationID(req.Metadata.CorrelationID))
	}
	if req.Metadata.UserID != "" {
		opts = append(opts, engine.WithUserID(req.Metadata.UserID))
	}

	qj, err := a.eng.Enqueue(r.Context(), req.JobID, input, opts...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		RequestID:     qj.RequestID,
		JobID:         qj.JobID,
		CorrelationID: qj.Metadata.CorrelationID,
		EnqueuedAt:    qj.EnqueuedAt,
	})
}

func (a *API) jobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	take := defaultTake
	if raw := r.URL.Query().Get("take"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "take must be a positive integer")
			return
		}
		take = min(n, maxTake)
	}

	logs, err := a.eng.Logs(r.Context(), jobID, take)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []*history.Log{}
	}
	writeJSON(w, http.StatusOK, logs)
}
