package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/id"
)

func (a *API) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := dlq.ListOpts{JobID: q.Get("jobId")}
	var ok bool
	if opts.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if opts.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	items, err := a.eng.DeadLetters().List(r.Context(), opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*dlq.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) retryDeadLetter(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParseDeadLetterID(chi.URLParam(r, "deadLetterId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dead letter id: "+err.Error())
		return
	}

	qj, err := a.eng.DeadLetters().Requeue(r.Context(), itemID)
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

func (a *API) discardDeadLetters(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	n, err := a.eng.DeadLetters().Discard(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DiscardResponse{JobID: jobID, Deleted: n})
}

// intParam parses an optional non-negative query parameter, writing a 400
// when it is malformed.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
