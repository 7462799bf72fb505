package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/chrono/status"
)

func (a *API) allStatuses(w http.ResponseWriter, r *http.Request) {
	all, err := a.eng.Statuses().All(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if all == nil {
		all = []*status.JobStatus{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (a *API) jobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.eng.Statuses().Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) allMetrics(w http.ResponseWriter, r *http.Request) {
	all, err := a.eng.Metrics().All(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]MetricsResponse, 0, len(all))
	for _, m := range all {
		out = append(out, newMetricsResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) jobMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := a.eng.Metrics().Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMetricsResponse(m))
}
