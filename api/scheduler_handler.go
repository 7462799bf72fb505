package api

import (
	"net/http"
)

func (a *API) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SchedulerResponse{Status: a.eng.Scheduler().Status().String()})
}

func (a *API) pauseScheduler(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.eng.Scheduler().Pause())
}

func (a *API) resumeScheduler(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.eng.Scheduler().Resume())
}

func (a *API) stopScheduler(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.eng.Scheduler().Stop(r.Context()))
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.schedulerStatus(w, r)
}
