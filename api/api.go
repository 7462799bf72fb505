// Package api exposes the engine over HTTP: enqueueing, dead-letter
// operations, job status and metrics, execution logs and scheduler control.
// Routes are registered on a chi router under a configurable prefix.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/chrono/engine"
	"github.com/xraph/chrono/stream"
)

// API wires the HTTP handlers to an Engine.
type API struct {
	eng    *engine.Engine
	prefix string
	logger *slog.Logger
	events *stream.Broker
}

// Option configures an API.
type Option func(*API)

// WithPrefix mounts every route under prefix. Defaults to the engine's
// configured HTTP prefix.
func WithPrefix(prefix string) Option {
	return func(a *API) { a.prefix = prefix }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithEvents serves b as a Server-Sent Events stream at GET /events. The
// broker must also be registered on the engine as an extension.
func WithEvents(b *stream.Broker) Option {
	return func(a *API) { a.events = b }
}

// New creates an API over eng.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:    eng,
		prefix: eng.Config().HTTP.Prefix,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	a.prefix = "/" + strings.Trim(a.prefix, "/")
	return a
}

// Handler returns a router with every route mounted under the prefix.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if a.prefix == "/" {
		a.RegisterRoutes(r)
		return r
	}
	r.Route(a.prefix, a.RegisterRoutes)
	return r
}

// RegisterRoutes registers all routes on r, relative to r's mount point.
func (a *API) RegisterRoutes(r chi.Router) {
	a.registerJobRoutes(r)
	a.registerDeadLetterRoutes(r)
	a.registerStatusRoutes(r)
	a.registerSchedulerRoutes(r)
	if a.events != nil {
		r.Method(http.MethodGet, "/events", stream.NewHandler(a.events, 0))
	}
}

func (a *API) registerJobRoutes(r chi.Router) {
	r.Post("/jobs/enqueue", a.enqueue)
	r.Get("/jobs/{jobId}/logs", a.jobLogs)
}

func (a *API) registerDeadLetterRoutes(r chi.Router) {
	r.Get("/dead-letters", a.listDeadLetters)
	r.Post("/jobs/retry/{deadLetterId}", a.retryDeadLetter)
	r.Delete("/jobs/{jobId}/dead-letters", a.discardDeadLetters)
}

func (a *API) registerStatusRoutes(r chi.Router) {
	r.Get("/jobs/status", a.allStatuses)
	r.Get("/jobs/status/{jobId}", a.jobStatus)
	r.Get("/jobs/metrics", a.allMetrics)
	r.Get("/jobs/metrics/{jobId}", a.jobMetrics)
}

func (a *API) registerSchedulerRoutes(r chi.Router) {
	r.Get("/scheduler/status", a.schedulerStatus)
	r.Post("/scheduler/pause", a.pauseScheduler)
	r.Post("/scheduler/resume", a.resumeScheduler)
	r.Post("/scheduler/stop", a.stopScheduler)
}
