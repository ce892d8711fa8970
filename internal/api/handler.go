package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/trackrelay/internal/engine"
	"github.com/gyaneshwarpardhi/trackrelay/internal/metrics"
	"github.com/gyaneshwarpardhi/trackrelay/internal/session"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng      *engine.Engine
	sessions *session.Manager
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, sessions *session.Manager) http.Handler {
	h := &Handler{eng: eng, sessions: sessions}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(loggingMiddleware)
	r.Use(chimw.Recoverer)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.closeSession)
			r.Put("/consent", h.setConsent)
			r.Put("/wallet", h.setWallet)
			r.Put("/capabilities", h.setCapabilities)
			r.Post("/route", h.routeChange)
			r.Post("/events", h.trackEvent)
			r.Post("/events/batch", h.trackBatch)
			r.Post("/errors", h.reportError)
		})
	})
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if event queue >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"sessions":          h.sessions.Len(),
	})
}
