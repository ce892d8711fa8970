package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/backend/bugsnag"
	"github.com/gyaneshwarpardhi/trackrelay/internal/engine"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
	"github.com/gyaneshwarpardhi/trackrelay/internal/route"
	"github.com/gyaneshwarpardhi/trackrelay/internal/session"
	"github.com/gyaneshwarpardhi/trackrelay/internal/tracking"
)

type createSessionRequest struct {
	Host         string                 `json:"host"`
	URL          string                 `json:"url"`
	Path         string                 `json:"path"`
	Consent      *bool                  `json:"consent"`
	Capabilities *tracking.Capabilities `json:"capabilities"`
}

type sessionResponse struct {
	ID           string                  `json:"id"`
	State        string                  `json:"state"`
	Consent      bool                    `json:"consent"`
	Wallet       string                  `json:"wallet,omitempty"`
	Integrations tracking.IntegrationSet `json:"integrations"`
}

func newSessionResponse(s *session.Session) sessionResponse {
	d := s.Dispatcher
	return sessionResponse{
		ID:           s.ID,
		State:        d.State().String(),
		Consent:      d.ConsentAccepted(),
		Wallet:       d.Wallet(),
		Integrations: d.Integrations(),
	}
}

// POST /v1/sessions
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	opts := session.Options{URL: req.URL, Host: req.Host, Path: req.Path, Consent: req.Consent}
	if req.Capabilities != nil {
		opts.Capabilities = *req.Capabilities
	}
	s, err := h.sessions.Create(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(s))
}

// GET /v1/sessions/{id}
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// DELETE /v1/sessions/{id}
func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /v1/sessions/{id}/consent
func (h *Handler) setConsent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Accepted *bool `json:"accepted"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Accepted == nil {
		writeError(w, http.StatusBadRequest, "accepted is required")
		return
	}
	s.Dispatcher.SetConsent(r.Context(), *req.Accepted)
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// PUT /v1/sessions/{id}/wallet: empty pubkey means disconnected.
func (h *Handler) setWallet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Pubkey string `json:"pubkey"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Pubkey != "" {
		pk, err := solana.PublicKeyFromBase58(req.Pubkey)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid pubkey: %s", err))
			return
		}
		req.Pubkey = pk.String()
	}
	s.Dispatcher.SetWallet(r.Context(), req.Pubkey)
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// PUT /v1/sessions/{id}/capabilities
func (h *Handler) setCapabilities(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var caps tracking.Capabilities
	if !decodeBody(w, r, &caps) {
		return
	}
	s.Dispatcher.SetCapabilities(caps)
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// POST /v1/sessions/{id}/route: a completed client-side navigation.
func (h *Handler) routeChange(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	path := req.Path
	if path == "" && req.URL != "" {
		loc, err := tracking.ParseLocation(req.URL)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid url: %s", err))
			return
		}
		path = loc.Path
	}
	if path == "" {
		writeError(w, http.StatusBadRequest, "path or url is required")
		return
	}
	s.Routes.Emit(r.Context(), route.ChangeComplete, path)
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/sessions/{id}/events: tracked before the response is written.
func (h *Handler) trackEvent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var ev event.TrackingEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.eng.ProcessSync(r.Context(), s.Dispatcher, &ev); err != nil {
		status := http.StatusGatewayTimeout
		if errors.Is(err, engine.ErrQueueFull) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "tracked"})
}

// POST /v1/sessions/{id}/events/batch: async batch ingestion (up to 100 events).
func (h *Handler) trackBatch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var events []*event.TrackingEvent
	if !decodeBody(w, r, &events) {
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(events) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(events), maxBatchSize))
		return
	}

	queued := 0
	var invalid []string
	for i, ev := range events {
		if ev == nil {
			invalid = append(invalid, fmt.Sprintf("event %d: null", i))
			continue
		}
		if err := ev.Validate(); err != nil {
			invalid = append(invalid, fmt.Sprintf("event %d: %s", i, err))
			continue
		}
		if h.eng.ProcessAsync(s.Dispatcher, ev) {
			queued++
		}
	}

	resp := map[string]interface{}{
		"total":    len(events),
		"queued":   queued,
		"rejected": len(events) - queued,
	}
	if len(invalid) > 0 {
		resp["invalid"] = invalid
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// POST /v1/sessions/{id}/errors: a client-side error for error reporting.
func (h *Handler) reportError(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Message  string         `json:"message"`
		Class    string         `json:"class"`
		Metadata map[string]any `json:"metadata"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	err := errors.New(req.Message)
	if req.Class != "" {
		err = &bugsnag.ClassError{Class: req.Class, Err: err}
	}
	if err := s.Dispatcher.ReportError(r.Context(), err, req.Metadata); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, backend.ErrNotInitialized) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reported"})
}

// session resolves {id}, writing a 404 when it is unknown.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return s, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}
