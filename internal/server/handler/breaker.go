package handler

import (
	"net/http"
	"strconv"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/service"
)

// BreakerHandler exposes circuit breaker administration.
type BreakerHandler struct {
	breaker *service.BreakerService
}

func NewBreakerHandler(breaker *service.BreakerService) *BreakerHandler {
	return &BreakerHandler{breaker: breaker}
}

// State handles GET /api/breaker.
func (h *BreakerHandler) State(w http.ResponseWriter, r *http.Request) {
	rec, err := h.breaker.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Config handles GET /api/breaker/config.
func (h *BreakerHandler) Config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.breaker.Config(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Events handles GET /api/breaker/events.
func (h *BreakerHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit := domain.BreakerEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	events, err := h.breaker.Events(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.BreakerEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

type pauseRequest struct {
	Admin  string `json:"admin"`
	Reason string `json:"reason"`
}

// Pause handles POST /api/breaker/pause.
func (h *BreakerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.breaker.Pause(r.Context(), req.Admin, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(domain.BreakerOpen)})
}

// Recover handles POST /api/breaker/recover.
func (h *BreakerHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.breaker.Recover(r.Context(), req.Admin, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(domain.BreakerClosed)})
}

type updateConfigRequest struct {
	Admin  string               `json:"admin"`
	Config domain.BreakerConfig `json:"config"`
}

// UpdateConfig handles PUT /api/breaker/config.
func (h *BreakerHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.breaker.UpdateConfig(r.Context(), req.Admin, req.Config); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type triggerRequest struct {
	Admin     string                  `json:"admin"`
	Condition domain.TriggerCondition `json:"condition"`
}

// Trigger handles POST /api/breaker/trigger. It evaluates an automatic trip
// condition and reports whether the breaker opened.
func (h *BreakerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	tripped, err := h.breaker.Trigger(r.Context(), req.Admin, req.Condition)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tripped": tripped})
}
