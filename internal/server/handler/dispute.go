package handler

import (
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/service"
)

// DisputeHandler exposes dispute filing, settlement and analytics.
type DisputeHandler struct {
	disputes *service.DisputeService
}

func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

type fileDisputeRequest struct {
	Voter  string `json:"voter"`
	Stake  int64  `json:"stake"`
	Reason string `json:"reason"`
}

// File handles POST /api/markets/{id}/disputes.
func (h *DisputeHandler) File(w http.ResponseWriter, r *http.Request) {
	var req fileDisputeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.disputes.FileDispute(r.Context(), req.Voter, r.PathValue("id"), req.Stake, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "filed"})
}

type resolveDisputeRequest struct {
	Admin string `json:"admin"`
}

// Resolve handles POST /api/markets/{id}/disputes/resolve. It replays the
// consensus engine with the dispute-adjusted weights and commits the outcome.
func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	outcome, err := h.disputes.ResolveDispute(r.Context(), req.Admin, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"winning_outcome": outcome})
}

// List handles GET /api/markets/{id}/disputes.
func (h *DisputeHandler) List(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.disputes.Disputes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if disputes == nil {
		disputes = []domain.Dispute{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": disputes, "count": len(disputes)})
}

// Analytics handles GET /api/markets/{id}/disputes/analytics.
func (h *DisputeHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.disputes.Analytics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}
