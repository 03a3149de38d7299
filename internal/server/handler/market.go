package handler

import (
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/service"
)

// MarketHandler exposes market lifecycle operations over HTTP.
type MarketHandler struct {
	markets *service.MarketService
}

func NewMarketHandler(markets *service.MarketService) *MarketHandler {
	return &MarketHandler{markets: markets}
}

type createMarketRequest struct {
	Admin        string              `json:"admin"`
	Question     string              `json:"question"`
	Outcomes     []string            `json:"outcomes"`
	DurationDays int64               `json:"duration_days"`
	Oracle       domain.OracleConfig `json:"oracle"`
}

// Create handles POST /api/markets.
func (h *MarketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	id, err := h.markets.CreateMarket(r.Context(), req.Admin, req.Question, req.Outcomes, req.DurationDays, req.Oracle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// List handles GET /api/markets.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, status := parseListOpts(r)
	markets, err := h.markets.ListMarkets(r.Context(), status, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}

// Get handles GET /api/markets/{id}.
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type voteRequest struct {
	Voter   string `json:"voter"`
	Outcome string `json:"outcome"`
	Stake   int64  `json:"stake"`
}

// Vote handles POST /api/markets/{id}/votes.
func (h *MarketHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.markets.Vote(r.Context(), req.Voter, r.PathValue("id"), req.Outcome, req.Stake); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// FetchOracle handles POST /api/markets/{id}/oracle. It pulls the configured
// price feed and locks in the oracle outcome.
func (h *MarketHandler) FetchOracle(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.markets.FetchOracleResult(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"oracle_result": outcome})
}

// Resolve handles POST /api/markets/{id}/resolve.
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.markets.ResolveMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"winning_outcome": outcome})
}

type claimRequest struct {
	User string `json:"user"`
}

// Claim handles POST /api/markets/{id}/claims.
func (h *MarketHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	amount, err := h.markets.ClaimWinnings(r.Context(), req.User, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount})
}

type adminRequest struct {
	Admin string `json:"admin"`
}

// CollectFees handles POST /api/markets/{id}/fees.
func (h *MarketHandler) CollectFees(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	amount, err := h.markets.CollectFees(r.Context(), req.Admin, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount})
}

// Cancel handles POST /api/markets/{id}/cancel.
func (h *MarketHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.markets.CancelMarket(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.MarketStatusCancelled)})
}

// Close handles POST /api/markets/{id}/close. The market is archived to blob
// storage before the status flips.
func (h *MarketHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.markets.CloseMarket(r.Context(), req.Admin, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.MarketStatusClosed)})
}
