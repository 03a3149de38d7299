package handler

import (
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/service"
)

// AccountHandler exposes account funding and balance reads.
type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type depositRequest struct {
	Admin  string `json:"admin"`
	Amount int64  `json:"amount"`
}

// Deposit handles POST /api/accounts/{id}/deposits.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	account := r.PathValue("id")
	if err := h.accounts.Deposit(r.Context(), req.Admin, account, req.Amount); err != nil {
		writeError(w, err)
		return
	}

	balance, err := h.accounts.Balance(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "balance": balance})
}

// Balance handles GET /api/accounts/{id}/balance.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("id")
	balance, err := h.accounts.Balance(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "balance": balance})
}
