package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// writeJSON serializes v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Warn("encode response", slog.Any("error", err))
		}
	}
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// writeError maps a domain error onto an HTTP status and writes the envelope.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

// statusFor translates domain sentinel errors into HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrFeeAlreadyCollected),
		errors.Is(err, domain.ErrMarketAlreadyResolved),
		errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrMarketStillActive),
		errors.Is(err, domain.ErrMarketNotCancellable),
		errors.Is(err, domain.ErrMarketNotDisputed),
		errors.Is(err, domain.ErrMarketNotResolved),
		errors.Is(err, domain.ErrBreakerAlreadyOpen),
		errors.Is(err, domain.ErrBreakerNotOpen),
		errors.Is(err, domain.ErrLockHeld),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrInvalidOutcomes),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidThreshold),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientStake),
		errors.Is(err, domain.ErrInvalidComparison),
		errors.Is(err, domain.ErrOracleInvalidConfig),
		errors.Is(err, domain.ErrBreakerInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrOracleUnavailable),
		errors.Is(err, domain.ErrOracleDataStale),
		errors.Is(err, domain.ErrOraclePriceOutOfRange),
		errors.Is(err, domain.ErrOracleInvalidFeed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decode reads the request body into dst and rejects malformed JSON.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeBadRequest reports a malformed request body.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
}

// parseListOpts extracts pagination parameters and an optional status filter.
func parseListOpts(r *http.Request) (domain.ListOpts, domain.MarketStatus) {
	opts := domain.ListOpts{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 500 {
				n = 500
			}
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	return opts, domain.MarketStatus(q.Get("status"))
}
