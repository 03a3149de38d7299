package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrMarketNotFound, http.StatusNotFound},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAlreadyVoted, http.StatusConflict},
		{domain.ErrAlreadyClaimed, http.StatusConflict},
		{domain.ErrFeeAlreadyCollected, http.StatusConflict},
		{domain.ErrMarketAlreadyResolved, http.StatusConflict},
		{domain.ErrInvalidQuestion, http.StatusBadRequest},
		{domain.ErrInsufficientStake, http.StatusBadRequest},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInsufficientFunds, http.StatusConflict},
		{domain.ErrBreakerOpen, http.StatusServiceUnavailable},
		{domain.ErrOracleUnavailable, http.StatusBadGateway},
		{domain.ErrStorage, http.StatusInternalServerError},
		// Wrapped errors still map through errors.Is.
		{fmt.Errorf("market_service: vote: %w", domain.ErrAlreadyVoted), http.StatusConflict},
	}

	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestParseListOpts(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/markets?limit=10&offset=20&status=active", nil)
	opts, status := parseListOpts(r)
	if opts.Limit != 10 || opts.Offset != 20 {
		t.Errorf("opts = %+v, want limit 10 offset 20", opts)
	}
	if status != domain.MarketStatusActive {
		t.Errorf("status = %q, want active", status)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	opts, status = parseListOpts(r)
	if opts.Limit != 50 || opts.Offset != 0 || status != "" {
		t.Errorf("defaults = %+v status %q, want limit 50 offset 0 empty status", opts, status)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/markets?limit=9999", nil)
	opts, _ = parseListOpts(r)
	if opts.Limit != 500 {
		t.Errorf("limit cap = %d, want 500", opts.Limit)
	}
}
