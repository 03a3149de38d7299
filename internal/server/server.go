package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/server/handler"
	"github.com/alanyoungcy/predictmarket/internal/server/middleware"
	"github.com/alanyoungcy/predictmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Disputes *handler.DisputeHandler
	Breaker  *handler.BreakerHandler
	Accounts *handler.AccountHandler
}

// Server is the HTTP + WebSocket API for the prediction market service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, auth) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.Health)

	// Market lifecycle.
	mux.HandleFunc("GET /api/markets", handlers.Markets.List)
	mux.HandleFunc("POST /api/markets", handlers.Markets.Create)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.Get)
	mux.HandleFunc("POST /api/markets/{id}/votes", handlers.Markets.Vote)
	mux.HandleFunc("POST /api/markets/{id}/oracle", handlers.Markets.FetchOracle)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/claims", handlers.Markets.Claim)
	mux.HandleFunc("POST /api/markets/{id}/fees", handlers.Markets.CollectFees)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.Markets.Cancel)
	mux.HandleFunc("POST /api/markets/{id}/close", handlers.Markets.Close)

	// Disputes.
	mux.HandleFunc("GET /api/markets/{id}/disputes", handlers.Disputes.List)
	mux.HandleFunc("POST /api/markets/{id}/disputes", handlers.Disputes.File)
	mux.HandleFunc("POST /api/markets/{id}/disputes/resolve", handlers.Disputes.Resolve)
	mux.HandleFunc("GET /api/markets/{id}/disputes/analytics", handlers.Disputes.Analytics)

	// Account funding.
	mux.HandleFunc("POST /api/accounts/{id}/deposits", handlers.Accounts.Deposit)
	mux.HandleFunc("GET /api/accounts/{id}/balance", handlers.Accounts.Balance)

	// Circuit breaker administration.
	mux.HandleFunc("GET /api/breaker", handlers.Breaker.State)
	mux.HandleFunc("GET /api/breaker/config", handlers.Breaker.Config)
	mux.HandleFunc("PUT /api/breaker/config", handlers.Breaker.UpdateConfig)
	mux.HandleFunc("GET /api/breaker/events", handlers.Breaker.Events)
	mux.HandleFunc("POST /api/breaker/pause", handlers.Breaker.Pause)
	mux.HandleFunc("POST /api/breaker/recover", handlers.Breaker.Recover)
	mux.HandleFunc("POST /api/breaker/trigger", handlers.Breaker.Trigger)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
