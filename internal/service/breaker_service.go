package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/breaker"
	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// breakerChannel carries breaker state-change notifications for dashboards.
const breakerChannel = "ch:breaker"

// BreakerService exposes the circuit breaker's admin surface. Every
// mutation is admin-authorized and audited; reads are open.
type BreakerService struct {
	breaker *breaker.Breaker
	audit   domain.AuditStore
	bus     domain.SignalBus
	auth    domain.Authorizer
	logger  *slog.Logger
}

// NewBreakerService creates a BreakerService. bus may be nil when no event
// fan-out is wired.
func NewBreakerService(brk *breaker.Breaker, audit domain.AuditStore, bus domain.SignalBus, auth domain.Authorizer, logger *slog.Logger) *BreakerService {
	return &BreakerService{
		breaker: brk,
		audit:   audit,
		bus:     bus,
		auth:    auth,
		logger:  logger.With(slog.String("component", "breaker_service")),
	}
}

// Init installs the breaker configuration and Closed state. It must run once
// before any guarded operation and fails if the breaker already exists.
func (s *BreakerService) Init(ctx context.Context, admin string, cfg domain.BreakerConfig) error {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return err
	}
	if err := s.breaker.Init(ctx, admin, cfg); err != nil {
		return err
	}
	s.auditLog(ctx, "breaker_initialized", map[string]any{"admin": admin})
	return nil
}

// Pause trips the breaker open by hand.
func (s *BreakerService) Pause(ctx context.Context, admin, reason string) error {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return err
	}
	if err := s.breaker.EmergencyPause(ctx, admin, reason); err != nil {
		return err
	}
	s.auditLog(ctx, "breaker_paused", map[string]any{"admin": admin, "reason": reason})
	s.publish(ctx, "breaker_paused", map[string]any{"state": string(domain.BreakerOpen), "reason": reason})
	s.logger.WarnContext(ctx, "breaker paused by admin",
		slog.String("admin", admin),
		slog.String("reason", reason),
	)
	return nil
}

// Recover forces the breaker back to Closed from Open or HalfOpen.
func (s *BreakerService) Recover(ctx context.Context, admin, reason string) error {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return err
	}
	if err := s.breaker.Recover(ctx, admin, reason); err != nil {
		return err
	}
	s.auditLog(ctx, "breaker_recovered", map[string]any{"admin": admin, "reason": reason})
	s.publish(ctx, "breaker_recovered", map[string]any{"state": string(domain.BreakerClosed), "reason": reason})
	return nil
}

// UpdateConfig replaces the breaker configuration after validation.
func (s *BreakerService) UpdateConfig(ctx context.Context, admin string, cfg domain.BreakerConfig) error {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return err
	}
	if err := s.breaker.UpdateConfig(ctx, admin, cfg); err != nil {
		return err
	}
	s.auditLog(ctx, "breaker_config_updated", map[string]any{"admin": admin})
	return nil
}

// Trigger evaluates a named trigger condition against current counters and
// reports whether the breaker tripped.
func (s *BreakerService) Trigger(ctx context.Context, admin string, cond domain.TriggerCondition) (bool, error) {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return false, err
	}
	tripped, err := s.breaker.AutomaticTrigger(ctx, cond)
	if err != nil {
		return false, err
	}
	s.auditLog(ctx, "breaker_triggered", map[string]any{
		"admin":     admin,
		"condition": string(cond),
		"tripped":   tripped,
	})
	if tripped {
		s.publish(ctx, "breaker_tripped", map[string]any{
			"state":     string(domain.BreakerOpen),
			"condition": string(cond),
		})
	}
	return tripped, nil
}

// State returns the current breaker record.
func (s *BreakerService) State(ctx context.Context) (domain.BreakerRecord, error) {
	return s.breaker.State(ctx)
}

// Config returns the current breaker configuration.
func (s *BreakerService) Config(ctx context.Context) (domain.BreakerConfig, error) {
	return s.breaker.Config(ctx)
}

// Events returns the bounded transition history, newest first.
func (s *BreakerService) Events(ctx context.Context, limit int) ([]domain.BreakerEvent, error) {
	return s.breaker.Events(ctx, limit)
}

// publish sends a breaker notification on a best-effort basis; failures are
// logged and never fail the call.
func (s *BreakerService) publish(ctx context.Context, event string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, breakerChannel, body); err != nil {
		s.logger.WarnContext(ctx, "publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BreakerService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
