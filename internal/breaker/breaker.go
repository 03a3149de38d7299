// Package breaker implements the three-state circuit breaker guarding
// sensitive market operations. State lives in a single process-wide record
// behind a BreakerStore; every operation is one read-modify-write call.
package breaker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Breaker drives the Closed / Open / HalfOpen state machine. It must be
// initialized once via Init before any other operation; the store reports
// ErrBreakerNotInitialized until then.
type Breaker struct {
	store  domain.BreakerStore
	clock  domain.Clock
	logger *slog.Logger
}

// New creates a Breaker over the given store and clock.
func New(store domain.BreakerStore, clock domain.Clock, logger *slog.Logger) *Breaker {
	return &Breaker{
		store:  store,
		clock:  clock,
		logger: logger.With(slog.String("component", "breaker")),
	}
}

// Init validates and persists the initial configuration and a Closed state.
// It fails if the breaker is already initialized.
func (b *Breaker) Init(ctx context.Context, admin string, cfg domain.BreakerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := b.store.GetState(ctx); err == nil {
		return fmt.Errorf("breaker: %w: already initialized", domain.ErrInvalidState)
	}

	now := b.clock.Now().Unix()
	if err := b.store.PutConfig(ctx, cfg); err != nil {
		return fmt.Errorf("breaker: init config: %w", err)
	}
	if err := b.store.PutState(ctx, domain.BreakerRecord{State: domain.BreakerClosed}); err != nil {
		return fmt.Errorf("breaker: init state: %w", err)
	}
	return b.appendEvent(ctx, domain.BreakerEvent{
		Action:    domain.BreakerActionInit,
		Admin:     admin,
		Timestamp: now,
	})
}

// State returns the current breaker record.
func (b *Breaker) State(ctx context.Context) (domain.BreakerRecord, error) {
	return b.store.GetState(ctx)
}

// Config returns the current breaker configuration.
func (b *Breaker) Config(ctx context.Context) (domain.BreakerConfig, error) {
	return b.store.GetConfig(ctx)
}

// Events returns the most recent breaker events, newest first.
func (b *Breaker) Events(ctx context.Context, limit int) ([]domain.BreakerEvent, error) {
	return b.store.ListEvents(ctx, limit)
}

// UpdateConfig validates and persists a new configuration.
func (b *Breaker) UpdateConfig(ctx context.Context, admin string, cfg domain.BreakerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := b.store.GetState(ctx); err != nil {
		return err
	}
	if err := b.store.PutConfig(ctx, cfg); err != nil {
		return fmt.Errorf("breaker: update config: %w", err)
	}
	return b.appendEvent(ctx, domain.BreakerEvent{
		Action:    domain.BreakerActionConfigUpdate,
		Admin:     admin,
		Timestamp: b.clock.Now().Unix(),
	})
}

// EmergencyPause forces the breaker Open. It fails with
// ErrBreakerAlreadyOpen when the breaker is already Open.
func (b *Breaker) EmergencyPause(ctx context.Context, admin, reason string) error {
	rec, err := b.store.GetState(ctx)
	if err != nil {
		return err
	}
	if rec.State == domain.BreakerOpen {
		return domain.ErrBreakerAlreadyOpen
	}

	now := b.clock.Now().Unix()
	rec.State = domain.BreakerOpen
	rec.OpenedTime = now
	rec.HalfOpenRequests = 0
	if err := b.store.PutState(ctx, rec); err != nil {
		return fmt.Errorf("breaker: pause: %w", err)
	}

	b.logger.Warn("emergency pause",
		slog.String("admin", admin),
		slog.String("reason", reason),
	)
	return b.appendEvent(ctx, domain.BreakerEvent{
		Action:    domain.BreakerActionEmergencyPause,
		Reason:    reason,
		Admin:     admin,
		Timestamp: now,
	})
}

// Recover manually closes the breaker. It fails with ErrBreakerNotOpen
// unless the breaker is Open or HalfOpen.
func (b *Breaker) Recover(ctx context.Context, admin, reason string) error {
	rec, err := b.store.GetState(ctx)
	if err != nil {
		return err
	}
	if rec.State != domain.BreakerOpen && rec.State != domain.BreakerHalfOpen {
		return domain.ErrBreakerNotOpen
	}

	now := b.clock.Now().Unix()
	rec.State = domain.BreakerClosed
	rec.FailureCount = 0
	rec.HalfOpenRequests = 0
	if err := b.store.PutState(ctx, rec); err != nil {
		return fmt.Errorf("breaker: recover: %w", err)
	}
	return b.appendEvent(ctx, domain.BreakerEvent{
		Action:    domain.BreakerActionRecovery,
		Reason:    reason,
		Admin:     admin,
		Timestamp: now,
	})
}

// Allow reports whether a guarded operation may proceed right now. While
// Open it lazily transitions to HalfOpen once the recovery timeout has
// elapsed (when auto recovery is enabled); while HalfOpen it admits at most
// half_open_max_requests probes. A denial is ErrBreakerOpen.
func (b *Breaker) Allow(ctx context.Context) error {
	rec, err := b.store.GetState(ctx)
	if err != nil {
		return err
	}
	cfg, err := b.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	now := b.clock.Now().Unix()

	switch rec.State {
	case domain.BreakerClosed:
		return nil

	case domain.BreakerOpen:
		if !cfg.AutoRecoveryEnabled || now-rec.OpenedTime < cfg.RecoveryTimeoutSecs {
			return domain.ErrBreakerOpen
		}
		rec.State = domain.BreakerHalfOpen
		rec.HalfOpenRequests = 0
		if err := b.store.PutState(ctx, rec); err != nil {
			return fmt.Errorf("breaker: half-open transition: %w", err)
		}
		if err := b.appendEvent(ctx, domain.BreakerEvent{
			Action:    domain.BreakerActionHalfOpenProbe,
			Reason:    "recovery timeout elapsed",
			Timestamp: now,
		}); err != nil {
			return err
		}
		return nil

	case domain.BreakerHalfOpen:
		if rec.HalfOpenRequests >= cfg.HalfOpenMaxRequests {
			return domain.ErrBreakerOpen
		}
		return nil

	default:
		return fmt.Errorf("breaker: %w: state %q", domain.ErrInvalidState, rec.State)
	}
}

// RecordSuccess updates rolling counters after a successful guarded
// operation. Enough consecutive HalfOpen successes close the breaker.
func (b *Breaker) RecordSuccess(ctx context.Context) error {
	rec, err := b.store.GetState(ctx)
	if err != nil {
		return err
	}
	cfg, err := b.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	now := b.clock.Now().Unix()

	rec.TotalRequests++
	rec.LastSuccessTime = now

	switch rec.State {
	case domain.BreakerClosed:
		rec.FailureCount = 0

	case domain.BreakerHalfOpen:
		rec.HalfOpenRequests++
		if rec.HalfOpenRequests >= cfg.HalfOpenMaxRequests {
			rec.State = domain.BreakerClosed
			rec.FailureCount = 0
			rec.HalfOpenRequests = 0
			if err := b.store.PutState(ctx, rec); err != nil {
				return fmt.Errorf("breaker: close transition: %w", err)
			}
			return b.appendEvent(ctx, domain.BreakerEvent{
				Action:    domain.BreakerActionClose,
				Reason:    "half-open probes succeeded",
				Timestamp: now,
			})
		}
	}

	if err := b.store.PutState(ctx, rec); err != nil {
		return fmt.Errorf("breaker: record success: %w", err)
	}
	return nil
}

// RecordFailure updates rolling counters after a failed guarded operation.
// A HalfOpen failure reopens the breaker immediately; Closed failures trip
// it once the consecutive-failure threshold is met and the error rate is
// above the configured maximum.
func (b *Breaker) RecordFailure(ctx context.Context, reason string) error {
	rec, err := b.store.GetState(ctx)
	if err != nil {
		return err
	}
	cfg, err := b.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	now := b.clock.Now().Unix()

	rec.TotalRequests++
	rec.ErrorCount++
	rec.FailureCount++
	rec.LastFailureTime = now

	switch rec.State {
	case domain.BreakerHalfOpen:
		rec.State = domain.BreakerOpen
		rec.OpenedTime = now
		rec.HalfOpenRequests = 0
		if err := b.store.PutState(ctx, rec); err != nil {
			return fmt.Errorf("breaker: reopen: %w", err)
		}
		return b.appendEvent(ctx, domain.BreakerEvent{
			Action:    domain.BreakerActionReopen,
			Reason:    reason,
			Timestamp: now,
		})

	case domain.BreakerClosed:
		if rec.FailureCount >= cfg.FailureThreshold && errorRateExceeded(rec, cfg) {
			rec.State = domain.BreakerOpen
			rec.OpenedTime = now
			if err := b.store.PutState(ctx, rec); err != nil {
				return fmt.Errorf("breaker: trip: %w", err)
			}
			b.logger.Warn("breaker tripped",
				slog.Int64("failure_count", rec.FailureCount),
				slog.String("reason", reason),
			)
			return b.appendEvent(ctx, domain.BreakerEvent{
				Action:    domain.BreakerActionAutomaticTrigger,
				Condition: domain.ConditionHighErrorRate,
				Reason:    reason,
				Timestamp: now,
			})
		}
	}

	if err := b.store.PutState(ctx, rec); err != nil {
		return fmt.Errorf("breaker: record failure: %w", err)
	}
	return nil
}

// AutomaticTrigger evaluates a named condition and opens the breaker when it
// holds. HighErrorRate is fully wired; the other declared conditions fail
// with an explicit error until their metrics are wired, rather than
// reporting a wrong answer.
func (b *Breaker) AutomaticTrigger(ctx context.Context, cond domain.TriggerCondition) (bool, error) {
	switch cond {
	case domain.ConditionHighErrorRate:
	case domain.ConditionHighLatency, domain.ConditionLowLiquidity:
		return false, fmt.Errorf("breaker: condition %s: %w: metric not wired", cond, domain.ErrInvalidState)
	default:
		return false, fmt.Errorf("breaker: unknown condition %q: %w", cond, domain.ErrInvalidState)
	}

	rec, err := b.store.GetState(ctx)
	if err != nil {
		return false, err
	}
	cfg, err := b.store.GetConfig(ctx)
	if err != nil {
		return false, err
	}
	if !errorRateExceeded(rec, cfg) {
		return false, nil
	}
	if rec.State == domain.BreakerOpen {
		return true, nil
	}

	now := b.clock.Now().Unix()
	rec.State = domain.BreakerOpen
	rec.OpenedTime = now
	rec.HalfOpenRequests = 0
	if err := b.store.PutState(ctx, rec); err != nil {
		return false, fmt.Errorf("breaker: trigger: %w", err)
	}
	if err := b.appendEvent(ctx, domain.BreakerEvent{
		Action:    domain.BreakerActionAutomaticTrigger,
		Condition: cond,
		Reason:    "error rate above configured maximum",
		Timestamp: now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Execute wraps a sensitive operation: it checks allowance, runs fn, and
// records the result. The original error is propagated on denial or failure.
func (b *Breaker) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := b.Allow(ctx); err != nil {
		return fmt.Errorf("breaker: %s denied: %w", op, err)
	}

	if err := fn(ctx); err != nil {
		if recErr := b.RecordFailure(ctx, op); recErr != nil {
			b.logger.ErrorContext(ctx, "record failure",
				slog.String("op", op),
				slog.String("error", recErr.Error()),
			)
		}
		return err
	}

	if err := b.RecordSuccess(ctx); err != nil {
		b.logger.ErrorContext(ctx, "record success",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (b *Breaker) appendEvent(ctx context.Context, ev domain.BreakerEvent) error {
	if err := b.store.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("breaker: append event: %w", err)
	}
	return nil
}

// errorRateExceeded implements the HighErrorRate condition:
// error_count*100/total_requests >= max_error_rate.
func errorRateExceeded(rec domain.BreakerRecord, cfg domain.BreakerConfig) bool {
	if rec.TotalRequests == 0 {
		return false
	}
	return rec.ErrorCount*100/rec.TotalRequests >= cfg.MaxErrorRate
}
