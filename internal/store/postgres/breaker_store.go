package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// BreakerStore implements domain.BreakerStore using PostgreSQL. State and
// config each live in a single row; events are append-only and trimmed to
// domain.BreakerEventLimit on every insert.
type BreakerStore struct {
	pool *pgxpool.Pool
}

var _ domain.BreakerStore = (*BreakerStore)(nil)

// NewBreakerStore creates a new BreakerStore backed by the given connection pool.
func NewBreakerStore(pool *pgxpool.Pool) *BreakerStore {
	return &BreakerStore{pool: pool}
}

// GetState returns the process-wide breaker record.
func (s *BreakerStore) GetState(ctx context.Context) (domain.BreakerRecord, error) {
	const query = `
		SELECT state, failure_count, last_failure_time, last_success_time,
		       opened_time, half_open_requests, total_requests, error_count
		FROM breaker_state WHERE id`

	var rec domain.BreakerRecord
	var state string
	err := s.pool.QueryRow(ctx, query).Scan(
		&state, &rec.FailureCount, &rec.LastFailureTime, &rec.LastSuccessTime,
		&rec.OpenedTime, &rec.HalfOpenRequests, &rec.TotalRequests, &rec.ErrorCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BreakerRecord{}, domain.ErrBreakerNotInitialized
		}
		return domain.BreakerRecord{}, fmt.Errorf("postgres: get breaker state: %w", err)
	}
	rec.State = domain.BreakerState(state)
	return rec, nil
}

// PutState upserts the breaker record.
func (s *BreakerStore) PutState(ctx context.Context, rec domain.BreakerRecord) error {
	const query = `
		INSERT INTO breaker_state (
			id, state, failure_count, last_failure_time, last_success_time,
			opened_time, half_open_requests, total_requests, error_count, updated_at
		) VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			state              = EXCLUDED.state,
			failure_count      = EXCLUDED.failure_count,
			last_failure_time  = EXCLUDED.last_failure_time,
			last_success_time  = EXCLUDED.last_success_time,
			opened_time        = EXCLUDED.opened_time,
			half_open_requests = EXCLUDED.half_open_requests,
			total_requests     = EXCLUDED.total_requests,
			error_count        = EXCLUDED.error_count,
			updated_at         = NOW()`

	_, err := s.pool.Exec(ctx, query,
		string(rec.State), rec.FailureCount, rec.LastFailureTime, rec.LastSuccessTime,
		rec.OpenedTime, rec.HalfOpenRequests, rec.TotalRequests, rec.ErrorCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: put breaker state: %w", err)
	}
	return nil
}

// GetConfig returns the breaker configuration.
func (s *BreakerStore) GetConfig(ctx context.Context) (domain.BreakerConfig, error) {
	const query = `
		SELECT max_error_rate, max_latency_ms, min_liquidity, failure_threshold,
		       recovery_timeout_secs, half_open_max_requests, auto_recovery_enabled
		FROM breaker_config WHERE id`

	var cfg domain.BreakerConfig
	err := s.pool.QueryRow(ctx, query).Scan(
		&cfg.MaxErrorRate, &cfg.MaxLatencyMS, &cfg.MinLiquidity, &cfg.FailureThreshold,
		&cfg.RecoveryTimeoutSecs, &cfg.HalfOpenMaxRequests, &cfg.AutoRecoveryEnabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BreakerConfig{}, domain.ErrBreakerNotInitialized
		}
		return domain.BreakerConfig{}, fmt.Errorf("postgres: get breaker config: %w", err)
	}
	return cfg, nil
}

// PutConfig upserts the breaker configuration.
func (s *BreakerStore) PutConfig(ctx context.Context, cfg domain.BreakerConfig) error {
	const query = `
		INSERT INTO breaker_config (
			id, max_error_rate, max_latency_ms, min_liquidity, failure_threshold,
			recovery_timeout_secs, half_open_max_requests, auto_recovery_enabled, updated_at
		) VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			max_error_rate         = EXCLUDED.max_error_rate,
			max_latency_ms         = EXCLUDED.max_latency_ms,
			min_liquidity          = EXCLUDED.min_liquidity,
			failure_threshold      = EXCLUDED.failure_threshold,
			recovery_timeout_secs  = EXCLUDED.recovery_timeout_secs,
			half_open_max_requests = EXCLUDED.half_open_max_requests,
			auto_recovery_enabled  = EXCLUDED.auto_recovery_enabled,
			updated_at             = NOW()`

	_, err := s.pool.Exec(ctx, query,
		cfg.MaxErrorRate, cfg.MaxLatencyMS, cfg.MinLiquidity, cfg.FailureThreshold,
		cfg.RecoveryTimeoutSecs, cfg.HalfOpenMaxRequests, cfg.AutoRecoveryEnabled,
	)
	if err != nil {
		return fmt.Errorf("postgres: put breaker config: %w", err)
	}
	return nil
}

// AppendEvent inserts a transition event and trims the history to the
// bounded limit, oldest rows first.
func (s *BreakerStore) AppendEvent(ctx context.Context, ev domain.BreakerEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: append breaker event: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO breaker_events (action, condition, reason, admin_id, at_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		string(ev.Action), string(ev.Condition), ev.Reason, ev.Admin, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert breaker event: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM breaker_events
		 WHERE seq NOT IN (SELECT seq FROM breaker_events ORDER BY seq DESC LIMIT $1)`,
		domain.BreakerEventLimit,
	)
	if err != nil {
		return fmt.Errorf("postgres: trim breaker events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: append breaker event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events, newest first.
func (s *BreakerStore) ListEvents(ctx context.Context, limit int) ([]domain.BreakerEvent, error) {
	if limit <= 0 || limit > domain.BreakerEventLimit {
		limit = domain.BreakerEventLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT action, condition, reason, admin_id, at_time
		 FROM breaker_events ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list breaker events: %w", err)
	}
	defer rows.Close()

	var out []domain.BreakerEvent
	for rows.Next() {
		var ev domain.BreakerEvent
		var action, condition string
		if err := rows.Scan(&action, &condition, &ev.Reason, &ev.Admin, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan breaker event: %w", err)
		}
		ev.Action = domain.BreakerAction(action)
		ev.Condition = domain.TriggerCondition(condition)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list breaker events: %w", err)
	}
	return out, nil
}
