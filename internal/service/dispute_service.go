package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/breaker"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/resolution"
)

// DisputeService implements staked disputes against a proposed resolution.
// Dispute stakes accumulate and reweight the resolution engine; they are not
// automatically redistributed. Settlement is an admin decision recorded in
// the audit trail.
type DisputeService struct {
	markets *MarketService
	audit   domain.AuditStore
	ledger  domain.Ledger
	clock   domain.Clock
	auth    domain.Authorizer
	engine  *resolution.Engine
	breaker *breaker.Breaker
	params  Params
	logger  *slog.Logger
}

// NewDisputeService creates a DisputeService sharing the market service's
// lock discipline and persistence path.
func NewDisputeService(
	markets *MarketService,
	audit domain.AuditStore,
	ledger domain.Ledger,
	clock domain.Clock,
	auth domain.Authorizer,
	engine *resolution.Engine,
	brk *breaker.Breaker,
	params Params,
	logger *slog.Logger,
) *DisputeService {
	return &DisputeService{
		markets: markets,
		audit:   audit,
		ledger:  ledger,
		clock:   clock,
		auth:    auth,
		engine:  engine,
		breaker: brk,
		params:  params,
		logger:  logger.With(slog.String("component", "dispute_service")),
	}
}

// FileDispute escrows a dispute stake against a market awaiting resolution.
// Requires a passed deadline, a recorded oracle result, and no winning
// outcome yet. Repeated filings by the same voter are additive. Each filing
// pushes the deadline forward, never backward.
func (s *DisputeService) FileDispute(ctx context.Context, voter, marketID string, stake int64, reason string) error {
	return s.breaker.Execute(ctx, "file_dispute", func(ctx context.Context) error {
		return s.markets.withMarket(ctx, marketID, func(m *domain.Market) error {
			now := s.clock.Now().Unix()

			if m.WinningOutcome != nil {
				return domain.ErrMarketAlreadyResolved
			}
			switch m.StatusAt(now) {
			case domain.MarketStatusEnded:
			case domain.MarketStatusDisputed:
				// The first filing opened a dispute window ending at the
				// extended deadline; filings at or past it are rejected.
				if now >= m.EndTime {
					return fmt.Errorf("dispute_service: dispute window closed: %w", domain.ErrMarketClosed)
				}
			case domain.MarketStatusActive:
				return domain.ErrMarketStillActive
			default:
				return domain.ErrMarketClosed
			}
			if m.OracleResult == nil {
				return domain.ErrOracleUnavailable
			}
			if stake < s.params.MinDisputeStake {
				return fmt.Errorf("%w: minimum dispute stake is %d", domain.ErrInsufficientStake, s.params.MinDisputeStake)
			}

			if err := s.ledger.Transfer(ctx, voter, domain.EscrowAccount(m.ID), stake); err != nil {
				return fmt.Errorf("dispute_service: escrow dispute stake: %w", err)
			}

			m.DisputeStakes[voter] += stake
			m.DisputeLog = append(m.DisputeLog, domain.DisputeFiling{
				Voter:     voter,
				Stake:     stake,
				Reason:    reason,
				Timestamp: now,
			})
			m.Status = domain.MarketStatusDisputed

			extended := now + s.params.DisputeExtensionHours*3600
			if extended > m.EndTime {
				m.Extensions = append(m.Extensions, domain.ExtensionRecord{
					Voter:      voter,
					OldEndTime: m.EndTime,
					NewEndTime: extended,
					Timestamp:  now,
				})
				m.EndTime = extended
				m.ExtensionCount++
			}
			m.UpdatedAt = s.clock.Now()

			if err := s.markets.writeBack(ctx, m); err != nil {
				s.reverse(ctx, domain.EscrowAccount(m.ID), voter, stake)
				return err
			}

			s.markets.publishEvent(ctx, "dispute_filed", map[string]any{
				"market_id": m.ID,
				"voter":     voter,
				"stake":     stake,
				"reason":    reason,
				"end_time":  m.EndTime,
			})
			s.auditLog(ctx, "dispute_filed", map[string]any{
				"market_id": m.ID,
				"voter":     voter,
				"stake":     stake,
				"reason":    reason,
			})

			s.logger.InfoContext(ctx, "dispute filed",
				slog.String("market_id", m.ID),
				slog.String("voter", voter),
				slog.Int64("stake", stake),
			)
			return nil
		})
	})
}

// ResolveDispute is the admin path through resolution. It requires live
// dispute stakes and no winning outcome, and invokes the engine with its
// dispute-adjusted weighting.
func (s *DisputeService) ResolveDispute(ctx context.Context, admin, marketID string) (string, error) {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return "", err
	}

	var final string
	err := s.breaker.Execute(ctx, "resolve_dispute", func(ctx context.Context) error {
		return s.markets.withMarket(ctx, marketID, func(m *domain.Market) error {
			if m.WinningOutcome != nil {
				return domain.ErrMarketAlreadyResolved
			}
			if m.TotalDisputeStake() == 0 {
				return domain.ErrMarketNotDisputed
			}
			if m.OracleResult == nil {
				return domain.ErrOracleUnavailable
			}

			now := s.clock.Now().Unix()
			outcome, rec, err := s.engine.Resolve(m, now)
			if err != nil {
				return err
			}
			if err := s.markets.commitResolution(ctx, m, outcome, rec); err != nil {
				return err
			}
			final = outcome

			s.auditLog(ctx, "dispute_resolved", map[string]any{
				"market_id": m.ID,
				"admin":     admin,
				"outcome":   outcome,
				"method":    string(rec.Method),
			})
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return final, nil
}

// Analytics derives dispute totals, the per-voter breakdown, and the
// participation rate for a market.
func (s *DisputeService) Analytics(ctx context.Context, marketID string) (domain.DisputeAnalytics, error) {
	m, err := s.markets.GetMarket(ctx, marketID)
	if err != nil {
		return domain.DisputeAnalytics{}, err
	}
	return domain.AnalyzeDisputes(&m), nil
}

// Disputes lists the dispute projections for a market, one per disputer.
func (s *DisputeService) Disputes(ctx context.Context, marketID string) ([]domain.Dispute, error) {
	m, err := s.markets.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return domain.DisputeProjection(&m, s.clock.Now().Unix()), nil
}

func (s *DisputeService) reverse(ctx context.Context, from, to string, amount int64) {
	if err := s.ledger.Transfer(ctx, from, to, amount); err != nil {
		s.logger.ErrorContext(ctx, "compensating transfer failed",
			slog.String("from", from),
			slog.String("to", to),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

func (s *DisputeService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
