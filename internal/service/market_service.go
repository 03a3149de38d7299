// Package service implements the market, dispute, and breaker entry points.
// Every entry point is one atomic call: validation first, then the ledger
// transfer, then the record write-back, all under the per-market lock. A
// failed step leaves no trace.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictmarket/internal/breaker"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/oracle"
	"github.com/alanyoungcy/predictmarket/internal/payout"
	"github.com/alanyoungcy/predictmarket/internal/resolution"
)

const (
	// marketLockTTL bounds how long one entry point may hold a market lock.
	marketLockTTL = 30 * time.Second

	// maxQuestionLen caps market question text.
	maxQuestionLen = 500

	// eventChannel is the pub/sub channel carrying market lifecycle events.
	eventChannel = "ch:market"

	// eventStream is the durable stream mirroring eventChannel.
	eventStream = "stream:market"
)

// FeedFactory resolves a price feed for a provider variant. Unsupported
// variants fail with ErrOracleInvalidConfig without any network call.
type FeedFactory func(provider domain.OracleProvider) (oracle.PriceFeed, error)

// Params holds the market-policy knobs shared by the services.
type Params struct {
	MinVoteStake          int64
	MinDisputeStake       int64
	DisputeExtensionHours int64
	FeePercent            int64
	MaxDurationDays       int64
}

// MarketService implements the market lifecycle entry points.
type MarketService struct {
	markets  domain.MarketStore
	cache    domain.MarketCache
	locks    domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	ledger   domain.Ledger
	clock    domain.Clock
	auth     domain.Authorizer
	feeds    FeedFactory
	engine   *resolution.Engine
	breaker  *breaker.Breaker
	archiver domain.MarketArchiver
	params   Params
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	ledger domain.Ledger,
	clock domain.Clock,
	auth domain.Authorizer,
	feeds FeedFactory,
	engine *resolution.Engine,
	brk *breaker.Breaker,
	archiver domain.MarketArchiver,
	params Params,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		cache:    cache,
		locks:    locks,
		bus:      bus,
		audit:    audit,
		ledger:   ledger,
		clock:    clock,
		auth:     auth,
		feeds:    feeds,
		engine:   engine,
		breaker:  brk,
		archiver: archiver,
		params:   params,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarket validates the parameters and persists a new Active market.
// Only admins may create markets.
func (s *MarketService) CreateMarket(
	ctx context.Context,
	admin, question string,
	outcomes []string,
	durationDays int64,
	oracleCfg domain.OracleConfig,
) (string, error) {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return "", err
	}
	if strings.TrimSpace(question) == "" || len(question) > maxQuestionLen {
		return "", fmt.Errorf("%w: question must be 1-%d characters", domain.ErrInvalidQuestion, maxQuestionLen)
	}
	if err := domain.ValidateOutcomes(outcomes); err != nil {
		return "", err
	}
	maxDays := s.params.MaxDurationDays
	if maxDays <= 0 {
		maxDays = 365
	}
	if durationDays <= 0 || durationDays > maxDays {
		return "", fmt.Errorf("%w: duration %d days outside 1-%d", domain.ErrInvalidDuration, durationDays, maxDays)
	}
	if err := oracleCfg.Validate(); err != nil {
		return "", err
	}

	var id string
	err := s.breaker.Execute(ctx, "create_market", func(ctx context.Context) error {
		now := s.clock.Now()
		m := domain.Market{
			ID:            uuid.New().String(),
			Admin:         admin,
			Question:      question,
			Outcomes:      append([]string(nil), outcomes...),
			EndTime:       now.Unix() + durationDays*86400,
			Oracle:        oracleCfg,
			Votes:         map[string]string{},
			Stakes:        map[string]int64{},
			Claimed:       map[string]bool{},
			DisputeStakes: map[string]int64{},
			Status:        domain.MarketStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.markets.Create(ctx, m); err != nil {
			return fmt.Errorf("market_service: create: %w", err)
		}
		id = m.ID

		s.publishEvent(ctx, "market_created", map[string]any{
			"market_id": m.ID,
			"question":  m.Question,
			"end_time":  m.EndTime,
		})
		s.auditLog(ctx, "market_created", map[string]any{"market_id": m.ID, "admin": admin})
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", id),
		slog.String("admin", admin),
	)
	return id, nil
}

// Vote records a staked vote. Voting requires an Active market with a
// deadline strictly in the future and no oracle result yet; one vote per
// voter. The stake is escrowed before the record is written.
func (s *MarketService) Vote(ctx context.Context, user, marketID, outcome string, stake int64) error {
	return s.breaker.Execute(ctx, "vote", func(ctx context.Context) error {
		return s.withMarket(ctx, marketID, func(m *domain.Market) error {
			now := s.clock.Now().Unix()

			if m.WinningOutcome != nil {
				return domain.ErrMarketAlreadyResolved
			}
			if !m.VotingOpen(now) {
				return domain.ErrMarketClosed
			}
			if !m.HasOutcome(outcome) {
				return fmt.Errorf("%w: %q", domain.ErrInvalidOutcome, outcome)
			}
			if _, voted := m.Votes[user]; voted {
				return domain.ErrAlreadyVoted
			}
			if stake < s.params.MinVoteStake {
				return fmt.Errorf("%w: minimum vote stake is %d", domain.ErrInsufficientStake, s.params.MinVoteStake)
			}

			if err := s.ledger.Transfer(ctx, user, domain.EscrowAccount(m.ID), stake); err != nil {
				return fmt.Errorf("market_service: escrow vote stake: %w", err)
			}

			m.Votes[user] = outcome
			m.Stakes[user] = stake
			m.TotalStaked += stake
			m.UpdatedAt = s.clock.Now()

			if err := s.writeBack(ctx, m); err != nil {
				s.refund(ctx, domain.EscrowAccount(m.ID), user, stake)
				return err
			}

			s.publishEvent(ctx, "vote_recorded", map[string]any{
				"market_id": m.ID,
				"voter":     user,
				"outcome":   outcome,
				"stake":     stake,
			})
			return nil
		})
	})
}

// FetchOracleResult queries the configured price feed, derives the outcome
// label, and records it. The oracle may be queried successfully at most once
// per market, and only after the deadline has passed.
func (s *MarketService) FetchOracleResult(ctx context.Context, marketID string) (string, error) {
	var result string
	err := s.breaker.Execute(ctx, "fetch_oracle", func(ctx context.Context) error {
		return s.withMarket(ctx, marketID, func(m *domain.Market) error {
			now := s.clock.Now().Unix()

			if m.WinningOutcome != nil || m.OracleResult != nil {
				return domain.ErrMarketAlreadyResolved
			}
			if now < m.EndTime {
				return domain.ErrMarketClosed
			}
			switch m.StatusAt(now) {
			case domain.MarketStatusEnded, domain.MarketStatusDisputed:
			default:
				return domain.ErrMarketClosed
			}

			feed, err := s.feeds(m.Oracle.Provider)
			if err != nil {
				return err
			}
			price, err := feed.GetPrice(ctx, m.Oracle.FeedID)
			if err != nil {
				return err
			}
			// Stub feeds in tests bypass the provider-side range check, so
			// validate again before use.
			if err := oracle.ValidatePrice(price); err != nil {
				return err
			}

			label, err := oracle.DetermineOutcome(price, m.Oracle.Threshold, m.Oracle.Comparison, m.Outcomes)
			if err != nil {
				return err
			}

			m.OracleResult = &label
			if m.Status == domain.MarketStatusActive {
				m.Status = domain.MarketStatusEnded
			}
			m.UpdatedAt = s.clock.Now()

			if err := s.writeBack(ctx, m); err != nil {
				return err
			}
			result = label

			s.publishEvent(ctx, "oracle_result", map[string]any{
				"market_id": m.ID,
				"price":     price,
				"outcome":   label,
			})
			s.auditLog(ctx, "oracle_result", map[string]any{
				"market_id": m.ID,
				"provider":  string(m.Oracle.Provider),
				"feed_id":   m.Oracle.FeedID,
				"price":     price,
				"outcome":   label,
			})
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// ResolveMarket invokes the hybrid resolution engine and commits the winning
// outcome. Resolution requires a passed deadline and a recorded oracle
// result.
func (s *MarketService) ResolveMarket(ctx context.Context, marketID string) (string, error) {
	var final string
	err := s.breaker.Execute(ctx, "resolve_market", func(ctx context.Context) error {
		return s.withMarket(ctx, marketID, func(m *domain.Market) error {
			now := s.clock.Now().Unix()

			if m.WinningOutcome != nil {
				return domain.ErrMarketAlreadyResolved
			}
			if m.OracleResult == nil {
				return domain.ErrOracleUnavailable
			}
			if now < m.EndTime {
				return domain.ErrMarketClosed
			}

			outcome, rec, err := s.engine.Resolve(m, now)
			if err != nil {
				return err
			}
			if err := s.commitResolution(ctx, m, outcome, rec); err != nil {
				return err
			}
			final = outcome
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return final, nil
}

// commitResolution writes the winning outcome, audit record, and resolution
// event. The winning outcome is immutable once written.
func (s *MarketService) commitResolution(ctx context.Context, m *domain.Market, outcome string, rec domain.ResolutionRecord) error {
	m.WinningOutcome = &outcome
	m.Status = domain.MarketStatusResolved
	m.UpdatedAt = s.clock.Now()

	if err := s.writeBack(ctx, m); err != nil {
		return err
	}

	detail := map[string]any{
		"market_id":        rec.MarketID,
		"outcome":          rec.Outcome,
		"method":           string(rec.Method),
		"oracle_result":    rec.OracleResult,
		"oracle_weight":    rec.OracleWeight,
		"community_weight": rec.CommunityWeight,
		"dispute_impact":   rec.DisputeImpact,
		"timestamp":        rec.Timestamp,
	}
	if rec.RandomDraw != nil {
		detail["random_draw"] = *rec.RandomDraw
	}
	s.auditLog(ctx, "market_resolved", detail)
	s.publishEvent(ctx, "market_resolved", detail)

	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", m.ID),
		slog.String("outcome", outcome),
		slog.String("method", string(rec.Method)),
	)
	return nil
}

// ClaimWinnings pays out a winning voter's share and marks it claimed.
func (s *MarketService) ClaimWinnings(ctx context.Context, user, marketID string) (int64, error) {
	var amount int64
	err := s.breaker.Execute(ctx, "claim", func(ctx context.Context) error {
		return s.withMarket(ctx, marketID, func(m *domain.Market) error {
			if m.WinningOutcome == nil {
				return domain.ErrMarketNotResolved
			}
			if m.Claimed[user] {
				return domain.ErrAlreadyClaimed
			}
			outcome, voted := m.Votes[user]
			if !voted || outcome != *m.WinningOutcome {
				return domain.ErrNothingToClaim
			}

			pay, err := payout.Calculate(m.Stakes[user], m.WinningPool(), m.TotalStaked, s.params.FeePercent)
			if err != nil {
				return err
			}

			if err := s.ledger.Transfer(ctx, domain.EscrowAccount(m.ID), user, pay); err != nil {
				return fmt.Errorf("market_service: pay out claim: %w", err)
			}

			m.Claimed[user] = true
			m.UpdatedAt = s.clock.Now()
			if err := s.writeBack(ctx, m); err != nil {
				s.refund(ctx, user, domain.EscrowAccount(m.ID), pay)
				return err
			}
			amount = pay

			s.publishEvent(ctx, "winnings_claimed", map[string]any{
				"market_id": m.ID,
				"user":      user,
				"amount":    pay,
			})
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// CollectFees transfers the admin fee out of the pool, once per market.
func (s *MarketService) CollectFees(ctx context.Context, admin, marketID string) (int64, error) {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return 0, err
	}

	var fee int64
	err := s.breaker.Execute(ctx, "collect_fees", func(ctx context.Context) error {
		return s.withMarket(ctx, marketID, func(m *domain.Market) error {
			if m.WinningOutcome == nil {
				return domain.ErrMarketNotResolved
			}
			if m.FeeCollected {
				return domain.ErrFeeAlreadyCollected
			}

			f := payout.Fee(m.TotalStaked, s.params.FeePercent)
			if f > 0 {
				if err := s.ledger.Transfer(ctx, domain.EscrowAccount(m.ID), admin, f); err != nil {
					return fmt.Errorf("market_service: collect fees: %w", err)
				}
			}

			m.FeeCollected = true
			m.UpdatedAt = s.clock.Now()
			if err := s.writeBack(ctx, m); err != nil {
				if f > 0 {
					s.refund(ctx, admin, domain.EscrowAccount(m.ID), f)
				}
				return err
			}
			fee = f

			s.auditLog(ctx, "fees_collected", map[string]any{
				"market_id": m.ID,
				"admin":     admin,
				"amount":    f,
			})
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return fee, nil
}

// CancelMarket cancels a market that reached maturity with zero stake.
func (s *MarketService) CancelMarket(ctx context.Context, marketID string) error {
	return s.withMarket(ctx, marketID, func(m *domain.Market) error {
		now := s.clock.Now().Unix()
		if m.Status != domain.MarketStatusActive || now < m.EndTime || m.TotalStaked != 0 {
			return domain.ErrMarketNotCancellable
		}

		m.Status = domain.MarketStatusCancelled
		m.UpdatedAt = s.clock.Now()
		if err := s.writeBack(ctx, m); err != nil {
			return err
		}

		s.publishEvent(ctx, "market_cancelled", map[string]any{"market_id": m.ID})
		s.auditLog(ctx, "market_cancelled", map[string]any{"market_id": m.ID})
		return nil
	})
}

// CloseMarket archives a resolved or cancelled market record to blob storage
// and marks it Closed. Records are never destroyed implicitly.
func (s *MarketService) CloseMarket(ctx context.Context, admin, marketID string) error {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return err
	}
	return s.withMarket(ctx, marketID, func(m *domain.Market) error {
		switch m.Status {
		case domain.MarketStatusResolved, domain.MarketStatusCancelled:
		default:
			return domain.ErrMarketNotResolved
		}

		var archivePath string
		if s.archiver != nil {
			path, err := s.archiver.ArchiveMarket(ctx, *m)
			if err != nil {
				return fmt.Errorf("market_service: archive market %s: %w", m.ID, err)
			}
			archivePath = path
		}

		m.Status = domain.MarketStatusClosed
		m.UpdatedAt = s.clock.Now()
		if err := s.writeBack(ctx, m); err != nil {
			return err
		}

		s.auditLog(ctx, "market_closed", map[string]any{
			"market_id":    m.ID,
			"admin":        admin,
			"archive_path": archivePath,
		})
		return nil
	})
}

// GetMarket retrieves a market, cache first with store fallback.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.markets.Get(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns markets filtered by status ("" means all).
func (s *MarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// withMarket runs fn on the market record under its lock and is the atomic
// get-mutate-write unit shared by all mutating entry points.
func (s *MarketService) withMarket(ctx context.Context, id string, fn func(*domain.Market) error) error {
	unlock, err := s.locks.Acquire(ctx, "market:"+id, marketLockTTL)
	if err != nil {
		return fmt.Errorf("market_service: lock market %s: %w", id, err)
	}
	defer unlock()

	m, err := s.markets.Get(ctx, id)
	if err != nil {
		return err
	}
	return fn(&m)
}

// writeBack persists the mutated record and drops the cache entry.
func (s *MarketService) writeBack(ctx context.Context, m *domain.Market) error {
	if err := m.CheckInvariants(); err != nil {
		return err
	}
	if err := s.markets.Update(ctx, *m); err != nil {
		return fmt.Errorf("market_service: update market %s: %w", m.ID, err)
	}
	if err := s.cache.Invalidate(ctx, m.ID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// refund reverses an escrow transfer after a failed write-back so the call
// leaves no trace. A failed refund is logged loudly; it cannot be retried
// here without risking a double credit.
func (s *MarketService) refund(ctx context.Context, from, to string, amount int64) {
	if err := s.ledger.Transfer(ctx, from, to, amount); err != nil {
		s.logger.ErrorContext(ctx, "compensating transfer failed",
			slog.String("from", from),
			slog.String("to", to),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

// publishEvent fans a lifecycle event out to the pub/sub channel and the
// durable stream. Event delivery is best-effort and never fails the call.
func (s *MarketService) publishEvent(ctx context.Context, event string, payload map[string]any) {
	payload["event"] = event
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, eventChannel, data); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, eventStream, data); err != nil {
		s.logger.WarnContext(ctx, "event stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog records an audit entry; failures are logged, not fatal.
func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
