package resolution

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Weighting constants of the hybrid decision rule. The oracle carries a 70%
// default weight; broad, strong community consensus overrides it 30% of the
// time, which keeps predictable gaming unattractive.
const (
	communityWinBound   = 30 // draws in [0,30) select the community outcome
	minConfidence       = 50 // strictly-greater confidence gate for the random branch
	minVoters           = 5
	baseOracleWeight    = 0.7
	baseCommunityWeight = 0.3
	overrideImpact      = 0.30 // dispute impact above this enables the override
	overrideConfidence  = 70   // together with confidence strictly above this
)

// LedgerRoll is the default RandSource. It mixes the resolution timestamp
// with a per-process sequence number, mirroring how a settlement ledger
// derives its pseudo-randomness. The draw is predictable to anyone who can
// observe the ledger; deployments that cannot accept that inject their own
// source.
type LedgerRoll struct{}

func (LedgerRoll) Roll(now int64, seq uint64) int64 {
	return int64((uint64(now) + seq) % 100)
}

// Engine combines an oracle result with the community consensus into a final
// outcome, reweighting under active disputes.
type Engine struct {
	rand   domain.RandSource
	seq    atomic.Uint64
	logger *slog.Logger
}

// NewEngine creates an Engine drawing randomness from rand. A nil rand falls
// back to LedgerRoll.
func NewEngine(rand domain.RandSource, logger *slog.Logger) *Engine {
	if rand == nil {
		rand = LedgerRoll{}
	}
	return &Engine{
		rand:   rand,
		logger: logger.With(slog.String("component", "resolution")),
	}
}

// Resolve decides the final outcome for the market at the given time and
// returns it together with the audit record. It does not mutate the market;
// committing the winning outcome is the caller's write.
//
// Decision rule:
//  1. Oracle and consensus agree -> oracle result.
//  2. Disagreement with dispute impact above 0.30 and community confidence
//     above 70 -> community outcome outright.
//  3. Disagreement with confidence above 50 and at least 5 voters -> a draw
//     in [0,100): below 30 selects the community outcome, the rest keeps the
//     oracle.
//  4. Any other disagreement -> oracle result.
func (e *Engine) Resolve(m *domain.Market, now int64) (string, domain.ResolutionRecord, error) {
	if m.OracleResult == nil {
		return "", domain.ResolutionRecord{}, fmt.Errorf("resolution: market %s: %w", m.ID, domain.ErrOracleUnavailable)
	}
	oracle := *m.OracleResult
	consensus := ComputeConsensus(m)

	rec := domain.ResolutionRecord{
		MarketID:        m.ID,
		OracleResult:    oracle,
		Consensus:       consensus,
		OracleWeight:    baseOracleWeight,
		CommunityWeight: baseCommunityWeight,
		Timestamp:       now,
	}

	disputeTotal := m.TotalDisputeStake()
	if disputeTotal > 0 {
		rec.DisputeImpact = disputeImpact(disputeTotal, m.TotalStaked)
		rec.OracleWeight = max(0.3, baseOracleWeight-0.3*rec.DisputeImpact)
		rec.CommunityWeight = min(0.7, baseCommunityWeight+0.4*rec.DisputeImpact)
	}

	final := oracle
	switch {
	case consensus.Outcome == oracle:
		rec.Method = domain.MethodAgreement

	case disputeTotal > 0 && rec.DisputeImpact > overrideImpact && consensus.Confidence > overrideConfidence:
		rec.Method = domain.MethodDisputeOverride
		final = consensus.Outcome

	case consensus.Confidence > minConfidence && consensus.Voters >= minVoters:
		draw := e.rand.Roll(now, e.seq.Add(1))
		rec.RandomDraw = &draw
		if draw < communityWinBound {
			rec.Method = domain.MethodRandomCommunity
			final = consensus.Outcome
		} else {
			rec.Method = domain.MethodRandomOracle
		}

	default:
		rec.Method = domain.MethodOracleDefault
	}

	// Pre-commit check: a label outside the market's declared outcomes means
	// corrupted input, never a silent commit.
	if !m.HasOutcome(final) {
		return "", domain.ResolutionRecord{}, fmt.Errorf("resolution: market %s: computed label %q: %w", m.ID, final, domain.ErrInvalidOutcome)
	}
	rec.Outcome = final

	e.logger.Info("resolution decided",
		slog.String("market_id", m.ID),
		slog.String("outcome", final),
		slog.String("method", string(rec.Method)),
		slog.Float64("dispute_impact", rec.DisputeImpact),
	)

	return final, rec, nil
}

// disputeImpact is the fraction of total stake represented by dispute
// stakes, clamped to [0,1]. A disputed market with no vote stake counts as
// fully disputed.
func disputeImpact(disputeTotal, totalStaked int64) float64 {
	if totalStaked <= 0 {
		return 1
	}
	impact := float64(disputeTotal) / float64(totalStaked)
	if impact > 1 {
		return 1
	}
	if impact < 0 {
		return 0
	}
	return impact
}
