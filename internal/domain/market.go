package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusEnded     MarketStatus = "ended"
	MarketStatusDisputed  MarketStatus = "disputed"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusClosed    MarketStatus = "closed"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// ComparisonOp is the operator applied between an oracle price and the
// market threshold.
type ComparisonOp string

const (
	CompareGT ComparisonOp = "gt"
	CompareLT ComparisonOp = "lt"
	CompareEQ ComparisonOp = "eq"
)

// OracleProvider identifies a price-feed provider. Only Chainlink is
// currently supported; the other variants are reserved and rejected with
// ErrOracleInvalidConfig before any network call.
type OracleProvider string

const (
	ProviderChainlink OracleProvider = "chainlink"
	ProviderPyth      OracleProvider = "pyth"
	ProviderBand      OracleProvider = "band"
)

// OracleConfig is the immutable oracle binding for a market: which provider
// to ask, which feed, and how to turn the price into an outcome.
type OracleConfig struct {
	Provider   OracleProvider `json:"provider"`
	FeedID     string         `json:"feed_id"`
	Threshold  int64          `json:"threshold"`
	Comparison ComparisonOp   `json:"comparison"`
}

// Validate checks an OracleConfig at market creation time.
func (c OracleConfig) Validate() error {
	switch c.Provider {
	case ProviderChainlink, ProviderPyth, ProviderBand:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrOracleInvalidConfig, c.Provider)
	}
	if strings.TrimSpace(c.FeedID) == "" {
		return fmt.Errorf("%w: empty feed id", ErrOracleInvalidFeed)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalidThreshold, c.Threshold)
	}
	switch c.Comparison {
	case CompareGT, CompareLT, CompareEQ:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidComparison, c.Comparison)
	}
	return nil
}

// ExtensionRecord documents one forward-only deadline extension caused by a
// dispute filing.
type ExtensionRecord struct {
	Voter      string `json:"voter"`
	OldEndTime int64  `json:"old_end_time"`
	NewEndTime int64  `json:"new_end_time"`
	Timestamp  int64  `json:"timestamp"`
}

// DisputeFiling documents one dispute stake filing. DisputeStakes carries the
// per-voter aggregate the resolution engine reads; the log preserves each
// filing's stake, reason, and time for the read-side projection.
type DisputeFiling struct {
	Voter     string `json:"voter"`
	Stake     int64  `json:"stake"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Market is the durable record of a prediction market: its immutable
// configuration plus mutable vote, stake, and dispute state. All timestamps
// are unix seconds. All amounts are integer units of the settlement asset.
type Market struct {
	ID       string       `json:"id"`
	Admin    string       `json:"admin"`
	Question string       `json:"question"`
	Outcomes []string     `json:"outcomes"`
	EndTime  int64        `json:"end_time"` // only ever increases
	Oracle   OracleConfig `json:"oracle"`

	OracleResult   *string `json:"oracle_result,omitempty"`   // set at most once
	WinningOutcome *string `json:"winning_outcome,omitempty"` // immutable once set

	Votes         map[string]string `json:"votes"`  // voter -> outcome label
	Stakes        map[string]int64  `json:"stakes"` // keys mirror Votes
	Claimed       map[string]bool   `json:"claimed"`
	TotalStaked   int64             `json:"total_staked"`
	DisputeStakes map[string]int64  `json:"dispute_stakes"`
	DisputeLog    []DisputeFiling   `json:"dispute_log,omitempty"` // one entry per filing

	FeeCollected   bool              `json:"fee_collected"`
	Extensions     []ExtensionRecord `json:"extensions"`
	ExtensionCount int               `json:"extension_count"`

	Status    MarketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// StatusAt evaluates the time-gated Active -> Ended transition lazily against
// the supplied clock reading. The persisted Status is not mutated; callers
// that observe the transition are responsible for writing it back.
func (m *Market) StatusAt(now int64) MarketStatus {
	if m.Status == MarketStatusActive && now >= m.EndTime {
		return MarketStatusEnded
	}
	return m.Status
}

// VotingOpen reports whether a vote is admissible at the given time. Voting
// requires an active market, a deadline strictly in the future, and no oracle
// result recorded yet.
func (m *Market) VotingOpen(now int64) bool {
	return m.StatusAt(now) == MarketStatusActive && now < m.EndTime && m.OracleResult == nil
}

// HasOutcome reports whether label is one of the market's declared outcomes.
func (m *Market) HasOutcome(label string) bool {
	for _, o := range m.Outcomes {
		if o == label {
			return true
		}
	}
	return false
}

// WinningPool returns the aggregate stake placed on the winning outcome.
// It returns 0 when the market is not resolved.
func (m *Market) WinningPool() int64 {
	if m.WinningOutcome == nil {
		return 0
	}
	var pool int64
	for voter, outcome := range m.Votes {
		if outcome == *m.WinningOutcome {
			pool += m.Stakes[voter]
		}
	}
	return pool
}

// TotalDisputeStake returns the sum of all escrowed dispute stakes.
func (m *Market) TotalDisputeStake() int64 {
	var total int64
	for _, s := range m.DisputeStakes {
		total += s
	}
	return total
}

// CheckInvariants verifies the structural invariants of the record:
// total_staked equals the sum of stakes, the vote and stake key sets mirror
// each other, and a committed winning outcome is one of the declared labels.
func (m *Market) CheckInvariants() error {
	var sum int64
	for voter, s := range m.Stakes {
		if _, ok := m.Votes[voter]; !ok {
			return fmt.Errorf("%w: stake without vote for %s", ErrInvalidState, voter)
		}
		sum += s
	}
	for voter := range m.Votes {
		if _, ok := m.Stakes[voter]; !ok {
			return fmt.Errorf("%w: vote without stake for %s", ErrInvalidState, voter)
		}
	}
	if sum != m.TotalStaked {
		return fmt.Errorf("%w: stake sum %d != total_staked %d", ErrInvalidState, sum, m.TotalStaked)
	}
	if m.WinningOutcome != nil && !m.HasOutcome(*m.WinningOutcome) {
		return fmt.Errorf("%w: winning outcome %q not declared", ErrInvalidState, *m.WinningOutcome)
	}
	return nil
}

// ValidateOutcomes checks a proposed outcome list at creation time: at least
// two labels, all non-empty, all distinct.
func ValidateOutcomes(outcomes []string) error {
	if len(outcomes) < 2 {
		return fmt.Errorf("%w: need at least 2 outcomes, got %d", ErrInvalidOutcomes, len(outcomes))
	}
	seen := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("%w: empty outcome label", ErrInvalidOutcomes)
		}
		if seen[o] {
			return fmt.Errorf("%w: duplicate outcome %q", ErrInvalidOutcomes, o)
		}
		seen[o] = true
	}
	return nil
}

// EscrowAccount returns the custody account identifier holding a market's
// staked funds. Asset transfer itself is an external capability; this is only
// the naming convention used when invoking it.
func EscrowAccount(marketID string) string {
	return "escrow:" + marketID
}
