// Package resolution implements the hybrid oracle + community resolution
// engine and the stake-weighted consensus it consumes.
package resolution

import "github.com/alanyoungcy/predictmarket/internal/domain"

// ComputeConsensus aggregates vote stakes per outcome and returns the
// community consensus: the outcome carrying the most stake, its integer
// confidence percentage, the total vote stake, and the voter count. Ties are
// broken by declared outcome order so the result is deterministic.
func ComputeConsensus(m *domain.Market) domain.Consensus {
	c := domain.Consensus{Voters: len(m.Votes)}
	if len(m.Votes) == 0 {
		return c
	}

	byOutcome := make(map[string]int64, len(m.Outcomes))
	for voter, outcome := range m.Votes {
		stake := m.Stakes[voter]
		byOutcome[outcome] += stake
		c.TotalStake += stake
	}

	var maxStake int64 = -1
	for _, outcome := range m.Outcomes {
		if stake := byOutcome[outcome]; stake > maxStake {
			maxStake = stake
			c.Outcome = outcome
		}
	}

	if c.TotalStake > 0 {
		c.Confidence = maxStake * 100 / c.TotalStake
	}
	return c
}
