package domain

// DisputeStatus classifies a dispute projection relative to the market's
// lifecycle. Disputes are not a separate store; they are derived from the
// market's dispute_stakes map.
type DisputeStatus string

const (
	DisputeStatusActive   DisputeStatus = "active"
	DisputeStatusResolved DisputeStatus = "resolved"
	DisputeStatusRejected DisputeStatus = "rejected"
	DisputeStatusExpired  DisputeStatus = "expired"
)

// Dispute is a read-side projection of one dispute filing.
type Dispute struct {
	Voter     string        `json:"voter"`
	MarketID  string        `json:"market_id"`
	Stake     int64         `json:"stake"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp int64         `json:"timestamp,omitempty"`
	Status    DisputeStatus `json:"status"`
}

// DisputeAnalytics summarizes dispute participation for a market. Dispute
// stakes accumulate and are analyzed but not automatically redistributed;
// settlement is an explicit admin decision outside this record.
type DisputeAnalytics struct {
	MarketID          string           `json:"market_id"`
	TotalStake        int64            `json:"total_stake"`
	Disputers         int              `json:"disputers"`
	PerVoter          map[string]int64 `json:"per_voter"`
	ParticipationRate float64          `json:"participation_rate"` // disputers / voters
}

// DisputeProjection derives dispute records from a market at the given time,
// one per filing in filing order. Records persisted before the filing log
// existed fall back to one aggregate record per voter.
func DisputeProjection(m *Market, now int64) []Dispute {
	status := DisputeStatusActive
	switch {
	case m.WinningOutcome != nil:
		status = DisputeStatusResolved
	case m.StatusAt(now) == MarketStatusClosed || m.StatusAt(now) == MarketStatusCancelled:
		status = DisputeStatusExpired
	}

	if len(m.DisputeLog) > 0 {
		disputes := make([]Dispute, 0, len(m.DisputeLog))
		for _, f := range m.DisputeLog {
			disputes = append(disputes, Dispute{
				Voter:     f.Voter,
				MarketID:  m.ID,
				Stake:     f.Stake,
				Reason:    f.Reason,
				Timestamp: f.Timestamp,
				Status:    status,
			})
		}
		return disputes
	}

	disputes := make([]Dispute, 0, len(m.DisputeStakes))
	for voter, stake := range m.DisputeStakes {
		disputes = append(disputes, Dispute{
			Voter:    voter,
			MarketID: m.ID,
			Stake:    stake,
			Status:   status,
		})
	}
	return disputes
}

// AnalyzeDisputes computes aggregate dispute metrics for a market.
func AnalyzeDisputes(m *Market) DisputeAnalytics {
	a := DisputeAnalytics{
		MarketID: m.ID,
		PerVoter: make(map[string]int64, len(m.DisputeStakes)),
	}
	for voter, stake := range m.DisputeStakes {
		a.TotalStake += stake
		a.PerVoter[voter] = stake
	}
	a.Disputers = len(m.DisputeStakes)
	if len(m.Votes) > 0 {
		a.ParticipationRate = float64(a.Disputers) / float64(len(m.Votes))
	}
	return a
}
