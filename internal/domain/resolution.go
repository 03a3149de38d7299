package domain

// ResolutionMethod records which branch of the hybrid decision rule produced
// the final outcome.
type ResolutionMethod string

const (
	MethodAgreement       ResolutionMethod = "agreement"        // oracle and consensus matched
	MethodOracleDefault   ResolutionMethod = "oracle_default"   // weak or narrow consensus
	MethodRandomOracle    ResolutionMethod = "random_oracle"    // random draw kept the oracle
	MethodRandomCommunity ResolutionMethod = "random_community" // random draw flipped to community
	MethodDisputeOverride ResolutionMethod = "dispute_override" // heavy disputes, strong consensus
)

// Consensus is the stake-weighted community vote summary fed into the hybrid
// resolution engine.
type Consensus struct {
	Outcome    string `json:"outcome"`    // outcome with the max aggregate stake
	Confidence int64  `json:"confidence"` // max stake * 100 / total vote stake, integer percent
	TotalStake int64  `json:"total_stake"`
	Voters     int    `json:"voters"`
}

// ResolutionRecord is the audit record produced alongside a committed
// winning outcome.
type ResolutionRecord struct {
	MarketID        string           `json:"market_id"`
	Outcome         string           `json:"outcome"`
	Method          ResolutionMethod `json:"method"`
	OracleResult    string           `json:"oracle_result"`
	Consensus       Consensus        `json:"consensus"`
	OracleWeight    float64          `json:"oracle_weight"`
	CommunityWeight float64          `json:"community_weight"`
	DisputeImpact   float64          `json:"dispute_impact"`
	RandomDraw      *int64           `json:"random_draw,omitempty"` // [0,100), only on the random path
	Timestamp       int64            `json:"timestamp"`
}
