package domain

import "fmt"

// BreakerState is the circuit breaker's coarse state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerAction names a transition or administrative action recorded in the
// breaker event history.
type BreakerAction string

const (
	BreakerActionInit             BreakerAction = "init"
	BreakerActionEmergencyPause   BreakerAction = "emergency_pause"
	BreakerActionRecovery         BreakerAction = "recovery"
	BreakerActionAutomaticTrigger BreakerAction = "automatic_trigger"
	BreakerActionHalfOpenProbe    BreakerAction = "half_open_probe"
	BreakerActionClose            BreakerAction = "close"
	BreakerActionReopen           BreakerAction = "reopen"
	BreakerActionConfigUpdate     BreakerAction = "config_update"
)

// TriggerCondition names an automatic-trigger condition. Only HighErrorRate
// is backed by live metrics; the others are declared placeholders pending
// metric wiring and evaluate to "not wired".
type TriggerCondition string

const (
	ConditionHighErrorRate TriggerCondition = "high_error_rate"
	ConditionHighLatency   TriggerCondition = "high_latency"
	ConditionLowLiquidity  TriggerCondition = "low_liquidity"
)

// BreakerRecord is the single process-wide circuit breaker state. It must be
// explicitly initialized before any breaker operation; stores return
// ErrBreakerNotInitialized until then. Timestamps are unix seconds.
type BreakerRecord struct {
	State            BreakerState `json:"state"`
	FailureCount     int64        `json:"failure_count"`
	LastFailureTime  int64        `json:"last_failure_time"`
	LastSuccessTime  int64        `json:"last_success_time"`
	OpenedTime       int64        `json:"opened_time"`
	HalfOpenRequests int64        `json:"half_open_requests"`
	TotalRequests    int64        `json:"total_requests"`
	ErrorCount       int64        `json:"error_count"`
}

// BreakerConfig holds the admin-mutable breaker thresholds. Validated on
// every write.
type BreakerConfig struct {
	MaxErrorRate        int64 `json:"max_error_rate"` // percent, 0-100
	MaxLatencyMS        int64 `json:"max_latency_ms"`
	MinLiquidity        int64 `json:"min_liquidity"`
	FailureThreshold    int64 `json:"failure_threshold"`
	RecoveryTimeoutSecs int64 `json:"recovery_timeout_secs"`
	HalfOpenMaxRequests int64 `json:"half_open_max_requests"`
	AutoRecoveryEnabled bool  `json:"auto_recovery_enabled"`
}

// Validate rejects out-of-range breaker configuration.
func (c BreakerConfig) Validate() error {
	if c.MaxErrorRate < 0 || c.MaxErrorRate > 100 {
		return fmt.Errorf("%w: max_error_rate %d outside 0-100", ErrBreakerInvalidConfig, c.MaxErrorRate)
	}
	if c.MaxLatencyMS <= 0 {
		return fmt.Errorf("%w: max_latency_ms must be positive", ErrBreakerInvalidConfig)
	}
	if c.MinLiquidity < 0 {
		return fmt.Errorf("%w: min_liquidity must not be negative", ErrBreakerInvalidConfig)
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("%w: failure_threshold must be positive", ErrBreakerInvalidConfig)
	}
	if c.RecoveryTimeoutSecs <= 0 {
		return fmt.Errorf("%w: recovery_timeout_secs must be positive", ErrBreakerInvalidConfig)
	}
	if c.HalfOpenMaxRequests <= 0 {
		return fmt.Errorf("%w: half_open_max_requests must be positive", ErrBreakerInvalidConfig)
	}
	return nil
}

// BreakerEventLimit bounds the retained breaker event history.
const BreakerEventLimit = 100

// BreakerEvent is one immutable entry in the bounded breaker history.
type BreakerEvent struct {
	Action    BreakerAction    `json:"action"`
	Condition TriggerCondition `json:"condition,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Admin     string           `json:"admin,omitempty"`
	Timestamp int64            `json:"timestamp"`
}
