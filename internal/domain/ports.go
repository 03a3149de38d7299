package domain

import (
	"context"
	"time"
)

// Ledger is the external asset-transfer capability. Transfers are assumed
// atomic and authorization-checked by the ledger itself; this service only
// sequences them against record mutations.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount int64) error
}

// Clock supplies the current time for all time-gated transitions. Deadlines
// are pure comparisons against this clock; nothing fires proactively.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RandSource draws a bounded value in [0,100) used by the hybrid resolution
// engine's probabilistic branch. now is the resolution timestamp in unix
// seconds; seq is a per-process monotone sequence number.
//
// The default implementation mixes the two the way the settlement ledger
// would, which is predictable to anyone who can observe the ledger. It is a
// deliberate, documented trust assumption; inject a stronger source if that
// assumption does not hold for the deployment.
type RandSource interface {
	Roll(now int64, seq uint64) int64
}

// Authorizer is the external admin-authorization capability. RequireAdmin
// fails the whole call with ErrUnauthorized when the identity is not an
// admin; services never partially apply after a failed check.
type Authorizer interface {
	RequireAdmin(ctx context.Context, identity string) error
}
