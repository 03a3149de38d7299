package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market records. Get followed by Update under the
// per-market lock is the atomic mutation unit; stores do not interleave
// partial writes to the same record. Get and List return records whose maps
// and slices are independent of the stored state, so callers may mutate them
// freely before Update.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	Update(ctx context.Context, m Market) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BreakerStore persists the single process-wide circuit breaker record, its
// configuration, and the bounded event history. GetState and GetConfig return
// ErrBreakerNotInitialized until Init has run.
type BreakerStore interface {
	GetState(ctx context.Context) (BreakerRecord, error)
	PutState(ctx context.Context, rec BreakerRecord) error
	GetConfig(ctx context.Context) (BreakerConfig, error)
	PutConfig(ctx context.Context, cfg BreakerConfig) error
	AppendEvent(ctx context.Context, ev BreakerEvent) error // trims beyond BreakerEventLimit
	ListEvents(ctx context.Context, limit int) ([]BreakerEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
