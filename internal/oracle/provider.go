// Package oracle provides price-feed providers and the outcome comparator
// used to turn a feed price into a market outcome label.
package oracle

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// maxSanePrice is the upper bound of the accepted price range. Feed answers
// above it (or non-positive answers) are rejected before use.
const maxSanePrice int64 = 1_000_000_000_000_000

// PriceFeed is the uniform provider capability set: fetch a price for a feed
// id, report identity, and answer a health probe.
type PriceFeed interface {
	GetPrice(ctx context.Context, feedID string) (int64, error)
	Provider() domain.OracleProvider
	ContractID() string
	IsHealthy(ctx context.Context) bool
}

// Config holds provider-level settings shared by all feeds.
type Config struct {
	RPCURL       string // JSON-RPC endpoint for on-chain providers
	MaxStaleSecs int64  // reject answers older than this; 0 disables the check
}

// NewFeed constructs the provider for the given variant. Unsupported
// variants fail here with a configuration error so call sites never need to
// change when a reserved provider is eventually wired in.
func NewFeed(provider domain.OracleProvider, cfg Config, clock domain.Clock) (PriceFeed, error) {
	switch provider {
	case domain.ProviderChainlink:
		return NewChainlinkFeed(cfg, clock)
	case domain.ProviderPyth, domain.ProviderBand:
		return nil, fmt.Errorf("%w: provider %q is reserved and not yet supported", domain.ErrOracleInvalidConfig, provider)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrOracleInvalidConfig, provider)
	}
}

// ValidatePrice checks that a fetched price lies in the sane positive range.
func ValidatePrice(price int64) error {
	if price <= 0 || price > maxSanePrice {
		return fmt.Errorf("%w: %d", domain.ErrOraclePriceOutOfRange, price)
	}
	return nil
}
