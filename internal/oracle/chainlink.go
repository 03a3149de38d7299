package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// callTimeout bounds a single eth_call round-trip.
const callTimeout = 15 * time.Second

// latestRoundDataSig is the Chainlink AggregatorV3Interface method the feed
// reads: latestRoundData() returns (roundId, answer, startedAt, updatedAt,
// answeredInRound).
const latestRoundDataSig = "latestRoundData()"

// ChainlinkFeed reads prices from Chainlink aggregator contracts over
// JSON-RPC. The feed id is the aggregator contract address.
type ChainlinkFeed struct {
	client   *ethclient.Client
	rpcURL   string
	maxStale int64
	clock    domain.Clock
	selector []byte
}

// NewChainlinkFeed dials the configured JSON-RPC endpoint and returns a feed
// bound to it.
func NewChainlinkFeed(cfg Config, clock domain.Clock) (*ChainlinkFeed, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("%w: chainlink requires an rpc url", domain.ErrOracleInvalidConfig)
	}
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("oracle: dial %s: %w", cfg.RPCURL, err)
	}
	return &ChainlinkFeed{
		client:   client,
		rpcURL:   cfg.RPCURL,
		maxStale: cfg.MaxStaleSecs,
		clock:    clock,
		selector: ethcrypto.Keccak256([]byte(latestRoundDataSig))[:4],
	}, nil
}

// Provider identifies this feed's provider variant.
func (f *ChainlinkFeed) Provider() domain.OracleProvider { return domain.ProviderChainlink }

// ContractID returns the endpoint this feed reads through.
func (f *ChainlinkFeed) ContractID() string { return f.rpcURL }

// GetPrice fetches the latest answer from the aggregator at feedID. It
// returns ErrOracleInvalidFeed for a malformed address, ErrOracleUnavailable
// when the call fails, and ErrOracleDataStale when the answer is older than
// the configured bound.
func (f *ChainlinkFeed) GetPrice(ctx context.Context, feedID string) (int64, error) {
	if !common.IsHexAddress(feedID) {
		return 0, fmt.Errorf("%w: %q is not a contract address", domain.ErrOracleInvalidFeed, feedID)
	}
	addr := common.HexToAddress(feedID)

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	out, err := f.client.CallContract(ctx, ethereum.CallMsg{
		To:   &addr,
		Data: f.selector,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: call %s: %v", domain.ErrOracleUnavailable, feedID, err)
	}
	// Five 32-byte words: roundId, answer, startedAt, updatedAt, answeredInRound.
	if len(out) < 160 {
		return 0, fmt.Errorf("%w: short response (%d bytes)", domain.ErrOracleUnavailable, len(out))
	}

	answer := decodeInt256(out[32:64])
	updatedAt := new(big.Int).SetBytes(out[96:128])

	if f.maxStale > 0 && updatedAt.IsInt64() {
		age := f.clock.Now().Unix() - updatedAt.Int64()
		if age > f.maxStale {
			return 0, fmt.Errorf("%w: answer is %ds old", domain.ErrOracleDataStale, age)
		}
	}

	if !answer.IsInt64() {
		return 0, fmt.Errorf("%w: answer does not fit int64", domain.ErrOraclePriceOutOfRange)
	}
	price := answer.Int64()
	if err := ValidatePrice(price); err != nil {
		return 0, err
	}
	return price, nil
}

// IsHealthy reports whether the RPC endpoint answers a chain-id query.
func (f *ChainlinkFeed) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	_, err := f.client.ChainID(ctx)
	return err == nil
}

// Close releases the underlying RPC connection.
func (f *ChainlinkFeed) Close() {
	f.client.Close()
}

// decodeInt256 interprets a 32-byte ABI word as a two's-complement int256.
func decodeInt256(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word)
	if word[0]&0x80 != 0 {
		max := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, max)
	}
	return v
}

// Compile-time interface check.
var _ PriceFeed = (*ChainlinkFeed)(nil)
