// Package oracle reads price samples from a Chainlink-style aggregator and
// derives a volatility estimate from a bounded sample window.
package oracle

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rangePilot/internal/chain"
	"rangePilot/internal/model"
)

// Adapter pulls the latest price from an on-chain aggregator feed.
type Adapter struct {
	client *chain.Client
	feed   common.Address
	maxAge time.Duration
	window *SampleWindow
	logger *zap.Logger

	decimals      uint8
	decimalsKnown bool
}

func NewAdapter(client *chain.Client, feed common.Address, maxAge time.Duration, windowSize int, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		client: client,
		feed:   feed,
		maxAge: maxAge,
		window: NewSampleWindow(windowSize),
		logger: logger,
	}
}

// LatestPrice reads latestRoundData from the feed. A sample older than the
// configured max age reports ErrOracleUnavailable. Fresh samples are added
// to the volatility window.
func (a *Adapter) LatestPrice(ctx context.Context) (model.PricePoint, error) {
	feedABI, err := AggregatorABI()
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("parse aggregator abi: %w", err)
	}

	decimals, err := a.feedDecimals(ctx, feedABI)
	if err != nil {
		return model.PricePoint{}, err
	}

	calldata, err := feedABI.Pack("latestRoundData")
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("pack latestRoundData: %w", err)
	}

	raw, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &a.feed, Data: calldata}, nil)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("%w: latestRoundData call: %v", model.ErrOracleUnavailable, err)
	}

	values, err := feedABI.Unpack("latestRoundData", raw)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("unpack latestRoundData: %w", err)
	}
	if len(values) != 5 {
		return model.PricePoint{}, fmt.Errorf("unexpected latestRoundData arity: %d", len(values))
	}

	answer, ok := values[1].(*big.Int)
	if !ok {
		return model.PricePoint{}, fmt.Errorf("unexpected answer type %T", values[1])
	}
	updatedAtInt, ok := values[3].(*big.Int)
	if !ok {
		return model.PricePoint{}, fmt.Errorf("unexpected updatedAt type %T", values[3])
	}

	if answer.Sign() <= 0 {
		return model.PricePoint{}, fmt.Errorf("%w: non-positive answer %s", model.ErrOracleUnavailable, answer)
	}

	updatedAt := time.Unix(updatedAtInt.Int64(), 0).UTC()
	if a.maxAge > 0 && time.Since(updatedAt) > a.maxAge {
		return model.PricePoint{}, fmt.Errorf("%w: sample from %s exceeds max age %s", model.ErrOracleUnavailable, updatedAt, a.maxAge)
	}

	value, _ := new(big.Float).Quo(
		new(big.Float).SetInt(answer),
		new(big.Float).SetFloat64(math.Pow10(int(decimals))),
	).Float64()

	sample := model.PricePoint{Value: value, ObservedAt: updatedAt}
	a.window.Add(sample)

	a.logger.Debug("price sample",
		zap.Float64("value", value),
		zap.Time("observed_at", updatedAt),
		zap.Int("window", a.window.Len()),
	)

	return sample, nil
}

// Volatility returns the estimate over the retained sample window.
func (a *Adapter) Volatility() float64 {
	return a.window.Volatility()
}

func (a *Adapter) feedDecimals(ctx context.Context, feedABI abi.ABI) (uint8, error) {
	if a.decimalsKnown {
		return a.decimals, nil
	}

	calldata, err := feedABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	raw, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &a.feed, Data: calldata}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals call: %v", model.ErrOracleUnavailable, err)
	}
	values, err := feedABI.Unpack("decimals", raw)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}

	a.decimals = decimals
	a.decimalsKnown = true
	return decimals, nil
}
