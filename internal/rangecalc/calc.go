package rangecalc

import (
	"fmt"
	"math"

	"rangePilot/internal/model"
)

// tickBase is the logarithmic price step of the underlying pool grid.
const tickBase = 1.0001

// Policy maps a volatility estimate onto a band-width multiplier and carries
// the tick granularity of the target pool. Thresholds are configuration, not
// engine constants.
type Policy struct {
	LowVolThreshold  float64
	MedVolThreshold  float64
	HighVolThreshold float64

	LowBand     float64
	MedBand     float64
	HighBand    float64
	ExtremeBand float64

	TickSpacing int
}

// DefaultPolicy returns the stock concentration ladder: narrow ranges while
// price is stable, wider safety margin as volatility rises. Tick spacing 60
// matches the 0.3% fee tier.
func DefaultPolicy() Policy {
	return Policy{
		LowVolThreshold:  0.02,
		MedVolThreshold:  0.05,
		HighVolThreshold: 0.10,
		LowBand:          0.05,
		MedBand:          0.08,
		HighBand:         0.12,
		ExtremeBand:      0.15,
		TickSpacing:      60,
	}
}

// Range is a recommended price range snapped to the pool's tick grid.
type Range struct {
	Lower     float64
	Upper     float64
	TickLower int
	TickUpper int
}

// ComputeOptimalRange produces a tick-aligned range around currentPrice. The
// lower bound rounds down and the upper bound rounds up, so the current price
// is never excluded by rounding. Pure and deterministic.
func ComputeOptimalRange(currentPrice, volatility float64, policy Policy) (Range, error) {
	if currentPrice <= 0 || math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) {
		return Range{}, fmt.Errorf("%w: current price must be positive, got %v", model.ErrInvalidInput, currentPrice)
	}
	if volatility < 0 || math.IsNaN(volatility) {
		return Range{}, fmt.Errorf("%w: volatility must be non-negative, got %v", model.ErrInvalidInput, volatility)
	}
	if policy.TickSpacing <= 0 {
		return Range{}, fmt.Errorf("%w: tick spacing must be positive, got %d", model.ErrInvalidInput, policy.TickSpacing)
	}

	multiplier := BandMultiplier(volatility, policy)

	rawLower := currentPrice * (1 - multiplier)
	rawUpper := currentPrice * (1 + multiplier)

	tickLower := floorToSpacing(PriceToTick(rawLower), policy.TickSpacing)
	tickUpper := ceilToSpacing(upperTick(rawUpper), policy.TickSpacing)

	return Range{
		Lower:     TickToPrice(tickLower),
		Upper:     TickToPrice(tickUpper),
		TickLower: tickLower,
		TickUpper: tickUpper,
	}, nil
}

// BandMultiplier maps volatility into the policy's discrete band ladder.
func BandMultiplier(volatility float64, policy Policy) float64 {
	switch {
	case volatility < policy.LowVolThreshold:
		return policy.LowBand
	case volatility < policy.MedVolThreshold:
		return policy.MedBand
	case volatility < policy.HighVolThreshold:
		return policy.HighBand
	default:
		return policy.ExtremeBand
	}
}

// ExpectedAPRBps estimates the fee APR for a band multiplier, in basis
// points: a 15% base plus a concentration efficiency bonus, capped at 30%.
// Reporting only.
func ExpectedAPRBps(multiplier float64) int {
	if multiplier <= 0 {
		return 0
	}
	apr := 1500 + int(math.Floor(1/multiplier*100))
	if apr > 3000 {
		apr = 3000
	}
	return apr
}

// PriceToTick converts a price to the highest tick whose price does not
// exceed it.
func PriceToTick(price float64) int {
	return int(math.Floor(math.Log(price) / math.Log(tickBase)))
}

// TickToPrice converts a tick index back to a price.
func TickToPrice(tick int) float64 {
	return math.Pow(tickBase, float64(tick))
}

// upperTick returns the lowest tick whose price is at least rawUpper.
func upperTick(rawUpper float64) int {
	tick := PriceToTick(rawUpper)
	if TickToPrice(tick) < rawUpper {
		tick++
	}
	return tick
}

func floorToSpacing(tick, spacing int) int {
	return floorDiv(tick, spacing) * spacing
}

func ceilToSpacing(tick, spacing int) int {
	return -floorDiv(-tick, spacing) * spacing
}

// floorDiv divides rounding toward negative infinity. Ticks are negative for
// prices below one, so truncating division would round the wrong way.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
