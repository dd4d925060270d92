// Package engine classifies price updates against the active position. It is
// pure: it never mutates the ledger, it only decides.
package engine

import (
	"math"

	"rangePilot/internal/model"
)

// Outcome is the result of a decision evaluation.
type Outcome string

const (
	NoAction         Outcome = "no_action"
	TriggerRebalance Outcome = "trigger_rebalance"
	TriggerCompound  Outcome = "trigger_compound"
)

// Distances holds the percentage distance from price to each range boundary.
type Distances struct {
	ToLowerPercent float64
	ToUpperPercent float64
}

// Min returns the smaller of the two boundary distances.
func (d Distances) Min() float64 {
	return math.Min(d.ToLowerPercent, d.ToUpperPercent)
}

// BoundaryDistances computes how far price sits from each range boundary, in
// percent. Distance to the lower bound is relative to the bound, distance to
// the upper bound is relative to the price.
func BoundaryDistances(pos model.LiquidityPosition, price float64) Distances {
	return Distances{
		ToLowerPercent: (price - pos.RangeLower) / pos.RangeLower * 100,
		ToUpperPercent: (pos.RangeUpper - price) / price * 100,
	}
}

// FeeValue values accrued fees in quote terms: token0 fees at the current
// price plus token1 fees at par.
func FeeValue(pos model.LiquidityPosition, price float64) float64 {
	return pos.AccruedFees0*price + pos.AccruedFees1
}

// Evaluate classifies a price update for the given position.
//
// A position that is not active never triggers: this is the concurrency
// guard that keeps a second workflow from starting while one is in flight.
// When both the rebalance and the compound condition hold, rebalance wins;
// compounding is folded into the rebalance workflow's fee collection, so a
// standalone compound would be redundant.
//
// A compound threshold of zero disables compounding entirely. A literal
// feeValue >= 0 comparison would fire on every tick with zero accrued fees,
// so zero is treated as off rather than always-on.
func Evaluate(pos model.LiquidityPosition, price model.PricePoint, cfg model.AutomationConfig) Outcome {
	if pos.Status != model.StatusActive {
		return NoAction
	}

	if BoundaryDistances(pos, price.Value).Min() <= cfg.RebalanceTriggerPercent {
		return TriggerRebalance
	}

	if cfg.CompoundThresholdAmount > 0 && FeeValue(pos, price.Value) >= cfg.CompoundThresholdAmount {
		return TriggerCompound
	}

	return NoAction
}
