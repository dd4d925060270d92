package model

import "time"

// PlanRationale records the inputs a rebalance plan was computed from.
// Retained for audit and logging only, never for control flow.
type PlanRationale struct {
	Price          float64   `json:"price"`
	Volatility     float64   `json:"volatility"`
	BandMultiplier float64   `json:"band_multiplier"`
	ExpectedAPRBps int       `json:"expected_apr_bps"`
	ComputedAt     time.Time `json:"computed_at"`
}

// RebalancePlan is the ephemeral result of a range computation. It is owned
// by the workflow invocation that created it and discarded after the mint
// step succeeds or the workflow aborts.
type RebalancePlan struct {
	NewRangeLower float64       `json:"new_range_lower"`
	NewRangeUpper float64       `json:"new_range_upper"`
	TickLower     int           `json:"tick_lower"`
	TickUpper     int           `json:"tick_upper"`
	Rationale     PlanRationale `json:"rationale"`
}
