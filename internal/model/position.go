package model

import "time"

// PositionStatus is the lifecycle state of a liquidity position.
type PositionStatus string

const (
	StatusInactive    PositionStatus = "inactive"
	StatusActive      PositionStatus = "active"
	StatusRebalancing PositionStatus = "rebalancing"
)

// LiquidityPosition is the single concentrated-liquidity position managed per
// (owner, pool) pair. At most one position is active or rebalancing at a time.
type LiquidityPosition struct {
	// ID is the on-chain token id once minted; empty before the first mint.
	ID              string         `json:"id,omitempty"`
	Owner           string         `json:"owner"`
	Pool            string         `json:"pool"`
	RangeLower      float64        `json:"range_lower"`
	RangeUpper      float64        `json:"range_upper"`
	LiquidityAmount string         `json:"liquidity_amount"`
	AccruedFees0    float64        `json:"accrued_fees0"`
	AccruedFees1    float64        `json:"accrued_fees1"`
	Status          PositionStatus `json:"status"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// InRange reports whether price lies within the position bounds.
func (p LiquidityPosition) InRange(price float64) bool {
	return price >= p.RangeLower && price <= p.RangeUpper
}
