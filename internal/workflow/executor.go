package workflow

import (
	"context"

	"rangePilot/internal/model"
)

// StepResult reports a confirmed on-chain step.
type StepResult struct {
	TxHash  string
	Amount0 float64
	Amount1 float64
	GasUsed uint64
}

// MintResult reports a confirmed mint or liquidity increase.
type MintResult struct {
	StepResult
	TokenID   string
	Liquidity string
	Executed0 float64
	Executed1 float64
}

// Executor performs the on-chain legs of a rebalance. Each method returns
// only after the transaction is confirmed; a submitted-but-unconfirmed
// transaction never advances the state machine.
type Executor interface {
	// EstimateWorkflowGas estimates total gas units for a full rebalance of
	// the given position.
	EstimateWorkflowGas(ctx context.Context, pos model.LiquidityPosition) (uint64, error)

	// Withdraw removes the full liquidity of the position.
	Withdraw(ctx context.Context, pos model.LiquidityPosition) (StepResult, error)

	// Collect claims all accrued fees plus amounts owed from the withdrawal.
	Collect(ctx context.Context, pos model.LiquidityPosition) (StepResult, error)

	// Mint opens a new position for the plan's range with the given amounts.
	Mint(ctx context.Context, pos model.LiquidityPosition, plan model.RebalancePlan, amount0, amount1 float64) (MintResult, error)

	// Compound adds the given amounts to the existing position's range.
	Compound(ctx context.Context, pos model.LiquidityPosition, amount0, amount1 float64) (MintResult, error)
}

// PriceSource supplies the latest confirmed price and a volatility estimate.
type PriceSource interface {
	LatestPrice(ctx context.Context) (model.PricePoint, error)
	Volatility() float64
}
