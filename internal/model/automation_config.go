package model

// AutomationConfig is the process-wide automation tuning. Loaded once before
// the scheduler starts and read-only during operation; changes take effect on
// the next evaluation cycle, never mid-workflow.
type AutomationConfig struct {
	// RebalanceTriggerPercent is the distance to a range boundary, in
	// percent, at or below which a rebalance is triggered.
	RebalanceTriggerPercent float64 `json:"rebalance_trigger_percent" validate:"gt=0,lte=50"`

	// CompoundThresholdAmount is the minimum accrued fee value, in quote
	// terms, that triggers fee compounding.
	CompoundThresholdAmount float64 `json:"compound_threshold_amount" validate:"gte=0"`

	// MaxGasBudget caps the estimated gas units for a whole workflow. A
	// workflow that cannot complete within budget is never begun.
	MaxGasBudget uint64 `json:"max_gas_budget" validate:"gte=0"`

	// SlippageTolerancePercent is the maximum acceptable deviation between
	// expected and executed amounts during minting.
	SlippageTolerancePercent float64 `json:"slippage_tolerance_percent" validate:"gt=0,lte=100"`
}

// DefaultAutomationConfig returns the stock automation tuning. The gas
// budget covers the whole workflow: withdraw and collect estimates plus the
// mint allowance, so it sits well above any single transaction's limit.
func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		RebalanceTriggerPercent:  5,
		CompoundThresholdAmount:  10,
		MaxGasBudget:             1000000,
		SlippageTolerancePercent: 0.5,
	}
}
