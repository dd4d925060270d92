// Package workflow drives the multi-step on-chain rebalance: withdraw,
// collect, calculate, mint. Failures after the first on-chain commitment
// leave funds outside any position, so they are never silently retried; the
// workflow terminates with a recovery flag instead.
package workflow

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rangePilot/internal/ledger"
	"rangePilot/internal/model"
	"rangePilot/internal/rangecalc"
	"rangePilot/internal/storage"
)

// State identifies a step of the rebalance state machine.
type State string

const (
	StateIdle        State = "idle"
	StateWithdrawing State = "withdrawing"
	StateCollecting  State = "collecting"
	StateCalculating State = "calculating"
	StateMinting     State = "minting"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Config holds coordinator tuning.
type Config struct {
	Automation   model.AutomationConfig
	Policy       rangecalc.Policy
	MaxRetries   int
	RetryBackoff time.Duration
}

// Coordinator executes rebalance and compound workflows against a single
// (owner, pool) pair.
type Coordinator struct {
	cfg    Config
	ledger *ledger.Ledger
	exec   Executor
	prices PriceSource
	status storage.WorkflowStore
	logger *zap.Logger

	mu               sync.Mutex
	state            State
	requiresRecovery bool
	runID            string
	detail           string
}

func NewCoordinator(cfg Config, led *ledger.Ledger, exec Executor, prices PriceSource, status storage.WorkflowStore, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:    cfg,
		ledger: led,
		exec:   exec,
		prices: prices,
		status: status,
		logger: logger,
		state:  StateIdle,
	}
}

// Status reports the current state and whether manual recovery is required.
func (c *Coordinator) Status() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.requiresRecovery
}

// Busy reports whether a workflow is past Idle and not yet terminal.
func (c *Coordinator) Busy() bool {
	state, _ := c.Status()
	switch state {
	case StateIdle, StateCompleted, StateFailed:
		return false
	default:
		return true
	}
}

// ExecuteRebalance runs the full withdraw-collect-calculate-mint workflow.
// A gas estimate over budget aborts before the ledger is touched; the
// outcome is then equivalent to no action.
func (c *Coordinator) ExecuteRebalance(ctx context.Context) error {
	pos := c.ledger.Position()

	c.begin()
	defer c.finish()

	estimate, err := c.exec.EstimateWorkflowGas(ctx, pos)
	if err != nil {
		return c.fail(ctx, false, fmt.Errorf("estimate workflow gas: %w", err))
	}
	if c.cfg.Automation.MaxGasBudget > 0 && estimate > c.cfg.Automation.MaxGasBudget {
		c.logger.Warn("workflow exceeds gas budget, not starting",
			zap.Uint64("estimate", estimate),
			zap.Uint64("budget", c.cfg.Automation.MaxGasBudget),
		)
		c.setState(ctx, StateIdle, "gas estimate over budget")
		return nil
	}

	if _, err := c.ledger.BeginRebalance(ctx); err != nil {
		return c.fail(ctx, false, fmt.Errorf("begin rebalance: %w", err))
	}

	// Withdrawing is idempotent on an undisturbed position, so transient
	// submission failures are retried here and nowhere else.
	c.setState(ctx, StateWithdrawing, "")
	var withdrawn StepResult
	err = retryTransient(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, c.logger, func(ctx context.Context) error {
		var stepErr error
		withdrawn, stepErr = c.exec.Withdraw(ctx, pos)
		return stepErr
	})
	if err != nil {
		if abortErr := c.ledger.AbortRebalance(ctx); abortErr != nil {
			c.logger.Error("abort rebalance failed", zap.Error(abortErr))
		}
		return c.fail(ctx, false, fmt.Errorf("withdraw: %w", err))
	}

	c.setState(ctx, StateCollecting, "")
	collected, err := c.exec.Collect(ctx, pos)
	if err != nil {
		return c.fail(ctx, true, fmt.Errorf("collect: %w", err))
	}
	if err := c.ledger.RecordFees(ctx, collected.Amount0, collected.Amount1); err != nil {
		c.logger.Warn("record collected fees", zap.Error(err))
	}

	c.setState(ctx, StateCalculating, "")
	plan, err := c.buildPlan(ctx)
	if err != nil {
		return c.fail(ctx, true, fmt.Errorf("calculate range: %w", err))
	}

	// Compounding folds in here: the mint re-deploys withdrawn principal
	// plus collected fees.
	amount0 := withdrawn.Amount0 + collected.Amount0
	amount1 := withdrawn.Amount1 + collected.Amount1

	c.setState(ctx, StateMinting, "")
	minted, err := c.exec.Mint(ctx, pos, plan, amount0, amount1)
	if err != nil {
		return c.fail(ctx, true, fmt.Errorf("mint: %w", err))
	}
	if err := c.checkSlippage(amount0, amount1, minted); err != nil {
		return c.fail(ctx, true, err)
	}

	if err := c.ledger.ApplyRebalanceResult(ctx, plan.NewRangeLower, plan.NewRangeUpper, minted.Liquidity, minted.TokenID); err != nil {
		return c.fail(ctx, true, fmt.Errorf("apply rebalance result: %w", err))
	}

	c.setState(ctx, StateCompleted, "")
	c.logger.Info("rebalance complete",
		zap.String("run_id", c.runID),
		zap.Float64("new_lower", plan.NewRangeLower),
		zap.Float64("new_upper", plan.NewRangeUpper),
		zap.String("token_id", minted.TokenID),
	)
	return nil
}

// ExecuteCompound collects accrued fees and adds them back into the existing
// range, leaving the bounds untouched.
func (c *Coordinator) ExecuteCompound(ctx context.Context) error {
	pos := c.ledger.Position()

	c.begin()
	defer c.finish()

	if _, err := c.ledger.BeginRebalance(ctx); err != nil {
		return c.fail(ctx, false, fmt.Errorf("begin compound: %w", err))
	}

	c.setState(ctx, StateCollecting, "compound")
	collected, err := c.exec.Collect(ctx, pos)
	if err != nil {
		return c.fail(ctx, true, fmt.Errorf("collect: %w", err))
	}

	c.setState(ctx, StateMinting, "compound")
	minted, err := c.exec.Compound(ctx, pos, collected.Amount0, collected.Amount1)
	if err != nil {
		return c.fail(ctx, true, fmt.Errorf("compound: %w", err))
	}
	if err := c.checkSlippage(collected.Amount0, collected.Amount1, minted); err != nil {
		return c.fail(ctx, true, err)
	}

	if err := c.ledger.ApplyRebalanceResult(ctx, pos.RangeLower, pos.RangeUpper, minted.Liquidity, pos.ID); err != nil {
		return c.fail(ctx, true, fmt.Errorf("apply compound result: %w", err))
	}

	c.setState(ctx, StateCompleted, "compound")
	c.logger.Info("compound complete",
		zap.String("run_id", c.runID),
		zap.Float64("amount0", collected.Amount0),
		zap.Float64("amount1", collected.Amount1),
	)
	return nil
}

// ExecuteOpen mints the initial position around the current price and records
// it in the ledger. This is the deployment bootstrap: without it the ledger
// stays Inactive and no evaluation can ever trigger.
func (c *Coordinator) ExecuteOpen(ctx context.Context, amount0, amount1 float64) error {
	pos := c.ledger.Position()

	c.begin()
	defer c.finish()

	if pos.Status == model.StatusActive || pos.Status == model.StatusRebalancing {
		return c.fail(ctx, false, fmt.Errorf("%w: status %s", model.ErrAlreadyActive, pos.Status))
	}

	c.setState(ctx, StateCalculating, "open")
	plan, err := c.buildPlan(ctx)
	if err != nil {
		return c.fail(ctx, false, fmt.Errorf("calculate range: %w", err))
	}

	c.setState(ctx, StateMinting, "open")
	minted, err := c.exec.Mint(ctx, pos, plan, amount0, amount1)
	if err != nil {
		return c.fail(ctx, false, fmt.Errorf("mint: %w", err))
	}
	// The mint confirmed on-chain. Any failure from here leaves a live
	// position that the ledger does not know about.
	if err := c.checkSlippage(amount0, amount1, minted); err != nil {
		return c.fail(ctx, true, fmt.Errorf("open mint %s (token %s): %w", minted.TxHash, minted.TokenID, err))
	}

	if _, err := c.ledger.Open(ctx, plan.NewRangeLower, plan.NewRangeUpper, minted.Liquidity, minted.TokenID); err != nil {
		return c.fail(ctx, true, fmt.Errorf("record opened position: %w", err))
	}

	c.setState(ctx, StateCompleted, "open")
	c.logger.Info("position opened",
		zap.String("run_id", c.runID),
		zap.String("token_id", minted.TokenID),
		zap.Float64("lower", plan.NewRangeLower),
		zap.Float64("upper", plan.NewRangeUpper),
	)
	return nil
}

func (c *Coordinator) buildPlan(ctx context.Context) (model.RebalancePlan, error) {
	price, err := c.prices.LatestPrice(ctx)
	if err != nil {
		return model.RebalancePlan{}, err
	}
	volatility := c.prices.Volatility()

	r, err := rangecalc.ComputeOptimalRange(price.Value, volatility, c.cfg.Policy)
	if err != nil {
		return model.RebalancePlan{}, err
	}

	multiplier := rangecalc.BandMultiplier(volatility, c.cfg.Policy)
	return model.RebalancePlan{
		NewRangeLower: r.Lower,
		NewRangeUpper: r.Upper,
		TickLower:     r.TickLower,
		TickUpper:     r.TickUpper,
		Rationale: model.PlanRationale{
			Price:          price.Value,
			Volatility:     volatility,
			BandMultiplier: multiplier,
			ExpectedAPRBps: rangecalc.ExpectedAPRBps(multiplier),
			ComputedAt:     time.Now().UTC(),
		},
	}, nil
}

func (c *Coordinator) checkSlippage(expected0, expected1 float64, minted MintResult) error {
	tolerance := c.cfg.Automation.SlippageTolerancePercent
	if dev := deviationPercent(expected0, minted.Executed0); dev > tolerance {
		return fmt.Errorf("%w: amount0 deviated %.4f%% (tolerance %.4f%%)", model.ErrSlippageExceeded, dev, tolerance)
	}
	if dev := deviationPercent(expected1, minted.Executed1); dev > tolerance {
		return fmt.Errorf("%w: amount1 deviated %.4f%% (tolerance %.4f%%)", model.ErrSlippageExceeded, dev, tolerance)
	}
	return nil
}

func deviationPercent(expected, executed float64) float64 {
	if expected == 0 {
		return 0
	}
	return math.Abs(expected-executed) / expected * 100
}

func (c *Coordinator) begin() {
	c.mu.Lock()
	c.runID = uuid.NewString()
	c.state = StateIdle
	c.requiresRecovery = false
	c.detail = ""
	c.mu.Unlock()
}

// finish resets a completed workflow back to Idle. Failed stays put: it is
// terminal until an operator intervenes.
func (c *Coordinator) finish() {
	c.mu.Lock()
	if c.state == StateCompleted {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

func (c *Coordinator) fail(ctx context.Context, requiresRecovery bool, err error) error {
	detail := err.Error()
	c.mu.Lock()
	c.state = StateFailed
	c.requiresRecovery = requiresRecovery
	c.detail = detail
	c.mu.Unlock()

	c.report(ctx)

	if requiresRecovery {
		c.logger.Error("workflow failed, manual recovery required",
			zap.String("run_id", c.runID),
			zap.Error(err),
		)
	} else {
		c.logger.Warn("workflow failed, position undisturbed",
			zap.String("run_id", c.runID),
			zap.Error(err),
		)
	}
	return err
}

func (c *Coordinator) setState(ctx context.Context, state State, detail string) {
	c.mu.Lock()
	c.state = state
	c.detail = detail
	c.mu.Unlock()

	c.report(ctx)

	c.logger.Info("workflow state",
		zap.String("run_id", c.runID),
		zap.String("state", string(state)),
	)
}

func (c *Coordinator) report(ctx context.Context) {
	if c.status == nil {
		return
	}

	pos := c.ledger.Position()
	c.mu.Lock()
	record := model.WorkflowStatus{
		RunID:            c.runID,
		Owner:            pos.Owner,
		Pool:             pos.Pool,
		State:            string(c.state),
		RequiresRecovery: c.requiresRecovery,
		Detail:           c.detail,
		UpdatedAt:        time.Now().UTC().Format(time.RFC3339Nano),
	}
	c.mu.Unlock()

	if err := c.status.SaveWorkflowStatus(ctx, record); err != nil {
		c.logger.Warn("persist workflow status", zap.Error(err))
	}
}
