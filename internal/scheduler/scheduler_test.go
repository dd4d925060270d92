package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangePilot/internal/ledger"
	"rangePilot/internal/model"
	"rangePilot/internal/rangecalc"
	"rangePilot/internal/workflow"
)

type stubPrices struct {
	price float64
	err   error
	calls atomic.Int32
}

func (s *stubPrices) LatestPrice(context.Context) (model.PricePoint, error) {
	s.calls.Add(1)
	if s.err != nil {
		return model.PricePoint{}, s.err
	}
	return model.PricePoint{Value: s.price, ObservedAt: time.Now()}, nil
}

func (s *stubPrices) Volatility() float64 { return 0.01 }

type stubExecutor struct {
	started      chan struct{}
	release      chan struct{}
	mintRuns     atomic.Int32
	compoundRuns atomic.Int32

	owed0  float64
	owed1  float64
	feeErr error
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (s *stubExecutor) PositionFees(context.Context, model.LiquidityPosition) (float64, float64, error) {
	if s.feeErr != nil {
		return 0, 0, s.feeErr
	}
	return s.owed0, s.owed1, nil
}

func (s *stubExecutor) EstimateWorkflowGas(context.Context, model.LiquidityPosition) (uint64, error) {
	return 100000, nil
}

func (s *stubExecutor) Withdraw(ctx context.Context, _ model.LiquidityPosition) (workflow.StepResult, error) {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return workflow.StepResult{}, ctx.Err()
	}
	return workflow.StepResult{Amount0: 1, Amount1: 2000}, nil
}

func (s *stubExecutor) Collect(context.Context, model.LiquidityPosition) (workflow.StepResult, error) {
	return workflow.StepResult{}, nil
}

func (s *stubExecutor) Mint(context.Context, model.LiquidityPosition, model.RebalancePlan, float64, float64) (workflow.MintResult, error) {
	s.mintRuns.Add(1)
	return workflow.MintResult{
		StepResult: workflow.StepResult{TxHash: "0xm"},
		TokenID:    "43",
		Liquidity:  "1",
		Executed0:  1,
		Executed1:  2000,
	}, nil
}

func (s *stubExecutor) Compound(context.Context, model.LiquidityPosition, float64, float64) (workflow.MintResult, error) {
	s.compoundRuns.Add(1)
	return workflow.MintResult{Liquidity: "1"}, nil
}

func newTestScheduler(t *testing.T, prices workflow.PriceSource, exec *stubExecutor) (*Scheduler, *ledger.Ledger) {
	t.Helper()

	led := ledger.New("0xowner", "0xpool", nil, nil, nil)
	_, err := led.Open(context.Background(), 1800, 2200, "1000000", "42")
	require.NoError(t, err)

	automation := model.AutomationConfig{
		RebalanceTriggerPercent:  5,
		CompoundThresholdAmount:  10,
		MaxGasBudget:             500000,
		SlippageTolerancePercent: 0.5,
	}
	coord := workflow.NewCoordinator(workflow.Config{
		Automation:   automation,
		Policy:       rangecalc.DefaultPolicy(),
		RetryBackoff: time.Millisecond,
	}, led, exec, prices, nil, nil)

	s, err := New(Config{Interval: time.Hour, Automation: automation}, prices, exec, led, coord, nil)
	require.NoError(t, err)
	return s, led
}

func TestNewRejectsAmbiguousCadence(t *testing.T) {
	_, err := New(Config{}, &stubPrices{}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = New(Config{Interval: time.Minute, CronSpec: "0 * * * * *"}, &stubPrices{}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestPausedTickSkipsEvaluation(t *testing.T) {
	prices := &stubPrices{price: 2100}
	s, _ := newTestScheduler(t, prices, newStubExecutor())

	s.Pause()
	s.tick(context.Background())

	assert.Zero(t, prices.calls.Load())

	s.Resume()
	assert.False(t, s.Paused())
}

func TestOracleUnavailableSkipsTick(t *testing.T) {
	prices := &stubPrices{err: model.ErrOracleUnavailable}
	s, led := newTestScheduler(t, prices, newStubExecutor())

	s.tick(context.Background())

	assert.Equal(t, model.StatusActive, led.Position().Status)
	assert.False(t, s.busy.Load())
}

func TestBusyTickIsSkippedNotQueued(t *testing.T) {
	prices := &stubPrices{price: 2100} // inside the 5% trigger for [1800,2200]
	exec := newStubExecutor()
	s, _ := newTestScheduler(t, prices, exec)

	ctx := context.Background()
	s.tick(ctx)

	// Wait for the workflow to reach its first on-chain step.
	select {
	case <-exec.started:
	case <-time.After(time.Second):
		t.Fatal("workflow never started")
	}

	callsBefore := prices.calls.Load()
	s.tick(ctx)
	assert.Equal(t, callsBefore, prices.calls.Load(), "busy tick must not evaluate")

	close(exec.release)

	require.Eventually(t, func() bool { return !s.busy.Load() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), exec.mintRuns.Load())
}

func TestPauseDoesNotHaltInFlightWorkflow(t *testing.T) {
	prices := &stubPrices{price: 2100}
	exec := newStubExecutor()
	s, led := newTestScheduler(t, prices, exec)

	ctx := context.Background()
	s.tick(ctx)

	select {
	case <-exec.started:
	case <-time.After(time.Second):
		t.Fatal("workflow never started")
	}

	// Pausing mid-Collecting must let the workflow finish; only the next
	// tick is suppressed.
	s.Pause()
	close(exec.release)

	require.Eventually(t, func() bool {
		return led.Position().Status == model.StatusActive && led.Position().ID == "43"
	}, time.Second, time.Millisecond)

	callsBefore := prices.calls.Load()
	s.tick(ctx)
	assert.Equal(t, callsBefore, prices.calls.Load())
}

func TestFeePollTriggersCompound(t *testing.T) {
	prices := &stubPrices{price: 2000} // outside the rebalance trigger
	exec := newStubExecutor()
	exec.owed0 = 0.004 // 8 in quote terms at price 2000
	exec.owed1 = 3     // total 11, above the threshold of 10
	s, led := newTestScheduler(t, prices, exec)

	s.tick(context.Background())

	require.Eventually(t, func() bool { return !s.busy.Load() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), exec.compoundRuns.Load())

	// Compounding resets accrued fees along with re-deploying them.
	pos := led.Position()
	assert.Equal(t, model.StatusActive, pos.Status)
	assert.Zero(t, pos.AccruedFees0)
	assert.Zero(t, pos.AccruedFees1)
	assert.Equal(t, "1", pos.LiquidityAmount)
}

func TestFeePollRecordsOnlyGrowth(t *testing.T) {
	prices := &stubPrices{price: 2000}
	exec := newStubExecutor()
	exec.owed1 = 5 // below the compound threshold
	s, led := newTestScheduler(t, prices, exec)

	ctx := context.Background()
	s.tick(ctx)
	s.tick(ctx)

	// Two polls observing the same owed amount must not double-count.
	assert.Equal(t, 5.0, led.Position().AccruedFees1)
	assert.Zero(t, exec.compoundRuns.Load())
}

func TestFeePollFailureDoesNotBlockEvaluation(t *testing.T) {
	prices := &stubPrices{price: 2100}
	exec := newStubExecutor()
	exec.feeErr = model.ErrTransactionFailed
	s, _ := newTestScheduler(t, prices, exec)

	s.tick(context.Background())

	select {
	case <-exec.started:
	case <-time.After(time.Second):
		t.Fatal("rebalance should dispatch despite the failed fee poll")
	}
	close(exec.release)
	require.Eventually(t, func() bool { return !s.busy.Load() }, time.Second, time.Millisecond)
}

func TestNoActionReleasesBusy(t *testing.T) {
	prices := &stubPrices{price: 2000} // minDistance 10%, above trigger
	s, _ := newTestScheduler(t, prices, newStubExecutor())

	s.tick(context.Background())
	assert.False(t, s.busy.Load())
}
