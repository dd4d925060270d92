// Package scheduler drives the decision engine on a fixed cadence. Ticks
// never overlap: a tick that fires while an evaluation or workflow is still
// running is skipped, not queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"rangePilot/internal/engine"
	"rangePilot/internal/ledger"
	"rangePilot/internal/model"
	"rangePilot/internal/workflow"
)

// Config holds scheduler cadence and automation tuning. Exactly one of
// Interval and CronSpec must be set.
type Config struct {
	Interval   time.Duration
	CronSpec   string
	Automation model.AutomationConfig
}

// FeeSource reads the fees currently owed to a live position on-chain. Fee
// accrual is external mutation; polling it is what makes the compound
// trigger reachable between workflows.
type FeeSource interface {
	PositionFees(ctx context.Context, pos model.LiquidityPosition) (float64, float64, error)
}

// Scheduler periodically evaluates the managed position and dispatches
// rebalance or compound workflows.
type Scheduler struct {
	cfg         Config
	prices      workflow.PriceSource
	fees        FeeSource
	ledger      *ledger.Ledger
	coordinator *workflow.Coordinator
	logger      *zap.Logger

	paused atomic.Bool
	busy   atomic.Bool
}

func New(cfg Config, prices workflow.PriceSource, fees FeeSource, led *ledger.Ledger, coordinator *workflow.Coordinator, logger *zap.Logger) (*Scheduler, error) {
	if (cfg.Interval > 0) == (cfg.CronSpec != "") {
		return nil, fmt.Errorf("%w: exactly one of interval and cron spec must be set", model.ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:         cfg,
		prices:      prices,
		fees:        fees,
		ledger:      led,
		coordinator: coordinator,
		logger:      logger,
	}, nil
}

// Pause stops new evaluations before the next tick. A workflow already past
// Idle keeps running to completion.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.logger.Info("automation paused")
}

// Resume re-enables evaluations from the next tick.
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.logger.Info("automation resumed")
}

// Paused reports whether automation is currently paused.
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

// Run drives ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.CronSpec != "" {
		return s.runCron(ctx)
	}

	s.logger.Info("scheduler start", zap.Duration("interval", s.cfg.Interval))
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context) error {
	s.logger.Info("scheduler start", zap.String("cron", s.cfg.CronSpec))

	c := cron.New()
	if err := c.AddFunc(s.cfg.CronSpec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("%w: cron spec %q: %v", model.ErrInvalidInput, s.cfg.CronSpec, err)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// tick runs one evaluation cycle. It returns immediately when paused or when
// a previous cycle is still in flight.
func (s *Scheduler) tick(ctx context.Context) {
	if s.paused.Load() {
		s.logger.Debug("tick skipped: paused")
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Debug("tick skipped: previous cycle still running")
		return
	}

	price, err := s.prices.LatestPrice(ctx)
	if err != nil {
		s.busy.Store(false)
		if errors.Is(err, model.ErrOracleUnavailable) {
			s.logger.Warn("tick skipped: oracle unavailable", zap.Error(err))
			return
		}
		s.logger.Error("price fetch failed", zap.Error(err))
		return
	}

	pos := s.refreshFees(ctx)
	outcome := engine.Evaluate(pos, price, s.cfg.Automation)

	s.logger.Debug("evaluation",
		zap.Float64("price", price.Value),
		zap.String("status", string(pos.Status)),
		zap.String("outcome", string(outcome)),
	)

	switch outcome {
	case engine.TriggerRebalance:
		s.dispatch(ctx, "rebalance", s.coordinator.ExecuteRebalance)
	case engine.TriggerCompound:
		s.dispatch(ctx, "compound", s.coordinator.ExecuteCompound)
	default:
		s.busy.Store(false)
	}
}

// refreshFees polls owed fees for a live position and records the growth
// since the last observation. A failed poll is logged and evaluation proceeds
// on the last recorded numbers.
func (s *Scheduler) refreshFees(ctx context.Context) model.LiquidityPosition {
	pos := s.ledger.Position()
	if s.fees == nil || pos.Status != model.StatusActive || pos.ID == "" {
		return pos
	}

	owed0, owed1, err := s.fees.PositionFees(ctx, pos)
	if err != nil {
		s.logger.Warn("fee poll failed", zap.Error(err))
		return pos
	}

	delta0 := owed0 - pos.AccruedFees0
	delta1 := owed1 - pos.AccruedFees1
	if delta0 <= 0 && delta1 <= 0 {
		return pos
	}
	if err := s.ledger.RecordFees(ctx, math.Max(delta0, 0), math.Max(delta1, 0)); err != nil {
		s.logger.Warn("record polled fees", zap.Error(err))
		return pos
	}
	return s.ledger.Position()
}

// dispatch runs a workflow in the background, holding the busy flag so
// subsequent ticks are skipped until it finishes. Confirmation waits inside
// the workflow therefore never block the tick loop itself.
func (s *Scheduler) dispatch(ctx context.Context, kind string, run func(context.Context) error) {
	s.logger.Info("workflow triggered", zap.String("kind", kind))
	go func() {
		defer s.busy.Store(false)
		if err := run(ctx); err != nil {
			s.logger.Error("workflow error", zap.String("kind", kind), zap.Error(err))
		}
	}()
}
