// Package ledger owns the single managed liquidity position. Every mutation
// funnels through its transition methods, which persist the new snapshot
// before committing in memory and append a sequenced audit record.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rangePilot/internal/model"
	"rangePilot/internal/storage"
)

// Ledger tracks one position per (owner, pool) pair.
type Ledger struct {
	owner  string
	pool   string
	store  storage.PositionStore
	audit  storage.AuditSink
	logger *zap.Logger

	mu  sync.Mutex
	pos model.LiquidityPosition
	seq uint64
}

// New builds a Ledger. store and audit may be nil, in which case the ledger
// is memory-only.
func New(owner, pool string, store storage.PositionStore, audit storage.AuditSink, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		owner:  owner,
		pool:   pool,
		store:  store,
		audit:  audit,
		logger: logger,
		pos: model.LiquidityPosition{
			Owner:  owner,
			Pool:   pool,
			Status: model.StatusInactive,
		},
	}
}

// Restore loads the persisted snapshot, if any.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	pos, ok, err := l.store.LoadPosition(ctx, l.owner, l.pool)
	if err != nil {
		return fmt.Errorf("restore position: %w", err)
	}
	if !ok {
		return nil
	}
	l.mu.Lock()
	l.pos = pos
	l.mu.Unlock()
	l.logger.Info("position restored",
		zap.String("owner", l.owner),
		zap.String("pool", l.pool),
		zap.String("status", string(pos.Status)),
	)
	return nil
}

// Position returns a copy of the current position.
func (l *Ledger) Position() model.LiquidityPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos
}

// Open creates the position after a successful deposit mint.
func (l *Ledger) Open(ctx context.Context, rangeLower, rangeUpper float64, liquidityAmount, tokenID string) (model.LiquidityPosition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rangeLower <= 0 || rangeUpper <= rangeLower {
		return model.LiquidityPosition{}, fmt.Errorf("%w: range [%v, %v] is not monotonic", model.ErrInvalidInput, rangeLower, rangeUpper)
	}
	if l.pos.Status == model.StatusActive || l.pos.Status == model.StatusRebalancing {
		return model.LiquidityPosition{}, fmt.Errorf("%w: status %s", model.ErrAlreadyActive, l.pos.Status)
	}

	next := l.pos
	next.ID = tokenID
	next.RangeLower = rangeLower
	next.RangeUpper = rangeUpper
	next.LiquidityAmount = liquidityAmount
	next.AccruedFees0 = 0
	next.AccruedFees1 = 0
	next.Status = model.StatusActive

	if err := l.commit(ctx, next, "open", fmt.Sprintf("range=[%v,%v] liquidity=%s", rangeLower, rangeUpper, liquidityAmount)); err != nil {
		return model.LiquidityPosition{}, err
	}
	return l.pos, nil
}

// RecordFees adds externally accrued fees. Fees grow monotonically until
// collected.
func (l *Ledger) RecordFees(ctx context.Context, amount0, amount1 float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount0 < 0 || amount1 < 0 {
		return fmt.Errorf("%w: fee amounts must be non-negative", model.ErrInvalidInput)
	}
	if l.pos.Status == model.StatusInactive {
		return fmt.Errorf("%w: no position to accrue fees on", model.ErrInvalidState)
	}

	next := l.pos
	next.AccruedFees0 += amount0
	next.AccruedFees1 += amount1

	return l.commit(ctx, next, "record_fees", fmt.Sprintf("amount0=%v amount1=%v", amount0, amount1))
}

// BeginRebalance transitions Active -> Rebalancing.
func (l *Ledger) BeginRebalance(ctx context.Context) (model.LiquidityPosition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos.Status != model.StatusActive {
		return model.LiquidityPosition{}, fmt.Errorf("%w: begin rebalance from %s", model.ErrInvalidState, l.pos.Status)
	}

	next := l.pos
	next.Status = model.StatusRebalancing

	if err := l.commit(ctx, next, "begin_rebalance", ""); err != nil {
		return model.LiquidityPosition{}, err
	}
	return l.pos, nil
}

// ApplyRebalanceResult transitions Rebalancing -> Active with the new range
// and liquidity. Accrued fees reset to zero: they were collected as part of
// the same workflow.
func (l *Ledger) ApplyRebalanceResult(ctx context.Context, rangeLower, rangeUpper float64, liquidityAmount, tokenID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos.Status != model.StatusRebalancing {
		return fmt.Errorf("%w: apply rebalance result from %s", model.ErrInvalidState, l.pos.Status)
	}
	if rangeLower <= 0 || rangeUpper <= rangeLower {
		return fmt.Errorf("%w: range [%v, %v] is not monotonic", model.ErrInvalidInput, rangeLower, rangeUpper)
	}

	next := l.pos
	next.ID = tokenID
	next.RangeLower = rangeLower
	next.RangeUpper = rangeUpper
	next.LiquidityAmount = liquidityAmount
	next.AccruedFees0 = 0
	next.AccruedFees1 = 0
	next.Status = model.StatusActive

	return l.commit(ctx, next, "apply_rebalance_result", fmt.Sprintf("range=[%v,%v] liquidity=%s", rangeLower, rangeUpper, liquidityAmount))
}

// AbortRebalance transitions Rebalancing -> Active without touching range or
// liquidity. Used when the workflow fails before any state-changing step has
// been confirmed on-chain.
func (l *Ledger) AbortRebalance(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos.Status != model.StatusRebalancing {
		return fmt.Errorf("%w: abort rebalance from %s", model.ErrInvalidState, l.pos.Status)
	}

	next := l.pos
	next.Status = model.StatusActive

	return l.commit(ctx, next, "abort_rebalance", "")
}

// Close transitions Active -> Inactive on withdrawal.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos.Status != model.StatusActive {
		return fmt.Errorf("%w: close from %s", model.ErrInvalidState, l.pos.Status)
	}

	next := l.pos
	next.Status = model.StatusInactive
	next.LiquidityAmount = "0"

	return l.commit(ctx, next, "close", "")
}

// commit persists the candidate snapshot, then applies it in memory and
// appends the audit record. A failed save leaves the in-memory position
// untouched.
func (l *Ledger) commit(ctx context.Context, next model.LiquidityPosition, transition, detail string) error {
	next.UpdatedAt = time.Now().UTC()

	if l.store != nil {
		if err := l.store.SavePosition(ctx, next); err != nil {
			return fmt.Errorf("persist position: %w", err)
		}
	}

	from := l.pos.Status
	l.pos = next
	l.seq++

	record := model.AuditRecord{
		Sequence:   l.seq,
		Owner:      l.owner,
		Pool:       l.pool,
		Transition: transition,
		FromStatus: from,
		ToStatus:   next.Status,
		Detail:     detail,
		RecordedAt: next.UpdatedAt.Format(time.RFC3339Nano),
	}
	if l.audit != nil {
		if err := l.audit.Append(record); err != nil {
			l.logger.Warn("audit append failed", zap.Error(err), zap.String("transition", transition))
		}
	}

	l.logger.Info("ledger transition",
		zap.Uint64("sequence", record.Sequence),
		zap.String("transition", transition),
		zap.String("from", string(from)),
		zap.String("to", string(next.Status)),
	)

	return nil
}
