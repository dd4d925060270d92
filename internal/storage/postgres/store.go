package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rangePilot/internal/model"
)

// Store provides Postgres persistence for positions, audit records, and
// workflow status.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SavePosition upserts the managed position for its (owner, pool) pair.
func (s *Store) SavePosition(ctx context.Context, pos model.LiquidityPosition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (
			owner_address, pool_address, token_id, range_lower, range_upper,
			liquidity_amount, accrued_fees0, accrued_fees1, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (owner_address, pool_address)
		DO UPDATE SET
			token_id = EXCLUDED.token_id,
			range_lower = EXCLUDED.range_lower,
			range_upper = EXCLUDED.range_upper,
			liquidity_amount = EXCLUDED.liquidity_amount,
			accrued_fees0 = EXCLUDED.accrued_fees0,
			accrued_fees1 = EXCLUDED.accrued_fees1,
			status = EXCLUDED.status,
			updated_at = now()
	`,
		pos.Owner,
		pos.Pool,
		pos.ID,
		pos.RangeLower,
		pos.RangeUpper,
		pos.LiquidityAmount,
		pos.AccruedFees0,
		pos.AccruedFees1,
		string(pos.Status),
	)
	return err
}

// LoadPosition reads the managed position back.
func (s *Store) LoadPosition(ctx context.Context, owner, pool string) (model.LiquidityPosition, bool, error) {
	var pos model.LiquidityPosition
	var status string
	var updatedAt time.Time

	row := s.pool.QueryRow(ctx, `
		SELECT token_id, range_lower, range_upper, liquidity_amount,
		       accrued_fees0, accrued_fees1, status, updated_at
		FROM positions
		WHERE owner_address = $1 AND pool_address = $2
	`, owner, pool)
	if err := row.Scan(
		&pos.ID,
		&pos.RangeLower,
		&pos.RangeUpper,
		&pos.LiquidityAmount,
		&pos.AccruedFees0,
		&pos.AccruedFees1,
		&status,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LiquidityPosition{}, false, nil
		}
		return model.LiquidityPosition{}, false, err
	}

	pos.Owner = owner
	pos.Pool = pool
	pos.Status = model.PositionStatus(status)
	pos.UpdatedAt = updatedAt

	return pos, true, nil
}

// AppendAudit inserts audit records in one batch.
func (s *Store) AppendAudit(ctx context.Context, records []model.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(`
			INSERT INTO position_audit (
				owner_address, pool_address, sequence, transition,
				from_status, to_status, detail, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (owner_address, pool_address, sequence) DO NOTHING
		`,
			record.Owner,
			record.Pool,
			int64(record.Sequence),
			record.Transition,
			string(record.FromStatus),
			string(record.ToStatus),
			record.Detail,
			record.RecordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Append adapts single-record audit writes to the batch insert.
func (s *Store) Append(record model.AuditRecord) error {
	return s.AppendAudit(context.Background(), []model.AuditRecord{record})
}

// SaveWorkflowStatus upserts the operator-visible workflow state.
func (s *Store) SaveWorkflowStatus(ctx context.Context, status model.WorkflowStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_state (
			owner_address, pool_address, run_id, state, requires_recovery, detail, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (owner_address, pool_address)
		DO UPDATE SET
			run_id = EXCLUDED.run_id,
			state = EXCLUDED.state,
			requires_recovery = EXCLUDED.requires_recovery,
			detail = EXCLUDED.detail,
			updated_at = now()
	`,
		status.Owner,
		status.Pool,
		status.RunID,
		status.State,
		status.RequiresRecovery,
		status.Detail,
	)
	return err
}

// LoadWorkflowStatus reads the workflow state back.
func (s *Store) LoadWorkflowStatus(ctx context.Context, owner, pool string) (model.WorkflowStatus, bool, error) {
	var status model.WorkflowStatus
	var updatedAt time.Time

	row := s.pool.QueryRow(ctx, `
		SELECT run_id, state, requires_recovery, detail, updated_at
		FROM workflow_state
		WHERE owner_address = $1 AND pool_address = $2
	`, owner, pool)
	if err := row.Scan(&status.RunID, &status.State, &status.RequiresRecovery, &status.Detail, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WorkflowStatus{}, false, nil
		}
		return model.WorkflowStatus{}, false, err
	}

	status.Owner = owner
	status.Pool = pool
	status.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)

	return status, true, nil
}
