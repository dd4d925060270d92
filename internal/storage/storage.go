package storage

import (
	"context"

	"rangePilot/internal/model"
)

// AuditSink receives ledger transition records for replay.
type AuditSink interface {
	Append(record model.AuditRecord) error
}

// PositionStore persists the single managed position per (owner, pool).
type PositionStore interface {
	SavePosition(ctx context.Context, pos model.LiquidityPosition) error
	LoadPosition(ctx context.Context, owner, pool string) (model.LiquidityPosition, bool, error)
}

// WorkflowStore persists operator-visible workflow status.
type WorkflowStore interface {
	SaveWorkflowStatus(ctx context.Context, status model.WorkflowStatus) error
	LoadWorkflowStatus(ctx context.Context, owner, pool string) (model.WorkflowStatus, bool, error)
}
