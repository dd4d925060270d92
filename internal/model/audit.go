package model

// AuditRecord captures a single ledger transition for replay. Sequence is
// monotonically increasing per ledger instance.
type AuditRecord struct {
	Sequence   uint64         `json:"sequence"`
	Owner      string         `json:"owner"`
	Pool       string         `json:"pool"`
	Transition string         `json:"transition"`
	FromStatus PositionStatus `json:"from_status"`
	ToStatus   PositionStatus `json:"to_status"`
	Detail     string         `json:"detail,omitempty"`
	RecordedAt string         `json:"recorded_at"`
}

// WorkflowStatus is the operator-visible state of a rebalance workflow.
// RequiresRecovery is a hard reporting requirement: it signals that funds may
// be outside any position and manual reconciliation is needed, which is
// distinct from an ordinary no-action outcome.
type WorkflowStatus struct {
	RunID            string `json:"run_id"`
	Owner            string `json:"owner"`
	Pool             string `json:"pool"`
	State            string `json:"state"`
	RequiresRecovery bool   `json:"requires_recovery"`
	Detail           string `json:"detail,omitempty"`
	UpdatedAt        string `json:"updated_at"`
}
