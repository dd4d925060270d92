package model

import "errors"

// Sentinel errors for the rebalancing core. Callers classify failures with
// errors.Is and wrap these with context via fmt.Errorf("...: %w", err).
var (
	// ErrInvalidInput marks bad caller arguments. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState marks an illegal ledger transition. Never retried.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrAlreadyActive is returned when opening a position while one is
	// already active or rebalancing.
	ErrAlreadyActive = errors.New("position already active")

	// ErrOracleUnavailable marks a stale or missing price sample. The
	// current scheduler tick is skipped, never a workflow failure.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrTransactionFailed marks a rejected or reverted submission.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrTransactionTimedOut marks a confirmation not observed in time.
	ErrTransactionTimedOut = errors.New("transaction confirmation timed out")

	// ErrSlippageExceeded marks executed amounts deviating beyond the
	// configured tolerance during minting.
	ErrSlippageExceeded = errors.New("slippage tolerance exceeded")
)
