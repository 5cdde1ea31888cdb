package reconcile

import "errors"

var (
	// ErrReplaceNotConfirmed is returned when replace mode runs without explicit
	// confirmation. Nothing has been written when it is returned.
	ErrReplaceNotConfirmed = errors.New("reconcile: replace requires confirmation")
	// ErrSessionActive indicates another run holds the table.
	ErrSessionActive = errors.New("reconcile: a session is already active for this table")
	// ErrCompareExhausted indicates a comparison page kept failing after every retry.
	ErrCompareExhausted = errors.New("reconcile: comparison retries exhausted")
	// ErrInvalidOptions indicates an unknown table, mode or strategy.
	ErrInvalidOptions = errors.New("reconcile: invalid options")
)
