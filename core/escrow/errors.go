package escrow

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by stores when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or unauthorized input. Nothing was written
// to the ledger or the chain.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports a lost race or an unavailable slot: the guarded state
// changed between read and write. Safe to retry against fresh state.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// ChainError reports an escrow contract call that failed outright. The ledger
// has not advanced past the checkpoint preceding the failed call.
type ChainError struct {
	Op  string
	Err error
}

func (e *ChainError) Error() string { return fmt.Sprintf("chain %s: %v", e.Op, e.Err) }
func (e *ChainError) Unwrap() error { return e.Err }

// PartialFailureError reports a settlement where a chain step already moved
// value but a dependent write failed. The checkpoint identifies the resumption
// point; the submission must not be re-driven from the start.
type PartialFailureError struct {
	SubmissionID string
	Step         string
	Err          error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure at %s for submission %s: %v", e.Step, e.SubmissionID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsChain reports whether err is (or wraps) a ChainError.
func IsChain(err error) bool {
	var ce *ChainError
	return errors.As(err, &ce)
}

// IsPartialFailure reports whether err is (or wraps) a PartialFailureError.
func IsPartialFailure(err error) bool {
	var pe *PartialFailureError
	return errors.As(err, &pe)
}
