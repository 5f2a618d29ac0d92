/*
errors.go - Error taxonomy for shift writes

PURPOSE:
  Invariant violations (open shift exists, overlap, no open shift) are
  surfaced as sentinel or structured errors and are never retried; they
  describe the state, not a fault.

USAGE:
  err := svc.OpenShift(ctx, emp, at, nil, false, worklog.WriteOptions{})
  var overlap *worklog.OverlapError
  if errors.As(err, &overlap) {
      // overlap.ConflictID identifies the existing shift for reconciliation
  }

SEE ALSO:
  - service.go: where these are produced
  - api/handlers.go: user-visible messages per error
*/
package worklog

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrOpenShiftExists: OpenShift called while the employee already has
	// an open shift. "Already checked in."
	ErrOpenShiftExists = errors.New("open shift already exists")

	// ErrNoOpenShift: CloseShift called with no open shift. "Not currently
	// checked in."
	ErrNoOpenShift = errors.New("no open shift")

	// ErrNotFound: referenced worklog does not exist.
	ErrNotFound = errors.New("worklog not found")

	// ErrAlreadyDeleted: soft delete of an already-deleted row. Idempotent;
	// no state change.
	ErrAlreadyDeleted = errors.New("worklog already deleted")

	// ErrInvalidInterval: check_out <= check_in.
	ErrInvalidInterval = errors.New("check-out must be after check-in")

	// ErrShiftTooLong: shift exceeds the maximum length without the
	// acknowledgement flag.
	ErrShiftTooLong = errors.New("shift exceeds maximum length without acknowledgement")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// OverlapError reports a conflict with an existing non-deleted shift.
// Carries the conflicting row id so the caller can reconcile.
type OverlapError struct {
	EmployeeID EmployeeID
	ConflictID WorkLogID
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("shift overlaps existing worklog %s for employee %s", e.ConflictID, e.EmployeeID)
}

// ErrOverlap is the sentinel behind OverlapError for errors.Is checks.
var ErrOverlap = errors.New("shift overlap")

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// IsInvariantViolation reports whether the error is a state-machine or
// temporal invariant failure. These surface to the caller and are never
// retried automatically.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrOpenShiftExists) ||
		errors.Is(err, ErrNoOpenShift) ||
		errors.Is(err, ErrOverlap)
}
