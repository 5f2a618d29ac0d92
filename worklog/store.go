/*
store.go - Persistence contract for WorkLog rows

PURPOSE:
  Defines the boundary between the shift domain and the database. The
  store is responsible for the hard invariants: the single-open-shift
  constraint and the overlap check both run inside the transaction that
  writes the row, so concurrent writers cannot both pass an in-memory
  check and commit conflicting rows.

DEFAULT FILTER:
  Soft-deleted rows are excluded by every method except
  ListIncludingDeleted. The predicate is never hidden behind a default
  manager; the method name states the semantics.

OVERLAP ALGORITHM:
  Candidate [a, b) conflicts for employee e iff a non-deleted row r of e
  exists with r.check_in < b AND (r.check_out IS NULL OR r.check_out > a)
  AND r.id != candidate.id. Open intervals extend to +infinity.

IMPLEMENTATIONS:
  - store/sqlite: partial indexes on is_deleted=0, unique partial index
    for the open shift, WAL journal
  - store/memory: map-backed, same invariants, for tests

SEE ALSO:
  - service.go: validation + hooks above this interface
*/
package worklog

import (
	"context"
	"time"
)

// Filter narrows list queries. Zero values mean "any".
type Filter struct {
	EmployeeID EmployeeID
	From       time.Time
	To         time.Time
	OpenOnly   bool
	Approved   *bool
}

// Store persists WorkLog rows with soft-delete semantics.
type Store interface {
	// OpenShift inserts an open shift. Fails with ErrOpenShiftExists if
	// the employee already has one, or *OverlapError if the check-in falls
	// inside an existing non-deleted shift. Both checks run inside the
	// insert transaction.
	OpenShift(ctx context.Context, w WorkLog) (WorkLog, error)

	// CloseShift sets check-out on the employee's open shift. Fails with
	// ErrNoOpenShift if there is none, or *OverlapError if the closed
	// interval would cover another shift.
	CloseShift(ctx context.Context, employee EmployeeID, checkOut time.Time, loc *Location) (WorkLog, error)

	// SoftDelete hides a row. Second call returns ErrAlreadyDeleted
	// without a write.
	SoftDelete(ctx context.Context, id WorkLogID, actor string) (WorkLog, error)

	// Get returns a row regardless of deletion state.
	Get(ctx context.Context, id WorkLogID) (WorkLog, error)

	// ListActive returns non-deleted rows matching the filter.
	ListActive(ctx context.Context, f Filter) ([]WorkLog, error)

	// ListForRange returns the employee's non-deleted shifts intersecting
	// [start, end), ordered by check-in.
	ListForRange(ctx context.Context, employee EmployeeID, start, end time.Time) ([]WorkLog, error)

	// ListForRangeAll returns non-deleted shifts for many employees in one
	// query (the bulk loader's month scan).
	ListForRangeAll(ctx context.Context, employees []EmployeeID, start, end time.Time) ([]WorkLog, error)

	// ListIncludingDeleted is the audit accessor. The only method that
	// returns soft-deleted rows.
	ListIncludingDeleted(ctx context.Context, f Filter) ([]WorkLog, error)

	// BulkCreate inserts closed shifts with O(1) round-trips. Callers set
	// WriteOptions.SkipValidation only for certified-clean data.
	BulkCreate(ctx context.Context, shifts []WorkLog, opts WriteOptions) (int, error)

	// PurgeDeletedBefore hard-deletes soft-deleted rows whose deleted_at
	// precedes the cutoff. Retention job only.
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
