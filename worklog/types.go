/*
Package worklog owns the shift record lifecycle: check-in opens a shift,
check-out closes it, and deletion is always soft.

PURPOSE:
  WorkLog is the record of record for worked time. Aggregates (daily and
  monthly payroll rows) are derived and replaceable; a WorkLog row is
  never hard-deleted outside the retention purge.

LIFECYCLE (per employee):
  Idle --OpenShift--> Open --CloseShift--> Idle
  Any closed (or open) row may be soft-deleted, which hides it from all
  default queries but preserves it for audit.

CRITICAL INVARIANTS:
  1. At most one open, non-deleted shift per employee.
  2. No two non-deleted shifts for the same employee overlap. An open
     shift extends to +infinity for the overlap test.
  3. CheckOut > CheckIn when set.
  4. Shifts longer than the configured maximum (26h) require an explicit
     acknowledgement flag.

Invariants 1 and 2 are enforced by the Store inside the same transaction
that writes the row; the in-memory pre-checks in Service are advisory.

SEE ALSO:
  - store.go:   persistence contract and query methods
  - service.go: validation + hook dispatch wrapper
  - store/sqlite: partial-index enforcement
*/
package worklog

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type WorkLogID string

func NewWorkLogID() WorkLogID { return WorkLogID(uuid.NewString()) }

// =============================================================================
// WORKLOG
// =============================================================================

// Location is an optional check-in/check-out geotag.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type WorkLog struct {
	ID         WorkLogID
	EmployeeID EmployeeID

	CheckIn  time.Time
	CheckOut *time.Time // nil while the shift is open

	LocationIn  *Location
	LocationOut *Location

	Approved bool

	// Soft delete. Rows with IsDeleted=true are invisible to default
	// queries; ListIncludingDeleted exists for audit.
	IsDeleted bool
	DeletedAt *time.Time
	DeletedBy string

	// Required for shifts exceeding the configured maximum length.
	LongShiftAcknowledged bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOpen reports whether the shift has no check-out yet.
func (w *WorkLog) IsOpen() bool { return w.CheckOut == nil }

// Duration returns the worked span. Open shifts measure up to now.
func (w *WorkLog) Duration(now time.Time) time.Duration {
	end := now
	if w.CheckOut != nil {
		end = *w.CheckOut
	}
	return end.Sub(w.CheckIn)
}

// Overlaps reports whether two half-open intervals [CheckIn, CheckOut)
// intersect. Open shifts are treated as unbounded. The test is symmetric.
func (w *WorkLog) Overlaps(start time.Time, end *time.Time) bool {
	// w starts before the candidate ends...
	if end != nil && !w.CheckIn.Before(*end) {
		return false
	}
	// ...and w ends after the candidate starts.
	if w.CheckOut != nil && !w.CheckOut.After(start) {
		return false
	}
	return true
}

// Months returns every (year, month) the shift touches, in order.
// A shift spanning midnight on the last of the month touches two.
func (w *WorkLog) Months(loc *time.Location) []Month {
	start := w.CheckIn.In(loc)
	end := start
	if w.CheckOut != nil {
		end = w.CheckOut.In(loc)
	}
	months := []Month{{Year: start.Year(), Month: start.Month()}}
	last := months[0]
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, loc)
	for {
		cur = cur.AddDate(0, 1, 0)
		if cur.After(end) {
			break
		}
		m := Month{Year: cur.Year(), Month: cur.Month()}
		if m != last {
			months = append(months, m)
			last = m
		}
	}
	return months
}

// Month identifies a payroll month.
type Month struct {
	Year  int
	Month time.Month
}

// =============================================================================
// WRITE OPTIONS
// =============================================================================

// WriteOptions qualifies a write. The bulk import path sets BypassHooks so
// per-row recompute tasks are not enqueued, and may set SkipValidation when
// the caller certifies clean data.
type WriteOptions struct {
	BypassHooks    bool
	SkipValidation bool
	Actor          string
}

// =============================================================================
// EVENTS
// =============================================================================

type EventKind int

const (
	EventCreated EventKind = iota
	EventClosed
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventClosed:
		return "closed"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is emitted by Service after a successful write, unless the write
// carried BypassHooks.
type Event struct {
	Kind    EventKind
	WorkLog WorkLog
}

// Hook consumes worklog events. Hooks must not block: anything slow is
// deferred to the task bus.
type Hook func(Event)
