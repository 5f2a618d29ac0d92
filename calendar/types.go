/*
Package calendar supplies the time catalog: holiday metadata per date,
sunrise/sunset per (date, location), and derived Shabbat windows.

PURPOSE:
  Rate classification is anchored to the Hebrew calendar and to the sun.
  A Friday-evening hour is regular pay before candle-lighting and premium
  pay after; the catalog answers exactly those questions and caches every
  answer, because holiday metadata and sun times are pure functions of
  their inputs.

DEGRADATION:
  When the live astronomical source fails and no cached value exists, the
  catalog falls back to a deterministic estimate (fixed offsets from local
  midday) and marks the result estimated. Computation never stalls on an
  external API unless estimates are explicitly disabled.

CACHING:
  Every lookup goes through the VersionedCache so a schema change to the
  cached shapes is invalidated by a single version bump. Holidays cache
  for 7 days, sun times indefinitely (the sun does not reschedule).

SEE ALSO:
  - catalog.go: lookup + caching logic
  - source.go:  injectable external sources
  - shabbat.go: window derivation
*/
package calendar

import (
	"time"
)

// =============================================================================
// HOLIDAY
// =============================================================================

type HolidayKind string

const (
	KindRegular HolidayKind = "regular" // worked at premium rate, earns compensatory day
	KindShabbat HolidayKind = "shabbat" // derived weekly rest window
	KindSpecial HolidayKind = "special" // catalog-flagged special date
)

// Holiday is one stored calendar row. Immutable after insert; the refresh
// job replaces a year wholesale.
type Holiday struct {
	Date  time.Time   // local midnight of the holiday's Gregorian date
	Name  string      `json:"name"`
	Kind  HolidayKind `json:"kind"`
	Start *time.Time  `json:"start,omitempty"` // precise window start, when known
	End   *time.Time  `json:"end,omitempty"`
}

// Window returns the holiday's premium window. Rows without precise times
// cover the whole local day.
func (h Holiday) Window(loc *time.Location) Window {
	if h.Start != nil && h.End != nil {
		return Window{Start: *h.Start, End: *h.End}
	}
	day := time.Date(h.Date.Year(), h.Date.Month(), h.Date.Day(), 0, 0, 0, 0, loc)
	return Window{Start: day, End: day.AddDate(0, 0, 1)}
}

// =============================================================================
// SUN TIMES
// =============================================================================

// SunTimes is the sunrise/sunset pair for one date and location.
type SunTimes struct {
	Date        time.Time `json:"date"`
	Sunrise     time.Time `json:"sunrise"`
	Sunset      time.Time `json:"sunset"`
	IsEstimated bool      `json:"is_estimated"`
}

// =============================================================================
// WINDOW
// =============================================================================

// Window is a half-open premium-pay interval [Start, End).
type Window struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Estimated bool      `json:"estimated"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports intersection with [start, end). Symmetric.
func (w Window) Overlaps(start, end time.Time) bool {
	return w.Start.Before(end) && w.End.After(start)
}

// =============================================================================
// DATE KEYS
// =============================================================================

// DateKey formats a time as the canonical per-date cache key component.
func DateKey(t time.Time) string { return t.Format("2006-01-02") }

// Midnight truncates to local midnight in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// SameDate reports whether two instants fall on the same local date.
func SameDate(a, b time.Time, loc *time.Location) bool {
	return Midnight(a, loc).Equal(Midnight(b, loc))
}
