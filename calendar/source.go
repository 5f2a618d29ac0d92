/*
source.go - Injectable external sources for holidays and sun times

PURPOSE:
  The live Hebrew-calendar and astronomical services sit behind these two
  interfaces so tests substitute a recorded-response implementation once
  at session scope. Production code carries no mock-mode branches.

SEE ALSO:
  - catalog.go: caching and fallback around these sources
*/
package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrTimeSourceUnavailable is returned only when the live source failed,
// no cached value exists, and estimates are disabled.
var ErrTimeSourceUnavailable = errors.New("time source unavailable")

// HolidaySource fetches the holiday catalog for a year.
type HolidaySource interface {
	FetchHolidays(ctx context.Context, year int) ([]Holiday, error)
}

// SunSource fetches sunrise/sunset for a date and location.
type SunSource interface {
	FetchSun(ctx context.Context, date time.Time, lat, lng float64) (SunTimes, error)
}

// =============================================================================
// ESTIMATES - Deterministic fallback
// =============================================================================

// EstimateSun returns the fixed-offset fallback: sunrise six hours before
// local midday, sunset six hours after. Deterministic so repeated degraded
// computations stay byte-equal.
func EstimateSun(date time.Time, loc *time.Location) SunTimes {
	midday := Midnight(date, loc).Add(12 * time.Hour)
	return SunTimes{
		Date:        Midnight(date, loc),
		Sunrise:     midday.Add(-6 * time.Hour),
		Sunset:      midday.Add(6 * time.Hour),
		IsEstimated: true,
	}
}

// =============================================================================
// STATIC SOURCES - For dev servers and fixtures
// =============================================================================

// StaticHolidaySource serves a fixed holiday list. The test session
// fixture and the dev server seed both use it.
type StaticHolidaySource struct {
	Holidays []Holiday
}

func (s *StaticHolidaySource) FetchHolidays(_ context.Context, year int) ([]Holiday, error) {
	var out []Holiday
	for _, h := range s.Holidays {
		if h.Date.Year() == year {
			out = append(out, h)
		}
	}
	return out, nil
}

// StaticSunSource serves fixed sun times per date key, falling back to an
// error for unknown dates (exercises the estimate path).
type StaticSunSource struct {
	ByDate map[string]SunTimes
}

func (s *StaticSunSource) FetchSun(_ context.Context, date time.Time, _, _ float64) (SunTimes, error) {
	if st, ok := s.ByDate[DateKey(date)]; ok {
		return st, nil
	}
	return SunTimes{}, ErrTimeSourceUnavailable
}
