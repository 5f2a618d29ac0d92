/*
shabbat.go - Weekly rest window derivation

PURPOSE:
  Shabbat runs from Friday sunset minus the candle-lighting offset through
  Saturday sunset plus the havdalah offset. Everything here is arithmetic
  over sun times; the sun times themselves come from the catalog.

SEE ALSO:
  - catalog.go: ShabbatWindow entry point with caching
*/
package calendar

import (
	"time"
)

// FridayOf returns the local Friday of the week containing t. For a
// Saturday that is the previous day; for any other day the coming Friday,
// whose window cannot overlap t anyway.
func FridayOf(t time.Time, loc *time.Location) time.Time {
	day := Midnight(t, loc)
	switch day.Weekday() {
	case time.Friday:
		return day
	case time.Saturday:
		return day.AddDate(0, 0, -1)
	default:
		offset := (int(time.Friday) - int(day.Weekday()) + 7) % 7
		return day.AddDate(0, 0, offset)
	}
}

// DeriveWindow assembles the rest window from the Friday and Saturday
// sun times and the configured offsets.
func DeriveWindow(friSun, satSun SunTimes, candle, havdalah time.Duration) Window {
	return Window{
		Start:     friSun.Sunset.Add(-candle),
		End:       satSun.Sunset.Add(havdalah),
		Estimated: friSun.IsEstimated || satSun.IsEstimated,
	}
}

// derivedShabbatRows materializes per-Gregorian-date Shabbat holiday rows
// for one year (a Friday row and a Saturday row per week, each carrying
// the precise window). The refresh job stores these alongside fetched
// holidays so date lookups need no astronomy at read time.
func derivedShabbatRows(year int, loc *time.Location, windowFor func(friday time.Time) (Window, error)) ([]Holiday, error) {
	var rows []Holiday
	d := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	for ; d.Year() == year; d = d.AddDate(0, 0, 7) {
		w, err := windowFor(d)
		if err != nil {
			return nil, err
		}
		start, end := w.Start, w.End
		rows = append(rows,
			Holiday{Date: d, Name: "Shabbat", Kind: KindShabbat, Start: &start, End: &end},
			Holiday{Date: d.AddDate(0, 0, 1), Name: "Shabbat", Kind: KindShabbat, Start: &start, End: &end},
		)
	}
	return rows, nil
}
