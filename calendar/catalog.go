/*
catalog.go - The time catalog: cached holiday and sun-time lookups

PURPOSE:
  Single component answering "what is this date" and "when does the sun
  set here". Lookup order is always cache, then store, then live source,
  then deterministic estimate. Results are pure functions of their inputs
  and therefore safe to cache with long TTLs.

ERROR MODES:
  Lookups fail with ErrTimeSourceUnavailable only when live and cached
  values are both missing and estimates are disabled. The default is
  degrade-to-estimate with IsEstimated set, which the payroll strategy
  propagates as Degraded.

SEE ALSO:
  - cache.Versioned: key namespace; a version bump invalidates the
    cached holiday shape after schema evolution
  - payroll/splitter.go: the consumer of windows and holiday kinds
*/
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftwise/payroll-engine/cache"
)

// Store persists holiday rows and sunset records.
type Store interface {
	// HolidayByDate returns the stored holiday for a local date, or nil.
	HolidayByDate(ctx context.Context, date time.Time) (*Holiday, error)

	// HolidaysInRange returns stored holidays with Date in [start, end).
	HolidaysInRange(ctx context.Context, start, end time.Time) ([]Holiday, error)

	// ReplaceYear swaps the year's holiday rows wholesale. Implementations
	// take an advisory lock so concurrent refreshes do not interleave.
	ReplaceYear(ctx context.Context, year int, rows []Holiday) error

	// SunTimes returns a persisted sunset record, or nil.
	SunTimes(ctx context.Context, date time.Time, lat, lng float64) (*SunTimes, error)

	// PutSunTimes persists a sunset record (idempotent upsert).
	PutSunTimes(ctx context.Context, st SunTimes, lat, lng float64) error
}

// Options carries the catalog's configuration slice.
type Options struct {
	Location       *time.Location
	CandleOffset   time.Duration
	HavdalahOffset time.Duration
	HolidayTTL     time.Duration
	SourceTimeout  time.Duration
	AllowEstimates bool
	DefaultLat     float64
	DefaultLng     float64
}

// Catalog is the engine-wide time oracle.
type Catalog struct {
	store   Store
	hsource HolidaySource
	ssource SunSource
	cache   *cache.Versioned
	opts    Options
	log     zerolog.Logger
}

func NewCatalog(store Store, hsource HolidaySource, ssource SunSource, vc *cache.Versioned, opts Options, log zerolog.Logger) *Catalog {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Catalog{
		store:   store,
		hsource: hsource,
		ssource: ssource,
		cache:   vc,
		opts:    opts,
		log:     log.With().Str("component", "calendar").Logger(),
	}
}

// Location exposes the configured locale.
func (c *Catalog) Location() *time.Location { return c.opts.Location }

// =============================================================================
// HOLIDAY LOOKUPS
// =============================================================================

type holidayEntry struct {
	Found   bool     `json:"found"`
	Holiday *Holiday `json:"holiday,omitempty"`
}

// HolidayInfo returns the holiday covering a local date, or nil for a
// plain weekday. Dates with no stored row fall through to astronomical
// classification: Friday/Saturday dates whose Shabbat window touches the
// date produce a derived shabbat entry.
func (c *Catalog) HolidayInfo(ctx context.Context, date time.Time) (*Holiday, error) {
	day := Midnight(date, c.opts.Location)
	key := "holiday:" + DateKey(day)

	var cached holidayEntry
	if hit, _ := c.cache.Get(ctx, key, &cached); hit {
		return cached.Holiday, nil
	}

	h, err := c.store.HolidayByDate(ctx, day)
	if err != nil {
		return nil, err
	}
	if h == nil && (day.Weekday() == time.Friday || day.Weekday() == time.Saturday) {
		w, werr := c.ShabbatWindow(ctx, day)
		if werr != nil {
			return nil, werr
		}
		if w.Overlaps(day, day.AddDate(0, 0, 1)) {
			start, end := w.Start, w.End
			h = &Holiday{Date: day, Name: "Shabbat", Kind: KindShabbat, Start: &start, End: &end}
		}
	}

	if err := c.cache.Set(ctx, key, holidayEntry{Found: h != nil, Holiday: h}, c.opts.HolidayTTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("holiday cache write failed")
	}
	return h, nil
}

// HolidaysInRange returns stored holidays keyed by date, one query.
// The bulk payroll loader uses this for its month scan.
func (c *Catalog) HolidaysInRange(ctx context.Context, start, end time.Time) (map[string]Holiday, error) {
	rows, err := c.store.HolidaysInRange(ctx, Midnight(start, c.opts.Location), Midnight(end, c.opts.Location))
	if err != nil {
		return nil, err
	}
	out := make(map[string]Holiday, len(rows))
	for _, h := range rows {
		out[DateKey(h.Date)] = h
	}
	return out, nil
}

// =============================================================================
// SUN TIMES
// =============================================================================

// SunTimes resolves sunrise/sunset for a date and location. Lat/lng are
// rounded to two decimals for the cache key, which keeps nearby callers
// on the same entry (~1km resolution).
func (c *Catalog) SunTimes(ctx context.Context, date time.Time, lat, lng float64) (SunTimes, error) {
	day := Midnight(date, c.opts.Location)
	key := fmt.Sprintf("sun:%s:%.2f:%.2f", DateKey(day), lat, lng)

	var cached SunTimes
	if hit, _ := c.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	if st, err := c.store.SunTimes(ctx, day, lat, lng); err == nil && st != nil {
		_ = c.cache.Set(ctx, key, *st, 0)
		return *st, nil
	}

	srcCtx, cancel := context.WithTimeout(ctx, c.opts.SourceTimeout)
	defer cancel()
	st, err := c.ssource.FetchSun(srcCtx, day, lat, lng)
	if err == nil {
		st.Date = day
		if perr := c.store.PutSunTimes(ctx, st, lat, lng); perr != nil {
			c.log.Warn().Err(perr).Msg("sunset record persist failed")
		}
		_ = c.cache.Set(ctx, key, st, 0)
		return st, nil
	}

	if !c.opts.AllowEstimates {
		return SunTimes{}, fmt.Errorf("sun times for %s: %w", DateKey(day), ErrTimeSourceUnavailable)
	}
	c.log.Debug().Str("date", DateKey(day)).Msg("sun source failed, using estimate")
	// Estimates are not cached: a later call may reach the live source.
	return EstimateSun(day, c.opts.Location), nil
}

// =============================================================================
// SHABBAT
// =============================================================================

// ShabbatWindow returns the rest window of the week containing t, using
// the configured default location.
func (c *Catalog) ShabbatWindow(ctx context.Context, t time.Time) (Window, error) {
	fri := FridayOf(t, c.opts.Location)
	friSun, err := c.SunTimes(ctx, fri, c.opts.DefaultLat, c.opts.DefaultLng)
	if err != nil {
		return Window{}, err
	}
	satSun, err := c.SunTimes(ctx, fri.AddDate(0, 0, 1), c.opts.DefaultLat, c.opts.DefaultLng)
	if err != nil {
		return Window{}, err
	}
	return DeriveWindow(friSun, satSun, c.opts.CandleOffset, c.opts.HavdalahOffset), nil
}

// =============================================================================
// REFRESH
// =============================================================================

// RefreshYear replaces the year's holiday table: fetched catalog rows
// plus derived per-date Shabbat entries. The store's advisory lock
// serializes concurrent refreshes.
func (c *Catalog) RefreshYear(ctx context.Context, year int) error {
	srcCtx, cancel := context.WithTimeout(ctx, c.opts.SourceTimeout)
	defer cancel()

	fetched, err := c.hsource.FetchHolidays(srcCtx, year)
	if err != nil {
		return fmt.Errorf("refresh holidays %d: %w", year, err)
	}

	shabbat, err := derivedShabbatRows(year, c.opts.Location, func(friday time.Time) (Window, error) {
		return c.ShabbatWindow(ctx, friday)
	})
	if err != nil {
		return fmt.Errorf("derive shabbat rows %d: %w", year, err)
	}

	rows := append(fetched, shabbat...)
	if err := c.store.ReplaceYear(ctx, year, rows); err != nil {
		return fmt.Errorf("replace holiday year %d: %w", year, err)
	}

	// Stored shape changed; drop cached per-date entries for the year.
	// Advisory: failures only mean stale reads until TTL.
	_ = c.cache.DeletePattern(ctx, fmt.Sprintf("holiday:%d-*", year))

	c.log.Info().Int("year", year).Int("rows", len(rows)).Msg("holiday table refreshed")
	return nil
}
