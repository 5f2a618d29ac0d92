/*
splitter.go - Shift splitting and rate classification

PURPOSE:
  Converts one closed WorkLog into a sequence of PayrollSegments. Three
  passes:

    1. Split at local-midnight boundaries; each piece carries one date.
    2. Classify each piece against the date's premium windows: a stored
       holiday window, or the week's Shabbat window. A Friday piece
       straddling candle-lighting is split at the computed Shabbat start.
    3. Apply the daily overtime tiers; a piece crossing a tier threshold
       is split at the threshold instant.

TIE-BREAKING:
  When a holiday window and the Shabbat window both cover an instant, the
  window with the later start wins. Within equal starts the holiday wins.

OUTPUT ORDER:
  Ascending by start time; ties broken by classification declaration
  order.

SEE ALSO:
  - calendar/catalog.go: window sources
  - strategy.go: pricing of the emitted segments
*/
package payroll

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiftwise/payroll-engine/calendar"
	"github.com/shiftwise/payroll-engine/config"
	"github.com/shiftwise/payroll-engine/worklog"
)

// ErrOpenWorkLog: the splitter only operates on closed shifts.
var ErrOpenWorkLog = errors.New("cannot split an open worklog")

// DayCatalog is the slice of the calendar catalog the splitter consumes.
// The live catalog satisfies it directly; the bulk path substitutes a
// preloaded view so per-employee work stays pure CPU.
type DayCatalog interface {
	HolidayInfo(ctx context.Context, date time.Time) (*calendar.Holiday, error)
	ShabbatWindow(ctx context.Context, t time.Time) (calendar.Window, error)
	Location() *time.Location
}

// Splitter carries the classification configuration.
type Splitter struct {
	catalog     DayCatalog
	tiers       []config.Tier
	sabbathMult decimal.Decimal
	holidayMult decimal.Decimal
}

func NewSplitter(catalog DayCatalog, cfg config.Config) *Splitter {
	return &Splitter{
		catalog:     catalog,
		tiers:       cfg.Tiers,
		sabbathMult: cfg.SabbathMultiplier,
		holidayMult: cfg.HolidayMultiplier,
	}
}

// =============================================================================
// SPLIT
// =============================================================================

// dayClass is the premium classification of a span before overtime tiers
// are layered on.
type dayClass int

const (
	dayRegular dayClass = iota
	daySabbath
	dayFridayEvening
	dayHoliday
)

type span struct {
	start, end time.Time
	date       time.Time // local midnight
	class      dayClass
}

// Split converts a closed worklog into ordered segments. The boolean
// reports whether any window came from an estimated sun time.
func (s *Splitter) Split(ctx context.Context, w worklog.WorkLog) ([]Segment, bool, error) {
	if w.CheckOut == nil {
		return nil, false, ErrOpenWorkLog
	}
	loc := s.catalog.Location()
	start := w.CheckIn.In(loc)
	end := w.CheckOut.In(loc)

	spans, estimated, err := s.classifySpans(ctx, start, end, loc)
	if err != nil {
		return nil, false, err
	}

	segments := s.applyTiers(spans, w)

	sort.SliceStable(segments, func(i, j int) bool {
		if !segments[i].Start.Equal(segments[j].Start) {
			return segments[i].Start.Before(segments[j].Start)
		}
		return segments[i].Class < segments[j].Class
	})
	return segments, estimated, nil
}

// classifySpans performs passes 1 and 2: midnight split, then premium
// window classification within each date.
func (s *Splitter) classifySpans(ctx context.Context, start, end time.Time, loc *time.Location) ([]span, bool, error) {
	var spans []span
	estimated := false

	for cur := start; cur.Before(end); {
		date := calendar.Midnight(cur, loc)
		nextMidnight := date.AddDate(0, 0, 1)
		pieceEnd := end
		if nextMidnight.Before(end) {
			pieceEnd = nextMidnight
		}

		sabWin, holWin, est, err := s.windowsFor(ctx, date, loc)
		if err != nil {
			return nil, false, err
		}
		estimated = estimated || est

		spans = append(spans, classifyPiece(cur, pieceEnd, date, sabWin, holWin)...)
		cur = pieceEnd
	}
	return spans, estimated, nil
}

// windowsFor resolves the Shabbat and holiday windows relevant to a date.
func (s *Splitter) windowsFor(ctx context.Context, date time.Time, loc *time.Location) (sab, hol *calendar.Window, estimated bool, err error) {
	h, err := s.catalog.HolidayInfo(ctx, date)
	if err != nil {
		return nil, nil, false, err
	}

	if h != nil && h.Kind == calendar.KindShabbat {
		w := h.Window(loc)
		sab = &w
	} else if date.Weekday() == time.Friday || date.Weekday() == time.Saturday {
		w, werr := s.catalog.ShabbatWindow(ctx, date)
		if werr != nil {
			return nil, nil, false, werr
		}
		sab = &w
		estimated = w.Estimated
	}

	if h != nil && h.Kind != calendar.KindShabbat {
		w := h.Window(loc)
		hol = &w
	}
	return sab, hol, estimated, nil
}

// classifyPiece splits [a, b) (within one date) at window boundaries and
// labels each sub-piece.
func classifyPiece(a, b, date time.Time, sab, hol *calendar.Window) []span {
	cuts := []time.Time{a, b}
	for _, w := range []*calendar.Window{sab, hol} {
		if w == nil {
			continue
		}
		for _, t := range []time.Time{w.Start, w.End} {
			if t.After(a) && t.Before(b) {
				cuts = append(cuts, t)
			}
		}
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].Before(cuts[j]) })

	var out []span
	for i := 0; i+1 < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+1]
		if !hi.After(lo) {
			continue
		}
		out = append(out, span{start: lo, end: hi, date: date, class: pickClass(lo, date, sab, hol)})
	}
	return out
}

// pickClass resolves the premium class at an instant. Latest-start-wins
// when both windows cover it; holiday wins an exact tie.
func pickClass(at, date time.Time, sab, hol *calendar.Window) dayClass {
	inSab := sab != nil && sab.Contains(at)
	inHol := hol != nil && hol.Contains(at)

	switch {
	case inSab && inHol:
		if sab.Start.After(hol.Start) {
			return sabbathClass(date)
		}
		return dayHoliday
	case inHol:
		return dayHoliday
	case inSab:
		return sabbathClass(date)
	default:
		return dayRegular
	}
}

// sabbathClass distinguishes Friday-evening hours (pre-midnight, paid at
// the Sabbath rate, reported in the Sabbath bucket) from Saturday hours.
func sabbathClass(date time.Time) dayClass {
	if date.Weekday() == time.Friday {
		return dayFridayEvening
	}
	return daySabbath
}

// =============================================================================
// OVERTIME TIERS
// =============================================================================

// applyTiers layers daily overtime on top of the classified spans.
// Cumulative hours accrue per calendar date across the whole shift.
func (s *Splitter) applyTiers(spans []span, w worklog.WorkLog) []Segment {
	var segments []Segment
	dayHours := make(map[string]decimal.Decimal)

	for _, sp := range spans {
		key := calendar.DateKey(sp.date)
		cum := dayHours[key]

		remainingStart := sp.start
		for remainingStart.Before(sp.end) {
			tier := s.tierAt(cum)
			boundary := sp.end
			if next := s.nextThreshold(tier); next != nil {
				untilNext := next.Sub(cum)
				cut := remainingStart.Add(hoursToDuration(untilNext))
				if cut.Before(boundary) {
					boundary = cut
				}
			}

			hours := durationToHours(boundary.Sub(remainingStart))
			class, mult := s.classify(sp.class, tier)
			segments = append(segments, Segment{
				EmployeeID: w.EmployeeID,
				WorkLogID:  w.ID,
				Date:       sp.date,
				Start:      remainingStart,
				End:        boundary,
				Class:      class,
				Hours:      hours,
				Multiplier: mult,
			})

			cum = cum.Add(hours)
			remainingStart = boundary
		}
		dayHours[key] = cum
	}
	return segments
}

// tierAt returns the overtime tier index (0 = base) for a cumulative
// daily hour count.
func (s *Splitter) tierAt(cum decimal.Decimal) int {
	tier := 0
	for i, t := range s.tiers {
		if cum.GreaterThanOrEqual(t.Threshold) {
			tier = i + 1
		}
	}
	return tier
}

// nextThreshold returns the hour count where the next tier begins, or nil
// in the top tier.
func (s *Splitter) nextThreshold(tier int) *decimal.Decimal {
	if tier >= len(s.tiers) {
		return nil
	}
	t := s.tiers[tier].Threshold
	return &t
}

// classify maps (premium class, tier) to the final classification and
// multiplier. Rest-window overtime layers the tier premium additively on
// the window multiplier and clamps at the second overtime class.
func (s *Splitter) classify(dc dayClass, tier int) (Classification, decimal.Decimal) {
	one := decimal.NewFromInt(1)

	tierMult := one
	if tier > 0 && tier <= len(s.tiers) {
		tierMult = s.tiers[tier-1].Multiplier
	}
	premium := tierMult.Sub(one)

	switch dc {
	case dayRegular:
		switch tier {
		case 0:
			return ClassRegular, one
		case 1:
			return ClassOvertimeT1, tierMult
		case 2:
			return ClassOvertimeT2, tierMult
		case 3:
			return ClassOvertimeT3, tierMult
		default:
			return ClassOvertimeT4, tierMult
		}
	case daySabbath, dayFridayEvening:
		base := ClassSabbathBase
		if dc == dayFridayEvening {
			base = ClassFridayEvening
		}
		switch {
		case tier == 0:
			return base, s.sabbathMult
		case tier == 1:
			return ClassSabbathOT1, s.sabbathMult.Add(premium)
		default:
			return ClassSabbathOT2, s.sabbathMult.Add(decimal.NewFromFloat(0.5))
		}
	default: // dayHoliday
		switch {
		case tier == 0:
			return ClassHolidayBase, s.holidayMult
		case tier == 1:
			return ClassHolidayOT1, s.holidayMult.Add(premium)
		default:
			return ClassHolidayOT2, s.holidayMult.Add(decimal.NewFromFloat(0.5))
		}
	}
}

// =============================================================================
// TIME / DECIMAL CONVERSIONS
// =============================================================================

// durationToHours converts with second resolution; sub-second shift
// granularity is out of scope.
func durationToHours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Second)).Div(decimal.NewFromInt(3600))
}

func hoursToDuration(h decimal.Decimal) time.Duration {
	secs := h.Mul(decimal.NewFromInt(3600)).Round(0).IntPart()
	return time.Duration(secs) * time.Second
}
