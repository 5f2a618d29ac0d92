/*
strategy.go - Employee-month payroll computation

PURPOSE:
  Computes a PayrollResult for one employee and one (year, month) from
  preloaded inputs: the month's closed worklogs, the active salary, and
  a DayCatalog. The strategy performs no I/O beyond catalog lookups,
  which the bulk path serves from memory; given identical inputs the
  output amounts are byte-equal.

CALCULATION PATHS:
  hourly   per-segment: hours x rate x multiplier
  monthly  proportional base (worked business days / business days in
           month) plus the premium portion (multiplier - 1) of every
           premium segment at the effective rate base/185
  project  flat base when base_salary is set; hourly otherwise

COMPLIANCE:
  - day over 12h: warning
  - day over 16h without acknowledgement: violation warning
  - more than 16h of overtime in an ISO week: warning (hours still paid)

ERRORS:
  ErrNoActiveSalary is fatal for the employee. No worklogs is not an
  error; the result carries zeros. Estimated sun times mark the result
  Degraded.

SEE ALSO:
  - splitter.go: segment production
  - factory.go:  Enhanced/Legacy selection
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiftwise/payroll-engine/config"
	"github.com/shiftwise/payroll-engine/worklog"
)

// Input is everything a strategy invocation needs, preloaded.
type Input struct {
	Employee    Employee
	Salary      *Salary
	WorkLogs    []worklog.WorkLog // the month's shifts; open ones are skipped
	Year        int
	Month       time.Month
	FastMode    bool // skip the per-day breakdown
	CompBalance int  // unused compensatory days carried into the month
}

// Strategy computes one employee-month.
type Strategy interface {
	Compute(ctx context.Context, in Input) (PayrollResult, error)
}

// =============================================================================
// STRATEGY CORE
// =============================================================================

// strategy implements both variants. Legacy predates rest-window overtime
// layering and compliance warnings; it survives for historical recomputes.
type strategy struct {
	splitter *Splitter
	cfg      config.Config
	loc      *time.Location

	layerRestOvertime bool // Enhanced: sabbath/holiday overtime layers additively
	emitCompliance    bool // Enhanced: daily and weekly warnings
}

func (s *strategy) Compute(ctx context.Context, in Input) (PayrollResult, error) {
	if in.Salary == nil {
		return PayrollResult{}, fmt.Errorf("employee %s: %w", in.Employee.ID, ErrNoActiveSalary)
	}
	warnings, err := in.Salary.Validate()
	if err != nil {
		return PayrollResult{}, fmt.Errorf("employee %s: %w", in.Employee.ID, err)
	}

	res := PayrollResult{
		EmployeeID:      in.Employee.ID,
		Year:            in.Year,
		Month:           in.Month,
		SalaryType:      in.Salary.CalculationType,
		CalculationDate: time.Now().UTC(),
		Warnings:        warnings,
	}

	segments, degraded, err := s.splitMonth(ctx, in)
	if err != nil {
		return PayrollResult{}, err
	}
	res.Degraded = degraded
	if degraded {
		res.Warnings = append(res.Warnings, Warning{
			Code:    WarnDegraded,
			Message: "sun times estimated; premium windows are approximate",
		})
	}

	agg := s.aggregate(segments, in)
	s.price(&agg, in)
	if s.emitCompliance {
		s.compliance(&agg, in)
	}

	s.assemble(&res, &agg, in)
	return res, nil
}

// splitMonth runs the splitter over the month's closed worklogs.
func (s *strategy) splitMonth(ctx context.Context, in Input) ([]Segment, bool, error) {
	var all []Segment
	degraded := false
	for _, w := range in.WorkLogs {
		if w.CheckOut == nil || w.IsDeleted {
			continue
		}
		segs, est, err := s.splitter.Split(ctx, w)
		if err != nil {
			return nil, false, fmt.Errorf("split worklog %s: %w", w.ID, err)
		}
		degraded = degraded || est
		all = append(all, segs...)
	}
	return all, degraded, nil
}

// =============================================================================
// AGGREGATION
// =============================================================================

type dayAgg struct {
	date         time.Time
	hours        decimal.Decimal
	gross        decimal.Decimal // unrounded
	comp         *CompReason
	segments     []Segment
	acknowledged bool
}

type dailyKey struct {
	date      string
	worklogID worklog.WorkLogID
}

type monthAgg struct {
	segments []Segment
	days     map[string]*dayAgg
	dayOrder []string
	dailies  map[dailyKey]*DailyCalculation
	dailyOrd []dailyKey

	regularHours, overtimeHours, sabbathHours, holidayHours decimal.Decimal
	regularPay, overtimePay, sabbathPay, holidayPay         decimal.Decimal // unrounded
	basePay                                                 decimal.Decimal // unrounded
	rate                                                    decimal.Decimal
	warnings                                                []Warning
	comps                                                   []CompensatoryDay
	workedDays, businessDays                                int
}

func (s *strategy) aggregate(segments []Segment, in Input) monthAgg {
	agg := monthAgg{
		segments: segments,
		days:     make(map[string]*dayAgg),
		dailies:  make(map[dailyKey]*DailyCalculation),
	}
	acked := make(map[worklog.WorkLogID]bool)
	for _, w := range in.WorkLogs {
		acked[w.ID] = w.LongShiftAcknowledged
	}

	zero := decimal.Zero
	agg.regularHours, agg.overtimeHours, agg.sabbathHours, agg.holidayHours = zero, zero, zero, zero
	agg.regularPay, agg.overtimePay, agg.sabbathPay, agg.holidayPay = zero, zero, zero, zero
	agg.basePay = zero

	for _, seg := range segments {
		key := seg.Date.Format("2006-01-02")
		d, ok := agg.days[key]
		if !ok {
			d = &dayAgg{date: seg.Date, hours: zero, gross: zero}
			agg.days[key] = d
			agg.dayOrder = append(agg.dayOrder, key)
		}
		d.hours = d.hours.Add(seg.Hours)
		d.segments = append(d.segments, seg)
		d.acknowledged = d.acknowledged || acked[seg.WorkLogID]

		dk := dailyKey{date: key, worklogID: seg.WorkLogID}
		dc, ok := agg.dailies[dk]
		if !ok {
			dc = &DailyCalculation{
				EmployeeID: seg.EmployeeID,
				WorkDate:   seg.Date,
				WorkLogID:  seg.WorkLogID,
			}
			agg.dailies[dk] = dc
			agg.dailyOrd = append(agg.dailyOrd, dk)
		}
		dc.TotalHours = dc.TotalHours.Add(seg.Hours)

		switch {
		case seg.Class.IsSabbath():
			agg.sabbathHours = agg.sabbathHours.Add(seg.Hours)
			dc.SabbathHours = dc.SabbathHours.Add(seg.Hours)
			setCompIfEmpty(d, CompShabbat)
		case seg.Class.IsHoliday():
			agg.holidayHours = agg.holidayHours.Add(seg.Hours)
			dc.HolidayHours = dc.HolidayHours.Add(seg.Hours)
			setComp(d, CompHoliday) // holiday outranks shabbat for the credit
		case seg.Class.IsOvertime():
			agg.overtimeHours = agg.overtimeHours.Add(seg.Hours)
			dc.OvertimeHours = dc.OvertimeHours.Add(seg.Hours)
		default:
			agg.regularHours = agg.regularHours.Add(seg.Hours)
			dc.RegularHours = dc.RegularHours.Add(seg.Hours)
		}
	}
	return agg
}

func setComp(d *dayAgg, r CompReason) {
	d.comp = &r
}

func setCompIfEmpty(d *dayAgg, r CompReason) {
	if d.comp == nil {
		d.comp = &r
	}
}

// =============================================================================
// PRICING
// =============================================================================

func (s *strategy) price(agg *monthAgg, in Input) {
	sal := in.Salary
	one := decimal.NewFromInt(1)

	switch {
	case sal.CalculationType == SalaryHourly,
		sal.CalculationType == SalaryProject && sal.BaseSalary == nil:
		agg.rate = *sal.HourlyRate
		for _, seg := range agg.segments {
			amount := seg.Hours.Mul(agg.rate).Mul(s.effectiveMultiplier(seg))
			s.credit(agg, seg, amount)
		}

	case sal.CalculationType == SalaryMonthly:
		base := *sal.BaseSalary
		agg.rate = base.Div(s.cfg.StandardMonthlyHours)
		agg.businessDays = businessDaysIn(in.Year, in.Month, s.loc)
		agg.workedDays = s.workedBusinessDays(agg)

		if agg.businessDays > 0 {
			perDay := base.Div(decimal.NewFromInt(int64(agg.businessDays)))
			agg.basePay = perDay.Mul(decimal.NewFromInt(int64(agg.workedDays)))
			// The base is distributed over worked business days so the
			// monthly total stays the sum of the daily rows.
			s.distributeBase(agg, perDay)
		}
		for _, seg := range agg.segments {
			mult := s.effectiveMultiplier(seg)
			if mult.LessThanOrEqual(one) {
				continue
			}
			premium := seg.Hours.Mul(agg.rate).Mul(mult.Sub(one))
			s.credit(agg, seg, premium)
		}

	case sal.CalculationType == SalaryProject:
		// Flat month. Premiums are not applied.
		agg.basePay = *sal.BaseSalary
		agg.rate = decimal.Zero
		s.distributeFlat(agg, *sal.BaseSalary)
	}
}

// effectiveMultiplier is where Legacy diverges: rest-window overtime is
// flattened back to the window's base multiplier.
func (s *strategy) effectiveMultiplier(seg Segment) decimal.Decimal {
	if s.layerRestOvertime {
		return seg.Multiplier
	}
	switch {
	case seg.Class.IsSabbath():
		return s.cfg.SabbathMultiplier
	case seg.Class.IsHoliday():
		return s.cfg.HolidayMultiplier
	default:
		return seg.Multiplier
	}
}

// credit routes an unrounded amount into the class bucket, the day, and
// the per-worklog daily row.
func (s *strategy) credit(agg *monthAgg, seg Segment, amount decimal.Decimal) {
	key := seg.Date.Format("2006-01-02")
	agg.days[key].gross = agg.days[key].gross.Add(amount)
	dc := agg.dailies[dailyKey{date: key, worklogID: seg.WorkLogID}]
	dc.Gross = dc.Gross.Add(amount)

	switch {
	case seg.Class.IsSabbath():
		agg.sabbathPay = agg.sabbathPay.Add(amount)
	case seg.Class.IsHoliday():
		agg.holidayPay = agg.holidayPay.Add(amount)
	case seg.Class.IsOvertime():
		agg.overtimePay = agg.overtimePay.Add(amount)
	default:
		agg.regularPay = agg.regularPay.Add(amount)
	}
}

// distributeBase spreads the proportional monthly base across worked
// business days (daily rows must sum to the monthly total).
func (s *strategy) distributeBase(agg *monthAgg, perDay decimal.Decimal) {
	for _, key := range agg.dayOrder {
		d := agg.days[key]
		if !isBusinessDay(d.date) {
			continue
		}
		d.gross = d.gross.Add(perDay)
		// Attach the day's base share to its first worklog row.
		for _, dk := range agg.dailyOrd {
			if dk.date == key {
				agg.dailies[dk].Gross = agg.dailies[dk].Gross.Add(perDay)
				break
			}
		}
	}
}

// distributeFlat spreads a project-flat amount evenly over worked dates.
// With no worked dates the flat amount rides on the summary row alone.
func (s *strategy) distributeFlat(agg *monthAgg, base decimal.Decimal) {
	if len(agg.dayOrder) == 0 {
		return
	}
	share := base.Div(decimal.NewFromInt(int64(len(agg.dayOrder))))
	for _, key := range agg.dayOrder {
		d := agg.days[key]
		d.gross = d.gross.Add(share)
		for _, dk := range agg.dailyOrd {
			if dk.date == key {
				agg.dailies[dk].Gross = agg.dailies[dk].Gross.Add(share)
				break
			}
		}
	}
}

func (s *strategy) workedBusinessDays(agg *monthAgg) int {
	n := 0
	for _, key := range agg.dayOrder {
		if isBusinessDay(agg.days[key].date) {
			n++
		}
	}
	return n
}

// isBusinessDay: the Israeli work week runs Sunday through Thursday.
func isBusinessDay(date time.Time) bool {
	wd := date.Weekday()
	return wd != time.Friday && wd != time.Saturday
}

func businessDaysIn(year int, month time.Month, loc *time.Location) int {
	d := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	n := 0
	for ; d.Month() == month; d = d.AddDate(0, 0, 1) {
		if isBusinessDay(d) {
			n++
		}
	}
	return n
}

// =============================================================================
// COMPLIANCE
// =============================================================================

func (s *strategy) compliance(agg *monthAgg, in Input) {
	// Daily caps.
	for _, key := range agg.dayOrder {
		d := agg.days[key]
		date := d.date
		if d.hours.GreaterThan(s.cfg.DailyHardHours) && !d.acknowledged {
			agg.warnings = append(agg.warnings, Warning{
				Code:    WarnDailyUnacked,
				Message: fmt.Sprintf("worked %s hours on %s without long-shift acknowledgement", d.hours.StringFixed(2), key),
				Date:    &date,
			})
		} else if d.hours.GreaterThan(s.cfg.DailyWarnHours) {
			agg.warnings = append(agg.warnings, Warning{
				Code:    WarnDailyOvertime,
				Message: fmt.Sprintf("exceeded 12 hours on %s (%s worked)", key, d.hours.StringFixed(2)),
				Date:    &date,
			})
		}
	}

	// Weekly overtime cap per ISO week.
	weekOT := make(map[string]decimal.Decimal)
	var weekOrder []string
	for _, seg := range agg.segments {
		if !seg.Class.IsOvertime() {
			continue
		}
		y, w := seg.Date.ISOWeek()
		key := fmt.Sprintf("%d-W%02d", y, w)
		if _, ok := weekOT[key]; !ok {
			weekOrder = append(weekOrder, key)
		}
		weekOT[key] = weekOT[key].Add(seg.Hours)
	}
	for _, key := range weekOrder {
		if weekOT[key].GreaterThan(s.cfg.WeeklyOvertimeCap) {
			agg.warnings = append(agg.warnings, Warning{
				Code:    WarnWeeklyOvertimeCap,
				Message: fmt.Sprintf("%s overtime hours in week %s exceed the %s hour cap", weekOT[key].StringFixed(2), key, s.cfg.WeeklyOvertimeCap),
			})
		}
	}
}

// =============================================================================
// ASSEMBLY - The only place rounding happens
// =============================================================================

func (s *strategy) assemble(res *PayrollResult, agg *monthAgg, in Input) {
	res.RegularHours = agg.regularHours
	res.OvertimeHours = agg.overtimeHours
	res.SabbathHours = agg.sabbathHours
	res.HolidayHours = agg.holidayHours
	res.TotalHours = agg.regularHours.Add(agg.overtimeHours).Add(agg.sabbathHours).Add(agg.holidayHours)

	res.BasePay = Round2(agg.basePay)
	res.RegularPay = Round2(agg.regularPay)
	res.OvertimePay = Round2(agg.overtimePay)
	res.SabbathPay = Round2(agg.sabbathPay)
	res.HolidayPay = Round2(agg.holidayPay)
	res.Bonuses = decimal.Zero

	total := agg.basePay.Add(agg.regularPay).Add(agg.overtimePay).Add(agg.sabbathPay).Add(agg.holidayPay)
	res.TotalPay = Round2(total)

	res.HourlyRate = agg.rate
	res.WorkedDays = len(agg.dayOrder)
	if in.Salary.CalculationType == SalaryMonthly {
		res.WorkedDays = agg.workedDays
	}
	res.BusinessDays = agg.businessDays
	if res.BusinessDays == 0 {
		res.BusinessDays = businessDaysIn(in.Year, in.Month, s.loc)
	}
	res.Warnings = append(res.Warnings, agg.warnings...)

	for _, key := range agg.dayOrder {
		d := agg.days[key]
		if d.comp != nil {
			res.CompDaysEarned = append(res.CompDaysEarned, CompensatoryDay{
				EmployeeID: in.Employee.ID,
				EarnedDate: d.date,
				Reason:     *d.comp,
			})
		}
		if !in.FastMode {
			res.Days = append(res.Days, DayBreakdown{
				Date:       d.date,
				Hours:      d.hours,
				Gross:      Round2(d.gross),
				CompEarned: d.comp,
				Segments:   d.segments,
			})
		}
	}
	res.CompDayBalance = in.CompBalance + len(res.CompDaysEarned)

	// Daily rows stay unrounded so the month's rows sum to the summary
	// total within the final rounding step alone.
	for _, dk := range agg.dailyOrd {
		dc := agg.dailies[dk]
		d := agg.days[dk.date]
		dc.CompEarned = d.comp != nil
		res.Dailies = append(res.Dailies, *dc)
	}
}
