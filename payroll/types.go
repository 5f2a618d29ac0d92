/*
Package payroll computes compliant gross pay from shift records.

PURPOSE:
  This package is the computation core: the shift splitter turns closed
  worklogs into classified segments, the strategy turns segments plus a
  salary into a PayrollResult, and the bulk service runs the strategy
  over many employees with a bounded number of database round-trips.

KEY CONCEPTS IN THIS FILE (types.go):
  - Classification: the closed set of pay classes a worked hour can carry
  - Segment: one contiguous span of a single classification
  - PayrollResult: the immutable computed summary for an employee-month
  - DailyCalculation / MonthlySummary: the persisted aggregates

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere money or hours appear
  2. Rounding at the edge: intermediate values stay unrounded; half-up
     two-decimal rounding happens only at final result assembly
  3. Determinism: same inputs produce byte-equal amounts
  4. Purity: the strategy is pure CPU over preloaded inputs, which is
     what makes bulk parallelism safe

SEE ALSO:
  - splitter.go: worklog -> segments
  - strategy.go: segments -> PayrollResult
  - bulk.go:     batch execution and caching
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiftwise/payroll-engine/worklog"
)

// =============================================================================
// CLASSIFICATION - Closed set, declared in tie-break order
// =============================================================================

// Classification labels one segment's pay class. The declaration order is
// the tie-break order when segments share a start instant.
type Classification int

const (
	ClassRegular Classification = iota
	ClassOvertimeT1
	ClassOvertimeT2
	ClassOvertimeT3
	ClassOvertimeT4
	ClassSabbathBase
	ClassSabbathOT1
	ClassSabbathOT2
	ClassHolidayBase
	ClassHolidayOT1
	ClassHolidayOT2
	ClassFridayEvening
)

var classNames = map[Classification]string{
	ClassRegular:       "regular",
	ClassOvertimeT1:    "overtime_t1",
	ClassOvertimeT2:    "overtime_t2",
	ClassOvertimeT3:    "overtime_t3",
	ClassOvertimeT4:    "overtime_t4",
	ClassSabbathBase:   "sabbath_base",
	ClassSabbathOT1:    "sabbath_ot_t1",
	ClassSabbathOT2:    "sabbath_ot_t2",
	ClassHolidayBase:   "holiday_base",
	ClassHolidayOT1:    "holiday_ot_t1",
	ClassHolidayOT2:    "holiday_ot_t2",
	ClassFridayEvening: "friday_evening",
}

func (c Classification) String() string { return classNames[c] }

// IsOvertime reports whether the class carries an overtime tier.
func (c Classification) IsOvertime() bool {
	switch c {
	case ClassOvertimeT1, ClassOvertimeT2, ClassOvertimeT3, ClassOvertimeT4,
		ClassSabbathOT1, ClassSabbathOT2, ClassHolidayOT1, ClassHolidayOT2:
		return true
	}
	return false
}

// IsSabbath reports whether the class belongs to the Sabbath bucket.
// Friday-evening hours are Sabbath pay before midnight.
func (c Classification) IsSabbath() bool {
	switch c {
	case ClassSabbathBase, ClassSabbathOT1, ClassSabbathOT2, ClassFridayEvening:
		return true
	}
	return false
}

// IsHoliday reports whether the class belongs to the holiday bucket.
func (c Classification) IsHoliday() bool {
	switch c {
	case ClassHolidayBase, ClassHolidayOT1, ClassHolidayOT2:
		return true
	}
	return false
}

// =============================================================================
// SEGMENT - Transient output of the splitter
// =============================================================================

// Segment is one contiguous span of a single classification within one
// local calendar date. Segments are transient; only their aggregates are
// persisted.
type Segment struct {
	EmployeeID worklog.EmployeeID
	WorkLogID  worklog.WorkLogID
	Date       time.Time // local midnight of the segment's date
	Start      time.Time
	End        time.Time
	Class      Classification
	Hours      decimal.Decimal
	Multiplier decimal.Decimal
}

// =============================================================================
// COMPENSATORY DAY
// =============================================================================

type CompReason string

const (
	CompShabbat CompReason = "shabbat"
	CompHoliday CompReason = "holiday"
)

// CompensatoryDay is a credit earned by working Shabbat or a holiday.
// Immutable once used.
type CompensatoryDay struct {
	EmployeeID worklog.EmployeeID `json:"employee_id"`
	EarnedDate time.Time          `json:"earned_date"`
	Reason     CompReason         `json:"reason"`
	UsedDate   *time.Time         `json:"used_date,omitempty"`
}

// =============================================================================
// WARNINGS
// =============================================================================

type WarningCode string

const (
	WarnDailyOvertime     WarningCode = "daily_over_12h"
	WarnDailyUnacked      WarningCode = "daily_over_16h_unacknowledged"
	WarnWeeklyOvertimeCap WarningCode = "weekly_overtime_cap"
	WarnSalaryRange       WarningCode = "salary_out_of_range"
	WarnDegraded          WarningCode = "degraded_time_source"
)

// Warning is a compliance note attached to a result. Warnings never block
// payment; hours past a cap are still paid.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
	Date    *time.Time  `json:"date,omitempty"`
}

// =============================================================================
// RESULT SHAPES
// =============================================================================

// DayBreakdown is the per-date slice of a PayrollResult. Omitted in fast
// mode.
type DayBreakdown struct {
	Date       time.Time       `json:"date"`
	Hours      decimal.Decimal `json:"hours"`
	Gross      decimal.Decimal `json:"gross"`
	CompEarned *CompReason     `json:"comp_earned,omitempty"`
	Segments   []Segment       `json:"segments,omitempty"`
}

// DailyCalculation is the persisted aggregate per (employee, date,
// worklog). Multiple rows per date are normal for split shifts.
type DailyCalculation struct {
	EmployeeID    worklog.EmployeeID
	WorkDate      time.Time
	WorkLogID     worklog.WorkLogID
	TotalHours    decimal.Decimal
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	SabbathHours  decimal.Decimal
	HolidayHours  decimal.Decimal
	Gross         decimal.Decimal
	CompEarned    bool
}

// MonthlySummary is the persisted aggregate per (employee, year, month).
// Recomputable; last writer wins; Version increments on every recompute.
type MonthlySummary struct {
	EmployeeID      worklog.EmployeeID `json:"employee_id"`
	Year            int                `json:"year"`
	Month           time.Month         `json:"month"`
	TotalHours      decimal.Decimal    `json:"total_hours"`
	RegularHours    decimal.Decimal    `json:"regular_hours"`
	OvertimeHours   decimal.Decimal    `json:"overtime_hours"`
	SabbathHours    decimal.Decimal    `json:"sabbath_hours"`
	HolidayHours    decimal.Decimal    `json:"holiday_hours"`
	BasePay         decimal.Decimal    `json:"base_pay"`
	TotalPay        decimal.Decimal    `json:"total_pay"`
	CompDaysEarned  int                `json:"comp_days_earned"`
	CalculationDate time.Time          `json:"calculation_date"`
	Version         int                `json:"version"`
}

// PayrollResult is the immutable computed summary for one employee-month.
// Amounts carry two decimals, rounded half-up at assembly only.
type PayrollResult struct {
	EmployeeID worklog.EmployeeID `json:"employee_id"`
	Year       int                `json:"year"`
	Month      time.Month         `json:"month"`
	SalaryType SalaryType         `json:"salary_type"`

	TotalHours    decimal.Decimal `json:"total_hours"`
	RegularHours  decimal.Decimal `json:"regular_hours"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	SabbathHours  decimal.Decimal `json:"sabbath_hours"`
	HolidayHours  decimal.Decimal `json:"holiday_hours"`

	BasePay     decimal.Decimal `json:"base_pay"`
	RegularPay  decimal.Decimal `json:"regular_pay"`
	OvertimePay decimal.Decimal `json:"overtime_pay"`
	SabbathPay  decimal.Decimal `json:"sabbath_pay"`
	HolidayPay  decimal.Decimal `json:"holiday_pay"`
	Bonuses     decimal.Decimal `json:"bonuses"`
	TotalPay    decimal.Decimal `json:"total_pay"`

	// Rate actually used: the hourly rate, or base_salary divided by the
	// standard monthly hours for monthly employees.
	HourlyRate decimal.Decimal `json:"hourly_rate"`

	WorkedDays   int `json:"worked_days"`
	BusinessDays int `json:"business_days"`

	CompDaysEarned  []CompensatoryDay `json:"comp_days_earned,omitempty"`
	CompDayBalance  int               `json:"comp_day_balance"`
	Days            []DayBreakdown    `json:"days,omitempty"`
	Warnings        []Warning         `json:"warnings,omitempty"`
	Degraded        bool              `json:"degraded"`
	CalculationDate time.Time         `json:"calculation_date"`

	// Dailies back the persisted per-worklog rows. Not part of the
	// serialized contract.
	Dailies []DailyCalculation `json:"-"`
}

// Summary derives the persistable monthly row from a result.
func (r PayrollResult) Summary() MonthlySummary {
	return MonthlySummary{
		EmployeeID:      r.EmployeeID,
		Year:            r.Year,
		Month:           r.Month,
		TotalHours:      r.TotalHours,
		RegularHours:    r.RegularHours,
		OvertimeHours:   r.OvertimeHours,
		SabbathHours:    r.SabbathHours,
		HolidayHours:    r.HolidayHours,
		BasePay:         r.BasePay,
		TotalPay:        r.TotalPay,
		CompDaysEarned:  len(r.CompDaysEarned),
		CalculationDate: r.CalculationDate,
	}
}

// =============================================================================
// EMPLOYEE - Read-only view owned by the users subsystem
// =============================================================================

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleEmployee   Role = "employee"
)

type Employee struct {
	ID     worklog.EmployeeID `json:"id"`
	Name   string             `json:"name"`
	Role   Role               `json:"role"`
	Active bool               `json:"active"`
}

// =============================================================================
// ROUNDING
// =============================================================================

// Round2 applies the final-boundary rounding rule: two fractional digits,
// half-up. Never call this on an intermediate value.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
