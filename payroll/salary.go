/*
salary.go - Salary configuration and boundary validation

PURPOSE:
  A Salary row drives which calculation path an employee takes. Exactly
  one active row per employee exists (unique partial index in the store);
  the engine only reads them, but validates shape at the boundary so a
  corrupted configuration fails one employee, never the batch.

FIELD RULE:
  hourly  -> HourlyRate set, BaseSalary nil
  monthly -> BaseSalary set, HourlyRate nil
  project -> exactly one of the two set; both set is rejected rather than
             silently coerced

SEE ALSO:
  - strategy.go: consumers of the calculation type
*/
package payroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiftwise/payroll-engine/worklog"
)

// =============================================================================
// SALARY
// =============================================================================

type SalaryType string

const (
	SalaryHourly  SalaryType = "hourly"
	SalaryMonthly SalaryType = "monthly"
	SalaryProject SalaryType = "project"
)

type Salary struct {
	EmployeeID      worklog.EmployeeID `json:"employee_id"`
	CalculationType SalaryType         `json:"calculation_type"`
	Currency        string             `json:"currency"`
	HourlyRate      *decimal.Decimal   `json:"hourly_rate,omitempty"`
	BaseSalary      *decimal.Decimal   `json:"base_salary,omitempty"`
	Active          bool               `json:"active"`
	EffectiveFrom   time.Time          `json:"effective_from"`
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoActiveSalary: the employee has no active salary row. Fatal for
	// that employee; the batch continues and reports a zero-amount result.
	ErrNoActiveSalary = errors.New("no active salary")

	// ErrInvalidSalary: the row's fields contradict its calculation type.
	ErrInvalidSalary = errors.New("invalid salary configuration")
)

// Plausibility bounds. Values outside are legal but flagged.
var (
	hourlyRateMin = decimal.NewFromInt(40)
	hourlyRateMax = decimal.NewFromInt(200)
	baseSalaryMin = decimal.NewFromInt(9000)
	baseSalaryMax = decimal.NewFromInt(40000)
)

// Validate checks the field rule for the calculation type. Returns
// ErrInvalidSalary (wrapped with detail) on contradiction, plus any
// plausibility warnings.
func (s Salary) Validate() ([]Warning, error) {
	switch s.CalculationType {
	case SalaryHourly:
		if s.HourlyRate == nil || s.BaseSalary != nil {
			return nil, fmt.Errorf("hourly salary requires hourly_rate only: %w", ErrInvalidSalary)
		}
	case SalaryMonthly:
		if s.BaseSalary == nil || s.HourlyRate != nil {
			return nil, fmt.Errorf("monthly salary requires base_salary only: %w", ErrInvalidSalary)
		}
	case SalaryProject:
		if s.HourlyRate == nil && s.BaseSalary == nil {
			return nil, fmt.Errorf("project salary requires hourly_rate or base_salary: %w", ErrInvalidSalary)
		}
		if s.HourlyRate != nil && s.BaseSalary != nil {
			return nil, fmt.Errorf("project salary with both hourly_rate and base_salary is ambiguous: %w", ErrInvalidSalary)
		}
	default:
		return nil, fmt.Errorf("unknown calculation type %q: %w", s.CalculationType, ErrInvalidSalary)
	}
	return s.rangeWarnings(), nil
}

func (s Salary) rangeWarnings() []Warning {
	var out []Warning
	if s.HourlyRate != nil {
		if s.HourlyRate.LessThan(hourlyRateMin) || s.HourlyRate.GreaterThan(hourlyRateMax) {
			out = append(out, Warning{
				Code:    WarnSalaryRange,
				Message: fmt.Sprintf("hourly rate %s outside expected range [%s, %s]", s.HourlyRate, hourlyRateMin, hourlyRateMax),
			})
		}
	}
	if s.BaseSalary != nil {
		if s.BaseSalary.LessThan(baseSalaryMin) || s.BaseSalary.GreaterThan(baseSalaryMax) {
			out = append(out, Warning{
				Code:    WarnSalaryRange,
				Message: fmt.Sprintf("base salary %s outside expected range [%s, %s]", s.BaseSalary, baseSalaryMin, baseSalaryMax),
			})
		}
	}
	return out
}
