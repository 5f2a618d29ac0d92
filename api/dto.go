/*
dto.go - Request/response shapes for the HTTP API

PURPOSE:
  Wire types are kept separate from domain types so the JSON contract can
  evolve without touching the engine. Times travel as RFC3339; dates as
  YYYY-MM-DD; money and hours as decimal strings (never floats).

SEE ALSO:
  - handlers.go: producers and consumers of these shapes
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/worklog"
)

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// WORKLOGS
// =============================================================================

type LocationDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CheckInRequest opens a shift. Exactly one of EmployeeID or BadgeToken
// identifies the worker; BadgeToken goes through the configured
// Identifier (biometric terminal integration).
type CheckInRequest struct {
	EmployeeID            string       `json:"employee_id,omitempty"`
	BadgeToken            string       `json:"badge_token,omitempty"`
	At                    *time.Time   `json:"at,omitempty"` // default: now
	Location              *LocationDTO `json:"location,omitempty"`
	LongShiftAcknowledged bool         `json:"long_shift_acknowledged,omitempty"`
}

type CheckOutRequest struct {
	EmployeeID string       `json:"employee_id,omitempty"`
	BadgeToken string       `json:"badge_token,omitempty"`
	At         *time.Time   `json:"at,omitempty"`
	Location   *LocationDTO `json:"location,omitempty"`
}

type WorkLogDTO struct {
	ID                    string       `json:"id"`
	EmployeeID            string       `json:"employee_id"`
	CheckIn               time.Time    `json:"check_in"`
	CheckOut              *time.Time   `json:"check_out,omitempty"`
	LocationIn            *LocationDTO `json:"location_in,omitempty"`
	LocationOut           *LocationDTO `json:"location_out,omitempty"`
	Approved              bool         `json:"approved"`
	IsDeleted             bool         `json:"is_deleted,omitempty"`
	DeletedAt             *time.Time   `json:"deleted_at,omitempty"`
	DeletedBy             string       `json:"deleted_by,omitempty"`
	LongShiftAcknowledged bool         `json:"long_shift_acknowledged,omitempty"`
}

func toWorkLogDTO(w worklog.WorkLog) WorkLogDTO {
	dto := WorkLogDTO{
		ID:                    string(w.ID),
		EmployeeID:            string(w.EmployeeID),
		CheckIn:               w.CheckIn,
		CheckOut:              w.CheckOut,
		Approved:              w.Approved,
		IsDeleted:             w.IsDeleted,
		DeletedAt:             w.DeletedAt,
		DeletedBy:             w.DeletedBy,
		LongShiftAcknowledged: w.LongShiftAcknowledged,
	}
	if w.LocationIn != nil {
		dto.LocationIn = &LocationDTO{Lat: w.LocationIn.Lat, Lng: w.LocationIn.Lng}
	}
	if w.LocationOut != nil {
		dto.LocationOut = &LocationDTO{Lat: w.LocationOut.Lat, Lng: w.LocationOut.Lng}
	}
	return dto
}

// BulkShiftRequest imports closed shifts (migration / terminal sync).
type BulkShiftRequest struct {
	Shifts []BulkShiftEntry `json:"shifts"`
	// SkipValidation certifies pre-validated data; per-row overlap checks
	// are skipped but index-level invariants still hold.
	SkipValidation bool `json:"skip_validation,omitempty"`
}

type BulkShiftEntry struct {
	EmployeeID            string       `json:"employee_id"`
	CheckIn               time.Time    `json:"check_in"`
	CheckOut              time.Time    `json:"check_out"`
	Location              *LocationDTO `json:"location,omitempty"`
	LongShiftAcknowledged bool         `json:"long_shift_acknowledged,omitempty"`
}

type BulkShiftResponse struct {
	Created int `json:"created"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type SalaryDTO struct {
	CalculationType string  `json:"calculation_type"`
	Currency        string  `json:"currency,omitempty"`
	HourlyRate      *string `json:"hourly_rate,omitempty"`
	BaseSalary      *string `json:"base_salary,omitempty"`
	EffectiveFrom   string  `json:"effective_from,omitempty"` // YYYY-MM-DD
}

type EmployeeDTO struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Role   string     `json:"role"`
	Active bool       `json:"active"`
	Salary *SalaryDTO `json:"salary,omitempty"`
}

type CreateEmployeeRequest struct {
	ID     string     `json:"id,omitempty"` // generated when empty
	Name   string     `json:"name"`
	Role   string     `json:"role,omitempty"`
	Salary *SalaryDTO `json:"salary,omitempty"`
}

func toEmployeeDTO(es payroll.EmployeeSalary) EmployeeDTO {
	dto := EmployeeDTO{
		ID:     string(es.Employee.ID),
		Name:   es.Employee.Name,
		Role:   string(es.Employee.Role),
		Active: es.Employee.Active,
	}
	if es.Salary != nil {
		dto.Salary = &SalaryDTO{
			CalculationType: string(es.Salary.CalculationType),
			Currency:        es.Salary.Currency,
			HourlyRate:      decStr(es.Salary.HourlyRate),
			BaseSalary:      decStr(es.Salary.BaseSalary),
			EffectiveFrom:   es.Salary.EffectiveFrom.Format("2006-01-02"),
		}
	}
	return dto
}

func decStr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// =============================================================================
// PAYROLL
// =============================================================================

// CalculateRequest runs the bulk computation. A nil employee_ids means
// all active employees.
type CalculateRequest struct {
	EmployeeIDs []string `json:"employee_ids,omitempty"`
	Year        int      `json:"year"`
	Month       int      `json:"month"`

	UseCache        *bool  `json:"use_cache,omitempty"`    // default true
	UseParallel     *bool  `json:"use_parallel,omitempty"` // default true
	SaveToDB        bool   `json:"save_to_db,omitempty"`
	InvalidateCache bool   `json:"invalidate_cache,omitempty"`
	FastMode        bool   `json:"fast_mode,omitempty"`
	Strategy        string `json:"strategy,omitempty"` // enhanced | legacy
}

type CompDayDTO struct {
	EarnedDate string  `json:"earned_date"`
	Reason     string  `json:"reason"`
	UsedDate   *string `json:"used_date,omitempty"`
}

func toCompDayDTO(c payroll.CompensatoryDay) CompDayDTO {
	dto := CompDayDTO{
		EarnedDate: c.EarnedDate.Format("2006-01-02"),
		Reason:     string(c.Reason),
	}
	if c.UsedDate != nil {
		s := c.UsedDate.Format("2006-01-02")
		dto.UsedDate = &s
	}
	return dto
}

// EarningsResponse is the employee-facing live view of the requested
// month.
type EarningsResponse struct {
	Result         payroll.PayrollResult `json:"result"`
	CompDayBalance int                   `json:"comp_day_balance"`
	OpenShift      *WorkLogDTO           `json:"open_shift,omitempty"`
}

// =============================================================================
// HEALTH
// =============================================================================

type HealthResponse struct {
	Status       string `json:"status"`
	CacheVersion int    `json:"cache_version"`
	Time         string `json:"time"`
}
