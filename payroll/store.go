/*
store.go - Persistence contracts for payroll aggregates

PURPOSE:
  The bulk service is the only writer of persisted payroll aggregates.
  These interfaces keep the loaders to one query each so a batch of any
  size costs a fixed number of round trips.

SEE ALSO:
  - bulk.go: the only consumer
  - store/sqlite: implementation
*/
package payroll

import (
	"context"
	"time"

	"github.com/shiftwise/payroll-engine/worklog"
)

// EmployeeSalary pairs an employee with their active salary (nil when the
// employee has none).
type EmployeeSalary struct {
	Employee Employee
	Salary   *Salary
}

// EmployeeStore reads the users subsystem's data. One query regardless of
// batch size.
type EmployeeStore interface {
	// ListWithActiveSalary joins employees with their active salary row.
	// A nil ids slice means all active employees.
	ListWithActiveSalary(ctx context.Context, ids []worklog.EmployeeID) ([]EmployeeSalary, error)
}

// Store persists the derived payroll aggregates.
type Store interface {
	// SaveMonth upserts the monthly summary (version increments), replaces
	// the month's daily rows, and upserts earned compensatory days, all in
	// one transaction for the employee. Last writer wins on the summary.
	SaveMonth(ctx context.Context, res PayrollResult) error

	// MonthlySummaries returns existing summaries for the batch in one
	// query, keyed by employee.
	MonthlySummaries(ctx context.Context, ids []worklog.EmployeeID, year int, month time.Month) (map[worklog.EmployeeID]MonthlySummary, error)

	// CompensatoryBalances returns unused compensatory-day counts in one
	// query, keyed by employee.
	CompensatoryBalances(ctx context.Context, ids []worklog.EmployeeID) (map[worklog.EmployeeID]int, error)

	// CompensatoryDays lists an employee's credits (audit/earnings view).
	CompensatoryDays(ctx context.Context, id worklog.EmployeeID) ([]CompensatoryDay, error)
}
