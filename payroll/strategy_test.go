package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/payroll-engine/config"
	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/worklog"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func hourlySalary(emp, rate string) *payroll.Salary {
	return &payroll.Salary{
		EmployeeID:      worklog.EmployeeID(emp),
		CalculationType: payroll.SalaryHourly,
		Currency:        "ILS",
		HourlyRate:      decPtr(rate),
		Active:          true,
	}
}

func enhanced(t *testing.T, cat payroll.DayCatalog) payroll.Strategy {
	t.Helper()
	return payroll.NewStrategy(payroll.VariantEnhanced, cat, config.Default(), zerolog.Nop())
}

func hasWarning(res payroll.PayrollResult, code payroll.WarningCode) bool {
	for _, w := range res.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func TestComputeHourlyOvertimeTiers(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	// GIVEN a 13.2 hour Monday shift at 40/hour
	in := payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 2, 8, 0), day(2026, time.March, 2, 21, 12)),
		},
		Year: 2026, Month: time.March,
	}

	res, err := strat.Compute(context.Background(), in)
	require.NoError(t, err)

	// THEN 8.6h at base, 2h at 1.25, 2h at 1.5, 0.6h at 1.75
	assert.Equal(t, "344.00", res.RegularPay.StringFixed(2))
	assert.Equal(t, "262.00", res.OvertimePay.StringFixed(2)) // 100 + 120 + 42
	assert.Equal(t, "606.00", res.TotalPay.StringFixed(2))
	assert.Equal(t, "8.6", res.RegularHours.String())
	assert.Equal(t, "4.6", res.OvertimeHours.String())
	assert.Equal(t, "13.2", res.TotalHours.String())

	// AND the 12 hour daily warning fires (under 16, so no violation)
	assert.True(t, hasWarning(res, payroll.WarnDailyOvertime))
	assert.False(t, hasWarning(res, payroll.WarnDailyUnacked))
}

func TestComputeHourlySabbathShift(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	// GIVEN Friday 18:00 through Saturday 02:00 at 40/hour with the
	// window opening 19:00
	in := payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 6, 18, 0), day(2026, time.March, 7, 2, 0)),
		},
		Year: 2026, Month: time.March,
		CompBalance: 2,
	}

	res, err := strat.Compute(context.Background(), in)
	require.NoError(t, err)

	// THEN one regular hour and seven Sabbath-rate hours
	assert.Equal(t, "40.00", res.RegularPay.StringFixed(2))
	assert.Equal(t, "420.00", res.SabbathPay.StringFixed(2)) // 7h x 40 x 1.5
	assert.Equal(t, "460.00", res.TotalPay.StringFixed(2))
	assert.Equal(t, "7", res.SabbathHours.String())

	// AND a compensatory day is earned for the Saturday work
	require.Len(t, res.CompDaysEarned, 1)
	assert.Equal(t, payroll.CompShabbat, res.CompDaysEarned[0].Reason)
	assert.Equal(t, 3, res.CompDayBalance)
}

func TestComputeMonthlyProration(t *testing.T) {
	strat := enhanced(t, newTestCatalog())
	base := decPtr("25000")

	// GIVEN a monthly employee working 10 business days of March 2026
	// (23 business days total), 8 hours each
	var logs []worklog.WorkLog
	for _, d := range []int{1, 2, 3, 4, 5, 8, 9, 10, 11, 12} {
		logs = append(logs, closedShift("e1",
			day(2026, time.March, d, 9, 0), day(2026, time.March, d, 17, 0)))
	}
	in := payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary: &payroll.Salary{
			EmployeeID: "e1", CalculationType: payroll.SalaryMonthly,
			Currency: "ILS", BaseSalary: base, Active: true,
		},
		WorkLogs: logs,
		Year:     2026, Month: time.March,
	}

	res, err := strat.Compute(context.Background(), in)
	require.NoError(t, err)

	// THEN base pay is prorated: 25000 x 10/23
	assert.Equal(t, "10869.57", res.BasePay.StringFixed(2))
	assert.Equal(t, "10869.57", res.TotalPay.StringFixed(2))
	assert.Equal(t, 10, res.WorkedDays)
	assert.Equal(t, 23, res.BusinessDays)

	// AND the effective rate is base over the standard monthly hours
	assert.True(t, res.HourlyRate.Equal(base.Div(decimal.NewFromInt(185))),
		"effective rate should be base/185, got %s", res.HourlyRate)

	// AND the unrounded daily rows sum back to the monthly total
	sum := decimal.Zero
	for _, dc := range res.Dailies {
		sum = sum.Add(dc.Gross)
	}
	assert.True(t, payroll.Round2(sum).Equal(res.TotalPay),
		"daily rows %s should round to total %s", sum, res.TotalPay)
}

func TestComputeMonthlyPremiumOnlyForSabbath(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	// GIVEN a monthly employee with one weekday shift and one 4 hour
	// Saturday shift inside the window
	in := payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary: &payroll.Salary{
			EmployeeID: "e1", CalculationType: payroll.SalaryMonthly,
			Currency: "ILS", BaseSalary: decPtr("18500"), Active: true,
		},
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 17, 0)),
			closedShift("e1", day(2026, time.March, 7, 8, 0), day(2026, time.March, 7, 12, 0)),
		},
		Year: 2026, Month: time.March,
	}

	res, err := strat.Compute(context.Background(), in)
	require.NoError(t, err)

	// THEN only the worked business day counts toward the base
	assert.Equal(t, 1, res.WorkedDays)

	// AND the Saturday hours earn only the premium portion: 4h at
	// (1.5 - 1) x effective rate of 100/hour
	assert.Equal(t, "200.00", res.SabbathPay.StringFixed(2))
	perDay := decimal.RequireFromString("18500").Div(decimal.NewFromInt(23))
	expected := payroll.Round2(perDay.Add(decimal.NewFromInt(200)))
	assert.True(t, res.TotalPay.Equal(expected),
		"total %s should equal base share plus premium %s", res.TotalPay, expected)
}

func TestComputeProjectFlat(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	// GIVEN a project employee with a flat base and two worked days
	in := payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary: &payroll.Salary{
			EmployeeID: "e1", CalculationType: payroll.SalaryProject,
			Currency: "ILS", BaseSalary: decPtr("12000"), Active: true,
		},
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 18, 0)),
			closedShift("e1", day(2026, time.March, 7, 8, 0), day(2026, time.March, 7, 16, 0)),
		},
		Year: 2026, Month: time.March,
	}

	res, err := strat.Compute(context.Background(), in)
	require.NoError(t, err)

	// THEN the flat amount is the whole pay, hours notwithstanding
	assert.Equal(t, "12000.00", res.BasePay.StringFixed(2))
	assert.Equal(t, "12000.00", res.TotalPay.StringFixed(2))
	assert.True(t, res.SabbathPay.IsZero(), "flat project pay carries no premiums")
	assert.True(t, res.HourlyRate.IsZero())

	// AND the amount is spread evenly over the worked dates
	require.Len(t, res.Dailies, 2)
	assert.Equal(t, "6000.00", res.Dailies[0].Gross.StringFixed(2))
}

func TestComputeProjectHourlyFallsBackToRate(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	// GIVEN a project employee configured with an hourly rate only
	in := payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary: &payroll.Salary{
			EmployeeID: "e1", CalculationType: payroll.SalaryProject,
			Currency: "ILS", HourlyRate: decPtr("50"), Active: true,
		},
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 17, 0)),
		},
		Year: 2026, Month: time.March,
	}

	res, err := strat.Compute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "400.00", res.TotalPay.StringFixed(2))
}

func TestComputeProjectBothFieldsRejected(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	in := payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary: &payroll.Salary{
			EmployeeID: "e1", CalculationType: payroll.SalaryProject,
			Currency: "ILS", HourlyRate: decPtr("50"), BaseSalary: decPtr("12000"), Active: true,
		},
		Year: 2026, Month: time.March,
	}

	_, err := strat.Compute(context.Background(), in)
	require.ErrorIs(t, err, payroll.ErrInvalidSalary)
}

func TestComputeNoActiveSalary(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	_, err := strat.Compute(context.Background(), payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Year:     2026, Month: time.March,
	})
	require.ErrorIs(t, err, payroll.ErrNoActiveSalary)
}

func TestComputeSkipsOpenAndDeletedShifts(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	open := worklog.WorkLog{ID: "open", EmployeeID: "e1", CheckIn: day(2026, time.March, 2, 9, 0)}
	deleted := closedShift("e1", day(2026, time.March, 3, 9, 0), day(2026, time.March, 3, 17, 0))
	deleted.IsDeleted = true

	res, err := strat.Compute(context.Background(), payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: []worklog.WorkLog{open, deleted},
		Year:     2026, Month: time.March,
	})
	require.NoError(t, err)
	assert.True(t, res.TotalPay.IsZero())
	assert.True(t, res.TotalHours.IsZero())
}

func TestComputeWeeklyOvertimeCapWarning(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	// GIVEN four 13.2 hour shifts in one ISO week (4.6h overtime each,
	// 18.4h total, over the 16h cap)
	var logs []worklog.WorkLog
	for _, d := range []int{2, 3, 4, 5} {
		logs = append(logs, closedShift("e1",
			day(2026, time.March, d, 8, 0), day(2026, time.March, d, 21, 12)))
	}

	res, err := strat.Compute(context.Background(), payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: logs,
		Year:     2026, Month: time.March,
	})
	require.NoError(t, err)

	// THEN the cap warning fires but every hour is still paid
	assert.True(t, hasWarning(res, payroll.WarnWeeklyOvertimeCap))
	assert.Equal(t, "18.4", res.OvertimeHours.String())
	assert.Equal(t, "2424.00", res.TotalPay.StringFixed(2)) // 4 x 606
}

func TestComputeUnacknowledgedLongDay(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	// GIVEN a 17 hour day without the acknowledgement flag
	long := closedShift("e1", day(2026, time.March, 2, 4, 0), day(2026, time.March, 2, 21, 0))

	res, err := strat.Compute(context.Background(), payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: []worklog.WorkLog{long},
		Year:     2026, Month: time.March,
	})
	require.NoError(t, err)
	assert.True(t, hasWarning(res, payroll.WarnDailyUnacked))

	// WHEN the shift carries the acknowledgement
	long.LongShiftAcknowledged = true
	res, err = strat.Compute(context.Background(), payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: []worklog.WorkLog{long},
		Year:     2026, Month: time.March,
	})
	require.NoError(t, err)

	// THEN it degrades to the ordinary over-12h note
	assert.False(t, hasWarning(res, payroll.WarnDailyUnacked))
	assert.True(t, hasWarning(res, payroll.WarnDailyOvertime))
}

func TestComputeSalaryRangeWarning(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	res, err := strat.Compute(context.Background(), payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "30"), // below the plausible floor
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 17, 0)),
		},
		Year: 2026, Month: time.March,
	})
	require.NoError(t, err)
	assert.True(t, hasWarning(res, payroll.WarnSalaryRange))
	assert.Equal(t, "240.00", res.TotalPay.StringFixed(2), "out-of-range rates still pay")
}

func TestComputeFastModeOmitsBreakdown(t *testing.T) {
	strat := enhanced(t, newTestCatalog())

	res, err := strat.Compute(context.Background(), payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 17, 0)),
		},
		Year: 2026, Month: time.March,
		FastMode: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Days)
	assert.NotEmpty(t, res.Dailies, "persisted rows are produced regardless of fast mode")
}

func TestLegacyFlattensRestWindowOvertime(t *testing.T) {
	cat := newTestCatalog()
	cfg := config.Default()
	log := zerolog.Nop()

	// GIVEN a 13 hour Saturday shift inside the window at 40/hour
	in := payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 7, 5, 0), day(2026, time.March, 7, 18, 0)),
		},
		Year: 2026, Month: time.March,
	}

	// WHEN computed under both variants
	enh, err := payroll.NewStrategy(payroll.VariantEnhanced, cat, cfg, log).Compute(context.Background(), in)
	require.NoError(t, err)
	leg, err := payroll.NewStrategy(payroll.VariantLegacy, cat, cfg, log).Compute(context.Background(), in)
	require.NoError(t, err)

	// THEN enhanced layers overtime premiums on the window rate
	// (8.6 x 1.5 + 2 x 1.75 + 2.4 x 2) x 40
	assert.Equal(t, "848.00", enh.TotalPay.StringFixed(2))
	// AND legacy pays the flat window multiplier for every hour
	assert.Equal(t, "780.00", leg.TotalPay.StringFixed(2)) // 13 x 40 x 1.5

	// AND legacy emits no compliance warnings
	assert.True(t, hasWarning(enh, payroll.WarnDailyOvertime))
	assert.Empty(t, leg.Warnings)
}

func TestUnknownVariantFallsBackToEnhanced(t *testing.T) {
	strat := payroll.NewStrategy(payroll.Variant("optimized"), newTestCatalog(), config.Default(), zerolog.Nop())
	require.NotNil(t, strat)

	res, err := strat.Compute(context.Background(), payroll.Input{
		Employee: payroll.Employee{ID: "e1"},
		Salary:   hourlySalary("e1", "40"),
		WorkLogs: []worklog.WorkLog{
			closedShift("e1", day(2026, time.March, 7, 5, 0), day(2026, time.March, 7, 18, 0)),
		},
		Year: 2026, Month: time.March,
	})
	require.NoError(t, err)
	assert.Equal(t, "848.00", res.TotalPay.StringFixed(2), "fallback must behave as enhanced")
}
