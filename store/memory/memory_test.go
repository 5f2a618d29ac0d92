package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/payroll-engine/calendar"
	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/worklog"
)

func mkClosed(emp string, in, out time.Time) worklog.WorkLog {
	return worklog.WorkLog{
		ID:         worklog.NewWorkLogID(),
		EmployeeID: worklog.EmployeeID(emp),
		CheckIn:    in,
		CheckOut:   &out,
	}
}

func d(day, hh int) time.Time {
	return time.Date(2026, time.March, day, hh, 0, 0, 0, time.UTC)
}

func TestPurgeDeletedBefore(t *testing.T) {
	s := New(time.UTC)
	ctx := context.Background()

	// GIVEN two soft-deleted shifts, one older than the cutoff
	old, err := s.OpenShift(ctx, mkClosed("emp-1", d(1, 9), d(1, 17)))
	require.NoError(t, err)
	recent, err := s.OpenShift(ctx, mkClosed("emp-1", d(2, 9), d(2, 17)))
	require.NoError(t, err)

	_, err = s.SoftDelete(ctx, old.ID, "test")
	require.NoError(t, err)
	_, err = s.SoftDelete(ctx, recent.ID, "test")
	require.NoError(t, err)

	// Age the first row's deletion timestamp past the cutoff.
	s.mu.Lock()
	w := s.worklogs[old.ID]
	past := time.Now().UTC().AddDate(-2, 0, 0)
	w.DeletedAt = &past
	s.worklogs[old.ID] = w
	s.mu.Unlock()

	// WHEN purging with a one-year cutoff
	n, err := s.PurgeDeletedBefore(ctx, time.Now().UTC().AddDate(-1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// THEN the old row is gone for good, the recent one survives
	_, err = s.Get(ctx, old.ID)
	require.ErrorIs(t, err, worklog.ErrNotFound)
	_, err = s.Get(ctx, recent.ID)
	require.NoError(t, err)
}

func TestListForRangeAllFilters(t *testing.T) {
	s := New(time.UTC)
	ctx := context.Background()

	_, err := s.OpenShift(ctx, mkClosed("emp-1", d(2, 9), d(2, 17)))
	require.NoError(t, err)
	_, err = s.OpenShift(ctx, mkClosed("emp-2", d(2, 9), d(2, 17)))
	require.NoError(t, err)
	gone, err := s.OpenShift(ctx, mkClosed("emp-3", d(2, 9), d(2, 17)))
	require.NoError(t, err)
	_, err = s.SoftDelete(ctx, gone.ID, "test")
	require.NoError(t, err)

	// Restricted to two employees; the deleted row never appears
	got, err := s.ListForRangeAll(ctx,
		[]worklog.EmployeeID{"emp-1", "emp-3"}, d(1, 0), d(31, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, worklog.EmployeeID("emp-1"), got[0].EmployeeID)

	// A nil list means everyone
	got, err = s.ListForRangeAll(ctx, nil, d(1, 0), d(31, 0))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSaveMonthReplacesOnlyThatMonth(t *testing.T) {
	s := New(time.UTC)
	ctx := context.Background()

	feb := payroll.PayrollResult{
		EmployeeID: "emp-1", Year: 2026, Month: time.February,
		TotalPay: decimal.NewFromInt(100),
		Dailies: []payroll.DailyCalculation{{
			EmployeeID: "emp-1", WorkDate: time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC),
			WorkLogID: "w-feb", Gross: decimal.NewFromInt(100),
		}},
	}
	mar := payroll.PayrollResult{
		EmployeeID: "emp-1", Year: 2026, Month: time.March,
		TotalPay: decimal.NewFromInt(200),
		Dailies: []payroll.DailyCalculation{{
			EmployeeID: "emp-1", WorkDate: d(2, 0), WorkLogID: "w-mar", Gross: decimal.NewFromInt(200),
		}},
	}

	require.NoError(t, s.SaveMonth(ctx, feb))
	require.NoError(t, s.SaveMonth(ctx, mar))

	// WHEN March is recomputed
	mar.Dailies[0].Gross = decimal.NewFromInt(250)
	require.NoError(t, s.SaveMonth(ctx, mar))

	// THEN February's rows are untouched and March was replaced
	rows := s.Dailies("emp-1")
	require.Len(t, rows, 2)
	byLog := map[worklog.WorkLogID]payroll.DailyCalculation{}
	for _, r := range rows {
		byLog[r.WorkLogID] = r
	}
	assert.Equal(t, "100", byLog["w-feb"].Gross.String())
	assert.Equal(t, "250", byLog["w-mar"].Gross.String())

	// AND the March summary version climbed with each save
	sums, err := s.MonthlySummaries(ctx, []worklog.EmployeeID{"emp-1"}, 2026, time.March)
	require.NoError(t, err)
	assert.Equal(t, 2, sums["emp-1"].Version)
}

func TestSaveMonthDeduplicatesCompDays(t *testing.T) {
	s := New(time.UTC)
	ctx := context.Background()

	res := payroll.PayrollResult{
		EmployeeID: "emp-1", Year: 2026, Month: time.March,
		CompDaysEarned: []payroll.CompensatoryDay{
			{EmployeeID: "emp-1", EarnedDate: d(7, 0), Reason: payroll.CompShabbat},
		},
	}
	require.NoError(t, s.SaveMonth(ctx, res))
	require.NoError(t, s.SaveMonth(ctx, res)) // recompute

	days, err := s.CompensatoryDays(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, days, 1, "recomputing a month must not double-credit")
}

func TestHolidayByDatePrecedence(t *testing.T) {
	s := New(time.UTC)
	ctx := context.Background()

	// GIVEN a derived Shabbat row and a catalog holiday on the same date
	date := d(7, 0)
	s.PutHoliday(calendar.Holiday{Date: date, Name: "Shabbat", Kind: calendar.KindShabbat})
	s.PutHoliday(calendar.Holiday{Date: date, Name: "Pesach", Kind: calendar.KindRegular})

	h, err := s.HolidayByDate(ctx, date)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Pesach", h.Name, "catalog holiday outranks the derived row")
}

func TestReplaceYearIsWholesale(t *testing.T) {
	s := New(time.UTC)
	ctx := context.Background()

	s.PutHoliday(calendar.Holiday{Date: d(3, 0), Name: "Old", Kind: calendar.KindRegular})
	s.PutHoliday(calendar.Holiday{
		Date: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Name: "PriorYear", Kind: calendar.KindRegular,
	})

	require.NoError(t, s.ReplaceYear(ctx, 2026, []calendar.Holiday{
		{Date: d(10, 0), Name: "New", Kind: calendar.KindRegular},
	}))

	// 2026 rows were swapped; 2025 rows survived
	h, err := s.HolidayByDate(ctx, d(3, 0))
	require.NoError(t, err)
	assert.Nil(t, h)

	h, err = s.HolidayByDate(ctx, d(10, 0))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "New", h.Name)

	h, err = s.HolidayByDate(ctx, time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, h)
}
