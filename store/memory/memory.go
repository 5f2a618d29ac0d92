/*
Package memory provides map-backed implementations of the storage
interfaces for tests and demos.

PURPOSE:
  Same contracts, same invariants as store/sqlite - the open-shift and
  overlap checks run under the store mutex exactly as the SQL versions
  run inside their transactions - without a database file. Tests that
  exercise invariant behavior can run against either implementation.

SEE ALSO:
  - store/sqlite: the production implementation
  - worklog/store.go: the contract both implement
*/
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shiftwise/payroll-engine/calendar"
	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/worklog"
)

// Store implements all storage interfaces in memory.
type Store struct {
	mu  sync.RWMutex
	loc *time.Location

	worklogs  map[worklog.WorkLogID]worklog.WorkLog
	employees map[worklog.EmployeeID]payroll.Employee
	salaries  map[worklog.EmployeeID]payroll.Salary
	holidays  map[string][]calendar.Holiday // by DateKey
	sun       map[string]calendar.SunTimes  // by DateKey:lat:lng
	summaries map[summaryKey]payroll.MonthlySummary
	dailies   map[worklog.EmployeeID][]payroll.DailyCalculation
	compDays  map[worklog.EmployeeID][]payroll.CompensatoryDay
}

type summaryKey struct {
	employee worklog.EmployeeID
	year     int
	month    time.Month
}

func New(loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		loc:       loc,
		worklogs:  make(map[worklog.WorkLogID]worklog.WorkLog),
		employees: make(map[worklog.EmployeeID]payroll.Employee),
		salaries:  make(map[worklog.EmployeeID]payroll.Salary),
		holidays:  make(map[string][]calendar.Holiday),
		sun:       make(map[string]calendar.SunTimes),
		summaries: make(map[summaryKey]payroll.MonthlySummary),
		dailies:   make(map[worklog.EmployeeID][]payroll.DailyCalculation),
		compDays:  make(map[worklog.EmployeeID][]payroll.CompensatoryDay),
	}
}

// =============================================================================
// WORKLOG STORE
// =============================================================================

func (s *Store) OpenShift(_ context.Context, w worklog.WorkLog) (worklog.WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.worklogs {
		if r.EmployeeID != w.EmployeeID || r.IsDeleted {
			continue
		}
		if r.IsOpen() {
			return worklog.WorkLog{}, worklog.ErrOpenShiftExists
		}
		if r.Overlaps(w.CheckIn, nil) {
			return worklog.WorkLog{}, &worklog.OverlapError{EmployeeID: w.EmployeeID, ConflictID: r.ID}
		}
	}

	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	s.worklogs[w.ID] = w
	return w, nil
}

func (s *Store) CloseShift(_ context.Context, employee worklog.EmployeeID, checkOut time.Time, loc *worklog.Location) (worklog.WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open *worklog.WorkLog
	for id := range s.worklogs {
		r := s.worklogs[id]
		if r.EmployeeID == employee && !r.IsDeleted && r.IsOpen() {
			open = &r
			break
		}
	}
	if open == nil {
		return worklog.WorkLog{}, worklog.ErrNoOpenShift
	}

	for _, r := range s.worklogs {
		if r.EmployeeID != employee || r.IsDeleted || r.ID == open.ID {
			continue
		}
		if r.Overlaps(open.CheckIn, &checkOut) {
			return worklog.WorkLog{}, &worklog.OverlapError{EmployeeID: employee, ConflictID: r.ID}
		}
	}

	open.CheckOut = &checkOut
	open.LocationOut = loc
	open.UpdatedAt = time.Now().UTC()
	s.worklogs[open.ID] = *open
	return *open, nil
}

func (s *Store) SoftDelete(_ context.Context, id worklog.WorkLogID, actor string) (worklog.WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.worklogs[id]
	if !ok {
		return worklog.WorkLog{}, worklog.ErrNotFound
	}
	if w.IsDeleted {
		return worklog.WorkLog{}, worklog.ErrAlreadyDeleted
	}

	now := time.Now().UTC()
	w.IsDeleted = true
	w.DeletedAt = &now
	w.DeletedBy = actor
	w.UpdatedAt = now
	s.worklogs[id] = w
	return w, nil
}

func (s *Store) Get(_ context.Context, id worklog.WorkLogID) (worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.worklogs[id]
	if !ok {
		return worklog.WorkLog{}, worklog.ErrNotFound
	}
	return w, nil
}

func (s *Store) ListActive(_ context.Context, f worklog.Filter) ([]worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(f, false), nil
}

func (s *Store) ListIncludingDeleted(_ context.Context, f worklog.Filter) ([]worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(f, true), nil
}

func (s *Store) list(f worklog.Filter, includeDeleted bool) []worklog.WorkLog {
	var out []worklog.WorkLog
	for _, w := range s.worklogs {
		if w.IsDeleted && !includeDeleted {
			continue
		}
		if f.EmployeeID != "" && w.EmployeeID != f.EmployeeID {
			continue
		}
		if f.OpenOnly && !w.IsOpen() {
			continue
		}
		if f.Approved != nil && w.Approved != *f.Approved {
			continue
		}
		if !f.From.IsZero() && w.CheckOut != nil && !w.CheckOut.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !w.CheckIn.Before(f.To) {
			continue
		}
		out = append(out, w)
	}
	sortByCheckIn(out)
	return out
}

func (s *Store) ListForRange(_ context.Context, employee worklog.EmployeeID, start, end time.Time) ([]worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []worklog.WorkLog
	for _, w := range s.worklogs {
		if w.EmployeeID != employee || w.IsDeleted {
			continue
		}
		if w.Overlaps(start, &end) {
			out = append(out, w)
		}
	}
	sortByCheckIn(out)
	return out, nil
}

func (s *Store) ListForRangeAll(_ context.Context, employees []worklog.EmployeeID, start, end time.Time) ([]worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wanted map[worklog.EmployeeID]bool
	if len(employees) > 0 {
		wanted = make(map[worklog.EmployeeID]bool, len(employees))
		for _, id := range employees {
			wanted[id] = true
		}
	}

	var out []worklog.WorkLog
	for _, w := range s.worklogs {
		if w.IsDeleted {
			continue
		}
		if wanted != nil && !wanted[w.EmployeeID] {
			continue
		}
		if w.Overlaps(start, &end) {
			out = append(out, w)
		}
	}
	sortByCheckIn(out)
	return out, nil
}

func (s *Store) BulkCreate(_ context.Context, shifts []worklog.WorkLog, opts worklog.WriteOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !opts.SkipValidation {
		for _, w := range shifts {
			for _, r := range s.worklogs {
				if r.EmployeeID != w.EmployeeID || r.IsDeleted {
					continue
				}
				if r.Overlaps(w.CheckIn, w.CheckOut) {
					return 0, &worklog.OverlapError{EmployeeID: w.EmployeeID, ConflictID: r.ID}
				}
			}
		}
	}

	now := time.Now().UTC()
	for _, w := range shifts {
		w.CreatedAt, w.UpdatedAt = now, now
		s.worklogs[w.ID] = w
	}
	return len(shifts), nil
}

func (s *Store) PurgeDeletedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, w := range s.worklogs {
		if w.IsDeleted && w.DeletedAt != nil && w.DeletedAt.Before(cutoff) {
			delete(s.worklogs, id)
			n++
		}
	}
	return n, nil
}

func sortByCheckIn(ws []worklog.WorkLog) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].CheckIn.Equal(ws[j].CheckIn) {
			return ws[i].ID < ws[j].ID
		}
		return ws[i].CheckIn.Before(ws[j].CheckIn)
	})
}

// =============================================================================
// CALENDAR STORE
// =============================================================================

func (s *Store) HolidayByDate(_ context.Context, date time.Time) (*calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.holidays[calendar.DateKey(calendar.Midnight(date, s.loc))]
	if len(rows) == 0 {
		return nil, nil
	}
	// Catalog holiday outranks the derived Shabbat row.
	for _, h := range rows {
		if h.Kind != calendar.KindShabbat {
			out := h
			return &out, nil
		}
	}
	out := rows[0]
	return &out, nil
}

func (s *Store) HolidaysInRange(_ context.Context, start, end time.Time) ([]calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []calendar.Holiday
	for d := calendar.Midnight(start, s.loc); d.Before(end); d = d.AddDate(0, 0, 1) {
		out = append(out, s.holidays[calendar.DateKey(d)]...)
	}
	return out, nil
}

func (s *Store) ReplaceYear(_ context.Context, year int, rows []calendar.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, hs := range s.holidays {
		if len(hs) > 0 && hs[0].Date.Year() == year {
			delete(s.holidays, key)
		}
	}
	for _, h := range rows {
		if h.Date.Year() != year {
			continue
		}
		key := calendar.DateKey(h.Date)
		s.holidays[key] = append(s.holidays[key], h)
	}
	return nil
}

// PutHoliday inserts a single row (test seeding).
func (s *Store) PutHoliday(h calendar.Holiday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := calendar.DateKey(h.Date)
	s.holidays[key] = append(s.holidays[key], h)
}

func (s *Store) SunTimes(_ context.Context, date time.Time, lat, lng float64) (*calendar.SunTimes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sun[sunKey(date, lat, lng, s.loc)]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) PutSunTimes(_ context.Context, st calendar.SunTimes, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sun[sunKey(st.Date, lat, lng, s.loc)] = st
	return nil
}

func sunKey(date time.Time, lat, lng float64, loc *time.Location) string {
	return calendar.DateKey(calendar.Midnight(date, loc)) +
		":" + trim2(lat) + ":" + trim2(lng)
}

func trim2(f float64) string {
	return strconv.FormatInt(int64(f*100+0.5), 10)
}

// =============================================================================
// EMPLOYEE + PAYROLL STORES
// =============================================================================

func (s *Store) SaveEmployee(_ context.Context, e payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
	return nil
}

func (s *Store) SaveSalary(_ context.Context, sal payroll.Salary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salaries[sal.EmployeeID] = sal
	return nil
}

func (s *Store) ListWithActiveSalary(_ context.Context, ids []worklog.EmployeeID) ([]payroll.EmployeeSalary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ids == nil {
		for id := range s.employees {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	var out []payroll.EmployeeSalary
	for _, id := range ids {
		e, ok := s.employees[id]
		if !ok || !e.Active {
			continue
		}
		es := payroll.EmployeeSalary{Employee: e}
		if sal, ok := s.salaries[id]; ok && sal.Active {
			cp := sal
			es.Salary = &cp
		}
		out = append(out, es)
	}
	return out, nil
}

func (s *Store) SaveMonth(_ context.Context, res payroll.PayrollResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := summaryKey{employee: res.EmployeeID, year: res.Year, month: res.Month}
	sum := res.Summary()
	if prev, ok := s.summaries[key]; ok {
		sum.Version = prev.Version + 1
	} else {
		sum.Version = 1
	}
	s.summaries[key] = sum

	// Replace the month's daily rows.
	kept := s.dailies[res.EmployeeID][:0]
	for _, d := range s.dailies[res.EmployeeID] {
		if d.WorkDate.Year() != res.Year || d.WorkDate.Month() != res.Month {
			kept = append(kept, d)
		}
	}
	s.dailies[res.EmployeeID] = append(kept, res.Dailies...)

	for _, c := range res.CompDaysEarned {
		exists := false
		for _, have := range s.compDays[c.EmployeeID] {
			if calendar.SameDate(have.EarnedDate, c.EarnedDate, s.loc) {
				exists = true
				break
			}
		}
		if !exists {
			s.compDays[c.EmployeeID] = append(s.compDays[c.EmployeeID], c)
		}
	}
	return nil
}

func (s *Store) MonthlySummaries(_ context.Context, ids []worklog.EmployeeID, year int, month time.Month) (map[worklog.EmployeeID]payroll.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[worklog.EmployeeID]payroll.MonthlySummary)
	for _, id := range ids {
		if sum, ok := s.summaries[summaryKey{employee: id, year: year, month: month}]; ok {
			out[id] = sum
		}
	}
	return out, nil
}

func (s *Store) CompensatoryBalances(_ context.Context, ids []worklog.EmployeeID) (map[worklog.EmployeeID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[worklog.EmployeeID]int)
	count := func(id worklog.EmployeeID) {
		for _, c := range s.compDays[id] {
			if c.UsedDate == nil {
				out[id]++
			}
		}
	}
	if ids == nil {
		for id := range s.compDays {
			count(id)
		}
		return out, nil
	}
	for _, id := range ids {
		count(id)
	}
	return out, nil
}

func (s *Store) CompensatoryDays(_ context.Context, id worklog.EmployeeID) ([]payroll.CompensatoryDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]payroll.CompensatoryDay(nil), s.compDays[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedDate.Before(out[j].EarnedDate) })
	return out, nil
}

// Dailies returns the stored daily rows for assertions.
func (s *Store) Dailies(id worklog.EmployeeID) []payroll.DailyCalculation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]payroll.DailyCalculation(nil), s.dailies[id]...)
}

// compile-time interface checks
var (
	_ worklog.Store         = (*Store)(nil)
	_ calendar.Store        = (*Store)(nil)
	_ payroll.EmployeeStore = (*Store)(nil)
	_ payroll.Store         = (*Store)(nil)
)
