/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence boundaries (worklog.Store, calendar.Store,
  payroll.EmployeeStore, payroll.Store) against one SQLite database. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INVARIANT ENFORCEMENT:
  The two hard shift invariants live here, inside the writing transaction:
  - idx_worklogs_open: unique partial index, at most one open non-deleted
    shift per employee
  - overlap check: SELECT against non-deleted rows before every insert or
    close, same transaction as the write

SOFT DELETE:
  Rows are never removed by domain writes; is_deleted=1 hides them. Every
  hot-path index carries WHERE is_deleted = 0, so deleted rows cost
  nothing on the paths that matter. The retention purge is the only
  DELETE on work_logs.

KEY TABLES:
  employees / salaries:           who gets paid, and how
  work_logs:                      the record of record for worked time
  holidays / sunset_records:      the time catalog's backing store
  daily_payroll_calculations:     derived, replaced on recompute
  monthly_payroll_summaries:      derived, last-writer-wins, versioned
  compensatory_days:              credits earned by rest-day work

TIMESTAMPS:
  Stored as UTC RFC3339 text so lexicographic comparison in SQL matches
  chronological order across DST transitions. Local-date columns
  (work_date, holiday date) store the YYYY-MM-DD of the engine timezone.

CONCURRENCY:
  WAL journal plus a sync.RWMutex around multi-statement writes. Multiple
  readers never block; writers serialize.

SEE ALSO:
  - worklog/store.go:  interface + overlap algorithm
  - store/memory:      in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/shiftwise/payroll-engine/calendar"
	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/worklog"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	loc *time.Location
	mu  sync.RWMutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// ephemeral database. loc is the engine timezone used for local-date
// columns.
func New(dbPath string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	s := &Store{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'employee',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS salaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		calculation_type TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'ILS',
		hourly_rate TEXT,
		base_salary TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		effective_from TEXT NOT NULL
	);

	-- At most one active salary per employee.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_salaries_active
		ON salaries(employee_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS work_logs (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		check_in TEXT NOT NULL,
		check_out TEXT,
		lat_in REAL, lng_in REAL,
		lat_out REAL, lng_out REAL,
		approved INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at TEXT,
		deleted_by TEXT NOT NULL DEFAULT '',
		long_shift_acknowledged INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: month scans per employee, live rows only.
	CREATE INDEX IF NOT EXISTS idx_worklogs_employee_checkin
		ON work_logs(employee_id, check_in) WHERE is_deleted = 0;

	-- At most one open non-deleted shift per employee.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_worklogs_open
		ON work_logs(employee_id) WHERE check_out IS NULL AND is_deleted = 0;

	-- Bulk month scans across employees.
	CREATE INDEX IF NOT EXISTS idx_worklogs_checkin
		ON work_logs(check_in) WHERE is_deleted = 0;

	-- Approval queue.
	CREATE INDEX IF NOT EXISTS idx_worklogs_unapproved
		ON work_logs(employee_id, check_in) WHERE approved = 0 AND is_deleted = 0;

	-- Retention purge scans only the deleted slice.
	CREATE INDEX IF NOT EXISTS idx_worklogs_deleted_at
		ON work_logs(deleted_at) WHERE is_deleted = 1;

	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		window_start TEXT,
		window_end TEXT,
		PRIMARY KEY (date, kind)
	);

	CREATE TABLE IF NOT EXISTS sunset_records (
		date TEXT NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		sunrise TEXT NOT NULL,
		sunset TEXT NOT NULL,
		is_estimated INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, lat, lng)
	);

	CREATE TABLE IF NOT EXISTS compensatory_days (
		employee_id TEXT NOT NULL REFERENCES employees(id),
		earned_date TEXT NOT NULL,
		reason TEXT NOT NULL,
		used_date TEXT,
		PRIMARY KEY (employee_id, earned_date)
	);

	CREATE INDEX IF NOT EXISTS idx_comp_days_unused
		ON compensatory_days(employee_id) WHERE used_date IS NULL;

	CREATE TABLE IF NOT EXISTS daily_payroll_calculations (
		employee_id TEXT NOT NULL,
		work_date TEXT NOT NULL,
		work_log_id TEXT NOT NULL,
		total_hours TEXT NOT NULL,
		regular_hours TEXT NOT NULL,
		overtime_hours TEXT NOT NULL,
		sabbath_hours TEXT NOT NULL,
		holiday_hours TEXT NOT NULL,
		gross TEXT NOT NULL,
		comp_earned INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (employee_id, work_date, work_log_id)
	);

	CREATE TABLE IF NOT EXISTS monthly_payroll_summaries (
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		total_hours TEXT NOT NULL,
		regular_hours TEXT NOT NULL,
		overtime_hours TEXT NOT NULL,
		sabbath_hours TEXT NOT NULL,
		holiday_hours TEXT NOT NULL,
		base_pay TEXT NOT NULL,
		total_pay TEXT NOT NULL,
		comp_days_earned INTEGER NOT NULL DEFAULT 0,
		calculation_date TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (employee_id, year, month)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WORKLOG STORE (worklog.Store interface)
// =============================================================================

// OpenShift inserts an open shift. The open-shift and overlap checks run
// inside the insert transaction.
func (s *Store) OpenShift(ctx context.Context, w worklog.WorkLog) (worklog.WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return worklog.WorkLog{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM work_logs WHERE employee_id = ? AND check_out IS NULL AND is_deleted = 0`,
		string(w.EmployeeID),
	).Scan(&existing)
	switch {
	case err == nil:
		return worklog.WorkLog{}, worklog.ErrOpenShiftExists
	case !errors.Is(err, sql.ErrNoRows):
		return worklog.WorkLog{}, err
	}

	if conflict, err := s.overlapConflict(ctx, tx, w.EmployeeID, w.ID, w.CheckIn, nil); err != nil {
		return worklog.WorkLog{}, err
	} else if conflict != "" {
		return worklog.WorkLog{}, &worklog.OverlapError{EmployeeID: w.EmployeeID, ConflictID: conflict}
	}

	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	if err := s.insertWorkLog(ctx, tx, w); err != nil {
		return worklog.WorkLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return worklog.WorkLog{}, err
	}
	return w, nil
}

// CloseShift sets check-out on the employee's open shift.
func (s *Store) CloseShift(ctx context.Context, employee worklog.EmployeeID, checkOut time.Time, loc *worklog.Location) (worklog.WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return worklog.WorkLog{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	open, err := s.queryOne(ctx, tx,
		`SELECT `+worklogColumns+` FROM work_logs
		 WHERE employee_id = ? AND check_out IS NULL AND is_deleted = 0`,
		string(employee),
	)
	if errors.Is(err, worklog.ErrNotFound) {
		return worklog.WorkLog{}, worklog.ErrNoOpenShift
	}
	if err != nil {
		return worklog.WorkLog{}, err
	}

	if conflict, err := s.overlapConflict(ctx, tx, employee, open.ID, open.CheckIn, &checkOut); err != nil {
		return worklog.WorkLog{}, err
	} else if conflict != "" {
		return worklog.WorkLog{}, &worklog.OverlapError{EmployeeID: employee, ConflictID: conflict}
	}

	open.CheckOut = &checkOut
	open.LocationOut = loc
	open.UpdatedAt = time.Now().UTC()

	var latOut, lngOut any
	if loc != nil {
		latOut, lngOut = loc.Lat, loc.Lng
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE work_logs SET check_out = ?, lat_out = ?, lng_out = ?, updated_at = ? WHERE id = ?`,
		fmtTime(checkOut), latOut, lngOut, fmtTime(open.UpdatedAt), string(open.ID),
	)
	if err != nil {
		return worklog.WorkLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return worklog.WorkLog{}, err
	}
	return open, nil
}

// SoftDelete hides a row. Idempotence: a second call reports
// ErrAlreadyDeleted without a write.
func (s *Store) SoftDelete(ctx context.Context, id worklog.WorkLogID, actor string) (worklog.WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return worklog.WorkLog{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	w, err := s.queryOne(ctx, tx,
		`SELECT `+worklogColumns+` FROM work_logs WHERE id = ?`, string(id))
	if err != nil {
		return worklog.WorkLog{}, err
	}
	if w.IsDeleted {
		return worklog.WorkLog{}, worklog.ErrAlreadyDeleted
	}

	now := time.Now().UTC()
	w.IsDeleted = true
	w.DeletedAt = &now
	w.DeletedBy = actor
	w.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`UPDATE work_logs SET is_deleted = 1, deleted_at = ?, deleted_by = ?, updated_at = ? WHERE id = ?`,
		fmtTime(now), actor, fmtTime(now), string(id),
	)
	if err != nil {
		return worklog.WorkLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return worklog.WorkLog{}, err
	}
	return w, nil
}

// Get returns a row regardless of deletion state.
func (s *Store) Get(ctx context.Context, id worklog.WorkLogID) (worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryOne(ctx, s.db,
		`SELECT `+worklogColumns+` FROM work_logs WHERE id = ?`, string(id))
}

// ListActive returns non-deleted rows matching the filter.
func (s *Store) ListActive(ctx context.Context, f worklog.Filter) ([]worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := filterQuery(f, false)
	return s.queryMany(ctx, query, args...)
}

// ListIncludingDeleted is the audit accessor.
func (s *Store) ListIncludingDeleted(ctx context.Context, f worklog.Filter) ([]worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := filterQuery(f, true)
	return s.queryMany(ctx, query, args...)
}

// ListForRange returns the employee's non-deleted shifts intersecting
// [start, end).
func (s *Store) ListForRange(ctx context.Context, employee worklog.EmployeeID, start, end time.Time) ([]worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMany(ctx,
		`SELECT `+worklogColumns+` FROM work_logs
		 WHERE employee_id = ? AND is_deleted = 0
		   AND check_in < ? AND (check_out IS NULL OR check_out > ?)
		 ORDER BY check_in ASC`,
		string(employee), fmtTime(end), fmtTime(start),
	)
}

// ListForRangeAll is the bulk loader's month scan: one query for the
// whole batch.
func (s *Store) ListForRangeAll(ctx context.Context, employees []worklog.EmployeeID, start, end time.Time) ([]worklog.WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + worklogColumns + ` FROM work_logs
		WHERE is_deleted = 0 AND check_in < ? AND (check_out IS NULL OR check_out > ?)`
	args := []any{fmtTime(end), fmtTime(start)}
	if len(employees) > 0 {
		query += ` AND employee_id IN (` + placeholders(len(employees)) + `)`
		for _, id := range employees {
			args = append(args, string(id))
		}
	}
	query += ` ORDER BY employee_id, check_in ASC`
	return s.queryMany(ctx, query, args...)
}

// BulkCreate inserts closed shifts in one transaction. With
// SkipValidation the per-row overlap check is skipped (certified-clean
// imports); the unique open-shift index still holds.
func (s *Store) BulkCreate(ctx context.Context, shifts []worklog.WorkLog, opts worklog.WriteOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range shifts {
		w := &shifts[i]
		if !opts.SkipValidation {
			conflict, cerr := s.overlapConflict(ctx, tx, w.EmployeeID, w.ID, w.CheckIn, w.CheckOut)
			if cerr != nil {
				return 0, cerr
			}
			if conflict != "" {
				return 0, &worklog.OverlapError{EmployeeID: w.EmployeeID, ConflictID: conflict}
			}
		}
		w.CreatedAt, w.UpdatedAt = now, now
		if err := s.insertWorkLog(ctx, tx, *w); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(shifts), nil
}

// PurgeDeletedBefore hard-deletes soft-deleted rows past retention. The
// only DELETE on work_logs.
func (s *Store) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM work_logs WHERE is_deleted = 1 AND deleted_at < ?`,
		fmtTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// overlapConflict runs the overlap algorithm against non-deleted rows.
// A nil end means the candidate is open and extends to +infinity.
func (s *Store) overlapConflict(ctx context.Context, q queryer, employee worklog.EmployeeID, exclude worklog.WorkLogID, start time.Time, end *time.Time) (worklog.WorkLogID, error) {
	query := `SELECT id FROM work_logs
		WHERE employee_id = ? AND is_deleted = 0 AND id != ?
		  AND (check_out IS NULL OR check_out > ?)`
	args := []any{string(employee), string(exclude), fmtTime(start)}
	if end != nil {
		query += ` AND check_in < ?`
		args = append(args, fmtTime(*end))
	}
	query += ` LIMIT 1`

	var id string
	err := q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return worklog.WorkLogID(id), nil
}

const worklogColumns = `id, employee_id, check_in, check_out, lat_in, lng_in, lat_out, lng_out,
	approved, is_deleted, deleted_at, deleted_by, long_shift_acknowledged, created_at, updated_at`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) insertWorkLog(ctx context.Context, tx *sql.Tx, w worklog.WorkLog) error {
	var latIn, lngIn, latOut, lngOut, checkOut any
	if w.LocationIn != nil {
		latIn, lngIn = w.LocationIn.Lat, w.LocationIn.Lng
	}
	if w.LocationOut != nil {
		latOut, lngOut = w.LocationOut.Lat, w.LocationOut.Lng
	}
	if w.CheckOut != nil {
		checkOut = fmtTime(*w.CheckOut)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO work_logs (`+worklogColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(w.ID), string(w.EmployeeID), fmtTime(w.CheckIn), checkOut,
		latIn, lngIn, latOut, lngOut,
		w.Approved, w.IsDeleted, nullTime(w.DeletedAt), w.DeletedBy,
		w.LongShiftAcknowledged, fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt),
	)
	if err != nil && isUniqueConstraintError(err) {
		return worklog.ErrOpenShiftExists
	}
	return err
}

func (s *Store) queryOne(ctx context.Context, q queryer, query string, args ...any) (worklog.WorkLog, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return worklog.WorkLog{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		return worklog.WorkLog{}, worklog.ErrNotFound
	}
	return scanWorkLog(rows)
}

func (s *Store) queryMany(ctx context.Context, query string, args ...any) ([]worklog.WorkLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []worklog.WorkLog
	for rows.Next() {
		w, err := scanWorkLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorkLog(rows *sql.Rows) (worklog.WorkLog, error) {
	var (
		w                              worklog.WorkLog
		id, employeeID                 string
		checkIn, createdAt, updatedAt  string
		checkOut, deletedAt            sql.NullString
		latIn, lngIn, latOut, lngOut   sql.NullFloat64
	)
	err := rows.Scan(&id, &employeeID, &checkIn, &checkOut,
		&latIn, &lngIn, &latOut, &lngOut,
		&w.Approved, &w.IsDeleted, &deletedAt, &w.DeletedBy,
		&w.LongShiftAcknowledged, &createdAt, &updatedAt)
	if err != nil {
		return w, fmt.Errorf("scan worklog: %w", err)
	}

	w.ID = worklog.WorkLogID(id)
	w.EmployeeID = worklog.EmployeeID(employeeID)
	w.CheckIn = parseTime(checkIn)
	if checkOut.Valid {
		t := parseTime(checkOut.String)
		w.CheckOut = &t
	}
	if latIn.Valid {
		w.LocationIn = &worklog.Location{Lat: latIn.Float64, Lng: lngIn.Float64}
	}
	if latOut.Valid {
		w.LocationOut = &worklog.Location{Lat: latOut.Float64, Lng: lngOut.Float64}
	}
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		w.DeletedAt = &t
	}
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return w, nil
}

func filterQuery(f worklog.Filter, includeDeleted bool) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !includeDeleted {
		conds = append(conds, "is_deleted = 0")
	}
	if f.EmployeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, string(f.EmployeeID))
	}
	if !f.From.IsZero() {
		conds = append(conds, "(check_out IS NULL OR check_out > ?)")
		args = append(args, fmtTime(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "check_in < ?")
		args = append(args, fmtTime(f.To))
	}
	if f.OpenOnly {
		conds = append(conds, "check_out IS NULL")
	}
	if f.Approved != nil {
		conds = append(conds, "approved = ?")
		args = append(args, *f.Approved)
	}

	query := `SELECT ` + worklogColumns + ` FROM work_logs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY check_in ASC`
	return query, args
}

// =============================================================================
// CALENDAR STORE (calendar.Store interface)
// =============================================================================

// HolidayByDate returns the stored holiday for a local date. When both a
// catalog holiday and a derived Shabbat row exist for the same date, the
// catalog holiday wins.
func (s *Store) HolidayByDate(ctx context.Context, date time.Time) (*calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, name, kind, window_start, window_end FROM holidays
		 WHERE date = ?
		 ORDER BY CASE kind WHEN 'shabbat' THEN 1 ELSE 0 END
		 LIMIT 1`,
		calendar.DateKey(date),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	h, err := s.scanHoliday(rows)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// HolidaysInRange returns stored holidays with Date in [start, end).
func (s *Store) HolidaysInRange(ctx context.Context, start, end time.Time) ([]calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, name, kind, window_start, window_end FROM holidays
		 WHERE date >= ? AND date < ?
		 ORDER BY date, CASE kind WHEN 'shabbat' THEN 1 ELSE 0 END`,
		calendar.DateKey(start), calendar.DateKey(end),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calendar.Holiday
	for rows.Next() {
		h, err := s.scanHoliday(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReplaceYear swaps the year's rows wholesale. The store mutex is the
// advisory lock: concurrent refreshes serialize here.
func (s *Store) ReplaceYear(ctx context.Context, year int, rows []calendar.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	yearStart := fmt.Sprintf("%04d-01-01", year)
	yearEnd := fmt.Sprintf("%04d-01-01", year+1)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM holidays WHERE date >= ? AND date < ?`, yearStart, yearEnd); err != nil {
		return err
	}

	for _, h := range rows {
		if h.Date.Year() != year {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO holidays (date, name, kind, window_start, window_end)
			 VALUES (?, ?, ?, ?, ?)`,
			calendar.DateKey(h.Date), h.Name, string(h.Kind),
			nullTime(h.Start), nullTime(h.End),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) scanHoliday(rows *sql.Rows) (calendar.Holiday, error) {
	var (
		h                    calendar.Holiday
		dateStr, kind        string
		winStart, winEnd     sql.NullString
	)
	if err := rows.Scan(&dateStr, &h.Name, &kind, &winStart, &winEnd); err != nil {
		return h, fmt.Errorf("scan holiday: %w", err)
	}
	d, _ := time.ParseInLocation("2006-01-02", dateStr, s.loc)
	h.Date = d
	h.Kind = calendar.HolidayKind(kind)
	if winStart.Valid {
		t := parseTime(winStart.String)
		h.Start = &t
	}
	if winEnd.Valid {
		t := parseTime(winEnd.String)
		h.End = &t
	}
	return h, nil
}

// SunTimes returns a persisted sunset record, or nil. Coordinates are
// rounded to two decimals, matching the cache key resolution.
func (s *Store) SunTimes(ctx context.Context, date time.Time, lat, lng float64) (*calendar.SunTimes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sunrise, sunset string
		estimated       bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT sunrise, sunset, is_estimated FROM sunset_records
		 WHERE date = ? AND lat = ? AND lng = ?`,
		calendar.DateKey(date), round2(lat), round2(lng),
	).Scan(&sunrise, &sunset, &estimated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &calendar.SunTimes{
		Date:        calendar.Midnight(date, s.loc),
		Sunrise:     parseTime(sunrise),
		Sunset:      parseTime(sunset),
		IsEstimated: estimated,
	}, nil
}

// PutSunTimes persists a sunset record (idempotent upsert).
func (s *Store) PutSunTimes(ctx context.Context, st calendar.SunTimes, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sunset_records (date, lat, lng, sunrise, sunset, is_estimated)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		calendar.DateKey(st.Date), round2(lat), round2(lng),
		fmtTime(st.Sunrise), fmtTime(st.Sunset), st.IsEstimated,
	)
	return err
}

// =============================================================================
// EMPLOYEE STORE (payroll.EmployeeStore interface)
// =============================================================================

// SaveEmployee upserts an employee record.
func (s *Store) SaveEmployee(ctx context.Context, e payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employees (id, name, role, active, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			active = excluded.active`,
		string(e.ID), e.Name, string(e.Role), e.Active, fmtTime(time.Now().UTC()),
	)
	return err
}

// SaveSalary activates a new salary row, deactivating any previous active
// row in the same transaction so the unique partial index never trips.
func (s *Store) SaveSalary(ctx context.Context, sal payroll.Salary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if sal.Active {
		if _, err := tx.ExecContext(ctx,
			`UPDATE salaries SET active = 0 WHERE employee_id = ? AND active = 1`,
			string(sal.EmployeeID)); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO salaries (employee_id, calculation_type, currency, hourly_rate, base_salary, active, effective_from)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(sal.EmployeeID), string(sal.CalculationType), sal.Currency,
		nullDecimal(sal.HourlyRate), nullDecimal(sal.BaseSalary),
		sal.Active, fmtTime(sal.EffectiveFrom),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListWithActiveSalary joins employees with their active salary row. A
// nil ids slice means all active employees. One query.
func (s *Store) ListWithActiveSalary(ctx context.Context, ids []worklog.EmployeeID) ([]payroll.EmployeeSalary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT e.id, e.name, e.role, e.active,
		       s.calculation_type, s.currency, s.hourly_rate, s.base_salary, s.effective_from
		FROM employees e
		LEFT JOIN salaries s ON s.employee_id = e.id AND s.active = 1
		WHERE e.active = 1`
	var args []any
	if len(ids) > 0 {
		query += ` AND e.id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, string(id))
		}
	}
	query += ` ORDER BY e.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.EmployeeSalary
	for rows.Next() {
		var (
			es                       payroll.EmployeeSalary
			id, name, role           string
			active                   bool
			calcType, currency       sql.NullString
			hourlyRate, baseSalary   sql.NullString
			effectiveFrom            sql.NullString
		)
		if err := rows.Scan(&id, &name, &role, &active,
			&calcType, &currency, &hourlyRate, &baseSalary, &effectiveFrom); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		es.Employee = payroll.Employee{
			ID:     worklog.EmployeeID(id),
			Name:   name,
			Role:   payroll.Role(role),
			Active: active,
		}
		if calcType.Valid {
			sal := payroll.Salary{
				EmployeeID:      es.Employee.ID,
				CalculationType: payroll.SalaryType(calcType.String),
				Currency:        currency.String,
				HourlyRate:      scanDecimal(hourlyRate),
				BaseSalary:      scanDecimal(baseSalary),
				Active:          true,
			}
			if effectiveFrom.Valid {
				sal.EffectiveFrom = parseTime(effectiveFrom.String)
			}
			es.Salary = &sal
		}
		out = append(out, es)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYROLL STORE (payroll.Store interface)
// =============================================================================

// SaveMonth persists one employee-month atomically: summary upsert with
// version increment, daily-row replacement, compensatory-day upserts.
func (s *Store) SaveMonth(ctx context.Context, res payroll.PayrollResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	sum := res.Summary()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO monthly_payroll_summaries
		 (employee_id, year, month, total_hours, regular_hours, overtime_hours,
		  sabbath_hours, holiday_hours, base_pay, total_pay, comp_days_earned,
		  calculation_date, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(employee_id, year, month) DO UPDATE SET
			total_hours = excluded.total_hours,
			regular_hours = excluded.regular_hours,
			overtime_hours = excluded.overtime_hours,
			sabbath_hours = excluded.sabbath_hours,
			holiday_hours = excluded.holiday_hours,
			base_pay = excluded.base_pay,
			total_pay = excluded.total_pay,
			comp_days_earned = excluded.comp_days_earned,
			calculation_date = excluded.calculation_date,
			version = monthly_payroll_summaries.version + 1`,
		string(sum.EmployeeID), sum.Year, int(sum.Month),
		sum.TotalHours.String(), sum.RegularHours.String(), sum.OvertimeHours.String(),
		sum.SabbathHours.String(), sum.HolidayHours.String(),
		sum.BasePay.String(), sum.TotalPay.String(),
		sum.CompDaysEarned, fmtTime(sum.CalculationDate),
	)
	if err != nil {
		return err
	}

	monthStart := fmt.Sprintf("%04d-%02d-01", res.Year, int(res.Month))
	next := time.Date(res.Year, res.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	monthEnd := fmt.Sprintf("%04d-%02d-01", next.Year(), int(next.Month()))
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM daily_payroll_calculations
		 WHERE employee_id = ? AND work_date >= ? AND work_date < ?`,
		string(res.EmployeeID), monthStart, monthEnd); err != nil {
		return err
	}

	for _, d := range res.Dailies {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO daily_payroll_calculations
			 (employee_id, work_date, work_log_id, total_hours, regular_hours,
			  overtime_hours, sabbath_hours, holiday_hours, gross, comp_earned)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(d.EmployeeID), calendar.DateKey(d.WorkDate), string(d.WorkLogID),
			d.TotalHours.String(), d.RegularHours.String(), d.OvertimeHours.String(),
			d.SabbathHours.String(), d.HolidayHours.String(),
			d.Gross.String(), d.CompEarned,
		)
		if err != nil {
			return err
		}
	}

	for _, c := range res.CompDaysEarned {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO compensatory_days (employee_id, earned_date, reason)
			 VALUES (?, ?, ?)
			 ON CONFLICT(employee_id, earned_date) DO UPDATE SET
				reason = excluded.reason
			 WHERE compensatory_days.used_date IS NULL`,
			string(c.EmployeeID), calendar.DateKey(c.EarnedDate), string(c.Reason),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// MonthlySummaries returns existing summaries for the batch in one query.
func (s *Store) MonthlySummaries(ctx context.Context, ids []worklog.EmployeeID, year int, month time.Month) (map[worklog.EmployeeID]payroll.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT employee_id, year, month, total_hours, regular_hours, overtime_hours,
		sabbath_hours, holiday_hours, base_pay, total_pay, comp_days_earned,
		calculation_date, version
		FROM monthly_payroll_summaries WHERE year = ? AND month = ?`
	args := []any{year, int(month)}
	if len(ids) > 0 {
		query += ` AND employee_id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, string(id))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[worklog.EmployeeID]payroll.MonthlySummary)
	for rows.Next() {
		var (
			m                                                      payroll.MonthlySummary
			id, calcDate                                           string
			monthInt                                               int
			totalH, regH, otH, sabH, holH, basePay, totalPay       string
		)
		if err := rows.Scan(&id, &m.Year, &monthInt, &totalH, &regH, &otH, &sabH, &holH,
			&basePay, &totalPay, &m.CompDaysEarned, &calcDate, &m.Version); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		m.EmployeeID = worklog.EmployeeID(id)
		m.Month = time.Month(monthInt)
		m.TotalHours = mustDecimal(totalH)
		m.RegularHours = mustDecimal(regH)
		m.OvertimeHours = mustDecimal(otH)
		m.SabbathHours = mustDecimal(sabH)
		m.HolidayHours = mustDecimal(holH)
		m.BasePay = mustDecimal(basePay)
		m.TotalPay = mustDecimal(totalPay)
		m.CalculationDate = parseTime(calcDate)
		out[m.EmployeeID] = m
	}
	return out, rows.Err()
}

// CompensatoryBalances returns unused credit counts in one query.
func (s *Store) CompensatoryBalances(ctx context.Context, ids []worklog.EmployeeID) (map[worklog.EmployeeID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT employee_id, COUNT(*) FROM compensatory_days WHERE used_date IS NULL`
	var args []any
	if len(ids) > 0 {
		query += ` AND employee_id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, string(id))
		}
	}
	query += ` GROUP BY employee_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[worklog.EmployeeID]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[worklog.EmployeeID(id)] = n
	}
	return out, rows.Err()
}

// CompensatoryDays lists an employee's credits, earned order.
func (s *Store) CompensatoryDays(ctx context.Context, id worklog.EmployeeID) ([]payroll.CompensatoryDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT employee_id, earned_date, reason, used_date
		 FROM compensatory_days WHERE employee_id = ? ORDER BY earned_date`,
		string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.CompensatoryDay
	for rows.Next() {
		var (
			c                  payroll.CompensatoryDay
			emp, earned, why   string
			used               sql.NullString
		)
		if err := rows.Scan(&emp, &earned, &why, &used); err != nil {
			return nil, err
		}
		c.EmployeeID = worklog.EmployeeID(emp)
		c.EarnedDate, _ = time.ParseInLocation("2006-01-02", earned, s.loc)
		c.Reason = payroll.CompReason(why)
		if used.Valid {
			t, _ := time.ParseInLocation("2006-01-02", used.String, s.loc)
			c.UsedDate = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// fmtTime truncates to seconds: RFC3339 with fixed width keeps string
// comparison identical to chronological order.
func fmtTime(t time.Time) string { return t.UTC().Truncate(time.Second).Format(time.RFC3339) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func mustDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// round2 rounds half away from zero so negative coordinates (southern
// latitudes, western longitudes) key the same as positive ones.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// compile-time interface checks
var (
	_ worklog.Store         = (*Store)(nil)
	_ calendar.Store        = (*Store)(nil)
	_ payroll.EmployeeStore = (*Store)(nil)
	_ payroll.Store         = (*Store)(nil)
)
