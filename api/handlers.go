/*
handlers.go - HTTP handlers for the payroll engine

PURPOSE:
  Exposes the engine via REST. Handlers parse and validate input,
  delegate to the domain services, and map domain errors to HTTP status.
  No payroll arithmetic lives here.

ENDPOINTS:
  Worklogs:
    POST   /api/worklogs/check-in       Open a shift
    POST   /api/worklogs/check-out      Close the open shift
    DELETE /api/worklogs/{id}           Soft-delete a shift
    GET    /api/worklogs                List shifts (filters via query)
    POST   /api/worklogs/bulk           Import closed shifts

  Employees:
    GET    /api/employees               List with active salaries
    POST   /api/employees               Create employee (+salary)
    PUT    /api/employees/{id}/salary   Activate a new salary row
    GET    /api/employees/{id}/earnings Live month computation
    GET    /api/employees/{id}/comp-days Compensatory-day credits

  Payroll:
    POST   /api/payroll/calculate       Bulk month computation
    GET    /api/payroll/summaries       Persisted summaries for a month

  Calendar / admin:
    GET    /api/holidays                Stored holidays in a range
    POST   /api/admin/holidays/refresh  Re-fetch a year's table
    GET    /api/health

ERROR MAPPING:
  400 invalid input       409 invariant violations (open shift, overlap,
  404 not found               already deleted)
  422 salary config       500 everything else

SEE ALSO:
  - dto.go:    wire shapes
  - server.go: routing and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shiftwise/payroll-engine/calendar"
	"github.com/shiftwise/payroll-engine/config"
	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/worklog"
)

// Identifier resolves a terminal badge token (biometric or card) to an
// employee. Deployments without terminals leave it nil and send
// employee_id directly.
type Identifier interface {
	Identify(ctx context.Context, token string) (worklog.EmployeeID, error)
}

// Directory is the employee/salary write surface the API needs.
type Directory interface {
	payroll.EmployeeStore
	SaveEmployee(ctx context.Context, e payroll.Employee) error
	SaveSalary(ctx context.Context, s payroll.Salary) error
}

// Refresher triggers a holiday-table refresh.
type Refresher interface {
	RefreshYear(ctx context.Context, year int) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Worklogs   *worklog.Service
	Bulk       *payroll.BulkService
	Payroll    payroll.Store
	Directory  Directory
	Catalog    *calendar.Catalog
	Refresher  Refresher
	Identifier Identifier // optional
	Cfg        config.Config
	Log        zerolog.Logger
}

// =============================================================================
// WORKLOG HANDLERS
// =============================================================================

// CheckIn opens a shift.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	employee, ok := h.resolveEmployee(w, r, req.EmployeeID, req.BadgeToken)
	if !ok {
		return
	}

	at := time.Now()
	if req.At != nil {
		at = *req.At
	}

	created, err := h.Worklogs.OpenShift(r.Context(), employee, at, toLocation(req.Location),
		req.LongShiftAcknowledged, worklog.WriteOptions{Actor: actor(r)})
	if err != nil {
		writeWorklogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkLogDTO(created))
}

// CheckOut closes the employee's open shift.
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req CheckOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	employee, ok := h.resolveEmployee(w, r, req.EmployeeID, req.BadgeToken)
	if !ok {
		return
	}

	at := time.Now()
	if req.At != nil {
		at = *req.At
	}

	closed, err := h.Worklogs.CloseShift(r.Context(), employee, at, toLocation(req.Location),
		worklog.WriteOptions{Actor: actor(r)})
	if err != nil {
		writeWorklogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkLogDTO(closed))
}

// DeleteWorkLog soft-deletes a shift.
func (h *Handler) DeleteWorkLog(w http.ResponseWriter, r *http.Request) {
	id := worklog.WorkLogID(chi.URLParam(r, "id"))

	deleted, err := h.Worklogs.SoftDelete(r.Context(), id, worklog.WriteOptions{Actor: actor(r)})
	if err != nil {
		writeWorklogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkLogDTO(deleted))
}

// ListWorkLogs lists shifts. include_deleted=true uses the audit
// accessor.
func (h *Handler) ListWorkLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := worklog.Filter{
		EmployeeID: worklog.EmployeeID(q.Get("employee_id")),
		OpenOnly:   q.Get("open_only") == "true",
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from", err)
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to", err)
			return
		}
		f.To = t
	}

	var (
		logs []worklog.WorkLog
		err  error
	)
	if q.Get("include_deleted") == "true" {
		logs, err = h.Worklogs.Store().ListIncludingDeleted(r.Context(), f)
	} else {
		logs, err = h.Worklogs.ListActive(r.Context(), f)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list worklogs", err)
		return
	}

	dtos := make([]WorkLogDTO, len(logs))
	for i, l := range logs {
		dtos[i] = toWorkLogDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// BulkCreateWorkLogs imports closed shifts.
func (h *Handler) BulkCreateWorkLogs(w http.ResponseWriter, r *http.Request) {
	var req BulkShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Shifts) == 0 {
		writeError(w, http.StatusBadRequest, "no shifts provided", nil)
		return
	}

	shifts := make([]worklog.WorkLog, len(req.Shifts))
	for i, e := range req.Shifts {
		out := e.CheckOut
		shifts[i] = worklog.WorkLog{
			ID:                    worklog.NewWorkLogID(),
			EmployeeID:            worklog.EmployeeID(e.EmployeeID),
			CheckIn:               e.CheckIn.UTC(),
			CheckOut:              &out,
			LocationIn:            toLocation(e.Location),
			LongShiftAcknowledged: e.LongShiftAcknowledged,
		}
	}

	created, err := h.Worklogs.BulkCreate(r.Context(), shifts, worklog.WriteOptions{
		SkipValidation: req.SkipValidation,
		Actor:          actor(r),
	})
	if err != nil {
		writeWorklogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BulkShiftResponse{Created: created})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns active employees with their active salaries.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	list, err := h.Directory.ListWithActiveSalary(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(list))
	for i, es := range list {
		dtos[i] = toEmployeeDTO(es)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee creates an employee, optionally with an initial salary.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	role := payroll.Role(req.Role)
	if role == "" {
		role = payroll.RoleEmployee
	}

	emp := payroll.Employee{
		ID:     worklog.EmployeeID(id),
		Name:   req.Name,
		Role:   role,
		Active: true,
	}
	if err := h.Directory.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save employee", err)
		return
	}

	if req.Salary != nil {
		sal, err := h.parseSalary(emp.ID, *req.Salary)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid salary", err)
			return
		}
		if err := h.Directory.SaveSalary(r.Context(), sal); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save salary", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, EmployeeDTO{
		ID: id, Name: emp.Name, Role: string(emp.Role), Active: true, Salary: req.Salary,
	})
}

// SetSalary activates a new salary row for the employee.
func (h *Handler) SetSalary(w http.ResponseWriter, r *http.Request) {
	id := worklog.EmployeeID(chi.URLParam(r, "id"))

	var req SalaryDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	sal, err := h.parseSalary(id, req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid salary", err)
		return
	}
	if err := h.Directory.SaveSalary(r.Context(), sal); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save salary", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) parseSalary(id worklog.EmployeeID, dto SalaryDTO) (payroll.Salary, error) {
	sal := payroll.Salary{
		EmployeeID:      id,
		CalculationType: payroll.SalaryType(dto.CalculationType),
		Currency:        dto.Currency,
		Active:          true,
		EffectiveFrom:   time.Now(),
	}
	if sal.Currency == "" {
		sal.Currency = "ILS"
	}
	if dto.EffectiveFrom != "" {
		t, err := time.ParseInLocation("2006-01-02", dto.EffectiveFrom, h.Catalog.Location())
		if err != nil {
			return payroll.Salary{}, err
		}
		sal.EffectiveFrom = t
	}
	if dto.HourlyRate != nil {
		d, err := decimal.NewFromString(*dto.HourlyRate)
		if err != nil {
			return payroll.Salary{}, err
		}
		sal.HourlyRate = &d
	}
	if dto.BaseSalary != nil {
		d, err := decimal.NewFromString(*dto.BaseSalary)
		if err != nil {
			return payroll.Salary{}, err
		}
		sal.BaseSalary = &d
	}
	if _, err := sal.Validate(); err != nil {
		return payroll.Salary{}, err
	}
	return sal, nil
}

// Earnings computes the requested month live for one employee (defaults
// to the current month). Uncached, unsaved: the employee-facing "what
// have I earned so far" view.
func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	id := worklog.EmployeeID(chi.URLParam(r, "id"))
	year, month, ok := h.yearMonth(w, r)
	if !ok {
		return
	}

	res, err := h.Bulk.Calculate(r.Context(), []worklog.EmployeeID{id}, year, month, payroll.Flags{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "calculation failed", err)
		return
	}
	if len(res.Results) == 0 {
		if len(res.Failures) > 0 {
			writeError(w, http.StatusUnprocessableEntity, res.Failures[0].Reason, nil)
			return
		}
		writeError(w, http.StatusNotFound, "employee not found", nil)
		return
	}

	out := EarningsResponse{
		Result:         res.Results[0],
		CompDayBalance: res.Results[0].CompDayBalance,
	}
	open, err := h.Worklogs.ListActive(r.Context(), worklog.Filter{EmployeeID: id, OpenOnly: true})
	if err == nil && len(open) > 0 {
		dto := toWorkLogDTO(open[0])
		out.OpenShift = &dto
	}
	writeJSON(w, http.StatusOK, out)
}

// CompDays lists an employee's compensatory-day credits.
func (h *Handler) CompDays(w http.ResponseWriter, r *http.Request) {
	id := worklog.EmployeeID(chi.URLParam(r, "id"))

	days, err := h.Payroll.CompensatoryDays(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list compensatory days", err)
		return
	}
	dtos := make([]CompDayDTO, len(days))
	for i, c := range days {
		dtos[i] = toCompDayDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// Calculate runs the bulk computation for a month.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Year < 2000 || req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "invalid year/month", nil)
		return
	}

	var ids []worklog.EmployeeID
	for _, s := range req.EmployeeIDs {
		ids = append(ids, worklog.EmployeeID(s))
	}

	flags := payroll.Flags{
		UseCache:        boolOr(req.UseCache, true),
		UseParallel:     boolOr(req.UseParallel, true),
		SaveToDB:        req.SaveToDB,
		InvalidateCache: req.InvalidateCache,
		FastMode:        req.FastMode,
		Variant:         payroll.Variant(req.Strategy),
	}
	if flags.Variant == "" {
		flags.Variant = payroll.VariantEnhanced
	}

	res, err := h.Bulk.Calculate(r.Context(), ids, req.Year, time.Month(req.Month), flags)
	if err != nil {
		if errors.Is(err, payroll.ErrBulkLoadFailed) {
			writeError(w, http.StatusServiceUnavailable, "bulk load failed", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "calculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Summaries returns persisted monthly summaries.
func (h *Handler) Summaries(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.yearMonth(w, r)
	if !ok {
		return
	}

	sums, err := h.Payroll.MonthlySummaries(r.Context(), nil, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load summaries", err)
		return
	}
	out := make([]payroll.MonthlySummary, 0, len(sums))
	for _, s := range sums {
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// CALENDAR / ADMIN HANDLERS
// =============================================================================

// ListHolidays returns stored holidays in [from, to).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	loc := h.Catalog.Location()
	q := r.URL.Query()

	from, err := time.ParseInLocation("2006-01-02", q.Get("from"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date", err)
		return
	}
	to, err := time.ParseInLocation("2006-01-02", q.Get("to"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date", err)
		return
	}

	rows, err := h.Catalog.HolidaysInRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load holidays", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// RefreshHolidays re-fetches a year's holiday table.
func (h *Handler) RefreshHolidays(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Year int `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Year < 2000 {
		writeError(w, http.StatusBadRequest, "invalid year", err)
		return
	}
	if err := h.Refresher.RefreshYear(r.Context(), req.Year); err != nil {
		writeError(w, http.StatusBadGateway, "holiday refresh failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports liveness plus the active cache version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		CacheVersion: h.Cfg.CacheVersion,
		Time:         time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) resolveEmployee(w http.ResponseWriter, r *http.Request, id, token string) (worklog.EmployeeID, bool) {
	switch {
	case id != "":
		return worklog.EmployeeID(id), true
	case token != "":
		if h.Identifier == nil {
			writeError(w, http.StatusBadRequest, "badge identification not configured", nil)
			return "", false
		}
		employee, err := h.Identifier.Identify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown badge", err)
			return "", false
		}
		return employee, true
	default:
		writeError(w, http.StatusBadRequest, "employee_id or badge_token required", nil)
		return "", false
	}
}

func (h *Handler) yearMonth(w http.ResponseWriter, r *http.Request) (int, time.Month, bool) {
	now := time.Now().In(h.Catalog.Location())
	year, month := now.Year(), now.Month()

	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year", err)
			return 0, 0, false
		}
		year = n
	}
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			writeError(w, http.StatusBadRequest, "invalid month", err)
			return 0, 0, false
		}
		month = time.Month(n)
	}
	return year, month, true
}

func toLocation(l *LocationDTO) *worklog.Location {
	if l == nil {
		return nil
	}
	return &worklog.Location{Lat: l.Lat, Lng: l.Lng}
}

// actor extracts the acting user for audit columns. Auth is out of scope;
// the header is trusted infrastructure input.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

func writeWorklogError(w http.ResponseWriter, err error) {
	var overlap *worklog.OverlapError
	switch {
	case errors.Is(err, worklog.ErrNotFound):
		writeError(w, http.StatusNotFound, "worklog not found", nil)
	case errors.Is(err, worklog.ErrOpenShiftExists):
		writeError(w, http.StatusConflict, "already checked in", nil)
	case errors.Is(err, worklog.ErrNoOpenShift):
		writeError(w, http.StatusConflict, "not currently checked in", nil)
	case errors.Is(err, worklog.ErrAlreadyDeleted):
		writeError(w, http.StatusConflict, "worklog already deleted", nil)
	case errors.As(err, &overlap):
		writeError(w, http.StatusConflict, "shift overlaps an existing worklog", err)
	case errors.Is(err, worklog.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "check-out must be after check-in", nil)
	case errors.Is(err, worklog.ErrShiftTooLong):
		writeError(w, http.StatusBadRequest, "shift exceeds maximum length without acknowledgement", nil)
	default:
		writeError(w, http.StatusInternalServerError, "worklog operation failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
