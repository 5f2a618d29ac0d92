/*
bulk.go - Batch payroll computation with bounded round-trips

PURPOSE:
  Runs the strategy over N employees for one month. The data-loading
  stage issues a fixed number of queries regardless of N:

    1. employees + active salaries (join)
    2. the month's worklogs for all requested employees
    3. the month's holiday rows (padded a day each side for spanning
       shifts)
    4. compensatory-day balances

  Everything after loading is pure CPU over in-memory structures, which
  is what makes the worker pool safe.

ADAPTIVE EXECUTION:
  Batches under the thread cutoff run sequentially; mid-size batches use
  a small pool; large batches use min(GOMAXPROCS, MaxWorkers) workers.
  Tests and callers inside an outer transaction pass UseParallel=false.

CACHING:
  Results live in the VersionedCache under monthly_summary:{id}:{y}:{m}
  with a one-hour TTL. A warm rerun reports cached_count == N and issues
  no per-employee computation.

FAILURE SEMANTICS:
  Per-employee failures are collected and the batch completes. A loading
  failure fails the whole batch with ErrBulkLoadFailed and mutates no
  cache entry.

SEE ALSO:
  - strategy.go: the per-employee computation
  - store.go:    loader contracts
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftwise/payroll-engine/cache"
	"github.com/shiftwise/payroll-engine/calendar"
	"github.com/shiftwise/payroll-engine/config"
	"github.com/shiftwise/payroll-engine/worklog"
)

// ErrBulkLoadFailed wraps a data-loading failure. The batch performed no
// computation and mutated no cache entry.
var ErrBulkLoadFailed = errors.New("bulk load failed")

// Flags steer one bulk run.
type Flags struct {
	UseCache        bool
	UseParallel     bool
	SaveToDB        bool
	InvalidateCache bool
	FastMode        bool
	Variant         Variant
	Deadline        time.Time // zero = none
}

// Failure records one employee the batch could not compute.
type Failure struct {
	EmployeeID worklog.EmployeeID `json:"employee_id"`
	Reason     string             `json:"reason"`
}

// BulkResult is the batch aggregate.
type BulkResult struct {
	Successful  int             `json:"successful"`
	Failed      int             `json:"failed"`
	CachedCount int             `json:"cached_count"`
	Results     []PayrollResult `json:"results"`
	Failures    []Failure       `json:"failures,omitempty"`
	Duration    time.Duration   `json:"duration"`
	Throughput  float64         `json:"throughput"` // employees per second
}

// BulkService is the only writer of persisted payroll aggregates.
type BulkService struct {
	employees EmployeeStore
	worklogs  worklog.Store
	payroll   Store
	catalog   *calendar.Catalog
	cache     *cache.Versioned
	cfg       config.Config
	log       zerolog.Logger
}

func NewBulkService(employees EmployeeStore, worklogs worklog.Store, payroll Store, catalog *calendar.Catalog, vc *cache.Versioned, cfg config.Config, log zerolog.Logger) *BulkService {
	return &BulkService{
		employees: employees,
		worklogs:  worklogs,
		payroll:   payroll,
		catalog:   catalog,
		cache:     vc,
		cfg:       cfg,
		log:       log.With().Str("component", "bulk").Logger(),
	}
}

// SummaryCacheKey is the logical cache key for one employee-month result.
func SummaryCacheKey(id worklog.EmployeeID, year int, month time.Month) string {
	return fmt.Sprintf("monthly_summary:%s:%d:%d", id, year, int(month))
}

// =============================================================================
// CALCULATE
// =============================================================================

// Calculate computes the month for the requested employees (nil = all
// active).
func (b *BulkService) Calculate(ctx context.Context, ids []worklog.EmployeeID, year int, month time.Month, flags Flags) (BulkResult, error) {
	started := time.Now()
	if !flags.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, flags.Deadline)
		defer cancel()
	}

	loaded, err := b.load(ctx, ids, year, month)
	if err != nil {
		return BulkResult{}, fmt.Errorf("%w: %v", ErrBulkLoadFailed, err)
	}

	if flags.InvalidateCache {
		for _, es := range loaded.employees {
			_ = b.cache.Delete(ctx, SummaryCacheKey(es.Employee.ID, year, month))
		}
	}

	strat := NewStrategy(flags.Variant, loaded.catalogView, b.cfg, b.log)

	outcomes := b.execute(ctx, loaded, strat, year, month, flags)

	res := BulkResult{}
	for _, o := range outcomes {
		switch {
		case o.failure != nil:
			res.Failed++
			res.Failures = append(res.Failures, *o.failure)
		default:
			res.Successful++
			if o.cached {
				res.CachedCount++
			}
			res.Results = append(res.Results, o.result)
		}
	}

	res.Duration = time.Since(started)
	if secs := res.Duration.Seconds(); secs > 0 {
		res.Throughput = float64(len(outcomes)) / secs
	}

	b.log.Info().
		Int("year", year).Int("month", int(month)).
		Int("successful", res.Successful).Int("failed", res.Failed).
		Int("cached", res.CachedCount).
		Dur("duration", res.Duration).
		Msg("bulk calculation complete")
	return res, nil
}

// =============================================================================
// LOADING - Fixed query count
// =============================================================================

type loadedBatch struct {
	employees   []EmployeeSalary
	worklogsBy  map[worklog.EmployeeID][]worklog.WorkLog
	compBy      map[worklog.EmployeeID]int
	catalogView *preloadedCatalog
}

func (b *BulkService) load(ctx context.Context, ids []worklog.EmployeeID, year int, month time.Month) (*loadedBatch, error) {
	loc := b.catalog.Location()
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	// Query 1: employees + salaries.
	employees, err := b.employees.ListWithActiveSalary(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}

	batchIDs := make([]worklog.EmployeeID, len(employees))
	for i, es := range employees {
		batchIDs[i] = es.Employee.ID
	}

	// Query 2: the month's worklogs for everyone.
	logs, err := b.worklogs.ListForRangeAll(ctx, batchIDs, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("load worklogs: %w", err)
	}
	byEmployee := make(map[worklog.EmployeeID][]worklog.WorkLog)
	for _, w := range logs {
		byEmployee[w.EmployeeID] = append(byEmployee[w.EmployeeID], w)
	}

	// Query 3: holidays, padded a day each side for midnight-spanning
	// shifts at the month boundary.
	holidays, err := b.catalog.HolidaysInRange(ctx, monthStart.AddDate(0, 0, -1), monthEnd.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}

	// Query 4: compensatory balances.
	comps, err := b.payroll.CompensatoryBalances(ctx, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("load compensatory balances: %w", err)
	}

	return &loadedBatch{
		employees:  employees,
		worklogsBy: byEmployee,
		compBy:     comps,
		catalogView: &preloadedCatalog{
			holidays: holidays,
			loc:      loc,
			candle:   b.cfg.CandleOffset,
			havdalah: b.cfg.HavdalahOffset,
		},
	}, nil
}

// =============================================================================
// EXECUTION - Adaptive sequential / pooled
// =============================================================================

type outcome struct {
	result  PayrollResult
	cached  bool
	failure *Failure
}

func (b *BulkService) execute(ctx context.Context, loaded *loadedBatch, strat Strategy, year int, month time.Month, flags Flags) []outcome {
	n := len(loaded.employees)
	outcomes := make([]outcome, n)

	workers := b.workerCount(n, flags.UseParallel)
	if workers <= 1 {
		for i := range loaded.employees {
			outcomes[i] = b.computeOne(ctx, loaded, strat, loaded.employees[i], year, month, flags)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = b.computeOne(ctx, loaded, strat, loaded.employees[i], year, month, flags)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

// workerCount is the adaptive executor: sequential below the thread
// cutoff, a small pool below the process cutoff, the full pool above.
func (b *BulkService) workerCount(n int, useParallel bool) int {
	if !useParallel || n < b.cfg.ThreadCutoff {
		return 1
	}
	full := runtime.GOMAXPROCS(0)
	if full > b.cfg.MaxWorkers {
		full = b.cfg.MaxWorkers
	}
	if n < b.cfg.ProcessCutoff {
		if full > 4 {
			return 4
		}
		return full
	}
	return full
}

func (b *BulkService) computeOne(ctx context.Context, loaded *loadedBatch, strat Strategy, es EmployeeSalary, year int, month time.Month, flags Flags) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{failure: &Failure{EmployeeID: es.Employee.ID, Reason: "deadline_exceeded"}}
	}

	key := SummaryCacheKey(es.Employee.ID, year, month)
	if flags.UseCache {
		var cached PayrollResult
		if hit, _ := b.cache.Get(ctx, key, &cached); hit {
			return outcome{result: cached, cached: true}
		}
	}

	in := Input{
		Employee:    es.Employee,
		Salary:      es.Salary,
		WorkLogs:    loaded.worklogsBy[es.Employee.ID],
		Year:        year,
		Month:       month,
		FastMode:    flags.FastMode,
		CompBalance: loaded.compBy[es.Employee.ID],
	}

	res, err := strat.Compute(ctx, in)
	if err != nil {
		if errors.Is(err, ErrNoActiveSalary) {
			// Structured "salary missing" outcome: zero amounts, the batch
			// continues, the employee is visible in failures.
			return outcome{failure: &Failure{EmployeeID: es.Employee.ID, Reason: "no_active_salary"}}
		}
		return outcome{failure: &Failure{EmployeeID: es.Employee.ID, Reason: err.Error()}}
	}

	if flags.SaveToDB {
		if err := b.payroll.SaveMonth(ctx, res); err != nil {
			return outcome{failure: &Failure{EmployeeID: es.Employee.ID, Reason: fmt.Sprintf("save: %v", err)}}
		}
	}
	if flags.UseCache {
		if err := b.cache.Set(ctx, key, res, b.cfg.MonthlySummaryTTL); err != nil {
			b.log.Warn().Err(err).Str("employee", string(es.Employee.ID)).Msg("summary cache write failed")
		}
	}
	return outcome{result: res}
}

// =============================================================================
// PRELOADED CATALOG - Pure in-memory DayCatalog for the batch
// =============================================================================

// preloadedCatalog serves the splitter from the single holiday query.
// Missing Shabbat rows fall back to the deterministic estimate window, so
// per-employee work never touches the database or the network.
type preloadedCatalog struct {
	holidays map[string]calendar.Holiday
	loc      *time.Location
	candle   time.Duration
	havdalah time.Duration
}

func (p *preloadedCatalog) Location() *time.Location { return p.loc }

func (p *preloadedCatalog) HolidayInfo(_ context.Context, date time.Time) (*calendar.Holiday, error) {
	if h, ok := p.holidays[calendar.DateKey(calendar.Midnight(date, p.loc))]; ok {
		return &h, nil
	}
	return nil, nil
}

func (p *preloadedCatalog) ShabbatWindow(_ context.Context, t time.Time) (calendar.Window, error) {
	fri := calendar.FridayOf(t, p.loc)
	if h, ok := p.holidays[calendar.DateKey(fri)]; ok && h.Kind == calendar.KindShabbat && h.Start != nil && h.End != nil {
		return calendar.Window{Start: *h.Start, End: *h.End}, nil
	}
	return calendar.DeriveWindow(
		calendar.EstimateSun(fri, p.loc),
		calendar.EstimateSun(fri.AddDate(0, 0, 1), p.loc),
		p.candle, p.havdalah,
	), nil
}
