/*
signals.go - Worklog change propagation

PURPOSE:
  Connects the worklog service's post-write hook to the task bus. Any
  create, close, or delete makes the affected employee's monthly summary
  stale, so the hook invalidates the cache entry synchronously (cheap,
  exact-key) and enqueues a recompute task for every month the shift
  touches. A shift spanning midnight on the last of the month dirties two
  months.

  Bulk imports write with BypassHooks and therefore never reach this
  path; the importer enqueues one recompute per affected month itself.

SEE ALSO:
  - worklog/service.go: hook dispatch
  - runner.go:          the consumer of TaskRecalculate
*/
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftwise/payroll-engine/cache"
	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/worklog"
)

// TaskRecalculate recomputes one employee-month.
const TaskRecalculate = "recalculate_monthly"

// RecalculateArgs is the task payload. Field order matters for the
// idempotency hash only insofar as it stays stable.
type RecalculateArgs struct {
	EmployeeID worklog.EmployeeID `json:"employee_id"`
	Year       int                `json:"year"`
	Month      time.Month         `json:"month"`
}

// Recalculator is the slice of the bulk service the recompute handler
// needs.
type Recalculator interface {
	Calculate(ctx context.Context, ids []worklog.EmployeeID, year int, month time.Month, flags payroll.Flags) (payroll.BulkResult, error)
}

// NewWorkLogHook returns the hook the worklog service dispatches to.
func NewWorkLogHook(runner *Runner, vc *cache.Versioned, loc *time.Location, log zerolog.Logger) worklog.Hook {
	l := log.With().Str("component", "signals").Logger()
	return func(ev worklog.Event) {
		for _, m := range ev.WorkLog.Months(loc) {
			key := payroll.SummaryCacheKey(ev.WorkLog.EmployeeID, m.Year, m.Month)
			if err := vc.Delete(context.Background(), key); err != nil {
				l.Warn().Err(err).Str("key", key).Msg("summary invalidation failed")
			}
			args := RecalculateArgs{EmployeeID: ev.WorkLog.EmployeeID, Year: m.Year, Month: m.Month}
			if err := runner.Enqueue(TaskRecalculate, args); err != nil {
				l.Error().Err(err).
					Str("employee", string(args.EmployeeID)).
					Int("year", args.Year).Int("month", int(args.Month)).
					Str("event", ev.Kind.String()).
					Msg("recompute enqueue failed")
			}
		}
	}
}

// RegisterRecalculate wires the recompute handler. The guard is
// non-date-based with a short debounce TTL (RecalcDebounceTTL, 30s by
// default): a burst of edits to the same month collapses into one
// recompute, while a later edit (after the marker expires or via fresh
// invalidation) recomputes again. A long-lived marker would suppress
// those later recomputes, since the key hashes the same
// (employee, year, month) every time.
func RegisterRecalculate(runner *Runner, recalc Recalculator, client cache.Client, debounce time.Duration, log zerolog.Logger) {
	guard := NewIdempotent(TaskRecalculate, client, debounce, log)
	runner.Register(TaskRecalculate, func(ctx context.Context, args any) error {
		ra, ok := args.(RecalculateArgs)
		if !ok {
			return fmt.Errorf("recalculate: bad args %T", args)
		}
		_, err := guard.Run(ctx, ra, func(ctx context.Context, _ any) error {
			_, cerr := recalc.Calculate(ctx, []worklog.EmployeeID{ra.EmployeeID}, ra.Year, ra.Month, payroll.Flags{
				UseCache:        true,
				SaveToDB:        true,
				InvalidateCache: true,
			})
			if cerr != nil {
				return Transient(cerr)
			}
			return nil
		})
		return err
	})
}
