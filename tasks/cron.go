/*
cron.go - Scheduled jobs

PURPOSE:
  Two standing jobs, both idempotent and date-guarded so an overlapping
  restart does not run them twice in one day:

    retention purge   03:30 daily   hard-delete soft-deleted shifts past
                                    the retention window
    holiday refresh   02:00 Dec 1   fetch and store next year's holiday
                                    table (plus derived Shabbat rows)

  Schedules run in the engine's configured timezone.

SEE ALSO:
  - calendar/catalog.go: RefreshYear
  - worklog/store.go:    PurgeDeletedBefore
*/
package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/shiftwise/payroll-engine/cache"
	"github.com/shiftwise/payroll-engine/config"
	"github.com/shiftwise/payroll-engine/worklog"
)

// HolidayRefresher is the catalog slice the refresh job needs.
type HolidayRefresher interface {
	RefreshYear(ctx context.Context, year int) error
}

// Purger is the worklog-store slice the retention job needs.
type Purger interface {
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Scheduler owns the cron instance and the job closures.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func NewScheduler(cfg config.Config, client cache.Client, refresher HolidayRefresher, purger Purger, log zerolog.Logger) *Scheduler {
	l := log.With().Str("component", "scheduler").Logger()
	c := cron.New(cron.WithLocation(cfg.Location()))

	purgeGuard := NewIdempotent("retention_purge", client, cfg.CleanupGuardTTL, l, DateBased())
	refreshGuard := NewIdempotent("holiday_refresh", client, cfg.IdempotencyTTL, l, DateBased())

	mustAdd(c, l, "30 3 * * *", "retention_purge", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		_, err := purgeGuard.Run(ctx, struct{}{}, func(ctx context.Context, _ any) error {
			cutoff := time.Now().Add(-cfg.DeletedRetention)
			n, perr := purger.PurgeDeletedBefore(ctx, cutoff)
			if perr != nil {
				return perr
			}
			l.Info().Int("purged", n).Time("cutoff", cutoff).Msg("retention purge complete")
			return nil
		})
		if err != nil {
			l.Error().Err(err).Msg("retention purge failed")
		}
	})

	mustAdd(c, l, "0 2 1 12 *", "holiday_refresh", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		year := time.Now().In(cfg.Location()).Year() + 1
		_, err := refreshGuard.Run(ctx, map[string]int{"year": year}, func(ctx context.Context, _ any) error {
			return refresher.RefreshYear(ctx, year)
		})
		if err != nil {
			l.Error().Err(err).Int("year", year).Msg("holiday refresh failed")
		}
	})

	return &Scheduler{cron: c, log: l}
}

func mustAdd(c *cron.Cron, log zerolog.Logger, spec, name string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		// Specs are compile-time constants; a parse failure is a bug.
		log.Panic().Err(err).Str("job", name).Str("spec", spec).Msg("bad cron spec")
	}
}

// Start launches the schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// interface checks
var _ Purger = (worklog.Store)(nil)
