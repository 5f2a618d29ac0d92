/*
service.go - Shift operations with validation and hook dispatch

PURPOSE:
  Service is the single entry point for shift mutations. It validates
  input at the boundary, delegates invariant enforcement to the Store,
  and dispatches domain events to registered hooks after a successful
  write. Hooks are how deferred work (payroll recompute) is triggered
  without the write path ever computing payroll inline.

HOOKS vs SIGNALS:
  The equivalent of framework post-write signals is explicit: hooks are
  registered once at wiring time, and the bulk path passes
  WriteOptions{BypassHooks: true} instead of mutating row state.

SEE ALSO:
  - tasks/signals.go: the hook that enqueues payroll recompute
  - store.go: invariant enforcement
*/
package worklog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service wraps a Store with validation and event dispatch.
type Service struct {
	store         Store
	hooks         []Hook
	maxShiftHours decimal.Decimal
	log           zerolog.Logger
}

func NewService(store Store, maxShiftHours decimal.Decimal, log zerolog.Logger) *Service {
	return &Service{
		store:         store,
		maxShiftHours: maxShiftHours,
		log:           log.With().Str("component", "worklog").Logger(),
	}
}

// RegisterHook adds a post-write hook. Not safe to call after the service
// starts serving; register everything at wiring time.
func (s *Service) RegisterHook(h Hook) {
	s.hooks = append(s.hooks, h)
}

// Store exposes the underlying store for read-only callers (bulk loader).
func (s *Service) Store() Store { return s.store }

// =============================================================================
// OPERATIONS
// =============================================================================

// OpenShift checks an employee in. Legal only in the Idle state.
// acknowledged pre-approves a long shift; close-time validation reads it
// from the open row.
func (s *Service) OpenShift(ctx context.Context, employee EmployeeID, checkIn time.Time, loc *Location, acknowledged bool, opts WriteOptions) (WorkLog, error) {
	now := time.Now().UTC()
	w := WorkLog{
		ID:                    NewWorkLogID(),
		EmployeeID:            employee,
		CheckIn:               checkIn.UTC(),
		LocationIn:            loc,
		LongShiftAcknowledged: acknowledged,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	created, err := s.store.OpenShift(ctx, w)
	if err != nil {
		return WorkLog{}, err
	}

	s.log.Info().
		Str("employee", string(employee)).
		Str("worklog", string(created.ID)).
		Time("check_in", created.CheckIn).
		Msg("shift opened")

	s.dispatch(Event{Kind: EventCreated, WorkLog: created}, opts)
	return created, nil
}

// CloseShift checks an employee out. Legal only in the Open state.
func (s *Service) CloseShift(ctx context.Context, employee EmployeeID, checkOut time.Time, loc *Location, opts WriteOptions) (WorkLog, error) {
	checkOut = checkOut.UTC()

	if !opts.SkipValidation {
		open, err := s.openShiftOf(ctx, employee)
		if err != nil {
			return WorkLog{}, err
		}
		if err := s.validateInterval(open.CheckIn, checkOut, open.LongShiftAcknowledged); err != nil {
			return WorkLog{}, err
		}
	}

	closed, err := s.store.CloseShift(ctx, employee, checkOut, loc)
	if err != nil {
		return WorkLog{}, err
	}

	s.log.Info().
		Str("employee", string(employee)).
		Str("worklog", string(closed.ID)).
		Time("check_out", checkOut).
		Msg("shift closed")

	s.dispatch(Event{Kind: EventClosed, WorkLog: closed}, opts)
	return closed, nil
}

// SoftDelete hides a shift. Idempotent at the API level: a second call
// reports ErrAlreadyDeleted and writes nothing.
func (s *Service) SoftDelete(ctx context.Context, id WorkLogID, opts WriteOptions) (WorkLog, error) {
	deleted, err := s.store.SoftDelete(ctx, id, opts.Actor)
	if err != nil {
		return WorkLog{}, err
	}

	s.log.Info().
		Str("worklog", string(id)).
		Str("actor", opts.Actor).
		Msg("shift soft-deleted")

	s.dispatch(Event{Kind: EventDeleted, WorkLog: deleted}, opts)
	return deleted, nil
}

// BulkCreate inserts pre-closed shifts without per-row hook dispatch.
func (s *Service) BulkCreate(ctx context.Context, shifts []WorkLog, opts WriteOptions) (int, error) {
	if !opts.SkipValidation {
		for i := range shifts {
			if shifts[i].CheckOut == nil {
				return 0, ErrInvalidInterval
			}
			if err := s.validateInterval(shifts[i].CheckIn, *shifts[i].CheckOut, shifts[i].LongShiftAcknowledged); err != nil {
				return 0, err
			}
		}
	}
	opts.BypassHooks = true
	return s.store.BulkCreate(ctx, shifts, opts)
}

// ListActive and ListForRange pass through; reads need no hooks.
func (s *Service) ListActive(ctx context.Context, f Filter) ([]WorkLog, error) {
	return s.store.ListActive(ctx, f)
}

func (s *Service) ListForRange(ctx context.Context, employee EmployeeID, start, end time.Time) ([]WorkLog, error) {
	return s.store.ListForRange(ctx, employee, start, end)
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Service) openShiftOf(ctx context.Context, employee EmployeeID) (WorkLog, error) {
	open, err := s.store.ListActive(ctx, Filter{EmployeeID: employee, OpenOnly: true})
	if err != nil {
		return WorkLog{}, err
	}
	if len(open) == 0 {
		return WorkLog{}, ErrNoOpenShift
	}
	return open[0], nil
}

func (s *Service) validateInterval(checkIn, checkOut time.Time, acknowledged bool) error {
	if !checkOut.After(checkIn) {
		return ErrInvalidInterval
	}
	hours := decimal.NewFromFloat(checkOut.Sub(checkIn).Hours())
	if hours.GreaterThan(s.maxShiftHours) && !acknowledged {
		return ErrShiftTooLong
	}
	return nil
}

func (s *Service) dispatch(e Event, opts WriteOptions) {
	if opts.BypassHooks {
		return
	}
	for _, h := range s.hooks {
		h(e)
	}
}
