package worklog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/payroll-engine/store/memory"
	"github.com/shiftwise/payroll-engine/worklog"
)

func newService() *worklog.Service {
	return worklog.NewService(memory.New(time.UTC), decimal.NewFromInt(26), zerolog.Nop())
}

func ts(d, hh int) time.Time {
	return time.Date(2026, time.March, d, hh, 0, 0, 0, time.UTC)
}

func TestShiftLifecycle(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	// GIVEN a check-in
	opened, err := svc.OpenShift(ctx, "emp-1", ts(2, 9), nil, false, worklog.WriteOptions{})
	require.NoError(t, err)
	assert.True(t, opened.IsOpen())

	// THEN a second check-in is rejected
	_, err = svc.OpenShift(ctx, "emp-1", ts(2, 10), nil, false, worklog.WriteOptions{})
	require.ErrorIs(t, err, worklog.ErrOpenShiftExists)

	// WHEN checked out
	closed, err := svc.CloseShift(ctx, "emp-1", ts(2, 17), nil, worklog.WriteOptions{})
	require.NoError(t, err)
	require.NotNil(t, closed.CheckOut)
	assert.Equal(t, opened.ID, closed.ID)

	// THEN a second check-out finds no open shift
	_, err = svc.CloseShift(ctx, "emp-1", ts(2, 18), nil, worklog.WriteOptions{})
	require.ErrorIs(t, err, worklog.ErrNoOpenShift)
}

func TestCloseShiftRejectsInvalidInterval(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.OpenShift(ctx, "emp-1", ts(2, 9), nil, false, worklog.WriteOptions{})
	require.NoError(t, err)

	// check-out before check-in
	_, err = svc.CloseShift(ctx, "emp-1", ts(2, 8), nil, worklog.WriteOptions{})
	require.ErrorIs(t, err, worklog.ErrInvalidInterval)
}

func TestLongShiftRequiresAcknowledgement(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	// GIVEN a shift that would run 30 hours without the flag
	_, err := svc.OpenShift(ctx, "emp-1", ts(2, 6), nil, false, worklog.WriteOptions{})
	require.NoError(t, err)
	_, err = svc.CloseShift(ctx, "emp-1", ts(3, 12), nil, worklog.WriteOptions{})
	require.ErrorIs(t, err, worklog.ErrShiftTooLong)

	// WHEN the check-in carried the acknowledgement
	_, err = svc.OpenShift(ctx, "emp-2", ts(2, 6), nil, true, worklog.WriteOptions{})
	require.NoError(t, err)
	_, err = svc.CloseShift(ctx, "emp-2", ts(3, 12), nil, worklog.WriteOptions{})
	require.NoError(t, err)
}

func TestOpenShiftRejectsOverlap(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	// GIVEN a closed 9-17 shift
	_, err := svc.OpenShift(ctx, "emp-1", ts(2, 9), nil, false, worklog.WriteOptions{})
	require.NoError(t, err)
	_, err = svc.CloseShift(ctx, "emp-1", ts(2, 17), nil, worklog.WriteOptions{})
	require.NoError(t, err)

	// WHEN checking in inside it
	_, err = svc.OpenShift(ctx, "emp-1", ts(2, 12), nil, false, worklog.WriteOptions{})

	// THEN the conflict carries the existing row's id
	var overlap *worklog.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.NotEmpty(t, overlap.ConflictID)
	assert.True(t, worklog.IsInvariantViolation(err))

	// AND a different employee is unaffected
	_, err = svc.OpenShift(ctx, "emp-2", ts(2, 12), nil, false, worklog.WriteOptions{})
	require.NoError(t, err)
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	opened, err := svc.OpenShift(ctx, "emp-1", ts(2, 9), nil, false, worklog.WriteOptions{})
	require.NoError(t, err)
	_, err = svc.CloseShift(ctx, "emp-1", ts(2, 17), nil, worklog.WriteOptions{})
	require.NoError(t, err)

	deleted, err := svc.SoftDelete(ctx, opened.ID, worklog.WriteOptions{Actor: "hr-admin"})
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, "hr-admin", deleted.DeletedBy)

	// Second delete reports the state without writing
	_, err = svc.SoftDelete(ctx, opened.ID, worklog.WriteOptions{Actor: "hr-admin"})
	require.ErrorIs(t, err, worklog.ErrAlreadyDeleted)

	// Deleted rows are invisible to default reads, visible to audit
	active, err := svc.ListActive(ctx, worklog.Filter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Empty(t, active)

	audit, err := svc.Store().ListIncludingDeleted(ctx, worklog.Filter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, audit, 1)

	// And the slot is free again
	_, err = svc.OpenShift(ctx, "emp-1", ts(2, 12), nil, false, worklog.WriteOptions{})
	require.NoError(t, err)
}

func TestHookDispatch(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	var events []worklog.EventKind
	svc.RegisterHook(func(e worklog.Event) { events = append(events, e.Kind) })

	opened, err := svc.OpenShift(ctx, "emp-1", ts(2, 9), nil, false, worklog.WriteOptions{})
	require.NoError(t, err)
	_, err = svc.CloseShift(ctx, "emp-1", ts(2, 17), nil, worklog.WriteOptions{})
	require.NoError(t, err)
	_, err = svc.SoftDelete(ctx, opened.ID, worklog.WriteOptions{})
	require.NoError(t, err)

	assert.Equal(t, []worklog.EventKind{
		worklog.EventCreated, worklog.EventClosed, worklog.EventDeleted,
	}, events)

	// BypassHooks suppresses dispatch
	events = nil
	_, err = svc.OpenShift(ctx, "emp-2", ts(2, 9), nil, false, worklog.WriteOptions{BypassHooks: true})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestBulkCreateSkipsHooksAndValidates(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	fired := 0
	svc.RegisterHook(func(worklog.Event) { fired++ })

	out1, out2 := ts(2, 17), ts(3, 17)
	shifts := []worklog.WorkLog{
		{ID: worklog.NewWorkLogID(), EmployeeID: "emp-1", CheckIn: ts(2, 9), CheckOut: &out1},
		{ID: worklog.NewWorkLogID(), EmployeeID: "emp-1", CheckIn: ts(3, 9), CheckOut: &out2},
	}

	n, err := svc.BulkCreate(ctx, shifts, worklog.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, fired, "bulk import must not enqueue per-row work")

	// An open entry in the batch is rejected up front
	_, err = svc.BulkCreate(ctx, []worklog.WorkLog{
		{ID: worklog.NewWorkLogID(), EmployeeID: "emp-2", CheckIn: ts(4, 9)},
	}, worklog.WriteOptions{})
	require.ErrorIs(t, err, worklog.ErrInvalidInterval)
}

func TestListForRangeUsesIntersection(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	// GIVEN a shift spanning midnight on the range boundary
	out := ts(3, 2)
	_, err := svc.BulkCreate(ctx, []worklog.WorkLog{
		{ID: worklog.NewWorkLogID(), EmployeeID: "emp-1", CheckIn: ts(2, 22), CheckOut: &out},
	}, worklog.WriteOptions{})
	require.NoError(t, err)

	// THEN a range starting at midnight still picks it up
	got, err := svc.ListForRange(ctx, "emp-1", ts(3, 0), ts(4, 0))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// AND a disjoint range does not
	got, err = svc.ListForRange(ctx, "emp-1", ts(4, 0), ts(5, 0))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOverlapSentinelMatching(t *testing.T) {
	err := &worklog.OverlapError{EmployeeID: "emp-1", ConflictID: "w-1"}
	assert.True(t, errors.Is(err, worklog.ErrOverlap))
	assert.Contains(t, err.Error(), "w-1")
}
