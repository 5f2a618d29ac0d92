package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/payroll-engine/cache"
	"github.com/shiftwise/payroll-engine/config"
	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/worklog"
)

type fakeRecalc struct {
	calls     int
	lastIDs   []worklog.EmployeeID
	lastFlags payroll.Flags
	err       error
}

func (f *fakeRecalc) Calculate(_ context.Context, ids []worklog.EmployeeID, _ int, _ time.Month, flags payroll.Flags) (payroll.BulkResult, error) {
	f.calls++
	f.lastIDs = ids
	f.lastFlags = flags
	return payroll.BulkResult{}, f.err
}

func TestWorkLogHookInvalidatesAndEnqueues(t *testing.T) {
	client := cache.NewMemory()
	vc := cache.NewVersioned(client, "payroll", 1)
	ctx := context.Background()

	// Pre-warm the summary entries for both touched months
	febKey := payroll.SummaryCacheKey("emp-1", 2026, time.February)
	marKey := payroll.SummaryCacheKey("emp-1", 2026, time.March)
	require.NoError(t, vc.Set(ctx, febKey, "stale", 0))
	require.NoError(t, vc.Set(ctx, marKey, "stale", 0))

	r := NewRunner(8, 1, 0, zerolog.Nop())
	enqueued := make(chan RecalculateArgs, 4)
	r.Register(TaskRecalculate, func(_ context.Context, args any) error {
		enqueued <- args.(RecalculateArgs)
		return nil
	})
	r.Start(ctx)
	defer r.Stop()

	hook := NewWorkLogHook(r, vc, time.UTC, zerolog.Nop())

	// GIVEN a shift spanning the February/March boundary
	out := time.Date(2026, time.March, 1, 1, 0, 0, 0, time.UTC)
	hook(worklog.Event{Kind: worklog.EventClosed, WorkLog: worklog.WorkLog{
		ID:         "w-1",
		EmployeeID: "emp-1",
		CheckIn:    time.Date(2026, time.February, 28, 22, 0, 0, 0, time.UTC),
		CheckOut:   &out,
	}})

	// THEN both months are enqueued for recompute
	months := map[time.Month]bool{}
	for i := 0; i < 2; i++ {
		select {
		case args := <-enqueued:
			assert.Equal(t, worklog.EmployeeID("emp-1"), args.EmployeeID)
			assert.Equal(t, 2026, args.Year)
			months[args.Month] = true
		case <-time.After(2 * time.Second):
			t.Fatal("expected two recompute tasks")
		}
	}
	assert.True(t, months[time.February] && months[time.March])

	// AND both summary entries were invalidated synchronously
	var s string
	hit, _ := vc.Get(ctx, febKey, &s)
	assert.False(t, hit)
	hit, _ = vc.Get(ctx, marKey, &s)
	assert.False(t, hit)
}

func TestRecalculateHandlerGuardsDuplicates(t *testing.T) {
	r := NewRunner(8, 1, 0, zerolog.Nop())
	fake := &fakeRecalc{}
	RegisterRecalculate(r, fake, cache.NewMemory(), 30*time.Second, zerolog.Nop())

	h := r.handlers[TaskRecalculate]
	require.NotNil(t, h)
	ctx := context.Background()
	args := RecalculateArgs{EmployeeID: "emp-1", Year: 2026, Month: time.March}

	// First invocation recomputes with the canonical flags
	require.NoError(t, h(ctx, args))
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, []worklog.EmployeeID{"emp-1"}, fake.lastIDs)
	assert.True(t, fake.lastFlags.SaveToDB)
	assert.True(t, fake.lastFlags.InvalidateCache)

	// A burst of edits to the same month collapses into one recompute
	require.NoError(t, h(ctx, args))
	assert.Equal(t, 1, fake.calls)

	// A different month recomputes independently
	other := args
	other.Month = time.April
	require.NoError(t, h(ctx, other))
	assert.Equal(t, 2, fake.calls)
}

func TestRecalculateDebounceRidesConfig(t *testing.T) {
	r := NewRunner(8, 1, 0, zerolog.Nop())
	fake := &fakeRecalc{}
	client := cache.NewMemory()

	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	client.SetClock(func() time.Time { return now })

	cfg := config.Default()
	RegisterRecalculate(r, fake, client, cfg.RecalcDebounceTTL, zerolog.Nop())

	h := r.handlers[TaskRecalculate]
	ctx := context.Background()
	args := RecalculateArgs{EmployeeID: "emp-1", Year: 2026, Month: time.March}

	// Within the debounce window the marker suppresses recomputes
	require.NoError(t, h(ctx, args))
	require.NoError(t, h(ctx, args))
	assert.Equal(t, 1, fake.calls)

	// After the marker expires a later edit recomputes again
	now = now.Add(cfg.RecalcDebounceTTL + time.Second)
	require.NoError(t, h(ctx, args))
	assert.Equal(t, 2, fake.calls)
}

func TestRecalculateHandlerFailureIsTransient(t *testing.T) {
	r := NewRunner(8, 1, 0, zerolog.Nop())
	fake := &fakeRecalc{err: errors.New("db locked")}
	RegisterRecalculate(r, fake, cache.NewMemory(), 30*time.Second, zerolog.Nop())

	h := r.handlers[TaskRecalculate]
	ctx := context.Background()
	args := RecalculateArgs{EmployeeID: "emp-1", Year: 2026, Month: time.March}

	err := h(ctx, args)
	require.Error(t, err)
	assert.True(t, IsTransient(err), "compute failures should be retried")

	// The failed run left no marker, so the retry actually recomputes
	fake.err = nil
	require.NoError(t, h(ctx, args))
	assert.Equal(t, 2, fake.calls)
}

func TestRecalculateHandlerRejectsBadArgs(t *testing.T) {
	r := NewRunner(8, 1, 0, zerolog.Nop())
	RegisterRecalculate(r, &fakeRecalc{}, cache.NewMemory(), 30*time.Second, zerolog.Nop())

	err := r.handlers[TaskRecalculate](context.Background(), "not-args")
	require.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	// Construction parses the cron specs; a bad spec panics here.
	cfg := config.Default()
	cfg.Timezone = "UTC"
	s := NewScheduler(cfg, cache.NewMemory(), stubRefresher{}, stubPurger{}, zerolog.Nop())
	s.Start()
	s.Stop()
}

type stubRefresher struct{}

func (stubRefresher) RefreshYear(context.Context, int) error { return nil }

type stubPurger struct{}

func (stubPurger) PurgeDeletedBefore(context.Context, time.Time) (int, error) { return 0, nil }
