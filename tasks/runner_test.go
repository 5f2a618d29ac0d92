package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueUnknownTask(t *testing.T) {
	r := NewRunner(4, 1, 0, zerolog.Nop())
	err := r.Enqueue("nope", nil)
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestEnqueueNeverBlocks(t *testing.T) {
	// GIVEN a runner with a single-slot queue that is not consuming
	r := NewRunner(1, 1, 0, zerolog.Nop())
	r.Register("t", func(context.Context, any) error { return nil })

	require.NoError(t, r.Enqueue("t", 1))

	// THEN a second enqueue drops instead of stalling the producer
	err := r.Enqueue("t", 2)
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestRunnerExecutesTasks(t *testing.T) {
	r := NewRunner(8, 2, 0, zerolog.Nop())
	done := make(chan any, 2)
	r.Register("echo", func(_ context.Context, args any) error {
		done <- args
		return nil
	})

	r.Start(context.Background())
	defer r.Stop()

	require.NoError(t, r.Enqueue("echo", "a"))
	require.NoError(t, r.Enqueue("echo", "b"))

	got := map[any]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-done:
			got[v] = true
		case <-time.After(2 * time.Second):
			t.Fatal("task not executed")
		}
	}
	assert.True(t, got["a"] && got["b"])
}

func TestRunnerRetriesTransientFailures(t *testing.T) {
	r := NewRunner(4, 1, 3, zerolog.Nop())
	r.backoff = time.Millisecond

	var attempts int32
	done := make(chan struct{})
	r.Register("flaky", func(context.Context, any) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return Transient(errors.New("transient"))
		}
		close(done)
		return nil
	})

	r.Start(context.Background())
	defer r.Stop()
	require.NoError(t, r.Enqueue("flaky", nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestRunnerDoesNotRetryPermanentFailures(t *testing.T) {
	r := NewRunner(4, 1, 3, zerolog.Nop())
	r.backoff = time.Millisecond

	var attempts int32
	ran := make(chan struct{}, 4)
	r.Register("broken", func(context.Context, any) error {
		atomic.AddInt32(&attempts, 1)
		ran <- struct{}{}
		return errors.New("permanent")
	})

	r.Start(context.Background())
	defer r.Stop()
	require.NoError(t, r.Enqueue("broken", nil))

	<-ran
	// Give any erroneous retry a moment to show up
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestTransientClassification(t *testing.T) {
	assert.Nil(t, Transient(nil))
	base := errors.New("db locked")
	wrapped := Transient(base)
	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsTransient(base))
	assert.True(t, errors.Is(wrapped, base), "Transient must preserve the cause")
}

func TestRegisterGuards(t *testing.T) {
	r := NewRunner(4, 1, 0, zerolog.Nop())
	h := func(context.Context, any) error { return nil }
	r.Register("t", h)

	assert.Panics(t, func() { r.Register("t", h) }, "duplicate registration is a bug")

	r.Start(context.Background())
	defer r.Stop()
	assert.Panics(t, func() { r.Register("late", h) }, "registration after start is a bug")
}
