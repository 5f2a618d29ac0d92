/*
runner.go - In-process task bus with retries

PURPOSE:
  A small named-handler dispatcher backed by a buffered channel and a
  fixed worker pool. Enqueue never blocks the producer: a full queue
  drops the task with a log line rather than stalling a request handler.

RETRIES:
  Transient failures (wrapped with Transient or matching context
  deadline) retry with exponential backoff up to the configured attempt
  count. Permanent failures stop immediately.

SEE ALSO:
  - signals.go: the worklog hook that feeds this bus
  - cron.go:    scheduled producers
*/
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownTask is returned by Enqueue for an unregistered task name.
var ErrUnknownTask = errors.New("unknown task")

// ErrQueueFull is returned by Enqueue when the bus buffer is saturated.
var ErrQueueFull = errors.New("task queue full")

// transientError marks a failure worth retrying.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient wraps an error so the runner retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

type job struct {
	task string
	args any
}

// Runner owns the worker pool and the handler registry. Register all
// handlers before Start.
type Runner struct {
	handlers map[string]Handler
	queue    chan job
	workers  int
	retries  int
	backoff  time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func NewRunner(queueSize, workers, retries int, log zerolog.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	return &Runner{
		handlers: make(map[string]Handler),
		queue:    make(chan job, queueSize),
		workers:  workers,
		retries:  retries,
		backoff:  time.Second,
		log:      log.With().Str("component", "tasks").Logger(),
	}
}

// Register binds a handler to a task name. Panics on duplicates: the
// registry is assembled once at startup and a collision is a programming
// error.
func (r *Runner) Register(task string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		panic("tasks: Register after Start")
	}
	if _, dup := r.handlers[task]; dup {
		panic(fmt.Sprintf("tasks: duplicate handler %q", task))
	}
	r.handlers[task] = h
}

// Enqueue submits a task. Non-blocking.
func (r *Runner) Enqueue(task string, args any) error {
	r.mu.Lock()
	_, ok := r.handlers[task]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	select {
	case r.queue <- job{task: task, args: args}:
		return nil
	default:
		r.log.Error().Str("task", task).Msg("queue full, task dropped")
		return fmt.Errorf("%w: %s", ErrQueueFull, task)
	}
}

// Start launches the workers. The provided context bounds all handler
// executions.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for w := 0; w < r.workers; w++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-r.queue:
					r.process(ctx, j)
				}
			}
		}()
	}
	r.log.Info().Int("workers", r.workers).Msg("task runner started")
}

// Stop cancels the workers and waits for in-flight handlers.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Runner) process(ctx context.Context, j job) {
	r.mu.Lock()
	h := r.handlers[j.task]
	r.mu.Unlock()

	var err error
	for attempt := 0; ; attempt++ {
		err = h(ctx, j.args)
		if err == nil {
			return
		}
		if !IsTransient(err) || attempt >= r.retries {
			break
		}
		delay := r.backoff << attempt
		r.log.Warn().Err(err).Str("task", j.task).Int("attempt", attempt+1).
			Dur("retry_in", delay).Msg("transient task failure")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	r.log.Error().Err(err).Str("task", j.task).Msg("task failed")
}
