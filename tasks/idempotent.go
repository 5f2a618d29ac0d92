/*
Package tasks runs the engine's background work: monthly recomputes
triggered by worklog changes, the nightly retention purge, and the yearly
holiday refresh.

idempotent.go - Duplicate-execution guard for task handlers

PURPOSE:
  Wraps a handler so that re-enqueuing the same task with the same
  arguments inside the TTL window does not run it twice. The guard key is
  derived from the task name and a stable hash of the arguments, so two
  calls are "the same" exactly when their serialized arguments match.

KEY FORMAT:
  idempotent:{task}:{sha256(args)[:16]}          non-date-based
  idempotent:{task}:{sha256(args)[:16]}:{date}   date-based (daily jobs)

RULES:
  1. Only successful executions mark the key. A failed run leaves no
     marker and the next enqueue retries normally.
  2. The marker stores the completion timestamp; skip results carry it so
     callers can tell a skip from a fresh run.
  3. The guard uses the raw cache client: a cache-version bump must not
     re-run work that already completed.

SEE ALSO:
  - runner.go: retry/backoff around the wrapped handler
*/
package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftwise/payroll-engine/cache"
)

// ErrDuplicateExecution is returned in error mode when the guard key is
// already set.
var ErrDuplicateExecution = errors.New("duplicate task execution")

// DuplicateMode selects what a duplicate enqueue does.
type DuplicateMode int

const (
	// SkipOnDuplicate completes silently, reporting Skipped=true.
	SkipOnDuplicate DuplicateMode = iota
	// ErrorOnDuplicate fails with ErrDuplicateExecution.
	ErrorOnDuplicate
)

// Handler executes one task invocation. Args is the task's serializable
// argument struct.
type Handler func(ctx context.Context, args any) error

// RunReport describes one guarded execution.
type RunReport struct {
	Skipped     bool      `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
}

// marker is the cached proof of completion.
type marker struct {
	CompletedAt time.Time `json:"completed_at"`
}

// Idempotent guards one named task.
type Idempotent struct {
	task      string
	client    cache.Client
	ttl       time.Duration
	mode      DuplicateMode
	dateBased bool
	clock     func() time.Time
	log       zerolog.Logger
}

// IdempotentOption tweaks a guard at construction.
type IdempotentOption func(*Idempotent)

// WithMode selects the duplicate behavior (default SkipOnDuplicate).
func WithMode(m DuplicateMode) IdempotentOption {
	return func(i *Idempotent) { i.mode = m }
}

// DateBased appends the local date to the key, so the same arguments may
// run again tomorrow. Used by daily jobs.
func DateBased() IdempotentOption {
	return func(i *Idempotent) { i.dateBased = true }
}

// WithTTL overrides the configured default marker lifetime.
func WithTTL(ttl time.Duration) IdempotentOption {
	return func(i *Idempotent) { i.ttl = ttl }
}

func NewIdempotent(task string, client cache.Client, defaultTTL time.Duration, log zerolog.Logger, opts ...IdempotentOption) *Idempotent {
	i := &Idempotent{
		task:   task,
		client: client,
		ttl:    defaultTTL,
		mode:   SkipOnDuplicate,
		clock:  time.Now,
		log:    log.With().Str("task", task).Logger(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Key computes the guard key for an argument value. Exported for tests
// and for manual invalidation.
func (i *Idempotent) Key(args any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("idempotency key for %s: %w", i.task, err)
	}
	sum := sha256.Sum256(raw)
	key := fmt.Sprintf("idempotent:%s:%s", i.task, hex.EncodeToString(sum[:])[:16])
	if i.dateBased {
		key += ":" + i.clock().Format("2006-01-02")
	}
	return key, nil
}

// Run executes fn under the guard.
func (i *Idempotent) Run(ctx context.Context, args any, fn Handler) (RunReport, error) {
	key, err := i.Key(args)
	if err != nil {
		return RunReport{}, err
	}

	raw, err := i.client.Get(ctx, key)
	switch {
	case err == nil:
		var m marker
		_ = json.Unmarshal(raw, &m)
		if i.mode == ErrorOnDuplicate {
			return RunReport{}, fmt.Errorf("%s: %w", i.task, ErrDuplicateExecution)
		}
		i.log.Debug().Str("key", key).Msg("duplicate execution skipped")
		return RunReport{Skipped: true, CompletedAt: m.CompletedAt}, nil
	case errors.Is(err, cache.ErrMiss):
		// first execution
	default:
		// Cache down: run anyway. Losing duplicate protection beats losing
		// the task.
		i.log.Warn().Err(err).Msg("idempotency check unavailable, executing")
	}

	if err := fn(ctx, args); err != nil {
		return RunReport{}, err
	}

	done := marker{CompletedAt: i.clock()}
	if encoded, merr := json.Marshal(done); merr == nil {
		if serr := i.client.Set(ctx, key, encoded, i.ttl); serr != nil {
			i.log.Warn().Err(serr).Str("key", key).Msg("idempotency marker write failed")
		}
	}
	return RunReport{CompletedAt: done.CompletedAt}, nil
}
