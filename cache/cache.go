/*
Package cache provides the versioned key/value cache used by every cached
read path in the engine.

PURPOSE:
  Centralizes cache key assembly. Callers hand over a logical key
  ("monthly_summary:emp-1:2026:3"); the Versioned wrapper prepends the
  application prefix and configured version so that a version bump is a
  zero-downtime, whole-namespace invalidation. Old-version keys are simply
  never read again and expire by TTL.

KEY FORMAT:
  {prefix}:{version}:{logical_key}

RULES:
  1. Every payroll and holiday cache goes through Versioned. Direct use of
     a Client from domain code is prohibited.
  2. Get returns a miss on any deserialize error. A corrupt entry behaves
     exactly like an absent one and is overwritten on the next Set.
  3. DeletePattern is best-effort and must never block the caller.

IMPLEMENTATIONS:
  - redis.go:  production client over go-redis
  - memory.go: in-memory client for tests and cache-less deployments

SEE ALSO:
  - calendar/catalog.go: holiday and sun-time caching
  - payroll/bulk.go:     monthly summary caching
  - tasks/idempotent.go: idempotency keys
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Client.Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Client is the low-level cache boundary: opaque bytes with TTL.
// A zero TTL means no expiry.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// DeletePattern removes keys matching a glob pattern. Best-effort:
	// implementations may remove nothing and must not block.
	DeletePattern(ctx context.Context, pattern string) error
}

// =============================================================================
// VERSIONED CACHE
// =============================================================================

// Versioned wraps a Client with the {prefix}:{version}: namespace.
type Versioned struct {
	client  Client
	prefix  string
	version int
}

// NewVersioned creates the namespaced cache. Version is read from
// configuration once at startup; changing it requires a restart.
func NewVersioned(client Client, prefix string, version int) *Versioned {
	return &Versioned{client: client, prefix: prefix, version: version}
}

// Key returns the fully-qualified cache key for a logical key.
func (v *Versioned) Key(logical string) string {
	return fmt.Sprintf("%s:%d:%s", v.prefix, v.version, logical)
}

// Get unmarshals the cached value into dest. Returns (false, nil) on a
// miss, including any deserialize failure: a corrupt entry self-heals by
// being treated as absent.
func (v *Versioned) Get(ctx context.Context, logical string, dest any) (bool, error) {
	raw, err := v.client.Get(ctx, v.Key(logical))
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// Set marshals and stores value under the namespaced key.
func (v *Versioned) Set(ctx context.Context, logical string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %q: %w", logical, err)
	}
	return v.client.Set(ctx, v.Key(logical), raw, ttl)
}

// Delete removes one exact key.
func (v *Versioned) Delete(ctx context.Context, logical string) error {
	return v.client.Delete(ctx, v.Key(logical))
}

// DeletePattern removes keys matching the logical glob within the current
// namespace. Advisory only.
func (v *Versioned) DeletePattern(ctx context.Context, logicalPattern string) error {
	return v.client.DeletePattern(ctx, v.Key(logicalPattern))
}

// Version reports the namespace version (for logs and health endpoints).
func (v *Versioned) Version() int { return v.version }
