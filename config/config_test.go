package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/payroll-engine/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Tiers, 4)
}

func TestGuardTTLDefaults(t *testing.T) {
	cfg := config.Default()

	// Daily cleanup jobs keep their marker across a restart the next
	// morning; recompute debounce stays short so later edits to the same
	// month are never suppressed.
	assert.Equal(t, 48*time.Hour, cfg.CleanupGuardTTL)
	assert.Equal(t, 30*time.Second, cfg.RecalcDebounceTTL)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PAYROLL_CLEANUP_GUARD_TTL", "72h")
	t.Setenv("PAYROLL_RECALC_DEBOUNCE_TTL", "5s")
	t.Setenv("PAYROLL_CACHE_VERSION", "7")

	cfg := config.Load()
	assert.Equal(t, 72*time.Hour, cfg.CleanupGuardTTL)
	assert.Equal(t, 5*time.Second, cfg.RecalcDebounceTTL)
	assert.Equal(t, 7, cfg.CacheVersion)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PAYROLL_RECALC_DEBOUNCE_TTL", "soon")

	cfg := config.Load()
	assert.Equal(t, 30*time.Second, cfg.RecalcDebounceTTL)
}

func TestValidateRejectsUnorderedTiers(t *testing.T) {
	cfg := config.Default()
	cfg.Tiers[1], cfg.Tiers[2] = cfg.Tiers[2], cfg.Tiers[1]
	require.Error(t, cfg.Validate())
}
