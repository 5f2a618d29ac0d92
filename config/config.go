/*
Package config holds process-wide configuration for the payroll engine.

PURPOSE:
  Every tunable the engine reads lives here, loaded once at startup.
  Components receive the values they need at construction time; nothing
  reads the environment after Load() returns.

KEY GROUPS:
  Cache:      version namespace and TTLs for holiday / summary caches
  Overtime:   daily tier thresholds and multipliers
  Sabbath:    candle-lighting and havdalah offsets
  Bulk:       adaptive-executor cutoffs
  Idempotency: default key TTL for background tasks
  Retention:  how long soft-deleted shifts are kept before purge

ENVIRONMENT:
  Load() reads variables prefixed with PAYROLL_ (e.g. PAYROLL_CACHE_VERSION).
  cmd/server loads a .env file first via godotenv, so local development
  does not require exporting anything.

SEE ALSO:
  - cmd/server/main.go: calls Load() and wires components
  - payroll/strategy.go: consumes Overtime and Monthly settings
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER CONFIGURATION
// =============================================================================

// Tier is one daily overtime band: hours at or above Threshold (and below
// the next tier's threshold) are paid at Multiplier times the base rate.
type Tier struct {
	Threshold  decimal.Decimal // daily hours where this tier begins
	Multiplier decimal.Decimal // e.g. 1.25 for the first overtime band
}

// =============================================================================
// CONFIG
// =============================================================================

type Config struct {
	// Cache
	CacheVersion      int           // appended to every cache key; bump to invalidate
	CachePrefix       string        // application namespace, first key component
	HolidayTTL        time.Duration // holiday cache entries
	MonthlySummaryTTL time.Duration // bulk result cache entries
	DayAggregateTTL   time.Duration // per-date holiday lookups used by notifications

	// Overtime: tiers in ascending threshold order. Tier zero is implicit
	// (base rate up to Tiers[0].Threshold).
	Tiers             []Tier
	WeeklyOvertimeCap decimal.Decimal // hours of overtime per ISO week before a warning
	DailyWarnHours    decimal.Decimal // daily hours that trigger a compliance warning
	DailyHardHours    decimal.Decimal // daily hours that require acknowledgement

	// Premium multipliers for rest windows. Overtime layers additively on top.
	SabbathMultiplier decimal.Decimal
	HolidayMultiplier decimal.Decimal

	// Monthly-salary employees
	StandardMonthlyHours decimal.Decimal // denominator for the effective hourly rate

	// Sabbath window
	CandleOffset   time.Duration // before Friday sunset
	HavdalahOffset time.Duration // after Saturday sunset

	// Shift limits
	MaxShiftHours decimal.Decimal // beyond this, LongShiftAcknowledged is required

	// Bulk execution
	ThreadCutoff  int // batches below this run sequentially
	ProcessCutoff int // batches at or above this use the full worker pool
	MaxWorkers    int

	// Background tasks
	IdempotencyTTL    time.Duration // default marker lifetime for idempotent tasks
	CleanupGuardTTL   time.Duration // date-scoped cron guards (retention purge)
	RecalcDebounceTTL time.Duration // collapses bursts of recompute tasks for one month
	TaskRetries       int

	// Retention
	DeletedRetention time.Duration // soft-deleted worklogs older than this are purged

	// Locale
	Timezone   string
	DefaultLat float64
	DefaultLng float64

	// External sources
	SourceTimeout  time.Duration
	AllowEstimates bool // degrade to astronomical estimates when sources fail
}

// Default returns the configuration with production defaults filled in.
func Default() Config {
	return Config{
		CacheVersion:      1,
		CachePrefix:       "payroll",
		HolidayTTL:        7 * 24 * time.Hour,
		MonthlySummaryTTL: time.Hour,
		DayAggregateTTL:   24 * time.Hour,

		Tiers: []Tier{
			{Threshold: dec("8.6"), Multiplier: dec("1.25")},
			{Threshold: dec("10.6"), Multiplier: dec("1.5")},
			{Threshold: dec("12.6"), Multiplier: dec("1.75")},
			{Threshold: dec("16"), Multiplier: dec("2")},
		},
		WeeklyOvertimeCap: dec("16"),
		DailyWarnHours:    dec("12"),
		DailyHardHours:    dec("16"),

		SabbathMultiplier: dec("1.5"),
		HolidayMultiplier: dec("1.5"),

		StandardMonthlyHours: dec("185"),

		CandleOffset:   18 * time.Minute,
		HavdalahOffset: 40 * time.Minute,

		MaxShiftHours: dec("26"),

		ThreadCutoff:  10,
		ProcessCutoff: 50,
		MaxWorkers:    8,

		IdempotencyTTL:    24 * time.Hour,
		CleanupGuardTTL:   48 * time.Hour,
		RecalcDebounceTTL: 30 * time.Second,
		TaskRetries:       3,

		DeletedRetention: 365 * 24 * time.Hour,

		Timezone:   "Asia/Jerusalem",
		DefaultLat: 31.78,
		DefaultLng: 35.22,

		SourceTimeout:  10 * time.Second,
		AllowEstimates: true,
	}
}

// Load builds the configuration from defaults plus PAYROLL_* environment
// overrides. Unknown or malformed values fall back to defaults.
func Load() Config {
	c := Default()

	c.CacheVersion = envInt("PAYROLL_CACHE_VERSION", c.CacheVersion)
	c.CachePrefix = envStr("PAYROLL_CACHE_PREFIX", c.CachePrefix)
	c.HolidayTTL = envDuration("PAYROLL_CACHE_TTL_HOLIDAYS", c.HolidayTTL)
	c.MonthlySummaryTTL = envDuration("PAYROLL_CACHE_TTL_MONTHLY_SUMMARY", c.MonthlySummaryTTL)

	c.WeeklyOvertimeCap = envDec("PAYROLL_WEEKLY_OVERTIME_CAP", c.WeeklyOvertimeCap)
	c.StandardMonthlyHours = envDec("PAYROLL_STANDARD_MONTHLY_HOURS", c.StandardMonthlyHours)

	c.CandleOffset = envMinutes("PAYROLL_SABBATH_CANDLE_OFFSET_MINUTES", c.CandleOffset)
	c.HavdalahOffset = envMinutes("PAYROLL_SABBATH_HAVDALAH_OFFSET_MINUTES", c.HavdalahOffset)

	c.ThreadCutoff = envInt("PAYROLL_BULK_THREAD_CUTOFF", c.ThreadCutoff)
	c.ProcessCutoff = envInt("PAYROLL_BULK_PROCESS_CUTOFF", c.ProcessCutoff)

	c.IdempotencyTTL = envDuration("PAYROLL_IDEMPOTENCY_DEFAULT_TTL", c.IdempotencyTTL)
	c.CleanupGuardTTL = envDuration("PAYROLL_CLEANUP_GUARD_TTL", c.CleanupGuardTTL)
	c.RecalcDebounceTTL = envDuration("PAYROLL_RECALC_DEBOUNCE_TTL", c.RecalcDebounceTTL)
	c.DeletedRetention = envDuration("PAYROLL_DELETED_RETENTION", c.DeletedRetention)

	c.Timezone = envStr("PAYROLL_TIMEZONE", c.Timezone)

	return c
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("config: at least one overtime tier required")
	}
	prev := decimal.Zero
	for i, t := range c.Tiers {
		if !t.Threshold.GreaterThan(prev) {
			return fmt.Errorf("config: tier %d threshold %s not ascending", i, t.Threshold)
		}
		prev = t.Threshold
	}
	if c.StandardMonthlyHours.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("config: standard monthly hours must be positive")
	}
	if c.CacheVersion < 0 {
		return fmt.Errorf("config: cache version must be non-negative")
	}
	return nil
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDec(key string, def decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envMinutes(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Minute
		}
	}
	return def
}
