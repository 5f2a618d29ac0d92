package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/payroll-engine/cache"
	"github.com/shiftwise/payroll-engine/calendar"
	"github.com/shiftwise/payroll-engine/store/memory"
)

type fixture struct {
	store   *memory.Store
	client  *cache.Memory
	hsource *calendar.StaticHolidaySource
	ssource *calendar.StaticSunSource
	catalog *calendar.Catalog
}

func newFixture(allowEstimates bool) *fixture {
	store := memory.New(time.UTC)
	client := cache.NewMemory()
	hsource := &calendar.StaticHolidaySource{}
	ssource := &calendar.StaticSunSource{ByDate: map[string]calendar.SunTimes{}}
	catalog := calendar.NewCatalog(store, hsource, ssource,
		cache.NewVersioned(client, "payroll", 1),
		calendar.Options{
			Location:       time.UTC,
			CandleOffset:   18 * time.Minute,
			HavdalahOffset: 40 * time.Minute,
			HolidayTTL:     7 * 24 * time.Hour,
			SourceTimeout:  time.Second,
			AllowEstimates: allowEstimates,
			DefaultLat:     31.78,
			DefaultLng:     35.22,
		}, zerolog.Nop())
	return &fixture{store: store, client: client, hsource: hsource, ssource: ssource, catalog: catalog}
}

func mid(day int) time.Time {
	return time.Date(2026, time.March, day, 0, 0, 0, 0, time.UTC)
}

func TestHolidayInfoReadsStoreThenCache(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	f.store.PutHoliday(calendar.Holiday{Date: mid(3), Name: "Pesach", Kind: calendar.KindRegular})

	h, err := f.catalog.HolidayInfo(ctx, mid(3))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Pesach", h.Name)

	// The second read must come from cache: removing the stored row does
	// not change the answer
	require.NoError(t, f.store.ReplaceYear(ctx, 2026, nil))
	h, err = f.catalog.HolidayInfo(ctx, mid(3))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Pesach", h.Name)
}

func TestHolidayInfoPlainWeekday(t *testing.T) {
	f := newFixture(true)

	h, err := f.catalog.HolidayInfo(context.Background(), mid(2)) // a Monday
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestHolidayInfoDerivesShabbatForWeekend(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	// March 7 2026 is a Saturday with no stored row; the estimated window
	// runs Friday 17:42 through Saturday 18:40
	h, err := f.catalog.HolidayInfo(ctx, mid(7))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, calendar.KindShabbat, h.Kind)
	require.NotNil(t, h.Start)
	assert.Equal(t, time.Date(2026, time.March, 6, 17, 42, 0, 0, time.UTC), h.Start.UTC())
	require.NotNil(t, h.End)
	assert.Equal(t, time.Date(2026, time.March, 7, 18, 40, 0, 0, time.UTC), h.End.UTC())
}

func TestSunTimesPrefersStoredRecord(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	stored := calendar.SunTimes{
		Date:    mid(6),
		Sunrise: time.Date(2026, time.March, 6, 5, 58, 0, 0, time.UTC),
		Sunset:  time.Date(2026, time.March, 6, 17, 41, 0, 0, time.UTC),
	}
	require.NoError(t, f.store.PutSunTimes(ctx, stored, 31.78, 35.22))

	got, err := f.catalog.SunTimes(ctx, mid(6), 31.78, 35.22)
	require.NoError(t, err)
	assert.True(t, got.Sunset.Equal(stored.Sunset))
	assert.False(t, got.IsEstimated)
}

func TestSunTimesFetchesAndPersists(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	live := calendar.SunTimes{
		Sunrise: time.Date(2026, time.March, 6, 5, 58, 0, 0, time.UTC),
		Sunset:  time.Date(2026, time.March, 6, 17, 41, 0, 0, time.UTC),
	}
	f.ssource.ByDate[calendar.DateKey(mid(6))] = live

	got, err := f.catalog.SunTimes(ctx, mid(6), 31.78, 35.22)
	require.NoError(t, err)
	assert.True(t, got.Sunset.Equal(live.Sunset))

	// The fetched record was persisted for the next process
	st, err := f.store.SunTimes(ctx, mid(6), 31.78, 35.22)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Sunset.Equal(live.Sunset))
}

func TestSunTimesDegradesToEstimate(t *testing.T) {
	f := newFixture(true)

	// No stored record, no live answer
	got, err := f.catalog.SunTimes(context.Background(), mid(6), 31.78, 35.22)
	require.NoError(t, err)
	assert.True(t, got.IsEstimated)
	assert.Equal(t, time.Date(2026, time.March, 6, 18, 0, 0, 0, time.UTC), got.Sunset)
}

func TestSunTimesStrictModeFails(t *testing.T) {
	f := newFixture(false)

	_, err := f.catalog.SunTimes(context.Background(), mid(6), 31.78, 35.22)
	require.ErrorIs(t, err, calendar.ErrTimeSourceUnavailable)
}

func TestRefreshYearStoresCatalogAndShabbatRows(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	f.hsource.Holidays = []calendar.Holiday{
		{Date: mid(3), Name: "Pesach", Kind: calendar.KindRegular},
		{Date: time.Date(2027, time.April, 1, 0, 0, 0, 0, time.UTC), Name: "NextYear", Kind: calendar.KindRegular},
	}

	require.NoError(t, f.catalog.RefreshYear(ctx, 2026))

	// The fetched holiday for the year landed
	h, err := f.store.HolidayByDate(ctx, mid(3))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Pesach", h.Name)

	// Derived Shabbat rows exist for an ordinary Saturday
	h, err = f.store.HolidayByDate(ctx, mid(7))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, calendar.KindShabbat, h.Kind)

	// The other year's fetched row was not stored under 2026
	h, err = f.store.HolidayByDate(ctx, time.Date(2027, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestFridayOf(t *testing.T) {
	fri := time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, fri, calendar.FridayOf(time.Date(2026, time.March, 6, 15, 0, 0, 0, time.UTC), time.UTC))
	// Saturday resolves to the previous day
	assert.Equal(t, fri, calendar.FridayOf(time.Date(2026, time.March, 7, 3, 0, 0, 0, time.UTC), time.UTC))
	// Midweek resolves to the coming Friday
	assert.Equal(t, fri, calendar.FridayOf(time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC), time.UTC))
}

func TestDeriveWindowOffsets(t *testing.T) {
	friSun := calendar.SunTimes{Sunset: time.Date(2026, time.March, 6, 17, 41, 0, 0, time.UTC)}
	satSun := calendar.SunTimes{Sunset: time.Date(2026, time.March, 7, 17, 42, 0, 0, time.UTC), IsEstimated: true}

	w := calendar.DeriveWindow(friSun, satSun, 18*time.Minute, 40*time.Minute)
	assert.Equal(t, time.Date(2026, time.March, 6, 17, 23, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, time.March, 7, 18, 22, 0, 0, time.UTC), w.End)
	assert.True(t, w.Estimated, "one estimated input marks the window")
}

func TestWindowContainsHalfOpen(t *testing.T) {
	w := calendar.Window{Start: mid(6), End: mid(7)}
	assert.True(t, w.Contains(mid(6)))
	assert.False(t, w.Contains(mid(7)), "the end instant is exclusive")
	assert.True(t, w.Overlaps(mid(5), mid(8)))
	assert.False(t, w.Overlaps(mid(7), mid(8)), "touching intervals do not overlap")
}
