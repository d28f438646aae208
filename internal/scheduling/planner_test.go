package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quarterly(t *testing.T) models.Dataset {
	t.Helper()
	ds, err := models.DatasetByName("balance_sheet")
	require.NoError(t, err)
	return ds
}

func daily(t *testing.T) models.Dataset {
	t.Helper()
	ds, err := models.DatasetByName("time_series_daily_adjusted")
	require.NoError(t, err)
	return ds
}

func labels(periods []Period) []string {
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = p.Label()
	}
	return out
}

func TestPlanQuarterlyFullHistory(t *testing.T) {
	ds := quarterly(t)
	ent := &models.Entity{NaturalKey: "NEWCO", Inception: timePtr(date(2020, 6, 15))}
	now := date(2024, 5, 20)

	periods, degraded := Plan(ds, ent, nil, ModeIncremental, now)
	require.NotEmpty(t, periods)
	assert.False(t, degraded)

	// Inception falls inside 2020Q2, so the first full quarter is Q3. The
	// 45-day reporting lag puts now-lag at 2024-04-05, making 2024Q1 the
	// last completed quarter.
	assert.Equal(t, "2020Q3", periods[0].Label())
	assert.Equal(t, "2024Q1", periods[len(periods)-1].Label())
	assert.Len(t, periods, 15)

	for i := 1; i < len(periods); i++ {
		assert.True(t, periods[i-1].End.Before(periods[i].End), "periods must be oldest first")
	}
}

func TestPlanQuarterlyInceptionOnQuarterBoundary(t *testing.T) {
	ds := quarterly(t)
	ent := &models.Entity{NaturalKey: "Q3CO", Inception: timePtr(date(2020, 7, 1))}

	periods, _ := Plan(ds, ent, nil, ModeIncremental, date(2021, 5, 20))
	require.NotEmpty(t, periods)
	assert.Equal(t, "2020Q3", periods[0].Label())
}

func TestPlanQuarterlyIncrementalTruncates(t *testing.T) {
	ds := quarterly(t)
	ent := &models.Entity{NaturalKey: "NEWCO", Inception: timePtr(date(2020, 6, 15))}
	wm := &models.Watermark{LastPeriodCovered: timePtr(date(2023, 9, 30))}
	now := date(2024, 5, 20)

	periods, _ := Plan(ds, ent, wm, ModeIncremental, now)
	assert.Equal(t, []string{"2023Q4", "2024Q1"}, labels(periods))
}

func TestPlanQuarterlyReplaceIgnoresWatermark(t *testing.T) {
	ds := quarterly(t)
	ent := &models.Entity{NaturalKey: "NEWCO", Inception: timePtr(date(2020, 6, 15))}
	wm := &models.Watermark{LastPeriodCovered: timePtr(date(2024, 3, 31))}
	now := date(2024, 5, 20)

	incremental, _ := Plan(ds, ent, wm, ModeIncremental, now)
	assert.Empty(t, incremental)

	replace, _ := Plan(ds, ent, wm, ModeReplace, now)
	require.NotEmpty(t, replace)
	assert.Equal(t, "2020Q3", replace[0].Label())
	assert.Len(t, replace, 15)
}

func TestPlanQuarterlyEmptyForYoungEntity(t *testing.T) {
	ds := quarterly(t)
	// Listed too recently for any quarter to have both completed and had its
	// reporting lag elapse.
	ent := &models.Entity{NaturalKey: "IPO", Inception: timePtr(date(2024, 4, 2))}

	periods, degraded := Plan(ds, ent, nil, ModeIncremental, date(2024, 5, 20))
	assert.Empty(t, periods)
	assert.False(t, degraded)
}

func TestPlanQuarterlyDelistedStopsAtTermination(t *testing.T) {
	ds := quarterly(t)
	ent := &models.Entity{
		NaturalKey:  "OLDCO",
		Inception:   timePtr(date(2020, 1, 1)),
		Termination: timePtr(date(2021, 5, 15)),
	}

	periods, _ := Plan(ds, ent, nil, ModeIncremental, date(2024, 5, 20))
	require.NotEmpty(t, periods)
	// The partial final quarter containing the delisting is still planned.
	assert.Equal(t, "2020Q1", periods[0].Label())
	assert.Equal(t, "2021Q2", periods[len(periods)-1].Label())
}

func TestPlanMissingInceptionDegrades(t *testing.T) {
	ds := quarterly(t)
	ent := &models.Entity{NaturalKey: "MYSTERY"}

	periods, degraded := Plan(ds, ent, nil, ModeIncremental, date(2024, 5, 20))
	require.NotEmpty(t, periods)
	assert.True(t, degraded)
	// Falls back to the dataset floor.
	assert.Equal(t, "2000Q1", periods[0].Label())
}

func TestPlanDailyRange(t *testing.T) {
	ds := daily(t)
	ent := &models.Entity{NaturalKey: "AAPL", Inception: timePtr(date(2020, 6, 15))}
	now := date(2024, 5, 20)

	periods, degraded := Plan(ds, ent, nil, ModeIncremental, now)
	require.Len(t, periods, 1)
	assert.False(t, degraded)
	assert.Equal(t, date(2020, 6, 15), periods[0].Start)
	assert.Equal(t, date(2024, 5, 20), periods[0].End)
}

func TestPlanDailyIncrementalClipsRange(t *testing.T) {
	ds := daily(t)
	ent := &models.Entity{NaturalKey: "AAPL", Inception: timePtr(date(2020, 6, 15))}
	wm := &models.Watermark{LastPeriodCovered: timePtr(date(2024, 5, 10))}

	periods, _ := Plan(ds, ent, wm, ModeIncremental, date(2024, 5, 20))
	require.Len(t, periods, 1)
	assert.Equal(t, date(2024, 5, 11), periods[0].Start)
	assert.Equal(t, date(2024, 5, 20), periods[0].End)
}

func TestPlanDailyFullyCovered(t *testing.T) {
	ds := daily(t)
	ent := &models.Entity{NaturalKey: "AAPL", Inception: timePtr(date(2020, 6, 15))}
	wm := &models.Watermark{LastPeriodCovered: timePtr(date(2024, 5, 20))}

	periods, _ := Plan(ds, ent, wm, ModeIncremental, date(2024, 5, 20))
	assert.Empty(t, periods)
}

func TestPlanDailyDelistedCapsAtTermination(t *testing.T) {
	ds := daily(t)
	ent := &models.Entity{
		NaturalKey:  "OLDCO",
		Inception:   timePtr(date(2020, 6, 15)),
		Termination: timePtr(date(2022, 2, 1)),
	}

	periods, _ := Plan(ds, ent, nil, ModeIncremental, date(2024, 5, 20))
	require.Len(t, periods, 1)
	assert.Equal(t, date(2022, 2, 1), periods[0].End)
}
