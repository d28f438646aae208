package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

// fakeStore serves canned candidates and captures recorded outcomes.
type fakeStore struct {
	mu         sync.Mutex
	candidates []models.Candidate
	listErr    error
	outcomes   map[int64][]models.Outcome
}

func newFakeStore(candidates ...models.Candidate) *fakeStore {
	return &fakeStore{candidates: candidates, outcomes: map[int64][]models.Outcome{}}
}

func (s *fakeStore) ListCandidates(_ context.Context, _ string, _ models.CandidateFilter) ([]models.Candidate, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.candidates, nil
}

func (s *fakeStore) RecordOutcome(_ context.Context, entityID int64, _ string, outcome models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[entityID] = append(s.outcomes[entityID], outcome)
	return nil
}

func (s *fakeStore) recorded(entityID int64) []models.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[entityID]
}

// fakeFetcher returns scripted errors keyed by "KEY/period-label" and counts
// every call.
type fakeFetcher struct {
	mu      sync.Mutex
	errs    map[string]error
	fetched []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{errs: map[string]error{}}
}

func (f *fakeFetcher) fail(key string, err error) { f.errs[key] = err }

func (f *fakeFetcher) Fetch(_ context.Context, ent models.Entity, _ models.Dataset, p Period) error {
	key := ent.NaturalKey + "/" + p.Label()
	f.mu.Lock()
	f.fetched = append(f.fetched, key)
	f.mu.Unlock()
	return f.errs[key]
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func testOptions(t *testing.T) Options {
	t.Helper()
	ds, err := models.DatasetByName("balance_sheet")
	require.NoError(t, err)
	return Options{
		Dataset:          ds,
		Mode:             ModeIncremental,
		Staleness:        24 * time.Hour,
		FailureThreshold: 3,
		Workers:          2,
		Now:              date(2024, 5, 20),
	}
}

func candidate(key string, inception time.Time, wm *models.Watermark) models.Candidate {
	return models.Candidate{
		Entity: models.Entity{
			ID:         testID(key),
			NaturalKey: key,
			Kind:       models.EntityKindEquity,
			Inception:  &inception,
		},
		Watermark: wm,
	}
}

// testID is a stand-in identity for test candidates.
func testID(key string) int64 {
	var id int64
	for _, c := range key {
		id = id*31 + int64(c)
	}
	return id
}

func unlimited() *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) }

func TestRunRecordsSuccessAndAdvancesCoverage(t *testing.T) {
	// Covered through 2023Q3, so 2023Q4 and 2024Q1 remain.
	wm := &models.Watermark{Eligible: true, LastPeriodCovered: timePtr(date(2023, 9, 30))}
	cand := candidate("AAPL", date(2020, 6, 15), wm)
	store := newFakeStore(cand)
	fetcher := newFakeFetcher()

	coord := NewCoordinator(store, fetcher, unlimited())
	summary, err := coord.Run(context.Background(), testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Considered)
	assert.Equal(t, 1, summary.Eligible)
	assert.Equal(t, 2, summary.Planned)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []string{"AAPL/2023Q4", "AAPL/2024Q1"}, fetcher.calls())

	outcomes := store.recorded(cand.Entity.ID)
	require.Len(t, outcomes, 1, "exactly one outcome per pair")
	assert.Equal(t, models.RunStatusSuccess, outcomes[0].Status)
	require.NotNil(t, outcomes[0].CoveredThrough)
	assert.Equal(t, date(2024, 3, 31), *outcomes[0].CoveredThrough)
}

func TestRunPartialFailureStopsCoverageAtBoundary(t *testing.T) {
	// Four quarters planned; the second fails. Later quarters are still
	// attempted but coverage only advances through the first.
	wm := &models.Watermark{Eligible: true, LastPeriodCovered: timePtr(date(2023, 3, 31))}
	cand := candidate("AAPL", date(2020, 6, 15), wm)
	store := newFakeStore(cand)
	fetcher := newFakeFetcher()
	fetcher.fail("AAPL/2023Q4", errors.New("boom"))

	coord := NewCoordinator(store, fetcher, unlimited())
	summary, err := coord.Run(context.Background(), testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, fetcher.calls(), 4, "remaining periods are still attempted")

	outcomes := store.recorded(cand.Entity.ID)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.RunStatusError, outcomes[0].Status)
	require.NotNil(t, outcomes[0].CoveredThrough)
	assert.Equal(t, date(2023, 9, 30), *outcomes[0].CoveredThrough,
		"coverage stops at the last contiguous success before the failure")
}

func TestRunNoDataAdvancesCoverage(t *testing.T) {
	wm := &models.Watermark{Eligible: true, LastPeriodCovered: timePtr(date(2023, 9, 30))}
	cand := candidate("SHELL", date(2020, 6, 15), wm)
	store := newFakeStore(cand)
	fetcher := newFakeFetcher()
	fetcher.fail("SHELL/2023Q4", ErrNoData)
	fetcher.fail("SHELL/2024Q1", ErrNoData)

	coord := NewCoordinator(store, fetcher, unlimited())
	summary, err := coord.Run(context.Background(), testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NoData)
	assert.Equal(t, 0, summary.Failed)

	outcomes := store.recorded(cand.Entity.ID)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.RunStatusNoData, outcomes[0].Status)
	require.NotNil(t, outcomes[0].CoveredThrough)
	assert.Equal(t, date(2024, 3, 31), *outcomes[0].CoveredThrough,
		"definitive no-data advances coverage so the period is not re-queried")
}

func TestRunDryRunFetchesAndWritesNothing(t *testing.T) {
	cand := candidate("AAPL", date(2020, 6, 15), nil)
	store := newFakeStore(cand)
	fetcher := newFakeFetcher()

	opts := testOptions(t)
	opts.DryRun = true

	coord := NewCoordinator(store, fetcher, unlimited())
	summary, err := coord.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Eligible)
	assert.Equal(t, 15, summary.Planned)
	assert.Empty(t, fetcher.calls())
	assert.Empty(t, store.recorded(cand.Entity.ID))
}

func TestRunUnauthenticatedAbortsCycle(t *testing.T) {
	wm := &models.Watermark{Eligible: true, LastPeriodCovered: timePtr(date(2023, 9, 30))}
	cand := candidate("AAPL", date(2020, 6, 15), wm)
	store := newFakeStore(cand)
	fetcher := newFakeFetcher()
	fetcher.fail("AAPL/2023Q4", ErrUnauthenticated)

	coord := NewCoordinator(store, fetcher, unlimited())
	_, err := coord.Run(context.Background(), testOptions(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.Empty(t, store.recorded(cand.Entity.ID),
		"a pair without a fully known outcome gets no watermark write")
}

func TestRunReportsCircuitBroken(t *testing.T) {
	wm := &models.Watermark{
		Eligible:            true,
		ConsecutiveFailures: 2,
		LastSuccessAt:       timePtr(date(2024, 5, 10)),
		LastPeriodCovered:   timePtr(date(2023, 9, 30)),
	}
	cand := candidate("FLAKY", date(2020, 6, 15), wm)
	store := newFakeStore(cand)
	fetcher := newFakeFetcher()
	fetcher.fail("FLAKY/2023Q4", errors.New("boom"))
	fetcher.fail("FLAKY/2024Q1", errors.New("boom"))

	coord := NewCoordinator(store, fetcher, unlimited())
	summary, err := coord.Run(context.Background(), testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"FLAKY"}, summary.CircuitBroken,
		"third consecutive failure trips the threshold")
}

func TestRunSkipsFreshAndSuspendedPairs(t *testing.T) {
	now := date(2024, 5, 20)
	fresh := candidate("FRESH", date(2020, 6, 15), &models.Watermark{
		Eligible:      true,
		LastSuccessAt: timePtr(now.Add(-2 * time.Hour)),
	})
	suspended := candidate("STUCK", date(2020, 6, 15), &models.Watermark{
		Eligible:            true,
		ConsecutiveFailures: 3,
		LastSuccessAt:       timePtr(now.Add(-48 * time.Hour)),
	})
	stale := candidate("STALE", date(2020, 6, 15), &models.Watermark{
		Eligible:          true,
		LastSuccessAt:     timePtr(now.Add(-48 * time.Hour)),
		LastPeriodCovered: timePtr(date(2024, 3, 31)),
	})

	store := newFakeStore(fresh, suspended, stale)
	fetcher := newFakeFetcher()

	coord := NewCoordinator(store, fetcher, unlimited())
	summary, err := coord.Run(context.Background(), testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Considered)
	// STALE is due but already fully covered, so its plan is empty.
	assert.Equal(t, 1, summary.Eligible)
	assert.Equal(t, 3, summary.Skipped)
	assert.Empty(t, fetcher.calls())
}

func TestRunIncludeFailedRetriesSuspendedPairOnce(t *testing.T) {
	// failures=3 trips the threshold, so only the IncludeFailed run admits
	// the pair. A repeat failure is recorded as a normal error outcome; the
	// override grants one attempt, not a counter reset.
	wm := &models.Watermark{
		Eligible:            true,
		ConsecutiveFailures: 3,
		LastSuccessAt:       timePtr(date(2024, 5, 1)),
		LastPeriodCovered:   timePtr(date(2023, 12, 31)),
	}
	cand := candidate("STUCK", date(2020, 6, 15), wm)
	fetcher := newFakeFetcher()
	fetcher.fail("STUCK/2024Q1", errors.New("boom"))

	store := newFakeStore(cand)
	coord := NewCoordinator(store, fetcher, unlimited())

	opts := testOptions(t)
	summary, err := coord.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Eligible)
	assert.Empty(t, store.recorded(cand.Entity.ID), "suspended pair is skipped without the override")

	opts.IncludeFailed = true
	summary, err = coord.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Eligible)
	assert.Equal(t, 1, summary.Failed)

	outcomes := store.recorded(cand.Entity.ID)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.RunStatusError, outcomes[0].Status)
}

func TestRunListFailureIsInfrastructureError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("connection refused")

	coord := NewCoordinator(store, newFakeFetcher(), unlimited())
	_, err := coord.Run(context.Background(), testOptions(t))
	require.Error(t, err)
}
