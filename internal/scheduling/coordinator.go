package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

// ErrNoData marks a definitive vendor answer that a period has no data. It
// advances coverage like a success so the period is not re-queried forever.
var ErrNoData = errors.New("no data for period")

// ErrUnauthenticated marks a credential rejection. Retrying other pairs with
// the same key is pointless, so the whole cycle aborts.
var ErrUnauthenticated = errors.New("vendor rejected credentials")

// Fetcher performs the actual data pull for one period of one pair.
// Implementations signal outcomes through the error: nil for success,
// ErrNoData, ErrUnauthenticated, and anything else for a transient failure.
type Fetcher interface {
	Fetch(ctx context.Context, ent models.Entity, ds models.Dataset, p Period) error
}

// WatermarkStore is the persistence the coordinator needs; implemented by
// repository.WatermarkRepository.
type WatermarkStore interface {
	ListCandidates(ctx context.Context, dataset string, filter models.CandidateFilter) ([]models.Candidate, error)
	RecordOutcome(ctx context.Context, entityID int64, dataset string, outcome models.Outcome) error
}

// Options configures one coordinator cycle.
type Options struct {
	Dataset          models.Dataset
	Mode             Mode
	Staleness        time.Duration
	FailureThreshold int
	IncludeFailed    bool
	DryRun           bool
	Workers          int
	Filter           models.CandidateFilter
	Now              time.Time // zero means time.Now()
}

// CycleSummary reports what one cycle did.
type CycleSummary struct {
	Dataset       string        `json:"dataset_name"`
	DryRun        bool          `json:"dry_run"`
	Considered    int           `json:"considered"`
	Eligible      int           `json:"eligible"`
	Planned       int           `json:"planned_periods"`
	Skipped       int           `json:"skipped"`
	Succeeded     int           `json:"succeeded"`
	NoData        int           `json:"no_data"`
	Failed        int           `json:"failed"`
	CircuitBroken []string      `json:"circuit_broken,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Coordinator drives one processing cycle for a dataset: list candidates,
// decide who is due, plan their missing periods, fetch with bounded
// concurrency under a shared rate limit, and record exactly one watermark
// outcome per processed pair.
type Coordinator struct {
	store   WatermarkStore
	fetcher Fetcher
	limiter *rate.Limiter
}

// NewCoordinator wires a coordinator. The limiter is shared across all
// workers so the vendor budget holds regardless of worker count.
func NewCoordinator(store WatermarkStore, fetcher Fetcher, limiter *rate.Limiter) *Coordinator {
	return &Coordinator{store: store, fetcher: fetcher, limiter: limiter}
}

// unit is one dispatched pair with its plan.
type unit struct {
	candidate models.Candidate
	periods   []Period
}

// Run executes one cycle. Per-entity failures are recorded in watermarks and
// the summary, not returned as an error; the returned error is reserved for
// infrastructure problems (store unreachable, credentials rejected, context
// done) that abort the cycle.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*CycleSummary, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	started := time.Now()

	candidates, err := c.store.ListCandidates(ctx, opts.Dataset.Name, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}

	engine := Eligibility{
		Staleness:        opts.Staleness,
		FailureThreshold: opts.FailureThreshold,
		IncludeFailed:    opts.IncludeFailed,
	}

	summary := &CycleSummary{
		Dataset:    opts.Dataset.Name,
		DryRun:     opts.DryRun,
		Considered: len(candidates),
	}

	var units []unit
	for _, cand := range candidates {
		reason := engine.Classify(&cand.Entity, cand.Watermark, now)
		if !reason.Due() {
			log.Debugf("skip %s/%s: %s", cand.Entity.NaturalKey, opts.Dataset.Name, reason)
			summary.Skipped++
			continue
		}
		summary.Eligible++

		periods, degraded := Plan(opts.Dataset, &cand.Entity, cand.Watermark, opts.Mode, now)
		if degraded {
			log.Warnf("planned %s/%s with degraded confidence", cand.Entity.NaturalKey, opts.Dataset.Name)
		}
		if len(periods) == 0 {
			log.Debugf("skip %s/%s: nothing to fetch", cand.Entity.NaturalKey, opts.Dataset.Name)
			summary.Skipped++
			continue
		}
		summary.Planned += len(periods)
		units = append(units, unit{candidate: cand, periods: periods})
	}

	if opts.DryRun {
		for _, u := range units {
			log.Infof("dry-run %s/%s: %d period(s), %s..%s",
				u.candidate.Entity.NaturalKey, opts.Dataset.Name, len(u.periods),
				u.periods[0].Label(), u.periods[len(u.periods)-1].Label())
		}
		summary.Elapsed = time.Since(started)
		return summary, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, u := range units {
		u := u
		g.Go(func() error {
			outcome, fetchErr := c.processPair(gctx, u, opts.Dataset)
			if fetchErr != nil {
				// Unauthenticated or context done: no outcome is known, so
				// no watermark write for this pair. Abort the cycle.
				return fetchErr
			}

			if err := c.store.RecordOutcome(gctx, u.candidate.Entity.ID, opts.Dataset.Name, outcome); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			switch outcome.Status {
			case models.RunStatusSuccess:
				summary.Succeeded++
			case models.RunStatusNoData:
				summary.NoData++
			case models.RunStatusError:
				summary.Failed++
				failures := 1
				if u.candidate.Watermark != nil {
					failures = u.candidate.Watermark.ConsecutiveFailures + 1
				}
				if failures >= opts.FailureThreshold {
					summary.CircuitBroken = append(summary.CircuitBroken, u.candidate.Entity.NaturalKey)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Elapsed = time.Since(started)
	log.Infof("cycle %s: %d considered, %d eligible, %d succeeded, %d no-data, %d failed, %d skipped in %s",
		summary.Dataset, summary.Considered, summary.Eligible, summary.Succeeded,
		summary.NoData, summary.Failed, summary.Skipped, summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

// processPair fetches every planned period for one pair, oldest first, and
// folds the per-period results into a single outcome. Coverage advances only
// through the contiguous run of successful periods from the start of the
// plan; a later success after a failure does not move the watermark past the
// gap. A non-nil error return means the outcome is unknown and the cycle must
// stop.
func (c *Coordinator) processPair(ctx context.Context, u unit, ds models.Dataset) (models.Outcome, error) {
	ent := u.candidate.Entity

	var coveredThrough *time.Time
	contiguous := true
	anySuccess := false
	anyFailure := false

	for _, p := range u.periods {
		if err := c.limiter.Wait(ctx); err != nil {
			return models.Outcome{}, err
		}

		err := c.fetcher.Fetch(ctx, ent, ds, p)
		switch {
		case err == nil:
			anySuccess = true
			if contiguous {
				end := p.End
				coveredThrough = &end
			}
		case errors.Is(err, ErrNoData):
			// Definitive answer; counts as covered.
			if contiguous {
				end := p.End
				coveredThrough = &end
			}
		case errors.Is(err, ErrUnauthenticated):
			return models.Outcome{}, fmt.Errorf("fetching %s/%s: %w", ent.NaturalKey, ds.Name, err)
		case ctx.Err() != nil:
			return models.Outcome{}, ctx.Err()
		default:
			log.Errorf("fetch %s/%s %s: %v", ent.NaturalKey, ds.Name, p.Label(), err)
			anyFailure = true
			contiguous = false
		}
	}

	status := models.RunStatusSuccess
	switch {
	case anyFailure:
		status = models.RunStatusError
	case !anySuccess:
		status = models.RunStatusNoData
	}
	return models.Outcome{Status: status, CoveredThrough: coveredThrough}, nil
}
