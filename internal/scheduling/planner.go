package scheduling

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/util"
)

// Mode selects how the planner treats existing coverage.
type Mode string

const (
	// ModeIncremental plans only periods strictly after the watermark's
	// last covered period.
	ModeIncremental Mode = "incremental"
	// ModeReplace plans the full range regardless of coverage.
	ModeReplace Mode = "replace"
)

// Period is one contiguous fetchable span. Quarterly datasets get one Period
// per calendar quarter; daily datasets get a single Period spanning the whole
// range of calendar days.
type Period struct {
	Start time.Time
	End   time.Time
}

// Label renders the period for logs: "2024Q1" for quarters, a date range
// otherwise.
func (p Period) Label() string {
	if p.Start.Equal(util.QuarterStart(p.End)) && p.End.Equal(util.QuarterEnd(p.End)) {
		return util.FormatQuarter(p.End)
	}
	return p.Start.Format("2006-01-02") + ".." + p.End.Format("2006-01-02")
}

// Plan computes the periods an (entity, dataset) pair still needs, oldest
// first. The lower bound is the later of the dataset floor and the entity's
// inception; the upper bound is the earlier of now (less the dataset's
// reporting lag) and the entity's termination. degraded is true when the
// entity has no inception date and the dataset floor stood in for it, which
// can plan far more history than the entity really has.
//
// An empty plan is a valid outcome, not an error: a fresh pair, an entity
// younger than one full period, or a delisted entity already covered all
// produce one.
func Plan(ds models.Dataset, ent *models.Entity, wm *models.Watermark, mode Mode, now time.Time) ([]Period, bool) {
	lower := ds.Floor
	degraded := false
	if ent.Inception != nil {
		if ent.Inception.After(lower) {
			lower = *ent.Inception
		}
	} else {
		degraded = true
		log.Warnf("%s has no inception date, planning %s from dataset floor %s",
			ent.NaturalKey, ds.Name, ds.Floor.Format("2006-01-02"))
	}

	upper := util.DateOnly(now.Add(-ds.ReportingLag))

	var periods []Period
	switch ds.Granularity {
	case models.GranularityQuarter:
		periods = quarterPeriods(lower, upper, ent.Termination)
	default:
		if ent.Termination != nil && ent.Termination.Before(upper) {
			upper = *ent.Termination
		}
		periods = dayRange(lower, upper)
	}

	if mode == ModeIncremental && wm != nil && wm.LastPeriodCovered != nil {
		periods = truncateCovered(periods, *wm.LastPeriodCovered)
	}
	return periods, degraded
}

// quarterPeriods lists calendar quarters from the first quarter beginning on
// or after lower through the last quarter completed by upper. A terminated
// entity stops at the quarter containing its termination date instead, so its
// final partial quarter is still fetched once the reporting lag has elapsed.
func quarterPeriods(lower, upper time.Time, termination *time.Time) []Period {
	start := util.QuarterStart(lower)
	if start.Before(util.DateOnly(lower)) {
		start = start.AddDate(0, 3, 0)
	}

	last := util.QuarterEnd(upper)
	if last.After(upper) {
		// The quarter containing upper has not completed; stop at the one
		// before it.
		last = util.QuarterStart(upper).AddDate(0, 0, -1)
	}
	if termination != nil {
		finalQuarter := util.QuarterEnd(*termination)
		if finalQuarter.Before(last) {
			last = finalQuarter
		}
	}

	var periods []Period
	for end := util.QuarterEnd(start); !end.After(last); end = util.NextQuarterEnd(end) {
		periods = append(periods, Period{Start: util.QuarterStart(end), End: end})
	}
	return periods
}

// dayRange is the single span of calendar days [lower, upper].
func dayRange(lower, upper time.Time) []Period {
	lower, upper = util.DateOnly(lower), util.DateOnly(upper)
	if lower.After(upper) {
		return nil
	}
	return []Period{{Start: lower, End: upper}}
}

// truncateCovered drops periods already covered, keeping only those ending
// strictly after the watermark. A daily range overlapping the boundary is
// clipped rather than dropped.
func truncateCovered(periods []Period, covered time.Time) []Period {
	var out []Period
	for _, p := range periods {
		if !p.End.After(covered) {
			continue
		}
		if !p.Start.After(covered) {
			p.Start = covered.AddDate(0, 0, 1)
		}
		out = append(out, p)
	}
	return out
}
