package scheduling

import (
	"time"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

// Reason explains an eligibility decision. Due reasons are ReasonNeverProcessed
// and ReasonStale; everything else skips the pair.
type Reason string

const (
	ReasonNeverProcessed  Reason = "never_processed"
	ReasonStale           Reason = "stale"
	ReasonFresh           Reason = "fresh"
	ReasonSuspended       Reason = "suspended"        // failure threshold reached
	ReasonDisabled        Reason = "disabled"         // operator kill switch
	ReasonDelistedCovered Reason = "delisted_covered" // terminated, coverage complete
)

// Due reports whether a reason means the pair should be processed.
func (r Reason) Due() bool {
	return r == ReasonNeverProcessed || r == ReasonStale
}

// Eligibility decides whether an (entity, dataset) pair is due for
// processing. It is pure: all state comes in through the arguments.
type Eligibility struct {
	// Staleness is how old the last success may be before the pair is due
	// again.
	Staleness time.Duration
	// FailureThreshold suspends a pair after this many consecutive failures.
	FailureThreshold int
	// IncludeFailed also admits suspended pairs for one run, without
	// touching their failure counters. It does not override the operator
	// kill switch.
	IncludeFailed bool
}

// Classify returns the reason the pair is or is not due at the given time.
// wm is nil for pairs that have never been scheduled.
func (e Eligibility) Classify(ent *models.Entity, wm *models.Watermark, now time.Time) Reason {
	if wm != nil {
		if !wm.Eligible {
			return ReasonDisabled
		}
		if !e.IncludeFailed && wm.ConsecutiveFailures >= e.FailureThreshold {
			return ReasonSuspended
		}
	}

	// A delisted entity whose coverage reached its termination date can never
	// produce new data; it is processed while a gap remains, then parked.
	if !ent.Active(now) && wm != nil && wm.LastPeriodCovered != nil &&
		!wm.LastPeriodCovered.Before(*ent.Termination) {
		return ReasonDelistedCovered
	}

	if wm == nil || wm.LastSuccessAt == nil {
		return ReasonNeverProcessed
	}
	if now.Sub(*wm.LastSuccessAt) >= e.Staleness {
		return ReasonStale
	}
	return ReasonFresh
}

// IsDue is Classify reduced to a decision.
func (e Eligibility) IsDue(ent *models.Entity, wm *models.Watermark, now time.Time) bool {
	return e.Classify(ent, wm, now).Due()
}
