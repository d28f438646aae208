package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestEligibilityClassify(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	engine := Eligibility{Staleness: 24 * time.Hour, FailureThreshold: 3}

	active := &models.Entity{ID: 1, NaturalKey: "AAPL"}
	delisted := &models.Entity{
		ID: 2, NaturalKey: "OLDCO",
		Termination: timePtr(time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)),
	}

	tests := []struct {
		name   string
		ent    *models.Entity
		wm     *models.Watermark
		reason Reason
		due    bool
	}{
		{
			name:   "never scheduled",
			ent:    active,
			wm:     nil,
			reason: ReasonNeverProcessed,
			due:    true,
		},
		{
			name:   "scheduled but never succeeded",
			ent:    active,
			wm:     &models.Watermark{Eligible: true},
			reason: ReasonNeverProcessed,
			due:    true,
		},
		{
			name: "stale at 40 hours",
			ent:  active,
			wm: &models.Watermark{
				Eligible:      true,
				LastSuccessAt: timePtr(now.Add(-40 * time.Hour)),
			},
			reason: ReasonStale,
			due:    true,
		},
		{
			name: "stale exactly at the boundary",
			ent:  active,
			wm: &models.Watermark{
				Eligible:      true,
				LastSuccessAt: timePtr(now.Add(-24 * time.Hour)),
			},
			reason: ReasonStale,
			due:    true,
		},
		{
			name: "fresh at 20 hours",
			ent:  active,
			wm: &models.Watermark{
				Eligible:      true,
				LastSuccessAt: timePtr(now.Add(-20 * time.Hour)),
			},
			reason: ReasonFresh,
			due:    false,
		},
		{
			name: "suspended by failure threshold even when stale",
			ent:  active,
			wm: &models.Watermark{
				Eligible:            true,
				ConsecutiveFailures: 3,
				LastSuccessAt:       timePtr(now.Add(-48 * time.Hour)),
			},
			reason: ReasonSuspended,
			due:    false,
		},
		{
			name: "operator disabled",
			ent:  active,
			wm: &models.Watermark{
				Eligible:      false,
				LastSuccessAt: timePtr(now.Add(-48 * time.Hour)),
			},
			reason: ReasonDisabled,
			due:    false,
		},
		{
			name: "delisted with coverage through termination",
			ent:  delisted,
			wm: &models.Watermark{
				Eligible:          true,
				LastSuccessAt:     timePtr(now.Add(-400 * time.Hour)),
				LastPeriodCovered: timePtr(time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)),
			},
			reason: ReasonDelistedCovered,
			due:    false,
		},
		{
			name: "delisted with a coverage gap is still due",
			ent:  delisted,
			wm: &models.Watermark{
				Eligible:          true,
				LastSuccessAt:     timePtr(now.Add(-400 * time.Hour)),
				LastPeriodCovered: timePtr(time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)),
			},
			reason: ReasonStale,
			due:    true,
		},
		{
			name: "termination in the future is not yet delisted",
			ent: &models.Entity{
				ID: 3, NaturalKey: "SOON",
				Termination: timePtr(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)),
			},
			wm: &models.Watermark{
				Eligible:          true,
				LastSuccessAt:     timePtr(now.Add(-2 * time.Hour)),
				LastPeriodCovered: timePtr(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)),
			},
			reason: ReasonFresh,
			due:    false,
		},
		{
			name:   "delisted never processed is still due",
			ent:    delisted,
			wm:     nil,
			reason: ReasonNeverProcessed,
			due:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, engine.Classify(tt.ent, tt.wm, now))
			assert.Equal(t, tt.due, engine.IsDue(tt.ent, tt.wm, now))
		})
	}
}

func TestEligibilityIncludeFailed(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	ent := &models.Entity{ID: 1, NaturalKey: "AAPL"}
	suspended := &models.Watermark{
		Eligible:            true,
		ConsecutiveFailures: 5,
		LastSuccessAt:       timePtr(now.Add(-48 * time.Hour)),
	}

	normal := Eligibility{Staleness: 24 * time.Hour, FailureThreshold: 3}
	assert.Equal(t, ReasonSuspended, normal.Classify(ent, suspended, now))

	retry := Eligibility{Staleness: 24 * time.Hour, FailureThreshold: 3, IncludeFailed: true}
	assert.Equal(t, ReasonStale, retry.Classify(ent, suspended, now))
	assert.True(t, retry.IsDue(ent, suspended, now))

	// The operator kill switch is not a failure state; the retry override
	// leaves it alone.
	disabled := &models.Watermark{
		Eligible:      false,
		LastSuccessAt: timePtr(now.Add(-48 * time.Hour)),
	}
	assert.Equal(t, ReasonDisabled, retry.Classify(ent, disabled, now))
	assert.False(t, retry.IsDue(ent, disabled, now))
}
