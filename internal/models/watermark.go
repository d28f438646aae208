package models

import (
	"time"
)

// RunStatus classifies the outcome of one processing attempt
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusNoData  RunStatus = "no_data"
	RunStatusError   RunStatus = "error"
)

// Watermark is the persisted processing history for one (entity, dataset)
// pair. Rows are created lazily on the first scheduling attempt and mutated
// exactly once per processing attempt through WatermarkRepository.RecordOutcome.
type Watermark struct {
	EntityID            int64      `json:"entity_id"`
	Dataset             string     `json:"dataset_name"`
	LastSuccessAt       *time.Time `json:"last_success_at"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FirstPeriodCovered  *time.Time `json:"first_period_covered"`
	LastPeriodCovered   *time.Time `json:"last_period_covered"`
	Eligible            bool       `json:"eligible"`
	LastRunStatus       RunStatus  `json:"last_run_status"`
}

// Outcome is what the Coordinator reports for one (entity, dataset) pair
// after a run. CoveredThrough is the most advanced period actually persisted;
// nil means coverage did not move.
type Outcome struct {
	Status         RunStatus
	CoveredThrough *time.Time
}

// Candidate is a watermark row joined with its entity metadata, as returned
// by WatermarkRepository.ListCandidates. Watermark is nil for pairs that have
// never been scheduled.
type Candidate struct {
	Entity    Entity
	Watermark *Watermark
}

// CandidateFilter narrows the candidate listing. Zero value means no filter.
type CandidateFilter struct {
	Kinds             []EntityKind
	KeyPrefix         string
	IncludeIneligible bool
	Limit             int
}

// WatermarkSummary aggregates watermark state for one dataset.
type WatermarkSummary struct {
	Dataset        string     `json:"dataset_name"`
	Pairs          int        `json:"pairs"`
	Eligible       int        `json:"eligible"`
	Suspended      int        `json:"suspended"`
	Failing        int        `json:"failing"`
	NeverSucceeded int        `json:"never_succeeded"`
	OldestSuccess  *time.Time `json:"oldest_success"`
	NewestSuccess  *time.Time `json:"newest_success"`
}
