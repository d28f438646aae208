package models

import (
	"fmt"
	"time"
)

// Granularity is the period size a dataset is fetched at
type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityQuarter Granularity = "quarter"
)

// Dataset describes one vendor dataset tracked by watermarks.
type Dataset struct {
	Name        string
	Granularity Granularity
	// Floor is the earliest period the vendor supports for this dataset.
	Floor time.Time
	// ReportingLag is how long after a period ends its data is expected to
	// become available. The planner excludes periods whose lag has not yet
	// elapsed, so freshly closed fiscal quarters are not re-queried daily.
	ReportingLag time.Duration
	// APIFunction is the vendor endpoint that serves this dataset.
	APIFunction string
}

const quarterlyReportingLag = 45 * 24 * time.Hour

// datasets is the registry of known datasets, keyed by name.
var datasets = map[string]Dataset{
	"balance_sheet": {
		Name:         "balance_sheet",
		Granularity:  GranularityQuarter,
		Floor:        time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		ReportingLag: quarterlyReportingLag,
		APIFunction:  "BALANCE_SHEET",
	},
	"income_statement": {
		Name:         "income_statement",
		Granularity:  GranularityQuarter,
		Floor:        time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		ReportingLag: quarterlyReportingLag,
		APIFunction:  "INCOME_STATEMENT",
	},
	"cash_flow": {
		Name:         "cash_flow",
		Granularity:  GranularityQuarter,
		Floor:        time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		ReportingLag: quarterlyReportingLag,
		APIFunction:  "CASH_FLOW",
	},
	"time_series_daily_adjusted": {
		Name:        "time_series_daily_adjusted",
		Granularity: GranularityDay,
		Floor:       time.Date(1999, 11, 1, 0, 0, 0, 0, time.UTC),
		APIFunction: "TIME_SERIES_DAILY_ADJUSTED",
	},
	"overview": {
		Name:         "overview",
		Granularity:  GranularityQuarter,
		Floor:        time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		ReportingLag: quarterlyReportingLag,
		APIFunction:  "OVERVIEW",
	},
}

// DatasetByName looks up a dataset in the registry.
func DatasetByName(name string) (Dataset, error) {
	ds, ok := datasets[name]
	if !ok {
		return Dataset{}, fmt.Errorf("unknown dataset: %s", name)
	}
	return ds, nil
}

// DatasetNames returns the registry keys in no particular order.
func DatasetNames() []string {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	return names
}
