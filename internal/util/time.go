package util

import (
	"fmt"
	"time"
)

// QuarterStart returns the first day of the calendar quarter containing t.
func QuarterStart(t time.Time) time.Time {
	month := ((int(t.Month())-1)/3)*3 + 1
	return time.Date(t.Year(), time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// QuarterEnd returns the last day of the calendar quarter containing t.
func QuarterEnd(t time.Time) time.Time {
	return QuarterStart(t).AddDate(0, 3, -1)
}

// NextQuarterEnd returns the last day of the quarter after the one containing t.
func NextQuarterEnd(t time.Time) time.Time {
	return QuarterStart(t).AddDate(0, 6, -1)
}

// FormatQuarter renders a date inside a quarter as "2024Q1".
func FormatQuarter(t time.Time) string {
	return fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())-1)/3+1)
}

// DateOnly truncates a time to midnight UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseVendorDate parses a vendor "2006-01-02" date. The vendor serializes
// absent dates as "", "null" or "None"; those return nil rather than an error.
func ParseVendorDate(s string) *time.Time {
	if s == "" || s == "null" || s == "None" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
