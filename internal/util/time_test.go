package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestQuarterBounds(t *testing.T) {
	tests := []struct {
		name  string
		in    time.Time
		start time.Time
		end   time.Time
	}{
		{"mid Q1", d(2024, 2, 14), d(2024, 1, 1), d(2024, 3, 31)},
		{"first day of Q2", d(2024, 4, 1), d(2024, 4, 1), d(2024, 6, 30)},
		{"last day of Q3", d(2024, 9, 30), d(2024, 7, 1), d(2024, 9, 30)},
		{"Q4 leap year boundary", d(2023, 12, 31), d(2023, 10, 1), d(2023, 12, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.start, QuarterStart(tt.in))
			assert.Equal(t, tt.end, QuarterEnd(tt.in))
		})
	}
}

func TestNextQuarterEnd(t *testing.T) {
	assert.Equal(t, d(2024, 6, 30), NextQuarterEnd(d(2024, 2, 14)))
	assert.Equal(t, d(2025, 3, 31), NextQuarterEnd(d(2024, 12, 31)))
}

func TestFormatQuarter(t *testing.T) {
	assert.Equal(t, "2024Q1", FormatQuarter(d(2024, 3, 31)))
	assert.Equal(t, "2020Q3", FormatQuarter(d(2020, 7, 1)))
}

func TestParseVendorDate(t *testing.T) {
	got := ParseVendorDate("2020-06-15")
	require.NotNil(t, got)
	assert.Equal(t, d(2020, 6, 15), *got)

	assert.Nil(t, ParseVendorDate(""))
	assert.Nil(t, ParseVendorDate("null"))
	assert.Nil(t, ParseVendorDate("None"))
	assert.Nil(t, ParseVendorDate("not-a-date"))
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte(`{"symbol":"AAPL"}`))
	b := ContentHash([]byte(`{"symbol":"AAPL"}`))
	c := ContentHash([]byte(`{"symbol":"MSFT"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
