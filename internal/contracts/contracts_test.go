package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestSortBars(t *testing.T) {
	bars := []Bar{
		{Date: day("2024-01-03"), Close: 3},
		{Date: day("2024-01-01"), Close: 1},
		{Date: day("2024-01-02"), Close: 2},
		{Date: day("2024-01-01"), Close: 10},
	}

	sorted := SortBars(bars)
	require.Len(t, sorted, 3)
	assert.Equal(t, day("2024-01-01"), sorted[0].Date)
	assert.Equal(t, 10.0, sorted[0].Close, "later duplicate wins")
	assert.Equal(t, 3.0, sorted[2].Close)

	// input untouched
	assert.Equal(t, 3.0, bars[0].Close)
}

func TestBarsThrough(t *testing.T) {
	bars := []Bar{
		{Date: day("2024-01-01")},
		{Date: day("2024-01-02")},
		{Date: day("2024-01-03")},
	}

	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"before all", day("2023-12-31"), 0},
		{"on a bar", day("2024-01-02"), 2},
		{"between bars", day("2024-01-02").Add(12 * time.Hour), 2},
		{"after all", day("2024-02-01"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(BarsThrough(bars, tt.at)); got != tt.want {
				t.Errorf("BarsThrough() len = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseScanMode(t *testing.T) {
	mode, err := ParseScanMode("")
	require.NoError(t, err)
	assert.Equal(t, ScanModeIncremental, mode)

	mode, err = ParseScanMode("full")
	require.NoError(t, err)
	assert.Equal(t, ScanModeFull, mode)

	_, err = ParseScanMode("turbo")
	assert.ErrorIs(t, err, ErrUnknownScanMode)
}

func TestThroughFilters(t *testing.T) {
	cutoff := day("2024-06-30")
	earnings := []EarningsRecord{{QuarterEnd: day("2024-03-31")}, {QuarterEnd: day("2024-09-30")}}
	ownership := []OwnershipRecord{{Date: day("2024-06-30")}, {Date: day("2024-07-01")}}

	assert.Len(t, EarningsThrough(earnings, cutoff), 1)
	assert.Len(t, OwnershipThrough(ownership, cutoff), 1)
}

func TestClocks(t *testing.T) {
	fixed := FixedClock{T: day("2024-05-01")}
	assert.Equal(t, day("2024-05-01"), fixed.Now())

	assert.Equal(t, time.UTC, SystemClock{}.Now().Location())
	assert.Equal(t, day("2024-05-01"), Day(day("2024-05-01").Add(23*time.Hour)))
}
