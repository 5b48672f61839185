// Package metrics computes per-symbol CAN SLIM factor values.
// Every function is pure and total: short or empty input yields the factor's
// documented neutral value instead of an error.
package metrics

import (
	"math"
	"time"

	"github.com/wonny/canslim/internal/contracts"
)

const (
	// TradingYear is the trailing window for new highs and relative strength
	TradingYear = 252
	// VolumeWindow is the averaging window for volume spike and liquidity
	VolumeWindow = 50
	// BreakoutVolumeRatio is the minimum volume spike for breakout confirmation
	BreakoutVolumeRatio = 1.5

	yearAgoToleranceDays  = 45
	minQuarterlyForGrowth = 5
	minQuarterlyForCAGR   = 16
)

// CurrentEarningsGrowth compares the latest quarter's EPS with the quarter
// reported about one year earlier (quarter end within 45 days of latest-1y).
// Records must be ordered ascending by quarter end.
func CurrentEarningsGrowth(records []contracts.EarningsRecord) float64 {
	if len(records) < minQuarterlyForGrowth {
		return 0
	}

	latest := records[len(records)-1]
	target := latest.QuarterEnd.AddDate(-1, 0, 0)
	tolerance := time.Duration(yearAgoToleranceDays) * 24 * time.Hour

	var matched *contracts.EarningsRecord
	bestGap := time.Duration(math.MaxInt64)
	for i := range records[:len(records)-1] {
		gap := absDuration(records[i].QuarterEnd.Sub(target))
		if gap <= tolerance && gap < bestGap {
			matched = &records[i]
			bestGap = gap
		}
	}

	if matched == nil || matched.EPS == 0 {
		return 0
	}
	return (latest.EPS - matched.EPS) / math.Abs(matched.EPS)
}

// AnnualEarningsCAGR is the 3-year growth rate of trailing-four-quarter EPS.
// A non-positive base yields 0.
func AnnualEarningsCAGR(records []contracts.EarningsRecord) float64 {
	n := len(records)
	if n < minQuarterlyForCAGR {
		return 0
	}

	now := sumEPS(records[n-4:])
	then := sumEPS(records[n-16 : n-12])
	if then <= 0 {
		return 0
	}

	// cube root keeps a negative "now" finite
	return math.Cbrt(now/then) - 1
}

// NewHighRatio is the latest close over the highest high of the trailing 252 bars
func NewHighRatio(bars []contracts.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}

	window := tail(bars, TradingYear)
	maxHigh := 0.0
	for _, b := range window {
		maxHigh = math.Max(maxHigh, b.High)
	}
	if maxHigh <= 0 {
		return 0
	}
	return bars[len(bars)-1].Close / maxHigh
}

// VolumeSpike is the latest volume over the mean of the preceding 50 bars
func VolumeSpike(bars []contracts.Bar) float64 {
	n := len(bars)
	if n < VolumeWindow+1 {
		return 1
	}

	mean := meanVolume(bars[n-1-VolumeWindow : n-1])
	if mean == 0 {
		return 1
	}
	return float64(bars[n-1].Volume) / mean
}

// TrailingReturn is the return over the trailing 252-bar window.
// ok is false when fewer than 252 bars exist or the base close is not positive.
func TrailingReturn(bars []contracts.Bar) (ret float64, ok bool) {
	n := len(bars)
	if n < TradingYear {
		return 0, false
	}
	base := bars[n-TradingYear].Close
	if base <= 0 {
		return 0, false
	}
	return bars[n-1].Close/base - 1, true
}

// RSPercentile ranks the subject's trailing return against the peer sample:
// the fraction of peers strictly beaten, times 100. The subject's own entry in
// the sample is ignored. Fewer than 252 bars, or no peers, yields 50.
func RSPercentile(symbol string, bars []contracts.Bar, sample ReturnSample) float64 {
	ret, ok := TrailingReturn(bars)
	if !ok {
		return 50
	}
	return sample.PercentileOf(symbol, ret)
}

// InstitutionalDelta is the change between the two latest ownership observations
func InstitutionalDelta(records []contracts.OwnershipRecord) float64 {
	n := len(records)
	if n < 2 {
		return 0
	}
	return records[n-1].InstitutionalPct - records[n-2].InstitutionalPct
}

// DollarVolume is the 50-bar mean volume times the 50-bar mean close
func DollarVolume(bars []contracts.Bar) float64 {
	window := tail(bars, VolumeWindow)
	if len(window) == 0 {
		return 0
	}
	return meanVolume(window) * meanClose(window)
}

// AveragePrice is the 50-bar mean close
func AveragePrice(bars []contracts.Bar) float64 {
	return meanClose(tail(bars, VolumeWindow))
}

// Breakout confirms close above the 50-bar average, a 1.5x volume spike and a
// close in the upper half of the day's range
func Breakout(bars []contracts.Bar) bool {
	n := len(bars)
	if n < VolumeWindow+1 {
		return false
	}

	last := bars[n-1]
	ma, _ := MovingAverage(bars, VolumeWindow)
	if last.Close <= ma {
		return false
	}
	if VolumeSpike(bars) < BreakoutVolumeRatio {
		return false
	}

	mid := last.Low + (last.High-last.Low)/2
	return last.Close > mid
}

// MovingAverage is the mean close of the trailing window.
// ok is false when fewer bars than the window exist.
func MovingAverage(bars []contracts.Bar, window int) (float64, bool) {
	if window <= 0 || len(bars) < window {
		return 0, false
	}
	return meanClose(bars[len(bars)-window:]), true
}

// IsUptrend reports price > MA(short) > MA(long).
// Insufficient history for the long window fails open (true).
func IsUptrend(bars []contracts.Bar, short, long int) bool {
	longMA, ok := MovingAverage(bars, long)
	if !ok {
		return true
	}
	shortMA, ok := MovingAverage(bars, short)
	if !ok {
		return true
	}
	price := bars[len(bars)-1].Close
	return price > shortMA && shortMA > longMA
}

// === helpers ===

func tail(bars []contracts.Bar, n int) []contracts.Bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

func meanVolume(bars []contracts.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bars {
		sum += float64(b.Volume)
	}
	return sum / float64(len(bars))
}

func meanClose(bars []contracts.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

func sumEPS(records []contracts.EarningsRecord) float64 {
	var sum float64
	for _, r := range records {
		sum += r.EPS
	}
	return sum
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
