package metrics

import (
	"sort"

	"github.com/wonny/canslim/internal/contracts"
)

// ReturnSample is the universe-wide set of trailing-year returns used for
// relative strength. It is immutable; With returns an updated copy.
type ReturnSample struct {
	returns map[string]float64
	sorted  []float64
}

// NewReturnSample builds a sample from symbol → trailing return
func NewReturnSample(returns map[string]float64) ReturnSample {
	copied := make(map[string]float64, len(returns))
	for k, v := range returns {
		copied[k] = v
	}
	return ReturnSample{returns: copied, sorted: sortedValues(copied)}
}

// SampleFromBars keeps symbols with at least 252 bars
func SampleFromBars(series map[string][]contracts.Bar) ReturnSample {
	returns := make(map[string]float64, len(series))
	for symbol, bars := range series {
		if ret, ok := TrailingReturn(bars); ok {
			returns[symbol] = ret
		}
	}
	return ReturnSample{returns: returns, sorted: sortedValues(returns)}
}

// With returns a copy where the given symbols' returns are replaced.
// Symbols in drop are removed (their history fell below 252 bars).
func (s ReturnSample) With(updates map[string]float64, drop []string) ReturnSample {
	merged := make(map[string]float64, len(s.returns)+len(updates))
	for k, v := range s.returns {
		merged[k] = v
	}
	for _, k := range drop {
		delete(merged, k)
	}
	for k, v := range updates {
		merged[k] = v
	}
	return ReturnSample{returns: merged, sorted: sortedValues(merged)}
}

// Len is the number of symbols in the sample
func (s ReturnSample) Len() int { return len(s.returns) }

// Return looks up one symbol's trailing return
func (s ReturnSample) Return(symbol string) (float64, bool) {
	v, ok := s.returns[symbol]
	return v, ok
}

// Returns exposes a copy of the underlying map
func (s ReturnSample) Returns() map[string]float64 {
	out := make(map[string]float64, len(s.returns))
	for k, v := range s.returns {
		out[k] = v
	}
	return out
}

// PercentileOf is the share of peers (excluding symbol) with a strictly lower return, times 100.
// An empty peer set yields 50.
func (s ReturnSample) PercentileOf(symbol string, ret float64) float64 {
	peers := len(s.sorted)
	beaten := sort.SearchFloat64s(s.sorted, ret)

	if own, ok := s.returns[symbol]; ok {
		peers--
		if own < ret {
			beaten--
		}
	}
	if peers <= 0 {
		return 50
	}
	return float64(beaten) / float64(peers) * 100
}

func sortedValues(m map[string]float64) []float64 {
	out := make([]float64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
