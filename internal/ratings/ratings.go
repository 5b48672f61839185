// Package ratings derives IBD-style supplementary ratings: RS rank, up/down
// volume ratio, accumulation/distribution letter, fundamentals letter,
// industry group rank and a weighted composite.
// All ratings degrade to neutral values on missing data.
package ratings

import (
	"math"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/metrics"
)

const (
	upDownWindow = 50
	adWindow     = 65

	neutralRank   = 50
	neutralLetter = "C"
)

// Input is one symbol's data for rating
type Input struct {
	Symbol       string
	Bars         []contracts.Bar
	Earnings     []contracts.EarningsRecord
	Peers        *FundamentalsBenchmark // nil = threshold-based fundamentals letter
	IndustryRank int                    // 0 = unknown
}

// Calculate computes the full rating bundle for one symbol
func Calculate(in Input, sample metrics.ReturnSample) contracts.AuxRatings {
	r := contracts.AuxRatings{
		RSRank:             RSRank(in.Symbol, in.Bars, sample),
		UpDownRatio:        UpDownVolumeRatio(in.Bars),
		ADRating:           ADRating(in.Bars),
		FundamentalsRating: FundamentalsRating(in.Earnings, in.Peers),
	}
	if in.IndustryRank > 0 {
		r.IndustryRank = clampRank(in.IndustryRank)
	}
	r.Composite = Composite(r, VolumeComponent(in.Bars))
	return r
}

// RSRank is the 1~99 relative strength rank from the exact 12-month return.
// Fewer than 252 bars yields 50.
func RSRank(symbol string, bars []contracts.Bar, sample metrics.ReturnSample) int {
	ret, ok := metrics.TrailingReturn(bars)
	if !ok {
		return neutralRank
	}
	return clampRank(int(math.Round(sample.PercentileOf(symbol, ret))))
}

// UpDownVolumeRatio sums volume on up-close days over volume on down-close days
// across the trailing 50 bars. No down volume yields 0; fewer than 2 bars yields 1.
func UpDownVolumeRatio(bars []contracts.Bar) float64 {
	up, down, ok := upDownVolume(bars)
	if !ok {
		return 1
	}
	if down == 0 {
		return 0
	}
	return up / down
}

// VolumeComponent is the composite's 1~99 volume input. Only up volume
// (a raw ratio of 0) maps to 99, no price moves at all to 50.
func VolumeComponent(bars []contracts.Bar) float64 {
	up, down, ok := upDownVolume(bars)
	switch {
	case !ok:
		return VolumeRatioToNumber(1)
	case down == 0 && up > 0:
		return 99
	case down == 0:
		return neutralRank
	}
	return VolumeRatioToNumber(up / down)
}

// upDownVolume sums up-close and down-close volume over the trailing window
func upDownVolume(bars []contracts.Bar) (up, down float64, ok bool) {
	if len(bars) < 2 {
		return 0, 0, false
	}

	startIdx := 1
	if len(bars) > upDownWindow {
		startIdx = len(bars) - upDownWindow
	}

	for i := startIdx; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			up += float64(bars[i].Volume)
		case bars[i].Close < bars[i-1].Close:
			down += float64(bars[i].Volume)
		}
	}
	return up, down, true
}

// ADRating scores the trailing 65 bars: +1 for each above-average-volume up
// day, -1 for each above-average-volume down day. The score normalised by the
// window length is banded into A~E. Fewer than 2 bars yields C.
func ADRating(bars []contracts.Bar) string {
	if len(bars) < 2 {
		return neutralLetter
	}

	startIdx := 1
	if len(bars) > adWindow {
		startIdx = len(bars) - adWindow
	}
	window := bars[startIdx:]

	var volSum float64
	for _, b := range window {
		volSum += float64(b.Volume)
	}
	avgVol := volSum / float64(len(window))

	score := 0
	for i := startIdx; i < len(bars); i++ {
		if float64(bars[i].Volume) <= avgVol {
			continue
		}
		switch {
		case bars[i].Close > bars[i-1].Close:
			score++
		case bars[i].Close < bars[i-1].Close:
			score--
		}
	}

	normalized := float64(score) / float64(len(window))
	switch {
	case normalized >= 0.15:
		return "A"
	case normalized >= 0.05:
		return "B"
	case normalized > -0.05:
		return "C"
	case normalized > -0.15:
		return "D"
	default:
		return "E"
	}
}

// LetterToNumber maps A~E to a 1~99 scale, 0 for an absent letter
func LetterToNumber(letter string) float64 {
	switch letter {
	case "A":
		return 95
	case "B":
		return 80
	case "C":
		return 60
	case "D":
		return 40
	case "E":
		return 20
	default:
		return 0
	}
}

// VolumeRatioToNumber maps an up/down ratio onto 1~99 (1.0 → 50)
func VolumeRatioToNumber(ratio float64) float64 {
	return math.Max(1, math.Min(99, 50*ratio))
}

// Composite blends RS rank 25%, A/D 20%, volume 15%, fundamentals 20%
// and industry rank 20%, renormalised over the inputs that are present.
// volume is the 1~99 VolumeComponent.
func Composite(r contracts.AuxRatings, volume float64) int {
	type part struct {
		value  float64
		weight float64
	}
	parts := []part{
		{float64(r.RSRank), 0.25},
		{LetterToNumber(r.ADRating), 0.20},
		{volume, 0.15},
	}
	if v := LetterToNumber(r.FundamentalsRating); v > 0 {
		parts = append(parts, part{v, 0.20})
	}
	if r.IndustryRank > 0 {
		parts = append(parts, part{float64(r.IndustryRank), 0.20})
	}

	var sum, weights float64
	for _, p := range parts {
		if p.value <= 0 {
			continue
		}
		sum += p.value * p.weight
		weights += p.weight
	}
	if weights == 0 {
		return neutralRank
	}
	return clampRank(int(math.Round(sum / weights)))
}

func clampRank(v int) int {
	if v < 1 {
		return 1
	}
	if v > 99 {
		return 99
	}
	return v
}
