package metrics

import "github.com/wonny/canslim/internal/contracts"

// Input is everything known about one symbol as of the evaluation day.
// Series must be ordered ascending.
type Input struct {
	Symbol    string
	Bars      []contracts.Bar
	Earnings  []contracts.EarningsRecord
	Ownership []contracts.OwnershipRecord
}

// Compute builds the full FactorSet for one symbol against a peer sample
func Compute(in Input, sample ReturnSample) contracts.FactorSet {
	fs := contracts.FactorSet{
		CurrentEarningsGrowth: CurrentEarningsGrowth(in.Earnings),
		AnnualEarningsCAGR:    AnnualEarningsCAGR(in.Earnings),
		NewHighRatio:          NewHighRatio(in.Bars),
		VolumeSpikeRatio:      VolumeSpike(in.Bars),
		RSPercentile:          RSPercentile(in.Symbol, in.Bars, sample),
		InstitutionalDelta:    InstitutionalDelta(in.Ownership),

		DollarVolume: DollarVolume(in.Bars),
		AvgPrice:     AveragePrice(in.Bars),
		BarCount:     len(in.Bars),
		HasEarnings:  len(in.Earnings) > 0,
		Breakout:     Breakout(in.Bars),
	}
	if n := len(in.Bars); n > 0 {
		fs.LastClose = in.Bars[n-1].Close
	}
	return fs
}
