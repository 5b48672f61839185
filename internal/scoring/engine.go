package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/strategyconfig"
)

const (
	bonusFraction = 0.5

	exceptionalNewHigh       = 0.95
	exceptionalRSPercentile  = 90.0
	exceptionalInstitutional = 0.05
)

// Engine scores FactorSets against one configuration snapshot
// ⭐ SSOT: CAN SLIM 점수/자격 판정은 여기서만
type Engine struct {
	weights    strategyconfig.Weights
	thresholds strategyconfig.Thresholds
	liquidity  strategyconfig.Liquidity
	auxGate    strategyconfig.AuxGate
}

// NewEngine snapshots the scoring sections of cfg
func NewEngine(cfg *strategyconfig.Config) *Engine {
	return &Engine{
		weights:    cfg.Weights,
		thresholds: cfg.Thresholds,
		liquidity:  cfg.Liquidity,
		auxGate:    cfg.AuxGate,
	}
}

// factorAward is the outcome of one factor check
type factorAward struct {
	met    bool
	weight float64
}

// Score evaluates one symbol. Qualification depends only on the factors,
// ratings and configuration; failed gates add reasons but never zero the score.
func (e *Engine) Score(symbol string, fs contracts.FactorSet, ratings contracts.AuxRatings, asOf time.Time) contracts.ScoreResult {
	awards := e.awards(fs)

	var earned float64
	criteria := 0
	for _, a := range awards {
		earned += a.weight
		if a.met {
			criteria++
		}
	}

	maxPossible := e.weights.Sum() * (1 + bonusFraction)
	score := 0.0
	if maxPossible > 0 {
		score = clamp(earned/maxPossible*100, 0, 100)
	}

	reasons := e.gate(fs, ratings)

	return contracts.ScoreResult{
		Symbol:      symbol,
		Score:       score,
		Qualified:   len(reasons) == 0,
		Reasons:     reasons,
		CriteriaMet: criteria,
		Factors:     fs,
		Ratings:     ratings,
		AsOf:        asOf,
	}
}

// awards checks the six CAN SLIM factors in C, A, N, S, L, I order
func (e *Engine) awards(fs contracts.FactorSet) []factorAward {
	w, t := e.weights, e.thresholds

	return []factorAward{
		ratioAward(fs.CurrentEarningsGrowth, t.CurrentEarningsGrowth, w.CurrentEarnings),
		ratioAward(fs.AnnualEarningsCAGR, t.AnnualEarningsCAGR, w.AnnualEarnings),
		fixedAward(fs.NewHighRatio >= t.NewHighRatio, fs.NewHighRatio >= exceptionalNewHigh, w.NewHigh),
		ratioAward(fs.VolumeSpikeRatio, t.VolumeSpikeRatio, w.VolumeSpike),
		fixedAward(fs.RSPercentile >= t.RSPercentile, fs.RSPercentile >= exceptionalRSPercentile, w.RelativeStrength),
		e.institutionalAward(fs),
	}
}

// institutionalAward gives full weight for a positive delta, or when no
// earnings history exists at all (no penalty for missing data)
func (e *Engine) institutionalAward(fs contracts.FactorSet) factorAward {
	w := e.weights.Institutional
	if fs.InstitutionalDelta > e.thresholds.InstitutionalDelta {
		return fixedAward(true, fs.InstitutionalDelta >= exceptionalInstitutional, w)
	}
	if !fs.HasEarnings {
		return factorAward{met: true, weight: w}
	}
	return factorAward{}
}

// ratioAward: full weight at threshold, +50% at double the threshold
func ratioAward(value, threshold, weight float64) factorAward {
	if value < threshold {
		return factorAward{}
	}
	a := factorAward{met: true, weight: weight}
	if threshold > 0 && value >= 2*threshold {
		a.weight += weight * bonusFraction
	}
	return a
}

// fixedAward: full weight when met, +50% when the exceptional bar is also cleared
func fixedAward(met, exceptional bool, weight float64) factorAward {
	if !met {
		return factorAward{}
	}
	a := factorAward{met: true, weight: weight}
	if exceptional {
		a.weight += weight * bonusFraction
	}
	return a
}

// gate returns the disqualification reasons in a fixed order
func (e *Engine) gate(fs contracts.FactorSet, r contracts.AuxRatings) []string {
	reasons := make([]string, 0)

	if fs.BarCount < e.liquidity.MinHistoryBars {
		reasons = append(reasons, contracts.ReasonInsufficientHistory)
	}
	if fs.DollarVolume < e.liquidity.MinDollarVolume {
		reasons = append(reasons, contracts.ReasonInsufficientLiquidity)
	}
	if fs.AvgPrice < e.liquidity.MinAvgPrice {
		reasons = append(reasons, contracts.ReasonPriceBelowMinimum)
	}

	if !e.auxGate.Enabled {
		return reasons
	}
	if r.RSRank < e.auxGate.MinRSRank {
		reasons = append(reasons, contracts.ReasonRSRankBelowMinimum)
	}
	if r.UpDownRatio < e.auxGate.MinUpDownRatio {
		reasons = append(reasons, contracts.ReasonUpDownBelowMinimum)
	}
	if r.Composite < e.auxGate.MinComposite {
		reasons = append(reasons, contracts.ReasonCompositeBelowMinimum)
	}
	if e.auxGate.MinADRating != "" &&
		strategyconfig.ADRatingRank(r.ADRating) < strategyconfig.ADRatingRank(e.auxGate.MinADRating) {
		reasons = append(reasons, contracts.ReasonADRatingBelowMinimum)
	}
	return reasons
}

// PassesLiquidity reports whether only the liquidity gate passes; the backtest
// filters entries on this before ranking
func (e *Engine) PassesLiquidity(fs contracts.FactorSet) bool {
	return fs.DollarVolume >= e.liquidity.MinDollarVolume && fs.AvgPrice >= e.liquidity.MinAvgPrice
}

// SortResults orders results qualified first, then score descending, then symbol
func SortResults(results []contracts.ScoreResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Qualified != b.Qualified {
			return a.Qualified
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Symbol < b.Symbol
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
