package contracts

import "time"

// FactorSet holds the six scored CAN SLIM factors plus the unscored gate inputs
// ⭐ SSOT: Metrics → Scoring 전달 구조
type FactorSet struct {
	CurrentEarningsGrowth float64 `json:"current_earnings_growth"` // C
	AnnualEarningsCAGR    float64 `json:"annual_earnings_cagr"`    // A
	NewHighRatio          float64 `json:"new_high_ratio"`          // N
	VolumeSpikeRatio      float64 `json:"volume_spike_ratio"`      // S
	RSPercentile          float64 `json:"rs_percentile"`           // L
	InstitutionalDelta    float64 `json:"institutional_delta"`     // I

	// Gate inputs (not scored)
	DollarVolume float64 `json:"dollar_volume"`
	AvgPrice     float64 `json:"avg_price"`
	LastClose    float64 `json:"last_close"`
	BarCount     int     `json:"bar_count"`
	HasEarnings  bool    `json:"has_earnings"`
	Breakout     bool    `json:"breakout"`
}

// AuxRatings is the IBD-style supplementary rating bundle.
// FundamentalsRating is empty and IndustryRank is 0 when the input was not available.
type AuxRatings struct {
	RSRank             int     `json:"rs_rank"` // 1 ~ 99
	UpDownRatio        float64 `json:"up_down_ratio"`
	ADRating           string  `json:"ad_rating"` // A ~ E
	FundamentalsRating string  `json:"fundamentals_rating,omitempty"`
	IndustryRank       int     `json:"industry_rank,omitempty"`
	Composite          int     `json:"composite"` // 1 ~ 99
}

// Disqualification reason codes, appended in this order
const (
	ReasonInsufficientHistory   = "insufficient_history"
	ReasonInsufficientLiquidity = "insufficient_liquidity"
	ReasonPriceBelowMinimum     = "price_below_minimum"
	ReasonRSRankBelowMinimum    = "rs_rank_below_minimum"
	ReasonUpDownBelowMinimum    = "ud_volume_ratio_below_minimum"
	ReasonCompositeBelowMinimum = "composite_below_minimum"
	ReasonADRatingBelowMinimum  = "ad_rating_below_minimum"
)

// ScoreResult is the scored verdict for one symbol.
// Produced fresh on every evaluation; never mutated after creation.
type ScoreResult struct {
	Symbol      string     `json:"symbol"`
	Name        string     `json:"name,omitempty"`
	Industry    string     `json:"industry,omitempty"`
	Score       float64    `json:"score"`     // 0 ~ 100
	Qualified   bool       `json:"qualified"` // all hard gates passed
	Reasons     []string   `json:"reasons"`
	CriteriaMet int        `json:"criteria_met"` // N/6
	Factors     FactorSet  `json:"factors"`
	Ratings     AuxRatings `json:"ratings"`
	AsOf        time.Time  `json:"as_of"`
}
