package strategyconfig

import (
	"errors"
	"strings"

	"github.com/wonny/canslim/internal/contracts"
)

// Config는 스크리닝/백테스트 전략의 전체 설정 번들
// 스캔/백테스트 시작 시 한 번 읽고 실행 중에는 불변 스냅샷으로 취급
type Config struct {
	Meta       Meta             `yaml:"meta" json:"meta"`
	Scan       Scan             `yaml:"scan" json:"scan"`
	Liquidity  Liquidity        `yaml:"liquidity" json:"liquidity"`
	Weights    Weights          `yaml:"weights" json:"weights"`
	Thresholds Thresholds       `yaml:"thresholds" json:"thresholds"`
	AuxGate    AuxGate          `yaml:"aux_gate" json:"aux_gate"`
	MarketGate MarketGate       `yaml:"market_gate" json:"market_gate"`
	Universes  []UniverseDef    `yaml:"universes" json:"universes"`
	Backtest   BacktestDefaults `yaml:"backtest" json:"backtest"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
}

// Scan 배치/신선도 설정
type Scan struct {
	BatchSize      int `yaml:"batch_size" json:"batch_size"`             // 40
	StaleAfterDays int `yaml:"stale_after_days" json:"stale_after_days"` // 7
	LookbackDays   int `yaml:"lookback_days" json:"lookback_days"`       // 캘린더 일수, 252 거래일 + 여유
}

// Liquidity 유동성 게이트 (점수 아님, 통과/탈락만)
type Liquidity struct {
	MinDollarVolume float64 `yaml:"min_dollar_volume" json:"min_dollar_volume"` // 50일 평균 거래대금
	MinAvgPrice     float64 `yaml:"min_avg_price" json:"min_avg_price"`
	MinHistoryBars  int     `yaml:"min_history_bars" json:"min_history_bars"`
}

// Weights 팩터별 가중치 (C/A/N/S/L/I)
type Weights struct {
	CurrentEarnings  float64 `yaml:"current_earnings" json:"current_earnings"`
	AnnualEarnings   float64 `yaml:"annual_earnings" json:"annual_earnings"`
	NewHigh          float64 `yaml:"new_high" json:"new_high"`
	VolumeSpike      float64 `yaml:"volume_spike" json:"volume_spike"`
	RelativeStrength float64 `yaml:"relative_strength" json:"relative_strength"`
	Institutional    float64 `yaml:"institutional" json:"institutional"`
}

// Sum returns the total of all factor weights
func (w Weights) Sum() float64 {
	return w.CurrentEarnings + w.AnnualEarnings + w.NewHigh + w.VolumeSpike + w.RelativeStrength + w.Institutional
}

// Thresholds 팩터별 충족 기준
type Thresholds struct {
	CurrentEarningsGrowth float64 `yaml:"current_earnings_growth" json:"current_earnings_growth"` // 0.25 = +25%
	AnnualEarningsCAGR    float64 `yaml:"annual_earnings_cagr" json:"annual_earnings_cagr"`
	NewHighRatio          float64 `yaml:"new_high_ratio" json:"new_high_ratio"`
	VolumeSpikeRatio      float64 `yaml:"volume_spike_ratio" json:"volume_spike_ratio"`
	RSPercentile          float64 `yaml:"rs_percentile" json:"rs_percentile"`
	InstitutionalDelta    float64 `yaml:"institutional_delta" json:"institutional_delta"` // delta > 이 값
}

// AuxGate IBD 보조 지표 게이트
type AuxGate struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	MinRSRank      int     `yaml:"min_rs_rank" json:"min_rs_rank"`
	MinUpDownRatio float64 `yaml:"min_up_down_ratio" json:"min_up_down_ratio"`
	MinComposite   int     `yaml:"min_composite" json:"min_composite"`
	MinADRating    string  `yaml:"min_ad_rating" json:"min_ad_rating"` // A > B > C > D > E, 빈값 = 미적용
}

// MarketGate 벤치마크 추세 필터
type MarketGate struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Ticker  string `yaml:"ticker" json:"ticker"`
	ShortMA int    `yaml:"short_ma" json:"short_ma"`
	LongMA  int    `yaml:"long_ma" json:"long_ma"`
}

// UniverseDef 이름 있는 유니버스 태그
// Symbols가 있으면 명시 목록, Source=provider면 공급자 유니버스를 거래소/섹터로 필터
type UniverseDef struct {
	Name      string   `yaml:"name" json:"name"`
	Symbols   []string `yaml:"symbols,omitempty" json:"symbols,omitempty"`
	Source    string   `yaml:"source,omitempty" json:"source,omitempty"`
	Exchanges []string `yaml:"exchanges,omitempty" json:"exchanges,omitempty"`
	Sectors   []string `yaml:"sectors,omitempty" json:"sectors,omitempty"`
}

// BacktestDefaults 백테스트 기본값 (요청에서 0인 항목을 채움)
type BacktestDefaults struct {
	ScoreCutoff         float64 `yaml:"score_cutoff" json:"score_cutoff"`
	MaxPositions        int     `yaml:"max_positions" json:"max_positions"`
	RiskPercent         float64 `yaml:"risk_percent" json:"risk_percent"`
	StopLossPercent     float64 `yaml:"stop_loss_percent" json:"stop_loss_percent"`
	InitialCapital      float64 `yaml:"initial_capital" json:"initial_capital"`
	UseMarketGate       bool    `yaml:"use_market_gate" json:"use_market_gate"`
	FixedProfitTarget   float64 `yaml:"fixed_profit_target_percent" json:"fixed_profit_target_percent"` // 15
	ProfitTargetPercent float64 `yaml:"profit_target_percent" json:"profit_target_percent"`             // 0 = 미설정
	ProfitTargetMode    string  `yaml:"profit_target_mode" json:"profit_target_mode"`                   // both | override
	MaxHoldingDays      int     `yaml:"max_holding_days" json:"max_holding_days"`                       // 30
}

// Universe returns the named universe definition
func (c *Config) Universe(name string) (UniverseDef, bool) {
	for _, u := range c.Universes {
		if u.Name == name {
			return u, true
		}
	}
	return UniverseDef{}, false
}

// Universe resolution errors
var (
	ErrUnknownUniverse = errors.New("unknown universe")
	ErrEmptyUniverse   = errors.New("universe has no symbols")
)

// Filter keeps symbols matching any listed exchange and any listed sector.
// An empty list does not filter.
func (u UniverseDef) Filter(meta []contracts.SymbolMeta) []contracts.SymbolMeta {
	out := make([]contracts.SymbolMeta, 0, len(meta))
	for _, m := range meta {
		if matchAny(m.Exchange, u.Exchanges) && matchAny(m.Sector, u.Sectors) {
			out = append(out, m)
		}
	}
	return out
}

func matchAny(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return true
		}
	}
	return false
}

// Default returns the built-in strategy bundle
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID: "canslim_default",
			Version:    "1.0.0",
		},
		Scan: Scan{
			BatchSize:      40,
			StaleAfterDays: 7,
			LookbackDays:   400,
		},
		Liquidity: Liquidity{
			MinDollarVolume: 5_000_000,
			MinAvgPrice:     10,
			MinHistoryBars:  50,
		},
		Weights: Weights{
			CurrentEarnings:  20,
			AnnualEarnings:   15,
			NewHigh:          15,
			VolumeSpike:      15,
			RelativeStrength: 20,
			Institutional:    15,
		},
		Thresholds: Thresholds{
			CurrentEarningsGrowth: 0.25,
			AnnualEarningsCAGR:    0.25,
			NewHighRatio:          0.85,
			VolumeSpikeRatio:      1.5,
			RSPercentile:          80,
			InstitutionalDelta:    0,
		},
		AuxGate: AuxGate{
			Enabled:        false,
			MinRSRank:      70,
			MinUpDownRatio: 1.0,
			MinComposite:   60,
			MinADRating:    "C",
		},
		MarketGate: MarketGate{
			Enabled: true,
			Ticker:  "SPY",
			ShortMA: 50,
			LongMA:  200,
		},
		Backtest: BacktestDefaults{
			ScoreCutoff:       60,
			MaxPositions:      5,
			RiskPercent:       1,
			StopLossPercent:   8,
			InitialCapital:    100_000,
			UseMarketGate:     true,
			FixedProfitTarget: 15,
			ProfitTargetMode:  "both",
			MaxHoldingDays:    30,
		},
	}
}
