package strategyconfig

import (
	"fmt"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// adRatingOrder A > B > C > D > E
var adRatingOrder = map[string]int{"A": 5, "B": 4, "C": 3, "D": 2, "E": 1}

// ADRatingRank returns the ordinal of an A~E letter, 0 for anything else
func ADRatingRank(letter string) int {
	return adRatingOrder[letter]
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Meta.Version == "" {
		return ValidationError{"meta.version", "required"}
	}

	// === Scan ===
	if cfg.Scan.BatchSize <= 0 {
		return ValidationError{"scan.batch_size", "must be > 0"}
	}
	if cfg.Scan.StaleAfterDays <= 0 {
		return ValidationError{"scan.stale_after_days", "must be > 0"}
	}
	if cfg.Scan.LookbackDays < 366 {
		return ValidationError{"scan.lookback_days", "must be >= 366 to cover 252 trading days"}
	}

	// === Liquidity ===
	if cfg.Liquidity.MinDollarVolume < 0 {
		return ValidationError{"liquidity.min_dollar_volume", "must be >= 0"}
	}
	if cfg.Liquidity.MinAvgPrice < 0 {
		return ValidationError{"liquidity.min_avg_price", "must be >= 0"}
	}
	if cfg.Liquidity.MinHistoryBars < 0 {
		return ValidationError{"liquidity.min_history_bars", "must be >= 0"}
	}

	// === Weights ===
	w := cfg.Weights
	for field, v := range map[string]float64{
		"weights.current_earnings":  w.CurrentEarnings,
		"weights.annual_earnings":   w.AnnualEarnings,
		"weights.new_high":          w.NewHigh,
		"weights.volume_spike":      w.VolumeSpike,
		"weights.relative_strength": w.RelativeStrength,
		"weights.institutional":     w.Institutional,
	} {
		if v < 0 {
			return ValidationError{field, "must be >= 0"}
		}
	}
	if w.Sum() <= 0 {
		return ValidationError{"weights", "must sum to > 0"}
	}

	// === Thresholds ===
	t := cfg.Thresholds
	if t.VolumeSpikeRatio <= 0 {
		return ValidationError{"thresholds.volume_spike_ratio", "must be > 0"}
	}
	if t.NewHighRatio <= 0 || t.NewHighRatio > 1 {
		return ValidationError{"thresholds.new_high_ratio", "must be in (0, 1]"}
	}
	if t.RSPercentile < 0 || t.RSPercentile > 100 {
		return ValidationError{"thresholds.rs_percentile", "must be in [0, 100]"}
	}

	// === AuxGate ===
	if cfg.AuxGate.MinADRating != "" && ADRatingRank(cfg.AuxGate.MinADRating) == 0 {
		return ValidationError{"aux_gate.min_ad_rating", "must be one of A, B, C, D, E"}
	}
	if cfg.AuxGate.MinRSRank < 0 || cfg.AuxGate.MinRSRank > 99 {
		return ValidationError{"aux_gate.min_rs_rank", "must be in [0, 99]"}
	}
	if cfg.AuxGate.MinComposite < 0 || cfg.AuxGate.MinComposite > 99 {
		return ValidationError{"aux_gate.min_composite", "must be in [0, 99]"}
	}

	// === MarketGate ===
	mg := cfg.MarketGate
	if mg.Enabled && mg.Ticker == "" {
		return ValidationError{"market_gate.ticker", "required when enabled"}
	}
	if mg.ShortMA <= 0 || mg.LongMA <= 0 {
		return ValidationError{"market_gate", "short_ma and long_ma must be > 0"}
	}
	if mg.ShortMA >= mg.LongMA {
		return ValidationError{"market_gate", "short_ma must be < long_ma"}
	}

	// === Universes ===
	seen := make(map[string]bool)
	for i, u := range cfg.Universes {
		field := fmt.Sprintf("universes[%d]", i)
		if u.Name == "" {
			return ValidationError{field + ".name", "required"}
		}
		if u.Name == "all" {
			return ValidationError{field + ".name", "'all' is reserved"}
		}
		if seen[u.Name] {
			return ValidationError{field + ".name", fmt.Sprintf("duplicate universe %q", u.Name)}
		}
		seen[u.Name] = true

		switch u.Source {
		case "":
			if len(u.Symbols) == 0 {
				return ValidationError{field, "needs symbols or source: provider"}
			}
		case "provider":
		default:
			return ValidationError{field + ".source", "must be empty or provider"}
		}
	}

	// === Backtest ===
	b := cfg.Backtest
	if b.MaxPositions <= 0 {
		return ValidationError{"backtest.max_positions", "must be > 0"}
	}
	if b.RiskPercent <= 0 || b.RiskPercent > 100 {
		return ValidationError{"backtest.risk_percent", "must be in (0, 100]"}
	}
	if b.StopLossPercent <= 0 || b.StopLossPercent >= 100 {
		return ValidationError{"backtest.stop_loss_percent", "must be in (0, 100)"}
	}
	if b.InitialCapital <= 0 {
		return ValidationError{"backtest.initial_capital", "must be > 0"}
	}
	if b.FixedProfitTarget <= 0 {
		return ValidationError{"backtest.fixed_profit_target_percent", "must be > 0"}
	}
	if b.ProfitTargetPercent < 0 {
		return ValidationError{"backtest.profit_target_percent", "must be >= 0"}
	}
	if b.ProfitTargetMode != "both" && b.ProfitTargetMode != "override" {
		return ValidationError{"backtest.profit_target_mode", "must be both or override"}
	}
	if b.MaxHoldingDays <= 0 {
		return ValidationError{"backtest.max_holding_days", "must be > 0"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 유동성 게이트 꺼짐
	if cfg.Liquidity.MinDollarVolume == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_LIQUIDITY_GATE",
			Message: "min_dollar_volume = 0: 거래 불가 종목이 통과할 수 있음",
		})
	}

	// 손절폭 과다
	if cfg.Backtest.StopLossPercent > 10 {
		warnings = append(warnings, Warning{
			Code:    "WIDE_STOP",
			Message: "stop_loss_percent > 10%: CAN SLIM 권장 손절 7~8% 초과",
		})
	}

	// override 모드인데 목표 수익률 미설정
	if cfg.Backtest.ProfitTargetMode == "override" && cfg.Backtest.ProfitTargetPercent == 0 {
		warnings = append(warnings, Warning{
			Code:    "OVERRIDE_WITHOUT_TARGET",
			Message: "profit_target_mode=override but profit_target_percent=0: 고정 목표만 적용됨",
		})
	}

	// 보조 게이트 설정했지만 비활성
	if !cfg.AuxGate.Enabled && cfg.AuxGate.MinComposite > 0 {
		warnings = append(warnings, Warning{
			Code:    "AUX_GATE_DISABLED",
			Message: "aux_gate thresholds set but aux_gate.enabled=false",
		})
	}

	return warnings
}
