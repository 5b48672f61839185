package contracts

import "time"

// Profit target precedence between the fixed target and the configured one
const (
	ProfitTargetBoth     = "both"
	ProfitTargetOverride = "override"
)

// Exit reasons recorded on closed trades
const (
	ExitStopLoss           = "stop_loss"
	ExitProfitTarget       = "profit_target"
	ExitProfitTargetCustom = "profit_target_custom"
	ExitTimeLimit          = "time_limit"
	ExitMarketDown         = "market_down"
	ExitEndOfRange         = "end_of_range"
)

// BacktestConfig holds one simulation's parameters
type BacktestConfig struct {
	From                time.Time `json:"from"`
	To                  time.Time `json:"to"`
	Universe            string    `json:"universe"`
	ScoreCutoff         float64   `json:"score_cutoff"`
	MaxPositions        int       `json:"max_positions"`
	RiskPercent         float64   `json:"risk_percent"`      // % of cash risked per trade
	StopLossPercent     float64   `json:"stop_loss_percent"` // e.g. 8 for -8%
	InitialCapital      float64   `json:"initial_capital"`
	UseMarketGate       bool      `json:"use_market_gate"`
	ProfitTargetPercent float64   `json:"profit_target_percent"` // 0 = unset
	ProfitTargetMode    string    `json:"profit_target_mode"`
}

// Trade is one simulated round trip. Exit fields stay empty while open.
type Trade struct {
	Symbol      string     `json:"symbol"`
	EntryDate   time.Time  `json:"entry_date"`
	EntryPrice  float64    `json:"entry_price"`
	Shares      int64      `json:"shares"`
	EntryScore  float64    `json:"entry_score"`
	ExitDate    *time.Time `json:"exit_date,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
	ExitReason  string     `json:"exit_reason,omitempty"`
	ReturnPct   float64    `json:"return_pct"` // (exit-entry)/entry
	PnL         float64    `json:"pnl"`
	HoldingDays int        `json:"holding_days"`
}

// EquityPoint is one day of the equity curve
type EquityPoint struct {
	Date          time.Time `json:"date"`
	Equity        float64   `json:"equity"`
	Cash          float64   `json:"cash"`
	OpenPositions int       `json:"open_positions"`
}

// BacktestStats summarises a finished simulation
type BacktestStats struct {
	TotalReturn    float64 `json:"total_return"`
	SharpeRatio    float64 `json:"sharpe_ratio"` // per trade, not annualized
	MaxDrawdown    float64 `json:"max_drawdown"`
	HitRate        float64 `json:"hit_rate"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	LargestWin     float64 `json:"largest_win"`
	LargestLoss    float64 `json:"largest_loss"`
	AvgHoldingDays float64 `json:"avg_holding_days"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
}

// SymbolStats aggregates closed trades per symbol
type SymbolStats struct {
	Symbol      string  `json:"symbol"`
	Trades      int     `json:"trades"`
	TotalReturn float64 `json:"total_return"` // sum of trade returns
	WinRate     float64 `json:"win_rate"`
}

// BacktestReport is the full result of one simulation
type BacktestReport struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	Config        BacktestConfig `json:"config"`
	ConfigHash    string         `json:"config_hash"`
	EffectiveFrom time.Time      `json:"effective_from"`
	EffectiveTo   time.Time      `json:"effective_to"`
	RangeAdjusted bool           `json:"range_adjusted"`
	RangeNote     string         `json:"range_note,omitempty"`
	GateNote      string         `json:"gate_note,omitempty"`
	TradingDays   int            `json:"trading_days"`
	FinalEquity   float64        `json:"final_equity"`
	Stats         BacktestStats  `json:"stats"`
	PerSymbol     []SymbolStats  `json:"per_symbol"`
	Trades        []Trade        `json:"trades"`
	EquityCurve   []EquityPoint  `json:"equity_curve"`
}
