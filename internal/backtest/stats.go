package backtest

import (
	"math"
	"sort"

	"github.com/wonny/canslim/internal/contracts"
)

// ComputeStats summarises closed trades and the equity curve.
// Sharpe is mean trade return over the population standard deviation, not annualized.
func ComputeStats(trades []contracts.Trade, curve []contracts.EquityPoint, initial, final float64) contracts.BacktestStats {
	st := contracts.BacktestStats{TotalTrades: len(trades)}
	if initial > 0 {
		st.TotalReturn = (final - initial) / initial
	}
	st.MaxDrawdown = maxDrawdown(curve)

	if len(trades) == 0 {
		return st
	}

	returns := make([]float64, 0, len(trades))
	var winSum, lossSum float64
	var holding int
	for _, t := range trades {
		returns = append(returns, t.ReturnPct)
		holding += t.HoldingDays

		switch {
		case t.ReturnPct > 0:
			st.WinningTrades++
			winSum += t.ReturnPct
			st.LargestWin = math.Max(st.LargestWin, t.ReturnPct)
		case t.ReturnPct < 0:
			st.LosingTrades++
			lossSum += t.ReturnPct
			st.LargestLoss = math.Min(st.LargestLoss, t.ReturnPct)
		}
	}

	st.HitRate = float64(st.WinningTrades) / float64(len(trades))
	st.AvgHoldingDays = float64(holding) / float64(len(trades))
	if st.WinningTrades > 0 {
		st.AvgWin = winSum / float64(st.WinningTrades)
	}
	if st.LosingTrades > 0 {
		st.AvgLoss = lossSum / float64(st.LosingTrades)
		st.ProfitFactor = st.AvgWin / math.Abs(st.AvgLoss)
	}

	if len(returns) >= 2 {
		mean, std := meanStd(returns)
		if std > 0 {
			st.SharpeRatio = mean / std
		}
	}
	return st
}

// PerSymbol aggregates closed trades by symbol, sorted by symbol
func PerSymbol(trades []contracts.Trade) []contracts.SymbolStats {
	bySymbol := make(map[string]*contracts.SymbolStats)
	wins := make(map[string]int)
	for _, t := range trades {
		ss, ok := bySymbol[t.Symbol]
		if !ok {
			ss = &contracts.SymbolStats{Symbol: t.Symbol}
			bySymbol[t.Symbol] = ss
		}
		ss.Trades++
		ss.TotalReturn += t.ReturnPct
		if t.ReturnPct > 0 {
			wins[t.Symbol]++
		}
	}

	out := make([]contracts.SymbolStats, 0, len(bySymbol))
	for sym, ss := range bySymbol {
		ss.WinRate = float64(wins[sym]) / float64(ss.Trades)
		out = append(out, *ss)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// meanStd returns the mean and population standard deviation
func meanStd(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance)
}

// maxDrawdown is the largest peak-to-trough fall of the curve as a fraction of the peak
func maxDrawdown(curve []contracts.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	maxDD := 0.0
	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
