package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wonny/canslim/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// out is where every command prints; tests swap it
var out io.Writer = os.Stdout

// PrintHeader prints a titled block
func PrintHeader(title string) {
	fmt.Fprintln(out)
	PrintDoubleSeparator()
	fmt.Fprintf(out, "  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Fprintln(out, "───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "⚠️  %s\n", message)
	fmt.Fprintln(out)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Fprintf(out, "✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(out, "❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Fprintf(out, "ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Fprintln(out, strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Fprintf(out, "%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Fprint(out, "  ")
		}
	}
	fmt.Fprintln(out)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Fprintf(out, "   %-*s : %s\n", keyWidth, key, value)
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(out, "   • %s\n", item)
	}
}

func pct(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

func date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

// PrintResults prints ranked scan results
func PrintResults(results []contracts.ScoreResult) {
	widths := []int{4, 7, 24, 6, 5, 4, 3, 3, 9}
	PrintTableHeader([]string{"#", "SYMBOL", "NAME", "SCORE", "QUAL", "N/6", "RS", "A/D", "AS OF"}, widths)
	for i, r := range results {
		qual := "-"
		if r.Qualified {
			qual = "yes"
		}
		name := r.Name
		if len(name) > widths[2] {
			name = name[:widths[2]-1] + "…"
		}
		PrintTableRow([]string{
			fmt.Sprintf("%d", i+1),
			r.Symbol,
			name,
			fmt.Sprintf("%.1f", r.Score),
			qual,
			fmt.Sprintf("%d", r.CriteriaMet),
			fmt.Sprintf("%d", r.Ratings.RSRank),
			r.Ratings.ADRating,
			date(r.AsOf),
		}, widths)
	}
}

// PrintRuns prints scan run history
func PrintRuns(runs []contracts.ScanRun) {
	widths := []int{36, 10, 11, 10, 10, 7, 5}
	PrintTableHeader([]string{"RUN ID", "STARTED", "STATUS", "MODE", "UNIVERSE", "RESULTS", "GATE"}, widths)
	for _, r := range runs {
		gate := "open"
		if !r.GateOpen {
			gate = "down"
		}
		PrintTableRow([]string{
			r.ID,
			date(r.StartedAt),
			r.Status,
			string(r.Mode),
			r.Universe,
			fmt.Sprintf("%d", r.ResultCount),
			gate,
		}, widths)
	}
}

// PrintReport prints a backtest report summary
func PrintReport(r *contracts.BacktestReport) {
	PrintHeader("Backtest " + r.ID)
	PrintKeyValue("Period", date(r.EffectiveFrom)+" ~ "+date(r.EffectiveTo), 16)
	if r.RangeAdjusted {
		PrintKeyValue("Range note", r.RangeNote, 16)
	}
	PrintKeyValue("Universe", r.Config.Universe, 16)
	PrintKeyValue("Market gate", fmt.Sprintf("%t", r.Config.UseMarketGate), 16)
	if r.GateNote != "" {
		PrintKeyValue("Gate note", r.GateNote, 16)
	}
	PrintKeyValue("Trading days", fmt.Sprintf("%d", r.TradingDays), 16)
	PrintKeyValue("Initial capital", fmt.Sprintf("%.2f", r.Config.InitialCapital), 16)
	PrintKeyValue("Final equity", fmt.Sprintf("%.2f", r.FinalEquity), 16)
	PrintSeparator()

	s := r.Stats
	PrintKeyValue("Total return", pct(s.TotalReturn), 16)
	PrintKeyValue("Max drawdown", pct(s.MaxDrawdown), 16)
	PrintKeyValue("Sharpe (trade)", fmt.Sprintf("%.2f", s.SharpeRatio), 16)
	PrintKeyValue("Trades", fmt.Sprintf("%d (%d W / %d L)", s.TotalTrades, s.WinningTrades, s.LosingTrades), 16)
	PrintKeyValue("Hit rate", pct(s.HitRate), 16)
	PrintKeyValue("Avg win / loss", pct(s.AvgWin)+" / "+pct(s.AvgLoss), 16)
	PrintKeyValue("Profit factor", fmt.Sprintf("%.2f", s.ProfitFactor), 16)
	PrintKeyValue("Avg holding", fmt.Sprintf("%.1f days", s.AvgHoldingDays), 16)
	PrintKeyValue("Config hash", r.ConfigHash, 16)
	PrintDoubleSeparator()
}

// PrintTrades prints a trade ledger
func PrintTrades(trades []contracts.Trade) {
	widths := []int{7, 10, 9, 7, 10, 9, 20, 8}
	PrintTableHeader([]string{"SYMBOL", "ENTRY", "PRICE", "SHARES", "EXIT", "PRICE", "REASON", "RETURN"}, widths)
	for _, t := range trades {
		exit := "-"
		if t.ExitDate != nil {
			exit = date(*t.ExitDate)
		}
		PrintTableRow([]string{
			t.Symbol,
			date(t.EntryDate),
			fmt.Sprintf("%.2f", t.EntryPrice),
			fmt.Sprintf("%d", t.Shares),
			exit,
			fmt.Sprintf("%.2f", t.ExitPrice),
			t.ExitReason,
			pct(t.ReturnPct),
		}, widths)
	}
}
