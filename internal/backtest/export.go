package backtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/wonny/canslim/internal/contracts"
)

var tradeHeader = []string{
	"symbol", "entry_date", "entry_price", "shares", "entry_score",
	"exit_date", "exit_price", "exit_reason", "return_pct", "pnl", "holding_days",
}

// ExportTrades returns a stored report's trade ledger as csv
func (e *Engine) ExportTrades(ctx context.Context, id string) ([]byte, error) {
	report, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return EncodeTrades(report.Trades)
}

// EncodeTrades writes trades in entry order as csv
func EncodeTrades(trades []contracts.Trade) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(tradeHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, t := range trades {
		exitDate := ""
		if t.ExitDate != nil {
			exitDate = t.ExitDate.Format(time.DateOnly)
		}
		row := []string{
			t.Symbol,
			t.EntryDate.Format(time.DateOnly),
			strconv.FormatFloat(t.EntryPrice, 'f', 2, 64),
			strconv.FormatInt(t.Shares, 10),
			strconv.FormatFloat(t.EntryScore, 'f', 2, 64),
			exitDate,
			strconv.FormatFloat(t.ExitPrice, 'f', 2, 64),
			t.ExitReason,
			strconv.FormatFloat(t.ReturnPct, 'f', 4, 64),
			strconv.FormatFloat(t.PnL, 'f', 2, 64),
			strconv.Itoa(t.HoldingDays),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
