package scanner

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/canslim/internal/contracts"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ErrUnsupportedFormat is returned for an unknown export format
var ErrUnsupportedFormat = errors.New("unsupported export format")

var csvHeader = []string{
	"rank", "symbol", "name", "industry", "score", "qualified", "criteria_met", "reasons",
	"current_earnings_growth", "annual_earnings_cagr", "new_high_ratio", "volume_spike_ratio",
	"rs_percentile", "institutional_delta",
	"rs_rank", "up_down_ratio", "ad_rating", "fundamentals_rating", "industry_rank", "composite",
	"dollar_volume", "last_close", "as_of",
}

// Export serialises a run's ranked results as csv or json
func (s *Scanner) Export(ctx context.Context, runID, format string) ([]byte, error) {
	format = strings.ToLower(format)
	if format != FormatCSV && format != FormatJSON {
		return nil, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}

	results, err := s.GetResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	return EncodeResults(results, format)
}

// EncodeResults writes results in rank order
func EncodeResults(results []contracts.ScoreResult, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		if results == nil {
			results = []contracts.ScoreResult{}
		}
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return data, nil

	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(csvHeader); err != nil {
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		for i, r := range results {
			if err := w.Write(csvRow(i+1, r)); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("flush csv: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
}

func csvRow(rank int, r contracts.ScoreResult) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	return []string{
		strconv.Itoa(rank),
		r.Symbol,
		r.Name,
		r.Industry,
		strconv.FormatFloat(r.Score, 'f', 2, 64),
		strconv.FormatBool(r.Qualified),
		strconv.Itoa(r.CriteriaMet),
		strings.Join(r.Reasons, ";"),
		f(r.Factors.CurrentEarningsGrowth),
		f(r.Factors.AnnualEarningsCAGR),
		f(r.Factors.NewHighRatio),
		f(r.Factors.VolumeSpikeRatio),
		f(r.Factors.RSPercentile),
		f(r.Factors.InstitutionalDelta),
		strconv.Itoa(r.Ratings.RSRank),
		f(r.Ratings.UpDownRatio),
		r.Ratings.ADRating,
		r.Ratings.FundamentalsRating,
		strconv.Itoa(r.Ratings.IndustryRank),
		strconv.Itoa(r.Ratings.Composite),
		strconv.FormatFloat(r.Factors.DollarVolume, 'f', 0, 64),
		strconv.FormatFloat(r.Factors.LastClose, 'f', 2, 64),
		r.AsOf.Format(time.DateOnly),
	}
}
