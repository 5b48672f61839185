// Package yahoo fetches daily OHLCV and benchmark index bars from the Yahoo
// Finance chart endpoint.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/pkg/httputil"
	"github.com/wonny/canslim/pkg/logger"
)

// Client handles communication with the Yahoo chart API
// ⭐ SSOT: Yahoo 시세 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Yahoo client; baseURL has no trailing slash
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("source", "yahoo"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// chartResponse mirrors the subset of /v8/finance/chart we read
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchBars returns daily bars for one symbol in [from, to]
func (c *Client) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error) {
	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", contracts.Day(from).Unix()))
	// period2 is exclusive
	params.Set("period2", fmt.Sprintf("%d", contracts.Day(to).AddDate(0, 0, 1).Unix()))
	params.Set("interval", "1d")
	params.Set("includePrePost", "false")
	params.Set("events", "div,splits")

	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	var resp chartResponse
	if err := c.httpClient.GetJSON(ctx, fullURL, &resp); err != nil {
		return nil, fmt.Errorf("fetch chart %s: %w", symbol, err)
	}

	bars, err := parseChart(&resp)
	if err != nil {
		return nil, fmt.Errorf("parse chart %s: %w", symbol, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(bars),
	}).Debug("Fetched bars")
	return bars, nil
}

// parseChart converts the columnar chart payload into bars.
// Rows with a missing or non-positive close are skipped (holidays, halts).
func parseChart(resp *chartResponse) ([]contracts.Bar, error) {
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("%s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	res := resp.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, nil
	}
	q := res.Indicators.Quote[0]

	bars := make([]contracts.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		closeVal := at(q.Close, i)
		if closeVal <= 0 {
			continue
		}
		bar := contracts.Bar{
			Date:   contracts.Day(time.Unix(ts, 0)),
			Open:   at(q.Open, i),
			High:   at(q.High, i),
			Low:    at(q.Low, i),
			Close:  closeVal,
			Volume: int64(math.Round(at(q.Volume, i))),
		}
		if bar.Open <= 0 {
			bar.Open = closeVal
		}
		bar.High = math.Max(bar.High, closeVal)
		if bar.Low <= 0 {
			bar.Low = math.Min(bar.Open, closeVal)
		}
		bars = append(bars, bar)
	}
	return contracts.SortBars(bars), nil
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

// GetOHLCV fetches each symbol in turn; failures are joined and the rest returned
func (c *Client) GetOHLCV(ctx context.Context, symbols []string, from, to time.Time) (map[string][]contracts.Bar, error) {
	out := make(map[string][]contracts.Bar, len(symbols))
	var errs []error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		bars, err := c.FetchBars(ctx, sym, from, to)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[sym] = bars
	}
	return out, errors.Join(errs...)
}

// GetIndexBars fetches a benchmark series (e.g. SPY, ^GSPC)
func (c *Client) GetIndexBars(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	return c.FetchBars(ctx, ticker, from, to)
}

// Ping fetches a few days of SPY
func (c *Client) Ping(ctx context.Context) error {
	now := time.Now().UTC()
	_, err := c.FetchBars(ctx, "SPY", now.AddDate(0, 0, -7), now)
	return err
}
